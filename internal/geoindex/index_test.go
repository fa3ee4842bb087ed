package geoindex

import (
	"errors"
	"testing"
	"time"

	"github.com/Ayushh890/runner-app/internal/shared/apperr"
	"github.com/Ayushh890/runner-app/internal/shared/geo"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func TestUpsertAndQueryRadius(t *testing.T) {
	idx := New()

	if _, err := idx.Upsert("a", 37.7749, -122.4194, t0); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if _, err := idx.Upsert("b", 37.7849, -122.4294, t0); err != nil {
		t.Fatalf("upsert b: %v", err)
	}
	if _, err := idx.Upsert("c", 38.5, -123.0, t0); err != nil {
		t.Fatalf("upsert c: %v", err)
	}

	got := idx.QueryRadius(geo.Coord{Lat: 37.7749, Lng: -122.4194}, 5)
	if len(got) != 2 {
		t.Fatalf("expected a and b within 5km, got %d", len(got))
	}
	if got[0].RunnerID != "a" || got[1].RunnerID != "b" {
		t.Fatalf("expected ascending distance order, got %v %v", got[0].RunnerID, got[1].RunnerID)
	}
	if got[1].DistanceKm < 1.2 || got[1].DistanceKm > 1.6 {
		t.Fatalf("expected ~1.4km to b, got %v", got[1].DistanceKm)
	}
}

func TestQueryRadiusNonPositive(t *testing.T) {
	idx := New()
	_, _ = idx.Upsert("a", 10, 10, t0)

	if got := idx.QueryRadius(geo.Coord{Lat: 10, Lng: 10}, 0); got != nil {
		t.Fatalf("expected empty set for zero radius")
	}
	if got := idx.QueryRadius(geo.Coord{Lat: 10, Lng: 10}, -1); got != nil {
		t.Fatalf("expected empty set for negative radius")
	}
}

func TestUpsertStaleDropped(t *testing.T) {
	idx := New()

	if applied, _ := idx.Upsert("a", 37.0, -122.0, t0); !applied {
		t.Fatalf("expected first upsert applied")
	}
	if applied, _ := idx.Upsert("a", 38.0, -121.0, t0.Add(time.Minute)); !applied {
		t.Fatalf("expected newer upsert applied")
	}

	applied, err := idx.Upsert("a", 39.0, -120.0, t0.Add(30*time.Second))
	if err != nil {
		t.Fatalf("stale upsert must not error: %v", err)
	}
	if applied {
		t.Fatalf("stale upsert must be dropped")
	}

	pos, ok := idx.Get("a")
	if !ok {
		t.Fatalf("expected position")
	}
	if pos.Lat != 38.0 || pos.Lng != -121.0 || !pos.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("stale upsert changed state: %+v", pos)
	}
}

func TestUpsertMovesRunner(t *testing.T) {
	idx := New()
	_, _ = idx.Upsert("a", 37.7749, -122.4194, t0)
	_, _ = idx.Upsert("a", 48.8566, 2.3522, t0.Add(time.Hour))

	if got := idx.QueryRadius(geo.Coord{Lat: 37.7749, Lng: -122.4194}, 5); len(got) != 0 {
		t.Fatalf("runner still at old location")
	}
	got := idx.QueryRadius(geo.Coord{Lat: 48.8566, Lng: 2.3522}, 1)
	if len(got) != 1 || got[0].RunnerID != "a" {
		t.Fatalf("runner not at new location: %v", got)
	}
	if idx.Size() != 1 {
		t.Fatalf("expected single entry, got %d", idx.Size())
	}
}

func TestUpsertOriginIsValidData(t *testing.T) {
	idx := New()
	if _, err := idx.Upsert("gulf", 0, 0, t0); err != nil {
		t.Fatalf("(0,0) must be accepted: %v", err)
	}
	got := idx.QueryRadius(geo.Coord{Lat: 0, Lng: 0}, 1)
	if len(got) != 1 {
		t.Fatalf("expected (0,0) runner in results")
	}
}

func TestUpsertInvalidCoordinate(t *testing.T) {
	idx := New()
	if _, err := idx.Upsert("a", 91, 0, t0); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := idx.Upsert("", 10, 10, t0); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty id, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	idx := New()
	_, _ = idx.Upsert("a", 10, 10, t0)
	idx.Remove("a")
	idx.Remove("missing")

	if _, ok := idx.Get("a"); ok {
		t.Fatalf("expected runner removed")
	}
	if got := idx.QueryRadius(geo.Coord{Lat: 10, Lng: 10}, 5); len(got) != 0 {
		t.Fatalf("removed runner still queryable")
	}
}
