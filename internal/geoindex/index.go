package geoindex

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ayushh890/runner-app/internal/shared/apperr"
	"github.com/Ayushh890/runner-app/internal/shared/geo"

	"github.com/asim/quadtree"
)

// RunnerPosition is the latest known position of a runner. Only the newest
// value is kept; updates with an older timestamp are dropped.
type RunnerPosition struct {
	RunnerID  string    `json:"runner_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Neighbor is a query result: a runner and its distance from the query center.
type Neighbor struct {
	RunnerID   string         `json:"runner_id"`
	Pos        RunnerPosition `json:"pos"`
	DistanceKm float64        `json:"distance_km"`
}

// Index is the in-memory spatial index over runner positions. Points live in
// a quadtree for radius queries and in a map for per-runner lookup; both are
// guarded by a single RWMutex so reads see a consistent position record.
type Index struct {
	mu      sync.RWMutex
	tree    *quadtree.QuadTree
	runners map[string]*quadtree.Point
}

const maxRadiusResults = 256

func New() *Index {
	center := quadtree.NewPoint(0, 0, nil)
	half := quadtree.NewPoint(90, 180, nil)
	boundary := quadtree.NewAABB(center, half)

	return &Index{
		tree:    quadtree.New(boundary, 0, nil),
		runners: make(map[string]*quadtree.Point),
	}
}

// Upsert records a runner position. It returns false without changing state
// when at is older than the stored timestamp. A coordinate of (0,0) is valid
// data, not a sentinel.
func (x *Index) Upsert(runnerID string, lat, lng float64, at time.Time) (bool, error) {
	if runnerID == "" {
		return false, fmt.Errorf("%w: empty runner id", apperr.ErrInvalidArgument)
	}
	if !geo.Valid(lat, lng) {
		return false, fmt.Errorf("%w: coordinate (%v, %v) out of range", apperr.ErrInvalidArgument, lat, lng)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if existing, ok := x.runners[runnerID]; ok {
		prev := existing.Data().(*RunnerPosition)
		if at.Before(prev.UpdatedAt) {
			return false, nil
		}
		x.tree.Remove(existing)
	}

	pos := &RunnerPosition{RunnerID: runnerID, Lat: lat, Lng: lng, UpdatedAt: at}
	point := quadtree.NewPoint(lat, lng, pos)
	if !x.tree.Insert(point) {
		return false, fmt.Errorf("%w: coordinate (%v, %v) outside index bounds", apperr.ErrInvalidArgument, lat, lng)
	}
	x.runners[runnerID] = point
	return true, nil
}

// Remove drops a runner from the index. Unknown runners are a no-op.
func (x *Index) Remove(runnerID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if point, ok := x.runners[runnerID]; ok {
		x.tree.Remove(point)
		delete(x.runners, runnerID)
	}
}

// Get returns an atomic copy of a runner's latest position.
func (x *Index) Get(runnerID string) (RunnerPosition, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	point, ok := x.runners[runnerID]
	if !ok {
		return RunnerPosition{}, false
	}
	return *point.Data().(*RunnerPosition), true
}

// QueryRadius returns runners within radiusKm of center, closest first.
// A radius of zero or less returns the empty set. The quadtree bounding box
// overshoots at its corners, so results are re-checked against the haversine
// distance before being returned.
func (x *Index) QueryRadius(center geo.Coord, radiusKm float64) []Neighbor {
	if radiusKm <= 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	qc := quadtree.NewPoint(center.Lat, center.Lng, nil)
	half := qc.HalfPoint(radiusKm * 1000)
	boundary := quadtree.NewAABB(qc, half)

	points := x.tree.KNearest(boundary, maxRadiusResults, nil)

	var neighbors []Neighbor
	for _, p := range points {
		pos, ok := p.Data().(*RunnerPosition)
		if !ok {
			continue
		}
		d := geo.HaversineKm(center.Lat, center.Lng, pos.Lat, pos.Lng)
		if d > radiusKm {
			continue
		}
		neighbors = append(neighbors, Neighbor{RunnerID: pos.RunnerID, Pos: *pos, DistanceKm: d})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].DistanceKm < neighbors[j].DistanceKm
	})
	return neighbors
}

// Size returns the number of indexed runners.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.runners)
}
