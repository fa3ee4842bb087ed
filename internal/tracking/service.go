package tracking

import (
	"log"
	"time"

	"github.com/Ayushh890/runner-app/internal/geoindex"
	"github.com/Ayushh890/runner-app/internal/presence"
)

// Service is the single ingestion boundary for client position updates. Each
// accepted update lands in the spatial index and refreshes presence; stale
// (out-of-order) updates are dropped and logged, never surfaced, since
// mobile clients routinely reorder updates under poor connectivity.
type Service struct {
	index    *geoindex.Index
	registry *presence.Registry
}

func NewService(index *geoindex.Index, registry *presence.Registry) *Service {
	return &Service{index: index, registry: registry}
}

// Ingest applies a position update for an authenticated runner.
func (s *Service) Ingest(runnerID string, lat, lng float64, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}

	applied, err := s.index.Upsert(runnerID, lat, lng, at)
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("[tracking] dropped stale update for %s at %s", runnerID, at.Format(time.RFC3339))
		return nil
	}

	if s.registry.Touch(runnerID, at) {
		log.Printf("[tracking] runner %s online", runnerID)
	}
	return nil
}

// SignOut forces the runner offline and removes it from the spatial index.
// The transport layer calls this on explicit sign-out and on disconnect.
func (s *Service) SignOut(runnerID string) {
	s.registry.SetOffline(runnerID)
	s.index.Remove(runnerID)
}
