package match

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/Ayushh890/runner-app/internal/geoindex"
	"github.com/Ayushh890/runner-app/internal/presence"
	"github.com/Ayushh890/runner-app/internal/profile"
	"github.com/Ayushh890/runner-app/internal/session"
	"github.com/Ayushh890/runner-app/internal/shared/apperr"
	"github.com/Ayushh890/runner-app/internal/shared/geo"

	"github.com/google/uuid"
)

const (
	// DefaultRequestTTL expires unanswered team-up requests.
	DefaultRequestTTL = time.Hour

	paceToleranceMinPerKm = 0.5
	goalToleranceKm       = 2.0
)

// Service answers nearby-runner queries and brokers team-up requests.
// Discovery is a point-in-time snapshot over the spatial index and the
// presence registry; it never subscribes.
type Service struct {
	index    *geoindex.Index
	registry *presence.Registry
	profiles profile.Source
	hub      *session.Hub

	mu         sync.Mutex
	requests   map[string]*TeamRequest
	requestTTL time.Duration
	now        func() time.Time
}

func NewService(index *geoindex.Index, registry *presence.Registry, profiles profile.Source, hub *session.Hub, requestTTL time.Duration) *Service {
	if requestTTL <= 0 {
		requestTTL = DefaultRequestTTL
	}
	return &Service{
		index:      index,
		registry:   registry,
		profiles:   profiles,
		hub:        hub,
		requests:   map[string]*TeamRequest{},
		requestTTL: requestTTL,
		now:        time.Now,
	}
}

// Discover returns online runners near origin matching the filter, closest
// first. The requester is never part of the result.
func (s *Service) Discover(ctx context.Context, requesterID string, origin geo.Coord, f DiscoveryFilter) ([]Match, error) {
	if f.RadiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", apperr.ErrInvalidArgument)
	}
	if !geo.Valid(origin.Lat, origin.Lng) {
		return nil, fmt.Errorf("%w: origin out of range", apperr.ErrInvalidArgument)
	}

	neighbors := s.index.QueryRadius(origin, f.RadiusKm)

	candidates := neighbors[:0]
	var ids []string
	for _, n := range neighbors {
		if n.RunnerID == requesterID || !s.registry.IsOnline(n.RunnerID) {
			continue
		}
		candidates = append(candidates, n)
		ids = append(ids, n.RunnerID)
	}

	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, n := range candidates {
		p, ok := profiles[n.RunnerID]
		if !ok {
			// indexed but unknown to the identity service; skip rather than fail
			log.Printf("[match] no profile for runner %s, skipping", n.RunnerID)
			continue
		}
		if !matchesFilter(p, f) {
			continue
		}
		matches = append(matches, Match{Profile: p, DistanceKm: n.DistanceKm})
	}
	return matches, nil
}

// matchesFilter applies the profile predicates: pace and distance goal are
// range matches, age group and gender exact. Zero-valued fields wildcard.
func matchesFilter(p profile.RunnerProfile, f DiscoveryFilter) bool {
	if f.PaceMinPerKm > 0 && math.Abs(p.PaceMinPerKm-f.PaceMinPerKm) > paceToleranceMinPerKm {
		return false
	}
	if f.DistanceGoalKm > 0 && math.Abs(p.DistanceGoalKm-f.DistanceGoalKm) > goalToleranceKm {
		return false
	}
	if f.AgeGroup != "" && p.AgeGroup != f.AgeGroup {
		return false
	}
	if f.Gender != "" && p.Gender != f.Gender {
		return false
	}
	return true
}

// SendTeamRequest proposes a pairing from one runner to another.
func (s *Service) SendTeamRequest(ctx context.Context, fromID, toID string) (TeamRequest, error) {
	if fromID == "" || toID == "" {
		return TeamRequest{}, fmt.Errorf("%w: both runner ids required", apperr.ErrInvalidArgument)
	}
	if fromID == toID {
		return TeamRequest{}, fmt.Errorf("%w: %s", apperr.ErrSelfRequest, fromID)
	}
	if _, err := s.profiles.Get(ctx, toID); err != nil {
		return TeamRequest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.requests {
		s.expireLocked(r)
		if r.Status == StatusPending && r.FromRunnerID == fromID && r.ToRunnerID == toID {
			return TeamRequest{}, fmt.Errorf("%w: %s -> %s", apperr.ErrAlreadyPending, fromID, toID)
		}
	}

	req := &TeamRequest{
		ID:           uuid.NewString(),
		FromRunnerID: fromID,
		ToRunnerID:   toID,
		Status:       StatusPending,
		CreatedAt:    s.now(),
	}
	s.requests[req.ID] = req
	log.Printf("[match] team request %s: %s -> %s", req.ID, fromID, toID)
	return *req, nil
}

// RespondToRequest lets the recipient accept or decline. Accepting seeds a
// live session for the pair and returns its ID.
func (s *Service) RespondToRequest(requestID, responderID string, accept bool) (string, error) {
	s.mu.Lock()
	req, ok := s.requests[requestID]
	if ok {
		s.expireLocked(req)
	}
	if !ok || req.Status == StatusExpired {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: request %s", apperr.ErrNotFound, requestID)
	}
	if req.Status != StatusPending {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: request %s already %s", apperr.ErrNotFound, requestID, req.Status)
	}
	if req.ToRunnerID != responderID {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: request %s", apperr.ErrNotRecipient, requestID)
	}

	if !accept {
		req.Status = StatusDeclined
		s.mu.Unlock()
		return "", nil
	}
	req.Status = StatusAccepted
	from, to := req.FromRunnerID, req.ToRunnerID
	s.mu.Unlock()

	sessionID, err := s.hub.CreateSession([]string{from, to})
	if err != nil {
		return "", err
	}
	log.Printf("[match] request %s accepted, session %s", requestID, sessionID)
	return sessionID, nil
}

// ListPendingRequests returns unexpired pending requests addressed to the
// runner.
func (s *Service) ListPendingRequests(runnerID string) []TeamRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []TeamRequest
	for _, r := range s.requests {
		s.expireLocked(r)
		if r.Status == StatusPending && r.ToRunnerID == runnerID {
			pending = append(pending, *r)
		}
	}
	return pending
}

// expireLocked lazily transitions an overdue pending request to expired.
func (s *Service) expireLocked(r *TeamRequest) {
	if r.Status == StatusPending && s.now().Sub(r.CreatedAt) > s.requestTTL {
		r.Status = StatusExpired
	}
}
