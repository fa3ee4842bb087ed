package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Ayushh890/runner-app/internal/shared/apperr"
	"github.com/Ayushh890/runner-app/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultIdleTimeout ends a session with no submissions from anyone.
	DefaultIdleTimeout = 10 * time.Minute

	subscriberBuffer = 64
)

type position struct {
	lat, lng float64
	at       time.Time
}

type participant struct {
	last *position
	prev *position
}

// paceMinPerKm derives the participant's current pace from its last two
// cached points. Zero until two points exist or while standing still.
func (p *participant) paceMinPerKm() float64 {
	if p.last == nil || p.prev == nil {
		return 0
	}
	km := geo.HaversineKm(p.prev.lat, p.prev.lng, p.last.lat, p.last.lng)
	if km <= 0 {
		return 0
	}
	minutes := p.last.at.Sub(p.prev.at).Minutes()
	if minutes <= 0 {
		return 0
	}
	return minutes / km
}

type liveSession struct {
	mu           sync.Mutex
	id           string
	state        State
	participants map[string]*participant
	createdAt    time.Time
	startedAt    time.Time
	lastActivity time.Time
}

// Subscriber is one push-channel consumer. Send carries a small bounded
// buffer; a slow or disconnected consumer misses deltas rather than blocking
// the hub.
type Subscriber struct {
	SessionID string
	RunnerID  string
	Send      chan Event
}

// Hub owns live-session lifecycle and relays events between participants.
// Every event is additionally mirrored to redis pub/sub so subscribers on
// other nodes see it; a nil redis client disables the mirror.
type Hub struct {
	mu          sync.RWMutex
	redis       *redis.Client
	nodeID      string
	sessions    map[string]*liveSession
	subs        map[string]map[*Subscriber]struct{}
	idleTimeout time.Duration
	now         func() time.Time
}

func NewHub(redisClient *redis.Client, idleTimeout time.Duration) *Hub {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	h := &Hub{
		redis:       redisClient,
		nodeID:      uuid.NewString(),
		sessions:    map[string]*liveSession{},
		subs:        map[string]map[*Subscriber]struct{}{},
		idleTimeout: idleTimeout,
		now:         time.Now,
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

// CreateSession starts a forming session for two or more distinct runners.
// Session IDs are random and never reused.
func (h *Hub) CreateSession(participantIDs []string) (string, error) {
	distinct := map[string]struct{}{}
	for _, id := range participantIDs {
		if id == "" {
			return "", fmt.Errorf("%w: empty participant id", apperr.ErrInvalidArgument)
		}
		distinct[id] = struct{}{}
	}
	if len(distinct) < 2 {
		return "", fmt.Errorf("%w: a session needs at least two distinct participants", apperr.ErrInvalidArgument)
	}

	now := h.now()
	s := &liveSession{
		id:           uuid.NewString(),
		state:        StateForming,
		participants: map[string]*participant{},
		createdAt:    now,
		lastActivity: now,
	}
	for id := range distinct {
		s.participants[id] = &participant{}
	}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	log.Printf("[session] %s forming with %d participants", s.id, len(distinct))
	return s.id, nil
}

// Subscribe attaches a participant to the session's push channel.
func (h *Hub) Subscribe(sessionID, runnerID string) (*Subscriber, error) {
	s, err := h.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, isParticipant := s.participants[runnerID]
	s.mu.Unlock()
	if !isParticipant {
		return nil, fmt.Errorf("%w: %s in session %s", apperr.ErrNotParticipant, runnerID, sessionID)
	}

	sub := &Subscriber{
		SessionID: sessionID,
		RunnerID:  runnerID,
		Send:      make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[*Subscriber]struct{}{}
	}
	h.subs[sessionID][sub] = struct{}{}
	return sub, nil
}

// Unsubscribe detaches and closes a subscriber. Safe to call after the
// session ended.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeSubLocked(sub)
}

func (h *Hub) removeSubLocked(sub *Subscriber) {
	if sessionSubs, ok := h.subs[sub.SessionID]; ok {
		if _, present := sessionSubs[sub]; !present {
			return
		}
		delete(sessionSubs, sub)
		if len(sessionSubs) == 0 {
			delete(h.subs, sub.SessionID)
		}
		close(sub.Send)
	}
}

// SubmitPosition updates the submitter's cache and pushes a pairwise delta
// to every other participant's subscribers. Deltas are computed from a
// consistent snapshot taken under the session lock. Out-of-order updates are
// dropped and logged, as at the ingestion boundary.
func (h *Hub) SubmitPosition(sessionID, runnerID string, lat, lng float64, at time.Time) error {
	if !geo.Valid(lat, lng) {
		return fmt.Errorf("%w: coordinate (%v, %v) out of range", apperr.ErrInvalidArgument, lat, lng)
	}
	if at.IsZero() {
		at = h.now()
	}

	s, err := h.session(sessionID)
	if err != nil {
		return err
	}

	type delta struct {
		from, to   string
		distanceKm float64
		paceDelta  float64 // pace(from) - pace(to), positive when from is slower
	}

	s.mu.Lock()
	p, ok := s.participants[runnerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s in session %s", apperr.ErrNotParticipant, runnerID, sessionID)
	}
	if p.last != nil && at.Before(p.last.at) {
		s.mu.Unlock()
		log.Printf("[session] %s dropped stale update from %s", sessionID, runnerID)
		return nil
	}

	p.prev = p.last
	p.last = &position{lat: lat, lng: lng, at: at}
	s.lastActivity = h.now()

	if s.state == StateForming && s.everyoneHasSubmitted() {
		s.state = StateActive
		s.startedAt = h.now()
		log.Printf("[session] %s active", sessionID)
	}

	// each submission yields a delta for both ends of every pair: the other
	// participant learns where the submitter is, and the submitter's own
	// stream reports each partner relative to it
	myPace := p.paceMinPerKm()
	var deltas []delta
	for otherID, other := range s.participants {
		if otherID == runnerID || other.last == nil {
			continue
		}
		km := geo.HaversineKm(lat, lng, other.last.lat, other.last.lng)
		var paceGap float64
		if theirPace := other.paceMinPerKm(); myPace > 0 && theirPace > 0 {
			paceGap = myPace - theirPace
		}
		deltas = append(deltas,
			delta{from: runnerID, to: otherID, distanceKm: km, paceDelta: paceGap},
			delta{from: otherID, to: runnerID, distanceKm: km, paceDelta: -paceGap},
		)
	}
	s.mu.Unlock()

	for _, d := range deltas {
		h.publish(Event{
			Type:              EventPositionDelta,
			SessionID:         sessionID,
			From:              d.from,
			To:                d.to,
			DistanceKm:        d.distanceKm,
			PaceDeltaMinPerKm: d.paceDelta,
			At:                at,
		}, false)
	}
	return nil
}

// TriggerEmergency alerts every other participant. Alerts are delivered
// ahead of any pending deltas already queued on a subscriber.
func (h *Hub) TriggerEmergency(sessionID, runnerID string) error {
	s, err := h.session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	_, ok := s.participants[runnerID]
	others := make([]string, 0, len(s.participants))
	for id := range s.participants {
		if id != runnerID {
			others = append(others, id)
		}
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s in session %s", apperr.ErrNotParticipant, runnerID, sessionID)
	}

	log.Printf("[session] %s emergency from %s", sessionID, runnerID)
	for _, other := range others {
		h.publish(Event{
			Type:      EventEmergency,
			SessionID: sessionID,
			From:      runnerID,
			To:        other,
			At:        h.now(),
		}, true)
	}
	return nil
}

// Leave removes a participant. Leaving a forming session aborts it; the last
// participant leaving an active session ends it.
func (h *Hub) Leave(sessionID, runnerID string) error {
	s, err := h.session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.participants[runnerID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s in session %s", apperr.ErrNotParticipant, runnerID, sessionID)
	}
	delete(s.participants, runnerID)
	wasForming := s.state == StateForming
	empty := len(s.participants) == 0
	s.mu.Unlock()

	// ending the session broadcasts session_ended before any subscriber is
	// closed, so the departing runner still sees the final event
	switch {
	case wasForming:
		// a dropout before activation aborts the whole session
		h.endSession(sessionID, "aborted")
	case empty:
		h.endSession(sessionID, "all participants left")
	default:
		h.closeRunnerSubs(sessionID, runnerID)
	}
	return nil
}

// Get returns the session's current state.
func (h *Hub) Get(sessionID string) (Snapshot, error) {
	s, err := h.session(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		CreatedAt: s.createdAt,
		StartedAt: s.startedAt,
	}
	for id := range s.participants {
		snap.Participants = append(snap.Participants, id)
	}
	return snap, nil
}

// SubscriberCount reports how many live subscribers a session has.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// StartReaper ends idle sessions on an interval until the returned stop func
// is called.
func (h *Hub) StartReaper(interval time.Duration) func() {
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.reapIdle()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func (h *Hub) reapIdle() {
	now := h.now()

	h.mu.RLock()
	var idle []string
	for id, s := range h.sessions {
		s.mu.Lock()
		if now.Sub(s.lastActivity) > h.idleTimeout {
			idle = append(idle, id)
		}
		s.mu.Unlock()
	}
	h.mu.RUnlock()

	for _, id := range idle {
		log.Printf("[session] %s idle for over %v, ending", id, h.idleTimeout)
		h.endSession(id, "idle timeout")
	}
}

// endSession broadcasts session_ended, closes every subscriber and destroys
// the session. The ID is never reused.
func (h *Hub) endSession(sessionID, reason string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	s.mu.Lock()
	s.state = StateEnded
	s.mu.Unlock()

	h.publish(Event{
		Type:      EventSessionEnded,
		SessionID: sessionID,
		Reason:    reason,
		At:        h.now(),
	}, true)

	h.mu.Lock()
	for sub := range h.subs[sessionID] {
		h.removeSubLocked(sub)
	}
	h.mu.Unlock()

	log.Printf("[session] %s ended: %s", sessionID, reason)
}

func (h *Hub) closeRunnerSubs(sessionID, runnerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		if sub.RunnerID == runnerID {
			h.removeSubLocked(sub)
		}
	}
}

func (h *Hub) session(sessionID string) (*liveSession, error) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperr.ErrNotFound, sessionID)
	}
	return s, nil
}

func (s *liveSession) everyoneHasSubmitted() bool {
	for _, p := range s.participants {
		if p.last == nil {
			return false
		}
	}
	return true
}

// publish delivers to local subscribers and mirrors to redis. An event with
// To set goes only to that runner's subscribers; otherwise it fans out to
// the whole session. Priority events are placed ahead of a subscriber's
// queued backlog instead of behind it.
func (h *Hub) publish(ev Event, priority bool) {
	h.deliverLocal(ev, priority)

	if h.redis != nil {
		ev.NodeID = h.nodeID
		payload, _ := json.Marshal(ev)
		err := h.redis.Publish(context.Background(), redisChannel(ev.SessionID), payload).Err()
		if err != nil {
			log.Printf("[session] redis publish error: %v", err)
		}
	}
}

func (h *Hub) deliverLocal(ev Event, priority bool) {
	// sends stay under the read lock: subscriber channels are only closed
	// under the write lock, so a send can never hit a closed channel
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ev.SessionID] {
		if ev.To != "" && sub.RunnerID != ev.To {
			continue
		}
		if !priority {
			select {
			case sub.Send <- ev:
			default: // best effort: slow consumers miss deltas
			}
			continue
		}

		// priority events go ahead of anything already queued: drain the
		// buffer, enqueue the event, then re-queue the drained backlog
		var queued []Event
	drained:
		for {
			select {
			case qe := <-sub.Send:
				queued = append(queued, qe)
			default:
				break drained
			}
		}
		select {
		case sub.Send <- ev:
		default:
		}
		for _, qe := range queued {
			select {
			case sub.Send <- qe:
			default: // overflow keeps the alert, drops the tail
			}
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "session:*:events")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Printf("[session] bad redis payload: %v", err)
			continue
		}
		if ev.NodeID == h.nodeID {
			continue // already delivered locally
		}
		h.deliverLocal(ev, ev.Type != EventPositionDelta)
	}
}

func redisChannel(sessionID string) string {
	return "session:" + sessionID + ":events"
}
