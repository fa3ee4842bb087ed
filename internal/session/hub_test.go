package session

import (
	"errors"
	"testing"
	"time"

	"github.com/Ayushh890/runner-app/internal/shared/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestHub() (*Hub, *time.Time) {
	h := NewHub(nil, 10*time.Minute)
	now := t0
	h.now = func() time.Time { return now }
	return h, &now
}

func recvEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub.Send:
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for event")
		return Event{}
	}
}

func TestCreateSessionValidation(t *testing.T) {
	h, _ := newTestHub()

	if _, err := h.CreateSession([]string{"a"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for one participant, got %v", err)
	}
	if _, err := h.CreateSession([]string{"a", "a"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for duplicate participants, got %v", err)
	}
	if _, err := h.CreateSession([]string{"a", ""}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty id, got %v", err)
	}

	id, err := h.CreateSession([]string{"a", "b"})
	if err != nil || id == "" {
		t.Fatalf("create: %v", err)
	}
	id2, _ := h.CreateSession([]string{"a", "b"})
	if id2 == id {
		t.Fatalf("session ids must be unique")
	}
}

func TestFormingToActiveAfterAllSubmit(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})

	snap, _ := h.Get(id)
	if snap.State != StateForming {
		t.Fatalf("expected forming, got %s", snap.State)
	}

	if err := h.SubmitPosition(id, "a", 37.7749, -122.4194, t0); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	snap, _ = h.Get(id)
	if snap.State != StateForming {
		t.Fatalf("one submission must not activate, got %s", snap.State)
	}

	if err := h.SubmitPosition(id, "b", 37.7750, -122.4195, t0.Add(time.Second)); err != nil {
		t.Fatalf("submit b: %v", err)
	}
	snap, _ = h.Get(id)
	if snap.State != StateActive {
		t.Fatalf("expected active after everyone submitted, got %s", snap.State)
	}
	if snap.StartedAt.IsZero() {
		t.Fatalf("expected started_at set on activation")
	}
}

func TestSubmitPositionDeliversDeltaBothWays(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})

	subA, err := h.Subscribe(id, "a")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	subB, err := h.Subscribe(id, "b")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	_ = h.SubmitPosition(id, "a", 37.7749, -122.4194, t0)
	// ~500m north of a
	_ = h.SubmitPosition(id, "b", 37.7794, -122.4194, t0.Add(time.Second))

	evB := recvEvent(t, subB)
	if evB.Type != EventPositionDelta || evB.To != "b" || evB.From != "a" {
		t.Fatalf("unexpected event for b: %+v", evB)
	}
	if evB.DistanceKm < 0.4 || evB.DistanceKm > 0.6 {
		t.Fatalf("expected ~0.5km separation, got %v", evB.DistanceKm)
	}

	evA := recvEvent(t, subA)
	if evA.To != "a" || evA.From != "b" {
		t.Fatalf("unexpected event for a: %+v", evA)
	}
	if evA.DistanceKm != evB.DistanceKm {
		t.Fatalf("pairwise distance must match both ways")
	}
}

func TestSubmitPositionStaleDropped(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})
	subB, _ := h.Subscribe(id, "b")

	_ = h.SubmitPosition(id, "b", 37.0, -122.0, t0)
	_ = h.SubmitPosition(id, "a", 37.1, -122.0, t0.Add(time.Minute))
	recvEvent(t, subB) // delta from a's submission

	if err := h.SubmitPosition(id, "a", 37.2, -122.0, t0); err != nil {
		t.Fatalf("stale submit must not error: %v", err)
	}
	select {
	case ev := <-subB.Send:
		t.Fatalf("stale submit produced event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmitPositionErrors(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})

	if err := h.SubmitPosition("missing", "a", 10, 10, t0); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.SubmitPosition(id, "intruder", 10, 10, t0); !errors.Is(err, apperr.ErrNotParticipant) {
		t.Fatalf("expected not participant, got %v", err)
	}
	if err := h.SubmitPosition(id, "a", 95, 10, t0); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestPaceDelta(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})
	subB, _ := h.Subscribe(id, "b")

	// b covers ~1.11km in 5 minutes: ~4.5 min/km
	_ = h.SubmitPosition(id, "b", 37.0, -122.0, t0)
	_ = h.SubmitPosition(id, "b", 37.01, -122.0, t0.Add(5*time.Minute))
	// a covers the same distance in 10 minutes: ~9 min/km
	_ = h.SubmitPosition(id, "a", 37.0, -122.0, t0)
	drainEvents(subB)
	_ = h.SubmitPosition(id, "a", 37.01, -122.0, t0.Add(10*time.Minute))

	ev := recvEvent(t, subB)
	if ev.From != "a" || ev.To != "b" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	// a is slower, so pace(from)-pace(to) is positive, ~4.5 min/km
	if ev.PaceDeltaMinPerKm < 3 || ev.PaceDeltaMinPerKm > 6 {
		t.Fatalf("unexpected pace delta: %v", ev.PaceDeltaMinPerKm)
	}
}

func drainEvents(sub *Subscriber) {
	for {
		select {
		case <-sub.Send:
		default:
			return
		}
	}
}

func TestTriggerEmergency(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b", "c"})
	subB, _ := h.Subscribe(id, "b")
	subC, _ := h.Subscribe(id, "c")
	subA, _ := h.Subscribe(id, "a")

	if err := h.TriggerEmergency(id, "a"); err != nil {
		t.Fatalf("emergency: %v", err)
	}

	for _, sub := range []*Subscriber{subB, subC} {
		ev := recvEvent(t, sub)
		if ev.Type != EventEmergency || ev.From != "a" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
	select {
	case ev := <-subA.Send:
		t.Fatalf("emergency echoed to sender: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if err := h.TriggerEmergency(id, "intruder"); !errors.Is(err, apperr.ErrNotParticipant) {
		t.Fatalf("expected not participant, got %v", err)
	}
}

func TestEmergencyJumpsFullQueue(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})
	subB, _ := h.Subscribe(id, "b")

	_ = h.SubmitPosition(id, "b", 37.0, -122.0, t0)
	for i := 0; i < subscriberBuffer+8; i++ {
		_ = h.SubmitPosition(id, "a", 37.01, -122.0, t0.Add(time.Duration(i+1)*time.Second))
	}
	if err := h.TriggerEmergency(id, "a"); err != nil {
		t.Fatalf("emergency: %v", err)
	}

	// even on a full buffer the alert is the next event out
	ev := recvEvent(t, subB)
	if ev.Type != EventEmergency {
		t.Fatalf("expected the alert ahead of the backlog, got %+v", ev)
	}
}

func TestEmergencyDeliveredBeforeQueuedDeltas(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})
	subB, _ := h.Subscribe(id, "b")

	_ = h.SubmitPosition(id, "b", 37.0, -122.0, t0)
	for i := 0; i < 8; i++ {
		_ = h.SubmitPosition(id, "a", 37.01, -122.0, t0.Add(time.Duration(i+1)*time.Second))
	}

	if err := h.TriggerEmergency(id, "a"); err != nil {
		t.Fatalf("emergency: %v", err)
	}

	ev := recvEvent(t, subB)
	if ev.Type != EventEmergency {
		t.Fatalf("expected the alert first, got %+v", ev)
	}
	// the queued deltas survive behind the alert
	for i := 0; i < 8; i++ {
		if next := recvEvent(t, subB); next.Type != EventPositionDelta {
			t.Fatalf("expected delta %d behind the alert, got %+v", i, next)
		}
	}
}

func TestLeaveEndsSession(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})
	_ = h.SubmitPosition(id, "a", 37.0, -122.0, t0)
	_ = h.SubmitPosition(id, "b", 37.0, -122.0, t0)
	subB, _ := h.Subscribe(id, "b")

	if err := h.Leave(id, "a"); err != nil {
		t.Fatalf("leave a: %v", err)
	}
	snap, err := h.Get(id)
	if err != nil {
		t.Fatalf("session must survive first leave: %v", err)
	}
	if len(snap.Participants) != 1 {
		t.Fatalf("expected one participant left, got %v", snap.Participants)
	}

	if err := h.Leave(id, "b"); err != nil {
		t.Fatalf("leave b: %v", err)
	}
	ev := recvEvent(t, subB)
	if ev.Type != EventSessionEnded {
		t.Fatalf("expected session_ended, got %+v", ev)
	}
	if _, ok := <-subB.Send; ok {
		t.Fatalf("expected subscriber closed after session end")
	}
	if _, err := h.Get(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("ended session must be destroyed, got %v", err)
	}
}

func TestLeaveWhileFormingAborts(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b", "c"})
	subC, _ := h.Subscribe(id, "c")

	if err := h.Leave(id, "a"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	ev := recvEvent(t, subC)
	if ev.Type != EventSessionEnded || ev.Reason != "aborted" {
		t.Fatalf("expected aborted session_ended, got %+v", ev)
	}
	if _, err := h.Get(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("aborted session must be destroyed")
	}
}

func TestIdleTimeoutEndsSession(t *testing.T) {
	h, now := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})
	_ = h.SubmitPosition(id, "a", 37.0, -122.0, *now)
	_ = h.SubmitPosition(id, "b", 37.0, -122.0, *now)
	subA, _ := h.Subscribe(id, "a")
	drainEvents(subA)

	*now = now.Add(9 * time.Minute)
	h.reapIdle()
	if _, err := h.Get(id); err != nil {
		t.Fatalf("session reaped before idle timeout: %v", err)
	}

	*now = now.Add(2 * time.Minute)
	h.reapIdle()
	ev := recvEvent(t, subA)
	if ev.Type != EventSessionEnded || ev.Reason != "idle timeout" {
		t.Fatalf("expected idle session_ended, got %+v", ev)
	}
	if _, err := h.Get(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("idle session must be destroyed")
	}
}

func TestStartReaperStops(t *testing.T) {
	h, _ := newTestHub()
	stop := h.StartReaper(time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	stop()
}

func TestSubscribeErrors(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})

	if _, err := h.Subscribe("missing", "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.Subscribe(id, "intruder"); !errors.Is(err, apperr.ErrNotParticipant) {
		t.Fatalf("expected not participant, got %v", err)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h, _ := newTestHub()
	id, _ := h.CreateSession([]string{"a", "b"})
	sub, _ := h.Subscribe(id, "a")

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	if _, ok := <-sub.Send; ok {
		t.Fatalf("expected closed channel")
	}
}

func TestRedisMirror(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	h := NewHub(client, time.Minute)
	id, _ := h.CreateSession([]string{"a", "b"})
	subB, _ := h.Subscribe(id, "b")

	_ = h.SubmitPosition(id, "b", 37.0, -122.0, time.Now())
	_ = h.SubmitPosition(id, "a", 37.01, -122.0, time.Now())

	ev := recvEvent(t, subB)
	if ev.Type != EventPositionDelta {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestRedisForwardsRemoteEvents(t *testing.T) {
	s := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: s.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer clientA.Close()
	defer clientB.Close()

	// two hubs sharing one redis, sessions created on both with the same id
	// is not possible; instead verify hubB forwards a remote payload to a
	// local subscriber of a session it owns
	hubB := NewHub(clientB, time.Minute)
	id, _ := hubB.CreateSession([]string{"a", "b"})
	subB, _ := hubB.Subscribe(id, "b")

	time.Sleep(20 * time.Millisecond) // let the psubscribe settle

	hubA := NewHub(clientA, time.Minute)
	hubA.publish(Event{Type: EventEmergency, SessionID: id, From: "a", To: "b"}, true)

	ev := recvEvent(t, subB)
	if ev.Type != EventEmergency || ev.From != "a" {
		t.Fatalf("remote event not forwarded: %+v", ev)
	}
}
