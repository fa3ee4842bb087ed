package session

import "time"

type State string

const (
	StateForming State = "forming"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

type EventType string

const (
	EventPositionDelta EventType = "position_delta"
	EventEmergency     EventType = "emergency_alert"
	EventSessionEnded  EventType = "session_ended"
)

// Event is one item on a subscriber's push stream.
//
// For position_delta, From is the runner that just submitted and To is the
// participant the delta was computed for; the event goes only to To's
// subscribers. Emergency and session-ended events fan out to the whole
// session.
type Event struct {
	Type              EventType `json:"type"`
	SessionID         string    `json:"session_id"`
	From              string    `json:"from,omitempty"`
	To                string    `json:"to,omitempty"`
	DistanceKm        float64   `json:"distance_km,omitempty"`
	PaceDeltaMinPerKm float64   `json:"pace_delta_min_per_km,omitempty"`
	At                time.Time `json:"at,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	NodeID            string    `json:"node_id,omitempty"`
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	StartedAt    time.Time `json:"started_at,omitempty"`
}

// SubmitRequest is the body for an in-session position submission.
type SubmitRequest struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CreateRequest is the body for explicit session creation.
type CreateRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
}
