package match

import (
	"time"

	"github.com/Ayushh890/runner-app/internal/profile"
)

// DiscoveryFilter narrows nearby-runner queries. Zero-valued fields are
// wildcards.
type DiscoveryFilter struct {
	RadiusKm       float64 `json:"radius_km"`
	PaceMinPerKm   float64 `json:"pace_min_per_km,omitempty"`
	DistanceGoalKm float64 `json:"distance_goal_km,omitempty"`
	AgeGroup       string  `json:"age_group,omitempty"`
	Gender         string  `json:"gender,omitempty"`
}

// Match is one discovery result: a nearby online runner and its distance
// from the query origin.
type Match struct {
	Profile    profile.RunnerProfile `json:"profile"`
	DistanceKm float64               `json:"distance_km"`
}

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDeclined RequestStatus = "declined"
	StatusExpired  RequestStatus = "expired"
)

// TeamRequest is a one-to-one pairing proposal. Only the recipient may
// accept or decline; pending requests expire after a TTL.
type TeamRequest struct {
	ID           string        `json:"id"`
	FromRunnerID string        `json:"from_runner_id"`
	ToRunnerID   string        `json:"to_runner_id"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}
