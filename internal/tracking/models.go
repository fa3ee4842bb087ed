package tracking

import "time"

// PositionUpdate is the ingestion payload. The runner identity comes from
// the auth middleware, not the body.
type PositionUpdate struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}
