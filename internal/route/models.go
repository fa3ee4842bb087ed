package route

import (
	"time"

	"github.com/Ayushh890/runner-app/internal/shared/geo"
)

// Route is an immutable named polyline. Coordinates are stored in submission
// order and served back unchanged.
type Route struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	CreatorID string      `json:"creator_id"`
	Coords    []geo.Coord `json:"coords"`
	CreatedAt time.Time   `json:"created_at"`
}

// SaveRequest is the body for route creation. The creator comes from the
// auth middleware.
type SaveRequest struct {
	Name   string      `json:"name"`
	Coords []geo.Coord `json:"coords"`
}
