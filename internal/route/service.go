package route

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ayushh890/runner-app/internal/db"
	"github.com/Ayushh890/runner-app/internal/shared/apperr"
	"github.com/Ayushh890/runner-app/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Service persists routes. Routes are append-only: no update or delete is
// exposed, so writes need no coordination beyond ID allocation.
type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Save stores a named polyline and returns it with its generated ID.
func (s *Service) Save(ctx context.Context, name, creatorID string, coords []geo.Coord) (Route, error) {
	if len(coords) == 0 {
		return Route{}, apperr.ErrInvalidRoute
	}
	if name == "" || creatorID == "" {
		return Route{}, fmt.Errorf("%w: name and creator required", apperr.ErrInvalidArgument)
	}
	for _, c := range coords {
		if !geo.Valid(c.Lat, c.Lng) {
			return Route{}, fmt.Errorf("%w: coordinate (%v, %v) out of range", apperr.ErrInvalidArgument, c.Lat, c.Lng)
		}
	}

	r := Route{
		ID:        uuid.NewString(),
		Name:      name,
		CreatorID: creatorID,
		Coords:    coords,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO routes (id, name, creator_id)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, r.ID, r.Name, r.CreatorID)
	if err := row.Scan(&r.CreatedAt); err != nil {
		return Route{}, err
	}

	for seq, c := range coords {
		_, err := s.db.Exec(ctx, `
			INSERT INTO route_points (route_id, seq, lat, lng)
			VALUES ($1,$2,$3,$4)
		`, r.ID, seq, c.Lat, c.Lng)
		if err != nil {
			return Route{}, err
		}
	}
	return r, nil
}

// Get returns a route with its coordinates in original order.
func (s *Service) Get(ctx context.Context, routeID string) (Route, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, creator_id, created_at
		FROM routes WHERE id=$1
	`, routeID)

	var r Route
	if err := row.Scan(&r.ID, &r.Name, &r.CreatorID, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Route{}, fmt.Errorf("%w: route %s", apperr.ErrNotFound, routeID)
		}
		return Route{}, err
	}

	coords, err := s.loadCoords(ctx, []string{r.ID})
	if err != nil {
		return Route{}, err
	}
	r.Coords = coords[r.ID]
	return r, nil
}

// List returns all routes, most recent first.
func (s *Service) List(ctx context.Context) ([]Route, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, creator_id, created_at
		FROM routes
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []Route
	var ids []string
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatorID, &r.CreatedAt); err != nil {
			return nil, err
		}
		ids = append(ids, r.ID)
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	coords, err := s.loadCoords(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		routes[i].Coords = coords[routes[i].ID]
	}
	return routes, nil
}

func (s *Service) loadCoords(ctx context.Context, routeIDs []string) (map[string][]geo.Coord, error) {
	if len(routeIDs) == 0 {
		return map[string][]geo.Coord{}, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT route_id, lat, lng
		FROM route_points WHERE route_id = ANY($1)
		ORDER BY route_id, seq
	`, routeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coords := map[string][]geo.Coord{}
	for rows.Next() {
		var id string
		var c geo.Coord
		if err := rows.Scan(&id, &c.Lat, &c.Lng); err != nil {
			return nil, err
		}
		coords[id] = append(coords[id], c)
	}
	return coords, rows.Err()
}
