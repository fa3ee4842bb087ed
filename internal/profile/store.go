package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ayushh890/runner-app/internal/db"
	"github.com/Ayushh890/runner-app/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
)

// RunnerProfile is supplied by the external identity service and read-only
// to this core.
type RunnerProfile struct {
	RunnerID       string  `json:"runner_id"`
	Name           string  `json:"name"`
	PaceMinPerKm   float64 `json:"pace_min_per_km"`
	DistanceGoalKm float64 `json:"distance_goal_km"`
	AgeGroup       string  `json:"age_group"`
	Gender         string  `json:"gender"`
}

// Source yields runner profiles for the match engine.
type Source interface {
	Get(ctx context.Context, runnerID string) (RunnerProfile, error)
	GetMany(ctx context.Context, runnerIDs []string) (map[string]RunnerProfile, error)
}

// Store reads profiles from the runner_profiles table.
type Store struct {
	db db.Querier
}

func NewStore(db db.Querier) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, runnerID string) (RunnerProfile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT runner_id, name, COALESCE(pace_min_per_km,0), COALESCE(distance_goal_km,0), COALESCE(age_group,''), COALESCE(gender,'')
		FROM runner_profiles WHERE runner_id=$1
	`, runnerID)

	var p RunnerProfile
	if err := row.Scan(&p.RunnerID, &p.Name, &p.PaceMinPerKm, &p.DistanceGoalKm, &p.AgeGroup, &p.Gender); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunnerProfile{}, fmt.Errorf("%w: runner %s", apperr.ErrNotFound, runnerID)
		}
		return RunnerProfile{}, err
	}
	return p, nil
}

func (s *Store) GetMany(ctx context.Context, runnerIDs []string) (map[string]RunnerProfile, error) {
	if len(runnerIDs) == 0 {
		return map[string]RunnerProfile{}, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT runner_id, name, COALESCE(pace_min_per_km,0), COALESCE(distance_goal_km,0), COALESCE(age_group,''), COALESCE(gender,'')
		FROM runner_profiles WHERE runner_id = ANY($1)
	`, runnerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := map[string]RunnerProfile{}
	for rows.Next() {
		var p RunnerProfile
		if err := rows.Scan(&p.RunnerID, &p.Name, &p.PaceMinPerKm, &p.DistanceGoalKm, &p.AgeGroup, &p.Gender); err != nil {
			return nil, err
		}
		profiles[p.RunnerID] = p
	}
	return profiles, rows.Err()
}
