package itinerary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voyplan/voyplan-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// PGXQuerier is the slice of pgxpool.Pool this repository needs.
type PGXQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists the per-trip planning artifacts. Each stage writes its
// whole column back; the row's updated_at doubles as the route version.
type Repository interface {
	EnsureForTrip(ctx context.Context, tripID uuid.UUID) error
	GetByTripID(ctx context.Context, tripID uuid.UUID) (*types.Itinerary, error)
	SaveMacroPlan(ctx context.Context, tripID uuid.UUID, plan []types.DaySkeleton) error
	SavePOIPlan(ctx context.Context, tripID uuid.UUID, plan []types.POIPlanBlock) error
	SaveDays(ctx context.Context, tripID uuid.UUID, days []types.ItineraryDay) error
	SaveCritique(ctx context.Context, tripID uuid.UUID, issues []types.CritiqueIssue) error
	UpdateDay(ctx context.Context, tripID uuid.UUID, day *types.ItineraryDay) (time.Time, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool PGXQuerier
}

func NewRepository(pgpool PGXQuerier, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{logger: logger, pgpool: pgpool}
}

func (r *RepositoryImpl) EnsureForTrip(ctx context.Context, tripID uuid.UUID) error {
	_, err := r.pgpool.Exec(ctx, `
		INSERT INTO itineraries (trip_id) VALUES ($1)
		ON CONFLICT (trip_id) DO NOTHING`, tripID)
	if err != nil {
		return fmt.Errorf("failed to ensure itinerary row: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) GetByTripID(ctx context.Context, tripID uuid.UUID) (*types.Itinerary, error) {
	var it types.Itinerary
	var macro, pois, days, issues []byte

	err := r.pgpool.QueryRow(ctx, `
		SELECT trip_id, macro_plan, poi_plan, days, critique_issues,
			itinerary_created_at, created_at, updated_at
		FROM itineraries WHERE trip_id = $1`, tripID).
		Scan(&it.TripID, &macro, &pois, &days, &issues,
			&it.ItineraryCreatedAt, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get itinerary: %w", err)
	}

	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{macro, &it.MacroPlan},
		{pois, &it.POIPlan},
		{days, &it.Days},
		{issues, &it.CritiqueIssues},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal itinerary column: %w", err)
		}
	}
	return &it, nil
}

func (r *RepositoryImpl) SaveMacroPlan(ctx context.Context, tripID uuid.UUID, plan []types.DaySkeleton) error {
	return r.saveColumn(ctx, tripID, "macro_plan", plan)
}

func (r *RepositoryImpl) SavePOIPlan(ctx context.Context, tripID uuid.UUID, plan []types.POIPlanBlock) error {
	return r.saveColumn(ctx, tripID, "poi_plan", plan)
}

// SaveDays also stamps itinerary_created_at the first time days are written.
func (r *RepositoryImpl) SaveDays(ctx context.Context, tripID uuid.UUID, days []types.ItineraryDay) error {
	payload, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("failed to marshal days: %w", err)
	}
	tag, err := r.pgpool.Exec(ctx, `
		UPDATE itineraries SET
			days = $2,
			itinerary_created_at = COALESCE(itinerary_created_at, now()),
			updated_at = now()
		WHERE trip_id = $1`, tripID, payload)
	if err != nil {
		return fmt.Errorf("failed to save days: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *RepositoryImpl) SaveCritique(ctx context.Context, tripID uuid.UUID, issues []types.CritiqueIssue) error {
	return r.saveColumn(ctx, tripID, "critique_issues", issues)
}

// UpdateDay replaces a single day inside the days blob and returns the new
// updated_at so callers can hand the fresh route version back to the client.
func (r *RepositoryImpl) UpdateDay(ctx context.Context, tripID uuid.UUID, day *types.ItineraryDay) (time.Time, error) {
	it, err := r.GetByTripID(ctx, tripID)
	if err != nil {
		return time.Time{}, err
	}

	replaced := false
	for i := range it.Days {
		if it.Days[i].DayNumber == day.DayNumber {
			it.Days[i] = *day
			replaced = true
			break
		}
	}
	if !replaced {
		it.Days = append(it.Days, *day)
	}

	payload, err := json.Marshal(it.Days)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to marshal days: %w", err)
	}

	var updatedAt time.Time
	err = r.pgpool.QueryRow(ctx, `
		UPDATE itineraries SET days = $2, updated_at = now()
		WHERE trip_id = $1
		RETURNING updated_at`, tripID, payload).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, types.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to update day: %w", err)
	}
	return updatedAt, nil
}

func (r *RepositoryImpl) saveColumn(ctx context.Context, tripID uuid.UUID, column string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", column, err)
	}
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE itineraries SET `+column+` = $2, updated_at = now() WHERE trip_id = $1`,
		tripID, payload)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}
