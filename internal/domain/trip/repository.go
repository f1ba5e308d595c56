package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyplan/voyplan-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository persists trip specs and guest device counters.
type Repository interface {
	CreateTrip(ctx context.Context, spec *types.TripSpec) (uuid.UUID, error)
	GetTrip(ctx context.Context, id uuid.UUID) (*types.TripSpec, error)
	UpdateTrip(ctx context.Context, spec *types.TripSpec) error
	ListTripsByUser(ctx context.Context, userID uuid.UUID) ([]types.TripSpec, error)
	ListTripsByDevice(ctx context.Context, deviceID string) ([]types.TripSpec, error)

	IncrementGuestTrips(ctx context.Context, deviceID string) (int, error)
	GetGuestDevice(ctx context.Context, deviceID string) (*types.GuestDevice, error)

	SaveTrip(ctx context.Context, saved *types.SavedTrip) (uuid.UUID, error)
	ListSavedTrips(ctx context.Context, userID uuid.UUID) ([]types.SavedTrip, error)
	DeleteSavedTrip(ctx context.Context, userID, tripID uuid.UUID) error
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewRepository(pgpool *pgxpool.Pool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{logger: logger, pgpool: pgpool}
}

const tripColumns = `id, city, city_lat, city_lon, start_date, end_date, travelers,
	pace, budget, interests, routine, hotel_name, hotel_lat, hotel_lon,
	additional_preferences, structured_preferences,
	user_id, device_id, is_legacy_public, created_at, updated_at`

func (r *RepositoryImpl) CreateTrip(ctx context.Context, spec *types.TripSpec) (uuid.UUID, error) {
	routine, err := json.Marshal(spec.Routine)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal routine: %w", err)
	}
	prefs, err := json.Marshal(spec.AdditionalPreferences)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal preferences: %w", err)
	}
	structured, err := json.Marshal(spec.StructuredPreferences)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal structured preferences: %w", err)
	}

	var hotelLat, hotelLon *float64
	if spec.HotelLocation != nil {
		hotelLat = &spec.HotelLocation.Lat
		hotelLon = &spec.HotelLocation.Lon
	}

	query := `
		INSERT INTO trips (
			city, city_lat, city_lon, start_date, end_date, travelers,
			pace, budget, interests, routine, hotel_name, hotel_lat, hotel_lon,
			additional_preferences, structured_preferences,
			user_id, device_id, is_legacy_public
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`

	var id uuid.UUID
	err = r.pgpool.QueryRow(ctx, query,
		spec.City, spec.CityCenter.Lat, spec.CityCenter.Lon,
		spec.StartDate, spec.EndDate, spec.Travelers,
		spec.Pace, spec.Budget, spec.Interests, routine,
		nullIfEmpty(spec.HotelName), hotelLat, hotelLon,
		prefs, structured,
		spec.UserID, spec.DeviceID, spec.IsLegacyPublic,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert trip: %w", err)
	}
	return id, nil
}

func (r *RepositoryImpl) GetTrip(ctx context.Context, id uuid.UUID) (*types.TripSpec, error) {
	row := r.pgpool.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	spec, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return spec, nil
}

func (r *RepositoryImpl) UpdateTrip(ctx context.Context, spec *types.TripSpec) error {
	routine, err := json.Marshal(spec.Routine)
	if err != nil {
		return fmt.Errorf("failed to marshal routine: %w", err)
	}
	prefs, err := json.Marshal(spec.AdditionalPreferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	structured, err := json.Marshal(spec.StructuredPreferences)
	if err != nil {
		return fmt.Errorf("failed to marshal structured preferences: %w", err)
	}

	tag, err := r.pgpool.Exec(ctx, `
		UPDATE trips SET
			pace = $2, budget = $3, interests = $4, routine = $5,
			additional_preferences = $6, structured_preferences = $7,
			updated_at = now()
		WHERE id = $1`,
		spec.ID, spec.Pace, spec.Budget, spec.Interests, routine, prefs, structured)
	if err != nil {
		return fmt.Errorf("failed to update trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *RepositoryImpl) ListTripsByUser(ctx context.Context, userID uuid.UUID) ([]types.TripSpec, error) {
	return r.listTrips(ctx, `SELECT `+tripColumns+` FROM trips WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *RepositoryImpl) ListTripsByDevice(ctx context.Context, deviceID string) ([]types.TripSpec, error) {
	return r.listTrips(ctx, `SELECT `+tripColumns+` FROM trips WHERE device_id = $1 ORDER BY created_at DESC`, deviceID)
}

func (r *RepositoryImpl) listTrips(ctx context.Context, query string, arg any) ([]types.TripSpec, error) {
	rows, err := r.pgpool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []types.TripSpec
	for rows.Next() {
		spec, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, *spec)
	}
	return trips, rows.Err()
}

func (r *RepositoryImpl) IncrementGuestTrips(ctx context.Context, deviceID string) (int, error) {
	var count int
	err := r.pgpool.QueryRow(ctx, `
		INSERT INTO guest_devices (device_id, generated_trips_count)
		VALUES ($1, 1)
		ON CONFLICT (device_id)
		DO UPDATE SET generated_trips_count = guest_devices.generated_trips_count + 1
		RETURNING generated_trips_count`, deviceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment guest trips: %w", err)
	}
	return count, nil
}

func (r *RepositoryImpl) GetGuestDevice(ctx context.Context, deviceID string) (*types.GuestDevice, error) {
	var device types.GuestDevice
	err := r.pgpool.QueryRow(ctx, `
		SELECT device_id, generated_trips_count, created_at
		FROM guest_devices WHERE device_id = $1`, deviceID).
		Scan(&device.DeviceID, &device.GeneratedTripsCount, &device.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get guest device: %w", err)
	}
	return &device, nil
}

func (r *RepositoryImpl) SaveTrip(ctx context.Context, saved *types.SavedTrip) (uuid.UUID, error) {
	snapshot, err := json.Marshal(saved.RouteSnapshot)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal route snapshot: %w", err)
	}

	var id uuid.UUID
	err = r.pgpool.QueryRow(ctx, `
		INSERT INTO saved_trips (user_id, trip_id, city_name, start_date, end_date, hero_image, route_snapshot)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id, trip_id) DO UPDATE SET route_snapshot = EXCLUDED.route_snapshot
		RETURNING id`,
		saved.UserID, saved.TripID, saved.CityName, saved.StartDate, saved.EndDate,
		nullIfEmpty(saved.HeroImage), snapshot).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save trip: %w", err)
	}
	return id, nil
}

func (r *RepositoryImpl) ListSavedTrips(ctx context.Context, userID uuid.UUID) ([]types.SavedTrip, error) {
	rows, err := r.pgpool.Query(ctx, `
		SELECT id, user_id, trip_id, city_name, start_date, end_date,
			COALESCE(hero_image, ''), route_snapshot, created_at
		FROM saved_trips WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved trips: %w", err)
	}
	defer rows.Close()

	var saved []types.SavedTrip
	for rows.Next() {
		var s types.SavedTrip
		var snapshot []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.TripID, &s.CityName,
			&s.StartDate, &s.EndDate, &s.HeroImage, &snapshot, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saved trip: %w", err)
		}
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &s.RouteSnapshot); err != nil {
				r.logger.WarnContext(ctx, "corrupt route snapshot", slog.Any("error", err))
			}
		}
		saved = append(saved, s)
	}
	return saved, rows.Err()
}

func (r *RepositoryImpl) DeleteSavedTrip(ctx context.Context, userID, tripID uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx,
		`DELETE FROM saved_trips WHERE user_id = $1 AND trip_id = $2`, userID, tripID)
	if err != nil {
		return fmt.Errorf("failed to delete saved trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func scanTrip(row pgx.Row) (*types.TripSpec, error) {
	var spec types.TripSpec
	var routine, prefs, structured []byte
	var hotelName *string
	var hotelLat, hotelLon *float64

	err := row.Scan(&spec.ID, &spec.City, &spec.CityCenter.Lat, &spec.CityCenter.Lon,
		&spec.StartDate, &spec.EndDate, &spec.Travelers,
		&spec.Pace, &spec.Budget, &spec.Interests, &routine,
		&hotelName, &hotelLat, &hotelLon,
		&prefs, &structured,
		&spec.UserID, &spec.DeviceID, &spec.IsLegacyPublic,
		&spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if hotelName != nil {
		spec.HotelName = *hotelName
	}
	if hotelLat != nil && hotelLon != nil {
		spec.HotelLocation = &types.GeoPoint{Lat: *hotelLat, Lon: *hotelLon}
	}
	if err := json.Unmarshal(routine, &spec.Routine); err != nil {
		return nil, fmt.Errorf("failed to unmarshal routine: %w", err)
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &spec.AdditionalPreferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
		}
	}
	if len(structured) > 0 {
		if err := json.Unmarshal(structured, &spec.StructuredPreferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal structured preferences: %w", err)
		}
	}
	return &spec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
