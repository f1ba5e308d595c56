package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voyplan/voyplan-api/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service is the business contract for trip intent management.
type Service interface {
	CreateTrip(ctx context.Context, authCtx types.AuthContext, spec *types.TripSpec) (*types.TripSpec, error)
	GetOwnedTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID) (*types.TripSpec, error)
	UpdateSpec(ctx context.Context, spec *types.TripSpec) error
	CheckGuestQuota(ctx context.Context, deviceID string) error
	ConsumeGuestQuota(ctx context.Context, deviceID string) error

	SaveTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID, heroImage string, snapshot []types.ItineraryDay) (*types.SavedTrip, error)
	ListSavedTrips(ctx context.Context, authCtx types.AuthContext) ([]types.SavedTrip, error)
	DeleteSavedTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID) error
}

type ServiceImpl struct {
	logger        *slog.Logger
	repo          Repository
	guestMaxTrips int
}

func NewService(repo Repository, guestMaxTrips int, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{logger: logger, repo: repo, guestMaxTrips: guestMaxTrips}
}

// CreateTrip normalizes and stores a new trip spec. Ownership is taken from
// the auth context, never from the payload.
func (s *ServiceImpl) CreateTrip(ctx context.Context, authCtx types.AuthContext, spec *types.TripSpec) (*types.TripSpec, error) {
	ctx, span := otel.Tracer("TripService").Start(ctx, "CreateTrip", trace.WithAttributes(
		attribute.String("city", spec.City),
	))
	defer span.End()

	if spec.City == "" {
		return nil, fmt.Errorf("%w: city is required", types.ErrBadRequest)
	}
	if spec.EndDate.Before(spec.StartDate) {
		return nil, fmt.Errorf("%w: end_date before start_date", types.ErrBadRequest)
	}
	if spec.Travelers <= 0 {
		spec.Travelers = 1
	}
	if spec.Pace == "" {
		spec.Pace = types.PaceMedium
	}
	if spec.Budget == "" {
		spec.Budget = types.BudgetMedium
	}
	if spec.Routine == (types.DailyRoutine{}) {
		spec.Routine = types.DefaultDailyRoutine()
	}
	spec.Interests = NormalizeInterests(spec.Interests)

	spec.UserID = authCtx.UserID
	spec.DeviceID = authCtx.DeviceID
	spec.IsLegacyPublic = authCtx.UserID == nil && authCtx.DeviceID == nil

	id, err := s.repo.CreateTrip(ctx, spec)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create trip", slog.Any("error", err))
		span.RecordError(err)
		return nil, err
	}
	created, err := s.repo.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "trip created",
		slog.String("trip_id", id.String()), slog.String("city", created.City))
	return created, nil
}

// GetOwnedTrip loads a trip and enforces the ownership predicate.
func (s *ServiceImpl) GetOwnedTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID) (*types.TripSpec, error) {
	spec, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !types.Own(spec, authCtx) {
		return nil, types.ErrForbidden
	}
	return spec, nil
}

func (s *ServiceImpl) UpdateSpec(ctx context.Context, spec *types.TripSpec) error {
	spec.Interests = NormalizeInterests(spec.Interests)
	return s.repo.UpdateTrip(ctx, spec)
}

// CheckGuestQuota fails with ErrPaywallRequired once a device exhausted its
// free trip generations.
func (s *ServiceImpl) CheckGuestQuota(ctx context.Context, deviceID string) error {
	device, err := s.repo.GetGuestDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	}
	if device.GeneratedTripsCount >= s.guestMaxTrips {
		return types.ErrPaywallRequired
	}
	return nil
}

func (s *ServiceImpl) ConsumeGuestQuota(ctx context.Context, deviceID string) error {
	count, err := s.repo.IncrementGuestTrips(ctx, deviceID)
	if err != nil {
		return err
	}
	if count > s.guestMaxTrips {
		return types.ErrPaywallRequired
	}
	return nil
}

func (s *ServiceImpl) SaveTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID, heroImage string, snapshot []types.ItineraryDay) (*types.SavedTrip, error) {
	if authCtx.UserID == nil {
		return nil, types.ErrUnauthenticated
	}
	spec, err := s.GetOwnedTrip(ctx, authCtx, tripID)
	if err != nil {
		return nil, err
	}

	saved := &types.SavedTrip{
		UserID:        *authCtx.UserID,
		TripID:        tripID,
		CityName:      spec.City,
		StartDate:     spec.StartDate,
		EndDate:       spec.EndDate,
		HeroImage:     heroImage,
		RouteSnapshot: snapshot,
	}
	id, err := s.repo.SaveTrip(ctx, saved)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to save trip", slog.Any("error", err))
		return nil, err
	}
	saved.ID = id
	return saved, nil
}

func (s *ServiceImpl) ListSavedTrips(ctx context.Context, authCtx types.AuthContext) ([]types.SavedTrip, error) {
	if authCtx.UserID == nil {
		return nil, types.ErrUnauthenticated
	}
	return s.repo.ListSavedTrips(ctx, *authCtx.UserID)
}

func (s *ServiceImpl) DeleteSavedTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID) error {
	if authCtx.UserID == nil {
		return types.ErrUnauthenticated
	}
	return s.repo.DeleteSavedTrip(ctx, *authCtx.UserID, tripID)
}
