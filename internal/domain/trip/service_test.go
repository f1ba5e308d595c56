package trip

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voyplan-api/internal/types"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) CreateTrip(ctx context.Context, spec *types.TripSpec) (uuid.UUID, error) {
	args := m.Called(ctx, spec)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockRepository) GetTrip(ctx context.Context, id uuid.UUID) (*types.TripSpec, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TripSpec), args.Error(1)
}

func (m *mockRepository) UpdateTrip(ctx context.Context, spec *types.TripSpec) error {
	return m.Called(ctx, spec).Error(0)
}

func (m *mockRepository) ListTripsByUser(ctx context.Context, userID uuid.UUID) ([]types.TripSpec, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.TripSpec), args.Error(1)
}

func (m *mockRepository) ListTripsByDevice(ctx context.Context, deviceID string) ([]types.TripSpec, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.TripSpec), args.Error(1)
}

func (m *mockRepository) IncrementGuestTrips(ctx context.Context, deviceID string) (int, error) {
	args := m.Called(ctx, deviceID)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) GetGuestDevice(ctx context.Context, deviceID string) (*types.GuestDevice, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.GuestDevice), args.Error(1)
}

func (m *mockRepository) SaveTrip(ctx context.Context, saved *types.SavedTrip) (uuid.UUID, error) {
	args := m.Called(ctx, saved)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockRepository) ListSavedTrips(ctx context.Context, userID uuid.UUID) ([]types.SavedTrip, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.SavedTrip), args.Error(1)
}

func (m *mockRepository) DeleteSavedTrip(ctx context.Context, userID, tripID uuid.UUID) error {
	return m.Called(ctx, userID, tripID).Error(0)
}

func validSpec() *types.TripSpec {
	return &types.TripSpec{
		City:       "Lisbon",
		CityCenter: types.GeoPoint{Lat: 38.7223, Lon: -9.1393},
		StartDate:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		Interests:  []string{"Museu", "food"},
	}
}

func TestCreateTrip_NormalizesAndDefaults(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, 1, slog.Default())
	userID := uuid.New()
	tripID := uuid.New()

	repo.On("CreateTrip", mock.Anything, mock.MatchedBy(func(spec *types.TripSpec) bool {
		return spec.Pace == types.PaceMedium &&
			spec.Budget == types.BudgetMedium &&
			spec.Travelers == 1 &&
			len(spec.Interests) == 2 && spec.Interests[0] == "museum" &&
			spec.UserID != nil && *spec.UserID == userID
	})).Return(tripID, nil)
	stored := validSpec()
	stored.ID = tripID
	stored.UserID = &userID
	repo.On("GetTrip", mock.Anything, tripID).Return(stored, nil)

	got, err := svc.CreateTrip(context.Background(), types.AuthContext{UserID: &userID}, validSpec())
	require.NoError(t, err)
	assert.Equal(t, tripID, got.ID)
	repo.AssertExpectations(t)
}

func TestCreateTrip_RejectsInvertedDates(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, 1, slog.Default())

	spec := validSpec()
	spec.StartDate, spec.EndDate = spec.EndDate, spec.StartDate
	userID := uuid.New()
	_, err := svc.CreateTrip(context.Background(), types.AuthContext{UserID: &userID}, spec)
	assert.ErrorIs(t, err, types.ErrBadRequest)
}

func TestCreateTrip_RequiresCity(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, 1, slog.Default())

	spec := validSpec()
	spec.City = ""
	_, err := svc.CreateTrip(context.Background(), types.AuthContext{}, spec)
	assert.ErrorIs(t, err, types.ErrBadRequest)
}

func TestGetOwnedTrip_ForbiddenForStranger(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, 1, slog.Default())
	owner := uuid.New()
	stranger := uuid.New()
	tripID := uuid.New()

	stored := validSpec()
	stored.ID = tripID
	stored.UserID = &owner
	repo.On("GetTrip", mock.Anything, tripID).Return(stored, nil)

	_, err := svc.GetOwnedTrip(context.Background(), types.AuthContext{UserID: &stranger}, tripID)
	assert.ErrorIs(t, err, types.ErrForbidden)
}

func TestGetOwnedTrip_LegacyPublicOpenToAll(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, 1, slog.Default())
	tripID := uuid.New()

	stored := validSpec()
	stored.ID = tripID
	stored.IsLegacyPublic = true
	repo.On("GetTrip", mock.Anything, tripID).Return(stored, nil)

	got, err := svc.GetOwnedTrip(context.Background(), types.AuthContext{}, tripID)
	require.NoError(t, err)
	assert.Equal(t, tripID, got.ID)
}

func TestCheckGuestQuota(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, 1, slog.Default())

	repo.On("GetGuestDevice", mock.Anything, "fresh-device").Return(nil, types.ErrNotFound)
	assert.NoError(t, svc.CheckGuestQuota(context.Background(), "fresh-device"))

	repo.On("GetGuestDevice", mock.Anything, "spent-device").Return(&types.GuestDevice{
		DeviceID: "spent-device", GeneratedTripsCount: 1,
	}, nil)
	assert.ErrorIs(t, svc.CheckGuestQuota(context.Background(), "spent-device"), types.ErrPaywallRequired)

	// Repositories wrap the sentinel; an unknown device still gets the quota.
	repo.On("GetGuestDevice", mock.Anything, "wrapped-device").
		Return(nil, fmt.Errorf("%w: guest device wrapped-device", types.ErrNotFound))
	assert.NoError(t, svc.CheckGuestQuota(context.Background(), "wrapped-device"))
}

func TestConsumeGuestQuota_OverLimit(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, 1, slog.Default())

	repo.On("IncrementGuestTrips", mock.Anything, "dev-1").Return(2, nil)
	assert.ErrorIs(t, svc.ConsumeGuestQuota(context.Background(), "dev-1"), types.ErrPaywallRequired)
}

func TestSaveTrip_RequiresUser(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, 1, slog.Default())

	_, err := svc.SaveTrip(context.Background(), types.AuthContext{}, uuid.New(), "", nil)
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
}
