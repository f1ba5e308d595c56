package planner

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voyplan-api/internal/domain/preferences"
	"github.com/voyplan/voyplan-api/internal/domain/routing"
	"github.com/voyplan/voyplan-api/internal/domain/travel"
	"github.com/voyplan/voyplan-api/internal/types"
)

type mockItineraryRepo struct {
	mock.Mock
}

func (m *mockItineraryRepo) EnsureForTrip(ctx context.Context, tripID uuid.UUID) error {
	return m.Called(ctx, tripID).Error(0)
}

func (m *mockItineraryRepo) GetByTripID(ctx context.Context, tripID uuid.UUID) (*types.Itinerary, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Itinerary), args.Error(1)
}

func (m *mockItineraryRepo) SaveMacroPlan(ctx context.Context, tripID uuid.UUID, plan []types.DaySkeleton) error {
	return m.Called(ctx, tripID, plan).Error(0)
}

func (m *mockItineraryRepo) SavePOIPlan(ctx context.Context, tripID uuid.UUID, plan []types.POIPlanBlock) error {
	return m.Called(ctx, tripID, plan).Error(0)
}

func (m *mockItineraryRepo) SaveDays(ctx context.Context, tripID uuid.UUID, days []types.ItineraryDay) error {
	return m.Called(ctx, tripID, days).Error(0)
}

func (m *mockItineraryRepo) SaveCritique(ctx context.Context, tripID uuid.UUID, issues []types.CritiqueIssue) error {
	return m.Called(ctx, tripID, issues).Error(0)
}

func (m *mockItineraryRepo) UpdateDay(ctx context.Context, tripID uuid.UUID, day *types.ItineraryDay) (time.Time, error) {
	args := m.Called(ctx, tripID, day)
	return args.Get(0).(time.Time), args.Error(1)
}

// stubTravel always answers with the straight-line fallback.
type stubTravel struct{}

func (stubTravel) EstimateTravel(_ context.Context, origin, destination types.GeoPoint, mode types.TravelMode) (*types.TravelEstimate, error) {
	return travel.FallbackEstimate(origin, destination, mode), nil
}

func classicOrchestrator(repo *mockItineraryRepo) *Orchestrator {
	logger := slog.Default()
	cfg := plannerTestConfig()
	cfg.SmartRoutingEnabled = false

	return NewOrchestrator(
		repo,
		preferences.NewAgent(nil, logger),
		NewMacroPlanner(nil, 0, logger),
		NewPOIPlanner(lisbonCatalog(), nil, cfg, logger),
		nil,
		routing.NewClassicOptimizer(stubTravel{}, cfg, logger),
		cfg,
		logger,
	)
}

func TestPlanTrip_PersistsEveryStage(t *testing.T) {
	spec := lisbonSpec(2)
	repo := new(mockItineraryRepo)
	repo.On("EnsureForTrip", mock.Anything, spec.ID).Return(nil).Once()
	repo.On("SaveMacroPlan", mock.Anything, spec.ID, mock.Anything).Return(nil).Once()
	repo.On("SavePOIPlan", mock.Anything, spec.ID, mock.Anything).Return(nil).Once()
	repo.On("SaveDays", mock.Anything, spec.ID, mock.MatchedBy(func(days []types.ItineraryDay) bool {
		return len(days) == 2
	})).Return(nil).Once()
	repo.On("SaveCritique", mock.Anything, spec.ID, mock.Anything).Return(nil).Once()
	repo.On("GetByTripID", mock.Anything, spec.ID).Return(&types.Itinerary{TripID: spec.ID}, nil).Once()

	result, err := classicOrchestrator(repo).PlanTrip(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, spec.ID, result.TripID)
	repo.AssertExpectations(t)
}

func TestPlanTrip_StopsWhenMacroSaveFails(t *testing.T) {
	spec := lisbonSpec(1)
	repo := new(mockItineraryRepo)
	repo.On("EnsureForTrip", mock.Anything, spec.ID).Return(nil).Once()
	repo.On("SaveMacroPlan", mock.Anything, spec.ID, mock.Anything).
		Return(errors.New("connection reset")).Once()

	_, err := classicOrchestrator(repo).PlanTrip(context.Background(), spec)
	require.Error(t, err)
	repo.AssertNotCalled(t, "SaveDays", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SaveCritique", mock.Anything, mock.Anything, mock.Anything)
}

func TestPlanTrip_ClassicPathSelectsPlannedPlaces(t *testing.T) {
	spec := lisbonSpec(1)
	repo := new(mockItineraryRepo)
	repo.On("EnsureForTrip", mock.Anything, spec.ID).Return(nil)
	repo.On("SaveMacroPlan", mock.Anything, spec.ID, mock.Anything).Return(nil)

	var savedPlan []types.POIPlanBlock
	repo.On("SavePOIPlan", mock.Anything, spec.ID, mock.Anything).
		Run(func(args mock.Arguments) {
			savedPlan = args.Get(2).([]types.POIPlanBlock)
		}).Return(nil)

	var savedDays []types.ItineraryDay
	repo.On("SaveDays", mock.Anything, spec.ID, mock.Anything).
		Run(func(args mock.Arguments) {
			savedDays = args.Get(2).([]types.ItineraryDay)
		}).Return(nil)
	repo.On("SaveCritique", mock.Anything, spec.ID, mock.Anything).Return(nil)
	repo.On("GetByTripID", mock.Anything, spec.ID).Return(&types.Itinerary{TripID: spec.ID}, nil)

	_, err := classicOrchestrator(repo).PlanTrip(context.Background(), spec)
	require.NoError(t, err)
	require.NotEmpty(t, savedPlan)
	require.NotEmpty(t, savedDays)

	// Every selection in the persisted plan appears in the final days.
	planned := make(map[string]bool)
	for _, block := range savedPlan {
		if chosen := block.Selected(); chosen != nil {
			planned[chosen.ID] = true
		}
	}
	placed := 0
	for _, day := range savedDays {
		for _, block := range day.Blocks {
			if block.POI != nil {
				assert.True(t, planned[block.POI.ID], "%s was never planned", block.POI.ID)
				placed++
			}
		}
	}
	assert.Equal(t, len(planned), placed)
}
