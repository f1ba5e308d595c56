package editor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voyplan-api/internal/domain/catalog"
	"github.com/voyplan/voyplan-api/internal/domain/planner"
	"github.com/voyplan/voyplan-api/internal/domain/preferences"
	"github.com/voyplan/voyplan-api/internal/domain/replacement"
	"github.com/voyplan/voyplan-api/internal/types"
)

type mockTrips struct {
	mock.Mock
}

func (m *mockTrips) CreateTrip(ctx context.Context, authCtx types.AuthContext, spec *types.TripSpec) (*types.TripSpec, error) {
	args := m.Called(ctx, authCtx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TripSpec), args.Error(1)
}

func (m *mockTrips) GetOwnedTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID) (*types.TripSpec, error) {
	args := m.Called(ctx, authCtx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TripSpec), args.Error(1)
}

func (m *mockTrips) UpdateSpec(ctx context.Context, spec *types.TripSpec) error {
	return m.Called(ctx, spec).Error(0)
}

func (m *mockTrips) CheckGuestQuota(ctx context.Context, deviceID string) error {
	return m.Called(ctx, deviceID).Error(0)
}

func (m *mockTrips) ConsumeGuestQuota(ctx context.Context, deviceID string) error {
	return m.Called(ctx, deviceID).Error(0)
}

func (m *mockTrips) SaveTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID, heroImage string, snapshot []types.ItineraryDay) (*types.SavedTrip, error) {
	args := m.Called(ctx, authCtx, tripID, heroImage, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SavedTrip), args.Error(1)
}

func (m *mockTrips) ListSavedTrips(ctx context.Context, authCtx types.AuthContext) ([]types.SavedTrip, error) {
	args := m.Called(ctx, authCtx)
	return args.Get(0).([]types.SavedTrip), args.Error(1)
}

func (m *mockTrips) DeleteSavedTrip(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID) error {
	return m.Called(ctx, authCtx, tripID).Error(0)
}

type mockItineraries struct {
	mock.Mock
}

func (m *mockItineraries) EnsureForTrip(ctx context.Context, tripID uuid.UUID) error {
	return m.Called(ctx, tripID).Error(0)
}

func (m *mockItineraries) GetByTripID(ctx context.Context, tripID uuid.UUID) (*types.Itinerary, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Itinerary), args.Error(1)
}

func (m *mockItineraries) SaveMacroPlan(ctx context.Context, tripID uuid.UUID, plan []types.DaySkeleton) error {
	return m.Called(ctx, tripID, plan).Error(0)
}

func (m *mockItineraries) SavePOIPlan(ctx context.Context, tripID uuid.UUID, plan []types.POIPlanBlock) error {
	return m.Called(ctx, tripID, plan).Error(0)
}

func (m *mockItineraries) SaveDays(ctx context.Context, tripID uuid.UUID, days []types.ItineraryDay) error {
	return m.Called(ctx, tripID, days).Error(0)
}

func (m *mockItineraries) SaveCritique(ctx context.Context, tripID uuid.UUID, issues []types.CritiqueIssue) error {
	return m.Called(ctx, tripID, issues).Error(0)
}

func (m *mockItineraries) UpdateDay(ctx context.Context, tripID uuid.UUID, day *types.ItineraryDay) (time.Time, error) {
	args := m.Called(ctx, tripID, day)
	return args.Get(0).(time.Time), args.Error(1)
}

type stubCatalog struct {
	byID       map[string]*types.POICandidate
	byCategory map[string][]types.POICandidate
}

func (s *stubCatalog) SearchPOIs(_ context.Context, req catalog.SearchRequest) ([]types.POICandidate, error) {
	return append([]types.POICandidate(nil), s.byCategory[req.Category]...), nil
}

func (s *stubCatalog) SearchPOIsBulk(ctx context.Context, reqs []catalog.SearchRequest) ([][]types.POICandidate, error) {
	out := make([][]types.POICandidate, len(reqs))
	for i := range reqs {
		out[i], _ = s.SearchPOIs(ctx, reqs[i])
	}
	return out, nil
}

func (s *stubCatalog) FetchPlaceDetails(context.Context, string) (*types.PlaceDetails, error) {
	return nil, types.ErrNotFound
}

func (s *stubCatalog) GetPOI(_ context.Context, id string) (*types.POICandidate, error) {
	if c, ok := s.byID[id]; ok {
		out := *c
		return &out, nil
	}
	return nil, types.ErrNotFound
}

type stubReplacer struct {
	pick *types.POICandidate
	err  error
}

func (s *stubReplacer) GetOptions(context.Context, types.AuthContext, replacement.OptionsRequest) (*replacement.OptionsResult, error) {
	return nil, types.ErrNotFound
}

func (s *stubReplacer) AutoReplace(context.Context, *types.TripSpec, *types.ItineraryDay, int) (*types.POICandidate, error) {
	return s.pick, s.err
}

func (s *stubReplacer) Apply(context.Context, types.AuthContext, replacement.ApplyRequest) (*replacement.ApplyResult, error) {
	return nil, types.ErrNotFound
}

func poi(id, category string, lat, lon float64) *types.POICandidate {
	return &types.POICandidate{
		ID: id, Name: id, Category: category, Rating: 4.3,
		UserRatingsTotal: 900, Latitude: &lat, Longitude: &lon,
	}
}

func editableDay() types.ItineraryDay {
	return types.ItineraryDay{
		DayNumber: 1,
		Blocks: []types.ItineraryBlock{
			{BlockType: types.BlockMeal, StartTime: types.NewClock(8, 0), EndTime: types.NewClock(9, 0), POI: poi("cafe-1", "cafe", 48.8566, 2.3522)},
			{BlockType: types.BlockActivity, StartTime: types.NewClock(9, 30), EndTime: types.NewClock(12, 0), POI: poi("museum-1", "museum", 48.8606, 2.3376)},
			{BlockType: types.BlockMeal, StartTime: types.NewClock(12, 30), EndTime: types.NewClock(13, 30), POI: poi("rest-1", "restaurant", 48.8580, 2.3500)},
			{BlockType: types.BlockActivity, StartTime: types.NewClock(14, 0), EndTime: types.NewClock(17, 0), POI: poi("park-1", "park", 48.8634, 2.3275)},
			{BlockType: types.BlockMeal, StartTime: types.NewClock(19, 0), EndTime: types.NewClock(20, 30), POI: poi("rest-2", "restaurant", 48.8590, 2.3510)},
		},
	}
}

type editorFixture struct {
	svc         *ServiceImpl
	itineraries *mockItineraries
	spec        *types.TripSpec
	stored      *types.Itinerary
	replacer    *stubReplacer
	catalog     *stubCatalog
}

func newFixture(t *testing.T) *editorFixture {
	t.Helper()
	spec := &types.TripSpec{
		ID: uuid.New(), City: "Paris",
		CityCenter: types.GeoPoint{Lat: 48.8566, Lon: 2.3522},
		StartDate:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		Pace:       types.PaceMedium, Budget: types.BudgetMedium,
		Routine: types.DefaultDailyRoutine(),
	}
	stored := &types.Itinerary{
		TripID:    spec.ID,
		Days:      []types.ItineraryDay{editableDay()},
		UpdatedAt: time.Now(),
	}

	trips := new(mockTrips)
	trips.On("GetOwnedTrip", mock.Anything, mock.Anything, spec.ID).Return(spec, nil)
	itineraries := new(mockItineraries)
	itineraries.On("GetByTripID", mock.Anything, spec.ID).Return(stored, nil)
	itineraries.On("UpdateDay", mock.Anything, spec.ID, mock.Anything).Return(time.Now(), nil).Maybe()

	cat := &stubCatalog{
		byID: map[string]*types.POICandidate{},
		byCategory: map[string][]types.POICandidate{
			"cafe":       {*poi("cafe-9", "cafe", 48.8568, 2.3530)},
			"restaurant": {*poi("rest-8", "restaurant", 48.8572, 2.3540), *poi("rest-9", "restaurant", 48.8574, 2.3545)},
			"attraction": {*poi("attr-9", "attraction", 48.8584, 2.3545)},
			"museum":     {*poi("museum-9", "museum", 48.8610, 2.3390)},
			"bar":        {*poi("bar-9", "bar", 48.8550, 2.3700)},
		},
	}
	replacer := &stubReplacer{}
	svc := NewService(trips, itineraries, cat,
		preferences.NewAgent(nil, slog.Default()),
		planner.NewMacroPlanner(nil, 0, slog.Default()),
		replacer, slog.Default())
	return &editorFixture{svc: svc, itineraries: itineraries, spec: spec, stored: stored, replacer: replacer, catalog: cat}
}

func TestApplyChanges_EmptyBatchIsNoOp(t *testing.T) {
	f := newFixture(t)

	day, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 1, nil)
	require.NoError(t, err)
	assert.Len(t, day.Blocks, 5)
	f.itineraries.AssertNotCalled(t, "UpdateDay", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyChanges_RemoveKeepsDayWhenStillFull(t *testing.T) {
	f := newFixture(t)

	day, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 1, []types.Change{
		{Type: types.ChangeRemovePlace, RemovePlace: &types.RemovePlaceChange{PlaceID: "park-1"}},
	})
	require.NoError(t, err)
	require.Len(t, day.Blocks, 4, "only the removed block goes")
	for _, block := range day.Blocks {
		require.NotNil(t, block.POI)
		assert.NotEqual(t, "park-1", block.POI.ID)
	}
}

func TestApplyChanges_RemoveBelowMinimumTriggersRebuild(t *testing.T) {
	f := newFixture(t)

	day, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 1, []types.Change{
		{Type: types.ChangeRemovePlace, RemovePlace: &types.RemovePlaceChange{PlaceID: "park-1"}},
		{Type: types.ChangeRemovePlace, RemovePlace: &types.RemovePlaceChange{PlaceID: "museum-1"}},
	})
	require.NoError(t, err)

	// Rebuilt from the skeleton: removed places must not come back.
	for _, block := range day.Blocks {
		if block.POI == nil {
			continue
		}
		assert.NotEqual(t, "park-1", block.POI.ID)
		assert.NotEqual(t, "museum-1", block.POI.ID)
	}
}

func TestApplyChanges_ReplaceWithExplicitTarget(t *testing.T) {
	f := newFixture(t)
	f.catalog.byID["rest-new"] = poi("rest-new", "restaurant", 48.8581, 2.3501)

	day, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 1, []types.Change{
		{Type: types.ChangeReplacePlace, ReplacePlace: &types.ReplacePlaceChange{
			FromPlaceID: "rest-1", ToPlaceID: strPtr("rest-new"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "rest-new", day.Blocks[2].POI.ID)
}

func TestApplyChanges_ReplaceWithoutTargetUsesAutoReplace(t *testing.T) {
	f := newFixture(t)
	f.replacer.pick = poi("rest-auto", "restaurant", 48.8582, 2.3502)

	day, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 1, []types.Change{
		{Type: types.ChangeReplacePlace, ReplacePlace: &types.ReplacePlaceChange{FromPlaceID: "rest-1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "rest-auto", day.Blocks[2].POI.ID)
}

func TestApplyChanges_AddPlaceInSlotInfersBlockType(t *testing.T) {
	f := newFixture(t)
	f.catalog.byID["bar-1"] = poi("bar-1", "bar", 48.8540, 2.3710)

	day, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 1, []types.Change{
		{Type: types.ChangeAddPlace, AddPlace: &types.AddPlaceChange{
			PlaceID: "bar-1", Placement: types.PlacementInSlot, SlotIndex: intPtr(99),
		}},
	})
	require.NoError(t, err)

	// Index clamps to the end of the day.
	last := day.Blocks[len(day.Blocks)-1]
	require.NotNil(t, last.POI)
	assert.Equal(t, "bar-1", last.POI.ID)
	assert.Equal(t, types.BlockNightlife, last.BlockType)
}

func TestApplyChanges_SettingsChangeRebuildsWithinNewWindow(t *testing.T) {
	f := newFixture(t)
	end := types.NewClock(16, 0)

	day, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 1, []types.Change{
		{Type: types.ChangeUpdateSettings, UpdateSettings: &types.UpdateSettingsChange{End: &end}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, day.Blocks)
	for _, block := range day.Blocks {
		assert.LessOrEqual(t, block.StartTime, end)
		assert.LessOrEqual(t, block.EndTime, end)
	}
	assert.Equal(t, types.BlockMeal, day.Blocks[0].BlockType)
}

func TestApplyChanges_TravelAnnotationsRefreshed(t *testing.T) {
	f := newFixture(t)
	f.catalog.byID["rest-far"] = poi("rest-far", "restaurant", 48.8700, 2.3800)

	day, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 1, []types.Change{
		{Type: types.ChangeReplacePlace, ReplacePlace: &types.ReplacePlaceChange{
			FromPlaceID: "rest-2", ToPlaceID: strPtr("rest-far"),
		}},
	})
	require.NoError(t, err)

	dinner := day.Blocks[4]
	require.NotNil(t, dinner.POI)
	// Moved across town from the park: the walk annotation must reflect it.
	assert.Greater(t, dinner.TravelTimeFromPrev, 30)
}

func TestApplyChanges_UnknownDay(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ApplyChanges(context.Background(), types.AuthContext{}, f.spec.ID, 9, []types.Change{
		{Type: types.ChangeRemovePlace, RemovePlace: &types.RemovePlaceChange{PlaceID: "x"}},
	})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
