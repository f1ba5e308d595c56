package catalog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voyplan-api/internal/types"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) UpsertPOIs(ctx context.Context, city string, candidates []types.POICandidate) ([]types.POICandidate, error) {
	args := m.Called(ctx, city, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.POICandidate), args.Error(1)
}

func (m *mockRepository) SearchCached(ctx context.Context, city, category string, keywords []string, limit int) ([]types.POICandidate, error) {
	args := m.Called(ctx, city, category, keywords, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.POICandidate), args.Error(1)
}

func (m *mockRepository) GetPOI(ctx context.Context, id string) (*types.POICandidate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.POICandidate), args.Error(1)
}

func (m *mockRepository) UpdateDetails(ctx context.Context, id string, details *types.PlaceDetails) error {
	return m.Called(ctx, id, details).Error(0)
}

type mockPlaces struct {
	mock.Mock
}

func (m *mockPlaces) TextSearch(ctx context.Context, query string, center types.GeoPoint, radiusMeters, limit int) ([]types.POICandidate, error) {
	args := m.Called(ctx, query, center, radiusMeters, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.POICandidate), args.Error(1)
}

func (m *mockPlaces) PlaceDetails(ctx context.Context, externalID string) (*types.PlaceDetails, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PlaceDetails), args.Error(1)
}

var lisbonCenter = types.GeoPoint{Lat: 38.7223, Lon: -9.1393}

func candidate(id, name, category string, rating float64, at types.GeoPoint) types.POICandidate {
	lat, lon := at.Lat, at.Lon
	return types.POICandidate{
		ID: id, Name: name, Category: category, Rating: rating,
		UserRatingsTotal: 100, Latitude: &lat, Longitude: &lon,
		Source: "google_places", ExternalID: "ext-" + id,
	}
}

func TestSearchPOIs_CacheHitSkipsProvider(t *testing.T) {
	repo := &mockRepository{}
	places := &mockPlaces{}
	svc := NewService(repo, places, slog.Default())

	cached := []types.POICandidate{
		candidate("1", "Time Out Market", "restaurant", 4.5, lisbonCenter),
		candidate("2", "Cervejaria Ramiro", "restaurant", 4.6, lisbonCenter),
	}
	repo.On("SearchCached", mock.Anything, "Lisbon", "restaurant", []string(nil), 4).
		Return(cached, nil)

	got, err := svc.SearchPOIs(context.Background(), SearchRequest{
		City: "Lisbon", Center: lisbonCenter, Category: "restaurant",
		BlockType: types.BlockMeal, Limit: 2,
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Cervejaria Ramiro", got[0].Name)
	places.AssertNotCalled(t, "TextSearch")
}

func TestSearchPOIs_SupplementsAndPersistsExternal(t *testing.T) {
	repo := &mockRepository{}
	places := &mockPlaces{}
	svc := NewService(repo, places, slog.Default())

	repo.On("SearchCached", mock.Anything, "Lisbon", "museum", []string(nil), 4).
		Return([]types.POICandidate{}, nil)
	external := []types.POICandidate{
		candidate("", "MAAT", "museum", 4.4, lisbonCenter),
		candidate("", "Museu do Azulejo", "museum", 4.6, lisbonCenter),
	}
	external[0].ExternalID = "ext-maat"
	external[1].ExternalID = "ext-azulejo"
	places.On("TextSearch", mock.Anything, mock.Anything, lisbonCenter, defaultRadiusMeters, mock.Anything).
		Return(external, nil)

	persisted := make([]types.POICandidate, len(external))
	copy(persisted, external)
	persisted[0].ID = "p1"
	persisted[1].ID = "p2"
	repo.On("UpsertPOIs", mock.Anything, "Lisbon", mock.Anything).Return(persisted, nil)

	got, err := svc.SearchPOIs(context.Background(), SearchRequest{
		City: "Lisbon", Center: lisbonCenter, Category: "museum",
		BlockType: types.BlockActivity, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID)
	repo.AssertExpectations(t)
}

func TestSearchPOIs_ProviderFailureDegradesToCache(t *testing.T) {
	repo := &mockRepository{}
	places := &mockPlaces{}
	svc := NewService(repo, places, slog.Default())

	cached := []types.POICandidate{candidate("1", "MAAT", "museum", 4.4, lisbonCenter)}
	repo.On("SearchCached", mock.Anything, "Lisbon", "museum", []string(nil), 6).
		Return(cached, nil)
	places.On("TextSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, types.ErrProviderUnavailable)

	got, err := svc.SearchPOIs(context.Background(), SearchRequest{
		City: "Lisbon", Center: lisbonCenter, Category: "museum",
		BlockType: types.BlockActivity, Limit: 3,
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchPOIs_CacheIsScopedToCenter(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, nil, slog.Default())

	cached := []types.POICandidate{candidate("1", "Near Baixa", "restaurant", 4.5, lisbonCenter)}
	repo.On("SearchCached", mock.Anything, "Lisbon", "restaurant", []string(nil), mock.Anything).
		Return(cached, nil)

	near, err := svc.SearchPOIs(context.Background(), SearchRequest{
		City: "Lisbon", Center: lisbonCenter, Category: "restaurant",
		BlockType: types.BlockMeal, RadiusMeters: 3000, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, near, 1)

	// Same query anchored 15 km north must not reuse the Baixa entry.
	farCenter := types.GeoPoint{Lat: lisbonCenter.Lat + 0.135, Lon: lisbonCenter.Lon}
	far, err := svc.SearchPOIs(context.Background(), SearchRequest{
		City: "Lisbon", Center: farCenter, Category: "restaurant",
		BlockType: types.BlockMeal, RadiusMeters: 3000, Limit: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, far)
}

func TestSearchPOIs_FiltersUnsuitableForMeal(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, nil, slog.Default())

	cached := []types.POICandidate{
		candidate("1", "Pasteis de Belem", "cafe", 4.5, lisbonCenter),
		candidate("2", "Lisbon Cooking Class", "restaurant", 4.9, lisbonCenter),
		candidate("3", "MAAT", "museum", 4.4, lisbonCenter),
	}
	repo.On("SearchCached", mock.Anything, "Lisbon", "restaurant", []string(nil), 10).
		Return(cached, nil)

	got, err := svc.SearchPOIs(context.Background(), SearchRequest{
		City: "Lisbon", Center: lisbonCenter, Category: "restaurant",
		BlockType: types.BlockMeal, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Pasteis de Belem", got[0].Name)
}

func TestSearchPOIsBulk_PreservesOrder(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, nil, slog.Default())

	repo.On("SearchCached", mock.Anything, "Lisbon", "museum", []string(nil), mock.Anything).
		Return([]types.POICandidate{candidate("1", "MAAT", "museum", 4.4, lisbonCenter)}, nil)
	repo.On("SearchCached", mock.Anything, "Lisbon", "bar", []string(nil), mock.Anything).
		Return([]types.POICandidate{candidate("2", "Pensao Amor", "bar", 4.3, lisbonCenter)}, nil)

	got, err := svc.SearchPOIsBulk(context.Background(), []SearchRequest{
		{City: "Lisbon", Center: lisbonCenter, Category: "museum", BlockType: types.BlockActivity, Limit: 3},
		{City: "Lisbon", Center: lisbonCenter, Category: "bar", BlockType: types.BlockNightlife, Limit: 3},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MAAT", got[0][0].Name)
	assert.Equal(t, "Pensao Amor", got[1][0].Name)
}

func TestFetchPlaceDetails_DegradesToCachedRecord(t *testing.T) {
	repo := &mockRepository{}
	places := &mockPlaces{}
	svc := NewService(repo, places, slog.Default())

	poi := candidate("p1", "MAAT", "museum", 4.4, lisbonCenter)
	repo.On("GetPOI", mock.Anything, "p1").Return(&poi, nil)
	places.On("PlaceDetails", mock.Anything, "ext-p1").Return(nil, types.ErrProviderUnavailable)

	got, err := svc.FetchPlaceDetails(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "MAAT", got.Name)
}

func TestSuitableForBlock(t *testing.T) {
	tests := []struct {
		name      string
		category  string
		blockType types.BlockType
		want      bool
	}{
		{"Cervejaria Ramiro", "restaurant", types.BlockMeal, true},
		{"Sushi Making Workshop", "restaurant", types.BlockMeal, false},
		{"Pastry School of Lisbon", "cafe", types.BlockMeal, false},
		{"MAAT", "museum", types.BlockMeal, false},
		{"Pensao Amor", "bar", types.BlockNightlife, true},
		{"MAAT", "museum", types.BlockNightlife, false},
		{"MAAT", "museum", types.BlockActivity, true},
		{"Cervejaria Ramiro", "restaurant", types.BlockActivity, false},
		{"Anywhere", "park", types.BlockRest, false},
	}
	for _, tt := range tests {
		c := types.POICandidate{Name: tt.name, Category: tt.category}
		assert.Equal(t, tt.want, SuitableForBlock(&c, tt.blockType), "%s as %s", tt.name, tt.blockType)
	}
}
