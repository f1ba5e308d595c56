package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voyplan-api/internal/types"
)

func poiAt(id string, lat, lon float64, category string) types.POICandidate {
	return types.POICandidate{
		ID:       id,
		Name:     id,
		Category: category,
		Latitude: &lat, Longitude: &lon,
		Rating: 4.2,
	}
}

func TestCluster_SingleCluster(t *testing.T) {
	pois := []types.POICandidate{
		poiAt("a", 48.8566, 2.3522, "museum"),
		poiAt("b", 48.8570, 2.3530, "cafe"),
		poiAt("c", 48.8560, 2.3510, "museum"),
	}
	clusterer := NewClusterer(2.0, 1, DefaultMaxDistricts)
	res := clusterer.Cluster(pois, types.GeoPoint{Lat: 48.8566, Lon: 2.3522}, nil)

	require.Len(t, res.DistrictIDs, 1)
	district := res.Districts["A"]
	require.NotNil(t, district)
	assert.Equal(t, 3, district.TotalPOIs)
	assert.Equal(t, 2, district.CategoryCounts["museum"])
}

func TestCluster_DistantPointsSplit(t *testing.T) {
	pois := []types.POICandidate{
		poiAt("north", 48.88, 2.35, "museum"),
		poiAt("south", 48.83, 2.35, "park"),
		poiAt("east", 48.855, 2.40, "cafe"),
	}
	clusterer := NewClusterer(1.0, 1, DefaultMaxDistricts)
	res := clusterer.Cluster(pois, types.GeoPoint{Lat: 48.8566, Lon: 2.3522}, nil)

	assert.GreaterOrEqual(t, len(res.DistrictIDs), 2)
}

func TestCluster_Deterministic(t *testing.T) {
	pois := []types.POICandidate{
		poiAt("a", 48.8566, 2.3522, "museum"),
		poiAt("b", 48.8700, 2.3300, "cafe"),
		poiAt("c", 48.8400, 2.3700, "park"),
		poiAt("d", 48.8566, 2.3525, "bar"),
	}
	center := types.GeoPoint{Lat: 48.8566, Lon: 2.3522}
	clusterer := NewClusterer(1.0, 1, 3)

	first := clusterer.Cluster(pois, center, nil)
	second := clusterer.Cluster(pois, center, nil)

	require.Equal(t, first.DistrictIDs, second.DistrictIDs)
	for _, id := range first.DistrictIDs {
		assert.Equal(t, first.Districts[id].TotalPOIs, second.Districts[id].TotalPOIs)
		assert.Equal(t, first.Districts[id].Center, second.Districts[id].Center)
	}
}

func TestCluster_HotelDistrictAssignment(t *testing.T) {
	pois := []types.POICandidate{
		poiAt("a", 48.8566, 2.3522, "museum"),
		poiAt("b", 48.8900, 2.3300, "park"),
	}
	hotel := types.GeoPoint{Lat: 48.857, Lon: 2.352}
	clusterer := NewClusterer(1.0, 1, DefaultMaxDistricts)
	res := clusterer.Cluster(pois, types.GeoPoint{Lat: 48.8566, Lon: 2.3522}, &hotel)

	require.NotEmpty(t, res.HotelDistrictID)
	district := res.Districts[res.HotelDistrictID]
	require.Equal(t, 1, district.TotalPOIs)
	assert.Equal(t, "a", district.POIs[0].ID)
}

func TestCluster_DropsPOIsWithoutCoordinates(t *testing.T) {
	pois := []types.POICandidate{
		poiAt("a", 48.8566, 2.3522, "museum"),
		{ID: "nowhere", Name: "nowhere", Category: "cafe"},
	}
	clusterer := NewClusterer(1.0, 1, DefaultMaxDistricts)
	res := clusterer.Cluster(pois, types.GeoPoint{Lat: 48.8566, Lon: 2.3522}, nil)

	require.Len(t, res.DistrictIDs, 1)
	assert.Equal(t, 1, res.Districts["A"].TotalPOIs)
}

func TestCluster_MaxDistrictsRespected(t *testing.T) {
	var pois []types.POICandidate
	for i := 0; i < 12; i++ {
		lat := 48.80 + float64(i)*0.02
		pois = append(pois, poiAt(string(rune('a'+i)), lat, 2.35, "museum"))
	}
	clusterer := NewClusterer(1.0, 1, 4)
	res := clusterer.Cluster(pois, types.GeoPoint{Lat: 48.8566, Lon: 2.3522}, nil)

	assert.LessOrEqual(t, len(res.DistrictIDs), 4)
	total := 0
	for _, id := range res.DistrictIDs {
		total += res.Districts[id].TotalPOIs
	}
	assert.Equal(t, 12, total)
}

func TestNearestDistrict_CategoryCoverage(t *testing.T) {
	pois := []types.POICandidate{
		poiAt("m", 48.8566, 2.3522, "museum"),
		poiAt("p", 48.8900, 2.3300, "park"),
	}
	clusterer := NewClusterer(1.0, 1, DefaultMaxDistricts)
	res := clusterer.Cluster(pois, types.GeoPoint{Lat: 48.8566, Lon: 2.3522}, nil)

	// Asking for a park next to the museum district must jump to the park one.
	near := types.GeoPoint{Lat: 48.8566, Lon: 2.3522}
	district := NearestDistrict(res, near, []string{"park"})
	require.NotNil(t, district)
	assert.Equal(t, 1, district.CategoryCounts["park"])
}
