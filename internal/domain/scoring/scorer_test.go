package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voyplan/voyplan-api/internal/types"
)

func intPtr(v int) *int          { return &v }
func boolPtr(v bool) *bool       { return &v }
func floatPtr(v float64) *float64 { return &v }

func baseProfile() *types.PreferenceProfile {
	return &types.PreferenceProfile{
		MinRating:        4.0,
		RatingWeight:     1.0,
		PopularityWeight: 0.5,
		PriceLevelWeight: 1.0,
		CategoryBoosts:   map[string]float64{"museum": 8.0, "nightlife": -3.0},
	}
}

func TestScore_CategoryBoostSeparatesCandidates(t *testing.T) {
	scorer := NewScorer(baseProfile(), 1.0)
	museum := &types.POICandidate{ID: "m", Name: "City Museum", Category: "museum", Rating: 4.2}
	club := &types.POICandidate{ID: "c", Name: "Neon Club", Category: "nightlife", Rating: 4.2}

	assert.Greater(t,
		scorer.Score(museum, types.BlockActivity, nil, nil),
		scorer.Score(club, types.BlockActivity, nil, nil))
}

func TestScore_MustIncludeAndAvoidKeywords(t *testing.T) {
	profile := baseProfile()
	profile.MustIncludeKeywords = []string{"ramen"}
	profile.AvoidKeywords = []string{"buffet"}
	scorer := NewScorer(profile, 1.0)

	ramen := &types.POICandidate{ID: "r", Name: "Golden Ramen House", Category: "restaurant", Rating: 4.0}
	buffet := &types.POICandidate{ID: "b", Name: "Mega Buffet Palace", Category: "restaurant", Rating: 4.0}
	plain := &types.POICandidate{ID: "p", Name: "Corner Bistro", Category: "restaurant", Rating: 4.0}

	assert.Greater(t,
		scorer.Score(ramen, types.BlockMeal, nil, nil),
		scorer.Score(plain, types.BlockMeal, nil, nil))
	assert.Less(t,
		scorer.Score(buffet, types.BlockMeal, nil, nil),
		scorer.Score(plain, types.BlockMeal, nil, nil))
}

func TestScore_PriceLevelPreference(t *testing.T) {
	profile := baseProfile()
	profile.PreferredPriceLevels = []int{0, 1}
	scorer := NewScorer(profile, 1.0)

	cheap := &types.POICandidate{ID: "c", Name: "Street Food", Category: "restaurant", Rating: 4.0, PriceLevel: intPtr(1)}
	pricey := &types.POICandidate{ID: "p", Name: "Haute Table", Category: "restaurant", Rating: 4.0, PriceLevel: intPtr(4)}
	unknown := &types.POICandidate{ID: "u", Name: "Mystery Diner", Category: "restaurant", Rating: 4.0}

	cheapScore := scorer.Score(cheap, types.BlockMeal, nil, nil)
	priceyScore := scorer.Score(pricey, types.BlockMeal, nil, nil)
	unknownScore := scorer.Score(unknown, types.BlockMeal, nil, nil)

	assert.Greater(t, cheapScore, priceyScore)
	// Unknown price is neutral, between preferred and dispreferred.
	assert.Greater(t, cheapScore, unknownScore)
	assert.Greater(t, unknownScore, priceyScore)
}

func TestScore_StructuredPreferenceDominates(t *testing.T) {
	profile := baseProfile()
	profile.StructuredPreferences = []types.StructuredPreference{
		{Keyword: "michelin", Category: "restaurant", PriceLevel: intPtr(4), AppliesTo: types.BlockMeal},
	}
	scorer := NewScorer(profile, 1.0)

	starred := &types.POICandidate{
		ID: "s", Name: "Michelin Star Table", Category: "restaurant",
		Rating: 4.1, PriceLevel: intPtr(4),
	}
	regular := &types.POICandidate{ID: "r", Name: "Nice Restaurant", Category: "restaurant", Rating: 4.9, UserRatingsTotal: 9000}

	assert.Greater(t,
		scorer.Score(starred, types.BlockMeal, nil, nil),
		scorer.Score(regular, types.BlockMeal, nil, nil))
	assert.True(t, scorer.MatchesStructured(starred, types.BlockMeal))
	assert.False(t, scorer.MatchesStructured(regular, types.BlockMeal))
}

func TestScore_NonOperationalAndClosedMealPenalties(t *testing.T) {
	scorer := NewScorer(baseProfile(), 1.0)

	open := &types.POICandidate{ID: "o", Name: "Open Cafe", Category: "cafe", Rating: 4.0,
		BusinessStatus: types.BusinessStatusOperational, OpenNow: boolPtr(true)}
	closed := &types.POICandidate{ID: "c", Name: "Closed Cafe", Category: "cafe", Rating: 4.0,
		BusinessStatus: types.BusinessStatusOperational, OpenNow: boolPtr(false)}
	gone := &types.POICandidate{ID: "g", Name: "Gone Cafe", Category: "cafe", Rating: 4.0,
		BusinessStatus: "CLOSED_PERMANENTLY", OpenNow: boolPtr(true)}

	openScore := scorer.Score(open, types.BlockMeal, nil, nil)
	assert.Greater(t, openScore, scorer.Score(closed, types.BlockMeal, nil, nil))
	assert.Greater(t, openScore, scorer.Score(gone, types.BlockMeal, nil, nil))
}

func TestScore_AnchorDistancePenalty(t *testing.T) {
	scorer := NewScorer(baseProfile(), 2.0)
	anchor := &types.GeoPoint{Lat: 48.8566, Lon: 2.3522}

	near := &types.POICandidate{ID: "n", Name: "Near Spot", Category: "museum", Rating: 4.0,
		Latitude: floatPtr(48.8570), Longitude: floatPtr(2.3530)}
	far := &types.POICandidate{ID: "f", Name: "Far Spot", Category: "museum", Rating: 4.0,
		Latitude: floatPtr(48.90), Longitude: floatPtr(2.45)}

	assert.Greater(t,
		scorer.Score(near, types.BlockActivity, anchor, nil),
		scorer.Score(far, types.BlockActivity, anchor, nil))
}

func TestScore_MealRatingBonusOnlyForMeals(t *testing.T) {
	scorer := NewScorer(baseProfile(), 1.0)
	c := &types.POICandidate{ID: "x", Name: "Bistro", Category: "restaurant", Rating: 4.0}

	asMeal := scorer.Score(c, types.BlockMeal, nil, nil)
	asActivity := scorer.Score(c, types.BlockActivity, nil, nil)
	assert.InDelta(t, mealRatingBonus*c.Rating, asMeal-asActivity, 1e-9)
}
