package types

// MinRating bounds enforced on every preference profile.
const (
	MinRatingFloor   = 3.5
	MinRatingCeiling = 4.8
)

// PreferenceProfile carries the per-trip weights, boosts, penalties and
// rating/price constraints used throughout candidate scoring.
type PreferenceProfile struct {
	MustIncludeKeywords   []string               `json:"must_include_keywords,omitempty"`
	AvoidKeywords         []string               `json:"avoid_keywords,omitempty"`
	SearchKeywords        []string               `json:"search_keywords,omitempty"`
	CategoryBoosts        map[string]float64     `json:"category_boosts,omitempty"`
	TagBoosts             map[string]float64     `json:"tag_boosts,omitempty"`
	MinRating             float64                `json:"min_rating"`
	PreferredPriceLevels  []int                  `json:"preferred_price_levels,omitempty"`
	RatingWeight          float64                `json:"rating_weight"`
	PopularityWeight      float64                `json:"popularity_weight"`
	PriceLevelWeight      float64                `json:"price_level_weight"`
	StructuredPreferences []StructuredPreference `json:"structured_preferences,omitempty"`
}

// Validate clamps the profile into its documented bounds.
func (p *PreferenceProfile) Validate() {
	if p.MinRating < MinRatingFloor {
		p.MinRating = MinRatingFloor
	}
	if p.MinRating > MinRatingCeiling {
		p.MinRating = MinRatingCeiling
	}
	if p.RatingWeight < 0 {
		p.RatingWeight = 0
	}
	if p.PopularityWeight < 0 {
		p.PopularityWeight = 0
	}
	if p.PriceLevelWeight < 0 {
		p.PriceLevelWeight = 0
	}
}

// PrefersPriceLevel reports whether the given price level is preferred.
func (p *PreferenceProfile) PrefersPriceLevel(level int) bool {
	for _, l := range p.PreferredPriceLevels {
		if l == level {
			return true
		}
	}
	return false
}
