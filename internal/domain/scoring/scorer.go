// Package scoring implements the single candidate-scoring formula every
// selection stage shares.
package scoring

import (
	"math"
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/voyplan/voyplan-api/internal/domain/geo"
	"github.com/voyplan/voyplan-api/internal/types"
)

const (
	mustIncludeBonus      = 6.0
	avoidPenalty          = 5.0
	structuredMatchBonus  = 50.0
	nonOperationalPenalty = 2.5
	mealClosedPenalty     = 1.0
	mealRatingBonus       = 0.25
	dispreferredPriceMult = 0.75
	dayCenterWeightMult   = 0.5
)

// Scorer evaluates candidates against one trip's preference profile. Build
// it once per trip; the keyword automata are reused across all blocks.
type Scorer struct {
	profile        *types.PreferenceProfile
	distanceWeight float64

	mustMatcher  *keywordMatcher
	avoidMatcher *keywordMatcher
	tagMatchers  []tagMatcher
}

type tagMatcher struct {
	boost   float64
	matcher *keywordMatcher
}

type keywordMatcher struct {
	patterns []string
	ac       ahocorasick.AhoCorasick
}

func newKeywordMatcher(patterns []string) *keywordMatcher {
	if len(patterns) == 0 {
		return nil
	}
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            ahocorasick.StandardMatch,
	})
	return &keywordMatcher{patterns: patterns, ac: builder.Build(patterns)}
}

// distinctHits counts how many distinct patterns appear in the haystack.
func (m *keywordMatcher) distinctHits(haystack string) int {
	if m == nil {
		return 0
	}
	seen := make(map[int]bool)
	iter := m.ac.Iter(haystack)
	for match := iter.Next(); match != nil; match = iter.Next() {
		seen[match.Pattern()] = true
	}
	return len(seen)
}

func (m *keywordMatcher) anyHit(haystack string) bool {
	if m == nil {
		return false
	}
	iter := m.ac.Iter(haystack)
	return iter.Next() != nil
}

func NewScorer(profile *types.PreferenceProfile, distanceWeight float64) *Scorer {
	s := &Scorer{
		profile:        profile,
		distanceWeight: distanceWeight,
		mustMatcher:    newKeywordMatcher(profile.MustIncludeKeywords),
		avoidMatcher:   newKeywordMatcher(profile.AvoidKeywords),
	}
	for tag, boost := range profile.TagBoosts {
		s.tagMatchers = append(s.tagMatchers, tagMatcher{
			boost:   boost,
			matcher: newKeywordMatcher([]string{tag}),
		})
	}
	return s
}

// SetDistanceWeight changes the anchor penalty weight; the repair pass uses
// this to re-score with a stronger distance term.
func (s *Scorer) SetDistanceWeight(w float64) { s.distanceWeight = w }

func (s *Scorer) DistanceWeight() float64 { return s.distanceWeight }

// Profile exposes the profile the scorer was built from.
func (s *Scorer) Profile() *types.PreferenceProfile { return s.profile }

// Score evaluates one candidate for a block. anchor biases selection toward
// the previous POI (or hotel); dayCenter biases toward the day's district.
func (s *Scorer) Score(c *types.POICandidate, blockType types.BlockType, anchor, dayCenter *types.GeoPoint) float64 {
	p := s.profile
	score := c.RankScore

	score += p.RatingWeight * c.Rating
	score += p.PopularityWeight * math.Log1p(float64(c.UserRatingsTotal))

	if c.PriceLevel != nil && len(p.PreferredPriceLevels) > 0 {
		if p.PrefersPriceLevel(*c.PriceLevel) {
			score += p.PriceLevelWeight
		} else {
			score -= dispreferredPriceMult * p.PriceLevelWeight
		}
	}

	score += p.CategoryBoosts[c.Category]

	haystack := matchText(c)
	for _, tm := range s.tagMatchers {
		if tm.matcher.anyHit(haystack) {
			score += tm.boost
		}
	}
	score += mustIncludeBonus * float64(s.mustMatcher.distinctHits(haystack))
	score -= avoidPenalty * float64(s.avoidMatcher.distinctHits(haystack))

	for _, pref := range p.StructuredPreferences {
		if structuredMatch(c, pref, haystack) {
			score += structuredMatchBonus
		}
	}

	if c.BusinessStatus != "" && c.BusinessStatus != types.BusinessStatusOperational {
		score -= nonOperationalPenalty
	}
	if blockType == types.BlockMeal {
		if c.OpenNow != nil && !*c.OpenNow {
			score -= mealClosedPenalty
		}
		score += mealRatingBonus * c.Rating
	}

	if loc := c.Location(); loc != nil {
		if anchor != nil {
			score -= s.distanceWeight * geo.Haversine(*anchor, *loc)
		}
		if dayCenter != nil {
			score -= dayCenterWeightMult * s.distanceWeight * geo.Haversine(*dayCenter, *loc)
		}
	}
	return score
}

// MatchesMustInclude reports whether the candidate text matches any
// must-include keyword. Used by the meal pre-filter.
func (s *Scorer) MatchesMustInclude(c *types.POICandidate) bool {
	return s.mustMatcher.anyHit(matchText(c))
}

// MatchesStructured reports whether the candidate satisfies any structured
// preference that applies to the block type.
func (s *Scorer) MatchesStructured(c *types.POICandidate, blockType types.BlockType) bool {
	haystack := matchText(c)
	for _, pref := range s.profile.StructuredPreferences {
		if pref.AppliesTo != "" && pref.AppliesTo != blockType {
			continue
		}
		if structuredMatch(c, pref, haystack) {
			return true
		}
	}
	return false
}

// HasStructuredFor reports whether any structured preference targets the
// block type.
func (s *Scorer) HasStructuredFor(blockType types.BlockType) bool {
	for _, pref := range s.profile.StructuredPreferences {
		if pref.AppliesTo == blockType {
			return true
		}
	}
	return false
}

func structuredMatch(c *types.POICandidate, pref types.StructuredPreference, haystack string) bool {
	if pref.Keyword != "" && !strings.Contains(haystack, strings.ToLower(pref.Keyword)) {
		return false
	}
	if pref.Category != "" && pref.Category != c.Category {
		return false
	}
	if pref.PriceLevel != nil {
		if c.PriceLevel == nil || *c.PriceLevel != *pref.PriceLevel {
			return false
		}
	}
	return pref.Keyword != "" || pref.Category != "" || pref.PriceLevel != nil
}

func matchText(c *types.POICandidate) string {
	if len(c.Tags) == 0 {
		return strings.ToLower(c.Name)
	}
	return strings.ToLower(c.Name + " " + strings.Join(c.Tags, " "))
}
