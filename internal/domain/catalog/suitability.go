package catalog

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/voyplan/voyplan-api/internal/types"
)

// mealNameDenylist rejects experience listings that surface under food
// queries but are not places to eat.
var mealNameDenylist = []string{
	"class", "school", "course", "workshop", "tour", "lesson",
	"academy", "institute", "training", "education",
}

var mealCategories = map[string]bool{
	"restaurant": true,
	"cafe":       true,
}

var nightlifeCategories = map[string]bool{
	"nightlife": true,
	"bar":       true,
}

var activityCategories = map[string]bool{
	"museum":      true,
	"art_gallery": true,
	"attraction":  true,
	"park":        true,
	"shopping":    true,
	"wellness":    true,
}

var mealDenyMatcher = func() ahocorasick.AhoCorasick {
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            ahocorasick.StandardMatch,
	})
	return builder.Build(mealNameDenylist)
}()

// SuitableForBlock reports whether a candidate may fill a block of the given
// type. Rest and travel blocks never carry a POI.
func SuitableForBlock(c *types.POICandidate, blockType types.BlockType) bool {
	switch blockType {
	case types.BlockMeal:
		if !mealCategories[c.Category] {
			return false
		}
		return mealDenyMatcher.Iter(strings.ToLower(c.Name)).Next() == nil
	case types.BlockNightlife:
		return nightlifeCategories[c.Category]
	case types.BlockActivity:
		return activityCategories[c.Category]
	default:
		return false
	}
}
