package preferences

import (
	"strings"

	"github.com/voyplan/voyplan-api/internal/types"
)

// HeuristicProfile derives a profile from lowercased interests plus the
// free-form preference text, without touching the LLM.
func HeuristicProfile(spec *types.TripSpec) types.PreferenceProfile {
	profile := types.PreferenceProfile{
		CategoryBoosts:   map[string]float64{},
		TagBoosts:        map[string]float64{},
		MinRating:        4.0,
		RatingWeight:     1.0,
		PopularityWeight: 0.5,
		PriceLevelWeight: 1.0,
	}

	text := strings.ToLower(strings.Join(spec.Interests, " "))
	for _, v := range spec.AdditionalPreferences {
		text += " " + strings.ToLower(v)
	}

	mentionsMuseumOrArt := containsAny(text, "museum", "history", "art")

	if containsAny(text, "museum", "history") {
		profile.CategoryBoosts["museum"] += 8.0
		profile.CategoryBoosts["art_gallery"] += 8.0
		profile.CategoryBoosts["shopping"] -= 3.0
		profile.CategoryBoosts["nightlife"] -= 3.0
	}
	if containsAny(text, "nightlife", "club", "party") {
		profile.CategoryBoosts["nightlife"] += 8.0
		profile.CategoryBoosts["bar"] += 8.0
		profile.CategoryBoosts["museum"] -= 3.0
	}
	if containsAny(text, "architecture", "view", "landmark") {
		profile.CategoryBoosts["attraction"] += 8.0
		if !mentionsMuseumOrArt {
			profile.CategoryBoosts["museum"] -= 3.0
		}
	}
	if containsAny(text, "shopping", "boutique", "market") {
		profile.CategoryBoosts["shopping"] += 8.0
		profile.CategoryBoosts["museum"] -= 3.0
	}
	if containsAny(text, "nature", "park", "garden") {
		profile.CategoryBoosts["park"] += 8.0
	}
	if containsAny(text, "food", "foodie", "cuisine", "gastronomy") {
		profile.CategoryBoosts["restaurant"] += 8.0
		profile.CategoryBoosts["cafe"] += 4.0
		profile.SearchKeywords = append(profile.SearchKeywords, "local cuisine")
	}
	if containsAny(text, "budget", "cheap") {
		profile.PreferredPriceLevels = []int{0, 1}
	}
	if containsAny(text, "fine dining", "michelin") {
		profile.PreferredPriceLevels = []int{3, 4}
		profile.MinRating = 4.5
		profile.TagBoosts["michelin"] += 10.0
	}

	switch spec.Budget {
	case types.BudgetLow:
		if len(profile.PreferredPriceLevels) == 0 {
			profile.PreferredPriceLevels = []int{0, 1}
		}
	case types.BudgetHigh:
		if len(profile.PreferredPriceLevels) == 0 {
			profile.PreferredPriceLevels = []int{2, 3, 4}
		}
	}

	applyStructuredPreferences(&profile, spec)
	return profile
}

// applyStructuredPreferences folds the trip's structured wishes into the
// profile: keywords become must-include and search keywords, explicit price
// levels become preferred ones.
func applyStructuredPreferences(profile *types.PreferenceProfile, spec *types.TripSpec) {
	for _, pref := range spec.StructuredPreferences {
		if pref.Keyword != "" {
			kw := strings.ToLower(pref.Keyword)
			if !containsString(profile.MustIncludeKeywords, kw) {
				profile.MustIncludeKeywords = append(profile.MustIncludeKeywords, kw)
			}
			if !containsString(profile.SearchKeywords, kw) {
				profile.SearchKeywords = append(profile.SearchKeywords, kw)
			}
		}
		if pref.PriceLevel != nil && !containsInt(profile.PreferredPriceLevels, *pref.PriceLevel) {
			profile.PreferredPriceLevels = append(profile.PreferredPriceLevels, *pref.PriceLevel)
		}
	}
	profile.StructuredPreferences = append(profile.StructuredPreferences, spec.StructuredPreferences...)
}

func containsAny(text string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
