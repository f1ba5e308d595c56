// Package preferences builds the per-trip preference profile consumed by
// every scoring stage.
package preferences

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/voyplan/voyplan-api/internal/llm"
	"github.com/voyplan/voyplan-api/internal/types"
)

// allowedCategories is the taxonomy the LLM prompt is constrained to.
var allowedCategories = []string{
	"museum", "art_gallery", "attraction", "park", "restaurant", "cafe",
	"bar", "nightlife", "shopping", "wellness",
}

// Agent derives a PreferenceProfile from a trip spec, via the LLM when
// available and a rule-based heuristic otherwise. BuildProfile never fails:
// any LLM problem degrades to the heuristic path.
type Agent struct {
	llm    llm.Gateway
	logger *slog.Logger
}

func NewAgent(gateway llm.Gateway, logger *slog.Logger) *Agent {
	return &Agent{llm: gateway, logger: logger}
}

func (a *Agent) BuildProfile(ctx context.Context, spec *types.TripSpec) types.PreferenceProfile {
	ctx, span := otel.Tracer("PreferenceAgent").Start(ctx, "BuildProfile")
	defer span.End()

	if a.llm != nil {
		profile, err := a.buildWithLLM(ctx, spec)
		if err == nil {
			applyStructuredPreferences(&profile, spec)
			profile.Validate()
			return profile
		}
		a.logger.WarnContext(ctx, "llm profile generation failed, using heuristics",
			slog.Any("error", err))
	}

	profile := HeuristicProfile(spec)
	profile.Validate()
	return profile
}

func (a *Agent) buildWithLLM(ctx context.Context, spec *types.TripSpec) (types.PreferenceProfile, error) {
	var profile types.PreferenceProfile

	prompt := fmt.Sprintf(`Derive a preference profile for a trip to %s.
Traveler interests: %s.
Free-form preferences: %s.
Budget: %s. Pace: %s.

Respond with JSON only:
{
  "must_include_keywords": [...],
  "avoid_keywords": [...],
  "search_keywords": [...],
  "category_boosts": {"category": score},
  "tag_boosts": {"tag": score},
  "min_rating": 4.0,
  "preferred_price_levels": [0-4],
  "rating_weight": 1.0,
  "popularity_weight": 0.5,
  "price_level_weight": 1.0
}
Category keys must come from this list only: %s.`,
		spec.City,
		strings.Join(spec.Interests, ", "),
		formatFreeform(spec.AdditionalPreferences),
		spec.Budget, spec.Pace,
		strings.Join(allowedCategories, ", "))

	if err := a.llm.GenerateStructured(ctx, prompt, "You are a travel preference analyst.", 1024, &profile); err != nil {
		return types.PreferenceProfile{}, err
	}

	// Drop category boosts outside the taxonomy rather than failing.
	for cat := range profile.CategoryBoosts {
		if !isAllowedCategory(cat) {
			delete(profile.CategoryBoosts, cat)
		}
	}
	if profile.CategoryBoosts == nil {
		profile.CategoryBoosts = map[string]float64{}
	}
	return profile, nil
}

func isAllowedCategory(cat string) bool {
	for _, c := range allowedCategories {
		if c == cat {
			return true
		}
	}
	return false
}

func formatFreeform(prefs map[string]string) string {
	if len(prefs) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(prefs))
	for k, v := range prefs {
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, "; ")
}
