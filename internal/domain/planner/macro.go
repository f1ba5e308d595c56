// Package planner contains the planning stages: macro skeletons, POI
// curation, fast drafts and the orchestrator tying them together.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/voyplan/voyplan-api/internal/llm"
	"github.com/voyplan/voyplan-api/internal/types"
)

// MacroPlanner produces the day-by-day skeleton for a trip.
type MacroPlanner struct {
	logger     *slog.Logger
	llm        llm.Gateway
	llmTimeout time.Duration
}

// NewMacroPlanner builds a macro planner. llmTimeout bounds each LLM call;
// zero means the caller's context is the only deadline.
func NewMacroPlanner(gateway llm.Gateway, llmTimeout time.Duration, logger *slog.Logger) *MacroPlanner {
	return &MacroPlanner{logger: logger, llm: gateway, llmTimeout: llmTimeout}
}

// Generate builds themed day skeletons, preferring the LLM and falling back
// to the routine-driven template on any failure.
func (m *MacroPlanner) Generate(ctx context.Context, spec *types.TripSpec) []types.DaySkeleton {
	if m.llm != nil {
		if plan, ok := m.generateWithLLM(ctx, spec); ok {
			return plan
		}
	}
	return m.generateTemplate(spec)
}

type macroResponse struct {
	Days []struct {
		DayNumber int    `json:"day_number"`
		Theme     string `json:"theme"`
		Blocks    []struct {
			BlockType         string   `json:"block_type"`
			StartTime         string   `json:"start_time"`
			EndTime           string   `json:"end_time"`
			Theme             string   `json:"theme"`
			DesiredCategories []string `json:"desired_categories"`
		} `json:"blocks"`
	} `json:"days"`
}

func (m *MacroPlanner) generateWithLLM(ctx context.Context, spec *types.TripSpec) ([]types.DaySkeleton, bool) {
	if m.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.llmTimeout)
		defer cancel()
	}

	var resp macroResponse
	err := m.llm.GenerateStructured(ctx, macroPrompt(spec), macroSystemPrompt, 4096, &resp)
	if err != nil {
		m.logger.WarnContext(ctx, "macro planning fell back to template",
			slog.String("city", spec.City), slog.Any("error", err))
		return nil, false
	}

	plan, err := m.validateMacro(spec, &resp)
	if err != nil {
		m.logger.WarnContext(ctx, "macro plan rejected, using template", slog.Any("error", err))
		return nil, false
	}
	return plan, true
}

func (m *MacroPlanner) validateMacro(spec *types.TripSpec, resp *macroResponse) ([]types.DaySkeleton, error) {
	if len(resp.Days) != spec.DayCount() {
		return nil, fmt.Errorf("expected %d days, got %d", spec.DayCount(), len(resp.Days))
	}

	plan := make([]types.DaySkeleton, 0, len(resp.Days))
	for i, day := range resp.Days {
		skeleton := types.DaySkeleton{
			DayNumber: i + 1,
			Date:      spec.DateForDay(i + 1),
			Theme:     day.Theme,
		}
		if len(day.Blocks) == 0 {
			return nil, fmt.Errorf("day %d has no blocks", i+1)
		}
		for _, raw := range day.Blocks {
			blockType := types.BlockType(raw.BlockType)
			switch blockType {
			case types.BlockMeal, types.BlockActivity, types.BlockNightlife, types.BlockRest, types.BlockTravel:
			default:
				return nil, fmt.Errorf("day %d has unknown block type %q", i+1, raw.BlockType)
			}
			start, err := types.ParseClock(raw.StartTime)
			if err != nil {
				return nil, err
			}
			end, err := types.ParseClock(raw.EndTime)
			if err != nil {
				return nil, err
			}
			if end <= start && blockType != types.BlockNightlife {
				return nil, fmt.Errorf("day %d block %q ends before it starts", i+1, raw.Theme)
			}
			skeleton.Blocks = append(skeleton.Blocks, types.SkeletonBlock{
				BlockType:         blockType,
				StartTime:         start,
				EndTime:           end,
				Theme:             raw.Theme,
				DesiredCategories: raw.DesiredCategories,
			})
		}
		sort.SliceStable(skeleton.Blocks, func(a, b int) bool {
			return skeleton.Blocks[a].StartTime < skeleton.Blocks[b].StartTime
		})
		plan = append(plan, skeleton)
	}
	return plan, nil
}

// generateTemplate is the deterministic skeleton: routine meal windows plus
// interest-driven activities, identical for every run of the same spec.
func (m *MacroPlanner) generateTemplate(spec *types.TripSpec) []types.DaySkeleton {
	nightlife := wantsNightlife(spec)
	plan := make([]types.DaySkeleton, 0, spec.DayCount())
	for dayNumber := 1; dayNumber <= spec.DayCount(); dayNumber++ {
		day := m.RebuildDay(spec, RebuildDayInput{
			DayNumber: dayNumber,
			StartTime: spec.Routine.WakeTime,
			EndTime:   spec.Routine.SleepTime,
			Nightlife: nightlife,
		})
		if !nightlife {
			day.Blocks = trimNightlife(day.Blocks)
		}
		plan = append(plan, day)
	}
	return plan
}

// trimNightlife drops the trailing nightlife block the rebuild rules insert
// on late days; the full template only schedules nightlife when asked for.
func trimNightlife(blocks []types.SkeletonBlock) []types.SkeletonBlock {
	if n := len(blocks); n > 0 && blocks[n-1].BlockType == types.BlockNightlife {
		return blocks[:n-1]
	}
	return blocks
}

// RebuildDayInput shapes a single-day skeleton rebuild. The day editor feeds
// it from the edited day's context.
type RebuildDayInput struct {
	DayNumber int
	StartTime types.Clock
	EndTime   types.Clock
	Nightlife bool
}

// RebuildDay synthesizes one day's skeleton: breakfast before 10:00, morning
// activity, lunch when the day runs past 13:00, afternoon activity past
// 15:00, dinner no earlier than 17:00, nightlife on request or late days.
func (m *MacroPlanner) RebuildDay(spec *types.TripSpec, in RebuildDayInput) types.DaySkeleton {
	day := types.DaySkeleton{
		DayNumber: in.DayNumber,
		Date:      spec.DateForDay(in.DayNumber),
		Theme:     fmt.Sprintf("Day %d in %s", in.DayNumber, spec.City),
	}
	activities := interestCategories(spec)
	cursor := in.StartTime

	if in.StartTime < types.NewClock(10, 0) {
		end := cursor + types.NewClock(1, 0)
		day.Blocks = append(day.Blocks, types.SkeletonBlock{
			BlockType: types.BlockMeal, StartTime: cursor, EndTime: end,
			Theme: "Breakfast", DesiredCategories: []string{"cafe"},
		})
		cursor = end + types.NewClock(0, 30)
	}

	lunchStart := types.NewClock(12, 30)
	morningEnd := lunchStart - types.NewClock(0, 30)
	if in.EndTime <= types.NewClock(13, 0) {
		morningEnd = in.EndTime
	}
	if morningEnd > cursor {
		day.Blocks = append(day.Blocks, types.SkeletonBlock{
			BlockType: types.BlockActivity, StartTime: cursor, EndTime: morningEnd,
			Theme: "Morning exploration", DesiredCategories: activities,
		})
		cursor = morningEnd
	}

	if in.EndTime > types.NewClock(13, 0) {
		if cursor > lunchStart {
			lunchStart = cursor
		}
		day.Blocks = append(day.Blocks, types.SkeletonBlock{
			BlockType: types.BlockMeal, StartTime: lunchStart, EndTime: lunchStart + types.NewClock(1, 0),
			Theme: "Lunch", DesiredCategories: []string{"restaurant"},
		})
		cursor = lunchStart + types.NewClock(1, 30)
	}

	dinnerStart := dinnerStartFor(in.EndTime)
	afternoonEnd := dinnerStart - types.NewClock(0, 30)
	if in.EndTime < types.NewClock(17, 0) {
		afternoonEnd = in.EndTime
	}
	if in.EndTime > types.NewClock(15, 0) && cursor < afternoonEnd {
		day.Blocks = append(day.Blocks, types.SkeletonBlock{
			BlockType: types.BlockActivity, StartTime: cursor, EndTime: afternoonEnd,
			Theme: "Afternoon exploration", DesiredCategories: activities,
		})
	}

	if in.EndTime >= types.NewClock(17, 0) {
		day.Blocks = append(day.Blocks, types.SkeletonBlock{
			BlockType: types.BlockMeal, StartTime: dinnerStart, EndTime: dinnerStart + types.NewClock(1, 30),
			Theme: "Dinner", DesiredCategories: []string{"restaurant"},
		})
	}

	if in.Nightlife || in.EndTime >= types.NewClock(21, 0) {
		nightStart := dinnerStart + types.NewClock(2, 0)
		if in.EndTime > nightStart {
			day.Blocks = append(day.Blocks, types.SkeletonBlock{
				BlockType: types.BlockNightlife, StartTime: nightStart, EndTime: in.EndTime,
				Theme: "Evening out", DesiredCategories: []string{"bar"},
			})
		}
	}
	return day
}

// dinnerStartFor keeps dinner at 19:00 on normal days, pulling it earlier on
// short days without ever starting before 17:00.
func dinnerStartFor(dayEnd types.Clock) types.Clock {
	start := types.NewClock(19, 0)
	if dayEnd < types.NewClock(20, 30) {
		start = dayEnd - types.NewClock(1, 30)
	}
	if floor := types.NewClock(17, 0); start < floor {
		start = floor
	}
	return start
}

func wantsNightlife(spec *types.TripSpec) bool {
	for _, interest := range spec.Interests {
		if strings.Contains(interest, "nightlife") || strings.Contains(interest, "club") {
			return true
		}
	}
	return false
}

// interestCategories maps canonical interests to catalog categories for
// activity blocks.
func interestCategories(spec *types.TripSpec) []string {
	mapping := map[string][]string{
		"museum":       {"museum", "art_gallery"},
		"art":          {"art_gallery", "museum"},
		"history":      {"museum", "attraction"},
		"architecture": {"attraction"},
		"nature":       {"park"},
		"shopping":     {"shopping"},
	}
	seen := make(map[string]bool)
	var out []string
	for _, interest := range spec.Interests {
		for _, cat := range mapping[interest] {
			if !seen[cat] {
				seen[cat] = true
				out = append(out, cat)
			}
		}
	}
	if len(out) == 0 {
		return []string{"attraction", "museum"}
	}
	return out
}

const macroSystemPrompt = `You are a travel planning assistant. Produce a day-by-day skeleton for a city trip as JSON only, no prose. Schema: {"days": [{"day_number": 1, "theme": "...", "blocks": [{"block_type": "meal|activity|nightlife|rest", "start_time": "HH:MM", "end_time": "HH:MM", "theme": "...", "desired_categories": ["..."]}]}]}. Honor the meal windows, give every day a distinct theme, and keep block times inside the waking hours.`

func macroPrompt(spec *types.TripSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %d days in %s for %d traveler(s).\n", spec.DayCount(), spec.City, spec.Travelers)
	fmt.Fprintf(&b, "Pace: %s. Budget: %s.\n", spec.Pace, spec.Budget)
	if len(spec.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s.\n", strings.Join(spec.Interests, ", "))
	}
	r := spec.Routine
	fmt.Fprintf(&b, "Awake %s-%s. Breakfast %s-%s, lunch %s-%s, dinner %s-%s.\n",
		r.WakeTime, r.SleepTime, r.BreakfastStart, r.BreakfastEnd,
		r.LunchStart, r.LunchEnd, r.DinnerStart, r.DinnerEnd)
	for key, value := range spec.AdditionalPreferences {
		fmt.Fprintf(&b, "Preference %s: %s\n", key, value)
	}
	return b.String()
}
