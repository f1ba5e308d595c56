package critic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voyplan-api/internal/types"
)

func mediumSpec() *types.TripSpec {
	return &types.TripSpec{
		Pace:    types.PaceMedium,
		Routine: types.DefaultDailyRoutine(),
	}
}

func block(blockType types.BlockType, start, end types.Clock) types.ItineraryBlock {
	return types.ItineraryBlock{BlockType: blockType, StartTime: start, EndTime: end}
}

func fullDay(dayNumber int) types.ItineraryDay {
	return types.ItineraryDay{
		DayNumber: dayNumber,
		Blocks: []types.ItineraryBlock{
			block(types.BlockMeal, types.NewClock(8, 0), types.NewClock(9, 0)),
			block(types.BlockActivity, types.NewClock(9, 30), types.NewClock(12, 0)),
			block(types.BlockMeal, types.NewClock(12, 30), types.NewClock(13, 30)),
			block(types.BlockActivity, types.NewClock(14, 0), types.NewClock(16, 0)),
			block(types.BlockMeal, types.NewClock(19, 0), types.NewClock(20, 30)),
		},
	}
}

func codesOf(issues []types.CritiqueIssue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.Code)
	}
	return out
}

func TestCritique_CleanDayHasNoIssues(t *testing.T) {
	issues := New().Critique(mediumSpec(), []types.ItineraryDay{fullDay(1)})
	assert.Empty(t, issues)
}

func TestCritique_LoneActivityMissesAllMeals(t *testing.T) {
	day := types.ItineraryDay{
		DayNumber: 1,
		Blocks: []types.ItineraryBlock{
			block(types.BlockActivity, types.NewClock(10, 0), types.NewClock(18, 0)),
		},
	}

	issues := New().Critique(mediumSpec(), []types.ItineraryDay{day})
	codes := codesOf(issues)
	assert.Contains(t, codes, types.IssueMissingBreakfast)
	assert.Contains(t, codes, types.IssueMissingLunch)
	assert.Contains(t, codes, types.IssueMissingDinner)
	for _, issue := range issues {
		assert.Equal(t, types.SeverityWarning, issue.Severity)
	}
}

func TestCritique_DayTooBusy(t *testing.T) {
	day := fullDay(1)
	// Stretch the afternoon activity to blow past the 9h medium budget.
	day.Blocks[3].EndTime = types.NewClock(18, 45)

	issues := New().Critique(mediumSpec(), []types.ItineraryDay{day})
	assert.Contains(t, codesOf(issues), types.IssueDayTooBusy)

	spec := mediumSpec()
	spec.Pace = types.PaceFast
	issues = New().Critique(spec, []types.ItineraryDay{day})
	assert.NotContains(t, codesOf(issues), types.IssueDayTooBusy)
}

func TestCritique_PaceSetsBusyThreshold(t *testing.T) {
	// 8 active hours: over the 7h slow budget, under medium's 9h and fast's 12h.
	day := types.ItineraryDay{
		DayNumber: 1,
		Blocks: []types.ItineraryBlock{
			block(types.BlockMeal, types.NewClock(8, 0), types.NewClock(9, 0)),
			block(types.BlockActivity, types.NewClock(9, 0), types.NewClock(13, 0)),
			block(types.BlockMeal, types.NewClock(13, 0), types.NewClock(14, 0)),
			block(types.BlockActivity, types.NewClock(14, 0), types.NewClock(15, 0)),
			block(types.BlockMeal, types.NewClock(19, 0), types.NewClock(20, 0)),
		},
	}

	for pace, busy := range map[types.Pace]bool{
		types.PaceSlow:   true,
		types.PaceMedium: false,
		types.PaceFast:   false,
	} {
		spec := mediumSpec()
		spec.Pace = pace
		codes := codesOf(New().Critique(spec, []types.ItineraryDay{day}))
		if busy {
			assert.Contains(t, codes, types.IssueDayTooBusy, "pace %s", pace)
		} else {
			assert.NotContains(t, codes, types.IssueDayTooBusy, "pace %s", pace)
		}
	}
}

func TestCritique_InvalidTimeRange(t *testing.T) {
	day := fullDay(1)
	day.Blocks[1].EndTime = day.Blocks[1].StartTime

	issues := New().Critique(mediumSpec(), []types.ItineraryDay{day})
	require.Contains(t, codesOf(issues), types.IssueInvalidTimeRange)
	for _, issue := range issues {
		if issue.Code == types.IssueInvalidTimeRange {
			assert.Equal(t, types.SeverityError, issue.Severity)
			require.NotNil(t, issue.BlockIndex)
			assert.Equal(t, 1, *issue.BlockIndex)
		}
	}
}

func TestCritique_MidnightCrossingNightlifeIsValid(t *testing.T) {
	day := fullDay(1)
	day.Blocks = append(day.Blocks,
		block(types.BlockNightlife, types.NewClock(22, 0), types.NewClock(1, 0)))

	issues := New().Critique(mediumSpec(), []types.ItineraryDay{day})
	assert.NotContains(t, codesOf(issues), types.IssueInvalidTimeRange)
}

func TestCritique_BlockOverlap(t *testing.T) {
	day := fullDay(1)
	day.Blocks[0].EndTime = types.NewClock(10, 0)

	issues := New().Critique(mediumSpec(), []types.ItineraryDay{day})
	assert.Contains(t, codesOf(issues), types.IssueBlockOverlap)
}

func TestCritique_LongTravel(t *testing.T) {
	day := fullDay(1)
	day.Blocks[3].TravelTimeFromPrev = 50

	issues := New().Critique(mediumSpec(), []types.ItineraryDay{day})
	require.Contains(t, codesOf(issues), types.IssueLongTravel)
}

func TestCritique_LateNightlife(t *testing.T) {
	day := fullDay(1)
	// Sleep is 23:00; ending at 01:30 overshoots by 2.5 hours.
	day.Blocks = append(day.Blocks,
		block(types.BlockNightlife, types.NewClock(22, 0), types.NewClock(1, 30)))

	issues := New().Critique(mediumSpec(), []types.ItineraryDay{day})
	found := false
	for _, issue := range issues {
		if issue.Code == types.IssueLateNightlife {
			found = true
			assert.Equal(t, types.SeverityInfo, issue.Severity)
		}
	}
	assert.True(t, found)
}

func TestCritique_ConsecutiveIntenseDays(t *testing.T) {
	intense := func(n int) types.ItineraryDay {
		day := fullDay(n)
		// 9 active hours clears 90% of the 9h medium budget.
		day.Blocks[3].EndTime = types.NewClock(17, 0)
		return day
	}

	issues := New().Critique(mediumSpec(), []types.ItineraryDay{
		intense(1), intense(2), intense(3),
	})
	assert.Contains(t, codesOf(issues), types.IssueConsecutiveIntensive)

	issues = New().Critique(mediumSpec(), []types.ItineraryDay{
		intense(1), intense(2), fullDay(3),
	})
	assert.NotContains(t, codesOf(issues), types.IssueConsecutiveIntensive)
}
