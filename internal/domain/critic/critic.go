// Package critic validates a finished itinerary against pace, meal coverage,
// time consistency, travel fatigue and sleep schedule rules.
package critic

import (
	"fmt"

	"github.com/voyplan/voyplan-api/internal/types"
)

const (
	paceSlowHours   = 7.0
	paceMediumHours = 9.0
	paceFastHours   = 12.0

	breakfastWindowStart = 6
	breakfastWindowEnd   = 11
	lunchWindowStart     = 11
	lunchWindowEnd       = 16
	dinnerWindowStart    = 17
	dinnerWindowEnd      = 23

	longTravelMinutes     = 45
	lateNightlifeHours    = 2.0
	intenseDayShare       = 0.90
	intenseStreakMinimum  = 3
	midnightCrossEndHour  = 6
	midnightCrossStartHr  = 18
)

// Critic runs the deterministic rule set. It holds no state; thresholds come
// from the trip's pace and routine.
type Critic struct{}

func New() *Critic { return &Critic{} }

// paceThresholdHours is the daily active-hours budget for a pace.
func paceThresholdHours(pace types.Pace) float64 {
	switch pace {
	case types.PaceSlow:
		return paceSlowHours
	case types.PaceFast:
		return paceFastHours
	default:
		return paceMediumHours
	}
}

// Critique inspects every day and returns the full list of findings.
func (c *Critic) Critique(spec *types.TripSpec, days []types.ItineraryDay) []types.CritiqueIssue {
	var issues []types.CritiqueIssue
	threshold := paceThresholdHours(spec.Pace)

	intenseStreak := 0
	streakStart := 0
	for _, day := range days {
		issues = append(issues, c.critiqueDay(spec, &day, threshold)...)

		if activeHours(&day) > threshold*intenseDayShare {
			if intenseStreak == 0 {
				streakStart = day.DayNumber
			}
			intenseStreak++
		} else {
			if intenseStreak >= intenseStreakMinimum {
				issues = append(issues, intenseStreakIssue(streakStart, intenseStreak))
			}
			intenseStreak = 0
		}
	}
	if intenseStreak >= intenseStreakMinimum {
		issues = append(issues, intenseStreakIssue(streakStart, intenseStreak))
	}
	return issues
}

func (c *Critic) critiqueDay(spec *types.TripSpec, day *types.ItineraryDay, threshold float64) []types.CritiqueIssue {
	var issues []types.CritiqueIssue
	dayNumber := day.DayNumber

	if hours := activeHours(day); hours > threshold {
		issues = append(issues, types.CritiqueIssue{
			Code:      types.IssueDayTooBusy,
			Severity:  types.SeverityWarning,
			Message:   fmt.Sprintf("Day %d schedules %.1f active hours against a %.0f hour pace budget.", dayNumber, hours, threshold),
			DayNumber: &dayNumber,
			Details:   map[string]any{"active_hours": hours, "threshold_hours": threshold},
		})
	}

	issues = append(issues, c.mealCoverage(day)...)

	for idx := range day.Blocks {
		block := &day.Blocks[idx]
		blockIndex := idx

		if block.EndTime <= block.StartTime && !crossesMidnight(block) {
			issues = append(issues, types.CritiqueIssue{
				Code:       types.IssueInvalidTimeRange,
				Severity:   types.SeverityError,
				Message:    fmt.Sprintf("Block %d on day %d ends at %s before it starts at %s.", idx, dayNumber, block.EndTime, block.StartTime),
				DayNumber:  &dayNumber,
				BlockIndex: &blockIndex,
			})
		}
		if idx+1 < len(day.Blocks) {
			next := &day.Blocks[idx+1]
			if block.EndTime > next.StartTime && !crossesMidnight(block) {
				issues = append(issues, types.CritiqueIssue{
					Code:       types.IssueBlockOverlap,
					Severity:   types.SeverityError,
					Message:    fmt.Sprintf("Block %d on day %d runs past the next block's %s start.", idx, dayNumber, next.StartTime),
					DayNumber:  &dayNumber,
					BlockIndex: &blockIndex,
				})
			}
		}
		if block.TravelTimeFromPrev > longTravelMinutes {
			issues = append(issues, types.CritiqueIssue{
				Code:       types.IssueLongTravel,
				Severity:   types.SeverityWarning,
				Message:    fmt.Sprintf("Getting to block %d on day %d takes %d minutes.", idx, dayNumber, block.TravelTimeFromPrev),
				DayNumber:  &dayNumber,
				BlockIndex: &blockIndex,
				Details:    map[string]any{"travel_minutes": block.TravelTimeFromPrev},
			})
		}
		if block.BlockType == types.BlockNightlife {
			if overshoot := nightlifeOvershootHours(block, spec.Routine.SleepTime); overshoot > lateNightlifeHours {
				issues = append(issues, types.CritiqueIssue{
					Code:       types.IssueLateNightlife,
					Severity:   types.SeverityInfo,
					Message:    fmt.Sprintf("Nightlife on day %d runs %.1f hours past the usual %s bedtime.", dayNumber, overshoot, spec.Routine.SleepTime),
					DayNumber:  &dayNumber,
					BlockIndex: &blockIndex,
				})
			}
		}
	}
	return issues
}

func (c *Critic) mealCoverage(day *types.ItineraryDay) []types.CritiqueIssue {
	breakfast, lunch, dinner := false, false, false
	for _, block := range day.Blocks {
		if block.BlockType != types.BlockMeal {
			continue
		}
		switch hour := block.StartTime.Hour(); {
		case hour >= breakfastWindowStart && hour < breakfastWindowEnd:
			breakfast = true
		case hour >= lunchWindowStart && hour < lunchWindowEnd:
			lunch = true
		case hour >= dinnerWindowStart && hour < dinnerWindowEnd:
			dinner = true
		}
	}

	dayNumber := day.DayNumber
	var issues []types.CritiqueIssue
	missing := func(code, meal string) types.CritiqueIssue {
		return types.CritiqueIssue{
			Code:      code,
			Severity:  types.SeverityWarning,
			Message:   fmt.Sprintf("Day %d has no %s planned.", dayNumber, meal),
			DayNumber: &dayNumber,
		}
	}
	if !breakfast {
		issues = append(issues, missing(types.IssueMissingBreakfast, "breakfast"))
	}
	if !lunch {
		issues = append(issues, missing(types.IssueMissingLunch, "lunch"))
	}
	if !dinner {
		issues = append(issues, missing(types.IssueMissingDinner, "dinner"))
	}
	return issues
}

func intenseStreakIssue(startDay, length int) types.CritiqueIssue {
	return types.CritiqueIssue{
		Code:     types.IssueConsecutiveIntensive,
		Severity: types.SeverityWarning,
		Message:  fmt.Sprintf("%d intense days in a row starting on day %d. Consider a lighter day in between.", length, startDay),
		Details:  map[string]any{"start_day": startDay, "length": length},
	}
}

// activeHours sums the durations of meal, activity and nightlife blocks.
func activeHours(day *types.ItineraryDay) float64 {
	total := 0
	for _, block := range day.Blocks {
		switch block.BlockType {
		case types.BlockMeal, types.BlockActivity, types.BlockNightlife:
			duration := block.EndTime.Minutes() - block.StartTime.Minutes()
			if duration < 0 {
				duration += 24 * 60
			}
			total += duration
		}
	}
	return float64(total) / 60.0
}

// crossesMidnight treats a block ending in the small hours after an evening
// start as valid even though end < start numerically.
func crossesMidnight(block *types.ItineraryBlock) bool {
	return block.EndTime.Hour()%24 < midnightCrossEndHour && block.StartTime.Hour() > midnightCrossStartHr
}

// nightlifeOvershootHours normalizes the block end across midnight before
// comparing against the sleep time.
func nightlifeOvershootHours(block *types.ItineraryBlock, sleep types.Clock) float64 {
	end := block.EndTime.Minutes()
	if end < block.StartTime.Minutes() {
		end += 24 * 60
	}
	return float64(end-sleep.Minutes()) / 60.0
}
