package types

type IssueSeverity string

const (
	SeverityInfo    IssueSeverity = "info"
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// Critique issue codes.
const (
	IssueDayTooBusy           = "DAY_TOO_BUSY"
	IssueMissingBreakfast     = "MISSING_BREAKFAST"
	IssueMissingLunch         = "MISSING_LUNCH"
	IssueMissingDinner        = "MISSING_DINNER"
	IssueInvalidTimeRange     = "INVALID_TIME_RANGE"
	IssueBlockOverlap         = "BLOCK_OVERLAP"
	IssueLongTravel           = "LONG_TRAVEL"
	IssueLateNightlife        = "LATE_NIGHTLIFE"
	IssueConsecutiveIntensive = "CONSECUTIVE_INTENSE_DAYS"
)

// CritiqueIssue is one typed finding from the deterministic trip critic.
type CritiqueIssue struct {
	Code       string         `json:"code"`
	Severity   IssueSeverity  `json:"severity"`
	Message    string         `json:"message"`
	DayNumber  *int           `json:"day_number,omitempty"`
	BlockIndex *int           `json:"block_index,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}
