package types

import (
	"time"

	"github.com/google/uuid"
)

// SkeletonBlock is a typed, themed, timed slot without a concrete place.
type SkeletonBlock struct {
	BlockType         BlockType `json:"block_type"`
	StartTime         Clock     `json:"start_time"`
	EndTime           Clock     `json:"end_time"`
	Theme             string    `json:"theme,omitempty"`
	DesiredCategories []string  `json:"desired_categories,omitempty"`
}

// DaySkeleton is the macro planner's day-by-day structure.
type DaySkeleton struct {
	DayNumber int             `json:"day_number"`
	Date      time.Time       `json:"date"`
	Theme     string          `json:"theme,omitempty"`
	Blocks    []SkeletonBlock `json:"blocks"`
}

// POIPlanBlock records the ranked candidates picked for one skeleton block.
// Candidates are sorted by rank score descending; index 0 is the selection.
type POIPlanBlock struct {
	DayNumber  int            `json:"day_number"`
	BlockIndex int            `json:"block_index"`
	BlockTheme string         `json:"block_theme,omitempty"`
	BlockType  BlockType      `json:"block_type"`
	Candidates []POICandidate `json:"candidates"`
}

// Selected returns the intended selection, or nil when the block has none.
func (b *POIPlanBlock) Selected() *POICandidate {
	if len(b.Candidates) == 0 {
		return nil
	}
	return &b.Candidates[0]
}

// ItineraryBlock is a scheduled slot in the final itinerary. Rest and travel
// blocks carry no POI; POI-dependent fields are gated on presence.
type ItineraryBlock struct {
	BlockType            BlockType     `json:"block_type"`
	StartTime            Clock         `json:"start_time"`
	EndTime              Clock         `json:"end_time"`
	POI                  *POICandidate `json:"poi,omitempty"`
	TravelTimeFromPrev   int           `json:"travel_time_from_prev"`
	TravelDistanceMeters *int          `json:"travel_distance_meters,omitempty"`
	TravelPolyline       *string       `json:"travel_polyline,omitempty"`
	Notes                string        `json:"notes,omitempty"`
	GeoSuboptimal        bool          `json:"geo_suboptimal"`
}

type ItineraryDay struct {
	DayNumber int              `json:"day_number"`
	Date      time.Time        `json:"date"`
	Theme     string           `json:"theme,omitempty"`
	Blocks    []ItineraryBlock `json:"blocks"`
}

// Itinerary is the single row of planning artifacts owned by a trip.
// UpdatedAt doubles as the logical route version.
type Itinerary struct {
	TripID             uuid.UUID       `json:"trip_id"`
	MacroPlan          []DaySkeleton   `json:"macro_plan,omitempty"`
	POIPlan            []POIPlanBlock  `json:"poi_plan,omitempty"`
	Days               []ItineraryDay  `json:"days,omitempty"`
	CritiqueIssues     []CritiqueIssue `json:"critique_issues,omitempty"`
	ItineraryCreatedAt *time.Time      `json:"itinerary_created_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// RouteVersion is the logical version callers use for optimistic checks.
func (i *Itinerary) RouteVersion() int64 {
	return i.UpdatedAt.Unix()
}

// Day returns the day with the given 1-indexed number.
func (i *Itinerary) Day(dayNumber int) *ItineraryDay {
	for idx := range i.Days {
		if i.Days[idx].DayNumber == dayNumber {
			return &i.Days[idx]
		}
	}
	return nil
}

// UsedPOIIDs collects every poi id appearing across the itinerary days,
// optionally skipping one day number.
func (i *Itinerary) UsedPOIIDs(skipDayNumber int) map[string]bool {
	used := make(map[string]bool)
	for _, day := range i.Days {
		if day.DayNumber == skipDayNumber {
			continue
		}
		for _, block := range day.Blocks {
			if block.POI != nil {
				used[block.POI.ID] = true
			}
		}
	}
	return used
}
