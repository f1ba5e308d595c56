package types

import (
	"time"

	"github.com/google/uuid"
)

type Pace string

const (
	PaceSlow   Pace = "slow"
	PaceMedium Pace = "medium"
	PaceFast   Pace = "fast"
)

type Budget string

const (
	BudgetLow    Budget = "low"
	BudgetMedium Budget = "medium"
	BudgetHigh   Budget = "high"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DailyRoutine holds the traveller's waking and meal windows.
type DailyRoutine struct {
	WakeTime       Clock `json:"wake_time"`
	SleepTime      Clock `json:"sleep_time"`
	BreakfastStart Clock `json:"breakfast_start"`
	BreakfastEnd   Clock `json:"breakfast_end"`
	LunchStart     Clock `json:"lunch_start"`
	LunchEnd       Clock `json:"lunch_end"`
	DinnerStart    Clock `json:"dinner_start"`
	DinnerEnd      Clock `json:"dinner_end"`
}

// DefaultDailyRoutine matches the windows assumed by the macro planner when
// a trip request carries none.
func DefaultDailyRoutine() DailyRoutine {
	return DailyRoutine{
		WakeTime:       NewClock(8, 0),
		SleepTime:      NewClock(23, 0),
		BreakfastStart: NewClock(8, 0),
		BreakfastEnd:   NewClock(10, 0),
		LunchStart:     NewClock(12, 30),
		LunchEnd:       NewClock(14, 0),
		DinnerStart:    NewClock(19, 0),
		DinnerEnd:      NewClock(21, 0),
	}
}

// StructuredPreference is a machine-readable wish the traveller attached to
// the trip, e.g. "michelin dinner at price level 4".
type StructuredPreference struct {
	Keyword    string    `json:"keyword,omitempty"`
	Category   string    `json:"category,omitempty"`
	PriceLevel *int      `json:"price_level,omitempty"`
	AppliesTo  BlockType `json:"applies_to,omitempty"`
}

// TripSpec is the normalized trip intent every planning stage reads from.
type TripSpec struct {
	ID                    uuid.UUID              `json:"id"`
	City                  string                 `json:"city"`
	CityCenter            GeoPoint               `json:"city_center"`
	StartDate             time.Time              `json:"start_date"`
	EndDate               time.Time              `json:"end_date"`
	Travelers             int                    `json:"travelers"`
	Pace                  Pace                   `json:"pace"`
	Budget                Budget                 `json:"budget"`
	Interests             []string               `json:"interests"`
	Routine               DailyRoutine           `json:"routine"`
	HotelName             string                 `json:"hotel_name,omitempty"`
	HotelLocation         *GeoPoint              `json:"hotel_location,omitempty"`
	AdditionalPreferences map[string]string      `json:"additional_preferences,omitempty"`
	StructuredPreferences []StructuredPreference `json:"structured_preferences,omitempty"`

	// Exactly one of UserID, DeviceID or IsLegacyPublic identifies the owner.
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	DeviceID       *string    `json:"device_id,omitempty"`
	IsLegacyPublic bool       `json:"is_legacy_public,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DayCount returns the number of itinerary days, inclusive of both ends.
func (t *TripSpec) DayCount() int {
	return int(t.EndDate.Sub(t.StartDate).Hours()/24) + 1
}

// DateForDay returns the calendar date of a 1-indexed day number.
func (t *TripSpec) DateForDay(dayNumber int) time.Time {
	return t.StartDate.AddDate(0, 0, dayNumber-1)
}

// AuthContext carries the caller identity resolved by the auth layer.
type AuthContext struct {
	UserID   *uuid.UUID
	DeviceID *string
}

// Own reports whether the caller may act on the trip.
func Own(trip *TripSpec, ctx AuthContext) bool {
	switch {
	case trip.UserID != nil && ctx.UserID != nil:
		return *trip.UserID == *ctx.UserID
	case trip.DeviceID != nil && ctx.DeviceID != nil:
		return *trip.DeviceID == *ctx.DeviceID
	default:
		return trip.IsLegacyPublic
	}
}

// GuestDevice tracks how many trips an unauthenticated device generated.
type GuestDevice struct {
	DeviceID            string    `json:"device_id"`
	GeneratedTripsCount int       `json:"generated_trips_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// SavedTrip is a user-managed bookmark of a planned trip.
type SavedTrip struct {
	ID            uuid.UUID      `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	TripID        uuid.UUID      `json:"trip_id"`
	CityName      string         `json:"city_name"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       time.Time      `json:"end_date"`
	HeroImage     string         `json:"hero_image,omitempty"`
	RouteSnapshot []ItineraryDay `json:"route_snapshot,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
