package types

type TravelMode string

const (
	TravelModeDrive   TravelMode = "DRIVE"
	TravelModeWalk    TravelMode = "WALK"
	TravelModeBicycle TravelMode = "BICYCLE"
	TravelModeTransit TravelMode = "TRANSIT"
)

// TravelEstimate is the result of a travel-time lookup between two points.
// DistanceMeters and Polyline are nil when only a heuristic estimate was
// available.
type TravelEstimate struct {
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceMeters  *int    `json:"distance_meters,omitempty"`
	Polyline        *string `json:"polyline,omitempty"`
}
