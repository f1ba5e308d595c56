package types

type BlockType string

const (
	BlockMeal      BlockType = "meal"
	BlockActivity  BlockType = "activity"
	BlockNightlife BlockType = "nightlife"
	BlockRest      BlockType = "rest"
	BlockTravel    BlockType = "travel"
)

// NeedsPOI reports whether a block of this type carries a place.
func (b BlockType) NeedsPOI() bool {
	return b == BlockMeal || b == BlockActivity || b == BlockNightlife
}

const BusinessStatusOperational = "OPERATIONAL"

// POICandidate is a cached place of interest eligible for selection into a
// block. Records are shared by reference across trips through the catalog.
type POICandidate struct {
	ID               string   `json:"poi_id"`
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	Tags             []string `json:"tags,omitempty"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       *int     `json:"price_level,omitempty"`
	BusinessStatus   string   `json:"business_status,omitempty"`
	OpenNow          *bool    `json:"open_now,omitempty"`
	Address          string   `json:"address,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	Description      string   `json:"description,omitempty"`
	Reviews          []string `json:"reviews,omitempty"`
	RankScore        float64  `json:"rank_score"`
	Source           string   `json:"source,omitempty"`
	ExternalID       string   `json:"external_id,omitempty"`
}

// Location returns the candidate coordinates, or nil when unknown.
func (p *POICandidate) Location() *GeoPoint {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	return &GeoPoint{Lat: *p.Latitude, Lon: *p.Longitude}
}

// PlaceDetails is the richer record returned by the external catalog for a
// single place.
type PlaceDetails struct {
	POICandidate
	Website      string            `json:"website,omitempty"`
	PhoneNumber  string            `json:"phone_number,omitempty"`
	OpeningHours map[string]string `json:"opening_hours,omitempty"`
	Photos       []string          `json:"photos,omitempty"`
	ServesBeer   bool              `json:"serves_beer,omitempty"`
	ServesDinner bool              `json:"serves_dinner,omitempty"`
}
