package types

// District is a spatial cluster of POIs labeled with a single uppercase
// letter and named for its dominant category.
type District struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Center         GeoPoint       `json:"center"`
	POIs           []POICandidate `json:"pois"`
	CategoryCounts map[string]int `json:"category_counts"`
	AvgRating      float64        `json:"avg_rating"`
	TotalPOIs      int            `json:"total_pois"`
}

// Covers reports whether the district holds at least one POI for every
// requested category. An empty request is always covered.
func (d *District) Covers(categories []string) bool {
	for _, cat := range categories {
		if d.CategoryCounts[cat] == 0 {
			return false
		}
	}
	return true
}

// ClusteringResult is the transient per-trip output of the clusterer.
// DistrictIDs preserves the deterministic A, B, C, ... labeling order.
type ClusteringResult struct {
	Districts       map[string]*District `json:"districts"`
	DistrictIDs     []string             `json:"district_ids"`
	HotelDistrictID string               `json:"hotel_district_id,omitempty"`
	CityCenter      GeoPoint             `json:"city_center"`
}
