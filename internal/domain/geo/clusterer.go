package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/voyplan/voyplan-api/internal/types"
)

const (
	DefaultCellSizeKm         = 1.5
	DefaultMinPOIsPerDistrict = 5
	DefaultMaxDistricts       = 8

	kmPerDegreeLat = 110.574
	kmPerDegreeLon = 111.320
)

// Clusterer groups POIs into lettered districts on a fixed-size grid. Given
// the same POI list, city center and parameters it is fully deterministic.
type Clusterer struct {
	CellSizeKm         float64
	MinPOIsPerDistrict int
	MaxDistricts       int
}

func NewClusterer(cellSizeKm float64, minPOIs, maxDistricts int) *Clusterer {
	if cellSizeKm <= 0 {
		cellSizeKm = DefaultCellSizeKm
	}
	if minPOIs <= 0 {
		minPOIs = DefaultMinPOIsPerDistrict
	}
	if maxDistricts <= 0 {
		maxDistricts = DefaultMaxDistricts
	}
	return &Clusterer{CellSizeKm: cellSizeKm, MinPOIsPerDistrict: minPOIs, MaxDistricts: maxDistricts}
}

type cellKey struct {
	row, col int
}

type cell struct {
	key  cellKey
	pois []types.POICandidate
}

// Cluster assigns every POI with valid coordinates to a district. POIs
// without coordinates are dropped.
func (c *Clusterer) Cluster(pois []types.POICandidate, cityCenter types.GeoPoint, hotel *types.GeoPoint) *types.ClusteringResult {
	cells := make(map[cellKey]*cell)
	for _, poi := range pois {
		loc := poi.Location()
		if loc == nil {
			continue
		}
		key := c.cellFor(*loc)
		bucket, ok := cells[key]
		if !ok {
			bucket = &cell{key: key}
			cells[key] = bucket
		}
		bucket.pois = append(bucket.pois, poi)
	}

	ordered := orderedCells(cells)
	ordered = c.mergeSmallCells(ordered)
	ordered = c.capDistrictCount(ordered)

	result := &types.ClusteringResult{
		Districts:  make(map[string]*types.District, len(ordered)),
		CityCenter: cityCenter,
	}

	// Label largest districts first so A is always the densest area.
	sort.SliceStable(ordered, func(i, j int) bool {
		if len(ordered[i].pois) != len(ordered[j].pois) {
			return len(ordered[i].pois) > len(ordered[j].pois)
		}
		return lessKey(ordered[i].key, ordered[j].key)
	})

	for i, bucket := range ordered {
		if i >= 26 {
			break
		}
		id := string(rune('A' + i))
		district := buildDistrict(id, bucket.pois)
		result.Districts[id] = district
		result.DistrictIDs = append(result.DistrictIDs, id)
	}

	if hotel != nil {
		result.HotelDistrictID = nearestDistrictID(result, *hotel)
	}
	return result
}

func (c *Clusterer) cellFor(p types.GeoPoint) cellKey {
	lonScale := kmPerDegreeLon * math.Cos(p.Lat*math.Pi/180)
	return cellKey{
		row: int(math.Floor(p.Lat * kmPerDegreeLat / c.CellSizeKm)),
		col: int(math.Floor(p.Lon * lonScale / c.CellSizeKm)),
	}
}

func orderedCells(cells map[cellKey]*cell) []*cell {
	out := make([]*cell, 0, len(cells))
	for _, bucket := range cells {
		out = append(out, bucket)
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].key, out[j].key) })
	return out
}

func lessKey(a, b cellKey) bool {
	if a.row != b.row {
		return a.row < b.row
	}
	return a.col < b.col
}

// mergeSmallCells folds every cell below the minimum into the nearest cell
// at or above it, by Manhattan grid distance.
func (c *Clusterer) mergeSmallCells(cells []*cell) []*cell {
	var big, small []*cell
	for _, bucket := range cells {
		if len(bucket.pois) >= c.MinPOIsPerDistrict {
			big = append(big, bucket)
		} else {
			small = append(small, bucket)
		}
	}
	if len(big) == 0 {
		// Nothing clears the threshold; merge everything into one cell.
		if len(cells) == 0 {
			return nil
		}
		merged := &cell{key: cells[0].key}
		for _, bucket := range cells {
			merged.pois = append(merged.pois, bucket.pois...)
		}
		return []*cell{merged}
	}

	for _, bucket := range small {
		target := big[0]
		best := manhattan(bucket.key, target.key)
		for _, candidate := range big[1:] {
			if d := manhattan(bucket.key, candidate.key); d < best {
				best = d
				target = candidate
			}
		}
		target.pois = append(target.pois, bucket.pois...)
	}
	return big
}

// capDistrictCount merges the smallest cell into its nearest neighbor until
// the district count fits the configured maximum.
func (c *Clusterer) capDistrictCount(cells []*cell) []*cell {
	for len(cells) > c.MaxDistricts {
		smallest := 0
		for i := range cells {
			if len(cells[i].pois) < len(cells[smallest].pois) ||
				(len(cells[i].pois) == len(cells[smallest].pois) && lessKey(cells[i].key, cells[smallest].key)) {
				smallest = i
			}
		}

		nearest := -1
		best := math.MaxInt
		for i := range cells {
			if i == smallest {
				continue
			}
			if d := manhattan(cells[smallest].key, cells[i].key); d < best {
				best = d
				nearest = i
			}
		}
		cells[nearest].pois = append(cells[nearest].pois, cells[smallest].pois...)
		cells = append(cells[:smallest], cells[smallest+1:]...)
	}
	return cells
}

func manhattan(a, b cellKey) int {
	dr := a.row - b.row
	if dr < 0 {
		dr = -dr
	}
	dc := a.col - b.col
	if dc < 0 {
		dc = -dc
	}
	return dr + dc
}

func buildDistrict(id string, pois []types.POICandidate) *types.District {
	var latSum, lonSum, ratingSum float64
	rated := 0
	counts := make(map[string]int)
	for _, poi := range pois {
		loc := poi.Location()
		latSum += loc.Lat
		lonSum += loc.Lon
		counts[poi.Category]++
		if poi.Rating > 0 {
			ratingSum += poi.Rating
			rated++
		}
	}

	district := &types.District{
		ID:             id,
		Center:         types.GeoPoint{Lat: latSum / float64(len(pois)), Lon: lonSum / float64(len(pois))},
		POIs:           pois,
		CategoryCounts: counts,
		TotalPOIs:      len(pois),
	}
	if rated > 0 {
		district.AvgRating = ratingSum / float64(rated)
	}
	district.Name = fmt.Sprintf("District %s (%s)", id, dominantCategory(counts))
	return district
}

func dominantCategory(counts map[string]int) string {
	best := ""
	bestCount := -1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	if best == "" {
		return "mixed"
	}
	return best
}

func nearestDistrictID(res *types.ClusteringResult, p types.GeoPoint) string {
	bestID := ""
	best := math.MaxFloat64
	for _, id := range res.DistrictIDs {
		if d := Haversine(res.Districts[id].Center, p); d < best {
			best = d
			bestID = id
		}
	}
	return bestID
}

// NearestDistrict returns the closest district whose category counts cover
// the requested categories, falling back to the closest district overall
// when none qualifies.
func NearestDistrict(res *types.ClusteringResult, p types.GeoPoint, categories []string) *types.District {
	var fallback *types.District
	fallbackDist := math.MaxFloat64
	var best *types.District
	bestDist := math.MaxFloat64

	for _, id := range res.DistrictIDs {
		district := res.Districts[id]
		d := Haversine(district.Center, p)
		if d < fallbackDist {
			fallbackDist = d
			fallback = district
		}
		if district.Covers(categories) && d < bestDist {
			bestDist = d
			best = district
		}
	}
	if best != nil {
		return best
	}
	return fallback
}
