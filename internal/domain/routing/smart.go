package routing

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voyplan/voyplan-api/internal/domain/catalog"
	"github.com/voyplan/voyplan-api/internal/domain/geo"
	"github.com/voyplan/voyplan-api/internal/domain/scoring"
	"github.com/voyplan/voyplan-api/internal/domain/travel"
	"github.com/voyplan/voyplan-api/internal/types"
	"github.com/voyplan/voyplan-api/pkg/config"
)

const (
	poolPerCategory     = 100
	poolMinViable       = 10
	poolFallbackTop     = 30
	lastResortMinRating = 4.0
	topScoresPerDist    = 5
	repairPasses        = 2
)

// SmartRouter builds the whole itinerary from districts: pool, cluster,
// per-day district plan, in-district selection, reorder, repair, annotate.
type SmartRouter struct {
	logger    *slog.Logger
	catalog   catalog.Service
	travel    travel.Service
	districts *DistrictPlanner
	clusterer *geo.Clusterer
	cfg       config.PlannerConfig
}

func NewSmartRouter(catalogSvc catalog.Service, travelSvc travel.Service, districts *DistrictPlanner, cfg config.PlannerConfig, logger *slog.Logger) *SmartRouter {
	return &SmartRouter{
		logger:    logger,
		catalog:   catalogSvc,
		travel:    travelSvc,
		districts: districts,
		clusterer: geo.NewClusterer(cfg.CellSizeKm, cfg.MinPOIsPerDistrict, cfg.MaxDistricts),
		cfg:       cfg,
	}
}

func (r *SmartRouter) BuildItinerary(ctx context.Context, spec *types.TripSpec, macro []types.DaySkeleton, profile *types.PreferenceProfile) ([]types.ItineraryDay, error) {
	ctx, span := otel.Tracer("SmartRouter").Start(ctx, "BuildItinerary", trace.WithAttributes(
		attribute.String("city", spec.City),
		attribute.Int("days", len(macro)),
	))
	defer span.End()

	pool, err := r.fetchPool(ctx, spec, macro, profile)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	clustering := r.clusterer.Cluster(pool, spec.CityCenter, spec.HotelLocation)
	if len(clustering.DistrictIDs) == 0 {
		r.logger.WarnContext(ctx, "no districts could be built", slog.String("city", spec.City))
	}

	scorer := scoring.NewScorer(profile, r.cfg.DistanceWeight)
	districtScores := r.scoreDistricts(clustering, scorer)

	selected := make(map[string]bool)
	var days []types.ItineraryDay
	var prevAnchor *types.GeoPoint
	prevDistrictID := ""

	for di := range macro {
		skeleton := &macro[di]
		plan := r.districts.PlanDay(ctx, DayPlanInput{
			Skeleton:       skeleton,
			Clustering:     clustering,
			DistrictScores: districtScores,
			PrevAnchor:     prevAnchor,
			PrevDistrictID: prevDistrictID,
		})

		day, blockDistricts := r.buildDay(skeleton, clustering, scorer, plan, selected, spec, prevAnchor)
		r.reorderWithinDistricts(&day, blockDistricts, dayStartAnchor(spec, prevAnchor))
		for pass := 0; pass < repairPasses; pass++ {
			r.repairLongHops(&day, blockDistricts, clustering, scorer, selected)
		}
		r.annotateTravel(ctx, &day)

		if anchor := lastPOILocation(&day); anchor != nil {
			prevAnchor = anchor
			if d := geo.NearestDistrict(clustering, *anchor, nil); d != nil {
				prevDistrictID = d.ID
			}
		}
		days = append(days, day)
	}

	span.SetStatus(codes.Ok, "")
	return days, nil
}

// fetchPool gathers up to poolPerCategory candidates per distinct category,
// deduped and rating-filtered. A thin pool keeps its top entries unfiltered.
func (r *SmartRouter) fetchPool(ctx context.Context, spec *types.TripSpec, macro []types.DaySkeleton, profile *types.PreferenceProfile) ([]types.POICandidate, error) {
	categories := categoriesAcross(macro)
	reqs := make([]catalog.SearchRequest, 0, len(categories))
	for _, cat := range categories {
		reqs = append(reqs, catalog.SearchRequest{
			City:      spec.City,
			Center:    spec.CityCenter,
			Category:  cat,
			BlockType: blockTypeForCategory(cat),
			Limit:     poolPerCategory,
		})
	}

	batches, err := r.catalog.SearchPOIsBulk(ctx, reqs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var pool []types.POICandidate
	for _, batch := range batches {
		for _, c := range batch {
			if c.ID == "" || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			pool = append(pool, c)
		}
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].RankScore > pool[j].RankScore })

	filtered := make([]types.POICandidate, 0, len(pool))
	for _, c := range pool {
		if c.Rating >= profile.MinRating {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) < poolMinViable {
		if len(pool) > poolFallbackTop {
			return pool[:poolFallbackTop], nil
		}
		return pool, nil
	}
	return filtered, nil
}

// scoreDistricts averages each district's top-5 candidate scores so the
// district planner can prefer areas dense in preferred places.
func (r *SmartRouter) scoreDistricts(clustering *types.ClusteringResult, scorer *scoring.Scorer) map[string]float64 {
	scores := make(map[string]float64, len(clustering.DistrictIDs))
	for _, id := range clustering.DistrictIDs {
		district := clustering.Districts[id]
		blockScores := make([]float64, 0, len(district.POIs))
		for i := range district.POIs {
			blockScores = append(blockScores, scorer.Score(&district.POIs[i], types.BlockActivity, nil, &district.Center))
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(blockScores)))
		n := min(topScoresPerDist, len(blockScores))
		if n == 0 {
			continue
		}
		sum := 0.0
		for _, s := range blockScores[:n] {
			sum += s
		}
		scores[id] = sum / float64(n)
	}
	return scores
}

// buildDay fills each skeleton block from its assigned district, keeping the
// skeleton order. Non-POI blocks carry their theme as a note.
func (r *SmartRouter) buildDay(skeleton *types.DaySkeleton, clustering *types.ClusteringResult, scorer *scoring.Scorer, plan map[int]string, selected map[string]bool, spec *types.TripSpec, prevAnchor *types.GeoPoint) (types.ItineraryDay, []string) {
	day := types.ItineraryDay{
		DayNumber: skeleton.DayNumber,
		Date:      skeleton.Date,
		Theme:     skeleton.Theme,
	}
	blockDistricts := make([]string, len(skeleton.Blocks))
	anchor := dayStartAnchor(spec, prevAnchor)

	for idx, sb := range skeleton.Blocks {
		block := types.ItineraryBlock{
			BlockType: sb.BlockType,
			StartTime: sb.StartTime,
			EndTime:   sb.EndTime,
		}
		blockDistricts[idx] = plan[idx]

		if !sb.BlockType.NeedsPOI() {
			block.Notes = sb.Theme
			day.Blocks = append(day.Blocks, block)
			continue
		}

		district := clustering.Districts[plan[idx]]
		candidates := r.districtCandidates(district, clustering, blockCategories(&sb), scorer, selected)
		if len(candidates) > 0 {
			var dayCenter *types.GeoPoint
			if district != nil {
				dayCenter = &district.Center
			}
			best := pickBest(candidates, sb.BlockType, scorer, anchor, dayCenter)
			block.POI = best
			selected[best.ID] = true
			if loc := best.Location(); loc != nil {
				anchor = loc
			}
		}
		day.Blocks = append(day.Blocks, block)
	}
	return day, blockDistricts
}

// districtCandidates draws from the assigned district, widening to the whole
// city at each rating tier before relaxing the floor further. The floor only
// drops below lastResortMinRating once both scopes came up thin at it.
func (r *SmartRouter) districtCandidates(district *types.District, clustering *types.ClusteringResult, categories []string, scorer *scoring.Scorer, selected map[string]bool) []*types.POICandidate {
	minRating := scorer.Profile().MinRating
	tiers := []float64{minRating, lastResortMinRating, 0}

	pools := [][]types.POICandidate{}
	if district != nil {
		pools = append(pools, district.POIs)
	}
	all := make([]types.POICandidate, 0)
	for _, id := range clustering.DistrictIDs {
		if district != nil && id == district.ID {
			continue
		}
		all = append(all, clustering.Districts[id].POIs...)
	}
	pools = append(pools, all)

	for _, tier := range tiers {
		for _, pool := range pools {
			out := filterPool(pool, categories, tier, selected)
			if len(out) >= r.cfg.DistrictPOIMinCandidates {
				return out
			}
			if len(out) > 0 && tier == 0 {
				return out
			}
		}
	}
	return nil
}

func filterPool(pool []types.POICandidate, categories []string, minRating float64, selected map[string]bool) []*types.POICandidate {
	wanted := make(map[string]bool, len(categories))
	for _, cat := range categories {
		wanted[cat] = true
	}
	var out []*types.POICandidate
	for i := range pool {
		c := &pool[i]
		if selected[c.ID] || c.Location() == nil {
			continue
		}
		if len(wanted) > 0 && !wanted[c.Category] {
			continue
		}
		if c.Rating < minRating {
			continue
		}
		out = append(out, c)
	}
	return out
}

func pickBest(candidates []*types.POICandidate, blockType types.BlockType, scorer *scoring.Scorer, anchor, dayCenter *types.GeoPoint) *types.POICandidate {
	best := candidates[0]
	bestScore := scorer.Score(best, blockType, anchor, dayCenter)
	for _, c := range candidates[1:] {
		if s := scorer.Score(c, blockType, anchor, dayCenter); s > bestScore {
			best = c
			bestScore = s
		}
	}
	return best
}

// reorderWithinDistricts applies nearest-neighbor ordering to runs of
// reorderable blocks that share a district.
func (r *SmartRouter) reorderWithinDistricts(day *types.ItineraryDay, blockDistricts []string, startAnchor *types.GeoPoint) {
	anchor := startAnchor
	i := 0
	for i < len(day.Blocks) {
		if !reorderable(&day.Blocks[i]) {
			if loc := blockLocation(&day.Blocks[i]); loc != nil {
				anchor = loc
			}
			i++
			continue
		}
		j := i
		for j < len(day.Blocks) && reorderable(&day.Blocks[j]) && blockDistricts[j] == blockDistricts[i] {
			j++
		}
		if j-i > 1 {
			reorderRun(day.Blocks[i:j], anchor)
		}
		if loc := blockLocation(&day.Blocks[j-1]); loc != nil {
			anchor = loc
		}
		i = j
	}
}

// reorderRun greedily orders the run's POIs by distance from the anchor,
// swapping POIs while the block time slots stay put.
func reorderRun(blocks []types.ItineraryBlock, anchor *types.GeoPoint) {
	pois := make([]*types.POICandidate, len(blocks))
	for i := range blocks {
		pois[i] = blocks[i].POI
	}

	current := anchor
	for i := 0; i < len(pois); i++ {
		best := i
		for j := i + 1; j < len(pois); j++ {
			if current == nil {
				break
			}
			bl, jl := pois[best].Location(), pois[j].Location()
			if bl == nil || jl == nil {
				continue
			}
			if geo.Haversine(*current, *jl) < geo.Haversine(*current, *bl) {
				best = j
			}
		}
		pois[i], pois[best] = pois[best], pois[i]
		if loc := pois[i].Location(); loc != nil {
			current = loc
		}
	}
	for i := range blocks {
		blocks[i].POI = pois[i]
	}
}

// repairLongHops swaps in a district alternative whenever a hop exceeds the
// configured straight-line limit and the alternative shortens the worse side.
func (r *SmartRouter) repairLongHops(day *types.ItineraryDay, blockDistricts []string, clustering *types.ClusteringResult, scorer *scoring.Scorer, selected map[string]bool) {
	for idx := range day.Blocks {
		block := &day.Blocks[idx]
		if block.POI == nil || block.POI.Location() == nil {
			continue
		}
		prev := neighborLocation(day, idx, -1)
		next := neighborLocation(day, idx, +1)
		worst := hopStress(block.POI.Location(), prev, next)
		if worst <= r.cfg.MaxHopDistanceKm {
			continue
		}

		district := clustering.Districts[blockDistricts[idx]]
		if district == nil {
			continue
		}
		var replacement *types.POICandidate
		for i := range district.POIs {
			c := &district.POIs[i]
			if selected[c.ID] || c.ID == block.POI.ID || c.Location() == nil {
				continue
			}
			if c.Category != block.POI.Category {
				continue
			}
			if stress := hopStress(c.Location(), prev, next); stress < worst {
				worst = stress
				replacement = c
			}
		}
		if replacement != nil {
			delete(selected, block.POI.ID)
			selected[replacement.ID] = true
			block.POI = replacement
		}
	}
}

// hopStress is the worse of the two straight-line hops around a point.
func hopStress(at, prev, next *types.GeoPoint) float64 {
	worst := 0.0
	if prev != nil {
		worst = geo.Haversine(*prev, *at)
	}
	if next != nil {
		if d := geo.Haversine(*at, *next); d > worst {
			worst = d
		}
	}
	return worst
}

// annotateTravel fills the travel fields of every POI-bearing block.
func (r *SmartRouter) annotateTravel(ctx context.Context, day *types.ItineraryDay) {
	var prev *types.GeoPoint
	for idx := range day.Blocks {
		block := &day.Blocks[idx]
		loc := blockLocation(block)
		if loc == nil {
			continue
		}
		if prev == nil {
			block.TravelTimeFromPrev = 0
			prev = loc
			continue
		}

		estimate, err := r.travel.EstimateTravel(ctx, *prev, *loc, types.TravelModeWalk)
		if err != nil {
			estimate = travel.FallbackEstimate(*prev, *loc, types.TravelModeWalk)
		}
		block.TravelTimeFromPrev = int(estimate.DurationMinutes)
		block.TravelDistanceMeters = estimate.DistanceMeters
		block.TravelPolyline = estimate.Polyline
		block.GeoSuboptimal = block.TravelTimeFromPrev > r.cfg.MaxTravelMinutesPerHop
		prev = loc
	}
}

func neighborLocation(day *types.ItineraryDay, idx, dir int) *types.GeoPoint {
	for i := idx + dir; i >= 0 && i < len(day.Blocks); i += dir {
		if loc := blockLocation(&day.Blocks[i]); loc != nil {
			return loc
		}
	}
	return nil
}

func blockLocation(block *types.ItineraryBlock) *types.GeoPoint {
	if block.POI == nil {
		return nil
	}
	return block.POI.Location()
}

func reorderable(block *types.ItineraryBlock) bool {
	if block.POI == nil || block.POI.Location() == nil {
		return false
	}
	return block.BlockType == types.BlockActivity || block.BlockType == types.BlockNightlife
}

func lastPOILocation(day *types.ItineraryDay) *types.GeoPoint {
	for i := len(day.Blocks) - 1; i >= 0; i-- {
		if loc := blockLocation(&day.Blocks[i]); loc != nil {
			return loc
		}
	}
	return nil
}

func dayStartAnchor(spec *types.TripSpec, prevAnchor *types.GeoPoint) *types.GeoPoint {
	if spec.HotelLocation != nil {
		return spec.HotelLocation
	}
	if prevAnchor != nil {
		return prevAnchor
	}
	return &spec.CityCenter
}

func categoriesAcross(macro []types.DaySkeleton) []string {
	seen := make(map[string]bool)
	var out []string
	for _, day := range macro {
		for _, block := range day.Blocks {
			if !block.BlockType.NeedsPOI() {
				continue
			}
			for _, cat := range blockCategories(&block) {
				if !seen[cat] {
					seen[cat] = true
					out = append(out, cat)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func blockTypeForCategory(category string) types.BlockType {
	switch category {
	case "restaurant", "cafe":
		return types.BlockMeal
	case "bar", "nightlife":
		return types.BlockNightlife
	default:
		return types.BlockActivity
	}
}
