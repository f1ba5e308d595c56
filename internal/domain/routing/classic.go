package routing

import (
	"context"
	"log/slog"

	"github.com/voyplan/voyplan-api/internal/domain/geo"
	"github.com/voyplan/voyplan-api/internal/domain/travel"
	"github.com/voyplan/voyplan-api/internal/types"
	"github.com/voyplan/voyplan-api/pkg/config"
)

// ClassicOptimizer turns a POI plan into final days: selected candidate per
// block, permutation search over small reorderable clusters, travel
// annotations.
type ClassicOptimizer struct {
	logger *slog.Logger
	travel travel.Service
	cfg    config.PlannerConfig
}

func NewClassicOptimizer(travelSvc travel.Service, cfg config.PlannerConfig, logger *slog.Logger) *ClassicOptimizer {
	return &ClassicOptimizer{logger: logger, travel: travelSvc, cfg: cfg}
}

func (o *ClassicOptimizer) BuildItinerary(ctx context.Context, spec *types.TripSpec, macro []types.DaySkeleton, poiPlan []types.POIPlanBlock) ([]types.ItineraryDay, error) {
	planByDay := make(map[int][]types.POIPlanBlock)
	for _, block := range poiPlan {
		planByDay[block.DayNumber] = append(planByDay[block.DayNumber], block)
	}

	var days []types.ItineraryDay
	var prevAnchor *types.GeoPoint
	for di := range macro {
		skeleton := &macro[di]
		day := o.buildDay(skeleton, planByDay[skeleton.DayNumber])
		o.optimizeDay(&day, dayStartAnchor(spec, prevAnchor))
		o.annotateTravel(ctx, &day)

		if anchor := lastPOILocation(&day); anchor != nil {
			prevAnchor = anchor
		}
		days = append(days, day)
	}
	return days, nil
}

func (o *ClassicOptimizer) buildDay(skeleton *types.DaySkeleton, plan []types.POIPlanBlock) types.ItineraryDay {
	byIndex := make(map[int]*types.POIPlanBlock, len(plan))
	for i := range plan {
		byIndex[plan[i].BlockIndex] = &plan[i]
	}

	day := types.ItineraryDay{
		DayNumber: skeleton.DayNumber,
		Date:      skeleton.Date,
		Theme:     skeleton.Theme,
	}
	for idx, sb := range skeleton.Blocks {
		block := types.ItineraryBlock{
			BlockType: sb.BlockType,
			StartTime: sb.StartTime,
			EndTime:   sb.EndTime,
		}
		if !sb.BlockType.NeedsPOI() {
			block.Notes = sb.Theme
		} else if planned, ok := byIndex[idx]; ok {
			block.POI = planned.Selected()
		}
		day.Blocks = append(day.Blocks, block)
	}
	return day
}

// optimizeDay reorders each maximal run of reorderable blocks by exhaustive
// permutation, bounded by the configured cluster size. Meals stay put.
func (o *ClassicOptimizer) optimizeDay(day *types.ItineraryDay, startAnchor *types.GeoPoint) {
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
		for j < len(day.Blocks) && reorderable(&day.Blocks[j]) && j-i < o.cfg.MaxOptimizationBlocks {
			j++
		}
		if j-i > 1 {
			next := neighborLocation(day, j-1, +1)
			o.permuteCluster(day.Blocks[i:j], anchor, next)
		}
		if loc := blockLocation(&day.Blocks[j-1]); loc != nil {
			anchor = loc
		}
		i = j
	}
}

// permuteCluster tries every ordering of the cluster's POIs and keeps the one
// with the smallest anchored haversine path cost.
func (o *ClassicOptimizer) permuteCluster(blocks []types.ItineraryBlock, prev, next *types.GeoPoint) {
	pois := make([]*types.POICandidate, len(blocks))
	for i := range blocks {
		pois[i] = blocks[i].POI
	}

	best := make([]*types.POICandidate, len(pois))
	copy(best, pois)
	bestCost := pathCost(pois, prev, next)

	permute(pois, 0, func(order []*types.POICandidate) {
		if cost := pathCost(order, prev, next); cost < bestCost {
			bestCost = cost
			copy(best, order)
		}
	})

	for i := range blocks {
		blocks[i].POI = best[i]
	}
}

func permute(items []*types.POICandidate, k int, visit func([]*types.POICandidate)) {
	if k == len(items) {
		visit(items)
		return
	}
	for i := k; i < len(items); i++ {
		items[k], items[i] = items[i], items[k]
		permute(items, k+1, visit)
		items[k], items[i] = items[i], items[k]
	}
}

func pathCost(order []*types.POICandidate, prev, next *types.GeoPoint) float64 {
	cost := 0.0
	current := prev
	for _, poi := range order {
		loc := poi.Location()
		if loc == nil {
			continue
		}
		if current != nil {
			cost += geo.Haversine(*current, *loc)
		}
		current = loc
	}
	if current != nil && next != nil {
		cost += geo.Haversine(*current, *next)
	}
	return cost
}

func (o *ClassicOptimizer) annotateTravel(ctx context.Context, day *types.ItineraryDay) {
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

		estimate, err := o.travel.EstimateTravel(ctx, *prev, *loc, types.TravelModeWalk)
		if err != nil {
			estimate = travel.FallbackEstimate(*prev, *loc, types.TravelModeWalk)
		}
		block.TravelTimeFromPrev = int(estimate.DurationMinutes)
		block.TravelDistanceMeters = estimate.DistanceMeters
		block.TravelPolyline = estimate.Polyline
		block.GeoSuboptimal = block.TravelTimeFromPrev > o.cfg.MaxTravelMinutesPerHop
		prev = loc
	}
}
