package planner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voyplan/voyplan-api/internal/domain/catalog"
	"github.com/voyplan/voyplan-api/internal/domain/geo"
	"github.com/voyplan/voyplan-api/internal/types"
	"github.com/voyplan/voyplan-api/pkg/config"
)

// FastDraftPlanner produces a full itinerary quickly: a hard-capped macro
// call, concurrent bounded catalog fetches and a greedy fill. No district
// routing, no LLM curation, no live travel estimates.
type FastDraftPlanner struct {
	logger     *slog.Logger
	macro      *MacroPlanner
	catalog    catalog.Service
	cfg        config.PlannerConfig
	llmTimeout time.Duration
}

func NewFastDraftPlanner(macro *MacroPlanner, catalogSvc catalog.Service, cfg config.PlannerConfig, llmTimeout time.Duration, logger *slog.Logger) *FastDraftPlanner {
	return &FastDraftPlanner{
		logger:     logger,
		macro:      macro,
		catalog:    catalogSvc,
		cfg:        cfg,
		llmTimeout: llmTimeout,
	}
}

// Draft builds the draft itinerary. The macro stage degrades to the template
// when the LLM misses its deadline; fetch failures leave categories empty and
// the greedy fill skips over them.
func (f *FastDraftPlanner) Draft(ctx context.Context, spec *types.TripSpec, profile *types.PreferenceProfile) ([]types.ItineraryDay, error) {
	macroCtx, cancel := context.WithTimeout(ctx, f.llmTimeout)
	macro := f.macro.Generate(macroCtx, spec)
	cancel()

	pools, err := f.fetchPools(ctx, spec, profile, macro)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	days := make([]types.ItineraryDay, 0, len(macro))
	for di := range macro {
		days = append(days, f.fillDay(&macro[di], pools, used))
	}
	return days, nil
}

// fetchPools loads one candidate list per category referenced by the macro
// plan, bounded in concurrency and wall time.
func (f *FastDraftPlanner) fetchPools(ctx context.Context, spec *types.TripSpec, profile *types.PreferenceProfile, macro []types.DaySkeleton) (map[string][]types.POICandidate, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.FastDraftFetchDeadline)
	defer cancel()

	categories := draftCategories(macro)
	concurrency := int64(f.cfg.FastDraftFetchConcurrency)
	sem := semaphore.NewWeighted(concurrency)

	pools := make(map[string][]types.POICandidate, len(categories))
	var mu sync.Mutex

	for category, blockType := range categories {
		if err := sem.Acquire(fetchCtx, 1); err != nil {
			return nil, err
		}
		go func(category string, blockType types.BlockType) {
			defer sem.Release(1)

			var keywords []string
			if blockType == types.BlockMeal {
				keywords = profile.SearchKeywords
			}
			candidates, err := f.catalog.SearchPOIs(fetchCtx, catalog.SearchRequest{
				City:      spec.City,
				Center:    spec.CityCenter,
				Category:  category,
				Keywords:  keywords,
				BlockType: blockType,
				Limit:     f.cfg.FastDraftPerCategoryLimit,
			})
			if err != nil {
				f.logger.WarnContext(fetchCtx, "fast draft category fetch failed",
					slog.String("category", category), slog.Any("error", err))
				return
			}
			mu.Lock()
			pools[category] = candidates
			mu.Unlock()
		}(category, blockType)
	}

	if err := sem.Acquire(fetchCtx, concurrency); err != nil {
		return nil, err
	}
	return pools, nil
}

// fillDay assigns the first unused candidate per POI block, walking the
// block's desired categories in order, then annotates straight-line walking
// travel between consecutive places.
func (f *FastDraftPlanner) fillDay(skeleton *types.DaySkeleton, pools map[string][]types.POICandidate, used map[string]bool) types.ItineraryDay {
	day := types.ItineraryDay{
		DayNumber: skeleton.DayNumber,
		Date:      skeleton.Date,
		Theme:     skeleton.Theme,
	}

	var prevLoc *types.GeoPoint
	for i := range skeleton.Blocks {
		sb := &skeleton.Blocks[i]
		block := types.ItineraryBlock{
			BlockType: sb.BlockType,
			StartTime: sb.StartTime,
			EndTime:   sb.EndTime,
			Notes:     sb.Theme,
		}

		if sb.BlockType.NeedsPOI() {
			if pick := pickDraft(sb, pools, used); pick != nil {
				block.POI = pick
				used[pick.ID] = true
				if loc := pick.Location(); loc != nil {
					if prevLoc != nil {
						minutes := geo.WalkingMinutes(*prevLoc, *loc)
						block.TravelTimeFromPrev = minutes
						block.GeoSuboptimal = minutes > f.cfg.MaxTravelMinutesPerHop
					}
					prevLoc = loc
				}
			}
		}
		day.Blocks = append(day.Blocks, block)
	}
	return day
}

func pickDraft(sb *types.SkeletonBlock, pools map[string][]types.POICandidate, used map[string]bool) *types.POICandidate {
	for _, category := range draftBlockCategories(sb) {
		for _, c := range pools[category] {
			if used[c.ID] {
				continue
			}
			pick := c
			return &pick
		}
	}
	return nil
}

// draftCategories maps every category the macro plan references to its block
// type, so each gets fetched exactly once.
func draftCategories(macro []types.DaySkeleton) map[string]types.BlockType {
	out := make(map[string]types.BlockType)
	for di := range macro {
		for bi := range macro[di].Blocks {
			sb := &macro[di].Blocks[bi]
			if !sb.BlockType.NeedsPOI() {
				continue
			}
			for _, category := range draftBlockCategories(sb) {
				if _, ok := out[category]; !ok {
					out[category] = sb.BlockType
				}
			}
		}
	}
	return out
}

func draftBlockCategories(sb *types.SkeletonBlock) []string {
	if len(sb.DesiredCategories) > 0 {
		return sb.DesiredCategories
	}
	return []string{primaryCategory(sb)}
}
