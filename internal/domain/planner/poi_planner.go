package planner

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
	"github.com/voyplan/voyplan-api/internal/types"
	"github.com/voyplan/voyplan-api/pkg/config"
)

const repairDistanceWeightMult = 2.0

// POIPlanner curates ranked candidates for every POI-needing block of the
// macro plan, under trip-wide dedup and hop-distance repair.
type POIPlanner struct {
	logger   *slog.Logger
	catalog  catalog.Service
	selector *Selector
	cfg      config.PlannerConfig
}

func NewPOIPlanner(catalogSvc catalog.Service, selector *Selector, cfg config.PlannerConfig, logger *slog.Logger) *POIPlanner {
	return &POIPlanner{logger: logger, catalog: catalogSvc, selector: selector, cfg: cfg}
}

func (p *POIPlanner) Plan(ctx context.Context, spec *types.TripSpec, macro []types.DaySkeleton, profile *types.PreferenceProfile) ([]types.POIPlanBlock, error) {
	ctx, span := otel.Tracer("POIPlanner").Start(ctx, "Plan", trace.WithAttributes(
		attribute.String("city", spec.City),
		attribute.Int("days", len(macro)),
	))
	defer span.End()

	scorer := scoring.NewScorer(profile, p.cfg.DistanceWeight)
	selected := make(map[string]bool)
	var plan []types.POIPlanBlock
	var prevDayAnchor *types.GeoPoint

	for di := range macro {
		skeleton := &macro[di]
		dayBlocks, err := p.curateDay(ctx, spec, skeleton, scorer, profile, selected, prevDayAnchor)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		p.selectForDay(ctx, spec, skeleton, dayBlocks, scorer, selected, prevDayAnchor)
		dedupeDaySelections(dayBlocks)
		p.repairDay(dayBlocks, scorer, selected, prevDayAnchor)

		for _, block := range dayBlocks {
			planBlock := types.POIPlanBlock{
				DayNumber:  skeleton.DayNumber,
				BlockIndex: block.BlockIndex,
				BlockTheme: block.Theme,
				BlockType:  block.BlockType,
				Candidates: block.Candidates,
			}
			if chosen := planBlock.Selected(); chosen != nil {
				selected[chosen.ID] = true
				if loc := chosen.Location(); loc != nil {
					prevDayAnchor = loc
				}
			}
			plan = append(plan, planBlock)
		}
	}

	span.SetStatus(codes.Ok, "")
	return plan, nil
}

// curateDay fetches, filters and scores candidates for each POI-needing
// block, biasing the first blocks of the day toward the hotel anchor.
func (p *POIPlanner) curateDay(ctx context.Context, spec *types.TripSpec, skeleton *types.DaySkeleton, scorer *scoring.Scorer, profile *types.PreferenceProfile, selected map[string]bool, prevDayAnchor *types.GeoPoint) ([]BlockCandidates, error) {
	anchorBias := spec.HotelLocation
	if anchorBias == nil {
		anchorBias = prevDayAnchor
	}

	var dayBlocks []BlockCandidates
	poiBlockSeen := 0
	for idx, sb := range skeleton.Blocks {
		if !sb.BlockType.NeedsPOI() {
			continue
		}

		var keywords []string
		if sb.BlockType == types.BlockMeal {
			keywords = profile.SearchKeywords
		}
		fetched, err := p.catalog.SearchPOIs(ctx, catalog.SearchRequest{
			City:      spec.City,
			Center:    spec.CityCenter,
			Category:  primaryCategory(&sb),
			Keywords:  keywords,
			BlockType: sb.BlockType,
			Limit:     2 * p.cfg.CandidatesPerBlock,
		})
		if err != nil {
			return nil, err
		}

		pool := p.applyPreferenceFilters(fetched, sb.BlockType, scorer, profile, selected)

		var anchor *types.GeoPoint
		if poiBlockSeen < p.cfg.HotelAnchorBlocks {
			anchor = anchorBias
		}
		poiBlockSeen++

		scoreAndSort(pool, sb.BlockType, scorer, anchor)
		dayBlocks = append(dayBlocks, BlockCandidates{
			BlockIndex: idx,
			BlockType:  sb.BlockType,
			StartTime:  sb.StartTime,
			EndTime:    sb.EndTime,
			Theme:      sb.Theme,
			Candidates: pool,
		})
	}
	return dayBlocks, nil
}

// applyPreferenceFilters drops already-used, low-rated and closed-down
// candidates, then narrows to structured or must-include matches when the
// profile demands them.
func (p *POIPlanner) applyPreferenceFilters(fetched []types.POICandidate, blockType types.BlockType, scorer *scoring.Scorer, profile *types.PreferenceProfile, selected map[string]bool) []types.POICandidate {
	pool := make([]types.POICandidate, 0, len(fetched))
	for _, c := range fetched {
		if selected[c.ID] {
			continue
		}
		if c.Rating > 0 && c.Rating < profile.MinRating {
			continue
		}
		if c.BusinessStatus != "" && c.BusinessStatus != types.BusinessStatusOperational {
			continue
		}
		pool = append(pool, c)
	}

	if scorer.HasStructuredFor(blockType) {
		if narrowed := keepMatching(pool, func(c *types.POICandidate) bool {
			return scorer.MatchesStructured(c, blockType)
		}); len(narrowed) > 0 {
			return narrowed
		}
	} else if blockType == types.BlockMeal && len(profile.MustIncludeKeywords) > 0 {
		if narrowed := keepMatching(pool, scorer.MatchesMustInclude); len(narrowed) > 0 {
			return narrowed
		}
	}
	return pool
}

func keepMatching(pool []types.POICandidate, keep func(*types.POICandidate) bool) []types.POICandidate {
	var out []types.POICandidate
	for i := range pool {
		if keep(&pool[i]) {
			out = append(out, pool[i])
		}
	}
	return out
}

// selectForDay finalizes the selection at index 0 of each block's candidate
// list: LLM day-level first, per-block LLM next, top-scored last.
func (p *POIPlanner) selectForDay(ctx context.Context, spec *types.TripSpec, skeleton *types.DaySkeleton, dayBlocks []BlockCandidates, scorer *scoring.Scorer, selected map[string]bool, prevDayAnchor *types.GeoPoint) {
	if !p.cfg.LLMSelectionEnabled || p.selector == nil {
		p.trimBlocks(dayBlocks)
		return
	}

	in := DaySelectionInput{
		Spec:        spec,
		DayNumber:   skeleton.DayNumber,
		DayTheme:    skeleton.Theme,
		SelectedIDs: idsOf(selected),
		Blocks:      dayBlocks,
		Anchor:      prevDayAnchor,
		MaxHopKm:    p.cfg.MaxHopDistanceKm,
	}

	picks, err := p.selector.SelectForDay(ctx, in)
	if err != nil {
		p.logger.WarnContext(ctx, "day-level selection fell back",
			slog.Int("day", skeleton.DayNumber), slog.Any("error", err))
		picks = map[int]string{}
	}

	for bi := range dayBlocks {
		block := &dayBlocks[bi]
		id, ok := picks[block.BlockIndex]
		if !ok {
			if blockID, err := p.selector.SelectForBlock(ctx, in, *block); err == nil {
				id = blockID
				ok = true
			}
		}
		if ok {
			promote(block.Candidates, id)
		}
	}
	p.trimBlocks(dayBlocks)
}

func (p *POIPlanner) trimBlocks(dayBlocks []BlockCandidates) {
	for bi := range dayBlocks {
		if len(dayBlocks[bi].Candidates) > p.cfg.CandidatesPerBlock {
			dayBlocks[bi].Candidates = dayBlocks[bi].Candidates[:p.cfg.CandidatesPerBlock]
		}
	}
}

// dedupeDaySelections keeps each selection unique within the day. Blocks are
// walked in order; a repeated index-0 candidate is swapped for the first
// unused alternative in the same pool.
func dedupeDaySelections(dayBlocks []BlockCandidates) {
	dayUsed := make(map[string]bool)
	for bi := range dayBlocks {
		block := &dayBlocks[bi]
		if len(block.Candidates) == 0 {
			continue
		}
		if dayUsed[block.Candidates[0].ID] {
			for ci := 1; ci < len(block.Candidates); ci++ {
				if !dayUsed[block.Candidates[ci].ID] {
					block.Candidates[0], block.Candidates[ci] = block.Candidates[ci], block.Candidates[0]
					break
				}
			}
		}
		dayUsed[block.Candidates[0].ID] = true
	}
}

// repairDay replaces selections that sit a long straight-line hop from their
// predecessor, rescoring alternatives with a stiffer distance penalty.
func (p *POIPlanner) repairDay(dayBlocks []BlockCandidates, scorer *scoring.Scorer, selected map[string]bool, dayStart *types.GeoPoint) {
	dayUsed := make(map[string]bool, len(dayBlocks))
	for bi := range dayBlocks {
		if len(dayBlocks[bi].Candidates) > 0 {
			dayUsed[dayBlocks[bi].Candidates[0].ID] = true
		}
	}

	prev := dayStart
	for bi := range dayBlocks {
		block := &dayBlocks[bi]
		if len(block.Candidates) == 0 {
			continue
		}
		current := &block.Candidates[0]
		loc := current.Location()
		if loc == nil {
			continue
		}
		if prev == nil || geo.Haversine(*prev, *loc) <= p.cfg.MaxHopDistanceKm {
			prev = loc
			continue
		}

		original := scorer.DistanceWeight()
		scorer.SetDistanceWeight(original * repairDistanceWeightMult)
		bestIdx := -1
		bestScore := 0.0
		for ci := 1; ci < len(block.Candidates); ci++ {
			c := &block.Candidates[ci]
			cLoc := c.Location()
			if cLoc == nil || selected[c.ID] || dayUsed[c.ID] {
				continue
			}
			if geo.Haversine(*prev, *cLoc) > p.cfg.MaxHopDistanceKm {
				continue
			}
			if s := scorer.Score(c, block.BlockType, prev, nil); bestIdx == -1 || s > bestScore {
				bestIdx = ci
				bestScore = s
			}
		}
		scorer.SetDistanceWeight(original)

		if bestIdx > 0 {
			delete(dayUsed, block.Candidates[0].ID)
			block.Candidates[0], block.Candidates[bestIdx] = block.Candidates[bestIdx], block.Candidates[0]
			dayUsed[block.Candidates[0].ID] = true
		}
		if nl := block.Candidates[0].Location(); nl != nil {
			prev = nl
		}
	}
}

func scoreAndSort(pool []types.POICandidate, blockType types.BlockType, scorer *scoring.Scorer, anchor *types.GeoPoint) {
	scores := make(map[string]float64, len(pool))
	for i := range pool {
		scores[pool[i].ID] = scorer.Score(&pool[i], blockType, anchor, nil)
	}
	sort.SliceStable(pool, func(a, b int) bool {
		return scores[pool[a].ID] > scores[pool[b].ID]
	})
	for i := range pool {
		pool[i].RankScore = scores[pool[i].ID]
	}
}

func promote(candidates []types.POICandidate, id string) {
	for i := range candidates {
		if candidates[i].ID == id {
			c := candidates[i]
			copy(candidates[1:i+1], candidates[:i])
			candidates[0] = c
			return
		}
	}
}

func idsOf(selected map[string]bool) []string {
	out := make([]string, 0, len(selected))
	for id := range selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func primaryCategory(block *types.SkeletonBlock) string {
	if len(block.DesiredCategories) > 0 {
		return block.DesiredCategories[0]
	}
	switch block.BlockType {
	case types.BlockMeal:
		return "restaurant"
	case types.BlockNightlife:
		return "bar"
	default:
		return "attraction"
	}
}
