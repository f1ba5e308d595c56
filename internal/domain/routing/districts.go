// Package routing builds the final day routes: district assignment, POI
// selection from districts, intra-district reordering and hop repair.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/voyplan/voyplan-api/internal/domain/geo"
	"github.com/voyplan/voyplan-api/internal/llm"
	"github.com/voyplan/voyplan-api/internal/types"
)

const maxDistrictChangesPerDay = 3

// DistrictPlanner assigns each skeleton block of a day to one district.
type DistrictPlanner struct {
	logger *slog.Logger
	llm    llm.Gateway
}

func NewDistrictPlanner(gateway llm.Gateway, logger *slog.Logger) *DistrictPlanner {
	return &DistrictPlanner{logger: logger, llm: gateway}
}

// DayPlanInput carries everything the planner may consider for one day.
type DayPlanInput struct {
	Skeleton       *types.DaySkeleton
	Clustering     *types.ClusteringResult
	DistrictScores map[string]float64
	PrevAnchor     *types.GeoPoint
	PrevDistrictID string
}

// PlanDay returns a district id per block index. The LLM path is validated
// strictly; anything off falls back to the deterministic walk.
func (p *DistrictPlanner) PlanDay(ctx context.Context, in DayPlanInput) map[int]string {
	if p.llm != nil && len(in.Clustering.DistrictIDs) > 1 {
		if plan, ok := p.planWithLLM(ctx, in); ok {
			return plan
		}
	}
	return p.planDeterministic(in)
}

type districtAssignmentResponse struct {
	Assignments map[string]string `json:"assignments"`
}

func (p *DistrictPlanner) planWithLLM(ctx context.Context, in DayPlanInput) (map[int]string, bool) {
	var resp districtAssignmentResponse
	err := p.llm.GenerateStructured(ctx, districtPrompt(in), districtSystemPrompt, 1024, &resp)
	if err != nil {
		p.logger.WarnContext(ctx, "district planning fell back to deterministic walk",
			slog.Int("day", in.Skeleton.DayNumber), slog.Any("error", err))
		return nil, false
	}

	plan := make(map[int]string, len(in.Skeleton.Blocks))
	for key, districtID := range resp.Assignments {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(in.Skeleton.Blocks) {
			return nil, false
		}
		if _, ok := in.Clustering.Districts[districtID]; !ok {
			return nil, false
		}
		plan[idx] = districtID
	}
	for idx := range in.Skeleton.Blocks {
		if _, ok := plan[idx]; !ok {
			return nil, false
		}
	}
	if districtChanges(plan, len(in.Skeleton.Blocks)) > maxDistrictChangesPerDay {
		return nil, false
	}
	return plan, true
}

// planDeterministic walks the day keeping the current district as long as it
// covers each block's categories, moving at most maxDistrictChangesPerDay
// times, and steering the final meal or rest block back to the hotel.
func (p *DistrictPlanner) planDeterministic(in DayPlanInput) map[int]string {
	clustering := in.Clustering
	plan := make(map[int]string, len(in.Skeleton.Blocks))
	if len(clustering.DistrictIDs) == 0 {
		return plan
	}

	current := clustering.DistrictIDs[0]
	if clustering.HotelDistrictID != "" {
		current = clustering.HotelDistrictID
	}
	if in.PrevDistrictID != "" {
		if _, ok := clustering.Districts[in.PrevDistrictID]; ok {
			current = in.PrevDistrictID
		}
	}

	changes := 0
	for idx, block := range in.Skeleton.Blocks {
		if !block.BlockType.NeedsPOI() {
			plan[idx] = current
			continue
		}
		categories := blockCategories(&block)
		if clustering.Districts[current].Covers(categories) || changes >= maxDistrictChangesPerDay {
			plan[idx] = current
			continue
		}
		next := geo.NearestDistrict(clustering, clustering.Districts[current].Center, categories)
		if next != nil && next.ID != current {
			current = next.ID
			changes++
		}
		plan[idx] = current
	}

	// End the day near the hotel when the last block allows it.
	last := len(in.Skeleton.Blocks) - 1
	if last >= 0 && clustering.HotelDistrictID != "" {
		block := in.Skeleton.Blocks[last]
		if block.BlockType == types.BlockMeal || block.BlockType == types.BlockRest {
			hotel := clustering.Districts[clustering.HotelDistrictID]
			if hotel.Covers(blockCategories(&block)) {
				plan[last] = clustering.HotelDistrictID
			}
		}
	}
	return plan
}

func districtChanges(plan map[int]string, blockCount int) int {
	changes := 0
	prev := ""
	for idx := 0; idx < blockCount; idx++ {
		id := plan[idx]
		if prev != "" && id != prev {
			changes++
		}
		prev = id
	}
	return changes
}

// blockCategories returns the categories a block needs from its district,
// defaulting by block type when the skeleton names none.
func blockCategories(block *types.SkeletonBlock) []string {
	if len(block.DesiredCategories) > 0 {
		return block.DesiredCategories
	}
	switch block.BlockType {
	case types.BlockMeal:
		return []string{"restaurant"}
	case types.BlockNightlife:
		return []string{"bar"}
	case types.BlockActivity:
		return []string{"attraction"}
	default:
		return nil
	}
}

const districtSystemPrompt = `You are a city-trip routing assistant. Assign every block of the day to exactly one district. Minimize district changes, start and end near the hotel district, and only assign a block to a district that covers its required categories. Respond with JSON only: {"assignments": {"<block_index>": "<district_id>"}}.`

func districtPrompt(in DayPlanInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d theme: %s\n\nDistricts:\n", in.Skeleton.DayNumber, in.Skeleton.Theme)
	for _, id := range in.Clustering.DistrictIDs {
		d := in.Clustering.Districts[id]
		fmt.Fprintf(&b, "- %s: %s, %d places, avg rating %.1f", id, d.Name, d.TotalPOIs, d.AvgRating)
		if score, ok := in.DistrictScores[id]; ok {
			fmt.Fprintf(&b, ", preference score %.1f", score)
		}
		cats := make([]string, 0, len(d.CategoryCounts))
		for cat := range d.CategoryCounts {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		fmt.Fprintf(&b, ", categories: %s\n", strings.Join(cats, ", "))
	}
	if in.Clustering.HotelDistrictID != "" {
		fmt.Fprintf(&b, "\nHotel district: %s\n", in.Clustering.HotelDistrictID)
	}
	if in.PrevDistrictID != "" {
		fmt.Fprintf(&b, "Yesterday ended in district %s.\n", in.PrevDistrictID)
	}
	b.WriteString("\nBlocks:\n")
	for idx, block := range in.Skeleton.Blocks {
		fmt.Fprintf(&b, "- %d: %s %s-%s, needs %s\n", idx, block.BlockType,
			block.StartTime, block.EndTime, strings.Join(blockCategories(&block), "/"))
	}
	return b.String()
}
