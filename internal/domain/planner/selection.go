package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/voyplan/voyplan-api/internal/llm"
	"github.com/voyplan/voyplan-api/internal/types"
)

// Selector asks the LLM to pick one candidate per block. It only ever
// accepts ids we supplied; anything else makes the caller fall back to the
// top-scored candidate.
type Selector struct {
	logger     *slog.Logger
	llm        llm.Gateway
	llmTimeout time.Duration
}

// NewSelector builds a selector. llmTimeout bounds each curation call; zero
// means the caller's context is the only deadline.
func NewSelector(gateway llm.Gateway, llmTimeout time.Duration, logger *slog.Logger) *Selector {
	return &Selector{logger: logger, llm: gateway, llmTimeout: llmTimeout}
}

func (s *Selector) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.llmTimeout > 0 {
		return context.WithTimeout(ctx, s.llmTimeout)
	}
	return ctx, func() {}
}

// DaySelectionInput is the context for one day-level selection call.
type DaySelectionInput struct {
	Spec        *types.TripSpec
	DayNumber   int
	DayTheme    string
	SelectedIDs []string
	Blocks      []BlockCandidates
	Anchor      *types.GeoPoint
	MaxHopKm    float64
}

// BlockCandidates pairs a POI-needing block with its scored candidates.
type BlockCandidates struct {
	BlockIndex int
	BlockType  types.BlockType
	StartTime  types.Clock
	EndTime    types.Clock
	Theme      string
	Candidates []types.POICandidate
}

type daySelectionResponse struct {
	Selections map[string]string `json:"selections"`
}

// SelectForDay returns a candidate id per block index. The zero-trust
// validation rejects unknown ids, duplicates and missing blocks wholesale.
func (s *Selector) SelectForDay(ctx context.Context, in DaySelectionInput) (map[int]string, error) {
	if s.llm == nil {
		return nil, types.ErrProviderUnavailable
	}
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	var resp daySelectionResponse
	if err := s.llm.GenerateStructured(ctx, daySelectionPrompt(in), selectionSystemPrompt, 1024, &resp); err != nil {
		return nil, err
	}

	allowed := make(map[int]map[string]bool, len(in.Blocks))
	for _, block := range in.Blocks {
		ids := make(map[string]bool, len(block.Candidates))
		for _, c := range block.Candidates {
			ids[c.ID] = true
		}
		allowed[block.BlockIndex] = ids
	}

	picked := make(map[int]string, len(resp.Selections))
	used := make(map[string]bool, len(resp.Selections))
	for key, id := range resp.Selections {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric block index %q", types.ErrProviderUnavailable, key)
		}
		ids, ok := allowed[idx]
		if !ok || !ids[id] {
			return nil, fmt.Errorf("%w: candidate %q not offered for block %d", types.ErrProviderUnavailable, id, idx)
		}
		if used[id] {
			return nil, fmt.Errorf("%w: candidate %q selected twice", types.ErrProviderUnavailable, id)
		}
		used[id] = true
		picked[idx] = id
	}
	for _, block := range in.Blocks {
		if _, ok := picked[block.BlockIndex]; !ok {
			return nil, fmt.Errorf("%w: block %d left unselected", types.ErrProviderUnavailable, block.BlockIndex)
		}
	}
	return picked, nil
}

type blockSelectionResponse struct {
	CandidateID string `json:"candidate_id"`
}

// SelectForBlock is the per-block fallback mode.
func (s *Selector) SelectForBlock(ctx context.Context, in DaySelectionInput, block BlockCandidates) (string, error) {
	if s.llm == nil {
		return "", types.ErrProviderUnavailable
	}
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	var resp blockSelectionResponse
	if err := s.llm.GenerateStructured(ctx, blockSelectionPrompt(in, block), selectionSystemPrompt, 256, &resp); err != nil {
		return "", err
	}
	for _, c := range block.Candidates {
		if c.ID == resp.CandidateID {
			return resp.CandidateID, nil
		}
	}
	return "", fmt.Errorf("%w: candidate %q not offered", types.ErrProviderUnavailable, resp.CandidateID)
}

const selectionSystemPrompt = `You are a travel curation assistant. Choose places strictly from the provided candidate ids; never invent ids. Prefer places matching the traveler's interests, keep consecutive picks geographically close, and respond with JSON only.`

func daySelectionPrompt(in DaySelectionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trip to %s, pace %s, budget %s.\n", in.Spec.City, in.Spec.Pace, in.Spec.Budget)
	if len(in.Spec.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s.\n", strings.Join(in.Spec.Interests, ", "))
	}
	fmt.Fprintf(&b, "Day %d", in.DayNumber)
	if in.DayTheme != "" {
		fmt.Fprintf(&b, " (%s)", in.DayTheme)
	}
	b.WriteString(".\n")
	if len(in.SelectedIDs) > 0 {
		fmt.Fprintf(&b, "Already used on other days, do not pick: %s.\n", strings.Join(in.SelectedIDs, ", "))
	}
	if in.Anchor != nil {
		fmt.Fprintf(&b, "Day starts near (%.4f, %.4f); keep hops under %.1f km.\n", in.Anchor.Lat, in.Anchor.Lon, in.MaxHopKm)
	}

	for _, block := range in.Blocks {
		fmt.Fprintf(&b, "\nBlock %d: %s %s-%s %s\n", block.BlockIndex, block.BlockType,
			block.StartTime, block.EndTime, block.Theme)
		writeCandidates(&b, block.Candidates)
	}
	b.WriteString("\nRespond: {\"selections\": {\"<block_index>\": \"<candidate_id>\"}} covering every block.\n")
	return b.String()
}

func blockSelectionPrompt(in DaySelectionInput, block BlockCandidates) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trip to %s, day %d. Pick one place for the %s block %s-%s.\n",
		in.Spec.City, in.DayNumber, block.BlockType, block.StartTime, block.EndTime)
	writeCandidates(&b, block.Candidates)
	b.WriteString("\nRespond: {\"candidate_id\": \"<id>\"}\n")
	return b.String()
}

func writeCandidates(b *strings.Builder, candidates []types.POICandidate) {
	for _, c := range candidates {
		fmt.Fprintf(b, "- %s: %s (%s, rating %.1f", c.ID, c.Name, c.Category, c.Rating)
		if c.PriceLevel != nil {
			fmt.Fprintf(b, ", price %d", *c.PriceLevel)
		}
		b.WriteString(")")
		if c.Description != "" {
			desc := c.Description
			if len(desc) > 120 {
				desc = desc[:120]
			}
			fmt.Fprintf(b, " %s", desc)
		}
		b.WriteString("\n")
	}
}
