package planner

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voyplan-api/pkg/config"
)

func fastDraftConfig() config.PlannerConfig {
	cfg := plannerTestConfig()
	cfg.FastDraftFetchConcurrency = 4
	cfg.FastDraftPerCategoryLimit = 6
	cfg.FastDraftFetchDeadline = 5 * time.Second
	return cfg
}

func TestDraft_FillsBlocksGreedily(t *testing.T) {
	cfg := fastDraftConfig()
	cat := lisbonCatalog()
	draft := NewFastDraftPlanner(NewMacroPlanner(nil, 0, slog.Default()), cat, cfg,
		100*time.Millisecond, slog.Default())

	days, err := draft.Draft(context.Background(), lisbonSpec(2), planningProfile())
	require.NoError(t, err)
	require.Len(t, days, 2)

	seen := make(map[string]bool)
	for _, day := range days {
		sawPOI := false
		for _, block := range day.Blocks {
			if !block.BlockType.NeedsPOI() {
				continue
			}
			if block.POI == nil {
				continue
			}
			sawPOI = true
			assert.False(t, seen[block.POI.ID], "%s drafted twice", block.POI.ID)
			seen[block.POI.ID] = true
		}
		assert.True(t, sawPOI, "day %d drafted no places", day.DayNumber)
	}
}

func TestDraft_FirstPlaceHasNoTravel(t *testing.T) {
	draft := NewFastDraftPlanner(NewMacroPlanner(nil, 0, slog.Default()), lisbonCatalog(), fastDraftConfig(),
		100*time.Millisecond, slog.Default())

	days, err := draft.Draft(context.Background(), lisbonSpec(1), planningProfile())
	require.NoError(t, err)
	require.Len(t, days, 1)

	first := true
	for _, block := range days[0].Blocks {
		if block.POI == nil {
			continue
		}
		if first {
			assert.Zero(t, block.TravelTimeFromPrev)
			first = false
			continue
		}
		// Neighboring fixtures sit within walking distance.
		assert.LessOrEqual(t, block.TravelTimeFromPrev, 30)
	}
	assert.False(t, first, "no places drafted")
}

func TestDraft_CategoryFetchFailureDegrades(t *testing.T) {
	cfg := fastDraftConfig()
	cat := lisbonCatalog()
	cat.errByCat = map[string]error{"cafe": errors.New("provider down")}

	draft := NewFastDraftPlanner(NewMacroPlanner(nil, 0, slog.Default()), cat, cfg,
		100*time.Millisecond, slog.Default())

	days, err := draft.Draft(context.Background(), lisbonSpec(1), planningProfile())
	require.NoError(t, err)

	for _, block := range days[0].Blocks {
		if block.POI != nil {
			assert.NotEqual(t, "cafe", block.POI.Category)
		}
	}
}
