package planner

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voyplan-api/internal/types"
)

func selectionInput() DaySelectionInput {
	return DaySelectionInput{
		Spec:      lisbonSpec(1),
		DayNumber: 1,
		Blocks: []BlockCandidates{
			{
				BlockIndex: 0,
				BlockType:  types.BlockMeal,
				StartTime:  types.NewClock(8, 0),
				EndTime:    types.NewClock(9, 0),
				Candidates: []types.POICandidate{
					{ID: "cafe-1", Name: "Copenhagen Coffee Lab", Category: "cafe", Rating: 4.6},
					{ID: "cafe-2", Name: "Fabrica", Category: "cafe", Rating: 4.4},
				},
			},
			{
				BlockIndex: 1,
				BlockType:  types.BlockActivity,
				StartTime:  types.NewClock(10, 0),
				EndTime:    types.NewClock(12, 30),
				Candidates: []types.POICandidate{
					{ID: "museum-1", Name: "MAAT", Category: "museum", Rating: 4.3},
					{ID: "museum-2", Name: "Gulbenkian", Category: "museum", Rating: 4.7},
				},
			},
		},
	}
}

func selectorReturning(t *testing.T, payload string) *Selector {
	t.Helper()
	gateway := new(mockGateway)
	gateway.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(structuredResponse(t, payload)).
		Return(nil)
	return NewSelector(gateway, 0, slog.Default())
}

func TestSelectForDay_AcceptsValidSelections(t *testing.T) {
	selector := selectorReturning(t, `{"selections": {"0": "cafe-2", "1": "museum-2"}}`)

	picks, err := selector.SelectForDay(context.Background(), selectionInput())
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "cafe-2", 1: "museum-2"}, picks)
}

func TestSelectForDay_RejectsUnknownCandidate(t *testing.T) {
	selector := selectorReturning(t, `{"selections": {"0": "cafe-1", "1": "invented-id"}}`)

	_, err := selector.SelectForDay(context.Background(), selectionInput())
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}

func TestSelectForDay_RejectsDuplicateCandidate(t *testing.T) {
	in := selectionInput()
	// Same id offered in both blocks; picking it twice must still fail.
	in.Blocks[1].Candidates = append(in.Blocks[1].Candidates, in.Blocks[0].Candidates[0])
	selector := selectorReturning(t, `{"selections": {"0": "cafe-1", "1": "cafe-1"}}`)

	_, err := selector.SelectForDay(context.Background(), in)
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}

func TestSelectForDay_RejectsUncoveredBlock(t *testing.T) {
	selector := selectorReturning(t, `{"selections": {"0": "cafe-1"}}`)

	_, err := selector.SelectForDay(context.Background(), selectionInput())
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}

func TestSelectForDay_RejectsNonNumericBlockIndex(t *testing.T) {
	selector := selectorReturning(t, `{"selections": {"breakfast": "cafe-1", "1": "museum-1"}}`)

	_, err := selector.SelectForDay(context.Background(), selectionInput())
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}

func TestSelectForDay_PropagatesGatewayError(t *testing.T) {
	gateway := new(mockGateway)
	gateway.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("deadline exceeded"))
	selector := NewSelector(gateway, 0, slog.Default())

	_, err := selector.SelectForDay(context.Background(), selectionInput())
	assert.Error(t, err)
}

func TestSelectForDay_LLMCallCarriesConfiguredDeadline(t *testing.T) {
	gateway := new(mockGateway)
	gateway.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			deadline, ok := args.Get(0).(context.Context).Deadline()
			require.True(t, ok, "curation call context must carry a deadline")
			assert.WithinDuration(t, time.Now().Add(25*time.Second), deadline, 5*time.Second)
			structuredResponse(t, `{"selections": {"0": "cafe-1", "1": "museum-1"}}`)(args)
		}).
		Return(nil).Once()
	selector := NewSelector(gateway, 25*time.Second, slog.Default())

	_, err := selector.SelectForDay(context.Background(), selectionInput())
	require.NoError(t, err)
	gateway.AssertExpectations(t)
}

func TestSelectForBlock_ValidatesCandidateID(t *testing.T) {
	in := selectionInput()

	selector := selectorReturning(t, `{"candidate_id": "museum-2"}`)
	id, err := selector.SelectForBlock(context.Background(), in, in.Blocks[1])
	require.NoError(t, err)
	assert.Equal(t, "museum-2", id)

	selector = selectorReturning(t, `{"candidate_id": "cafe-1"}`)
	_, err = selector.SelectForBlock(context.Background(), in, in.Blocks[1])
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}
