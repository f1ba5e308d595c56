// Package editor applies batched per-day edits to an itinerary while keeping
// trip-wide invariants: no place reuse across days and no resurrection of
// explicitly removed places.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voyplan/voyplan-api/internal/domain/catalog"
	"github.com/voyplan/voyplan-api/internal/domain/geo"
	"github.com/voyplan/voyplan-api/internal/domain/itinerary"
	"github.com/voyplan/voyplan-api/internal/domain/planner"
	"github.com/voyplan/voyplan-api/internal/domain/preferences"
	"github.com/voyplan/voyplan-api/internal/domain/replacement"
	"github.com/voyplan/voyplan-api/internal/domain/trip"
	"github.com/voyplan/voyplan-api/internal/types"
)

// minPlacesBeforeRebuild: a day trimmed below three meals plus one activity
// gets rebuilt from a fresh skeleton.
const minPlacesBeforeRebuild = 4

const presetNightlife = "nightlife"

type Service interface {
	ApplyChanges(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID, dayNumber int, changes []types.Change) (*types.ItineraryDay, error)
}

var _ Service = (*ServiceImpl)(nil)

type ServiceImpl struct {
	logger      *slog.Logger
	trips       trip.Service
	itineraries itinerary.Repository
	catalog     catalog.Service
	prefs       *preferences.Agent
	macro       *planner.MacroPlanner
	replacer    replacement.Service
}

func NewService(trips trip.Service, itineraries itinerary.Repository, catalogSvc catalog.Service, prefs *preferences.Agent, macro *planner.MacroPlanner, replacer replacement.Service, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:      logger,
		trips:       trips,
		itineraries: itineraries,
		catalog:     catalogSvc,
		prefs:       prefs,
		macro:       macro,
		replacer:    replacer,
	}
}

// dayContext is the editable frame of one day: the window, the pace and
// budget in effect, plus accumulated free-form wishes.
type dayContext struct {
	startTime types.Clock
	endTime   types.Clock
	pace      types.Pace
	budget    types.Budget
	nightlife bool
	wishes    []string
	changed   bool
}

func (s *ServiceImpl) ApplyChanges(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID, dayNumber int, changes []types.Change) (*types.ItineraryDay, error) {
	ctx, span := otel.Tracer("DayEditor").Start(ctx, "ApplyChanges", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
		attribute.Int("day", dayNumber),
		attribute.Int("changes", len(changes)),
	))
	defer span.End()

	for i := range changes {
		if err := changes[i].Validate(); err != nil {
			return nil, err
		}
	}

	spec, err := s.trips.GetOwnedTrip(ctx, authCtx, tripID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	stored, err := s.itineraries.GetByTripID(ctx, tripID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	day := stored.Day(dayNumber)
	if day == nil {
		return nil, fmt.Errorf("%w: day %d", types.ErrNotFound, dayNumber)
	}

	if len(changes) == 0 {
		return day, nil
	}

	dctx := buildDayContext(spec, day)
	removed := make(map[string]bool)
	var deterministic []types.Change
	for _, change := range changes {
		if change.IsDeterministic() {
			deterministic = append(deterministic, change)
			switch change.Type {
			case types.ChangeRemovePlace:
				removed[change.RemovePlace.PlaceID] = true
			case types.ChangeReplacePlace:
				removed[change.ReplacePlace.FromPlaceID] = true
			}
			continue
		}
		foldContextChange(&dctx, &change)
	}

	for _, change := range deterministic {
		if err := s.applyDeterministic(ctx, spec, day, &change, &dctx); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if dctx.changed || poiCount(day) < minPlacesBeforeRebuild {
		exclusion := stored.UsedPOIIDs(dayNumber)
		for id := range removed {
			exclusion[id] = true
		}
		if err := s.rebuildDay(ctx, spec, day, &dctx, exclusion); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	optimizeTravel(day)

	if _, err := s.itineraries.UpdateDay(ctx, tripID, day); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "day edited",
		slog.String("trip_id", tripID.String()),
		slog.Int("day", dayNumber),
		slog.Int("changes", len(changes)),
		slog.Bool("rebuilt", dctx.changed))
	span.SetStatus(codes.Ok, "")
	return day, nil
}

func buildDayContext(spec *types.TripSpec, day *types.ItineraryDay) dayContext {
	dctx := dayContext{
		startTime: spec.Routine.WakeTime,
		endTime:   spec.Routine.SleepTime,
		pace:      spec.Pace,
		budget:    spec.Budget,
	}
	if len(day.Blocks) > 0 {
		dctx.startTime = day.Blocks[0].StartTime
		dctx.endTime = day.Blocks[len(day.Blocks)-1].EndTime
	}
	for _, block := range day.Blocks {
		if block.BlockType == types.BlockNightlife {
			dctx.nightlife = true
		}
	}
	return dctx
}

func foldContextChange(dctx *dayContext, change *types.Change) {
	switch change.Type {
	case types.ChangeUpdateSettings:
		u := change.UpdateSettings
		if u.Tempo != nil {
			dctx.pace = *u.Tempo
		}
		if u.Start != nil {
			dctx.startTime = *u.Start
		}
		if u.End != nil {
			dctx.endTime = *u.End
		}
		if u.Budget != nil {
			dctx.budget = *u.Budget
		}
		dctx.changed = true
	case types.ChangeSetPreset:
		if strings.EqualFold(change.SetPreset.Preset, presetNightlife) {
			dctx.nightlife = true
		}
		dctx.changed = true
	case types.ChangeAddWishMessage:
		dctx.wishes = append(dctx.wishes, change.AddWishMessage.Text)
		dctx.changed = true
	}
}

func (s *ServiceImpl) applyDeterministic(ctx context.Context, spec *types.TripSpec, day *types.ItineraryDay, change *types.Change, dctx *dayContext) error {
	switch change.Type {
	case types.ChangeRemovePlace:
		removeBlockByPlace(day, change.RemovePlace.PlaceID)
		return nil

	case types.ChangeReplacePlace:
		idx := blockIndexByPlace(day, change.ReplacePlace.FromPlaceID)
		if idx < 0 {
			return fmt.Errorf("%w: place %s not in day %d", types.ErrNotFound, change.ReplacePlace.FromPlaceID, day.DayNumber)
		}
		var substitute *types.POICandidate
		if change.ReplacePlace.ToPlaceID != nil {
			poi, err := s.catalog.GetPOI(ctx, *change.ReplacePlace.ToPlaceID)
			if err != nil {
				return err
			}
			substitute = poi
		} else {
			poi, err := s.replacer.AutoReplace(ctx, spec, day, idx)
			if err != nil {
				return err
			}
			substitute = poi
		}
		day.Blocks[idx].POI = substitute
		return nil

	case types.ChangeAddPlace:
		poi, err := s.catalog.GetPOI(ctx, change.AddPlace.PlaceID)
		if err != nil {
			return err
		}
		insertBlock(day, poi, change.AddPlace, dctx)
		return nil
	}
	return nil
}

// insertBlock synthesizes a block for the added place. in_slot places it at a
// clamped index; at_time and auto append, leaving ordering to the optimizer.
func insertBlock(day *types.ItineraryDay, poi *types.POICandidate, add *types.AddPlaceChange, dctx *dayContext) {
	start := dctx.startTime
	if add.AtTime != nil {
		start = *add.AtTime
	}
	block := types.ItineraryBlock{
		BlockType: blockTypeForCategory(poi.Category),
		StartTime: start,
		EndTime:   start + types.NewClock(1, 30),
		POI:       poi,
	}

	if add.Placement == types.PlacementInSlot && add.SlotIndex != nil {
		at := *add.SlotIndex
		if at < 0 {
			at = 0
		}
		if at > len(day.Blocks) {
			at = len(day.Blocks)
		}
		day.Blocks = append(day.Blocks[:at], append([]types.ItineraryBlock{block}, day.Blocks[at:]...)...)
		return
	}
	day.Blocks = append(day.Blocks, block)
}

// rebuildDay regenerates the day from a fresh skeleton under the edited
// context, refilling each place-needing block from the catalog while skipping
// excluded and already-used places.
func (s *ServiceImpl) rebuildDay(ctx context.Context, spec *types.TripSpec, day *types.ItineraryDay, dctx *dayContext, exclusion map[string]bool) error {
	skeleton := s.macro.RebuildDay(spec, planner.RebuildDayInput{
		DayNumber: day.DayNumber,
		StartTime: dctx.startTime,
		EndTime:   dctx.endTime,
		Nightlife: dctx.nightlife,
	})

	profile := s.prefs.BuildProfile(ctx, spec)

	usedInDay := make(map[string]bool)
	blocks := make([]types.ItineraryBlock, 0, len(skeleton.Blocks))
	for _, sb := range skeleton.Blocks {
		block := types.ItineraryBlock{
			BlockType: sb.BlockType,
			StartTime: sb.StartTime,
			EndTime:   sb.EndTime,
			Notes:     sb.Theme,
		}
		if sb.BlockType.NeedsPOI() {
			category := "attraction"
			if len(sb.DesiredCategories) > 0 {
				category = sb.DesiredCategories[0]
			}
			keywords := dctx.wishes
			if sb.BlockType == types.BlockMeal {
				keywords = append(profile.SearchKeywords, dctx.wishes...)
			}
			candidates, err := s.catalog.SearchPOIs(ctx, catalog.SearchRequest{
				City:      spec.City,
				Center:    spec.CityCenter,
				Category:  category,
				Keywords:  keywords,
				BlockType: sb.BlockType,
			})
			if err != nil {
				return err
			}
			for i := range candidates {
				if exclusion[candidates[i].ID] || usedInDay[candidates[i].ID] {
					continue
				}
				pick := candidates[i]
				block.POI = &pick
				usedInDay[pick.ID] = true
				break
			}
		}
		blocks = append(blocks, block)
	}

	day.Theme = skeleton.Theme
	day.Blocks = blocks
	return nil
}

// optimizeTravel refreshes the straight-line walking annotations across the
// whole day.
func optimizeTravel(day *types.ItineraryDay) {
	var prev *types.GeoPoint
	for i := range day.Blocks {
		block := &day.Blocks[i]
		if block.POI == nil {
			continue
		}
		loc := block.POI.Location()
		if loc == nil {
			continue
		}
		if prev == nil {
			block.TravelTimeFromPrev = 0
			block.TravelDistanceMeters = nil
		} else {
			meters := int(geo.Haversine(*prev, *loc) * 1000)
			block.TravelTimeFromPrev = geo.WalkingMinutes(*prev, *loc)
			block.TravelDistanceMeters = &meters
		}
		block.TravelPolyline = nil
		prev = loc
	}
}

func removeBlockByPlace(day *types.ItineraryDay, placeID string) {
	out := day.Blocks[:0]
	for _, block := range day.Blocks {
		if block.POI != nil && block.POI.ID == placeID {
			continue
		}
		out = append(out, block)
	}
	day.Blocks = out
}

func blockIndexByPlace(day *types.ItineraryDay, placeID string) int {
	for i := range day.Blocks {
		if day.Blocks[i].POI != nil && day.Blocks[i].POI.ID == placeID {
			return i
		}
	}
	return -1
}

func poiCount(day *types.ItineraryDay) int {
	n := 0
	for _, block := range day.Blocks {
		if block.POI != nil {
			n++
		}
	}
	return n
}

// blockTypeForCategory infers the slot type an added place belongs to.
func blockTypeForCategory(category string) types.BlockType {
	c := strings.ToLower(category)
	switch {
	case strings.Contains(c, "cafe"), strings.Contains(c, "restaurant"), strings.Contains(c, "food"):
		return types.BlockMeal
	case strings.Contains(c, "bar"), strings.Contains(c, "night"), strings.Contains(c, "club"):
		return types.BlockNightlife
	default:
		return types.BlockActivity
	}
}
