// Package replacement ranks alternative places for one itinerary block and
// applies a swap atomically with travel recomputation.
package replacement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voyplan/voyplan-api/internal/domain/catalog"
	"github.com/voyplan/voyplan-api/internal/domain/geo"
	"github.com/voyplan/voyplan-api/internal/domain/itinerary"
	"github.com/voyplan/voyplan-api/internal/domain/trip"
	"github.com/voyplan/voyplan-api/internal/types"
)

const (
	defaultMaxDistanceMeters = 3000
	candidateFetchLimit      = 50
	optionLimitFloor         = 3
	optionLimitCeiling       = 10

	proximityWeight  = 0.60
	ratingWeight     = 0.30
	popularityWeight = 0.10

	// rating falls back to a neutral midpoint when the catalog has none.
	defaultRating          = 3.0
	popularityScaleReviews = 10000.0

	idempotencyTTL = time.Hour
)

// OptionsRequest asks for ranked alternatives for one block.
type OptionsRequest struct {
	TripID               uuid.UUID
	DayNumber            int
	BlockIndex           int
	SameCategory         bool
	MaxDistanceMeters    int
	Limit                int
	ExcludeIDs           []string
	ExcludeExistingInDay bool
}

// Option is one ranked alternative.
type Option struct {
	Candidate      types.POICandidate `json:"candidate"`
	DistanceMeters int                `json:"distance_meters"`
	Score          float64            `json:"score"`
}

type OptionsResult struct {
	RequestID  uuid.UUID          `json:"request_id"`
	CurrentPOI types.POICandidate `json:"current_poi"`
	Options    []Option           `json:"options"`
}

// ApplyRequest swaps the block's place for NewPlaceID. OldPlaceID is advisory;
// the server's current poi wins on mismatch.
type ApplyRequest struct {
	TripID             uuid.UUID
	DayNumber          int
	BlockIndex         int
	OldPlaceID         string
	NewPlaceID         string
	IdempotencyKey     string
	ClientRouteVersion *int64
}

type ApplyResult struct {
	Block          types.ItineraryBlock `json:"block"`
	RouteVersion   int64                `json:"route_version"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
}

type Service interface {
	GetOptions(ctx context.Context, authCtx types.AuthContext, req OptionsRequest) (*OptionsResult, error)
	AutoReplace(ctx context.Context, spec *types.TripSpec, day *types.ItineraryDay, blockIndex int) (*types.POICandidate, error)
	Apply(ctx context.Context, authCtx types.AuthContext, req ApplyRequest) (*ApplyResult, error)
}

var _ Service = (*ServiceImpl)(nil)

type ServiceImpl struct {
	logger      *slog.Logger
	trips       trip.Service
	itineraries itinerary.Repository
	catalog     catalog.Service
	applied     *cache.Cache
}

func NewService(trips trip.Service, itineraries itinerary.Repository, catalogSvc catalog.Service, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:      logger,
		trips:       trips,
		itineraries: itineraries,
		catalog:     catalogSvc,
		applied:     cache.New(idempotencyTTL, 2*idempotencyTTL),
	}
}

func (s *ServiceImpl) GetOptions(ctx context.Context, authCtx types.AuthContext, req OptionsRequest) (*OptionsResult, error) {
	ctx, span := otel.Tracer("ReplacementService").Start(ctx, "GetOptions", trace.WithAttributes(
		attribute.String("trip.id", req.TripID.String()),
		attribute.Int("day", req.DayNumber),
		attribute.Int("block", req.BlockIndex),
	))
	defer span.End()

	spec, _, day, err := s.locateBlock(ctx, authCtx, req.TripID, req.DayNumber, req.BlockIndex)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	current := day.Blocks[req.BlockIndex].POI
	currentLoc := current.Location()
	if currentLoc == nil {
		return nil, fmt.Errorf("%w: current place has no coordinates", types.ErrBadRequest)
	}

	excluded := map[string]bool{current.ID: true}
	for _, id := range req.ExcludeIDs {
		excluded[id] = true
	}
	if req.ExcludeExistingInDay {
		for _, b := range day.Blocks {
			if b.POI != nil {
				excluded[b.POI.ID] = true
			}
		}
	}

	maxDistance := req.MaxDistanceMeters
	if maxDistance <= 0 {
		maxDistance = defaultMaxDistanceMeters
	}

	category := ""
	if req.SameCategory {
		category = current.Category
	}
	candidates, err := s.catalog.SearchPOIs(ctx, catalog.SearchRequest{
		City:         spec.City,
		Center:       *currentLoc,
		Category:     category,
		RadiusMeters: maxDistance,
		Limit:        candidateFetchLimit,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	options := rankOptions(candidates, current, *currentLoc, maxDistance, req.SameCategory, excluded)
	if limit := clampLimit(req.Limit); len(options) > limit {
		options = options[:limit]
	}

	span.SetStatus(codes.Ok, "")
	return &OptionsResult{
		RequestID:  uuid.New(),
		CurrentPOI: *current,
		Options:    options,
	}, nil
}

// AutoReplace returns the best alternative for the block, excluding every
// place already used in the day. The day editor calls this when a replace
// change names no target.
func (s *ServiceImpl) AutoReplace(ctx context.Context, spec *types.TripSpec, day *types.ItineraryDay, blockIndex int) (*types.POICandidate, error) {
	if blockIndex < 0 || blockIndex >= len(day.Blocks) || day.Blocks[blockIndex].POI == nil {
		return nil, fmt.Errorf("%w: no place at day %d block %d", types.ErrNotFound, day.DayNumber, blockIndex)
	}
	current := day.Blocks[blockIndex].POI
	currentLoc := current.Location()
	if currentLoc == nil {
		return nil, fmt.Errorf("%w: current place has no coordinates", types.ErrBadRequest)
	}

	excluded := make(map[string]bool)
	for _, b := range day.Blocks {
		if b.POI != nil {
			excluded[b.POI.ID] = true
		}
	}

	candidates, err := s.catalog.SearchPOIs(ctx, catalog.SearchRequest{
		City:         spec.City,
		Center:       *currentLoc,
		Category:     current.Category,
		RadiusMeters: defaultMaxDistanceMeters,
		Limit:        candidateFetchLimit,
	})
	if err != nil {
		return nil, err
	}

	options := rankOptions(candidates, current, *currentLoc, defaultMaxDistanceMeters, true, excluded)
	if len(options) == 0 {
		return nil, fmt.Errorf("%w: no viable replacement nearby", types.ErrNotFound)
	}
	return &options[0].Candidate, nil
}

func (s *ServiceImpl) Apply(ctx context.Context, authCtx types.AuthContext, req ApplyRequest) (*ApplyResult, error) {
	ctx, span := otel.Tracer("ReplacementService").Start(ctx, "Apply", trace.WithAttributes(
		attribute.String("trip.id", req.TripID.String()),
		attribute.Int("day", req.DayNumber),
		attribute.Int("block", req.BlockIndex),
	))
	defer span.End()

	if req.IdempotencyKey != "" {
		if cached, ok := s.applied.Get(appliedKey(req.TripID, req.IdempotencyKey)); ok {
			return cached.(*ApplyResult), nil
		}
	}

	spec, stored, day, err := s.locateBlock(ctx, authCtx, req.TripID, req.DayNumber, req.BlockIndex)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if req.ClientRouteVersion != nil && *req.ClientRouteVersion < stored.RouteVersion() {
		return nil, fmt.Errorf("%w: itinerary changed since version %d", types.ErrConflict, *req.ClientRouteVersion)
	}

	block := &day.Blocks[req.BlockIndex]
	if req.OldPlaceID != "" && req.OldPlaceID != block.POI.ID {
		s.logger.WarnContext(ctx, "stale old_place_id on replacement, proceeding with server state",
			slog.String("trip_id", req.TripID.String()),
			slog.String("claimed", req.OldPlaceID),
			slog.String("actual", block.POI.ID))
	}

	replacement, err := s.catalog.GetPOI(ctx, req.NewPlaceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	block.POI = replacement
	recomputeTravel(day, req.BlockIndex)

	updatedAt, err := s.itineraries.UpdateDay(ctx, spec.ID, day)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &ApplyResult{
		Block:          day.Blocks[req.BlockIndex],
		RouteVersion:   updatedAt.Unix(),
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.IdempotencyKey != "" {
		s.applied.SetDefault(appliedKey(req.TripID, req.IdempotencyKey), result)
	}

	s.logger.InfoContext(ctx, "replacement applied",
		slog.String("trip_id", req.TripID.String()),
		slog.Int("day", req.DayNumber),
		slog.Int("block", req.BlockIndex),
		slog.String("new_place", replacement.ID))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *ServiceImpl) locateBlock(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID, dayNumber, blockIndex int) (*types.TripSpec, *types.Itinerary, *types.ItineraryDay, error) {
	spec, err := s.trips.GetOwnedTrip(ctx, authCtx, tripID)
	if err != nil {
		return nil, nil, nil, err
	}
	stored, err := s.itineraries.GetByTripID(ctx, tripID)
	if err != nil {
		return nil, nil, nil, err
	}
	day := stored.Day(dayNumber)
	if day == nil {
		return nil, nil, nil, fmt.Errorf("%w: day %d", types.ErrNotFound, dayNumber)
	}
	if blockIndex < 0 || blockIndex >= len(day.Blocks) {
		return nil, nil, nil, fmt.Errorf("%w: block %d", types.ErrNotFound, blockIndex)
	}
	if day.Blocks[blockIndex].POI == nil {
		return nil, nil, nil, fmt.Errorf("%w: block carries no place", types.ErrNotFound)
	}
	return spec, stored, day, nil
}

// rankOptions filters and scores candidates against the current place.
// Proximity dominates the blend so a decent place around the corner beats a
// great one across town.
func rankOptions(candidates []types.POICandidate, current *types.POICandidate, currentLoc types.GeoPoint, maxDistanceMeters int, sameCategory bool, excluded map[string]bool) []Option {
	var options []Option
	for _, c := range candidates {
		if excluded[c.ID] {
			continue
		}
		loc := c.Location()
		if loc == nil {
			continue
		}
		if sameCategory && c.Category != current.Category {
			continue
		}
		distance := int(geo.Haversine(currentLoc, *loc) * 1000)
		if distance > maxDistanceMeters {
			continue
		}
		options = append(options, Option{
			Candidate:      c,
			DistanceMeters: distance,
			Score:          optionScore(&c, distance, maxDistanceMeters),
		})
	}
	sort.SliceStable(options, func(a, b int) bool {
		return options[a].Score > options[b].Score
	})
	return options
}

func optionScore(c *types.POICandidate, distanceMeters, maxDistanceMeters int) float64 {
	proximity := 1.0 - float64(distanceMeters)/float64(maxDistanceMeters)

	rating := c.Rating
	if rating == 0 {
		rating = defaultRating
	}

	popularity := math.Min(1.0, math.Sqrt(float64(c.UserRatingsTotal)/popularityScaleReviews))

	return proximityWeight*proximity + ratingWeight*rating/5.0 + popularityWeight*popularity
}

// recomputeTravel refreshes the walking annotations for the block at index
// and its successor. The predecessor's annotation is untouched.
func recomputeTravel(day *types.ItineraryDay, index int) {
	annotate := func(at int) {
		block := &day.Blocks[at]
		if block.POI == nil {
			return
		}
		loc := block.POI.Location()
		if loc == nil {
			return
		}

		var prev *types.GeoPoint
		for i := at - 1; i >= 0; i-- {
			if day.Blocks[i].POI != nil {
				if p := day.Blocks[i].POI.Location(); p != nil {
					prev = p
					break
				}
			}
		}
		if prev == nil {
			block.TravelTimeFromPrev = 0
			block.TravelDistanceMeters = nil
			block.TravelPolyline = nil
			return
		}
		meters := int(geo.Haversine(*prev, *loc) * 1000)
		block.TravelTimeFromPrev = geo.WalkingMinutes(*prev, *loc)
		block.TravelDistanceMeters = &meters
		block.TravelPolyline = nil
	}

	annotate(index)
	for next := index + 1; next < len(day.Blocks); next++ {
		if day.Blocks[next].POI != nil {
			annotate(next)
			break
		}
	}
}

func clampLimit(limit int) int {
	if limit < optionLimitFloor {
		return optionLimitFloor
	}
	if limit > optionLimitCeiling {
		return optionLimitCeiling
	}
	return limit
}

func appliedKey(tripID uuid.UUID, key string) string {
	return tripID.String() + "|" + key
}
