package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/voyplan/voyplan-api/internal/domain/geo"
	googlemaps "github.com/voyplan/voyplan-api/internal/maps"
	"github.com/voyplan/voyplan-api/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// SearchRequest describes one catalog lookup.
type SearchRequest struct {
	City         string
	Center       types.GeoPoint
	Category     string
	Keywords     []string
	BlockType    types.BlockType
	RadiusMeters int
	Limit        int
}

// Service is the POI catalog: local cache first, external supplement when the
// cache runs thin, every external hit persisted before it is returned.
type Service interface {
	SearchPOIs(ctx context.Context, req SearchRequest) ([]types.POICandidate, error)
	SearchPOIsBulk(ctx context.Context, reqs []SearchRequest) ([][]types.POICandidate, error)
	FetchPlaceDetails(ctx context.Context, poiID string) (*types.PlaceDetails, error)
	GetPOI(ctx context.Context, poiID string) (*types.POICandidate, error)
}

type ServiceImpl struct {
	logger      *slog.Logger
	repo        Repository
	places      googlemaps.PlacesClient
	searchCache *cache.Cache
}

const (
	defaultRadiusMeters = 5000
	defaultSearchLimit  = 20
	bulkConcurrency     = 4

	// externalShare caps how much of a result set we top up from the
	// external provider on a single search. Tuning knob.
	externalShare = 0.5
)

func NewService(repo Repository, places googlemaps.PlacesClient, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:      logger,
		repo:        repo,
		places:      places,
		searchCache: cache.New(10*time.Minute, 20*time.Minute),
	}
}

func (s *ServiceImpl) SearchPOIs(ctx context.Context, req SearchRequest) ([]types.POICandidate, error) {
	ctx, span := otel.Tracer("CatalogService").Start(ctx, "SearchPOIs", trace.WithAttributes(
		attribute.String("city", req.City),
		attribute.String("category", req.Category),
	))
	defer span.End()

	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}
	if req.RadiusMeters <= 0 {
		req.RadiusMeters = defaultRadiusMeters
	}

	key := searchKey(req)
	if cached, ok := s.searchCache.Get(key); ok {
		return cached.([]types.POICandidate), nil
	}

	local, err := s.repo.SearchCached(ctx, req.City, req.Category, req.Keywords, req.Limit*2)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	results := filterCandidates(local, req)

	if len(results) < req.Limit && s.places != nil {
		supplement := s.fetchExternal(ctx, req, results)
		results = append(results, supplement...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Rating != results[j].Rating {
			return results[i].Rating > results[j].Rating
		}
		return results[i].UserRatingsTotal > results[j].UserRatingsTotal
	})
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	s.searchCache.Set(key, results, cache.DefaultExpiration)
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// fetchExternal tops up thin local results from the places provider. Provider
// failures degrade to whatever the cache had; they never fail the search.
func (s *ServiceImpl) fetchExternal(ctx context.Context, req SearchRequest, existing []types.POICandidate) []types.POICandidate {
	quota := int(float64(req.Limit) * externalShare)
	if missing := req.Limit - len(existing); missing > quota {
		quota = missing
	}

	external, err := s.places.TextSearch(ctx, externalQuery(req), req.Center, req.RadiusMeters, quota*2)
	if err != nil {
		s.logger.WarnContext(ctx, "external place search degraded to cache",
			slog.String("city", req.City), slog.Any("error", err))
		return nil
	}

	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.Source+"/"+c.ExternalID] = true
	}
	fresh := external[:0]
	for _, c := range external {
		if key := c.Source + "/" + c.ExternalID; !seen[key] {
			seen[key] = true
			fresh = append(fresh, c)
		}
	}

	persisted, err := s.repo.UpsertPOIs(ctx, req.City, fresh)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist external pois", slog.Any("error", err))
		return nil
	}

	supplement := filterCandidates(persisted, req)
	if len(supplement) > quota {
		supplement = supplement[:quota]
	}
	return supplement
}

// SearchPOIsBulk runs several searches concurrently, preserving request order
// in the results.
func (s *ServiceImpl) SearchPOIsBulk(ctx context.Context, reqs []SearchRequest) ([][]types.POICandidate, error) {
	results := make([][]types.POICandidate, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)

	for i, req := range reqs {
		g.Go(func() error {
			found, err := s.SearchPOIs(ctx, req)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *ServiceImpl) FetchPlaceDetails(ctx context.Context, poiID string) (*types.PlaceDetails, error) {
	poi, err := s.repo.GetPOI(ctx, poiID)
	if err != nil {
		return nil, err
	}

	details := &types.PlaceDetails{POICandidate: *poi}
	if s.places == nil || poi.ExternalID == "" {
		return details, nil
	}

	fetched, err := s.places.PlaceDetails(ctx, poi.ExternalID)
	if err != nil {
		s.logger.WarnContext(ctx, "place details degraded to cached record",
			slog.String("poi_id", poiID), slog.Any("error", err))
		return details, nil
	}

	fetched.POICandidate.ID = poi.ID
	fetched.POICandidate.Category = poi.Category
	if err := s.repo.UpdateDetails(ctx, poi.ID, fetched); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist place details", slog.Any("error", err))
	}
	return fetched, nil
}

func (s *ServiceImpl) GetPOI(ctx context.Context, poiID string) (*types.POICandidate, error) {
	return s.repo.GetPOI(ctx, poiID)
}

// filterCandidates applies radius and block suitability gates.
func filterCandidates(candidates []types.POICandidate, req SearchRequest) []types.POICandidate {
	out := make([]types.POICandidate, 0, len(candidates))
	for _, c := range candidates {
		if req.BlockType.NeedsPOI() && !SuitableForBlock(&c, req.BlockType) {
			continue
		}
		if loc := c.Location(); loc != nil && req.RadiusMeters > 0 {
			if withinRadius(req.Center, *loc, req.RadiusMeters) {
				out = append(out, c)
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

func withinRadius(center, p types.GeoPoint, radiusMeters int) bool {
	// Loose by half a radius: city-edge places still make the candidate
	// pool and lose out on distance in scoring instead.
	return geo.Haversine(center, p) <= 1.5*float64(radiusMeters)/1000.0
}

func externalQuery(req SearchRequest) string {
	parts := make([]string, 0, 3)
	if len(req.Keywords) > 0 {
		parts = append(parts, strings.Join(req.Keywords, " "))
	}
	if req.Category != "" {
		parts = append(parts, strings.ReplaceAll(req.Category, "_", " "))
	}
	parts = append(parts, "in "+req.City)
	return strings.Join(parts, " ")
}

// searchKey includes the rounded center so searches anchored on different
// points never share a radius-filtered entry. Four decimals is ~11 m.
func searchKey(req SearchRequest) string {
	return fmt.Sprintf("%s|%s|%s|%s|%.4f,%.4f|%d|%d",
		req.City, req.Category, strings.Join(req.Keywords, ","), req.BlockType,
		req.Center.Lat, req.Center.Lon, req.RadiusMeters, req.Limit)
}
