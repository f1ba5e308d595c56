// Package googlemaps adapts the Google Maps Platform clients to the narrow
// interfaces the catalog and travel services consume.
package googlemaps

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"github.com/voyplan/voyplan-api/internal/types"
)

const placesSource = "google_places"

// PlacesClient is the external places-catalog capability.
type PlacesClient interface {
	TextSearch(ctx context.Context, query string, center types.GeoPoint, radiusMeters, limit int) ([]types.POICandidate, error)
	PlaceDetails(ctx context.Context, externalID string) (*types.PlaceDetails, error)
}

// GooglePlacesClient implements PlacesClient over the official maps client,
// rate limited so concurrent planners cannot exhaust the quota.
type GooglePlacesClient struct {
	client  *maps.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewGooglePlacesClient(apiKey string, requestsPerSecond int, logger *slog.Logger) (*GooglePlacesClient, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	return &GooglePlacesClient{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:  logger,
	}, nil
}

func (g *GooglePlacesClient) TextSearch(ctx context.Context, query string, center types.GeoPoint, radiusMeters, limit int) ([]types.POICandidate, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    query,
		Location: &maps.LatLng{Lat: center.Lat, Lng: center.Lon},
		Radius:   uint(radiusMeters),
	})
	if err != nil {
		g.logger.WarnContext(ctx, "places text search failed",
			slog.String("query", query), slog.Any("error", err))
		return nil, fmt.Errorf("%w: text search: %v", types.ErrProviderUnavailable, err)
	}

	candidates := make([]types.POICandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		if limit > 0 && len(candidates) >= limit {
			break
		}
		candidates = append(candidates, searchResultToCandidate(r))
	}
	return candidates, nil
}

func (g *GooglePlacesClient) PlaceDetails(ctx context.Context, externalID string) (*types.PlaceDetails, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	r, err := g.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{PlaceID: externalID})
	if err != nil {
		g.logger.WarnContext(ctx, "place details lookup failed",
			slog.String("place_id", externalID), slog.Any("error", err))
		return nil, fmt.Errorf("%w: place details: %v", types.ErrProviderUnavailable, err)
	}

	lat := r.Geometry.Location.Lat
	lon := r.Geometry.Location.Lng
	details := &types.PlaceDetails{
		POICandidate: types.POICandidate{
			Name:             r.Name,
			Category:         mapExternalTypes(r.Types),
			Tags:             r.Types,
			Rating:           float64(r.Rating),
			UserRatingsTotal: r.UserRatingsTotal,
			Address:          r.FormattedAddress,
			Latitude:         &lat,
			Longitude:        &lon,
			Source:           placesSource,
			ExternalID:       externalID,
		},
		Website:     r.Website,
		PhoneNumber: r.FormattedPhoneNumber,
	}
	if r.PriceLevel > 0 {
		pl := r.PriceLevel
		details.PriceLevel = &pl
	}
	if r.OpeningHours != nil {
		details.OpenNow = r.OpeningHours.OpenNow
		hours := make(map[string]string, len(r.OpeningHours.WeekdayText))
		for i, text := range r.OpeningHours.WeekdayText {
			hours[fmt.Sprintf("day_%d", i)] = text
		}
		details.OpeningHours = hours
	}
	for _, photo := range r.Photos {
		details.Photos = append(details.Photos, photo.PhotoReference)
	}
	for _, review := range r.Reviews {
		if review.Text != "" {
			details.Reviews = append(details.Reviews, review.Text)
		}
	}
	return details, nil
}

func searchResultToCandidate(r maps.PlacesSearchResult) types.POICandidate {
	lat := r.Geometry.Location.Lat
	lon := r.Geometry.Location.Lng
	c := types.POICandidate{
		Name:             r.Name,
		Category:         mapExternalTypes(r.Types),
		Tags:             r.Types,
		Rating:           float64(r.Rating),
		UserRatingsTotal: r.UserRatingsTotal,
		BusinessStatus:   r.BusinessStatus,
		Address:          r.FormattedAddress,
		Latitude:         &lat,
		Longitude:        &lon,
		Source:           placesSource,
		ExternalID:       r.PlaceID,
	}
	if r.PriceLevel > 0 {
		pl := r.PriceLevel
		c.PriceLevel = &pl
	}
	if r.OpeningHours != nil {
		c.OpenNow = r.OpeningHours.OpenNow
	}
	return c
}

// externalTypeMap translates Google place types to internal categories. The
// first matching entry wins, so order in typePriority matters.
var externalTypeMap = map[string]string{
	"museum":             "museum",
	"art_gallery":        "art_gallery",
	"park":               "park",
	"tourist_attraction": "attraction",
	"landmark":           "attraction",
	"church":             "attraction",
	"night_club":         "nightlife",
	"bar":                "bar",
	"restaurant":         "restaurant",
	"cafe":               "cafe",
	"bakery":             "cafe",
	"shopping_mall":      "shopping",
	"department_store":   "shopping",
	"zoo":                "attraction",
	"aquarium":           "attraction",
	"amusement_park":     "attraction",
	"spa":                "wellness",
	"food":               "restaurant",
}

var typePriority = []string{
	"museum", "art_gallery", "night_club", "bar", "restaurant", "cafe",
	"bakery", "park", "zoo", "aquarium", "amusement_park", "shopping_mall",
	"department_store", "spa", "tourist_attraction", "landmark", "church",
	"food",
}

func mapExternalTypes(googleTypes []string) string {
	present := make(map[string]bool, len(googleTypes))
	for _, t := range googleTypes {
		present[t] = true
	}
	for _, t := range typePriority {
		if present[t] {
			return externalTypeMap[t]
		}
	}
	return "attraction"
}
