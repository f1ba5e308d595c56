package googlemaps

import (
	"context"
	"fmt"
	"log/slog"

	"googlemaps.github.io/maps"

	"github.com/voyplan/voyplan-api/internal/types"
)

// RoutesClient is the external routing capability consumed by the
// travel-time service.
type RoutesClient interface {
	Route(ctx context.Context, origin, destination types.GeoPoint, mode types.TravelMode) (*types.TravelEstimate, error)
}

// GoogleRoutesClient resolves travel estimates through the Directions API,
// which also yields the overview polyline the itinerary stores.
type GoogleRoutesClient struct {
	client *maps.Client
	logger *slog.Logger
}

func NewGoogleRoutesClient(apiKey string, logger *slog.Logger) (*GoogleRoutesClient, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleRoutesClient{client: client, logger: logger}, nil
}

func (g *GoogleRoutesClient) Route(ctx context.Context, origin, destination types.GeoPoint, mode types.TravelMode) (*types.TravelEstimate, error) {
	routes, _, err := g.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lon),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lon),
		Mode:        travelMode(mode),
	})
	if err != nil {
		g.logger.WarnContext(ctx, "directions lookup failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: directions: %v", types.ErrProviderUnavailable, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("%w: directions returned no route", types.ErrProviderUnavailable)
	}

	leg := routes[0].Legs[0]
	polyline := routes[0].OverviewPolyline.Points
	meters := leg.Distance.Meters
	return &types.TravelEstimate{
		DurationMinutes: leg.Duration.Minutes(),
		DistanceMeters:  &meters,
		Polyline:        &polyline,
	}, nil
}

func travelMode(mode types.TravelMode) maps.Mode {
	switch mode {
	case types.TravelModeDrive:
		return maps.TravelModeDriving
	case types.TravelModeBicycle:
		return maps.TravelModeBicycling
	case types.TravelModeTransit:
		return maps.TravelModeTransit
	default:
		return maps.TravelModeWalking
	}
}
