// Package travel estimates hop durations between itinerary stops, degrading
// to straight-line estimates when the routing provider is unavailable.
package travel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/voyplan/voyplan-api/internal/domain/geo"
	googlemaps "github.com/voyplan/voyplan-api/internal/maps"
	"github.com/voyplan/voyplan-api/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	EstimateTravel(ctx context.Context, origin, destination types.GeoPoint, mode types.TravelMode) (*types.TravelEstimate, error)
}

type ServiceImpl struct {
	logger *slog.Logger
	routes googlemaps.RoutesClient
	cache  *cache.Cache
}

const (
	providerTimeout = 10 * time.Second

	// Straight-line estimates are inflated to approximate street routing.
	detourFactor = 1.3

	walkingSpeedKmh = 4.0
	drivingSpeedKmh = 30.0
	cyclingSpeedKmh = 14.0
	transitSpeedKmh = 20.0
)

func NewService(routes googlemaps.RoutesClient, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		routes: routes,
		cache:  cache.New(24*time.Hour, time.Hour),
	}
}

// EstimateTravel never fails on provider errors; the haversine fallback keeps
// planning deterministic when routing is down.
func (s *ServiceImpl) EstimateTravel(ctx context.Context, origin, destination types.GeoPoint, mode types.TravelMode) (*types.TravelEstimate, error) {
	key := estimateKey(origin, destination, mode)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*types.TravelEstimate), nil
	}

	if s.routes != nil {
		ctx, cancel := context.WithTimeout(ctx, providerTimeout)
		defer cancel()

		estimate, err := s.routes.Route(ctx, origin, destination, mode)
		if err == nil {
			s.cache.Set(key, estimate, cache.DefaultExpiration)
			return estimate, nil
		}
		s.logger.WarnContext(ctx, "route estimate degraded to haversine",
			slog.String("mode", string(mode)), slog.Any("error", err))
	}

	estimate := FallbackEstimate(origin, destination, mode)
	s.cache.Set(key, estimate, cache.DefaultExpiration)
	return estimate, nil
}

// FallbackEstimate is the deterministic straight-line estimate used when no
// routing provider is configured or reachable.
func FallbackEstimate(origin, destination types.GeoPoint, mode types.TravelMode) *types.TravelEstimate {
	distanceKm := geo.Haversine(origin, destination) * detourFactor
	speed := walkingSpeedKmh
	switch mode {
	case types.TravelModeDrive:
		speed = drivingSpeedKmh
	case types.TravelModeBicycle:
		speed = cyclingSpeedKmh
	case types.TravelModeTransit:
		speed = transitSpeedKmh
	}

	meters := int(math.Round(distanceKm * 1000))
	return &types.TravelEstimate{
		DurationMinutes: math.Round(distanceKm / speed * 60),
		DistanceMeters:  &meters,
	}
}

func estimateKey(origin, destination types.GeoPoint, mode types.TravelMode) string {
	return fmt.Sprintf("%.5f,%.5f|%.5f,%.5f|%s",
		origin.Lat, origin.Lon, destination.Lat, destination.Lon, mode)
}
