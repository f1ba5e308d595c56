package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyplan/voyplan-api/internal/domain/catalog"
	"github.com/voyplan/voyplan-api/internal/domain/editor"
	"github.com/voyplan/voyplan-api/internal/domain/itinerary"
	"github.com/voyplan/voyplan-api/internal/domain/planner"
	"github.com/voyplan/voyplan-api/internal/domain/preferences"
	"github.com/voyplan/voyplan-api/internal/domain/replacement"
	"github.com/voyplan/voyplan-api/internal/domain/routing"
	"github.com/voyplan/voyplan-api/internal/domain/travel"
	"github.com/voyplan/voyplan-api/internal/domain/trip"
	"github.com/voyplan/voyplan-api/internal/domain/tripchat"
	"github.com/voyplan/voyplan-api/internal/llm"
	googlemaps "github.com/voyplan/voyplan-api/internal/maps"
	"github.com/voyplan/voyplan-api/pkg/config"
	"github.com/voyplan/voyplan-api/pkg/db"
)

// Dependencies holds every wired component the router serves from.
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *db.DB

	Trips       trip.Service
	Catalog     catalog.Service
	Itineraries itinerary.Repository
	Prefs       *preferences.Agent
	Planner     tripPlanner
	FastDraft   draftPlanner
	Editor      editor.Service
	Replacer    replacement.Service
	Chat        tripchat.Service
}

// InitDependencies connects the database, runs migrations and wires the full
// service graph. Missing LLM or Maps credentials degrade to the deterministic
// fallbacks instead of failing startup.
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: logger}

	database, err := db.New(db.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	deps.DB = database

	var gateway llm.Gateway
	if cfg.LLM.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiGateway(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.Model, logger)
		if err != nil {
			logger.Warn("llm gateway unavailable, planners will use deterministic fallbacks",
				slog.Any("error", err))
		} else {
			gateway = gemini
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set, planners will use deterministic fallbacks")
	}

	var places googlemaps.PlacesClient
	var routes googlemaps.RoutesClient
	if cfg.Maps.APIKey != "" {
		placesClient, err := googlemaps.NewGooglePlacesClient(cfg.Maps.APIKey, cfg.Maps.RequestsPerSecond, logger)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to init places client: %w", err)
		}
		places = placesClient

		routesClient, err := googlemaps.NewGoogleRoutesClient(cfg.Maps.APIKey, logger)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to init routes client: %w", err)
		}
		routes = routesClient
	} else {
		logger.Warn("GOOGLE_MAPS_API_KEY not set, catalog serves cached POIs and travel uses haversine estimates")
	}

	tripRepo := trip.NewRepository(database.Pool, logger)
	deps.Trips = trip.NewService(tripRepo, cfg.Planner.GuestMaxTrips, logger)

	catalogRepo := catalog.NewRepository(database.Pool, logger)
	deps.Catalog = catalog.NewService(catalogRepo, places, logger)
	deps.Itineraries = itinerary.NewRepository(database.Pool, logger)

	travelSvc := travel.NewService(routes, logger)
	deps.Prefs = preferences.NewAgent(gateway, logger)
	macro := planner.NewMacroPlanner(gateway, cfg.LLM.MacroTimeout, logger)

	var selector *planner.Selector
	if cfg.Planner.LLMSelectionEnabled {
		selector = planner.NewSelector(gateway, cfg.LLM.CuratorTimeout, logger)
	}
	pois := planner.NewPOIPlanner(deps.Catalog, selector, cfg.Planner, logger)

	districts := routing.NewDistrictPlanner(gateway, logger)
	smart := routing.NewSmartRouter(deps.Catalog, travelSvc, districts, cfg.Planner, logger)
	classic := routing.NewClassicOptimizer(travelSvc, cfg.Planner, logger)

	deps.Planner = planner.NewOrchestrator(deps.Itineraries, deps.Prefs, macro, pois, smart, classic, cfg.Planner, logger)
	deps.FastDraft = planner.NewFastDraftPlanner(macro, deps.Catalog, cfg.Planner, cfg.LLM.FastDraftTimeout, logger)
	deps.Replacer = replacement.NewService(deps.Trips, deps.Itineraries, deps.Catalog, logger)
	deps.Editor = editor.NewService(deps.Trips, deps.Itineraries, deps.Catalog, deps.Prefs, macro, deps.Replacer, logger)
	deps.Chat = tripchat.NewService(deps.Trips, gateway, logger)

	logger.Info("all dependencies initialized")
	return deps, nil
}

// Cleanup closes held resources.
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
