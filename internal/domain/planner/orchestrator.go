package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voyplan/voyplan-api/internal/domain/critic"
	"github.com/voyplan/voyplan-api/internal/domain/itinerary"
	"github.com/voyplan/voyplan-api/internal/domain/preferences"
	"github.com/voyplan/voyplan-api/internal/domain/routing"
	"github.com/voyplan/voyplan-api/internal/types"
	"github.com/voyplan/voyplan-api/pkg/config"
	"github.com/voyplan/voyplan-api/pkg/observability"
)

// Orchestrator runs the full planning pipeline for a trip, persisting each
// stage's artifact before moving to the next so a crash never loses finished
// work.
type Orchestrator struct {
	logger  *slog.Logger
	repo    itinerary.Repository
	prefs   *preferences.Agent
	macro   *MacroPlanner
	pois    *POIPlanner
	smart   *routing.SmartRouter
	classic *routing.ClassicOptimizer
	critic  *critic.Critic
	cfg     config.PlannerConfig
}

func NewOrchestrator(
	repo itinerary.Repository,
	prefs *preferences.Agent,
	macro *MacroPlanner,
	pois *POIPlanner,
	smart *routing.SmartRouter,
	classic *routing.ClassicOptimizer,
	cfg config.PlannerConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		logger:  logger,
		repo:    repo,
		prefs:   prefs,
		macro:   macro,
		pois:    pois,
		smart:   smart,
		classic: classic,
		critic:  critic.New(),
		cfg:     cfg,
	}
}

// PlanTrip generates the complete itinerary for the trip and returns the
// persisted result. Re-running it for the same trip regenerates every stage.
func (o *Orchestrator) PlanTrip(ctx context.Context, spec *types.TripSpec) (*types.Itinerary, error) {
	ctx, span := otel.Tracer("Orchestrator").Start(ctx, "PlanTrip", trace.WithAttributes(
		attribute.String("trip.id", spec.ID.String()),
		attribute.String("city", spec.City),
		attribute.Bool("smart_routing", o.cfg.SmartRoutingEnabled),
	))
	defer span.End()

	if err := o.repo.EnsureForTrip(ctx, spec.ID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ensuring itinerary row: %w", err)
	}

	profileStart := time.Now()
	profile := o.prefs.BuildProfile(ctx, spec)
	observability.ObserveStage("preference_profile", profileStart)

	macroStart := time.Now()
	macro := o.macro.Generate(ctx, spec)
	observability.ObserveStage("macro_plan", macroStart)
	if err := o.repo.SaveMacroPlan(ctx, spec.ID, macro); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("saving macro plan: %w", err)
	}

	routingStart := time.Now()
	days, err := o.buildDays(ctx, spec, macro, &profile)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	observability.ObserveStage("routing", routingStart)
	if err := o.repo.SaveDays(ctx, spec.ID, days); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("saving itinerary days: %w", err)
	}

	critiqueStart := time.Now()
	issues := o.critic.Critique(spec, days)
	observability.ObserveStage("critique", critiqueStart)
	if err := o.repo.SaveCritique(ctx, spec.ID, issues); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("saving critique: %w", err)
	}

	result, err := o.repo.GetByTripID(ctx, spec.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	o.logger.InfoContext(ctx, "trip planned",
		slog.String("trip_id", spec.ID.String()),
		slog.Int("days", len(days)),
		slog.Int("critique_issues", len(issues)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// buildDays picks the routing strategy. The smart router owns candidate
// fetching; the classic path runs the POI planner first and persists its plan
// for later replacement lookups.
func (o *Orchestrator) buildDays(ctx context.Context, spec *types.TripSpec, macro []types.DaySkeleton, profile *types.PreferenceProfile) ([]types.ItineraryDay, error) {
	if o.cfg.SmartRoutingEnabled {
		days, err := o.smart.BuildItinerary(ctx, spec, macro, profile)
		if err != nil {
			return nil, fmt.Errorf("smart routing: %w", err)
		}
		return days, nil
	}

	plan, err := o.pois.Plan(ctx, spec, macro, profile)
	if err != nil {
		return nil, fmt.Errorf("curating candidates: %w", err)
	}
	if err := o.repo.SavePOIPlan(ctx, spec.ID, plan); err != nil {
		return nil, fmt.Errorf("saving poi plan: %w", err)
	}

	days, err := o.classic.BuildItinerary(ctx, spec, macro, plan)
	if err != nil {
		return nil, fmt.Errorf("optimizing route: %w", err)
	}
	return days, nil
}
