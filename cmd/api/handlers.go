package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/voyplan/voyplan-api/internal/domain/editor"
	"github.com/voyplan/voyplan-api/internal/domain/itinerary"
	"github.com/voyplan/voyplan-api/internal/domain/preferences"
	"github.com/voyplan/voyplan-api/internal/domain/replacement"
	"github.com/voyplan/voyplan-api/internal/domain/trip"
	"github.com/voyplan/voyplan-api/internal/domain/tripchat"
	"github.com/voyplan/voyplan-api/internal/types"
	"github.com/voyplan/voyplan-api/pkg/middleware"
)

const maxBodyBytes = 1 << 20

// tripPlanner and draftPlanner narrow the planner structs to what the
// handlers invoke, keeping them mockable.
type tripPlanner interface {
	PlanTrip(ctx context.Context, spec *types.TripSpec) (*types.Itinerary, error)
}

type draftPlanner interface {
	Draft(ctx context.Context, spec *types.TripSpec, profile *types.PreferenceProfile) ([]types.ItineraryDay, error)
}

type apiHandlers struct {
	logger      *slog.Logger
	trips       trip.Service
	itineraries itinerary.Repository
	prefs       *preferences.Agent
	planner     tripPlanner
	drafter     draftPlanner
	editor      editor.Service
	replacer    replacement.Service
	chat        tripchat.Service
}

func newHandlers(deps *Dependencies) *apiHandlers {
	return &apiHandlers{
		logger:      deps.Logger,
		trips:       deps.Trips,
		itineraries: deps.Itineraries,
		prefs:       deps.Prefs,
		planner:     deps.Planner,
		drafter:     deps.FastDraft,
		editor:      deps.Editor,
		replacer:    deps.Replacer,
		chat:        deps.Chat,
	}
}

// itineraryResponse wraps an itinerary with the number of days hidden from
// guest callers.
type itineraryResponse struct {
	Itinerary  *types.Itinerary `json:"itinerary"`
	LockedDays int              `json:"locked_days,omitempty"`
}

type createTripResponse struct {
	Trip *types.TripSpec `json:"trip"`
	itineraryResponse
}

// handleCreateTrip creates the trip and runs the full planning pipeline in
// one call. Guests burn one quota slot per successfully planned trip.
func (h *apiHandlers) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())

	var spec types.TripSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		h.writeError(w, r, err)
		return
	}

	if isGuest(authCtx) {
		if err := h.trips.CheckGuestQuota(r.Context(), *authCtx.DeviceID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	created, err := h.trips.CreateTrip(r.Context(), authCtx, &spec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	planned, err := h.planner.PlanTrip(r.Context(), created)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if isGuest(authCtx) {
		if err := h.trips.ConsumeGuestQuota(r.Context(), *authCtx.DeviceID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, createTripResponse{
		Trip:              created,
		itineraryResponse: visibleItinerary(authCtx, planned),
	})
}

func (h *apiHandlers) handleGetItinerary(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := h.trips.GetOwnedTrip(r.Context(), authCtx, tripID); err != nil {
		h.writeError(w, r, err)
		return
	}
	itin, err := h.itineraries.GetByTripID(r.Context(), tripID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visibleItinerary(authCtx, itin))
}

// handlePlanTrip regenerates the itinerary for an existing trip.
func (h *apiHandlers) handlePlanTrip(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	spec, err := h.trips.GetOwnedTrip(r.Context(), authCtx, tripID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	planned, err := h.planner.PlanTrip(r.Context(), spec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visibleItinerary(authCtx, planned))
}

// handleFastDraft returns a quick greedy itinerary and persists it so the
// itinerary endpoint reflects the draft until a full plan replaces it.
func (h *apiHandlers) handleFastDraft(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	spec, err := h.trips.GetOwnedTrip(r.Context(), authCtx, tripID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	profile := h.prefs.BuildProfile(r.Context(), spec)
	days, err := h.drafter.Draft(r.Context(), spec, &profile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.itineraries.EnsureForTrip(r.Context(), tripID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.itineraries.SaveDays(r.Context(), tripID, days); err != nil {
		h.writeError(w, r, err)
		return
	}

	if isGuest(authCtx) && len(days) > 1 {
		locked := len(days) - 1
		writeJSON(w, http.StatusOK, map[string]any{"days": days[:1], "locked_days": locked})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

type dayChangesRequest struct {
	Changes []types.Change `json:"changes"`
}

func (h *apiHandlers) handleDayChanges(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dayNumber, err := pathInt(r, "day")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload dayChangesRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	day, err := h.editor.ApplyChanges(r.Context(), authCtx, tripID, dayNumber, payload.Changes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day})
}

type replacementOptionsRequest struct {
	DayNumber            int      `json:"day_number"`
	BlockIndex           int      `json:"block_index"`
	SameCategory         bool     `json:"same_category"`
	MaxDistanceMeters    int      `json:"max_distance_m"`
	Limit                int      `json:"limit"`
	ExcludeIDs           []string `json:"exclude_ids"`
	ExcludeExistingInDay bool     `json:"exclude_existing_in_day"`
}

func (h *apiHandlers) handleReplacementOptions(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload replacementOptionsRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.replacer.GetOptions(r.Context(), authCtx, replacement.OptionsRequest{
		TripID:               tripID,
		DayNumber:            payload.DayNumber,
		BlockIndex:           payload.BlockIndex,
		SameCategory:         payload.SameCategory,
		MaxDistanceMeters:    payload.MaxDistanceMeters,
		Limit:                payload.Limit,
		ExcludeIDs:           payload.ExcludeIDs,
		ExcludeExistingInDay: payload.ExcludeExistingInDay,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type replacementApplyRequest struct {
	DayNumber          int    `json:"day_number"`
	BlockIndex         int    `json:"block_index"`
	OldPlaceID         string `json:"old_place_id"`
	NewPlaceID         string `json:"new_place_id"`
	IdempotencyKey     string `json:"idempotency_key"`
	ClientRouteVersion *int64 `json:"client_route_version"`
}

func (h *apiHandlers) handleReplacementApply(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload replacementApplyRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	if payload.IdempotencyKey == "" {
		payload.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.replacer.Apply(r.Context(), authCtx, replacement.ApplyRequest{
		TripID:             tripID,
		DayNumber:          payload.DayNumber,
		BlockIndex:         payload.BlockIndex,
		OldPlaceID:         payload.OldPlaceID,
		NewPlaceID:         payload.NewPlaceID,
		IdempotencyKey:     payload.IdempotencyKey,
		ClientRouteVersion: payload.ClientRouteVersion,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *apiHandlers) handleChat(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload chatRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	reply, err := h.chat.Chat(r.Context(), authCtx, tripID, payload.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type saveTripRequest struct {
	HeroImage string `json:"hero_image"`
}

func (h *apiHandlers) handleSaveTrip(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload saveTripRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	var snapshot []types.ItineraryDay
	if itin, err := h.itineraries.GetByTripID(r.Context(), tripID); err == nil {
		snapshot = itin.Days
	}

	saved, err := h.trips.SaveTrip(r.Context(), authCtx, tripID, payload.HeroImage, snapshot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *apiHandlers) handleListSavedTrips(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	saved, err := h.trips.ListSavedTrips(r.Context(), authCtx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if saved == nil {
		saved = []types.SavedTrip{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved_trips": saved})
}

func (h *apiHandlers) handleDeleteSavedTrip(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthFrom(r.Context())
	tripID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.trips.DeleteSavedTrip(r.Context(), authCtx, tripID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isGuest(authCtx types.AuthContext) bool {
	return authCtx.UserID == nil && authCtx.DeviceID != nil
}

// visibleItinerary hides every day past the first from guest callers.
func visibleItinerary(authCtx types.AuthContext, itin *types.Itinerary) itineraryResponse {
	if authCtx.UserID != nil || itin == nil || len(itin.Days) <= 1 {
		return itineraryResponse{Itinerary: itin}
	}
	truncated := *itin
	truncated.Days = itin.Days[:1]
	return itineraryResponse{Itinerary: &truncated, LockedDays: len(itin.Days) - 1}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", types.ErrBadRequest, name)
	}
	return id, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", types.ErrBadRequest, name)
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", types.ErrBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *apiHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request handler failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(err, status)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrPaywallRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage keeps internal error details out of responses.
func errorMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
