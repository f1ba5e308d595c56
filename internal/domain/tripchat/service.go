// Package tripchat turns free-form traveler messages into merged trip spec
// updates. The assistant can only patch a handful of fields; everything else
// on the spec is off limits.
package tripchat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voyplan/voyplan-api/internal/domain/trip"
	"github.com/voyplan/voyplan-api/internal/llm"
	"github.com/voyplan/voyplan-api/internal/types"
)

const responseTTL = time.Hour

// Reply is the assistant's answer plus whether the spec changed.
type Reply struct {
	AssistantMessage string          `json:"assistant_message"`
	UpdatedSpec      *types.TripSpec `json:"updated_spec,omitempty"`
	SpecChanged      bool            `json:"spec_changed"`
}

type Service interface {
	Chat(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID, message string) (*Reply, error)
}

var _ Service = (*ServiceImpl)(nil)

type ServiceImpl struct {
	logger    *slog.Logger
	trips     trip.Service
	llm       llm.Gateway
	responses *cache.Cache
}

func NewService(trips trip.Service, gateway llm.Gateway, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:    logger,
		trips:     trips,
		llm:       gateway,
		responses: cache.New(responseTTL, 2*responseTTL),
	}
}

// tripUpdates is the patch shape the LLM may emit. Absent fields leave the
// spec untouched.
type tripUpdates struct {
	Interests             []string                     `json:"interests,omitempty"`
	AdditionalPreferences map[string]string            `json:"additional_preferences,omitempty"`
	StructuredPreferences []types.StructuredPreference `json:"structured_preferences,omitempty"`
	Pace                  string                       `json:"pace,omitempty"`
	Budget                string                       `json:"budget,omitempty"`
}

type chatResponse struct {
	AssistantMessage string       `json:"assistant_message"`
	TripUpdates      *tripUpdates `json:"trip_updates,omitempty"`
}

func (s *ServiceImpl) Chat(ctx context.Context, authCtx types.AuthContext, tripID uuid.UUID, message string) (*Reply, error) {
	ctx, span := otel.Tracer("TripChat").Start(ctx, "Chat", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
	))
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: empty message", types.ErrBadRequest)
	}

	spec, err := s.trips.GetOwnedTrip(ctx, authCtx, tripID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	key := responseKey(tripID, message)
	if cached, ok := s.responses.Get(key); ok {
		return cached.(*Reply), nil
	}

	if s.llm == nil {
		return nil, types.ErrProviderUnavailable
	}
	var resp chatResponse
	if err := s.llm.GenerateStructured(ctx, chatPrompt(spec, message), chatSystemPrompt, 1024, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}

	reply := &Reply{AssistantMessage: resp.AssistantMessage}
	if resp.TripUpdates != nil {
		changed := mergeUpdates(spec, resp.TripUpdates)
		if changed {
			if err := s.trips.UpdateSpec(ctx, spec); err != nil {
				span.RecordError(err)
				return nil, err
			}
			reply.UpdatedSpec = spec
			reply.SpecChanged = true
		}
	}

	s.responses.SetDefault(key, reply)
	s.logger.InfoContext(ctx, "chat handled",
		slog.String("trip_id", tripID.String()),
		slog.Bool("spec_changed", reply.SpecChanged))
	span.SetStatus(codes.Ok, "")
	return reply, nil
}

// mergeUpdates folds the patch into the spec. Interests are a set union,
// preferences a keyed merge, structured wishes an append; pace and budget
// override outright.
func mergeUpdates(spec *types.TripSpec, updates *tripUpdates) bool {
	changed := false

	if len(updates.Interests) > 0 {
		merged := trip.NormalizeInterests(append(append([]string{}, spec.Interests...), updates.Interests...))
		if len(merged) != len(spec.Interests) {
			spec.Interests = merged
			changed = true
		}
	}

	if len(updates.AdditionalPreferences) > 0 {
		if spec.AdditionalPreferences == nil {
			spec.AdditionalPreferences = make(map[string]string, len(updates.AdditionalPreferences))
		}
		for k, v := range updates.AdditionalPreferences {
			if spec.AdditionalPreferences[k] != v {
				spec.AdditionalPreferences[k] = v
				changed = true
			}
		}
	}

	if len(updates.StructuredPreferences) > 0 {
		spec.StructuredPreferences = append(spec.StructuredPreferences, updates.StructuredPreferences...)
		changed = true
	}

	if pace := types.Pace(updates.Pace); pace == types.PaceSlow || pace == types.PaceMedium || pace == types.PaceFast {
		if spec.Pace != pace {
			spec.Pace = pace
			changed = true
		}
	}
	if budget := types.Budget(updates.Budget); budget == types.BudgetLow || budget == types.BudgetMedium || budget == types.BudgetHigh {
		if spec.Budget != budget {
			spec.Budget = budget
			changed = true
		}
	}
	return changed
}

func responseKey(tripID uuid.UUID, message string) string {
	return tripID.String() + "|" + strings.ToLower(strings.Join(strings.Fields(message), " "))
}

const chatSystemPrompt = `You are a travel planning assistant chatting about one specific trip. Answer the traveler's message helpfully in one or two sentences. When the message expresses a lasting wish about the trip (interests, food preferences, pace, budget), also emit trip_updates. Respond with JSON only: {"assistant_message": "...", "trip_updates": {"interests": [...], "additional_preferences": {...}, "structured_preferences": [...], "pace": "slow|medium|fast", "budget": "low|medium|high"}}. Omit trip_updates entirely for small talk.`

func chatPrompt(spec *types.TripSpec, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trip: %d days in %s, pace %s, budget %s.\n", spec.DayCount(), spec.City, spec.Pace, spec.Budget)
	if len(spec.Interests) > 0 {
		fmt.Fprintf(&b, "Current interests: %s.\n", strings.Join(spec.Interests, ", "))
	}
	for k, v := range spec.AdditionalPreferences {
		fmt.Fprintf(&b, "Preference %s: %s\n", k, v)
	}
	fmt.Fprintf(&b, "\nTraveler says: %s\n", message)
	return b.String()
}
