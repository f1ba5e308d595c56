package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	generativeAI "github.com/FACorreiaa/go-genai-sdk/lib"
	"google.golang.org/genai"

	"github.com/voyplan/voyplan-api/internal/types"
)

// Gateway abstracts the LLM capabilities the planning stages consume. Every
// caller must treat an error as a signal to run its deterministic fallback.
type Gateway interface {
	GenerateText(ctx context.Context, prompt, system string, maxTokens int) (string, error)
	GenerateStructured(ctx context.Context, prompt, system string, maxTokens int, out any) error
}

// GeminiGateway adapts the generativeAI chat client to the Gateway interface.
type GeminiGateway struct {
	client generativeAI.ChatClient
	apiKey string
	logger *slog.Logger
}

// NewGeminiGateway connects to Gemini. model overrides the SDK default when
// non-empty.
func NewGeminiGateway(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiGateway, error) {
	client, err := generativeAI.NewGeminiChatClient(ctx, apiKey, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGateway{client: client, apiKey: apiKey, logger: logger}, nil
}

// Model reports the model name requests are issued against.
func (g *GeminiGateway) Model() string {
	return g.client.Model()
}

func (g *GeminiGateway) GenerateText(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	text, err := g.client.GenerateContent(ctx, prompt, g.apiKey, cfg)
	if err != nil {
		g.logger.WarnContext(ctx, "llm text generation failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)
	}
	return text, nil
}

func (g *GeminiGateway) GenerateStructured(ctx context.Context, prompt, system string, maxTokens int, out any) error {
	raw, err := g.GenerateText(ctx, prompt, system, maxTokens)
	if err != nil {
		return err
	}
	cleaned := ExtractJSON(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		g.logger.WarnContext(ctx, "llm returned unparseable JSON",
			slog.Any("error", err), slog.Int("response_length", len(raw)))
		return fmt.Errorf("%w: malformed structured response: %v", types.ErrProviderUnavailable, err)
	}
	return nil
}
