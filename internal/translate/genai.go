package translate

import (
	"context"
	"fmt"
	"strings"

	"backtranslate/internal/usage"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GENAI TRANSLATION ENGINE
// =============================================================================

// GenAIEngine translates using Google's Gemini API. The device is ignored.
type GenAIEngine struct {
	client *genai.Client
	route  Route
	system *genai.Content
}

// NewGenAIEngine creates a new GenAI translation engine.
func NewGenAIEngine(cfg Config, route Route) (*GenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	// BaseURL only overrides the default when pointed at a proxy or test server.
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		cc.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEngine{
		client: client,
		route:  route,
		system: genai.NewContentFromText(translationInstruction(route.From, route.To), genai.RoleUser),
	}, nil
}

// Translate issues one GenerateContent call per text, at most BatchSize at a time.
func (e *GenAIEngine) Translate(ctx context.Context, texts []string, opts DecodeOptions) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	gc := &genai.GenerateContentConfig{
		SystemInstruction: e.system,
		Temperature:       genai.Ptr(float32(opts.effectiveTemperature())),
		CandidateCount:    1,
		MaxOutputTokens:   int32(opts.MaxLen),
	}
	if opts.Sampling && opts.TopK > 0 {
		gc.TopK = genai.Ptr(float32(opts.TopK))
	}
	if opts.Sampling && opts.TopP > 0 {
		gc.TopP = genai.Ptr(float32(opts.TopP))
	}

	return translateEach(ctx, texts, opts.BatchSize, func(ctx context.Context, text string) (string, error) {
		return e.generate(ctx, text, gc)
	})
}

func (e *GenAIEngine) generate(ctx context.Context, text string, gc *genai.GenerateContentConfig) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.GenerateContent(ctx, e.route.Model, contents, gc)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}

	if tracker := usage.FromContext(ctx); tracker != nil && result.UsageMetadata != nil {
		tracker.Track(ctx, e.route.Model, ProviderGenAI,
			int(result.UsageMetadata.PromptTokenCount),
			int(result.UsageMetadata.CandidatesTokenCount))
	}

	return strings.TrimSpace(result.Text()), nil
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.route.Model)
}
