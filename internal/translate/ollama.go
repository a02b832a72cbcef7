package translate

import (
	"context"
	"fmt"
	"strings"

	"backtranslate/internal/logging"
	"backtranslate/internal/usage"

	"go.uber.org/zap"
)

// =============================================================================
// OLLAMA TRANSLATION ENGINE
// =============================================================================

// OllamaEngine translates with an instruction-tuned model on a local Ollama
// server. Multi-GPU runs point each device at its own Ollama instance.
type OllamaEngine struct {
	endpoint string
	route    Route
	system   string
	http     *httpDoer
}

// NewOllamaEngine creates a new Ollama translation engine.
func NewOllamaEngine(cfg Config, route Route) (*OllamaEngine, error) {
	endpoint := cfg.endpoint(route.Slot)
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}

	return &OllamaEngine{
		endpoint: strings.TrimRight(endpoint, "/"),
		route:    route,
		system:   translationInstruction(route.From, route.To),
		http:     newHTTPDoer(cfg),
	}, nil
}

// Translate issues one generate call per text, at most BatchSize at a time.
// Ollama has no beam search; BeamSize is ignored.
func (e *OllamaEngine) Translate(ctx context.Context, texts []string, opts DecodeOptions) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if opts.BeamSize > 1 && !opts.Sampling {
		logging.Get(logging.CategoryTranslate).Debug("Ollama ignores beam size; decoding greedily",
			zap.Int("beam_size", opts.BeamSize))
	}

	options := ollamaOptions{
		Temperature: opts.effectiveTemperature(),
		NumPredict:  opts.MaxLen,
	}
	if opts.Sampling && opts.TopK > 0 {
		options.TopK = opts.TopK
	}
	if opts.Sampling && opts.TopP > 0 {
		options.TopP = opts.TopP
	}

	return translateEach(ctx, texts, opts.BatchSize, func(ctx context.Context, text string) (string, error) {
		return e.generate(ctx, text, options)
	})
}

func (e *OllamaEngine) generate(ctx context.Context, text string, options ollamaOptions) (string, error) {
	req := ollamaGenerateRequest{
		Model:   e.route.Model,
		System:  e.system,
		Prompt:  text,
		Stream:  false,
		Options: options,
	}

	var resp ollamaGenerateResponse
	if err := e.http.postJSON(ctx, e.endpoint+"/api/generate", req, &resp); err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", resp.Error)
	}

	if tracker := usage.FromContext(ctx); tracker != nil {
		tracker.Track(ctx, e.route.Model, ProviderOllama, resp.PromptEvalCount, resp.EvalCount)
	}

	return strings.TrimSpace(resp.Response), nil
}

// Name returns the engine name.
func (e *OllamaEngine) Name() string {
	return fmt.Sprintf("ollama:%s@%s", e.route.Model, DeviceName(e.route.Device))
}

// =============================================================================
// OLLAMA API TYPES
// =============================================================================

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}
