package translate

import (
	"context"
	"fmt"
	"strings"

	"backtranslate/internal/usage"
)

// =============================================================================
// TRANSLATION SERVER ENGINE
// =============================================================================

// ServerEngine talks to a self-hosted translation server that owns the
// pretrained model, tokenizer, BPE and decoder. One request per batch.
type ServerEngine struct {
	endpoint string
	route    Route
	http     *httpDoer
}

// NewServerEngine creates a server engine for the route.
func NewServerEngine(cfg Config, route Route) (*ServerEngine, error) {
	endpoint := cfg.endpoint(route.Slot)
	if endpoint == "" {
		endpoint = DefaultServerURL
	}

	doer := newHTTPDoer(cfg)
	if cfg.APIKey != "" {
		doer.headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	return &ServerEngine{
		endpoint: strings.TrimRight(endpoint, "/"),
		route:    route,
		http:     doer,
	}, nil
}

// Translate sends the whole batch in one request.
func (e *ServerEngine) Translate(ctx context.Context, texts []string, opts DecodeOptions) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := serverTranslateRequest{
		Model:        e.route.Model,
		SourceLang:   e.route.From,
		TargetLang:   e.route.To,
		Texts:        texts,
		Device:       e.route.Device,
		Tokenizer:    opts.Tokenizer,
		BPE:          opts.BPE,
		BeamSize:     opts.BeamSize,
		Sampling:     opts.Sampling,
		SamplingTopK: opts.TopK,
		SamplingTopP: opts.TopP,
		Temperature:  opts.Temperature,
		MaxLen:       opts.MaxLen,
	}

	var resp serverTranslateResponse
	if err := e.http.postJSON(ctx, e.endpoint+"/translate", req, &resp); err != nil {
		return nil, fmt.Errorf("translation server request failed: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("translation server error: %s", resp.Error)
	}
	if len(resp.Translations) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(texts), len(resp.Translations))
	}

	if tracker := usage.FromContext(ctx); tracker != nil {
		tracker.Track(ctx, e.route.Model, ProviderServer, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	return resp.Translations, nil
}

// Name returns the engine name.
func (e *ServerEngine) Name() string {
	return fmt.Sprintf("server:%s@%s", e.route.Model, DeviceName(e.route.Device))
}

// =============================================================================
// TRANSLATION SERVER API TYPES
// =============================================================================

type serverTranslateRequest struct {
	Model        string   `json:"model"`
	SourceLang   string   `json:"source_lang"`
	TargetLang   string   `json:"target_lang"`
	Texts        []string `json:"texts"`
	Device       int      `json:"device"` // -1 = cpu
	Tokenizer    string   `json:"tokenizer,omitempty"`
	BPE          string   `json:"bpe,omitempty"`
	BeamSize     int      `json:"beam"`
	Sampling     bool     `json:"sampling"`
	SamplingTopK int      `json:"sampling_topk"`
	SamplingTopP float64  `json:"sampling_topp"`
	Temperature  float64  `json:"temperature"`
	MaxLen       int      `json:"max_len"`
}

type serverTranslateResponse struct {
	Translations []string `json:"translations"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error string `json:"error,omitempty"`
}
