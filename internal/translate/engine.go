// Package translate wraps the external translation models used for
// back-translation. Supports three backends: a self-hosted translation server
// (fairseq / MarianMT style), Ollama (local LLM) and Google GenAI (cloud).
package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backtranslate/internal/logging"

	"go.uber.org/zap"
)

// =============================================================================
// ENGINE INTERFACE
// =============================================================================

// Engine translates text in one fixed direction.
type Engine interface {
	// Translate returns one translation per input, in input order.
	Translate(ctx context.Context, texts []string, opts DecodeOptions) ([]string, error)

	// Name returns the engine name
	Name() string
}

// ErrCountMismatch is returned when a provider answers a batch with the wrong
// number of translations.
var ErrCountMismatch = errors.New("translation count does not match input count")

// CPUDevice marks a worker that is not pinned to a GPU.
const CPUDevice = -1

// DeviceName formats a device index for logs and usage keys.
func DeviceName(device int) string {
	if device < 0 {
		return "cpu"
	}
	return fmt.Sprintf("cuda:%d", device)
}

// =============================================================================
// DECODING OPTIONS
// =============================================================================

// DecodeOptions carries the decoding hyperparameters for one run.
type DecodeOptions struct {
	BatchSize   int
	MaxLen      int
	BeamSize    int
	Sampling    bool
	TopK        int     // <= 0: unrestricted
	TopP        float64 // <= 0: unrestricted
	Temperature float64

	// Passed through to the server provider.
	Tokenizer string
	BPE       string
}

// Validate checks the options before any request is made.
func (o DecodeOptions) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("batch size must be > 0, got %d", o.BatchSize)
	}
	if o.MaxLen <= 0 {
		return fmt.Errorf("max len must be > 0, got %d", o.MaxLen)
	}
	if o.BeamSize < 1 {
		return fmt.Errorf("beam size must be >= 1, got %d", o.BeamSize)
	}
	if o.Sampling && o.Temperature <= 0 {
		return fmt.Errorf("temperature must be > 0 when sampling, got %v", o.Temperature)
	}
	if o.TopP > 1 {
		return fmt.Errorf("sampling top-p must be <= 1, got %v", o.TopP)
	}
	return nil
}

// effectiveTemperature is what LLM providers receive: greedy decoding is
// temperature zero.
func (o DecodeOptions) effectiveTemperature() float64 {
	if !o.Sampling {
		return 0
	}
	return o.Temperature
}

// =============================================================================
// ENGINE CONFIGURATION
// =============================================================================

// DefaultServerURL is where the translation server listens unless configured.
const DefaultServerURL = "http://localhost:8090"

// Provider names.
const (
	ProviderServer = "server"
	ProviderOllama = "ollama"
	ProviderGenAI  = "genai"
)

// Config holds translation engine configuration.
type Config struct {
	// Provider: "server", "ollama" or "genai"
	Provider string

	BaseURL   string   // empty: provider default
	Endpoints []string // per device position; falls back to BaseURL
	APIKey    string

	Timeout          time.Duration
	MaxRetries       int
	RetryBackoffBase time.Duration // default 1s
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:         ProviderServer,
		Timeout:          10 * time.Minute,
		MaxRetries:       3,
		RetryBackoffBase: time.Second,
	}
}

// Route describes one translation direction served on one device.
type Route struct {
	Model  string
	From   string // source language code
	To     string // target language code
	Device int    // CPUDevice or GPU index
	Slot   int    // position of the device in the run, selects Endpoints
}

func (c Config) endpoint(slot int) string {
	if slot >= 0 && slot < len(c.Endpoints) && c.Endpoints[slot] != "" {
		return c.Endpoints[slot]
	}
	return c.BaseURL
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates a translation engine for the route based on configuration.
func NewEngine(cfg Config, route Route) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryTranslate, "NewEngine")
	defer timer.Stop()

	log := logging.Get(logging.CategoryTranslate)
	log.Debug("Creating translation engine",
		zap.String("provider", cfg.Provider),
		zap.String("model", route.Model),
		zap.String("from", route.From),
		zap.String("to", route.To),
		zap.String("device", DeviceName(route.Device)))

	if route.Model == "" {
		return nil, fmt.Errorf("translation model is required")
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = time.Second
	}

	var engine Engine
	var err error

	switch cfg.Provider {
	case ProviderServer:
		engine, err = NewServerEngine(cfg, route)
	case ProviderOllama:
		engine, err = NewOllamaEngine(cfg, route)
	case ProviderGenAI:
		engine, err = NewGenAIEngine(cfg, route)
	default:
		err = fmt.Errorf("unsupported translation provider: %s (use 'server', 'ollama' or 'genai')", cfg.Provider)
	}

	if err != nil {
		log.Error("Failed to create translation engine", zap.Error(err))
		return nil, err
	}

	log.Debug("Translation engine created", zap.String("name", engine.Name()))
	return engine, nil
}
