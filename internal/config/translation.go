package config

import (
	"fmt"

	"backtranslate/internal/translate"
)

// TranslationConfig configures the external translation models.
type TranslationConfig struct {
	Provider     string `yaml:"provider"` // server, ollama, genai
	Src2TgtModel string `yaml:"src2tgt_model"`
	Tgt2SrcModel string `yaml:"tgt2src_model"`
	SourceLang   string `yaml:"source_lang"`
	PivotLang    string `yaml:"pivot_lang"`

	// Forwarded to the server provider, which owns tokenization and BPE.
	Tokenizer string `yaml:"tokenizer"`
	BPE       string `yaml:"bpe"`

	BaseURL string `yaml:"base_url"` // empty: provider default
	APIKey  string `yaml:"api_key"`

	// Endpoints maps device position to a base URL, one model host per GPU.
	// When set, its length is the number of available devices.
	Endpoints []string `yaml:"endpoints"`

	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// Validate checks provider and model settings.
func (t *TranslationConfig) Validate() error {
	switch t.Provider {
	case translate.ProviderServer, translate.ProviderOllama:
	case translate.ProviderGenAI:
		if t.APIKey == "" {
			return fmt.Errorf("translation.api_key (or GEMINI_API_KEY) is required for provider %q", t.Provider)
		}
	default:
		return fmt.Errorf("unsupported translation provider: %s (use 'server', 'ollama' or 'genai')", t.Provider)
	}
	if t.Src2TgtModel == "" || t.Tgt2SrcModel == "" {
		return fmt.Errorf("both src2tgt_model and tgt2src_model are required")
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("translation.max_retries must be >= 0")
	}
	return nil
}

// EndpointFor returns the base URL serving the device at position i.
func (t *TranslationConfig) EndpointFor(i int) string {
	if i >= 0 && i < len(t.Endpoints) {
		return t.Endpoints[i]
	}
	return t.BaseURL
}

// DecodingConfig holds the decoding hyperparameters.
type DecodingConfig struct {
	BatchSize   int     `yaml:"batch_size"`
	MaxLen      int     `yaml:"max_len"`
	BeamSize    int     `yaml:"beam_size"`
	Sampling    bool    `yaml:"sampling"`
	TopK        int     `yaml:"sampling_topk"` // <= 0 disables top-k
	TopP        float64 `yaml:"sampling_topp"` // <= 0 disables nucleus sampling
	Temperature float64 `yaml:"temperature"`
}

// Validate checks decoding hyperparameters.
func (d *DecodingConfig) Validate() error {
	if d.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0, got %d", d.BatchSize)
	}
	if d.MaxLen <= 0 {
		return fmt.Errorf("max_len must be > 0, got %d", d.MaxLen)
	}
	if d.BeamSize < 1 {
		return fmt.Errorf("beam_size must be >= 1, got %d", d.BeamSize)
	}
	if d.Sampling && d.Temperature <= 0 {
		return fmt.Errorf("temperature must be > 0 when sampling, got %v", d.Temperature)
	}
	if d.TopP > 1 {
		return fmt.Errorf("sampling_topp must be <= 1, got %v", d.TopP)
	}
	return nil
}
