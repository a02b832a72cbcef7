package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"backtranslate/internal/translate"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Translation.Provider != translate.ProviderServer {
		t.Errorf("expected Provider=server, got %s", cfg.Translation.Provider)
	}
	if cfg.Translation.Src2TgtModel != "transformer.wmt19.en-de.single_model" {
		t.Errorf("unexpected src2tgt model %s", cfg.Translation.Src2TgtModel)
	}
	if cfg.Decoding.MaxLen != 300 || cfg.Decoding.BeamSize != 1 {
		t.Errorf("expected max_len=300 beam=1, got %d/%d", cfg.Decoding.MaxLen, cfg.Decoding.BeamSize)
	}
	if !cfg.Decoding.Sampling || cfg.Decoding.Temperature != 0.9 {
		t.Errorf("expected sampling with temperature 0.9, got %v/%v", cfg.Decoding.Sampling, cfg.Decoding.Temperature)
	}
	if cfg.Decoding.TopK != -1 || cfg.Decoding.TopP != -1 {
		t.Errorf("expected topk/topp disabled, got %d/%v", cfg.Decoding.TopK, cfg.Decoding.TopP)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	// Ensure no env vars interfere
	t.Setenv("BT_PROVIDER", "")
	t.Setenv("BT_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "backtranslate.yaml")

	cfg := DefaultConfig()
	cfg.Translation.Provider = translate.ProviderOllama
	cfg.Translation.Endpoints = []string{"http://gpu0:11434", "http://gpu1:11434"}
	cfg.Decoding.BatchSize = 32

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Translation.Provider != translate.ProviderOllama {
		t.Errorf("expected Provider=ollama, got %s", loaded.Translation.Provider)
	}
	if len(loaded.Translation.Endpoints) != 2 {
		t.Errorf("expected 2 endpoints, got %v", loaded.Translation.Endpoints)
	}
	if loaded.Decoding.BatchSize != 32 {
		t.Errorf("expected BatchSize=32, got %d", loaded.Decoding.BatchSize)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("BT_PROVIDER", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Decoding.MaxLen != 300 {
		t.Errorf("expected defaults, got max_len=%d", cfg.Decoding.MaxLen)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("decoding:\n  batch_size: 8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Decoding.BatchSize != 8 || cfg.Decoding.MaxLen != 300 {
		t.Errorf("expected batch=8 max_len=300, got %d/%d", cfg.Decoding.BatchSize, cfg.Decoding.MaxLen)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("decoding: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	// Default has no batch size
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing batch size")
	}

	cfg.Decoding.BatchSize = 16
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Translation.Provider = translate.ProviderGenAI
	cfg.Translation.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for genai without api key")
	}

	cfg = DefaultConfig()
	cfg.Decoding.BatchSize = 1
	cfg.Output.Clean = "html"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown clean mode")
	}

	cfg = DefaultConfig()
	cfg.Decoding.BatchSize = 1
	cfg.Devices.GPUs = []int{0, -2}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative gpu")
	}
}

func TestDecodingConfig_Validate(t *testing.T) {
	base := DefaultConfig().Decoding
	base.BatchSize = 4

	cases := []struct {
		name   string
		mutate func(d *DecodingConfig)
	}{
		{"zero max_len", func(d *DecodingConfig) { d.MaxLen = 0 }},
		{"zero beam", func(d *DecodingConfig) { d.BeamSize = 0 }},
		{"sampling at zero temperature", func(d *DecodingConfig) { d.Temperature = 0 }},
		{"topp above one", func(d *DecodingConfig) { d.TopP = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base
			tc.mutate(&d)
			if err := d.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}

	greedy := base
	greedy.Sampling = false
	greedy.Temperature = 0
	if err := greedy.Validate(); err != nil {
		t.Errorf("greedy decoding should not need a temperature: %v", err)
	}
}

func TestTranslationConfig_EndpointFor(t *testing.T) {
	tc := TranslationConfig{BaseURL: "http://base", Endpoints: []string{"http://a", "http://b"}}
	if got := tc.EndpointFor(1); got != "http://b" {
		t.Errorf("EndpointFor(1)=%s", got)
	}
	if got := tc.EndpointFor(5); got != "http://base" {
		t.Errorf("EndpointFor(5)=%s", got)
	}
}

func TestGetTranslationTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetTranslationTimeout(); got != 10*time.Minute {
		t.Errorf("expected 10m, got %v", got)
	}
	cfg.Translation.Timeout = "garbage"
	if got := cfg.GetTranslationTimeout(); got != 10*time.Minute {
		t.Errorf("expected fallback 10m, got %v", got)
	}
	cfg.Translation.Timeout = "45s"
	if got := cfg.GetTranslationTimeout(); got != 45*time.Second {
		t.Errorf("expected 45s, got %v", got)
	}
}
