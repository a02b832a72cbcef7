package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backtranslate/internal/translate"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "backtranslate.yaml"

// Config holds all backtranslate configuration.
type Config struct {
	// Translation backend
	Translation TranslationConfig `yaml:"translation"`

	// Decoding hyperparameters
	Decoding DecodingConfig `yaml:"decoding"`

	// Device placement
	Devices DevicesConfig `yaml:"devices"`

	// Object storage
	Storage StorageConfig `yaml:"storage"`

	// Output sinks
	Output OutputConfig `yaml:"output"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DevicesConfig configures which GPUs the run is spread over.
type DevicesConfig struct {
	GPUs   []int `yaml:"gpus"`
	NoCUDA bool  `yaml:"no_cuda"`

	// Available overrides device discovery when > 0.
	Available int `yaml:"available"`
}

// StorageConfig configures S3 access for s3:// dataset URIs.
type StorageConfig struct {
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"` // MinIO and friends
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// OutputConfig configures the optional sinks next to the TSV output.
type OutputConfig struct {
	PairsDB   string `yaml:"pairs_db"`   // SQLite export of (source, paraphrase, label)
	UsageFile bool   `yaml:"usage_file"` // write <output>.usage.json
	Clean     string `yaml:"clean"`      // auto, imdb, none
	Progress  bool   `yaml:"progress"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Translation: TranslationConfig{
			Provider:     translate.ProviderServer,
			Src2TgtModel: "transformer.wmt19.en-de.single_model",
			Tgt2SrcModel: "transformer.wmt19.de-en.single_model",
			SourceLang:   "en",
			PivotLang:    "de",
			Tokenizer:    "moses",
			BPE:          "fastbpe",
			Timeout:      "10m",
			MaxRetries:   3,
		},

		Decoding: DecodingConfig{
			MaxLen:      300,
			BeamSize:    1,
			Sampling:    true,
			TopK:        -1,
			TopP:        -1.0,
			Temperature: 0.9,
		},

		Storage: StorageConfig{
			S3Region: "us-east-1",
		},

		Output: OutputConfig{
			Clean:    "auto",
			Progress: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults still honor the environment.
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("BT_PROVIDER"); p != "" {
		c.Translation.Provider = p
	}
	if url := os.Getenv("BT_TRANSLATION_URL"); url != "" {
		c.Translation.BaseURL = url
	}
	// OLLAMA_HOST only means something to the ollama provider.
	if host := os.Getenv("OLLAMA_HOST"); host != "" && c.Translation.Provider == translate.ProviderOllama {
		c.Translation.BaseURL = host
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Translation.APIKey = key
	}
	// BT_API_KEY wins over provider-specific keys.
	if key := os.Getenv("BT_API_KEY"); key != "" {
		c.Translation.APIKey = key
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		c.Storage.S3Region = region
	}
	if path := os.Getenv("BT_PAIRS_DB"); path != "" {
		c.Output.PairsDB = path
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if err := c.Translation.Validate(); err != nil {
		return err
	}
	if err := c.Decoding.Validate(); err != nil {
		return err
	}
	switch c.Output.Clean {
	case "", "auto", "imdb", "none":
	default:
		return fmt.Errorf("output.clean must be auto, imdb or none, got %q", c.Output.Clean)
	}
	for _, g := range c.Devices.GPUs {
		if g < 0 {
			return fmt.Errorf("devices.gpus contains negative index %d", g)
		}
	}
	return nil
}

// GetTranslationTimeout returns the per-request provider timeout as a duration.
func (c *Config) GetTranslationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Translation.Timeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}
