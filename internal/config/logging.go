package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`   // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"` // json, console
	File       string          `yaml:"file" json:"file,omitempty"`     // extra sink next to stderr
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"` // missing means enabled
}
