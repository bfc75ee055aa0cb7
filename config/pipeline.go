package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simon020286/go-transforms/models"
)

// PipelineConfig represents the complete pipeline configuration from YAML
type PipelineConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// AttemptJSONConversion parses STRING and BYTES sides holding a JSON object into trees
	AttemptJSONConversion bool `yaml:"attempt_json_conversion,omitempty"`

	OpenAI      *OpenAIConfig      `yaml:"openai,omitempty"`
	HuggingFace *HuggingFaceConfig `yaml:"huggingface,omitempty"`
	DataSource  *DataSourceConfig  `yaml:"datasource,omitempty"`

	// EmbeddingsCacheSize caches the vectors of that many recent texts per
	// embeddings step; zero disables the cache
	EmbeddingsCacheSize int `yaml:"embeddings_cache_size,omitempty"`

	Steps []StepConfig `yaml:"steps"`
}

// StepConfig is one entry of the steps list. Every key other than type and
// when is step specific and is decoded by the step factory.
type StepConfig struct {
	Type   string         `yaml:"type"`
	When   string         `yaml:"when,omitempty"` // optional predicate expression
	Config map[string]any `yaml:",inline"`
}

// OpenAIConfig configures the completions and embeddings client
type OpenAIConfig struct {
	URL       string        `yaml:"url,omitempty"`
	AccessKey string        `yaml:"access_key"`         // accepts $env:NAME
	Provider  string        `yaml:"provider,omitempty"` // openai (default) or azure
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// HuggingFaceConfig configures the embeddings client of the inference API
type HuggingFaceConfig struct {
	APIURL    string         `yaml:"api_url,omitempty"`
	AccessKey string         `yaml:"access_key,omitempty"` // accepts $env:NAME
	Provider  string         `yaml:"provider,omitempty"`   // only "api" is supported
	Options   map[string]any `yaml:"options,omitempty"`
	Timeout   time.Duration  `yaml:"timeout,omitempty"`
}

// DataSourceConfig configures the datasource used by query steps
type DataSourceConfig struct {
	Service  string `yaml:"service"`          // postgres, mysql, sqlite, sqlserver, duckdb, mongodb
	Driver   string `yaml:"driver,omitempty"` // overrides the database/sql driver name
	URL      string `yaml:"url"`              // DSN or connection URI, accepts $env:NAME
	Database string `yaml:"database,omitempty"`

	// MaxOpenConns bounds the SQL connection pool; zero keeps the driver default
	MaxOpenConns int `yaml:"max_open_conns,omitempty"`
}

// Parse reads a pipeline configuration from YAML and validates its structure
func Parse(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &models.ConfigError{Msg: "failed to parse YAML", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses a pipeline configuration file
func LoadFile(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Validate checks the parts of the configuration that do not depend on step types
func (c *PipelineConfig) Validate() error {
	if len(c.Steps) == 0 {
		return &models.ConfigError{Msg: "Missing config 'steps' field"}
	}
	for i, step := range c.Steps {
		if step.Type == "" {
			return &models.ConfigError{Msg: fmt.Sprintf("step %d: missing 'type'", i)}
		}
	}
	if c.EmbeddingsCacheSize < 0 {
		return &models.ConfigError{Msg: "'embeddings_cache_size' must not be negative"}
	}
	if c.DataSource != nil && c.DataSource.Service == "" {
		return &models.ConfigError{Msg: "datasource: missing 'service'"}
	}
	return nil
}
