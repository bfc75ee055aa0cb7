package builder

import (
	"fmt"
	"log/slog"

	"github.com/simon020286/go-transforms/models"
)

// Embeddings service names
const (
	ServiceOpenAI      = "openai"
	ServiceHuggingFace = "huggingface"
)

// Dependencies carries the pipeline-wide settings and the optional external
// capabilities a step may need. A step that needs a missing capability fails
// at build time.
type Dependencies struct {
	AttemptJSONConversion bool
	Completions           models.ChatCompletionsService
	Embeddings            map[string]models.EmbeddingsProvider
	DataSource            models.QueryStepDataSource
	Logger                *slog.Logger
}

// Log returns the configured logger or slog.Default
func (d *Dependencies) Log() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// EmbeddingsProvider selects the provider for service. An empty service picks
// openai when configured, huggingface otherwise.
func (d *Dependencies) EmbeddingsProvider(service string) (models.EmbeddingsProvider, string, error) {
	var providers map[string]models.EmbeddingsProvider
	if d != nil {
		providers = d.Embeddings
	}
	if service == "" {
		if _, ok := providers[ServiceOpenAI]; ok {
			service = ServiceOpenAI
		} else {
			service = ServiceHuggingFace
		}
	}
	p, ok := providers[service]
	if !ok || p == nil {
		return nil, service, fmt.Errorf("the %s client must be configured for this step", service)
	}
	return p, service, nil
}

// CreateStep creates a step based on type and configuration
func CreateStep(stepType string, stepConfig map[string]any, deps *Dependencies) (models.Step, error) {
	factory, err := GetStepFactory(stepType)
	if err != nil {
		return nil, err
	}
	if deps == nil {
		deps = &Dependencies{}
	}
	if stepConfig == nil {
		stepConfig = map[string]any{}
	}
	return factory(stepConfig, deps)
}
