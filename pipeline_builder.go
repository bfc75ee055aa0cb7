package transforms

import (
	"context"
	"fmt"
	"io"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/expression"
	"github.com/simon020286/go-transforms/models"
	"github.com/simon020286/go-transforms/services/datasource"
	"github.com/simon020286/go-transforms/services/embeddings"
	"github.com/simon020286/go-transforms/services/huggingface"
	"github.com/simon020286/go-transforms/services/openai"
)

// BuildFromConfig builds a pipeline from a configuration. Capability clients
// are created from the openai, huggingface and datasource sections unless an
// option already provides them.
func BuildFromConfig(ctx context.Context, cfg *config.PipelineConfig, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts = append([]Option{
		WithAttemptJSONConversion(cfg.AttemptJSONConversion),
		WithEmbeddingsCache(cfg.EmbeddingsCacheSize),
	}, opts...)
	pipeline := NewPipeline(opts...)

	if err := pipeline.connectServices(ctx, cfg); err != nil {
		pipeline.Close()
		return nil, err
	}

	// Create the steps in order; each one sees the same dependencies
	for i, stepConfig := range cfg.Steps {
		stepType := builder.CanonicalStepType(stepConfig.Type)
		step, err := builder.CreateStep(stepType, stepConfig.Config, &pipeline.deps)
		if err != nil {
			pipeline.Close()
			return nil, fmt.Errorf("step %d (%s): %w", i, stepType, err)
		}

		var predicate models.Predicate
		if stepConfig.When != "" {
			p, err := expression.NewPredicate(stepConfig.When)
			if err != nil {
				pipeline.Close()
				return nil, fmt.Errorf("step %d (%s): invalid 'when': %w", i, stepType, err)
			}
			predicate = p
		}

		if c, ok := step.(io.Closer); ok {
			pipeline.closers = append(pipeline.closers, c)
		}
		pipeline.AddStep(stepType, step, predicate)
	}

	pipeline.logger.Debug("pipeline built", "name", cfg.Name, "steps", len(pipeline.steps))
	return pipeline, nil
}

// connectServices creates the capability clients of the configuration
func (p *Pipeline) connectServices(ctx context.Context, cfg *config.PipelineConfig) error {
	if cfg.OpenAI != nil {
		client, err := openai.New(cfg.OpenAI)
		if err != nil {
			return err
		}
		if p.deps.Completions == nil {
			p.deps.Completions = client
		}
		if _, ok := p.deps.Embeddings[builder.ServiceOpenAI]; !ok {
			WithEmbeddingsProvider(builder.ServiceOpenAI, client)(p)
		}
		p.logger.Info("openai client configured", "provider", client.Provider())
	}

	if cfg.HuggingFace != nil {
		if _, ok := p.deps.Embeddings[builder.ServiceHuggingFace]; !ok {
			client, err := huggingface.New(cfg.HuggingFace)
			if err != nil {
				return err
			}
			WithEmbeddingsProvider(builder.ServiceHuggingFace, client)(p)
			p.logger.Info("huggingface client configured")
		}
	}

	if p.cacheSize > 0 {
		for service, provider := range p.deps.Embeddings {
			p.deps.Embeddings[service] = embeddings.NewCachingProvider(provider, p.cacheSize)
		}
	}

	if cfg.DataSource != nil && p.deps.DataSource == nil {
		ds, err := datasource.Open(ctx, cfg.DataSource)
		if err != nil {
			return err
		}
		p.deps.DataSource = ds
		p.logger.Info("datasource connected", "service", cfg.DataSource.Service)
	}
	return nil
}
