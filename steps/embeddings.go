package steps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/expression"
	"github.com/simon020286/go-transforms/fieldpath"
	"github.com/simon020286/go-transforms/models"
)

// default models per embeddings service
var defaultEmbeddingsModels = map[string]string{
	builder.ServiceOpenAI:      "text-embedding-ada-002",
	builder.ServiceHuggingFace: "sentence-transformers/all-MiniLM-L6-v2",
}

// @step name=compute-ai-embeddings category=ai aliases=compute-embeddings description=Computes the embeddings of a text template and stores them in a field
type ComputeEmbeddingsConfig struct {
	Text            string         `mapstructure:"text" step:"required,desc=Template of the text to embed, e.g. {{ value.description }}"`
	EmbeddingsField string         `mapstructure:"embeddings_field" step:"required,desc=Field receiving the vector"`
	Model           string         `mapstructure:"model" step:"desc=Embeddings model, defaults per service"`
	Service         string         `mapstructure:"service" step:"enum=openai|huggingface,desc=Embeddings service"`
	Options         map[string]any `mapstructure:"options" step:"desc=Service specific options"`
}

type ComputeEmbeddingsStep struct {
	text    *expression.Template
	field   fieldpath.Path
	service string
	embed   models.EmbeddingsService
}

func (s *ComputeEmbeddingsStep) Process(ctx context.Context, tc *models.TransformContext) error {
	text, err := s.text.Render(tc)
	if err != nil {
		return err
	}
	vectors, err := s.embed.ComputeEmbeddings(ctx, []string{text})
	if err != nil {
		return models.ErrCapabilityCall(s.service, err)
	}
	if len(vectors) != 1 {
		return models.ErrCapabilityCall(s.service, fmt.Errorf("expected 1 embedding, got %d", len(vectors)))
	}

	list := make(models.List, len(vectors[0]))
	for i, f := range vectors[0] {
		list[i] = models.Float(widen(f))
	}
	field := models.Field{Type: models.SchemaTypeFloat, Array: true, Optional: true}
	return s.field.Assign(tc, list, field)
}

// widen converts a float32 to the float64 with the same shortest decimal form
func widen(f float32) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		return float64(f)
	}
	return v
}

func newComputeEmbeddingsStep(stepType string, cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
	var c ComputeEmbeddingsConfig
	if err := config.DecodeStep(stepType, cfg, &c); err != nil {
		return nil, err
	}
	text, err := expression.ParseTemplate(c.Text)
	if err != nil {
		return nil, models.ErrConfigWrap(stepType, err)
	}
	field, err := fieldpath.Parse(c.EmbeddingsField)
	if err != nil {
		return nil, models.ErrConfigWrap(stepType, err)
	}
	if err := field.CheckWritable(); err != nil {
		return nil, models.ErrConfigWrap(stepType, err)
	}
	if field.IsHeader() {
		return nil, models.ErrConfig(stepType, "embeddings cannot be stored in %s", c.EmbeddingsField)
	}

	provider, service, err := deps.EmbeddingsProvider(c.Service)
	if err != nil {
		return nil, models.ErrConfigWrap(stepType, err)
	}
	model := c.Model
	if model == "" {
		model = defaultEmbeddingsModels[service]
	}
	embed, err := provider.EmbeddingsService(model, c.Options)
	if err != nil {
		return nil, models.ErrConfigWrap(stepType, err)
	}
	deps.Log().Info("embeddings step configured", "service", service, "model", model)

	return &ComputeEmbeddingsStep{text: text, field: field, service: service, embed: embed}, nil
}

func init() {
	builder.RegisterStepType("compute-ai-embeddings", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		return newComputeEmbeddingsStep("compute-ai-embeddings", cfg, deps)
	})
	builder.RegisterAlias("compute-embeddings", "compute-ai-embeddings")
}
