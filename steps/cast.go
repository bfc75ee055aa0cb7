package steps

import (
	"context"
	"fmt"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

// @step name=cast category=schema description=Converts the key and/or the value to another schema type
type CastConfig struct {
	SchemaType models.SchemaType `mapstructure:"schema_type" step:"required,desc=Target schema type"`
	Part       string            `mapstructure:"part" step:"enum=key|value,desc=Record part to cast, both when empty"`
}

type CastStep struct {
	schemaType models.SchemaType
	part       models.Part
}

func (s *CastStep) Process(ctx context.Context, tc *models.TransformContext) error {
	for _, part := range models.Parts(s.part) {
		if part == models.PartKey && !tc.IsKeyValue() {
			continue
		}
		v, t, rs := tc.Side(part)
		nv, nrs, err := codec.Cast(v, t, rs, s.schemaType)
		if err != nil {
			return fmt.Errorf("cast %s: %w", part, err)
		}
		tc.SetSide(part, nv, s.schemaType, nrs)
	}
	return nil
}

func init() {
	builder.RegisterStepType("cast", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		var c CastConfig
		if err := config.DecodeStep("cast", cfg, &c); err != nil {
			return nil, err
		}
		return &CastStep{schemaType: c.SchemaType, part: models.Part(c.Part)}, nil
	})
}
