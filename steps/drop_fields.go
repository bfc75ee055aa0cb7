package steps

import (
	"context"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

// @step name=drop-fields category=schema description=Removes top-level fields from the key and/or the value
type DropFieldsConfig struct {
	Fields []string `mapstructure:"fields" step:"required,desc=Names of the fields to remove"`
	Part   string   `mapstructure:"part" step:"enum=key|value,desc=Record part to modify, both when empty"`
}

type DropFieldsStep struct {
	fields []string
	part   models.Part
}

func (s *DropFieldsStep) Process(ctx context.Context, tc *models.TransformContext) error {
	for _, part := range models.Parts(s.part) {
		if part == models.PartKey && !tc.IsKeyValue() {
			continue
		}
		v, t, rs := tc.Side(part)
		nv, nrs := codec.DropFields(v, rs, s.fields)
		tc.SetSide(part, nv, t, nrs)
	}
	return nil
}

func init() {
	builder.RegisterStepType("drop-fields", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		var c DropFieldsConfig
		if err := config.DecodeStep("drop-fields", cfg, &c); err != nil {
			return nil, err
		}
		if len(c.Fields) == 0 {
			return nil, models.ErrConfig("drop-fields", "'fields' must not be empty")
		}
		return &DropFieldsStep{fields: c.Fields, part: models.Part(c.Part)}, nil
	})
}
