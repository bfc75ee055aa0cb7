package steps

import (
	"context"
	"fmt"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

// @step name=flatten category=schema description=Hoists nested fields to the top level joining their names with a delimiter
type FlattenConfig struct {
	Delimiter string `mapstructure:"delimiter" step:"default=_,desc=Separator between nested field names"`
	Part      string `mapstructure:"part" step:"enum=key|value,desc=Record part to flatten, both when empty"`
}

type FlattenStep struct {
	delimiter string
	part      models.Part
}

func (s *FlattenStep) Process(ctx context.Context, tc *models.TransformContext) error {
	for _, part := range models.Parts(s.part) {
		if part == models.PartKey && !tc.IsKeyValue() {
			continue
		}
		v, t, rs := tc.Side(part)
		nv, nrs, err := codec.Flatten(v, rs, s.delimiter)
		if err != nil {
			return fmt.Errorf("flatten %s: %w", part, err)
		}
		tc.SetSide(part, nv, t, nrs)
	}
	return nil
}

func init() {
	builder.RegisterStepType("flatten", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		var c FlattenConfig
		if err := config.DecodeStep("flatten", cfg, &c); err != nil {
			return nil, err
		}
		return &FlattenStep{delimiter: c.Delimiter, part: models.Part(c.Part)}, nil
	})
}
