package steps

import (
	"context"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

// @step name=drop category=flow description=Drops the record, usually combined with when
type DropConfig struct{}

type DropStep struct{}

func (s *DropStep) Process(ctx context.Context, tc *models.TransformContext) error {
	tc.DropCurrentRecord = true
	return nil
}

func init() {
	builder.RegisterStepType("drop", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		var c DropConfig
		if err := config.DecodeStep("drop", cfg, &c); err != nil {
			return nil, err
		}
		return &DropStep{}, nil
	})
}
