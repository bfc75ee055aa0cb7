package steps

import (
	"context"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

// @step name=merge-key-value category=schema description=Merges the key fields into the value and drops the key
type MergeKeyValueConfig struct{}

// MergeKeyValueStep leaves records that are not key-value untouched
type MergeKeyValueStep struct{}

func (s *MergeKeyValueStep) Process(ctx context.Context, tc *models.TransformContext) error {
	if !tc.IsKeyValue() {
		return nil
	}
	merged, rs, err := codec.Merge(
		tc.KeyObject, tc.KeySchemaType, tc.KeyNativeSchema,
		tc.ValueObject, tc.ValueSchemaType, tc.ValueNativeSchema,
	)
	if err != nil {
		return err
	}
	tc.SetSide(models.PartValue, merged, tc.ValueSchemaType, rs)
	tc.ClearKey()
	return nil
}

// @step name=unwrap-key-value category=schema description=Replaces a key-value record with its value, or its key
type UnwrapKeyValueConfig struct {
	UnwrapKey bool `mapstructure:"unwrap_key" step:"default=false,desc=Keep the key instead of the value"`
}

type UnwrapKeyValueStep struct {
	unwrapKey bool
}

func (s *UnwrapKeyValueStep) Process(ctx context.Context, tc *models.TransformContext) error {
	if !tc.IsKeyValue() {
		return nil
	}
	if s.unwrapKey {
		tc.SetSide(models.PartValue, tc.KeyObject, tc.KeySchemaType, tc.KeyNativeSchema)
	}
	tc.ClearKey()
	return nil
}

func init() {
	builder.RegisterStepType("merge-key-value", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		var c MergeKeyValueConfig
		if err := config.DecodeStep("merge-key-value", cfg, &c); err != nil {
			return nil, err
		}
		return &MergeKeyValueStep{}, nil
	})
	builder.RegisterStepType("unwrap-key-value", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		var c UnwrapKeyValueConfig
		if err := config.DecodeStep("unwrap-key-value", cfg, &c); err != nil {
			return nil, err
		}
		return &UnwrapKeyValueStep{unwrapKey: c.UnwrapKey}, nil
	})
}
