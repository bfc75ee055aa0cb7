package steps

import (
	"context"
	"fmt"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/expression"
	"github.com/simon020286/go-transforms/fieldpath"
	"github.com/simon020286/go-transforms/models"
)

// @step name=compute category=schema description=Computes key, value or header fields from expressions
type ComputeConfig struct {
	Fields []ComputeFieldConfig `mapstructure:"fields" step:"required,desc=Fields to compute, in order"`
}

type ComputeFieldConfig struct {
	Name       string            `mapstructure:"name"`
	Expression string            `mapstructure:"expression"`
	Type       models.SchemaType `mapstructure:"type"`
	Optional   *bool             `mapstructure:"optional"`
}

type computedField struct {
	path     fieldpath.Path
	eval     *expression.Evaluator
	optional bool
}

// ComputeStep evaluates its fields in order; each field sees the writes of the previous ones
type ComputeStep struct {
	fields []computedField
}

func (s *ComputeStep) Process(ctx context.Context, tc *models.TransformContext) error {
	for _, f := range s.fields {
		v, err := f.eval.Evaluate(ctx, tc)
		if err != nil {
			return err
		}
		if models.IsNull(v) && !f.optional {
			return models.ErrNonNullableField(f.path.Raw)
		}
		typ := f.eval.Type()
		if typ == models.SchemaTypeNone {
			typ = valueType(v)
		}
		field := models.Field{Type: typ, Optional: f.optional}
		if err := f.path.Assign(tc, v, field); err != nil {
			return fmt.Errorf("compute %s: %w", f.path.Raw, err)
		}
	}
	return nil
}

// valueType infers the schema type of an expression result without a declared type
func valueType(v models.Value) models.SchemaType {
	switch v.(type) {
	case models.Bool:
		return models.SchemaTypeBoolean
	case models.Int:
		return models.SchemaTypeInt64
	case models.Float:
		return models.SchemaTypeDouble
	case models.Bytes:
		return models.SchemaTypeBytes
	case *models.Tree, models.List:
		return models.SchemaTypeJSON
	}
	return models.SchemaTypeString
}

func newComputedField(fc ComputeFieldConfig) (computedField, error) {
	if fc.Name == "" {
		return computedField{}, models.ErrConfigWrap("compute", models.ErrMissingConfig("fields.name"))
	}
	if fc.Expression == "" {
		return computedField{}, models.ErrConfig("compute", "missing expression for field %s", fc.Name)
	}
	path, err := fieldpath.Parse(fc.Name)
	if err != nil {
		return computedField{}, models.ErrConfigWrap("compute", err)
	}
	if err := path.CheckWritable(); err != nil {
		return computedField{}, models.ErrConfigWrap("compute", err)
	}

	typ := fc.Type
	switch {
	case path.Root == fieldpath.RootEventTime:
		typ = models.SchemaTypeInt64
	case path.IsHeader():
		typ = models.SchemaTypeString
	case path.IsRoot() && (typ == models.SchemaTypeDate || typ == models.SchemaTypeLocalDate):
		return computedField{}, models.ErrConfig("compute",
			"The compute operation cannot apply the type %s to the message value or key. "+
				"Please consider using the types TIMESTAMP or INSTANT instead and follow with a 'cast' to SchemaType.%s operation.",
			typ, typ)
	}
	switch typ {
	case models.SchemaTypeAvro, models.SchemaTypeProtobuf, models.SchemaTypeKeyValue:
		return computedField{}, models.ErrConfig("compute", "unsupported type %s for field %s", typ, fc.Name)
	}

	eval, err := expression.Compile(fc.Expression, typ)
	if err != nil {
		return computedField{}, models.ErrConfigWrap("compute", err)
	}
	optional := true
	if fc.Optional != nil {
		optional = *fc.Optional
	}
	return computedField{path: path, eval: eval, optional: optional}, nil
}

func init() {
	builder.RegisterStepType("compute", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		var c ComputeConfig
		if err := config.DecodeStep("compute", cfg, &c); err != nil {
			return nil, err
		}
		if len(c.Fields) == 0 {
			return nil, models.ErrConfig("compute", "'fields' must not be empty")
		}

		step := &ComputeStep{}
		seen := make(map[string]bool, len(c.Fields))
		for _, fc := range c.Fields {
			if seen[fc.Name] {
				return nil, models.ErrConfig("compute", "Duplicate compute field name detected: %s", fc.Name)
			}
			seen[fc.Name] = true

			f, err := newComputedField(fc)
			if err != nil {
				return nil, err
			}
			step.fields = append(step.fields, f)
		}
		return step, nil
	})
}
