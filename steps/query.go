package steps

import (
	"context"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/fieldpath"
	"github.com/simon020286/go-transforms/models"
)

// @step name=query category=data description=Runs a parameterized query on the datasource and stores the rows in a field
type QueryConfig struct {
	Query       string   `mapstructure:"query" step:"required,desc=Query text with positional parameters"`
	Fields      []string `mapstructure:"fields" step:"desc=Fields bound to the parameters, in order"`
	OutputField string   `mapstructure:"output_field" step:"required,desc=Field receiving the rows"`
	OnlyFirst   bool     `mapstructure:"only_first" step:"default=false,desc=Store only the first row, or null"`
}

type QueryStep struct {
	query     string
	params    []fieldpath.Path
	output    fieldpath.Path
	onlyFirst bool
	source    models.QueryStepDataSource
}

func (s *QueryStep) Process(ctx context.Context, tc *models.TransformContext) error {
	params := make([]any, len(s.params))
	for i, p := range s.params {
		v, err := p.Resolve(tc)
		if err != nil {
			return err
		}
		params[i] = models.Native(v)
	}

	rows, err := s.source.FetchData(ctx, s.query, params)
	if err != nil {
		return models.ErrCapabilityCall("query", err)
	}

	var result models.Value
	if s.onlyFirst {
		result = models.Null{}
		if len(rows) > 0 {
			result = rows[0]
		}
	} else {
		list := make(models.List, len(rows))
		for i, row := range rows {
			list[i] = row
		}
		result = list
	}
	return s.output.Assign(tc, result, models.Field{Type: models.SchemaTypeJSON, Optional: true})
}

func init() {
	builder.RegisterStepType("query", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		var c QueryConfig
		if err := config.DecodeStep("query", cfg, &c); err != nil {
			return nil, err
		}
		if deps.DataSource == nil {
			return nil, models.ErrConfig("query", "a datasource must be configured for this step")
		}

		step := &QueryStep{query: c.Query, onlyFirst: c.OnlyFirst, source: deps.DataSource}
		for _, name := range c.Fields {
			p, err := fieldpath.Parse(name)
			if err != nil {
				return nil, models.ErrConfigWrap("query", err)
			}
			step.params = append(step.params, p)
		}
		output, err := fieldpath.Parse(c.OutputField)
		if err != nil {
			return nil, models.ErrConfigWrap("query", err)
		}
		if err := output.CheckWritable(); err != nil {
			return nil, models.ErrConfigWrap("query", err)
		}
		if output.IsHeader() {
			return nil, models.ErrConfig("query", "rows cannot be stored in %s", c.OutputField)
		}
		step.output = output
		return step, nil
	})
}
