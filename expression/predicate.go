package expression

import (
	"context"

	"github.com/spf13/cast"

	"github.com/simon020286/go-transforms/models"
)

// Predicate gates a step on a boolean expression. A null result is false.
type Predicate struct {
	eval *Evaluator
}

func NewPredicate(expression string) (*Predicate, error) {
	eval, err := Compile(expression, models.SchemaTypeBoolean)
	if err != nil {
		return nil, err
	}
	return &Predicate{eval: eval}, nil
}

func (p *Predicate) Test(ctx context.Context, tc *models.TransformContext) (bool, error) {
	raw, err := p.eval.run(ctx, tc)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if b, ok := raw.(bool); ok {
		return b, nil
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return false, models.ErrExpressionEval(p.eval.expression, err)
	}
	return b, nil
}

func (p *Predicate) String() string {
	return p.eval.expression
}

var _ models.Predicate = (*Predicate)(nil)
