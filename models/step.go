package models

import "context"

// Step mutates the transform context of a single record.
// Implementations must be safe for concurrent use across records.
type Step interface {
	Process(ctx context.Context, tc *TransformContext) error
}

// Predicate gates a step; a nil predicate always passes
type Predicate interface {
	Test(ctx context.Context, tc *TransformContext) (bool, error)
}

// StepFunc adapts a function to Step
type StepFunc func(ctx context.Context, tc *TransformContext) error

func (f StepFunc) Process(ctx context.Context, tc *TransformContext) error {
	return f(ctx, tc)
}
