package models

import (
	"errors"
	"fmt"
)

// Error categories, usable with errors.Is
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConversion    = errors.New("conversion error")
	ErrExpression    = errors.New("expression evaluation error")
	ErrCapability    = errors.New("external capability error")
)

type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return "missing required configuration key: " + e.Key
}

func (e *MissingConfigError) Is(target error) bool { return target == ErrConfiguration }

func ErrMissingConfig(key string) error {
	return &MissingConfigError{Key: key}
}

// ConfigError reports an invalid pipeline or step configuration
type ConfigError struct {
	Step string
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Step != "" {
		return fmt.Sprintf("invalid '%s' step config: %s", e.Step, msg)
	}
	return "invalid configuration: " + msg
}

func (e *ConfigError) Unwrap() error        { return e.Err }
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

func ErrConfig(step, format string, args ...any) error {
	return &ConfigError{Step: step, Msg: fmt.Sprintf(format, args...)}
}

// ErrConfigWrap attributes err to step. A ConfigError without a step is
// re-tagged instead of nested.
func ErrConfigWrap(step string, err error) error {
	var ce *ConfigError
	if errors.As(err, &ce) && ce.Step == "" {
		return &ConfigError{Step: step, Msg: ce.Msg, Err: ce.Err}
	}
	return &ConfigError{Step: step, Err: err}
}

// UnsupportedSchemaError is raised for schema kinds outside the supported set
type UnsupportedSchemaError struct {
	Type   string
	Reason string
}

func (e *UnsupportedSchemaError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported schema type %s: %s", e.Type, e.Reason)
	}
	return "unsupported schema type " + e.Type
}

func (e *UnsupportedSchemaError) Is(target error) bool { return target == ErrConversion }

func ErrUnsupportedSchema(t string) error {
	return &UnsupportedSchemaError{Type: t}
}

func ErrUnsupportedSchemaReason(t, reason string) error {
	return &UnsupportedSchemaError{Type: t, Reason: reason}
}

type UnsupportedCastError struct {
	From SchemaType
	To   SchemaType
}

func (e *UnsupportedCastError) Error() string {
	return fmt.Sprintf("cannot cast %s to %s", e.From, e.To)
}

func (e *UnsupportedCastError) Is(target error) bool { return target == ErrConversion }

func ErrUnsupportedCast(from, to SchemaType) error {
	return &UnsupportedCastError{From: from, To: to}
}

type IncompatibleSchemaError struct {
	Key    SchemaType
	Value  SchemaType
	Reason string
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("incompatible key schema %s and value schema %s: %s", e.Key, e.Value, e.Reason)
}

func (e *IncompatibleSchemaError) Is(target error) bool { return target == ErrConversion }

func ErrIncompatibleSchema(key, value SchemaType, reason string) error {
	return &IncompatibleSchemaError{Key: key, Value: value, Reason: reason}
}

type FlattenCollisionError struct {
	Name string
}

func (e *FlattenCollisionError) Error() string {
	return fmt.Sprintf("flattened field name '%s' collides with an existing field", e.Name)
}

func (e *FlattenCollisionError) Is(target error) bool { return target == ErrConversion }

func ErrFlattenCollision(name string) error {
	return &FlattenCollisionError{Name: name}
}

// ConversionError reports a value that cannot be represented in the target type
type ConversionError struct {
	Msg string
	Err error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConversionError) Unwrap() error        { return e.Err }
func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

func ErrConvert(err error, format string, args ...any) error {
	return &ConversionError{Msg: fmt.Sprintf(format, args...), Err: err}
}

type ExpressionError struct {
	Expression string
	Err        error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("failed to evaluate expression '%s': %v", e.Expression, e.Err)
}

func (e *ExpressionError) Unwrap() error        { return e.Err }
func (e *ExpressionError) Is(target error) bool { return target == ErrExpression }

func ErrExpressionEval(expression string, err error) error {
	return &ExpressionError{Expression: expression, Err: err}
}

type UnknownPathError struct {
	Path string
}

func (e *UnknownPathError) Error() string {
	return "unknown path: " + e.Path
}

func (e *UnknownPathError) Is(target error) bool { return target == ErrExpression }

func ErrUnknownPath(path string) error {
	return &UnknownPathError{Path: path}
}

type NonNullableFieldError struct {
	Field string
}

func (e *NonNullableFieldError) Error() string {
	return fmt.Sprintf("field '%s' is not optional but the computed value is null", e.Field)
}

func (e *NonNullableFieldError) Is(target error) bool { return target == ErrExpression }

func ErrNonNullableField(field string) error {
	return &NonNullableFieldError{Field: field}
}

type InterpolateError struct {
	Key   string
	Value any
}

func (e *InterpolateError) Error() string {
	return fmt.Sprintf("failed to interpolate value for key '%s': %v", e.Key, e.Value)
}

func (e *InterpolateError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func (e *InterpolateError) Is(target error) bool { return target == ErrExpression }

func ErrInterpolate(key string, value any) error {
	return &InterpolateError{Key: key, Value: value}
}

// CapabilityError wraps a failure of an embeddings, completions or datasource call
type CapabilityError struct {
	Service string
	Err     error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Service, e.Err)
}

func (e *CapabilityError) Unwrap() error        { return e.Err }
func (e *CapabilityError) Is(target error) bool { return target == ErrCapability }

func ErrCapabilityCall(service string, err error) error {
	return &CapabilityError{Service: service, Err: err}
}
