// Package expression evaluates the JavaScript expressions used by compute
// fields and step conditions, and renders {{ path }} templates.
//
// An expression sees the record through these variables:
//
//	value, key, messageKey, topicName, destinationTopic, eventTime, properties
//
// plus the helper object fn (see functions.go).
package expression

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/models"
)

// Evaluator is a compiled expression producing values of a fixed type.
// A compiled program is safe for concurrent use; every evaluation gets its own runtime.
type Evaluator struct {
	expression string
	program    *goja.Program
	typ        models.SchemaType
}

// Compile compiles an expression whose result is coerced to t.
// SchemaTypeNone keeps the natural type of the result.
func Compile(expression string, t models.SchemaType) (*Evaluator, error) {
	if expression == "" {
		return nil, &models.ConfigError{Msg: "empty expression"}
	}
	wrapped := "(function() {\n return " + expression + "\n})()"
	program, err := goja.Compile("expression", wrapped, false)
	if err != nil {
		return nil, &models.ConfigError{Msg: "invalid expression '" + expression + "'", Err: err}
	}
	return &Evaluator{expression: expression, program: program, typ: t}, nil
}

func (e *Evaluator) String() string {
	return e.expression
}

func (e *Evaluator) Type() models.SchemaType {
	return e.typ
}

// Evaluate runs the expression against the record and coerces the result
func (e *Evaluator) Evaluate(ctx context.Context, tc *models.TransformContext) (models.Value, error) {
	raw, err := e.run(ctx, tc)
	if err != nil {
		return nil, err
	}
	if e.typ == models.SchemaTypeNone {
		v, err := codec.Natural(raw)
		if err != nil {
			return nil, models.ErrExpressionEval(e.expression, err)
		}
		return v, nil
	}
	v, err := codec.Coerce(raw, e.typ)
	if err != nil {
		return nil, models.ErrExpressionEval(e.expression, err)
	}
	return v, nil
}

// run executes the program and returns the exported result; JS null is nil
func (e *Evaluator) run(ctx context.Context, tc *models.TransformContext) (any, error) {
	runtime := goja.New()
	b := &binder{rt: runtime, texts: make(map[*goja.Object]string)}

	for name, v := range b.bindings(tc) {
		if err := runtime.Set(name, v); err != nil {
			return nil, models.ErrExpressionEval(e.expression, err)
		}
	}
	if err := runtime.Set("fn", functions()); err != nil {
		return nil, models.ErrExpressionEval(e.expression, err)
	}

	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			runtime.Interrupt(ctx.Err())
		})
		defer stop()
	}

	result, err := runtime.RunProgram(e.program)
	if err != nil {
		return nil, models.ErrExpressionEval(e.expression, err)
	}
	if result == nil || goja.IsUndefined(result) {
		return nil, models.ErrExpressionEval(e.expression, errors.New("expression evaluated to undefined"))
	}
	if goja.IsNull(result) {
		return nil, nil
	}
	return b.export(result), nil
}

// binder exposes record values to one runtime. STRING and BYTES values
// holding a JSON object become objects whose fields resolve like field
// paths do; they still convert to their text.
type binder struct {
	rt    *goja.Runtime
	texts map[*goja.Object]string
}

func (b *binder) bindings(tc *models.TransformContext) map[string]any {
	var key any
	switch {
	case tc.IsKeyValue():
		key = b.value(tc.KeyObject)
	case tc.Key != nil:
		key = b.value(models.String(*tc.Key))
	}

	var messageKey, eventTime any
	if tc.Key != nil {
		messageKey = *tc.Key
	}
	if tc.EventTime != nil {
		eventTime = *tc.EventTime
	}

	properties := make(map[string]any, len(tc.Properties))
	for k, v := range tc.Properties {
		properties[k] = v
	}

	return map[string]any{
		"value":            b.value(tc.ValueObject),
		"key":              key,
		"messageKey":       messageKey,
		"topicName":        tc.InputTopic,
		"destinationTopic": tc.OutputTopic,
		"eventTime":        eventTime,
		"properties":       properties,
	}
}

func (b *binder) value(v models.Value) goja.Value {
	switch x := v.(type) {
	case models.String:
		return b.text(string(x))
	case models.Bytes:
		return b.text(string(x))
	case models.List:
		items := make([]any, len(x))
		for i, e := range x {
			items[i] = b.value(e)
		}
		return b.rt.NewArray(items...)
	case *models.Struct:
		obj := b.rt.NewObject()
		for i, f := range x.Schema.Fields {
			b.define(obj, f.Name, b.value(x.Values[i]))
		}
		return obj
	case *models.Tree:
		obj := b.rt.NewObject()
		x.Each(func(k string, e models.Value) { b.define(obj, k, b.value(e)) })
		return obj
	}
	return b.rt.ToValue(models.Native(v))
}

func (b *binder) text(s string) goja.Value {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return b.rt.ToValue(s)
	}
	tree, err := codec.ParseJSONObject([]byte(trimmed))
	if err != nil {
		return b.rt.ToValue(s)
	}
	obj := b.value(tree).(*goja.Object)
	toString := b.rt.ToValue(func(goja.FunctionCall) goja.Value { return b.rt.ToValue(s) })
	_ = obj.DefineDataProperty("toString", toString, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	b.texts[obj] = s
	return obj
}

func (b *binder) define(obj *goja.Object, name string, v goja.Value) {
	_ = obj.DefineDataProperty(name, v, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// export converts a script result to Go. Bound JSON text comes back as the
// original text; plain objects become trees keeping their key order.
func (b *binder) export(v goja.Value) any {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}
	if s, ok := b.texts[obj]; ok {
		return s
	}
	switch obj.ClassName() {
	case "Array":
		n := obj.Get("length").ToInteger()
		items := make([]any, n)
		for i := range items {
			items[i] = b.export(obj.Get(strconv.Itoa(i)))
		}
		return items
	case "Object":
		tree := models.NewTree()
		for _, k := range obj.Keys() {
			e, err := codec.Natural(b.export(obj.Get(k)))
			if err != nil {
				return obj.Export()
			}
			tree.Set(k, e)
		}
		return tree
	}
	return obj.Export()
}
