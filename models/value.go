package models

import (
	"bytes"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Value is the in-memory form of a record side or field.
// The set of implementations is closed: Null, Bool, Int, Float, String,
// Bytes, List, *Struct and *Tree.
type Value interface {
	isValue()
}

type Null struct{}

type Bool bool

// Int holds every integer width and the numeric temporal encodings
// (epoch days, millis of day, epoch millis).
type Int int64

type Float float64

type String string

type Bytes []byte

type List []Value

// Struct is a schema-carrying record (AVRO and PROTOBUF sides).
// Values is parallel to Schema.Fields.
type Struct struct {
	Schema *RecordSchema
	Values []Value
}

// Tree is an insertion-ordered JSON object
type Tree struct {
	fields *orderedmap.OrderedMap[string, Value]
}

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Int) isValue()     {}
func (Float) isValue()   {}
func (String) isValue()  {}
func (Bytes) isValue()   {}
func (List) isValue()    {}
func (*Struct) isValue() {}
func (*Tree) isValue()   {}

// IsNull treats a nil interface and Null alike
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// NewStruct returns a struct whose fields are all null
func NewStruct(schema *RecordSchema) *Struct {
	values := make([]Value, len(schema.Fields))
	for i := range values {
		values[i] = Null{}
	}
	return &Struct{Schema: schema, Values: values}
}

func (s *Struct) Get(name string) (Value, bool) {
	i := s.Schema.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return s.Values[i], true
}

// With returns a copy holding v in field f, adding the field if needed
func (s *Struct) With(f Field, v Value) *Struct {
	schema := s.Schema.WithField(f)
	values := append([]Value(nil), s.Values...)
	if i := s.Schema.FieldIndex(f.Name); i >= 0 {
		values[i] = v
	} else {
		values = append(values, v)
	}
	return &Struct{Schema: schema, Values: values}
}

// Without returns a copy without the named fields
func (s *Struct) Without(names ...string) *Struct {
	schema := s.Schema.WithoutFields(names...)
	values := make([]Value, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		v, _ := s.Get(f.Name)
		values = append(values, v)
	}
	return &Struct{Schema: schema, Values: values}
}

func NewTree() *Tree {
	return &Tree{fields: orderedmap.New[string, Value]()}
}

func (t *Tree) Get(key string) (Value, bool) {
	return t.fields.Get(key)
}

// Set adds or replaces key; a replaced key keeps its position
func (t *Tree) Set(key string, v Value) {
	t.fields.Set(key, v)
}

func (t *Tree) Delete(key string) {
	t.fields.Delete(key)
}

func (t *Tree) Len() int {
	return t.fields.Len()
}

func (t *Tree) Keys() []string {
	keys := make([]string, 0, t.fields.Len())
	for pair := t.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Each visits the entries in insertion order
func (t *Tree) Each(fn func(key string, v Value)) {
	for pair := t.fields.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Clone copies the top level of the tree
func (t *Tree) Clone() *Tree {
	c := NewTree()
	t.Each(func(k string, v Value) { c.Set(k, v) })
	return c
}

// Native converts a value to plain Go values: nil, bool, int64, float64,
// string, []byte, []any and map[string]any.
func Native(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Bytes:
		return []byte(x)
	case List:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Native(e)
		}
		return out
	case *Struct:
		out := make(map[string]any, len(x.Values))
		for i, f := range x.Schema.Fields {
			out[f.Name] = Native(x.Values[i])
		}
		return out
	case *Tree:
		out := make(map[string]any, x.Len())
		x.Each(func(k string, e Value) { out[k] = Native(e) })
		return out
	}
	return nil
}

// Equal compares two values structurally. Struct schemas are compared by field layout.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Bytes:
		y, ok := b.(Bytes)
		return ok && bytes.Equal(x, y)
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Struct:
		y, ok := b.(*Struct)
		if !ok || !x.Schema.SameFields(y.Schema) {
			return false
		}
		for i := range x.Values {
			if !Equal(x.Values[i], y.Values[i]) {
				return false
			}
		}
		return true
	case *Tree:
		y, ok := b.(*Tree)
		if !ok || x.Len() != y.Len() {
			return false
		}
		xk, yk := x.Keys(), y.Keys()
		for i, k := range xk {
			if yk[i] != k {
				return false
			}
			xv, _ := x.Get(k)
			yv, _ := y.Get(k)
			if !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}
