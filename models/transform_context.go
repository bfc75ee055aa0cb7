package models

// CustomContextKeyValueEncoding stores the inbound key-value encoding
const CustomContextKeyValueEncoding = "keyValueEncodingType"

// Part selects one side of a record
type Part string

const (
	PartKey   Part = "key"
	PartValue Part = "value"
)

// TransformContext is the mutable per-invocation state steps operate on.
// A non-empty KeySchemaType marks a key-value record.
type TransformContext struct {
	InputTopic  string
	OutputTopic string
	Key         *string
	EventTime   *int64
	Properties  map[string]string

	KeyObject       Value
	KeySchemaType   SchemaType
	KeyNativeSchema *RecordSchema

	ValueObject       Value
	ValueSchemaType   SchemaType
	ValueNativeSchema *RecordSchema

	CustomContext     map[string]any
	DropCurrentRecord bool

	keyOrigin, valueOrigin origin
}

// origin is the inbound native form of a side, kept until a step replaces it
type origin struct {
	native any
	schema *Schema
	set    bool
}

func (tc *TransformContext) IsKeyValue() bool {
	return tc.KeySchemaType != SchemaTypeNone
}

// Side returns the value, schema type and native schema of a part
func (tc *TransformContext) Side(part Part) (Value, SchemaType, *RecordSchema) {
	if part == PartKey {
		return tc.KeyObject, tc.KeySchemaType, tc.KeyNativeSchema
	}
	return tc.ValueObject, tc.ValueSchemaType, tc.ValueNativeSchema
}

// SetSide replaces a part. Setting the key side turns the record into a key-value record.
func (tc *TransformContext) SetSide(part Part, v Value, t SchemaType, native *RecordSchema) {
	if part == PartKey {
		tc.KeyObject, tc.KeySchemaType, tc.KeyNativeSchema = v, t, native
		tc.keyOrigin = origin{}
		return
	}
	tc.ValueObject, tc.ValueSchemaType, tc.ValueNativeSchema = v, t, native
	tc.valueOrigin = origin{}
}

// ClearKey drops the key side, leaving a plain record
func (tc *TransformContext) ClearKey() {
	tc.KeyObject, tc.KeySchemaType, tc.KeyNativeSchema = nil, SchemaTypeNone, nil
	tc.keyOrigin = origin{}
}

// SetOrigin records the inbound native value and schema of a part.
// The origin is forgotten as soon as the part is replaced.
func (tc *TransformContext) SetOrigin(part Part, native any, schema *Schema) {
	o := origin{native: native, schema: schema, set: true}
	if part == PartKey {
		tc.keyOrigin = o
		return
	}
	tc.valueOrigin = o
}

// Origin returns the inbound native value and schema of a part no step has replaced
func (tc *TransformContext) Origin(part Part) (any, *Schema, bool) {
	o := tc.valueOrigin
	if part == PartKey {
		o = tc.keyOrigin
	}
	return o.native, o.schema, o.set
}

// Parts returns the parts selected by p; an empty p selects both
func Parts(p Part) []Part {
	if p == "" {
		return []Part{PartKey, PartValue}
	}
	return []Part{p}
}

// KeyValueEncoding returns the encoding stored at construction, defaulting to INLINE
func (tc *TransformContext) KeyValueEncoding() KeyValueEncoding {
	if enc, ok := tc.CustomContext[CustomContextKeyValueEncoding].(KeyValueEncoding); ok && enc != "" {
		return enc
	}
	return KeyValueEncodingInline
}
