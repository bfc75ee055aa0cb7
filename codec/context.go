package codec

import (
	"fmt"

	"github.com/simon020286/go-transforms/models"
)

// NewTransformContext builds the per-invocation context of a host record.
// With attemptJSON, STRING and BYTES sides holding a JSON object are parsed into trees.
func NewTransformContext(rec *models.Record, attemptJSON bool) (*models.TransformContext, error) {
	tc := &models.TransformContext{
		InputTopic:    rec.TopicName,
		OutputTopic:   rec.DestinationTopic,
		Key:           rec.Key,
		EventTime:     rec.EventTime,
		Properties:    make(map[string]string, len(rec.Properties)),
		CustomContext: map[string]any{},
	}
	for k, v := range rec.Properties {
		tc.Properties[k] = v
	}

	if rec.Schema.IsKeyValue() {
		var kv models.KeyValue
		switch x := rec.Value.(type) {
		case models.KeyValue:
			kv = x
		case *models.KeyValue:
			kv = *x
		default:
			return nil, models.ErrConvert(nil, "KEY_VALUE record value must be a KeyValue, got %T", rec.Value)
		}
		if err := fillSide(tc, models.PartKey, rec.Schema.Key, kv.Key, attemptJSON); err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		if err := fillSide(tc, models.PartValue, rec.Schema.Value, kv.Value, attemptJSON); err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		enc := rec.Schema.KeyValueEncoding
		if enc == "" {
			enc = models.KeyValueEncodingInline
		}
		tc.CustomContext[models.CustomContextKeyValueEncoding] = enc
		return tc, nil
	}

	if err := fillSide(tc, models.PartValue, rec.Schema, rec.Value, attemptJSON); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return tc, nil
}

func fillSide(tc *models.TransformContext, part models.Part, s *models.Schema, native any, attemptJSON bool) error {
	t, err := ToTransformType(s)
	if err != nil {
		return err
	}
	var rs *models.RecordSchema
	if s != nil {
		rs = s.Native
	}
	v, rs, err := FromNative(t, rs, native)
	if err != nil {
		return err
	}
	if attemptJSON {
		v = attemptJSONConversion(v)
	}
	tc.SetSide(part, v, t, rs)
	tc.SetOrigin(part, native, s)
	return nil
}

func attemptJSONConversion(v models.Value) models.Value {
	var data []byte
	switch x := v.(type) {
	case models.String:
		data = []byte(x)
	case models.Bytes:
		data = x
	default:
		return v
	}
	tree, err := ParseJSONObject(data)
	if err != nil {
		return v
	}
	return tree
}

// BuildRecord produces the outbound record, or nil when the record was dropped.
// A side no step replaced is emitted as it arrived.
func BuildRecord(tc *models.TransformContext) (*models.Record, error) {
	if tc.DropCurrentRecord {
		return nil, nil
	}
	rec := &models.Record{
		TopicName:        tc.InputTopic,
		DestinationTopic: tc.OutputTopic,
		EventTime:        tc.EventTime,
		Properties:       tc.Properties,
	}

	value, valueSchema, err := buildPart(tc, models.PartValue)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if !tc.IsKeyValue() {
		rec.Schema = valueSchema
		rec.Value = value
		rec.Key = tc.Key
		return rec, nil
	}

	key, keySchema, err := buildPart(tc, models.PartKey)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	rec.Schema = &models.Schema{
		Type:             models.SchemaTypeKeyValue,
		Key:              keySchema,
		Value:            valueSchema,
		KeyValueEncoding: tc.KeyValueEncoding(),
	}
	rec.Value = models.KeyValue{Key: key, Value: value}
	return rec, nil
}

func buildPart(tc *models.TransformContext, part models.Part) (any, *models.Schema, error) {
	if native, schema, ok := tc.Origin(part); ok {
		if schema == nil {
			schema = &models.Schema{Type: models.SchemaTypeBytes}
		}
		return native, schema, nil
	}
	return buildSide(tc.Side(part))
}

func buildSide(v models.Value, t models.SchemaType, rs *models.RecordSchema) (any, *models.Schema, error) {
	if t == models.SchemaTypeNone {
		t = models.SchemaTypeBytes
	}
	if s, ok := v.(*models.Struct); ok {
		rs = s.Schema
		if t == models.SchemaTypeProtobuf && rs.Proto == nil {
			described, err := DescribeProto(rs)
			if err != nil {
				return nil, nil, err
			}
			rs = described
			v = &models.Struct{Schema: described, Values: s.Values}
		}
	}
	schema, err := ToNativeSchema(t, rs)
	if err != nil {
		return nil, nil, err
	}
	native, err := ToNative(v, t)
	if err != nil {
		return nil, nil, err
	}
	return native, schema, nil
}
