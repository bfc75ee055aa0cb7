package codec

import (
	"time"

	"github.com/spf13/cast"
	"google.golang.org/protobuf/proto"

	"github.com/simon020286/go-transforms/models"
)

// FromNative converts a host value of side type t to its in-memory form.
// For structured types the returned schema is the one the value conforms to.
func FromNative(t models.SchemaType, rs *models.RecordSchema, native any) (models.Value, *models.RecordSchema, error) {
	if native == nil {
		return models.Null{}, rs, nil
	}
	if v, ok := native.(models.Value); ok {
		return v, rs, nil
	}

	switch t {
	case models.SchemaTypeInt8, models.SchemaTypeInt16, models.SchemaTypeInt32, models.SchemaTypeInt64:
		i, err := cast.ToInt64E(native)
		if err != nil {
			return nil, nil, models.ErrConvert(err, "invalid %s value %T", t, native)
		}
		return models.Int(i), nil, nil

	case models.SchemaTypeFloat, models.SchemaTypeDouble:
		f, err := cast.ToFloat64E(native)
		if err != nil {
			return nil, nil, models.ErrConvert(err, "invalid %s value %T", t, native)
		}
		return models.Float(f), nil, nil

	case models.SchemaTypeBoolean:
		b, ok := native.(bool)
		if !ok {
			return nil, nil, models.ErrConvert(nil, "invalid BOOLEAN value %T", native)
		}
		return models.Bool(b), nil, nil

	case models.SchemaTypeString:
		switch x := native.(type) {
		case string:
			return models.String(x), nil, nil
		case []byte:
			return models.String(x), nil, nil
		}
		return nil, nil, models.ErrConvert(nil, "invalid STRING value %T", native)

	case models.SchemaTypeBytes:
		switch x := native.(type) {
		case []byte:
			return models.Bytes(x), nil, nil
		case string:
			return models.Bytes(x), nil, nil
		}
		return nil, nil, models.ErrConvert(nil, "invalid BYTES value %T", native)

	case models.SchemaTypeDate, models.SchemaTypeLocalDate,
		models.SchemaTypeTime, models.SchemaTypeLocalTime,
		models.SchemaTypeTimestamp, models.SchemaTypeInstant, models.SchemaTypeLocalDateTime:
		v, err := Coerce(native, t)
		return v, nil, err

	case models.SchemaTypeAvro:
		if rs == nil {
			return nil, nil, models.ErrUnsupportedSchemaReason("AVRO", "missing record schema")
		}
		switch x := native.(type) {
		case []byte:
			s, err := DecodeAvro(x, rs)
			return s, rs, err
		case map[string]any:
			s, err := StructFromAvroNative(x, rs)
			return s, rs, err
		}
		return nil, nil, models.ErrConvert(nil, "invalid AVRO value %T", native)

	case models.SchemaTypeJSON:
		var v models.Value
		var err error
		switch x := native.(type) {
		case []byte:
			v, err = ParseJSON(x)
		case string:
			v, err = ParseJSON([]byte(x))
		case map[string]any:
			v, err = TreeFromNative(x, rs)
		default:
			return nil, nil, models.ErrConvert(nil, "invalid JSON value %T", native)
		}
		if err != nil {
			return nil, nil, err
		}
		if tree, ok := v.(*models.Tree); ok && rs == nil {
			rs = InferSchema(tree, "json")
		}
		return v, rs, nil

	case models.SchemaTypeProtobuf:
		switch x := native.(type) {
		case proto.Message:
			m := x.ProtoReflect()
			if rs == nil || rs.Proto == nil || rs.Proto.FullName() != m.Descriptor().FullName() {
				derived, err := ProtoSchema(m.Descriptor())
				if err != nil {
					return nil, nil, err
				}
				rs = derived
			}
			s, err := StructFromProto(m, rs)
			return s, rs, err
		case []byte:
			if rs != nil && rs.Proto != nil && len(rs.Fields) == 0 {
				derived, err := ProtoSchema(rs.Proto)
				if err != nil {
					return nil, nil, err
				}
				rs = derived
			}
			s, err := DecodeProto(x, rs)
			return s, rs, err
		}
		return nil, nil, models.ErrConvert(nil, "invalid PROTOBUF value %T", native)
	}
	return nil, nil, models.ErrUnsupportedSchema(string(t))
}

// ToNative converts an in-memory value back to the host form of side type t.
// Structured values leave as encoded bytes; JSON trees on STRING/BYTES sides
// are serialized back to text.
func ToNative(v models.Value, t models.SchemaType) (any, error) {
	if models.IsNull(v) {
		return nil, nil
	}
	switch t {
	case models.SchemaTypeString:
		switch x := v.(type) {
		case models.String:
			return string(x), nil
		case models.Bytes:
			return string(x), nil
		case *models.Tree, models.List, *models.Struct:
			b, err := MarshalJSON(v)
			return string(b), err
		}
	case models.SchemaTypeBytes:
		switch x := v.(type) {
		case models.Bytes:
			return []byte(x), nil
		case models.String:
			return []byte(x), nil
		case *models.Tree, models.List, *models.Struct:
			return MarshalJSON(v)
		}
	case models.SchemaTypeBoolean:
		if b, ok := v.(models.Bool); ok {
			return bool(b), nil
		}
	case models.SchemaTypeFloat:
		if f, ok := v.(models.Float); ok {
			return float32(f), nil
		}
	case models.SchemaTypeDouble:
		if f, ok := v.(models.Float); ok {
			return float64(f), nil
		}
	case models.SchemaTypeAvro:
		if s, ok := v.(*models.Struct); ok {
			return EncodeAvro(s)
		}
	case models.SchemaTypeJSON:
		return MarshalJSON(v)
	case models.SchemaTypeProtobuf:
		if s, ok := v.(*models.Struct); ok {
			return EncodeProto(s)
		}
	default:
		i, ok := v.(models.Int)
		if !ok {
			break
		}
		switch t {
		case models.SchemaTypeInt8:
			return int8(i), nil
		case models.SchemaTypeInt16:
			return int16(i), nil
		case models.SchemaTypeInt32:
			return int32(i), nil
		case models.SchemaTypeInt64:
			return int64(i), nil
		case models.SchemaTypeDate, models.SchemaTypeLocalDate:
			return DateFromEpochDay(int64(i)), nil
		case models.SchemaTypeTime, models.SchemaTypeLocalTime:
			return time.Duration(i) * time.Millisecond, nil
		case models.SchemaTypeTimestamp, models.SchemaTypeInstant, models.SchemaTypeLocalDateTime:
			return time.UnixMilli(int64(i)).UTC(), nil
		}
	}
	return nil, models.ErrConvert(nil, "value %T does not match schema type %s", v, t)
}
