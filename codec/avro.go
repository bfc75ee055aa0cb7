package codec

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/simon020286/go-transforms/models"
)

// compiled codecs keyed by schema text
var avroCodecs sync.Map

type avroRecord struct {
	Type      string      `json:"type"`
	Name      string      `json:"name"`
	Namespace string      `json:"namespace,omitempty"`
	Fields    []avroField `json:"fields"`
}

type avroField struct {
	Name    string          `json:"name"`
	Type    any             `json:"type"`
	Default json.RawMessage `json:"default,omitempty"`
}

// AvroSchemaJSON renders a record schema as Avro schema text
func AvroSchemaJSON(rs *models.RecordSchema) (string, error) {
	rec, err := avroRecordOf(rs, "record")
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to render avro schema: %w", err)
	}
	return string(b), nil
}

func avroRecordOf(rs *models.RecordSchema, fallbackName string) (*avroRecord, error) {
	name := rs.Name
	if name == "" {
		name = fallbackName
	}
	rec := &avroRecord{Type: "record", Name: name, Namespace: rs.Namespace, Fields: make([]avroField, 0, len(rs.Fields))}
	for _, f := range rs.Fields {
		t, err := avroTypeOf(f, name)
		if err != nil {
			return nil, err
		}
		af := avroField{Name: f.Name, Type: t}
		if f.Optional {
			af.Type = []any{"null", t}
			af.Default = json.RawMessage("null")
		}
		rec.Fields = append(rec.Fields, af)
	}
	return rec, nil
}

func avroTypeOf(f models.Field, parent string) (any, error) {
	var base any
	if f.IsRecord() {
		rec, err := avroRecordOf(f.Schema, parent+"_"+f.Name)
		if err != nil {
			return nil, err
		}
		base = rec
	} else if f.Logical != "" {
		base = json.RawMessage(f.Logical)
	} else {
		switch f.Type {
		case models.SchemaTypeInt8, models.SchemaTypeInt16, models.SchemaTypeInt32:
			base = "int"
		case models.SchemaTypeInt64:
			base = "long"
		case models.SchemaTypeFloat:
			base = "float"
		case models.SchemaTypeDouble:
			base = "double"
		case models.SchemaTypeBoolean:
			base = "boolean"
		case models.SchemaTypeString, models.SchemaTypeJSON:
			base = "string"
		case models.SchemaTypeBytes:
			base = "bytes"
		case models.SchemaTypeDate, models.SchemaTypeLocalDate:
			base = map[string]any{"type": "int", "logicalType": "date"}
		case models.SchemaTypeTime, models.SchemaTypeLocalTime:
			base = map[string]any{"type": "int", "logicalType": "time-millis"}
		case models.SchemaTypeTimestamp, models.SchemaTypeInstant, models.SchemaTypeLocalDateTime:
			base = map[string]any{"type": "long", "logicalType": "timestamp-millis"}
		default:
			return nil, models.ErrUnsupportedSchemaReason("AVRO", fmt.Sprintf("field '%s' has type %s", f.Name, f.Type))
		}
	}
	if f.Array {
		return map[string]any{"type": "array", "items": base}, nil
	}
	return base, nil
}

// ParseAvroSchema parses Avro schema text of a record
func ParseAvroSchema(text string) (*models.RecordSchema, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, models.ErrUnsupportedSchemaReason("AVRO", "invalid schema: "+err.Error())
	}
	return parseAvroRecord(raw, "")
}

func parseAvroRecord(m map[string]any, enclosingNamespace string) (*models.RecordSchema, error) {
	if t, _ := m["type"].(string); t != "record" {
		return nil, models.ErrUnsupportedSchemaReason("AVRO", fmt.Sprintf("expected a record, got %v", m["type"]))
	}
	name, _ := m["name"].(string)
	namespace, _ := m["namespace"].(string)
	if i := strings.LastIndex(name, "."); i >= 0 {
		namespace, name = name[:i], name[i+1:]
	}
	if namespace == "" {
		namespace = enclosingNamespace
	}
	rs := &models.RecordSchema{Name: name, Namespace: namespace}
	fields, _ := m["fields"].([]any)
	for _, rf := range fields {
		fm, ok := rf.(map[string]any)
		if !ok {
			return nil, models.ErrUnsupportedSchemaReason("AVRO", "malformed field")
		}
		fname, _ := fm["name"].(string)
		f, err := parseAvroFieldType(fname, fm["type"], namespace)
		if err != nil {
			return nil, err
		}
		rs.Fields = append(rs.Fields, f)
	}
	return rs, nil
}

var avroPrimitives = map[string]models.SchemaType{
	"int":     models.SchemaTypeInt32,
	"long":    models.SchemaTypeInt64,
	"float":   models.SchemaTypeFloat,
	"double":  models.SchemaTypeDouble,
	"boolean": models.SchemaTypeBoolean,
	"string":  models.SchemaTypeString,
	"bytes":   models.SchemaTypeBytes,
}

// avroLogical is the parsed form of Field.Logical
type avroLogical struct {
	Type        string `json:"type"`
	LogicalType string `json:"logicalType"`
	Scale       int    `json:"scale"`
}

var avroLogicals sync.Map

func logicalOf(f models.Field) avroLogical {
	if l, ok := avroLogicals.Load(f.Logical); ok {
		return l.(avroLogical)
	}
	var l avroLogical
	_ = json.Unmarshal([]byte(f.Logical), &l)
	avroLogicals.Store(f.Logical, l)
	return l
}

func parseAvroFieldType(name string, t any, namespace string) (models.Field, error) {
	f := models.Field{Name: name}
	switch x := t.(type) {
	case string:
		st, ok := avroPrimitives[x]
		if !ok {
			return f, models.ErrUnsupportedSchemaReason("AVRO", fmt.Sprintf("field '%s' has type %s", name, x))
		}
		f.Type = st
		return f, nil

	case []any:
		if len(x) == 2 {
			for i, member := range x {
				if member == "null" {
					inner, err := parseAvroFieldType(name, x[1-i], namespace)
					if err != nil {
						return f, err
					}
					if inner.Optional {
						break
					}
					inner.Optional = true
					return inner, nil
				}
			}
		}
		return f, models.ErrUnsupportedSchemaReason("AVRO", fmt.Sprintf("field '%s' has an unsupported union", name))

	case map[string]any:
		typ, _ := x["type"].(string)
		logical, _ := x["logicalType"].(string)
		switch {
		case typ == "record":
			nested, err := parseAvroRecord(x, namespace)
			if err != nil {
				return f, err
			}
			f.Type = models.SchemaTypeAvro
			f.Schema = nested
			return f, nil
		case typ == "array":
			items, err := parseAvroFieldType(name, x["items"], namespace)
			if err != nil {
				return f, err
			}
			if items.Array || items.Optional {
				return f, models.ErrUnsupportedSchemaReason("AVRO", fmt.Sprintf("field '%s' has unsupported array items", name))
			}
			items.Array = true
			return items, nil
		case typ == "int" && logical == "date":
			f.Type = models.SchemaTypeDate
			return f, nil
		case typ == "int" && logical == "time-millis":
			f.Type = models.SchemaTypeTime
			return f, nil
		case typ == "long" && logical == "timestamp-millis":
			f.Type = models.SchemaTypeTimestamp
			return f, nil
		case logical == "":
			return parseAvroFieldType(name, typ, namespace)
		}
		text, err := json.Marshal(x)
		if err != nil {
			return f, models.ErrUnsupportedSchemaReason("AVRO", fmt.Sprintf("field '%s': %v", name, err))
		}
		switch {
		case typ == "long" && logical == "timestamp-micros":
			f.Type = models.SchemaTypeTimestamp
		case typ == "long" && logical == "time-micros":
			f.Type = models.SchemaTypeTime
		case typ == "bytes" && logical == "decimal":
			f.Type = models.SchemaTypeString
		default:
			// other logical types travel as their underlying type
			inner, err := parseAvroFieldType(name, typ, namespace)
			if err != nil {
				return f, err
			}
			f = inner
		}
		f.Logical = string(text)
		return f, nil
	}
	return f, models.ErrUnsupportedSchemaReason("AVRO", fmt.Sprintf("field '%s' has a malformed type", name))
}

func avroCodecFor(rs *models.RecordSchema) (*goavro.Codec, error) {
	text, err := AvroSchemaJSON(rs)
	if err != nil {
		return nil, err
	}
	if c, ok := avroCodecs.Load(text); ok {
		return c.(*goavro.Codec), nil
	}
	c, err := goavro.NewCodec(text)
	if err != nil {
		return nil, models.ErrUnsupportedSchemaReason("AVRO", err.Error())
	}
	avroCodecs.Store(text, c)
	return c, nil
}

// DecodeAvro decodes Avro binary data written with rs
func DecodeAvro(data []byte, rs *models.RecordSchema) (*models.Struct, error) {
	c, err := avroCodecFor(rs)
	if err != nil {
		return nil, err
	}
	native, _, err := c.NativeFromBinary(data)
	if err != nil {
		return nil, models.ErrConvert(err, "failed to decode avro record")
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, models.ErrConvert(nil, "decoded avro datum is %T, not a record", native)
	}
	return StructFromAvroNative(m, rs)
}

// EncodeAvro encodes a struct with its own schema
func EncodeAvro(s *models.Struct) ([]byte, error) {
	c, err := avroCodecFor(s.Schema)
	if err != nil {
		return nil, err
	}
	name := s.Schema.Name
	if name == "" {
		name = "record"
	}
	native, err := avroNativeRecord(s, name, s.Schema.Namespace)
	if err != nil {
		return nil, err
	}
	out, err := c.BinaryFromNative(nil, native)
	if err != nil {
		return nil, models.ErrConvert(err, "failed to encode avro record")
	}
	return out, nil
}

// StructFromAvroNative converts a goavro native record
func StructFromAvroNative(m map[string]any, rs *models.RecordSchema) (*models.Struct, error) {
	s := models.NewStruct(rs)
	for i, f := range rs.Fields {
		raw, ok := m[f.Name]
		if !ok {
			continue
		}
		v, err := avroValue(f, raw)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", f.Name, err)
		}
		s.Values[i] = v
	}
	return s, nil
}

func avroValue(f models.Field, raw any) (models.Value, error) {
	if raw == nil {
		return models.Null{}, nil
	}
	if f.Optional {
		// unions decode as {"typeName": value}
		if u, ok := raw.(map[string]any); ok && len(u) == 1 {
			for typeName, inner := range u {
				if !f.IsRecord() || f.Array || isRecordName(typeName, f.Schema) {
					raw = inner
				}
			}
			if raw == nil {
				return models.Null{}, nil
			}
		}
	}
	if f.Array {
		items, ok := raw.([]any)
		if !ok {
			return nil, models.ErrConvert(nil, "expected array, got %T", raw)
		}
		list := make(models.List, 0, len(items))
		elem := f
		elem.Array, elem.Optional = false, false
		for _, it := range items {
			v, err := avroValue(elem, it)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}
	if f.IsRecord() {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, models.ErrConvert(nil, "expected record, got %T", raw)
		}
		return StructFromAvroNative(m, f.Schema)
	}
	switch x := raw.(type) {
	case *big.Rat:
		return models.String(x.FloatString(logicalOf(f).Scale)), nil
	case time.Time:
		if f.Type == models.SchemaTypeDate || f.Type == models.SchemaTypeLocalDate {
			return models.Int(EpochDay(x)), nil
		}
		return models.Int(x.UnixMilli()), nil
	case time.Duration:
		return models.Int(x.Milliseconds()), nil
	case int32:
		return models.Int(x), nil
	case int64:
		return models.Int(x), nil
	case int:
		return models.Int(x), nil
	case float32:
		return models.Float(x), nil
	case float64:
		return models.Float(x), nil
	case bool:
		return models.Bool(x), nil
	case string:
		return models.String(x), nil
	case []byte:
		return models.Bytes(x), nil
	}
	return nil, models.ErrConvert(nil, "unsupported avro value %T", raw)
}

func isRecordName(typeName string, rs *models.RecordSchema) bool {
	return typeName == rs.Name || typeName == rs.FullName()
}

func avroNativeRecord(s *models.Struct, name, namespace string) (map[string]any, error) {
	out := make(map[string]any, len(s.Values))
	for i, f := range s.Schema.Fields {
		v, err := avroNative(f, s.Values[i], name, namespace)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func avroNative(f models.Field, v models.Value, parent, namespace string) (any, error) {
	if models.IsNull(v) {
		if !f.Optional {
			return nil, models.ErrNonNullableField(f.Name)
		}
		return nil, nil
	}
	inner, unionName, err := avroNativeValue(f, v, parent, namespace)
	if err != nil {
		return nil, err
	}
	if f.Optional {
		return goavro.Union(unionName, inner), nil
	}
	return inner, nil
}

func avroNativeValue(f models.Field, v models.Value, parent, namespace string) (any, string, error) {
	if f.Array {
		list, ok := v.(models.List)
		if !ok {
			return nil, "", models.ErrConvert(nil, "expected list, got %T", v)
		}
		elem := f
		elem.Array, elem.Optional = false, false
		out := make([]any, 0, len(list))
		for _, e := range list {
			n, _, err := avroNativeValue(elem, e, parent, namespace)
			if err != nil {
				return nil, "", err
			}
			out = append(out, n)
		}
		return out, "array", nil
	}
	if f.IsRecord() {
		st, ok := v.(*models.Struct)
		if !ok {
			return nil, "", models.ErrConvert(nil, "expected record, got %T", v)
		}
		name := f.Schema.Name
		if name == "" {
			name = parent + "_" + f.Name
		}
		ns := f.Schema.Namespace
		if ns == "" {
			ns = namespace
		}
		rec, err := avroNativeRecord(st, name, ns)
		if err != nil {
			return nil, "", err
		}
		full := name
		if ns != "" {
			full = ns + "." + name
		}
		return rec, full, nil
	}

	if f.Logical != "" {
		if n, name, ok, err := avroLogicalNative(f, v); ok || err != nil {
			return n, name, err
		}
	}

	switch f.Type {
	case models.SchemaTypeString, models.SchemaTypeJSON:
		s, err := Text(v)
		return s, "string", err
	case models.SchemaTypeBytes:
		switch x := v.(type) {
		case models.Bytes:
			return []byte(x), "bytes", nil
		case models.String:
			return []byte(x), "bytes", nil
		}
	case models.SchemaTypeBoolean:
		if b, ok := v.(models.Bool); ok {
			return bool(b), "boolean", nil
		}
	case models.SchemaTypeFloat, models.SchemaTypeDouble:
		var fl float64
		switch x := v.(type) {
		case models.Float:
			fl = float64(x)
		case models.Int:
			fl = float64(x)
		default:
			return nil, "", models.ErrConvert(nil, "expected number for field '%s', got %T", f.Name, v)
		}
		if f.Type == models.SchemaTypeFloat {
			return float32(fl), "float", nil
		}
		return fl, "double", nil
	}

	i, ok := v.(models.Int)
	if !ok {
		return nil, "", models.ErrConvert(nil, "expected %s for field '%s', got %T", f.Type, f.Name, v)
	}
	switch f.Type {
	case models.SchemaTypeInt8, models.SchemaTypeInt16, models.SchemaTypeInt32:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, "", models.ErrConvert(nil, "value %d of field '%s' is out of the int range", i, f.Name)
		}
		return int32(i), "int", nil
	case models.SchemaTypeInt64:
		return int64(i), "long", nil
	case models.SchemaTypeDate, models.SchemaTypeLocalDate:
		return DateFromEpochDay(int64(i)), "int.date", nil
	case models.SchemaTypeTime, models.SchemaTypeLocalTime:
		return time.Duration(i) * time.Millisecond, "int.time-millis", nil
	case models.SchemaTypeTimestamp, models.SchemaTypeInstant, models.SchemaTypeLocalDateTime:
		return time.UnixMilli(int64(i)).UTC(), "long.timestamp-millis", nil
	}
	return nil, "", models.ErrConvert(nil, "unsupported avro field type %s", f.Type)
}

// avroLogicalNative converts values of the logical types goavro encodes from
// dedicated natives. ok is false for logical types written as their underlying type.
func avroLogicalNative(f models.Field, v models.Value) (any, string, bool, error) {
	l := logicalOf(f)
	switch l.Type + "." + l.LogicalType {
	case "long.timestamp-micros":
		i, ok := v.(models.Int)
		if !ok {
			return nil, "", true, models.ErrConvert(nil, "expected %s for field '%s', got %T", f.Type, f.Name, v)
		}
		return time.UnixMilli(int64(i)).UTC(), "long.timestamp-micros", true, nil
	case "long.time-micros":
		i, ok := v.(models.Int)
		if !ok {
			return nil, "", true, models.ErrConvert(nil, "expected %s for field '%s', got %T", f.Type, f.Name, v)
		}
		return time.Duration(i) * time.Millisecond, "long.time-micros", true, nil
	case "bytes.decimal":
		text, err := Text(v)
		if err != nil {
			return nil, "", true, err
		}
		r, ok := new(big.Rat).SetString(text)
		if !ok {
			return nil, "", true, models.ErrConvert(nil, "invalid decimal %q for field '%s'", text, f.Name)
		}
		return r, "bytes.decimal", true, nil
	}
	return nil, "", false, nil
}
