package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/buger/jsonparser"
	json "github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/simon020286/go-transforms/models"
)

// ParseJSON parses any JSON document into a value, preserving object key order
func ParseJSON(data []byte) (models.Value, error) {
	raw, dataType, end, err := jsonparser.Get(data)
	if err != nil {
		return nil, models.ErrConvert(err, "invalid JSON")
	}
	if len(bytes.TrimSpace(data[end:])) != 0 {
		return nil, models.ErrConvert(nil, "invalid JSON: trailing data at offset %d", end)
	}
	return jsonValue(raw, dataType)
}

// ParseJSONObject parses a JSON document that must be an object
func ParseJSONObject(data []byte) (*models.Tree, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	tree, ok := v.(*models.Tree)
	if !ok {
		return nil, models.ErrConvert(nil, "JSON document is not an object")
	}
	return tree, nil
}

func jsonValue(raw []byte, dataType jsonparser.ValueType) (models.Value, error) {
	switch dataType {
	case jsonparser.Object:
		tree := models.NewTree()
		err := jsonparser.ObjectEach(raw, func(key []byte, value []byte, vt jsonparser.ValueType, _ int) error {
			v, err := jsonValue(value, vt)
			if err != nil {
				return err
			}
			tree.Set(string(key), v)
			return nil
		})
		if err != nil {
			return nil, models.ErrConvert(err, "invalid JSON object")
		}
		return tree, nil

	case jsonparser.Array:
		list := models.List{}
		var itemErr error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, vt jsonparser.ValueType, _ int, err error) {
			if itemErr != nil {
				return
			}
			if err != nil {
				itemErr = err
				return
			}
			v, err := jsonValue(value, vt)
			if err != nil {
				itemErr = err
				return
			}
			list = append(list, v)
		})
		if err == nil {
			err = itemErr
		}
		if err != nil {
			return nil, models.ErrConvert(err, "invalid JSON array")
		}
		return list, nil

	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, models.ErrConvert(err, "invalid JSON string")
		}
		return models.String(s), nil

	case jsonparser.Number:
		if i, err := jsonparser.ParseInt(raw); err == nil {
			return models.Int(i), nil
		}
		f, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return nil, models.ErrConvert(err, "invalid JSON number %q", raw)
		}
		return models.Float(f), nil

	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return nil, models.ErrConvert(err, "invalid JSON boolean")
		}
		return models.Bool(b), nil

	case jsonparser.Null:
		return models.Null{}, nil
	}
	return nil, models.ErrConvert(nil, "unknown JSON value type %s", dataType)
}

// MarshalJSON serializes a value as compact JSON, keeping field order.
// Bytes are written as base64 strings.
func MarshalJSON(v models.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v models.Value) error {
	switch x := v.(type) {
	case nil, models.Null:
		buf.WriteString("null")
	case models.Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case models.Int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case models.Float:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return models.ErrConvert(nil, "cannot encode %v as JSON", float64(x))
		}
		b, err := json.Marshal(float64(x))
		if err != nil {
			return models.ErrConvert(err, "cannot encode number")
		}
		buf.Write(b)
	case models.String:
		writeJSONString(buf, string(x))
	case models.Bytes:
		writeJSONString(buf, base64.StdEncoding.EncodeToString(x))
	case models.List:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *models.Struct:
		buf.WriteByte('{')
		for i, f := range x.Schema.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, f.Name)
			buf.WriteByte(':')
			if err := writeJSON(buf, x.Values[i]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case *models.Tree:
		buf.WriteByte('{')
		first := true
		var err error
		x.Each(func(k string, e models.Value) {
			if err != nil {
				return
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeJSONString(buf, k)
			buf.WriteByte(':')
			err = writeJSON(buf, e)
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	default:
		return models.ErrConvert(nil, "cannot encode %T as JSON", v)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.MarshalNoEscape(s)
	buf.Write(b)
}

// TreeFromNative builds an ordered tree from a Go map. Keys declared by
// schema come first in schema order, the rest follow sorted.
func TreeFromNative(m map[string]any, schema *models.RecordSchema) (*models.Tree, error) {
	tree := models.NewTree()
	seen := make(map[string]bool, len(m))
	if schema != nil {
		for _, f := range schema.Fields {
			raw, ok := m[f.Name]
			if !ok {
				continue
			}
			v, err := jsonFromNative(raw, f.Schema)
			if err != nil {
				return nil, fmt.Errorf("field '%s': %w", f.Name, err)
			}
			tree.Set(f.Name, v)
			seen[f.Name] = true
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		v, err := jsonFromNative(m[k], nil)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", k, err)
		}
		tree.Set(k, v)
	}
	return tree, nil
}

// Natural converts a plain Go value keeping its own type: maps become trees,
// slices lists, strings stay strings.
func Natural(native any) (models.Value, error) {
	return jsonFromNative(native, nil)
}

func jsonFromNative(raw any, schema *models.RecordSchema) (models.Value, error) {
	switch x := raw.(type) {
	case nil:
		return models.Null{}, nil
	case models.Value:
		return x, nil
	case bool:
		return models.Bool(x), nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint, uint64:
		return models.Int(cast.ToInt64(x)), nil
	case float32:
		return models.Float(float64(x)), nil
	case float64:
		return models.Float(x), nil
	case string:
		return models.String(x), nil
	case []byte:
		return models.Bytes(x), nil
	case time.Time:
		return models.Int(x.UnixMilli()), nil
	case time.Duration:
		return models.Int(x.Milliseconds()), nil
	case map[string]any:
		return TreeFromNative(x, schema)
	case []any:
		list := make(models.List, 0, len(x))
		for _, e := range x {
			v, err := jsonFromNative(e, nil)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return nil, models.ErrConvert(err, "unsupported JSON value %T", raw)
	}
	return models.String(s), nil
}

// InferSchema derives a JSON native schema from a tree. All fields are optional.
func InferSchema(tree *models.Tree, name string) *models.RecordSchema {
	rs := &models.RecordSchema{Name: name}
	tree.Each(func(k string, v models.Value) {
		rs.Fields = append(rs.Fields, inferField(k, v))
	})
	return rs
}

func inferField(name string, v models.Value) models.Field {
	f := models.Field{Name: name, Optional: true}
	switch x := v.(type) {
	case models.Int:
		f.Type = models.SchemaTypeInt64
	case models.Float:
		f.Type = models.SchemaTypeDouble
	case models.Bool:
		f.Type = models.SchemaTypeBoolean
	case models.Bytes:
		f.Type = models.SchemaTypeBytes
	case *models.Tree:
		f.Type = models.SchemaTypeJSON
		f.Schema = InferSchema(x, name)
	case models.List:
		f.Type = models.SchemaTypeJSON
	default:
		f.Type = models.SchemaTypeString
	}
	return f
}
