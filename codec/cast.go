package codec

import (
	"github.com/simon020286/go-transforms/models"
)

// Cast converts a side value from one schema type to another.
// Supported: identity, primitive to STRING, STRING and BYTES to each other,
// STRING/BYTES to JSON, and structured values to STRING/BYTES.
func Cast(v models.Value, from models.SchemaType, rs *models.RecordSchema, to models.SchemaType) (models.Value, *models.RecordSchema, error) {
	if from == to {
		return v, rs, nil
	}
	if models.IsNull(v) {
		if castAllowed(from, to) {
			return models.Null{}, nil, nil
		}
		return nil, nil, models.ErrUnsupportedCast(from, to)
	}

	switch to {
	case models.SchemaTypeString, models.SchemaTypeBytes:
		text, err := castText(v, from, to)
		if err != nil {
			return nil, nil, err
		}
		if to == models.SchemaTypeBytes {
			return models.Bytes(text), nil, nil
		}
		return models.String(text), nil, nil

	case models.SchemaTypeJSON:
		if from != models.SchemaTypeString && from != models.SchemaTypeBytes {
			break
		}
		var tree *models.Tree
		switch x := v.(type) {
		case *models.Tree:
			tree = x
		case models.String:
			parsed, err := ParseJSONObject([]byte(x))
			if err != nil {
				return nil, nil, err
			}
			tree = parsed
		case models.Bytes:
			parsed, err := ParseJSONObject(x)
			if err != nil {
				return nil, nil, err
			}
			tree = parsed
		default:
			return nil, nil, models.ErrUnsupportedCast(from, to)
		}
		return tree, InferSchema(tree, "json"), nil
	}
	return nil, nil, models.ErrUnsupportedCast(from, to)
}

func castAllowed(from, to models.SchemaType) bool {
	switch to {
	case models.SchemaTypeString:
		return true
	case models.SchemaTypeBytes:
		return from == models.SchemaTypeString || from.IsStruct()
	case models.SchemaTypeJSON:
		return from == models.SchemaTypeString || from == models.SchemaTypeBytes
	}
	return false
}

func castText(v models.Value, from, to models.SchemaType) (string, error) {
	switch x := v.(type) {
	case *models.Tree, models.List, *models.Struct:
		b, err := MarshalJSON(v)
		return string(b), err
	case models.String:
		return string(x), nil
	case models.Bytes:
		return string(x), nil
	case models.Int:
		if to != models.SchemaTypeString {
			break
		}
		if from.IsTemporal() {
			return temporalText(int64(x), from), nil
		}
		return Text(x)
	case models.Float, models.Bool:
		if to == models.SchemaTypeString {
			return Text(x)
		}
	}
	return "", models.ErrUnsupportedCast(from, to)
}
