// Package fieldpath implements the field reference grammar shared by compute,
// query, embeddings and chat steps: a root (value, key, messageKey, topicName,
// destinationTopic, eventTime, properties) optionally followed by dotted segments.
package fieldpath

import (
	"sort"
	"strings"

	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/models"
)

type Root string

const (
	RootValue            Root = "value"
	RootKey              Root = "key"
	RootMessageKey       Root = "messageKey"
	RootTopicName        Root = "topicName"
	RootDestinationTopic Root = "destinationTopic"
	RootEventTime        Root = "eventTime"
	RootProperties       Root = "properties"
)

// Path is a parsed field reference
type Path struct {
	Raw      string
	Root     Root
	Segments []string
	// Property is the property name for properties.<name>; empty means the whole map
	Property string
}

// Parse parses a field reference such as "value.user.name" or "properties.trace-id"
func Parse(s string) (Path, error) {
	raw := strings.TrimSpace(s)
	root, rest, hasRest := strings.Cut(raw, ".")
	p := Path{Raw: raw, Root: Root(root)}
	switch p.Root {
	case RootValue, RootKey:
		if !hasRest {
			return p, nil
		}
		for _, seg := range strings.Split(rest, ".") {
			if seg == "" {
				return p, &models.ConfigError{Msg: "empty segment in field name " + raw}
			}
			p.Segments = append(p.Segments, seg)
		}
		return p, nil
	case RootProperties:
		if hasRest && rest == "" {
			return p, &models.ConfigError{Msg: "empty property name in " + raw}
		}
		p.Property = rest
		return p, nil
	case RootMessageKey, RootTopicName, RootDestinationTopic, RootEventTime:
		if hasRest {
			return p, &models.ConfigError{Msg: "header field " + root + " has no sub-fields"}
		}
		return p, nil
	}
	return p, &models.ConfigError{Msg: "invalid field name " + raw}
}

// MustParse is Parse for literals known to be valid
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return p.Raw
}

// IsHeader reports whether the path targets record metadata rather than key or value
func (p Path) IsHeader() bool {
	return p.Root != RootValue && p.Root != RootKey
}

// IsRoot reports whether the path is a bare value or key
func (p Path) IsRoot() bool {
	return (p.Root == RootValue || p.Root == RootKey) && len(p.Segments) == 0
}

// CheckWritable rejects paths that cannot be assigned
func (p Path) CheckWritable() error {
	if len(p.Segments) > 1 {
		return &models.ConfigError{Msg: "only top-level fields can be written: " + p.Raw}
	}
	if p.Root == RootProperties && p.Property == "" {
		return &models.ConfigError{Msg: "a property name is required: " + p.Raw}
	}
	return nil
}

// Resolve reads the referenced value. Unknown fields and properties fail with UnknownPathError.
func (p Path) Resolve(tc *models.TransformContext) (models.Value, error) {
	switch p.Root {
	case RootValue, RootKey:
		v := p.rootValue(tc)
		for _, seg := range p.Segments {
			next, ok, err := codec.GetField(v, seg)
			if err != nil {
				return nil, models.ErrConvert(err, "cannot resolve %s", p.Raw)
			}
			if !ok {
				return nil, models.ErrUnknownPath(p.Raw)
			}
			v = next
		}
		if v == nil {
			return models.Null{}, nil
		}
		return v, nil
	case RootMessageKey:
		if tc.Key == nil {
			return models.Null{}, nil
		}
		return models.String(*tc.Key), nil
	case RootTopicName:
		return models.String(tc.InputTopic), nil
	case RootDestinationTopic:
		return models.String(tc.OutputTopic), nil
	case RootEventTime:
		if tc.EventTime == nil {
			return models.Null{}, nil
		}
		return models.Int(*tc.EventTime), nil
	case RootProperties:
		if p.Property == "" {
			tree := models.NewTree()
			for _, k := range sortedKeys(tc.Properties) {
				tree.Set(k, models.String(tc.Properties[k]))
			}
			return tree, nil
		}
		v, ok := tc.Properties[p.Property]
		if !ok {
			return nil, models.ErrUnknownPath(p.Raw)
		}
		return models.String(v), nil
	}
	return nil, models.ErrUnknownPath(p.Raw)
}

// rootValue is the key side for key-value records and the raw message key otherwise
func (p Path) rootValue(tc *models.TransformContext) models.Value {
	if p.Root == RootValue {
		return tc.ValueObject
	}
	if tc.IsKeyValue() {
		return tc.KeyObject
	}
	if tc.Key == nil {
		return models.Null{}
	}
	return models.String(*tc.Key)
}

// Assign writes v at the path. f carries the declared type of the written value;
// its name is taken from the path.
func (p Path) Assign(tc *models.TransformContext, v models.Value, f models.Field) error {
	if v == nil {
		v = models.Null{}
	}
	switch p.Root {
	case RootValue, RootKey:
		part := models.Part(p.Root)
		if len(p.Segments) == 0 {
			t := f.Type
			var rs *models.RecordSchema
			if f.Array || f.Type == models.SchemaTypeJSON {
				t = models.SchemaTypeJSON
				if tree, ok := v.(*models.Tree); ok {
					rs = codec.InferSchema(tree, "json")
				}
			}
			tc.SetSide(part, v, t, rs)
			return nil
		}
		if part == models.PartKey && !tc.IsKeyValue() {
			return models.ErrConvert(nil, "cannot write %s: the record has no key schema", p.Raw)
		}
		cur, t, rs := tc.Side(part)
		f.Name = p.Segments[0]
		nv, nrs, err := codec.SetField(cur, t, rs, f, v)
		if err != nil {
			return err
		}
		tc.SetSide(part, nv, t, nrs)
		return nil

	case RootEventTime:
		if models.IsNull(v) {
			tc.EventTime = nil
			return nil
		}
		i, ok := v.(models.Int)
		if !ok {
			return models.ErrConvert(nil, "eventTime must be an integer, got %T", v)
		}
		ms := int64(i)
		tc.EventTime = &ms
		return nil
	}

	text, err := codec.Text(v)
	if err != nil {
		return err
	}
	switch p.Root {
	case RootMessageKey:
		if models.IsNull(v) {
			tc.Key = nil
		} else {
			tc.Key = &text
		}
	case RootTopicName:
		tc.InputTopic = text
	case RootDestinationTopic:
		tc.OutputTopic = text
	case RootProperties:
		if p.Property == "" {
			return models.ErrConvert(nil, "cannot replace all properties")
		}
		if tc.Properties == nil {
			tc.Properties = map[string]string{}
		}
		if models.IsNull(v) {
			delete(tc.Properties, p.Property)
		} else {
			tc.Properties[p.Property] = text
		}
	default:
		return models.ErrUnknownPath(p.Raw)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
