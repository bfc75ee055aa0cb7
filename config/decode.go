package config

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"unicode"

	"github.com/go-viper/mapstructure/v2"

	"github.com/simon020286/go-transforms/models"
)

// FieldSpec describes one key of a step config struct, read from its
// mapstructure and step tags:
//
//	Part      string `mapstructure:"part" step:"enum=key|value,desc=Record part"`
//	Delimiter string `mapstructure:"delimiter" step:"default=_"`
type FieldSpec struct {
	Key         string
	Required    bool
	Default     string
	Enum        []string
	Description string
	Index       []int
}

// StepFields returns the specs of the tagged fields of a config struct type
func StepFields(t reflect.Type) []FieldSpec {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var specs []FieldSpec
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		key, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if key == "" || key == "-" {
			continue
		}
		spec := FieldSpec{Key: key, Index: field.Index}
		ParseStepTag(field.Tag.Get("step"), &spec)
		specs = append(specs, spec)
	}
	return specs
}

// ParseStepTag reads required, default=, enum= and desc=. desc must come last
// since it may contain commas.
func ParseStepTag(tag string, spec *FieldSpec) {
	for tag != "" {
		if desc, ok := strings.CutPrefix(tag, "desc="); ok {
			spec.Description = desc
			return
		}
		var part string
		part, tag, _ = strings.Cut(tag, ",")
		part = strings.TrimSpace(part)
		tag = strings.TrimSpace(tag)

		switch {
		case part == "required":
			spec.Required = true
		case strings.HasPrefix(part, "default="):
			spec.Default = strings.TrimPrefix(part, "default=")
		case strings.HasPrefix(part, "enum="):
			spec.Enum = strings.Split(strings.TrimPrefix(part, "enum="), "|")
		}
	}
}

// DecodeStep decodes a raw step config into out, a pointer to a tagged config
// struct. Keys may be written in snake_case, kebab-case or camelCase
// (schema_type, schema-type, schemaType). Unknown keys, missing required keys
// and values outside an enum are reported as configuration errors of stepType.
func DecodeStep(stepType string, raw map[string]any, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: DecodeStep requires a pointer to a struct, got %T", out)
	}
	specs := StepFields(rv.Type())

	input := make(map[string]any, len(raw))
	for k, v := range raw {
		input[normalizeKey(k)] = v
	}
	for _, spec := range specs {
		if v, ok := input[spec.Key]; ok && v != nil {
			continue
		}
		if spec.Required {
			return models.ErrConfigWrap(stepType, models.ErrMissingConfig(spec.Key))
		}
		if spec.Default != "" {
			input[spec.Key] = spec.Default
		} else {
			delete(input, spec.Key)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return models.ErrConfigWrap(stepType, err)
	}

	for _, spec := range specs {
		if len(spec.Enum) == 0 {
			continue
		}
		f := rv.Elem().FieldByIndex(spec.Index)
		if f.Kind() != reflect.String || f.String() == "" {
			continue
		}
		if !slices.Contains(spec.Enum, f.String()) {
			return models.ErrConfig(stepType, "'%s' must be one of [%s], got '%s'",
				spec.Key, strings.Join(spec.Enum, ", "), f.String())
		}
	}
	return nil
}

// normalizeKey maps kebab-case and camelCase keys to snake_case
func normalizeKey(key string) string {
	var sb strings.Builder
	for i, r := range key {
		switch {
		case r == '-':
			sb.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 {
				sb.WriteRune('_')
			}
			sb.WriteRune(unicode.ToLower(r))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
