package steps

import (
	"errors"
	"strings"
	"testing"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/models"
)

func computeConfig(fields ...map[string]any) map[string]any {
	list := make([]any, len(fields))
	for i, f := range fields {
		list[i] = f
	}
	return map[string]any{"fields": list}
}

func TestComputeStep_AvroFields(t *testing.T) {
	step := newStep(t, "compute", computeConfig(
		map[string]any{"name": "value.fullName", "expression": "value.firstName + ' ' + value.lastName", "type": "STRING"},
		map[string]any{"name": "value.age", "expression": "value.age + 1", "type": "INT32"},
		map[string]any{"name": "value.nextAge", "expression": "value.age + 1", "type": "INT64"},
		map[string]any{"name": "value.birthday", "expression": "'2023-01-02'", "type": "DATE"},
	), nil)
	out := process(t, step, avroRecord(userStruct()))

	value := decodeAvro(t, out.Schema, out.Value)
	if !models.Equal(get(t, value, "fullName"), models.String("Jane Doe")) {
		t.Errorf("Unexpected fullName %v", get(t, value, "fullName"))
	}
	if !models.Equal(get(t, value, "age"), models.Int(43)) {
		t.Errorf("Unexpected age %v", get(t, value, "age"))
	}
	// fields are evaluated in order
	if !models.Equal(get(t, value, "nextAge"), models.Int(44)) {
		t.Errorf("Unexpected nextAge %v", get(t, value, "nextAge"))
	}
	if !models.Equal(get(t, value, "birthday"), models.Int(19359)) {
		t.Errorf("Unexpected birthday %v", get(t, value, "birthday"))
	}
	f, _ := value.Schema.Field("birthday")
	if f.Type != models.SchemaTypeDate || !f.Optional {
		t.Errorf("Unexpected birthday field %+v", f)
	}
}

func TestComputeStep_Headers(t *testing.T) {
	step := newStep(t, "compute", computeConfig(
		map[string]any{"name": "destinationTopic", "expression": "topicName + '-out'"},
		map[string]any{"name": "messageKey", "expression": "fn.uppercase(messageKey)"},
		map[string]any{"name": "properties.length", "expression": "value.length"},
		map[string]any{"name": "eventTime", "expression": "eventTime + 1"},
	), nil)
	out := process(t, step, stringRecord("test"))

	if out.DestinationTopic != "test-input-topic-out" {
		t.Errorf("Unexpected destination topic %s", out.DestinationTopic)
	}
	if out.Key == nil || *out.Key != "TEST-KEY" {
		t.Errorf("Unexpected key %v", out.Key)
	}
	if out.Properties["length"] != "4" || out.Properties["test-key"] != "test-value" {
		t.Errorf("Unexpected properties %v", out.Properties)
	}
	if out.EventTime == nil || *out.EventTime != 43 {
		t.Errorf("Unexpected event time %v", out.EventTime)
	}
	if out.Value != "test" {
		t.Errorf("Expected the value to be unchanged, got %v", out.Value)
	}
}

func TestComputeStep_JSONStringValue(t *testing.T) {
	step := newStep(t, "compute", computeConfig(
		map[string]any{"name": "value.greeting", "expression": "'Hello ' + messageKey"},
	), nil)
	out := process(t, step, stringRecord(`{"name":"Jane"}`))

	if out.Schema.Type != models.SchemaTypeString {
		t.Fatalf("Expected the STRING schema to be kept, got %s", out.Schema.Type)
	}
	expected := `{"name":"Jane","greeting":"Hello test-key"}`
	if out.Value != expected {
		t.Errorf("Expected %s, got %v", expected, out.Value)
	}
}

func TestComputeStep_KeyRootCreatesKeyValue(t *testing.T) {
	step := newStep(t, "compute", computeConfig(
		map[string]any{"name": "key", "expression": "({id: messageKey})"},
	), nil)
	out := process(t, step, stringRecord("test"))

	if !out.Schema.IsKeyValue() {
		t.Fatalf("Expected a key-value record, got %s", out.Schema.Type)
	}
	if out.Schema.Key.Type != models.SchemaTypeJSON || out.Schema.Value.Type != models.SchemaTypeString {
		t.Errorf("Unexpected schemas %s/%s", out.Schema.Key.Type, out.Schema.Value.Type)
	}
	kv := out.Value.(models.KeyValue)
	if string(kv.Key.([]byte)) != `{"id":"test-key"}` {
		t.Errorf("Unexpected key %s", kv.Key)
	}
	if kv.Value != "test" {
		t.Errorf("Unexpected value %v", kv.Value)
	}
}

func TestComputeStep_ValueRoot(t *testing.T) {
	step := newStep(t, "compute", computeConfig(
		map[string]any{"name": "value", "expression": "value.firstName", "type": "STRING"},
	), nil)
	out := process(t, step, avroRecord(userStruct()))

	if out.Schema.Type != models.SchemaTypeString || out.Value != "Jane" {
		t.Errorf("Unexpected output %s %v", out.Schema.Type, out.Value)
	}
}

func TestComputeStep_NonNullable(t *testing.T) {
	step := newStep(t, "compute", computeConfig(
		map[string]any{"name": "value.missing", "expression": "null", "type": "STRING", "optional": false},
	), nil)
	err := processErr(t, step, avroRecord(userStruct()))
	var nonNullable *models.NonNullableFieldError
	if !errors.As(err, &nonNullable) {
		t.Errorf("Expected NonNullableFieldError, got %v", err)
	}
	if !errors.Is(err, models.ErrExpression) || errors.Is(err, models.ErrConversion) {
		t.Errorf("Expected an expression error, got %v", err)
	}
}

func TestComputeStep_OptionalNull(t *testing.T) {
	step := newStep(t, "compute", computeConfig(
		map[string]any{"name": "value.nickname", "expression": "null", "type": "STRING"},
	), nil)
	out := process(t, step, avroRecord(userStruct()))

	value := decodeAvro(t, out.Schema, out.Value)
	if !models.IsNull(get(t, value, "nickname")) {
		t.Errorf("Expected null nickname, got %v", get(t, value, "nickname"))
	}
}

func TestComputeStep_ExpressionError(t *testing.T) {
	step := newStep(t, "compute", computeConfig(
		map[string]any{"name": "value.x", "expression": "value.nothing.deeper"},
	), nil)
	if err := processErr(t, step, avroRecord(userStruct())); !errors.Is(err, models.ErrExpression) {
		t.Errorf("Expected expression error, got %v", err)
	}
}

func TestComputeStep_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     map[string]any
		message string
	}{
		{"no fields", map[string]any{}, "fields"},
		{"empty fields", computeConfig(), "must not be empty"},
		{"missing name", computeConfig(map[string]any{"expression": "1"}), "fields.name"},
		{"missing expression", computeConfig(map[string]any{"name": "value.a"}), "missing expression"},
		{"nested write", computeConfig(map[string]any{"name": "value.a.b", "expression": "1"}), "top-level"},
		{"invalid root", computeConfig(map[string]any{"name": "other.a", "expression": "1"}), "invalid field name"},
		{"invalid expression", computeConfig(map[string]any{"name": "value.a", "expression": "value.("}), "invalid expression"},
		{"invalid type", computeConfig(map[string]any{"name": "value.a", "expression": "1", "type": "UUID"}), "invalid schema type"},
		{"struct type", computeConfig(map[string]any{"name": "value.a", "expression": "1", "type": "AVRO"}), "unsupported type"},
		{
			"duplicate",
			computeConfig(
				map[string]any{"name": "value.a", "expression": "1"},
				map[string]any{"name": "value.a", "expression": "2"},
			),
			"Duplicate compute field name detected: value.a",
		},
		{
			"date root",
			computeConfig(map[string]any{"name": "value", "expression": "'2023-01-02'", "type": "DATE"}),
			"The compute operation cannot apply the type DATE to the message value or key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := builder.CreateStep("compute", tt.cfg, nil)
			if !errors.Is(err, models.ErrConfiguration) {
				t.Fatalf("Expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Expected %q in %q", tt.message, err.Error())
			}
		})
	}
}
