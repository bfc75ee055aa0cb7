package steps

import (
	"context"
	"testing"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/models"
)

func newStep(t *testing.T, stepType string, cfg map[string]any, deps *builder.Dependencies) models.Step {
	t.Helper()
	step, err := builder.CreateStep(stepType, cfg, deps)
	if err != nil {
		t.Fatalf("CreateStep(%s) failed: %v", stepType, err)
	}
	return step
}

func newContext(t *testing.T, rec *models.Record) *models.TransformContext {
	t.Helper()
	tc, err := codec.NewTransformContext(rec, false)
	if err != nil {
		t.Fatalf("NewTransformContext failed: %v", err)
	}
	return tc
}

// process runs one step over rec and builds the output record
func process(t *testing.T, step models.Step, rec *models.Record) *models.Record {
	t.Helper()
	tc := newContext(t, rec)
	if err := step.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	out, err := codec.BuildRecord(tc)
	if err != nil {
		t.Fatalf("BuildRecord failed: %v", err)
	}
	return out
}

// processErr runs one step over rec and returns its error
func processErr(t *testing.T, step models.Step, rec *models.Record) error {
	t.Helper()
	return step.Process(context.Background(), newContext(t, rec))
}

func userSchema() *models.RecordSchema {
	return &models.RecordSchema{
		Name:      "User",
		Namespace: "test",
		Fields: []models.Field{
			{Name: "firstName", Type: models.SchemaTypeString},
			{Name: "lastName", Type: models.SchemaTypeString},
			{Name: "age", Type: models.SchemaTypeInt32, Optional: true},
		},
	}
}

func userStruct() *models.Struct {
	return &models.Struct{
		Schema: userSchema(),
		Values: []models.Value{models.String("Jane"), models.String("Doe"), models.Int(42)},
	}
}

func keySchema() *models.RecordSchema {
	return &models.RecordSchema{
		Name: "Key",
		Fields: []models.Field{
			{Name: "keyField1", Type: models.SchemaTypeString},
			{Name: "keyField2", Type: models.SchemaTypeString},
		},
	}
}

func keyStruct() *models.Struct {
	return &models.Struct{
		Schema: keySchema(),
		Values: []models.Value{models.String("key1"), models.String("key2")},
	}
}

func avroRecord(s *models.Struct) *models.Record {
	key := "test-key"
	return &models.Record{
		Schema:    &models.Schema{Type: models.SchemaTypeAvro, Native: s.Schema},
		Value:     s,
		Key:       &key,
		TopicName: "test-input-topic",
	}
}

func avroKeyValueRecord() *models.Record {
	return &models.Record{
		Schema: &models.Schema{
			Type:  models.SchemaTypeKeyValue,
			Key:   &models.Schema{Type: models.SchemaTypeAvro, Native: keySchema()},
			Value: &models.Schema{Type: models.SchemaTypeAvro, Native: userSchema()},
		},
		Value:     models.KeyValue{Key: keyStruct(), Value: userStruct()},
		TopicName: "test-input-topic",
	}
}

func stringRecord(value string) *models.Record {
	key := "test-key"
	eventTime := int64(42)
	return &models.Record{
		Schema:           &models.Schema{Type: models.SchemaTypeString},
		Value:            value,
		Key:              &key,
		EventTime:        &eventTime,
		TopicName:        "test-input-topic",
		DestinationTopic: "test-output-topic",
		Properties:       map[string]string{"test-key": "test-value"},
	}
}

func jsonRecord(value string) *models.Record {
	key := "test-key"
	return &models.Record{
		Schema: &models.Schema{Type: models.SchemaTypeJSON},
		Value:  []byte(value),
		Key:    &key,
	}
}

// decodeAvro decodes an AVRO output side. Sides no step replaced come back as they arrived.
func decodeAvro(t *testing.T, schema *models.Schema, value any) *models.Struct {
	t.Helper()
	if schema == nil || schema.Type != models.SchemaTypeAvro {
		t.Fatalf("Expected an AVRO schema, got %+v", schema)
	}
	if s, ok := value.(*models.Struct); ok {
		return s
	}
	data, ok := value.([]byte)
	if !ok {
		t.Fatalf("Expected AVRO bytes, got %T", value)
	}
	s, err := codec.DecodeAvro(data, schema.Native)
	if err != nil {
		t.Fatalf("DecodeAvro failed: %v", err)
	}
	return s
}

func fieldNames(rs *models.RecordSchema) []string {
	names := make([]string, len(rs.Fields))
	for i, f := range rs.Fields {
		names[i] = f.Name
	}
	return names
}

func get(t *testing.T, s *models.Struct, name string) models.Value {
	t.Helper()
	v, ok := s.Get(name)
	if !ok {
		t.Fatalf("Field %s not found in %v", name, fieldNames(s.Schema))
	}
	return v
}
