package steps

import (
	"errors"
	"reflect"
	"testing"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/models"
)

func TestCastStep_AvroToString(t *testing.T) {
	step := newStep(t, "cast", map[string]any{"schema_type": "STRING"}, nil)
	out := process(t, step, avroRecord(userStruct()))

	if out.Schema.Type != models.SchemaTypeString {
		t.Fatalf("Expected STRING schema, got %s", out.Schema.Type)
	}
	expected := `{"firstName":"Jane","lastName":"Doe","age":42}`
	if out.Value != expected {
		t.Errorf("Expected %s, got %v", expected, out.Value)
	}
	if out.Key == nil || *out.Key != "test-key" {
		t.Errorf("Expected message key to be kept, got %v", out.Key)
	}
}

func TestCastStep_KeyPart(t *testing.T) {
	step := newStep(t, "cast", map[string]any{"schema-type": "string", "part": "key"}, nil)
	out := process(t, step, avroKeyValueRecord())

	if !out.Schema.IsKeyValue() {
		t.Fatalf("Expected a key-value record, got %s", out.Schema.Type)
	}
	if out.Schema.Key.Type != models.SchemaTypeString {
		t.Errorf("Expected STRING key schema, got %s", out.Schema.Key.Type)
	}
	kv := out.Value.(models.KeyValue)
	if kv.Key != `{"keyField1":"key1","keyField2":"key2"}` {
		t.Errorf("Unexpected key %v", kv.Key)
	}
	value := decodeAvro(t, out.Schema.Value, kv.Value)
	if !models.Equal(get(t, value, "firstName"), models.String("Jane")) {
		t.Errorf("Value side was modified")
	}
}

func TestCastStep_StringToJSON(t *testing.T) {
	step := newStep(t, "cast", map[string]any{"schema_type": "JSON"}, nil)
	out := process(t, step, stringRecord(`{"a":1,"b":"x"}`))

	if out.Schema.Type != models.SchemaTypeJSON {
		t.Fatalf("Expected JSON schema, got %s", out.Schema.Type)
	}
	if string(out.Value.([]byte)) != `{"a":1,"b":"x"}` {
		t.Errorf("Unexpected value %s", out.Value)
	}
}

func TestCastStep_UnsupportedCast(t *testing.T) {
	step := newStep(t, "cast", map[string]any{"schema_type": "AVRO"}, nil)
	err := processErr(t, step, stringRecord("test"))
	if !errors.Is(err, models.ErrConversion) {
		t.Errorf("Expected conversion error, got %v", err)
	}
}

func TestCastStep_InvalidConfig(t *testing.T) {
	configs := []map[string]any{
		{},
		{"schema_type": "NOT_A_TYPE"},
		{"schema_type": "KEY_VALUE"},
		{"schema_type": "STRING", "part": "header"},
		{"schema_type": "STRING", "unknown": true},
	}
	for _, cfg := range configs {
		_, err := builder.CreateStep("cast", cfg, nil)
		if !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("%v: expected configuration error, got %v", cfg, err)
		}
	}
}

func TestDropFieldsStep_Avro(t *testing.T) {
	step := newStep(t, "drop-fields", map[string]any{"fields": []any{"age", "missing"}}, nil)
	out := process(t, step, avroRecord(userStruct()))

	value := decodeAvro(t, out.Schema, out.Value)
	if names := fieldNames(value.Schema); !reflect.DeepEqual(names, []string{"firstName", "lastName"}) {
		t.Errorf("Unexpected fields %v", names)
	}

	// a second pass is a no-op
	again := process(t, step, out)
	value = decodeAvro(t, again.Schema, again.Value)
	if names := fieldNames(value.Schema); !reflect.DeepEqual(names, []string{"firstName", "lastName"}) {
		t.Errorf("Unexpected fields after second pass %v", names)
	}
}

func TestDropFieldsStep_KeyValue(t *testing.T) {
	step := newStep(t, "drop-fields", map[string]any{"fields": []any{"keyField1", "lastName"}}, nil)
	out := process(t, step, avroKeyValueRecord())

	kv := out.Value.(models.KeyValue)
	key := decodeAvro(t, out.Schema.Key, kv.Key)
	if names := fieldNames(key.Schema); !reflect.DeepEqual(names, []string{"keyField2"}) {
		t.Errorf("Unexpected key fields %v", names)
	}
	value := decodeAvro(t, out.Schema.Value, kv.Value)
	if names := fieldNames(value.Schema); !reflect.DeepEqual(names, []string{"firstName", "age"}) {
		t.Errorf("Unexpected value fields %v", names)
	}
}

func TestDropFieldsStep_ValuePartOnly(t *testing.T) {
	step := newStep(t, "drop-fields", map[string]any{"fields": "keyField1", "part": "value"}, nil)
	out := process(t, step, avroKeyValueRecord())

	key := decodeAvro(t, out.Schema.Key, out.Value.(models.KeyValue).Key)
	if len(key.Schema.Fields) != 2 {
		t.Errorf("Expected the key to be untouched, got %v", fieldNames(key.Schema))
	}
}

func TestDropFieldsStep_JSON(t *testing.T) {
	step := newStep(t, "drop-fields", map[string]any{"fields": []any{"b"}}, nil)
	out := process(t, step, jsonRecord(`{"a":1,"b":2,"c":3}`))
	if string(out.Value.([]byte)) != `{"a":1,"c":3}` {
		t.Errorf("Unexpected value %s", out.Value)
	}
}

func TestDropFieldsStep_MissingFields(t *testing.T) {
	if _, err := builder.CreateStep("drop-fields", map[string]any{}, nil); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
	if _, err := builder.CreateStep("drop-fields", map[string]any{"fields": []any{}}, nil); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("Expected configuration error for empty fields, got %v", err)
	}
}

func nestedStruct() *models.Struct {
	address := &models.RecordSchema{
		Name: "Address",
		Fields: []models.Field{
			{Name: "street", Type: models.SchemaTypeString},
			{Name: "city", Type: models.SchemaTypeString},
		},
	}
	schema := &models.RecordSchema{
		Name: "Person",
		Fields: []models.Field{
			{Name: "id", Type: models.SchemaTypeString},
			{Name: "address", Type: models.SchemaTypeAvro, Schema: address},
		},
	}
	return &models.Struct{
		Schema: schema,
		Values: []models.Value{
			models.String("p1"),
			&models.Struct{Schema: address, Values: []models.Value{models.String("Main St"), models.String("Paris")}},
		},
	}
}

func TestFlattenStep_Avro(t *testing.T) {
	step := newStep(t, "flatten", nil, nil)
	out := process(t, step, avroRecord(nestedStruct()))

	value := decodeAvro(t, out.Schema, out.Value)
	expected := []string{"id", "address_street", "address_city"}
	if names := fieldNames(value.Schema); !reflect.DeepEqual(names, expected) {
		t.Fatalf("Expected fields %v, got %v", expected, names)
	}
	if !models.Equal(get(t, value, "address_city"), models.String("Paris")) {
		t.Errorf("Unexpected city %v", get(t, value, "address_city"))
	}
}

func TestFlattenStep_Delimiter(t *testing.T) {
	step := newStep(t, "flatten", map[string]any{"delimiter": "."}, nil)
	out := process(t, step, jsonRecord(`{"id":"p1","address":{"street":"Main St","geo":{"lat":1.5}}}`))

	expected := `{"id":"p1","address.street":"Main St","address.geo.lat":1.5}`
	if string(out.Value.([]byte)) != expected {
		t.Errorf("Expected %s, got %s", expected, out.Value)
	}
}

func TestFlattenStep_NoNesting(t *testing.T) {
	step := newStep(t, "flatten", nil, nil)
	out := process(t, step, avroRecord(userStruct()))

	value := decodeAvro(t, out.Schema, out.Value)
	if names := fieldNames(value.Schema); !reflect.DeepEqual(names, []string{"firstName", "lastName", "age"}) {
		t.Errorf("Unexpected fields %v", names)
	}
}

func TestFlattenStep_Collision(t *testing.T) {
	step := newStep(t, "flatten", nil, nil)
	err := processErr(t, step, jsonRecord(`{"a_b":1,"a":{"b":2}}`))
	var collision *models.FlattenCollisionError
	if !errors.As(err, &collision) {
		t.Errorf("Expected FlattenCollisionError, got %v", err)
	}
}

func TestMergeKeyValueStep(t *testing.T) {
	step := newStep(t, "merge-key-value", nil, nil)
	out := process(t, step, avroKeyValueRecord())

	if out.Schema.IsKeyValue() {
		t.Fatal("Expected the key to be dropped")
	}
	value := decodeAvro(t, out.Schema, out.Value)
	expected := []string{"keyField1", "keyField2", "firstName", "lastName", "age"}
	if names := fieldNames(value.Schema); !reflect.DeepEqual(names, expected) {
		t.Errorf("Expected fields %v, got %v", expected, names)
	}
	if !models.Equal(get(t, value, "keyField2"), models.String("key2")) {
		t.Errorf("Unexpected keyField2 %v", get(t, value, "keyField2"))
	}
}

func TestMergeKeyValueStep_ValueWins(t *testing.T) {
	rec := &models.Record{
		Schema: &models.Schema{
			Type:  models.SchemaTypeKeyValue,
			Key:   &models.Schema{Type: models.SchemaTypeJSON},
			Value: &models.Schema{Type: models.SchemaTypeJSON},
		},
		Value: models.KeyValue{Key: []byte(`{"id":1,"name":"key"}`), Value: []byte(`{"name":"value"}`)},
	}
	out := process(t, newStep(t, "merge-key-value", nil, nil), rec)
	if string(out.Value.([]byte)) != `{"id":1,"name":"value"}` {
		t.Errorf("Unexpected value %s", out.Value)
	}
}

func TestMergeKeyValueStep_Incompatible(t *testing.T) {
	rec := avroKeyValueRecord()
	rec.Schema.Key = &models.Schema{Type: models.SchemaTypeString}
	rec.Value = models.KeyValue{Key: "plain", Value: userStruct()}

	err := processErr(t, newStep(t, "merge-key-value", nil, nil), rec)
	if !errors.Is(err, models.ErrConversion) {
		t.Errorf("Expected conversion error, got %v", err)
	}
}

func TestMergeKeyValueStep_NotKeyValue(t *testing.T) {
	out := process(t, newStep(t, "merge-key-value", nil, nil), stringRecord("test"))
	if out.Value != "test" || out.Schema.Type != models.SchemaTypeString {
		t.Errorf("Expected the record to be unchanged, got %v", out.Value)
	}
}

func TestUnwrapKeyValueStep(t *testing.T) {
	out := process(t, newStep(t, "unwrap-key-value", nil, nil), avroKeyValueRecord())
	if out.Schema.IsKeyValue() {
		t.Fatal("Expected a plain record")
	}
	value := decodeAvro(t, out.Schema, out.Value)
	if names := fieldNames(value.Schema); !reflect.DeepEqual(names, []string{"firstName", "lastName", "age"}) {
		t.Errorf("Unexpected fields %v", names)
	}
}

func TestUnwrapKeyValueStep_Key(t *testing.T) {
	out := process(t, newStep(t, "unwrap-key-value", map[string]any{"unwrapKey": true}, nil), avroKeyValueRecord())
	value := decodeAvro(t, out.Schema, out.Value)
	if names := fieldNames(value.Schema); !reflect.DeepEqual(names, []string{"keyField1", "keyField2"}) {
		t.Errorf("Unexpected fields %v", names)
	}
}

func TestDropStep(t *testing.T) {
	step := newStep(t, "drop", nil, nil)
	tc := newContext(t, stringRecord("test"))
	if err := step.Process(t.Context(), tc); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !tc.DropCurrentRecord {
		t.Error("Expected the record to be dropped")
	}
	out := process(t, step, stringRecord("test"))
	if out != nil {
		t.Errorf("Expected no output record, got %+v", out)
	}
}
