package codec

import (
	"bytes"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/simon020286/go-transforms/models"
)

// Envelope is the JSON form of a host record read and written by the runners.
// A record is KEY_VALUE when key_type is set.
//
//	{"topic":"orders","message_key":"k1","value_type":"JSON","value":{"id":1}}
type Envelope struct {
	Topic            string            `json:"topic,omitempty"`
	DestinationTopic string            `json:"destination_topic,omitempty"`
	MessageKey       *string           `json:"message_key,omitempty"`
	EventTime        *int64            `json:"event_time,omitempty"`
	Properties       map[string]string `json:"properties,omitempty"`

	ValueType models.SchemaType `json:"value_type,omitempty"`
	Value     json.RawMessage   `json:"value"`
	KeyType   models.SchemaType `json:"key_type,omitempty"`
	Key       json.RawMessage   `json:"key,omitempty"`
}

// ParseEnvelope decodes one envelope document into a host record
func ParseEnvelope(data []byte) (*models.Record, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, models.ErrConvert(err, "invalid record envelope")
	}
	return env.Record()
}

// Record converts the envelope into a host record
func (e *Envelope) Record() (*models.Record, error) {
	rec := &models.Record{
		TopicName:        e.Topic,
		DestinationTopic: e.DestinationTopic,
		Key:              e.MessageKey,
		EventTime:        e.EventTime,
		Properties:       e.Properties,
	}

	valueType, value, err := envelopeSide(e.ValueType, e.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if e.KeyType == "" {
		rec.Schema = &models.Schema{Type: valueType}
		rec.Value = value
		return rec, nil
	}

	keyType, key, err := envelopeSide(e.KeyType, e.Key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	rec.Schema = &models.Schema{
		Type:  models.SchemaTypeKeyValue,
		Key:   &models.Schema{Type: keyType},
		Value: &models.Schema{Type: valueType},
	}
	rec.Value = models.KeyValue{Key: key, Value: value}
	return rec, nil
}

// envelopeSide decodes one side. Without a type, objects and arrays are JSON
// and strings are STRING.
func envelopeSide(t models.SchemaType, raw json.RawMessage) (models.SchemaType, any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		if t == "" {
			t = models.SchemaTypeString
		}
		return t, nil, nil
	}
	if t == "" {
		switch raw[0] {
		case '{', '[':
			t = models.SchemaTypeJSON
		case '"':
			t = models.SchemaTypeString
		default:
			return "", nil, models.ErrConvert(nil, "a type is required for the value %s", raw)
		}
	}

	switch t {
	case models.SchemaTypeJSON:
		return t, []byte(raw), nil
	case models.SchemaTypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, models.ErrConvert(err, "invalid STRING value")
		}
		return t, s, nil
	case models.SchemaTypeBytes:
		var b []byte
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", nil, models.ErrConvert(err, "invalid BYTES value, expected base64")
		}
		return t, b, nil
	case models.SchemaTypeBoolean:
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return "", nil, models.ErrConvert(err, "invalid BOOLEAN value")
		}
		return t, b, nil
	case models.SchemaTypeInt8, models.SchemaTypeInt16, models.SchemaTypeInt32, models.SchemaTypeInt64:
		i, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return "", nil, models.ErrConvert(err, "invalid %s value", t)
		}
		return t, i, nil
	case models.SchemaTypeFloat, models.SchemaTypeDouble:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return "", nil, models.ErrConvert(err, "invalid %s value", t)
		}
		return t, f, nil
	}
	return "", nil, models.ErrUnsupportedSchemaReason(string(t), "not supported in record envelopes")
}

// NewEnvelope converts an output record. JSON sides are embedded as documents,
// BYTES, AVRO and PROTOBUF sides as base64 strings.
func NewEnvelope(rec *models.Record) (*Envelope, error) {
	env := &Envelope{
		Topic:            rec.TopicName,
		DestinationTopic: rec.DestinationTopic,
		MessageKey:       rec.Key,
		EventTime:        rec.EventTime,
		Properties:       rec.Properties,
	}

	if !rec.Schema.IsKeyValue() {
		t, raw, err := envelopeRaw(rec.Schema, rec.Value)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		env.ValueType, env.Value = t, raw
		return env, nil
	}

	kv, ok := rec.Value.(models.KeyValue)
	if !ok {
		return nil, models.ErrConvert(nil, "KEY_VALUE record value must be a KeyValue, got %T", rec.Value)
	}
	var err error
	if env.KeyType, env.Key, err = envelopeRaw(rec.Schema.Key, kv.Key); err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	if env.ValueType, env.Value, err = envelopeRaw(rec.Schema.Value, kv.Value); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return env, nil
}

func envelopeRaw(s *models.Schema, native any) (models.SchemaType, json.RawMessage, error) {
	t := models.SchemaTypeBytes
	if s != nil {
		t = s.Type
	}
	if b, ok := native.([]byte); ok && t == models.SchemaTypeJSON {
		return t, json.RawMessage(b), nil
	}
	raw, err := json.Marshal(native)
	if err != nil {
		return "", nil, models.ErrConvert(err, "cannot encode %s value", t)
	}
	return t, raw, nil
}
