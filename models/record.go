package models

// KeyValueEncoding tells the host how a key-value record is laid out on the wire
type KeyValueEncoding string

const (
	KeyValueEncodingInline    KeyValueEncoding = "INLINE"
	KeyValueEncodingSeparated KeyValueEncoding = "SEPARATED"
)

// Schema describes the value of a host record.
// For KEY_VALUE records, Key and Value describe both sides.
type Schema struct {
	Type             SchemaType
	Native           *RecordSchema
	Key              *Schema
	Value            *Schema
	KeyValueEncoding KeyValueEncoding
}

// KeyValue is the value of a KEY_VALUE record
type KeyValue struct {
	Key   any
	Value any
}

// Record is the host-facing message. Value holds native Go values:
// numerics, bool, string, []byte, time.Time, time.Duration, KeyValue,
// goavro-style maps, proto.Message or encoded payloads.
type Record struct {
	Schema           *Schema
	Value            any
	TopicName        string
	DestinationTopic string
	Key              *string
	EventTime        *int64
	Properties       map[string]string
}

func (s *Schema) IsKeyValue() bool {
	return s != nil && s.Type == SchemaTypeKeyValue
}
