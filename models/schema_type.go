package models

import (
	"fmt"
	"strings"
)

// SchemaType is the closed set of encodings a record side can carry
type SchemaType string

const (
	SchemaTypeNone SchemaType = ""

	SchemaTypeInt8          SchemaType = "INT8"
	SchemaTypeInt16         SchemaType = "INT16"
	SchemaTypeInt32         SchemaType = "INT32"
	SchemaTypeInt64         SchemaType = "INT64"
	SchemaTypeFloat         SchemaType = "FLOAT"
	SchemaTypeDouble        SchemaType = "DOUBLE"
	SchemaTypeBoolean       SchemaType = "BOOLEAN"
	SchemaTypeString        SchemaType = "STRING"
	SchemaTypeBytes         SchemaType = "BYTES"
	SchemaTypeDate          SchemaType = "DATE"
	SchemaTypeTime          SchemaType = "TIME"
	SchemaTypeTimestamp     SchemaType = "TIMESTAMP"
	SchemaTypeInstant       SchemaType = "INSTANT"
	SchemaTypeLocalDate     SchemaType = "LOCAL_DATE"
	SchemaTypeLocalTime     SchemaType = "LOCAL_TIME"
	SchemaTypeLocalDateTime SchemaType = "LOCAL_DATE_TIME"
	SchemaTypeJSON          SchemaType = "JSON"
	SchemaTypeAvro          SchemaType = "AVRO"
	SchemaTypeProtobuf      SchemaType = "PROTOBUF"

	// SchemaTypeKeyValue only appears on host record schemas, never on a side.
	SchemaTypeKeyValue SchemaType = "KEY_VALUE"
)

// SchemaTypes lists every side type in declaration order
var SchemaTypes = []SchemaType{
	SchemaTypeInt8, SchemaTypeInt16, SchemaTypeInt32, SchemaTypeInt64,
	SchemaTypeFloat, SchemaTypeDouble, SchemaTypeBoolean,
	SchemaTypeString, SchemaTypeBytes,
	SchemaTypeDate, SchemaTypeTime, SchemaTypeTimestamp, SchemaTypeInstant,
	SchemaTypeLocalDate, SchemaTypeLocalTime, SchemaTypeLocalDateTime,
	SchemaTypeJSON, SchemaTypeAvro, SchemaTypeProtobuf,
}

// ParseSchemaType parses a schema type name, case-insensitively
func ParseSchemaType(s string) (SchemaType, error) {
	t := SchemaType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return SchemaTypeNone, ErrUnsupportedSchema(s)
	}
	return t, nil
}

// IsValid reports whether t is one of the side types
func (t SchemaType) IsValid() bool {
	for _, st := range SchemaTypes {
		if st == t {
			return true
		}
	}
	return false
}

// IsStruct reports whether t is a structured (self-describing) encoding
func (t SchemaType) IsStruct() bool {
	return t == SchemaTypeJSON || t == SchemaTypeAvro || t == SchemaTypeProtobuf
}

func (t SchemaType) IsInteger() bool {
	switch t {
	case SchemaTypeInt8, SchemaTypeInt16, SchemaTypeInt32, SchemaTypeInt64:
		return true
	}
	return false
}

func (t SchemaType) IsTemporal() bool {
	switch t {
	case SchemaTypeDate, SchemaTypeTime, SchemaTypeTimestamp, SchemaTypeInstant,
		SchemaTypeLocalDate, SchemaTypeLocalTime, SchemaTypeLocalDateTime:
		return true
	}
	return false
}

// IsPrimitive reports whether t is neither structured nor empty
func (t SchemaType) IsPrimitive() bool {
	return t.IsValid() && !t.IsStruct()
}

func (t SchemaType) String() string {
	if t == SchemaTypeNone {
		return "<none>"
	}
	return string(t)
}

// UnmarshalText lets SchemaType be decoded directly from config files
func (t *SchemaType) UnmarshalText(text []byte) error {
	parsed, err := ParseSchemaType(string(text))
	if err != nil {
		return fmt.Errorf("invalid schema type: %w", err)
	}
	*t = parsed
	return nil
}
