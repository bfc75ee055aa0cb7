// Package codec converts between host records and the in-memory transform
// representation, and implements the structural operations shared by steps.
package codec

import (
	"github.com/simon020286/go-transforms/models"
)

// ToTransformType maps a host schema to the side type. A nil schema is BYTES.
func ToTransformType(s *models.Schema) (models.SchemaType, error) {
	if s == nil {
		return models.SchemaTypeBytes, nil
	}
	if !s.Type.IsValid() {
		return models.SchemaTypeNone, models.ErrUnsupportedSchema(string(s.Type))
	}
	return s.Type, nil
}

// ToNativeSchema maps a side type and its native schema back to a host schema
func ToNativeSchema(t models.SchemaType, native *models.RecordSchema) (*models.Schema, error) {
	if !t.IsValid() {
		return nil, models.ErrUnsupportedSchema(string(t))
	}
	s := &models.Schema{Type: t}
	if t.IsStruct() {
		s.Native = native
	}
	return s, nil
}
