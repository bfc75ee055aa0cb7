package models

import "google.golang.org/protobuf/reflect/protoreflect"

// Field describes one field of a structured record
type Field struct {
	Name     string
	Type     SchemaType
	Optional bool
	// Array marks a repeated field whose elements have Type
	Array bool
	// Schema is set for nested records
	Schema *RecordSchema
	// Logical is the Avro type text of a logical type Type does not imply,
	// such as timestamp-micros or uuid
	Logical string
	// ProtoField is the protobuf field the field was read from, if any
	ProtoField protoreflect.FieldDescriptor
}

// IsRecord reports whether the field holds a nested record
func (f Field) IsRecord() bool {
	return f.Schema != nil
}

// RecordSchema is the native schema handle of a structured side.
// It is treated as immutable: every change produces a new instance.
type RecordSchema struct {
	Name      string
	Namespace string
	Fields    []Field
	// Proto is the message descriptor the schema was derived from, if any
	Proto protoreflect.MessageDescriptor
}

func (s *RecordSchema) FullName() string {
	if s.Namespace == "" {
		return s.Name
	}
	return s.Namespace + "." + s.Name
}

func (s *RecordSchema) FieldIndex(name string) int {
	if s == nil {
		return -1
	}
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s *RecordSchema) Field(name string) (Field, bool) {
	i := s.FieldIndex(name)
	if i < 0 {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Clone copies the field list. Nested schemas are shared.
func (s *RecordSchema) Clone() *RecordSchema {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = append([]Field(nil), s.Fields...)
	return &c
}

// WithField returns a copy where f replaces the field of the same name, or is appended.
// The protobuf descriptor is dropped when the field layout changes.
func (s *RecordSchema) WithField(f Field) *RecordSchema {
	c := s.Clone()
	if c == nil {
		c = &RecordSchema{}
	}
	if i := c.FieldIndex(f.Name); i >= 0 {
		if c.Fields[i] != f {
			c.Fields[i] = f
			c.Proto = nil
		}
		return c
	}
	c.Proto = nil
	c.Fields = append(c.Fields, f)
	return c
}

// WithoutFields returns a copy without the named fields
func (s *RecordSchema) WithoutFields(names ...string) *RecordSchema {
	if s == nil {
		return nil
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	c := s.Clone()
	kept := c.Fields[:0]
	for _, f := range c.Fields {
		if !drop[f.Name] {
			kept = append(kept, f)
		}
	}
	if len(kept) != len(s.Fields) {
		c.Proto = nil
	}
	c.Fields = kept
	return c
}

// SameFields reports whether both schemas declare the same fields in the same order
func (s *RecordSchema) SameFields(o *RecordSchema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Fields) != len(o.Fields) {
		return false
	}
	for i, f := range s.Fields {
		g := o.Fields[i]
		if f.Name != g.Name || f.Type != g.Type || f.Optional != g.Optional || f.Array != g.Array {
			return false
		}
		if f.IsRecord() != g.IsRecord() || (f.IsRecord() && !f.Schema.SameFields(g.Schema)) {
			return false
		}
	}
	return true
}
