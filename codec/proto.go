package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/simon020286/go-transforms/models"
)

// ProtoSchema derives a record schema from a message descriptor.
// Map fields and recursive messages are not supported.
func ProtoSchema(desc protoreflect.MessageDescriptor) (*models.RecordSchema, error) {
	return protoSchema(desc, map[protoreflect.FullName]bool{})
}

func protoSchema(desc protoreflect.MessageDescriptor, visiting map[protoreflect.FullName]bool) (*models.RecordSchema, error) {
	if visiting[desc.FullName()] {
		return nil, models.ErrUnsupportedSchemaReason("PROTOBUF", "recursive message "+string(desc.FullName()))
	}
	visiting[desc.FullName()] = true
	defer delete(visiting, desc.FullName())

	rs := &models.RecordSchema{
		Name:      string(desc.Name()),
		Namespace: string(desc.ParentFile().Package()),
		Proto:     desc,
	}
	fields := desc.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		f := models.Field{Name: string(fd.Name()), Optional: fd.HasPresence(), Array: fd.IsList()}
		if fd.IsMap() {
			return nil, models.ErrUnsupportedSchemaReason("PROTOBUF", "map field "+f.Name)
		}
		if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
			nested, err := protoSchema(fd.Message(), visiting)
			if err != nil {
				return nil, err
			}
			f.Type = models.SchemaTypeProtobuf
			f.Schema = nested
		} else {
			t, ok := protoKindTypes[fd.Kind()]
			if !ok {
				return nil, models.ErrUnsupportedSchemaReason("PROTOBUF", fmt.Sprintf("field %s has kind %s", f.Name, fd.Kind()))
			}
			f.Type = t
		}
		f.ProtoField = fd
		rs.Fields = append(rs.Fields, f)
	}
	return rs, nil
}

var protoKindTypes = map[protoreflect.Kind]models.SchemaType{
	protoreflect.BoolKind:     models.SchemaTypeBoolean,
	protoreflect.Int32Kind:    models.SchemaTypeInt32,
	protoreflect.Sint32Kind:   models.SchemaTypeInt32,
	protoreflect.Sfixed32Kind: models.SchemaTypeInt32,
	protoreflect.Int64Kind:    models.SchemaTypeInt64,
	protoreflect.Sint64Kind:   models.SchemaTypeInt64,
	protoreflect.Sfixed64Kind: models.SchemaTypeInt64,
	protoreflect.Uint32Kind:   models.SchemaTypeInt64,
	protoreflect.Fixed32Kind:  models.SchemaTypeInt64,
	protoreflect.Uint64Kind:   models.SchemaTypeInt64,
	protoreflect.Fixed64Kind:  models.SchemaTypeInt64,
	protoreflect.FloatKind:    models.SchemaTypeFloat,
	protoreflect.DoubleKind:   models.SchemaTypeDouble,
	protoreflect.StringKind:   models.SchemaTypeString,
	protoreflect.EnumKind:     models.SchemaTypeString,
	protoreflect.BytesKind:    models.SchemaTypeBytes,
}

// StructFromProto reads a message into a struct shaped by rs
func StructFromProto(m protoreflect.Message, rs *models.RecordSchema) (*models.Struct, error) {
	s := models.NewStruct(rs)
	fields := m.Descriptor().Fields()
	for i, f := range rs.Fields {
		fd := fields.ByName(protoreflect.Name(f.Name))
		if fd == nil {
			continue
		}
		if f.Optional && !m.Has(fd) {
			continue
		}
		if fd.IsList() {
			l := m.Get(fd).List()
			list := make(models.List, 0, l.Len())
			for j := 0; j < l.Len(); j++ {
				v, err := protoScalar(fd, f, l.Get(j))
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			s.Values[i] = list
			continue
		}
		v, err := protoScalar(fd, f, m.Get(fd))
		if err != nil {
			return nil, err
		}
		s.Values[i] = v
	}
	return s, nil
}

func protoScalar(fd protoreflect.FieldDescriptor, f models.Field, v protoreflect.Value) (models.Value, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return models.Bool(v.Bool()), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return models.Int(v.Int()), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind, protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, models.ErrConvert(nil, "value %d of field '%s' is out of the INT64 range", u, f.Name)
		}
		return models.Int(int64(u)), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return models.Float(v.Float()), nil
	case protoreflect.StringKind:
		return models.String(v.String()), nil
	case protoreflect.BytesKind:
		return models.Bytes(append([]byte(nil), v.Bytes()...)), nil
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return models.String(ev.Name()), nil
		}
		return models.String(strconv.Itoa(int(v.Enum()))), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return StructFromProto(v.Message(), f.Schema)
	}
	return nil, models.ErrConvert(nil, "unsupported protobuf kind %s", fd.Kind())
}

// DecodeProto decodes wire data with the descriptor carried by rs
func DecodeProto(data []byte, rs *models.RecordSchema) (*models.Struct, error) {
	if rs == nil || rs.Proto == nil {
		return nil, models.ErrUnsupportedSchemaReason("PROTOBUF", "missing message descriptor")
	}
	msg := dynamicpb.NewMessage(rs.Proto)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, models.ErrConvert(err, "failed to decode protobuf message")
	}
	return StructFromProto(msg, rs)
}

// EncodeProto encodes a struct with the descriptor of its schema. A schema
// without one, after a step changed its fields, is described first.
func EncodeProto(s *models.Struct) ([]byte, error) {
	rs, err := DescribeProto(s.Schema)
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(rs.Proto)
	if err := fillProto(msg, s); err != nil {
		return nil, err
	}
	out, err := proto.Marshal(msg)
	if err != nil {
		return nil, models.ErrConvert(err, "failed to encode protobuf message")
	}
	return out, nil
}

func fillProto(m protoreflect.Message, s *models.Struct) error {
	fields := m.Descriptor().Fields()
	for i, f := range s.Schema.Fields {
		fd := fields.ByName(protoreflect.Name(f.Name))
		if fd == nil {
			return models.ErrUnsupportedSchemaReason("PROTOBUF", "unknown field "+f.Name)
		}
		v := s.Values[i]
		if models.IsNull(v) {
			continue
		}
		if fd.IsList() {
			items, ok := v.(models.List)
			if !ok {
				return models.ErrConvert(nil, "field '%s' expects a list, got %T", f.Name, v)
			}
			l := m.Mutable(fd).List()
			for _, item := range items {
				if fd.Message() != nil {
					st, ok := item.(*models.Struct)
					if !ok {
						return models.ErrConvert(nil, "field '%s' expects records, got %T", f.Name, item)
					}
					elem := l.NewElement()
					if err := fillProto(elem.Message(), st); err != nil {
						return err
					}
					l.Append(elem)
					continue
				}
				pv, err := protoValueOf(fd, item)
				if err != nil {
					return err
				}
				l.Append(pv)
			}
			continue
		}
		if fd.Message() != nil {
			st, ok := v.(*models.Struct)
			if !ok {
				return models.ErrConvert(nil, "field '%s' expects a record, got %T", f.Name, v)
			}
			if err := fillProto(m.Mutable(fd).Message(), st); err != nil {
				return err
			}
			continue
		}
		pv, err := protoValueOf(fd, v)
		if err != nil {
			return err
		}
		m.Set(fd, pv)
	}
	return nil
}

func protoValueOf(fd protoreflect.FieldDescriptor, v models.Value) (protoreflect.Value, error) {
	mismatch := func() (protoreflect.Value, error) {
		return protoreflect.Value{}, models.ErrConvert(nil, "field '%s' cannot hold %T", fd.Name(), v)
	}
	switch fd.Kind() {
	case protoreflect.BoolKind:
		if b, ok := v.(models.Bool); ok {
			return protoreflect.ValueOfBool(bool(b)), nil
		}
	case protoreflect.StringKind:
		if s, ok := v.(models.String); ok {
			return protoreflect.ValueOfString(string(s)), nil
		}
	case protoreflect.BytesKind:
		if b, ok := v.(models.Bytes); ok {
			return protoreflect.ValueOfBytes(b), nil
		}
	case protoreflect.EnumKind:
		if s, ok := v.(models.String); ok {
			if ev := fd.Enum().Values().ByName(protoreflect.Name(s)); ev != nil {
				return protoreflect.ValueOfEnum(ev.Number()), nil
			}
		}
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		var f float64
		switch x := v.(type) {
		case models.Float:
			f = float64(x)
		case models.Int:
			f = float64(x)
		default:
			return mismatch()
		}
		if fd.Kind() == protoreflect.FloatKind {
			return protoreflect.ValueOfFloat32(float32(f)), nil
		}
		return protoreflect.ValueOfFloat64(f), nil
	default:
		i, ok := v.(models.Int)
		if !ok {
			return mismatch()
		}
		outOfRange := func() (protoreflect.Value, error) {
			return protoreflect.Value{}, models.ErrConvert(nil, "value %d of field '%s' is out of the %s range", i, fd.Name(), fd.Kind())
		}
		switch fd.Kind() {
		case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
			if i < math.MinInt32 || i > math.MaxInt32 {
				return outOfRange()
			}
			return protoreflect.ValueOfInt32(int32(i)), nil
		case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
			return protoreflect.ValueOfInt64(int64(i)), nil
		case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
			if i < 0 || i > math.MaxUint32 {
				return outOfRange()
			}
			return protoreflect.ValueOfUint32(uint32(i)), nil
		case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
			if i < 0 {
				return outOfRange()
			}
			return protoreflect.ValueOfUint64(uint64(i)), nil
		}
	}
	return mismatch()
}

var protoTypes = map[models.SchemaType]descriptorpb.FieldDescriptorProto_Type{
	models.SchemaTypeBoolean:       descriptorpb.FieldDescriptorProto_TYPE_BOOL,
	models.SchemaTypeInt8:          descriptorpb.FieldDescriptorProto_TYPE_INT32,
	models.SchemaTypeInt16:         descriptorpb.FieldDescriptorProto_TYPE_INT32,
	models.SchemaTypeInt32:         descriptorpb.FieldDescriptorProto_TYPE_INT32,
	models.SchemaTypeInt64:         descriptorpb.FieldDescriptorProto_TYPE_INT64,
	models.SchemaTypeFloat:         descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
	models.SchemaTypeDouble:        descriptorpb.FieldDescriptorProto_TYPE_DOUBLE,
	models.SchemaTypeString:        descriptorpb.FieldDescriptorProto_TYPE_STRING,
	models.SchemaTypeJSON:          descriptorpb.FieldDescriptorProto_TYPE_STRING,
	models.SchemaTypeBytes:         descriptorpb.FieldDescriptorProto_TYPE_BYTES,
	models.SchemaTypeDate:          descriptorpb.FieldDescriptorProto_TYPE_INT64,
	models.SchemaTypeLocalDate:     descriptorpb.FieldDescriptorProto_TYPE_INT64,
	models.SchemaTypeTime:          descriptorpb.FieldDescriptorProto_TYPE_INT64,
	models.SchemaTypeLocalTime:     descriptorpb.FieldDescriptorProto_TYPE_INT64,
	models.SchemaTypeTimestamp:     descriptorpb.FieldDescriptorProto_TYPE_INT64,
	models.SchemaTypeInstant:       descriptorpb.FieldDescriptorProto_TYPE_INT64,
	models.SchemaTypeLocalDateTime: descriptorpb.FieldDescriptorProto_TYPE_INT64,
}

// DescribeProto returns rs with a message descriptor matching its fields.
// Fields read from a message keep their number and wire type, so data
// written with the new descriptor still decodes with the original one.
func DescribeProto(rs *models.RecordSchema) (*models.RecordSchema, error) {
	if rs == nil {
		return nil, models.ErrUnsupportedSchemaReason("PROTOBUF", "missing record schema")
	}
	if rs.Proto != nil {
		return rs, nil
	}
	name := rs.Name
	if name == "" {
		name = "Record"
	}
	full := name
	if rs.Namespace != "" {
		full = rs.Namespace + "." + name
	}
	msg, err := describeMessage(full, name, rs)
	if err != nil {
		return nil, err
	}
	file := &descriptorpb.FileDescriptorProto{
		Name:        proto.String(strings.ReplaceAll(full, ".", "/") + ".proto"),
		Syntax:      proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{msg},
	}
	if rs.Namespace != "" {
		file.Package = proto.String(rs.Namespace)
	}
	fd, err := protodesc.NewFile(file, nil)
	if err != nil {
		return nil, models.ErrUnsupportedSchemaReason("PROTOBUF", err.Error())
	}
	c := rs.Clone()
	c.Proto = fd.Messages().Get(0)
	return c, nil
}

func describeMessage(full, name string, rs *models.RecordSchema) (*descriptorpb.DescriptorProto, error) {
	msg := &descriptorpb.DescriptorProto{Name: proto.String(name)}

	numbers := make([]protoreflect.FieldNumber, len(rs.Fields))
	used := make(map[protoreflect.FieldNumber]bool, len(rs.Fields))
	for i, f := range rs.Fields {
		if f.ProtoField != nil && !used[f.ProtoField.Number()] {
			numbers[i] = f.ProtoField.Number()
			used[numbers[i]] = true
		}
	}
	next := protoreflect.FieldNumber(1)
	for i := range numbers {
		if numbers[i] != 0 {
			continue
		}
		for used[next] {
			next++
		}
		numbers[i] = next
		used[next] = true
	}

	types := make(map[string]bool)
	enums := make(map[protoreflect.FullName]string)
	typeName := func(base string, n protoreflect.FieldNumber) string {
		if base == "" || types[base] {
			base = fmt.Sprintf("Field%d", n)
		}
		types[base] = true
		return base
	}

	for i, f := range rs.Fields {
		fp := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.Name),
			Number: proto.Int32(int32(numbers[i])),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		}
		if f.Array {
			fp.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
		}
		switch {
		case f.IsRecord():
			nested := typeName(f.Schema.Name, numbers[i])
			child, err := describeMessage(full+"."+nested, nested, f.Schema)
			if err != nil {
				return nil, err
			}
			msg.NestedType = append(msg.NestedType, child)
			fp.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
			fp.TypeName = proto.String("." + full + "." + nested)
		case keepsProtoKind(f):
			kind := f.ProtoField.Kind()
			fp.Type = descriptorpb.FieldDescriptorProto_Type(kind).Enum()
			if kind == protoreflect.EnumKind {
				ed := f.ProtoField.Enum()
				enum, ok := enums[ed.FullName()]
				if !ok {
					enum = typeName(string(ed.Name()), numbers[i])
					enums[ed.FullName()] = enum
					msg.EnumType = append(msg.EnumType, describeEnum(enum, ed))
				}
				fp.TypeName = proto.String("." + full + "." + enum)
			}
		default:
			t, ok := protoTypes[f.Type]
			if !ok {
				return nil, models.ErrUnsupportedSchemaReason("PROTOBUF", fmt.Sprintf("field '%s' has type %s", f.Name, f.Type))
			}
			fp.Type = t.Enum()
		}
		msg.Field = append(msg.Field, fp)
	}
	return msg, nil
}

// keepsProtoKind reports whether a field still has the shape it was read with
func keepsProtoKind(f models.Field) bool {
	fd := f.ProtoField
	if fd == nil || fd.IsList() != f.Array {
		return false
	}
	t, ok := protoKindTypes[fd.Kind()]
	return ok && t == f.Type
}

func describeEnum(name string, ed protoreflect.EnumDescriptor) *descriptorpb.EnumDescriptorProto {
	enum := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	seen := make(map[protoreflect.EnumNumber]bool)
	values := ed.Values()
	for i := 0; i < values.Len(); i++ {
		v := values.Get(i)
		if seen[v.Number()] {
			enum.Options = &descriptorpb.EnumOptions{AllowAlias: proto.Bool(true)}
		}
		seen[v.Number()] = true
		enum.Value = append(enum.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(string(v.Name())),
			Number: proto.Int32(int32(v.Number())),
		})
	}
	return enum
}
