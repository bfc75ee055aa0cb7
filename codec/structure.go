package codec

import (
	"github.com/simon020286/go-transforms/models"
)

// GetField reads a top-level field. STRING and BYTES values are read as JSON objects.
func GetField(v models.Value, name string) (models.Value, bool, error) {
	switch x := v.(type) {
	case *models.Struct:
		f, ok := x.Get(name)
		return f, ok, nil
	case *models.Tree:
		f, ok := x.Get(name)
		return f, ok, nil
	case models.String:
		tree, err := ParseJSONObject([]byte(x))
		if err != nil {
			return nil, false, err
		}
		f, ok := tree.Get(name)
		return f, ok, nil
	case models.Bytes:
		tree, err := ParseJSONObject(x)
		if err != nil {
			return nil, false, err
		}
		f, ok := tree.Get(name)
		return f, ok, nil
	case nil, models.Null:
		return models.Null{}, true, nil
	}
	return nil, false, models.ErrConvert(nil, "cannot read field '%s' of a %T value", name, v)
}

// SetField adds or replaces a top-level field of a side and returns the new
// value and native schema. STRING and BYTES sides are parsed as JSON objects
// and stay trees until output.
func SetField(v models.Value, t models.SchemaType, rs *models.RecordSchema, f models.Field, fv models.Value) (models.Value, *models.RecordSchema, error) {
	if models.IsNull(v) {
		switch {
		case t == models.SchemaTypeAvro || t == models.SchemaTypeProtobuf:
			if rs == nil {
				return nil, nil, models.ErrConvert(nil, "cannot set field '%s' on a null %s value without schema", f.Name, t)
			}
			v = models.NewStruct(rs)
		case t == models.SchemaTypeJSON || t == models.SchemaTypeString || t == models.SchemaTypeBytes:
			v = models.NewTree()
		}
	}

	switch x := v.(type) {
	case *models.Struct:
		if f.Type == models.SchemaTypeJSON && f.Schema == nil {
			// untyped JSON nodes are stored as text in schema-carrying records
			text, err := MarshalJSON(fv)
			if err != nil {
				return nil, nil, err
			}
			f.Type, f.Array = models.SchemaTypeString, false
			fv = models.String(text)
		}
		ns := x.With(f, fv)
		return ns, ns.Schema, nil

	case *models.Tree:
		c := x.Clone()
		c.Set(f.Name, fv)
		if t == models.SchemaTypeJSON && rs != nil {
			rs = rs.WithField(f)
		}
		return c, rs, nil

	case models.String, models.Bytes:
		var data []byte
		if s, ok := x.(models.String); ok {
			data = []byte(s)
		} else {
			data = x.(models.Bytes)
		}
		tree, err := ParseJSONObject(data)
		if err != nil {
			return nil, nil, models.ErrConvert(err, "cannot set field '%s': value is not a JSON object", f.Name)
		}
		tree.Set(f.Name, fv)
		return tree, rs, nil
	}
	return nil, nil, models.ErrConvert(nil, "cannot set field '%s' on a %s value", f.Name, t)
}

// DropFields removes top-level fields. Primitive values are returned unchanged.
func DropFields(v models.Value, rs *models.RecordSchema, names []string) (models.Value, *models.RecordSchema) {
	switch x := v.(type) {
	case *models.Struct:
		ns := x.Without(names...)
		return ns, ns.Schema
	case *models.Tree:
		c := x.Clone()
		for _, n := range names {
			c.Delete(n)
		}
		return c, rs.WithoutFields(names...)
	}
	return v, rs
}

// Flatten hoists nested record fields to the top level, joining names with delimiter
func Flatten(v models.Value, rs *models.RecordSchema, delimiter string) (models.Value, *models.RecordSchema, error) {
	switch x := v.(type) {
	case *models.Struct:
		if !hasNestedRecord(x.Schema) {
			return v, rs, nil
		}
		out := &models.RecordSchema{Name: x.Schema.Name, Namespace: x.Schema.Namespace}
		values := []models.Value{}
		seen := map[string]bool{}
		var walk func(prefix string, s *models.RecordSchema, vals []models.Value, optional bool) error
		walk = func(prefix string, s *models.RecordSchema, vals []models.Value, optional bool) error {
			for i, f := range s.Fields {
				name := joinName(prefix, f.Name, delimiter)
				var fv models.Value = models.Null{}
				if vals != nil {
					fv = vals[i]
				}
				if f.IsRecord() && !f.Array {
					var sub []models.Value
					if st, ok := fv.(*models.Struct); ok {
						sub = st.Values
					}
					if err := walk(name, f.Schema, sub, optional || f.Optional); err != nil {
						return err
					}
					continue
				}
				if seen[name] {
					return models.ErrFlattenCollision(name)
				}
				seen[name] = true
				nf := f
				nf.Name = name
				nf.Optional = optional || f.Optional
				out.Fields = append(out.Fields, nf)
				values = append(values, fv)
			}
			return nil
		}
		if err := walk("", x.Schema, x.Values, false); err != nil {
			return nil, nil, err
		}
		return &models.Struct{Schema: out, Values: values}, out, nil

	case *models.Tree:
		if !hasNestedTree(x) {
			return v, rs, nil
		}
		out := models.NewTree()
		var walk func(prefix string, t *models.Tree) error
		walk = func(prefix string, t *models.Tree) error {
			var err error
			t.Each(func(k string, e models.Value) {
				if err != nil {
					return
				}
				name := joinName(prefix, k, delimiter)
				if sub, ok := e.(*models.Tree); ok {
					err = walk(name, sub)
					return
				}
				if _, exists := out.Get(name); exists {
					err = models.ErrFlattenCollision(name)
					return
				}
				out.Set(name, e)
			})
			return err
		}
		if err := walk("", x); err != nil {
			return nil, nil, err
		}
		if rs != nil {
			rs = InferSchema(out, rs.Name)
		}
		return out, rs, nil
	}
	return v, rs, nil
}

func joinName(prefix, name, delimiter string) string {
	if prefix == "" {
		return name
	}
	return prefix + delimiter + name
}

func hasNestedRecord(rs *models.RecordSchema) bool {
	for _, f := range rs.Fields {
		if f.IsRecord() && !f.Array {
			return true
		}
	}
	return false
}

func hasNestedTree(t *models.Tree) bool {
	nested := false
	t.Each(func(_ string, v models.Value) {
		if _, ok := v.(*models.Tree); ok {
			nested = true
		}
	})
	return nested
}

// Merge combines key and value fields into one structure. Value fields win on
// name collisions; key-only fields come first.
func Merge(kv models.Value, kt models.SchemaType, ks *models.RecordSchema, vv models.Value, vt models.SchemaType, vs *models.RecordSchema) (models.Value, *models.RecordSchema, error) {
	if kt != vt {
		return nil, nil, models.ErrIncompatibleSchema(kt, vt, "key and value use different encodings")
	}
	kv = materialize(kv, kt, ks)
	vv = materialize(vv, vt, vs)

	switch k := kv.(type) {
	case *models.Struct:
		v, ok := vv.(*models.Struct)
		if !ok {
			break
		}
		if kt == models.SchemaTypeProtobuf {
			return nil, nil, models.ErrIncompatibleSchema(kt, vt, "protobuf records cannot be merged")
		}
		merged := &models.Struct{Schema: &models.RecordSchema{Name: v.Schema.Name, Namespace: v.Schema.Namespace}}
		for i, f := range k.Schema.Fields {
			if v.Schema.FieldIndex(f.Name) < 0 {
				merged.Schema.Fields = append(merged.Schema.Fields, f)
				merged.Values = append(merged.Values, k.Values[i])
			}
		}
		merged.Schema.Fields = append(merged.Schema.Fields, v.Schema.Fields...)
		merged.Values = append(merged.Values, v.Values...)
		return merged, merged.Schema, nil

	case *models.Tree:
		v, ok := vv.(*models.Tree)
		if !ok {
			break
		}
		merged := models.NewTree()
		k.Each(func(name string, e models.Value) {
			if _, dup := v.Get(name); !dup {
				merged.Set(name, e)
			}
		})
		v.Each(func(name string, e models.Value) { merged.Set(name, e) })
		var rs *models.RecordSchema
		if ks != nil && vs != nil {
			rs = &models.RecordSchema{Name: vs.Name, Namespace: vs.Namespace}
			for _, f := range ks.Fields {
				if vs.FieldIndex(f.Name) < 0 {
					rs.Fields = append(rs.Fields, f)
				}
			}
			rs.Fields = append(rs.Fields, vs.Fields...)
		} else if kt == models.SchemaTypeJSON {
			rs = InferSchema(merged, "json")
		}
		return merged, rs, nil
	}
	return nil, nil, models.ErrIncompatibleSchema(kt, vt, "key and value must both be structured")
}

func materialize(v models.Value, t models.SchemaType, rs *models.RecordSchema) models.Value {
	if !models.IsNull(v) {
		return v
	}
	switch {
	case (t == models.SchemaTypeAvro || t == models.SchemaTypeProtobuf) && rs != nil:
		return models.NewStruct(rs)
	case t == models.SchemaTypeJSON:
		return models.NewTree()
	}
	return v
}
