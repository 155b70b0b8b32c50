package schema

// Field describes one property of an object schema. Fields are required
// unless Optional or Default is called.
type Field struct {
	name     string
	prop     map[string]interface{}
	required bool
}

func newField(name, typ string) *Field {
	return &Field{
		name:     name,
		prop:     map[string]interface{}{"type": typ},
		required: true,
	}
}

// String declares a string field.
func String(name string) *Field { return newField(name, "string") }

// Number declares a numeric field.
func Number(name string) *Field { return newField(name, "number") }

// Integer declares an integer field.
func Integer(name string) *Field { return newField(name, "integer") }

// Bool declares a boolean field.
func Bool(name string) *Field { return newField(name, "boolean") }

// Enum declares a string field restricted to values.
func Enum(name string, values ...string) *Field {
	f := newField(name, "string")
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	f.prop["enum"] = enum
	return f
}

// Array declares an array field whose elements match items. The name of
// items is ignored.
func Array(name string, items *Field) *Field {
	f := newField(name, "array")
	if items != nil {
		f.prop["items"] = items.property()
	}
	return f
}

// Nested declares an object field with its own properties.
func Nested(name string, fields ...*Field) *Field {
	f := &Field{name: name, prop: objectDoc(fields), required: true}
	return f
}

// Optional marks the field as not required.
func (f *Field) Optional() *Field {
	f.required = false
	return f
}

// Default sets a default value and marks the field optional.
func (f *Field) Default(v interface{}) *Field {
	f.prop["default"] = v
	f.required = false
	return f
}

// Describe sets the field description.
func (f *Field) Describe(description string) *Field {
	f.prop["description"] = description
	return f
}

// Format sets a string format constraint such as "email", "uri" or "date-time".
func (f *Field) Format(format string) *Field {
	f.prop["format"] = format
	return f
}

// Min sets the inclusive numeric lower bound.
func (f *Field) Min(v float64) *Field {
	f.prop["minimum"] = v
	return f
}

// Max sets the inclusive numeric upper bound.
func (f *Field) Max(v float64) *Field {
	f.prop["maximum"] = v
	return f
}

// MinLength sets the minimum string length.
func (f *Field) MinLength(n int) *Field {
	f.prop["minLength"] = n
	return f
}

// MaxLength sets the maximum string length.
func (f *Field) MaxLength(n int) *Field {
	f.prop["maxLength"] = n
	return f
}

// MinItems sets the minimum array length.
func (f *Field) MinItems(n int) *Field {
	f.prop["minItems"] = n
	return f
}

func (f *Field) property() map[string]interface{} {
	return deepCopyMap(f.prop)
}

// Object compiles an object schema from fields.
func Object(fields ...*Field) *JSONSchema {
	return MustCompile(objectDoc(fields))
}

func objectDoc(fields []*Field) map[string]interface{} {
	props := make(map[string]interface{}, len(fields))
	required := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		if f == nil {
			continue
		}
		props[f.name] = f.property()
		if f.required {
			required = append(required, f.name)
		}
	}

	doc := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}
