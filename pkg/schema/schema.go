package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	invopop "github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// Validator validates raw input and returns the parsed form.
type Validator interface {
	Validate(raw interface{}) (map[string]interface{}, error)
	JSONSchema() map[string]interface{}
}

// JSONSchema is a compiled JSON Schema document.
type JSONSchema struct {
	doc      map[string]interface{}
	compiled *gojsonschema.Schema
}

// FromMap compiles a JSON Schema document given as a generic map.
func FromMap(doc map[string]interface{}) (*JSONSchema, error) {
	if doc == nil {
		return nil, fmt.Errorf("schema document cannot be nil")
	}

	// gojsonschema only understands drafts 4-7; reflected documents declare 2020-12.
	clean := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k == "$schema" || k == "$id" {
			continue
		}
		clean[k] = v
	}

	// Round-trip so defaults carry the same JSON types as validated input.
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	clean = make(map[string]interface{}, len(clean))
	if err := json.Unmarshal(data, &clean); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(clean))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &JSONSchema{doc: clean, compiled: compiled}, nil
}

// FromJSON compiles a raw JSON Schema document.
func FromJSON(doc []byte) (*JSONSchema, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("invalid schema JSON: %w", err)
	}
	return FromMap(m)
}

// FromStruct reflects a JSON Schema from a Go struct value.
// Fields without `omitempty` are required.
func FromStruct(v interface{}) (*JSONSchema, error) {
	reflector := invopop.Reflector{
		DoNotReference: true,
	}
	reflected := reflector.Reflect(v)

	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reflected schema: %w", err)
	}
	return FromJSON(data)
}

// MustFromStruct is like FromStruct but panics on error.
func MustFromStruct(v interface{}) *JSONSchema {
	s, err := FromStruct(v)
	if err != nil {
		panic(err)
	}
	return s
}

// MustCompile is like FromMap but panics on error.
func MustCompile(doc map[string]interface{}) *JSONSchema {
	s, err := FromMap(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Empty returns a schema that accepts absent input or any object.
func Empty() *JSONSchema {
	return MustCompile(map[string]interface{}{"type": "object"})
}

// JSONSchema returns a copy of the schema document.
func (s *JSONSchema) JSONSchema() map[string]interface{} {
	return deepCopyMap(s.doc)
}

// Validate normalizes raw, applies defaults and checks it against the schema.
func (s *JSONSchema) Validate(raw interface{}) (map[string]interface{}, error) {
	value, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	applyDefaults(s.doc, value)

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return nil, newRootError("%v", err)
	}

	if !result.Valid() {
		verr := &ValidationError{}
		for _, re := range result.Errors() {
			verr.Fields = append(verr.Fields, FieldError{
				Field:   fieldName(re),
				Message: re.Description(),
			})
		}
		sort.SliceStable(verr.Fields, func(i, j int) bool {
			return verr.Fields[i].Field < verr.Fields[j].Field
		})
		return nil, verr
	}

	return value, nil
}

// Normalize converts raw input of any Go shape into a generic JSON object.
// nil and empty byte input become an empty object.
func Normalize(raw interface{}) (map[string]interface{}, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		// Round-trip anyway so nested Go types become JSON types.
		b, err := json.Marshal(v)
		if err != nil {
			return nil, newRootError("input is not JSON-serializable: %v", err)
		}
		data = b
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, newRootError("input is not JSON-serializable: %v", err)
		}
		data = b
	}

	if len(data) == 0 || string(data) == "null" {
		return map[string]interface{}{}, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, newRootError("invalid JSON input: %v", err)
	}

	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, newRootError("input must be an object, got %T", decoded)
	}
	return obj, nil
}

// Decode converts parsed input into a typed value.
func Decode[T any](parsed map[string]interface{}) (T, error) {
	var out T
	data, err := json.Marshal(parsed)
	if err != nil {
		return out, fmt.Errorf("failed to encode input: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode input into %T: %w", out, err)
	}
	return out, nil
}

func fieldName(re gojsonschema.ResultError) string {
	field := re.Field()
	if prop, ok := re.Details()["property"].(string); ok && re.Type() == "required" {
		if field == RootField {
			return prop
		}
		return field + "." + prop
	}
	return field
}

func applyDefaults(doc map[string]interface{}, value map[string]interface{}) {
	props, ok := doc["properties"].(map[string]interface{})
	if !ok {
		return
	}
	for name, raw := range props {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		current, present := value[name]
		if !present {
			if def, hasDefault := prop["default"]; hasDefault {
				value[name] = deepCopyValue(def)
			}
			continue
		}
		if nested, ok := current.(map[string]interface{}); ok {
			applyDefaults(prop, nested)
		}
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
