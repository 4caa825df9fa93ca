package util

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ValidationError reports the first payload field that does not match its schema.
type ValidationError struct {
	Path    string `json:"path"` // e.g. "claims[2].sources"
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload at %s: %s", e.Path, e.Message)
}

// Schema is the structural shape of a JSON payload derived from a Go type.
// Objects list their properties and required keys; arrays describe their
// element schema.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
}

var (
	timeType = reflect.TypeOf(time.Time{})
	schemas  sync.Map // reflect.Type -> *Schema
)

// SchemaFor derives the schema of v's type. Fields tagged omitempty and
// pointer fields are optional. Schemas are cached per type.
func SchemaFor(v any) *Schema {
	t := reflect.TypeOf(v)
	if t == nil {
		return &Schema{Type: "object"}
	}
	if cached, ok := schemas.Load(t); ok {
		return cached.(*Schema)
	}
	s := build(t)
	schemas.Store(t, s)
	return s
}

func build(t reflect.Type) *Schema {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return &Schema{Type: "string"}
	}
	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: "string"} // base64
		}
		return &Schema{Type: "array", Items: build(t.Elem())}
	case reflect.Map:
		return &Schema{Type: "object"}
	case reflect.Struct:
		s := &Schema{Type: "object", Properties: map[string]*Schema{}}
		addFields(s, t)
		return s
	default:
		return &Schema{}
	}
}

func addFields(s *Schema, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if field.Anonymous && name == "" && field.Type.Kind() == reflect.Struct {
			addFields(s, field.Type)
			continue
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		s.Properties[name] = build(field.Type)
		if !strings.Contains(opts, "omitempty") && field.Type.Kind() != reflect.Ptr {
			s.Required = append(s.Required, name)
		}
	}
}

// Validate checks a decoded JSON value against the schema. JSON null is
// accepted wherever a value is allowed; unknown object keys are ignored.
func (s *Schema) Validate(value any) error {
	return s.validate("$", value)
}

func (s *Schema) validate(path string, value any) error {
	if value == nil || s.Type == "" {
		return nil
	}
	switch s.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return mismatch(path, s.Type, value)
		}
		for _, name := range s.Required {
			if _, ok := obj[name]; !ok {
				return &ValidationError{Path: join(path, name), Message: "required field is missing"}
			}
		}
		for name, v := range obj {
			prop, ok := s.Properties[name]
			if !ok {
				continue
			}
			if err := prop.validate(join(path, name), v); err != nil {
				return err
			}
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return mismatch(path, s.Type, value)
		}
		for i, v := range items {
			if err := s.Items.validate(path+"["+strconv.Itoa(i)+"]", v); err != nil {
				return err
			}
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return mismatch(path, s.Type, value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return mismatch(path, s.Type, value)
		}
	case "string":
		if _, ok := value.(string); !ok {
			return mismatch(path, s.Type, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return mismatch(path, s.Type, value)
		}
	}
	return nil
}

func join(path, name string) string {
	if path == "$" {
		return name
	}
	return path + "." + name
}

func mismatch(path, want string, got any) error {
	return &ValidationError{Path: path, Value: got, Message: fmt.Sprintf("expected %s, got %T", want, got)}
}

// ValidateJSON decodes data and validates it against the schema of v's type.
func ValidateJSON(data []byte, v any) error {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return &ValidationError{Path: "$", Message: err.Error()}
	}
	return SchemaFor(v).Validate(decoded)
}
