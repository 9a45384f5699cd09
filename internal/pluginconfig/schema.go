package pluginconfig

import (
	"fmt"
	"maps"
	"reflect"
	"sort"

	"github.com/soyeahso/trellis/internal/secure"
)

// FieldType is the expected type of a config value.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Field describes one config key. An empty Type accepts any value.
type Field struct {
	Type        FieldType
	Required    bool
	Sensitive   bool
	Default     any
	Description string
	// Validate is an optional extra check run after the type check.
	Validate func(any) bool
}

// Schema maps config keys to field descriptions.
type Schema map[string]Field

// Values is a plugin's config.
type Values = map[string]any

// ValidationResult lists every problem found in a config.
type ValidationResult struct {
	Valid  bool     `json:"isValid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateConfig checks values against schema and accumulates every error.
// Sensitive fields already holding an encrypted envelope are not type checked.
func ValidateConfig(values Values, schema Schema) ValidationResult {
	var errs []string
	for _, key := range sortedKeys(schema) {
		field := schema[key]
		v, present := values[key]
		if !present || v == nil {
			if field.Required {
				errs = append(errs, fmt.Sprintf("%s: required", key))
			}
			continue
		}
		if field.Sensitive {
			if s, ok := v.(string); ok && secure.IsEnvelope(s) {
				continue
			}
		}
		if field.Type != "" && !matchesType(v, field.Type) {
			errs = append(errs, fmt.Sprintf("%s: expected %s, got %T", key, field.Type, v))
			continue
		}
		if field.Validate != nil && !field.Validate(v) {
			errs = append(errs, fmt.Sprintf("%s: failed validation", key))
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// MergeWithDefaults returns a copy of values with schema defaults filled in
// for absent keys.
func MergeWithDefaults(values Values, schema Schema) Values {
	out := make(Values, len(values)+len(schema))
	maps.Copy(out, values)
	for key, field := range schema {
		if field.Default == nil {
			continue
		}
		if _, present := out[key]; !present {
			out[key] = field.Default
		}
	}
	return out
}

func matchesType(v any, t FieldType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		switch reflect.TypeOf(v).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	case TypeArray:
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case TypeObject:
		rt := reflect.TypeOf(v)
		return rt.Kind() == reflect.Map && rt.Key().Kind() == reflect.String
	default:
		return true
	}
}

func sortedKeys(schema Schema) []string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
