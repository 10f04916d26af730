// Package schema declares parameter schemas for tools and validates
// parameter bags against them.
package schema

import (
	"fmt"
	"regexp"
)

// ParamType enumerates the value kinds a parameter may declare.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

var validTypes = map[ParamType]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeObject:  true,
	TypeArray:   true,
}

// ParamDefinition describes a single parameter.
type ParamDefinition struct {
	Type        ParamType     `json:"type"`
	Description string        `json:"description,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
	Enum        []interface{} `json:"enum,omitempty"`
	Minimum     *float64      `json:"minimum,omitempty"`
	Maximum     *float64      `json:"maximum,omitempty"`
	MinLength   *int          `json:"minLength,omitempty"`
	MaxLength   *int          `json:"maxLength,omitempty"`
	Pattern     string        `json:"pattern,omitempty"`
}

// ParamSchema maps parameter names to their definitions plus the set of
// required names. A schema is immutable once attached to a tool descriptor.
type ParamSchema struct {
	Properties map[string]ParamDefinition `json:"properties"`
	Required   []string                   `json:"required,omitempty"`
}

// Check verifies the schema itself is well formed: every required name is
// declared, every type is known, and every pattern compiles.
func (s ParamSchema) Check() error {
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("required parameter %q is not declared in properties", name)
		}
	}
	for name, def := range s.Properties {
		if !validTypes[def.Type] {
			return fmt.Errorf("parameter %q: invalid type %q", name, def.Type)
		}
		if def.Pattern != "" {
			if _, err := regexp.Compile(def.Pattern); err != nil {
				return fmt.Errorf("parameter %q: invalid pattern: %w", name, err)
			}
		}
		if def.Minimum != nil && def.Maximum != nil && *def.Minimum > *def.Maximum {
			return fmt.Errorf("parameter %q: minimum exceeds maximum", name)
		}
		if def.MinLength != nil && def.MaxLength != nil && *def.MinLength > *def.MaxLength {
			return fmt.Errorf("parameter %q: minLength exceeds maxLength", name)
		}
	}
	return nil
}

// IsRequired reports whether name is in the schema's required set.
func (s ParamSchema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// ApplyDefaults returns a copy of params with declared defaults filled in for
// absent optional parameters. The input map is not modified.
func (s ParamSchema) ApplyDefaults(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	for name, def := range s.Properties {
		if def.Default == nil {
			continue
		}
		if _, present := out[name]; !present {
			out[name] = def.Default
		}
	}
	return out
}
