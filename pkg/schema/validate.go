package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
)

// Field error codes reported by Validate.
const (
	CodeMissingRequired = "MISSING_REQUIRED"
	CodeUnknownParam    = "UNKNOWN_PARAM"
	CodeTypeError       = "TYPE_ERROR"
	CodeMinLength       = "MIN_LENGTH"
	CodeMaxLength       = "MAX_LENGTH"
	CodePatternMismatch = "PATTERN_MISMATCH"
	CodeMinimum         = "MINIMUM"
	CodeMaximum         = "MAXIMUM"
	CodeEnumMismatch    = "ENUM_MISMATCH"
)

// FieldError describes one validation failure on one parameter.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

// Result is the outcome of validating a parameter bag. Errors is nil, not
// merely empty, when the bag is valid so callers can use its presence as the
// failure signal.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Validate checks params against s. Missing required names are reported
// first, then per-key checks in sorted key order: undeclared keys, type
// mismatches, type-specific bounds, and enum membership.
func Validate(params map[string]interface{}, s ParamSchema) Result {
	var errs []FieldError

	for _, name := range s.Required {
		if _, present := params[name]; !present {
			errs = append(errs, FieldError{
				Field:   name,
				Code:    CodeMissingRequired,
				Message: fmt.Sprintf("required parameter %q is missing", name),
			})
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		def, declared := s.Properties[key]
		if !declared {
			errs = append(errs, FieldError{
				Field:   key,
				Code:    CodeUnknownParam,
				Message: fmt.Sprintf("parameter %q is not declared", key),
			})
			continue
		}
		if !matchesType(value, def.Type) {
			errs = append(errs, FieldError{
				Field:   key,
				Code:    CodeTypeError,
				Message: fmt.Sprintf("parameter %q must be of type %s", key, def.Type),
			})
			continue
		}
		errs = append(errs, checkConstraints(key, value, def)...)
	}

	if len(errs) == 0 {
		return Result{Valid: true}
	}
	return Result{Valid: false, Errors: errs}
}

func checkConstraints(key string, value interface{}, def ParamDefinition) []FieldError {
	var errs []FieldError

	switch def.Type {
	case TypeString:
		str := value.(string)
		if def.MinLength != nil && len(str) < *def.MinLength {
			errs = append(errs, FieldError{
				Field:   key,
				Code:    CodeMinLength,
				Message: fmt.Sprintf("parameter %q must be at least %d characters", key, *def.MinLength),
			})
		}
		if def.MaxLength != nil && len(str) > *def.MaxLength {
			errs = append(errs, FieldError{
				Field:   key,
				Code:    CodeMaxLength,
				Message: fmt.Sprintf("parameter %q must be at most %d characters", key, *def.MaxLength),
			})
		}
		if def.Pattern != "" {
			// Patterns are compile-checked at registration via Check.
			if re, err := regexp.Compile(def.Pattern); err == nil && !re.MatchString(str) {
				errs = append(errs, FieldError{
					Field:   key,
					Code:    CodePatternMismatch,
					Message: fmt.Sprintf("parameter %q does not match pattern %q", key, def.Pattern),
				})
			}
		}
	case TypeNumber:
		num, _ := toFloat(value)
		if def.Minimum != nil && num < *def.Minimum {
			errs = append(errs, FieldError{
				Field:   key,
				Code:    CodeMinimum,
				Message: fmt.Sprintf("parameter %q must be >= %v", key, *def.Minimum),
			})
		}
		if def.Maximum != nil && num > *def.Maximum {
			errs = append(errs, FieldError{
				Field:   key,
				Code:    CodeMaximum,
				Message: fmt.Sprintf("parameter %q must be <= %v", key, *def.Maximum),
			})
		}
	case TypeArray:
		length := reflect.ValueOf(value).Len()
		if def.MinLength != nil && length < *def.MinLength {
			errs = append(errs, FieldError{
				Field:   key,
				Code:    CodeMinLength,
				Message: fmt.Sprintf("parameter %q must have at least %d elements", key, *def.MinLength),
			})
		}
		if def.MaxLength != nil && length > *def.MaxLength {
			errs = append(errs, FieldError{
				Field:   key,
				Code:    CodeMaxLength,
				Message: fmt.Sprintf("parameter %q must have at most %d elements", key, *def.MaxLength),
			})
		}
	}

	if len(def.Enum) > 0 && !enumContains(def.Enum, value) {
		errs = append(errs, FieldError{
			Field:   key,
			Code:    CodeEnumMismatch,
			Message: fmt.Sprintf("parameter %q must be one of the declared enum values", key),
		})
	}

	return errs
}

// matchesType reports whether a decoded parameter value satisfies the
// declared type. Numeric Go values all count as "number" since JSON decoding
// and in-process callers disagree on concrete types.
func matchesType(value interface{}, t ParamType) bool {
	if value == nil {
		return false
	}
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeNumber:
		_, ok := toFloat(value)
		return ok
	case TypeObject:
		return reflect.ValueOf(value).Kind() == reflect.Map
	case TypeArray:
		k := reflect.ValueOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	}
	return false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func enumContains(enum []interface{}, value interface{}) bool {
	for _, candidate := range enum {
		if equalValue(candidate, value) {
			return true
		}
	}
	return false
}

// equalValue compares enum members with numeric normalization so 2 and 2.0
// are the same value regardless of how the bag was decoded.
func equalValue(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}
