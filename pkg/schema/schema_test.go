package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestParamSchema_Check(t *testing.T) {
	tests := []struct {
		name    string
		schema  ParamSchema
		wantErr bool
	}{
		{
			name: "valid schema",
			schema: ParamSchema{
				Properties: map[string]ParamDefinition{
					"text":  {Type: TypeString, MinLength: intPtr(1)},
					"count": {Type: TypeNumber, Minimum: floatPtr(0)},
				},
				Required: []string{"text"},
			},
		},
		{
			name: "required name not declared",
			schema: ParamSchema{
				Properties: map[string]ParamDefinition{
					"text": {Type: TypeString},
				},
				Required: []string{"missing"},
			},
			wantErr: true,
		},
		{
			name: "invalid type",
			schema: ParamSchema{
				Properties: map[string]ParamDefinition{
					"text": {Type: ParamType("integer")},
				},
			},
			wantErr: true,
		},
		{
			name: "invalid pattern",
			schema: ParamSchema{
				Properties: map[string]ParamDefinition{
					"text": {Type: TypeString, Pattern: "(["},
				},
			},
			wantErr: true,
		},
		{
			name: "minimum exceeds maximum",
			schema: ParamSchema{
				Properties: map[string]ParamDefinition{
					"count": {Type: TypeNumber, Minimum: floatPtr(10), Maximum: floatPtr(1)},
				},
			},
			wantErr: true,
		},
		{
			name: "minLength exceeds maxLength",
			schema: ParamSchema{
				Properties: map[string]ParamDefinition{
					"text": {Type: TypeString, MinLength: intPtr(5), MaxLength: intPtr(2)},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Check()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParamSchema_IsRequired(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"a": {Type: TypeString},
			"b": {Type: TypeString},
		},
		Required: []string{"a"},
	}

	assert.True(t, s.IsRequired("a"))
	assert.False(t, s.IsRequired("b"))
	assert.False(t, s.IsRequired("c"))
}

func TestParamSchema_ApplyDefaults(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"text":  {Type: TypeString},
			"limit": {Type: TypeNumber, Default: 10},
			"mode":  {Type: TypeString, Default: "fast"},
		},
		Required: []string{"text"},
	}

	in := map[string]interface{}{
		"text": "hello",
		"mode": "slow",
	}

	out := s.ApplyDefaults(in)

	assert.Equal(t, "hello", out["text"])
	assert.Equal(t, 10, out["limit"])
	assert.Equal(t, "slow", out["mode"], "explicit value must win over default")

	// Input map unchanged
	_, present := in["limit"]
	assert.False(t, present)
}

func TestValidate_Valid(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"text":  {Type: TypeString, MinLength: intPtr(1)},
			"count": {Type: TypeNumber, Minimum: floatPtr(0), Maximum: floatPtr(100)},
			"flag":  {Type: TypeBoolean},
		},
		Required: []string{"text"},
	}

	result := Validate(map[string]interface{}{
		"text":  "hello",
		"count": 42,
		"flag":  true,
	}, s)

	assert.True(t, result.Valid)
	assert.Nil(t, result.Errors, "errors must be nil, not empty, when valid")
}

func TestValidate_MissingRequired(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"text": {Type: TypeString},
		},
		Required: []string{"text"},
	}

	result := Validate(map[string]interface{}{}, s)

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "text", result.Errors[0].Field)
	assert.Equal(t, CodeMissingRequired, result.Errors[0].Code)
}

func TestValidate_UnknownParam(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"text": {Type: TypeString},
		},
	}

	result := Validate(map[string]interface{}{
		"text":  "ok",
		"bogus": 1,
	}, s)

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bogus", result.Errors[0].Field)
	assert.Equal(t, CodeUnknownParam, result.Errors[0].Code)
}

func TestValidate_TypeError_SkipsConstraints(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"text": {Type: TypeString, MinLength: intPtr(5)},
		},
	}

	result := Validate(map[string]interface{}{"text": 42}, s)

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1, "a type mismatch must not also report constraint errors")
	assert.Equal(t, CodeTypeError, result.Errors[0].Code)
}

func TestValidate_StringConstraints(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"short":   {Type: TypeString, MinLength: intPtr(3)},
			"long":    {Type: TypeString, MaxLength: intPtr(3)},
			"pattern": {Type: TypeString, Pattern: "^[a-z]+$"},
		},
	}

	result := Validate(map[string]interface{}{
		"short":   "ab",
		"long":    "abcd",
		"pattern": "ABC",
	}, s)

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 3)

	// Per-key checks run in sorted key order.
	assert.Equal(t, CodeMaxLength, result.Errors[0].Code)
	assert.Equal(t, "long", result.Errors[0].Field)
	assert.Equal(t, CodePatternMismatch, result.Errors[1].Code)
	assert.Equal(t, CodeMinLength, result.Errors[2].Code)
}

func TestValidate_NumberConstraints(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"low":  {Type: TypeNumber, Minimum: floatPtr(10)},
			"high": {Type: TypeNumber, Maximum: floatPtr(10)},
		},
	}

	result := Validate(map[string]interface{}{
		"low":  5,
		"high": 15.5,
	}, s)

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, CodeMaximum, result.Errors[0].Code)
	assert.Equal(t, CodeMinimum, result.Errors[1].Code)
}

func TestValidate_ArrayLengthBounds(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"items": {Type: TypeArray, MinLength: intPtr(1), MaxLength: intPtr(2)},
		},
	}

	empty := Validate(map[string]interface{}{"items": []interface{}{}}, s)
	require.False(t, empty.Valid)
	assert.Equal(t, CodeMinLength, empty.Errors[0].Code)

	over := Validate(map[string]interface{}{"items": []interface{}{1, 2, 3}}, s)
	require.False(t, over.Valid)
	assert.Equal(t, CodeMaxLength, over.Errors[0].Code)
}

func TestValidate_Enum(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"mode":  {Type: TypeString, Enum: []interface{}{"fast", "slow"}},
			"level": {Type: TypeNumber, Enum: []interface{}{1, 2, 3}},
		},
	}

	ok := Validate(map[string]interface{}{"mode": "fast", "level": 2.0}, s)
	assert.True(t, ok.Valid, "numeric enum members must match regardless of decoded type")

	bad := Validate(map[string]interface{}{"mode": "medium"}, s)
	require.False(t, bad.Valid)
	assert.Equal(t, CodeEnumMismatch, bad.Errors[0].Code)
}

func TestValidate_NumericTypeCoercion(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"n": {Type: TypeNumber},
		},
	}

	for _, v := range []interface{}{int(1), int64(1), float32(1), float64(1), uint8(1)} {
		result := Validate(map[string]interface{}{"n": v}, s)
		assert.True(t, result.Valid, "value %T must count as a number", v)
	}

	result := Validate(map[string]interface{}{"n": "1"}, s)
	assert.False(t, result.Valid)
}

func TestValidate_ObjectAndArrayTypes(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"obj": {Type: TypeObject},
			"arr": {Type: TypeArray},
		},
	}

	result := Validate(map[string]interface{}{
		"obj": map[string]interface{}{"k": "v"},
		"arr": []string{"a", "b"},
	}, s)
	assert.True(t, result.Valid)

	result = Validate(map[string]interface{}{
		"obj": []interface{}{},
		"arr": map[string]interface{}{},
	}, s)
	require.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)
}

func TestValidate_NilValueFailsType(t *testing.T) {
	s := ParamSchema{
		Properties: map[string]ParamDefinition{
			"text": {Type: TypeString},
		},
	}

	result := Validate(map[string]interface{}{"text": nil}, s)
	require.False(t, result.Valid)
	assert.Equal(t, CodeTypeError, result.Errors[0].Code)
}
