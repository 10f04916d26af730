package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFingerprint(t *testing.T, providerID, toolID string, params map[string]interface{}) string {
	t.Helper()
	fp, err := Fingerprint(providerID, toolID, params)
	require.NoError(t, err)
	return fp
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := mustFingerprint(t, "core", "echo", map[string]interface{}{"b": 2, "a": 1})
	b := mustFingerprint(t, "core", "echo", map[string]interface{}{"a": 1, "b": 2})
	assert.Equal(t, a, b, "key order must not affect the fingerprint")
	assert.Len(t, a, 64)
}

func TestFingerprint_NestedMaps(t *testing.T) {
	a := mustFingerprint(t, "core", "echo", map[string]interface{}{
		"outer": map[string]interface{}{"y": 2, "x": 1},
	})
	b := mustFingerprint(t, "core", "echo", map[string]interface{}{
		"outer": map[string]interface{}{"x": 1, "y": 2},
	})
	assert.Equal(t, a, b)
}

func TestFingerprint_DistinguishesInputs(t *testing.T) {
	base := mustFingerprint(t, "core", "echo", map[string]interface{}{"text": "hi"})

	assert.NotEqual(t, base, mustFingerprint(t, "core", "echo", map[string]interface{}{"text": "bye"}))
	assert.NotEqual(t, base, mustFingerprint(t, "core", "upper", map[string]interface{}{"text": "hi"}))
	assert.NotEqual(t, base, mustFingerprint(t, "other", "echo", map[string]interface{}{"text": "hi"}),
		"the same tool id under a different provider is a different invocation")
}

func TestFingerprint_EmptyParams(t *testing.T) {
	assert.Equal(t,
		mustFingerprint(t, "core", "echo", nil),
		mustFingerprint(t, "core", "echo", map[string]interface{}{}))
}

func TestFingerprint_UnserializableParams(t *testing.T) {
	_, err := Fingerprint("core", "echo", map[string]interface{}{"fn": func() {}})
	assert.Error(t, err, "an unserializable bag must not share the empty bag's key")

	_, err = Fingerprint("core", "echo", map[string]interface{}{"ch": make(chan int)})
	assert.Error(t, err)
}
