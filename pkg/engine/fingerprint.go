package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint derives a deterministic key from the resolved tool identity and
// its normalized parameter bag. Identical invocations always produce the
// same fingerprint regardless of map iteration order. A bag that cannot be
// serialized has no fingerprint; callers must treat such an invocation as
// uncacheable.
func Fingerprint(providerID, toolID string, params map[string]interface{}) (string, error) {
	normalized, err := normalizeParams(params)
	if err != nil {
		return "", fmt.Errorf("parameter bag is not serializable: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s/%s:", providerID, toolID)
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// normalizeParams serializes a parameter bag into a deterministic JSON string
// by sorting keys at every level.
func normalizeParams(params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(sortedMap(params))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// sortedMap returns a representation of m that json.Marshal serializes with
// keys in sorted order; nested maps are converted to the same concrete type
// so they sort too.
func sortedMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		if nested, ok := v.(map[string]interface{}); ok {
			v = sortedMap(nested)
		}
		out[k] = v
	}
	return out
}
