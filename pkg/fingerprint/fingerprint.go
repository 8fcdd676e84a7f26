// Package fingerprint produces deterministic content hashes for change
// detection. Two records with the same meaningful content always hash to the
// same value, independent of map ordering.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Generate creates a deterministic fingerprint for a value. The value is
// round-tripped through JSON so struct inputs and map inputs with equal
// content produce identical fingerprints.
func Generate(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return GenerateFromJSON(raw)
}

// GenerateFromJSON creates a fingerprint from raw JSON.
func GenerateFromJSON(data json.RawMessage) (string, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", err
	}
	canonical := canonicalize(decoded)
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:]), nil
}

// HasChanged compares two fingerprints to detect changes.
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

// canonicalize creates a deterministic string representation of a decoded
// JSON value by sorting object keys and recursing into nested structures.
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v)
	case []any:
		return canonicalizeArray(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := "{"
	for i, k := range keys {
		if i > 0 {
			result += ","
		}
		keyJSON, _ := json.Marshal(k)
		result += string(keyJSON) + ":" + canonicalize(m[k])
	}
	result += "}"
	return result
}

func canonicalizeArray(arr []any) string {
	result := "["
	for i, v := range arr {
		if i > 0 {
			result += ","
		}
		result += canonicalize(v)
	}
	result += "]"
	return result
}
