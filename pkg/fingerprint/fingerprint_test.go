package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_DeterministicAcrossKeyOrder(t *testing.T) {
	a, err := GenerateFromJSON(json.RawMessage(`{"title": "X", "year": 2024, "genres": ["action", "drama"]}`))
	require.NoError(t, err)

	b, err := GenerateFromJSON(json.RawMessage(`{"year": 2024, "genres": ["action", "drama"], "title": "X"}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerate_ChangesWhenContentChanges(t *testing.T) {
	a, err := GenerateFromJSON(json.RawMessage(`{"title": "X", "year": 2024}`))
	require.NoError(t, err)

	b, err := GenerateFromJSON(json.RawMessage(`{"title": "X", "year": 2025}`))
	require.NoError(t, err)

	assert.True(t, HasChanged(a, b))
}

func TestGenerate_ArrayOrderIsMeaningful(t *testing.T) {
	a, err := GenerateFromJSON(json.RawMessage(`{"genres": ["a", "b"]}`))
	require.NoError(t, err)

	b, err := GenerateFromJSON(json.RawMessage(`{"genres": ["b", "a"]}`))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestGenerate_StructAndMapAgree(t *testing.T) {
	type record struct {
		Title string `json:"title"`
		Year  int    `json:"year"`
	}

	a, err := Generate(record{Title: "X", Year: 2024})
	require.NoError(t, err)

	b, err := Generate(map[string]any{"title": "X", "year": 2024})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerateFromJSON_InvalidJSON(t *testing.T) {
	_, err := GenerateFromJSON(json.RawMessage(`{invalid}`))
	assert.Error(t, err)
}
