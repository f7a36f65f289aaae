package oracle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONDirect(t *testing.T) {
	raw, err := ExtractJSON(`  {"action": "APPEND"}  `)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action": "APPEND"}`, string(raw))
}

func TestExtractJSONFromJSONFence(t *testing.T) {
	response := "Here is the classification:\n```json\n{\"Total Revenue\": 1000}\n```\nLet me know if you need anything else."
	raw, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Total Revenue": 1000}`, string(raw))
}

func TestExtractJSONFromBareFence(t *testing.T) {
	response := "```\n{\"Total Revenue\": 1000}\n```"
	raw, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Total Revenue": 1000}`, string(raw))
}

func TestExtractJSONLargestBalancedSpan(t *testing.T) {
	response := `The mapping {"a": 1} is wrong; use {"Total Revenue": 1000, "note": "contains } inside a string"} instead.`
	raw, err := ExtractJSON(response)
	require.NoError(t, err)

	var probe map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &probe))
	assert.Contains(t, probe, "Total Revenue")
	assert.Contains(t, probe, "note")
}

func TestExtractJSONNoObject(t *testing.T) {
	_, err := ExtractJSON("I could not classify this statement.")
	assert.Error(t, err)
}

func TestExtractJSONRejectsArrays(t *testing.T) {
	// The classifier contract is an object; a bare array is a protocol error.
	_, err := ExtractJSON(`[1, 2, 3]`)
	assert.Error(t, err)
}
