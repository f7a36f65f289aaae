package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitClassifierResponseFlat(t *testing.T) {
	raw := json.RawMessage(`{
		"Total Revenue": 3621577.27,
		"Cost of Goods Sold": 432658.88,
		"Other Income": null
	}`)

	assignment, validations, err := splitClassifierResponse(raw)
	require.NoError(t, err)
	assert.Nil(t, validations)

	require.NotNil(t, assignment.Values["Total Revenue"])
	assert.InDelta(t, 3621577.27, *assignment.Values["Total Revenue"], 0.001)

	// Null means unreported, not zero. The key is still present so the
	// derivation sees the field was considered.
	v, ok := assignment.Values["Other Income"]
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestSplitClassifierResponseNestedSections(t *testing.T) {
	raw := json.RawMessage(`{
		"REVENUE": {"Total Revenue": 1000},
		"COST OF GOODS SOLD": {"Cost of Goods Sold": 200}
	}`)

	assignment, _, err := splitClassifierResponse(raw)
	require.NoError(t, err)
	require.NotNil(t, assignment.Values["Total Revenue"])
	assert.InDelta(t, 1000, *assignment.Values["Total Revenue"], 0.001)
	require.NotNil(t, assignment.Values["Cost of Goods Sold"])
	assert.InDelta(t, 200, *assignment.Values["Cost of Goods Sold"], 0.001)
	assert.NotContains(t, assignment.Values, "REVENUE")
}

func TestSplitClassifierResponseFlaggedSuffix(t *testing.T) {
	raw := json.RawMessage(`{"Other Operating Expenses__FLAGGED": 5200}`)

	assignment, _, err := splitClassifierResponse(raw)
	require.NoError(t, err)

	require.NotNil(t, assignment.Values["Other Operating Expenses"])
	assert.InDelta(t, 5200, *assignment.Values["Other Operating Expenses"], 0.001)
	annotation, ok := assignment.Annotations["Other Operating Expenses"]
	require.True(t, ok)
	assert.Equal(t, "classifier low confidence", annotation.Reason)
	assert.NotContains(t, assignment.Values, "Other Operating Expenses__FLAGGED")
}

func TestSplitClassifierResponseReasoningAndValidation(t *testing.T) {
	raw := json.RawMessage(`{
		"Total Revenue": 1000,
		"Gross Profit": 800,
		"REASONING": {"Total Revenue": "sum of the three revenue lines"},
		"VALIDATION": {
			"Gross Profit Check": {"status": "PASS", "details": "Gross Profit matches revenue less COGS"},
			"Unrelated Check": "nothing to see"
		}
	}`)

	assignment, validations, err := splitClassifierResponse(raw)
	require.NoError(t, err)

	assert.Equal(t, "sum of the three revenue lines", assignment.Reasoning["Total Revenue"])
	assert.NotContains(t, assignment.Values, "REASONING")
	assert.NotContains(t, assignment.Values, "VALIDATION")

	require.Contains(t, validations, "Gross Profit")
	assert.Contains(t, validations["Gross Profit"], "Gross Profit Check")
	assert.NotContains(t, validations, "Total Revenue")
}

func TestSplitClassifierResponseRejectsNonObject(t *testing.T) {
	_, _, err := splitClassifierResponse(json.RawMessage(`[1, 2]`))
	assert.Error(t, err)
}
