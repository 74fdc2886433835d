package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairTruncatedArray_CompleteArrayUntouched(t *testing.T) {
	in := `[{"endpoint_name": "SRI-4"}, {"endpoint_name": "ACR20"}]`
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRepairTruncatedArray_CutMidSecondObject(t *testing.T) {
	in := `[{"endpoint_name": "SRI-4", "p_value": "<0.001"}, {"endpoint_na`
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)

	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
	assert.Equal(t, "SRI-4", arr[0]["endpoint_name"])
}

func TestRepairTruncatedArray_CutAfterComma(t *testing.T) {
	in := `[{"a": 1},`
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)
	assert.Equal(t, `[{"a": 1}]`, out)
}

func TestRepairTruncatedArray_BracesInsideStrings(t *testing.T) {
	in := `[{"raw_text": "responders {52.4%} vs placebo"}, {"raw_text": "trunc`
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)

	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
}

func TestRepairTruncatedArray_EscapedQuoteInString(t *testing.T) {
	in := `[{"raw_text": "the \"primary\" endpoint"}, {"x": `
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)

	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
}

func TestRepairTruncatedArray_NestedObjects(t *testing.T) {
	in := `[{"drug_arm": {"name": "belimumab", "n": 290}}, {"drug_arm": {"na`
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)

	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
}

func TestRepairTruncatedArray_NestedArrayInElement(t *testing.T) {
	in := `[{"timepoints": ["Week 24", "Week 52"], "endpoint_name": "SRI-4"}, {"timepoints": ["Week`
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)

	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
	assert.Equal(t, "SRI-4", arr[0]["endpoint_name"])
}

func TestRepairTruncatedArray_NestedArrayClosesCleanly(t *testing.T) {
	in := `[{"groups": [{"n": 290}, {"n": 287}]}] trailing prose`
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)
	assert.Equal(t, `[{"groups": [{"n": 290}, {"n": 287}]}]`, out)
}

func TestRepairTruncatedArray_SurroundingProse(t *testing.T) {
	in := "Here are the results:\n[{\"endpoint_name\": \"SRI-4\"}]\nHope that helps."
	out, err := RepairTruncatedArray(in)
	require.NoError(t, err)
	assert.Equal(t, `[{"endpoint_name": "SRI-4"}]`, out)
}

func TestRepairTruncatedArray_NoCompleteObject(t *testing.T) {
	out, err := RepairTruncatedArray(`[{"endpoint_name": "SRI`)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRepairTruncatedArray_NoArray(t *testing.T) {
	_, err := RepairTruncatedArray("I could not find any efficacy data.")
	require.Error(t, err)
}
