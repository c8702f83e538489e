package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponseStrictJSON(t *testing.T) {
	var verdict Verdict
	require.NoError(t, DecodeResponse(`{"canonical_idx": 2, "reasoning": "same org"}`, &verdict))
	assert.Equal(t, 2, verdict.CanonicalIdx)
	assert.False(t, verdict.Distinct())
}

func TestDecodeResponseCodeFence(t *testing.T) {
	raw := "```json\n{\"canonical_idx\": -1}\n```"
	var verdict Verdict
	require.NoError(t, DecodeResponse(raw, &verdict))
	assert.True(t, verdict.Distinct())
}

func TestDecodeResponseRepairedJSON(t *testing.T) {
	// Trailing comma and single quotes, typical LLM damage.
	raw := `{'canonical_idx': 1, 'reasoning': 'close enough',}`
	var verdict Verdict
	require.NoError(t, DecodeResponse(raw, &verdict))
	assert.Equal(t, 1, verdict.CanonicalIdx)
}

func TestDecodeResponseYAMLFallback(t *testing.T) {
	raw := "canonical_idx: 0\nreasoning: exact match"
	var verdict Verdict
	require.NoError(t, DecodeResponse(raw, &verdict))
	assert.Equal(t, 0, verdict.CanonicalIdx)
	assert.Equal(t, "exact match", verdict.Reasoning)
}

func TestDecodeResponseEmpty(t *testing.T) {
	var verdict Verdict
	assert.ErrorIs(t, DecodeResponse("", &verdict), ErrEmptyResponse)
	assert.ErrorIs(t, DecodeResponse("   \n", &verdict), ErrEmptyResponse)
}

func TestDecodeResponseMalformed(t *testing.T) {
	var parsed clusterResponse
	err := DecodeResponse("unparseable prose, no structure at all", &parsed)
	assert.ErrorIs(t, err, &MalformedResponseError{})
}

func TestValidPartition(t *testing.T) {
	assert.True(t, validPartition([][]int{{0, 2}, {1}}, 3))
	assert.True(t, validPartition([][]int{{0}}, 1))
	assert.False(t, validPartition([][]int{{0, 1}}, 3), "missing index")
	assert.False(t, validPartition([][]int{{0}, {0}, {1}}, 2), "duplicate index")
	assert.False(t, validPartition([][]int{{0, 3}}, 2), "out of range")
	assert.False(t, validPartition(nil, 1))
}
