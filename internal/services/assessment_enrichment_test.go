package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carepulse/engage/internal/domain/analytics"
)

func TestParseSequenceList(t *testing.T) {
	assert.Equal(t, []int{1, 2}, parseSequenceList("[1,2]"))
	assert.Equal(t, []int{3}, parseSequenceList("[3]"))
	assert.Equal(t, []int{1, 2, 3}, parseSequenceList(" [ 1 , 2 , 3 ] "))
	assert.Equal(t, []int{4}, parseSequenceList("4"))
	assert.Nil(t, parseSequenceList("[]"))
	assert.Nil(t, parseSequenceList(""))
	assert.Equal(t, []int{2}, parseSequenceList("[x,2]"))
}

func TestResolveResponsesMultiChoice(t *testing.T) {
	responses := []analytics.AssessmentResponse{
		{
			NodeID:      "n1",
			Template:    "t1",
			NodeTitle:   "Pain today?",
			Type:        analytics.ResponseTypeMultiChoice,
			RawResponse: "[1,3]",
		},
	}
	options := []analytics.AssessmentOption{
		{NodeID: "n1", Template: "t1", NodeTitle: "Pain today?", Sequence: 1, Text: "Yes"},
		{NodeID: "n1", Template: "t1", NodeTitle: "Pain today?", Sequence: 3, Text: "Sometimes"},
	}

	out := resolveResponses(responses, options)
	require.Len(t, out, 1)
	assert.Equal(t, "Yes, Sometimes", out[0].DisplayText)
}

func TestResolveResponsesUnknownOption(t *testing.T) {
	responses := []analytics.AssessmentResponse{
		{
			NodeID:      "n1",
			Template:    "t1",
			NodeTitle:   "Pain today?",
			Type:        analytics.ResponseTypeMultiChoice,
			RawResponse: "[1,9]",
		},
	}
	options := []analytics.AssessmentOption{
		{NodeID: "n1", Template: "t1", NodeTitle: "Pain today?", Sequence: 1, Text: "Yes"},
	}

	out := resolveResponses(responses, options)
	require.Len(t, out, 1)
	assert.Equal(t, "Yes, Unknown Option 9", out[0].DisplayText)
}

func TestResolveResponsesTextCopiesRaw(t *testing.T) {
	responses := []analytics.AssessmentResponse{
		{Type: analytics.ResponseTypeText, RawResponse: "Feeling fine"},
	}

	out := resolveResponses(responses, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "Feeling fine", out[0].DisplayText)
}

func TestResolveResponsesMismatchedNodeFallsBack(t *testing.T) {
	// Option rows for a different node must not resolve this response.
	responses := []analytics.AssessmentResponse{
		{
			NodeID:      "n1",
			Template:    "t1",
			NodeTitle:   "Pain today?",
			Type:        analytics.ResponseTypeMultiChoice,
			RawResponse: "[1]",
		},
	}
	options := []analytics.AssessmentOption{
		{NodeID: "n2", Template: "t1", NodeTitle: "Pain today?", Sequence: 1, Text: "Yes"},
	}

	out := resolveResponses(responses, options)
	require.Len(t, out, 1)
	assert.Equal(t, "Unknown Option 1", out[0].DisplayText)
}
