package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// optionKey identifies one selectable option within one question node.
type optionKey struct {
	nodeID    string
	template  string
	nodeTitle string
	sequence  int
}

// resolveResponses fills DisplayText on every response row. Multiple-choice
// raw responses are stored as sequence-number lists ("[1,3]"); each number is
// resolved against the option lookup, with a placeholder for numbers no
// option row covers. Text responses display as-is.
func resolveResponses(responses []analytics.AssessmentResponse, options []analytics.AssessmentOption) []analytics.AssessmentResponse {
	lookup := make(map[optionKey]string, len(options))
	for _, opt := range options {
		lookup[optionKey{opt.NodeID, opt.Template, opt.NodeTitle, opt.Sequence}] = opt.Text
	}

	out := make([]analytics.AssessmentResponse, 0, len(responses))
	for _, resp := range responses {
		if resp.Type == analytics.ResponseTypeMultiChoice {
			texts := []string{}
			for _, seq := range parseSequenceList(resp.RawResponse) {
				text, ok := lookup[optionKey{resp.NodeID, resp.Template, resp.NodeTitle, seq}]
				if !ok {
					text = fmt.Sprintf("Unknown Option %d", seq)
				}
				texts = append(texts, text)
			}
			resp.DisplayText = strings.Join(texts, ", ")
		} else {
			resp.DisplayText = resp.RawResponse
		}
		out = append(out, resp)
	}
	return out
}

// parseSequenceList reads a stored sequence list like "[1,3]". Brackets and
// whitespace are tolerated, non-numeric entries are skipped.
func parseSequenceList(raw string) []int {
	trimmed := strings.Trim(strings.TrimSpace(raw), "[]")
	if trimmed == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(trimmed, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
