package toolparser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFencedJSONCarrier(t *testing.T) {
	resp := "Let me check that.\n```json\n{\"name\":\"read_file\",\"arguments\":{\"path\":\"a.go\"}}\n```\nDone."
	res := Parse(resp)
	require.Len(t, res.Calls, 1)
	require.Equal(t, "read_file", string(res.Calls[0].Name))
	require.Equal(t, "a.go", res.Calls[0].Arguments["path"])
}

func TestParseBareInlineJSONCarrier(t *testing.T) {
	resp := `I'll call {"name":"bash","parameters":{"command":"ls"}} now.`
	res := Parse(resp)
	require.Len(t, res.Calls, 1)
	require.Equal(t, "bash", string(res.Calls[0].Name))
	require.Equal(t, "ls", res.Calls[0].Arguments["command"])
}

func TestParseFunctionWrapperShape(t *testing.T) {
	resp := `{"function":{"name":"write_file","arguments":{"path":"x","content":"y"}}}`
	res := Parse(resp)
	require.Len(t, res.Calls, 1)
	require.Equal(t, "write_file", string(res.Calls[0].Name))
}

func TestParseReasoningWrappedCarrierDoesNotDoubleCount(t *testing.T) {
	resp := `{"thoughts":"I should list files","tool_request":{"name":"list_files","parameters":{"path":"."}}}`
	res := Parse(resp)
	require.Len(t, res.Calls, 1, "the inner tool_request object must not also be reported separately")
	require.Equal(t, "list_files", string(res.Calls[0].Name))
}

func TestParseXMLTagCarrier(t *testing.T) {
	resp := `Sure, <tool_call>{"name":"bash","arguments":{"command":"pwd"}}</tool_call> done.`
	res := Parse(resp)
	require.Len(t, res.Calls, 1)
	require.Equal(t, "bash", string(res.Calls[0].Name))
}

func TestParseStripsThinkSegmentsFromVisibleText(t *testing.T) {
	resp := "<think>internal reasoning here</think>Here is your answer."
	res := Parse(resp)
	require.Equal(t, "Here is your answer.", res.VisibleText)
}

func TestParseSkipsMalformedCarrierAndContinues(t *testing.T) {
	resp := `{"name":"bash","arguments":{"command":} oops} then {"name":"echo","arguments":{"text":"hi"}}`
	res := Parse(resp)
	require.Len(t, res.Calls, 1, "malformed carrier is a soft failure; the well-formed one after it still parses")
	require.Equal(t, "echo", string(res.Calls[0].Name))
}

func TestParseIgnoresNonToolCallJSONObjects(t *testing.T) {
	resp := `{"unrelated":"object","with":"fields"}`
	res := Parse(resp)
	require.Empty(t, res.Calls)
}

func TestParseMultipleCallsPreserveOrder(t *testing.T) {
	resp := `{"name":"a","arguments":{}} then {"name":"b","arguments":{}}`
	res := Parse(resp)
	require.Len(t, res.Calls, 2)
	require.Equal(t, "a", string(res.Calls[0].Name))
	require.Equal(t, "b", string(res.Calls[1].Name))
	require.Less(t, res.Calls[0].Start, res.Calls[1].Start)
}
