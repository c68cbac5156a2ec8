package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/plan"
)

type fakeClient struct {
	text        string
	lastRequest *model.Request
}

func (c *fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	c.lastRequest = req
	return &model.Response{
		Content: []model.Message{
			{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: c.text}}},
		},
	}, nil
}

func (c *fakeClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func samplePlan() *plan.Plan {
	return &plan.Plan{Tasks: []*plan.Task{
		{ID: "t1", Description: "fetch sales data", Status: plan.TaskCompleted, Result: "rows: 42"},
		{ID: "t2", Description: "notify slack", Status: plan.TaskFailed, Result: "webhook 500"},
	}}
}

func TestAggregateReturnsTrimmedAnswer(t *testing.T) {
	client := &fakeClient{text: "  Here is your summary.  "}
	agg := New(client, "")

	result, err := agg.Aggregate(context.Background(), "summarize sales", samplePlan())
	require.NoError(t, err)
	require.Equal(t, "Here is your summary.", result.Answer)
	require.Nil(t, result.Artifact)
}

func TestAggregateIncludesTaskOutcomesInPrompt(t *testing.T) {
	client := &fakeClient{text: "ok"}
	agg := New(client, "")

	_, err := agg.Aggregate(context.Background(), "summarize sales", samplePlan())
	require.NoError(t, err)
	require.Len(t, client.lastRequest.Messages, 2)

	userText := client.lastRequest.Messages[1].Parts[0].(model.TextPart).Text
	require.Contains(t, userText, "fetch sales data")
	require.Contains(t, userText, "rows: 42")
	require.Contains(t, userText, "notify slack")
	require.Contains(t, userText, string(plan.TaskFailed))
}

func TestAggregateExtractsArtifactAndStripsFromAnswer(t *testing.T) {
	client := &fakeClient{
		text: `Here is a chart summarizing the result: artifact:chart {"title":"Sales","data":{"x":1}} Let me know if you need anything else.`,
	}
	agg := New(client, "")

	result, err := agg.Aggregate(context.Background(), "chart the sales", samplePlan())
	require.NoError(t, err)
	require.NotNil(t, result.Artifact)
	require.Equal(t, "Sales", result.Artifact.Title)
	require.NotContains(t, result.Answer, "artifact:chart")
	require.Contains(t, result.Answer, "Here is a chart")
	require.Contains(t, result.Answer, "Let me know")
}

func TestAggregateHandlesNilPlan(t *testing.T) {
	client := &fakeClient{text: "nothing ran"}
	agg := New(client, "")

	result, err := agg.Aggregate(context.Background(), "do nothing", nil)
	require.NoError(t, err)
	require.Equal(t, "nothing ran", result.Answer)
}
