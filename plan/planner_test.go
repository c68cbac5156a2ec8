package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/model"
)

type fakeClient struct {
	text        string
	lastRequest *model.Request
}

func (f *fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	f.lastRequest = req
	return &model.Response{Content: []model.Message{
		{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: f.text}}},
	}}, nil
}

func (f *fakeClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func TestPlanParsesTaskList(t *testing.T) {
	client := &fakeClient{text: `{"tasks":[{"id":"t1","description":"write code","agent_type":"CODER","dependencies":[]}]}`}
	pl := New(client, nil)

	p, err := pl.Plan(context.Background(), "write a sorting function", "")
	require.NoError(t, err)
	require.Len(t, p.Tasks, 1)
	require.Equal(t, "t1", p.Tasks[0].ID)
	require.Equal(t, TaskPending, p.Tasks[0].Status)
}

func TestPlanToleratesFencedResponse(t *testing.T) {
	client := &fakeClient{text: "Here's the plan:\n```json\n{\"tasks\":[{\"id\":\"t1\",\"description\":\"x\",\"agent_type\":\"CODER\",\"dependencies\":[]}]}\n```"}
	pl := New(client, nil)

	p, err := pl.Plan(context.Background(), "do x", "")
	require.NoError(t, err)
	require.Len(t, p.Tasks, 1)
}

func TestPlanRejectsUnparseableResponse(t *testing.T) {
	client := &fakeClient{text: "I don't understand"}
	pl := New(client, nil)

	_, err := pl.Plan(context.Background(), "do x", "")
	require.Error(t, err)
}

func TestSelectExamplesPicksHighestOverlap(t *testing.T) {
	examples := []Example{
		{Query: "refactor the database layer", PlanJSON: "db-plan"},
		{Query: "write a sorting function in python", PlanJSON: "sort-plan"},
		{Query: "deploy the service to production", PlanJSON: "deploy-plan"},
	}
	picked := selectExamples(examples, "write a sorting function", 1)
	require.Len(t, picked, 1)
	require.Equal(t, "sort-plan", picked[0].PlanJSON)
}

func TestSelectExamplesRespectsCount(t *testing.T) {
	examples := []Example{{Query: "a"}, {Query: "b"}, {Query: "c"}}
	require.Len(t, selectExamples(examples, "anything", 2), 2)
	require.Len(t, selectExamples(examples, "anything", 0), 0)
	require.Len(t, selectExamples(examples, "anything", 10), 3)
}

func TestPlanIncludesFewShotExamplesInPrompt(t *testing.T) {
	client := &fakeClient{text: `{"tasks":[{"id":"t1","description":"x","agent_type":"CODER","dependencies":[]}]}`}
	examples := []Example{{Query: "write a sorting function", PlanJSON: `{"tasks":[]}`}}
	pl := New(client, examples)

	_, err := pl.Plan(context.Background(), "write a sorting function in go", "")
	require.NoError(t, err)
	require.NotNil(t, client.lastRequest)
	require.Greater(t, len(client.lastRequest.Messages), 2, "expected the few-shot example pair plus system and user messages")
}
