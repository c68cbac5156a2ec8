package executor

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/plan"
	"github.com/kairoslabs/delegate/router"
	"github.com/kairoslabs/delegate/tools"
	"github.com/kairoslabs/delegate/validator"
)

// scriptedClient replays a fixed sequence of responses, one per Complete
// call, and never supports streaming — matching the fakeClient pattern
// used in validator and plan's own tests.
type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return &model.Response{Content: []model.Message{
		{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: c.responses[i]}}},
	}}, nil
}

func (c *scriptedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

type streamingClient struct {
	chunks [][]string // one []string of text fragments per call
	calls  int
}

func (c *streamingClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *streamingClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	i := c.calls
	if i >= len(c.chunks) {
		i = len(c.chunks) - 1
	}
	c.calls++
	return &fakeStreamer{fragments: c.chunks[i]}, nil
}

type fakeStreamer struct {
	fragments []string
	idx       int
}

func (s *fakeStreamer) Recv() (model.Chunk, error) {
	if s.idx >= len(s.fragments) {
		return model.Chunk{}, io.EOF
	}
	frag := s.fragments[s.idx]
	s.idx++
	return model.Chunk{
		Type:    model.ChunkTypeText,
		Message: &model.Message{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: frag}}},
	}, nil
}
func (s *fakeStreamer) Close() error             { return nil }
func (s *fakeStreamer) Metadata() map[string]any { return nil }

func newTestExecutor(t *testing.T, client model.Client, val *validator.Validator) (*Executor, *plan.Plan) {
	t.Helper()
	registry := tools.NewRegistry()
	tctx := &tools.Context{WorkspaceRoot: t.TempDir()}

	rtr := router.New(nil)
	rtr.SetPool([]*router.Profile{{Endpoint: "local", Model: "test-model", Client: client, MaxConcurrent: 2, TierScores: map[int]float64{1: 0.9, 2: 0.9, 3: 0.9}}})
	rtr.SetRole(router.RoleConfig{Role: "CODER", MinScore: 0.1, MinTier: 1})

	roles := map[string]RoleConfig{
		"CODER": {Role: "CODER", SystemPrompt: "You write code.", LoopLimit: 3, MaxRetries: 3},
	}
	exec := New(registry, tctx, nil, rtr, val, roles)

	p := &plan.Plan{Tasks: []*plan.Task{{ID: "t1", Description: "write a function", AgentType: "CODER"}}}
	return exec, p
}

func TestRunReturnsTextOnlyResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{"func Sort() {}"}}
	exec, p := newTestExecutor(t, client, nil)

	result, err := exec.Run(context.Background(), p.TaskByID("t1"), p, "")
	require.NoError(t, err)
	require.Equal(t, "func Sort() {}", result)
	require.Equal(t, plan.TaskCompleted, p.TaskByID("t1").Status)
	require.Len(t, p.TaskByID("t1").Attempts, 1)
}

func TestRunDispatchesToolCallThenReturnsFinalText(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"name":"write_file","arguments":{"path":"out.go","content":"package main"}}`,
		"done writing the file",
	}}
	exec, p := newTestExecutor(t, client, nil)

	result, err := exec.Run(context.Background(), p.TaskByID("t1"), p, "")
	require.NoError(t, err)
	require.Equal(t, "done writing the file", result)
	require.Equal(t, 2, client.calls)
}

func TestRunStreamsChunksIntoOneResponse(t *testing.T) {
	client := &streamingClient{chunks: [][]string{{"final ", "answer"}}}
	exec, p := newTestExecutor(t, client, nil)

	result, err := exec.Run(context.Background(), p.TaskByID("t1"), p, "")
	require.NoError(t, err)
	require.Equal(t, "final answer", result)
}

func TestRunFailsAfterTwoConsecutiveEmptyResponses(t *testing.T) {
	client := &scriptedClient{responses: []string{"", ""}}
	exec, p := newTestExecutor(t, client, nil)

	_, err := exec.Run(context.Background(), p.TaskByID("t1"), p, "")
	require.Error(t, err)
	require.Equal(t, plan.TaskFailed, p.TaskByID("t1").Status)
}

func TestRunRetriesWithValidationFeedbackThenSucceeds(t *testing.T) {
	mainClient := &scriptedClient{responses: []string{"bad attempt", "good attempt"}}
	valClient := &scriptedClient{responses: []string{
		`{"valid": false, "feedback": "missing error handling"}`,
		`{"valid": true, "feedback": ""}`,
	}}
	val := validator.New(valClient, validator.DefaultRubrics())
	exec, p := newTestExecutor(t, mainClient, val)

	result, err := exec.Run(context.Background(), p.TaskByID("t1"), p, "")
	require.NoError(t, err)
	require.Equal(t, "good attempt", result)
	require.Equal(t, 2, mainClient.calls)
}

func TestRunEscalatesToFallbackOnExhaustion(t *testing.T) {
	primary := &scriptedClient{responses: []string{"", ""}}
	fallback := &scriptedClient{responses: []string{"fallback answer"}}

	registry := tools.NewRegistry()
	tctx := &tools.Context{WorkspaceRoot: t.TempDir()}
	rtr := router.New(nil)
	rtr.SetPool([]*router.Profile{
		{Endpoint: "local-a", Model: "primary-model", Client: primary, MaxConcurrent: 1, TierScores: map[int]float64{1: 0.95}},
		{Endpoint: "local-b", Model: "fallback-model", Client: fallback, MaxConcurrent: 1, TierScores: map[int]float64{1: 0.5}},
	})
	rtr.SetRole(router.RoleConfig{Role: "CODER", MinScore: 0.1, MinTier: 1})

	roles := map[string]RoleConfig{"CODER": {Role: "CODER", SystemPrompt: "sys", LoopLimit: 3, MaxRetries: 0}}
	exec := New(registry, tctx, nil, rtr, nil, roles)

	p := &plan.Plan{Tasks: []*plan.Task{{ID: "t1", Description: "do something", AgentType: "CODER"}}}
	result, err := exec.Run(context.Background(), p.TaskByID("t1"), p, "")
	require.NoError(t, err)
	require.Equal(t, "fallback answer", result)
	require.Len(t, p.TaskByID("t1").Attempts, 2)
}

func TestRunEscalatesToPaidProviderWhenFallbacksExhausted(t *testing.T) {
	primary := &scriptedClient{responses: []string{"", ""}}
	paid := &scriptedClient{responses: []string{"paid answer"}}

	exec, p := newTestExecutor(t, primary, nil)
	exec.SetEscalationProfile(&router.Profile{Endpoint: "escalation", Model: "paid-model", Client: paid})

	result, err := exec.Run(context.Background(), p.TaskByID("t1"), p, "")
	require.NoError(t, err)
	require.Equal(t, "paid answer", result)
	require.Equal(t, plan.TaskCompleted, p.TaskByID("t1").Status)

	attempts := p.TaskByID("t1").Attempts
	require.Equal(t, "paid-model", attempts[len(attempts)-1].Model)
}

func TestRunSkipsEscalationWhenLimiterDenies(t *testing.T) {
	primary := &scriptedClient{responses: []string{"", ""}}
	paid := &scriptedClient{responses: []string{"paid answer"}}

	exec, p := newTestExecutor(t, primary, nil)
	exec.SetEscalationProfile(&router.Profile{Endpoint: "escalation", Model: "paid-model", Client: paid})
	exec.SetEscalationLimiter(rate.NewLimiter(0, 0))

	_, err := exec.Run(context.Background(), p.TaskByID("t1"), p, "")
	require.Error(t, err)
	require.Equal(t, plan.TaskFailed, p.TaskByID("t1").Status)

	for _, a := range p.TaskByID("t1").Attempts {
		require.NotEqual(t, "paid-model", a.Model)
	}
}

func TestIsCorruptedOutputDetectsGarbledLeadingBytes(t *testing.T) {
	require.True(t, isCorruptedOutput("���� garbled response"))
	require.False(t, isCorruptedOutput("a perfectly normal response"))
	require.False(t, isCorruptedOutput(""))
}

func TestDefaultRoleConfigsCoversCoreRoles(t *testing.T) {
	cfgs := DefaultRoleConfigs()
	for _, role := range []string{"CODER", "EXECUTOR", "WRITER", "PLANNER"} {
		cfg, ok := cfgs[role]
		require.True(t, ok, role)
		require.NotEmpty(t, cfg.SystemPrompt)
	}
	require.Contains(t, cfgs["PLANNER"].ForbiddenCategories, tools.CategoryShell)
}
