package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/model"
)

// Example is one few-shot decomposition shown to the planning model: a
// past user query paired with the plan JSON it should have produced.
type Example struct {
	Query    string
	PlanJSON string
}

const defaultFewShotCount = 2

// Planner turns a user query into a task plan by prompting an elevated-
// context model with the JSON plan shape and a handful of few-shot
// examples, chosen by keyword overlap with the query rather than fixed
// ordering, so the examples shown are the ones most like the task at
// hand.
type Planner struct {
	client   model.Client
	examples []Example
	fewShot  int
}

// New constructs a Planner. examples may be nil; with no examples the
// prompt carries none, which is a legal (if weaker) planning request.
func New(client model.Client, examples []Example) *Planner {
	return &Planner{client: client, examples: examples, fewShot: defaultFewShotCount}
}

// Plan asks the model to decompose query into a task plan, optionally
// informed by memoryContext (a short summary of relevant prior goals and
// features pulled from domain memory).
func (pl *Planner) Plan(ctx context.Context, query, memoryContext string) (*Plan, error) {
	const op = "plan.plan"

	req := &model.Request{
		ModelClass: model.ModelClassDefault,
		MaxTokens:  4096,
		Messages:   pl.buildMessages(query, memoryContext),
	}

	resp, err := pl.client.Complete(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportError, op, err)
	}

	text := responseText(resp)
	wire, err := decodePlanJSON(text)
	if err != nil {
		return nil, errs.Wrap(errs.KindMalformedCarrier, op, err)
	}

	for _, t := range wire.Tasks {
		if t.Status == "" {
			t.Status = TaskPending
		}
	}
	return &Plan{Tasks: wire.Tasks, CreatedAt: time.Now()}, nil
}

func (pl *Planner) buildMessages(query, memoryContext string) []*model.Message {
	msgs := []*model.Message{
		{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: systemPrompt}}},
	}

	for _, ex := range selectExamples(pl.examples, query, pl.fewShot) {
		msgs = append(msgs,
			&model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: ex.Query}}},
			&model.Message{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: ex.PlanJSON}}},
		)
	}

	user := query
	if memoryContext != "" {
		user = fmt.Sprintf("Relevant prior context:\n%s\n\nQuery:\n%s", memoryContext, query)
	}
	msgs = append(msgs, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: user}}})
	return msgs
}

const systemPrompt = `You decompose a user's request into a plan of discrete tasks for other agents to execute.
Respond with exactly one JSON object: {"tasks":[{"id":"t1","description":"...","agent_type":"CODER","dependencies":[]}]}.
Each task's id must be unique within the plan. dependencies lists the ids of tasks that must complete first; leave it empty for a task with no prerequisites.
Keep the plan between 1 and 12 tasks. Only decompose into multiple tasks when the request genuinely requires separate steps.`

// selectExamples ranks examples by keyword overlap with query and returns
// the top k. Ties keep the original ordering (stable sort), so a fixed
// example set produces a deterministic prompt across calls.
func selectExamples(examples []Example, query string, k int) []Example {
	if k <= 0 || len(examples) == 0 {
		return nil
	}
	queryWords := keywordSet(query)

	type scored struct {
		example Example
		score   int
	}
	ranked := make([]scored, len(examples))
	for i, ex := range examples {
		ranked[i] = scored{example: ex, score: overlap(queryWords, keywordSet(ex.Query))}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]Example, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].example
	}
	return out
}

func keywordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.Trim(w, ".,!?:;\"'()")] = true
	}
	return set
}

func overlap(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

type planWire struct {
	Tasks []*Task `json:"tasks"`
}

// decodePlanJSON extracts the {"tasks":[...]} object from the planning
// model's response text, tolerating a fenced or prose-wrapped answer the
// same way the validator tolerates a wrapped verdict.
func decodePlanJSON(text string) (planWire, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return planWire{}, fmt.Errorf("planner: no JSON object found in response")
	}
	var wire planWire
	if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
		return planWire{}, fmt.Errorf("planner: decoding plan: %w", err)
	}
	return wire, nil
}

func responseText(resp *model.Response) string {
	var b strings.Builder
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if t, ok := part.(model.TextPart); ok {
				b.WriteString(t.Text)
			}
		}
	}
	return b.String()
}
