// Package validator implements the optional Quality Validator (spec §4.6):
// a second-model check over a candidate task result, using a role-specific
// rubric, returning valid or invalid-with-feedback for the Executor's retry
// loop to act on.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/model"
)

// Rubric names the criteria a role's candidate results are judged against.
// The defaults below mirror spec §4.6's per-role wording verbatim.
type Rubric struct {
	Role     string
	Criteria []string
}

// DefaultRubrics returns the role-specific rubrics spec §4.6 names.
func DefaultRubrics() map[string]Rubric {
	return map[string]Rubric{
		"CODER": {
			Role:     "CODER",
			Criteria: []string{"syntactic correctness", "no obvious security issues", "completeness relative to the task description"},
		},
		"EXECUTOR": {
			Role:     "EXECUTOR",
			Criteria: []string{"the command(s) actually succeeded", "completeness relative to the task description"},
		},
		"WRITER": {
			Role:     "WRITER",
			Criteria: []string{"the target file exists", "its content matches what was asked for", "the format is correct"},
		},
		"PLANNER": {
			Role:     "PLANNER",
			Criteria: []string{"tasks decompose the query sensibly", "dependency flow between tasks is coherent", "the plan covers the full scope of the query"},
		},
	}
}

// Result is the Validator's verdict on one candidate result.
type Result struct {
	Valid    bool
	Feedback string
}

// Validator runs a second model over a candidate result for configured
// roles only; roles with no registered rubric are not validated at all.
type Validator struct {
	client  model.Client
	rubrics map[string]Rubric
}

// New constructs a Validator. A nil rubrics map uses DefaultRubrics.
func New(client model.Client, rubrics map[string]Rubric) *Validator {
	if rubrics == nil {
		rubrics = DefaultRubrics()
	}
	return &Validator{client: client, rubrics: rubrics}
}

// Enabled reports whether role has a registered rubric and should be
// validated at all.
func (v *Validator) Enabled(role string) bool {
	_, ok := v.rubrics[role]
	return ok
}

type verdict struct {
	Valid    bool   `json:"valid"`
	Feedback string `json:"feedback"`
}

// Validate asks the validation model whether candidateResult satisfies
// role's rubric for taskDescription, returning a parsed verdict.
func (v *Validator) Validate(ctx context.Context, role, taskDescription, candidateResult string) (*Result, error) {
	const op = "validator.validate"
	rubric, ok := v.rubrics[role]
	if !ok {
		return &Result{Valid: true}, nil
	}

	req := &model.Request{
		ModelClass:  model.ModelClassDefault,
		Temperature: 0,
		MaxTokens:   1024,
		Messages: []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: systemPrompt(rubric)}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: userPrompt(taskDescription, candidateResult)}}},
		},
	}

	resp, err := v.client.Complete(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportError, op, err)
	}

	text := responseText(resp)
	vd, err := decodeVerdict(text)
	if err != nil {
		// A validator that can't be parsed fails closed: treat it as a
		// rejection with the raw text as feedback, rather than silently
		// passing a candidate nobody actually judged.
		return &Result{Valid: false, Feedback: fmt.Sprintf("validator response was not parseable: %s", strings.TrimSpace(text))}, nil
	}
	return &Result{Valid: vd.Valid, Feedback: vd.Feedback}, nil
}

func systemPrompt(rubric Rubric) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a quality validator for the %s role's output. ", rubric.Role)
	b.WriteString("Judge the candidate result strictly against this rubric:\n")
	for _, c := range rubric.Criteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("Respond with exactly one JSON object: {\"valid\": true|false, \"feedback\": \"...\"}. ")
	b.WriteString("feedback must be empty when valid is true, and must explain precisely what is wrong when valid is false.")
	return b.String()
}

func userPrompt(taskDescription, candidateResult string) string {
	return fmt.Sprintf("Task:\n%s\n\nCandidate result:\n%s", taskDescription, candidateResult)
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

// decodeVerdict extracts the {"valid":...,"feedback":...} object from the
// validation model's response text, tolerating surrounding prose or a
// fenced block the same way a model might wrap any JSON answer.
func decodeVerdict(text string) (verdict, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return verdict{}, fmt.Errorf("validator: no JSON object found in response")
	}
	var vd verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &vd); err != nil {
		return verdict{}, fmt.Errorf("validator: decoding verdict: %w", err)
	}
	return vd, nil
}
