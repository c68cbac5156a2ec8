// Package aggregator implements the terminal Aggregator role (spec §4.10):
// invoked once per plan after every task has reached a terminal status, it
// turns the ordered (description, status, result) list into a final
// natural-language answer and, optionally, one structured artifact. It
// makes no tool calls of its own.
package aggregator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kairoslabs/delegate/artifact"
	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/plan"
)

// Result is the Aggregator's output for one plan run.
type Result struct {
	Answer   string
	Artifact *artifact.Artifact
}

// Aggregator renders a plan's completed task list into a final answer
// using a dedicated model call.
type Aggregator struct {
	client       model.Client
	systemPrompt string
}

const defaultSystemPrompt = "You are the final responder. You are given a user query and the " +
	"description, status, and result of every task a planning system ran to answer it. " +
	"Write the final answer to the user directly: quote or summarize whichever task " +
	"results are relevant, and do not mention tasks, plans, or agents as such. " +
	"If a task failed or was skipped, do not pretend it succeeded; work around the gap " +
	"or say plainly that part of the request could not be completed. " +
	"If, and only if, a structured artifact (a form, table, chart, diagram, or similar) " +
	"would materially help the user, you may emit exactly one, anywhere in your answer, " +
	"formatted as artifact:<kind> { \"title\": \"...\", \"data\": {...} }."

// New constructs an Aggregator. An empty systemPrompt uses the default
// instructions above.
func New(client model.Client, systemPrompt string) *Aggregator {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Aggregator{client: client, systemPrompt: systemPrompt}
}

// Aggregate produces the final answer for a completed (or partially
// completed) plan run. It never calls tools and never mutates p.
func (a *Aggregator) Aggregate(ctx context.Context, query string, p *plan.Plan) (*Result, error) {
	const op = "aggregator.aggregate"

	req := &model.Request{
		ModelClass: model.ModelClassDefault,
		MaxTokens:  4096,
		Messages: []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: a.systemPrompt}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: renderTasks(query, p)}}},
		},
	}

	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportError, op, err)
	}

	text := responseText(resp)
	found := artifact.Parse(text)
	var art *artifact.Artifact
	if len(found) > 0 {
		art = &found[0]
		text = stripArtifactBlocks(text, found)
	}

	return &Result{Answer: strings.TrimSpace(text), Artifact: art}, nil
}

// renderTasks formats the plan's tasks, in the order they appear on the
// plan, as the ordered (description, status, result) list spec §4.10
// hands the Aggregator.
func renderTasks(query string, p *plan.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query:\n%s\n\nTask outcomes:\n", query)
	if p == nil {
		return b.String()
	}
	for _, t := range p.Tasks {
		fmt.Fprintf(&b, "- [%s] %s\n  Result: %s\n", t.Status, t.Description, oneLine(t.Result))
	}
	return b.String()
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(none)"
	}
	return s
}

// stripArtifactBlocks removes the raw artifact:<kind> { ... } block from
// the answer prose so the user-facing text doesn't duplicate the
// structured data callers already have on Result.Artifact. Leaves the
// text untouched if the tag can't be relocated (best effort, never fatal
// to the answer itself).
func stripArtifactBlocks(text string, found []artifact.Artifact) string {
	idx := strings.Index(text, "artifact:"+string(found[0].Kind))
	if idx < 0 {
		return text
	}
	close := findClosingBrace(text, idx)
	if close < 0 {
		return text
	}
	return strings.TrimSpace(text[:idx] + text[close:])
}

func findClosingBrace(s string, tagStart int) int {
	open := strings.IndexByte(s[tagStart:], '{')
	if open < 0 {
		return -1
	}
	open += tagStart
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
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
