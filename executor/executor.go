// Package executor implements the Task Executor (spec §4.9), the per-task
// inner loop that turns one Plan task into a result: build a focused
// prompt, call a selected model, parse and dispatch any tool calls,
// iterate until the model gives a final textual answer or exhausts its
// loop budget, optionally validate the candidate and retry with feedback,
// and escalate through the Router's fallback chain and an optional paid
// provider before giving up.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/mcp"
	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/plan"
	"github.com/kairoslabs/delegate/router"
	"github.com/kairoslabs/delegate/toolparser"
	"github.com/kairoslabs/delegate/tools"
	"github.com/kairoslabs/delegate/validator"
)

// Executor runs one task at a time against a role's configured model
// chain. A single Executor value is shared across concurrently running
// tasks in a wave; it holds no per-task mutable state.
type Executor struct {
	registry *tools.Registry
	tctx     *tools.Context
	mux      *mcp.Multiplexer
	dispatch dispatcher

	router    *router.Router
	validator *validator.Validator
	roles     map[string]RoleConfig

	// escalation is the paid fallback provider tried once, after the
	// Router's own fallback chain is exhausted, before a task is marked
	// failed. Nil disables paid escalation.
	escalation *router.Profile

	// escalationLimiter gates how often escalation may actually fire
	// (Escalation.Threshold/RateLimit, config.go). Nil means unconstrained:
	// escalation always runs once the fallback chain is exhausted.
	escalationLimiter *rate.Limiter
}

// New constructs an Executor. val may be nil to disable quality
// validation entirely; mux may be nil if no MCP servers are configured.
func New(registry *tools.Registry, tctx *tools.Context, mux *mcp.Multiplexer, rtr *router.Router, val *validator.Validator, roles map[string]RoleConfig) *Executor {
	var mcpDispatch dispatcher
	if mux != nil {
		mcpDispatch = &muxDispatcher{mux: mux}
	}
	return &Executor{
		registry:  registry,
		tctx:      tctx,
		mux:       mux,
		dispatch:  &compositeDispatcher{builtin: &builtinDispatcher{registry: registry, tctx: tctx}, mcp: mcpDispatch},
		router:    rtr,
		validator: val,
		roles:     roles,
	}
}

// SetEscalationProfile configures the paid fallback model tried once the
// Router's own fallback chain is exhausted.
func (e *Executor) SetEscalationProfile(p *router.Profile) { e.escalation = p }

// SetEscalationLimiter bounds how often SetEscalationProfile's provider may
// actually be called. A nil limiter removes the bound.
func (e *Executor) SetEscalationLimiter(l *rate.Limiter) { e.escalationLimiter = l }

// allowEscalation reports whether the configured escalation provider may be
// tried for the task currently exhausting its fallback chain. A nil limiter
// (no threshold/rate_limit configured) always allows it, preserving the
// default of escalating unconditionally once local fallbacks are exhausted.
func (e *Executor) allowEscalation() bool {
	if e.escalationLimiter == nil {
		return true
	}
	return e.escalationLimiter.Allow()
}

// Run executes task to completion, writing its final status, result, and
// attempts back onto the task itself, and also returning the result (or
// an error) for the caller's own bookkeeping. artifactContext is an
// optional rendering of recent artifact executions relevant to this task,
// prepended to the prompt when non-empty.
func (e *Executor) Run(ctx context.Context, task *plan.Task, p *plan.Plan, artifactContext string) (string, error) {
	const op = "executor.run"

	cfg, ok := e.roles[task.AgentType]
	if !ok {
		return "", errs.Errorf(errs.KindUnknownAgent, op, "no role config registered for agent_type %q", task.AgentType)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.effectiveTimeout())
	defer cancel()

	sel, err := e.router.Select(runCtx, task.AgentType, task.Description, router.DefaultFallbackCount)
	if err != nil {
		return "", errs.Wrap(errs.KindEscalationUnavailable, op, err)
	}

	chain := append([]*router.Profile{sel.Primary}, sel.Fallbacks...)

	allowed := e.allowedTools(cfg)

	var lastErr error
	for _, profile := range chain {
		started := time.Now()
		result, outcome, attemptErr := e.attempt(runCtx, profile, cfg, task, p, artifactContext, allowed)
		e.router.ReportOutcome(runCtx, profile.Model, task.AgentType, outcome)

		task.Attempts = append(task.Attempts, plan.Attempt{
			Model:     profile.Model,
			Outcome:   string(outcome),
			StartedAt: started,
			EndedAt:   time.Now(),
			Error:     errString(attemptErr),
		})

		if attemptErr == nil {
			task.Status = plan.TaskCompleted
			task.Result = result
			return result, nil
		}
		lastErr = attemptErr

		if runCtx.Err() != nil {
			break
		}
	}

	if lastErr != nil && runCtx.Err() == nil && e.escalation != nil && e.allowEscalation() {
		started := time.Now()
		result, outcome, attemptErr := e.attempt(runCtx, e.escalation, cfg, task, p, artifactContext, allowed)
		e.router.ReportOutcome(runCtx, e.escalation.Model, task.AgentType, outcome)

		task.Attempts = append(task.Attempts, plan.Attempt{
			Model:     e.escalation.Model,
			Outcome:   string(outcome),
			StartedAt: started,
			EndedAt:   time.Now(),
			Error:     errString(attemptErr),
		})

		if attemptErr == nil {
			task.Status = plan.TaskCompleted
			task.Result = result
			return result, nil
		}
		lastErr = attemptErr
	}

	if runCtx.Err() != nil {
		task.Status = plan.TaskFailed
		task.Result = "timeout"
		return "", errs.Wrap(errs.KindTimeout, op, runCtx.Err())
	}

	task.Status = plan.TaskFailed
	task.Result = errString(lastErr)
	return "", errs.Wrap(errs.KindEscalationUnavailable, op, lastErr)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// attempt runs the validation-retry loop (spec §4.9 step 4) for a single
// model profile: each failed validation injects feedback into the next
// pass's prompt, up to the role's max_retries.
func (e *Executor) attempt(ctx context.Context, profile *router.Profile, cfg RoleConfig, task *plan.Task, p *plan.Plan, artifactContext string, allowed []*model.ToolDefinition) (string, router.Outcome, error) {
	const op = "executor.attempt"
	feedback := ""

	for retry := 0; retry <= cfg.effectiveMaxRetries(); retry++ {
		result, err := e.runLoop(ctx, profile, cfg, task, p, artifactContext, feedback, allowed)
		if err != nil {
			switch errs.KindOf(err) {
			case errs.KindEmptyResponse:
				return "", router.OutcomeEmptyResponse, err
			default:
				return "", router.OutcomeError, err
			}
		}

		if e.validator == nil || !e.validator.Enabled(task.AgentType) {
			return result, router.OutcomeSuccess, nil
		}

		vr, verr := e.validator.Validate(ctx, task.AgentType, task.Description, result)
		if verr != nil {
			// The validator is an optional safety net; a transport hiccup
			// while checking a candidate must not sink an otherwise good
			// result.
			return result, router.OutcomeSuccess, nil
		}
		if vr.Valid {
			return result, router.OutcomeSuccess, nil
		}
		feedback = vr.Feedback
	}

	return "", router.OutcomeValidationFail, errs.Errorf(errs.KindValidationFailure, op, "validation retries exhausted: %s", feedback)
}

// runLoop implements spec §4.9 step 2: build the prompt, then iterate up
// to loop_limit model turns, dispatching any tool calls sequentially and
// feeding their results back in, until the model produces a final
// non-empty textual answer with no further tool calls, or the loop gives
// up.
func (e *Executor) runLoop(ctx context.Context, profile *router.Profile, cfg RoleConfig, task *plan.Task, p *plan.Plan, artifactContext, feedback string, allowed []*model.ToolDefinition) (string, error) {
	const op = "executor.run_loop"
	messages := buildInitialMessages(cfg, task, p, artifactContext, feedback)
	emptyCount := 0

	for iter := 0; iter < cfg.effectiveLoopLimit(); iter++ {
		raw, err := e.callModel(ctx, profile, messages, allowed)
		if err != nil {
			return "", errs.Wrap(errs.KindTransportError, op, err)
		}

		parsed := toolparser.Parse(raw)
		visible := strings.TrimSpace(parsed.VisibleText)

		if visible == "" && len(parsed.Calls) == 0 {
			emptyCount++
			if emptyCount >= 2 {
				return "", errs.New(errs.KindEmptyResponse, op, "model returned an empty response twice")
			}
			messages = append(messages, assistantMessage(raw))
			continue
		}

		if isCorruptedOutput(visible) {
			return "", errs.New(errs.KindCorruptedOutput, op, "model output does not look like valid text")
		}

		if len(parsed.Calls) == 0 {
			return visible, nil
		}

		messages = append(messages, assistantMessage(raw))
		for _, call := range parsed.Calls {
			result, derr := e.dispatch.Dispatch(ctx, call.Name, call.Arguments)
			if derr != nil {
				result = fmt.Sprintf("error: %s", derr.Error())
			}
			messages = append(messages, userMessage(fmt.Sprintf("Tool %s result:\n%s", call.Name, result)))
		}
	}

	return "", errs.New(errs.KindEmptyResponse, op, "loop limit exhausted without a terminal response")
}

// callModel drives one model turn over the streaming interface, falling
// back to a single non-streaming call for providers that don't support
// it. Thinking deltas are re-wrapped in <think> tags so the Tool Parser's
// existing strip logic handles them uniformly whether a provider reports
// reasoning as a separate stream field or inline as text.
func (e *Executor) callModel(ctx context.Context, profile *router.Profile, messages []*model.Message, allowed []*model.ToolDefinition) (string, error) {
	if err := e.router.AcquireSlot(ctx, profile.Endpoint); err != nil {
		return "", err
	}
	defer e.router.ReleaseSlot(profile.Endpoint)

	req := &model.Request{
		Model:     profile.Model,
		Messages:  messages,
		Tools:     allowed,
		MaxTokens: 4096,
		Stream:    true,
	}

	streamer, err := profile.Client.Stream(ctx, req)
	if err != nil {
		if errors.Is(err, model.ErrStreamingUnsupported) {
			resp, cerr := profile.Client.Complete(ctx, req)
			if cerr != nil {
				return "", cerr
			}
			return responseText(resp), nil
		}
		return "", err
	}
	defer streamer.Close()

	var b strings.Builder
	for {
		chunk, rerr := streamer.Recv()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", rerr
		}
		if chunk.Thinking != "" {
			b.WriteString("<think>")
			b.WriteString(chunk.Thinking)
			b.WriteString("</think>")
		}
		if chunk.Message != nil {
			for _, part := range chunk.Message.Parts {
				if t, ok := part.(model.TextPart); ok {
					b.WriteString(t.Text)
				}
			}
		}
	}
	return b.String(), nil
}

func assistantMessage(text string) *model.Message {
	return &model.Message{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}
}

func userMessage(text string) *model.Message {
	return &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: text}}}
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

// buildInitialMessages renders a dependency-aware, feedback-aware prompt
// (spec §4.9 step 1): system text is the role's prompt; user text
// prepends each dependency's description and result, then the optional
// artifact context, then a validation-feedback notice when retrying, then
// the task's own description.
func buildInitialMessages(cfg RoleConfig, task *plan.Task, p *plan.Plan, artifactContext, feedback string) []*model.Message {
	var b strings.Builder
	for _, depID := range task.Dependencies {
		dep := p.TaskByID(depID)
		if dep == nil {
			continue
		}
		fmt.Fprintf(&b, "Dependency %s: %s\nResult: %s\n\n", dep.ID, dep.Description, dep.Result)
	}
	if artifactContext != "" {
		fmt.Fprintf(&b, "Relevant recent artifacts:\n%s\n\n", artifactContext)
	}
	if feedback != "" {
		fmt.Fprintf(&b, "Previous attempt was rejected because %s; produce a corrected result.\n\n", feedback)
	}
	b.WriteString(task.Description)

	return []*model.Message{
		{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: cfg.SystemPrompt}}},
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: b.String()}}},
	}
}

// isCorruptedOutput flags a response whose visible text, after leading
// whitespace, opens with a non-ASCII rune and has at least half of its first
// 8 runes outside ASCII, the signature of a garbled/mis-decoded model
// response rather than legitimate non-English content (which would still
// be mixed with ordinary punctuation and whitespace at a lower density).
func isCorruptedOutput(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r <= 127 {
		return false
	}
	const window = 8
	total, nonASCII := 0, 0
	for _, rr := range s {
		if total == window {
			break
		}
		total++
		if rr > 127 {
			nonASCII++
		}
	}
	return 2*nonASCII >= total
}

// allowedTools projects the built-in registry and MCP catalog into the
// role's permitted tool set: built-ins are filtered by category (allowed
// minus forbidden), MCP-discovered tools carry no category and are always
// included since they're gated by which servers are configured, not by
// role.
func (e *Executor) allowedTools(cfg RoleConfig) []*model.ToolDefinition {
	forbidden := categorySet(cfg.ForbiddenCategories)
	allowed := categorySet(cfg.AllowedCategories)

	var defs []*model.ToolDefinition
	for _, name := range e.registry.Names() {
		d, _ := e.registry.Get(name)
		if forbidden[d.Category] {
			continue
		}
		if len(allowed) > 0 && !allowed[d.Category] {
			continue
		}
		defs = append(defs, &model.ToolDefinition{Name: "builtin." + d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	if e.mux != nil {
		defs = append(defs, e.mux.ToolDefinitions()...)
	}
	return defs
}

func categorySet(cats []tools.Category) map[tools.Category]bool {
	set := make(map[tools.Category]bool, len(cats))
	for _, c := range cats {
		set[c] = true
	}
	return set
}
