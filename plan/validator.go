package plan

import (
	"github.com/kairoslabs/delegate/internal/errs"
)

const (
	minTasks = 1
	maxTasks = 12
)

// Validate rejects a plan that isn't safe to schedule: an empty or
// oversized task set, a task missing a required field, a task naming an
// agent_type not in knownRoles, a dependency id with no matching task, or
// a dependency graph that isn't acyclic. Uses the default 12-task ceiling;
// use ValidateWithLimit to apply a delegation.max_tasks config override.
func Validate(p *Plan, knownRoles map[string]bool) error {
	return ValidateWithLimit(p, knownRoles, maxTasks)
}

// ValidateWithLimit is Validate with an explicit task-count ceiling; limit
// <= 0 uses the default (12, per spec §4.8).
func ValidateWithLimit(p *Plan, knownRoles map[string]bool, limit int) error {
	const op = "plan.validate"
	if limit <= 0 {
		limit = maxTasks
	}

	if p == nil || len(p.Tasks) < minTasks {
		return errs.New(errs.KindInvariantViolation, op, "plan has no tasks")
	}
	if len(p.Tasks) > limit {
		return errs.Errorf(errs.KindInvariantViolation, op, "plan has %d tasks, exceeding the %d-task limit", len(p.Tasks), limit)
	}

	ids := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.ID == "" {
			return errs.New(errs.KindInvariantViolation, op, "task missing id")
		}
		if ids[t.ID] {
			return errs.Errorf(errs.KindInvariantViolation, op, "duplicate task id %q", t.ID)
		}
		ids[t.ID] = true
	}

	for _, t := range p.Tasks {
		if t.Description == "" {
			return errs.Errorf(errs.KindInvariantViolation, op, "task %q missing description", t.ID)
		}
		if t.AgentType == "" {
			return errs.Errorf(errs.KindInvariantViolation, op, "task %q missing agent_type", t.ID)
		}
		if knownRoles != nil && !knownRoles[t.AgentType] {
			return errs.Errorf(errs.KindUnknownAgent, op, "task %q names unknown agent_type %q", t.ID, t.AgentType)
		}
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				return errs.Errorf(errs.KindInvariantViolation, op, "task %q depends on non-existent task %q", t.ID, dep)
			}
		}
	}

	return detectCycle(p)
}

// nodeColor marks DFS visitation state for cycle detection: white (unseen),
// grey (on the current recursion stack), black (fully explored).
type nodeColor int

const (
	white nodeColor = iota
	grey
	black
)

func detectCycle(p *Plan) error {
	const op = "plan.validate"
	colors := make(map[string]nodeColor, len(p.Tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch colors[id] {
		case black:
			return nil
		case grey:
			return errs.Errorf(errs.KindPlanCycle, op, "dependency cycle involving task %q", id)
		}
		colors[id] = grey
		t := p.TaskByID(id)
		for _, dep := range t.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		colors[id] = black
		return nil
	}

	for _, t := range p.Tasks {
		if colors[t.ID] == white {
			if err := visit(t.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
