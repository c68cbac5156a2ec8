// Package plan holds the Planner's output shape, the Plan Validator's
// acceptance rules, and the wave scheduler that runs a validated plan's
// tasks to completion.
package plan

import "time"

// TaskStatus is the closed set of states a task moves through during
// scheduling and execution.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Attempt records one Executor pass over a task: which model answered it
// and what happened.
type Attempt struct {
	Model     string
	Outcome   string
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// Task is one node of a plan's dependency graph, in the shape the Planner
// emits as JSON: {"id","description","agent_type","dependencies"}.
type Task struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	AgentType    string   `json:"agent_type"`
	Dependencies []string `json:"dependencies"`

	Status   TaskStatus `json:"status"`
	Result   string     `json:"result,omitempty"`
	Attempts []Attempt  `json:"attempts,omitempty"`
}

// Plan is the Planner's full output: a set of tasks whose Dependencies
// must form an acyclic graph over task ids present in the same plan.
type Plan struct {
	Tasks     []*Task   `json:"tasks"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskByID returns the task with the given id, or nil if absent.
func (p *Plan) TaskByID(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AnyDependencyUnsuccessful reports whether any of task's dependencies
// ended in a non-completed terminal state, which is the trigger for the
// scheduler's skip cascade.
func (p *Plan) AnyDependencyUnsuccessful(t *Task) bool {
	for _, depID := range t.Dependencies {
		dep := p.TaskByID(depID)
		if dep == nil {
			continue
		}
		if dep.Status == TaskFailed || dep.Status == TaskSkipped {
			return true
		}
	}
	return false
}
