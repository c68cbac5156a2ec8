package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/internal/errs"
)

var roles = map[string]bool{"CODER": true, "EXECUTOR": true, "WRITER": true, "PLANNER": true}

func taskList(ids ...string) []*Task {
	tasks := make([]*Task, len(ids))
	for i, id := range ids {
		tasks[i] = &Task{ID: id, Description: "do " + id, AgentType: "CODER"}
	}
	return tasks
}

func TestValidateRejectsEmptyPlan(t *testing.T) {
	err := Validate(&Plan{}, roles)
	require.Error(t, err)
	require.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
}

func TestValidateAcceptsTwelveTasks(t *testing.T) {
	tasks := taskList("t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11", "t12")
	err := Validate(&Plan{Tasks: tasks}, roles)
	require.NoError(t, err)
}

func TestValidateRejectsThirteenTasks(t *testing.T) {
	tasks := taskList("t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11", "t12", "t13")
	err := Validate(&Plan{Tasks: tasks}, roles)
	require.Error(t, err)
	require.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
}

func TestValidateRejectsMissingDescription(t *testing.T) {
	p := &Plan{Tasks: []*Task{{ID: "t1", AgentType: "CODER"}}}
	err := Validate(p, roles)
	require.Error(t, err)
}

func TestValidateRejectsUnknownAgentType(t *testing.T) {
	p := &Plan{Tasks: []*Task{{ID: "t1", Description: "x", AgentType: "GHOST"}}}
	err := Validate(p, roles)
	require.Error(t, err)
	require.Equal(t, errs.KindUnknownAgent, errs.KindOf(err))
}

func TestValidateRejectsNonExistentDependency(t *testing.T) {
	p := &Plan{Tasks: []*Task{{ID: "t1", Description: "x", AgentType: "CODER", Dependencies: []string{"ghost"}}}}
	err := Validate(p, roles)
	require.Error(t, err)
	require.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
}

func TestValidateRejectsCycle(t *testing.T) {
	p := &Plan{Tasks: []*Task{
		{ID: "t1", Description: "x", AgentType: "CODER", Dependencies: []string{"t2"}},
		{ID: "t2", Description: "y", AgentType: "CODER", Dependencies: []string{"t1"}},
	}}
	err := Validate(p, roles)
	require.Error(t, err)
	require.Equal(t, errs.KindPlanCycle, errs.KindOf(err))
}

func TestValidateAcceptsDiamondDAG(t *testing.T) {
	p := &Plan{Tasks: []*Task{
		{ID: "t1", Description: "root", AgentType: "CODER"},
		{ID: "t2", Description: "left", AgentType: "CODER", Dependencies: []string{"t1"}},
		{ID: "t3", Description: "right", AgentType: "CODER", Dependencies: []string{"t1"}},
		{ID: "t4", Description: "join", AgentType: "CODER", Dependencies: []string{"t2", "t3"}},
	}}
	require.NoError(t, Validate(p, roles))
}

func TestValidateRejectsDuplicateID(t *testing.T) {
	p := &Plan{Tasks: []*Task{
		{ID: "t1", Description: "a", AgentType: "CODER"},
		{ID: "t1", Description: "b", AgentType: "CODER"},
	}}
	err := Validate(p, roles)
	require.Error(t, err)
}

func TestValidateWithLimitHonorsCustomCeiling(t *testing.T) {
	tasks := taskList("t1", "t2", "t3")
	require.NoError(t, ValidateWithLimit(&Plan{Tasks: tasks}, roles, 3))

	err := ValidateWithLimit(&Plan{Tasks: taskList("t1", "t2", "t3", "t4")}, roles, 3)
	require.Error(t, err)
	require.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
}
