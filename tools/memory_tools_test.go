package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/internal/errs"
)

type fakeMemory struct {
	addGoalID      string
	addFeatureID   string
	removedCount   int
	testStatus     string
	lastStatusArgs [3]string
	lastProgress   string
	err            error
}

func (f *fakeMemory) AddGoal(title, description string) (string, error) {
	return f.addGoalID, f.err
}
func (f *fakeMemory) AddFeature(goalID, title, description string) (string, error) {
	return f.addFeatureID, f.err
}
func (f *fakeMemory) UpdateFeatureStatus(featureID, status, notes string) error {
	f.lastStatusArgs = [3]string{featureID, status, notes}
	return f.err
}
func (f *fakeMemory) RemoveGoal(goalID string, confirm bool) (int, error) {
	return f.removedCount, f.err
}
func (f *fakeMemory) MoveFeature(featureID, targetGoalID string) error { return f.err }
func (f *fakeMemory) AddTestResult(featureID, testID string, passed bool, notes string) (string, error) {
	return f.testStatus, f.err
}
func (f *fakeMemory) LogProgress(message string) error {
	f.lastProgress = message
	return f.err
}

func TestAddGoalRequiresTitle(t *testing.T) {
	def := addGoalDef()
	_, err := def.Handler(context.Background(), &Context{Memory: &fakeMemory{}}, map[string]any{})
	require.Error(t, err)
	require.Equal(t, errs.KindToolArgError, errs.KindOf(err))
}

func TestAddGoalDelegatesToMemory(t *testing.T) {
	mem := &fakeMemory{addGoalID: "g1"}
	def := addGoalDef()
	out, err := def.Handler(context.Background(), &Context{Memory: mem}, map[string]any{"title": "ship it"})
	require.NoError(t, err)
	require.Contains(t, out, "g1")
}

func TestUpdateFeatureStatusRejectsMissingMemory(t *testing.T) {
	def := updateFeatureStatusDef()
	_, err := def.Handler(context.Background(), &Context{}, map[string]any{"feature_id": "f1", "status": "completed"})
	require.Error(t, err)
}

func TestUpdateFeatureStatusPropagatesInvariantViolation(t *testing.T) {
	mem := &fakeMemory{err: errs.New(errs.KindInvariantViolation, "memory.update_feature_status", "failing test attached")}
	def := updateFeatureStatusDef()
	_, err := def.Handler(context.Background(), &Context{Memory: mem}, map[string]any{
		"feature_id": "f1", "status": "completed",
	})
	require.Error(t, err)
	require.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
}

func TestRemoveGoalDryRunMessage(t *testing.T) {
	mem := &fakeMemory{removedCount: 3}
	def := removeGoalDef()
	out, err := def.Handler(context.Background(), &Context{Memory: mem}, map[string]any{"goal_id": "g1", "confirm": false})
	require.NoError(t, err)
	require.Contains(t, out, "dry run")
	require.Contains(t, out, fmt.Sprintf("%d feature", 3))
}

func TestAddTestResultReportsDerivedStatus(t *testing.T) {
	mem := &fakeMemory{testStatus: "failed"}
	def := addTestResultDef()
	out, err := def.Handler(context.Background(), &Context{Memory: mem}, map[string]any{
		"feature_id": "f1", "test_id": "t1", "passed": false,
	})
	require.NoError(t, err)
	require.Contains(t, out, "failed")
}

func TestLogProgressRequiresMessage(t *testing.T) {
	def := logProgressDef()
	_, err := def.Handler(context.Background(), &Context{Memory: &fakeMemory{}}, map[string]any{})
	require.Error(t, err)
}
