package tools

import (
	"context"
	"fmt"

	"github.com/kairoslabs/delegate/internal/errs"
)

// MemoryMutator is the only path by which a tool handler may change domain
// memory (spec §4.4). It is a narrow interface — not the full memory.Store
// type — so this package never imports memory; memory.Store satisfies it
// structurally.
type MemoryMutator interface {
	AddGoal(title, description string) (id string, err error)
	AddFeature(goalID, title, description string) (id string, err error)
	UpdateFeatureStatus(featureID, status, notes string) error
	RemoveGoal(goalID string, confirm bool) (removedFeatures int, err error)
	MoveFeature(featureID, targetGoalID string) error
	AddTestResult(featureID, testID string, passed bool, notes string) (newStatus string, err error)
	LogProgress(message string) error
}

func memoryDefinitions() []*Definition {
	return []*Definition{
		addGoalDef(),
		addFeatureDef(),
		updateFeatureStatusDef(),
		removeGoalDef(),
		moveFeatureDef(),
		addTestResultDef(),
		logProgressDef(),
	}
}

func requireMemory(tctx *Context, op string) (MemoryMutator, error) {
	if tctx == nil || tctx.Memory == nil {
		return nil, errs.Errorf(errs.KindToolArgError, op, "no memory store bound to this session")
	}
	return tctx.Memory, nil
}

func addGoalDef() *Definition {
	return &Definition{
		Name:        "add_goal",
		Description: "Add a new goal to domain memory.",
		Category:    CategoryMemory,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"title"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			mem, err := requireMemory(tctx, "tools.add_goal")
			if err != nil {
				return "", err
			}
			title, _ := args["title"].(string)
			if title == "" {
				return "", errs.New(errs.KindToolArgError, "tools.add_goal", "title is required")
			}
			desc, _ := args["description"].(string)
			id, err := mem.AddGoal(title, desc)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("added goal %s: %s", id, title), nil
		},
	}
}

func addFeatureDef() *Definition {
	return &Definition{
		Name:        "add_feature",
		Description: "Add a new feature under an existing goal to domain memory.",
		Category:    CategoryMemory,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"goal_id":     map[string]any{"type": "string"},
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"goal_id", "title"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			mem, err := requireMemory(tctx, "tools.add_feature")
			if err != nil {
				return "", err
			}
			goalID, _ := args["goal_id"].(string)
			title, _ := args["title"].(string)
			if goalID == "" || title == "" {
				return "", errs.New(errs.KindToolArgError, "tools.add_feature", "goal_id and title are required")
			}
			desc, _ := args["description"].(string)
			id, err := mem.AddFeature(goalID, title, desc)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("added feature %s: %s", id, title), nil
		},
	}
}

func updateFeatureStatusDef() *Definition {
	return &Definition{
		Name:        "update_feature_status",
		Description: "Transition a feature's status. Rejected if marking completed while an attached test result is failing.",
		Category:    CategoryMemory,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"feature_id": map[string]any{"type": "string"},
				"status":     map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed", "failed"}},
				"notes":      map[string]any{"type": "string"},
			},
			"required": []string{"feature_id", "status"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			mem, err := requireMemory(tctx, "tools.update_feature_status")
			if err != nil {
				return "", err
			}
			fid, _ := args["feature_id"].(string)
			status, _ := args["status"].(string)
			if fid == "" || status == "" {
				return "", errs.New(errs.KindToolArgError, "tools.update_feature_status", "feature_id and status are required")
			}
			notes, _ := args["notes"].(string)
			if err := mem.UpdateFeatureStatus(fid, status, notes); err != nil {
				return "", err
			}
			return fmt.Sprintf("feature %s -> %s", fid, status), nil
		},
	}
}

func removeGoalDef() *Definition {
	return &Definition{
		Name:        "remove_goal",
		Description: "Remove a goal and cascade-delete its features. With confirm=false, returns a dry-run count instead of mutating anything.",
		Category:    CategoryMemory,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"goal_id": map[string]any{"type": "string"},
				"confirm": map[string]any{"type": "boolean", "description": "Must be true to actually remove; false returns a dry-run count"},
			},
			"required": []string{"goal_id"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			mem, err := requireMemory(tctx, "tools.remove_goal")
			if err != nil {
				return "", err
			}
			goalID, _ := args["goal_id"].(string)
			if goalID == "" {
				return "", errs.New(errs.KindToolArgError, "tools.remove_goal", "goal_id is required")
			}
			confirm, _ := args["confirm"].(bool)
			count, err := mem.RemoveGoal(goalID, confirm)
			if err != nil {
				return "", err
			}
			if !confirm {
				return fmt.Sprintf("dry run: removing goal %s would cascade-delete %d feature(s)", goalID, count), nil
			}
			return fmt.Sprintf("removed goal %s and %d feature(s)", goalID, count), nil
		},
	}
}

func moveFeatureDef() *Definition {
	return &Definition{
		Name:        "move_feature",
		Description: "Re-parent a feature under a different goal.",
		Category:    CategoryMemory,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"feature_id":     map[string]any{"type": "string"},
				"target_goal_id": map[string]any{"type": "string"},
			},
			"required": []string{"feature_id", "target_goal_id"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			mem, err := requireMemory(tctx, "tools.move_feature")
			if err != nil {
				return "", err
			}
			fid, _ := args["feature_id"].(string)
			target, _ := args["target_goal_id"].(string)
			if fid == "" || target == "" {
				return "", errs.New(errs.KindToolArgError, "tools.move_feature", "feature_id and target_goal_id are required")
			}
			if err := mem.MoveFeature(fid, target); err != nil {
				return "", err
			}
			return fmt.Sprintf("moved feature %s to goal %s", fid, target), nil
		},
	}
}

func addTestResultDef() *Definition {
	return &Definition{
		Name:        "add_test_result",
		Description: "Record a test result against a feature; the feature's status is derived from the accumulated results, not set directly.",
		Category:    CategoryMemory,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"feature_id": map[string]any{"type": "string"},
				"test_id":    map[string]any{"type": "string"},
				"passed":     map[string]any{"type": "boolean"},
				"notes":      map[string]any{"type": "string"},
			},
			"required": []string{"feature_id", "test_id", "passed"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			mem, err := requireMemory(tctx, "tools.add_test_result")
			if err != nil {
				return "", err
			}
			fid, _ := args["feature_id"].(string)
			testID, _ := args["test_id"].(string)
			if fid == "" || testID == "" {
				return "", errs.New(errs.KindToolArgError, "tools.add_test_result", "feature_id and test_id are required")
			}
			passed, _ := args["passed"].(bool)
			notes, _ := args["notes"].(string)
			newStatus, err := mem.AddTestResult(fid, testID, passed, notes)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("recorded test %s for feature %s; status is now %s", testID, fid, newStatus), nil
		},
	}
}

func logProgressDef() *Definition {
	return &Definition{
		Name:        "log_progress",
		Description: "Append a free-text line to the session's progress log.",
		Category:    CategoryMemory,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
			"required":   []string{"message"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			mem, err := requireMemory(tctx, "tools.log_progress")
			if err != nil {
				return "", err
			}
			message, _ := args["message"].(string)
			if message == "" {
				return "", errs.New(errs.KindToolArgError, "tools.log_progress", "message is required")
			}
			if err := mem.LogProgress(message); err != nil {
				return "", err
			}
			return "logged", nil
		},
	}
}
