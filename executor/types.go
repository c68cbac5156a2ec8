package executor

import (
	"time"

	"github.com/kairoslabs/delegate/tools"
)

const (
	defaultTaskTimeout = 300 * time.Second
	defaultLoopLimit   = 3
	defaultMaxRetries  = 3
)

// RoleConfig is a role's executor policy: its system prompt, how many
// model turns it gets per attempt, how many validation-driven retries it
// gets, its overall deadline, and which built-in tool categories it may
// use.
type RoleConfig struct {
	Role         string
	SystemPrompt string

	LoopLimit  int
	MaxRetries int
	Timeout    time.Duration

	AllowedCategories   []tools.Category
	ForbiddenCategories []tools.Category
}

func (c RoleConfig) effectiveLoopLimit() int {
	if c.LoopLimit <= 0 {
		return defaultLoopLimit
	}
	return c.LoopLimit
}

func (c RoleConfig) effectiveMaxRetries() int {
	if c.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return c.MaxRetries
}

func (c RoleConfig) effectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTaskTimeout
	}
	return c.Timeout
}

// DefaultRoleConfigs returns the built-in policy for the four agent roles
// named throughout this engine (the same role set validator.DefaultRubrics
// judges): the tool categories each role may reach for and a system prompt
// describing its job. Callers that configure additional roles via
// agentModels should register a RoleConfig of their own alongside these.
func DefaultRoleConfigs() map[string]RoleConfig {
	return map[string]RoleConfig{
		"CODER": {
			Role:              "CODER",
			SystemPrompt:      "You are the CODER role. Write, read, and modify source files to complete the assigned task. Use the available file and patch tools rather than describing changes in prose.",
			AllowedCategories: []tools.Category{tools.CategoryFilesystemRead, tools.CategoryFilesystemWrite, tools.CategoryPython},
		},
		"EXECUTOR": {
			Role:              "EXECUTOR",
			SystemPrompt:      "You are the EXECUTOR role. Run shell commands to complete the assigned task and report their actual output, not a prediction of it.",
			AllowedCategories: []tools.Category{tools.CategoryShell, tools.CategoryFilesystemRead},
		},
		"WRITER": {
			Role:              "WRITER",
			SystemPrompt:      "You are the WRITER role. Produce the requested document or content and write it to the target file using the available file tools.",
			AllowedCategories: []tools.Category{tools.CategoryFilesystemRead, tools.CategoryFilesystemWrite},
		},
		"PLANNER": {
			Role:                "PLANNER",
			SystemPrompt:        "You are the PLANNER role, invoked here only for planning sub-tasks nested inside a larger plan. Decompose the assigned task and report your reasoning; you do not call tools.",
			ForbiddenCategories: []tools.Category{tools.CategoryShell, tools.CategoryFilesystemWrite, tools.CategoryPython, tools.CategoryConfig, tools.CategoryMemory},
		},
	}
}
