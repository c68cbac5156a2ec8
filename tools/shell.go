package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/kairoslabs/delegate/internal/errs"
)

const (
	defaultShellTimeout = 30 * time.Second
	maxShellTimeout     = 120 * time.Second
)

func shellDefinitions() []*Definition {
	return []*Definition{
		bashDef(),
		pythonDef(),
		pytestDef(),
	}
}

func bashDef() *Definition {
	return &Definition{
		Name:        "bash",
		Description: "Run a shell command in the workspace root and return combined stdout+stderr.",
		Category:    CategoryShell,
		InputSchema: commandSchema(),
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)
			if command == "" {
				return "", errs.New(errs.KindToolArgError, "tools.bash", "command is required")
			}
			return runCommand(ctx, tctx, "sh", []string{"-c", command}, shellTimeout(args))
		},
	}
}

func pythonDef() *Definition {
	return &Definition{
		Name:        "run_python",
		Description: "Run a Python script via `python3 -c` and return combined stdout+stderr.",
		Category:    CategoryPython,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code":    map[string]any{"type": "string", "description": "Python source to execute"},
				"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default 30, max 120)"},
			},
			"required": []string{"code"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			code, _ := args["code"].(string)
			if code == "" {
				return "", errs.New(errs.KindToolArgError, "tools.run_python", "code is required")
			}
			return runCommand(ctx, tctx, "python3", []string{"-c", code}, shellTimeout(args))
		},
	}
}

func pytestDef() *Definition {
	return &Definition{
		Name:        "run_pytest",
		Description: "Run pytest against the given target (path or node id) and return its output.",
		Category:    CategoryPython,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target":  map[string]any{"type": "string", "description": "Path or node id to run, default entire suite"},
				"timeout": map[string]any{"type": "integer"},
			},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			target, _ := args["target"].(string)
			cmdArgs := []string{"-m", "pytest", "-q"}
			if target != "" {
				cmdArgs = append(cmdArgs, target)
			}
			return runCommand(ctx, tctx, "python3", cmdArgs, shellTimeout(args))
		},
	}
}

func commandSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string"},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default 30, max 120)"},
		},
		"required": []string{"command"},
	}
}

func shellTimeout(args map[string]any) time.Duration {
	if v, ok := numberArg(args["timeout"]); ok && v > 0 {
		d := time.Duration(v) * time.Second
		if d > maxShellTimeout {
			return maxShellTimeout
		}
		return d
	}
	return defaultShellTimeout
}

func runCommand(ctx context.Context, tctx *Context, name string, args []string, timeout time.Duration) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	if tctx != nil && tctx.WorkspaceRoot != "" {
		cmd.Dir = tctx.WorkspaceRoot
	}

	out, err := cmd.CombinedOutput()
	result := string(out)
	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return result + fmt.Sprintf("\n(command timed out after %s)", timeout), nil
		}
		return result + fmt.Sprintf("\n(exit code: %s)", exitCodeOf(err)), nil
	}
	return result, nil
}

func exitCodeOf(err error) string {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return strconv.Itoa(exitErr.ExitCode())
	}
	return err.Error()
}
