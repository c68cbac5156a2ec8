package artifact

import (
	"fmt"
	"strings"
)

// RenderContext formats executions as the compact "artifact context"
// block the Task Executor prepends to a task's prompt (spec §4.9 step 1)
// when artifact history is relevant. Empty input renders an empty string
// so callers can pass it straight through without a conditional.
func RenderContext(executions []*Execution) string {
	if len(executions) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range executions {
		fmt.Fprintf(&b, "- [%s] %s via %s: %s\n", e.ArtifactKind, e.ArtifactTitle, e.ToolName, e.Summary)
	}
	return b.String()
}
