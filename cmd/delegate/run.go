package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kairoslabs/delegate/artifact"
	"github.com/kairoslabs/delegate/executor"
	"github.com/kairoslabs/delegate/internal/config"
	"github.com/kairoslabs/delegate/internal/telemetry"
	"github.com/kairoslabs/delegate/memory"
	"github.com/kairoslabs/delegate/plan"
)

func newRunCmd(configPath *string) *cobra.Command {
	var domain, sessionID, workspace string

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Plan and execute a single query against a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), *configPath, domain, sessionID, workspace, args[0])
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "default", "memory domain the session belongs to")
	cmd.Flags().StringVar(&sessionID, "session", "default", "session id within the domain")
	cmd.Flags().StringVar(&workspace, "workspace", ".", "filesystem root file tools are confined to")
	return cmd
}

func runQuery(ctx context.Context, configPath, domain, sessionID, workspace, query string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("load config: %w", err)}
	}

	zapLogger, err := telemetry.NewProductionLogger(false)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("build logger: %w", err)}
	}
	log := telemetry.NewZapLogger(zapLogger)

	eng, err := buildEngine(cfg, log)
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	sess, err := eng.sessions.Open(ctx, domain, sessionID)
	if errors.Is(err, memory.ErrSessionNotFound) {
		sess, err = eng.sessions.Bootstrap(ctx, domain, sessionID, query, memory.Skeleton{})
	}
	if err != nil {
		return &exitError{code: 4, err: fmt.Errorf("open session: %w", err)}
	}

	if len(cfg.MCPServers) > 0 {
		if err := eng.sessions.StartMCP(ctx, sess, cfg.MCPServers); err != nil {
			return &exitError{code: 3, err: fmt.Errorf("start mcp servers: %w", err)}
		}
	}

	sess.BeginTask()
	defer sess.EndTask()

	memoryContext := renderMemoryContext(sess.Memory.Snapshot())

	p, err := eng.planner.Plan(ctx, query, memoryContext)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("plan query: %w", err)}
	}

	if err := plan.ValidateWithLimit(p, eng.knownRoles, cfg.Delegation.MaxTasks); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("validate plan: %w", err)}
	}

	tctx := sess.ToolContext(workspace, cfg)
	exec := executor.New(eng.registry, tctx, sess.MCP, eng.router, eng.validator, eng.roles)
	if eng.escalation != nil {
		exec.SetEscalationProfile(eng.escalation)
		exec.SetEscalationLimiter(eng.escalationLimiter)
	}

	// No config key governs within-wave parallelism directly (spec §6's
	// delegation block only carries max_tasks, loop_limit_overrides, and
	// plan_mode); waveConcurrency is a fixed, conservative default.
	const waveConcurrency = 4
	scheduler := plan.NewScheduler(waveConcurrency)

	runErr := scheduler.Run(ctx, p, func(taskCtx context.Context, t *plan.Task) (string, error) {
		artifactContext := artifact.RenderContext(sess.Artifacts.Recent(5))
		return exec.Run(taskCtx, t, p, artifactContext)
	})
	if runErr != nil {
		return &exitError{code: 1, err: fmt.Errorf("run plan: %w", runErr)}
	}

	result, err := eng.aggreg.Aggregate(ctx, query, p)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("aggregate result: %w", err)}
	}

	fmt.Println(result.Answer)
	if result.Artifact != nil {
		fmt.Printf("\nartifact:%s %s\n", result.Artifact.Kind, result.Artifact.Title)
	}
	return nil
}

// renderMemoryContext summarizes a session's goal/feature tree into the
// short prior-state digest the Planner folds into its prompt (spec §4.2:
// plans are informed by "relevant prior goals and features").
func renderMemoryContext(doc *memory.Document) string {
	if doc == nil || len(doc.Goals) == 0 {
		return ""
	}
	var b strings.Builder
	for _, g := range doc.Goals {
		fmt.Fprintf(&b, "- [%s] %s\n", g.Status, g.Description)
		for _, f := range g.Features {
			fmt.Fprintf(&b, "  - [%s] %s\n", f.Status, f.Description)
		}
	}
	return b.String()
}
