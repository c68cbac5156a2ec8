package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// exitError pairs an error with the process exit code it should produce
// (spec §6): 2 plan validation failure, 3 unrecoverable MCP multiplexer
// failure at startup, 4 memory storage I/O failure, 1 anything else.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if e, ok := err.(*exitError); ok {
		return e.code
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "delegate",
		Short: "Plan, schedule, and execute a query through the delegation engine",
		Long: `delegate decomposes a query into a task DAG, runs it wave by wave across a
pool of role-specific model-driven executors with MCP and built-in tool
access, and reduces the completed plan to a final answer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "delegate.yaml", "path to the engine's YAML config file")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	root.AddCommand(newRunCmd(&configPath))
	return root
}
