// Command delegate runs one query through the delegation engine: a query
// is planned into a task DAG, the DAG is scheduled wave by wave across a
// pool of role-specific executors, and the completed plan is reduced to a
// final answer by the aggregator. See root.go and run.go for the cobra
// wiring and wire.go for how the engine's components are assembled from
// config.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
