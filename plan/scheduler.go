package plan

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kairoslabs/delegate/internal/errs"
)

// Waves partitions a validated plan into dependency waves using Kahn's
// algorithm: wave 0 holds every task with no dependencies, wave k+1 holds
// every task whose dependencies are all satisfied by waves 0..k. Grounded
// on the in-degree bookkeeping of the pack's DAG schedulers (in-degree map
// decremented as each layer completes), adapted here to return whole
// waves up front rather than stream a ready-queue, since the scheduler
// runs each wave to completion before starting the next.
func Waves(p *Plan) ([][]*Task, error) {
	const op = "plan.waves"

	indegree := make(map[string]int, len(p.Tasks))
	dependents := make(map[string][]string, len(p.Tasks))
	for _, t := range p.Tasks {
		indegree[t.ID] = len(t.Dependencies)
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var waves [][]*Task
	remaining := len(p.Tasks)
	frontier := make([]string, 0)
	for _, t := range p.Tasks {
		if indegree[t.ID] == 0 {
			frontier = append(frontier, t.ID)
		}
	}

	for len(frontier) > 0 {
		wave := make([]*Task, 0, len(frontier))
		for _, id := range frontier {
			wave = append(wave, p.TaskByID(id))
		}
		waves = append(waves, wave)
		remaining -= len(wave)

		var next []string
		for _, id := range frontier {
			for _, dependent := range dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		frontier = next
	}

	if remaining > 0 {
		return nil, errs.New(errs.KindPlanCycle, op, "dependency cycle prevents full wave partition")
	}
	return waves, nil
}

// Execute is the function a Scheduler calls to run one task; it returns
// the task's natural-language result, or an error if the task failed.
type Execute func(ctx context.Context, t *Task) (string, error)

// Scheduler runs a validated plan's waves in order, bounding within-wave
// parallelism to Concurrency and applying the dependency-failure cascade:
// a task whose dependency failed or was skipped is itself marked skipped
// without ever calling Execute, while its unaffected siblings in the same
// wave still run to completion. No task is forcibly cancelled because a
// sibling failed; only the dependent chain is short-circuited.
type Scheduler struct {
	Concurrency int
}

// NewScheduler constructs a Scheduler bounding within-wave parallelism to
// concurrency (at least 1).
func NewScheduler(concurrency int) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{Concurrency: concurrency}
}

// Run executes p wave by wave, mutating each task's Status and Result in
// place. It returns an error only for a structural problem (an
// unpartitionable plan); individual task failures are recorded on the
// task itself, not returned as a Run error.
func (s *Scheduler) Run(ctx context.Context, p *Plan, execute Execute) error {
	waves, err := Waves(p)
	if err != nil {
		return err
	}

	for _, wave := range waves {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.Concurrency)

		for _, t := range wave {
			t := t
			g.Go(func() error {
				if p.AnyDependencyUnsuccessful(t) {
					t.Status = TaskSkipped
					t.Result = "skipped (dependency failed)"
					return nil
				}

				t.Status = TaskRunning
				result, err := execute(gctx, t)
				if err != nil {
					t.Status = TaskFailed
					t.Result = err.Error()
					return nil
				}
				t.Status = TaskCompleted
				t.Result = result
				return nil
			})
		}

		// errgroup's context cancels on first returned error, but every
		// task above swallows its own error into Status/Result, so the
		// group never actually cancels its siblings on a task failure.
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
