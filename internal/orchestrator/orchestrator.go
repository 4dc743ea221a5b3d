// Package orchestrator implements the parallel tool-task fan-out used by
// the exec workflow's load-all step in internal/execflow (component C13);
// the CLI's install-all installs tools one at a time without it. One task per tool,
// unbounded concurrency across tasks, serial execution within a task.
//
// Grounded on the teacher's internal/engine.Engine.executeControlsParallel,
// which runs a level's controls concurrently via errgroup.Group and
// deliberately has each goroutine return nil — collecting its result into a
// shared slice instead of propagating the error through the group — so one
// control's failure never cancels its siblings. Spec.md §4.13/§5 asks for
// the same shape at the tool-task level: "the first task to fail causes its
// error to surface after all tasks settle; partial successes are retained."
// RunAll reproduces that by letting golang.org/x/sync/errgroup's zero-value
// Group track the first error for the return value, while every task's
// individual outcome — success or failure — is recorded regardless.
package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TaskFunc is one tool's unit of work (e.g. the install pipeline, or the
// resolve/detect/install/locate sequence of an exec-workflow tool). It
// receives the ambient context for cancellation and suspension points only;
// any per-tool state (a cloned session handle, a plugin container) is
// closed over by the caller when constructing the Task.
type TaskFunc func(ctx context.Context) error

// Task pairs one tool's unit of work with the id used to report its
// outcome.
type Task struct {
	ToolID string
	Run    TaskFunc
}

// Outcome is one task's settled result.
type Outcome struct {
	ToolID string
	TaskID string // correlation id for this run's logs, assigned by RunAll
	Err    error
}

// RunAll runs every task concurrently with no concurrency limit (per
// spec.md §4.13's "unbounded concurrency"), waits for all of them to
// settle — a task's failure never cancels its siblings, since no derived
// context is ever handed to the tasks — and returns every task's Outcome
// alongside the first error encountered, for the caller to propagate after
// reporting which tools installed successfully.
//
// Passing a cancellable ctx still lets a parent Ctrl-C reach every
// in-flight task simultaneously (spec.md §5's "parent cancellation signals
// all in-flight tasks"); RunAll itself never cancels ctx on a sibling's
// behalf.
func RunAll(ctx context.Context, tasks []Task) ([]Outcome, error) {
	outcomes := make([]Outcome, len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		i, task := i, task
		taskID := uuid.NewString()
		g.Go(func() error {
			err := task.Run(ctx)
			outcomes[i] = Outcome{ToolID: task.ToolID, TaskID: taskID, Err: err}
			return err
		})
	}

	err := g.Wait()
	return outcomes, err
}

// Succeeded and Failed partition outcomes for CLI summary reporting (e.g.
// "installed 3 of 4 tools; zig failed: ...").
func Succeeded(outcomes []Outcome) []string {
	var ids []string
	for _, o := range outcomes {
		if o.Err == nil {
			ids = append(ids, o.ToolID)
		}
	}
	return ids
}

func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
