// Package taskexec runs a list of weighted tasks with bounded concurrency,
// collecting a positional result per task and exposing aggregate progress.
//
// Every task goes through two phases inside its worker slot: a prepare
// function computes the task's real weight (byte size, content length, ...)
// and returns the execution function, which then reports progress through a
// Status handle. A failing task never aborts its siblings.
package taskexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultRefresh is how often observers receive snapshots during a Run.
const defaultRefresh = 500 * time.Millisecond

// Unbounded can be passed as the concurrency limit to run every task at once.
const Unbounded = 0

// ErrPanic wraps a value recovered from a panicking task.
var ErrPanic = errors.New("taskexec: task panicked")

// ErrNoExecute is returned when a prepare function succeeds without
// returning an execution function.
var ErrNoExecute = errors.New("taskexec: prepare returned no execute function")

// Task is one unit of work submitted to Run. Weight is the caller's estimate
// of the task's size; prepare may replace it once the real size is known.
type Task[C any] struct {
	Label   string
	Context C
	Weight  int64
}

// ExecuteFunc performs the work of a prepared task.
type ExecuteFunc[T any] func(ctx context.Context, status *Status) (T, error)

// PrepareFunc is invoked once per task inside its worker slot, before
// execution. It returns the task's weight and the function that does the work.
// status may be used to publish a phase message while preparing.
type PrepareFunc[C, T any] func(ctx context.Context, task Task[C], status *Status) (int64, ExecuteFunc[T], error)

// Result is the outcome of one task. Results are returned in input order.
type Result[T any] struct {
	Label string
	Value T
	Err   error
}

// Executor holds the concurrency bound and progress plumbing shared by every
// Run. It runs one task list at a time.
type Executor struct {
	limit    int
	observer Observer
	logger   *slog.Logger

	// refresh is the observer tick interval. Tests shorten it.
	refresh time.Duration

	current atomic.Pointer[board]
}

// NewExecutor creates an executor. limit == 1 serializes tasks (use this for
// spinning disks), limit > 1 bounds parallelism, and limit <= 0 is unbounded.
// observer may be nil.
func NewExecutor(limit int, observer Observer, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		limit:    limit,
		observer: observer,
		logger:   logger,
		refresh:  defaultRefresh,
	}
}

// Limit returns the configured concurrency bound (<= 0 means unbounded).
func (e *Executor) Limit() int {
	return e.limit
}

// Snapshot returns the progress of the Run currently in flight, or of the
// most recent one if none is running.
func (e *Executor) Snapshot() Progress {
	b := e.current.Load()
	if b == nil {
		return Progress{}
	}

	return b.snapshot()
}

// Run executes every task and returns one Result per task, in input order.
// Failures (including panics) are recorded per task; all tasks run to
// completion regardless of sibling failures.
func Run[C, T any](
	ctx context.Context,
	e *Executor,
	label string,
	tasks []Task[C],
	prepare PrepareFunc[C, T],
) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}

	b := newBoard(label, tasks)
	e.current.Store(b)

	e.logger.Info("running tasks",
		slog.String("label", label),
		slog.Int("count", len(tasks)),
		slog.Int("limit", e.limit),
	)

	stopObserver := e.observe(b)

	// A plain Group, not WithContext: one failure must not cancel siblings.
	var g errgroup.Group
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}

	for i := range tasks {
		g.Go(func() error {
			results[i] = runTask(ctx, e.logger, &b.slots[i], tasks[i], prepare)
			return nil
		})
	}

	_ = g.Wait()

	stopObserver()

	final := b.snapshot()
	if e.observer != nil {
		e.observer.Observe(final)
	}

	e.logger.Info("tasks complete",
		slog.String("label", label),
		slog.Int("succeeded", final.Succeeded),
		slog.Int("failed", final.Failed),
	)

	return results
}

// runTask drives a single task through prepare and execute, converting
// panics into errors so one bad task cannot crash the run.
func runTask[C, T any](
	ctx context.Context,
	logger *slog.Logger,
	s *slot,
	task Task[C],
	prepare PrepareFunc[C, T],
) (res Result[T]) {
	res.Label = task.Label
	s.state.Store(int32(StateRunning))

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}

		if res.Err != nil {
			logger.Warn("task failed",
				slog.String("task", task.Label),
				slog.String("error", res.Err.Error()),
			)
			s.state.Store(int32(StateFailed))
		} else {
			s.state.Store(int32(StateSucceeded))
		}

		// A finished task counts as fully done for aggregate progress.
		s.status.Report(s.weight.Load(), "")
	}()

	weight, execute, err := prepare(ctx, task, &s.status)
	if err != nil {
		res.Err = err
		return res
	}

	if execute == nil {
		res.Err = ErrNoExecute
		return res
	}

	s.weight.Store(normalizeWeight(weight))

	res.Value, res.Err = execute(ctx, &s.status)

	return res
}

// observe starts the periodic snapshot goroutine and returns a function that
// stops it and waits for it to exit.
func (e *Executor) observe(b *board) func() {
	if e.observer == nil {
		return func() {}
	}

	done := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(e.refresh)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				e.observer.Observe(b.snapshot())
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// Failures counts the results that carry an error.
func Failures[T any](results []Result[T]) int {
	n := 0

	for i := range results {
		if results[i].Err != nil {
			n++
		}
	}

	return n
}

// Errors returns the non-nil errors of results, each prefixed with its label.
func Errors[T any](results []Result[T]) []error {
	var errs []error

	for i := range results {
		if results[i].Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", results[i].Label, results[i].Err))
		}
	}

	return errs
}
