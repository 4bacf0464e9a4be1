package taskexec

import "sync/atomic"

// State is the lifecycle stage of a single task.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TaskProgress is a point-in-time view of one running task.
type TaskProgress struct {
	Label   string
	Done    int64
	Weight  int64
	Message string
}

// Progress is a point-in-time view of a whole Run. Completed is the sum of
// per-task progress, each clamped to its task's weight, so it never exceeds
// Total and never decreases while weights are fixed.
type Progress struct {
	Label     string
	Completed int64
	Total     int64
	Tasks     int
	Succeeded int
	Failed    int
	Active    []TaskProgress
}

// Finished reports how many tasks have reached a terminal state.
func (p Progress) Finished() int {
	return p.Succeeded + p.Failed
}

// Observer receives progress snapshots while a Run is in flight and once more
// after it completes. Calls are never concurrent.
type Observer interface {
	Observe(p Progress)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(p Progress)

func (f ObserverFunc) Observe(p Progress) { f(p) }

// slot is the executor-side bookkeeping for one task.
type slot struct {
	label  string
	weight atomic.Int64
	state  atomic.Int32
	status Status
}

// board holds every slot of a Run and produces snapshots from them.
type board struct {
	label string
	slots []slot
}

func newBoard[C any](label string, tasks []Task[C]) *board {
	b := &board{label: label, slots: make([]slot, len(tasks))}

	for i := range tasks {
		b.slots[i].label = tasks[i].Label
		b.slots[i].weight.Store(normalizeWeight(tasks[i].Weight))
	}

	return b
}

func (b *board) snapshot() Progress {
	p := Progress{Label: b.label, Tasks: len(b.slots)}

	for i := range b.slots {
		s := &b.slots[i]
		weight := s.weight.Load()
		done := min(s.status.Progress(), weight)

		p.Total += weight
		p.Completed += done

		switch State(s.state.Load()) {
		case StateSucceeded:
			p.Succeeded++
		case StateFailed:
			p.Failed++
		case StateRunning:
			p.Active = append(p.Active, TaskProgress{
				Label:   s.label,
				Done:    done,
				Weight:  weight,
				Message: s.status.Message(),
			})
		case StatePending:
		}
	}

	return p
}

// normalizeWeight coerces non-positive weights to 1 so progress ratios never
// divide by zero.
func normalizeWeight(w int64) int64 {
	if w <= 0 {
		return 1
	}

	return w
}
