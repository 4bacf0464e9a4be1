package taskexec

import "sync/atomic"

// Status is the handle a running task reports through. Only the owning task
// writes to it; the executor's progress snapshots are the only readers, so
// both fields are plain atomics rather than a mutex.
type Status struct {
	progress atomic.Int64
	message  atomic.Pointer[string]
}

// Report records that done units of work have completed and optionally
// replaces the phase message. Progress never moves backwards: a value lower
// than the current one is ignored. An empty message leaves the previous one.
func (s *Status) Report(done int64, message string) {
	for {
		cur := s.progress.Load()
		if done <= cur || s.progress.CompareAndSwap(cur, done) {
			break
		}
	}

	if message != "" {
		s.SetMessage(message)
	}
}

// SetMessage replaces the human-readable phase label without touching progress.
func (s *Status) SetMessage(message string) {
	s.message.Store(&message)
}

// Progress returns the highest value passed to Report so far.
func (s *Status) Progress() int64 {
	return s.progress.Load()
}

// Message returns the current phase label, or "" if none was set.
func (s *Status) Message() string {
	if m := s.message.Load(); m != nil {
		return *m
	}

	return ""
}
