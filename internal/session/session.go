// Package session holds the unit-of-work context for one build invocation.
// The session is created once, passed by reference into every phase and
// checkpoint call, and destroyed when the pipeline terminates. There are no
// process-wide singletons: everything a phase needs travels with the session.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/cleanup"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/common"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/report"
)

// BuildSession is the context for one build run. The cancel flag is the only
// field written from another goroutine (the interrupt listener); everything
// else is touched from the pipeline goroutine only.
type BuildSession struct {
	ID       uuid.UUID
	Registry *cleanup.Registry
	Sink     report.Sink

	cancel atomic.Int32

	mu        sync.Mutex
	completed []string
}

// New creates a session owning the given registry. A nil sink is replaced
// with a discarding one.
func New(registry *cleanup.Registry, sink report.Sink) *BuildSession {
	if sink == nil {
		sink = report.NullSink{}
	}
	return &BuildSession{
		ID:       uuid.New(),
		Registry: registry,
		Sink:     sink,
	}
}

// CancelState returns the current cancellation state.
func (s *BuildSession) CancelState() common.CancelState {
	return common.CancelState(s.cancel.Load())
}

// RequestCancel flags the session for cancellation. Safe to call from a
// signal-handler goroutine; the request takes effect at the next checkpoint.
// Calling it after cancellation has already been honored is a no-op.
func (s *BuildSession) RequestCancel() {
	s.cancel.CompareAndSwap(int32(common.CancelRunning), int32(common.CancelRequested))
}

// CancelRequested reports whether cancellation has been requested or honored.
func (s *BuildSession) CancelRequested() bool {
	return s.CancelState() != common.CancelRunning
}

// MarkCancelled records that a checkpoint honored the cancellation request.
func (s *BuildSession) MarkCancelled() {
	s.cancel.Store(int32(common.CancelCancelled))
}

// LogCompleted appends a phase name to the session's completion log.
func (s *BuildSession) LogCompleted(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, phase)
}

// CompletedPhases returns the names of all completed phases in order.
func (s *BuildSession) CompletedPhases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed := make([]string, len(s.completed))
	copy(completed, s.completed)
	return completed
}
