// Package traceutil carries a per-resolution diagnostic trace explicitly
// through the resolver and discovery engine, replacing the thread-local
// trace the original implementation relied on.
package traceutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Sink collects diagnostic trace lines for a single resolution attempt.
// It is safe for concurrent use by probes running on separate goroutines.
type Sink struct {
	mu    sync.Mutex
	id    string
	lines []string
}

// NewSink creates a trace sink tagged with a fresh correlation id.
func NewSink() *Sink {
	return &Sink{id: uuid.NewString()}
}

// ID returns the correlation id assigned to this resolution attempt.
func (s *Sink) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Tracef appends a formatted line to the trace. Safe to call on a nil
// sink, in which case it is a no-op.
func (s *Sink) Tracef(format string, args ...interface{}) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, fmt.Sprintf(format, args...))
}

// Lines returns a snapshot of the trace collected so far.
func (s *Sink) Lines() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}
