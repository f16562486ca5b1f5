package discovery

import (
	"context"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/linkerd/ejb-locate/internal/filter"
)

// ErrInterrupted is raised when a blocked TakeServiceContext call is
// cancelled via its context, mirroring spec.md §5's "restore the
// interrupt flag and raise a dedicated operation-interrupted error".
var ErrInterrupted = errors.New("ejb-locate: operation interrupted while waiting for discovery")

// ServicesQueue is a bounded, multiple-producer/single-consumer queue
// of discovered filter.Record values, plus an aggregated list of probe
// problems (spec.md §4.C).
type ServicesQueue struct {
	records chan filter.Record

	closeOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	problems *multierror.Error
}

// NewServicesQueue creates a queue with the given buffer capacity.
func NewServicesQueue(capacity int) *ServicesQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ServicesQueue{
		records: make(chan filter.Record, capacity),
		done:    make(chan struct{}),
	}
}

// push enqueues a discovered record. It is a no-op once the queue has
// been closed, and also abandons the send if ctx is done, so a
// producer stuck behind a full buffer cannot outlive a caller that has
// stopped consuming (spec.md §8 "Completion-once").
func (q *ServicesQueue) push(ctx context.Context, r filter.Record) {
	select {
	case q.records <- r:
	case <-q.done:
	case <-ctx.Done():
	}
}

// addProblem records a probe failure, accumulated for later retrieval
// via Problems.
func (q *ServicesQueue) addProblem(err error) {
	if err == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.problems = multierror.Append(q.problems, err)
}

// Close is idempotent and releases the consumer: any blocked or future
// TakeService call returns (filter.Record{}, false) once the channel
// drains.
func (q *ServicesQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		close(q.records)
	})
}

// TakeService blocks until either a record is available or the queue
// has been closed and drained, in which case ok is false.
func (q *ServicesQueue) TakeService() (filter.Record, bool) {
	r, ok := <-q.records
	return r, ok
}

// TakeServiceContext behaves like TakeService but returns ErrInterrupted
// if ctx is cancelled before a record arrives or the queue closes.
func (q *ServicesQueue) TakeServiceContext(ctx context.Context) (filter.Record, bool, error) {
	select {
	case r, ok := <-q.records:
		return r, ok, nil
	case <-ctx.Done():
		return filter.Record{}, false, ErrInterrupted
	}
}

// Problems returns the accumulated failures observed during discovery.
// Call after the stream has been fully drained.
func (q *ServicesQueue) Problems() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.problems == nil {
		return nil
	}
	return q.problems.ErrorOrNil()
}
