package core

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrQueueClosed is returned by Submit once the frame loop has stopped.
var ErrQueueClosed = errors.New("config queue closed")

const (
	requestPending int32 = iota
	requestTaken
	requestWithdrawn
)

type configRequest struct {
	apply func(*ParameterStore) error
	done  chan error
	state atomic.Int32
}

// ConfigQueue carries parameter changes from other goroutines to the frame
// loop, which applies them between frames. It keeps the store single-writer.
type ConfigQueue struct {
	requests chan *configRequest
	closed   chan struct{}
}

// NewConfigQueue creates a queue holding up to size pending requests.
func NewConfigQueue(size int) *ConfigQueue {
	return &ConfigQueue{
		requests: make(chan *configRequest, size),
		closed:   make(chan struct{}),
	}
}

// Submit schedules fn on the frame loop and waits for its result. If ctx
// ends or the queue closes first, fn is withdrawn and never runs; once the
// frame loop has started fn, Submit waits for it and reports its result.
// Either way fn has finished or been dropped when Submit returns.
func (q *ConfigQueue) Submit(ctx context.Context, fn func(*ParameterStore) error) error {
	req := &configRequest{apply: fn, done: make(chan error, 1)}
	select {
	case q.requests <- req:
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-q.closed:
		return req.withdraw(ErrQueueClosed)
	case <-ctx.Done():
		return req.withdraw(ctx.Err())
	}
}

// withdraw stops a pending request from running and returns cause. If the
// frame loop already took it, the request's own result is returned instead.
func (r *configRequest) withdraw(cause error) error {
	if r.state.CompareAndSwap(requestPending, requestWithdrawn) {
		return cause
	}
	return <-r.done
}

// Drain applies every pending request to store without blocking. It returns
// the number of requests that failed. Withdrawn requests are skipped.
func (q *ConfigQueue) Drain(store *ParameterStore) (failed int) {
	for {
		select {
		case req := <-q.requests:
			if !req.state.CompareAndSwap(requestPending, requestTaken) {
				continue
			}
			err := req.apply(store)
			if err != nil {
				failed++
			}
			req.done <- err
		default:
			return failed
		}
	}
}

// Close releases every waiting submitter. It is safe to call more than once.
func (q *ConfigQueue) Close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}
