package heater

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brodvik/cabinheat/internal/logging"
)

// Link is the transport surface the queue and coordinator drive. It is
// satisfied by *transport.Session; tests substitute a fake.
type Link interface {
	// Connect establishes the session, bounded by ctx.
	Connect(ctx context.Context) error
	// Disconnect tears the session down, best-effort.
	Disconnect()
	// Write sends one frame; fails when not connected.
	Write(frame []byte) error
	// IsConnected reports whether the session is usable.
	IsConnected() bool
	// Notifications returns the inbound frame channel of the current
	// connection. Closed when the link drops.
	Notifications() <-chan []byte
}

// Queue timing defaults
const (
	// DefaultPacing is the mandatory delay after every processed command.
	// The control box has a shallow input buffer; back-to-back writes
	// reliably make it drop or garble the second frame.
	DefaultPacing = 800 * time.Millisecond

	// DefaultResponseTimeout bounds the wait for a notification after a
	// command that expects one.
	DefaultResponseTimeout = 5 * time.Second

	queueDepth = 16
)

type queueResult struct {
	payload []byte
	err     error
}

type queueRequest struct {
	frame          []byte
	expectResponse bool
	timeout        time.Duration
	done           chan queueResult // buffered, worker never blocks on it
}

// Queue serializes all outbound writes: one worker, FIFO order, exactly
// one command in flight, with a pacing delay after every processed item.
// Responses are correlated as "the next notification received" because
// the protocol carries no correlation token; an unsolicited status push
// can be mis-attributed to a command response, which callers handle by
// classifying the decoded frame.
type Queue struct {
	link   Link
	pacing time.Duration

	requests chan *queueRequest
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewQueue creates a queue over the link and starts its worker.
// pacing <= 0 selects the default.
func NewQueue(link Link, pacing time.Duration) *Queue {
	if pacing <= 0 {
		pacing = DefaultPacing
	}
	q := &Queue{
		link:     link,
		pacing:   pacing,
		requests: make(chan *queueRequest, queueDepth),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.worker()
	return q
}

// Submit enqueues a frame and waits for the worker to process it. When
// expectResponse is set, the result is the next notification payload, or
// an empty payload when none arrives within the timeout; a missing
// response is not an error at this layer. Stopping the queue fails all
// waiting submissions with Cancelled.
func (q *Queue) Submit(ctx context.Context, frame []byte, expectResponse bool, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	req := &queueRequest{
		frame:          frame,
		expectResponse: expectResponse,
		timeout:        timeout,
		done:           make(chan queueResult, 1),
	}

	select {
	case q.requests <- req:
	case <-q.stop:
		return nil, NewCancelledError()
	case <-ctx.Done():
		return nil, ClassifyError(ctx.Err(), "")
	}

	select {
	case res := <-req.done:
		return res.payload, res.err
	case <-q.stop:
		return nil, NewCancelledError()
	case <-ctx.Done():
		return nil, ClassifyError(ctx.Err(), "")
	}
}

// Stop halts the worker and fails all pending submissions with
// Cancelled. Blocks until the worker has exited. Safe to call twice.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	<-q.done
}

func (q *Queue) worker() {
	defer close(q.done)

	for {
		select {
		case <-q.stop:
			q.drain()
			return
		case req := <-q.requests:
			req.done <- q.process(req)

			// Mandatory pacing before the next dequeue.
			select {
			case <-time.After(q.pacing):
			case <-q.stop:
				q.drain()
				return
			}
		}
	}
}

// drain fails everything still queued so no submitter hangs on teardown
func (q *Queue) drain() {
	for {
		select {
		case req := <-q.requests:
			req.done <- queueResult{err: NewCancelledError()}
		default:
			return
		}
	}
}

func (q *Queue) process(req *queueRequest) queueResult {
	if !q.link.IsConnected() {
		return queueResult{err: NewNotConnectedError(nil)}
	}

	notifications := q.link.Notifications()

	// Discard notifications that arrived before this command; a stale
	// push must not be taken for the response.
	discardBuffered(notifications)

	if err := q.link.Write(req.frame); err != nil {
		return queueResult{err: ClassifyError(err, "")}
	}

	if !req.expectResponse {
		return queueResult{}
	}

	timer := time.NewTimer(req.timeout)
	defer timer.Stop()

	select {
	case payload, ok := <-notifications:
		if !ok {
			// Link dropped mid-command; the pending wait resolves now
			// instead of riding out the timeout.
			return queueResult{err: NewNotConnectedError(nil)}
		}
		return queueResult{payload: payload}
	case <-timer.C:
		logging.Debug("No response within timeout",
			zap.Duration("timeout", req.timeout),
			zap.Int("frame_length", len(req.frame)),
		)
		return queueResult{}
	case <-q.stop:
		return queueResult{err: NewCancelledError()}
	}
}

// discardBuffered empties a notification channel without blocking
func discardBuffered(ch <-chan []byte) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
