package apiclient

import (
	"context"
	"errors"
	"sync"
)

// errNotWaiter is returned when the refresh leader tries to wait on itself.
var errNotWaiter = errors.New("apiclient: leader ticket cannot wait for its own refresh")

// RefreshCoordinator guarantees at most one token refresh is outstanding.
//
// The first caller to AcquireOrQueue while idle becomes the leader and must
// eventually call Settle. Everyone arriving before Settle is queued and
// receives the leader's outcome, in the order they arrived.
type RefreshCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	queue      []*waiter
}

// RefreshResult is what a queued waiter receives. Order is the 1-based
// position in which the waiter was settled.
type RefreshResult struct {
	Token string
	Err   error
	Order int
}

type waiter struct {
	done chan RefreshResult
}

// Ticket is handed out by AcquireOrQueue.
type Ticket struct {
	w *waiter
}

// NewRefreshCoordinator returns an idle coordinator.
func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{}
}

// AcquireOrQueue moves the coordinator to Refreshing and returns a leader
// ticket, or, when a refresh is already running, enqueues the caller.
func (c *RefreshCoordinator) AcquireOrQueue() Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.refreshing {
		c.refreshing = true
		return Ticket{}
	}

	// Buffered so Settle never blocks on a waiter that stopped listening
	w := &waiter{done: make(chan RefreshResult, 1)}
	c.queue = append(c.queue, w)
	return Ticket{w: w}
}

// Settle publishes the outcome of the refresh to every queued waiter in FIFO
// order and returns the coordinator to Idle. It returns how many waiters were
// settled. Settling an idle coordinator is a no-op.
func (c *RefreshCoordinator) Settle(token string, err error) int {
	c.mu.Lock()
	queue := c.queue
	wasRefreshing := c.refreshing
	c.queue = nil
	c.refreshing = false
	c.mu.Unlock()

	if !wasRefreshing {
		return 0
	}

	for i, w := range queue {
		if err != nil {
			w.done <- RefreshResult{Err: err, Order: i + 1}
			continue
		}
		w.done <- RefreshResult{Token: token, Order: i + 1}
	}

	return len(queue)
}

// InFlight reports whether a refresh is currently outstanding.
func (c *RefreshCoordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of queued waiters.
func (c *RefreshCoordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Leader reports whether this ticket owns the refresh.
func (t Ticket) Leader() bool { return t.w == nil }

// Wait blocks until the refresh settles or ctx is done. A waiter abandoned by
// its context stays queued and its result is discarded.
func (t Ticket) Wait(ctx context.Context) (RefreshResult, error) {
	if t.Leader() {
		return RefreshResult{}, errNotWaiter
	}

	select {
	case res := <-t.w.done:
		return res, res.Err
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	}
}
