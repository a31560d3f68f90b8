// Package runs arbitrates generation work per subtopic. At most one run of
// a given kind is live for a subtopic at a time; foreground requests can
// preempt background work, and stale runs are fenced by monotonic tokens so
// a superseded run can never commit its result.
package runs

import (
	"context"
	"sync"
)

// Kind distinguishes the generation streams a subtopic can have.
type Kind string

const (
	KindExplanation Kind = "explanation"
	KindQuiz        Kind = "quiz"
)

type key struct {
	subtopic int64
	kind     Kind
}

type reservation struct {
	token      uint64
	cancel     context.CancelFunc
	background bool
}

// Controller tracks in-flight runs and the latest token issued per
// (subtopic, kind) pair.
type Controller struct {
	mu       sync.Mutex
	inflight map[key]*reservation
	tokens   map[key]uint64
	next     uint64
}

func NewController() *Controller {
	return &Controller{
		inflight: make(map[key]*reservation),
		tokens:   make(map[key]uint64),
	}
}

// Run is a live reservation. Results are committed only while the run is
// not stale.
type Run struct {
	c     *Controller
	key   key
	token uint64
}

// Begin reserves the (subtopic, kind) pair. It returns false when the pair
// is already held, unless the caller is foreground and the holder is
// background work that registered no cancel handle; such holders are
// preempted. When the holder has a cancel handle, foreground callers cancel
// it and take over.
func (c *Controller) Begin(subtopic int64, kind Kind, foreground bool, cancel context.CancelFunc) (*Run, bool) {
	k := key{subtopic: subtopic, kind: kind}

	c.mu.Lock()
	defer c.mu.Unlock()

	if holder, ok := c.inflight[k]; ok {
		if !foreground {
			return nil, false
		}
		if holder.cancel != nil {
			holder.cancel()
		} else if !holder.background {
			// A foreground holder without a handle cannot be displaced.
			return nil, false
		}
		// The displaced run keeps its old token and discovers it is stale.
	}

	c.next++
	token := c.next
	c.inflight[k] = &reservation{token: token, cancel: cancel, background: !foreground}
	c.tokens[k] = token

	return &Run{c: c, key: k, token: token}, true
}

// Stale reports whether a newer run has taken over this pair. Stale runs
// must discard their output instead of persisting or emitting it.
func (r *Run) Stale() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.tokens[r.key] != r.token
}

// Release ends the run. Only the current holder clears the reservation;
// a stale run releasing late must not evict its successor.
func (r *Run) Release() {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if holder, ok := r.c.inflight[r.key]; ok && holder.token == r.token {
		delete(r.c.inflight, r.key)
	}
}

// Navigate reacts to the client moving from one subtopic to another: the
// explanation stream of the immediately previous subtopic is cancelled.
// Other background work keeps running.
func (c *Controller) Navigate(active, previous int64) {
	if previous == 0 || previous == active {
		return
	}

	k := key{subtopic: previous, kind: KindExplanation}

	c.mu.Lock()
	defer c.mu.Unlock()

	if holder, ok := c.inflight[k]; ok {
		if holder.cancel != nil {
			holder.cancel()
		}
		// Advance the token so the cancelled run cannot commit.
		c.next++
		c.tokens[k] = c.next
		delete(c.inflight, k)
	}
}
