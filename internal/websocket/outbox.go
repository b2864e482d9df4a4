package websocket

import "sync"

// MaxPending is how many frames a client may fall behind before the hub drops it.
// Replaying a large collection queues one frame per child, so this is far above
// any room size the relay serves.
const MaxPending = 1 << 16

// outbox is a client's outbound queue. Pushing never blocks the hub goroutine;
// writePump drains it in order.
type outbox struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	wake   chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

// push queues a frame. It reports false once the outbox is closed or full.
func (o *outbox) push(frame []byte) bool {
	o.mu.Lock()
	if o.closed || len(o.queue) >= MaxPending {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, frame)
	o.mu.Unlock()
	o.signal()
	return true
}

// close stops accepting frames; frames already queued are still written
func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	o.signal()
}

// drain takes every queued frame and reports whether the outbox is closed
func (o *outbox) drain() ([][]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	batch := o.queue
	o.queue = nil
	return batch, o.closed
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
