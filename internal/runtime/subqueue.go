package runtime

import (
	"sync"
)

// SubQueue is an unbounded FIFO in front of a buffered channel. Producers never
// block on Enqueue; a single dispatcher goroutine moves items to the channel in
// the order they were enqueued.
type SubQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool

	outCh  chan T // consumer reads from this
	paused bool   // gate dispatch until the snapshot has been sent
}

// NewSubQueue returns a paused queue whose output channel has outBuf slots.
func NewSubQueue[T any](outBuf int) *SubQueue[T] {
	sq := &SubQueue[T]{
		outCh:  make(chan T, outBuf),
		paused: true,
	}
	sq.cond = sync.NewCond(&sq.mu)
	go sq.dispatch()
	return sq
}

// Chan is the channel exposed to the consumer. It is closed after Close.
func (sq *SubQueue[T]) Chan() <-chan T { return sq.outCh }

// Enqueue appends to the in-memory queue and wakes the dispatcher. Items
// enqueued after Close are dropped.
func (sq *SubQueue[T]) Enqueue(ev T) {
	sq.mu.Lock()
	if !sq.closed {
		sq.queue = append(sq.queue, ev)
		sq.cond.Signal()
	}
	sq.mu.Unlock()
}

// SendSnapshot pushes an item straight to the consumer channel, bypassing the
// queue. It reports false if the queue is closed or the channel is full; the
// snapshot must fit in the channel buffer while the queue is paused.
func (sq *SubQueue[T]) SendSnapshot(ev T) bool {
	// Holding mu keeps the dispatcher from closing outCh under us.
	sq.mu.Lock()
	defer sq.mu.Unlock()
	if sq.closed {
		return false
	}
	select {
	case sq.outCh <- ev:
		return true
	default:
		return false
	}
}

// SetPaused gates dispatching. Live items keep queueing while paused.
func (sq *SubQueue[T]) SetPaused(v bool) {
	sq.mu.Lock()
	sq.paused = v
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

// Len reports how many items are waiting to be dispatched.
func (sq *SubQueue[T]) Len() int {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return len(sq.queue)
}

// Close stops the dispatcher and closes the out channel. Queued items that
// were not yet dispatched are discarded.
func (sq *SubQueue[T]) Close() {
	sq.mu.Lock()
	sq.closed = true
	sq.queue = nil
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

func (sq *SubQueue[T]) dispatch() {
	for {
		sq.mu.Lock()
		for !sq.closed && (sq.paused || len(sq.queue) == 0) {
			sq.cond.Wait()
		}
		if sq.closed {
			sq.mu.Unlock()
			close(sq.outCh)
			return
		}
		ev := sq.queue[0]
		var zero T
		sq.queue[0] = zero
		sq.queue = sq.queue[1:]
		sq.mu.Unlock()

		sq.outCh <- ev
	}
}
