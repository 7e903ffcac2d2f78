package engine

import (
	"sync"

	"github.com/kabili207/smartantenna-go/core/codec"
)

// CommandQueue is the outbound command queue. Commands are returned in the
// order they were pushed, whoever pushed them.
type CommandQueue struct {
	mu     sync.Mutex
	items  []codec.Frame
	signal chan struct{}
}

// NewCommandQueue creates an empty command queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{signal: make(chan struct{}, 1)}
}

// Push appends commands to the queue and wakes the sender. Commands pushed
// together are contiguous.
func (q *CommandQueue) Push(fs ...codec.Frame) {
	if len(fs) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, fs...)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop returns the oldest command, or nil if the queue is empty.
func (q *CommandQueue) Pop() codec.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	f := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return f
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued command and returns how many were dropped.
func (q *CommandQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Signal is readable after a Push. It is level-triggered at most once per
// burst of pushes, so receivers must drain the queue with Pop.
func (q *CommandQueue) Signal() <-chan struct{} {
	return q.signal
}
