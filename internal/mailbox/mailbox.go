// Package mailbox queues events for a receiver that may come and go.
//
// Events posted while no receiver is attached are held and flushed, in
// order, to whichever receiver attaches next. Each event is handed to
// exactly one receiver.
package mailbox

import "sync"

// Mailbox delivers events on its own goroutine. The zero value is not usable; call New.
type Mailbox[T any] struct {
	mu       sync.Mutex
	pending  []T
	receiver func(T)
	gate     func(T) bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option customizes a Mailbox.
type Option[T any] func(*Mailbox[T])

// WithGate installs a check run right before each delivery.
// Events the gate rejects are discarded.
func WithGate[T any](gate func(T) bool) Option[T] {
	return func(m *Mailbox[T]) { m.gate = gate }
}

// New creates a mailbox and starts its delivery goroutine.
func New[T any](opts ...Option[T]) *Mailbox[T] {
	m := &Mailbox[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.run()
	return m
}

// Post queues ev for delivery.
func (m *Mailbox[T]) Post(ev T) {
	m.mu.Lock()
	m.pending = append(m.pending, ev)
	m.mu.Unlock()
	m.signal()
}

// Attach makes fn the receiver, replacing any previous one.
// Buffered events are flushed to fn.
func (m *Mailbox[T]) Attach(fn func(T)) {
	m.mu.Lock()
	m.receiver = fn
	m.mu.Unlock()
	m.signal()
}

// Detach removes the receiver; events posted afterwards are buffered.
func (m *Mailbox[T]) Detach() {
	m.mu.Lock()
	m.receiver = nil
	m.mu.Unlock()
}

// Drop removes buffered events matching match and returns how many were removed.
func (m *Mailbox[T]) Drop(match func(T) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.pending[:0]
	dropped := 0
	for _, ev := range m.pending {
		if match(ev) {
			dropped++
			continue
		}
		kept = append(kept, ev)
	}
	var zero T
	for i := len(kept); i < len(m.pending); i++ {
		m.pending[i] = zero
	}
	m.pending = kept
	return dropped
}

// Pending returns the number of undelivered events.
func (m *Mailbox[T]) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close stops delivery. Buffered events are discarded.
func (m *Mailbox[T]) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

func (m *Mailbox[T]) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mailbox[T]) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}
		for m.deliverOne() {
		}
	}
}

// deliverOne hands the oldest event to the current receiver.
// The receiver is read per event so a swap mid-flush takes effect immediately.
func (m *Mailbox[T]) deliverOne() bool {
	select {
	case <-m.done:
		return false
	default:
	}

	m.mu.Lock()
	if m.receiver == nil || len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	ev := m.pending[0]
	var zero T
	m.pending[0] = zero
	m.pending = m.pending[1:]
	recv := m.receiver
	m.mu.Unlock()

	if m.gate != nil && !m.gate(ev) {
		return true
	}
	recv(ev)
	return true
}
