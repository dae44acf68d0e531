// Package countdown implements the quiz time limit.
package countdown

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bird-quiz-service/internal/mailbox"
)

// State of the timer.
type State string

const (
	Idle      State = "IDLE"
	Running   State = "RUNNING"
	Paused    State = "PAUSED"
	Finished  State = "FINISHED"
	Cancelled State = "CANCELLED"
)

// Listener receives ticks and the final expiry.
type Listener interface {
	OnTick(remaining time.Duration)
	OnFinish()
}

type event struct {
	gen       uint64
	finish    bool
	remaining time.Duration
}

// Timer counts down a fixed duration, ticking at a fixed interval.
// It can be paused and resumed; events are buffered while no Listener is attached.
type Timer struct {
	logger zerolog.Logger
	box    *mailbox.Mailbox[event]

	mu        sync.Mutex
	gen       uint64
	state     State
	interval  time.Duration
	remaining time.Duration
	deadline  time.Time
	stop      chan struct{}
}

// New returns an idle timer.
func New(logger zerolog.Logger) *Timer {
	t := &Timer{logger: logger, state: Idle}
	t.box = mailbox.New(mailbox.WithGate(func(ev event) bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		return ev.gen == t.gen
	}))
	return t
}

// Start (re)loads the timer with total and starts it. A non-positive
// interval defaults to one second.
func (t *Timer) Start(total, interval time.Duration) {
	t.load(total, interval, true)
}

// Load sets the timer up like Start but leaves it Paused until Resume.
func (t *Timer) Load(total, interval time.Duration) {
	t.load(total, interval, false)
}

func (t *Timer) load(total, interval time.Duration, run bool) {
	if interval <= 0 {
		interval = time.Second
	}
	t.mu.Lock()
	t.haltLocked()
	t.gen++
	t.interval = interval
	t.remaining = max(0, total)
	if run {
		t.runLocked()
	} else {
		t.state = Paused
	}
	gen := t.gen
	t.mu.Unlock()
	t.purge(gen)
}

// Pause freezes the remaining time. Only a running timer can be paused.
func (t *Timer) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return false
	}
	t.remaining = max(0, time.Until(t.deadline))
	t.haltLocked()
	t.state = Paused
	t.logger.Debug().Dur("remaining", t.remaining).Msg("countdown paused")
	return true
}

// Resume continues a paused timer.
func (t *Timer) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Paused {
		return false
	}
	t.runLocked()
	return true
}

// Cancel stops the timer for good; queued ticks are discarded.
func (t *Timer) Cancel() {
	t.mu.Lock()
	if t.state == Running || t.state == Paused {
		t.remaining = t.remainingLocked()
	}
	t.haltLocked()
	t.gen++
	t.state = Cancelled
	gen := t.gen
	t.mu.Unlock()
	t.purge(gen)
}

// State returns the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the time left.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

// Attach routes events to l, flushing buffered ones.
func (t *Timer) Attach(l Listener) {
	t.box.Attach(func(ev event) {
		if ev.finish {
			l.OnFinish()
			return
		}
		l.OnTick(ev.remaining)
	})
}

// Detach buffers events until the next Attach.
func (t *Timer) Detach() {
	t.box.Detach()
}

// Close cancels the timer and stops delivery.
func (t *Timer) Close() {
	t.Cancel()
	t.box.Close()
}

func (t *Timer) remainingLocked() time.Duration {
	if t.state == Running {
		return max(0, time.Until(t.deadline))
	}
	return t.remaining
}

func (t *Timer) runLocked() {
	t.state = Running
	t.deadline = time.Now().Add(t.remaining)
	stop := make(chan struct{})
	t.stop = stop
	go t.loop(t.gen, t.interval, t.deadline, stop)
}

func (t *Timer) haltLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// purge drops queued events of earlier runs.
func (t *Timer) purge(gen uint64) {
	t.box.Drop(func(ev event) bool { return ev.gen != gen })
}

func (t *Timer) loop(gen uint64, interval time.Duration, deadline time.Time, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	expire := time.NewTimer(time.Until(deadline))
	defer expire.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				continue
			}
			t.box.Post(event{gen: gen, remaining: remaining.Round(time.Millisecond)})
		case <-expire.C:
			t.mu.Lock()
			if t.gen != gen || t.stop != stop {
				t.mu.Unlock()
				return
			}
			t.state = Finished
			t.remaining = 0
			t.stop = nil
			t.mu.Unlock()
			t.logger.Debug().Msg("countdown finished")
			t.box.Post(event{gen: gen, finish: true})
			return
		}
	}
}
