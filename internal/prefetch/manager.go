package prefetch

import (
	"context"
	"image"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"bird-quiz-service/internal/imagecache"
	"bird-quiz-service/internal/imagefetch"
	"bird-quiz-service/internal/mailbox"
)

// MaxInFlight bounds concurrent downloads across both slots.
const MaxInFlight = 2

// Config wires a Manager.
type Config struct {
	Fetcher   Fetcher
	Cache     *imagecache.Cache
	Target    imagefetch.Target
	Reachable imagefetch.Reachability
	Logger    zerolog.Logger
}

// Manager pairs the CURRENT and FUTURE tracks of one quiz session and
// delivers their events to the attached Listener.
type Manager struct {
	tracks [2]*Track
	box    *mailbox.Mailbox[event]
	stop   context.CancelFunc
	logger zerolog.Logger
}

// NewManager creates a manager with both slots idle and no listener attached.
func NewManager(cfg Config) *Manager {
	if cfg.Reachable == nil {
		cfg.Reachable = imagefetch.AlwaysReachable
	}
	if cfg.Target == (imagefetch.Target{}) {
		cfg.Target = imagefetch.DefaultTarget
	}
	base, stop := context.WithCancel(context.Background())

	m := &Manager{stop: stop, logger: cfg.Logger}
	m.box = mailbox.New(mailbox.WithGate(func(ev event) bool {
		return m.tracks[ev.slot].deliverable(ev)
	}))
	deps := &shared{
		fetcher:   cfg.Fetcher,
		target:    cfg.Target,
		reachable: cfg.Reachable,
		cache:     cfg.Cache,
		sem:       semaphore.NewWeighted(MaxInFlight),
		box:       m.box,
		base:      base,
		logger:    cfg.Logger,
	}
	m.tracks[Current] = newTrack(Current, deps)
	m.tracks[Future] = newTrack(Future, deps)
	return m
}

// Attach routes events to l, flushing anything buffered while detached.
func (m *Manager) Attach(l Listener) {
	m.box.Attach(func(ev event) {
		switch ev.kind {
		case progressEvent:
			l.OnProgress(ev.primary, ev.secondary)
		case completeEvent:
			l.OnFetchComplete(ev.img, ev.questionIndex, ev.slot)
		case errorEvent:
			l.OnFetchError(ev.url, ev.questionIndex, ev.slot)
		}
	})
}

// Detach stops delivery; events are buffered until the next Attach.
func (m *Manager) Detach() {
	m.box.Detach()
}

// Track returns the track of slot.
func (m *Manager) Track(slot Slot) *Track {
	return m.tracks[slot]
}

func (m *Manager) Start(slot Slot, questionIndex int, url string) {
	m.tracks[slot].Start(questionIndex, url)
}

func (m *Manager) State(slot Slot, questionIndex int) State {
	return m.tracks[slot].State(questionIndex)
}

func (m *Manager) Image(slot Slot, questionIndex int) image.Image {
	return m.tracks[slot].Image(questionIndex)
}

// Cancel stops the running request of slot for questionIndex and drops its
// queued events. An event already handed to the listener may still arrive;
// listeners check State before rendering progress.
func (m *Manager) Cancel(slot Slot, questionIndex int) bool {
	return m.tracks[slot].Cancel(questionIndex)
}

func (m *Manager) Await(ctx context.Context, slot Slot, questionIndex int, timeout time.Duration) (image.Image, error) {
	return m.tracks[slot].Await(ctx, questionIndex, timeout)
}

// HandOff promotes the completed FUTURE request for questionIndex to the CURRENT slot.
func (m *Manager) HandOff(questionIndex int) bool {
	return m.tracks[Current].HandOff(m.tracks[Future], questionIndex)
}

// Reset clears slot and points it at questionIndex without fetching.
func (m *Manager) Reset(slot Slot, questionIndex int) {
	m.tracks[slot].Reset(questionIndex)
}

// Snapshot returns the restorable state of both slots.
func (m *Manager) Snapshot() []SlotSnapshot {
	return []SlotSnapshot{m.tracks[Current].Snapshot(), m.tracks[Future].Snapshot()}
}

// Restore applies snapshots taken by Snapshot. Unknown slots are ignored.
func (m *Manager) Restore(snaps []SlotSnapshot) {
	for _, s := range snaps {
		if s.Slot != Current && s.Slot != Future {
			continue
		}
		m.tracks[s.Slot].Restore(s)
	}
}

// Close cancels both slots and stops event delivery.
func (m *Manager) Close() {
	m.stop()
	for _, t := range m.tracks {
		t.mu.Lock()
		t.stopLocked()
		t.mu.Unlock()
	}
	m.box.Close()
}
