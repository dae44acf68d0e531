package prefetch

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"bird-quiz-service/internal/imagecache"
	"bird-quiz-service/internal/imagefetch"
	"bird-quiz-service/internal/mailbox"
)

// shared is owned by the Manager and used by both of its tracks.
type shared struct {
	fetcher   Fetcher
	target    imagefetch.Target
	reachable imagefetch.Reachability
	cache     *imagecache.Cache
	sem       *semaphore.Weighted
	box       *mailbox.Mailbox[event]
	base      context.Context
	logger    zerolog.Logger
}

// Track is one fetch slot. It holds at most one live request; starting a new
// one cancels and invalidates the previous request.
type Track struct {
	slot Slot
	deps *shared

	mu            sync.Mutex
	gen           uint64
	questionIndex int
	url           string
	state         State
	img           image.Image
	err           error
	cancel        context.CancelFunc
	done          chan struct{}
}

func newTrack(slot Slot, deps *shared) *Track {
	return &Track{
		slot:          slot,
		deps:          deps,
		questionIndex: -1,
		state:         Stopped,
	}
}

// Slot returns the slot identity of the track.
func (t *Track) Slot() Slot { return t.slot }

// Start launches a fetch of url for questionIndex. When the network is not
// reachable the track fails at once and an error event is queued before Start returns.
func (t *Track) Start(questionIndex int, url string) {
	reachable := t.deps.reachable == nil || t.deps.reachable()

	t.mu.Lock()
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.questionIndex = questionIndex
	t.url = url
	t.img = nil
	t.err = nil
	done := make(chan struct{})
	t.done = done

	if !reachable {
		t.state = Failed
		t.err = imagefetch.ErrNetworkUnavailable
		close(done)
		t.mu.Unlock()

		t.purge(gen)
		t.log().Warn().Int("question", questionIndex).Str("url", url).Msg("network unreachable, hint image not requested")
		t.deps.box.Post(event{kind: errorEvent, slot: t.slot, gen: gen, questionIndex: questionIndex, url: url})
		return
	}

	ctx, cancel := context.WithCancel(t.deps.base)
	t.state = Started
	t.cancel = cancel
	t.mu.Unlock()

	t.purge(gen)
	t.log().Debug().Int("question", questionIndex).Str("url", url).Msg("hint image fetch started")
	go t.run(ctx, cancel, gen, questionIndex, url, done)
}

func (t *Track) run(ctx context.Context, cancel context.CancelFunc, gen uint64, questionIndex int, url string, done chan struct{}) {
	defer close(done)
	defer cancel()

	if err := t.deps.sem.Acquire(ctx, 1); err != nil {
		t.finish(gen, nil, fmt.Errorf("%w: %v", imagefetch.ErrCancelled, err))
		return
	}
	defer t.deps.sem.Release(1)

	var progress imagefetch.ProgressFunc
	if t.slot == Current {
		progress = func(p imagefetch.Progress) { t.progress(gen, p) }
	}
	img, err := t.deps.fetcher.Fetch(ctx, url, t.deps.target, progress)
	t.finish(gen, img, err)
}

func (t *Track) progress(gen uint64, p imagefetch.Progress) {
	t.mu.Lock()
	live := t.gen == gen && t.state == Started
	questionIndex := t.questionIndex
	t.mu.Unlock()
	if !live {
		return
	}
	primary, secondary := progressBars(p)
	t.deps.box.Post(event{kind: progressEvent, slot: t.slot, gen: gen, questionIndex: questionIndex, primary: primary, secondary: secondary})
}

// finish records the outcome unless the request was cancelled or superseded.
func (t *Track) finish(gen uint64, img image.Image, err error) {
	t.mu.Lock()
	if t.gen != gen || t.state != Started {
		t.mu.Unlock()
		return
	}
	ev := event{slot: t.slot, gen: gen, questionIndex: t.questionIndex, url: t.url}
	if img != nil && err == nil {
		t.state = Completed
		t.img = img
		ev.kind = completeEvent
		ev.img = img
	} else {
		if err == nil {
			err = imagefetch.ErrFetch
		}
		t.state = Failed
		t.err = err
		ev.kind = errorEvent
	}
	t.cancel = nil
	state := t.state
	t.mu.Unlock()

	t.log().Debug().Int("question", ev.questionIndex).Str("url", ev.url).Str("state", string(state)).Msg("hint image fetch finished")
	t.deps.box.Post(ev)
}

// State returns the state of the request for questionIndex, or Stopped when
// the slot holds a request for another question.
func (t *Track) State(questionIndex int) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.questionIndex != questionIndex {
		return Stopped
	}
	return t.state
}

// Image returns the completed image for questionIndex without blocking.
func (t *Track) Image(questionIndex int) image.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.questionIndex != questionIndex || t.state != Completed {
		return nil
	}
	return t.img
}

// Cancel stops the request for questionIndex if it is still running.
// Its result is discarded even if the download finishes later.
func (t *Track) Cancel(questionIndex int) bool {
	t.mu.Lock()
	if t.questionIndex != questionIndex || t.state != Started {
		t.mu.Unlock()
		return false
	}
	gen := t.gen
	t.stopLocked()
	t.mu.Unlock()

	t.deps.box.Drop(func(ev event) bool { return ev.slot == t.slot && ev.gen == gen })
	t.log().Debug().Int("question", questionIndex).Msg("hint image fetch cancelled")
	return true
}

// Await waits up to timeout for the request for questionIndex to complete.
// On timeout the request is cancelled and ErrTimeout is returned.
func (t *Track) Await(ctx context.Context, questionIndex int, timeout time.Duration) (image.Image, error) {
	t.mu.Lock()
	if t.questionIndex != questionIndex {
		t.mu.Unlock()
		return nil, ErrNoRequest
	}
	gen := t.gen
	done := t.done
	img, err, state := t.img, t.err, t.state
	t.mu.Unlock()

	switch state {
	case Completed:
		return img, nil
	case Failed:
		return nil, err
	case Stopped:
		return nil, imagefetch.ErrCancelled
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		t.cancelGen(gen)
		return nil, imagefetch.ErrTimeout
	case <-ctx.Done():
		t.cancelGen(gen)
		return nil, fmt.Errorf("%w: %v", imagefetch.ErrCancelled, ctx.Err())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return nil, imagefetch.ErrCancelled
	}
	switch t.state {
	case Completed:
		return t.img, nil
	case Failed:
		return nil, t.err
	default:
		return nil, imagefetch.ErrCancelled
	}
}

// HandOff copies the completed request for questionIndex from src into t.
// Anything running on t is cancelled first. Nothing is handed off when src
// holds a request for another question or one that did not complete.
func (t *Track) HandOff(src *Track, questionIndex int) bool {
	if src == t {
		return false
	}
	src.mu.Lock()
	if src.questionIndex != questionIndex || src.state != Completed {
		src.mu.Unlock()
		return false
	}
	url, img := src.url, src.img
	src.mu.Unlock()

	if t.deps.cache != nil {
		if cached, ok := t.deps.cache.Get(url); ok {
			img = cached
		}
	}

	t.mu.Lock()
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.questionIndex = questionIndex
	t.url = url
	t.img = img
	t.err = nil
	t.state = Completed
	t.done = closedChan()
	t.mu.Unlock()

	t.purge(gen)
	t.log().Debug().Int("question", questionIndex).Str("url", url).Msg("prefetched hint image handed off")
	return true
}

// Reset points the slot at questionIndex without requesting anything.
// A running request is cancelled and queued events of earlier requests are
// dropped, so the slot reports STOPPED for every question until the next Start.
func (t *Track) Reset(questionIndex int) {
	t.mu.Lock()
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.questionIndex, t.url, t.img, t.err = questionIndex, "", nil, nil
	t.state = Stopped
	t.done = closedChan()
	t.mu.Unlock()
	t.purge(gen)
}

// Snapshot returns the restorable state of the slot.
func (t *Track) Snapshot() SlotSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return SlotSnapshot{Slot: t.slot, QuestionIndex: t.questionIndex, URL: t.url, State: t.state}
}

// Restore rebuilds the slot from a snapshot. A completed slot takes its image
// from the cache and is downloaded again when the cache no longer has it.
// A slot that was still running is restarted.
func (t *Track) Restore(s SlotSnapshot) {
	switch s.State {
	case Completed:
		if t.deps.cache != nil {
			if img, ok := t.deps.cache.Get(s.URL); ok {
				t.mu.Lock()
				t.stopLocked()
				t.gen++
				gen := t.gen
				t.questionIndex, t.url, t.img, t.err = s.QuestionIndex, s.URL, img, nil
				t.state = Completed
				t.done = closedChan()
				t.mu.Unlock()
				t.purge(gen)
				return
			}
		}
		t.Start(s.QuestionIndex, s.URL)
	case Started:
		t.Start(s.QuestionIndex, s.URL)
	default:
		t.mu.Lock()
		t.stopLocked()
		t.gen++
		gen := t.gen
		t.questionIndex, t.url, t.img, t.err = s.QuestionIndex, s.URL, nil, nil
		t.state = s.State
		if t.state == "" {
			t.state = Stopped
		}
		t.done = closedChan()
		t.mu.Unlock()
		t.purge(gen)
	}
}

// stopLocked cancels a running request. Callers hold t.mu.
func (t *Track) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.state == Started {
		t.state = Stopped
	}
}

func (t *Track) cancelGen(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || t.state != Started {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	t.mu.Unlock()
	t.deps.box.Drop(func(ev event) bool { return ev.slot == t.slot && ev.gen == gen })
}

// purge drops queued events of requests older than gen.
func (t *Track) purge(gen uint64) {
	t.deps.box.Drop(func(ev event) bool { return ev.slot == t.slot && ev.gen != gen })
}

// deliverable is the last check before an event reaches a listener.
func (t *Track) deliverable(ev event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ev.gen != t.gen {
		return false
	}
	switch ev.kind {
	case progressEvent:
		return t.state != Stopped
	case completeEvent:
		return t.state == Completed
	case errorEvent:
		return t.state == Failed
	}
	return false
}

func (t *Track) log() *zerolog.Logger {
	l := t.deps.logger.With().Str("slot", t.slot.String()).Logger()
	return &l
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
