package prefetch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bird-quiz-service/internal/imagecache"
	"bird-quiz-service/internal/imagefetch"
)

const waitFor = time.Second

var tick = 5 * time.Millisecond

type fetchFunc func(ctx context.Context, url string, progress imagefetch.ProgressFunc) (image.Image, error)

type stubFetcher struct {
	fn fetchFunc

	mu       sync.Mutex
	calls    []string
	active   int
	peak     int
	finished int
}

func (f *stubFetcher) Fetch(ctx context.Context, url string, _ imagefetch.Target, progress imagefetch.ProgressFunc) (image.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.active++
	f.peak = max(f.peak, f.active)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.finished++
		f.mu.Unlock()
	}()
	return f.fn(ctx, url, progress)
}

func (f *stubFetcher) stats() (calls, active, peak, finished int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls), f.active, f.peak, f.finished
}

type delivery struct {
	img   image.Image
	url   string
	index int
	slot  Slot
}

type recorder struct {
	mu        sync.Mutex
	completes []delivery
	failures  []delivery
	progress  [][2]int
}

func (r *recorder) OnFetchComplete(img image.Image, questionIndex int, slot Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, delivery{img: img, index: questionIndex, slot: slot})
}

func (r *recorder) OnFetchError(url string, questionIndex int, slot Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, delivery{url: url, index: questionIndex, slot: slot})
}

func (r *recorder) OnProgress(primary, secondary int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, [2]int{primary, secondary})
}

func (r *recorder) snapshot() (completes, failures []delivery, progress [][2]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.completes...), append([]delivery(nil), r.failures...), append([][2]int(nil), r.progress...)
}

func bird() image.Image {
	return imaging.New(8, 6, color.NRGBA{R: 200, A: 255})
}

// byURL answers immediately for most urls, blocks on "slow" until the context
// ends and fails "bad".
func byURL(ctx context.Context, url string, _ imagefetch.ProgressFunc) (image.Image, error) {
	switch url {
	case "slow":
		<-ctx.Done()
		return nil, imagefetch.ErrCancelled
	case "bad":
		return nil, imagefetch.ErrFetch
	default:
		return bird(), nil
	}
}

func newTestManager(t *testing.T, fn fetchFunc) (*Manager, *stubFetcher, *imagecache.Cache) {
	t.Helper()
	cache := imagecache.New(2, zerolog.Nop())
	f := &stubFetcher{fn: fn}
	m := NewManager(Config{Fetcher: f, Cache: cache, Logger: zerolog.Nop()})
	t.Cleanup(m.Close)
	return m, f, cache
}

func TestStartCompletesAndNotifies(t *testing.T) {
	release := make(chan struct{})
	m, _, _ := newTestManager(t, func(ctx context.Context, url string, _ imagefetch.ProgressFunc) (image.Image, error) {
		<-release
		return bird(), nil
	})
	var rec recorder
	m.Attach(&rec)

	m.Start(Current, 3, "http://x/bird.jpg")
	assert.Equal(t, Started, m.State(Current, 3))
	assert.Nil(t, m.Image(Current, 3))

	close(release)
	require.Eventually(t, func() bool {
		completes, _, _ := rec.snapshot()
		return len(completes) == 1
	}, waitFor, tick)

	completes, failures, _ := rec.snapshot()
	assert.Empty(t, failures)
	assert.Equal(t, 3, completes[0].index)
	assert.Equal(t, Current, completes[0].slot)
	assert.Equal(t, Completed, m.State(Current, 3))
	assert.Same(t, completes[0].img, m.Image(Current, 3))
}

func TestStateDefaultsToStoppedOnIndexMismatch(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)

	assert.Equal(t, Stopped, m.State(Current, 0), "idle slot")
	m.Start(Current, 1, "slow")
	assert.Equal(t, Started, m.State(Current, 1))
	assert.Equal(t, Stopped, m.State(Current, 2))
	assert.Equal(t, Stopped, m.State(Future, 1))
	assert.Nil(t, m.Image(Current, 2))
}

func TestUnreachableNetworkFailsWithoutIO(t *testing.T) {
	f := &stubFetcher{fn: byURL}
	m := NewManager(Config{Fetcher: f, Reachable: func() bool { return false }, Logger: zerolog.Nop()})
	defer m.Close()

	m.Start(Future, 4, "http://x/owl.jpg")
	assert.Equal(t, Failed, m.State(Future, 4))

	var rec recorder
	m.Attach(&rec)
	require.Eventually(t, func() bool {
		_, failures, _ := rec.snapshot()
		return len(failures) == 1
	}, waitFor, tick)

	_, failures, _ := rec.snapshot()
	assert.Equal(t, delivery{url: "http://x/owl.jpg", index: 4, slot: Future}, failures[0])
	calls, _, _, _ := f.stats()
	assert.Zero(t, calls)

	_, err := m.Await(context.Background(), Future, 4, time.Second)
	assert.ErrorIs(t, err, imagefetch.ErrNetworkUnavailable)
}

func TestFetchFailureIsReported(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)
	var rec recorder
	m.Attach(&rec)

	m.Start(Current, 0, "bad")
	require.Eventually(t, func() bool { return m.State(Current, 0) == Failed }, waitFor, tick)
	require.Eventually(t, func() bool {
		_, failures, _ := rec.snapshot()
		return len(failures) == 1
	}, waitFor, tick)
	assert.Nil(t, m.Image(Current, 0))
}

func TestCancelDropsLateCompletion(t *testing.T) {
	release := make(chan struct{})
	// ignores cancellation, like a download already past its last read
	m, f, _ := newTestManager(t, func(ctx context.Context, url string, _ imagefetch.ProgressFunc) (image.Image, error) {
		<-release
		return bird(), nil
	})
	var rec recorder
	m.Attach(&rec)

	m.Start(Current, 2, "http://x/wren.jpg")
	require.Eventually(t, func() bool {
		calls, _, _, _ := f.stats()
		return calls == 1
	}, waitFor, tick)

	assert.False(t, m.Cancel(Current, 5), "other question")
	assert.True(t, m.Cancel(Current, 2))
	assert.False(t, m.Cancel(Current, 2), "already stopped")

	close(release)
	require.Eventually(t, func() bool {
		_, _, _, finished := f.stats()
		return finished == 1
	}, waitFor, tick)
	time.Sleep(30 * time.Millisecond)

	completes, failures, _ := rec.snapshot()
	assert.Empty(t, completes)
	assert.Empty(t, failures)
	assert.Nil(t, m.Image(Current, 2))
	assert.Equal(t, Stopped, m.State(Current, 2))
}

func TestCancelAfterCompletionKeepsResult(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)

	m.Start(Current, 1, "ok")
	require.Eventually(t, func() bool { return m.State(Current, 1) == Completed }, waitFor, tick)
	assert.False(t, m.Cancel(Current, 1))
	assert.Equal(t, Completed, m.State(Current, 1))
	assert.NotNil(t, m.Image(Current, 1))
}

func TestRestartSupersedesPreviousRequest(t *testing.T) {
	var cancelled sync.WaitGroup
	cancelled.Add(1)
	m, f, _ := newTestManager(t, func(ctx context.Context, url string, _ imagefetch.ProgressFunc) (image.Image, error) {
		if url == "old" {
			<-ctx.Done()
			cancelled.Done()
			// a result produced after cancellation must be ignored
			return bird(), nil
		}
		return bird(), nil
	})
	var rec recorder
	m.Attach(&rec)

	m.Start(Current, 1, "old")
	require.Eventually(t, func() bool {
		calls, _, _, _ := f.stats()
		return calls == 1
	}, waitFor, tick)
	m.Start(Current, 2, "new")
	cancelled.Wait()

	require.Eventually(t, func() bool { return m.State(Current, 2) == Completed }, waitFor, tick)
	time.Sleep(30 * time.Millisecond)

	completes, _, _ := rec.snapshot()
	require.Len(t, completes, 1)
	assert.Equal(t, 2, completes[0].index)
	assert.Equal(t, Stopped, m.State(Current, 1))
}

func TestAwaitTimesOutAndStops(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)
	m.Start(Current, 7, "slow")

	begin := time.Now()
	img, err := m.Await(context.Background(), Current, 7, 50*time.Millisecond)
	elapsed := time.Since(begin)

	assert.Nil(t, img)
	assert.ErrorIs(t, err, imagefetch.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
	assert.Equal(t, Stopped, m.State(Current, 7))
}

func TestAwaitReturnsImage(t *testing.T) {
	m, _, _ := newTestManager(t, func(ctx context.Context, url string, _ imagefetch.ProgressFunc) (image.Image, error) {
		time.Sleep(10 * time.Millisecond)
		return bird(), nil
	})
	m.Start(Current, 0, "ok")

	img, err := m.Await(context.Background(), Current, 0, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, img)
	assert.Same(t, img, m.Image(Current, 0))

	_, err = m.Await(context.Background(), Current, 9, time.Second)
	assert.ErrorIs(t, err, ErrNoRequest)
}

func TestAwaitReportsFailure(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)
	m.Start(Current, 0, "bad")

	img, err := m.Await(context.Background(), Current, 0, time.Second)
	assert.Nil(t, img)
	assert.True(t, errors.Is(err, imagefetch.ErrFetch))
}

func TestHandOffOnlyOnCompletion(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)

	m.Start(Current, 0, "first")
	require.Eventually(t, func() bool { return m.State(Current, 0) == Completed }, waitFor, tick)
	current := m.Image(Current, 0)

	m.Start(Future, 1, "slow")
	assert.False(t, m.HandOff(1), "running future slot")
	assert.Equal(t, Completed, m.State(Current, 0))
	assert.Same(t, current, m.Image(Current, 0))

	m.Start(Future, 1, "bad")
	require.Eventually(t, func() bool { return m.State(Future, 1) == Failed }, waitFor, tick)
	assert.False(t, m.HandOff(1), "failed future slot")
	assert.Equal(t, Completed, m.State(Current, 0))
	assert.Equal(t, Stopped, m.State(Current, 1))

	m.Start(Future, 1, "second")
	require.Eventually(t, func() bool { return m.State(Future, 1) == Completed }, waitFor, tick)
	require.True(t, m.HandOff(1))

	assert.Equal(t, Completed, m.State(Current, 1))
	assert.Same(t, m.Image(Future, 1), m.Image(Current, 1))
	snap := m.Track(Current).Snapshot()
	assert.Equal(t, "second", snap.URL)
	assert.Equal(t, 1, snap.QuestionIndex)
}

func TestHandOffRequiresMatchingQuestion(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)

	m.Start(Future, 1, "second")
	require.Eventually(t, func() bool { return m.State(Future, 1) == Completed }, waitFor, tick)

	assert.False(t, m.HandOff(2), "future slot holds question 1")
	assert.Equal(t, Stopped, m.State(Current, 2))
	assert.Nil(t, m.Image(Current, 1))
	assert.Equal(t, Completed, m.State(Future, 1))
}

func TestResetDropsCompletedRequest(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)
	var rec recorder

	m.Start(Future, 1, "second")
	require.Eventually(t, func() bool { return m.State(Future, 1) == Completed }, waitFor, tick)

	m.Reset(Future, 2)
	assert.Equal(t, Stopped, m.State(Future, 1))
	assert.Equal(t, Stopped, m.State(Future, 2))
	assert.Nil(t, m.Image(Future, 1))
	assert.False(t, m.HandOff(1))
	assert.False(t, m.HandOff(2))

	// the completion queued while detached belongs to the dropped request
	m.Attach(&rec)
	time.Sleep(20 * time.Millisecond)
	completes, failures, _ := rec.snapshot()
	assert.Empty(t, completes)
	assert.Empty(t, failures)

	snap := m.Track(Future).Snapshot()
	assert.Equal(t, SlotSnapshot{Slot: Future, QuestionIndex: 2, State: Stopped}, snap)
}

func TestHandOffPrefersCachedImage(t *testing.T) {
	m, _, cache := newTestManager(t, byURL)
	cached := bird()
	cache.Put("second", cached)

	m.Start(Future, 1, "second")
	require.Eventually(t, func() bool { return m.State(Future, 1) == Completed }, waitFor, tick)
	require.True(t, m.HandOff(1))
	assert.Same(t, cached, m.Image(Current, 1))
}

func TestHandOffCancelsRunningCurrent(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)
	var rec recorder
	m.Attach(&rec)

	m.Start(Future, 1, "next")
	require.Eventually(t, func() bool { return m.State(Future, 1) == Completed }, waitFor, tick)
	m.Start(Current, 0, "slow")
	require.True(t, m.HandOff(1))

	assert.Equal(t, Stopped, m.State(Current, 0))
	assert.Equal(t, Completed, m.State(Current, 1))
}

func TestProgressIsRelayedForCurrentSlotOnly(t *testing.T) {
	m, _, _ := newTestManager(t, func(ctx context.Context, url string, progress imagefetch.ProgressFunc) (image.Image, error) {
		if progress != nil {
			for _, total := range []int64{25, 50, 100} {
				progress(imagefetch.Progress{Read: 25, Total: total, ContentLength: 100})
			}
			progress(imagefetch.Progress{Total: 100, ContentLength: 100, Done: true})
		}
		return bird(), nil
	})
	var rec recorder
	m.Attach(&rec)

	m.Start(Future, 1, "next")
	require.Eventually(t, func() bool {
		completes, _, _ := rec.snapshot()
		return len(completes) == 1
	}, waitFor, tick)
	_, _, progress := rec.snapshot()
	assert.Empty(t, progress)

	m.Start(Current, 0, "now")
	require.Eventually(t, func() bool {
		completes, _, _ := rec.snapshot()
		return len(completes) == 2
	}, waitFor, tick)

	_, _, progress = rec.snapshot()
	assert.Equal(t, [][2]int{{15, 25}, {40, 50}, {89, 99}, {100, 100}}, progress)
}

func TestEventsBufferUntilListenerAttaches(t *testing.T) {
	m, _, _ := newTestManager(t, byURL)

	m.Start(Current, 0, "first")
	require.Eventually(t, func() bool { return m.State(Current, 0) == Completed }, waitFor, tick)

	var first recorder
	m.Attach(&first)
	require.Eventually(t, func() bool {
		completes, _, _ := first.snapshot()
		return len(completes) == 1
	}, waitFor, tick)

	m.Detach()
	m.Start(Future, 1, "second")
	require.Eventually(t, func() bool { return m.State(Future, 1) == Completed }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)

	var second recorder
	m.Attach(&second)
	require.Eventually(t, func() bool {
		completes, _, _ := second.snapshot()
		return len(completes) == 1
	}, waitFor, tick)

	completes, _, _ := first.snapshot()
	assert.Len(t, completes, 1)
	completes, _, _ = second.snapshot()
	assert.Equal(t, Future, completes[0].slot)
	assert.Equal(t, 1, completes[0].index)
}

func TestCancelledEventsAreNotFlushed(t *testing.T) {
	release := make(chan struct{})
	m, _, _ := newTestManager(t, func(ctx context.Context, url string, progress imagefetch.ProgressFunc) (image.Image, error) {
		progress(imagefetch.Progress{Read: 10, Total: 10, ContentLength: 100})
		<-release
		return bird(), nil
	})

	m.Start(Current, 0, "first")
	time.Sleep(20 * time.Millisecond)
	require.True(t, m.Cancel(Current, 0))
	close(release)
	time.Sleep(20 * time.Millisecond)

	var rec recorder
	m.Attach(&rec)
	time.Sleep(30 * time.Millisecond)

	completes, failures, progress := rec.snapshot()
	assert.Empty(t, completes)
	assert.Empty(t, failures)
	assert.Empty(t, progress)
}

func TestAtMostTwoFetchesInFlight(t *testing.T) {
	release := make(chan struct{})
	// ignores cancellation so a superseded download keeps its permit
	m, f, _ := newTestManager(t, func(ctx context.Context, url string, _ imagefetch.ProgressFunc) (image.Image, error) {
		<-release
		return bird(), nil
	})

	m.Start(Current, 0, "a")
	m.Start(Future, 1, "b")
	require.Eventually(t, func() bool {
		calls, _, _, _ := f.stats()
		return calls == 2
	}, waitFor, tick)

	m.Start(Current, 2, "c")
	time.Sleep(30 * time.Millisecond)
	calls, active, _, _ := f.stats()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, active)

	close(release)
	require.Eventually(t, func() bool { return m.State(Current, 2) == Completed }, waitFor, tick)
	_, _, peak, _ := f.stats()
	assert.Equal(t, MaxInFlight, peak)
}

func TestSnapshotRestore(t *testing.T) {
	m, _, cache := newTestManager(t, byURL)
	m.Start(Current, 0, "a")
	require.Eventually(t, func() bool { return m.State(Current, 0) == Completed }, waitFor, tick)
	cache.Put("a", m.Image(Current, 0))
	m.Start(Future, 1, "slow")

	snaps := m.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, SlotSnapshot{Slot: Current, QuestionIndex: 0, URL: "a", State: Completed}, snaps[0])
	assert.Equal(t, SlotSnapshot{Slot: Future, QuestionIndex: 1, URL: "slow", State: Started}, snaps[1])

	f2 := &stubFetcher{fn: byURL}
	restored := NewManager(Config{Fetcher: f2, Cache: cache, Logger: zerolog.Nop()})
	defer restored.Close()
	restored.Restore(snaps)

	assert.Equal(t, Completed, restored.State(Current, 0))
	cachedImg, _ := cache.Get("a")
	assert.Same(t, cachedImg, restored.Image(Current, 0))
	assert.Equal(t, Started, restored.State(Future, 1))
	require.Eventually(t, func() bool {
		calls, _, _, _ := f2.stats()
		return calls == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"slow"}, f2.calls)
}

func TestRestoreRefetchesEvictedImage(t *testing.T) {
	m, f, _ := newTestManager(t, byURL)

	m.Restore([]SlotSnapshot{{Slot: Current, QuestionIndex: 3, URL: "gone", State: Completed}})
	require.Eventually(t, func() bool { return m.State(Current, 3) == Completed }, waitFor, tick)
	calls, _, _, _ := f.stats()
	assert.Equal(t, 1, calls)
}
