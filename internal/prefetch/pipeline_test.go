package prefetch

import (
	"bytes"
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bird-quiz-service/internal/imagecache"
	"bird-quiz-service/internal/imagefetch"
)

func TestCurrentSlotEndToEnd(t *testing.T) {
	img := imaging.New(40, 30, color.NRGBA{G: 160, B: 60, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	body := append(buf.Bytes(), make([]byte, 12000-buf.Len())...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bird.jpg" {
			http.NotFound(w, r)
			return
		}
		w.(http.Flusher).Flush()
		for off := 0; off < len(body); off += 3000 {
			_, _ = w.Write(body[off : off+3000])
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	cache := imagecache.New(imagecache.DefaultCapacity, zerolog.Nop())
	fetcher := imagefetch.NewFetcher(cache, time.Second)
	m := NewManager(Config{Fetcher: fetcher, Cache: cache, Target: imagefetch.DefaultTarget, Logger: zerolog.Nop()})
	defer m.Close()

	var rec recorder
	m.Attach(&rec)

	url := srv.URL + "/bird.jpg"
	m.Start(Current, 3, url)
	assert.Contains(t, []State{Started, Completed}, m.State(Current, 3))

	got, err := m.Await(context.Background(), Current, 3, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Completed, m.State(Current, 3))
	assert.Same(t, got, m.Image(Current, 3))

	cached, ok := cache.Get(url)
	require.True(t, ok)
	assert.Same(t, got, cached)

	require.Eventually(t, func() bool {
		completes, _, _ := rec.snapshot()
		return len(completes) == 1
	}, waitFor, tick)

	_, _, progress := rec.snapshot()
	require.NotEmpty(t, progress)
	assert.Equal(t, [2]int{100, 100}, progress[len(progress)-1])
	for _, p := range progress[:len(progress)-1] {
		// no content length on a chunked response
		assert.Equal(t, [2]int{0, 0}, p)
	}
}

func TestMissingImageFailsSlot(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cache := imagecache.New(imagecache.DefaultCapacity, zerolog.Nop())
	m := NewManager(Config{Fetcher: imagefetch.NewFetcher(cache, time.Second), Cache: cache, Logger: zerolog.Nop()})
	defer m.Close()

	m.Start(Future, 0, srv.URL+"/nope.jpg")
	require.Eventually(t, func() bool { return m.State(Future, 0) == Failed }, waitFor, tick)
	assert.Zero(t, cache.Len())
}
