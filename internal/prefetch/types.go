// Package prefetch runs hint image downloads on two independent slots: CURRENT
// for the question on screen and FUTURE for the question after it.
package prefetch

import (
	"context"
	"image"

	"bird-quiz-service/internal/imagefetch"
)

// Slot identifies one of the two fetch tracks.
type Slot int

const (
	Current Slot = iota
	Future
)

func (s Slot) String() string {
	switch s {
	case Current:
		return "CURRENT"
	case Future:
		return "FUTURE"
	default:
		return "UNKNOWN"
	}
}

// State of a slot's request. An idle slot reports Stopped.
type State string

const (
	Started   State = "STARTED"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
	Stopped   State = "STOPPED"
)

// Terminal reports whether no further transition can happen for the request.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Stopped
}

// Listener receives the outcome of fetches. Progress is reported for the CURRENT slot only.
type Listener interface {
	OnFetchComplete(img image.Image, questionIndex int, slot Slot)
	OnFetchError(url string, questionIndex int, slot Slot)
	OnProgress(primary, secondary int)
}

// Fetcher downloads and decodes one image. *imagefetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, target imagefetch.Target, progress imagefetch.ProgressFunc) (image.Image, error)
}

// SlotSnapshot is the restorable part of a slot. The image is never part of
// it; a completed slot re-derives its image from the cache by URL.
type SlotSnapshot struct {
	Slot          Slot   `json:"slot"`
	QuestionIndex int    `json:"questionIndex"`
	URL           string `json:"url"`
	State         State  `json:"state"`
}

// ProgressMargin is how far the primary bar trails the secondary one.
const ProgressMargin = 10

func progressBars(p imagefetch.Progress) (primary, secondary int) {
	secondary = p.Percent()
	if secondary >= 100 {
		return 100, 100
	}
	return max(0, secondary-ProgressMargin), secondary
}

type eventKind int

const (
	progressEvent eventKind = iota
	completeEvent
	errorEvent
)

type event struct {
	kind          eventKind
	slot          Slot
	gen           uint64
	questionIndex int
	url           string
	img           image.Image
	primary       int
	secondary     int
}
