package app

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bird-quiz-service/internal/countdown"
	"bird-quiz-service/internal/domain"
	"bird-quiz-service/internal/imagecache"
	"bird-quiz-service/internal/prefetch"
)

// localAssetPrefix marks hint images shipped with the client.
const localAssetPrefix = "res/"

// noQuestion is the future index once the last question is on screen.
const noQuestion = -1

// sessionDeps are the per-session collaborators built by QuizService.
type sessionDeps struct {
	images       *prefetch.Manager
	cache        *imagecache.Cache
	timer        *countdown.Timer
	awaitTimeout time.Duration
	tickInterval time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// Session is one player's run through the quiz. It owns the two image slots
// and the countdown, and renders to whichever View is attached.
type Session struct {
	id        string
	catalogID string
	questions map[int]domain.Question
	order     []int
	deps      sessionDeps

	mu             sync.Mutex
	view           View
	attachedBefore bool

	number       int
	score        int
	currentIndex int
	futureIndex  int
	hintUnlocked bool
	hintPressed  bool
	closed       bool
	finished     bool
	timedOut     bool

	currentImage    image.Image
	prefetchedImage image.Image
	localImage      string
	progressShown   bool
}

func newSession(id string, catalog domain.Catalog, order []int, deps sessionDeps) *Session {
	if deps.now == nil {
		deps.now = time.Now
	}
	questions := make(map[int]domain.Question, len(catalog.Questions))
	for _, q := range catalog.Questions {
		questions[q.Index] = q
	}
	return &Session{
		id:           id,
		catalogID:    catalog.ID,
		questions:    questions,
		order:        order,
		deps:         deps,
		currentIndex: noQuestion,
		futureIndex:  noQuestion,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Finished reports whether the final score was produced.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// begin loads the first question. The countdown stays paused until a view attaches.
func (s *Session) begin(total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps.timer.Load(total, s.deps.tickInterval)
	s.loadNextLocked()
}

// Attach makes v the client of the session, replacing any previous one.
// Everything the client needs to render is replayed, then events buffered
// while detached are flushed.
func (s *Session) Attach(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resumed := s.attachedBefore
	s.attachedBefore = true
	s.view = v
	s.renderLocked(resumed)
	if !s.finished && !s.progressShown {
		s.deps.timer.Resume()
	}
	s.deps.images.Attach(s)
	s.deps.timer.Attach(s)
	s.deps.logger.Debug().Str("session", s.id).Bool("resumed", resumed).Msg("client attached")
}

// Detach drops v if it is still the attached client. Downloads keep running;
// their events wait for the next Attach.
func (s *Session) Detach(v View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view != v {
		return false
	}
	s.deps.images.Detach()
	s.deps.timer.Detach()
	s.view = nil
	s.deps.timer.Pause()
	s.deps.logger.Debug().Str("session", s.id).Msg("client detached")
	return true
}

// Submit grades the answer to the current question.
// A first wrong answer unlocks the hint and leaves the question open; any
// answer after that closes it.
func (s *Session) Submit(ctx context.Context, answer domain.Answer) (domain.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return domain.AnswerResult{}, domain.ErrSessionFinished
	}
	if s.closed {
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}
	q := s.questions[s.currentIndex]
	grade, err := Grade(q, answer)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	correct := grade == 1

	revealKeys := false
	if !s.hintUnlocked {
		if correct {
			s.score++
			s.closed = true
			revealKeys = q.Kind != domain.FreeText
			s.revealHintImageLocked(ctx)
		} else {
			s.hintUnlocked = true
		}
	} else {
		if correct {
			s.score++
		}
		s.closed = true
		revealKeys = q.Kind != domain.FreeText || !correct
		s.revealHintImageLocked(ctx)
	}

	res := domain.AnswerResult{
		QuestionIndex: s.currentIndex,
		Correct:       correct,
		Grade:         grade,
		HintUnlocked:  s.hintUnlocked,
		Closed:        s.closed,
		Last:          s.closed && s.number >= len(s.order),
		Score:         s.score,
		Number:        s.number,
		Total:         len(s.order),
	}
	if revealKeys {
		res.Keys = append([]string(nil), q.Keys...)
	}
	s.deps.logger.Debug().Str("session", s.id).Int("question", s.currentIndex).Float64("grade", grade).Bool("closed", s.closed).Msg("answer graded")
	return res, nil
}

// RevealHint shows the hint text and, when available, the hint image.
func (s *Session) RevealHint(ctx context.Context) (domain.Hint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return domain.Hint{}, domain.ErrSessionFinished
	}
	if !s.hintUnlocked {
		return domain.Hint{}, domain.ErrHintLocked
	}
	q := s.questions[s.currentIndex]
	if !s.hintPressed {
		s.hintPressed = true
		if s.view != nil {
			s.view.ShowHint(s.currentIndex, q.Hint.Text)
		}
		s.revealHintImageLocked(ctx)
	}
	return q.Hint, nil
}

// Next moves on to the following question once the current one is closed.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return domain.ErrSessionFinished
	}
	if !s.closed {
		return domain.ErrNotAnswered
	}
	if s.number >= len(s.order) {
		return fmt.Errorf("%w: no question after number %d", domain.ErrQuestionNotFound, s.number)
	}

	s.deps.images.Cancel(prefetch.Current, s.currentIndex)
	s.deps.images.Cancel(prefetch.Future, s.futureIndex)
	s.hideProgressLocked()
	s.loadNextLocked()
	return nil
}

// Finish ends the quiz and returns the final score. Calling it again returns the same summary.
func (s *Session) Finish() domain.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.finishLocked(false)
	}
	return s.summaryLocked()
}

// State captures the session for persistence.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{
		ID:           s.id,
		CatalogID:    s.catalogID,
		Order:        append([]int(nil), s.order...),
		Number:       s.number,
		Score:        s.score,
		CurrentIndex: s.currentIndex,
		FutureIndex:  s.futureIndex,
		HintUnlocked: s.hintUnlocked,
		HintPressed:  s.hintPressed,
		Closed:       s.closed,
		Finished:     s.finished,
		TimedOut:     s.timedOut,
		Remaining:    s.deps.timer.Remaining(),
		Slots:        s.deps.images.Snapshot(),
		SavedAt:      s.deps.now(),
	}
}

// restore rebuilds the session from st. Slot images come back from the cache
// or are downloaded again; the countdown is left paused.
func (s *Session) restore(st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.number = st.Number
	s.score = st.Score
	s.currentIndex = st.CurrentIndex
	s.futureIndex = st.FutureIndex
	s.hintUnlocked = st.HintUnlocked
	s.hintPressed = st.HintPressed
	s.closed = st.Closed
	s.finished = st.Finished
	s.timedOut = st.TimedOut
	s.attachedBefore = true

	if s.finished {
		return
	}
	s.deps.images.Restore(st.Slots)
	s.currentImage = s.deps.images.Image(prefetch.Current, s.currentIndex)
	s.prefetchedImage = s.deps.images.Image(prefetch.Future, s.futureIndex)
	if q, ok := s.questions[s.currentIndex]; ok && strings.HasPrefix(q.Hint.ImageURL, localAssetPrefix) {
		s.localImage = q.Hint.ImageURL
	}
	s.deps.timer.Load(st.Remaining, s.deps.tickInterval)
}

// Close releases the downloads, the countdown and the image cache.
func (s *Session) Close() {
	s.deps.images.Close()
	s.deps.timer.Close()
	s.deps.cache.Clear()
}

// OnFetchComplete records a downloaded hint image.
func (s *Session) OnFetchComplete(img image.Image, questionIndex int, slot prefetch.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	switch {
	case questionIndex == s.currentIndex && slot == prefetch.Current:
		s.currentImage = img
		if s.hintPressed && s.view != nil {
			s.view.ShowHintImage(questionIndex, img)
		}
		s.hideProgressLocked()
	case questionIndex == s.futureIndex && slot == prefetch.Future:
		s.prefetchedImage = img
	}
}

// OnFetchError forgets the image of a failed download.
func (s *Session) OnFetchError(url string, questionIndex int, slot prefetch.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps.logger.Warn().Str("session", s.id).Str("url", url).Int("question", questionIndex).Str("slot", slot.String()).Msg("hint image download failed")
	if s.finished {
		return
	}
	switch {
	case questionIndex == s.currentIndex && slot == prefetch.Current:
		s.currentImage = nil
		if s.progressShown && s.view != nil {
			s.view.Notify(NoticeHintImageUnavailable)
		}
		s.hideProgressLocked()
	case questionIndex == s.futureIndex && slot == prefetch.Future:
		s.prefetchedImage = nil
	}
}

// OnProgress relays download progress while the progress indicator is shown.
// Progress of a request cancelled while the event was in flight is dropped.
func (s *Session) OnProgress(primary, secondary int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.deps.images.State(prefetch.Current, s.currentIndex) {
	case prefetch.Started, prefetch.Completed:
	default:
		return
	}
	if s.progressShown && s.view != nil {
		s.view.ShowProgress(primary, secondary)
	}
}

// OnTick relays the remaining quiz time.
func (s *Session) OnTick(remaining time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != nil && !s.finished {
		s.view.ShowTick(remaining)
	}
}

// OnFinish ends the quiz when time is up.
func (s *Session) OnFinish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.finishLocked(true)
	}
}

func (s *Session) loadNextLocked() {
	s.currentIndex = s.order[s.number]
	s.number++
	s.hintUnlocked = false
	s.hintPressed = false
	s.closed = false

	if s.view != nil {
		s.view.ShowQuestion(s.questionViewLocked())
	}
	s.initHintsLocked()

	if s.number < len(s.order) {
		s.prefetchNextLocked()
	} else {
		s.futureIndex = noQuestion
		s.prefetchedImage = nil
		s.deps.images.Reset(prefetch.Future, noQuestion)
	}
}

func (s *Session) initHintsLocked() {
	q := s.questions[s.currentIndex]
	s.currentImage = nil
	s.localImage = ""

	if s.futureIndex == s.currentIndex && s.deps.images.HandOff(s.currentIndex) {
		s.currentImage = s.deps.images.Image(prefetch.Current, s.currentIndex)
		s.prefetchedImage = nil
		return
	}

	if !q.Hint.RemoteImage() {
		s.deps.images.Reset(prefetch.Current, s.currentIndex)
	}
	switch {
	case strings.HasPrefix(q.Hint.ImageURL, localAssetPrefix):
		s.localImage = q.Hint.ImageURL
	case q.Hint.RemoteImage():
		s.deps.images.Start(prefetch.Current, s.currentIndex, q.Hint.FetchURL())
		switch s.deps.images.State(prefetch.Current, s.currentIndex) {
		case prefetch.Failed:
			if s.view != nil {
				s.view.Notify(NoticeNetworkUnavailable)
			}
		case prefetch.Started:
			if s.number == 1 {
				s.showProgressLocked()
			}
		}
	}
}

func (s *Session) prefetchNextLocked() {
	s.futureIndex = s.order[s.number]
	s.prefetchedImage = nil
	q := s.questions[s.futureIndex]
	if q.Hint.RemoteImage() {
		s.deps.images.Start(prefetch.Future, s.futureIndex, q.Hint.FetchURL())
		return
	}
	// the slot still holds the previous prefetch
	s.deps.images.Reset(prefetch.Future, s.futureIndex)
}

// revealHintImageLocked shows the image if there is one, otherwise frees
// bandwidth for it. Without the hint pressed the wait is bounded by awaitTimeout.
func (s *Session) revealHintImageLocked(ctx context.Context) {
	if s.localImage != "" {
		if s.view != nil {
			s.view.ShowHintAsset(s.currentIndex, s.localImage)
		}
		return
	}
	if s.currentImage == nil {
		// completed, but the event has not been delivered yet
		s.currentImage = s.deps.images.Image(prefetch.Current, s.currentIndex)
	}
	if s.currentImage != nil {
		if s.view != nil {
			s.view.ShowHintImage(s.currentIndex, s.currentImage)
		}
		return
	}

	s.deps.images.Cancel(prefetch.Future, s.futureIndex)
	started := s.deps.images.State(prefetch.Current, s.currentIndex) == prefetch.Started

	if !s.hintPressed {
		if started {
			img, err := s.deps.images.Await(ctx, prefetch.Current, s.currentIndex, s.deps.awaitTimeout)
			if err == nil && img != nil {
				s.currentImage = img
				if s.view != nil {
					s.view.ShowHintImage(s.currentIndex, img)
				}
				return
			}
			s.deps.logger.Debug().Err(err).Str("session", s.id).Int("question", s.currentIndex).Msg("hint image not ready")
			s.hideProgressLocked()
		}
		if s.view != nil {
			s.view.Notify(NoticeHintImageUnavailable)
		}
		return
	}

	if started {
		s.showProgressLocked()
		return
	}
	if s.view != nil {
		s.view.Notify(NoticeHintImageUnavailable)
	}
}

// showProgressLocked pauses the countdown while the player waits for an image.
func (s *Session) showProgressLocked() {
	if s.progressShown {
		return
	}
	s.progressShown = true
	s.deps.timer.Pause()
	if s.view != nil {
		s.view.ShowProgress(0, 0)
	}
}

func (s *Session) hideProgressLocked() {
	if !s.progressShown {
		return
	}
	s.progressShown = false
	if s.view != nil {
		s.view.HideProgress()
		s.deps.timer.Resume()
	}
}

func (s *Session) finishLocked(timedOut bool) {
	s.finished = true
	s.timedOut = timedOut
	if !timedOut {
		s.deps.timer.Cancel()
	}
	s.deps.images.Cancel(prefetch.Current, s.currentIndex)
	s.deps.images.Cancel(prefetch.Future, s.futureIndex)
	s.deps.cache.Clear()
	s.currentImage = nil
	s.prefetchedImage = nil
	if s.progressShown {
		s.progressShown = false
		if s.view != nil {
			s.view.HideProgress()
		}
	}
	if s.view != nil {
		s.view.ShowSummary(s.summaryLocked())
	}
	s.deps.logger.Info().Str("session", s.id).Int("score", s.score).Int("total", len(s.order)).Bool("timed_out", timedOut).Msg("quiz finished")
}

func (s *Session) summaryLocked() domain.Summary {
	return domain.Summary{SessionID: s.id, Score: s.score, Total: len(s.order), TimedOut: s.timedOut}
}

func (s *Session) questionViewLocked() QuestionView {
	q := s.questions[s.currentIndex]
	return QuestionView{
		Number:  s.number,
		Total:   len(s.order),
		Score:   s.score,
		Index:   q.Index,
		Kind:    q.Kind,
		Prompt:  q.Prompt,
		Options: q.Options,
	}
}

// renderLocked replays the screen for a newly attached view.
func (s *Session) renderLocked(resumed bool) {
	v := s.view
	if v == nil {
		return
	}
	if s.finished {
		v.ShowSummary(s.summaryLocked())
		return
	}
	if s.currentIndex == noQuestion {
		return
	}
	v.ShowQuestion(s.questionViewLocked())
	v.ShowTick(s.deps.timer.Remaining())
	if s.hintPressed {
		q := s.questions[s.currentIndex]
		v.ShowHint(s.currentIndex, q.Hint.Text)
		switch {
		case s.localImage != "":
			v.ShowHintAsset(s.currentIndex, s.localImage)
		case s.currentImage != nil:
			v.ShowHintImage(s.currentIndex, s.currentImage)
		}
	}
	if s.progressShown {
		v.ShowProgress(0, 0)
	}
	if resumed {
		v.Notify(NoticeResumed)
	}
}
