package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bird-quiz-service/internal/countdown"
	"bird-quiz-service/internal/domain"
	"bird-quiz-service/internal/imagecache"
	"bird-quiz-service/internal/imagefetch"
	"bird-quiz-service/internal/prefetch"
)

// Options configures QuizService. Zero values select the defaults noted per field.
type Options struct {
	// CatalogID names the catalog sessions draw questions from.
	CatalogID string
	// QuestionTime is the time budget per question (30s).
	QuestionTime time.Duration
	// MaxQuestions caps the count a player can pick (catalog size).
	MaxQuestions int
	// CacheSize is the per-session image cache capacity (imagecache.DefaultCapacity).
	CacheSize      int
	Target         imagefetch.Target
	ConnectTimeout time.Duration
	// AwaitTimeout bounds the wait for an image when a correct answer reveals it (15ms).
	AwaitTimeout time.Duration
	TickInterval time.Duration
	Reachable    imagefetch.Reachability
	// NewFetcher builds the downloader of a session; tests swap it out.
	NewFetcher func(cache *imagecache.Cache) prefetch.Fetcher
	// Shuffle returns a permutation of [0, n); rand.Perm when nil.
	Shuffle func(n int) []int
	Logger  zerolog.Logger
}

// QuizService contains the quiz use cases.
type QuizService struct {
	sessions SessionRepository
	catalogs CatalogRepository
	states   StateStore
	opts     Options
}

// DefaultCatalogID is used when Options.CatalogID is empty.
const DefaultCatalogID = "birds"

func NewQuizService(store SessionRepository, catalogs CatalogRepository, states StateStore, opts Options) *QuizService {
	if opts.CatalogID == "" {
		opts.CatalogID = DefaultCatalogID
	}
	if opts.QuestionTime <= 0 {
		opts.QuestionTime = 30 * time.Second
	}
	if opts.AwaitTimeout <= 0 {
		opts.AwaitTimeout = 15 * time.Millisecond
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Target == (imagefetch.Target{}) {
		opts.Target = imagefetch.DefaultTarget
	}
	if opts.Shuffle == nil {
		opts.Shuffle = rand.Perm
	}
	return &QuizService{sessions: store, catalogs: catalogs, states: states, opts: opts}
}

// MaxQuestions returns how many questions a player may pick.
func (s *QuizService) MaxQuestions(ctx context.Context) (int, error) {
	catalog, err := s.catalogs.GetCatalog(ctx, s.opts.CatalogID)
	if err != nil {
		return 0, err
	}
	return s.maxFor(catalog), nil
}

// Start creates a session of count randomly ordered questions and loads the first one.
func (s *QuizService) Start(ctx context.Context, count int) (*Session, error) {
	catalog, err := s.catalogs.GetCatalog(ctx, s.opts.CatalogID)
	if err != nil {
		return nil, err
	}
	if limit := s.maxFor(catalog); count < 1 || count > limit {
		return nil, fmt.Errorf("%w: %d not in 1..%d", domain.ErrInvalidQuestionCount, count, limit)
	}

	perm := s.opts.Shuffle(len(catalog.Questions))
	order := make([]int, count)
	for i := range order {
		order[i] = catalog.Questions[perm[i]].Index
	}

	session := newSession(uuid.NewString(), catalog, order, s.newDeps())
	session.begin(time.Duration(count) * s.opts.QuestionTime)
	s.sessions.Save(session)

	s.opts.Logger.Info().Str("session", session.ID()).Int("questions", count).Msg("quiz started")
	return session, nil
}

// Session returns a live session, rebuilding it from saved state when it is
// no longer in memory.
func (s *QuizService) Session(ctx context.Context, id string) (*Session, error) {
	if session, ok := s.sessions.Get(id); ok {
		return session, nil
	}
	if s.states == nil {
		return nil, domain.ErrSessionNotFound
	}
	st, err := s.states.LoadState(ctx, id)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalogs.GetCatalog(ctx, st.CatalogID)
	if err != nil {
		return nil, err
	}
	for _, idx := range st.Order {
		if _, ok := catalog.Lookup(idx); !ok {
			return nil, fmt.Errorf("%w: saved question %d", domain.ErrQuestionNotFound, idx)
		}
	}

	session := newSession(st.ID, catalog, st.Order, s.newDeps())
	session.restore(st)
	s.sessions.Save(session)
	s.opts.Logger.Info().Str("session", id).Int("number", st.Number).Msg("quiz session restored")
	return session, nil
}

// Suspend detaches v and saves the session state. Nothing happens when
// another client took over the session in the meantime.
func (s *QuizService) Suspend(ctx context.Context, session *Session, v View) error {
	if !session.Detach(v) {
		return nil
	}
	if s.states == nil || session.Finished() {
		return nil
	}
	if err := s.states.SaveState(ctx, session.State()); err != nil {
		return fmt.Errorf("save session %s: %w", session.ID(), err)
	}
	return nil
}

// End finishes the quiz, drops the session and returns the final score.
func (s *QuizService) End(ctx context.Context, id string) (domain.Summary, error) {
	session, err := s.Session(ctx, id)
	if err != nil {
		return domain.Summary{}, err
	}
	summary := session.Finish()
	s.drop(ctx, session)
	return summary, nil
}

// Release drops a finished session.
func (s *QuizService) Release(ctx context.Context, session *Session) {
	if session.Finished() {
		s.drop(ctx, session)
	}
}

func (s *QuizService) drop(ctx context.Context, session *Session) {
	session.Close()
	s.sessions.Delete(session.ID())
	if s.states == nil {
		return
	}
	if err := s.states.DeleteState(ctx, session.ID()); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		s.opts.Logger.Warn().Err(err).Str("session", session.ID()).Msg("saved session state not removed")
	}
}

func (s *QuizService) maxFor(catalog domain.Catalog) int {
	limit := len(catalog.Questions)
	if s.opts.MaxQuestions > 0 && s.opts.MaxQuestions < limit {
		limit = s.opts.MaxQuestions
	}
	return limit
}

func (s *QuizService) newDeps() sessionDeps {
	logger := s.opts.Logger
	cache := imagecache.New(s.opts.CacheSize, logger)

	var fetcher prefetch.Fetcher
	if s.opts.NewFetcher != nil {
		fetcher = s.opts.NewFetcher(cache)
	} else {
		fetcher = imagefetch.NewFetcher(cache, s.opts.ConnectTimeout, imagefetch.WithLogger(logger))
	}

	return sessionDeps{
		images: prefetch.NewManager(prefetch.Config{
			Fetcher:   fetcher,
			Cache:     cache,
			Target:    s.opts.Target,
			Reachable: s.opts.Reachable,
			Logger:    logger,
		}),
		cache:        cache,
		timer:        countdown.New(logger),
		awaitTimeout: s.opts.AwaitTimeout,
		tickInterval: s.opts.TickInterval,
		logger:       logger,
		now:          time.Now,
	}
}
