package app

import (
	"context"
	"image"
	"time"

	"bird-quiz-service/internal/domain"
)

// SessionRepository keeps live sessions (in-memory).
type SessionRepository interface {
	Save(s *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
}

// CatalogRepository loads question catalogs (from cache/backing store).
type CatalogRepository interface {
	GetCatalog(ctx context.Context, catalogID string) (domain.Catalog, error)
}

// StateStore persists suspended sessions so they can be rebuilt after the live one is gone.
type StateStore interface {
	SaveState(ctx context.Context, st SessionState) error
	LoadState(ctx context.Context, sessionID string) (SessionState, error)
	DeleteState(ctx context.Context, sessionID string) error
}

// Notice is a short user-facing message.
type Notice string

const (
	NoticeHintImageUnavailable Notice = "hint_image_unavailable"
	NoticeNetworkUnavailable   Notice = "network_unavailable"
	NoticeResumed              Notice = "resumed"
)

// QuestionView is what a client needs to render the current question.
// Keys are never part of it.
type QuestionView struct {
	Number  int                 `json:"number"`
	Total   int                 `json:"total"`
	Score   int                 `json:"score"`
	Index   int                 `json:"index"`
	Kind    domain.QuestionKind `json:"kind"`
	Prompt  string              `json:"prompt"`
	Options []string            `json:"options,omitempty"`
}

// View is the client attached to a session. Calls are made while the session
// is locked, so implementations must not call back into the session.
type View interface {
	ShowQuestion(q QuestionView)
	ShowHint(questionIndex int, text string)
	ShowHintImage(questionIndex int, img image.Image)
	ShowHintAsset(questionIndex int, path string)
	ShowProgress(primary, secondary int)
	HideProgress()
	Notify(n Notice)
	ShowTick(remaining time.Duration)
	ShowSummary(s domain.Summary)
}
