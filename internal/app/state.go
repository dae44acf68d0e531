package app

import (
	"time"

	"bird-quiz-service/internal/prefetch"
)

// SessionState is the persisted form of a session. Images are not part of
// it; they are taken from the image cache or downloaded again on restore.
type SessionState struct {
	ID           string                  `json:"id"`
	CatalogID    string                  `json:"catalogId"`
	Order        []int                   `json:"order"`
	Number       int                     `json:"number"`
	Score        int                     `json:"score"`
	CurrentIndex int                     `json:"currentIndex"`
	FutureIndex  int                     `json:"futureIndex"`
	HintUnlocked bool                    `json:"hintUnlocked"`
	HintPressed  bool                    `json:"hintPressed"`
	Closed       bool                    `json:"closed"`
	Finished     bool                    `json:"finished"`
	TimedOut     bool                    `json:"timedOut"`
	Remaining    time.Duration           `json:"remaining"`
	Slots        []prefetch.SlotSnapshot `json:"slots"`
	SavedAt      time.Time               `json:"savedAt"`
}
