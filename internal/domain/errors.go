package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session id is unknown.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionFinished is returned when an action arrives after the final score was shown.
	ErrSessionFinished = errors.New("quiz session already finished")
	// ErrCatalogNotFound indicates the question catalog could not be loaded.
	ErrCatalogNotFound = errors.New("question catalog not found")
	// ErrQuestionNotFound indicates a question index outside the catalog.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuestionCount is returned when the picked count is outside 1..max.
	ErrInvalidQuestionCount = errors.New("invalid question count")
	// ErrAlreadyAnswered is returned when the current question was already submitted.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNotAnswered is returned when moving on before submitting the current question.
	ErrNotAnswered = errors.New("question not answered yet")
	// ErrEmptyAnswer is returned when a choice question is submitted without a selection.
	ErrEmptyAnswer = errors.New("no option selected")
	// ErrHintLocked is returned when the hint is requested before a wrong attempt unlocked it.
	ErrHintLocked = errors.New("hint not available yet")
)
