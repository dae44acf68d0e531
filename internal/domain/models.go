package domain

import "strings"

// QuestionKind selects how a question is answered.
type QuestionKind string

const (
	// SingleChoice questions have exactly one key among the options.
	SingleChoice QuestionKind = "single"
	// MultiChoice questions are answered with checkboxes; every key must be selected.
	MultiChoice QuestionKind = "multi"
	// FreeText questions are answered by typing the bird name.
	FreeText QuestionKind = "text"
)

// Hint is revealed on demand for a question.
type Hint struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
}

// Question is a single bird-identification question.
// Keys hold option indices for choice questions and accepted spellings for FreeText.
type Question struct {
	Index   int          `json:"index"`
	Kind    QuestionKind `json:"kind"`
	Prompt  string       `json:"prompt"`
	Options []string     `json:"options"`
	Keys    []string     `json:"keys"`
	Hint    Hint         `json:"hint"`
}

// Catalog is the full set of questions a quiz draws from.
type Catalog struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Lookup returns the question with the given index.
func (c Catalog) Lookup(index int) (Question, bool) {
	for _, q := range c.Questions {
		if q.Index == index {
			return q, true
		}
	}
	return Question{}, false
}

// RemoteImage reports whether the hint image must be downloaded.
// Local "res/" assets ship with the client and are never fetched.
func (h Hint) RemoteImage() bool {
	return strings.HasPrefix(h.ImageURL, "http://") || strings.HasPrefix(h.ImageURL, "https://")
}

// FetchURL returns the hint image URL with doubled percent signs collapsed.
// Catalog sources escape '%' as "%%".
func (h Hint) FetchURL() string {
	return strings.ReplaceAll(h.ImageURL, "%%", "%")
}

// Answer is what the player submitted for the current question.
type Answer struct {
	Selected []int  `json:"selected,omitempty"`
	Text     string `json:"text,omitempty"`
}

// AnswerResult summarizes the outcome of a submission.
// Keys are only set once the question is closed and the answers are revealed.
type AnswerResult struct {
	QuestionIndex int      `json:"questionIndex"`
	Correct       bool     `json:"correct"`
	Grade         float64  `json:"grade"`
	HintUnlocked  bool     `json:"hintUnlocked"`
	Closed        bool     `json:"closed"`
	Last          bool     `json:"last"`
	Keys          []string `json:"keys,omitempty"`
	Score         int      `json:"score"`
	Number        int      `json:"number"`
	Total         int      `json:"total"`
}

// Summary is the final score shown at the end of a quiz.
type Summary struct {
	SessionID string `json:"sessionId"`
	Score     int    `json:"score"`
	Total     int    `json:"total"`
	TimedOut  bool   `json:"timedOut"`
}
