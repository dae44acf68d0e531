package app

import (
	"strconv"
	"strings"

	"bird-quiz-service/internal/domain"
)

// Grade scores an answer between 0 (wrong) and 1 (correct).
// Checkbox answers are graded by the share of selected keys, normalised by the
// larger of the key count and the selection count, so extra picks cost points.
func Grade(q domain.Question, a domain.Answer) (float64, error) {
	if q.Kind == domain.FreeText {
		input := strings.TrimSpace(a.Text)
		for _, key := range q.Keys {
			if strings.EqualFold(input, strings.TrimSpace(key)) {
				return 1, nil
			}
		}
		return 0, nil
	}

	selected := uniqueSelection(a.Selected)
	if len(selected) == 0 {
		return 0, domain.ErrEmptyAnswer
	}
	keys := make(map[string]struct{}, len(q.Keys))
	for _, k := range q.Keys {
		keys[k] = struct{}{}
	}

	if len(keys) == 1 {
		if len(selected) == 1 {
			if _, ok := keys[selected[0]]; ok {
				return 1, nil
			}
		}
		return 0, nil
	}

	hits := 0
	for _, s := range selected {
		if _, ok := keys[s]; ok {
			hits++
		}
	}
	return float64(hits) / float64(max(len(keys), len(selected))), nil
}

func uniqueSelection(selected []int) []string {
	seen := make(map[int]struct{}, len(selected))
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, strconv.Itoa(idx))
	}
	return out
}
