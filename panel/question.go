package panel

import (
	"strings"
)

// Question is one entry of the shared question bank. Focus describes what
// the question probes and steers which rater picks it.
type Question struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Focus string `json:"focus,omitempty"`
}

// questionSelector hands out bank questions round-robin, marking each as
// used so no question is asked twice in one evaluation.
type questionSelector struct {
	bank []Question
	used map[string]bool
}

func newQuestionSelector(bank []Question) *questionSelector {
	return &questionSelector{
		bank: bank,
		used: make(map[string]bool, len(bank)),
	}
}

// pick selects for the rater: the first unused question whose focus
// matches the rater's specialty, else the first unused question. The
// second argument reports whether anything was left to pick.
func (qs *questionSelector) pick(specialty string) (Question, bool) {
	for _, q := range qs.bank {
		if qs.used[q.ID] {
			continue
		}
		if strings.Contains(strings.ToLower(q.Focus), strings.ToLower(specialty)) {
			qs.used[q.ID] = true
			return q, true
		}
	}
	for _, q := range qs.bank {
		if qs.used[q.ID] {
			continue
		}
		qs.used[q.ID] = true
		return q, true
	}
	return Question{}, false
}
