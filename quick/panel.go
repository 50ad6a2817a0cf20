package quick

import (
	"context"
	"sort"
	"strings"

	"github.com/BaSui01/overseer/panel"
)

// DefaultQuestionBank returns a general-purpose interview bank large
// enough for the five stock rater profiles at up to two rounds each.
func DefaultQuestionBank() []panel.Question {
	return []panel.Question{
		{ID: "q-approach", Text: "Outline the approach you would take and the order of the steps.", Focus: "technical"},
		{ID: "q-failure", Text: "What is the most likely failure mode, and how would you detect it early?", Focus: "risk"},
		{ID: "q-tradeoff", Text: "Name one trade-off in your approach and what you give up by choosing it.", Focus: "technical"},
		{ID: "q-alternative", Text: "Describe an alternative approach you rejected and why.", Focus: "creative"},
		{ID: "q-shortcut", Text: "Where could the work be shortened without hurting the result?", Focus: "efficiency"},
		{ID: "q-audience", Text: "Who consumes the output, and how does that shape its form?", Focus: "user_centric"},
		{ID: "q-verify", Text: "How would you verify the result is correct before handing it off?", Focus: "risk"},
		{ID: "q-scope", Text: "What is explicitly out of scope for this work, and why?", Focus: "user_centric"},
		{ID: "q-resources", Text: "What inputs or prior results do you depend on to start?", Focus: "efficiency"},
		{ID: "q-novelty", Text: "What part of this objective needs a non-obvious idea?", Focus: "creative"},
	}
}

// HeuristicScorer is a deterministic stand-in for an LLM-backed scorer:
// it grades an answer by how much of the question's vocabulary it covers
// and by its length. Useful for development and tests; never a substitute
// for a real judgment model.
type HeuristicScorer struct{}

// Score implements panel.Scorer.
func (HeuristicScorer) Score(ctx context.Context, rater panel.RaterProfile, question panel.Question, candidateID, answer string) (panel.Appraisal, error) {
	coverage := keywordCoverage(question.Text, answer)
	depth := lengthScore(answer)

	base := 2.5 + 2.5*coverage
	card := panel.Scorecard{
		Accuracy:       base,
		Relevance:      2.5 + 2.5*coverage,
		Completeness:   depth,
		Explainability: depth,
		Efficiency:     5 - depth/2,
		Safety:         4,
	}
	return panel.Appraisal{
		Scores:    card,
		Accept:    strings.TrimSpace(answer) != "",
		Rationale: "heuristic: keyword coverage and answer depth",
	}, nil
}

// HeuristicAdjudicator breaks ties deterministically: the harder question
// is a fixed probe on the objective, and the winner is the answer with
// the highest coverage of the objective's vocabulary, candidate ID order
// breaking exact ties.
type HeuristicAdjudicator struct{}

// DraftQuestion implements panel.Adjudicator.
func (HeuristicAdjudicator) DraftQuestion(ctx context.Context, objective string) (panel.Question, error) {
	return panel.Question{
		ID:    "q-tiebreak",
		Text:  "For the objective \"" + objective + "\": name the single hardest part and how you would resolve it.",
		Focus: "risk",
	}, nil
}

// PickWinner implements panel.Adjudicator.
func (HeuristicAdjudicator) PickWinner(ctx context.Context, question panel.Question, answers []panel.TieBreakAnswer) (string, error) {
	sorted := make([]panel.TieBreakAnswer, len(answers))
	copy(sorted, answers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CandidateID < sorted[j].CandidateID })

	winner := ""
	best := -1.0
	for _, a := range sorted {
		score := keywordCoverage(question.Text, a.Answer)
		if score > best {
			best = score
			winner = a.CandidateID
		}
	}
	return winner, nil
}

// keywordCoverage is the fraction of the question's significant words
// (longer than 3 runes) that appear in the answer.
func keywordCoverage(question, answer string) float64 {
	lowerAnswer := strings.ToLower(answer)
	var total, hit int
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, ".,?!:;\"'")
		if len([]rune(w)) <= 3 {
			continue
		}
		total++
		if strings.Contains(lowerAnswer, w) {
			hit++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}

// lengthScore maps answer length onto the 0-5 scale, saturating at 400
// runes.
func lengthScore(answer string) float64 {
	n := len([]rune(strings.TrimSpace(answer)))
	if n >= 400 {
		return 5
	}
	return 5 * float64(n) / 400
}
