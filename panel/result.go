package panel

import (
	"fmt"
	"sort"
	"time"
)

// Confidence 共识结果的置信级别。
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// RankEntry pairs a candidate with its mean overall score.
type RankEntry struct {
	CandidateID string  `json:"candidate_id"`
	MeanScore   float64 `json:"mean_score"`
}

// Exchange is one question/answer pair of the interview transcript.
type Exchange struct {
	Rater    string `json:"rater"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CandidateTranscript collects one candidate's interview exchanges.
type CandidateTranscript struct {
	CandidateID string     `json:"candidate_id"`
	Exchanges   []Exchange `json:"exchanges"`
}

// Abstention records a rater that could not score an answer. The ballot
// is simply missing; majority counting still runs over the full panel
// size, so enough abstentions force the tie-break round.
type Abstention struct {
	CandidateID string `json:"candidate_id"`
	Rater       string `json:"rater"`
	QuestionID  string `json:"question_id"`
	Reason      string `json:"reason"`
}

// TieBreak records the single escalation round, when one ran.
type TieBreak struct {
	Question   Question          `json:"question"`
	Candidates []string          `json:"candidates"`
	Answers    map[string]string `json:"answers"`
	Winner     string            `json:"winner"`
	Forced     bool              `json:"forced"` // winner fell back to ranking order
}

// Result is the full outcome of one panel evaluation.
type Result struct {
	SessionID    string                `json:"session_id"`
	Objective    string                `json:"objective"`
	Candidates   []string              `json:"candidates"`
	Raters       []string              `json:"raters"`
	Ballots      []Ballot              `json:"ballots"`
	Abstentions  []Abstention          `json:"abstentions,omitempty"`
	Ranking      []RankEntry           `json:"ranking"`
	Winner       string                `json:"winner"`
	Confidence   Confidence            `json:"confidence"`
	TieBreakUsed bool                  `json:"tie_break_used"`
	Transcript   []CandidateTranscript `json:"transcript"`
	TieBreak     *TieBreak             `json:"tie_break,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}

// rankCandidates sorts by mean overall score descending; the sort is
// stable so tied candidates keep their registration order.
func rankCandidates(candidateIDs []string, ballots []Ballot) []RankEntry {
	sums := make(map[string]float64, len(candidateIDs))
	counts := make(map[string]int, len(candidateIDs))
	for _, b := range ballots {
		sums[b.CandidateID] += b.Overall
		counts[b.CandidateID]++
	}

	ranking := make([]RankEntry, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		mean := 0.0
		if counts[id] > 0 {
			mean = sums[id] / float64(counts[id])
		}
		ranking = append(ranking, RankEntry{CandidateID: id, MeanScore: mean})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].MeanScore > ranking[j].MeanScore
	})
	return ranking
}

// favorCounts reports, per candidate, how many raters favor it: a rater
// favors a candidate when its accepts outnumber its rejects across that
// candidate's answers.
func favorCounts(candidateIDs, raters []string, ballots []Ballot) map[string]int {
	type key struct{ candidate, rater string }
	accepts := make(map[key]int)
	rejects := make(map[key]int)
	for _, b := range ballots {
		k := key{b.CandidateID, b.Rater}
		if b.Accept {
			accepts[k]++
		} else {
			rejects[k]++
		}
	}

	favor := make(map[string]int, len(candidateIDs))
	for _, c := range candidateIDs {
		for _, r := range raters {
			k := key{c, r}
			if accepts[k] > rejects[k] {
				favor[c]++
			}
		}
	}
	return favor
}

// VoteSummary renders per-candidate favor tallies as human-readable
// strings, e.g. "candidate-a: unanimous (5-0)" or "candidate-b: 3-2 split".
func (r *Result) VoteSummary() []string {
	favor := favorCounts(r.Candidates, r.Raters, r.Ballots)
	total := len(r.Raters)

	out := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		f := favor[c]
		against := total - f
		switch {
		case f == total:
			out = append(out, fmt.Sprintf("%s: unanimous (%d-0)", c, f))
		case f == 0:
			out = append(out, fmt.Sprintf("%s: unanimous against (0-%d)", c, against))
		default:
			out = append(out, fmt.Sprintf("%s: %d-%d split", c, f, against))
		}
	}
	return out
}
