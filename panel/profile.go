package panel

import (
	"fmt"
	"math"

	"github.com/BaSui01/overseer/types"
)

// Scorecard holds one rater's raw metric scores for one answer, each on
// the 0-5 scale.
type Scorecard struct {
	Accuracy       float64 `json:"accuracy"`
	Relevance      float64 `json:"relevance"`
	Completeness   float64 `json:"completeness"`
	Explainability float64 `json:"explainability"`
	Efficiency     float64 `json:"efficiency"`
	Safety         float64 `json:"safety"`
}

func (s Scorecard) validate() error {
	for name, v := range map[string]float64{
		"accuracy":       s.Accuracy,
		"relevance":      s.Relevance,
		"completeness":   s.Completeness,
		"explainability": s.Explainability,
		"efficiency":     s.Efficiency,
		"safety":         s.Safety,
	} {
		if v < 0 || v > 5 {
			return types.NewError(types.ErrScoringFailed,
				fmt.Sprintf("metric %s out of range: %v", name, v))
		}
	}
	return nil
}

// Weights is a rater's per-metric weight vector. The six weights must sum
// to 1.
type Weights struct {
	Accuracy       float64 `json:"accuracy"`
	Relevance      float64 `json:"relevance"`
	Completeness   float64 `json:"completeness"`
	Explainability float64 `json:"explainability"`
	Efficiency     float64 `json:"efficiency"`
	Safety         float64 `json:"safety"`
}

func (w Weights) sum() float64 {
	return w.Accuracy + w.Relevance + w.Completeness + w.Explainability + w.Efficiency + w.Safety
}

// Overall folds a scorecard into the rater's weighted 0-100 score,
// rounded to two decimals.
func (w Weights) Overall(s Scorecard) float64 {
	raw := w.Accuracy*s.Accuracy/5 +
		w.Relevance*s.Relevance/5 +
		w.Completeness*s.Completeness/5 +
		w.Explainability*s.Explainability/5 +
		w.Efficiency*s.Efficiency/5 +
		w.Safety*s.Safety/5
	return math.Round(raw*100*100) / 100
}

// RaterProfile describes one panel seat: a named perspective with its own
// weight vector. Specialty steers question selection.
type RaterProfile struct {
	Name      string  `json:"name"`
	Specialty string  `json:"specialty"`
	Weights   Weights `json:"weights"`
}

// DefaultProfiles returns the five stock rater perspectives. The first n
// are used when building a default panel of size n.
func DefaultProfiles() []RaterProfile {
	return []RaterProfile{
		{
			Name:      "rater_technical",
			Specialty: "technical",
			Weights:   Weights{Accuracy: 0.4, Relevance: 0.2, Completeness: 0.2, Explainability: 0.1, Efficiency: 0.05, Safety: 0.05},
		},
		{
			Name:      "rater_creative",
			Specialty: "creative",
			Weights:   Weights{Accuracy: 0.1, Relevance: 0.3, Completeness: 0.2, Explainability: 0.2, Efficiency: 0.1, Safety: 0.1},
		},
		{
			Name:      "rater_efficiency",
			Specialty: "efficiency",
			Weights:   Weights{Accuracy: 0.2, Relevance: 0.2, Completeness: 0.1, Explainability: 0.1, Efficiency: 0.3, Safety: 0.1},
		},
		{
			Name:      "rater_user_centric",
			Specialty: "user_centric",
			Weights:   Weights{Accuracy: 0.15, Relevance: 0.25, Completeness: 0.15, Explainability: 0.3, Efficiency: 0.05, Safety: 0.1},
		},
		{
			Name:      "rater_risk",
			Specialty: "risk",
			Weights:   Weights{Accuracy: 0.15, Relevance: 0.15, Completeness: 0.15, Explainability: 0.1, Efficiency: 0.05, Safety: 0.4},
		},
	}
}

// Ballot is one rater's structured evaluation of one candidate's answer
// to one question.
type Ballot struct {
	CandidateID string    `json:"candidate_id"`
	Rater       string    `json:"rater"`
	QuestionID  string    `json:"question_id"`
	Scores      Scorecard `json:"scores"`
	Overall     float64   `json:"overall"`
	Accept      bool      `json:"accept"`
	Rationale   string    `json:"rationale,omitempty"`
}
