package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genScorecard(rt *rapid.T, label string) Scorecard {
	draw := func(name string) float64 {
		return rapid.Float64Range(0, 5).Draw(rt, label+"_"+name)
	}
	return Scorecard{
		Accuracy:       draw("accuracy"),
		Relevance:      draw("relevance"),
		Completeness:   draw("completeness"),
		Explainability: draw("explainability"),
		Efficiency:     draw("efficiency"),
		Safety:         draw("safety"),
	}
}

// 任意合法评分卡的加权总分都落在 [0, 100] 内
func TestProperty_OverallScoreBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		profileIdx := rapid.IntRange(0, 4).Draw(rt, "profile")
		w := DefaultProfiles()[profileIdx].Weights
		card := genScorecard(rt, "card")

		overall := w.Overall(card)
		assert.GreaterOrEqual(rt, overall, 0.0)
		assert.LessOrEqual(rt, overall, 100.0)
	})
}

// 逐项抬高评分不会降低加权总分
func TestProperty_OverallScoreMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		profileIdx := rapid.IntRange(0, 4).Draw(rt, "profile")
		w := DefaultProfiles()[profileIdx].Weights
		card := genScorecard(rt, "card")

		boost := rapid.Float64Range(0, 2).Draw(rt, "boost")
		raised := card
		raised.Accuracy = min(5, raised.Accuracy+boost)
		raised.Safety = min(5, raised.Safety+boost)

		assert.GreaterOrEqual(rt, w.Overall(raised), w.Overall(card))
	})
}

// 相同选票集合的排名总是一致且稳定
func TestProperty_RankingDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numCandidates := rapid.IntRange(1, 6).Draw(rt, "numCandidates")
		candidates := make([]string, numCandidates)
		for i := range candidates {
			candidates[i] = rapid.StringMatching(`cand-[a-z]{4}`).Draw(rt, "candidate")
		}

		var ballots []Ballot
		for _, c := range candidates {
			numBallots := rapid.IntRange(1, 5).Draw(rt, "numBallots")
			for j := 0; j < numBallots; j++ {
				ballots = append(ballots, Ballot{
					CandidateID: c,
					Overall:     rapid.Float64Range(0, 100).Draw(rt, "overall"),
				})
			}
		}

		first := rankCandidates(candidates, ballots)
		second := rankCandidates(candidates, ballots)
		require.Equal(rt, first, second)

		// 排名分数单调不增
		for i := 1; i < len(first); i++ {
			assert.GreaterOrEqual(rt, first[i-1].MeanScore, first[i].MeanScore)
		}
	})
}
