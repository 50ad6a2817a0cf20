package panel

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/overseer/types"
)

// Candidate answers interview questions. In orchestration the candidates
// are the workers competing for a subtask.
type Candidate interface {
	ID() string
	Answer(ctx context.Context, question Question) (string, error)
}

// Appraisal is a scorer's structured judgment of one answer from one
// rater's perspective.
type Appraisal struct {
	Scores    Scorecard
	Accept    bool
	Rationale string
}

// Scorer produces one appraisal per (rater, question, answer). LLM-backed
// implementations live in the embedding application.
type Scorer interface {
	Score(ctx context.Context, rater RaterProfile, question Question, candidateID, answer string) (Appraisal, error)
}

// Adjudicator runs the single tie-break round: it drafts one harder
// question and picks a winner among the leading candidates' answers.
type Adjudicator interface {
	DraftQuestion(ctx context.Context, objective string) (Question, error)
	PickWinner(ctx context.Context, question Question, answers []TieBreakAnswer) (string, error)
}

// TieBreakAnswer pairs a leading candidate with its tie-break answer.
type TieBreakAnswer struct {
	CandidateID string
	Answer      string
}

// Config tunes an evaluation session.
type Config struct {
	// Rounds is how many questions each rater selects. The bank must
	// hold at least Rounds × len(raters) questions.
	Rounds int
	// MaxConcurrentScores bounds parallel Scorer calls.
	MaxConcurrentScores int
	// ScoreRate throttles Scorer calls; zero means no throttle.
	ScoreRate  rate.Limit
	ScoreBurst int
}

// DefaultConfig returns the stock session settings.
func DefaultConfig() Config {
	return Config{
		Rounds:              1,
		MaxConcurrentScores: 4,
	}
}

// Panel runs a structured multi-rater evaluation over candidates and
// picks a winner by majority vote, with one tie-break escalation.
type Panel struct {
	raters      []RaterProfile
	bank        []Question
	scorer      Scorer
	adjudicator Adjudicator
	config      Config
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewPanel validates the configuration and builds a panel. The rater
// count must be odd and at least 3, every profile distinct with weights
// summing to 1, and the bank large enough for Rounds × raters selections.
func NewPanel(raters []RaterProfile, bank []Question, scorer Scorer, adjudicator Adjudicator, config Config, logger *zap.Logger) (*Panel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Rounds <= 0 {
		config.Rounds = 1
	}
	if config.MaxConcurrentScores <= 0 {
		config.MaxConcurrentScores = 4
	}

	if scorer == nil {
		return nil, types.NewError(types.ErrPanelConfig, "scorer is required")
	}
	if len(raters) < 3 {
		return nil, types.NewError(types.ErrPanelConfig,
			fmt.Sprintf("panel needs at least 3 raters, got %d", len(raters)))
	}
	if len(raters)%2 == 0 {
		return nil, types.NewError(types.ErrPanelConfig,
			fmt.Sprintf("panel size must be odd to avoid tied votes, got %d", len(raters)))
	}
	seenNames := make(map[string]bool, len(raters))
	seenWeights := make(map[Weights]bool, len(raters))
	for _, r := range raters {
		if seenNames[r.Name] {
			return nil, types.NewError(types.ErrPanelConfig,
				fmt.Sprintf("duplicate rater name %q", r.Name))
		}
		seenNames[r.Name] = true
		if seenWeights[r.Weights] {
			return nil, types.NewError(types.ErrPanelConfig,
				fmt.Sprintf("rater %q duplicates another rater's weight profile", r.Name))
		}
		seenWeights[r.Weights] = true
		if math.Abs(r.Weights.sum()-1) > 1e-6 {
			return nil, types.NewError(types.ErrPanelConfig,
				fmt.Sprintf("rater %q weights sum to %v, want 1", r.Name, r.Weights.sum()))
		}
	}
	if need := config.Rounds * len(raters); len(bank) < need {
		return nil, types.NewError(types.ErrQuestionBankExhausted,
			fmt.Sprintf("question bank holds %d questions, need %d for %d rounds x %d raters",
				len(bank), need, config.Rounds, len(raters)))
	}

	var limiter *rate.Limiter
	if config.ScoreRate > 0 {
		burst := config.ScoreBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(config.ScoreRate, burst)
	}

	return &Panel{
		raters:      raters,
		bank:        bank,
		scorer:      scorer,
		adjudicator: adjudicator,
		config:      config,
		limiter:     limiter,
		logger:      logger.With(zap.String("component", "consensus_panel")),
	}, nil
}

// NewDefaultPanel builds a panel of size n over the stock profiles.
func NewDefaultPanel(n int, bank []Question, scorer Scorer, adjudicator Adjudicator, config Config, logger *zap.Logger) (*Panel, error) {
	profiles := DefaultProfiles()
	if n > len(profiles) {
		return nil, types.NewError(types.ErrPanelConfig,
			fmt.Sprintf("at most %d default raters are defined, got %d", len(profiles), n))
	}
	if n <= 0 {
		n = len(profiles)
	}
	return NewPanel(profiles[:n], bank, scorer, adjudicator, config, logger)
}

type askedQuestion struct {
	rater    RaterProfile
	question Question
}

// Evaluate interviews every candidate and returns the consensus outcome.
//
// Protocol: each rater selects one question per round from the shared
// bank; every candidate answers every selected question; every rater then
// scores every answer. A rater whose scoring call fails abstains, while
// majority counting keeps running over the full panel size. A candidate
// wins on a strict majority of favoring raters; without one, exactly one
// tie-break round runs over the top two ranked candidates with confidence
// forced low.
func (p *Panel) Evaluate(ctx context.Context, objective string, candidates []Candidate) (*Result, error) {
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrPanelConfig, "no candidates to evaluate")
	}

	started := time.Now().UTC()
	result := &Result{
		SessionID: uuid.NewString(),
		Objective: objective,
		StartedAt: started,
	}
	for _, c := range candidates {
		result.Candidates = append(result.Candidates, c.ID())
	}
	for _, r := range p.raters {
		result.Raters = append(result.Raters, r.Name)
	}

	// Question selection happens once per session; every candidate faces
	// the same set.
	selector := newQuestionSelector(p.bank)
	var asked []askedQuestion
	for round := 0; round < p.config.Rounds; round++ {
		for _, r := range p.raters {
			q, ok := selector.pick(r.Specialty)
			if !ok {
				return nil, types.NewError(types.ErrQuestionBankExhausted,
					"question bank exhausted during selection")
			}
			asked = append(asked, askedQuestion{rater: r, question: q})
		}
	}

	for _, c := range candidates {
		transcript := CandidateTranscript{CandidateID: c.ID()}
		for _, aq := range asked {
			answer, err := c.Answer(ctx, aq.question)
			if err != nil {
				return nil, types.NewError(types.ErrScoringFailed,
					fmt.Sprintf("candidate %s failed to answer question %s", c.ID(), aq.question.ID)).
					WithCause(err)
			}
			transcript.Exchanges = append(transcript.Exchanges, Exchange{
				Rater:    aq.rater.Name,
				Question: aq.question.Text,
				Answer:   answer,
			})

			ballots, abstained, err := p.scoreAnswer(ctx, c.ID(), aq.question, answer)
			if err != nil {
				return nil, err
			}
			result.Ballots = append(result.Ballots, ballots...)
			result.Abstentions = append(result.Abstentions, abstained...)
		}
		result.Transcript = append(result.Transcript, transcript)
	}

	result.Ranking = rankCandidates(result.Candidates, result.Ballots)
	p.decide(ctx, result, candidates)

	result.FinishedAt = time.Now().UTC()
	p.logger.Info("panel evaluation finished",
		zap.String("session_id", result.SessionID),
		zap.String("winner", result.Winner),
		zap.String("confidence", string(result.Confidence)),
		zap.Bool("tie_break_used", result.TieBreakUsed),
	)
	return result, nil
}

// scoreAnswer has every rater score one answer, throttled and bounded.
// A rater whose scoring call fails or returns an invalid scorecard
// abstains; only a full-panel abstention fails the evaluation.
func (p *Panel) scoreAnswer(ctx context.Context, candidateID string, question Question, answer string) ([]Ballot, []Abstention, error) {
	ballots := make([]*Ballot, len(p.raters))
	abstained := make([]*Abstention, len(p.raters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrentScores)
	for i, r := range p.raters {
		g.Go(func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			appraisal, err := p.scorer.Score(gctx, r, question, candidateID, answer)
			if err == nil {
				err = appraisal.Scores.validate()
			}
			if err != nil {
				p.logger.Warn("rater abstained",
					zap.String("rater", r.Name),
					zap.String("candidate", candidateID),
					zap.String("question", question.ID),
					zap.Error(err))
				abstained[i] = &Abstention{
					CandidateID: candidateID,
					Rater:       r.Name,
					QuestionID:  question.ID,
					Reason:      err.Error(),
				}
				return nil
			}
			ballots[i] = &Ballot{
				CandidateID: candidateID,
				Rater:       r.Name,
				QuestionID:  question.ID,
				Scores:      appraisal.Scores,
				Overall:     r.Weights.Overall(appraisal.Scores),
				Accept:      appraisal.Accept,
				Rationale:   appraisal.Rationale,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var outBallots []Ballot
	var outAbstained []Abstention
	for i := range p.raters {
		if ballots[i] != nil {
			outBallots = append(outBallots, *ballots[i])
		}
		if abstained[i] != nil {
			outAbstained = append(outAbstained, *abstained[i])
		}
	}
	if len(outBallots) == 0 {
		return nil, nil, types.NewError(types.ErrScoringFailed,
			fmt.Sprintf("every rater failed to score candidate %s on question %s", candidateID, question.ID))
	}
	return outBallots, outAbstained, nil
}

// decide fills Winner/Confidence/TieBreakUsed from the collected ballots.
func (p *Panel) decide(ctx context.Context, result *Result, candidates []Candidate) {
	favor := favorCounts(result.Candidates, result.Raters, result.Ballots)
	total := len(p.raters)

	// Best-ranked candidate with a strict majority wins outright.
	for _, entry := range result.Ranking {
		f := favor[entry.CandidateID]
		if f*2 > total {
			result.Winner = entry.CandidateID
			result.Confidence = ConfidenceMedium
			if float64(f) >= 0.8*float64(total) {
				result.Confidence = ConfidenceHigh
			}
			return
		}
	}

	p.runTieBreak(ctx, result, candidates)
}

// runTieBreak executes the single escalation round over the leading
// candidates. Inconclusive adjudication falls back to the ranking leader.
func (p *Panel) runTieBreak(ctx context.Context, result *Result, candidates []Candidate) {
	result.TieBreakUsed = true
	result.Confidence = ConfidenceLow

	leaders := result.Ranking
	if len(leaders) > 2 {
		leaders = leaders[:2]
	}
	leaderIDs := make([]string, len(leaders))
	for i, l := range leaders {
		leaderIDs[i] = l.CandidateID
	}

	tb := &TieBreak{Candidates: leaderIDs, Answers: make(map[string]string)}
	result.TieBreak = tb

	// Without an adjudicator the documented fallback applies.
	if p.adjudicator == nil {
		tb.Winner = leaderIDs[0]
		tb.Forced = true
		result.Winner = tb.Winner
		return
	}

	question, err := p.adjudicator.DraftQuestion(ctx, result.Objective)
	if err != nil {
		p.logger.Warn("tie-break question drafting failed, falling back to ranking",
			zap.Error(err))
		tb.Winner = leaderIDs[0]
		tb.Forced = true
		result.Winner = tb.Winner
		return
	}
	tb.Question = question

	answers := make([]TieBreakAnswer, 0, len(leaderIDs))
	for _, c := range candidatesByID(candidates, leaderIDs) {
		answer, err := c.Answer(ctx, question)
		if err != nil {
			p.logger.Warn("tie-break answer failed",
				zap.String("candidate", c.ID()), zap.Error(err))
			continue
		}
		tb.Answers[c.ID()] = answer
		answers = append(answers, TieBreakAnswer{CandidateID: c.ID(), Answer: answer})
	}

	winner := ""
	if len(answers) > 0 {
		picked, err := p.adjudicator.PickWinner(ctx, question, answers)
		if err != nil {
			p.logger.Warn("tie-break adjudication failed", zap.Error(err))
		} else {
			for _, id := range leaderIDs {
				if id == picked {
					winner = picked
					break
				}
			}
		}
	}
	if winner == "" {
		winner = leaderIDs[0]
		tb.Forced = true
	}

	tb.Winner = winner
	result.Winner = winner
}

func candidatesByID(candidates []Candidate, ids []string) []Candidate {
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		for _, c := range candidates {
			if c.ID() == id {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
