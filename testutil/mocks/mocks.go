// Package mocks 提供编排契约的 Mock 实现, 支持链式配置与错误注入。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/overseer/panel"
	"github.com/BaSui01/overseer/types"
)

// MockWorker implements types.Worker with a configurable result and error,
// recording every execution.
type MockWorker struct {
	mu      sync.Mutex
	result  string
	err     error
	perTask map[string]string
	calls   []types.Subtask
}

// NewMockWorker returns a worker that echoes the subtask description.
func NewMockWorker() *MockWorker {
	return &MockWorker{perTask: make(map[string]string)}
}

// WithResult sets a fixed result for every execution.
func (m *MockWorker) WithResult(result string) *MockWorker {
	m.result = result
	return m
}

// WithResultFor sets a result for one subtask ID.
func (m *MockWorker) WithResultFor(subtaskID, result string) *MockWorker {
	m.perTask[subtaskID] = result
	return m
}

// WithError makes every execution fail.
func (m *MockWorker) WithError(err error) *MockWorker {
	m.err = err
	return m
}

// Execute implements types.Worker.
func (m *MockWorker) Execute(ctx context.Context, subtask types.Subtask, execCtx types.ExecutionContext) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, subtask)
	if m.err != nil {
		return "", m.err
	}
	if r, ok := m.perTask[subtask.ID]; ok {
		return r, nil
	}
	if m.result != "" {
		return m.result, nil
	}
	return "done: " + subtask.Description, nil
}

// Calls returns the subtasks executed so far.
func (m *MockWorker) Calls() []types.Subtask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Subtask, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockJudge implements types.Judge. It approves by default; rejections and
// adjudication requests are injected per subtask or globally.
type MockJudge struct {
	mu         sync.Mutex
	review     types.Review
	perTask    map[string]types.Review
	err        error
	evaluated  []string
	configured bool
}

// NewMockJudge returns a judge that approves everything.
func NewMockJudge() *MockJudge {
	return &MockJudge{perTask: make(map[string]types.Review)}
}

// WithReview sets the verdict for every evaluation.
func (m *MockJudge) WithReview(review types.Review) *MockJudge {
	m.review = review
	m.configured = true
	return m
}

// WithReviewFor sets the verdict for one subtask ID.
func (m *MockJudge) WithReviewFor(subtaskID string, review types.Review) *MockJudge {
	m.perTask[subtaskID] = review
	return m
}

// WithError makes every evaluation fail.
func (m *MockJudge) WithError(err error) *MockJudge {
	m.err = err
	return m
}

// Evaluate implements types.Judge.
func (m *MockJudge) Evaluate(ctx context.Context, subtask types.Subtask, result string) (types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluated = append(m.evaluated, subtask.ID)
	if m.err != nil {
		return types.Review{}, m.err
	}
	if r, ok := m.perTask[subtask.ID]; ok {
		return r, nil
	}
	if m.configured {
		return m.review, nil
	}
	return types.Review{Approved: true, Quality: 1.0}, nil
}

// Evaluated returns the subtask IDs evaluated so far.
func (m *MockJudge) Evaluated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.evaluated))
	copy(out, m.evaluated)
	return out
}

// MockDecomposer implements types.Decomposer with a canned task.
type MockDecomposer struct {
	task types.Task
	err  error
}

// NewMockDecomposer returns a decomposer producing the given task shell.
func NewMockDecomposer(task types.Task) *MockDecomposer {
	return &MockDecomposer{task: task}
}

// WithError makes decomposition fail.
func (m *MockDecomposer) WithError(err error) *MockDecomposer {
	m.err = err
	return m
}

// Decompose implements types.Decomposer.
func (m *MockDecomposer) Decompose(ctx context.Context, objective string) (types.Task, error) {
	if m.err != nil {
		return types.Task{}, m.err
	}
	task := m.task
	task.Objective = objective
	return task, nil
}

// MockScorer implements panel.Scorer with fixed per-candidate scorecards.
type MockScorer struct {
	mu     sync.Mutex
	scores map[string]panel.Scorecard
	err    error
	calls  int
}

// NewMockScorer returns a scorer giving every candidate a middling card.
func NewMockScorer() *MockScorer {
	return &MockScorer{scores: make(map[string]panel.Scorecard)}
}

// WithScore sets the scorecard for one candidate.
func (m *MockScorer) WithScore(candidateID string, card panel.Scorecard) *MockScorer {
	m.scores[candidateID] = card
	return m
}

// WithError makes every scoring call fail.
func (m *MockScorer) WithError(err error) *MockScorer {
	m.err = err
	return m
}

// Score implements panel.Scorer.
func (m *MockScorer) Score(ctx context.Context, rater panel.RaterProfile, question panel.Question, candidateID, answer string) (panel.Appraisal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return panel.Appraisal{}, m.err
	}
	card, ok := m.scores[candidateID]
	if !ok {
		card = panel.Scorecard{Accuracy: 3, Relevance: 3, Completeness: 3, Explainability: 3, Efficiency: 3, Safety: 3}
	}
	return panel.Appraisal{Scores: card, Accept: true}, nil
}

// ScoreCalls returns how many appraisals were produced.
func (m *MockScorer) ScoreCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockAdjudicator implements panel.Adjudicator with a fixed winner.
type MockAdjudicator struct {
	winner string
	err    error
}

// NewMockAdjudicator returns an adjudicator that picks the given candidate.
func NewMockAdjudicator(winner string) *MockAdjudicator {
	return &MockAdjudicator{winner: winner}
}

// WithError makes both adjudication calls fail.
func (m *MockAdjudicator) WithError(err error) *MockAdjudicator {
	m.err = err
	return m
}

// DraftQuestion implements panel.Adjudicator.
func (m *MockAdjudicator) DraftQuestion(ctx context.Context, objective string) (panel.Question, error) {
	if m.err != nil {
		return panel.Question{}, m.err
	}
	return panel.Question{ID: "tiebreak", Text: "hardest part of: " + objective}, nil
}

// PickWinner implements panel.Adjudicator.
func (m *MockAdjudicator) PickWinner(ctx context.Context, question panel.Question, answers []panel.TieBreakAnswer) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.winner != "" {
		return m.winner, nil
	}
	if len(answers) > 0 {
		return answers[0].CandidateID, nil
	}
	return "", nil
}
