package types

import "context"

// ExecutionContext carries everything a worker needs beyond the subtask
// itself: the run objective, results of completed dependencies, and the
// judge feedback that triggered a retry (empty on the first attempt).
type ExecutionContext struct {
	Objective         string            `json:"objective"`
	Attempt           int               `json:"attempt"`
	Feedback          string            `json:"feedback,omitempty"`
	DependencyResults map[string]string `json:"dependency_results,omitempty"`
}

// Worker executes a single subtask and returns its textual result.
// Implementations are supplied by the embedding application; the core
// never constructs workers.
type Worker interface {
	Execute(ctx context.Context, subtask Subtask, execCtx ExecutionContext) (string, error)
}

// Review is a judge's verdict on one execution result.
type Review struct {
	Approved        bool     `json:"approved"`
	Quality         float64  `json:"quality"`
	Feedback        string   `json:"feedback,omitempty"`
	MissingCriteria []string `json:"missing_criteria,omitempty"`

	// NeedsAdjudication requests an external (human) decision instead of
	// an automatic approve/reject. Question is what the adjudicator is
	// asked.
	NeedsAdjudication bool   `json:"needs_adjudication,omitempty"`
	Question          string `json:"question,omitempty"`
}

// Judge evaluates an execution result against the subtask's acceptance
// criteria.
type Judge interface {
	Evaluate(ctx context.Context, subtask Subtask, result string) (Review, error)
}

// Decomposer turns an objective into a task with subtasks.
type Decomposer interface {
	Decompose(ctx context.Context, objective string) (Task, error)
}
