package types

import (
	"time"

	"github.com/google/uuid"
)

// SubtaskStatus tracks a subtask through the orchestration lifecycle.
type SubtaskStatus string

const (
	StatusPending    SubtaskStatus = "pending"
	StatusInProgress SubtaskStatus = "in_progress"
	StatusCompleted  SubtaskStatus = "completed"
	// StatusBlocked is a reporting status for subtasks downstream of a
	// failure. The graph never stores it; blockage is recomputed from
	// failed dependencies on demand.
	StatusBlocked SubtaskStatus = "blocked"
	StatusFailed  SubtaskStatus = "failed"
)

// Phase labels the workflow stage a subtask belongs to. Free-form values
// are allowed; the constants below cover the common delivery stages and
// are what agent phase affinity is matched against.
type Phase string

const (
	PhasePlanning       Phase = "planning"
	PhaseResearch       Phase = "research"
	PhaseDesign         Phase = "design"
	PhaseImplementation Phase = "implementation"
	PhaseExecution      Phase = "execution"
	PhaseReview         Phase = "review"
	PhaseSynthesis      Phase = "synthesis"
)

// Subtask is a single unit of delegated work inside a task graph.
type Subtask struct {
	ID                   string        `json:"id"`
	Description          string        `json:"description"`
	Phase                Phase         `json:"phase,omitempty"`
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	DependsOn            []string      `json:"depends_on,omitempty"`
	AcceptanceCriteria   []string      `json:"acceptance_criteria,omitempty"`
	DueBy                *time.Time    `json:"due_by,omitempty"`
	Status               SubtaskStatus `json:"status"`
	AssignedTo           string        `json:"assigned_to,omitempty"`
	Result               string        `json:"result,omitempty"`
	Feedback             string        `json:"feedback,omitempty"`
	FailureReason        string        `json:"failure_reason,omitempty"`
	RetryCount           int           `json:"retry_count"`
}

// Task is the decomposed form of an objective.
type Task struct {
	ID        string         `json:"id"`
	Objective string         `json:"objective"`
	Subtasks  []Subtask      `json:"subtasks"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewTask creates a task shell for an objective with a fresh ID.
func NewTask(objective string) Task {
	now := time.Now()
	return Task{
		ID:        uuid.NewString(),
		Objective: objective,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSubtask creates a pending subtask with a fresh ID.
func NewSubtask(description string) Subtask {
	return Subtask{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StatusPending,
	}
}
