package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/overseer/types"
)

// RunState is the full serialized form of one orchestration thread. It is
// what the checkpoint layer persists and what resume rebuilds the machine
// and graph from.
type RunState struct {
	ThreadID  string     `json:"thread_id"`
	Objective string     `json:"objective"`
	Task      types.Task `json:"task"`
	Graph     *TaskGraph `json:"graph,omitempty"`

	MachineState State `json:"machine_state"`

	// The in-flight assignment, empty between subtasks.
	CurrentSubtask string `json:"current_subtask,omitempty"`
	CurrentAgent   string `json:"current_agent,omitempty"`
	Attempt        int    `json:"attempt,omitempty"`

	LastResult string `json:"last_result,omitempty"`
	// LastExecutionError is set when the worker call itself failed; the
	// review step then routes to terminal failure without a judge call.
	LastExecutionError string        `json:"last_execution_error,omitempty"`
	LastReview         *types.Review `json:"last_review,omitempty"`

	// Suspension bookkeeping.
	PendingHandle   string `json:"pending_handle,omitempty"`
	PendingQuestion string `json:"pending_question,omitempty"`
	// PendingDecision carries the external adjudication back into the
	// review step after a resume.
	PendingApproved *bool  `json:"pending_approved,omitempty"`
	PendingComment  string `json:"pending_comment,omitempty"`

	Iterations  int       `json:"iterations"`
	FinalOutput string    `json:"final_output,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// newRunState starts a fresh thread positioned at decompose.
func newRunState(threadID, objective string) *RunState {
	return &RunState{
		ThreadID:     threadID,
		Objective:    objective,
		MachineState: StateDecompose,
	}
}

// Marshal serializes the state for checkpointing.
func (rs *RunState) Marshal() (json.RawMessage, error) {
	rs.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("marshal run state: %w", err)
	}
	return data, nil
}

// unmarshalRunState rebuilds a thread from a checkpoint blob.
func unmarshalRunState(data json.RawMessage) (*RunState, error) {
	var rs RunState
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}
	return &rs, nil
}

// clearAssignment resets the in-flight fields once a subtask settles.
func (rs *RunState) clearAssignment() {
	rs.CurrentSubtask = ""
	rs.CurrentAgent = ""
	rs.Attempt = 0
	rs.LastResult = ""
	rs.LastExecutionError = ""
	rs.LastReview = nil
}

// clearSuspension resets the suspension fields after a resume consumed
// the external decision.
func (rs *RunState) clearSuspension() {
	rs.PendingHandle = ""
	rs.PendingQuestion = ""
	rs.PendingApproved = nil
	rs.PendingComment = ""
}
