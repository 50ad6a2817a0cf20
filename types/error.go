package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestration core.
type ErrorCode string

// Task graph error codes
const (
	ErrGraphCycle             ErrorCode = "GRAPH_CYCLE"
	ErrGraphDuplicateSubtask  ErrorCode = "GRAPH_DUPLICATE_SUBTASK"
	ErrGraphUnknownDependency ErrorCode = "GRAPH_UNKNOWN_DEPENDENCY"
	ErrGraphSubtaskNotFound   ErrorCode = "GRAPH_SUBTASK_NOT_FOUND"
	ErrGraphInvalidStatus     ErrorCode = "GRAPH_INVALID_STATUS"
)

// Assignment error codes
const (
	ErrNoAgentsAvailable ErrorCode = "NO_AGENTS_AVAILABLE"
	ErrAgentUnavailable  ErrorCode = "AGENT_UNAVAILABLE"
	ErrAgentUnknown      ErrorCode = "AGENT_UNKNOWN"
)

// Execution and review error codes
const (
	ErrExecutionFailed  ErrorCode = "EXECUTION_FAILED"
	ErrExecutionTimeout ErrorCode = "EXECUTION_TIMEOUT"
	ErrReviewRejected   ErrorCode = "REVIEW_REJECTED"
	ErrRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
	ErrSynthesisFailed  ErrorCode = "SYNTHESIS_FAILED"
)

// Checkpoint error codes
const (
	ErrCheckpointIO       ErrorCode = "CHECKPOINT_IO"
	ErrCheckpointNotFound ErrorCode = "CHECKPOINT_NOT_FOUND"
)

// Approval gate error codes
const (
	ErrHandleNotFound  ErrorCode = "HANDLE_NOT_FOUND"
	ErrApprovalTimeout ErrorCode = "APPROVAL_TIMEOUT"
)

// State machine error codes
const (
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrIterationBudget   ErrorCode = "ITERATION_BUDGET_EXCEEDED"
	ErrRunAborted        ErrorCode = "RUN_ABORTED"
)

// Consensus panel error codes
const (
	ErrPanelConfig           ErrorCode = "PANEL_CONFIG"
	ErrQuestionBankExhausted ErrorCode = "QUESTION_BANK_EXHAUSTED"
	ErrScoringFailed         ErrorCode = "SCORING_FAILED"
)

// Generic error codes shared with the console API layer
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	SubtaskID  string    `json:"subtask_id,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSubtask attaches the subtask the error relates to.
func (e *Error) WithSubtask(id string) *Error {
	e.SubtaskID = id
	return e
}

// WithAgent attaches the agent the error relates to.
func (e *Error) WithAgent(id string) *Error {
	e.AgentID = id
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// Common constructors

// NewCycleError reports a dependency edge that would close a cycle.
func NewCycleError(from, to string) *Error {
	return NewError(ErrGraphCycle, fmt.Sprintf("dependency %s -> %s would create a cycle", from, to)).
		WithSubtask(from)
}

// NewNoAgentsError reports that no agent in the directory is available.
func NewNoAgentsError() *Error {
	return NewError(ErrNoAgentsAvailable, "no available agents in directory").WithRetryable(true)
}

// NewExecutionError wraps a worker failure for a subtask attempt.
func NewExecutionError(subtaskID, agentID string, cause error) *Error {
	return NewError(ErrExecutionFailed, "worker execution failed").
		WithSubtask(subtaskID).
		WithAgent(agentID).
		WithCause(cause)
}

// NewCheckpointIOError wraps a storage failure in the checkpoint layer.
func NewCheckpointIOError(op string, cause error) *Error {
	return NewError(ErrCheckpointIO, fmt.Sprintf("checkpoint %s failed", op)).
		WithCause(cause).
		WithRetryable(true)
}

// NewHandleNotFoundError reports an unknown or already-consumed approval handle.
func NewHandleNotFoundError(handle string) *Error {
	return NewError(ErrHandleNotFound, fmt.Sprintf("approval handle %q not found or already resolved", handle))
}

// NewInvalidTransitionError names both states of an illegal machine transition.
func NewInvalidTransitionError(from, to string) *Error {
	return NewError(ErrInvalidTransition, fmt.Sprintf("invalid transition %s -> %s", from, to))
}
