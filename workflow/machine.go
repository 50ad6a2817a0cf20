package workflow

import (
	"fmt"
	"sync"

	"github.com/BaSui01/overseer/types"
)

// State is a node of the orchestration state machine.
type State string

const (
	StateDecompose  State = "decompose"
	StateAssign     State = "assign"
	StateExecute    State = "execute"
	StateReview     State = "review"
	StateSynthesize State = "synthesize"
	StateSuspended  State = "suspended"
	StateDone       State = "done"
)

// Event labels the observation that drives a transition.
type Event string

const (
	// Decompose outcomes
	EventDecomposed Event = "decomposed" // task has at least one subtask
	EventEmptyTask  Event = "empty_task" // decomposition produced nothing

	// Assign outcomes
	EventAssigned   Event = "assigned"    // ready subtask bound to a worker
	EventNoWorker   Event = "no_worker"   // ready work but no available worker
	EventAllSettled Event = "all_settled" // nothing ready, nothing running
	EventNoSubtasks Event = "no_subtasks" // graph is empty

	// Execute outcome — unconditional, success or failure both go to review
	EventExecuted Event = "executed"

	// Review outcomes
	EventApproved         Event = "approved"
	EventRejected         Event = "rejected"  // retry budget remains
	EventEscalated        Event = "escalated" // external adjudication requested
	EventRetriesExhausted Event = "retries_exhausted"
	EventSettled          Event = "settled" // verdict already in the graph, only routing missing

	// Suspension outcome
	EventResumed Event = "resumed"

	// Synthesize outcome
	EventSynthesized Event = "synthesized"
)

// transitions is the complete routing table of the orchestration machine.
// Every legal (state, event) pair appears exactly once; anything else is an
// invalid-transition error.
var transitions = map[State]map[Event]State{
	StateDecompose: {
		EventDecomposed: StateAssign,
		EventEmptyTask:  StateDone,
	},
	StateAssign: {
		EventAssigned:   StateExecute,
		EventNoWorker:   StateAssign, // self-loop: retry once a worker frees up
		EventAllSettled: StateSynthesize,
		EventNoSubtasks: StateDone,
	},
	StateExecute: {
		EventExecuted: StateReview,
	},
	StateReview: {
		EventApproved:         StateAssign,
		EventRejected:         StateExecute,
		EventEscalated:        StateSuspended,
		EventRetriesExhausted: StateAssign,
		EventSettled:          StateAssign,
	},
	StateSuspended: {
		EventResumed: StateReview,
	},
	StateSynthesize: {
		EventSynthesized: StateDone,
	},
	StateDone: {},
}

// Machine is a small, explicit state machine. It validates transitions
// against the routing table and nothing more; the orchestrator supplies
// the effects.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine creates a machine positioned at the initial decompose state.
func NewMachine() *Machine {
	return &Machine{state: StateDecompose}
}

// RestoreMachine creates a machine positioned at a checkpointed state.
func RestoreMachine(state State) (*Machine, error) {
	if _, ok := transitions[state]; !ok {
		return nil, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("unknown state %q", state))
	}
	return &Machine{state: state}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies an event and moves to the next state. Illegal transitions
// return a typed error naming both the state and the event, and leave the
// machine unchanged.
func (m *Machine) Fire(event Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := transitions[m.state][event]
	if !ok {
		return m.state, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("event %q is not valid in state %q", event, m.state))
	}
	m.state = next
	return next, nil
}

// CanFire reports whether an event is legal in the current state.
func (m *Machine) CanFire(event Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := transitions[m.state][event]
	return ok
}

// Terminal reports whether the machine has reached its final state.
func (m *Machine) Terminal() bool {
	return m.State() == StateDone
}

// ValidStates returns all states of the routing table. Used by tests that
// walk the table exhaustively.
func ValidStates() []State {
	return []State{
		StateDecompose, StateAssign, StateExecute, StateReview,
		StateSynthesize, StateSuspended, StateDone,
	}
}
