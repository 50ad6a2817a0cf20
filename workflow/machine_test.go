package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/overseer/types"
)

func TestMachineStartsAtDecompose(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, StateDecompose, m.State())
	assert.False(t, m.Terminal())
}

func TestRestoreMachineValidatesState(t *testing.T) {
	m, err := RestoreMachine(StateReview)
	require.NoError(t, err)
	assert.Equal(t, StateReview, m.State())

	_, err = RestoreMachine(State("limbo"))
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

// 逐条验证转换表:每个状态下每个事件要么到达预期状态, 要么被拒绝。
func TestMachineTransitionTable(t *testing.T) {
	allEvents := []Event{
		EventDecomposed, EventEmptyTask,
		EventAssigned, EventNoWorker, EventAllSettled, EventNoSubtasks,
		EventExecuted,
		EventApproved, EventRejected, EventEscalated, EventRetriesExhausted, EventSettled,
		EventResumed,
		EventSynthesized,
	}
	valid := map[State]map[Event]State{
		StateDecompose: {
			EventDecomposed: StateAssign,
			EventEmptyTask:  StateDone,
		},
		StateAssign: {
			EventAssigned:   StateExecute,
			EventNoWorker:   StateAssign,
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

	for state, events := range valid {
		for _, event := range allEvents {
			m, err := RestoreMachine(state)
			require.NoError(t, err)

			next, fireErr := m.Fire(event)
			if want, ok := events[event]; ok {
				require.NoError(t, fireErr, "state %s event %s", state, event)
				assert.Equal(t, want, next)
				assert.Equal(t, want, m.State())
			} else {
				require.Error(t, fireErr, "state %s event %s", state, event)
				assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(fireErr))
				// 被拒绝的事件不得改变状态
				assert.Equal(t, state, m.State())
			}
		}
	}
}

func TestMachineCanFire(t *testing.T) {
	m := NewMachine()
	assert.True(t, m.CanFire(EventDecomposed))
	assert.False(t, m.CanFire(EventApproved))
}

func TestMachineTerminal(t *testing.T) {
	m, err := RestoreMachine(StateDone)
	require.NoError(t, err)
	assert.True(t, m.Terminal())

	_, err = m.Fire(EventDecomposed)
	require.Error(t, err)
}

func TestFullHappyPath(t *testing.T) {
	m := NewMachine()
	path := []struct {
		event Event
		want  State
	}{
		{EventDecomposed, StateAssign},
		{EventAssigned, StateExecute},
		{EventExecuted, StateReview},
		{EventRejected, StateExecute},
		{EventExecuted, StateReview},
		{EventEscalated, StateSuspended},
		{EventResumed, StateReview},
		{EventApproved, StateAssign},
		{EventAllSettled, StateSynthesize},
		{EventSynthesized, StateDone},
	}
	for _, step := range path {
		next, err := m.Fire(step.event)
		require.NoError(t, err, "event %s", step.event)
		assert.Equal(t, step.want, next)
	}
	assert.True(t, m.Terminal())
}
