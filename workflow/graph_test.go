package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/overseer/types"
)

func newSubtask(id string, deps ...string) types.Subtask {
	return types.Subtask{
		ID:          id,
		Description: "subtask " + id,
		Status:      types.StatusPending,
		DependsOn:   deps,
	}
}

func buildGraph(t *testing.T, subtasks ...types.Subtask) *TaskGraph {
	t.Helper()
	g, err := FromTask(types.Task{Subtasks: subtasks})
	require.NoError(t, err)
	return g
}

func TestFromTaskRejectsCycle(t *testing.T) {
	_, err := FromTask(types.Task{Subtasks: []types.Subtask{
		newSubtask("a", "c"),
		newSubtask("b", "a"),
		newSubtask("c", "b"),
	}})
	require.Error(t, err)
	assert.Equal(t, types.ErrGraphCycle, types.GetErrorCode(err))
}

func TestFromTaskRejectsUnknownDependency(t *testing.T) {
	_, err := FromTask(types.Task{Subtasks: []types.Subtask{
		newSubtask("a", "ghost"),
	}})
	require.Error(t, err)
	assert.Equal(t, types.ErrGraphUnknownDependency, types.GetErrorCode(err))
}

func TestAddRejectsDuplicate(t *testing.T) {
	g := buildGraph(t, newSubtask("a"))
	err := g.Add(newSubtask("a"))
	require.Error(t, err)
	assert.Equal(t, types.ErrGraphDuplicateSubtask, types.GetErrorCode(err))
}

func TestReadyRespectsDependencies(t *testing.T) {
	g := buildGraph(t,
		newSubtask("a"),
		newSubtask("b", "a"),
		newSubtask("c", "a", "b"),
		newSubtask("d"),
	)

	// 初始只有无依赖的子任务就绪
	ready := g.Ready()
	require.Len(t, ready, 2)
	assert.Equal(t, "a", ready[0].ID)
	assert.Equal(t, "d", ready[1].ID)

	// a 完成后 b 解锁, c 仍等待 b
	require.NoError(t, g.MarkInProgress("a", "agent-1"))
	require.NoError(t, g.MarkComplete("a", "done"))
	ready = g.Ready()
	require.Len(t, ready, 2)
	assert.Equal(t, "b", ready[0].ID)
	assert.Equal(t, "d", ready[1].ID)
}

func TestStatusTransitionsGuarded(t *testing.T) {
	g := buildGraph(t, newSubtask("a"))

	// pending 不能直接完成
	err := g.MarkComplete("a", "x")
	assert.Equal(t, types.ErrGraphInvalidStatus, types.GetErrorCode(err))

	require.NoError(t, g.MarkInProgress("a", "agent-1"))

	// in_progress 不能再次指派
	err = g.MarkInProgress("a", "agent-2")
	assert.Equal(t, types.ErrGraphInvalidStatus, types.GetErrorCode(err))

	require.NoError(t, g.MarkComplete("a", "x"))
	st, err := g.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, st.Status)
	assert.Equal(t, "x", st.Result)
	assert.Equal(t, "agent-1", st.AssignedTo)
}

func TestRecordRetryKeepsFeedback(t *testing.T) {
	g := buildGraph(t, newSubtask("a"))
	require.NoError(t, g.MarkInProgress("a", "agent-1"))

	n, err := g.RecordRetry("a", "needs more detail")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = g.RecordRetry("a", "still not enough")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, err := g.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, st.Status)
	assert.Equal(t, "still not enough", st.Feedback)
}

func TestFailureBlocksTransitiveDependents(t *testing.T) {
	g := buildGraph(t,
		newSubtask("a"),
		newSubtask("b", "a"),
		newSubtask("c", "b"),
		newSubtask("d"),
	)
	require.NoError(t, g.MarkInProgress("a", "agent-1"))
	require.NoError(t, g.MarkFailed("a", "boom"))

	blocked := g.Blocked()
	require.Len(t, blocked, 2)
	assert.Equal(t, "b", blocked[0].ID)
	assert.Equal(t, "c", blocked[1].ID)
	for _, st := range blocked {
		assert.Equal(t, types.StatusBlocked, st.Status)
	}

	// 失败不影响无关分支
	ready := g.Ready()
	require.Len(t, ready, 1)
	assert.Equal(t, "d", ready[0].ID)

	// d 完成后图即收敛:无就绪、无进行中、剩余 pending 全部被阻塞
	assert.False(t, g.IsComplete())
	require.NoError(t, g.MarkInProgress("d", "agent-1"))
	require.NoError(t, g.MarkComplete("d", "ok"))
	assert.True(t, g.IsComplete())

	summary := g.Summary()
	assert.Equal(t, 1, summary[types.StatusCompleted])
	assert.Equal(t, 1, summary[types.StatusFailed])
	assert.Equal(t, 2, summary[types.StatusBlocked])
}

func TestGraphJSONRoundTrip(t *testing.T) {
	g := buildGraph(t,
		newSubtask("a"),
		newSubtask("b", "a"),
	)
	require.NoError(t, g.MarkInProgress("a", "agent-1"))
	require.NoError(t, g.MarkComplete("a", "result-a"))

	data, err := json.Marshal(g)
	require.NoError(t, err)

	var restored TaskGraph
	require.NoError(t, json.Unmarshal(data, &restored))

	st, err := restored.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, st.Status)
	assert.Equal(t, "result-a", st.Result)

	// 恢复后的图保持推进能力
	ready := restored.Ready()
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].ID)
	require.NoError(t, restored.MarkInProgress("b", "agent-2"))
	require.NoError(t, restored.MarkComplete("b", "result-b"))
	assert.True(t, restored.IsComplete())
}

func TestGetReturnsCopy(t *testing.T) {
	g := buildGraph(t, newSubtask("a"))
	st, err := g.Get("a")
	require.NoError(t, err)
	st.Status = types.StatusFailed

	again, err := g.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, again.Status)
}
