package quick

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/overseer/types"
)

func TestNewWithDefaults(t *testing.T) {
	o, err := New()
	require.NoError(t, err)

	result, err := o.Run(context.Background(), "summarize the report")
	require.NoError(t, err)
	assert.Len(t, result.Completed, 1)
	assert.Contains(t, result.FinalOutput, "summarize the report")
}

func TestSequentialDecomposerChainsClauses(t *testing.T) {
	task, err := SequentialDecomposer{}.Decompose(context.Background(), "gather data; analyze data; write summary")
	require.NoError(t, err)
	require.Len(t, task.Subtasks, 3)

	assert.Empty(t, task.Subtasks[0].DependsOn)
	assert.Equal(t, []string{task.Subtasks[0].ID}, task.Subtasks[1].DependsOn)
	assert.Equal(t, []string{task.Subtasks[1].ID}, task.Subtasks[2].DependsOn)
}

func TestRunWithCustomContracts(t *testing.T) {
	var executed []string
	o, err := New(
		WithDecomposer(DecomposerFunc(func(ctx context.Context, objective string) (types.Task, error) {
			task := types.NewTask(objective)
			task.Subtasks = []types.Subtask{types.NewSubtask("step one"), types.NewSubtask("step two")}
			return task, nil
		})),
		WithWorker("w1", WorkerFunc(func(ctx context.Context, st types.Subtask, _ types.ExecutionContext) (string, error) {
			executed = append(executed, st.Description)
			return "done " + st.Description, nil
		})),
		WithJudge(JudgeFunc(func(ctx context.Context, st types.Subtask, result string) (types.Review, error) {
			return types.Review{Approved: true, Quality: 0.9}, nil
		})),
		WithMaxRetries(1),
	)
	require.NoError(t, err)

	result, err := o.RunThread(context.Background(), "thread-1", "two step objective")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", result.ThreadID)
	assert.Len(t, result.Completed, 2)
	assert.ElementsMatch(t, []string{"step one", "step two"}, executed)
}

func TestApproveNonEmptyJudgeRejectsEmpty(t *testing.T) {
	review, err := ApproveNonEmptyJudge{}.Evaluate(context.Background(), types.Subtask{}, "   ")
	require.NoError(t, err)
	assert.False(t, review.Approved)

	review, err = ApproveNonEmptyJudge{}.Evaluate(context.Background(), types.Subtask{}, "ok")
	require.NoError(t, err)
	assert.True(t, review.Approved)
}
