// Package integration exercises the orchestration core end to end:
// decomposition, dependency-ordered execution, review, suspension through
// the approval gate, and synthesis.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/overseer/approval"
	"github.com/BaSui01/overseer/internal/ledger"
	"github.com/BaSui01/overseer/panel"
	"github.com/BaSui01/overseer/quick"
	"github.com/BaSui01/overseer/testutil"
	"github.com/BaSui01/overseer/testutil/fixtures"
	"github.com/BaSui01/overseer/testutil/mocks"
	"github.com/BaSui01/overseer/types"
)

func TestDiamondGraphParallelRun(t *testing.T) {
	worker := mocks.NewMockWorker()
	o, err := quick.New(
		quick.WithDecomposer(mocks.NewMockDecomposer(fixtures.DiamondTask(""))),
		quick.WithJudge(mocks.NewMockJudge()),
		quick.WithWorker("w1", worker),
		quick.WithParallel(2),
	)
	require.NoError(t, err)

	result, err := o.Run(testutil.TestContext(t), "build the report")
	require.NoError(t, err)

	assert.Len(t, result.Completed, 4)
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Blocked)
	assert.Contains(t, result.FinalOutput, "Objective: build the report")
	assert.Contains(t, result.FinalOutput, "done: bottom")

	// top must run before the middles, bottom last
	calls := worker.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "top", calls[0].ID)
	assert.Equal(t, "bottom", calls[3].ID)
}

func TestAdjudicationSuspendAndResume(t *testing.T) {
	judge := mocks.NewMockJudge().WithReviewFor("s1", types.Review{
		NeedsAdjudication: true,
		Question:          "publish the draft?",
	})
	o, err := quick.New(
		quick.WithDecomposer(mocks.NewMockDecomposer(fixtures.ChainTask("", 2))),
		quick.WithJudge(judge),
		quick.WithWorker("w1", mocks.NewMockWorker()),
		quick.WithGateTimeout(time.Minute),
	)
	require.NoError(t, err)

	type outcome struct {
		completed int
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := o.RunThread(context.Background(), "thread-adjudicated", "two step objective")
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{completed: len(result.Completed)}
	}()

	// The run suspends on s1's review and surfaces a pending request.
	var pending []*approval.Request
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		var err error
		pending, err = o.Gate.Pending(context.Background())
		return err == nil && len(pending) == 1
	}, "expected one pending approval request")

	assert.Equal(t, "thread-adjudicated", pending[0].ThreadID)
	assert.Equal(t, "publish the draft?", pending[0].Question)

	require.NoError(t, o.Gate.Resume(context.Background(), pending[0].Handle, approval.Decision{
		Approved:  true,
		DecidedBy: "reviewer",
		DecidedAt: time.Now(),
	}))

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, 2, out.completed)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after approval")
	}
}

func TestRejectedSubtaskBlocksDownstream(t *testing.T) {
	judge := mocks.NewMockJudge().WithReviewFor("s0", types.Review{
		Approved: false,
		Feedback: "not good enough",
	})
	o, err := quick.New(
		quick.WithDecomposer(mocks.NewMockDecomposer(fixtures.ChainTask("", 3))),
		quick.WithJudge(judge),
		quick.WithWorker("w1", mocks.NewMockWorker()),
		quick.WithMaxRetries(2),
	)
	require.NoError(t, err)

	result, err := o.Run(testutil.TestContext(t), "doomed objective")
	require.NoError(t, err)

	assert.Empty(t, result.Completed)
	assert.Len(t, result.Failed, 1)
	assert.Len(t, result.Blocked, 2)
	assert.Contains(t, result.FinalOutput, "Unresolved")
	assert.Contains(t, result.FinalOutput, "Blocked")

	// 预算为总执行次数: s0 共执行 2 次, 下游不再评审
	assert.Len(t, judge.Evaluated(), 2)
}

func TestLedgerReplaySkipsCompletedWork(t *testing.T) {
	worker := mocks.NewMockWorker()
	judge := mocks.NewMockJudge().WithReviewFor("s1", types.Review{
		NeedsAdjudication: true,
		Question:          "continue?",
	})
	o, err := quick.New(
		quick.WithDecomposer(mocks.NewMockDecomposer(fixtures.ChainTask("", 3))),
		quick.WithJudge(judge),
		quick.WithWorker("w1", worker),
		quick.WithLedger(ledger.NewMemoryLedger()),
		quick.WithGateTimeout(time.Minute),
	)
	require.NoError(t, err)

	runCtx, cancelRun := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := o.RunThread(runCtx, "thread-replay", "three step objective")
		errCh <- err
	}()

	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		pending, err := o.Gate.Pending(context.Background())
		return err == nil && len(pending) == 1
	}, "expected run to suspend on s1")

	// Interrupt the suspended run instead of answering.
	cancelRun()
	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run did not return")
	}

	callsBefore := len(worker.Calls())
	require.GreaterOrEqual(t, callsBefore, 2)

	// Resume from the checkpoint; the new run suspends on s1 again.
	resumed := make(chan error, 1)
	go func() {
		_, err := o.Resume(context.Background(), "thread-replay")
		resumed <- err
	}()

	var pending []*approval.Request
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		var err error
		pending, err = o.Gate.Pending(context.Background())
		return err == nil && len(pending) == 1
	}, "expected resumed run to suspend on s1")

	require.NoError(t, o.Gate.Resume(context.Background(), pending[0].Handle, approval.Decision{
		Approved:  true,
		DecidedAt: time.Now(),
	}))

	select {
	case err := <-resumed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("resumed run did not finish")
	}

	// s0 completed before the interrupt; the ledger replays its result, so
	// only s2 adds a fresh execution after resume.
	for _, call := range worker.Calls()[callsBefore:] {
		assert.NotEqual(t, "s0", call.ID, "completed subtask was re-executed")
	}
}

func TestPanelArbitrationPicksFavoredWorker(t *testing.T) {
	strong := panel.Scorecard{Accuracy: 5, Relevance: 5, Completeness: 5, Explainability: 5, Efficiency: 5, Safety: 5}
	weak := panel.Scorecard{Accuracy: 1, Relevance: 1, Completeness: 1, Explainability: 1, Efficiency: 1, Safety: 1}
	scorer := mocks.NewMockScorer().
		WithScore("worker-a", weak).
		WithScore("worker-b", strong)

	p, err := panel.NewPanel(
		panel.DefaultProfiles()[:3],
		fixtures.QuestionBank(3),
		scorer,
		mocks.NewMockAdjudicator(""),
		panel.Config{Rounds: 1},
		nil,
	)
	require.NoError(t, err)

	workerA := mocks.NewMockWorker()
	workerB := mocks.NewMockWorker()
	task := types.NewTask("")
	task.Subtasks = []types.Subtask{fixtures.Subtask("s0")}

	o, err := quick.New(
		quick.WithDecomposer(mocks.NewMockDecomposer(task)),
		quick.WithJudge(mocks.NewMockJudge()),
		quick.WithWorker("worker-a", workerA),
		quick.WithWorker("worker-b", workerB),
		quick.WithPanel(p),
	)
	require.NoError(t, err)

	result, err := o.Run(testutil.TestContext(t), "contested objective")
	require.NoError(t, err)
	assert.Len(t, result.Completed, 1)

	executedB := false
	for _, c := range workerB.Calls() {
		if c.ID == "s0" {
			executedB = true
		}
	}
	assert.True(t, executedB, "panel winner should execute the subtask")
	for _, c := range workerA.Calls() {
		assert.NotEqual(t, "s0", c.ID, "losing worker should not execute the subtask")
	}
	assert.Positive(t, scorer.ScoreCalls())
}
