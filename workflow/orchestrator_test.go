package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/approval"
	"github.com/BaSui01/overseer/checkpoint"
	"github.com/BaSui01/overseer/directory"
	"github.com/BaSui01/overseer/internal/ledger"
	"github.com/BaSui01/overseer/types"
)

type stubDecomposer struct {
	task  types.Task
	err   error
	calls int
}

func (d *stubDecomposer) Decompose(ctx context.Context, objective string) (types.Task, error) {
	d.calls++
	if d.err != nil {
		return types.Task{}, d.err
	}
	return d.task, nil
}

// scriptedJudge returns per-subtask verdict sequences; once a script is
// exhausted the last verdict repeats.
type scriptedJudge struct {
	mu      sync.Mutex
	scripts map[string][]types.Review
	calls   map[string]int
}

func newScriptedJudge() *scriptedJudge {
	return &scriptedJudge{
		scripts: make(map[string][]types.Review),
		calls:   make(map[string]int),
	}
}

func (j *scriptedJudge) script(subtaskID string, reviews ...types.Review) {
	j.scripts[subtaskID] = reviews
}

func (j *scriptedJudge) Evaluate(ctx context.Context, subtask types.Subtask, result string) (types.Review, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls[subtask.ID]++
	script, ok := j.scripts[subtask.ID]
	if !ok || len(script) == 0 {
		return types.Review{Approved: true, Quality: 0.9}, nil
	}
	idx := j.calls[subtask.ID] - 1
	if idx >= len(script) {
		idx = len(script) - 1
	}
	return script[idx], nil
}

func (j *scriptedJudge) callsFor(subtaskID string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls[subtaskID]
}

// countingWorker records every invocation so assertions can prove how
// often the external call actually happened.
type countingWorker struct {
	mu       sync.Mutex
	calls    []string // "subtask#attempt"
	failures map[string]error
	result   func(subtask types.Subtask, execCtx types.ExecutionContext) string
}

func newCountingWorker() *countingWorker {
	return &countingWorker{failures: make(map[string]error)}
}

func (w *countingWorker) Execute(ctx context.Context, subtask types.Subtask, execCtx types.ExecutionContext) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := fmt.Sprintf("%s#%d", subtask.ID, execCtx.Attempt)
	w.calls = append(w.calls, key)
	if err, ok := w.failures[subtask.ID]; ok {
		return "", err
	}
	if w.result != nil {
		return w.result(subtask, execCtx), nil
	}
	return "result of " + subtask.ID, nil
}

func (w *countingWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type fixture struct {
	decomposer *stubDecomposer
	judge      *scriptedJudge
	worker     *countingWorker
	directory  *directory.Directory
	store      *checkpoint.InMemoryStore
	manager    *checkpoint.Manager
	gate       *approval.Gate
	ledger     *ledger.MemoryLedger
}

func newFixture(t *testing.T, subtasks ...types.Subtask) *fixture {
	t.Helper()

	dir := directory.New(zap.NewNop())
	require.NoError(t, dir.Register(directory.Profile{ID: "agent-1", Name: "worker one"}))

	store := checkpoint.NewInMemoryStore()
	return &fixture{
		decomposer: &stubDecomposer{task: types.Task{Subtasks: subtasks}},
		judge:      newScriptedJudge(),
		worker:     newCountingWorker(),
		directory:  dir,
		store:      store,
		manager:    checkpoint.NewManager(store, 0, zap.NewNop()),
		gate:       approval.NewGate(approval.NewMemoryRequestStore(), approval.Config{Timeout: time.Second}, zap.NewNop()),
		ledger:     ledger.NewMemoryLedger(),
	}
}

func (f *fixture) orchestrator(t *testing.T, config Config) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(config, Dependencies{
		Decomposer:  f.decomposer,
		Judge:       f.judge,
		Workers:     map[string]types.Worker{"agent-1": f.worker},
		Directory:   f.directory,
		Checkpoints: f.manager,
		Gate:        f.gate,
		Ledger:      f.ledger,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return o
}

func TestNewOrchestratorValidation(t *testing.T) {
	f := newFixture(t)
	deps := Dependencies{
		Decomposer:  f.decomposer,
		Judge:       f.judge,
		Workers:     map[string]types.Worker{"agent-1": f.worker},
		Directory:   f.directory,
		Checkpoints: f.manager,
	}

	cases := []struct {
		name   string
		mutate func(*Dependencies)
	}{
		{"missing decomposer", func(d *Dependencies) { d.Decomposer = nil }},
		{"missing judge", func(d *Dependencies) { d.Judge = nil }},
		{"no workers", func(d *Dependencies) { d.Workers = nil }},
		{"missing directory", func(d *Dependencies) { d.Directory = nil }},
		{"missing checkpoints", func(d *Dependencies) { d.Checkpoints = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broken := deps
			tc.mutate(&broken)
			_, err := NewOrchestrator(DefaultConfig(), broken)
			require.Error(t, err)
		})
	}
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t,
		newSubtask("plan"),
		newSubtask("build", "plan"),
	)

	result, err := f.orchestrator(t, DefaultConfig()).Run(context.Background(), "thread-1", "ship the feature")
	require.NoError(t, err)

	assert.Equal(t, "thread-1", result.ThreadID)
	assert.Len(t, result.Completed, 2)
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Blocked)
	// 合成报告只由已完成子任务组成
	assert.Contains(t, result.FinalOutput, "result of plan")
	assert.Contains(t, result.FinalOutput, "result of build")
	assert.Equal(t, 2, f.worker.callCount())
	// 每个外部副作用之后都有检查点
	cps, err := f.manager.List(context.Background(), "thread-1", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, cps)
}

func TestRunEmptyDecomposition(t *testing.T) {
	f := newFixture(t)

	result, err := f.orchestrator(t, DefaultConfig()).Run(context.Background(), "thread-1", "nothing to do")
	require.NoError(t, err)
	assert.Empty(t, result.Completed)
	assert.Contains(t, result.FinalOutput, "No subtasks")
	assert.Zero(t, f.worker.callCount())
}

func TestRetryBudgetEnforced(t *testing.T) {
	f := newFixture(t, newSubtask("flaky"))
	f.judge.script("flaky",
		types.Review{Approved: false, Feedback: "try again"},
	)

	config := DefaultConfig()
	config.MaxRetries = 3

	result, err := f.orchestrator(t, config).Run(context.Background(), "thread-1", "objective")
	require.NoError(t, err)

	// 预算封顶总执行次数: 最多 3 次, 绝不出现第 4 次
	assert.Equal(t, 3, f.worker.callCount())
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].FailureReason, "retries exhausted after 3 attempts")
	assert.Contains(t, result.Failed[0].FailureReason, "try again")
}

func TestRejectionFeedbackReachesWorker(t *testing.T) {
	f := newFixture(t, newSubtask("draft"))
	f.judge.script("draft",
		types.Review{Approved: false, Feedback: "add a summary"},
		types.Review{Approved: true, Quality: 0.9},
	)

	var feedbacks []string
	f.worker.result = func(subtask types.Subtask, execCtx types.ExecutionContext) string {
		feedbacks = append(feedbacks, execCtx.Feedback)
		return "draft v" + fmt.Sprint(execCtx.Attempt)
	}

	result, err := f.orchestrator(t, DefaultConfig()).Run(context.Background(), "thread-1", "objective")
	require.NoError(t, err)

	require.Len(t, result.Completed, 1)
	assert.Equal(t, "draft v1", result.Completed[0].Result)
	require.Len(t, feedbacks, 2)
	assert.Empty(t, feedbacks[0])
	assert.Equal(t, "add a summary", feedbacks[1])
}

func TestWorkerFailureBlocksDependents(t *testing.T) {
	f := newFixture(t,
		newSubtask("base"),
		newSubtask("dependent", "base"),
		newSubtask("independent"),
	)
	f.worker.failures["base"] = errors.New("network down")

	result, err := f.orchestrator(t, DefaultConfig()).Run(context.Background(), "thread-1", "objective")
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, "base", result.Failed[0].ID)
	require.Len(t, result.Blocked, 1)
	assert.Equal(t, "dependent", result.Blocked[0].ID)
	// 无关子任务照常完成
	require.Len(t, result.Completed, 1)
	assert.Equal(t, "independent", result.Completed[0].ID)
	assert.Contains(t, result.FinalOutput, "Unresolved")
	assert.Contains(t, result.FinalOutput, "Blocked")
}

func TestDependencyResultsFlowDownstream(t *testing.T) {
	f := newFixture(t,
		newSubtask("up"),
		newSubtask("down", "up"),
	)

	var seen map[string]string
	f.worker.result = func(subtask types.Subtask, execCtx types.ExecutionContext) string {
		if subtask.ID == "down" {
			seen = execCtx.DependencyResults
		}
		return "result of " + subtask.ID
	}

	_, err := f.orchestrator(t, DefaultConfig()).Run(context.Background(), "thread-1", "objective")
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "result of up", seen["up"])
}

func TestAdjudicationSuspendsAndResumes(t *testing.T) {
	f := newFixture(t, newSubtask("sensitive"))
	f.judge.script("sensitive",
		types.Review{NeedsAdjudication: true, Question: "release to production?"},
	)

	o := f.orchestrator(t, DefaultConfig())

	done := make(chan *RunResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := o.Run(context.Background(), "thread-1", "objective")
		if err != nil {
			errCh <- err
			return
		}
		done <- result
	}()

	// 等待线程挂起后批准
	var pending []*approval.Request
	require.Eventually(t, func() bool {
		var err error
		pending, err = f.gate.Pending(context.Background())
		return err == nil && len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "release to production?", pending[0].Question)

	err := f.gate.Resume(context.Background(), pending[0].Handle, approval.Decision{
		Approved:  true,
		Comment:   "looks good",
		DecidedBy: "operator",
	})
	require.NoError(t, err)

	select {
	case result := <-done:
		require.Len(t, result.Completed, 1)
		assert.Equal(t, "sensitive", result.Completed[0].ID)
	case err := <-errCh:
		t.Fatalf("run failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after approval")
	}
}

func TestAdjudicationRejectionConsumesRetry(t *testing.T) {
	f := newFixture(t, newSubtask("risky"))
	f.judge.script("risky",
		types.Review{NeedsAdjudication: true, Question: "accept?"},
		types.Review{Approved: true, Quality: 0.8},
	)

	o := f.orchestrator(t, DefaultConfig())

	done := make(chan *RunResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := o.Run(context.Background(), "thread-1", "objective")
		if err != nil {
			errCh <- err
			return
		}
		done <- result
	}()

	var pending []*approval.Request
	require.Eventually(t, func() bool {
		var err error
		pending, err = f.gate.Pending(context.Background())
		return err == nil && len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// 外部驳回:子任务带着审批意见重试, 第二次评审通过
	err := f.gate.Resume(context.Background(), pending[0].Handle, approval.Decision{
		Comment:   "tighten the checks",
		DecidedBy: "operator",
	})
	require.NoError(t, err)

	select {
	case result := <-done:
		require.Len(t, result.Completed, 1)
		assert.GreaterOrEqual(t, f.worker.callCount(), 2)
	case err := <-errCh:
		t.Fatalf("run failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestResumeReplaysFromCheckpointWithoutReexecuting(t *testing.T) {
	f := newFixture(t,
		newSubtask("first"),
		newSubtask("second", "first"),
	)

	// 第一次运行在 second 执行后被取消:状态已检查点化, 结果已入台账
	var cancelAfter int32 = 2
	ctx, cancel := context.WithCancel(context.Background())
	f.worker.result = func(subtask types.Subtask, execCtx types.ExecutionContext) string {
		cancelAfter--
		if cancelAfter == 0 {
			cancel()
		}
		return "result of " + subtask.ID
	}

	o := f.orchestrator(t, DefaultConfig())
	_, err := o.Run(ctx, "thread-1", "objective")
	require.Error(t, err)
	assert.Equal(t, types.ErrRunAborted, types.GetErrorCode(err))
	callsBefore := f.worker.callCount()

	// 重放:台账命中, worker 不再被调用
	f.worker.result = nil
	result, err := f.orchestrator(t, DefaultConfig()).Resume(context.Background(), "thread-1")
	require.NoError(t, err)

	assert.Len(t, result.Completed, 2)
	assert.Equal(t, callsBefore, f.worker.callCount(), "resume must not re-issue completed worker calls")
	assert.Equal(t, 1, f.decomposer.calls, "resume must not re-decompose")
}

// 恢复一个落在 settle 与路由转换之间的检查点:first 已在图中完成,
// current_subtask 已清空, 但机器状态仍停在 review。
func TestResumeFromSettleCheckpoint(t *testing.T) {
	f := newFixture(t, newSubtask("first"), newSubtask("second", "first"))

	task := types.Task{Subtasks: []types.Subtask{
		newSubtask("first"),
		newSubtask("second", "first"),
	}}
	graph, err := FromTask(task)
	require.NoError(t, err)
	require.NoError(t, graph.MarkInProgress("first", "agent-1"))
	require.NoError(t, graph.MarkComplete("first", "result of first"))

	rs := &RunState{
		ThreadID:     "thread-1",
		Objective:    "objective",
		Task:         task,
		Graph:        graph,
		MachineState: StateReview,
	}
	blob, err := rs.Marshal()
	require.NoError(t, err)
	_, err = f.manager.Save(context.Background(), "thread-1", blob)
	require.NoError(t, err)

	result, err := f.orchestrator(t, DefaultConfig()).Resume(context.Background(), "thread-1")
	require.NoError(t, err)

	assert.Len(t, result.Completed, 2)
	// 只有 second 需要补跑
	require.Equal(t, 1, f.worker.callCount())
	assert.Equal(t, "second#0", f.worker.calls[0])
}

// 检查点里已有本次尝试的评审结论时, 重放不得再次调用 judge。
func TestResumeReusesCheckpointedVerdict(t *testing.T) {
	f := newFixture(t, newSubtask("first"), newSubtask("second", "first"))

	task := types.Task{Subtasks: []types.Subtask{
		newSubtask("first"),
		newSubtask("second", "first"),
	}}
	graph, err := FromTask(task)
	require.NoError(t, err)
	require.NoError(t, graph.MarkInProgress("first", "agent-1"))

	rs := &RunState{
		ThreadID:       "thread-1",
		Objective:      "objective",
		Task:           task,
		Graph:          graph,
		MachineState:   StateReview,
		CurrentSubtask: "first",
		CurrentAgent:   "agent-1",
		LastResult:     "result of first",
		LastReview:     &types.Review{Approved: true, Quality: 0.9},
	}
	blob, err := rs.Marshal()
	require.NoError(t, err)
	_, err = f.manager.Save(context.Background(), "thread-1", blob)
	require.NoError(t, err)

	result, err := f.orchestrator(t, DefaultConfig()).Resume(context.Background(), "thread-1")
	require.NoError(t, err)

	assert.Len(t, result.Completed, 2)
	assert.Equal(t, 0, f.judge.callsFor("first"), "checkpointed verdict must be reused")
	assert.Equal(t, 1, f.judge.callsFor("second"))
}

// 运行结束后最新检查点必须记录终态, 而不是倒数第二个状态。
func TestLatestCheckpointRecordsTerminalState(t *testing.T) {
	f := newFixture(t, newSubtask("only"))

	_, err := f.orchestrator(t, DefaultConfig()).Run(context.Background(), "thread-1", "objective")
	require.NoError(t, err)

	cp, err := f.manager.Restore(context.Background(), "thread-1")
	require.NoError(t, err)
	rs, err := unmarshalRunState(cp.State)
	require.NoError(t, err)
	assert.Equal(t, StateDone, rs.MachineState)
	assert.NotEmpty(t, rs.FinalOutput)
}

func TestResumeUnknownThreadFails(t *testing.T) {
	f := newFixture(t, newSubtask("a"))
	_, err := f.orchestrator(t, DefaultConfig()).Resume(context.Background(), "ghost-thread")
	require.Error(t, err)
	assert.Equal(t, types.ErrCheckpointNotFound, types.GetErrorCode(err))
}

func TestIterationBudget(t *testing.T) {
	f := newFixture(t, newSubtask("a"))
	config := DefaultConfig()
	config.MaxIterations = 2

	_, err := f.orchestrator(t, config).Run(context.Background(), "thread-1", "objective")
	require.Error(t, err)
	assert.Equal(t, types.ErrIterationBudget, types.GetErrorCode(err))
}

func TestCapabilityMismatchFallsBackToAvailableWorker(t *testing.T) {
	// 没有任何 agent 覆盖所需能力时退回第一个可用 agent
	st := newSubtask("specialist-work")
	st.RequiredCapabilities = []string{"quantum-annealing"}
	f := newFixture(t, st)

	result, err := f.orchestrator(t, DefaultConfig()).Run(context.Background(), "thread-1", "objective")
	require.NoError(t, err)
	require.Len(t, result.Completed, 1)
	assert.Equal(t, "agent-1", result.Completed[0].AssignedTo)
}

func TestEmptyPoolSurfacesNoAgentsError(t *testing.T) {
	f := newFixture(t, newSubtask("a"))

	o, err := NewOrchestrator(DefaultConfig(), Dependencies{
		Decomposer:  f.decomposer,
		Judge:       f.judge,
		Workers:     map[string]types.Worker{"agent-1": f.worker},
		Directory:   directory.New(zap.NewNop()), // 空池
		Checkpoints: f.manager,
		Ledger:      f.ledger,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), "thread-1", "objective")
	require.Error(t, err)
	assert.Equal(t, types.ErrNoAgentsAvailable, types.GetErrorCode(err))

	// 线程停留在 assign 状态, 补充 agent 后可恢复
	ok, err := f.manager.HasThread(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParallelRunCompletesAllSubtasks(t *testing.T) {
	f := newFixture(t,
		newSubtask("a"),
		newSubtask("b"),
		newSubtask("c", "a", "b"),
	)
	require.NoError(t, f.directory.Register(directory.Profile{ID: "agent-2", Name: "worker two"}))

	config := DefaultConfig()
	config.Parallel = true
	config.MaxParallel = 2

	o, err := NewOrchestrator(config, Dependencies{
		Decomposer:  f.decomposer,
		Judge:       f.judge,
		Workers:     map[string]types.Worker{"agent-1": f.worker, "agent-2": f.worker},
		Directory:   f.directory,
		Checkpoints: f.manager,
		Gate:        f.gate,
		Ledger:      f.ledger,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background(), "thread-1", "objective")
	require.NoError(t, err)
	assert.Len(t, result.Completed, 3)
	assert.Equal(t, 3, f.worker.callCount())
}

func TestParallelFailureBlocksOnlyDependents(t *testing.T) {
	f := newFixture(t,
		newSubtask("bad"),
		newSubtask("good"),
		newSubtask("downstream", "bad"),
	)
	f.worker.failures["bad"] = errors.New("boom")

	config := DefaultConfig()
	config.Parallel = true
	config.MaxRetries = 0

	result, err := f.orchestrator(t, config).Run(context.Background(), "thread-1", "objective")
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bad", result.Failed[0].ID)
	require.Len(t, result.Completed, 1)
	assert.Equal(t, "good", result.Completed[0].ID)
	require.Len(t, result.Blocked, 1)
	assert.Equal(t, "downstream", result.Blocked[0].ID)
}
