package workflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/overseer/checkpoint"
	"github.com/BaSui01/overseer/types"
)

// RunStatus 线程对外可见的生命周期状态。
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSuspended RunStatus = "suspended"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	// RunStatusInterrupted 表示线程有检查点但当前没有进程在推进它，
	// 可以通过 Resume 继续。
	RunStatusInterrupted RunStatus = "interrupted"
)

// RunInfo is the externally visible snapshot of one thread, combining the
// in-process run (if any) with the latest checkpoint.
type RunInfo struct {
	ThreadID   string                      `json:"thread_id"`
	Objective  string                      `json:"objective"`
	Status     RunStatus                   `json:"status"`
	State      State                       `json:"state"`
	Iterations int                         `json:"iterations"`
	Summary    map[types.SubtaskStatus]int `json:"summary,omitempty"`
	// PendingQuestion is set while the thread is suspended on approval.
	PendingQuestion string     `json:"pending_question,omitempty"`
	PendingHandle   string     `json:"pending_handle,omitempty"`
	Result          *RunResult `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at,omitempty"`
}

type activeRun struct {
	objective string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	// set before done is closed, read-only after
	result *RunResult
	err    error
}

func (a *activeRun) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Runner supervises asynchronous orchestration threads. Each Start spawns a
// goroutine driving the orchestrator to completion; Status merges the live
// goroutine's view with the persisted checkpoint so threads remain queryable
// after the process that ran them exits.
type Runner struct {
	orch        *Orchestrator
	checkpoints *checkpoint.Manager
	logger      *zap.Logger

	mu   sync.RWMutex
	runs map[string]*activeRun
	wg   sync.WaitGroup
}

// NewRunner 创建运行管理器。
func NewRunner(orch *Orchestrator, checkpoints *checkpoint.Manager, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		orch:        orch,
		checkpoints: checkpoints,
		logger:      logger.With(zap.String("component", "runner")),
		runs:        make(map[string]*activeRun),
	}
}

// Start launches a new thread. The run detaches from the caller's context;
// use Cancel or Shutdown to stop it.
func (r *Runner) Start(ctx context.Context, threadID, objective string) error {
	if threadID == "" {
		return types.NewError(types.ErrInvalidRequest, "thread_id is required")
	}
	if objective == "" {
		return types.NewError(types.ErrInvalidRequest, "objective is required")
	}

	exists, err := r.checkpoints.HasThread(ctx, threadID)
	if err != nil {
		return err
	}
	if exists {
		return types.NewError(types.ErrInvalidRequest, "thread already exists: "+threadID)
	}

	r.mu.Lock()
	if run, ok := r.runs[threadID]; ok && !run.finished() {
		r.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "thread already running: "+threadID)
	}
	run := r.launch(threadID, objective, func(runCtx context.Context) (*RunResult, error) {
		return r.orch.Run(runCtx, threadID, objective)
	})
	r.runs[threadID] = run
	r.mu.Unlock()

	return nil
}

// Resume continues an interrupted thread from its last checkpoint.
func (r *Runner) Resume(ctx context.Context, threadID string) error {
	exists, err := r.checkpoints.HasThread(ctx, threadID)
	if err != nil {
		return err
	}
	if !exists {
		return types.NewError(types.ErrCheckpointNotFound, "no checkpoint for thread: "+threadID)
	}

	r.mu.Lock()
	if run, ok := r.runs[threadID]; ok && !run.finished() {
		r.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "thread already running: "+threadID)
	}
	run := r.launch(threadID, "", func(runCtx context.Context) (*RunResult, error) {
		return r.orch.Resume(runCtx, threadID)
	})
	r.runs[threadID] = run
	r.mu.Unlock()

	return nil
}

// launch 必须在持有 r.mu 时调用。
func (r *Runner) launch(threadID, objective string, fn func(context.Context) (*RunResult, error)) *activeRun {
	runCtx, cancel := context.WithCancel(context.Background())
	run := &activeRun{
		objective: objective,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		result, err := fn(runCtx)
		run.result = result
		run.err = err
		close(run.done)

		if err != nil {
			r.logger.Warn("run finished with error",
				zap.String("thread_id", threadID),
				zap.Error(err),
			)
			return
		}
		r.logger.Info("run completed",
			zap.String("thread_id", threadID),
			zap.Int("iterations", result.Iterations),
		)
	}()

	return run
}

// Cancel stops an in-flight thread. The thread keeps its checkpoint and can
// be resumed later.
func (r *Runner) Cancel(threadID string) error {
	r.mu.RLock()
	run, ok := r.runs[threadID]
	r.mu.RUnlock()

	if !ok || run.finished() {
		return types.NewError(types.ErrNotFound, "no active run for thread: "+threadID)
	}
	run.cancel()
	return nil
}

// Wait blocks until the thread's goroutine finishes or ctx expires.
func (r *Runner) Wait(ctx context.Context, threadID string) (*RunResult, error) {
	r.mu.RLock()
	run, ok := r.runs[threadID]
	r.mu.RUnlock()

	if !ok {
		return nil, types.NewError(types.ErrNotFound, "no active run for thread: "+threadID)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-run.done:
		return run.result, run.err
	}
}

// Status reports the thread's current state. Live runs take precedence;
// otherwise the latest checkpoint decides whether the thread is completed,
// suspended, or merely interrupted.
func (r *Runner) Status(ctx context.Context, threadID string) (*RunInfo, error) {
	r.mu.RLock()
	run, hasRun := r.runs[threadID]
	r.mu.RUnlock()

	rs, err := r.loadState(ctx, threadID)
	if err != nil && !hasRun {
		return nil, err
	}

	info := &RunInfo{ThreadID: threadID}
	if rs != nil {
		info.Objective = rs.Objective
		info.State = rs.MachineState
		info.Iterations = rs.Iterations
		info.PendingQuestion = rs.PendingQuestion
		info.PendingHandle = rs.PendingHandle
		info.UpdatedAt = rs.UpdatedAt
		if rs.Graph != nil {
			info.Summary = rs.Graph.Summary()
		}
	}

	switch {
	case hasRun && !run.finished():
		info.StartedAt = run.startedAt
		if rs != nil && rs.MachineState == StateSuspended {
			info.Status = RunStatusSuspended
		} else {
			info.Status = RunStatusRunning
		}
		if info.Objective == "" {
			info.Objective = run.objective
		}
	case hasRun:
		info.StartedAt = run.startedAt
		info.Result = run.result
		if run.err != nil {
			info.Status = RunStatusFailed
			info.Error = run.err.Error()
		} else {
			info.Status = RunStatusCompleted
			if info.Objective == "" && run.result != nil {
				info.Objective = run.result.Objective
			}
		}
	case rs == nil:
		return nil, types.NewError(types.ErrCheckpointNotFound, "no checkpoint for thread: "+threadID)
	case rs.MachineState == StateDone:
		info.Status = RunStatusCompleted
	case rs.MachineState == StateSuspended:
		info.Status = RunStatusSuspended
	default:
		info.Status = RunStatusInterrupted
	}

	return info, nil
}

func (r *Runner) loadState(ctx context.Context, threadID string) (*RunState, error) {
	cp, err := r.checkpoints.Restore(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return unmarshalRunState(cp.State)
}

// Shutdown cancels every in-flight run and waits for the goroutines to
// checkpoint and exit.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	for _, run := range r.runs {
		run.cancel()
	}
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
