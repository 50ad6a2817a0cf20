// =============================================================================
// Package quick — One-Line Orchestrator Construction
// =============================================================================
// Provides a convenience entry point for assembling an orchestrator with
// minimal boilerplate. Delegates to workflow.NewOrchestrator internally and
// fills in in-memory defaults for every dependency not supplied.
//
// Usage:
//
//	import "github.com/BaSui01/overseer/quick"
//
//	o, err := quick.New(
//		quick.WithDecomposer(myDecomposer),
//		quick.WithJudge(myJudge),
//		quick.WithWorker("agent-1", myWorker, "research", "writing"),
//	)
//	result, err := o.Run(ctx, "write a market report")
//
// =============================================================================
package quick

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/approval"
	"github.com/BaSui01/overseer/checkpoint"
	"github.com/BaSui01/overseer/directory"
	"github.com/BaSui01/overseer/internal/ledger"
	"github.com/BaSui01/overseer/panel"
	"github.com/BaSui01/overseer/types"
	"github.com/BaSui01/overseer/workflow"
)

// Option configures the orchestrator created by New.
type Option func(*options)

type workerEntry struct {
	worker  types.Worker
	profile directory.Profile
}

type options struct {
	decomposer types.Decomposer
	judge      types.Judge
	workers    []workerEntry
	panel      *panel.Panel
	ledger     ledger.Ledger

	checkpointStore checkpoint.Store
	keep            int

	gateStore        approval.RequestStore
	gateTimeout      time.Duration
	approveOnTimeout bool

	cfg    workflow.Config
	logger *zap.Logger
}

// WithDecomposer sets the decomposer contract.
func WithDecomposer(d types.Decomposer) Option {
	return func(o *options) { o.decomposer = d }
}

// WithJudge sets the judge contract.
func WithJudge(j types.Judge) Option {
	return func(o *options) { o.judge = j }
}

// WithWorker registers a worker under the given agent ID with the listed
// capabilities. The agent starts available.
func WithWorker(id string, w types.Worker, capabilities ...string) Option {
	return func(o *options) {
		o.workers = append(o.workers, workerEntry{
			worker: w,
			profile: directory.Profile{
				ID:           id,
				Name:         id,
				Capabilities: capabilities,
				Available:    true,
			},
		})
	}
}

// WithWorkerProfile registers a worker with a fully specified directory
// profile, for callers that need phase affinity or a display name.
func WithWorkerProfile(profile directory.Profile, w types.Worker) Option {
	return func(o *options) {
		o.workers = append(o.workers, workerEntry{worker: w, profile: profile})
	}
}

// WithPanel enables consensus-panel arbitration for worker selection.
func WithPanel(p *panel.Panel) Option {
	return func(o *options) {
		o.panel = p
		o.cfg.UsePanel = true
	}
}

// WithLedger sets the execution ledger. Defaults to none.
func WithLedger(l ledger.Ledger) Option {
	return func(o *options) { o.ledger = l }
}

// WithCheckpointStore sets the checkpoint backend. Defaults to in-memory.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(o *options) { o.checkpointStore = s }
}

// WithCheckpointRetention caps how many checkpoints are kept per thread.
func WithCheckpointRetention(keep int) Option {
	return func(o *options) { o.keep = keep }
}

// WithApprovalStore sets the approval request backend. Defaults to in-memory.
func WithApprovalStore(s approval.RequestStore) Option {
	return func(o *options) { o.gateStore = s }
}

// WithGateTimeout bounds how long a suspended thread waits for a decision.
func WithGateTimeout(d time.Duration) Option {
	return func(o *options) { o.gateTimeout = d }
}

// WithApproveOnTimeout makes the timeout default decision an approval.
func WithApproveOnTimeout(approve bool) Option {
	return func(o *options) { o.approveOnTimeout = approve }
}

// WithMaxRetries caps total executions of a rejected subtask.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.cfg.MaxRetries = n }
}

// WithMaxIterations caps state machine steps per run.
func WithMaxIterations(n int) Option {
	return func(o *options) { o.cfg.MaxIterations = n }
}

// WithParallel enables wave-based parallel execution with the given width.
func WithParallel(width int) Option {
	return func(o *options) {
		o.cfg.Parallel = true
		o.cfg.MaxParallel = width
	}
}

// WithSynthesisTokenBudget caps the synthesized report size.
func WithSynthesisTokenBudget(n int) Option {
	return func(o *options) { o.cfg.SynthesisTokenBudget = n }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Overseer bundles an assembled orchestrator with its collaborators so
// callers can run threads and answer approvals without further wiring.
type Overseer struct {
	Orchestrator *workflow.Orchestrator
	Runner       *workflow.Runner
	Gate         *approval.Gate
	Directory    *directory.Directory
	Checkpoints  *checkpoint.Manager
}

// New assembles an orchestrator from the given options. Contracts that are
// not supplied fall back to deterministic local defaults: a clause-splitting
// decomposer, an echoing worker, and a judge that approves any non-empty
// result. The defaults exist for development and tests; production callers
// supply their own contracts.
func New(opts ...Option) (*Overseer, error) {
	o := &options{
		cfg:         workflow.DefaultConfig(),
		keep:        20,
		gateTimeout: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.decomposer == nil {
		o.decomposer = SequentialDecomposer{}
	}
	if o.judge == nil {
		o.judge = ApproveNonEmptyJudge{}
	}
	if len(o.workers) == 0 {
		o.workers = []workerEntry{{
			worker: EchoWorker{},
			profile: directory.Profile{
				ID:        "local-worker",
				Name:      "local echo worker",
				Available: true,
			},
		}}
	}
	if o.checkpointStore == nil {
		o.checkpointStore = checkpoint.NewInMemoryStore()
	}
	if o.gateStore == nil {
		o.gateStore = approval.NewMemoryRequestStore()
	}

	dir := directory.New(o.logger)
	workers := make(map[string]types.Worker, len(o.workers))
	for _, entry := range o.workers {
		if err := dir.Register(entry.profile); err != nil {
			return nil, err
		}
		workers[entry.profile.ID] = entry.worker
	}

	manager := checkpoint.NewManager(o.checkpointStore, o.keep, o.logger)
	gate := approval.NewGate(o.gateStore, approval.Config{
		Timeout:          o.gateTimeout,
		ApproveOnTimeout: o.approveOnTimeout,
	}, o.logger)

	orch, err := workflow.NewOrchestrator(o.cfg, workflow.Dependencies{
		Decomposer:  o.decomposer,
		Judge:       o.judge,
		Workers:     workers,
		Directory:   dir,
		Checkpoints: manager,
		Gate:        gate,
		Panel:       o.panel,
		Ledger:      o.ledger,
		Logger:      o.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Overseer{
		Orchestrator: orch,
		Runner:       workflow.NewRunner(orch, manager, o.logger),
		Gate:         gate,
		Directory:    dir,
		Checkpoints:  manager,
	}, nil
}

// Run drives one objective to completion under a fresh thread ID.
func (o *Overseer) Run(ctx context.Context, objective string) (*workflow.RunResult, error) {
	return o.Orchestrator.Run(ctx, uuid.NewString(), objective)
}

// RunThread drives one objective under the caller's thread ID, so the
// thread can later be resumed by the same ID.
func (o *Overseer) RunThread(ctx context.Context, threadID, objective string) (*workflow.RunResult, error) {
	return o.Orchestrator.Run(ctx, threadID, objective)
}

// Resume continues an interrupted thread from its last checkpoint.
func (o *Overseer) Resume(ctx context.Context, threadID string) (*workflow.RunResult, error) {
	return o.Orchestrator.Resume(ctx, threadID)
}

// =============================================================================
// Func adapters
// =============================================================================

// WorkerFunc adapts a plain function to the Worker contract.
type WorkerFunc func(ctx context.Context, subtask types.Subtask, execCtx types.ExecutionContext) (string, error)

// Execute implements types.Worker.
func (f WorkerFunc) Execute(ctx context.Context, subtask types.Subtask, execCtx types.ExecutionContext) (string, error) {
	return f(ctx, subtask, execCtx)
}

// JudgeFunc adapts a plain function to the Judge contract.
type JudgeFunc func(ctx context.Context, subtask types.Subtask, result string) (types.Review, error)

// Evaluate implements types.Judge.
func (f JudgeFunc) Evaluate(ctx context.Context, subtask types.Subtask, result string) (types.Review, error) {
	return f(ctx, subtask, result)
}

// DecomposerFunc adapts a plain function to the Decomposer contract.
type DecomposerFunc func(ctx context.Context, objective string) (types.Task, error)

// Decompose implements types.Decomposer.
func (f DecomposerFunc) Decompose(ctx context.Context, objective string) (types.Task, error) {
	return f(ctx, objective)
}

// =============================================================================
// Local default contracts
// =============================================================================

// SequentialDecomposer splits the objective on semicolons and newlines into
// a chain of subtasks, each depending on the previous one. A single-clause
// objective becomes a single subtask.
type SequentialDecomposer struct{}

// Decompose implements types.Decomposer.
func (SequentialDecomposer) Decompose(ctx context.Context, objective string) (types.Task, error) {
	task := types.NewTask(objective)

	parts := strings.FieldsFunc(objective, func(r rune) bool {
		return r == ';' || r == '\n'
	})

	var prev string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st := types.NewSubtask(part)
		if prev != "" {
			st.DependsOn = []string{prev}
		}
		task.Subtasks = append(task.Subtasks, st)
		prev = st.ID
	}
	return task, nil
}

// EchoWorker returns the subtask description as its result. A development
// stand-in for when no real worker is wired.
type EchoWorker struct{}

// Execute implements types.Worker.
func (EchoWorker) Execute(ctx context.Context, subtask types.Subtask, execCtx types.ExecutionContext) (string, error) {
	return "completed: " + subtask.Description, nil
}

// ApproveNonEmptyJudge approves any non-empty result and rejects empty ones.
type ApproveNonEmptyJudge struct{}

// Evaluate implements types.Judge.
func (ApproveNonEmptyJudge) Evaluate(ctx context.Context, subtask types.Subtask, result string) (types.Review, error) {
	if strings.TrimSpace(result) == "" {
		return types.Review{Approved: false, Feedback: "empty result"}, nil
	}
	return types.Review{Approved: true, Quality: 1.0}, nil
}
