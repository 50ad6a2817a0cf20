package workflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/approval"
	"github.com/BaSui01/overseer/checkpoint"
	"github.com/BaSui01/overseer/directory"
	"github.com/BaSui01/overseer/internal/ledger"
	"github.com/BaSui01/overseer/internal/metrics"
	"github.com/BaSui01/overseer/panel"
	"github.com/BaSui01/overseer/types"
)

// Config 编排器运行参数。
type Config struct {
	// MaxRetries caps total executions of one subtask. With MaxRetries=3
	// a rejected subtask runs at most 3 times before it is marked failed.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// MaxIterations caps machine steps per Run call, bounding livelock.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// MaxParallel bounds concurrently executing subtasks when Parallel
	// is on.
	MaxParallel int  `yaml:"max_parallel" json:"max_parallel"`
	Parallel    bool `yaml:"parallel" json:"parallel"`

	// UsePanel delegates worker selection to the consensus panel when
	// more than one candidate scores above zero.
	UsePanel bool `yaml:"use_panel" json:"use_panel"`

	// SynthesisTokenBudget caps the synthesis input size; 0 uses the
	// synthesizer default.
	SynthesisTokenBudget int `yaml:"synthesis_token_budget" json:"synthesis_token_budget"`
}

// DefaultConfig returns the stock orchestration settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		MaxIterations: 100,
		MaxParallel:   3,
	}
}

// Dependencies are the collaborators an orchestrator drives. Decomposer,
// Judge, Workers, Directory and Checkpoints are required; the rest
// default to no-ops or in-memory implementations.
type Dependencies struct {
	Decomposer  types.Decomposer
	Judge       types.Judge
	Workers     map[string]types.Worker
	Directory   *directory.Directory
	Checkpoints *checkpoint.Manager
	Gate        *approval.Gate
	Panel       *panel.Panel
	Ledger      ledger.Ledger
	Metrics     *metrics.Collector
	Logger      *zap.Logger
}

// RunResult is what a finished orchestration thread reports.
type RunResult struct {
	ThreadID    string                      `json:"thread_id"`
	Objective   string                      `json:"objective"`
	FinalOutput string                      `json:"final_output"`
	Summary     map[types.SubtaskStatus]int `json:"summary"`
	Completed   []types.Subtask             `json:"completed,omitempty"`
	Failed      []types.Subtask             `json:"failed,omitempty"`
	Blocked     []types.Subtask             `json:"blocked,omitempty"`
	Iterations  int                         `json:"iterations"`
}

// Orchestrator drives the decompose/assign/execute/review/synthesize loop
// for one objective at a time, checkpointing after every external side
// effect so a crashed or suspended thread resumes without repeating work.
type Orchestrator struct {
	config      Config
	decomposer  types.Decomposer
	judge       types.Judge
	workers     map[string]types.Worker
	directory   *directory.Directory
	checkpoints *checkpoint.Manager
	gate        *approval.Gate
	panel       *panel.Panel
	ledger      ledger.Ledger
	metrics     *metrics.Collector
	synthesizer *Synthesizer
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewOrchestrator validates the wiring and builds an orchestrator.
func NewOrchestrator(config Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Decomposer == nil {
		return nil, fmt.Errorf("orchestrator requires a decomposer")
	}
	if deps.Judge == nil {
		return nil, fmt.Errorf("orchestrator requires a judge")
	}
	if len(deps.Workers) == 0 {
		return nil, fmt.Errorf("orchestrator requires at least one worker")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("orchestrator requires an agent directory")
	}
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("orchestrator requires a checkpoint manager")
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = DefaultConfig().MaxParallel
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.NewMemoryLedger()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		config:      config,
		decomposer:  deps.Decomposer,
		judge:       deps.Judge,
		workers:     deps.Workers,
		directory:   deps.Directory,
		checkpoints: deps.Checkpoints,
		gate:        deps.Gate,
		panel:       deps.Panel,
		ledger:      deps.Ledger,
		metrics:     deps.Metrics,
		synthesizer: NewSynthesizer(config.SynthesisTokenBudget),
		tracer:      otel.Tracer("overseer/workflow"),
		logger:      logger.With(zap.String("component", "orchestrator")),
	}, nil
}

// Run drives the thread to completion, resuming from the latest
// checkpoint when one exists. The objective argument is used only for a
// fresh thread; a resumed thread keeps its original objective.
func (o *Orchestrator) Run(ctx context.Context, threadID, objective string) (*RunResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	rs, err := o.loadOrCreate(ctx, threadID, objective)
	if err != nil {
		return nil, err
	}
	machine, err := RestoreMachine(rs.MachineState)
	if err != nil {
		return nil, err
	}

	o.logger.Info("orchestration started",
		zap.String("thread_id", threadID),
		zap.String("state", string(machine.State())),
	)

	for !machine.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.ErrRunAborted, "run cancelled").WithCause(err)
		}
		if rs.Iterations >= o.config.MaxIterations {
			return nil, types.NewError(types.ErrIterationBudget,
				fmt.Sprintf("thread %s exceeded %d iterations", threadID, o.config.MaxIterations))
		}
		rs.Iterations++

		if err := o.step(ctx, rs, machine); err != nil {
			return nil, err
		}
	}

	if o.metrics != nil {
		o.metrics.RecordRun(string(machine.State()))
	}

	result := o.buildResult(rs)
	o.logger.Info("orchestration finished",
		zap.String("thread_id", threadID),
		zap.Int("iterations", rs.Iterations),
		zap.Int("completed", len(result.Completed)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("blocked", len(result.Blocked)),
	)
	return result, nil
}

// Resume is Run for a thread known to have checkpoints; it fails instead
// of starting fresh when none exist.
func (o *Orchestrator) Resume(ctx context.Context, threadID string) (*RunResult, error) {
	ok, err := o.checkpoints.HasThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.NewError(types.ErrCheckpointNotFound,
			fmt.Sprintf("no checkpoints for thread %q", threadID))
	}
	return o.Run(ctx, threadID, "")
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, threadID, objective string) (*RunState, error) {
	cp, err := o.checkpoints.Restore(ctx, threadID)
	if err == nil {
		rs, err := unmarshalRunState(cp.State)
		if err != nil {
			return nil, err
		}
		o.logger.Info("resuming from checkpoint",
			zap.String("thread_id", threadID),
			zap.Int64("sequence", cp.Sequence),
			zap.String("state", string(rs.MachineState)),
		)
		return rs, nil
	}
	if !types.IsCode(err, types.ErrCheckpointNotFound) {
		return nil, err
	}
	return newRunState(threadID, objective), nil
}

// step executes exactly one state of the machine: effect, routing event,
// then a checkpoint of the fired state, so the latest checkpoint always
// resumes into the state the machine actually reached.
func (o *Orchestrator) step(ctx context.Context, rs *RunState, machine *Machine) error {
	state := machine.State()
	ctx, span := o.tracer.Start(ctx, "orchestrator.step",
		trace.WithAttributes(
			attribute.String("thread_id", rs.ThreadID),
			attribute.String("state", string(state)),
		))
	defer span.End()

	var err error
	switch state {
	case StateDecompose:
		err = o.stepDecompose(ctx, rs, machine)
	case StateAssign:
		err = o.stepAssign(ctx, rs, machine)
	case StateExecute:
		err = o.stepExecute(ctx, rs, machine)
	case StateReview:
		err = o.stepReview(ctx, rs, machine)
	case StateSuspended:
		err = o.stepSuspended(ctx, rs, machine)
	case StateSynthesize:
		err = o.stepSynthesize(ctx, rs, machine)
	default:
		err = types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("no step defined for state %s", state))
	}
	if err != nil {
		return err
	}
	return o.save(ctx, rs)
}

// fire advances the machine and mirrors the new state into the run state.
func (o *Orchestrator) fire(rs *RunState, machine *Machine, event Event) error {
	from := machine.State()
	next, err := machine.Fire(event)
	if err != nil {
		return err
	}
	rs.MachineState = next
	if o.metrics != nil {
		o.metrics.RecordStateTransition(string(from), string(next), string(event))
	}
	o.logger.Debug("state transition",
		zap.String("thread_id", rs.ThreadID),
		zap.String("from", string(from)),
		zap.String("event", string(event)),
		zap.String("to", string(next)),
	)
	return nil
}

// save persists the run state. Steps call it right after recording an
// external side effect; the driver calls it again once the routing event
// commits.
func (o *Orchestrator) save(ctx context.Context, rs *RunState) error {
	blob, err := rs.Marshal()
	if err != nil {
		return err
	}
	if _, err := o.checkpoints.Save(ctx, rs.ThreadID, blob); err != nil {
		if o.metrics != nil {
			o.metrics.RecordCheckpointSave("error")
		}
		return err
	}
	if o.metrics != nil {
		o.metrics.RecordCheckpointSave("success")
	}
	return nil
}

func (o *Orchestrator) stepDecompose(ctx context.Context, rs *RunState, machine *Machine) error {
	// A replayed thread that already carries a graph skips the external
	// decomposition call.
	if rs.Graph == nil {
		task, err := o.decomposer.Decompose(ctx, rs.Objective)
		if err != nil {
			return fmt.Errorf("decompose objective: %w", err)
		}
		graph, err := FromTask(task)
		if err != nil {
			return err
		}
		rs.Task = task
		rs.Graph = graph
		if err := o.save(ctx, rs); err != nil {
			return err
		}
		o.logger.Info("objective decomposed",
			zap.String("thread_id", rs.ThreadID),
			zap.Int("subtasks", graph.Len()),
		)
	}

	if rs.Graph.Len() == 0 {
		output, err := o.synthesizer.Synthesize(rs.Objective, rs.Graph)
		if err != nil {
			return err
		}
		rs.FinalOutput = output
		if err := o.save(ctx, rs); err != nil {
			return err
		}
		return o.fire(rs, machine, EventEmptyTask)
	}
	return o.fire(rs, machine, EventDecomposed)
}

func (o *Orchestrator) stepAssign(ctx context.Context, rs *RunState, machine *Machine) error {
	if rs.Graph.Len() == 0 {
		return o.fire(rs, machine, EventNoSubtasks)
	}

	if o.config.Parallel {
		return o.stepAssignParallel(ctx, rs, machine)
	}

	ready := rs.Graph.Ready()
	if len(ready) == 0 {
		if rs.Graph.IsComplete() {
			return o.fire(rs, machine, EventAllSettled)
		}
		return types.NewError(types.ErrExecutionFailed,
			"graph has unfinished work but nothing is ready").WithRetryable(true)
	}

	subtask := ready[0]
	agentID, err := o.selectAgent(ctx, rs, subtask)
	if err != nil {
		// Keep the machine consistent for a later retry, then surface.
		if fireErr := o.fire(rs, machine, EventNoWorker); fireErr != nil {
			return fireErr
		}
		if saveErr := o.save(ctx, rs); saveErr != nil {
			return saveErr
		}
		return err
	}

	if err := o.directory.Assign(agentID, subtask.ID); err != nil {
		return err
	}
	if err := rs.Graph.MarkInProgress(subtask.ID, agentID); err != nil {
		_ = o.directory.Release(agentID, false)
		return err
	}

	rs.CurrentSubtask = subtask.ID
	rs.CurrentAgent = agentID
	rs.Attempt = subtask.RetryCount
	if err := o.save(ctx, rs); err != nil {
		return err
	}

	o.logger.Info("subtask assigned",
		zap.String("thread_id", rs.ThreadID),
		zap.String("subtask", subtask.ID),
		zap.String("agent", agentID),
	)
	return o.fire(rs, machine, EventAssigned)
}

// selectAgent picks a worker for the subtask, via panel arbitration when
// configured and more than one candidate qualifies.
func (o *Orchestrator) selectAgent(ctx context.Context, rs *RunState, subtask types.Subtask) (string, error) {
	candidates := o.directory.Candidates(subtask.RequiredCapabilities, subtask.Phase)

	if o.config.UsePanel && o.panel != nil && len(candidates) > 1 {
		winner, err := o.arbitrate(ctx, rs, subtask, candidates)
		if err == nil {
			return winner, nil
		}
		o.logger.Warn("panel arbitration failed, falling back to directory scoring",
			zap.String("subtask", subtask.ID), zap.Error(err))
	}

	best, err := o.directory.FindBest(subtask.RequiredCapabilities, subtask.Phase)
	if err != nil {
		return "", err
	}
	if _, ok := o.workers[best.ID]; !ok {
		return "", types.NewError(types.ErrAgentUnknown,
			fmt.Sprintf("agent %q has no registered worker", best.ID)).WithAgent(best.ID)
	}
	return best.ID, nil
}

// arbitrate runs the consensus panel over the scored candidates. Each
// candidate answers interview questions through its worker.
func (o *Orchestrator) arbitrate(ctx context.Context, rs *RunState, subtask types.Subtask, candidates []directory.ScoredCandidate) (string, error) {
	var panelCandidates []panel.Candidate
	for _, c := range candidates {
		worker, ok := o.workers[c.Profile.ID]
		if !ok {
			continue
		}
		panelCandidates = append(panelCandidates, &workerCandidate{
			id:        c.Profile.ID,
			worker:    worker,
			objective: rs.Objective,
		})
	}
	if len(panelCandidates) < 2 {
		return "", types.NewNoAgentsError()
	}

	result, err := o.panel.Evaluate(ctx, subtask.Description, panelCandidates)
	if err != nil {
		return "", err
	}
	if o.metrics != nil {
		o.metrics.RecordPanelEvaluation(string(result.Confidence), result.TieBreakUsed)
	}
	return result.Winner, nil
}

// workerCandidate adapts a worker to the panel's interview contract: a
// question is posed as a one-off probe subtask.
type workerCandidate struct {
	id        string
	worker    types.Worker
	objective string
}

func (c *workerCandidate) ID() string { return c.id }

func (c *workerCandidate) Answer(ctx context.Context, q panel.Question) (string, error) {
	probe := types.NewSubtask(q.Text)
	return c.worker.Execute(ctx, probe, types.ExecutionContext{Objective: c.objective})
}

func (o *Orchestrator) stepExecute(ctx context.Context, rs *RunState, machine *Machine) error {
	subtask, err := rs.Graph.Get(rs.CurrentSubtask)
	if err != nil {
		return err
	}

	result, execErr := o.executeOnce(ctx, rs, subtask)
	if execErr != nil {
		// The failure is absorbed into subtask status; siblings continue.
		if err := rs.Graph.MarkFailed(subtask.ID, execErr.Error()); err != nil {
			return err
		}
		if err := o.directory.Release(rs.CurrentAgent, false); err != nil {
			o.logger.Warn("release after execution failure",
				zap.String("agent", rs.CurrentAgent), zap.Error(err))
		}
		rs.LastExecutionError = execErr.Error()
		rs.LastResult = ""
	} else {
		rs.LastResult = result
		rs.LastExecutionError = ""
	}

	if err := o.save(ctx, rs); err != nil {
		return err
	}
	return o.fire(rs, machine, EventExecuted)
}

// executeOnce invokes the worker, memoizing through the ledger so a
// replayed attempt reuses the recorded result instead of re-calling out.
func (o *Orchestrator) executeOnce(ctx context.Context, rs *RunState, subtask types.Subtask) (string, error) {
	if cached, ok, err := o.ledger.Lookup(ctx, rs.ThreadID, subtask.ID, rs.Attempt); err == nil && ok {
		if o.metrics != nil {
			o.metrics.RecordLedgerHit()
		}
		o.logger.Info("execution replayed from ledger",
			zap.String("thread_id", rs.ThreadID),
			zap.String("subtask", subtask.ID),
			zap.Int("attempt", rs.Attempt),
		)
		return cached, nil
	}
	if o.metrics != nil {
		o.metrics.RecordLedgerMiss()
	}

	worker, ok := o.workers[rs.CurrentAgent]
	if !ok {
		return "", types.NewError(types.ErrAgentUnknown,
			fmt.Sprintf("agent %q has no registered worker", rs.CurrentAgent)).WithAgent(rs.CurrentAgent)
	}

	execCtx := types.ExecutionContext{
		Objective:         rs.Objective,
		Attempt:           rs.Attempt,
		Feedback:          subtask.Feedback,
		DependencyResults: o.dependencyResults(rs, subtask),
	}

	started := time.Now()
	result, err := worker.Execute(ctx, subtask, execCtx)
	duration := time.Since(started)
	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.RecordSubtaskExecution(rs.CurrentAgent, status, duration)
	}
	if err != nil {
		return "", types.NewExecutionError(subtask.ID, rs.CurrentAgent, err)
	}

	if recordErr := o.ledger.Record(ctx, rs.ThreadID, subtask.ID, rs.Attempt, result); recordErr != nil {
		o.logger.Warn("failed to record execution in ledger",
			zap.String("subtask", subtask.ID), zap.Error(recordErr))
	}
	return result, nil
}

func (o *Orchestrator) dependencyResults(rs *RunState, subtask types.Subtask) map[string]string {
	if len(subtask.DependsOn) == 0 {
		return nil
	}
	out := make(map[string]string, len(subtask.DependsOn))
	for _, dep := range subtask.DependsOn {
		if st, err := rs.Graph.Get(dep); err == nil && st.Status == types.StatusCompleted {
			out[dep] = st.Result
		}
	}
	return out
}

func (o *Orchestrator) stepReview(ctx context.Context, rs *RunState, machine *Machine) error {
	// No in-flight subtask means the settle already landed in the graph
	// and only the routing event is missing (a checkpoint written between
	// settle and transition). Advance without re-reviewing.
	if rs.CurrentSubtask == "" {
		return o.fire(rs, machine, EventSettled)
	}

	// A failed worker call skips the judge; the subtask is already
	// terminal.
	if rs.LastExecutionError != "" {
		rs.clearAssignment()
		return o.fire(rs, machine, EventRetriesExhausted)
	}

	subtask, err := rs.Graph.Get(rs.CurrentSubtask)
	if err != nil {
		return err
	}

	review, err := o.resolveReview(ctx, rs, subtask)
	if err != nil {
		return err
	}
	rs.LastReview = &review
	if err := o.save(ctx, rs); err != nil {
		return err
	}

	switch {
	case review.NeedsAdjudication:
		return o.escalate(ctx, rs, machine, subtask, review)

	case review.Approved:
		if err := rs.Graph.MarkComplete(subtask.ID, rs.LastResult); err != nil {
			return err
		}
		if err := o.directory.Release(rs.CurrentAgent, true); err != nil {
			o.logger.Warn("release after approval", zap.Error(err))
		}
		o.logger.Info("subtask approved",
			zap.String("thread_id", rs.ThreadID),
			zap.String("subtask", subtask.ID),
			zap.Float64("quality", review.Quality),
		)
		rs.clearAssignment()
		return o.fire(rs, machine, EventApproved)

	case subtask.RetryCount+1 < o.config.MaxRetries:
		retries, err := rs.Graph.RecordRetry(subtask.ID, review.Feedback)
		if err != nil {
			return err
		}
		rs.Attempt = retries
		rs.LastReview = nil
		o.logger.Info("subtask rejected, retrying",
			zap.String("thread_id", rs.ThreadID),
			zap.String("subtask", subtask.ID),
			zap.Int("attempt", retries),
			zap.String("feedback", review.Feedback),
		)
		return o.fire(rs, machine, EventRejected)

	default:
		reason := review.Feedback
		if reason == "" {
			reason = "rejected by review"
		}
		if err := rs.Graph.MarkFailed(subtask.ID,
			fmt.Sprintf("retries exhausted after %d attempts: %s", subtask.RetryCount+1, reason)); err != nil {
			return err
		}
		if err := o.directory.Release(rs.CurrentAgent, false); err != nil {
			o.logger.Warn("release after exhausted retries", zap.Error(err))
		}
		o.logger.Warn("subtask failed, retries exhausted",
			zap.String("thread_id", rs.ThreadID),
			zap.String("subtask", subtask.ID),
			zap.Int("attempts", subtask.RetryCount+1),
		)
		rs.clearAssignment()
		return o.fire(rs, machine, EventRetriesExhausted)
	}
}

// resolveReview obtains the verdict: a pending external decision when the
// thread just resumed, the judge otherwise.
func (o *Orchestrator) resolveReview(ctx context.Context, rs *RunState, subtask types.Subtask) (types.Review, error) {
	if rs.PendingApproved != nil {
		review := types.Review{
			Approved: *rs.PendingApproved,
			Feedback: rs.PendingComment,
		}
		rs.clearSuspension()
		return review, nil
	}
	if rs.LastReview != nil {
		// A checkpoint already recorded the verdict for this attempt;
		// replaying must not ask the judge again.
		return *rs.LastReview, nil
	}
	review, err := o.judge.Evaluate(ctx, subtask, rs.LastResult)
	if err != nil {
		return types.Review{}, fmt.Errorf("review subtask %s: %w", subtask.ID, err)
	}
	return review, nil
}

// escalate parks the thread behind the approval gate.
func (o *Orchestrator) escalate(ctx context.Context, rs *RunState, machine *Machine, subtask types.Subtask, review types.Review) error {
	if o.gate == nil {
		// Without a gate the adjudication request degrades to a plain
		// rejection so the retry loop still applies.
		rs.PendingApproved = boolPtr(false)
		rs.PendingComment = review.Feedback
		return o.fire(rs, machine, EventEscalated)
	}

	if rs.PendingHandle != "" {
		// Replaying an interrupted suspension: the original request is
		// still parked with the gate, so wait on it instead of filing a
		// duplicate.
		return o.fire(rs, machine, EventEscalated)
	}

	question := review.Question
	if question == "" {
		question = fmt.Sprintf("Accept the result of subtask %q?", subtask.ID)
	}
	handle, err := o.gate.Suspend(ctx, rs.ThreadID, question, map[string]string{
		"subtask":  subtask.ID,
		"agent":    rs.CurrentAgent,
		"feedback": review.Feedback,
	})
	if err != nil {
		return err
	}
	rs.PendingHandle = handle
	rs.PendingQuestion = question
	if o.metrics != nil {
		o.metrics.RecordApprovalEvent("requested")
	}
	if err := o.save(ctx, rs); err != nil {
		return err
	}
	return o.fire(rs, machine, EventEscalated)
}

func (o *Orchestrator) stepSuspended(ctx context.Context, rs *RunState, machine *Machine) error {
	if rs.PendingApproved == nil {
		if o.gate == nil || rs.PendingHandle == "" {
			return types.NewHandleNotFoundError(rs.PendingHandle)
		}
		decision, err := o.gate.Wait(ctx, rs.PendingHandle)
		if err != nil && !types.IsCode(err, types.ErrApprovalTimeout) {
			return err
		}
		rs.PendingApproved = boolPtr(decision.Approved)
		rs.PendingComment = decision.Comment
		if o.metrics != nil {
			if decision.Approved {
				o.metrics.RecordApprovalEvent("approved")
			} else {
				o.metrics.RecordApprovalEvent("denied")
			}
		}
	}
	rs.PendingHandle = ""
	rs.PendingQuestion = ""
	if err := o.save(ctx, rs); err != nil {
		return err
	}
	return o.fire(rs, machine, EventResumed)
}

func (o *Orchestrator) stepSynthesize(ctx context.Context, rs *RunState, machine *Machine) error {
	output, err := o.synthesizer.Synthesize(rs.Objective, rs.Graph)
	if err != nil {
		return err
	}
	rs.FinalOutput = output
	if err := o.save(ctx, rs); err != nil {
		return err
	}
	return o.fire(rs, machine, EventSynthesized)
}

func (o *Orchestrator) buildResult(rs *RunState) *RunResult {
	result := &RunResult{
		ThreadID:    rs.ThreadID,
		Objective:   rs.Objective,
		FinalOutput: rs.FinalOutput,
		Iterations:  rs.Iterations,
	}
	if rs.Graph != nil {
		result.Summary = rs.Graph.Summary()
		result.Completed = rs.Graph.Completed()
		result.Failed = rs.Graph.Failed()
		result.Blocked = rs.Graph.Blocked()
	}
	return result
}

func boolPtr(b bool) *bool { return &b }
