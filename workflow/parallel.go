package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/overseer/approval"
	"github.com/BaSui01/overseer/types"
)

// stepAssignParallel drains the graph in waves: every ready subtask that
// can get a worker runs concurrently, bounded by MaxParallel. Reviews and
// the retry loop happen inside the wave, so the machine stays in the
// assign state between waves and leaves it only when the graph settles.
//
// Adjudication requests degrade to an inline gate wait; the thread does
// not park in the suspended state because sibling subtasks keep running.
func (o *Orchestrator) stepAssignParallel(ctx context.Context, rs *RunState, machine *Machine) error {
	ready := rs.Graph.Ready()
	if len(ready) == 0 {
		if rs.Graph.IsComplete() {
			return o.fire(rs, machine, EventAllSettled)
		}
		return types.NewError(types.ErrExecutionFailed,
			"graph has unfinished work but nothing is ready").WithRetryable(true)
	}

	// Claim agents serially; concurrent claims would race on the
	// directory's availability accounting.
	type assignment struct {
		subtask types.Subtask
		agentID string
	}
	var wave []assignment
	for _, st := range ready {
		if len(wave) >= o.config.MaxParallel {
			break
		}
		agentID, err := o.selectAgent(ctx, rs, st)
		if err != nil {
			if types.IsCode(err, types.ErrNoAgentsAvailable) {
				break // pool exhausted, the rest waits for the next wave
			}
			return err
		}
		if err := o.directory.Assign(agentID, st.ID); err != nil {
			continue
		}
		if err := rs.Graph.MarkInProgress(st.ID, agentID); err != nil {
			_ = o.directory.Release(agentID, false)
			return err
		}
		wave = append(wave, assignment{subtask: st, agentID: agentID})
	}
	if len(wave) == 0 {
		if err := o.fire(rs, machine, EventNoWorker); err != nil {
			return err
		}
		return types.NewNoAgentsError()
	}

	if err := o.save(ctx, rs); err != nil {
		return err
	}
	o.logger.Info("parallel wave started",
		zap.String("thread_id", rs.ThreadID),
		zap.Int("subtasks", len(wave)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxParallel)
	for _, a := range wave {
		g.Go(func() error {
			return o.runToVerdict(gctx, rs, a.subtask, a.agentID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := o.save(ctx, rs); err != nil {
		return err
	}
	if rs.Graph.IsComplete() {
		return o.fire(rs, machine, EventAllSettled)
	}
	// More work unlocked; the machine stays in assign for the next wave.
	return nil
}

// runToVerdict drives one subtask through execute and review, including
// its retry budget, and settles it as completed or failed. Only graph
// and directory mutations escape; infrastructure errors abort the wave.
func (o *Orchestrator) runToVerdict(ctx context.Context, rs *RunState, subtask types.Subtask, agentID string) error {
	worker, ok := o.workers[agentID]
	if !ok {
		return types.NewError(types.ErrAgentUnknown,
			fmt.Sprintf("agent %q has no registered worker", agentID)).WithAgent(agentID)
	}

	attempt := subtask.RetryCount
	feedback := subtask.Feedback
	for {
		result, err := o.executeAttempt(ctx, rs, subtask, agentID, worker, attempt, feedback)
		if err != nil {
			if markErr := rs.Graph.MarkFailed(subtask.ID, err.Error()); markErr != nil {
				return markErr
			}
			return o.directory.Release(agentID, false)
		}

		review, err := o.judge.Evaluate(ctx, subtask, result)
		if err != nil {
			return fmt.Errorf("review subtask %s: %w", subtask.ID, err)
		}

		if review.NeedsAdjudication && o.gate != nil {
			decision, err := o.waitInline(ctx, rs, subtask, agentID, review)
			if err != nil {
				return err
			}
			review.Approved = decision.Approved
			if decision.Comment != "" {
				review.Feedback = decision.Comment
			}
		}

		if review.Approved {
			if err := rs.Graph.MarkComplete(subtask.ID, result); err != nil {
				return err
			}
			return o.directory.Release(agentID, true)
		}

		if attempt+1 >= o.config.MaxRetries {
			reason := review.Feedback
			if reason == "" {
				reason = "rejected by review"
			}
			if err := rs.Graph.MarkFailed(subtask.ID,
				fmt.Sprintf("retries exhausted after %d attempts: %s", attempt+1, reason)); err != nil {
				return err
			}
			return o.directory.Release(agentID, false)
		}

		retries, err := rs.Graph.RecordRetry(subtask.ID, review.Feedback)
		if err != nil {
			return err
		}
		attempt = retries
		feedback = review.Feedback
	}
}

// executeAttempt is the parallel-mode worker call, memoized through the
// ledger exactly like the serial path.
func (o *Orchestrator) executeAttempt(ctx context.Context, rs *RunState, subtask types.Subtask, agentID string, worker types.Worker, attempt int, feedback string) (string, error) {
	if cached, ok, err := o.ledger.Lookup(ctx, rs.ThreadID, subtask.ID, attempt); err == nil && ok {
		if o.metrics != nil {
			o.metrics.RecordLedgerHit()
		}
		return cached, nil
	}
	if o.metrics != nil {
		o.metrics.RecordLedgerMiss()
	}

	result, err := worker.Execute(ctx, subtask, types.ExecutionContext{
		Objective:         rs.Objective,
		Attempt:           attempt,
		Feedback:          feedback,
		DependencyResults: o.dependencyResults(rs, subtask),
	})
	if err != nil {
		return "", types.NewExecutionError(subtask.ID, agentID, err)
	}
	if recordErr := o.ledger.Record(ctx, rs.ThreadID, subtask.ID, attempt, result); recordErr != nil {
		o.logger.Warn("failed to record execution in ledger",
			zap.String("subtask", subtask.ID), zap.Error(recordErr))
	}
	return result, nil
}

// waitInline suspends just this subtask behind the gate while its
// siblings keep running. A gate timeout resolves to the gate's default
// decision rather than aborting the wave.
func (o *Orchestrator) waitInline(ctx context.Context, rs *RunState, subtask types.Subtask, agentID string, review types.Review) (approval.Decision, error) {
	question := review.Question
	if question == "" {
		question = fmt.Sprintf("Accept the result of subtask %q?", subtask.ID)
	}
	handle, err := o.gate.Suspend(ctx, rs.ThreadID, question, map[string]string{
		"subtask":  subtask.ID,
		"agent":    agentID,
		"feedback": review.Feedback,
	})
	if err != nil {
		return approval.Decision{}, err
	}
	decision, err := o.gate.Wait(ctx, handle)
	if err != nil && !types.IsCode(err, types.ErrApprovalTimeout) {
		return approval.Decision{}, err
	}
	return decision, nil
}
