package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/internal/feed"
	"github.com/BaSui01/overseer/types"
)

// EventType 审批事件类型。
type EventType string

const (
	EventPending  EventType = "pending"
	EventResolved EventType = "resolved"
	EventTimedOut EventType = "timed_out"
)

// Event is published whenever a request is created or settled.
type Event struct {
	Type    EventType `json:"type"`
	Request *Request  `json:"request"`
}

// Config tunes the gate's timeout policy.
type Config struct {
	// Timeout caps how long Wait blocks before the default decision
	// applies. Zero means wait indefinitely.
	Timeout time.Duration
	// ApproveOnTimeout selects the default decision. The safe default is
	// rejection.
	ApproveOnTimeout bool
}

type waiter struct {
	request    *Request
	responseCh chan Decision
}

// Gate suspends orchestration threads until an operator decides. Each
// Suspend issues an opaque handle; exactly one Resume per handle goes
// through, every later one fails with a handle-not-found error.
type Gate struct {
	store  RequestStore
	config Config
	logger *zap.Logger
	events *feed.Feed[Event]

	mu      sync.Mutex
	waiters map[string]*waiter
}

// NewGate creates a gate over the given request store.
func NewGate(store RequestStore, config Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		store:   store,
		config:  config,
		logger:  logger.With(zap.String("component", "approval_gate")),
		events:  feed.New[Event](feed.DefaultCapacity),
		waiters: make(map[string]*waiter),
	}
}

// Suspend records a pending request and returns its handle. The caller
// then parks on Wait; a human settles it through Resume.
func (g *Gate) Suspend(ctx context.Context, threadID, question string, details map[string]string) (string, error) {
	req := &Request{
		Handle:    uuid.NewString(),
		ThreadID:  threadID,
		Question:  question,
		Details:   details,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.Save(ctx, req); err != nil {
		return "", err
	}

	w := &waiter{
		request:    req,
		responseCh: make(chan Decision, 1),
	}
	g.mu.Lock()
	g.waiters[req.Handle] = w
	g.mu.Unlock()

	g.publish(Event{Type: EventPending, Request: req})
	g.logger.Info("orchestration suspended",
		zap.String("handle", req.Handle),
		zap.String("thread_id", threadID),
		zap.String("question", question),
	)
	return req.Handle, nil
}

// Wait blocks until the handle is resumed, the configured timeout fires,
// or ctx is cancelled. On timeout the default decision is recorded and
// returned together with an APPROVAL_TIMEOUT error so callers can choose
// to honor or surface it.
func (g *Gate) Wait(ctx context.Context, handle string) (Decision, error) {
	g.mu.Lock()
	w, ok := g.waiters[handle]
	g.mu.Unlock()
	if !ok {
		// Resume may have settled the handle before Wait was entered;
		// the decision is then in the store.
		req, err := g.store.Get(ctx, handle)
		if err != nil {
			return Decision{}, err
		}
		if req.Decision != nil {
			return *req.Decision, nil
		}
		if req.Status != StatusPending {
			return Decision{}, types.NewHandleNotFoundError(handle)
		}
		// The request outlived its waiter, which happens when a thread
		// replays a suspension after a process restart. Re-attach so the
		// stored request stays resolvable instead of duplicating it.
		g.mu.Lock()
		if existing, dup := g.waiters[handle]; dup {
			w = existing
		} else {
			w = &waiter{request: req, responseCh: make(chan Decision, 1)}
			g.waiters[handle] = w
		}
		g.mu.Unlock()

		// Re-read after the attach: a store-only Resume may have settled
		// the request between the first read and the attach. Any Resume
		// after the attach finds the waiter and delivers on its channel.
		req, err = g.store.Get(ctx, handle)
		if err == nil && req.Decision != nil {
			g.mu.Lock()
			delete(g.waiters, handle)
			g.mu.Unlock()
			return *req.Decision, nil
		}
	}

	var timeoutCh <-chan time.Time
	if g.config.Timeout > 0 {
		timer := time.NewTimer(g.config.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case decision := <-w.responseCh:
		return decision, nil
	case <-timeoutCh:
		return g.expire(ctx, handle, w)
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// Resume settles a pending handle with the given decision. The check and
// removal of the waiter happen under the gate lock, so of two concurrent
// calls exactly one succeeds and the other gets handle-not-found.
func (g *Gate) Resume(ctx context.Context, handle string, decision Decision) error {
	now := time.Now().UTC()
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = now
	}

	// Check and settle stay under one critical section: of two concurrent
	// calls exactly one sees a live waiter or a pending stored request.
	g.mu.Lock()
	defer g.mu.Unlock()

	if w, ok := g.waiters[handle]; ok {
		delete(g.waiters, handle)
		req := w.request
		err := g.settle(ctx, req, decision, now)
		if err != nil {
			g.logger.Warn("failed to persist approval decision",
				zap.String("handle", handle), zap.Error(err))
		}

		// Deliver even when persistence failed so the waiting thread is
		// never orphaned. The channel is buffered, the send cannot block.
		w.responseCh <- decision

		g.publish(Event{Type: EventResolved, Request: req})
		g.logger.Info("approval resolved",
			zap.String("handle", handle),
			zap.Bool("approved", decision.Approved),
			zap.String("decided_by", decision.DecidedBy),
		)
		return err
	}

	// No live waiter: the request may still sit pending in the store when
	// its thread has not replayed the suspension since a process restart.
	// Settle it there so the replaying Wait finds the decision.
	req, err := g.store.Get(ctx, handle)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return types.NewHandleNotFoundError(handle)
	}
	if err := g.settle(ctx, req, decision, now); err != nil {
		return err
	}
	g.publish(Event{Type: EventResolved, Request: req})
	g.logger.Info("approval resolved without live waiter",
		zap.String("handle", handle),
		zap.Bool("approved", decision.Approved),
		zap.String("decided_by", decision.DecidedBy),
	)
	return nil
}

// settle records the decision on the request and persists it. The caller
// chooses how the decision reaches the suspended thread.
func (g *Gate) settle(ctx context.Context, req *Request, decision Decision, now time.Time) error {
	req.Decision = &decision
	req.ResolvedAt = &now
	req.Status = StatusRejected
	if decision.Approved {
		req.Status = StatusApproved
	}
	return g.store.Update(ctx, req)
}

// expire applies the default decision when no human answered in time.
func (g *Gate) expire(ctx context.Context, handle string, w *waiter) (Decision, error) {
	g.mu.Lock()
	_, ok := g.waiters[handle]
	if !ok {
		g.mu.Unlock()
		// A racing Resume already claimed the handle and will deliver
		// its decision on the waiter channel.
		return <-w.responseCh, nil
	}
	delete(g.waiters, handle)

	now := time.Now().UTC()
	decision := Decision{
		Approved:  g.config.ApproveOnTimeout,
		Comment:   "no decision before timeout",
		DecidedBy: "system",
		DecidedAt: now,
	}

	// The store update stays under the lock so a concurrent Resume cannot
	// settle the same request through the store fallback.
	req := w.request
	req.Decision = &decision
	req.ResolvedAt = &now
	req.Status = StatusTimeout
	if err := g.store.Update(ctx, req); err != nil {
		g.logger.Warn("failed to record approval timeout",
			zap.String("handle", handle), zap.Error(err))
	}
	g.mu.Unlock()

	g.publish(Event{Type: EventTimedOut, Request: req})
	g.logger.Warn("approval timed out",
		zap.String("handle", handle),
		zap.Bool("default_approved", decision.Approved),
	)
	return decision, types.NewError(types.ErrApprovalTimeout,
		"approval request timed out, default decision applied")
}

// Pending lists unresolved requests, oldest first.
func (g *Gate) Pending(ctx context.Context) ([]*Request, error) {
	return g.store.List(ctx, StatusPending)
}

// History lists every request regardless of status, oldest first.
func (g *Gate) History(ctx context.Context) ([]*Request, error) {
	return g.store.List(ctx, "")
}

// Events exposes the gate's event feed for streaming consumers.
func (g *Gate) Events() <-chan Event {
	return g.events.Chan()
}

func (g *Gate) publish(ev Event) {
	// A slow stream consumer loses the oldest events, never blocks
	// approvals.
	g.events.Publish(ev)
}
