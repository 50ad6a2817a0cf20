package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/overseer/types"
)

// TaskGraph holds the subtasks of one task together with their dependency
// edges. Readiness is recomputed on every call rather than cached, so
// mutations made between calls are always reflected.
//
// All methods are safe for concurrent use; the bounded-parallel executor
// mutates the graph from several goroutines.
type TaskGraph struct {
	mu       sync.RWMutex
	subtasks map[string]*types.Subtask
	// order preserves insertion order so Ready() and Blocked() are
	// deterministic for a given graph state.
	order []string
}

// NewTaskGraph creates an empty task graph.
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{
		subtasks: make(map[string]*types.Subtask),
	}
}

// FromTask builds a graph from a decomposed task. Subtasks may reference
// each other in any order; dependency existence and acyclicity are
// validated after all nodes are indexed. On error the returned graph is nil
// and nothing is retained.
func FromTask(task types.Task) (*TaskGraph, error) {
	g := NewTaskGraph()
	for i := range task.Subtasks {
		st := task.Subtasks[i]
		if st.ID == "" {
			return nil, types.NewError(types.ErrGraphSubtaskNotFound, "subtask with empty id")
		}
		if _, dup := g.subtasks[st.ID]; dup {
			return nil, types.NewError(types.ErrGraphDuplicateSubtask,
				fmt.Sprintf("duplicate subtask id %q", st.ID))
		}
		if st.Status == "" {
			st.Status = types.StatusPending
		}
		cp := st
		g.subtasks[st.ID] = &cp
		g.order = append(g.order, st.ID)
	}
	for _, id := range g.order {
		for _, dep := range g.subtasks[id].DependsOn {
			if _, ok := g.subtasks[dep]; !ok {
				return nil, types.NewError(types.ErrGraphUnknownDependency,
					fmt.Sprintf("subtask %q depends on unknown subtask %q", id, dep)).WithSubtask(id)
			}
		}
	}
	if cycle := g.findCycle(); cycle != "" {
		return nil, types.NewError(types.ErrGraphCycle,
			fmt.Sprintf("dependency cycle through subtask %q", cycle)).WithSubtask(cycle)
	}
	return g, nil
}

// Add inserts a subtask whose dependencies must already exist in the graph.
// The graph is left unchanged on any error.
func (g *TaskGraph) Add(st types.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st.ID == "" {
		return types.NewError(types.ErrGraphSubtaskNotFound, "subtask with empty id")
	}
	if _, dup := g.subtasks[st.ID]; dup {
		return types.NewError(types.ErrGraphDuplicateSubtask,
			fmt.Sprintf("duplicate subtask id %q", st.ID))
	}
	for _, dep := range st.DependsOn {
		if _, ok := g.subtasks[dep]; !ok {
			return types.NewError(types.ErrGraphUnknownDependency,
				fmt.Sprintf("subtask %q depends on unknown subtask %q", st.ID, dep)).WithSubtask(st.ID)
		}
	}
	if st.Status == "" {
		st.Status = types.StatusPending
	}
	cp := st
	g.subtasks[st.ID] = &cp
	g.order = append(g.order, st.ID)
	return nil
}

// AddDependency adds an edge from a subtask to a dependency after both
// exist. The edge is rejected, with no mutation, if it would close a cycle.
func (g *TaskGraph) AddDependency(id, dependsOn string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.subtasks[id]
	if !ok {
		return types.NewError(types.ErrGraphSubtaskNotFound,
			fmt.Sprintf("subtask %q not found", id)).WithSubtask(id)
	}
	if _, ok := g.subtasks[dependsOn]; !ok {
		return types.NewError(types.ErrGraphUnknownDependency,
			fmt.Sprintf("subtask %q depends on unknown subtask %q", id, dependsOn)).WithSubtask(id)
	}
	for _, existing := range st.DependsOn {
		if existing == dependsOn {
			return nil
		}
	}
	st.DependsOn = append(st.DependsOn, dependsOn)
	if cycle := g.findCycle(); cycle != "" {
		st.DependsOn = st.DependsOn[:len(st.DependsOn)-1]
		return types.NewCycleError(id, dependsOn)
	}
	return nil
}

// findCycle runs a DFS over the dependency edges and returns the id of a
// subtask on a cycle, or "". Caller must hold at least a read lock.
func (g *TaskGraph) findCycle() string {
	const (
		white = 0 // unvisited
		gray  = 1 // on stack
		black = 2 // done
	)
	color := make(map[string]int, len(g.subtasks))
	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range g.subtasks[id].DependsOn {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if hit := visit(dep); hit != "" {
					return hit
				}
			}
		}
		color[id] = black
		return ""
	}
	for _, id := range g.order {
		if color[id] == white {
			if hit := visit(id); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// Ready returns, in insertion order, every pending subtask whose
// dependencies are all completed. The result is recomputed on each call.
func (g *TaskGraph) Ready() []types.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []types.Subtask
	for _, id := range g.order {
		st := g.subtasks[id]
		if st.Status != types.StatusPending {
			continue
		}
		if g.depsCompleted(st) {
			ready = append(ready, *st)
		}
	}
	return ready
}

func (g *TaskGraph) depsCompleted(st *types.Subtask) bool {
	for _, dep := range st.DependsOn {
		if g.subtasks[dep].Status != types.StatusCompleted {
			return false
		}
	}
	return true
}

// Get returns a copy of the subtask with the given id.
func (g *TaskGraph) Get(id string) (types.Subtask, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st, ok := g.subtasks[id]
	if !ok {
		return types.Subtask{}, types.NewError(types.ErrGraphSubtaskNotFound,
			fmt.Sprintf("subtask %q not found", id)).WithSubtask(id)
	}
	return *st, nil
}

// MarkInProgress transitions a pending subtask to in_progress and records
// the assigned agent.
func (g *TaskGraph) MarkInProgress(id, agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.subtasks[id]
	if !ok {
		return types.NewError(types.ErrGraphSubtaskNotFound,
			fmt.Sprintf("subtask %q not found", id)).WithSubtask(id)
	}
	if st.Status != types.StatusPending {
		return types.NewError(types.ErrGraphInvalidStatus,
			fmt.Sprintf("subtask %q is %s, expected pending", id, st.Status)).WithSubtask(id)
	}
	st.Status = types.StatusInProgress
	st.AssignedTo = agentID
	return nil
}

// MarkComplete transitions an in_progress subtask to completed and stores
// its result.
func (g *TaskGraph) MarkComplete(id, result string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.subtasks[id]
	if !ok {
		return types.NewError(types.ErrGraphSubtaskNotFound,
			fmt.Sprintf("subtask %q not found", id)).WithSubtask(id)
	}
	if st.Status != types.StatusInProgress {
		return types.NewError(types.ErrGraphInvalidStatus,
			fmt.Sprintf("subtask %q is %s, expected in_progress", id, st.Status)).WithSubtask(id)
	}
	st.Status = types.StatusCompleted
	st.Result = result
	return nil
}

// MarkFailed transitions an in_progress subtask to failed. Dependents are
// not failed in turn; they simply never become ready and are reported by
// Blocked().
func (g *TaskGraph) MarkFailed(id, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.subtasks[id]
	if !ok {
		return types.NewError(types.ErrGraphSubtaskNotFound,
			fmt.Sprintf("subtask %q not found", id)).WithSubtask(id)
	}
	if st.Status != types.StatusInProgress {
		return types.NewError(types.ErrGraphInvalidStatus,
			fmt.Sprintf("subtask %q is %s, expected in_progress", id, st.Status)).WithSubtask(id)
	}
	st.Status = types.StatusFailed
	st.FailureReason = reason
	return nil
}

// RecordRetry increments the retry counter of an in_progress subtask and
// attaches the judge feedback that triggered the retry.
func (g *TaskGraph) RecordRetry(id, feedback string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.subtasks[id]
	if !ok {
		return 0, types.NewError(types.ErrGraphSubtaskNotFound,
			fmt.Sprintf("subtask %q not found", id)).WithSubtask(id)
	}
	if st.Status != types.StatusInProgress {
		return 0, types.NewError(types.ErrGraphInvalidStatus,
			fmt.Sprintf("subtask %q is %s, expected in_progress", id, st.Status)).WithSubtask(id)
	}
	st.RetryCount++
	st.Feedback = feedback
	return st.RetryCount, nil
}

// blockedSet computes the ids of pending subtasks transitively downstream
// of a failed subtask. Caller must hold at least a read lock.
func (g *TaskGraph) blockedSet() map[string]bool {
	blocked := make(map[string]bool)
	// Insertion order does not guarantee dependencies precede dependents,
	// so iterate to a fixed point.
	for changed := true; changed; {
		changed = false
		for _, id := range g.order {
			st := g.subtasks[id]
			if st.Status != types.StatusPending || blocked[id] {
				continue
			}
			for _, dep := range st.DependsOn {
				if g.subtasks[dep].Status == types.StatusFailed || blocked[dep] {
					blocked[id] = true
					changed = true
					break
				}
			}
		}
	}
	return blocked
}

// Blocked returns pending subtasks that can never become ready because a
// transitive dependency failed. The returned copies carry StatusBlocked as
// a reporting status; the stored subtasks stay pending.
func (g *TaskGraph) Blocked() []types.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blocked := g.blockedSet()
	var out []types.Subtask
	for _, id := range g.order {
		if blocked[id] {
			cp := *g.subtasks[id]
			cp.Status = types.StatusBlocked
			out = append(out, cp)
		}
	}
	return out
}

// InProgress returns subtasks currently executing.
func (g *TaskGraph) InProgress() []types.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []types.Subtask
	for _, id := range g.order {
		if g.subtasks[id].Status == types.StatusInProgress {
			out = append(out, *g.subtasks[id])
		}
	}
	return out
}

// Completed returns completed subtasks in insertion order.
func (g *TaskGraph) Completed() []types.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []types.Subtask
	for _, id := range g.order {
		if g.subtasks[id].Status == types.StatusCompleted {
			out = append(out, *g.subtasks[id])
		}
	}
	return out
}

// Failed returns failed subtasks in insertion order.
func (g *TaskGraph) Failed() []types.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []types.Subtask
	for _, id := range g.order {
		if g.subtasks[id].Status == types.StatusFailed {
			out = append(out, *g.subtasks[id])
		}
	}
	return out
}

// IsComplete reports whether no further progress is possible: nothing is
// in progress, nothing is ready, and every remaining pending subtask is
// blocked behind a failure.
func (g *TaskGraph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blocked := g.blockedSet()
	for _, id := range g.order {
		st := g.subtasks[id]
		switch st.Status {
		case types.StatusInProgress:
			return false
		case types.StatusPending:
			if !blocked[id] {
				return false
			}
		}
	}
	return true
}

// Len returns the number of subtasks in the graph.
func (g *TaskGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subtasks)
}

// Summary returns status counts for the console and progress logs.
// Pending subtasks behind a failed dependency are counted as blocked.
func (g *TaskGraph) Summary() map[types.SubtaskStatus]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blocked := g.blockedSet()
	counts := make(map[types.SubtaskStatus]int)
	for _, id := range g.order {
		st := g.subtasks[id]
		if st.Status == types.StatusPending && blocked[id] {
			counts[types.StatusBlocked]++
			continue
		}
		counts[st.Status]++
	}
	return counts
}

// Subtasks returns copies of all subtasks in insertion order.
func (g *TaskGraph) Subtasks() []types.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]types.Subtask, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.subtasks[id])
	}
	return out
}

// graphSnapshot is the serialized form of a TaskGraph.
type graphSnapshot struct {
	Subtasks []types.Subtask `json:"subtasks"`
	SavedAt  time.Time       `json:"saved_at"`
}

// MarshalJSON serializes the graph for checkpointing.
func (g *TaskGraph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphSnapshot{Subtasks: g.Subtasks(), SavedAt: time.Now()})
}

// UnmarshalJSON restores a graph from its checkpoint form.
func (g *TaskGraph) UnmarshalJSON(data []byte) error {
	var snap graphSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal task graph: %w", err)
	}
	restored, err := FromTask(types.Task{Subtasks: snap.Subtasks})
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.subtasks = restored.subtasks
	g.order = restored.order
	g.mu.Unlock()
	return nil
}
