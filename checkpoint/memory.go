package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BaSui01/overseer/types"
)

// InMemoryStore keeps checkpoints in process memory. It is the default for
// tests and single-process runs; state does not survive a restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
	seqs    map[string]int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: make(map[string][]*Checkpoint),
		seqs:    make(map[string]int64),
	}
}

// Put appends a new checkpoint under the thread's next sequence number.
func (s *InMemoryStore) Put(ctx context.Context, threadID string, state json.RawMessage) (*Checkpoint, error) {
	if threadID == "" {
		return nil, types.NewCheckpointIOError("put", fmt.Errorf("empty thread id"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqs[threadID]++
	cp := newCheckpoint(threadID, s.seqs[threadID], state)
	s.threads[threadID] = append(s.threads[threadID], cp)
	return cp, nil
}

// Latest returns the newest checkpoint for the thread.
func (s *InMemoryStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.threads[threadID]
	if len(history) == 0 {
		return nil, types.NewError(types.ErrCheckpointNotFound,
			fmt.Sprintf("no checkpoints for thread %q", threadID))
	}
	cp := *history[len(history)-1]
	return &cp, nil
}

// List returns up to limit checkpoints, newest first.
func (s *InMemoryStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.threads[threadID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]*Checkpoint, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *history[i]
		out = append(out, &cp)
	}
	return out, nil
}

// DeleteThread removes all checkpoints of the thread.
func (s *InMemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	delete(s.seqs, threadID)
	return nil
}

// PruneThread drops all but the newest keep checkpoints of the thread.
func (s *InMemoryStore) PruneThread(ctx context.Context, threadID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.threads[threadID]
	if len(history) > keep {
		s.threads[threadID] = append([]*Checkpoint(nil), history[len(history)-keep:]...)
	}
	return nil
}
