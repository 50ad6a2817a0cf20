package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is one durable snapshot of orchestration state. Sequence
// numbers start at 1 and increase monotonically per thread; the highest
// sequence is the resumable state.
type Checkpoint struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Sequence  int64           `json:"sequence"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists orchestration-state snapshots keyed by thread id.
//
// Put must be atomic per thread id: a concurrent reader of the same thread
// sees either the previous checkpoint or the new one, never a partial
// write. Distinct thread ids share no state.
type Store interface {
	// Put assigns the next sequence number for the thread and persists
	// the snapshot, returning the stored checkpoint.
	Put(ctx context.Context, threadID string, state json.RawMessage) (*Checkpoint, error)

	// Latest returns the highest-sequence checkpoint for the thread, or
	// a CHECKPOINT_NOT_FOUND error for a fresh thread.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// List returns up to limit checkpoints for the thread, newest first.
	List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)

	// DeleteThread removes every checkpoint of the thread.
	DeleteThread(ctx context.Context, threadID string) error
}

func newCheckpoint(threadID string, seq int64, state json.RawMessage) *Checkpoint {
	// Copy the raw state so callers may reuse their buffer.
	blob := make(json.RawMessage, len(state))
	copy(blob, state)
	return &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Sequence:  seq,
		State:     blob,
		CreatedAt: time.Now().UTC(),
	}
}
