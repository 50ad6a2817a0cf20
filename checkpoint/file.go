package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BaSui01/overseer/types"
)

// FileStore persists each checkpoint as one JSON file under
// <root>/<threadID>/<sequence>.json. Writes go through a temp file plus
// rename so a crashed write never leaves a truncated checkpoint visible.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewCheckpointIOError("init", err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) threadDir(threadID string) string {
	return filepath.Join(s.root, threadID)
}

// sequences lists the stored sequence numbers of a thread, ascending.
func (s *FileStore) sequences(threadID string) ([]int64, error) {
	entries, err := os.ReadDir(s.threadDir(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var seqs []int64
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if name == e.Name() {
			continue
		}
		seq, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// Put writes the next checkpoint file for the thread.
func (s *FileStore) Put(ctx context.Context, threadID string, state json.RawMessage) (*Checkpoint, error) {
	if threadID == "" {
		return nil, types.NewCheckpointIOError("put", fmt.Errorf("empty thread id"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.threadDir(threadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}
	seqs, err := s.sequences(threadID)
	if err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}
	var next int64 = 1
	if len(seqs) > 0 {
		next = seqs[len(seqs)-1] + 1
	}

	cp := newCheckpoint(threadID, next, state)
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}

	final := filepath.Join(dir, fmt.Sprintf("%d.json", next))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return nil, types.NewCheckpointIOError("put", err)
	}
	return cp, nil
}

func (s *FileStore) load(threadID string, seq int64) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.threadDir(threadID), fmt.Sprintf("%d.json", seq)))
	if err != nil {
		return nil, types.NewCheckpointIOError("load", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, types.NewCheckpointIOError("load", err)
	}
	return &cp, nil
}

// Latest returns the highest-sequence checkpoint of the thread.
func (s *FileStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs, err := s.sequences(threadID)
	if err != nil {
		return nil, types.NewCheckpointIOError("latest", err)
	}
	if len(seqs) == 0 {
		return nil, types.NewError(types.ErrCheckpointNotFound,
			fmt.Sprintf("no checkpoints for thread %q", threadID))
	}
	return s.load(threadID, seqs[len(seqs)-1])
}

// List returns up to limit checkpoints, newest first.
func (s *FileStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs, err := s.sequences(threadID)
	if err != nil {
		return nil, types.NewCheckpointIOError("list", err)
	}
	if limit <= 0 || limit > len(seqs) {
		limit = len(seqs)
	}
	out := make([]*Checkpoint, 0, limit)
	for i := len(seqs) - 1; i >= 0 && len(out) < limit; i-- {
		cp, err := s.load(threadID, seqs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// PruneThread drops all but the newest keep checkpoint files of the thread.
func (s *FileStore) PruneThread(ctx context.Context, threadID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs, err := s.sequences(threadID)
	if err != nil {
		return types.NewCheckpointIOError("prune", err)
	}
	for i := 0; i < len(seqs)-keep; i++ {
		path := filepath.Join(s.threadDir(threadID), fmt.Sprintf("%d.json", seqs[i]))
		if err := os.Remove(path); err != nil {
			return types.NewCheckpointIOError("prune", err)
		}
	}
	return nil
}

// DeleteThread removes the thread's checkpoint directory.
func (s *FileStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.threadDir(threadID)); err != nil {
		return types.NewCheckpointIOError("delete", err)
	}
	return nil
}
