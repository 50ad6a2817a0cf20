// Package ledger records completed worker executions so checkpoint replay
// never re-issues an external call that already finished.
// This package is internal and should not be imported by external projects.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is one memoized execution result.
type Entry struct {
	Result     string    `json:"result"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Ledger memoizes worker results keyed by (thread, subtask, attempt). A
// hit during replay substitutes for the external call.
type Ledger interface {
	// Lookup returns the memoized result and whether one exists.
	Lookup(ctx context.Context, threadID, subtaskID string, attempt int) (string, bool, error)

	// Record stores the result of a completed execution.
	Record(ctx context.Context, threadID, subtaskID string, attempt int, result string) error

	// PurgeThread discards every entry of the thread.
	PurgeThread(ctx context.Context, threadID string) error
}

func entryKey(subtaskID string, attempt int) string {
	return fmt.Sprintf("%s#%d", subtaskID, attempt)
}

// MemoryLedger is the in-process default.
type MemoryLedger struct {
	mu      sync.RWMutex
	threads map[string]map[string]Entry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{threads: make(map[string]map[string]Entry)}
}

func (l *MemoryLedger) Lookup(ctx context.Context, threadID, subtaskID string, attempt int) (string, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.threads[threadID][entryKey(subtaskID, attempt)]
	return entry.Result, ok, nil
}

func (l *MemoryLedger) Record(ctx context.Context, threadID, subtaskID string, attempt int, result string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.threads[threadID] == nil {
		l.threads[threadID] = make(map[string]Entry)
	}
	l.threads[threadID][entryKey(subtaskID, attempt)] = Entry{
		Result:     result,
		RecordedAt: time.Now().UTC(),
	}
	return nil
}

func (l *MemoryLedger) PurgeThread(ctx context.Context, threadID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.threads, threadID)
	return nil
}
