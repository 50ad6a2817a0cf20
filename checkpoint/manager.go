package checkpoint

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/BaSui01/overseer/types"
)

// Manager 在底层 Store 之上提供日志、保留策略和便捷的读写入口。
// 编排器只与 Manager 交互, 不直接接触具体后端。
type Manager struct {
	store  Store
	keep   int
	logger *zap.Logger
}

// NewManager wraps a store. keep bounds the number of checkpoints retained
// per thread after each save; keep <= 0 disables pruning.
func NewManager(store Store, keep int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		keep:   keep,
		logger: logger.With(zap.String("component", "checkpoint_manager")),
	}
}

// Save persists a snapshot and applies the retention policy.
func (m *Manager) Save(ctx context.Context, threadID string, state json.RawMessage) (*Checkpoint, error) {
	cp, err := m.store.Put(ctx, threadID, state)
	if err != nil {
		m.logger.Error("checkpoint save failed",
			zap.String("thread_id", threadID), zap.Error(err))
		return nil, err
	}
	m.logger.Debug("checkpoint saved",
		zap.String("thread_id", threadID),
		zap.Int64("sequence", cp.Sequence),
	)
	m.prune(ctx, threadID)
	return cp, nil
}

// Restore loads the latest snapshot for the thread.
func (m *Manager) Restore(ctx context.Context, threadID string) (*Checkpoint, error) {
	cp, err := m.store.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("checkpoint restored",
		zap.String("thread_id", threadID),
		zap.Int64("sequence", cp.Sequence),
	)
	return cp, nil
}

// HasThread reports whether the thread has any checkpoint.
func (m *Manager) HasThread(ctx context.Context, threadID string) (bool, error) {
	_, err := m.store.Latest(ctx, threadID)
	if err == nil {
		return true, nil
	}
	if types.IsCode(err, types.ErrCheckpointNotFound) {
		return false, nil
	}
	return false, err
}

// List returns up to limit checkpoints for the thread, newest first.
func (m *Manager) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	return m.store.List(ctx, threadID, limit)
}

// Delete discards every checkpoint of the thread.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	if err := m.store.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	m.logger.Info("thread checkpoints deleted", zap.String("thread_id", threadID))
	return nil
}

// prune is best effort. The backends have no targeted delete-by-sequence,
// so retention is enforced only when the backend supports it through the
// optional pruner interface.
func (m *Manager) prune(ctx context.Context, threadID string) {
	if m.keep <= 0 {
		return
	}
	p, ok := m.store.(interface {
		PruneThread(ctx context.Context, threadID string, keep int) error
	})
	if !ok {
		return
	}
	if err := p.PruneThread(ctx, threadID, m.keep); err != nil {
		m.logger.Warn("checkpoint prune failed",
			zap.String("thread_id", threadID), zap.Error(err))
	}
}
