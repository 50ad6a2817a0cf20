package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/overseer/types"
)

// checkpointRecord 是检查点在关系型数据库中的行结构。
type checkpointRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	ThreadID  string    `gorm:"size:128;uniqueIndex:idx_thread_seq;index:idx_thread_created"`
	Sequence  int64     `gorm:"uniqueIndex:idx_thread_seq"`
	State     []byte    `gorm:"type:bytes"`
	CreatedAt time.Time `gorm:"index:idx_thread_created"`
}

func (checkpointRecord) TableName() string { return "checkpoints" }

// GormStore persists checkpoints through gorm so the same code serves
// Postgres, MySQL and SQLite deployments.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates the store and migrates its table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, types.NewCheckpointIOError("migrate", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("store", "gorm_checkpoint")),
	}, nil
}

// Put allocates the next sequence inside a transaction. A lost race on
// the same thread hits the unique (thread_id, sequence) index and fails
// the insert instead of silently overwriting.
func (s *GormStore) Put(ctx context.Context, threadID string, state json.RawMessage) (*Checkpoint, error) {
	if threadID == "" {
		return nil, types.NewCheckpointIOError("put", fmt.Errorf("empty thread id"))
	}

	var cp *Checkpoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		row := tx.Model(&checkpointRecord{}).
			Where("thread_id = ?", threadID).
			Select("COALESCE(MAX(sequence), 0)").
			Row()
		if err := row.Scan(&maxSeq); err != nil {
			return err
		}

		cp = newCheckpoint(threadID, maxSeq+1, state)
		rec := checkpointRecord{
			ID:        cp.ID,
			ThreadID:  cp.ThreadID,
			Sequence:  cp.Sequence,
			State:     []byte(cp.State),
			CreatedAt: cp.CreatedAt,
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("thread_id", threadID),
		zap.Int64("sequence", cp.Sequence),
	)
	return cp, nil
}

// Latest returns the highest-sequence checkpoint of the thread.
func (s *GormStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "sequence"}, Desc: true}).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrCheckpointNotFound,
			fmt.Sprintf("no checkpoints for thread %q", threadID))
	}
	if err != nil {
		return nil, types.NewCheckpointIOError("latest", err)
	}
	return recordToCheckpoint(&rec), nil
}

// List returns up to limit checkpoints, newest first.
func (s *GormStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	q := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "sequence"}, Desc: true})
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []checkpointRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, types.NewCheckpointIOError("list", err)
	}
	out := make([]*Checkpoint, 0, len(recs))
	for i := range recs {
		out = append(out, recordToCheckpoint(&recs[i]))
	}
	return out, nil
}

// DeleteThread removes all checkpoints of the thread.
func (s *GormStore) DeleteThread(ctx context.Context, threadID string) error {
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Delete(&checkpointRecord{}).Error
	if err != nil {
		return types.NewCheckpointIOError("delete", err)
	}
	return nil
}

func recordToCheckpoint(rec *checkpointRecord) *Checkpoint {
	state := make(json.RawMessage, len(rec.State))
	copy(state, rec.State)
	return &Checkpoint{
		ID:        rec.ID,
		ThreadID:  rec.ThreadID,
		Sequence:  rec.Sequence,
		State:     state,
		CreatedAt: rec.CreatedAt,
	}
}
