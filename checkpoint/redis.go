package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/types"
)

// RedisStore keeps checkpoints in Redis: one key per checkpoint plus a
// per-thread ZSET scored by sequence, with the sequence allocated through
// INCR so concurrent writers of the same thread never collide.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed checkpoint store.
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "overseer"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("store", "redis_checkpoint")),
	}
}

func (s *RedisStore) seqKey(threadID string) string {
	return fmt.Sprintf("%s:ckpt:%s:seq", s.prefix, threadID)
}

func (s *RedisStore) threadKey(threadID string) string {
	return fmt.Sprintf("%s:ckpt:%s:index", s.prefix, threadID)
}

func (s *RedisStore) dataKey(threadID string, seq int64) string {
	return fmt.Sprintf("%s:ckpt:%s:%d", s.prefix, threadID, seq)
}

// Put allocates the next sequence via INCR and stores the snapshot.
func (s *RedisStore) Put(ctx context.Context, threadID string, state json.RawMessage) (*Checkpoint, error) {
	if threadID == "" {
		return nil, types.NewCheckpointIOError("put", fmt.Errorf("empty thread id"))
	}
	seq, err := s.client.Incr(ctx, s.seqKey(threadID)).Result()
	if err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}

	cp := newCheckpoint(threadID, seq, state)
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(threadID, seq), data, 0)
	pipe.ZAdd(ctx, s.threadKey(threadID), redis.Z{Score: float64(seq), Member: seq})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("thread_id", threadID),
		zap.Int64("sequence", seq),
	)
	return cp, nil
}

func (s *RedisStore) load(ctx context.Context, threadID string, member string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf("%s:ckpt:%s:%s", s.prefix, threadID, member)).Bytes()
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
func (s *RedisStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, s.threadKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, types.NewCheckpointIOError("latest", err)
	}
	if len(members) == 0 {
		return nil, types.NewError(types.ErrCheckpointNotFound,
			fmt.Sprintf("no checkpoints for thread %q", threadID))
	}
	return s.load(ctx, threadID, members[0])
}

// List returns up to limit checkpoints, newest first.
func (s *RedisStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	members, err := s.client.ZRevRange(ctx, s.threadKey(threadID), 0, stop).Result()
	if err != nil {
		return nil, types.NewCheckpointIOError("list", err)
	}
	out := make([]*Checkpoint, 0, len(members))
	for _, m := range members {
		cp, err := s.load(ctx, threadID, m)
		if err != nil {
			s.logger.Warn("failed to load checkpoint member",
				zap.String("thread_id", threadID), zap.String("member", m), zap.Error(err))
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

// PruneThread drops all but the newest keep checkpoints of the thread.
func (s *RedisStore) PruneThread(ctx context.Context, threadID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	stale, err := s.client.ZRevRange(ctx, s.threadKey(threadID), int64(keep), -1).Result()
	if err != nil {
		return types.NewCheckpointIOError("prune", err)
	}
	if len(stale) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stale))
	for _, m := range stale {
		keys = append(keys, fmt.Sprintf("%s:ckpt:%s:%s", s.prefix, threadID, m))
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRemRangeByRank(ctx, s.threadKey(threadID), 0, int64(len(stale))-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewCheckpointIOError("prune", err)
	}
	return nil
}

// DeleteThread removes the thread's checkpoints, index and counter.
func (s *RedisStore) DeleteThread(ctx context.Context, threadID string) error {
	members, err := s.client.ZRange(ctx, s.threadKey(threadID), 0, -1).Result()
	if err != nil {
		return types.NewCheckpointIOError("delete", err)
	}
	keys := make([]string, 0, len(members)+2)
	for _, m := range members {
		keys = append(keys, fmt.Sprintf("%s:ckpt:%s:%s", s.prefix, threadID, m))
	}
	keys = append(keys, s.threadKey(threadID), s.seqKey(threadID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return types.NewCheckpointIOError("delete", err)
	}
	return nil
}
