package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config Redis 台账配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 键前缀
	Prefix string `yaml:"prefix" json:"prefix"`

	// 条目过期时间; 0 表示不过期
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// DefaultConfig 返回默认台账配置
func DefaultConfig() Config {
	return Config{
		Addr:     "localhost:6379",
		Prefix:   "overseer",
		TTL:      24 * time.Hour,
		PoolSize: 10,
	}
}

// RedisLedger 把执行结果记在 Redis 哈希里, 进程重启后重放仍能命中。
type RedisLedger struct {
	client *redis.Client
	config Config
	logger *zap.Logger
}

// NewRedisLedger 创建 Redis 台账并验证连接
func NewRedisLedger(config Config, logger *zap.Logger) (*RedisLedger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLedger{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "execution_ledger")),
	}, nil
}

// NewRedisLedgerFromClient 复用已有连接, 主要供测试使用
func NewRedisLedgerFromClient(client *redis.Client, config Config, logger *zap.Logger) *RedisLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLedger{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "execution_ledger")),
	}
}

func (l *RedisLedger) threadKey(threadID string) string {
	prefix := l.config.Prefix
	if prefix == "" {
		prefix = "overseer"
	}
	return fmt.Sprintf("%s:ledger:%s", prefix, threadID)
}

func (l *RedisLedger) Lookup(ctx context.Context, threadID, subtaskID string, attempt int) (string, bool, error) {
	data, err := l.client.HGet(ctx, l.threadKey(threadID), entryKey(subtaskID, attempt)).Bytes()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ledger lookup: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", false, fmt.Errorf("ledger decode: %w", err)
	}
	return entry.Result, true, nil
}

func (l *RedisLedger) Record(ctx context.Context, threadID, subtaskID string, attempt int, result string) error {
	entry := Entry{Result: result, RecordedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger encode: %w", err)
	}
	key := l.threadKey(threadID)
	if err := l.client.HSet(ctx, key, entryKey(subtaskID, attempt), data).Err(); err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	if l.config.TTL > 0 {
		if err := l.client.Expire(ctx, key, l.config.TTL).Err(); err != nil {
			l.logger.Warn("failed to refresh ledger ttl",
				zap.String("thread_id", threadID), zap.Error(err))
		}
	}
	return nil
}

func (l *RedisLedger) PurgeThread(ctx context.Context, threadID string) error {
	if err := l.client.Del(ctx, l.threadKey(threadID)).Err(); err != nil {
		return fmt.Errorf("ledger purge: %w", err)
	}
	return nil
}

// Close 释放 Redis 连接
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
