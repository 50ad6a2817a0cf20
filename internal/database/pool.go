package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 检查点后端连接池参数。
type Config struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// PingInterval 后台探活周期; 0 表示不启动探活
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
}

// DefaultConfig 适合单实例 overseer 的缺省值: 检查点写入是突发的,
// 空闲连接保留得比常规 web 服务少。
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:    4,
		MaxOpenConns:    32,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PingInterval:    30 * time.Second,
	}
}

// Validate 检查配置自洽性。
func (c Config) Validate() error {
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be positive, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("max_idle_conns must be positive, got %d", c.MaxIdleConns)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Pool 包装检查点与审批存储共享的关系型后端:统一连接上限,
// 后台探活, 并为检查点写入提供瞬态错误重试的事务入口。
type Pool struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger

	mu        sync.RWMutex
	onProbe   func(Usage)
	onTx      func(time.Duration, error)
	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open applies the pool limits to an already-connected gorm.DB and
// starts the background ping loop when configured.
func Open(db *gorm.DB, cfg Config, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, fmt.Errorf("open pool: nil gorm.DB")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	p := &Pool{
		db:     db,
		sqlDB:  sqlDB,
		logger: logger.With(zap.String("component", "checkpoint_db_pool")),
		stop:   make(chan struct{}),
	}
	if cfg.PingInterval > 0 {
		go p.watch(cfg.PingInterval)
	}

	p.logger.Info("database pool configured",
		zap.Int("max_open", cfg.MaxOpenConns),
		zap.Int("max_idle", cfg.MaxIdleConns),
	)
	return p, nil
}

// DB 返回底层 GORM 实例, 供各 store 构建使用。
func (p *Pool) DB() *gorm.DB { return p.db }

// Ping probes the backend; the health endpoint calls this.
func (p *Pool) Ping(ctx context.Context) error {
	select {
	case <-p.stop:
		return fmt.Errorf("pool closed")
	default:
	}
	return p.sqlDB.PingContext(ctx)
}

// Usage 是连接池的运行快照, 由控制台 status 端点透出。
type Usage struct {
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

func (p *Pool) Usage() Usage {
	s := p.sqlDB.Stats()
	return Usage{
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// ObserveProbes registers a callback invoked with the pool snapshot on
// every successful health probe. The metrics layer hooks in here.
func (p *Pool) ObserveProbes(fn func(Usage)) {
	p.mu.Lock()
	p.onProbe = fn
	p.mu.Unlock()
}

// ObserveTx registers a callback invoked with the duration and outcome
// of every transaction.
func (p *Pool) ObserveTx(fn func(time.Duration, error)) {
	p.mu.Lock()
	p.onTx = fn
	p.mu.Unlock()
}

// InTx runs fn inside one transaction, rolling back on error.
func (p *Pool) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	select {
	case <-p.stop:
		return fmt.Errorf("pool closed")
	default:
	}
	start := time.Now()
	err := p.db.WithContext(ctx).Transaction(fn)
	p.mu.RLock()
	onTx := p.onTx
	p.mu.RUnlock()
	if onTx != nil {
		onTx(time.Since(start), err)
	}
	return err
}

// InTxRetry retries fn on transient failures with exponential backoff.
// Checkpoint saves during a burst can hit lock contention; anything
// non-transient surfaces immediately.
func (p *Pool) InTxRetry(ctx context.Context, attempts int, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = p.InTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !transientSQLError(lastErr) {
			return lastErr
		}
		p.logger.Warn("transient transaction failure",
			zap.Int("attempt", i+1),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1<<uint(i)) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction still failing after %d attempts: %w", attempts, lastErr)
}

// Close stops the ping loop and releases the connections. Safe to call
// more than once.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.logger.Info("closing database pool")
		p.closeErr = p.sqlDB.Close()
	})
	return p.closeErr
}

// watch pings the backend until Close.
func (p *Pool) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := p.Ping(ctx)
			cancel()
			if err != nil {
				p.logger.Error("database probe failed", zap.Error(err))
				continue
			}
			u := p.Usage()
			p.mu.RLock()
			onProbe := p.onProbe
			p.mu.RUnlock()
			if onProbe != nil {
				onProbe(u)
			}
			p.logger.Debug("database probe ok",
				zap.Int("open", u.Open),
				zap.Int("in_use", u.InUse),
			)
		}
	}
}

// transientSQLError classifies failures worth retrying: lock conflicts
// and broken connections, across the sqlite/postgres/mysql backends the
// checkpoint store supports.
func transientSQLError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",
		"database is locked", // sqlite busy
		"serialization failure",
		"40001",
		"lock wait timeout",
		"bad connection",
		"connection reset",
		"broken pipe",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
