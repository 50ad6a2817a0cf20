package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/BaSui01/overseer/api/handlers"
	"github.com/BaSui01/overseer/approval"
	"github.com/BaSui01/overseer/checkpoint"
	"github.com/BaSui01/overseer/config"
	"github.com/BaSui01/overseer/internal/database"
	"github.com/BaSui01/overseer/internal/ledger"
	"github.com/BaSui01/overseer/internal/metrics"
	"github.com/BaSui01/overseer/internal/server"
	"github.com/BaSui01/overseer/internal/telemetry"
	"github.com/BaSui01/overseer/panel"
	"github.com/BaSui01/overseer/quick"
	"github.com/BaSui01/overseer/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Overseer 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler    *handlers.HealthHandler
	runsHandler      *handlers.RunsHandler
	approvalsHandler *handlers.ApprovalsHandler
	streamHandler    *handlers.StreamHandler

	// 编排核心
	runner *workflow.Runner
	gate   *approval.Gate

	// 指标收集器
	metricsCollector *metrics.Collector

	// 遥测
	otelProviders *telemetry.Providers

	// 存储后端
	db          *gorm.DB
	dbPool      *database.Pool
	redisClient *redis.Client
	mongoClient *mongo.Client

	// 后台 goroutine 生命周期管理
	rateLimiterCancel context.CancelFunc
	streamCancel      context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:           cfg,
		configPath:    configPath,
		logger:        logger,
		otelProviders: otelProviders,
		db:            db,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("overseer", s.logger)

	// 2. 初始化编排核心（检查点、审批门、台账、编排器）
	if err := s.initOrchestrator(); err != nil {
		return fmt.Errorf("failed to init orchestrator: %w", err)
	}

	// 3. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("checkpoint_backend", s.cfg.Checkpoint.Backend),
		zap.String("ledger_backend", s.cfg.Ledger.Backend),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initOrchestrator 根据配置装配编排核心。
//
// Worker、Judge 和 Decomposer 属于嵌入方契约;独立运行的服务器使用
// quick 包的本地默认实现, 生产部署以库方式嵌入并传入真实契约。
func (s *Server) initOrchestrator() error {
	checkpointStore, err := s.buildCheckpointStore()
	if err != nil {
		return fmt.Errorf("checkpoint backend %q: %w", s.cfg.Checkpoint.Backend, err)
	}

	approvalStore, err := s.buildApprovalStore()
	if err != nil {
		return fmt.Errorf("approval store %q: %w", s.cfg.Approval.Store, err)
	}

	execLedger, err := s.buildLedger()
	if err != nil {
		return fmt.Errorf("ledger backend %q: %w", s.cfg.Ledger.Backend, err)
	}

	opts := []quick.Option{
		quick.WithLogger(s.logger),
		quick.WithCheckpointStore(checkpointStore),
		quick.WithCheckpointRetention(s.cfg.Orchestrator.CheckpointRetention),
		quick.WithApprovalStore(approvalStore),
		quick.WithGateTimeout(s.cfg.Approval.Timeout),
		quick.WithApproveOnTimeout(s.cfg.Approval.ApproveOnTimeout),
		quick.WithLedger(execLedger),
		quick.WithMaxRetries(s.cfg.Orchestrator.MaxRetries),
		quick.WithMaxIterations(s.cfg.Orchestrator.MaxIterations),
		quick.WithSynthesisTokenBudget(s.cfg.Orchestrator.SynthesisTokenBudget),
	}
	if s.cfg.Orchestrator.Parallel {
		opts = append(opts, quick.WithParallel(s.cfg.Orchestrator.MaxParallel))
	}
	if s.cfg.Orchestrator.UsePanel {
		p, err := s.buildPanel()
		if err != nil {
			return fmt.Errorf("consensus panel: %w", err)
		}
		opts = append(opts, quick.WithPanel(p))
	}

	o, err := quick.New(opts...)
	if err != nil {
		return err
	}
	s.runner = o.Runner
	s.gate = o.Gate

	// 独立模式没有外部契约可注入, quick.New 回退到本地默认实现。
	s.logger.Info("Orchestrator initialized with built-in local contracts; embed the workflow package to supply real workers")
	return nil
}

// buildCheckpointStore 根据配置选择检查点后端
func (s *Server) buildCheckpointStore() (checkpoint.Store, error) {
	switch s.cfg.Checkpoint.Backend {
	case "", "memory":
		return checkpoint.NewInMemoryStore(), nil
	case "file":
		return checkpoint.NewFileStore(s.cfg.Checkpoint.Dir)
	case "redis":
		return checkpoint.NewRedisStore(s.redis(), s.cfg.Checkpoint.Prefix, s.logger), nil
	case "database":
		pm, err := s.pool()
		if err != nil {
			return nil, err
		}
		return checkpoint.NewGormStore(pm.DB(), s.logger)
	case "mongo":
		db, err := s.mongoDatabase()
		if err != nil {
			return nil, err
		}
		timeout := s.cfg.Mongo.ConnectTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return checkpoint.NewMongoStore(ctx, db, s.logger)
	default:
		return nil, fmt.Errorf("unknown backend")
	}
}

// buildApprovalStore 根据配置选择审批请求存储
func (s *Server) buildApprovalStore() (approval.RequestStore, error) {
	switch s.cfg.Approval.Store {
	case "", "memory":
		return approval.NewMemoryRequestStore(), nil
	case "redis":
		return approval.NewRedisRequestStore(s.redis(), "overseer:approval"), nil
	default:
		return nil, fmt.Errorf("unknown store")
	}
}

// buildLedger 根据配置选择执行台账后端
func (s *Server) buildLedger() (ledger.Ledger, error) {
	switch s.cfg.Ledger.Backend {
	case "", "memory":
		return ledger.NewMemoryLedger(), nil
	case "redis":
		return ledger.NewRedisLedgerFromClient(s.redis(), ledger.Config{
			Prefix: s.cfg.Ledger.Prefix,
			TTL:    s.cfg.Ledger.TTL,
		}, s.logger), nil
	default:
		return nil, fmt.Errorf("unknown backend")
	}
}

// buildPanel 装配共识面板。独立模式使用 quick 包的确定性打分契约。
func (s *Server) buildPanel() (*panel.Panel, error) {
	return panel.NewDefaultPanel(
		s.cfg.Panel.Raters,
		quick.DefaultQuestionBank(),
		quick.HeuristicScorer{},
		quick.HeuristicAdjudicator{},
		panel.Config{
			Rounds:              s.cfg.Panel.Rounds,
			MaxConcurrentScores: s.cfg.Panel.MaxConcurrentScores,
			ScoreRate:           rate.Limit(s.cfg.Panel.ScoreRate),
			ScoreBurst:          s.cfg.Panel.ScoreBurst,
		},
		s.logger,
	)
}

// redis 懒初始化共享 Redis 客户端
func (s *Server) redis() *redis.Client {
	if s.redisClient == nil {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		})
	}
	return s.redisClient
}

// pool 懒初始化数据库连接池
func (s *Server) pool() (*database.Pool, error) {
	if s.dbPool != nil {
		return s.dbPool, nil
	}
	if s.db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	pool, err := database.Open(s.db, database.Config{
		MaxIdleConns:    s.cfg.Database.MaxIdleConns,
		MaxOpenConns:    s.cfg.Database.MaxOpenConns,
		ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: s.cfg.Database.ConnMaxIdleTime,
		PingInterval:    s.cfg.Database.HealthCheckInterval,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	if s.metricsCollector != nil {
		driver := s.cfg.Database.Driver
		pool.ObserveProbes(func(u database.Usage) {
			s.metricsCollector.RecordDBConnections(driver, u.Open, u.Idle)
		})
		pool.ObserveTx(func(d time.Duration, _ error) {
			s.metricsCollector.RecordDBQuery(driver, "tx", d)
		})
	}
	s.dbPool = pool
	return pool, nil
}

// mongoDatabase 懒初始化 MongoDB 连接
func (s *Server) mongoDatabase() (*mongo.Database, error) {
	if s.mongoClient == nil {
		client, err := mongo.Connect(mongooptions.Client().ApplyURI(s.cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		s.mongoClient = client
	}
	return s.mongoClient.Database(s.cfg.Mongo.Database), nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	if s.dbPool != nil {
		s.healthHandler.AddProbe("database", s.dbPool.Ping)
	}
	if s.redisClient != nil {
		client := s.redisClient
		s.healthHandler.AddProbe("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	// 编排 API handlers
	s.runsHandler = handlers.NewRunsHandler(s.runner, s.logger)
	s.approvalsHandler = handlers.NewApprovalsHandler(s.gate, s.logger)

	// 审批事件 WebSocket 推送
	s.streamHandler = handlers.NewStreamHandler(s.gate, s.logger)
	streamCtx, streamCancel := context.WithCancel(context.Background())
	s.streamCancel = streamCancel
	s.streamHandler.Start(streamCtx)

	s.logger.Info("Handlers initialized")
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("/api/v1/runs", s.runsHandler.HandleCreate)
	mux.HandleFunc("/api/v1/runs/{thread}", s.runsHandler.HandleGet)
	mux.HandleFunc("/api/v1/runs/{thread}/resume", s.runsHandler.HandleResume)
	mux.HandleFunc("/api/v1/runs/{thread}/cancel", s.runsHandler.HandleCancel)

	mux.HandleFunc("/api/v1/approvals", s.approvalsHandler.HandleListPending)
	mux.HandleFunc("/api/v1/approvals/history", s.approvalsHandler.HandleHistory)
	mux.HandleFunc("/api/v1/approvals/stream", s.streamHandler.HandleStream)
	mux.HandleFunc("/api/v1/approvals/{handle}", s.approvalsHandler.HandleResolve)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	// 配置了 JWT 时走 Bearer 认证, 并在身份之后按操作者限流;
	// 否则退回静态 API Key。
	if s.cfg.Auth.JWTSecret != "" || s.cfg.Auth.JWTPublicKey != "" {
		chain = append(chain,
			JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger),
			OperatorRateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		)
	} else {
		chain = append(chain,
			APIKeyAuth(s.cfg.Auth.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger),
		)
	}
	handler := Chain(mux, chain...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  s.cfg.Server.MaxHeaderBytes,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		MaxConns:        s.cfg.Server.MaxConns,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
	} else if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()
	shutdownCtx := ctx
	if s.cfg.Server.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()
	}

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 停止进行中的运行（中断的线程保留检查点, 可恢复）
	if s.runner != nil {
		if err := s.runner.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Runner shutdown error", zap.Error(err))
		}
	}

	// 2. 停止审批事件广播
	if s.streamCancel != nil {
		s.streamCancel()
	}

	// 3. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭遥测
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 6. 关闭存储连接
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}
	if s.mongoClient != nil {
		if err := s.mongoClient.Disconnect(shutdownCtx); err != nil {
			s.logger.Error("MongoDB shutdown error", zap.Error(err))
		}
	}

	// 7. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
