// =============================================================================
// 📦 Overseer 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Panel:        DefaultPanelConfig(),
		Approval:     DefaultApprovalConfig(),
		Checkpoint:   DefaultCheckpointConfig(),
		Ledger:       DefaultLedgerConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Mongo:        DefaultMongoConfig(),
		Auth:         DefaultAuthConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxHeaderBytes:  1 << 20,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultOrchestratorConfig 返回默认编排器配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRetries:           3,
		MaxIterations:        100,
		MaxParallel:          3,
		Parallel:             false,
		UsePanel:             false,
		SynthesisTokenBudget: 8192,
		CheckpointRetention:  50,
	}
}

// DefaultPanelConfig 返回默认共识面板配置
func DefaultPanelConfig() PanelConfig {
	return PanelConfig{
		Raters:              5,
		Rounds:              1,
		MaxConcurrentScores: 4,
		ScoreRate:           0,
		ScoreBurst:          1,
	}
}

// DefaultApprovalConfig 返回默认审批门配置
func DefaultApprovalConfig() ApprovalConfig {
	return ApprovalConfig{
		Timeout:          30 * time.Minute,
		ApproveOnTimeout: false,
		Store:            "memory",
	}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Backend: "memory",
		Dir:     "data/checkpoints",
		Prefix:  "overseer",
	}
}

// DefaultLedgerConfig 返回默认执行台账配置
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Backend: "memory",
		Prefix:  "overseer",
		TTL:     24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:              "postgres",
		Host:                "localhost",
		Port:                5432,
		User:                "overseer",
		Password:            "",
		Name:                "overseer",
		SSLMode:             "disable",
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "overseer",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: "",
		JWTExpiry: 24 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "overseer",
		SampleRate:   0.1,
	}
}
