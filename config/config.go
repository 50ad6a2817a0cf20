// =============================================================================
// 📦 Overseer 配置结构
// =============================================================================
// 统一配置定义，覆盖服务器、编排器、共识面板、审批门、存储后端
// =============================================================================
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config 是 Overseer 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Orchestrator 编排器配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Panel 共识面板配置
	Panel PanelConfig `yaml:"panel" env:"PANEL"`

	// Approval 审批门配置
	Approval ApprovalConfig `yaml:"approval" env:"APPROVAL"`

	// Checkpoint 检查点存储配置
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Ledger 执行台账配置
	Ledger LedgerConfig `yaml:"ledger" env:"LEDGER"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Mongo MongoDB 配置
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// Auth 认证配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 请求头大小上限
	MaxHeaderBytes int `yaml:"max_header_bytes" env:"MAX_HEADER_BYTES"`
	// 每秒请求限速
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限速突发额度
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许跨域的来源列表，为空时拒绝跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 是否允许通过查询参数传递 API Key
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// 最大并发连接数; 0 表示不限制
	MaxConns int `yaml:"max_conns" env:"MAX_CONNS"`
	// TLS 证书文件; 与 tls_key_file 同时配置时启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLS 私钥文件
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	// 单个子任务被驳回后的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 单次运行的状态机步数上限
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// 并行模式下的最大并发子任务数
	MaxParallel int `yaml:"max_parallel" env:"MAX_PARALLEL"`
	// 是否按波次并行执行就绪子任务
	Parallel bool `yaml:"parallel" env:"PARALLEL"`
	// 候选 worker 多于一个时是否使用共识面板仲裁
	UsePanel bool `yaml:"use_panel" env:"USE_PANEL"`
	// 合成阶段的 token 预算
	SynthesisTokenBudget int `yaml:"synthesis_token_budget" env:"SYNTHESIS_TOKEN_BUDGET"`
	// 检查点保留条数, 0 表示不清理
	CheckpointRetention int `yaml:"checkpoint_retention" env:"CHECKPOINT_RETENTION"`
}

// PanelConfig 共识面板配置
type PanelConfig struct {
	// 评审员数量, 必须为奇数且 >= 3
	Raters int `yaml:"raters" env:"RATERS"`
	// 每位评审员的提问轮数
	Rounds int `yaml:"rounds" env:"ROUNDS"`
	// 并发打分上限
	MaxConcurrentScores int `yaml:"max_concurrent_scores" env:"MAX_CONCURRENT_SCORES"`
	// 打分限速 (次/秒), 0 表示不限速
	ScoreRate float64 `yaml:"score_rate" env:"SCORE_RATE"`
	// 限速突发额度
	ScoreBurst int `yaml:"score_burst" env:"SCORE_BURST"`
}

// ApprovalConfig 审批门配置
type ApprovalConfig struct {
	// 等待外部决定的超时时间, 0 表示无限等待
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 超时后的默认决定: true 视为批准
	ApproveOnTimeout bool `yaml:"approve_on_timeout" env:"APPROVE_ON_TIMEOUT"`
	// 审批请求存储: memory, redis
	Store string `yaml:"store" env:"STORE"`
}

// CheckpointConfig 检查点存储配置
type CheckpointConfig struct {
	// 后端类型: memory, file, redis, database, mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// file 后端的根目录
	Dir string `yaml:"dir" env:"DIR"`
	// redis 后端的键前缀
	Prefix string `yaml:"prefix" env:"PREFIX"`
}

// LedgerConfig 执行台账配置
type LedgerConfig struct {
	// 后端类型: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// redis 后端的键前缀
	Prefix string `yaml:"prefix" env:"PREFIX"`
	// 台账条目保留时长
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 空闲连接最大存活时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// 连接超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// JWT 签名密钥
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// JWT 过期时间
	JWTExpiry time.Duration `yaml:"jwt_expiry" env:"JWT_EXPIRY"`
	// RS256 验签公钥（PEM），为空时仅支持 HS256
	JWTPublicKey string `yaml:"jwt_public_key" env:"JWT_PUBLIC_KEY"`
	// 期望的签发者，为空时不校验
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	// 期望的受众，为空时不校验
	JWTAudience string `yaml:"jwt_audience" env:"JWT_AUDIENCE"`
	// 静态 API Key 列表
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Orchestrator.MaxIterations <= 0 {
		errs = append(errs, "orchestrator max_iterations must be positive")
	}
	if c.Orchestrator.MaxRetries < 0 {
		errs = append(errs, "orchestrator max_retries must not be negative")
	}
	if c.Orchestrator.MaxParallel <= 0 {
		errs = append(errs, "orchestrator max_parallel must be positive")
	}
	if c.Panel.Raters < 3 || c.Panel.Raters%2 == 0 {
		errs = append(errs, "panel raters must be odd and at least 3")
	}
	switch c.Checkpoint.Backend {
	case "memory", "file", "redis", "database", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("unknown checkpoint backend %q", c.Checkpoint.Backend))
	}
	switch c.Ledger.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown ledger backend %q", c.Ledger.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
