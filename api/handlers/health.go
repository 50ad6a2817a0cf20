package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康与就绪 Handler
// =============================================================================

// ProbeFunc probes one backend the orchestrator depends on.
type ProbeFunc func(ctx context.Context) error

type probe struct {
	name  string
	check ProbeFunc
}

// HealthHandler 提供存活、就绪与版本端点。存活只确认进程在运行;
// 就绪逐个探测已注册的后端(检查点库、Redis、Mongo 等), 任一失败
// 即返回 503, 让编排流量绕开本实例。
type HealthHandler struct {
	logger  *zap.Logger
	started time.Time

	mu     sync.RWMutex
	probes []probe
}

// probeTimeout caps the whole readiness sweep.
const probeTimeout = 5 * time.Second

// ServiceHealthResponse 健康端点的响应体。
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // "healthy" | "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	UptimeSec int64                  `json:"uptime_sec,omitempty"`
	Checks    map[string]ProbeResult `json:"checks,omitempty"`
}

// ProbeResult 单个后端探测结果。
type ProbeResult struct {
	Status  string `json:"status"` // "pass" | "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器。
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		started: time.Now().UTC(),
	}
}

// AddProbe 注册一个就绪探测; 探测按注册顺序执行。
func (h *HealthHandler) AddProbe(name string, check ProbeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe{name: name, check: check})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 与 /healthz:存活探针, 不触碰后端。
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		UptimeSec: int64(time.Since(h.started).Seconds()),
	})
}

// HandleHealthz 是 /healthz 的 Kubernetes 风格别名。
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 处理 /ready 与 /readyz:执行全部后端探测。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	h.mu.RLock()
	probes := make([]probe, len(h.probes))
	copy(probes, h.probes)
	h.mu.RUnlock()

	resp := ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		UptimeSec: int64(time.Since(h.started).Seconds()),
		Checks:    make(map[string]ProbeResult, len(probes)),
	}

	ready := true
	for _, p := range probes {
		start := time.Now()
		err := p.check(ctx)
		latency := time.Since(start)

		result := ProbeResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			ready = false
			result.Status = "fail"
			result.Message = err.Error()
			h.logger.Warn("readiness probe failed",
				zap.String("probe", p.name),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
		}
		resp.Checks[p.name] = result
	}

	if !ready {
		resp.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleVersion 处理 /version。
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}
