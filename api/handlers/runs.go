package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/types"
	"github.com/BaSui01/overseer/workflow"
)

// =============================================================================
// 🚀 编排线程 Handler
// =============================================================================

// RunsHandler 编排线程管理处理器
type RunsHandler struct {
	runner *workflow.Runner
	logger *zap.Logger
}

// CreateRunRequest 创建线程请求
type CreateRunRequest struct {
	// 可选的线程 ID，缺省时生成 UUID
	ThreadID string `json:"thread_id,omitempty"`
	// 要分解执行的目标
	Objective string `json:"objective" binding:"required"`
}

// CreateRunResponse 创建线程响应
type CreateRunResponse struct {
	ThreadID string             `json:"thread_id"`
	Status   workflow.RunStatus `json:"status"`
}

// NewRunsHandler 创建线程处理器
func NewRunsHandler(runner *workflow.Runner, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{
		runner: runner,
		logger: logger,
	}
}

// extractThreadID 从请求中提取线程 ID（Go 1.22+ PathValue 优先，回退到路径解析）
func extractThreadID(r *http.Request) string {
	if id := r.PathValue("thread"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		path = path[:idx]
	}
	return path
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleCreate 处理 POST /api/v1/runs（异步启动线程）
// @Summary 启动编排线程
// @Description 接受目标并异步启动分解/执行/评审循环
// @Tags 线程
// @Accept json
// @Produce json
// @Param request body CreateRunRequest true "创建请求"
// @Success 202 {object} Response{data=CreateRunResponse} "已接受"
// @Failure 400 {object} Response "请求无效"
// @Router /api/v1/runs [post]
func (h *RunsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req CreateRunRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Objective == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "objective is required", h.logger)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	if err := h.runner.Start(r.Context(), req.ThreadID, req.Objective); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("run accepted",
		zap.String("thread_id", req.ThreadID),
		zap.String("objective", req.Objective),
	)

	WriteJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data: CreateRunResponse{
			ThreadID: req.ThreadID,
			Status:   workflow.RunStatusRunning,
		},
	})
}

// HandleGet 处理 GET /api/v1/runs/{thread}（查询线程状态）
// @Summary 查询线程状态
// @Description 返回线程的当前状态、图摘要与最终结果
// @Tags 线程
// @Produce json
// @Param thread path string true "线程 ID"
// @Success 200 {object} Response{data=workflow.RunInfo} "线程状态"
// @Failure 404 {object} Response "线程不存在"
// @Router /api/v1/runs/{thread} [get]
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	threadID := extractThreadID(r)
	if threadID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "thread id is required", h.logger)
		return
	}

	info, err := h.runner.Status(r.Context(), threadID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, info)
}

// HandleResume 处理 POST /api/v1/runs/{thread}/resume（从检查点恢复）
// @Summary 恢复线程
// @Description 从最后一个检查点继续被中断的线程
// @Tags 线程
// @Produce json
// @Param thread path string true "线程 ID"
// @Success 202 {object} Response{data=CreateRunResponse} "已接受"
// @Failure 404 {object} Response "检查点不存在"
// @Router /api/v1/runs/{thread}/resume [post]
func (h *RunsHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	threadID := extractThreadID(r)
	if threadID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "thread id is required", h.logger)
		return
	}

	if err := h.runner.Resume(r.Context(), threadID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data: CreateRunResponse{
			ThreadID: threadID,
			Status:   workflow.RunStatusRunning,
		},
	})
}

// HandleCancel 处理 POST /api/v1/runs/{thread}/cancel（取消在途线程）
// @Summary 取消线程
// @Description 停止在途线程；检查点保留，之后可以恢复
// @Tags 线程
// @Produce json
// @Param thread path string true "线程 ID"
// @Success 200 {object} Response "已取消"
// @Failure 404 {object} Response "线程不存在"
// @Router /api/v1/runs/{thread}/cancel [post]
func (h *RunsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	threadID := extractThreadID(r)
	if threadID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "thread id is required", h.logger)
		return
	}

	if err := h.runner.Cancel(threadID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{
		"thread_id": threadID,
		"status":    "cancelling",
	})
}

// writeDomainError 将领域错误转换为 HTTP 响应
func writeDomainError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var apiErr *types.Error
	if errors.As(err, &apiErr) {
		WriteError(w, apiErr, logger)
		return
	}
	WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, err.Error(), logger)
}
