package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/overseer/approval"
	"github.com/BaSui01/overseer/types"
)

// =============================================================================
// ✋ 审批 Handler
// =============================================================================

// ApprovalsHandler 人工审批处理器
type ApprovalsHandler struct {
	gate   *approval.Gate
	logger *zap.Logger
}

// ResolveApprovalRequest 裁决请求
type ResolveApprovalRequest struct {
	Approved  bool   `json:"approved"`
	Comment   string `json:"comment,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
}

// NewApprovalsHandler 创建审批处理器
func NewApprovalsHandler(gate *approval.Gate, logger *zap.Logger) *ApprovalsHandler {
	return &ApprovalsHandler{
		gate:   gate,
		logger: logger,
	}
}

// extractHandle 从请求中提取审批句柄（Go 1.22+ PathValue 优先，回退到路径解析）
func extractHandle(r *http.Request) string {
	if h := r.PathValue("handle"); h != "" {
		return h
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/approvals/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		path = path[:idx]
	}
	return path
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleListPending 处理 GET /api/v1/approvals（列出待裁决请求）
// @Summary 列出待审批请求
// @Description 返回所有等待人工裁决的挂起请求
// @Tags 审批
// @Produce json
// @Success 200 {object} Response{data=[]approval.Request} "待审批列表"
// @Router /api/v1/approvals [get]
func (h *ApprovalsHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	pending, err := h.gate.Pending(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, pending)
}

// HandleHistory 处理 GET /api/v1/approvals/history（已裁决请求）
// @Summary 审批历史
// @Description 返回所有已裁决（批准、拒绝、超时）的请求
// @Tags 审批
// @Produce json
// @Success 200 {object} Response{data=[]approval.Request} "审批历史"
// @Router /api/v1/approvals/history [get]
func (h *ApprovalsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	history, err := h.gate.History(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, history)
}

// HandleResolve 处理 POST /api/v1/approvals/{handle}（提交裁决）
// @Summary 裁决审批请求
// @Description 批准或拒绝一个挂起的请求，唤醒对应的线程
// @Tags 审批
// @Accept json
// @Produce json
// @Param handle path string true "审批句柄"
// @Param request body ResolveApprovalRequest true "裁决"
// @Success 200 {object} Response "已裁决"
// @Failure 404 {object} Response "句柄不存在"
// @Router /api/v1/approvals/{handle} [post]
func (h *ApprovalsHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	handle := extractHandle(r)
	if handle == "" || handle == "history" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "approval handle is required", h.logger)
		return
	}

	var req ResolveApprovalRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	decision := approval.Decision{
		Approved:  req.Approved,
		Comment:   req.Comment,
		DecidedBy: req.DecidedBy,
		DecidedAt: time.Now(),
	}
	if err := h.gate.Resume(r.Context(), handle, decision); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("approval resolved",
		zap.String("handle", handle),
		zap.Bool("approved", req.Approved),
		zap.String("decided_by", req.DecidedBy),
	)

	WriteSuccess(w, map[string]any{
		"handle":   handle,
		"approved": req.Approved,
	})
}
