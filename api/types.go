package api

import (
	"time"

	"github.com/BaSui01/overseer/types"
)

// =============================================================================
// 编排线程类型
// =============================================================================

// RunRequest 代表启动编排线程的请求。
// @Description 线程创建请求结构
type RunRequest struct {
	// 可选的线程 ID，缺省时由服务端生成 UUID
	ThreadID string `json:"thread_id,omitempty" example:"thread-123"`
	// 要分解执行的目标
	Objective string `json:"objective" example:"Write a market report on solar energy" binding:"required"`
	// 自定义元数据
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RunResponse 表示线程创建响应。
// @Description 线程创建响应结构
type RunResponse struct {
	// 线程 ID
	ThreadID string `json:"thread_id" example:"thread-123"`
	// 线程当前状态（running、suspended、completed、failed、interrupted）
	Status string `json:"status" example:"running"`
	// 创建时间戳
	CreatedAt time.Time `json:"created_at"`
}

// RunStatusResponse 表示线程状态查询响应。
// @Description 线程状态结构
type RunStatusResponse struct {
	// 线程 ID
	ThreadID string `json:"thread_id" example:"thread-123"`
	// 目标
	Objective string `json:"objective" example:"Write a market report on solar energy"`
	// 线程状态
	Status string `json:"status" example:"running"`
	// 状态机位置（decompose、assign、execute、review、suspended、synthesize、done）
	State string `json:"state" example:"execute"`
	// 已消耗的迭代数
	Iterations int `json:"iterations" example:"12"`
	// 各状态的子任务计数
	Summary map[string]int `json:"summary,omitempty"`
	// 挂起时等待裁决的问题
	PendingQuestion string `json:"pending_question,omitempty"`
	// 完成后的最终产出
	FinalOutput string `json:"final_output,omitempty"`
	// 最后更新时间戳
	UpdatedAt time.Time `json:"updated_at"`
}

// SubtaskView 代表图中单个子任务的对外视图。
// @Description 子任务结构
type SubtaskView struct {
	// 子任务 ID
	ID string `json:"id" example:"research"`
	// 子任务描述
	Description string `json:"description" example:"Collect market data"`
	// 所需能力
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	// 依赖的子任务 ID
	DependsOn []string `json:"depends_on,omitempty"`
	// 状态（pending、in_progress、completed、failed、blocked）
	Status string `json:"status" example:"completed"`
	// 执行该子任务的 agent
	AssignedAgent string `json:"assigned_agent,omitempty" example:"agent-1"`
	// 已消耗的重试次数
	RetryCount int `json:"retry_count,omitempty" example:"1"`
	// 完成后的结果
	Result string `json:"result,omitempty"`
	// 失败原因
	FailureReason string `json:"failure_reason,omitempty"`
}

// =============================================================================
// 审批类型
// =============================================================================

// ApprovalView 代表一个挂起或已裁决的审批请求。
// @Description 审批请求结构
type ApprovalView struct {
	// 审批句柄
	Handle string `json:"handle" example:"appr-7f3a"`
	// 所属线程 ID
	ThreadID string `json:"thread_id" example:"thread-123"`
	// 等待裁决的问题
	Question string `json:"question" example:"Result quality is borderline, accept?"`
	// 附加上下文（子任务、agent、评审意见）
	Details map[string]string `json:"details,omitempty"`
	// 状态（pending、approved、rejected、timeout）
	Status string `json:"status" example:"pending"`
	// 创建时间戳
	CreatedAt time.Time `json:"created_at"`
	// 裁决时间戳
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ApprovalDecisionRequest 代表对挂起请求的裁决。
// @Description 审批裁决请求结构
type ApprovalDecisionRequest struct {
	// 是否批准
	Approved bool `json:"approved" example:"true"`
	// 裁决意见，会作为反馈传回线程
	Comment string `json:"comment,omitempty" example:"Looks good, ship it"`
	// 裁决人
	DecidedBy string `json:"decided_by,omitempty" example:"alice"`
}

// ApprovalEventMessage 代表 WebSocket 流上的一条审批事件。
// @Description 审批事件结构
type ApprovalEventMessage struct {
	// 事件类型（pending、resolved、timed_out）
	Type string `json:"type" example:"pending"`
	// 关联的审批请求
	Request *ApprovalView `json:"request,omitempty"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse 表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"INVALID_REQUEST"`
	// 人类可读的错误消息
	Message string `json:"message" example:"Invalid request parameters"`
	// HTTP 状态码
	HTTPStatus int `json:"http_status,omitempty" example:"400"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
	// 失败的子任务
	SubtaskID string `json:"subtask_id,omitempty" example:"research"`
}

// ErrorCode 复用领域层的错误码定义。
type ErrorCode = types.ErrorCode

// =============================================================================
// 列出响应类型
// =============================================================================

// ApprovalListResponse 表示审批请求列表。
// @Description 审批列表响应
type ApprovalListResponse struct {
	// 审批请求清单
	Approvals []ApprovalView `json:"approvals"`
}

// RunListResponse 表示线程列表。
// @Description 线程列表响应
type RunListResponse struct {
	// 线程一览
	Runs []RunStatusResponse `json:"runs"`
}
