// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Overseer HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 Overseer 所有 HTTP 端点的请求处理逻辑，
包括编排线程管理、人工审批、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - RunsHandler      — 编排线程的启动、查询、恢复与取消
  - ApprovalsHandler — 审批请求的列表、历史与裁决
  - StreamHandler    — WebSocket 审批事件流（扇出广播）
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - ProbeFunc        — 可插拔就绪探针（数据库、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 异步编排：POST /api/v1/runs 立即返回 202，线程在后台推进
  - 挂起/恢复：审批裁决通过 gate 唤醒被挂起的线程
  - 可扩展健康检查：AddProbe 注册命名就绪探针, /ready 逐个执行
*/
package handlers
