// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package types 提供 overseer 编排内核的全局共享类型定义。

# 概述

types 是内核最底层的公共包，不依赖任何内部包，为 workflow、directory、
checkpoint、approval、panel、api 等上层模块提供统一的类型契约。所有跨包
共享的接口、结构体、枚举和错误码均定义于此，以避免循环依赖。

# 核心接口与类型

  - Task / Subtask      — 目标分解后的任务图节点（依赖、验收标准、重试计数）
  - SubtaskStatus       — pending / in_progress / completed / blocked / failed
  - Phase               — 工作流阶段标签（用于 agent 亲和度打分）
  - Worker              — 外部执行器契约（Execute(ctx, subtask, execCtx)）
  - Judge               — 外部评审契约（Evaluate → 批准 / 反馈 / 缺失标准）
  - Decomposer          — 外部分解器契约（Decompose(objective) → Task）
  - Error / ErrorCode   — 结构化错误体系，含 HTTP 状态码、Retryable 标记

# 主要能力

  - Context 传播：WithTraceID / WithThreadID / WithRunID / WithOperator 等
  - 错误工具链：IsRetryable / GetErrorCode / IsCode
  - 常用错误构造：NewCycleError / NewHandleNotFoundError / NewCheckpointIOError 等
*/
package types
