// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package main 提供 Overseer 服务端程序入口。

# 概述

cmd/overseer 是 Overseer 编排核心的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 链路追踪。

# 核心类型

  - Server         — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware     — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusRecorder — 包装 http.ResponseWriter 以捕获状态码与响应字节数

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、CORS、RateLimiter（基于 IP）；
    配置 JWT 时追加 JWTAuth（Bearer）与 OperatorRateLimiter（按操作者
    限流），否则使用 APIKeyAuth（X-API-Key / query 参数）
  - 后端装配：检查点（memory/file/redis/database/mongo）、审批请求
    存储（memory/redis）、执行台账（memory/redis）按配置选择
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止运行 → 停止事件广播 → 关闭 HTTP →
    关闭 Metrics → 关闭存储连接 → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
