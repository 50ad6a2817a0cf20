// 版权所有 2024 Overseer Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、编排、
检查点、审批、共识面板、执行台账与数据库等维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 编排指标：状态机转换计数（from_state/to_state/event）、
    子任务执行总数与耗时（agent_id/status）、运行结束状态计数。
  - 检查点指标：保存次数，按 status 分组。
  - 审批指标：审批门事件计数（requested/approved/denied 等）。
  - 共识面板指标：评估次数，按 confidence 与是否触发平票裁决分组。
  - 执行台账指标：命中与未命中计数。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram，
    按 database/operation 分组。
*/
package metrics
