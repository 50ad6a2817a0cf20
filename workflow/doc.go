// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package workflow 提供编排核心：任务图、状态机与编排器。

# 概述

workflow 包实现了 Overseer 的运行主循环。一个目标 (objective) 被分解为
带依赖关系的子任务图，状态机驱动 decompose → assign → execute → review
→ synthesize 的推进，每次外部副作用之后写入检查点，使挂起或崩溃的线程
可以从最近的检查点恢复而不重复已完成的工作。

# 核心类型

  - TaskGraph     — 带依赖关系的子任务图（环检测、就绪集、状态推进）
  - Machine       — 显式转换表的小型状态机（只校验路由，不带副作用）
  - Orchestrator  — 驱动器：分解、指派、执行、评审、合成
  - RunState      — 可序列化的运行状态，即检查点的内容
  - Synthesizer   — 按 token 预算将已完成子任务折叠为最终报告

# 推进规则

  - 评审驳回且重试预算未耗尽时，子任务带着反馈回到 execute；
  - 评审请求外部裁决时，线程经 approval.Gate 挂起，恢复后以外部决定
    代替评审结论；
  - 失败的子任务不会中断兄弟子任务，仅其下游被标记为 blocked；
  - Parallel 模式按波次并发执行就绪子任务，受 MaxParallel 约束。

# 重放保证

执行台账 (internal/ledger) 以 (thread, subtask, attempt) 为键记录每次
成功的 worker 调用。从检查点重放时命中台账的执行直接复用记录结果，
绝不重复发起外部调用。
*/
package workflow
