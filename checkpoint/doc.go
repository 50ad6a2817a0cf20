// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package checkpoint 提供编排运行状态的持久化快照层。

# 概述

每个编排线程 (thread) 拥有一条单调递增的检查点序列。编排器在每次外部
副作用完成后写入一个快照; 崩溃或挂起后, 从最高序号的检查点恢复即可继续
执行, 已完成的步骤不会被重放。

# 存储后端

  - InMemoryStore — 进程内存, 测试与单进程运行的默认选择
  - FileStore     — 每个检查点一个 JSON 文件, 临时文件 + rename 保证原子性
  - RedisStore    — INCR 分配序号, ZSET 按序号索引
  - GormStore     — 关系型后端 (Postgres / MySQL / SQLite), 事务内分配序号
  - MongoStore    — 单集合 + (thread_id, sequence) 唯一降序索引

所有后端满足同一个 Store 契约: Put 必须对同一 thread 原子, 并发读者只会
看到完整的旧快照或完整的新快照。

# Manager

Manager 封装具体后端, 增加结构化日志与可选的保留策略 (每线程最多保留
keep 个检查点)。编排器只依赖 Manager。
*/
package checkpoint
