// 版权所有 2024 Overseer Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 checkpoint 持久层的 Schema 版本，基于
golang-migrate 实现，支持 PostgreSQL、MySQL 与 SQLite 三种方言。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中，方言与其
sql 驱动、迁移文件目录及 golang-migrate 数据库驱动的对应关系
集中在 dialects 表里。SQLite 使用 modernc 纯 Go 驱动，迁移
无需 CGO。

# 核心类型

  - Migrator：迁移器，提供 Apply/Rollback/Reset/Goto/Force/
    Version/Plan/Summarize 操作，自持数据库连接。
  - Config / Dialect：迁移配置与方言枚举（postgres/mysql/sqlite）。
  - Step / Summary：单条迁移的状态与整体摘要。
  - CLI：overseer migrate 子命令使用的终端输出层。

# 工厂函数

FromConfig / FromDatabaseConfig 从应用配置推导 DSN 并创建迁移器，
FromURL 直接接受驱动名与 DSN。DSN 按方言拼接连接串。
*/
package migration
