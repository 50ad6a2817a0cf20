// 版权所有 2024 Overseer Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 管理检查点与审批存储共享的关系型后端。

Pool 在已建立的 GORM 连接上套用连接数上限与生命周期策略, 周期性
探活, 并为突发的检查点写入提供 InTxRetry:死锁、sqlite busy、
序列化失败等瞬态错误按指数退避重试, 其余错误立即上抛。

控制台 status 端点通过 Usage 透出连接池快照。
*/
package database
