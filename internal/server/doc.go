// 版权所有 2024 Overseer Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP/HTTPS 服务器的生命周期：非阻塞启动、优雅
关闭与系统信号监听。

# 概述

Manager 封装 net/http.Server，生命周期为单向的
idle → running → stopped：启动后只能关闭，关闭后不可重启。
MaxConns > 0 时通过 golang.org/x/net/netutil 限制并发连接数；
StartTLS 使用 tlsutil 的统一 TLS 基线。

# 核心类型

  - Manager：提供 Start/StartTLS/Shutdown/WaitForShutdown 生命周期
    方法，Errors 暴露异步服务错误，BoundAddr 返回实际绑定地址
    （配置 ":0" 随机端口时有用）。
  - Config：监听地址、读写/空闲超时、请求头上限、优雅关闭超时
    与最大并发连接数。

# 信号处理

WaitForShutdown 监听 SIGINT/SIGTERM 与异步服务错误，任一到达后
触发优雅关闭。
*/
package server
