// 版权所有 2024 Overseer Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package tlsutil 集中管理 overseer 的 TLS 配置。
// ServerConfig/ClientConfig 提供统一的安全基线（TLS 1.2+，仅 AEAD
// 密码套件，优先 X25519），Transport/Client 在此之上构造加固的
// HTTP 出站组件。
package tlsutil
