// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

// Package config 提供 Overseer 的配置管理功能。
//
// 配置覆盖服务器、编排器、共识面板、审批门以及检查点/台账存储后端,
// 支持从 YAML 文件与环境变量加载, 优先级为 默认值 → 文件 → 环境变量。
package config
