// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package directory 提供基于能力打分的 agent 注册与调度目录。

# 概述

directory 维护全局共享的 agent 池：每个 agent 携带能力标签、阶段亲和度、
可用性标志与历史成败计数。编排器在 Assign 阶段通过 FindBest 选取最优
agent，执行结束后通过 Release 归还并更新滚动成功率。

# 打分规则

	score = 10 × |能力交集| + 5 × (阶段 ∈ 亲和度) + 3 × 成功率

仅对可用 agent 打分；得分 > 0 的候选按分数稳定降序排列，平分时保持注册
顺序，保证相同状态下选择结果可复现。无候选得分时回退到注册顺序中第一个
可用 agent；全部忙碌时返回 AssignmentError。

# 并发模型

可用性标志与计数器是进程级共享状态。所有读写经由单一互斥锁串行化，
多个编排线程并发认领同一 agent 时只有一个会成功。
*/
package directory
