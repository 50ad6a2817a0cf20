// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 Overseer 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与集成测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，自动注册
    Cleanup 防止泄漏
  - 异步断言: Eventually 封装，支持超时轮询等待条件满足
  - 数据工具: MustJSON，简化测试数据构造

# 子包

  - testutil/mocks: Mock 契约实现，包括 MockWorker、MockJudge、
    MockDecomposer、MockScorer、MockAdjudicator，均支持链式配置
    与错误注入，并记录调用历史
  - testutil/fixtures: 测试数据工厂，提供预置任务图、子任务链、
    面板问题库等样例

# 使用示例

	ctx := testutil.TestContext(t)
	worker := mocks.NewMockWorker().WithResult("done")
	out, err := worker.Execute(ctx, fixtures.Subtask("research"), types.ExecutionContext{})
*/
package testutil
