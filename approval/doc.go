// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package approval 提供人工审批门: 编排线程挂起, 等待操作员裁决后恢复。

# 流程

 1. Suspend 生成不透明 handle, 将待审请求写入 RequestStore 并注册等待者
 2. 编排线程在 Wait 上阻塞
 3. 操作员通过 Resume(handle, decision) 裁决; 检查与移除等待者在同一把
    锁内完成, 并发 Resume 只有一个成功, 其余得到 HANDLE_NOT_FOUND
 4. 可配置超时: 到期自动应用默认裁决 (默认拒绝) 并返回 APPROVAL_TIMEOUT

# 存储与事件

请求记录经 RequestStore 持久化 (内存 / Redis), 已裁决历史保留供审计。
每次挂起与裁决都会在事件通道上发布, 控制台经 WebSocket 订阅该通道。
*/
package approval
