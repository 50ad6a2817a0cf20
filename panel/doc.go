// Copyright (c) Overseer Authors.
// Licensed under the MIT License.

/*
Package panel 实现多评审员共识面试: 结构化提问、全员打分、多数票裁决。

# 协议

面板由奇数个 (≥3) 评审员组成, 每人携带互不相同的六维权重画像
(accuracy / relevance / completeness / explainability / efficiency /
safety)。每轮中每个评审员从共享题库轮转选题, 优先选取 focus 与自身
specialty 匹配的未用题目; 候选者对每道选中的题目作答一次, 随后所有
评审员对所有答案逐一打分 (每项 0-5)。

单张选票的加权总分:

	overall = Σ(weight × metric / 5) × 100    保留两位小数

# 裁决

评审员对某候选者的 accept 多于 reject 即视为支持该候选者。支持者过
半即胜出; 支持率 ≥80% 时置信度为 high, 否则 medium。无人过半时执行
恰好一轮加试: 仲裁者出一道更难的题, 仅向排名前二的候选者提问并裁定
胜者, 置信度强制为 low; 加试仍无结论时由排名领先者胜出。

排名按平均总分稳定降序, 同分保持候选者注册顺序, 因此相同选票集合的
重复评估产生完全一致的结果。
*/
package panel
