// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的语音会话指标采集能力，覆盖
连接、控制消息、音频帧与会话状态四个维度。

# 概述

Collector 通过 promauto 注册指标，默认注册到全局 Registry，
也可以通过 NewCollectorWithRegistry 注册到独立的 Registry（测试中使用）。
所有方法对 nil 接收者安全，未启用指标时组件可以直接传入 nil。

# 主要能力

  - 连接指标：连接尝试结果、连接状态转换次数
  - 控制消息：按方向与类型计数，解析失败单独计数
  - 音频指标：发送/接收帧数与字节数、采集块处理结果、解码失败、发送失败
  - 会话指标：监听状态与播报状态 Gauge、建立的会话数
*/
package metrics
