// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供本地运维 HTTP 端点的生命周期管理。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与
错误传播流程。NewOpsHandler 构造 /metrics 与 /healthz 两个端点，
供 Prometheus 抓取指标和查看当前会话状态。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/Errors 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时与优雅关闭超时。
  - StatusFunc：/healthz 返回内容的提供者。
*/
package server
