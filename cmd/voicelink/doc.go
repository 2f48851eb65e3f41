// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 voicelink 语音客户端程序入口。

# 概述

cmd/voicelink 连接语音后端，把麦克风采集的音频以二进制帧上行，
把下行音频帧解码后交给扬声器，并按控制消息切换监听状态。

# 核心类型

  - Client: 组装配置、日志、遥测、OTA 检查、指标端点与会话引擎

# 主要能力

  - 子命令：run（运行会话）、ota（仅执行 OTA 检查）、health、version
  - 关闭：SIGINT/SIGTERM 或 --stdin-exit 时回车，先发送 goodbye 再关闭连接
  - 指标端点：可选的 /metrics 与 /healthz
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
