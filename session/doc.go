// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 session 实现语音会话状态机。

# 概述

状态机只做决策，不做 I/O：输入当前 Snapshot 与一条入站控制消息，
输出新的 Snapshot 和可选的出站控制消息。Apply 是纯函数，
Machine 在其外层加锁，保证两条入站消息的更新不会交错。

# 状态

  - SessionID：服务端在 hello 确认中分配，收到匹配的 goodbye 后清空
  - ListenState：Stopped / Started，决定采集的音频是否允许发送
  - TTSState：Idle / Speaking / Stopping，反映服务端播报状态

# 规则

  - hello：记录 session_id，开始监听，回复 listen/start
  - tts start：停止监听，避免与服务端播报重叠
  - tts stop：记录 session_id，恢复监听，回复 listen/start
  - goodbye：session_id 匹配时会话复位，否则忽略
  - 其他类型：不改变状态
*/
package session
