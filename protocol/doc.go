// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 protocol 定义语音会话后端的控制消息格式。

# 概述

控制消息是 WebSocket 文本帧中的 JSON 对象，必须带有 type 字段。
二进制帧承载编码后的音频，不经过本包。

# 消息

  - hello：客户端握手（版本、传输方式、音频参数）与服务端确认（session_id）
  - listen：客户端开始/停止监听，mode 固定为 auto
  - tts：服务端播报状态（start、sentence_start、sentence_end、stop）
  - goodbye：结束当前会话，双向均可发送
  - abort：客户端打断服务端播报

# 解析

Parse 返回类型化的 Envelope 或包装了 ErrMalformedMessage 的错误，
调用方按错误分支处理，而不是依赖 panic/recover。
*/
package protocol
