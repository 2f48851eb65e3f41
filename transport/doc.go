// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 transport 提供加密的、面向消息的双工 WebSocket 连接。

# 概述

WebSocketTransport 基于 github.com/coder/websocket，只尝试连接一次，
不做任何自动重连。所有写操作经过单一发送队列，由唯一的写协程写入连接，
因此采集路径与网络路径可以并发调用 SendText / SendBinary 而无需额外加锁。

# 事件

连接事件通过 Handler 接口的四个方法投递，且总是在 Serve 所在的协程中调用：

  - OnOpen：连接建立，返回值非空时作为第一条出站文本消息发送
  - OnMessage：收到文本或二进制消息，返回值非空时立即作为文本发送
  - OnClose：已建立的连接关闭
  - OnFail：连接建立失败

# TLS

wss 连接必须显式提供 TLSConfigFunc，连接前调用一次以获取 *tls.Config。
是否校验服务端证书完全由该回调决定，本包不提供隐式默认值。
*/
package transport
