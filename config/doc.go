// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 voicelink 的配置管理功能。
//
// 配置优先级为 默认值 → YAML 文件 → 环境变量（前缀 VOICELINK）。
// 首次加载时会补全设备身份：client_id 为空时生成 UUID，
// mac 为空时读取本机第一块非回环网卡的硬件地址。
package config
