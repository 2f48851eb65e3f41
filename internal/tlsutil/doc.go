// Package tlsutil 提供集中式 TLS 配置，
// 为 wss 握手和 OTA HTTP 客户端提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
//
// 证书校验默认开启；跳过校验必须通过 Policy.InsecureSkipVerify 显式声明。
package tlsutil
