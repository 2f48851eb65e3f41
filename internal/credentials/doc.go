// Package credentials 检查后端访问令牌。
//
// 令牌只在本地解析声明（不校验签名），用于在连接前提示令牌已过期
// 或即将过期；非 JWT 格式的不透明令牌原样放行。
package credentials
