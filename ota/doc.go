// Package ota 实现连接前的固件版本协商请求。
//
// 客户端以 JSON 上报设备描述（芯片、固件、板型、MAC），
// 请求头携带 Device-Id。响应只记录日志并原样返回，会话不依赖其内容。
package ota
