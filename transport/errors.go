package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen 连接未处于 Open 状态
	ErrNotOpen = errors.New("connection is not open")
	// ErrQueueFull 发送队列已满，当前帧被丢弃
	ErrQueueFull = errors.New("send queue is full")
	// ErrTLSPolicyRequired wss 连接缺少 TLS 策略回调
	ErrTLSPolicyRequired = errors.New("tls policy callback is required for wss")
	// ErrAlreadyConnected 每个 transport 只允许连接一次
	ErrAlreadyConnected = errors.New("transport already used")
	// ErrClosedWhileConnecting 拨号期间调用了 Close
	ErrClosedWhileConnecting = errors.New("transport closed while connecting")
)

// FrameKind 帧类型
type FrameKind string

const (
	FrameText   FrameKind = "text"
	FrameBinary FrameKind = "binary"
)

// ConnectionError 连接建立失败（解析、握手或 TLS）
type ConnectionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connect %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError 单帧发送失败
type SendError struct {
	Kind FrameKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s frame: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
