package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType 控制消息类型
type MessageType string

const (
	TypeHello   MessageType = "hello"
	TypeListen  MessageType = "listen"
	TypeTTS     MessageType = "tts"
	TypeGoodbye MessageType = "goodbye"
	TypeAbort   MessageType = "abort"
	TypeSTT     MessageType = "stt"
	TypeLLM     MessageType = "llm"
	TypeIoT     MessageType = "iot"
)

// 消息状态常量
const (
	StateStart         = "start"
	StateStop          = "stop"
	StateSentenceStart = "sentence_start"
	StateSentenceEnd   = "sentence_end"
	StateIdle          = "idle"
)

// ModeAuto 自动监听模式，由服务端 VAD 决定一句话的结束
const ModeAuto = "auto"

// TransportWebSocket hello 消息中的传输方式标记
const TransportWebSocket = "websocket"

// ErrMalformedMessage 入站文本无法解析或不符合消息结构
var ErrMalformedMessage = errors.New("malformed control message")

// AudioParams 音频参数
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

// Hello 客户端握手消息
type Hello struct {
	Type        MessageType `json:"type"`
	Version     int         `json:"version"`
	Transport   string      `json:"transport"`
	AudioParams AudioParams `json:"audio_params"`
}

// Listen 监听状态消息
type Listen struct {
	Type      MessageType `json:"type"`
	State     string      `json:"state"`
	Mode      string      `json:"mode,omitempty"`
	SessionID string      `json:"session_id"`
}

// Goodbye 会话结束消息
type Goodbye struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// Abort 打断播报消息
type Abort struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason,omitempty"`
}

// Envelope 入站控制消息的解析结果。
// 只保留状态机关心的字段，其余内容保存在 Raw 中。
type Envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	State     string          `json:"state,omitempty"`
	Text      string          `json:"text,omitempty"`
	Transport string          `json:"transport,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// NewHello 构造握手消息
func NewHello(version int, params AudioParams) Hello {
	return Hello{
		Type:        TypeHello,
		Version:     version,
		Transport:   TransportWebSocket,
		AudioParams: params,
	}
}

// NewListenStart 构造自动模式的开始监听消息
func NewListenStart(sessionID string) Listen {
	return Listen{
		Type:      TypeListen,
		State:     StateStart,
		Mode:      ModeAuto,
		SessionID: sessionID,
	}
}

// NewListenStop 构造停止监听消息
func NewListenStop(sessionID string) Listen {
	return Listen{
		Type:      TypeListen,
		State:     StateStop,
		SessionID: sessionID,
	}
}

// NewGoodbye 构造会话结束消息
func NewGoodbye(sessionID string) Goodbye {
	return Goodbye{Type: TypeGoodbye, SessionID: sessionID}
}

// NewAbort 构造打断消息
func NewAbort(sessionID, reason string) Abort {
	return Abort{Type: TypeAbort, SessionID: sessionID, Reason: reason}
}

// Encode 将出站消息序列化为 JSON 文本
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode control message: %w", err)
	}
	return data, nil
}

// Parse 解析入站文本帧。
// 返回的错误总是包装 ErrMalformedMessage。
func Parse(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	env.Raw = append(json.RawMessage(nil), raw...)

	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// validate 检查各消息类型的必填字段
func (e *Envelope) validate() error {
	switch e.Type {
	case TypeHello:
		if e.SessionID == "" {
			return fmt.Errorf("%w: hello without session_id", ErrMalformedMessage)
		}
	case TypeTTS:
		if e.State == "" {
			return fmt.Errorf("%w: tts without state", ErrMalformedMessage)
		}
	}
	return nil
}
