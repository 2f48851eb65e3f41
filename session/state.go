package session

import "github.com/BaSui01/voicelink/protocol"

// ListenState 监听状态
type ListenState int32

const (
	ListenStopped ListenState = iota
	ListenStarted
)

func (s ListenState) String() string {
	switch s {
	case ListenStarted:
		return "started"
	default:
		return "stopped"
	}
}

func (s ListenState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// TTSState 服务端播报状态
type TTSState int32

const (
	TTSIdle TTSState = iota
	TTSSpeaking
	TTSStopping
)

func (s TTSState) String() string {
	switch s {
	case TTSSpeaking:
		return "speaking"
	case TTSStopping:
		return "stopping"
	default:
		return "idle"
	}
}

func (s TTSState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseTTSState 将 tts 消息的 state 字段映射为 TTSState。
// 句子级别的事件发生在播报过程中，视为 Speaking；无法识别的值视为 Idle。
func ParseTTSState(state string) TTSState {
	switch state {
	case protocol.StateStart, protocol.StateSentenceStart, protocol.StateSentenceEnd:
		return TTSSpeaking
	case protocol.StateStop:
		return TTSStopping
	default:
		return TTSIdle
	}
}

// Snapshot 会话状态快照
type Snapshot struct {
	SessionID string      `json:"session_id"`
	Listen    ListenState `json:"listen_state"`
	TTS       TTSState    `json:"tts_state"`
}

// Initial 返回未建立会话时的初始状态
func Initial() Snapshot {
	return Snapshot{Listen: ListenStopped, TTS: TTSIdle}
}

// Established 是否已完成握手
func (s Snapshot) Established() bool {
	return s.SessionID != ""
}

// Listening 是否允许发送采集的音频
func (s Snapshot) Listening() bool {
	return s.Listen == ListenStarted
}
