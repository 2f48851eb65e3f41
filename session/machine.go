package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/voicelink/protocol"
)

// Result 处理一条入站消息的结果
type Result struct {
	// Prev 处理前的状态
	Prev Snapshot
	// State 处理后的状态
	State Snapshot
	// Message 解析后的入站消息，解析失败时为 nil
	Message *protocol.Envelope
	// Outbound 需要立即发送的文本消息，为空表示无需回复
	Outbound []byte
}

// Changed 状态是否发生变化
func (r Result) Changed() bool {
	return r.Prev != r.State
}

// Apply 根据当前状态处理一条入站文本消息。
// 解析失败时返回原状态和包装了 protocol.ErrMalformedMessage 的错误。
func Apply(cur Snapshot, raw []byte) (Result, error) {
	res := Result{Prev: cur, State: cur}

	env, err := protocol.Parse(raw)
	if err != nil {
		return res, err
	}
	res.Message = env

	next := cur
	var reply any

	switch env.Type {
	case protocol.TypeHello:
		next.SessionID = env.SessionID
		next.Listen = ListenStarted
		reply = protocol.NewListenStart(next.SessionID)

	case protocol.TypeTTS:
		next.TTS = ParseTTSState(env.State)
		switch next.TTS {
		case TTSStopping:
			// tts stop 未携带 session_id 时沿用当前会话
			if env.SessionID != "" {
				next.SessionID = env.SessionID
			}
			next.Listen = ListenStarted
			reply = protocol.NewListenStart(next.SessionID)
		case TTSSpeaking:
			next.Listen = ListenStopped
		}

	case protocol.TypeGoodbye:
		if env.SessionID == cur.SessionID {
			next = Initial()
		}
	}

	if reply != nil {
		out, err := protocol.Encode(reply)
		if err != nil {
			return Result{Prev: cur, State: cur, Message: env}, fmt.Errorf("build reply for %s: %w", env.Type, err)
		}
		res.Outbound = out
	}
	res.State = next
	return res, nil
}

// Machine 并发安全的会话状态机。
// 写入来自网络路径，Listening 供采集路径无锁读取。
type Machine struct {
	mu        sync.Mutex
	state     Snapshot
	listening atomic.Bool
}

// NewMachine 创建处于初始状态的状态机
func NewMachine() *Machine {
	return &Machine{state: Initial()}
}

// Handle 处理一条入站文本消息并原子地提交新状态
func (m *Machine) Handle(raw []byte) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := Apply(m.state, raw)
	if err != nil {
		return res, err
	}
	m.commit(res.State)
	return res, nil
}

// Snapshot 返回当前状态
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Listening 采集路径的发送闸门
func (m *Machine) Listening() bool {
	return m.listening.Load()
}

// StopListening 停止监听，会话标识保持不变
func (m *Machine) StopListening() {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state
	next.Listen = ListenStopped
	m.commit(next)
}

// Reset 会话复位，返回复位前的状态
func (m *Machine) Reset() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.commit(Initial())
	return prev
}

// commit 调用方必须持有 m.mu
func (m *Machine) commit(s Snapshot) {
	m.state = s
	m.listening.Store(s.Listen == ListenStarted)
}
