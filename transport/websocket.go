package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/voicelink/internal/metrics"
)

// State 连接生命周期状态
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// TLSConfigFunc 连接前调用一次，返回 wss 握手使用的 TLS 配置
type TLSConfigFunc func() (*tls.Config, error)

// Handler 连接事件处理器，所有方法都在 Serve 的协程中调用
type Handler interface {
	// OnOpen 连接建立，返回值非空时作为第一条出站文本消息
	OnOpen(ctx context.Context) []byte
	// OnMessage 收到一条消息，返回值非空时立即作为文本发送
	OnMessage(ctx context.Context, payload []byte, binary bool) []byte
	// OnClose 已建立的连接关闭，正常关闭时 err 为 nil
	OnClose(err error)
	// OnFail 连接建立失败
	OnFail(err error)
}

// Config 配置 WebSocket transport
type Config struct {
	URL              string        // wss://host/path
	Header           http.Header   // 升级请求附带的静态头
	TLS              TLSConfigFunc // wss 必填
	SendQueueSize    int           // 发送队列长度 (default 64)
	WriteTimeout     time.Duration // 单帧写超时 (default 5s)
	ReadLimit        int64         // 单条消息最大字节数 (default 1 MiB)
	HandshakeTimeout time.Duration // 0 表示不限制
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		SendQueueSize: 64,
		WriteTimeout:  5 * time.Second,
		ReadLimit:     1 << 20,
	}
}

type frame struct {
	kind FrameKind
	data []byte
}

// Option 可选配置
type Option func(*WebSocketTransport)

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(t *WebSocketTransport) { t.metrics = c }
}

// WebSocketTransport 单连接、单写协程的 WebSocket transport。
// 只连接一次，失败或关闭后需要新建实例。
type WebSocketTransport struct {
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector

	mu            sync.Mutex
	state         State
	conn          *websocket.Conn
	handler       Handler
	onStateChange func(State)
	cancelDial    context.CancelFunc

	queue chan frame
	done  chan struct{}
}

// New 创建 transport，零值字段使用默认配置
func New(config Config, logger *zap.Logger, opts ...Option) *WebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = defaults.SendQueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = defaults.ReadLimit
	}
	t := &WebSocketTransport{
		config: config,
		logger: logger.With(zap.String("component", "ws_transport")),
		state:  StateDisconnected,
		queue:  make(chan frame, config.SendQueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnStateChange 注册状态变化回调
func (t *WebSocketTransport) OnStateChange(fn func(State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

// State 返回当前连接状态
func (t *WebSocketTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// setState 调用方不能持有 t.mu
func (t *WebSocketTransport) setState(s State) {
	t.mu.Lock()
	if t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	fn := t.onStateChange
	t.mu.Unlock()

	t.metrics.RecordStateTransition(string(s))
	t.logger.Debug("connection state changed", zap.String("state", string(s)))
	if fn != nil {
		fn(s)
	}
}

// Connect 建立连接，只尝试一次。
// 失败时调用 h.OnFail 并返回 *ConnectionError。
func (t *WebSocketTransport) Connect(ctx context.Context, h Handler) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return &ConnectionError{URL: t.config.URL, Err: ErrAlreadyConnected}
	}
	t.handler = h
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.cancelDial = cancel
	t.mu.Unlock()

	t.setState(StateConnecting)

	conn, err := t.dial(dialCtx)
	t.metrics.RecordConnectAttempt(err)

	t.mu.Lock()
	t.cancelDial = nil
	closing := t.state != StateConnecting
	if !closing {
		t.conn = conn
	}
	t.mu.Unlock()

	// Close 在拨号期间被调用
	if closing {
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client closing")
		}
		t.setState(StateClosed)
		cerr := &ConnectionError{URL: t.config.URL, Err: ErrClosedWhileConnecting}
		t.logger.Info("websocket closed while connecting", zap.String("url", t.config.URL))
		if h != nil {
			h.OnFail(cerr)
		}
		return cerr
	}

	if err != nil {
		t.setState(StateFailed)
		t.logger.Error("websocket connection failed", zap.String("url", t.config.URL), zap.Error(err))
		if h != nil {
			h.OnFail(err)
		}
		return err
	}
	conn.SetReadLimit(t.config.ReadLimit)

	t.logger.Info("websocket connected", zap.String("url", t.config.URL))
	return nil
}

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(t.config.URL)
	if err != nil {
		return nil, &ConnectionError{URL: t.config.URL, Err: err}
	}

	opts := &websocket.DialOptions{HTTPHeader: t.config.Header.Clone()}
	if u.Scheme == "wss" || u.Scheme == "https" {
		if t.config.TLS == nil {
			return nil, &ConnectionError{URL: t.config.URL, Err: ErrTLSPolicyRequired}
		}
		tlsConfig, err := t.config.TLS()
		if err != nil {
			return nil, &ConnectionError{URL: t.config.URL, Err: fmt.Errorf("tls policy: %w", err)}
		}
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsConfig,
			},
		}
	}

	if t.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.Dial(ctx, t.config.URL, opts)
	if err != nil {
		cerr := &ConnectionError{URL: t.config.URL, Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
		}
		return nil, cerr
	}
	return conn, nil
}

// Serve 运行事件循环直到连接关闭，阻塞调用。
// 正常关闭（本端 Close、对端正常关闭、ctx 取消）返回 nil。
func (t *WebSocketTransport) Serve(ctx context.Context) error {
	t.mu.Lock()
	conn, h := t.conn, t.handler
	state := t.state
	t.mu.Unlock()
	if conn == nil || h == nil {
		return ErrNotOpen
	}

	if state == StateConnecting {
		go t.writeLoop(conn)

		// 握手消息先于 Open 入队，保证是第一条出站消息
		if reply := h.OnOpen(ctx); len(reply) > 0 {
			if err := t.enqueue(frame{kind: FrameText, data: reply}); err != nil {
				t.logger.Warn("failed to queue open reply", zap.Error(err))
			}
		}
		t.setState(StateOpen)
	}

	var readErr error
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			readErr = err
			break
		}
		binary := typ == websocket.MessageBinary
		kind := FrameText
		if binary {
			kind = FrameBinary
		}
		t.metrics.RecordFrameReceived(string(kind), len(data))

		if reply := h.OnMessage(ctx, data, binary); len(reply) > 0 {
			if err := t.SendText(reply); err != nil {
				t.logger.Warn("failed to send reply", zap.Error(err))
			}
		}
	}

	err := t.teardown(ctx, conn, readErr)
	h.OnClose(err)
	return err
}

// teardown 停止写协程并归类关闭原因
func (t *WebSocketTransport) teardown(ctx context.Context, conn *websocket.Conn, readErr error) error {
	t.mu.Lock()
	localClose := t.state == StateClosing
	t.mu.Unlock()

	select {
	case <-t.done:
	default:
		close(t.done)
	}
	_ = conn.CloseNow()

	status := websocket.CloseStatus(readErr)
	switch {
	case localClose, ctx.Err() != nil,
		status == websocket.StatusNormalClosure,
		status == websocket.StatusGoingAway:
		t.setState(StateClosed)
		t.logger.Info("websocket disconnected", zap.Int("status", int(status)))
		return nil
	default:
		t.setState(StateFailed)
		t.logger.Warn("websocket connection lost", zap.Error(readErr))
		return fmt.Errorf("websocket read: %w", readErr)
	}
}

func (t *WebSocketTransport) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-t.done:
			return
		case f := <-t.queue:
			typ := websocket.MessageText
			if f.kind == FrameBinary {
				typ = websocket.MessageBinary
			}
			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err := conn.Write(ctx, typ, f.data)
			cancel()
			if err != nil {
				t.metrics.RecordSendError(string(f.kind))
				t.logger.Warn("websocket write failed",
					zap.String("kind", string(f.kind)),
					zap.Error(&SendError{Kind: f.kind, Err: err}))
				continue
			}
			t.metrics.RecordFrameSent(string(f.kind), len(f.data))
			if f.kind == FrameText {
				t.logger.Debug(">>", zap.ByteString("message", f.data))
			}
		}
	}
}

// SendText 发送文本帧
func (t *WebSocketTransport) SendText(payload []byte) error {
	return t.send(frame{kind: FrameText, data: payload})
}

// SendBinary 发送二进制帧
func (t *WebSocketTransport) SendBinary(payload []byte) error {
	return t.send(frame{kind: FrameBinary, data: payload})
}

// send 非阻塞入队，连接未打开或队列已满时返回 *SendError
func (t *WebSocketTransport) send(f frame) error {
	if t.State() != StateOpen {
		t.metrics.RecordSendError(string(f.kind))
		return &SendError{Kind: f.kind, Err: ErrNotOpen}
	}
	if err := t.enqueue(f); err != nil {
		t.metrics.RecordSendError(string(f.kind))
		return &SendError{Kind: f.kind, Err: err}
	}
	return nil
}

func (t *WebSocketTransport) enqueue(f frame) error {
	select {
	case <-t.done:
		return ErrNotOpen
	default:
	}
	select {
	case t.queue <- f:
		return nil
	case <-t.done:
		return ErrNotOpen
	default:
		return ErrQueueFull
	}
}

// Close 发起正常关闭，Serve 随后返回。可重复调用。
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	switch t.state {
	case StateClosing, StateClosed, StateFailed:
		t.mu.Unlock()
		return nil
	}
	conn := t.conn
	if conn == nil && t.state == StateDisconnected {
		t.mu.Unlock()
		t.setState(StateClosed)
		return nil
	}
	cancelDial := t.cancelDial
	t.mu.Unlock()

	t.setState(StateClosing)
	if conn == nil {
		// 拨号尚未完成，由 Connect 负责关闭并回调 OnFail
		if cancelDial != nil {
			cancelDial()
		}
		return nil
	}

	if err := conn.Close(websocket.StatusNormalClosure, "client closing"); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("websocket close: %w", err)
	}
	return nil
}
