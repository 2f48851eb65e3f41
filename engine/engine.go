package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/voicelink/audio"
	"github.com/BaSui01/voicelink/internal/metrics"
	"github.com/BaSui01/voicelink/internal/telemetry"
	"github.com/BaSui01/voicelink/protocol"
	"github.com/BaSui01/voicelink/session"
	"github.com/BaSui01/voicelink/transport"
)

var (
	// ErrAlreadyStarted Run 只能调用一次
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrNoSession 尚未完成握手
	ErrNoSession = errors.New("engine: no established session")
)

// Link 引擎使用的连接，由 transport.WebSocketTransport 实现
type Link interface {
	Connect(ctx context.Context, h transport.Handler) error
	Serve(ctx context.Context) error
	SendText(payload []byte) error
	SendBinary(payload []byte) error
	Close() error
}

var (
	_ Link              = (*transport.WebSocketTransport)(nil)
	_ transport.Handler = (*Engine)(nil)
)

// Config 引擎配置
type Config struct {
	ProtocolVersion int
	Audio           protocol.AudioParams
	BlockSamples    int           // 每次采集的交织采样数
	IdleDelay       time.Duration // 未监听时每次迭代的最短时长
}

// Option 可选配置
type Option func(*Engine)

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithTracer 覆盖默认 tracer
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// Engine 单会话引擎，只能 Run 一次
type Engine struct {
	cfg      Config
	link     Link
	machine  *session.Machine
	codec    audio.Codec
	capture  audio.Capture
	playback audio.Playback

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	started  atomic.Bool
	running  atomic.Bool
	stopped  atomic.Bool // 调用过 Stop
	done     chan struct{}
	haltOnce sync.Once

	decodeLog rate.Sometimes
	sendLog   rate.Sometimes
	playLog   rate.Sometimes
}

// New 创建引擎
func New(cfg Config, link Link, codec audio.Codec, capture audio.Capture, playback audio.Playback, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if link == nil || codec == nil || capture == nil || playback == nil {
		return nil, errors.New("engine: link, codec, capture and playback are required")
	}
	if cfg.BlockSamples <= 0 {
		return nil, fmt.Errorf("engine: invalid block size %d", cfg.BlockSamples)
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 10 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		link:      link,
		machine:   session.NewMachine(),
		codec:     codec,
		capture:   capture,
		playback:  playback,
		logger:    logger.With(zap.String("component", "engine")),
		tracer:    telemetry.Tracer(),
		done:      make(chan struct{}),
		decodeLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
		sendLog:   rate.Sometimes{First: 3, Interval: 5 * time.Second},
		playLog:   rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Snapshot 返回当前会话状态
func (e *Engine) Snapshot() session.Snapshot {
	return e.machine.Snapshot()
}

// Running 运行标志
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run 连接后端并运行两条执行路径，直到连接关闭、Stop 或 ctx 取消。
// 连接失败返回 *transport.ConnectionError；正常结束或连接期间 Stop 返回 nil。
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, span := e.tracer.Start(ctx, "voicelink.session",
		trace.WithAttributes(
			attribute.String("audio.format", e.cfg.Audio.Format),
			attribute.Int("audio.sample_rate", e.cfg.Audio.SampleRate),
		))
	defer span.End()

	select {
	case <-e.done:
		// Run 之前已经 Stop
		return nil
	default:
	}
	e.running.Store(true)
	if err := e.link.Connect(ctx, e); err != nil {
		e.halt()
		if e.stopped.Load() {
			// 连接期间被 Stop，不算失败
			e.logger.Info("session engine stopped while connecting")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// 网络路径
	g.Go(func() error {
		defer e.halt()
		return e.link.Serve(gctx)
	})

	// 采集路径
	g.Go(func() error {
		return e.captureLoop(gctx)
	})

	// ctx 取消或运行标志清除时关闭连接
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-e.done:
		}
		e.Stop()
		return nil
	})

	err := g.Wait()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.logger.Info("session engine stopped", zap.Error(err))
	return err
}

// Stop 清除运行标志并关闭连接，可重复调用
func (e *Engine) Stop() {
	e.stopped.Store(true)
	e.halt()
	if err := e.link.Close(); err != nil {
		e.logger.Warn("close link failed", zap.Error(err))
	}
}

func (e *Engine) halt() {
	e.haltOnce.Do(func() {
		e.running.Store(false)
		close(e.done)
	})
}

// Goodbye 通知后端结束当前会话。本地会话标识由入站 goodbye 清除。
func (e *Engine) Goodbye() error {
	snap := e.machine.Snapshot()
	if !snap.Established() {
		return ErrNoSession
	}
	return e.sendControl(protocol.NewGoodbye(snap.SessionID), protocol.TypeGoodbye)
}

// Abort 请求后端打断当前播报
func (e *Engine) Abort(reason string) error {
	snap := e.machine.Snapshot()
	if !snap.Established() {
		return ErrNoSession
	}
	return e.sendControl(protocol.NewAbort(snap.SessionID, reason), protocol.TypeAbort)
}

func (e *Engine) sendControl(msg any, typ protocol.MessageType) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := e.link.SendText(payload); err != nil {
		return err
	}
	e.metrics.RecordControlMessage("outbound", string(typ))
	return nil
}

// =============================================================================
// transport.Handler
// =============================================================================

// OnOpen 构造握手消息
func (e *Engine) OnOpen(ctx context.Context) []byte {
	hello, err := protocol.Encode(protocol.NewHello(e.cfg.ProtocolVersion, e.cfg.Audio))
	if err != nil {
		e.logger.Error("encode hello failed", zap.Error(err))
		return nil
	}
	e.metrics.RecordControlMessage("outbound", string(protocol.TypeHello))
	e.logger.Info("connection open, sending hello")
	return hello
}

// OnMessage 文本交给状态机，二进制解码后播放
func (e *Engine) OnMessage(ctx context.Context, payload []byte, binary bool) []byte {
	if binary {
		e.play(payload)
		return nil
	}
	return e.control(payload)
}

// OnClose 连接关闭，会话复位
func (e *Engine) OnClose(err error) {
	e.terminate("connection closed", err)
}

// OnFail 连接建立失败
func (e *Engine) OnFail(err error) {
	e.terminate("connection failed", err)
}

func (e *Engine) terminate(reason string, err error) {
	e.halt()
	prev := e.machine.Reset()
	e.publishState(session.Initial())
	fields := []zap.Field{zap.String("session_id", prev.SessionID)}
	if err != nil {
		e.logger.Warn(reason, append(fields, zap.Error(err))...)
		return
	}
	e.logger.Info(reason, fields...)
}

func (e *Engine) control(payload []byte) []byte {
	e.logger.Debug("<<", zap.ByteString("message", payload))

	res, err := e.machine.Handle(payload)
	if err != nil {
		e.metrics.RecordMalformedMessage()
		e.logger.Warn("dropping control message", zap.Error(err), zap.ByteString("message", payload))
		return nil
	}
	e.metrics.RecordControlMessage("inbound", string(res.Message.Type))

	if res.Changed() {
		e.publishState(res.State)
		e.logger.Info("session state changed",
			zap.String("type", string(res.Message.Type)),
			zap.String("session_id", res.State.SessionID),
			zap.Stringer("listen", res.State.Listen),
			zap.Stringer("tts", res.State.TTS))
	}
	if res.Message.Type == protocol.TypeHello {
		e.metrics.RecordSessionEstablished()
	}
	if len(res.Outbound) > 0 {
		e.metrics.RecordControlMessage("outbound", string(protocol.TypeListen))
	}
	return res.Outbound
}

func (e *Engine) publishState(s session.Snapshot) {
	e.metrics.SetSessionState(int(s.Listen), int(s.TTS))
}

func (e *Engine) play(frame []byte) {
	samples, err := e.codec.Decode(frame)
	if err != nil {
		e.metrics.RecordDecodeError()
		e.decodeLog.Do(func() {
			e.logger.Warn("dropping undecodable audio frame", zap.Int("bytes", len(frame)), zap.Error(err))
		})
		return
	}
	if err := e.playback.WriteBlock(samples); err != nil {
		e.playLog.Do(func() {
			e.logger.Warn("playback write failed", zap.Error(err))
		})
	}
}

// =============================================================================
// 采集路径
// =============================================================================

func (e *Engine) captureLoop(ctx context.Context) error {
	for e.active(ctx) {
		started := time.Now()
		block, err := e.capture.ReadBlock(e.cfg.BlockSamples)
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.logger.Info("capture source exhausted")
				return nil
			}
			if !e.active(ctx) {
				return nil
			}
			return fmt.Errorf("capture: %w", err)
		}

		if !e.machine.Listening() {
			e.metrics.RecordCaptureBlock("gated")
			e.idle(ctx, e.cfg.IdleDelay-time.Since(started))
			continue
		}

		frame, err := e.codec.Encode(block)
		if err != nil {
			e.metrics.RecordCaptureBlock("encode_error")
			e.logger.Warn("encode failed, dropping block", zap.Error(err))
			continue
		}
		if len(frame) == 0 {
			e.metrics.RecordCaptureBlock("empty")
			continue
		}
		if err := e.link.SendBinary(frame); err != nil {
			e.sendLog.Do(func() {
				e.logger.Warn("dropping audio frame", zap.Error(err))
			})
			continue
		}
		e.metrics.RecordCaptureBlock("sent")
	}
	return nil
}

// active 运行标志已设置且未收到停止信号
func (e *Engine) active(ctx context.Context) bool {
	select {
	case <-e.done:
		return false
	case <-ctx.Done():
		return false
	default:
		return e.running.Load()
	}
}

// idle 等待 d，Stop 或 ctx 取消时提前返回
func (e *Engine) idle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-e.done:
	}
}
