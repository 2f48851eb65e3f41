package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/voicelink/audio"
	"github.com/BaSui01/voicelink/config"
	"github.com/BaSui01/voicelink/engine"
	"github.com/BaSui01/voicelink/internal/metrics"
	"github.com/BaSui01/voicelink/internal/server"
	"github.com/BaSui01/voicelink/internal/telemetry"
	"github.com/BaSui01/voicelink/internal/tlsutil"
	"github.com/BaSui01/voicelink/ota"
	"github.com/BaSui01/voicelink/protocol"
	"github.com/BaSui01/voicelink/transport"
)

// goodbyeGrace 关闭连接前等待 goodbye 写出的时间
const goodbyeGrace = 200 * time.Millisecond

// Client 组装一次语音会话所需的全部组件
type Client struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	ops       *server.Manager
	otel      *telemetry.Providers

	link     *transport.WebSocketTransport
	capture  audio.Capture
	playback audio.Playback
	engine   *engine.Engine
}

// NewClient 创建客户端，Start 之前不会打开任何资源
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Client{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		collector: metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, reg, logger),
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化遥测、指标端点、OTA 检查、音频设备与引擎
func (c *Client) Start(ctx context.Context) error {
	// 1. OpenTelemetry
	providers, err := telemetry.Init(c.cfg.Telemetry, telemetry.Identity{
		DeviceID:  c.cfg.Device.MAC,
		ClientID:  c.cfg.Device.ClientID,
		BoardType: c.cfg.Device.BoardType,
	}, c.logger)
	if err != nil {
		c.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	c.otel = providers

	// 2. 指标端点
	if c.cfg.Metrics.Enabled {
		if err := c.startOps(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// 3. OTA 检查，失败不影响会话
	if c.cfg.Backend.OTAURL != "" {
		if _, err := c.CheckOTA(ctx); err != nil {
			c.logger.Warn("OTA check failed, continuing", zap.Error(err))
		}
	}

	// 4. 音频设备
	if err := c.openDevices(); err != nil {
		return err
	}

	// 5. 连接与引擎
	return c.buildEngine()
}

func (c *Client) startOps() error {
	cfg := server.DefaultConfig()
	cfg.Addr = c.cfg.Metrics.Addr
	c.ops = server.NewManager(server.NewOpsHandler(c.registry, c.status), cfg, c.logger)
	if err := c.ops.Start(); err != nil {
		return err
	}
	c.logger.Info("Metrics server started", zap.String("addr", c.ops.Addr()))
	return nil
}

// status 供 /healthz 返回的会话状态
func (c *Client) status() any {
	if c.engine == nil {
		return nil
	}
	return map[string]any{
		"running":  c.engine.Running(),
		"snapshot": c.engine.Snapshot(),
	}
}

// CheckOTA 上报设备信息
func (c *Client) CheckOTA(ctx context.Context) (*ota.Response, error) {
	tlsCfg, err := c.policy().Config()
	if err != nil {
		return nil, fmt.Errorf("tls policy: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Backend.OTATimeout)
	defer cancel()

	dev := c.cfg.Device
	client := ota.NewClient(c.cfg.Backend.OTAURL,
		tlsutil.SecureHTTPClient(c.cfg.Backend.OTATimeout, tlsCfg),
		ota.Device{
			MAC:        dev.MAC,
			BoardType:  dev.BoardType,
			AppName:    dev.AppName,
			AppVersion: dev.AppVersion,
			IP:         ota.LocalIP(),
		}, c.logger)
	return client.Check(ctx)
}

func (c *Client) policy() tlsutil.Policy {
	return tlsutil.Policy{
		InsecureSkipVerify: c.cfg.TLS.InsecureSkipVerify,
		CAFile:             c.cfg.TLS.CAFile,
		ServerName:         c.cfg.TLS.ServerName,
	}
}

func (c *Client) openDevices() error {
	capture, err := audio.OpenCapture(c.cfg.Audio, c.logger)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	c.capture = capture

	playback, err := audio.OpenPlayback(c.cfg.Audio, c.logger)
	if err != nil {
		return fmt.Errorf("open playback: %w", err)
	}
	c.playback = playback
	return nil
}

func (c *Client) buildEngine() error {
	codec, err := audio.NewCodec(c.cfg.Audio.Format, audio.ParamsFor(c.cfg.Audio))
	if err != nil {
		return err
	}

	if c.cfg.TLS.InsecureSkipVerify {
		c.logger.Warn("TLS certificate verification is disabled")
	}
	c.link = transport.New(transport.Config{
		URL:              c.cfg.Backend.WSURL,
		Header:           c.cfg.ConnectHeaders(),
		TLS:              c.policy().Func(),
		SendQueueSize:    c.cfg.Backend.SendQueueSize,
		HandshakeTimeout: c.cfg.Backend.HandshakeTimeout,
	}, c.logger, transport.WithMetrics(c.collector))

	c.engine, err = engine.New(engineConfig(c.cfg), c.link, codec, c.capture, c.playback, c.logger,
		engine.WithMetrics(c.collector))
	return err
}

// engineConfig 从配置推导引擎参数
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		ProtocolVersion: cfg.Backend.ProtocolVersion,
		Audio: protocol.AudioParams{
			Format:        cfg.Audio.Format,
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			FrameDuration: cfg.Audio.FrameDurationMS,
		},
		BlockSamples: cfg.Audio.BlockSamples(),
		IdleDelay:    cfg.Audio.IdleDelay,
	}
}

// =============================================================================
// 🎙️ 会话
// =============================================================================

// Run 运行会话直到连接结束或 ctx 取消。ctx 取消时先发送 goodbye。
func (c *Client) Run(ctx context.Context) error {
	if c.engine == nil {
		return fmt.Errorf("client not started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
		case <-runCtx.Done():
			return
		}
		if err := c.engine.Goodbye(); err == nil {
			c.logger.Info("goodbye sent")
			time.Sleep(goodbyeGrace)
		}
		c.engine.Stop()
	}()

	return c.engine.Run(runCtx)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 释放所有资源，可重复调用
func (c *Client) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.engine != nil {
		c.engine.Stop()
	}
	if c.capture != nil {
		if err := c.capture.Close(); err != nil {
			c.logger.Warn("capture close error", zap.Error(err))
		}
	}
	if c.playback != nil {
		if err := c.playback.Close(); err != nil {
			c.logger.Warn("playback close error", zap.Error(err))
		}
	}
	if c.ops != nil {
		if err := c.ops.Shutdown(ctx); err != nil {
			c.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if c.otel != nil {
		if err := c.otel.Shutdown(ctx); err != nil {
			c.logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}
}
