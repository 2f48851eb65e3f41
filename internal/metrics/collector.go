// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 连接指标
	connectAttempts  *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec

	// 控制消息指标
	controlMessages   *prometheus.CounterVec
	malformedMessages prometheus.Counter

	// 音频帧指标
	framesSent     *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	bytesReceived  *prometheus.CounterVec
	sendErrors     *prometheus.CounterVec
	captureBlocks  *prometheus.CounterVec
	decodeErrors   prometheus.Counter

	// 会话指标
	listenState         prometheus.Gauge
	ttsState            prometheus.Gauge
	sessionsEstablished prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建指标收集器，注册到指定 Registry
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 连接指标
	c.connectAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of connection attempts",
		},
		[]string{"result"}, // result: success, failure
	)

	c.stateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_state_transitions_total",
			Help:      "Total number of transport state transitions",
		},
		[]string{"state"},
	)

	// 控制消息指标
	c.controlMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Total number of control messages",
		},
		[]string{"direction", "type"}, // direction: in, out
	)

	c.malformedMessages = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Total number of inbound text frames that failed to parse",
		},
	)

	// 音频帧指标
	c.framesSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames handed to the connection",
		},
		[]string{"kind"}, // kind: text, binary
	)

	c.bytesSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total number of payload bytes written",
		},
		[]string{"kind"},
	)

	c.framesReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of frames received",
		},
		[]string{"kind"},
	)

	c.bytesReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total number of payload bytes received",
		},
		[]string{"kind"},
	)

	c.sendErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total number of frames that failed to transmit",
		},
		[]string{"kind"},
	)

	c.captureBlocks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_blocks_total",
			Help:      "Total number of captured sample blocks by outcome",
		},
		[]string{"outcome"}, // outcome: sent, gated, empty, encode_error
	)

	c.decodeErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of inbound audio frames that failed to decode",
		},
	)

	// 会话指标
	c.listenState = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listen_state",
			Help:      "Current listen state (0 stopped, 1 started)",
		},
	)

	c.ttsState = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tts_state",
			Help:      "Current tts state (0 idle, 1 speaking, 2 stopping)",
		},
	)

	c.sessionsEstablished = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_established_total",
			Help:      "Total number of sessions acknowledged by the backend",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔌 连接指标记录
// =============================================================================

// RecordConnectAttempt 记录一次连接尝试
func (c *Collector) RecordConnectAttempt(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.connectAttempts.WithLabelValues(result).Inc()
}

// RecordStateTransition 记录连接状态转换
func (c *Collector) RecordStateTransition(state string) {
	if c == nil {
		return
	}
	c.stateTransitions.WithLabelValues(state).Inc()
}

// =============================================================================
// 💬 控制消息指标记录
// =============================================================================

// RecordControlMessage 记录控制消息
func (c *Collector) RecordControlMessage(direction, msgType string) {
	if c == nil {
		return
	}
	c.controlMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordMalformedMessage 记录解析失败的入站消息
func (c *Collector) RecordMalformedMessage() {
	if c == nil {
		return
	}
	c.malformedMessages.Inc()
}

// =============================================================================
// 🎙️ 音频帧指标记录
// =============================================================================

// RecordFrameSent 记录已写入连接的帧
func (c *Collector) RecordFrameSent(kind string, size int) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(kind).Inc()
	c.bytesSent.WithLabelValues(kind).Add(float64(size))
}

// RecordFrameReceived 记录收到的帧
func (c *Collector) RecordFrameReceived(kind string, size int) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(kind).Inc()
	c.bytesReceived.WithLabelValues(kind).Add(float64(size))
}

// RecordSendError 记录发送失败
func (c *Collector) RecordSendError(kind string) {
	if c == nil {
		return
	}
	c.sendErrors.WithLabelValues(kind).Inc()
}

// RecordCaptureBlock 记录采集块的处理结果
func (c *Collector) RecordCaptureBlock(outcome string) {
	if c == nil {
		return
	}
	c.captureBlocks.WithLabelValues(outcome).Inc()
}

// RecordDecodeError 记录解码失败
func (c *Collector) RecordDecodeError() {
	if c == nil {
		return
	}
	c.decodeErrors.Inc()
}

// =============================================================================
// 🗣️ 会话指标记录
// =============================================================================

// SetSessionState 更新监听与播报状态
func (c *Collector) SetSessionState(listen, tts int) {
	if c == nil {
		return
	}
	c.listenState.Set(float64(listen))
	c.ttsState.Set(float64(tts))
}

// RecordSessionEstablished 记录一次握手确认
func (c *Collector) RecordSessionEstablished() {
	if c == nil {
		return
	}
	c.sessionsEstablished.Inc()
}
