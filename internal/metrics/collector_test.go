package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func newTestCollector() *Collector {
	return NewCollectorWithRegistry(nextTestNamespace(), prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.connectAttempts)
	assert.NotNil(t, collector.controlMessages)
	assert.NotNil(t, collector.framesSent)
	assert.NotNil(t, collector.decodeErrors)
	assert.NotNil(t, collector.listenState)
}

func TestCollector_RecordConnectAttempt(t *testing.T) {
	collector := newTestCollector()

	collector.RecordConnectAttempt(nil)
	collector.RecordConnectAttempt(errors.New("dial failed"))
	collector.RecordConnectAttempt(errors.New("dial failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.connectAttempts.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.connectAttempts.WithLabelValues("failure")))
}

func TestCollector_RecordFrames(t *testing.T) {
	collector := newTestCollector()

	collector.RecordFrameSent("binary", 120)
	collector.RecordFrameSent("binary", 80)
	collector.RecordFrameReceived("text", 42)
	collector.RecordSendError("binary")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.framesSent.WithLabelValues("binary")))
	assert.Equal(t, 200.0, testutil.ToFloat64(collector.bytesSent.WithLabelValues("binary")))
	assert.Equal(t, 42.0, testutil.ToFloat64(collector.bytesReceived.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sendErrors.WithLabelValues("binary")))
}

func TestCollector_RecordSession(t *testing.T) {
	collector := newTestCollector()

	collector.RecordControlMessage("in", "hello")
	collector.RecordMalformedMessage()
	collector.RecordDecodeError()
	collector.RecordCaptureBlock("gated")
	collector.RecordSessionEstablished()
	collector.SetSessionState(1, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.controlMessages.WithLabelValues("in", "hello")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.malformedMessages))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.captureBlocks.WithLabelValues("gated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sessionsEstablished))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.listenState))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.ttsState))
}

func TestCollector_NilReceiver(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordConnectAttempt(nil)
		collector.RecordStateTransition("open")
		collector.RecordControlMessage("out", "listen")
		collector.RecordMalformedMessage()
		collector.RecordFrameSent("binary", 1)
		collector.RecordFrameReceived("binary", 1)
		collector.RecordSendError("text")
		collector.RecordCaptureBlock("sent")
		collector.RecordDecodeError()
		collector.SetSessionState(0, 0)
		collector.RecordSessionEstablished()
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := newTestCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordFrameSent("binary", 10)
			collector.RecordCaptureBlock("sent")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.framesSent.WithLabelValues("binary")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.captureBlocks.WithLabelValues("sent")))
}

func TestCollector_Registry(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollectorWithRegistry(nextTestNamespace(), registry, nil)

	collector.RecordStateTransition("open")

	families, err := registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
