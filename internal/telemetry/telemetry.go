// =============================================================================
// voicelink OpenTelemetry 初始化
// =============================================================================
// span 覆盖 OTA 检查与一次会话的生命周期，指标走同一个 OTLP 端点。
// 关闭时全局 provider 保持 noop，不创建任何 exporter。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/BaSui01/voicelink/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InstrumentationName 所有 span 使用的 tracer 名称
const InstrumentationName = "github.com/BaSui01/voicelink"

const (
	// exportTimeout 单次导出上限，后端不可达时不拖住会话
	exportTimeout = 5 * time.Second
	// batchTimeout 会话通常很短，span 尽快刷出
	batchTimeout = 2 * time.Second
	// metricInterval 周期导出间隔
	metricInterval = 15 * time.Second
)

// Tracer 返回全局 TracerProvider 下的 voicelink tracer。
// Init 之前调用得到的是 noop tracer。
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Identity 写入 resource 的设备身份，空字段省略
type Identity struct {
	DeviceID  string
	ClientID  string
	BoardType string
}

func (id Identity) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id.ClientID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(id.ClientID))
	}
	if id.DeviceID != "" {
		attrs = append(attrs, attribute.String("voicelink.device.id", id.DeviceID))
	}
	if id.BoardType != "" {
		attrs = append(attrs, attribute.String("voicelink.device.board", id.BoardType))
	}
	return attrs
}

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider，关闭时两者均为 nil
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 初始化 OTel SDK 并设置全局 provider。
// cfg.Enabled 为 false 时返回空 Providers，不连接任何外部服务。
func Init(cfg config.TelemetryConfig, id Identity, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	ctx := context.Background()

	res, err := newResource(ctx, cfg.ServiceName, id)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOptions(cfg)...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	ratio := clampRatio(cfg.SampleRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(batchTimeout),
			sdktrace.WithExportTimeout(exportTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(metricInterval),
			sdkmetric.WithTimeout(exportTimeout))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.String("client_id", id.ClientID),
		zap.Float64("sample_rate", ratio),
		zap.Bool("insecure", cfg.Insecure),
	)
	return &Providers{tp: tp, mp: mp}, nil
}

// newResource 服务名、版本、设备身份，加上主机与运行时信息
func newResource(ctx context.Context, service string, id Identity) (*resource.Resource, error) {
	if service == "" {
		service = "voicelink"
	}
	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(service),
		semconv.ServiceVersion(buildVersion()),
	}, id.attributes()...)

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithTelemetrySDK(),
	)
	if err != nil && res == nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	// 部分探测失败时 res 仍可用
	return res, nil
}

// 导出失败直接丢弃，不重试
func traceOptions(cfg config.TelemetryConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithTimeout(exportTimeout),
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{Enabled: false}),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func metricOptions(cfg config.TelemetryConfig) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithTimeout(exportTimeout),
		otlpmetricgrpc.WithRetry(otlpmetricgrpc.RetryConfig{Enabled: false}),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

// clampRatio 采样率限制在 [0, 1]
func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

// Shutdown 刷出剩余数据并关闭 exporter，对空 Providers 安全
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion 取模块版本，本地构建返回 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
