// =============================================================================
// 📦 voicelink 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Backend:   DefaultBackendConfig(),
		Device:    DefaultDeviceConfig(),
		Audio:     DefaultAudioConfig(),
		TLS:       TLSConfig{},
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultBackendConfig 返回默认后端配置
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		WSURL:           "wss://api.tenclass.net/xiaozhi/v1/",
		OTAURL:          "https://api.tenclass.net/xiaozhi/ota/",
		ProtocolVersion: 1,
		OTATimeout:      10 * time.Second,
		SendQueueSize:   64,
	}
}

// DefaultDeviceConfig 返回默认设备信息，身份字段在加载时补全
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		BoardType:  "bread-compact-wifi",
		AppName:    "xiaozhi",
		AppVersion: "1.6.0",
	}
}

// DefaultAudioConfig 返回 16kHz 单声道 60ms 帧
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		Format:          "pcm",
		SampleRate:      16000,
		Channels:        1,
		FrameDurationMS: 60,
		IdleDelay:       10 * time.Millisecond,
		Capture:         DeviceIOConfig{Kind: "command"},
		Playback:        DeviceIOConfig{Kind: "command"},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "voicelink",
		SampleRate:   1.0,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      "127.0.0.1:9091",
		Namespace: "voicelink",
	}
}
