// =============================================================================
// 📦 voicelink 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("voicelink.yaml").
//	    WithEnvPrefix("VOICELINK").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 voicelink 的完整配置结构
type Config struct {
	// Backend 语音后端连接
	Backend BackendConfig `yaml:"backend" env:"BACKEND"`

	// Device 设备身份
	Device DeviceConfig `yaml:"device" env:"DEVICE"`

	// Audio 音频参数与采集/播放设备
	Audio AudioConfig `yaml:"audio" env:"AUDIO"`

	// TLS 证书校验策略
	TLS TLSConfig `yaml:"tls" env:"TLS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标端点
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// BackendConfig 后端配置
type BackendConfig struct {
	// WebSocket 地址，必须是 wss://
	WSURL string `yaml:"ws_url" env:"WS_URL"`
	// OTA 检查地址，为空时跳过
	OTAURL string `yaml:"ota_url" env:"OTA_URL"`
	// Bearer token
	AccessToken string `yaml:"access_token" env:"ACCESS_TOKEN"`
	// Protocol-Version 头与 hello.version
	ProtocolVersion int `yaml:"protocol_version" env:"PROTOCOL_VERSION"`
	// 额外的升级请求头（仅 YAML）
	Headers map[string]string `yaml:"headers" env:"-"`
	// 握手超时，0 表示不限制
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	// OTA 请求超时
	OTATimeout time.Duration `yaml:"ota_timeout" env:"OTA_TIMEOUT"`
	// 发送队列长度
	SendQueueSize int `yaml:"send_queue_size" env:"SEND_QUEUE_SIZE"`
}

// DeviceConfig 设备身份
type DeviceConfig struct {
	// Device-Id，MAC 地址格式
	MAC string `yaml:"mac" env:"MAC"`
	// Client-Id，为空时生成 UUID
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	// OTA 上报的板型
	BoardType string `yaml:"board_type" env:"BOARD_TYPE"`
	// OTA 上报的固件名称与版本
	AppName    string `yaml:"app_name" env:"APP_NAME"`
	AppVersion string `yaml:"app_version" env:"APP_VERSION"`
}

// AudioConfig 音频配置
type AudioConfig struct {
	// 编码格式: pcm, opus
	Format string `yaml:"format" env:"FORMAT"`
	// 采样率 Hz
	SampleRate int `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 声道数: 1, 2
	Channels int `yaml:"channels" env:"CHANNELS"`
	// 每帧时长（毫秒）
	FrameDurationMS int `yaml:"frame_duration_ms" env:"FRAME_DURATION_MS"`
	// 未监听时采集循环的让出间隔
	IdleDelay time.Duration `yaml:"idle_delay" env:"IDLE_DELAY"`
	// 麦克风
	Capture DeviceIOConfig `yaml:"capture" env:"CAPTURE"`
	// 扬声器
	Playback DeviceIOConfig `yaml:"playback" env:"PLAYBACK"`
}

// DeviceIOConfig 采集/播放设备
type DeviceIOConfig struct {
	// 类型: command, file, null
	Kind string `yaml:"kind" env:"KIND"`
	// 外部命令，为空时使用 ffmpeg/ffplay
	Command string `yaml:"command" env:"COMMAND"`
	// 命令参数，为空时按平台生成
	Args []string `yaml:"args" env:"ARGS"`
	// file 类型的路径
	Path string `yaml:"path" env:"PATH"`
}

// TLSConfig 证书校验策略
type TLSConfig struct {
	// 跳过证书校验，仅用于联调
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
	// 自定义 CA（PEM）
	CAFile string `yaml:"ca_file" env:"CA_FILE"`
	// 覆盖 SNI / 校验主机名
	ServerName string `yaml:"server_name" env:"SERVER_NAME"`
	// 允许 ws:// 与 http://
	AllowPlaintext bool `yaml:"allow_plaintext" env:"ALLOW_PLAINTEXT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// OTLP 连接不使用 TLS
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标端点配置
type MetricsConfig struct {
	// 是否启用 /metrics
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VOICELINK",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.Device.fillIdentity()

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// fillIdentity 补全缺省的设备身份
func (d *DeviceConfig) fillIdentity() {
	if d.ClientID == "" {
		d.ClientID = uuid.NewString()
	}
	if d.MAC == "" {
		d.MAC = hardwareAddr()
	}
}

// hardwareAddr 返回第一块非回环网卡的 MAC，找不到时返回空串
func hardwareAddr() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var validCaptureKinds = map[string]bool{"command": true, "file": true, "null": true}

// Validate 验证配置，一次返回所有错误
func (c *Config) Validate() error {
	var errs []error

	if err := checkURL(c.Backend.WSURL, "wss", "ws", c.TLS.AllowPlaintext); err != nil {
		errs = append(errs, fmt.Errorf("backend.ws_url: %w", err))
	}
	if c.Backend.OTAURL != "" {
		if err := checkURL(c.Backend.OTAURL, "https", "http", c.TLS.AllowPlaintext); err != nil {
			errs = append(errs, fmt.Errorf("backend.ota_url: %w", err))
		}
	}
	if c.Backend.ProtocolVersion <= 0 {
		errs = append(errs, errors.New("backend.protocol_version must be positive"))
	}
	if c.Device.MAC == "" {
		errs = append(errs, errors.New("device.mac is required"))
	}

	if c.Audio.Format == "" {
		errs = append(errs, errors.New("audio.format is required"))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		errs = append(errs, errors.New("audio.channels must be 1 or 2"))
	}
	if c.Audio.FrameDurationMS <= 0 {
		errs = append(errs, errors.New("audio.frame_duration_ms must be positive"))
	}
	if c.Audio.IdleDelay <= 0 {
		errs = append(errs, errors.New("audio.idle_delay must be positive"))
	}
	if !validCaptureKinds[c.Audio.Capture.Kind] {
		errs = append(errs, fmt.Errorf("audio.capture.kind %q is not one of command, file, null", c.Audio.Capture.Kind))
	}
	if !validCaptureKinds[c.Audio.Playback.Kind] {
		errs = append(errs, fmt.Errorf("audio.playback.kind %q is not one of command, file, null", c.Audio.Playback.Kind))
	}

	if c.TLS.InsecureSkipVerify && c.TLS.CAFile != "" {
		errs = append(errs, errors.New("tls.insecure_skip_verify and tls.ca_file are mutually exclusive"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}

func checkURL(raw, secure, plain string, allowPlain bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch {
	case u.Host == "":
		return fmt.Errorf("missing host in %q", raw)
	case u.Scheme == secure:
		return nil
	case u.Scheme == plain && allowPlain:
		return nil
	case u.Scheme == plain:
		return fmt.Errorf("%s:// requires tls.allow_plaintext", plain)
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// FrameDuration 返回每帧时长
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameDurationMS) * time.Millisecond
}

// BlockSamples 返回每次采集的样本数（含所有声道）
func (a AudioConfig) BlockSamples() int {
	return a.SampleRate * a.FrameDurationMS / 1000 * a.Channels
}

// ConnectHeaders 返回 WebSocket 升级请求头
func (c *Config) ConnectHeaders() http.Header {
	h := http.Header{}
	for k, v := range c.Backend.Headers {
		h.Set(k, v)
	}
	if c.Backend.AccessToken != "" {
		h.Set("Authorization", "Bearer "+c.Backend.AccessToken)
	}
	h.Set("Protocol-Version", strconv.Itoa(c.Backend.ProtocolVersion))
	if c.Device.MAC != "" {
		h.Set("Device-Id", c.Device.MAC)
	}
	if c.Device.ClientID != "" {
		h.Set("Client-Id", c.Device.ClientID)
	}
	return h
}
