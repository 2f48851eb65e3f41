// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicelink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// validConfig 默认配置加上固定的设备身份
func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Device.MAC = "30:ed:a0:30:cd:b4"
	cfg.Device.ClientID = "af5c0c91-5d4e-4c0a-9d12-000000000001"
	return cfg
}

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "wss://api.tenclass.net/xiaozhi/v1/", cfg.Backend.WSURL)
	assert.Equal(t, 1, cfg.Backend.ProtocolVersion)
	assert.Zero(t, cfg.Backend.HandshakeTimeout)

	assert.Equal(t, "pcm", cfg.Audio.Format)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 60, cfg.Audio.FrameDurationMS)
	assert.Equal(t, 10*time.Millisecond, cfg.Audio.IdleDelay)
	assert.Equal(t, "command", cfg.Audio.Capture.Kind)

	assert.False(t, cfg.TLS.InsecureSkipVerify)
	assert.False(t, cfg.TLS.AllowPlaintext)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "voicelink", cfg.Metrics.Namespace)
}

func TestAudioConfig_BlockSamples(t *testing.T) {
	tests := []struct {
		name     string
		audio    AudioConfig
		expected int
	}{
		{"16k mono 60ms", AudioConfig{SampleRate: 16000, Channels: 1, FrameDurationMS: 60}, 960},
		{"16k mono 20ms", AudioConfig{SampleRate: 16000, Channels: 1, FrameDurationMS: 20}, 320},
		{"48k stereo 20ms", AudioConfig{SampleRate: 48000, Channels: 2, FrameDurationMS: 20}, 1920},
		{"24k mono 60ms", AudioConfig{SampleRate: 24000, Channels: 1, FrameDurationMS: 60}, 1440},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.audio.BlockSamples())
		})
	}
	assert.Equal(t, 60*time.Millisecond, DefaultAudioConfig().FrameDuration())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	// client_id 自动生成
	_, err = uuid.Parse(cfg.Device.ClientID)
	assert.NoError(t, err)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
backend:
  ws_url: "wss://voice.example.com/v1/"
  access_token: "secret"
  handshake_timeout: 3s
  headers:
    X-Trace: "abc"
device:
  mac: "aa:bb:cc:dd:ee:ff"
  client_id: "fixed-client"
audio:
  sample_rate: 24000
  frame_duration_ms: 20
  capture:
    kind: file
    path: /tmp/in.raw
  playback:
    kind: "null"
tls:
  ca_file: /etc/voicelink/ca.pem
log:
  level: debug
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://voice.example.com/v1/", cfg.Backend.WSURL)
	assert.Equal(t, "secret", cfg.Backend.AccessToken)
	assert.Equal(t, 3*time.Second, cfg.Backend.HandshakeTimeout)
	assert.Equal(t, "abc", cfg.Backend.Headers["X-Trace"])
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", cfg.Device.MAC)
	assert.Equal(t, "fixed-client", cfg.Device.ClientID)
	assert.Equal(t, 24000, cfg.Audio.SampleRate)
	assert.Equal(t, 20, cfg.Audio.FrameDurationMS)
	assert.Equal(t, 1, cfg.Audio.Channels, "unset fields keep defaults")
	assert.Equal(t, "file", cfg.Audio.Capture.Kind)
	assert.Equal(t, "/tmp/in.raw", cfg.Audio.Capture.Path)
	assert.Equal(t, "null", cfg.Audio.Playback.Kind)
	assert.Equal(t, "/etc/voicelink/ca.pem", cfg.TLS.CAFile)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("VOICELINK_BACKEND_WS_URL", "wss://env.example.com/")
	t.Setenv("VOICELINK_BACKEND_PROTOCOL_VERSION", "2")
	t.Setenv("VOICELINK_DEVICE_MAC", "11:22:33:44:55:66")
	t.Setenv("VOICELINK_AUDIO_IDLE_DELAY", "25ms")
	t.Setenv("VOICELINK_AUDIO_CAPTURE_ARGS", "-f, alsa ,-i,hw:0")
	t.Setenv("VOICELINK_TLS_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("VOICELINK_TELEMETRY_SAMPLE_RATE", "0.25")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example.com/", cfg.Backend.WSURL)
	assert.Equal(t, 2, cfg.Backend.ProtocolVersion)
	assert.Equal(t, "11:22:33:44:55:66", cfg.Device.MAC)
	assert.Equal(t, 25*time.Millisecond, cfg.Audio.IdleDelay)
	assert.Equal(t, []string{"-f", "alsa", "-i", "hw:0"}, cfg.Audio.Capture.Args)
	assert.True(t, cfg.TLS.InsecureSkipVerify)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRate, 1e-9)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
backend:
  access_token: "from-yaml"
audio:
  sample_rate: 8000
`)
	t.Setenv("VOICELINK_BACKEND_ACCESS_TOKEN", "from-env")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Backend.AccessToken)
	assert.Equal(t, 8000, cfg.Audio.SampleRate)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_DEVICE_CLIENT_ID", "custom-client")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "custom-client", cfg.Device.ClientID)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("VOICELINK_AUDIO_SAMPLE_RATE", "fast")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VOICELINK_AUDIO_SAMPLE_RATE")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("VOICELINK_AUDIO_CHANNELS", "3")

	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/voicelink.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "pcm", cfg.Audio.Format)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "audio:\n  sample_rate: [invalid\n")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{
			name:    "plaintext ws rejected",
			modify:  func(c *Config) { c.Backend.WSURL = "ws://localhost:8000/" },
			wantErr: "allow_plaintext",
		},
		{
			name: "plaintext ws allowed explicitly",
			modify: func(c *Config) {
				c.Backend.WSURL = "ws://localhost:8000/"
				c.Backend.OTAURL = "http://localhost:8000/ota/"
				c.TLS.AllowPlaintext = true
			},
		},
		{
			name:    "unsupported scheme",
			modify:  func(c *Config) { c.Backend.WSURL = "tcp://localhost:8000" },
			wantErr: "unsupported scheme",
		},
		{
			name:    "missing host",
			modify:  func(c *Config) { c.Backend.WSURL = "wss:///path" },
			wantErr: "missing host",
		},
		{
			name:   "empty ota url skips check",
			modify: func(c *Config) { c.Backend.OTAURL = "" },
		},
		{
			name:    "missing mac",
			modify:  func(c *Config) { c.Device.MAC = "" },
			wantErr: "device.mac",
		},
		{
			name:    "zero sample rate",
			modify:  func(c *Config) { c.Audio.SampleRate = 0 },
			wantErr: "sample_rate",
		},
		{
			name:    "three channels",
			modify:  func(c *Config) { c.Audio.Channels = 3 },
			wantErr: "channels",
		},
		{
			name:   "non-standard frame duration is allowed",
			modify: func(c *Config) { c.Audio.FrameDurationMS = 25 },
		},
		{
			name:    "zero idle delay",
			modify:  func(c *Config) { c.Audio.IdleDelay = 0 },
			wantErr: "idle_delay",
		},
		{
			name:    "unknown capture kind",
			modify:  func(c *Config) { c.Audio.Capture.Kind = "portaudio" },
			wantErr: "capture.kind",
		},
		{
			name: "insecure with ca file",
			modify: func(c *Config) {
				c.TLS.InsecureSkipVerify = true
				c.TLS.CAFile = "/tmp/ca.pem"
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "metrics without addr",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Addr = ""
			},
			wantErr: "metrics.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Audio.SampleRate = -1
	cfg.Audio.Channels = 0
	cfg.Audio.FrameDurationMS = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_rate")
	assert.Contains(t, err.Error(), "channels")
	assert.Contains(t, err.Error(), "frame_duration_ms")
}

func TestConfig_ConnectHeaders(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.AccessToken = "test-token"
	cfg.Backend.Headers = map[string]string{"X-Region": "cn", "Client-Id": "overridden"}

	h := cfg.ConnectHeaders()
	assert.Equal(t, "Bearer test-token", h.Get("Authorization"))
	assert.Equal(t, "1", h.Get("Protocol-Version"))
	assert.Equal(t, "30:ed:a0:30:cd:b4", h.Get("Device-Id"))
	assert.Equal(t, cfg.Device.ClientID, h.Get("Client-Id"), "identity headers win over extras")
	assert.Equal(t, "cn", h.Get("X-Region"))

	cfg.Backend.AccessToken = ""
	assert.Empty(t, cfg.ConnectHeaders().Get("Authorization"))
}

// --- MustLoad 测试 ---

func TestMustLoad(t *testing.T) {
	path := writeConfig(t, "audio:\n  channels: 2\n")
	assert.NotPanics(t, func() {
		cfg := MustLoad(path)
		assert.Equal(t, 2, cfg.Audio.Channels)
	})

	bad := writeConfig(t, "invalid: [yaml")
	assert.Panics(t, func() { MustLoad(bad) })
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("VOICELINK_AUDIO_FORMAT", "opus")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "opus", cfg.Audio.Format)
}
