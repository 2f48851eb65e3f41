package audio

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/voicelink/config"
)

// OpenCapture 按配置打开采集设备
func OpenCapture(cfg config.AudioConfig, logger *zap.Logger) (Capture, error) {
	dev := cfg.Capture
	switch dev.Kind {
	case "command":
		return StartCaptureCommand(dev.Command, dev.Args, cfg.SampleRate, cfg.Channels, logger)
	case "file":
		f, err := os.Open(dev.Path)
		if err != nil {
			return nil, fmt.Errorf("open capture file: %w", err)
		}
		return Paced(NewReaderCapture(f), cfg.FrameDuration()), nil
	case "null":
		return NullCapture(cfg.FrameDuration()), nil
	default:
		return nil, fmt.Errorf("audio: unknown capture kind %q", dev.Kind)
	}
}

// OpenPlayback 按配置打开播放设备
func OpenPlayback(cfg config.AudioConfig, logger *zap.Logger) (Playback, error) {
	dev := cfg.Playback
	switch dev.Kind {
	case "command":
		return StartPlaybackCommand(dev.Command, dev.Args, cfg.SampleRate, cfg.Channels, logger)
	case "file":
		f, err := os.Create(dev.Path)
		if err != nil {
			return nil, fmt.Errorf("create playback file: %w", err)
		}
		return NewWriterPlayback(f), nil
	case "null":
		return NullPlayback{}, nil
	default:
		return nil, fmt.Errorf("audio: unknown playback kind %q", dev.Kind)
	}
}

// ParamsFor 从音频配置推导编解码参数
func ParamsFor(cfg config.AudioConfig) Params {
	return Params{
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		FrameSamples: cfg.BlockSamples(),
	}
}
