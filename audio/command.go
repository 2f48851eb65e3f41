package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// DefaultCaptureArgs 返回 ffmpeg 采集默认麦克风、输出 s16le 到 stdout 的参数
func DefaultCaptureArgs(goos string, sampleRate, channels int) []string {
	var input []string
	switch goos {
	case "darwin":
		// none:0 只打开音频设备，不打开摄像头
		input = []string{"-f", "avfoundation", "-i", "none:0"}
	case "windows":
		input = []string{"-f", "dshow", "-i", "audio=default"}
	default:
		input = []string{"-f", "pulse", "-i", "default"}
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	return append(args,
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-",
	)
}

// DefaultPlaybackArgs 返回 ffplay 从 stdin 播放 s16le 的参数。
// ffplay 不接受 -ac，声道用 -ch_layout 指定。
func DefaultPlaybackArgs(sampleRate, channels int) []string {
	layout := "mono"
	if channels == 2 {
		layout = "stereo"
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", layout,
		"-ar", strconv.Itoa(sampleRate),
		"-i", "-",
	}
}

// process 外部进程的公共生命周期
type process struct {
	cmd    *exec.Cmd
	logger *zap.Logger
	once   sync.Once
}

func (p *process) stop() error {
	var err error
	p.once.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("kill %s: %w", p.cmd.Path, kerr)
		}
		_ = p.cmd.Wait()
		p.logger.Debug("audio process stopped", zap.String("command", p.cmd.Path))
	})
	return err
}

// CommandCapture 从外部进程 stdout 读取 s16le 采样
type CommandCapture struct {
	*ReaderCapture
	proc *process
}

// StartCaptureCommand 启动采集进程。name 为空时使用 ffmpeg 与平台默认参数。
func StartCaptureCommand(name string, args []string, sampleRate, channels int, logger *zap.Logger) (*CommandCapture, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = "ffmpeg"
		if len(args) == 0 {
			args = DefaultCaptureArgs(runtime.GOOS, sampleRate, channels)
		}
	}
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture %s: %w", name, err)
	}
	logger.Info("capture process started", zap.String("command", name), zap.Strings("args", args))
	return &CommandCapture{
		ReaderCapture: &ReaderCapture{r: stdout},
		proc:          &process{cmd: cmd, logger: logger},
	}, nil
}

// Close 结束采集进程
func (c *CommandCapture) Close() error {
	return c.proc.stop()
}

// CommandPlayback 把采样写入外部进程 stdin
type CommandPlayback struct {
	*WriterPlayback
	stdin io.WriteCloser
	proc  *process
}

// StartPlaybackCommand 启动播放进程。name 为空时使用 ffplay 与默认参数。
func StartPlaybackCommand(name string, args []string, sampleRate, channels int, logger *zap.Logger) (*CommandPlayback, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = "ffplay"
		if len(args) == 0 {
			args = DefaultPlaybackArgs(sampleRate, channels)
		}
	}
	cmd := exec.Command(name, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("playback stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start playback %s: %w", name, err)
	}
	logger.Info("playback process started", zap.String("command", name), zap.Strings("args", args))
	return &CommandPlayback{
		WriterPlayback: &WriterPlayback{w: stdin},
		stdin:          stdin,
		proc:           &process{cmd: cmd, logger: logger},
	}, nil
}

// Close 关闭 stdin 并结束播放进程
func (p *CommandPlayback) Close() error {
	_ = p.stdin.Close()
	return p.proc.stop()
}
