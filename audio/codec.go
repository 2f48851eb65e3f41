package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// FormatPCM 16 位小端 PCM，不压缩
const FormatPCM = "pcm"

var (
	// ErrUnsupportedFormat 没有注册该格式的编解码器
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrDecode 压缩帧无法解码
	ErrDecode = errors.New("audio: decode failed")
)

// Params 编解码参数
type Params struct {
	SampleRate   int
	Channels     int
	FrameSamples int // 每帧交织采样数
}

// Codec 采样块与压缩帧互转
type Codec interface {
	Format() string
	// Encode 返回 nil 或空切片表示本块不产生帧
	Encode(samples []int16) ([]byte, error)
	// Decode 失败时返回包装了 ErrDecode 的错误
	Decode(frame []byte) ([]int16, error)
}

// CodecFactory 按参数构造编解码器
type CodecFactory func(p Params) (Codec, error)

var (
	codecsMu sync.RWMutex
	codecs   = map[string]CodecFactory{
		FormatPCM: func(Params) (Codec, error) { return PCMCodec{}, nil },
	}
)

// RegisterCodec 注册编解码器，同名覆盖
func RegisterCodec(format string, factory CodecFactory) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[format] = factory
}

// NewCodec 按格式名构造编解码器
func NewCodec(format string, p Params) (Codec, error) {
	codecsMu.RLock()
	factory, ok := codecs[format]
	codecsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnsupportedFormat, format, Formats())
	}
	return factory(p)
}

// Formats 返回已注册的格式名
func Formats() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	out := make([]string, 0, len(codecs))
	for name := range codecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PCMCodec 16 位小端直通编解码
type PCMCodec struct{}

func (PCMCodec) Format() string { return FormatPCM }

func (PCMCodec) Encode(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out, nil
}

func (PCMCodec) Decode(frame []byte) ([]int16, error) {
	if len(frame)%2 != 0 {
		return nil, fmt.Errorf("%w: odd frame length %d", ErrDecode, len(frame))
	}
	return bytesToSamples(frame), nil
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}
