package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Capture 麦克风采样源
type Capture interface {
	// ReadBlock 阻塞读取 n 个交织采样。源耗尽时返回 io.EOF。
	ReadBlock(n int) ([]int16, error)
	Close() error
}

// Playback 扬声器采样输出
type Playback interface {
	WriteBlock(samples []int16) error
	Close() error
}

// =============================================================================
// io 流适配
// =============================================================================

// ReaderCapture 从 s16le 字节流读取采样
type ReaderCapture struct {
	r      io.Reader
	closer io.Closer
	buf    []byte
}

// NewReaderCapture r 实现 io.Closer 时 Close 会关闭它
func NewReaderCapture(r io.Reader) *ReaderCapture {
	c := &ReaderCapture{r: r}
	if closer, ok := r.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// ReadBlock 读取完整的一块；流在块中间结束时丢弃残块并返回 io.EOF
func (c *ReaderCapture) ReadBlock(n int) ([]int16, error) {
	if n <= 0 {
		return nil, fmt.Errorf("audio: invalid block size %d", n)
	}
	if cap(c.buf) < 2*n {
		c.buf = make([]byte, 2*n)
	}
	buf := c.buf[:2*n]
	if _, err := io.ReadFull(c.r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return bytesToSamples(buf), nil
}

func (c *ReaderCapture) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// WriterPlayback 以 s16le 写入采样
type WriterPlayback struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	buf    []byte
}

// NewWriterPlayback w 实现 io.Closer 时 Close 会关闭它
func NewWriterPlayback(w io.Writer) *WriterPlayback {
	p := &WriterPlayback{w: w}
	if closer, ok := w.(io.Closer); ok {
		p.closer = closer
	}
	return p
}

func (p *WriterPlayback) WriteBlock(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap(p.buf) < 2*len(samples) {
		p.buf = make([]byte, 2*len(samples))
	}
	buf := p.buf[:2*len(samples)]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	_, err := p.w.Write(buf)
	return err
}

func (p *WriterPlayback) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// =============================================================================
// 节拍与空设备
// =============================================================================

// pacedCapture 把读取节奏限制为每块 interval，模拟实时设备
type pacedCapture struct {
	Capture
	interval time.Duration
	next     time.Time
	sleep    func(time.Duration)
}

// Paced 包装一个非实时源（文件、静音），每块至少间隔 interval
func Paced(c Capture, interval time.Duration) Capture {
	return &pacedCapture{Capture: c, interval: interval, sleep: time.Sleep}
}

func (p *pacedCapture) ReadBlock(n int) ([]int16, error) {
	now := time.Now()
	if p.next.IsZero() {
		p.next = now
	}
	if wait := p.next.Sub(now); wait > 0 {
		p.sleep(wait)
	}
	p.next = p.next.Add(p.interval)
	// 落后太多时重新对齐，避免突发读取
	if behind := time.Since(p.next); behind > 4*p.interval {
		p.next = time.Now()
	}
	return p.Capture.ReadBlock(n)
}

// silence 永不耗尽的静音源
type silence struct{}

func (silence) ReadBlock(n int) ([]int16, error) {
	if n <= 0 {
		return nil, fmt.Errorf("audio: invalid block size %d", n)
	}
	return make([]int16, n), nil
}

func (silence) Close() error { return nil }

// NullCapture 返回按帧时长节拍的静音源
func NullCapture(frame time.Duration) Capture {
	return Paced(silence{}, frame)
}

// NullPlayback 丢弃所有采样
type NullPlayback struct{}

func (NullPlayback) WriteBlock([]int16) error { return nil }
func (NullPlayback) Close() error             { return nil }
