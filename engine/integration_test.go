package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/voicelink/audio"
	"github.com/BaSui01/voicelink/session"
	"github.com/BaSui01/voicelink/transport"
)

// backendTrace 模拟后端观察到的消息
type backendTrace struct {
	hello    map[string]any
	listen   map[string]any
	binaries int
	header   http.Header
}

// 完整会话：握手、开始监听、上行音频、下行音频、后端正常关闭
func TestEngine_WebSocketSession(t *testing.T) {
	traced := make(chan backendTrace, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		tr := backendTrace{header: r.Header.Clone()}
		readJSON := func() map[string]any {
			for {
				typ, data, err := conn.Read(ctx)
				if err != nil {
					return nil
				}
				if typ == websocket.MessageBinary {
					tr.binaries++
					continue
				}
				var m map[string]any
				_ = json.Unmarshal(data, &m)
				return m
			}
		}

		tr.hello = readJSON()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"hello","transport":"websocket","session_id":"s-1"}`))
		tr.listen = readJSON()

		for tr.binaries < 3 {
			if _, _, err := conn.Read(ctx); err != nil {
				break
			}
			tr.binaries++
		}
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{0x10, 0x00, 0x20, 0x00})
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"stt","text":"hello"}`))

		traced <- tr
		// 等待客户端收完下行数据
		time.Sleep(50 * time.Millisecond)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}))
	defer srv.Close()

	link := transport.New(transport.Config{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Header: http.Header{"Device-Id": []string{"aa:bb:cc:dd:ee:ff"}},
	}, zaptest.NewLogger(t))

	capture := &countingCapture{}
	playback := &recordingPlayback{}
	e, err := New(testConfig(), link, audio.PCMCodec{}, capture, playback, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	var tr backendTrace
	select {
	case tr = <-traced:
	case <-time.After(time.Second):
		t.Fatal("backend did not finish")
	}

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", tr.header.Get("Device-Id"))
	assert.Equal(t, "hello", tr.hello["type"])
	assert.Equal(t, "listen", tr.listen["type"])
	assert.Equal(t, "start", tr.listen["state"])
	assert.Equal(t, "s-1", tr.listen["session_id"])
	assert.GreaterOrEqual(t, tr.binaries, 3)

	require.Eventually(t, func() bool { return playback.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []int16{0x10, 0x20}, playback.played()[0])

	assert.False(t, e.Running())
	assert.Equal(t, session.Initial(), e.Snapshot())
	assert.Equal(t, transport.StateClosed, link.State())
}

func TestEngine_WebSocketUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	link := transport.New(transport.Config{URL: url}, zaptest.NewLogger(t))
	e, err := New(testConfig(), link, audio.PCMCodec{}, &countingCapture{}, audio.NullPlayback{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = e.Run(context.Background())
	var cerr *transport.ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, transport.StateFailed, link.State())
}

// 升级握手未完成时 Stop，Run 正常返回
func TestEngine_WebSocketStopDuringHandshake(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(200 * time.Millisecond):
		}
		if conn, err := websocket.Accept(w, r, nil); err == nil {
			_ = conn.CloseNow()
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	link := transport.New(transport.Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, zaptest.NewLogger(t))
	e, err := New(testConfig(), link, audio.PCMCodec{}, &countingCapture{}, audio.NullPlayback{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		e.Stop()
	}()

	assert.NoError(t, e.Run(context.Background()))
	assert.Equal(t, transport.StateClosed, link.State())
	assert.False(t, e.Running())
}
