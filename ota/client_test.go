package ota

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testDevice() Device {
	return Device{
		MAC:        "30:ed:a0:30:cd:b4",
		BoardType:  "bread-compact-wifi",
		AppName:    "xiaozhi",
		AppVersion: "1.6.0",
		IP:         "192.168.124.38",
	}
}

func TestNewRequest_Encoding(t *testing.T) {
	data, err := json.Marshal(NewRequest(testDevice()))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"flash_size": 16777216,
		"minimum_free_heap_size": 8318916,
		"mac_address": "30:ed:a0:30:cd:b4",
		"chip_model_name": "esp32s3",
		"chip_info": {"model": 9, "cores": 2, "revision": 2, "features": 18},
		"application": {"name": "xiaozhi", "version": "1.6.0"},
		"partition_table": [],
		"ota": {"label": "factory"},
		"board": {"type": "bread-compact-wifi", "ip": "192.168.124.38", "mac": "30:ed:a0:30:cd:b4"}
	}`, string(data))
}

func TestClient_Check(t *testing.T) {
	var gotHeader http.Header
	var gotBody Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeader = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"server_time":{"timestamp":1},"firmware":{"version":"1.6.1","url":"https://example.com/fw.bin"}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, srv.Client(), testDevice(), zaptest.NewLogger(t))
	resp, err := c.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "30:ed:a0:30:cd:b4", gotHeader.Get("Device-Id"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "xiaozhi/1.6.0", gotHeader.Get("User-Agent"))
	assert.Equal(t, "esp32s3", gotBody.ChipModelName)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, resp.Firmware)
	assert.Equal(t, "1.6.1", resp.Firmware.Version)
	assert.Contains(t, string(resp.Body), "server_time")
}

func TestClient_CheckNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	resp, err := NewClient(srv.URL, nil, testDevice(), nil).Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, resp.Firmware)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestClient_CheckErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device not registered", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	resp, err := NewClient(srv.URL, srv.Client(), testDevice(), zaptest.NewLogger(t)).Check(context.Background())
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "device not registered")
}

func TestClient_CheckUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + ln.Addr().String() + "/ota/"
	require.NoError(t, ln.Close())

	_, err = NewClient(url, &http.Client{Timeout: 2 * time.Second}, testDevice(), zaptest.NewLogger(t)).
		Check(context.Background())
	assert.Error(t, err)
}

func TestClient_CheckContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	// 后注册先执行，srv.Close 之前放行 handler
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(srv.URL, srv.Client(), testDevice(), nil).Check(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLocalIP(t *testing.T) {
	ip := LocalIP()
	if ip == "" {
		t.Skip("no non-loopback IPv4 interface")
	}
	assert.NotNil(t, net.ParseIP(ip).To4())
}
