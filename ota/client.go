package ota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/voicelink/internal/telemetry"
)

// maxResponseBytes 响应体读取上限
const maxResponseBytes = 1 << 20

// Device 上报的设备身份
type Device struct {
	MAC        string
	BoardType  string
	AppName    string
	AppVersion string
	IP         string
}

// ChipInfo 芯片信息
type ChipInfo struct {
	Model    int `json:"model"`
	Cores    int `json:"cores"`
	Revision int `json:"revision"`
	Features int `json:"features"`
}

// Application 固件信息
type Application struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Board 板型信息
type Board struct {
	Type string `json:"type"`
	IP   string `json:"ip"`
	MAC  string `json:"mac"`
}

// Request 上报的设备描述
type Request struct {
	FlashSize           int               `json:"flash_size"`
	MinimumFreeHeapSize int               `json:"minimum_free_heap_size"`
	MACAddress          string            `json:"mac_address"`
	ChipModelName       string            `json:"chip_model_name"`
	ChipInfo            ChipInfo          `json:"chip_info"`
	Application         Application       `json:"application"`
	PartitionTable      []json.RawMessage `json:"partition_table"`
	OTA                 struct {
		Label string `json:"label"`
	} `json:"ota"`
	Board Board `json:"board"`
}

// NewRequest 构造 esp32s3 面包板设备的描述
func NewRequest(d Device) Request {
	req := Request{
		FlashSize:           16 << 20,
		MinimumFreeHeapSize: 8318916,
		MACAddress:          d.MAC,
		ChipModelName:       "esp32s3",
		ChipInfo:            ChipInfo{Model: 9, Cores: 2, Revision: 2, Features: 18},
		Application:         Application{Name: d.AppName, Version: d.AppVersion},
		PartitionTable:      []json.RawMessage{},
		Board:               Board{Type: d.BoardType, IP: d.IP, MAC: d.MAC},
	}
	req.OTA.Label = "factory"
	return req
}

// Firmware 响应中的固件版本，字段可能缺失
type Firmware struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Response OTA 响应
type Response struct {
	StatusCode int
	Body       json.RawMessage
	Firmware   *Firmware
}

// Client OTA 客户端
type Client struct {
	url    string
	http   *http.Client
	device Device
	agent  string
	logger *zap.Logger
	tracer trace.Tracer
}

// NewClient 创建客户端。httpClient 为 nil 时使用 http.DefaultClient。
func NewClient(url string, httpClient *http.Client, device Device, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    url,
		http:   httpClient,
		device: device,
		agent:  device.AppName + "/" + device.AppVersion,
		logger: logger.With(zap.String("component", "ota")),
		tracer: telemetry.Tracer(),
	}
}

// Check 上报设备描述并返回响应。非 2xx 状态返回错误，响应体仍在 Response 中。
func (c *Client) Check(ctx context.Context) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "ota.check",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("ota.url", c.url)))
	defer span.End()

	payload, err := json.Marshal(NewRequest(c.device))
	if err != nil {
		return nil, fmt.Errorf("encode ota request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ota request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Device-Id", c.device.MAC)
	req.Header.Set("User-Agent", c.agent)

	c.logger.Debug("ota request", zap.ByteString("body", payload))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("ota request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read ota response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	out := &Response{StatusCode: resp.StatusCode, Body: body}
	var parsed struct {
		Firmware *Firmware `json:"firmware"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		out.Firmware = parsed.Firmware
	}

	c.logger.Info("ota response",
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		return out, fmt.Errorf("ota: unexpected status %s", resp.Status)
	}
	return out, nil
}

// LocalIP 返回第一个非回环 IPv4 地址，找不到时返回空串
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
