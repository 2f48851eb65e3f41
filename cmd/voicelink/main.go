// =============================================================================
// voicelink 主入口
// =============================================================================
// 使用方法:
//
//	voicelink run                        # 连接后端并开始会话
//	voicelink run --config voicelink.yaml
//	voicelink run --stdin-exit           # 回车结束会话
//	voicelink ota --config voicelink.yaml
//	voicelink health --addr http://127.0.0.1:9091
//	voicelink version
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/voicelink/config"
	"github.com/BaSui01/voicelink/internal/credentials"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runSession(os.Args[2:]))
	case "ota":
		os.Exit(runOTA(os.Args[2:]))
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🎙️ run 命令
// =============================================================================

func runSession(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	stdinExit := fs.Bool("stdin-exit", false, "End the session when Enter is pressed")
	skipOTA := fs.Bool("skip-ota", false, "Skip the OTA check before connecting")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *skipOTA {
		cfg.Backend.OTAURL = ""
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting voicelink",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("device_id", cfg.Device.MAC),
		zap.String("client_id", cfg.Device.ClientID),
	)

	if !credentials.Check(cfg.Backend.AccessToken, time.Now(), logger) {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *stdinExit {
		go watchStdin(os.Stdin, stop, logger)
	}

	client := NewClient(cfg, logger)
	if err := client.Start(ctx); err != nil {
		logger.Error("Failed to start client", zap.Error(err))
		client.Shutdown()
		return 1
	}

	err = client.Run(ctx)
	client.Shutdown()
	if err != nil {
		logger.Error("Session ended with error", zap.Error(err))
		return 1
	}
	logger.Info("voicelink stopped")
	return 0
}

// watchStdin 读到一行或输入结束时调用 stop
func watchStdin(r io.Reader, stop func(), logger *zap.Logger) {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if err != nil || (n == 1 && buf[0] == '\n') {
			break
		}
	}
	logger.Info("stdin exit requested")
	stop()
}

// =============================================================================
// 📡 ota 命令
// =============================================================================

func runOTA(args []string) int {
	fs := flag.NewFlagSet("ota", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cfg.Backend.OTAURL == "" {
		fmt.Fprintln(os.Stderr, "backend.ota_url is not configured")
		return 1
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	resp, err := NewClient(cfg, logger).CheckOTA(context.Background())
	if resp != nil {
		out, _ := json.MarshalIndent(resp.Body, "", "  ")
		fmt.Printf("status: %d\n%s\n", resp.StatusCode, out)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "OTA check failed: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:9091", "Metrics endpoint address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Println(string(body))
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("voicelink %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`voicelink - real-time voice assistant client

Usage:
  voicelink <command> [options]

Commands:
  run       Connect to the backend and stream audio
  ota       Run the OTA version check and print the response
  health    Query a running client's /healthz endpoint
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>   Path to configuration file (YAML)
  --stdin-exit      End the session when Enter is pressed
  --skip-ota        Do not run the OTA check before connecting

Environment:
  VOICELINK_BACKEND_WS_URL, VOICELINK_BACKEND_ACCESS_TOKEN, VOICELINK_DEVICE_MAC, ...

Examples:
  voicelink run --config /etc/voicelink/voicelink.yaml
  VOICELINK_LOG_LEVEL=debug voicelink run --stdin-exit
  voicelink health --addr http://127.0.0.1:9091
  voicelink version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
