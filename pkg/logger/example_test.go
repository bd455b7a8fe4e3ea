package logger_test

import (
	"fmt"
	"os"

	"github.com/ethan/v380-relay/pkg/logger"
)

// Example showing basic logger usage
func ExampleLogger_basic() {
	// Create logger with default config
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatText

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// Basic logging
	log.Info("session started", "device_id", 123456)
	log.Warn("keepalive deadline approaching", "last_sent", "12s ago")
	log.Error("stream channel closed", "error", "connection reset")
}

// Example showing debug category usage
func ExampleLogger_categories() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelDebug
	cfg.EnableCategory(logger.DebugRTP)
	cfg.EnableCategory(logger.DebugDemux)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// RTP debugging (only logged if DebugRTP enabled)
	log.DebugRTPPacket(12345, 90000, 96, 1200)

	// demux debugging (only logged if DebugDemux enabled)
	log.DebugFrame("i-frame", 15234)

	// Generic category logging
	log.DebugRTP("packet sent", "seq", 12345)
	log.DebugDemux("frame reassembled", "fragments", 4)
}

// Example showing command-line flags integration
func ExampleFlags() {
	// In main.go:
	// import (
	//     "flag"
	//     "github.com/ethan/v380-relay/pkg/logger"
	// )
	//
	// fs := flag.NewFlagSet("v380stream", flag.ExitOnError)
	// logFlags := logger.RegisterFlags(fs)
	// fs.Parse(os.Args[1:])
	//
	// logConfig, _ := logFlags.ToConfig()
	// log, _ := logger.New(logConfig)
	// defer log.Close()

	fmt.Println("See cmd/v380stream/main.go for complete example")
}

// Example showing JSON format output
func ExampleLogger_json() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = "stream.json"

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("stream.json") // Cleanup

	log.Info("login succeeded",
		"device_id", 123456,
		"handle", 987654,
		"duration_ms", 250)

	// Output will be in JSON format:
	// {"time":"...","level":"INFO","msg":"login succeeded","device_id":123456,"handle":987654,"duration_ms":250}
}

// Example showing conditional debug logging
func ExampleLogger_conditional() {
	cfg := logger.NewConfig()
	cfg.EnableCategory(logger.DebugRTP)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// This will only execute if DebugRTP is enabled
	payload := make([]byte, 1024)
	log.DebugRTPPayload(12345, payload) // Only logs first 32 bytes

	// Category methods automatically check if enabled
	// No manual check needed - zero cost if disabled
	log.DebugRTP("packet sent", "seq", 12345)
}

func computeExpensiveStats() string {
	return "expensive computation result"
}
