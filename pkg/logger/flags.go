package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel      string
	LogFormat     string
	LogFile       string
	DebugControl  bool
	DebugRegister bool
	DebugStream   bool
	DebugDemux    bool
	DebugCrypto   bool
	DebugRTP      bool
	DebugRTSP     bool
	DebugAll      bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	// Debug category flags
	fs.BoolVar(&f.DebugControl, "debug-control", false,
		"Enable control-channel login debugging (JSON-RPC requests and responses)")
	fs.BoolVar(&f.DebugRegister, "debug-register", false,
		"Enable cloud-registration handshake debugging")
	fs.BoolVar(&f.DebugStream, "debug-stream", false,
		"Enable stream-channel handshake and keepalive debugging")
	fs.BoolVar(&f.DebugDemux, "debug-demux", false,
		"Enable packet demultiplexer debugging (fragment reassembly)")
	fs.BoolVar(&f.DebugCrypto, "debug-crypto", false,
		"Enable decrypt-stage debugging (key derivation, block counts)")
	fs.BoolVar(&f.DebugRTP, "debug-rtp", false,
		"Enable detailed RTP packet debugging (sequence, timestamp, payload)")
	fs.BoolVar(&f.DebugRTSP, "debug-rtsp", false,
		"Enable RTSP protocol debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	// Parse log level
	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	// Parse format
	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	// Set output file
	cfg.OutputFile = f.LogFile

	// Enable debug categories
	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		// Force debug level when any debug category is enabled
		cfg.Level = LevelDebug
	} else {
		if f.DebugControl {
			cfg.EnableCategory(DebugControl)
			cfg.Level = LevelDebug
		}
		if f.DebugRegister {
			cfg.EnableCategory(DebugRegister)
			cfg.Level = LevelDebug
		}
		if f.DebugStream {
			cfg.EnableCategory(DebugStream)
			cfg.Level = LevelDebug
		}
		if f.DebugDemux {
			cfg.EnableCategory(DebugDemux)
			cfg.Level = LevelDebug
		}
		if f.DebugCrypto {
			cfg.EnableCategory(DebugCrypto)
			cfg.Level = LevelDebug
		}
		if f.DebugRTP {
			cfg.EnableCategory(DebugRTP)
			cfg.Level = LevelDebug
		}
		if f.DebugRTSP {
			cfg.EnableCategory(DebugRTSP)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./v380stream -device-id 123456 -password secret

  Enable DEBUG level:
    ./v380stream --log-level debug
    ./v380stream -l debug

  Log to file:
    ./v380stream --log-file stream.log
    ./v380stream -o stream.log

  JSON format for structured logging:
    ./v380stream --log-format json -o stream.json

  Debug the demultiplexer only:
    ./v380stream --debug-demux

  Debug the control-channel login only:
    ./v380stream --debug-control

  Debug multiple categories:
    ./v380stream --debug-control --debug-stream --debug-demux

  Debug everything:
    ./v380stream --debug-all -o debug.log

  Production logging (WARN level, JSON to file):
    ./v380stream -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		if f.DebugControl {
			debugCategories = append(debugCategories, "control")
		}
		if f.DebugRegister {
			debugCategories = append(debugCategories, "register")
		}
		if f.DebugStream {
			debugCategories = append(debugCategories, "stream")
		}
		if f.DebugDemux {
			debugCategories = append(debugCategories, "demux")
		}
		if f.DebugCrypto {
			debugCategories = append(debugCategories, "crypto")
		}
		if f.DebugRTP {
			debugCategories = append(debugCategories, "rtp")
		}
		if f.DebugRTSP {
			debugCategories = append(debugCategories, "rtsp")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
