// Package config parses the command-line surface the recorder core
// consumes: device credentials, server overrides and output options.
package config

import (
	"flag"
	"fmt"

	"github.com/ethan/v380-relay/pkg/v380"
)

// noHandleOverride is the sentinel -handle default meaning "use the
// handle returned by login instead of overriding it".
const noHandleOverride = -1

// Options holds the invocation's resolved settings.
type Options struct {
	DeviceID       int
	Password       string
	Server         string
	HandleOverride int
	Duration       int
	OutputDir      string
	EnableAudio    bool
	EnableRTSP     bool
	RTSPPort       int
}

// HasHandleOverride reports whether -handle was given a real value.
func (o *Options) HasHandleOverride() bool {
	return o.HandleOverride != noHandleOverride
}

// RegisterFlags adds the core's CLI flags to fs and returns an
// Options populated once fs.Parse has run.
func RegisterFlags(fs *flag.FlagSet) *Options {
	opts := &Options{}

	fs.IntVar(&opts.DeviceID, "device-id", 0, "camera device id (required)")
	fs.StringVar(&opts.Password, "password", "", "camera account password (required)")
	fs.StringVar(&opts.Server, "server", "", "override the relay server host")
	fs.IntVar(&opts.HandleOverride, "handle", noHandleOverride, "override the session handle instead of using the one from login")
	fs.IntVar(&opts.Duration, "duration", 60, "recording duration in seconds, 0 for unlimited")
	fs.StringVar(&opts.OutputDir, "output-dir", "recordings", "directory to write elementary-stream files to")
	fs.BoolVar(&opts.EnableAudio, "enable-audio", true, "write the decrypted audio elementary stream")
	fs.BoolVar(&opts.EnableRTSP, "enable-rtsp", false, "serve the decrypted video over a local RTSP server")
	fs.IntVar(&opts.RTSPPort, "rtsp-port", 8554, "RTSP server port")

	return opts
}

// Validate checks the required fields and resolves the endpoint set,
// applying the -server override onto the vendor defaults if given.
func (o *Options) Validate() (v380.Endpoints, error) {
	if o.DeviceID <= 0 {
		return v380.Endpoints{}, fmt.Errorf("-device-id is required")
	}
	if o.Password == "" {
		return v380.Endpoints{}, fmt.Errorf("-password is required")
	}
	if o.Duration < 0 {
		return v380.Endpoints{}, fmt.Errorf("-duration must be >= 0")
	}

	endpoints := v380.DefaultEndpoints()
	if o.Server != "" {
		endpoints.Host = o.Server
	}
	return endpoints, nil
}
