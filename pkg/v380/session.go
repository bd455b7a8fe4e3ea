// Package v380 implements the cloud-registration, control-channel
// login and stream-channel handshake for the V380 4G camera relay
// protocol.
package v380

import (
	"fmt"
	"time"
)

// Endpoints collects the server host and per-purpose ports the three
// sub-protocols (registration, login, stream) connect to. A single
// camera's cloud relay always exposes all three on the same host.
type Endpoints struct {
	Host         string
	APIPort      int
	RegisterPort int
	StreamPort   int
}

// DefaultEndpoints mirrors the vendor's default relay host.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Host:         "194.195.251.29",
		APIPort:      8089,
		RegisterPort: 8900,
		StreamPort:   8800,
	}
}

func (e Endpoints) apiAddr() string      { return fmt.Sprintf("%s:%d", e.Host, e.APIPort) }
func (e Endpoints) registerAddr() string { return fmt.Sprintf("%s:%d", e.Host, e.RegisterPort) }
func (e Endpoints) streamAddr() string   { return fmt.Sprintf("%s:%d", e.Host, e.StreamPort) }

// Session is the authenticated logical channel handed back by a
// successful login: session id and handle are both echoed into every
// subsequent stream-handshake packet, and handle seeds the AES key.
type Session struct {
	DeviceID int
	ID       uint32
	Handle   uint32
}

// Domain is the device's canonical routing name, used both as the
// registration packet's domain field and as the login "domain" param.
func Domain(deviceID int) string {
	return fmt.Sprintf("%d.nvdvr.net", deviceID)
}

// domainField renders domain zero-padded/truncated to n bytes for the
// fixed-width wire packets (§3: 48 bytes in every wire packet).
func domainField(domain string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, domain)
	return buf
}

// connectTimeout is the control socket's connect-only timeout (§5).
const connectTimeout = 15 * time.Second

// streamReadTimeout is the stream socket's read timeout (§5); a
// timeout is not fatal, it triggers a keepalive and resumes reading.
const streamReadTimeout = 30 * time.Second

// keepaliveInterval is the minimum spacing between stream-channel
// keepalives sent while data is flowing (§4.4).
const keepaliveInterval = 5 * time.Second
