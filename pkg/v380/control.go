package v380

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"time"

	v380crypto "github.com/ethan/v380-relay/pkg/crypto"
	"github.com/ethan/v380-relay/pkg/v380err"
)

// controlMagic is the four-byte frame prefix preceding every
// control-channel JSON-RPC message (§4.2).
var controlMagic = [4]byte{0x00, 0x03, 0x00, 0xFE}

// Client owns the control-channel TCP connection used to log in to a
// camera's cloud relay. Unlike the teacher's HTTP client, there is no
// token to cache across calls: each Client is used for exactly one
// login, matching the protocol's own one-shot nature.
type Client struct {
	endpoints Endpoints
	logger    *slog.Logger
	conn      net.Conn
}

// NewClient constructs a Client bound to the given endpoints.
func NewClient(endpoints Endpoints, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{endpoints: endpoints, logger: logger}
}

// Connect dials the API server with a 15 s connect timeout.
func (c *Client) Connect() error {
	conn, err := net.DialTimeout("tcp", c.endpoints.apiAddr(), connectTimeout)
	if err != nil {
		return v380err.Transportf("control.connect", err)
	}
	c.conn = conn
	c.logger.Debug("control channel connected", "addr", c.endpoints.apiAddr())
	return nil
}

// Close releases the control socket.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// LoginResult is the `v380` block of a successful login response.
type LoginResult struct {
	Session uint32
	Handle  uint32
}

// Login sends the length-framed JSON-RPC login request and parses
// the response for a `v380` block. deviceID/password are the
// account credentials; streamPort is embedded in the login params so
// the server knows where the relay socket was (or will be) opened.
func (c *Client) Login(deviceID int, password string, streamPort int) (*LoginResult, error) {
	randomKey, err := v380crypto.GenerateRandomKey()
	if err != nil {
		return nil, err
	}
	obfuscated, err := v380crypto.EncryptPassword(password, randomKey)
	if err != nil {
		return nil, err
	}

	reqID, err := randomRequestID()
	if err != nil {
		return nil, v380err.Protocolf("control.login.id", err)
	}

	params := map[string]interface{}{
		"version":       31,
		"phoneType":     1012,
		"deviceId":      deviceID,
		"domain":        Domain(deviceID),
		"port":          streamPort,
		"accountId":     11,
		"username":      fmt.Sprintf("%d", deviceID),
		"password":      obfuscated,
		"randomKey":     randomKey,
		"connectType":   0,
		"securityLevel": 1,
		"agora":         0,
		"ectx":          time.Now().Unix(),
		"p2pIdx":        0,
	}
	body := map[string]interface{}{
		"id":     reqID,
		"method": "login",
		"params": params,
	}

	if err := c.sendJSONRPC(body); err != nil {
		return nil, err
	}
	resp, err := c.recvJSONRPC()
	if err != nil {
		return nil, err
	}

	return parseLoginResponse(resp)
}

// sendJSONRPC marshals body to JSON (no whitespace) and writes it
// under the magic-prefixed, length-framed wire format of §4.2.
func (c *Client) sendJSONRPC(body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return v380err.Protocolf("control.marshal", err)
	}

	frame := make([]byte, 0, 4+2+2+len(payload))
	frame = append(frame, controlMagic[:]...)
	length := make([]byte, 2)
	binary.LittleEndian.PutUint16(length, uint16(len(payload)))
	frame = append(frame, length...)
	frame = append(frame, 0x00, 0x00)
	frame = append(frame, payload...)

	if _, err := c.conn.Write(frame); err != nil {
		return v380err.Transportf("control.write", err)
	}
	return nil
}

// recvJSONRPC reads a response and extracts the outermost JSON
// object. The server may prepend framing bytes of its own, so the
// parser scans forward to the first `{` and brace-matches from there
// rather than trusting a length prefix on the way in.
func (c *Client) recvJSONRPC() (map[string]interface{}, error) {
	buf := make([]byte, 65536)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, v380err.Transportf("control.read", err)
	}
	raw := buf[:n]

	start := bytes.IndexByte(raw, '{')
	if start < 0 {
		return nil, v380err.Protocolf("control.response", fmt.Errorf("no JSON object in response"))
	}

	depth := 0
	end := -1
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, v380err.Protocolf("control.response", fmt.Errorf("unbalanced JSON object in response"))
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw[start:end+1], &obj); err != nil {
		return nil, v380err.Protocolf("control.response.decode", err)
	}
	return obj, nil
}

// parseLoginResponse validates a `{"v380":{"session":..,"handle":..}}`
// shape, or a `result.code != 0` server-level error.
func parseLoginResponse(resp map[string]interface{}) (*LoginResult, error) {
	if result, ok := resp["result"].(map[string]interface{}); ok {
		if code, ok := result["code"].(float64); ok && code != 0 {
			return nil, v380err.Loginf("control.login", fmt.Errorf("server returned result.code=%v", code))
		}
	}

	block, ok := resp["v380"].(map[string]interface{})
	if !ok {
		return nil, v380err.Loginf("control.login", fmt.Errorf("response missing v380 block"))
	}

	session, ok := numberField(block, "session")
	if !ok {
		return nil, v380err.Loginf("control.login", fmt.Errorf("v380 block missing session"))
	}
	handle, ok := numberField(block, "handle")
	if !ok {
		return nil, v380err.Loginf("control.login", fmt.Errorf("v380 block missing handle"))
	}

	return &LoginResult{Session: uint32(session), Handle: uint32(handle)}, nil
}

func numberField(m map[string]interface{}, key string) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return uint64(f), true
}

// randomRequestID picks the random u32 < 10^8 the wire protocol
// expects as the JSON-RPC request id.
func randomRequestID() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return 0, err
	}
	return uint32(n.Int64()), nil
}
