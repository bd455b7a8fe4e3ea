package v380

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"

	"github.com/ethan/v380-relay/pkg/v380err"
)

// registerMagicA and registerMagicB are the fixed u32 LE magic values
// opening every registration packet (§4.3).
const (
	registerMagicA uint32 = 0x00AC
	registerMagicB uint32 = 0x03F4
)

const registerPacketSize = 64

// Register performs the best-effort cloud-registration handshake: it
// does not gate login, so a failure here is logged and swallowed by
// the caller rather than treated as fatal.
func Register(endpoints Endpoints, deviceID int, streamPort int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := net.DialTimeout("tcp", endpoints.registerAddr(), connectTimeout)
	if err != nil {
		return v380err.Transportf("register.connect", err)
	}
	defer conn.Close()

	req := make([]byte, registerPacketSize)
	binary.LittleEndian.PutUint32(req[0:4], registerMagicA)
	binary.LittleEndian.PutUint32(req[4:8], registerMagicB)
	copy(req[8:56], domainField(Domain(deviceID), 48))
	binary.LittleEndian.PutUint32(req[56:60], uint32(streamPort))
	binary.LittleEndian.PutUint32(req[60:64], uint32(deviceID))

	if _, err := conn.Write(req); err != nil {
		return v380err.Transportf("register.write", err)
	}

	resp := make([]byte, 256)
	n, err := conn.Read(resp)
	if err != nil {
		return v380err.Transportf("register.read", err)
	}
	resp = resp[:n]

	if len(resp) < 8 {
		return v380err.Protocolf("register.response", fmt.Errorf("short response: %d bytes", len(resp)))
	}
	if status := binary.LittleEndian.Uint32(resp[4:8]); status != 1 {
		return v380err.Protocolf("register.response", fmt.Errorf("status=%d, want 1", status))
	}

	logger.Debug("registration succeeded", "device_id", deviceID)
	return nil
}
