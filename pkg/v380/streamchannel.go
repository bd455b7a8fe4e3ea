package v380

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/ethan/v380-relay/pkg/v380err"
)

// streamOpenSize is the padded size of the stream-handshake opening
// packet and of the post-handshake init packet (§4.4).
const streamOpenSize = 256

var (
	streamOpenMagicA uint32 = 0x012D
	streamOpenMagicB uint32 = 0x03EA
)

// initPacket is sent once, immediately after a successful handshake.
var initPacket = []byte{0x2F, 0x01, 0x00, 0x00, 0x01, 0x30, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// keepalivePacket is re-sent on the cadence described in §4.4; unlike
// initPacket it is not padded to 256 bytes.
var keepalivePacket = []byte{0x01, 0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// StreamChannel is the relay socket a Recorder reads raw, still-framed
// bytes from. It owns the keepalive cadence: rather than the source's
// wallclock-modulo check (which can fire more than once a second
// under high throughput), spacing is enforced with a token-bucket
// rate limiter so a keepalive is never sent twice within the interval.
type StreamChannel struct {
	conn    net.Conn
	logger  *slog.Logger
	limiter *rate.Limiter
}

// Open dials the stream relay and performs the handshake for the
// given session, then sends the init packet. The channel is ready
// for StreamChannel.Read once Open returns nil.
func Open(endpoints Endpoints, deviceID int, session Session, logger *slog.Logger) (*StreamChannel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := net.DialTimeout("tcp", endpoints.streamAddr(), connectTimeout)
	if err != nil {
		return nil, v380err.Transportf("stream.connect", err)
	}

	sc := &StreamChannel{
		conn:    conn,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(keepaliveInterval), 1),
	}

	if err := sc.handshake(deviceID, session); err != nil {
		conn.Close()
		return nil, err
	}
	if err := sc.writePadded(initPacket, streamOpenSize); err != nil {
		conn.Close()
		return nil, v380err.Transportf("stream.init", err)
	}

	logger.Debug("stream channel handshake complete", "device_id", deviceID, "handle", session.Handle)
	return sc, nil
}

func (sc *StreamChannel) handshake(deviceID int, session Session) error {
	req := make([]byte, 0, 78)
	buf4 := make([]byte, 4)

	binary.LittleEndian.PutUint32(buf4, streamOpenMagicA)
	req = append(req, buf4...)
	binary.LittleEndian.PutUint32(buf4, streamOpenMagicB)
	req = append(req, buf4...)
	req = append(req, domainField(Domain(deviceID), 48)...)

	buf2 := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf2, 0x0000)
	req = append(req, buf2...)
	binary.LittleEndian.PutUint16(buf2, 0x13BA)
	req = append(req, buf2...)
	binary.LittleEndian.PutUint16(buf2, 0x0000)
	req = append(req, buf2...)

	binary.LittleEndian.PutUint32(buf4, uint32(deviceID))
	req = append(req, buf4...)
	binary.LittleEndian.PutUint32(buf4, session.Handle)
	req = append(req, buf4...)
	binary.LittleEndian.PutUint32(buf4, session.ID)
	req = append(req, buf4...)

	if err := sc.writePadded(req, streamOpenSize); err != nil {
		return v380err.Transportf("stream.handshake.write", err)
	}

	resp := make([]byte, 256)
	n, err := sc.conn.Read(resp)
	if err != nil {
		return v380err.Transportf("stream.handshake.read", err)
	}
	resp = resp[:n]

	if len(resp) < 12 || resp[0] != 0x91 || resp[1] != 0x01 {
		return v380err.Protocolf("stream.handshake.response", fmt.Errorf("bad handshake response header"))
	}
	status := int32(binary.LittleEndian.Uint32(resp[8:12]))
	if status != 4 {
		return v380err.Protocolf("stream.handshake.response", fmt.Errorf("status=%d, want 4", status))
	}
	return nil
}

func (sc *StreamChannel) writePadded(data []byte, size int) error {
	buf := make([]byte, size)
	copy(buf, data)
	_, err := sc.conn.Write(buf)
	return err
}

// Read reads up to len(p) bytes with the 30 s stream read timeout.
// A timeout is reported through the returned error so the caller can
// distinguish it (via net.Error.Timeout()) from a fatal transport
// failure and trigger an immediate keepalive instead of aborting.
func (sc *StreamChannel) Read(p []byte) (int, error) {
	if err := sc.conn.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
		return 0, v380err.Transportf("stream.read.deadline", err)
	}
	n, err := sc.conn.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, err
		}
		return n, v380err.Transportf("stream.read", err)
	}
	return n, nil
}

// MaybeKeepalive sends a keepalive if force is set (the caller just
// hit a read timeout) or if the cadence limiter allows one; otherwise
// it is a no-op. It returns whether a keepalive was actually sent.
func (sc *StreamChannel) MaybeKeepalive(force bool) (bool, error) {
	if !force && !sc.limiter.Allow() {
		return false, nil
	}
	if _, err := sc.conn.Write(keepalivePacket); err != nil {
		return false, v380err.Transportf("stream.keepalive", err)
	}
	sc.logger.Debug("keepalive sent", "forced", force)
	return true, nil
}

// Close releases the stream socket.
func (sc *StreamChannel) Close() error {
	return sc.conn.Close()
}
