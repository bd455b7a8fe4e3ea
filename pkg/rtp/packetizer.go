package rtp

import (
	"crypto/rand"
	"math/big"

	pionrtp "github.com/pion/rtp"
)

const payloadType = 96

// maxPayload is the RTP payload budget; a NAL at or under this size
// goes out as a single packet.
const maxPayload = 1400

// maxFragmentPayload leaves 3 bytes inside the MTU budget for the FU
// indicator and header bytes.
const maxFragmentPayload = maxPayload - 3

// Packetizer turns HEVC NAL units into RTP packets, maintaining the
// shared (sequence, timestamp, ssrc) counter fanned out to every
// viewer of an RTSP session.
type Packetizer struct {
	ssrc      uint32
	sequence  uint16
	timestamp uint32
}

// NewPacketizer builds a Packetizer with a randomly chosen ssrc,
// sequence and timestamp, matching the camera's own client behavior
// of starting from an unpredictable point rather than zero.
func NewPacketizer() (*Packetizer, error) {
	ssrc, err := randomUint32()
	if err != nil {
		return nil, err
	}
	seq, err := randomUint32()
	if err != nil {
		return nil, err
	}
	ts, err := randomUint32()
	if err != nil {
		return nil, err
	}
	return &Packetizer{
		ssrc:      ssrc,
		sequence:  uint16(seq),
		timestamp: ts,
	}, nil
}

func randomUint32() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<32))
	if err != nil {
		return 0, err
	}
	return uint32(n.Int64()), nil
}

// PacketizeNAL converts one NAL unit into one or more marshaled RTP
// packets. isLast marks this NAL as the last of its access unit; the
// marker bit is set on the RTP packet carrying the final fragment of
// a NAL only when isLast is also true.
func (p *Packetizer) PacketizeNAL(nal []byte, isLast bool) ([][]byte, error) {
	if len(nal) <= maxPayload {
		pkt, err := p.makePacket(nal, isLast)
		if err != nil {
			return nil, err
		}
		return [][]byte{pkt}, nil
	}
	return p.fragmentNAL(nal, isLast)
}

func (p *Packetizer) fragmentNAL(nal []byte, isLast bool) ([][]byte, error) {
	nalType := byte(NALType(nal))
	fuIndicatorByte1 := (nal[0] & 0x81) | (fuNALType << 1)
	fuIndicatorByte2 := nal[1]

	var packets [][]byte
	offset := 2
	first := true
	for offset < len(nal) {
		chunkSize := maxFragmentPayload
		if remaining := len(nal) - offset; remaining < chunkSize {
			chunkSize = remaining
		}
		lastFragment := offset+chunkSize >= len(nal)

		var fuHeader byte
		switch {
		case first:
			fuHeader = 0x80 | nalType
			first = false
		case lastFragment:
			fuHeader = 0x40 | nalType
		default:
			fuHeader = nalType
		}

		payload := make([]byte, 0, 3+chunkSize)
		payload = append(payload, fuIndicatorByte1, fuIndicatorByte2, fuHeader)
		payload = append(payload, nal[offset:offset+chunkSize]...)

		pkt, err := p.makePacket(payload, isLast && lastFragment)
		if err != nil {
			return nil, err
		}
		packets = append(packets, pkt)
		offset += chunkSize
	}
	return packets, nil
}

func (p *Packetizer) makePacket(payload []byte, marker bool) ([]byte, error) {
	pkt := pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: p.sequence,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}
	p.sequence++

	return pkt.Marshal()
}

// AdvanceTimestamp moves the 90 kHz RTP clock forward by ticks, called
// once per access unit (3600 ticks at 25 fps by default).
func (p *Packetizer) AdvanceTimestamp(ticks uint32) {
	p.timestamp += ticks
}

// SSRC returns the packetizer's synchronization source identifier, as
// used in SDP or diagnostic logging.
func (p *Packetizer) SSRC() uint32 { return p.ssrc }
