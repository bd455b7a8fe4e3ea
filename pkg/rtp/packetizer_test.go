package rtp

import (
	"bytes"
	"testing"

	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestPacketizeSmallNALSinglePacket(t *testing.T) {
	p, err := NewPacketizer()
	require.NoError(t, err)

	nal := make([]byte, 200)
	nal[0] = byte(19 << 1) // IDR slice NAL type in the high bits
	nal[1] = 0x01

	packets, err := p.PacketizeNAL(nal, true)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	var pkt pionrtp.Packet
	require.NoError(t, pkt.Unmarshal(packets[0]))
	require.Equal(t, nal, pkt.Payload)
	require.True(t, pkt.Marker)
	require.Equal(t, uint8(payloadType), pkt.PayloadType)
}

func TestPacketizeLargeNALFragmentsAndReconstructs(t *testing.T) {
	p, err := NewPacketizer()
	require.NoError(t, err)

	nal := make([]byte, 5000)
	nal[0] = byte(1 << 1) // trailing slice NAL type
	nal[1] = 0x01
	for i := 2; i < len(nal); i++ {
		nal[i] = byte(i)
	}

	packets, err := p.PacketizeNAL(nal, true)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)

	var rebuilt bytes.Buffer
	rebuilt.Write(nal[:2])
	for i, raw := range packets {
		var pkt pionrtp.Packet
		require.NoError(t, pkt.Unmarshal(raw))
		// payload = fu_indicator(2) + fu_header(1) + data
		require.True(t, len(pkt.Payload) > 3)
		rebuilt.Write(pkt.Payload[3:])

		if i == len(packets)-1 {
			require.True(t, pkt.Marker)
		} else {
			require.False(t, pkt.Marker)
		}
	}

	require.Equal(t, nal, rebuilt.Bytes())
}

func TestSequenceMonotoneAcrossPackets(t *testing.T) {
	p, err := NewPacketizer()
	require.NoError(t, err)
	start := p.sequence

	nal := make([]byte, 100)
	nal[0], nal[1] = 0x02, 0x01
	packets, err := p.PacketizeNAL(nal, false)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	var pkt pionrtp.Packet
	require.NoError(t, pkt.Unmarshal(packets[0]))
	require.Equal(t, start, pkt.SequenceNumber)
	require.Equal(t, start+1, p.sequence)
}

func TestAdvanceTimestampWraps(t *testing.T) {
	p := &Packetizer{timestamp: 0xFFFFFFFF}
	p.AdvanceTimestamp(3600)
	require.Equal(t, uint32(3600-1), p.timestamp)
}

func TestSplitAnnexBAndParameterSetCapture(t *testing.T) {
	vps := append([]byte{byte(NALTypeVPS << 1), 0x01}, []byte("vps-body")...)
	sps := append([]byte{byte(NALTypeSPS << 1), 0x01}, []byte("sps-body")...)
	pps := append([]byte{byte(NALTypePPS << 1), 0x01}, []byte("pps-body")...)
	slice := append([]byte{byte(19 << 1), 0x01}, []byte("idr-body")...)

	var stream []byte
	for _, nal := range [][]byte{vps, sps, pps, slice} {
		stream = append(stream, startCode4...)
		stream = append(stream, nal...)
	}

	nals := SplitAnnexB(stream)
	require.Len(t, nals, 4)

	var ps ParameterSets
	ps.Observe(nals)
	require.True(t, ps.Ready())
	require.Equal(t, vps, ps.VPS)
	require.Equal(t, sps, ps.SPS)
	require.Equal(t, pps, ps.PPS)
}
