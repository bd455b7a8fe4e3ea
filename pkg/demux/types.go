// Package demux parses the camera's custom fragmentation framing out
// of a raw byte stream and reassembles complete access units from
// out-of-order fragments.
package demux

// Kind identifies which elementary stream a packet belongs to.
type Kind uint8

const (
	KindIFrame Kind = 0x28
	KindPFrame Kind = 0x29
	KindAudio  Kind = 0x18
)

func (k Kind) String() string {
	switch k {
	case KindIFrame:
		return "i-frame"
	case KindPFrame:
		return "p-frame"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// tag1 marks the start of every data packet header.
const tag1 = 0x7F

const headerSize = 12

// audio sanity-gate limits (§4.5): a header this large is treated as
// spurious rather than real framing and the parser resynchronizes.
const (
	audioMaxPayloadLength = 1000
	audioMaxFragments     = 10
)

// metadataPrefixSize is the length of the per-frame metadata stripped
// from the first fragment's payload before it contributes to the
// reassembled frame.
const metadataPrefixSize = 16

// header is a parsed 12-byte packet header (§3).
type header struct {
	kind           Kind
	totalFragments uint16
	fragmentIndex  uint16
	payloadLength  uint16
}

// Frame is a fully reassembled, still-encrypted access unit.
type Frame struct {
	Kind    Kind
	Payload []byte
}
