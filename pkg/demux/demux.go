package demux

import (
	"encoding/binary"
	"log/slog"
	"sort"
)

// collectState is explicit state for the video reassembler: either no
// frame is open (collecting == false) or exactly one is
// (collecting == true). This replaces a map keyed by a sentinel
// string with a single optional value, since at most one frame is
// ever in flight at a time.
type collectState struct {
	collecting bool
	kind       Kind
	total      uint16
	fragments  map[uint16][]byte
}

// Demuxer holds the growing receive buffer and the video reassembly
// state machine. Audio packets need no cross-call state: each one is
// processed standalone as it arrives.
type Demuxer struct {
	buf    []byte
	video  collectState
	logger *slog.Logger
}

// New constructs an empty Demuxer.
func New(logger *slog.Logger) *Demuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demuxer{logger: logger}
}

// Feed appends newly read bytes to the receive buffer, advances the
// parser as far as it can, and returns every Frame completed as a
// result. Incomplete data is retained in the internal buffer for the
// next call.
func (d *Demuxer) Feed(data []byte) []Frame {
	d.buf = append(d.buf, data...)

	var out []Frame
	pos := 0
	for pos < len(d.buf) {
		if d.buf[pos] != tag1 {
			pos++
			continue
		}
		if pos+1 >= len(d.buf) {
			break
		}

		switch d.buf[pos+1] {
		case byte(KindIFrame), byte(KindPFrame):
			consumed, frames, ok := d.tryVideoPacket(pos)
			if !ok {
				goto done
			}
			out = append(out, frames...)
			pos += consumed

		case byte(KindAudio):
			consumed, frame, advanced := d.tryAudioPacket(pos)
			if advanced {
				pos++
				continue
			}
			if consumed == 0 {
				goto done
			}
			if frame != nil {
				out = append(out, *frame)
			}
			pos += consumed

		default:
			pos++
		}
	}
done:
	d.buf = append([]byte(nil), d.buf[pos:]...)
	return out
}

// tryVideoPacket attempts to parse and process one video packet
// starting at pos. ok is false when there isn't yet enough data in
// the buffer, in which case the caller must stop and wait.
func (d *Demuxer) tryVideoPacket(pos int) (consumed int, frames []Frame, ok bool) {
	if len(d.buf)-pos < headerSize {
		return 0, nil, false
	}
	h := parseHeader(d.buf[pos:])
	packetEnd := pos + headerSize + int(h.payloadLength)
	if packetEnd > len(d.buf) {
		return 0, nil, false
	}

	payload := d.buf[pos+headerSize : packetEnd]
	frames = d.processVideoFragment(h, payload)
	return packetEnd - pos, frames, true
}

// tryAudioPacket attempts to parse one audio packet at pos. advanced
// is true when the header failed the sanity gate and the caller
// should resynchronize by a single byte. consumed == 0 with
// advanced == false means there isn't enough data yet.
func (d *Demuxer) tryAudioPacket(pos int) (consumed int, frame *Frame, advanced bool) {
	if len(d.buf)-pos < headerSize {
		return 0, nil, false
	}
	h := parseHeader(d.buf[pos:])
	packetEnd := pos + headerSize + int(h.payloadLength)

	if h.payloadLength > audioMaxPayloadLength || h.totalFragments > audioMaxFragments || packetEnd > len(d.buf) {
		return 0, nil, true
	}

	payload := d.buf[pos+headerSize : packetEnd]
	f := processAudioPacket(h, payload)
	return packetEnd - pos, f, false
}

// parseHeader decodes the 12-byte packet header starting at buf[0].
func parseHeader(buf []byte) header {
	return header{
		kind:           Kind(buf[1]),
		totalFragments: binary.LittleEndian.Uint16(buf[3:5]),
		fragmentIndex:  binary.LittleEndian.Uint16(buf[5:7]),
		payloadLength:  binary.LittleEndian.Uint16(buf[7:9]),
	}
}

// processVideoFragment feeds one fragment into the video state
// machine, returning every Frame this fragment completed: at most a
// stale frame flushed by a new fragment_index==0 arrival, plus the
// newly completed frame if this fragment itself finished one.
func (d *Demuxer) processVideoFragment(h header, payload []byte) []Frame {
	var out []Frame

	if h.fragmentIndex == 0 {
		if d.video.collecting {
			if flushed := d.emitOrDrop(); flushed != nil {
				out = append(out, *flushed)
			}
		}
		d.video = collectState{
			collecting: true,
			kind:       h.kind,
			total:      h.totalFragments,
			fragments:  map[uint16][]byte{0: payload},
		}
	} else {
		if !d.video.collecting {
			d.logger.Debug("discarding fragment with no open frame", "kind", h.kind, "index", h.fragmentIndex)
			return out
		}
		if h.kind != d.video.kind {
			d.logger.Debug("discarding fragment with mismatched kind", "got", h.kind, "want", d.video.kind)
			return out
		}
		d.video.fragments[h.fragmentIndex] = payload
	}

	if d.video.collecting && len(d.video.fragments) >= int(d.video.total) {
		frame := d.assembleVideo(d.video)
		d.video = collectState{}
		out = append(out, frame)
	}

	return out
}

// emitOrDrop is called when a new fragment_index==0 arrives while a
// frame is still being collected: if enough fragments had already
// arrived it is emitted, otherwise it is dropped (a DemuxDrop event,
// logged only, never propagated per §7).
func (d *Demuxer) emitOrDrop() *Frame {
	if len(d.video.fragments) >= int(d.video.total) {
		frame := d.assembleVideo(d.video)
		return &frame
	}
	d.logger.Debug("dropping incomplete frame", "kind", d.video.kind,
		"have", len(d.video.fragments), "want", d.video.total)
	return nil
}

// assembleVideo sorts fragments by index and concatenates them,
// stripping the first fragment's metadata prefix.
func (d *Demuxer) assembleVideo(s collectState) Frame {
	indices := make([]int, 0, len(s.fragments))
	for idx := range s.fragments {
		indices = append(indices, int(idx))
	}
	sort.Ints(indices)

	payload := make([]byte, 0)
	for _, idx := range indices {
		chunk := s.fragments[uint16(idx)]
		if idx == 0 {
			chunk = stripMetadata(chunk)
		}
		payload = append(payload, chunk...)
	}
	return Frame{Kind: s.kind, Payload: payload}
}

// processAudioPacket handles a single standalone audio packet: the
// metadata prefix is stripped only when this is fragment 0 and the
// payload is long enough to actually carry a prefix plus data. A
// fragment-0 payload of exactly 16 bytes is pure metadata with no
// audio data at all, and per the source's observed behavior the
// packet is dropped rather than emitted as an empty frame.
func processAudioPacket(h header, payload []byte) *Frame {
	if h.fragmentIndex == 0 {
		if len(payload) == metadataPrefixSize {
			return nil
		}
		if len(payload) > metadataPrefixSize {
			payload = stripMetadata(payload)
		}
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return &Frame{Kind: KindAudio, Payload: out}
}

func stripMetadata(payload []byte) []byte {
	if len(payload) <= metadataPrefixSize {
		return nil
	}
	return payload[metadataPrefixSize:]
}
