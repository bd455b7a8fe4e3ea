// Package rtp packetizes decrypted HEVC Annex-B video into RTP
// packets, fragmenting NAL units larger than the MTU budget with the
// HEVC Fragmentation Unit (FU, type 49) mechanism.
package rtp

import "bytes"

// HEVC NAL unit types relevant to parameter-set capture and slice
// classification (§3).
const (
	NALTypeVPS = 32
	NALTypeSPS = 33
	NALTypePPS = 34
)

// fuNALType is the NAL unit type HEVC reserves for fragmentation
// units (RFC 7798 §4.4.3).
const fuNALType = 49

var startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
var startCode3 = []byte{0x00, 0x00, 0x01}

// SplitAnnexB splits an Annex-B byte stream into its constituent NAL
// units, stripping the 3- or 4-byte start codes.
func SplitAnnexB(data []byte) [][]byte {
	var nals [][]byte
	starts := findStartCodes(data)
	for i, s := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1].offset
		}
		nal := data[s.offset+s.length : end]
		// Trailing zero bytes before the next start code belong to
		// no NAL; trim them so NAL type parsing isn't confused by a
		// rewound 00 00 01.
		nal = bytes.TrimRight(nal, "\x00")
		if len(nal) > 0 {
			nals = append(nals, nal)
		}
	}
	return nals
}

type startCodeMatch struct {
	offset int
	length int
}

func findStartCodes(data []byte) []startCodeMatch {
	var matches []startCodeMatch
	i := 0
	for i < len(data) {
		if bytes.HasPrefix(data[i:], startCode4) {
			matches = append(matches, startCodeMatch{offset: i, length: 4})
			i += 4
			continue
		}
		if bytes.HasPrefix(data[i:], startCode3) {
			matches = append(matches, startCodeMatch{offset: i, length: 3})
			i += 3
			continue
		}
		i++
	}
	return matches
}

// NALType extracts the HEVC NAL unit type from a NAL's first two
// header bytes.
func NALType(nal []byte) int {
	if len(nal) < 2 {
		return -1
	}
	return int(nal[0]>>1) & 0x3F
}

// ParameterSets captures VPS/SPS/PPS NAL units observed so far, used
// to populate the RTSP DESCRIBE SDP's fmtp sprop-* attributes.
type ParameterSets struct {
	VPS []byte
	SPS []byte
	PPS []byte
}

// Observe scans nals for parameter sets and records any found.
func (p *ParameterSets) Observe(nals [][]byte) {
	for _, nal := range nals {
		switch NALType(nal) {
		case NALTypeVPS:
			p.VPS = append([]byte(nil), nal...)
		case NALTypeSPS:
			p.SPS = append([]byte(nil), nal...)
		case NALTypePPS:
			p.PPS = append([]byte(nil), nal...)
		}
	}
}

// Ready reports whether all three parameter sets have been captured.
func (p *ParameterSets) Ready() bool {
	return p != nil && len(p.VPS) > 0 && len(p.SPS) > 0 && len(p.PPS) > 0
}
