package rtsp

import (
	"encoding/base64"
	"time"

	"github.com/pion/sdp/v3"

	rtppkg "github.com/ethan/v380-relay/pkg/rtp"
)

// generateSDP builds the DESCRIBE response body: one video m-line
// advertising H265/90000, with sprop-vps/sps/pps fmtp attributes
// included only once all three parameter sets have been captured
// from the stream (§4.8, §8 scenario 5).
func generateSDP(ps *rtppkg.ParameterSets) ([]byte, error) {
	fmtpValue := "profile-id=1"
	if ps.Ready() {
		fmtpValue += ";sprop-vps=" + base64.StdEncoding.EncodeToString(ps.VPS)
		fmtpValue += ";sprop-sps=" + base64.StdEncoding.EncodeToString(ps.SPS)
		fmtpValue += ";sprop-pps=" + base64.StdEncoding.EncodeToString(ps.PPS)
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().Unix()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: "V380 Camera Stream",
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "video",
					Port:    sdp.RangedPort{Value: 0},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"96"},
				},
				ConnectionInformation: &sdp.ConnectionInformation{
					NetworkType: "IN",
					AddressType: "IP4",
					Address:     &sdp.Address{Address: "0.0.0.0"},
				},
				Attributes: []sdp.Attribute{
					sdp.NewAttribute("rtpmap", "96 H265/90000"),
					sdp.NewAttribute("fmtp", "96 "+fmtpValue),
					sdp.NewAttribute("control", "streamid=0"),
				},
			},
		},
	}

	return desc.Marshal()
}
