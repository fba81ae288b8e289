package sink

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"
)

// SessionDescription describes the sink's published stream in SDP.
//
// The description advertises one send-only broadcast media line on an
// unspecified address. Ports are left at zero; the session layer fills
// them in when it negotiates transport.
//
// Returns:
//   - *sdp.SessionDescription: The description
//   - error: The configured media description is invalid
func (s *Sink) SessionDescription() (*sdp.SessionDescription, error) {
	cfg := s.Config()
	media := cfg.Media
	if err := media.Validate(); err != nil {
		return nil, fmt.Errorf("invalid media description: %w", err)
	}

	sessionID := binary.BigEndian.Uint64(s.id[:8]) >> 1

	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  media.Media,
			Port:   sdp.RangedPort{Value: 0},
			Protos: []string{"RTP", "AVP"},
		},
	}
	if media.Encoding != "" {
		md = md.WithCodec(media.PayloadType, media.Encoding, media.ClockRate, media.Channels, "")
	} else {
		md.MediaName.Formats = []string{strconv.Itoa(int(media.PayloadType))}
	}
	if media.Control != "" {
		md = md.WithValueAttribute("control", "trackID="+media.Control)
	}

	name := cfg.Name
	if name == "" {
		name = "-"
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: sdp.SessionName(name),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}
	desc = desc.
		WithValueAttribute("control", "*").
		WithPropertyAttribute("sendonly").
		WithValueAttribute("type", "broadcast").
		WithMedia(md)

	logrus.WithFields(logrus.Fields{
		"function":     "SessionDescription",
		"sink_id":      s.id.String(),
		"media":        media.Media,
		"payload_type": media.PayloadType,
	}).Debug("Built session description")

	return desc, nil
}
