package rtp

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// HeaderSize is the size of a fixed RTP header without CSRCs or extensions.
const HeaderSize = 12

// DefaultMTU is the MTU used when callers pass zero.
const DefaultMTU = 1500

// Packetize splits a media unit into a frame of RTP packets.
//
// Each packet carries at most mtu-HeaderSize payload bytes; the marker
// bit is set on the last packet. The payload is copied so the frame
// owns its buffers.
//
// Parameters:
//   - ssrc: Synchronization source the frame is routed by
//   - payloadType: RTP payload type of every packet
//   - data: The media unit to split
//   - mtu: Maximum packet size including the RTP header (0 for DefaultMTU)
//
// Returns:
//   - *Frame: Frame holding the packets in order
//   - error: ErrEmptyPayload or ErrInvalidMTU
func Packetize(ssrc uint32, payloadType uint8, data []byte, mtu int) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if mtu == 0 {
		mtu = DefaultMTU
	}
	if mtu <= HeaderSize {
		return nil, fmt.Errorf("mtu %d: %w", mtu, ErrInvalidMTU)
	}

	chunk := mtu - HeaderSize
	frame := NewFrame(ssrc, payloadType)

	for offset := 0; offset < len(data); offset += chunk {
		end := offset + chunk
		if end > len(data) {
			end = len(data)
		}
		payload := make([]byte, end-offset)
		copy(payload, data[offset:end])

		if err := frame.Add(NewPacket(payloadType, payload, end == len(data))); err != nil {
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Packetize",
		"ssrc":         ssrc,
		"payload_type": payloadType,
		"data_size":    len(data),
		"packets":      frame.Len(),
	}).Debug("Packetized media unit")

	return frame, nil
}
