package rtp

import (
	"fmt"
	"net"
	"time"

	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// MediaDescription describes the media carried by a transport context.
//
// It is supplied by the session layer when a context is created and is
// used to build SDP and to convert wall-clock time into timestamp units.
type MediaDescription struct {
	// Media is the SDP media kind ("video" or "audio").
	Media string `json:"media"`
	// PayloadType is the RTP payload type identifier.
	PayloadType uint8 `json:"payload_type"`
	// Encoding is the rtpmap encoding name, e.g. "JPEG" or "opus".
	Encoding string `json:"encoding"`
	// ClockRate is the RTP timestamp clock rate in Hz.
	ClockRate uint32 `json:"clock_rate"`
	// Channels is the audio channel count; zero for video.
	Channels uint16 `json:"channels,omitempty"`
	// Control is the track control identifier used in a=control.
	Control string `json:"control"`
}

// Validate checks that the description can drive a transport context.
func (m MediaDescription) Validate() error {
	if m.ClockRate == 0 {
		return ErrInvalidClockRate
	}
	if m.PayloadType > 127 {
		return fmt.Errorf("payload type %d out of range", m.PayloadType)
	}
	return nil
}

// TransportContext is the per-destination sending state of one stream.
//
// All exported counters are owned by the scheduler goroutine that
// stamps packets for this context. Other goroutines must read them
// through Snapshot, which is published atomically after every update.
type TransportContext struct {
	// SSRC identifies the stream this context sends.
	SSRC           uint32
	// Media is the associated media description.
	Media MediaDescription

	// RTPTimestamp is the outgoing timestamp accumulator.
	RTPTimestamp uint32
	// SequenceNumber is the last sequence number assigned.
	SequenceNumber uint16

	// LocalRTP and RemoteRTP mark endpoint presence; both must be set
	// for the context to be active.
	LocalRTP  net.Addr
	RemoteRTP net.Addr

	created     time.Time
	lastRTPOut  time.Time
	packetsSent uint32
	octetsSent  uint32
	senderSSRC  uint32

	jitter      float64
	lastTransit int64
	hasTransit  bool

	snapshot atomic.Value
}

// Snapshot is a point-in-time copy of a transport context for
// diagnostics. It may be stale by the time it is read.
type Snapshot struct {
	SSRC           uint32
	// SenderSSRC is the SSRC carried by the last packet sent, which
	// differs from SSRC when packets are relabelled on the way out.
	SenderSSRC     uint32
	SequenceNumber uint16
	RTPTimestamp   uint32
	Jitter         uint32
	PacketsSent    uint32
	OctetsSent     uint32
	LastRTPOut     time.Time
	Active         bool
}

// NewTransportContext creates the sending state for a stream.
//
// Parameters:
//   - ssrc: Synchronization source of the stream
//   - media: Media description supplied by the session layer
//
// Returns:
//   - *TransportContext: The new context with zeroed counters
//   - error: ErrInvalidClockRate or a payload type range error
func NewTransportContext(ssrc uint32, media MediaDescription) (*TransportContext, error) {
	if err := media.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewTransportContext",
			"ssrc":     ssrc,
			"error":    err.Error(),
		}).Error("Invalid media description")
		return nil, fmt.Errorf("invalid media description: %w", err)
	}

	tc := &TransportContext{
		SSRC:    ssrc,
		Media:   media,
		created: time.Now(),
	}
	tc.publish()

	logrus.WithFields(logrus.Fields{
		"function":     "NewTransportContext",
		"ssrc":         ssrc,
		"media":        media.Media,
		"payload_type": media.PayloadType,
		"clock_rate":   media.ClockRate,
	}).Debug("Transport context created")

	return tc, nil
}

// ResetClock restarts the timing state at epoch. Media clock units
// are counted from epoch and the jitter estimate starts over.
// The sink calls it on Start so that timing follows its clock source.
func (tc *TransportContext) ResetClock(epoch time.Time) {
	tc.created = epoch
	tc.jitter = 0
	tc.lastTransit = 0
	tc.hasTransit = false
	tc.publish()
}

// IsActive reports whether both local and remote endpoints are present.
func (tc *TransportContext) IsActive() bool {
	return tc.LocalRTP != nil && tc.RemoteRTP != nil
}

// Jitter returns the current jitter estimate in timestamp units.
func (tc *TransportContext) Jitter() uint32 {
	return uint32(tc.jitter)
}

// UpdateJitterAndTimestamp folds a stamped packet into the timing state.
//
// The jitter estimate follows RFC 3550 section 6.4.1: the transit time
// is the difference between the send time (in media clock units) and
// the packet timestamp, and the estimate moves 1/16 of the way toward
// each new transit delta.
//
// Parameters:
//   - packet: The packet that was just stamped
//   - now: Wall-clock send time
func (tc *TransportContext) UpdateJitterAndTimestamp(packet *Packet, now time.Time) {
	sendUnits := tc.clockUnits(now)
	transit := sendUnits - int64(packet.Timestamp)

	if tc.hasTransit {
		d := transit - tc.lastTransit
		if d < 0 {
			d = -d
		}
		tc.jitter += (float64(d) - tc.jitter) / 16
	}
	tc.lastTransit = transit
	tc.hasTransit = true

	tc.lastRTPOut = now
	tc.senderSSRC = packet.SSRC
	tc.packetsSent++
	tc.octetsSent += uint32(len(packet.Payload))

	tc.publish()
}

// clockUnits converts the time since context creation into media clock units.
func (tc *TransportContext) clockUnits(now time.Time) int64 {
	elapsed := now.Sub(tc.created)
	rate := int64(tc.Media.ClockRate)
	secs := int64(elapsed / time.Second)
	rem := int64(elapsed % time.Second)
	return secs*rate + rem*rate/int64(time.Second)
}

// Publish makes the current counters visible to Snapshot readers.
// The scheduler calls it after mutating the stamper fields directly.
func (tc *TransportContext) Publish() {
	tc.publish()
}

func (tc *TransportContext) publish() {
	tc.snapshot.Store(Snapshot{
		SSRC:           tc.SSRC,
		SenderSSRC:     tc.senderSSRC,
		SequenceNumber: tc.SequenceNumber,
		RTPTimestamp:   tc.RTPTimestamp,
		Jitter:         uint32(tc.jitter),
		PacketsSent:    tc.packetsSent,
		OctetsSent:     tc.octetsSent,
		LastRTPOut:     tc.lastRTPOut,
		Active:         tc.IsActive(),
	})
}

// Snapshot returns the last published copy of the context's counters.
// Safe for concurrent use.
func (tc *TransportContext) Snapshot() Snapshot {
	if s, ok := tc.snapshot.Load().(Snapshot); ok {
		return s
	}
	return Snapshot{SSRC: tc.SSRC}
}

// SenderReport builds an RTCP sender report from the published counters.
// Safe for concurrent use.
func (tc *TransportContext) SenderReport(now time.Time) *rtcp.SenderReport {
	return tc.Snapshot().SenderReport(now)
}

// SenderReport builds an RTCP sender report for the snapshot.
// The report is sourced from the SSRC receivers actually saw; before
// any packet is sent it falls back to the context SSRC.
//
// Parameters:
//   - now: Wall-clock time placed in the NTP timestamp field
//
// Returns:
//   - *rtcp.SenderReport: Report carrying packet/octet counts and the
//     last RTP timestamp sent
func (s Snapshot) SenderReport(now time.Time) *rtcp.SenderReport {
	ssrc := s.SenderSSRC
	if ssrc == 0 {
		ssrc = s.SSRC
	}
	return &rtcp.SenderReport{
		SSRC:        ssrc,
		NTPTime:     NTPTime(now),
		RTPTime:     s.RTPTimestamp,
		PacketCount: s.PacketsSent,
		OctetCount:  s.OctetsSent,
	}
}

// ntpEpochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
const ntpEpochOffset = 2208988800

// NTPTime converts a wall-clock time to the 64-bit NTP timestamp format.
func NTPTime(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return secs<<32 | frac
}
