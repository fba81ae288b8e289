// Package rtp provides the RTP data model used by media sinks.
//
// This file defines Packet, the atomic transmissible unit, and Frame,
// an ordered run of packets that make up one logical media unit such
// as an image or an audio chunk. Header handling is delegated to the
// pion/rtp library.
package rtp

import (
	"bytes"
	"fmt"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// rtpVersion is the only RTP version emitted by this package.
const rtpVersion = 2

// Packet is one RTP packet awaiting transmission.
//
// The embedded pion packet carries the wire header and payload. The
// sequence number and timestamp are left at zero by producers and are
// assigned by the stamper right before dispatch.
type Packet struct {
	rtp.Packet

	// owned reports whether the payload buffer belongs to this packet
	// and may be released on disposal.
	owned bool
}

// NewPacket creates a packet that owns the given payload.
//
// Parameters:
//   - payloadType: RTP payload type identifier
//   - payload: Packet payload; ownership passes to the packet
//   - marker: Value of the RTP marker bit
//
// Returns:
//   - *Packet: The new packet with zero sequence number and timestamp
func NewPacket(payloadType uint8, payload []byte, marker bool) *Packet {
	return &Packet{
		Packet: rtp.Packet{
			Header: rtp.Header{
				Version:     rtpVersion,
				Marker:      marker,
				PayloadType: payloadType,
			},
			Payload: payload,
		},
		owned: true,
	}
}

// NewBorrowedPacket creates a packet referencing a payload owned by the caller.
// Releasing the packet never touches the caller's buffer.
func NewBorrowedPacket(payloadType uint8, payload []byte, marker bool) *Packet {
	p := NewPacket(payloadType, payload, marker)
	p.owned = false
	return p
}

// Owned reports whether the packet owns its payload buffer.
func (p *Packet) Owned() bool {
	return p.owned
}

// Release drops the payload reference. Owned buffers become eligible
// for collection; borrowed ones are simply detached.
func (p *Packet) Release() {
	p.Payload = nil
}

// Size returns the marshalled size of the packet in bytes.
func (p *Packet) Size() int {
	return p.MarshalSize()
}

// Frame is an ordered sequence of packets forming one logical media unit.
//
// A Frame is built by a producer, enqueued once and consumed once by the
// scheduler. After consumption it is either replaced by a freshly built
// Frame (loop mode) or disposed, which releases its packets' buffers.
type Frame struct {
	ssrc        uint32
	payloadType uint8
	timestamp   uint32
	packets     []*Packet
	disposed    atomic.Bool
}

// NewFrame creates an empty frame for the given stream.
//
// Parameters:
//   - ssrc: Synchronization source the frame is routed by
//   - payloadType: RTP payload type of the frame's packets
//
// Returns:
//   - *Frame: The new, empty frame
func NewFrame(ssrc uint32, payloadType uint8) *Frame {
	return &Frame{
		ssrc:        ssrc,
		payloadType: payloadType,
	}
}

// SSRC returns the synchronization source used to route the frame.
func (f *Frame) SSRC() uint32 {
	return f.ssrc
}

// PayloadType returns the payload type identifier of the frame.
func (f *Frame) PayloadType() uint8 {
	return f.payloadType
}

// Timestamp returns the frame's nominal timestamp.
func (f *Frame) Timestamp() uint32 {
	return f.timestamp
}

// SetTimestamp records the stamped timestamp of the frame.
func (f *Frame) SetTimestamp(ts uint32) {
	f.timestamp = ts
}

// Add appends a packet to the end of the frame.
//
// Returns:
//   - error: ErrFrameDisposed when the frame was already disposed,
//     ErrNilPacket when packet is nil
func (f *Frame) Add(packet *Packet) error {
	if packet == nil {
		return ErrNilPacket
	}
	if f.disposed.Load() {
		return ErrFrameDisposed
	}
	f.packets = append(f.packets, packet)
	return nil
}

// Packets returns the frame's packets in order.
//
// The slice is shared with the frame; callers must not append to it.
func (f *Frame) Packets() []*Packet {
	return f.packets
}

// Len returns the number of packets in the frame.
func (f *Frame) Len() int {
	return len(f.packets)
}

// IsEmpty reports whether the frame holds no packets.
func (f *Frame) IsEmpty() bool {
	return len(f.packets) == 0
}

// IsDisposed reports whether Dispose has been called.
func (f *Frame) IsDisposed() bool {
	return f.disposed.Load()
}

// IsNilOrDisposed reports whether the frame cannot be dispatched.
func IsNilOrDisposed(f *Frame) bool {
	return f == nil || f.IsDisposed()
}

// Dispose releases every packet owned by the frame.
// Calling Dispose more than once is a no-op.
func (f *Frame) Dispose() {
	if f.disposed.Swap(true) {
		return
	}

	released := 0
	for _, p := range f.packets {
		if p.owned {
			p.Release()
			released++
		}
	}
	f.packets = nil

	logrus.WithFields(logrus.Fields{
		"function":         "Frame.Dispose",
		"ssrc":             f.ssrc,
		"released_packets": released,
	}).Debug("Frame disposed")
}

// Assemble concatenates the payloads of all packets in order.
//
// Returns:
//   - []byte: The reassembled media unit
func (f *Frame) Assemble() []byte {
	size := 0
	for _, p := range f.packets {
		size += len(p.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(size)
	for _, p := range f.packets {
		buf.Write(p.Payload)
	}
	return buf.Bytes()
}

// String implements fmt.Stringer for log output.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{ssrc=%d pt=%d ts=%d packets=%d disposed=%t}",
		f.ssrc, f.payloadType, f.timestamp, len(f.packets), f.disposed.Load())
}
