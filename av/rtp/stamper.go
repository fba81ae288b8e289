package rtp

import "math"

// TimestampIncrement returns the per-frame timestamp step for a pacing
// clock rate: one nominal frame duration in clock-rate units.
func TimestampIncrement(clockRate uint32) uint32 {
	return clockRate * 1000
}

// AdvanceTimestamp moves the context's timestamp accumulator forward by
// one nominal frame and returns the new value. The accumulator wraps
// modulo 2^32.
//
// The advance is independent of wall-clock time: the contract is a
// constant nominal cadence.
func AdvanceTimestamp(tc *TransportContext, clockRate uint32) uint32 {
	tc.RTPTimestamp += TimestampIncrement(clockRate)
	return tc.RTPTimestamp
}

// NextSequence assigns the next sequence number of the context and
// returns it. The counter wraps from 65535 to 0.
func NextSequence(tc *TransportContext) uint16 {
	if tc.SequenceNumber == math.MaxUint16 {
		tc.SequenceNumber = 0
	} else {
		tc.SequenceNumber++
	}
	return tc.SequenceNumber
}

// Stamp labels a packet for dispatch on the given context.
//
// The packet takes the supplied SSRC, the context's current timestamp
// accumulator and the context's next sequence number.
//
// Parameters:
//   - packet: Packet to stamp
//   - tc: Transport context owning the sequence counter
//   - ssrc: Synchronization source published by the sender
func Stamp(packet *Packet, tc *TransportContext, ssrc uint32) {
	packet.SSRC = ssrc
	packet.Timestamp = tc.RTPTimestamp
	packet.SequenceNumber = NextSequence(tc)
}
