// Package rtp provides the RTP data model and per-stream sending state
// used by media sinks.
//
// This package handles packet and frame representation, the queue that
// carries frames from producers to a sink's scheduler, and the sequence
// and timestamp bookkeeping applied to each outgoing packet. It uses the
// pion/rtp library for standards-compliant headers and pion/rtcp for
// sender reports.
//
// # Architecture Overview
//
//   - Packet: one RTP packet; wraps rtp.Packet and tracks buffer ownership
//   - Frame: an ordered run of packets forming one media unit
//   - FrameQueue: unbounded multi-producer FIFO of pending frames
//   - TransportContext: sequence counter, timestamp accumulator, jitter
//   - Registry: SSRC to TransportContext map
//   - Packetize: splits a media unit into an MTU-bounded frame
//
// # Producing Frames
//
//	frame, err := rtp.Packetize(ssrc, 26, jpegData, 1400)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	queue.Enqueue(frame)
//
// Producers never assign sequence numbers or timestamps. Those are set
// once, by the stamper, right before a packet is dispatched.
//
// # Stamping
//
//	ts := rtp.AdvanceTimestamp(tc, clockRate) // once per frame
//	for _, p := range frame.Packets() {
//	    rtp.Stamp(p, tc, ssrc)                // once per packet
//	}
//
// Sequence numbers are contiguous modulo 65536 and wrap from 65535 to 0.
// The timestamp accumulator advances by clockRate*1000 per frame no
// matter how much wall-clock time passed.
//
// # Thread Safety
//
// FrameQueue and Registry are safe for concurrent use. The counters in a
// TransportContext have a single writer, the scheduler; other goroutines
// read them through Snapshot, which is published atomically.
package rtp
