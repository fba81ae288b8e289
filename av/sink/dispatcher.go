package sink

import "github.com/opd-ai/mediakit/av/rtp"

// Dispatcher receives stamped packets from a sink's scheduler.
//
// The receiving layer owns socket I/O and fan-out to clients. Both
// methods run on the scheduler goroutine, so a call that blocks stalls
// the stream. Implementations must not retain packets after returning:
// frames that are not looped are disposed right after dispatch.
type Dispatcher interface {
	// Deliver sends one stamped packet for the given context.
	Deliver(packet *rtp.Packet, tc *rtp.TransportContext) error

	// OnFrameChanged announces a whole stamped frame. synthetic is true
	// when the sink produced the notification itself rather than
	// relaying a received frame.
	OnFrameChanged(frame *rtp.Frame, tc *rtp.TransportContext, synthetic bool) error
}

// DecodeHook is invoked with each processed frame whose payload type
// matches the configured decodable type. It runs on the scheduler
// goroutine before the frame is disposed or recycled.
type DecodeHook func(frame *rtp.Frame) error

// ErrorHandler observes per-frame failures that the scheduler contains.
// frame may be nil when no frame was involved.
type ErrorHandler func(err error, frame *rtp.Frame)
