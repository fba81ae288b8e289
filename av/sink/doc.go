// Package sink implements a paced RTP media sink.
//
// A Sink takes frames from any number of producers and sends them out at
// a constant nominal cadence: one frame every ClockRate milliseconds,
// with the RTP timestamp advanced by ClockRate*1000 ticks per frame and
// sequence numbers assigned per packet. Stamped packets go to a
// Dispatcher, which owns the sockets.
//
//	s, err := sink.New(sink.VideoConfig("camera"), fanout)
//	if err != nil {
//	    return err
//	}
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	defer s.Stop()
//
//	frame, _ := rtp.Packetize(s.SSRC(), sink.PayloadTypeJPEG, jpeg, 1400)
//	s.Enqueue(frame)
//
// # Scheduling
//
// Each started sink runs one goroutine locked to an OS thread. When the
// queue is empty it lowers its priority and sleeps for one interval.
// Otherwise it dequeues a frame, stamps it on the transport context that
// matches the frame's SSRC, dispatches it either packet by packet or as a
// whole-frame notification, runs the decode hook, and then either
// re-enqueues the frame (Loop) or disposes it. Thread priority hints use
// setpriority(2) on Linux and are skipped silently when not permitted.
//
// # Errors
//
// Failures inside one frame never stop the stream. Dispatch errors,
// decode hook errors and panics are passed to the ErrorHandler, or logged
// when none is set. Cancelling the context given to Start has the same
// effect as Stop.
package sink
