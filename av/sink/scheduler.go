package sink

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/sirupsen/logrus"
)

// hooks is the per-run copy of everything the scheduler consults, taken
// under the sink lock at Start so the loop never reads mutable fields.
type hooks struct {
	config       Config
	decodeHook   DecodeHook
	errorHandler ErrorHandler
	timeProvider TimeProvider
}

// run is the pacing loop. It owns the transport context contents and is
// the only consumer of the frame queue.
func (s *Sink) run(ctx context.Context, done chan struct{}, h hooks) {
	// The thread is never unlocked: it may carry a changed priority and
	// is discarded by the runtime when the goroutine exits.
	runtime.LockOSThread()
	defer s.finish(done)

	prio := newPriorityHints(h.config.PriorityHints)
	interval := time.Duration(h.config.ClockRate) * time.Millisecond

	logrus.WithFields(logrus.Fields{
		"function":       "run",
		"sink_id":        s.id.String(),
		"interval":       interval.String(),
		"priority_hints": prio.enabled,
	}).Debug("Scheduler loop entered")

	for ctx.Err() == nil && s.State() == Started {
		frame, ok := s.queue.TryDequeue()
		if !ok {
			prio.set(PriorityLowest)
			if !sleep(ctx, h.timeProvider, interval) {
				return
			}
			continue
		}

		if frame.IsEmpty() || frame.IsDisposed() {
			s.framesDiscarded.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"frame":    frame.String(),
			}).Debug("Discarding empty frame")
			continue
		}

		s.step(frame, h, prio)

		prio.set(PriorityBelowNormal)
		if !sleep(ctx, h.timeProvider, interval) {
			return
		}
	}
}

// sleep waits for d or until ctx is done. It reports whether the loop
// should go on.
func sleep(ctx context.Context, tp TimeProvider, d time.Duration) bool {
	timer := tp.NewTimer(d)
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		timer.Stop()
		return false
	}
}

// step processes one frame, containing any panic to this frame.
func (s *Sink) step(frame *rtp.Frame, h hooks, prio *priorityHints) {
	defer func() {
		if r := recover(); r != nil {
			s.framesFailed.Inc()
			frame.Dispose()
			s.report(h, fmt.Errorf("%w: %v", ErrFramePanic, r), frame)
		}
	}()

	s.processFrame(frame, h, prio)
}

// processFrame stamps and dispatches a single frame, then recycles or
// disposes it.
func (s *Sink) processFrame(frame *rtp.Frame, h hooks, prio *priorityHints) {
	loop := h.config.Loop

	tc, ok := s.registry.Lookup(frame.SSRC())
	if !ok {
		s.framesUnrouted.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "processFrame",
			"ssrc":     frame.SSRC(),
			"loop":     loop,
		}).Debug("No transport context for frame")
		if loop {
			s.queue.Enqueue(frame)
		} else {
			frame.Dispose()
		}
		return
	}

	prio.set(PriorityAboveNormal)

	ts := rtp.AdvanceTimestamp(tc, h.config.ClockRate)
	frame.SetTimestamp(ts)

	var replacement *rtp.Frame
	if loop {
		replacement = rtp.NewFrame(frame.SSRC(), frame.PayloadType())
		replacement.SetTimestamp(ts)
	}

	perPacket := !h.config.FrameChangedEvents
	packets := frame.Packets()

	for i, packet := range packets {
		rtp.Stamp(packet, tc, s.ssrc)

		if perPacket {
			if err := s.dispatcher.Deliver(packet, tc); err != nil {
				if loop {
					for _, rest := range packets[i:] {
						_ = replacement.Add(rest)
					}
				}
				s.dispatchFailed(frame, replacement, h, fmt.Errorf("%w: packet %d of %d, seq %d: %v",
					ErrDispatchFailed, i+1, len(packets), packet.SequenceNumber, err))
				return
			}
		}

		if loop {
			_ = replacement.Add(packet)
		}

		tc.UpdateJitterAndTimestamp(packet, h.timeProvider.Now())
	}

	if !perPacket {
		if err := s.dispatcher.OnFrameChanged(frame, tc, true); err != nil {
			s.dispatchFailed(frame, replacement, h, fmt.Errorf("%w: frame changed: %v", ErrDispatchFailed, err))
			return
		}
	}

	if h.config.DecodeFrames && h.decodeHook != nil && frame.PayloadType() == h.config.DecodePayloadType {
		if err := h.decodeHook(frame); err != nil {
			s.report(h, fmt.Errorf("%w: %v", ErrDecodeFailed, err), frame)
		}
	}

	s.framesProcessed.Inc()

	logrus.WithFields(logrus.Fields{
		"function":  "processFrame",
		"ssrc":      s.ssrc,
		"timestamp": ts,
		"packets":   len(packets),
		"last_seq":  tc.SequenceNumber,
	}).Debug("Frame dispatched")

	s.recycle(frame, replacement)
}

// dispatchFailed gives up on the rest of a frame. A looping frame keeps
// all of its packets so the next cycle replays it whole.
func (s *Sink) dispatchFailed(frame, replacement *rtp.Frame, h hooks, err error) {
	s.framesFailed.Inc()
	s.report(h, err, frame)
	s.recycle(frame, replacement)
}

func (s *Sink) recycle(frame, replacement *rtp.Frame) {
	if replacement != nil {
		s.queue.Enqueue(replacement)
		return
	}
	frame.Dispose()
}

func (s *Sink) report(h hooks, err error, frame *rtp.Frame) {
	if h.errorHandler != nil {
		h.errorHandler(err, frame)
		return
	}

	fields := logrus.Fields{
		"function": "report",
		"sink_id":  s.id.String(),
		"error":    err.Error(),
	}
	if frame != nil {
		fields["frame_ssrc"] = frame.SSRC()
		fields["payload_type"] = frame.PayloadType()
	}
	logrus.WithFields(fields).Warn("Frame processing failed, continuing stream")
}
