package sink

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// State is the lifecycle state of a sink.
type State int32

const (
	// Stopped is the initial and terminal state.
	Stopped State = iota
	// Started means the scheduler loop is running.
	Started
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Started:
		return "started"
	default:
		return "unknown"
	}
}

// clockBox keeps the stored type stable for atomic.Value.
type clockBox struct {
	tp TimeProvider
}

// anyEndpoint marks a context endpoint as present without binding it.
var anyEndpoint = &net.UDPAddr{IP: net.IPv4zero}

// Sink paces queued frames out to a Dispatcher.
//
// A started sink owns one goroutine, locked to its OS thread, that
// dequeues frames, stamps their packets on the matching transport
// context and hands them to the dispatcher. Producers on any goroutine
// feed it through Enqueue.
type Sink struct {
	mu sync.Mutex

	id         uuid.UUID
	config     Config
	published  atomic.Value
	ssrc       uint32
	dispatcher Dispatcher
	queue      *rtp.FrameQueue
	registry   *rtp.Registry

	decodeHook   DecodeHook
	errorHandler ErrorHandler
	timeProvider TimeProvider

	state     atomic.Int32
	startedAt atomic.Int64
	clock     atomic.Value

	framesProcessed atomic.Int64
	framesDiscarded atomic.Int64
	framesUnrouted  atomic.Int64
	framesFailed    atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// Stats is a diagnostic snapshot of a sink. Values may be stale.
type Stats struct {
	State           State
	FramesProcessed int64
	FramesDiscarded int64
	FramesUnrouted  int64
	FramesFailed    int64
	QueueLength     int
	Uptime          time.Duration
	FramesPerSecond float64
}

// New creates a stopped sink.
//
// Parameters:
//   - config: Sink configuration; a zero SSRC is replaced by a random one
//   - dispatcher: Receiver of stamped packets and frame notifications
//
// Returns:
//   - *Sink: The new sink in the Stopped state
//   - error: ErrNilDispatcher or a configuration validation error
func New(config Config, dispatcher Dispatcher) (*Sink, error) {
	logrus.WithFields(logrus.Fields{
		"function":   "New",
		"name":       config.Name,
		"clock_rate": config.ClockRate,
	}).Info("Creating new sink")

	if dispatcher == nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"error":    ErrNilDispatcher.Error(),
		}).Error("Invalid dispatcher")
		return nil, ErrNilDispatcher
	}
	if err := config.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"error":    err.Error(),
		}).Error("Invalid sink configuration")
		return nil, fmt.Errorf("invalid sink configuration: %w", err)
	}

	ssrc := config.SSRC
	if ssrc == 0 {
		var err error
		if ssrc, err = randomSSRC(); err != nil {
			return nil, fmt.Errorf("failed to generate SSRC: %w", err)
		}
	}

	s := &Sink{
		id:           uuid.New(),
		config:       config,
		ssrc:         ssrc,
		dispatcher:   dispatcher,
		queue:        rtp.NewFrameQueue(),
		registry:     rtp.NewRegistry(),
		timeProvider: RealTimeProvider{},
	}
	s.published.Store(config)

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"sink_id":  s.id.String(),
		"ssrc":     ssrc,
	}).Info("Sink created successfully")

	return s, nil
}

func randomSSRC() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if ssrc := binary.BigEndian.Uint32(b[:]); ssrc != 0 {
			return ssrc, nil
		}
	}
}

// ID returns the sink's instance identifier.
func (s *Sink) ID() uuid.UUID {
	return s.id
}

// SSRC returns the synchronization source the sink publishes.
func (s *Sink) SSRC() uint32 {
	return s.ssrc
}

// Config returns a copy of the sink's configuration. It does not take
// the sink lock, so dispatcher and hook callbacks may call it.
func (s *Sink) Config() Config {
	return s.published.Load().(Config)
}

// Registry exposes the transport context registry for diagnostics.
func (s *Sink) Registry() *rtp.Registry {
	return s.registry
}

// State returns the current lifecycle state. Safe for concurrent use.
func (s *Sink) State() State {
	return State(s.state.Load())
}

// Enqueue hands a frame to the sink. It never blocks and never drops.
func (s *Sink) Enqueue(frame *rtp.Frame) {
	s.queue.Enqueue(frame)
}

// QueueLength returns the number of frames awaiting transmission.
func (s *Sink) QueueLength() int {
	return s.queue.Len()
}

// SetDecodeHook installs the preview decode hook. Takes effect on the next Start.
func (s *Sink) SetDecodeHook(hook DecodeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decodeHook = hook
}

// SetErrorHandler installs the observer for contained per-frame errors.
// Takes effect on the next Start.
func (s *Sink) SetErrorHandler(handler ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorHandler = handler
}

// SetTimeProvider replaces the clock used for uptime, jitter and pacing.
// Takes effect on the next Start.
func (s *Sink) SetTimeProvider(tp TimeProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tp == nil {
		tp = RealTimeProvider{}
	}
	s.timeProvider = tp
}

// SetLoop toggles loop mode. Takes effect on the next Start.
func (s *Sink) SetLoop(loop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.Loop = loop
	s.published.Store(s.config)
}

// AddTransportContext registers an additional destination context.
//
// Registry structure only changes while the sink is stopped, so the
// scheduler never races a structural change.
//
// Returns:
//   - error: ErrSinkStarted, or a registry error
func (s *Sink) AddTransportContext(tc *rtp.TransportContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Started {
		return ErrSinkStarted
	}
	return s.registry.Add(tc)
}

// Start begins pacing frames on a dedicated goroutine.
//
// Start is a no-op on a started sink. It registers the transport
// context for the sink's own SSRC, resets the frame counters, uptime and
// the contexts' timing clocks, and launches the scheduler. Cancelling
// ctx is equivalent to Stop.
//
// Returns:
//   - error: Failure to construct the sink's transport context
func (s *Sink) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"sink_id":  s.id.String(),
	}).Debug("Starting sink")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
			// The loop ended on its own through ctx cancellation.
			s.cancel()
			s.cancel, s.done = nil, nil
		default:
			logrus.WithFields(logrus.Fields{
				"function": "Start",
				"sink_id":  s.id.String(),
			}).Debug("Sink already started")
			return nil
		}
	}

	if _, exists := s.registry.Lookup(s.ssrc); !exists {
		tc, err := rtp.NewTransportContext(s.ssrc, s.config.Media)
		if err != nil {
			return fmt.Errorf("failed to create transport context: %w", err)
		}
		// Endpoints are "any" so the context counts as active; the
		// dispatcher decides where packets actually go.
		tc.LocalRTP = anyEndpoint
		tc.RemoteRTP = anyEndpoint
		tc.Publish()
		if err := s.registry.Add(tc); err != nil {
			return fmt.Errorf("failed to register transport context: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h := hooks{
		config:       s.config,
		decodeHook:   s.decodeHook,
		errorHandler: s.errorHandler,
		timeProvider: s.timeProvider,
	}

	// Media clock units and jitter follow the sink's clock source.
	epoch := h.timeProvider.Now()
	for _, tc := range s.registry.All() {
		tc.ResetClock(epoch)
	}

	s.framesProcessed.Store(0)
	s.framesDiscarded.Store(0)
	s.framesUnrouted.Store(0)
	s.framesFailed.Store(0)
	s.clock.Store(clockBox{h.timeProvider})
	s.startedAt.Store(epoch.UnixNano())
	s.state.Store(int32(Started))
	s.cancel, s.done = cancel, done

	go s.run(loopCtx, done, h)

	logrus.WithFields(logrus.Fields{
		"function":   "Start",
		"sink_id":    s.id.String(),
		"ssrc":       s.ssrc,
		"clock_rate": s.config.ClockRate,
		"loop":       s.config.Loop,
		"contexts":   s.registry.Len(),
		"queued":     s.queue.Len(),
	}).Info("Sink started successfully")

	return nil
}

// Stop ends pacing and releases the sink's state.
//
// The scheduler observes the transition within one clock-rate sleep.
// Stop waits for it to exit, then the pending frames are disposed and
// the transport contexts released. Stop is a no-op on a stopped sink.
// It must not be called from a Dispatcher or hook callback; cancel the
// context passed to Start instead. Callbacks running while Stop waits
// may still use the lock-free readers: Config, SessionDescription,
// State, Stats and the counters. The setters and AddTransportContext
// block until Stop returns.
func (s *Sink) Stop() error {
	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"sink_id":  s.id.String(),
	}).Debug("Stopping sink")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Stop",
			"sink_id":  s.id.String(),
		}).Debug("Sink already stopped")
		return nil
	}

	s.state.Store(int32(Stopped))
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil

	logrus.WithFields(logrus.Fields{
		"function":         "Stop",
		"sink_id":          s.id.String(),
		"frames_processed": s.framesProcessed.Load(),
		"frames_failed":    s.framesFailed.Load(),
	}).Info("Sink stopped successfully")

	return nil
}

// finish runs on the scheduler goroutine as it exits, for Stop and for
// cancellation of the Start context alike.
func (s *Sink) finish(done chan struct{}) {
	cleared := s.queue.Clear()
	s.registry.Clear()
	s.startedAt.Store(0)
	s.state.Store(int32(Stopped))
	close(done)

	logrus.WithFields(logrus.Fields{
		"function":       "finish",
		"sink_id":        s.id.String(),
		"cleared_frames": cleared,
	}).Debug("Scheduler exited and state released")
}

// Uptime returns how long the sink has been started; zero when stopped.
func (s *Sink) Uptime() time.Duration {
	started := s.startedAt.Load()
	if started == 0 {
		return 0
	}

	box, ok := s.clock.Load().(clockBox)
	if !ok {
		return 0
	}
	return time.Duration(box.tp.Now().UnixNano() - started)
}

// FramesProcessed returns the number of frames processed since Start.
// The count never decreases while started.
func (s *Sink) FramesProcessed() int64 {
	return s.framesProcessed.Load()
}

// FramesPerSecond returns max(frames processed, 1) divided by uptime in
// seconds, or zero while stopped. Safe for concurrent use.
func (s *Sink) FramesPerSecond() float64 {
	uptime := s.Uptime().Seconds()
	if uptime <= 0 {
		return 0
	}

	frames := s.framesProcessed.Load()
	if frames < 1 {
		frames = 1
	}
	return float64(frames) / uptime
}

// Stats returns a diagnostic snapshot of the sink.
func (s *Sink) Stats() Stats {
	return Stats{
		State:           s.State(),
		FramesProcessed: s.framesProcessed.Load(),
		FramesDiscarded: s.framesDiscarded.Load(),
		FramesUnrouted:  s.framesUnrouted.Load(),
		FramesFailed:    s.framesFailed.Load(),
		QueueLength:     s.queue.Len(),
		Uptime:          s.Uptime(),
		FramesPerSecond: s.FramesPerSecond(),
	}
}
