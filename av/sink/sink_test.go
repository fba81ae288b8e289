package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSSRC    uint32 = 0x1234
	waitTimeout        = 3 * time.Second
	waitTick           = 5 * time.Millisecond
)

// deliveredPacket is a copy of the header fields seen by the dispatcher.
type deliveredPacket struct {
	ssrc    uint32
	seq     uint16
	ts      uint32
	payload []byte
}

type frameEvent struct {
	ssrc      uint32
	timestamp uint32
	seqs      []uint16
	synthetic bool
}

// mockDispatcher records everything the scheduler hands it.
type mockDispatcher struct {
	mu      sync.Mutex
	packets []deliveredPacket
	frames  []frameEvent
	calls   int

	// fail, when set, is consulted with the 1-based Deliver call number.
	fail func(call int) error
	// panicOn makes the given Deliver call panic.
	panicOn int
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{}
}

func (m *mockDispatcher) Deliver(packet *rtp.Packet, tc *rtp.TransportContext) error {
	m.mu.Lock()
	m.calls++
	call := m.calls
	fail := m.fail
	panicOn := m.panicOn
	m.mu.Unlock()

	if panicOn == call {
		panic("dispatcher exploded")
	}
	if fail != nil {
		if err := fail(call); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, deliveredPacket{
		ssrc:    packet.SSRC,
		seq:     packet.SequenceNumber,
		ts:      packet.Timestamp,
		payload: append([]byte(nil), packet.Payload...),
	})
	return nil
}

func (m *mockDispatcher) OnFrameChanged(frame *rtp.Frame, tc *rtp.TransportContext, synthetic bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := frameEvent{ssrc: tc.SSRC, timestamp: frame.Timestamp(), synthetic: synthetic}
	for _, p := range frame.Packets() {
		ev.seqs = append(ev.seqs, p.SequenceNumber)
	}
	m.frames = append(m.frames, ev)
	return nil
}

func (m *mockDispatcher) delivered() []deliveredPacket {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]deliveredPacket(nil), m.packets...)
}

func (m *mockDispatcher) frameEvents() []frameEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]frameEvent(nil), m.frames...)
}

// errorRecorder collects errors passed to an ErrorHandler.
type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) handle(err error, _ *rtp.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// funcDispatcher forwards Deliver to a test-supplied function.
type funcDispatcher struct {
	deliver func(packet *rtp.Packet) error
}

func (f funcDispatcher) Deliver(packet *rtp.Packet, _ *rtp.TransportContext) error {
	return f.deliver(packet)
}

func (funcDispatcher) OnFrameChanged(*rtp.Frame, *rtp.TransportContext, bool) error {
	return nil
}

// fakeClock is a TimeProvider whose wall clock only moves when told to.
// Pacing timers still run in real time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := VideoConfig("test")
	cfg.SSRC = testSSRC
	cfg.PriorityHints = false
	return cfg
}

func newTestSink(t *testing.T, cfg Config) (*Sink, *mockDispatcher) {
	t.Helper()

	d := newMockDispatcher()
	s, err := New(cfg, d)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s, d
}

// makeFrame builds a frame of n single-byte packets tagged with tag.
func makeFrame(ssrc uint32, pt uint8, n int, tag byte) *rtp.Frame {
	f := rtp.NewFrame(ssrc, pt)
	for i := 0; i < n; i++ {
		_ = f.Add(rtp.NewPacket(pt, []byte{tag, byte(i)}, i == n-1))
	}
	return f
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		config     Config
		dispatcher Dispatcher
		wantErr    error
	}{
		{
			name:       "valid video config",
			config:     testConfig(),
			dispatcher: newMockDispatcher(),
		},
		{
			name:       "nil dispatcher",
			config:     testConfig(),
			dispatcher: nil,
			wantErr:    ErrNilDispatcher,
		},
		{
			name: "zero clock rate",
			config: func() Config {
				c := testConfig()
				c.ClockRate = 0
				return c
			}(),
			dispatcher: newMockDispatcher(),
			wantErr:    ErrInvalidClockRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.config, tt.dispatcher)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Stopped, s.State())
			assert.Equal(t, testSSRC, s.SSRC())
			assert.Zero(t, s.FramesPerSecond())
		})
	}
}

func TestNewAssignsRandomSSRC(t *testing.T) {
	cfg := testConfig()
	cfg.SSRC = 0

	s, err := New(cfg, newMockDispatcher())
	require.NoError(t, err)
	assert.NotZero(t, s.SSRC())
}

func TestStampsThreeFrames(t *testing.T) {
	s, d := newTestSink(t, testConfig())

	for i := 0; i < 3; i++ {
		s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 2, byte(i)))
	}
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) >= 6 }, waitTimeout, waitTick)
	require.NoError(t, s.Stop())

	got := d.delivered()
	require.Len(t, got, 6)

	wantTS := []uint32{9000, 9000, 18000, 18000, 27000, 27000}
	for i, p := range got {
		assert.Equal(t, uint16(i+1), p.seq, "packet %d sequence", i)
		assert.Equal(t, wantTS[i], p.ts, "packet %d timestamp", i)
		assert.Equal(t, testSSRC, p.ssrc)
		assert.Equal(t, []byte{byte(i / 2), byte(i % 2)}, p.payload)
	}
	assert.Equal(t, Stopped, s.State())
}

func TestSequenceWrapsAtMaximum(t *testing.T) {
	s, d := newTestSink(t, testConfig())

	tc, err := rtp.NewTransportContext(testSSRC, testConfig().Media)
	require.NoError(t, err)
	tc.SequenceNumber = 65535
	require.NoError(t, s.AddTransportContext(tc))

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 2, 0))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) >= 2 }, waitTimeout, waitTick)

	got := d.delivered()
	assert.Equal(t, uint16(0), got[0].seq)
	assert.Equal(t, uint16(1), got[1].seq)
}

func TestRelabelsPacketsWithSinkSSRC(t *testing.T) {
	const other uint32 = 0x9999
	s, d := newTestSink(t, testConfig())

	tc, err := rtp.NewTransportContext(other, testConfig().Media)
	require.NoError(t, err)
	require.NoError(t, s.AddTransportContext(tc))

	s.Enqueue(makeFrame(other, PayloadTypeJPEG, 1, 0))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) == 1 }, waitTimeout, waitTick)
	assert.Equal(t, testSSRC, d.delivered()[0].ssrc)
	assert.Equal(t, uint16(1), d.delivered()[0].seq)
}

func TestUnroutedFrameIsDropped(t *testing.T) {
	s, d := newTestSink(t, testConfig())

	stray := makeFrame(0xdead, PayloadTypeJPEG, 2, 9)
	s.Enqueue(stray)
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 1))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) == 1 }, waitTimeout, waitTick)

	got := d.delivered()
	assert.Equal(t, []byte{1, 0}, got[0].payload)
	assert.Equal(t, uint16(1), got[0].seq)
	assert.True(t, stray.IsDisposed())
	assert.Equal(t, int64(1), s.Stats().FramesUnrouted)
	assert.Equal(t, Started, s.State())
}

func TestEmptyAndDisposedFramesAreSkipped(t *testing.T) {
	s, d := newTestSink(t, testConfig())

	disposed := makeFrame(testSSRC, PayloadTypeJPEG, 2, 7)
	disposed.Dispose()

	s.Enqueue(rtp.NewFrame(testSSRC, PayloadTypeJPEG))
	s.Enqueue(disposed)
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 1))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) == 1 }, waitTimeout, waitTick)
	assert.Equal(t, uint16(1), d.delivered()[0].seq)
	assert.Equal(t, uint32(9000), d.delivered()[0].ts)
	assert.Equal(t, int64(2), s.Stats().FramesDiscarded)
}

func TestProcessedFrameIsDisposedWithoutLoop(t *testing.T) {
	s, d := newTestSink(t, testConfig())

	frame := makeFrame(testSSRC, PayloadTypeJPEG, 3, 0)
	s.Enqueue(frame)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) == 3 }, waitTimeout, waitTick)
	require.Eventually(t, frame.IsDisposed, waitTimeout, waitTick)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, d.delivered(), 3)
	assert.Zero(t, s.QueueLength())
}

func TestLoopReplaysFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Loop = true
	s, d := newTestSink(t, cfg)

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 3, 5))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) >= 9 }, waitTimeout, waitTick)
	require.NoError(t, s.Stop())

	got := d.delivered()
	for i := 0; i < 9; i++ {
		assert.Equal(t, []byte{5, byte(i % 3)}, got[i].payload, "packet %d payload", i)
		assert.Equal(t, uint16(i+1), got[i].seq, "packet %d sequence", i)
		assert.Equal(t, uint32(9000*(i/3+1)), got[i].ts, "packet %d timestamp", i)
	}
}

func TestLoopDispatchFailureReplaysWholeFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Loop = true
	s, d := newTestSink(t, cfg)
	d.fail = func(call int) error {
		if call == 2 {
			return errors.New("network unreachable")
		}
		return nil
	}
	rec := &errorRecorder{}
	s.SetErrorHandler(rec.handle)

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 3, 7))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) >= 4 }, waitTimeout, waitTick)
	require.NoError(t, s.Stop())

	got := d.delivered()
	assert.Equal(t, []byte{7, 0}, got[0].payload)
	assert.Equal(t, uint16(1), got[0].seq)
	assert.Equal(t, uint32(9000), got[0].ts)

	// The second packet consumed sequence 2 before failing; the next
	// cycle replays all three packets from the start of the frame.
	for i := 0; i < 3; i++ {
		p := got[i+1]
		assert.Equal(t, []byte{7, byte(i)}, p.payload, "replayed packet %d payload", i)
		assert.Equal(t, uint16(i+3), p.seq, "replayed packet %d sequence", i)
		assert.Equal(t, uint32(18000), p.ts, "replayed packet %d timestamp", i)
	}

	errs := rec.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDispatchFailed)
	assert.Equal(t, int64(1), s.Stats().FramesFailed)
}

func TestLoopPanicDropsFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Loop = true
	s, d := newTestSink(t, cfg)
	d.panicOn = 1
	rec := &errorRecorder{}
	s.SetErrorHandler(rec.handle)

	panicking := makeFrame(testSSRC, PayloadTypeJPEG, 1, 0)
	s.Enqueue(panicking)
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 1))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) >= 3 }, waitTimeout, waitTick)
	assert.Equal(t, Started, s.State())
	assert.True(t, panicking.IsDisposed())

	// Only the surviving frame keeps cycling.
	for i, p := range d.delivered() {
		assert.Equal(t, []byte{1, 0}, p.payload, "packet %d payload", i)
	}
	assert.LessOrEqual(t, s.QueueLength(), 1)

	errs := rec.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrFramePanic)
}

func TestLoopReenqueuesUnroutedFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Loop = true
	s, _ := newTestSink(t, cfg)

	stray := makeFrame(0xdead, PayloadTypeJPEG, 1, 0)
	s.Enqueue(stray)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return s.Stats().FramesUnrouted >= 2 }, waitTimeout, waitTick)
	assert.False(t, stray.IsDisposed())

	require.NoError(t, s.Stop())
	assert.True(t, stray.IsDisposed())
}

func TestStopClearsPendingFrames(t *testing.T) {
	cfg := testConfig()
	cfg.ClockRate = 200
	s, d := newTestSink(t, cfg)

	frames := make([]*rtp.Frame, 5)
	for i := range frames {
		frames[i] = makeFrame(testSSRC, PayloadTypeJPEG, 2, byte(i))
		s.Enqueue(frames[i])
	}
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	assert.Equal(t, Stopped, s.State())
	assert.Zero(t, s.QueueLength())
	assert.Zero(t, s.Registry().Len())
	for i, f := range frames {
		assert.True(t, f.IsDisposed(), "frame %d", i)
	}

	before := len(d.delivered())
	assert.LessOrEqual(t, before, 2)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, before, len(d.delivered()))
}

func TestStartIsIdempotent(t *testing.T) {
	s, _ := newTestSink(t, testConfig())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, Started, s.State())
	assert.Equal(t, 1, s.Registry().Len())

	tc, err := rtp.NewTransportContext(0x42, testConfig().Media)
	require.NoError(t, err)
	assert.ErrorIs(t, s.AddTransportContext(tc), ErrSinkStarted)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Equal(t, Stopped, s.State())
}

func TestCounterResetsAcrossRestart(t *testing.T) {
	s, _ := newTestSink(t, testConfig())

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 0))
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 1))
	require.NoError(t, s.Start(context.Background()))

	var last int64
	require.Eventually(t, func() bool {
		n := s.FramesProcessed()
		if n < last {
			return false
		}
		last = n
		return n == 2
	}, waitTimeout, waitTick)
	assert.Greater(t, s.FramesPerSecond(), 0.0)

	require.NoError(t, s.Stop())
	assert.Zero(t, s.FramesPerSecond())
	assert.Zero(t, s.Uptime())

	require.NoError(t, s.Start(context.Background()))
	assert.Zero(t, s.FramesProcessed())
	require.Eventually(t, func() bool { return s.FramesPerSecond() > 0 }, waitTimeout, waitTick)

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 2))
	require.Eventually(t, func() bool { return s.FramesProcessed() == 1 }, waitTimeout, waitTick)
}

func TestContextCancelStopsSink(t *testing.T) {
	s, d := newTestSink(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return s.State() == Stopped }, waitTimeout, waitTick)
	assert.Zero(t, s.Registry().Len())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, Started, s.State())
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 0))
	require.Eventually(t, func() bool { return len(d.delivered()) == 1 }, waitTimeout, waitTick)
	assert.Equal(t, uint16(1), d.delivered()[0].seq)
}

func TestFrameChangedEventsReplacePerPacketDelivery(t *testing.T) {
	cfg := testConfig()
	cfg.FrameChangedEvents = true
	s, d := newTestSink(t, cfg)

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 3, 0))
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 2, 1))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.frameEvents()) == 2 }, waitTimeout, waitTick)

	events := d.frameEvents()
	assert.Empty(t, d.delivered())
	assert.Equal(t, frameEvent{ssrc: testSSRC, timestamp: 9000, seqs: []uint16{1, 2, 3}, synthetic: true}, events[0])
	assert.Equal(t, frameEvent{ssrc: testSSRC, timestamp: 18000, seqs: []uint16{4, 5}, synthetic: true}, events[1])
}

func TestDispatchFailureContinuesStream(t *testing.T) {
	s, d := newTestSink(t, testConfig())
	d.fail = func(call int) error {
		if call == 1 {
			return errors.New("network unreachable")
		}
		return nil
	}
	rec := &errorRecorder{}
	s.SetErrorHandler(rec.handle)

	failed := makeFrame(testSSRC, PayloadTypeJPEG, 2, 0)
	s.Enqueue(failed)
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 2, 1))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) == 2 }, waitTimeout, waitTick)

	got := d.delivered()
	assert.Equal(t, []byte{1, 0}, got[0].payload)
	assert.Equal(t, uint16(2), got[0].seq)
	assert.Equal(t, uint16(3), got[1].seq)
	assert.Equal(t, uint32(18000), got[0].ts)

	errs := rec.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDispatchFailed)
	assert.True(t, failed.IsDisposed())
	assert.Equal(t, int64(1), s.Stats().FramesFailed)
	require.Eventually(t, func() bool { return s.FramesProcessed() == 1 }, waitTimeout, waitTick)
}

func TestPanicIsContained(t *testing.T) {
	s, d := newTestSink(t, testConfig())
	d.panicOn = 1
	rec := &errorRecorder{}
	s.SetErrorHandler(rec.handle)

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 0))
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 1))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return len(d.delivered()) == 1 }, waitTimeout, waitTick)
	assert.Equal(t, []byte{1, 0}, d.delivered()[0].payload)

	errs := rec.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrFramePanic)
	assert.Equal(t, Started, s.State())
}

func TestDecodeHook(t *testing.T) {
	cfg := testConfig()
	cfg.DecodeFrames = true
	cfg.DecodePayloadType = PayloadTypeJPEG
	s, _ := newTestSink(t, cfg)

	var mu sync.Mutex
	var decoded []uint32
	s.SetDecodeHook(func(frame *rtp.Frame) error {
		mu.Lock()
		defer mu.Unlock()
		decoded = append(decoded, frame.Timestamp())
		if len(decoded) == 2 {
			return errors.New("corrupt image")
		}
		return nil
	})
	rec := &errorRecorder{}
	s.SetErrorHandler(rec.handle)

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 0))
	s.Enqueue(makeFrame(testSSRC, PayloadTypeRawVideo, 1, 1))
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 2))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return s.FramesProcessed() == 3 }, waitTimeout, waitTick)

	mu.Lock()
	assert.Equal(t, []uint32{9000, 27000}, decoded)
	mu.Unlock()

	errs := rec.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDecodeFailed)
}

func TestTransportContextTracksSentPackets(t *testing.T) {
	s, d := newTestSink(t, testConfig())

	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 2, 0))
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return len(d.delivered()) == 2 }, waitTimeout, waitTick)

	tc, ok := s.Registry().Lookup(testSSRC)
	require.True(t, ok)
	require.Eventually(t, func() bool { return tc.Snapshot().PacketsSent == 2 }, waitTimeout, waitTick)

	snap := tc.Snapshot()
	assert.Equal(t, uint16(2), snap.SequenceNumber)
	assert.Equal(t, uint32(9000), snap.RTPTimestamp)
	assert.Equal(t, uint32(4), snap.OctetsSent)
	assert.True(t, snap.Active)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestTimeProviderDrivesUptimeAndTiming(t *testing.T) {
	start := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)

	s, d := newTestSink(t, testConfig())
	s.SetTimeProvider(clock)
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 3, 0))
	require.NoError(t, s.Start(context.Background()))

	tc, ok := s.Registry().Lookup(testSSRC)
	require.True(t, ok)
	require.Eventually(t, func() bool { return tc.Snapshot().PacketsSent == 3 }, waitTimeout, waitTick)

	snap := tc.Snapshot()
	assert.Equal(t, start, snap.LastRTPOut)
	assert.Zero(t, snap.Jitter)
	assert.Zero(t, s.Uptime())

	// One frame period at 90kHz is 100ms, so the second frame arrives
	// with the same transit time as the first.
	clock.advance(100 * time.Millisecond)
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 3, 1))
	require.Eventually(t, func() bool { return tc.Snapshot().PacketsSent == 6 }, waitTimeout, waitTick)
	require.Eventually(t, func() bool { return s.FramesProcessed() == 2 }, waitTimeout, waitTick)

	snap = tc.Snapshot()
	assert.Equal(t, start.Add(100*time.Millisecond), snap.LastRTPOut)
	assert.Zero(t, snap.Jitter)

	got := d.delivered()
	require.Len(t, got, 6)
	for i, p := range got {
		assert.Equal(t, uint32(9000*(i/3+1)), p.ts, "packet %d timestamp", i)
	}

	clock.advance(5 * time.Second)
	assert.Equal(t, 5100*time.Millisecond, s.Uptime())
	assert.InDelta(t, 2/5.1, s.FramesPerSecond(), 1e-9)

	s.SetTimeProvider(nil)
	require.NoError(t, s.Stop())
	assert.Zero(t, s.Uptime())
}

func TestCallbacksMayReadConfigDuringStop(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu       sync.Mutex
		seenName string
		seenSDP  bool
	)

	var s *Sink
	var once sync.Once
	d := funcDispatcher{deliver: func(*rtp.Packet) error {
		once.Do(func() { close(entered) })
		<-release

		cfg := s.Config()
		desc, err := s.SessionDescription()
		mu.Lock()
		defer mu.Unlock()
		seenName = cfg.Name
		seenSDP = err == nil && desc != nil
		return nil
	}}

	s, err := New(testConfig(), d)
	require.NoError(t, err)
	s.Enqueue(makeFrame(testSSRC, PayloadTypeJPEG, 1, 0))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("dispatcher was never called")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()
	require.Eventually(t, func() bool { return s.State() == Stopped }, waitTimeout, waitTick)
	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not return while a callback read the configuration")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "test", seenName)
	assert.True(t, seenSDP)
}

func TestSetLoopUpdatesConfig(t *testing.T) {
	s, _ := newTestSink(t, testConfig())
	assert.False(t, s.Config().Loop)

	s.SetLoop(true)
	assert.True(t, s.Config().Loop)
}
