package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/opd-ai/mediakit/av/sink"
	"github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listenUDP opens a loopback socket closed at the end of the test.
func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestFanout(t *testing.T) *Fanout {
	t.Helper()

	f, err := NewFanout("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// readRTP reads one RTP packet from conn.
func readRTP(t *testing.T, conn net.PacketConn) *pionrtp.Packet {
	t.Helper()

	buf := make([]byte, maxDatagram)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)

	p := &pionrtp.Packet{}
	require.NoError(t, p.Unmarshal(buf[:n]))
	return p
}

func newContext(t *testing.T) *rtp.TransportContext {
	t.Helper()

	tc, err := rtp.NewTransportContext(0xCAFE, rtp.MediaDescription{Media: "video", PayloadType: 26, ClockRate: 90000})
	require.NoError(t, err)
	return tc
}

func stampedPacket(tc *rtp.TransportContext, payload string) *rtp.Packet {
	p := rtp.NewPacket(26, []byte(payload), true)
	rtp.Stamp(p, tc, tc.SSRC)
	return p
}

// scriptedConn is a PacketConn whose writes fail for chosen addresses.
type scriptedConn struct {
	net.PacketConn

	mu     sync.Mutex
	fail   map[string]bool
	writes map[string]int
}

func newScriptedConn(failing ...string) *scriptedConn {
	c := &scriptedConn{fail: make(map[string]bool), writes: make(map[string]int)}
	for _, a := range failing {
		c.fail[a] = true
	}
	return c
}

func (c *scriptedConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail[addr.String()] {
		return 0, errors.New("network unreachable")
	}
	c.writes[addr.String()]++
	return len(b), nil
}

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
}

func udpAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestFanoutReceivers(t *testing.T) {
	f := newFanout(newScriptedConn())

	assert.ErrorIs(t, f.AddReceiver(nil), ErrNilAddr)
	require.NoError(t, f.AddReceiver(udpAddr(6000)))
	require.NoError(t, f.AddReceiver(udpAddr(6002)))
	assert.ErrorIs(t, f.AddReceiver(udpAddr(6000)), ErrReceiverExists)

	assert.Equal(t, []net.Addr{udpAddr(6000), udpAddr(6002)}, f.Receivers())

	assert.True(t, f.RemoveReceiver(udpAddr(6000)))
	assert.False(t, f.RemoveReceiver(udpAddr(6000)))
	assert.False(t, f.RemoveReceiver(nil))
	assert.Equal(t, []net.Addr{udpAddr(6002)}, f.Receivers())
}

func TestFanoutDeliverLoopback(t *testing.T) {
	f := newTestFanout(t)
	a := listenUDP(t)
	b := listenUDP(t)
	require.NoError(t, f.AddReceiver(a.LocalAddr()))
	require.NoError(t, f.AddReceiver(b.LocalAddr()))

	tc := newContext(t)
	tc.RTPTimestamp = 3000
	packet := stampedPacket(tc, "hello")
	require.NoError(t, f.Deliver(packet, tc))

	for _, conn := range []net.PacketConn{a, b} {
		got := readRTP(t, conn)
		assert.Equal(t, uint32(0xCAFE), got.SSRC)
		assert.Equal(t, uint16(1), got.SequenceNumber)
		assert.Equal(t, uint32(3000), got.Timestamp)
		assert.Equal(t, uint8(26), got.PayloadType)
		assert.True(t, got.Marker)
		assert.Equal(t, []byte("hello"), got.Payload)
	}

	assert.Equal(t, int64(2), f.Stats().PacketsSent)
}

func TestFanoutDeliverWithoutReceivers(t *testing.T) {
	f := newFanout(newScriptedConn())
	tc := newContext(t)

	assert.NoError(t, f.Deliver(stampedPacket(tc, "x"), tc))
	assert.Zero(t, f.Stats().PacketsSent)
}

func TestFanoutPartialFailure(t *testing.T) {
	tests := []struct {
		name    string
		failing []string
		wantErr bool
		sent    int64
	}{
		{"all succeed", nil, false, 2},
		{"one fails", []string{"127.0.0.1:6000"}, false, 1},
		{"all fail", []string{"127.0.0.1:6000", "127.0.0.1:6002"}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newScriptedConn(tt.failing...)
			f := newFanout(conn)
			require.NoError(t, f.AddReceiver(udpAddr(6000)))
			require.NoError(t, f.AddReceiver(udpAddr(6002)))

			tc := newContext(t)
			err := f.Deliver(stampedPacket(tc, "p"), tc)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAllReceiversFailed)
				assert.Contains(t, err.Error(), "network unreachable")
			} else {
				assert.NoError(t, err)
			}

			stats := f.Stats()
			assert.Equal(t, tt.sent, stats.PacketsSent)
			assert.Equal(t, int64(len(tt.failing)), stats.WriteErrors)
		})
	}
}

func TestFanoutOnFrameChanged(t *testing.T) {
	conn := newScriptedConn()
	f := newFanout(conn)
	require.NoError(t, f.AddReceiver(udpAddr(6000)))

	tc := newContext(t)
	frame := rtp.NewFrame(tc.SSRC, 26)
	for i := 0; i < 3; i++ {
		p := rtp.NewPacket(26, []byte{byte(i)}, i == 2)
		rtp.Stamp(p, tc, tc.SSRC)
		require.NoError(t, frame.Add(p))
	}

	require.NoError(t, f.OnFrameChanged(frame, tc, true))
	assert.Equal(t, 3, conn.writes["127.0.0.1:6000"])

	failing := newFanout(newScriptedConn("127.0.0.1:6000"))
	require.NoError(t, failing.AddReceiver(udpAddr(6000)))
	assert.ErrorIs(t, failing.OnFrameChanged(frame, tc, true), ErrAllReceiversFailed)
}

func TestFanoutSendSenderReport(t *testing.T) {
	f := newTestFanout(t)
	rtcpConn := listenUDP(t)
	rtcpPort := rtcpConn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, f.AddReceiver(udpAddr(rtcpPort-1)))

	tc := newContext(t)
	for i := 0; i < 4; i++ {
		p := stampedPacket(tc, "abcd")
		tc.UpdateJitterAndTimestamp(p, time.Now())
	}

	require.NoError(t, f.SendSenderReport(tc))

	buf := make([]byte, maxDatagram)
	require.NoError(t, rtcpConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := rtcpConn.ReadFrom(buf)
	require.NoError(t, err)

	packets, err := rtcp.Unmarshal(buf[:n])
	require.NoError(t, err)
	require.Len(t, packets, 1)
	sr, ok := packets[0].(*rtcp.SenderReport)
	require.True(t, ok)
	assert.Equal(t, uint32(0xCAFE), sr.SSRC)
	assert.Equal(t, uint32(4), sr.PacketCount)
	assert.Equal(t, uint32(16), sr.OctetCount)
	assert.Equal(t, int64(1), f.Stats().ReportsSent)
}

func TestFanoutReceiverReports(t *testing.T) {
	f := newTestFanout(t)
	client := listenUDP(t)
	require.NoError(t, f.AddReceiver(client.LocalAddr()))

	rr := &rtcp.ReceiverReport{
		SSRC: 0xBEEF,
		Reports: []rtcp.ReceptionReport{{
			SSRC:         0xCAFE,
			FractionLost: 12,
			TotalLost:    3,
			Jitter:       90,
		}},
	}
	data, err := rr.Marshal()
	require.NoError(t, err)

	// Unknown sources and RTP traffic are ignored.
	stranger := listenUDP(t)
	_, err = stranger.WriteTo(data, f.LocalAddr())
	require.NoError(t, err)
	_, err = client.WriteTo([]byte{0x80, 26, 0, 1}, f.LocalAddr())
	require.NoError(t, err)

	_, err = client.WriteTo(data, f.LocalAddr())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.ReceiverReports()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	report := f.ReceiverReports()[0]
	assert.Equal(t, client.LocalAddr().String(), report.From.String())
	assert.Equal(t, uint32(0xCAFE), report.Report.SSRC)
	assert.Equal(t, uint8(12), report.Report.FractionLost)
	assert.Equal(t, uint32(90), report.Report.Jitter)
	assert.Equal(t, int64(1), f.Stats().ReportsReceived)
}

func TestFanoutClose(t *testing.T) {
	f, err := NewFanout("127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, f.Close())
	assert.NoError(t, f.Close())

	tc := newContext(t)
	assert.ErrorIs(t, f.Deliver(stampedPacket(tc, "x"), tc), ErrClosed)
	assert.ErrorIs(t, f.SendSenderReport(tc), ErrClosed)
	assert.ErrorIs(t, f.AddReceiver(udpAddr(7000)), ErrClosed)
}

func TestFanoutDrivenBySink(t *testing.T) {
	f := newTestFanout(t)
	receiver := listenUDP(t)
	require.NoError(t, f.AddReceiver(receiver.LocalAddr()))

	cfg := sink.VideoConfig("loopback")
	cfg.SSRC = 0x5151
	cfg.PriorityHints = false
	s, err := sink.New(cfg, f)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	frame, err := rtp.Packetize(cfg.SSRC, sink.PayloadTypeJPEG, []byte("0123456789"), rtp.HeaderSize+4)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	s.Enqueue(frame)

	var payload []byte
	for i := 0; i < 3; i++ {
		p := readRTP(t, receiver)
		assert.Equal(t, uint32(0x5151), p.SSRC)
		assert.Equal(t, uint16(i+1), p.SequenceNumber)
		payload = append(payload, p.Payload...)
	}
	assert.Equal(t, []byte("0123456789"), payload)
}
