package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/opd-ai/mediakit/av/sink"
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// dscpExpeditedForwarding is DSCP EF (46) shifted into the TOS byte.
const dscpExpeditedForwarding = 0xb8

const (
	readTimeout   = 100 * time.Millisecond
	maxDatagram   = 2048
	rtcpTypeFirst = 192
	rtcpTypeLast  = 223
)

var _ sink.Dispatcher = (*Fanout)(nil)

// ReceiverReport is the latest RTCP reception report sent by a receiver.
type ReceiverReport struct {
	From     net.Addr
	Report   rtcp.ReceptionReport
	Received time.Time
}

// Stats holds fan-out counters.
type Stats struct {
	PacketsSent     int64
	WriteErrors     int64
	ReportsSent     int64
	ReportsReceived int64
}

// Fanout writes RTP packets to every registered UDP receiver.
type Fanout struct {
	conn net.PacketConn

	mu        sync.RWMutex
	receivers []net.Addr
	reports   map[string]ReceiverReport

	closed          atomic.Bool
	packetsSent     atomic.Int64
	writeErrors     atomic.Int64
	reportsSent     atomic.Int64
	reportsReceived atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFanout opens a UDP socket on listenAddr and starts reading RTCP
// feedback from it.
//
// Parameters:
//   - listenAddr: Local address in host:port form; port 0 picks a free port
//
// Returns:
//   - *Fanout: The fan-out, ready for receivers
//   - error: Socket errors
func NewFanout(listenAddr string) (*Fanout, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewFanout",
			"listen":   listenAddr,
			"error":    err.Error(),
		}).Error("Failed to open fanout socket")
		return nil, fmt.Errorf("listen %s: %w", listenAddr, err)
	}

	setExpeditedForwarding(conn)

	f := newFanout(conn)
	f.done = make(chan struct{})
	go f.processPackets()

	logrus.WithFields(logrus.Fields{
		"function": "NewFanout",
		"local":    conn.LocalAddr().String(),
	}).Info("Fanout listening")

	return f, nil
}

func newFanout(conn net.PacketConn) *Fanout {
	ctx, cancel := context.WithCancel(context.Background())
	return &Fanout{
		conn:    conn,
		reports: make(map[string]ReceiverReport),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// setExpeditedForwarding marks outgoing datagrams with DSCP EF. Failure
// is logged and otherwise ignored.
func setExpeditedForwarding(conn net.PacketConn) {
	err := ipv4.NewPacketConn(conn).SetTOS(dscpExpeditedForwarding)
	if err != nil {
		err = ipv6.NewPacketConn(conn).SetTrafficClass(dscpExpeditedForwarding)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "setExpeditedForwarding",
			"error":    err.Error(),
		}).Warn("Could not set DSCP on fanout socket")
	}
}

// LocalAddr returns the address of the fan-out socket.
func (f *Fanout) LocalAddr() net.Addr {
	return f.conn.LocalAddr()
}

// AddReceiver registers a destination for RTP packets.
func (f *Fanout) AddReceiver(addr net.Addr) error {
	if addr == nil {
		return ErrNilAddr
	}
	if f.closed.Load() {
		return ErrClosed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := addr.String()
	for _, r := range f.receivers {
		if r.String() == key {
			return fmt.Errorf("%w: %s", ErrReceiverExists, key)
		}
	}
	f.receivers = append(f.receivers, addr)

	logrus.WithFields(logrus.Fields{
		"function":  "Fanout.AddReceiver",
		"receiver":  key,
		"receivers": len(f.receivers),
	}).Info("Receiver added")

	return nil
}

// RemoveReceiver unregisters a destination. It reports whether the
// receiver was present.
func (f *Fanout) RemoveReceiver(addr net.Addr) bool {
	if addr == nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := addr.String()
	for i, r := range f.receivers {
		if r.String() == key {
			f.receivers = append(f.receivers[:i], f.receivers[i+1:]...)
			delete(f.reports, key)
			logrus.WithFields(logrus.Fields{
				"function": "Fanout.RemoveReceiver",
				"receiver": key,
			}).Info("Receiver removed")
			return true
		}
	}
	return false
}

// Receivers returns the registered destinations in insertion order.
func (f *Fanout) Receivers() []net.Addr {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]net.Addr(nil), f.receivers...)
}

// Deliver marshals packet and writes it to every receiver.
//
// A packet with no receivers registered is dropped without error. When
// some writes fail the failures are logged; an error is returned only if
// every write failed.
func (f *Fanout) Deliver(packet *rtp.Packet, tc *rtp.TransportContext) error {
	if f.closed.Load() {
		return ErrClosed
	}

	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("marshal rtp packet %d: %w", packet.SequenceNumber, err)
	}

	return f.writeAll(data, f.Receivers(), "rtp")
}

// OnFrameChanged delivers every packet of frame.
func (f *Fanout) OnFrameChanged(frame *rtp.Frame, tc *rtp.TransportContext, synthetic bool) error {
	var errs []error
	for _, packet := range frame.Packets() {
		if err := f.Deliver(packet, tc); err != nil {
			errs = append(errs, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Fanout.OnFrameChanged",
		"ssrc":      frame.SSRC(),
		"packets":   frame.Len(),
		"synthetic": synthetic,
		"failed":    len(errs),
	}).Debug("Frame delivered")

	return errors.Join(errs...)
}

// SendSenderReport sends an RTCP sender report for tc to the RTCP port of
// every UDP receiver.
func (f *Fanout) SendSenderReport(tc *rtp.TransportContext) error {
	if f.closed.Load() {
		return ErrClosed
	}

	data, err := tc.SenderReport(time.Now()).Marshal()
	if err != nil {
		return fmt.Errorf("marshal sender report: %w", err)
	}

	var targets []net.Addr
	for _, r := range f.Receivers() {
		if addr := rtcpAddr(r); addr != nil {
			targets = append(targets, addr)
		}
	}

	if err := f.writeAll(data, targets, "rtcp"); err != nil {
		return err
	}
	f.reportsSent.Inc()
	return nil
}

// rtcpAddr returns the RTCP address paired with an RTP receiver, or nil
// for non-UDP addresses.
func rtcpAddr(addr net.Addr) net.Addr {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil
	}
	return &net.UDPAddr{IP: udp.IP, Port: udp.Port + 1, Zone: udp.Zone}
}

func (f *Fanout) writeAll(data []byte, targets []net.Addr, kind string) error {
	if len(targets) == 0 {
		return nil
	}

	var errs []error
	for _, addr := range targets {
		if _, err := f.conn.WriteTo(data, addr); err != nil {
			f.writeErrors.Inc()
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		if kind == "rtp" {
			f.packetsSent.Inc()
		}
	}

	switch {
	case len(errs) == len(targets):
		return fmt.Errorf("%w (%s): %w", ErrAllReceiversFailed, kind, errors.Join(errs...))
	case len(errs) > 0:
		logrus.WithFields(logrus.Fields{
			"function": "Fanout.writeAll",
			"kind":     kind,
			"failed":   len(errs),
			"targets":  len(targets),
			"error":    errors.Join(errs...).Error(),
		}).Warn("Partial fanout failure")
	}
	return nil
}

// ReceiverReports returns the latest reception report of every receiver
// that has sent one.
func (f *Fanout) ReceiverReports() []ReceiverReport {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]ReceiverReport, 0, len(f.reports))
	for _, r := range f.receivers {
		if report, ok := f.reports[r.String()]; ok {
			out = append(out, report)
		}
	}
	return out
}

// Stats returns a copy of the fan-out counters.
func (f *Fanout) Stats() Stats {
	return Stats{
		PacketsSent:     f.packetsSent.Load(),
		WriteErrors:     f.writeErrors.Load(),
		ReportsSent:     f.reportsSent.Load(),
		ReportsReceived: f.reportsReceived.Load(),
	}
}

// Close stops the feedback reader and closes the socket. Calling Close
// more than once is a no-op.
func (f *Fanout) Close() error {
	if !f.closed.CAS(false, true) {
		return nil
	}

	f.cancel()
	err := f.conn.Close()
	if f.done != nil {
		<-f.done
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Fanout.Close",
		"packets_sent": f.packetsSent.Load(),
		"write_errors": f.writeErrors.Load(),
	}).Info("Fanout closed")

	return err
}

// processPackets reads RTCP feedback until the fan-out is closed.
func (f *Fanout) processPackets() {
	defer close(f.done)

	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-f.ctx.Done():
			return
		default:
			f.processIncomingPacket(buffer)
		}
	}
}

func (f *Fanout) processIncomingPacket(buffer []byte) {
	_ = f.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, addr, err := f.conn.ReadFrom(buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		if f.ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{
				"function": "Fanout.processIncomingPacket",
				"error":    err.Error(),
			}).Debug("Fanout read failed")
		}
		return
	}

	f.handleFeedback(buffer[:n], addr)
}

// handleFeedback records reception reports carried in an RTCP compound
// packet. Anything that is not RTCP is ignored.
func (f *Fanout) handleFeedback(data []byte, from net.Addr) {
	if len(data) < 2 || data[1] < rtcpTypeFirst || data[1] > rtcpTypeLast {
		return
	}

	packets, err := rtcp.Unmarshal(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Fanout.handleFeedback",
			"from":     from.String(),
			"error":    err.Error(),
		}).Debug("Malformed RTCP from receiver")
		return
	}

	now := time.Now()
	for _, p := range packets {
		var reports []rtcp.ReceptionReport
		switch pkt := p.(type) {
		case *rtcp.ReceiverReport:
			reports = pkt.Reports
		case *rtcp.SenderReport:
			reports = pkt.Reports
		}

		for _, report := range reports {
			f.recordReport(from, report, now)
		}
	}
}

func (f *Fanout) recordReport(from net.Addr, report rtcp.ReceptionReport, now time.Time) {
	key := from.String()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Feedback may arrive from the receiver's RTP or RTCP port.
	known := false
	for _, r := range f.receivers {
		if r.String() == key {
			known = true
			break
		}
		if alt := rtcpAddr(r); alt != nil && alt.String() == key {
			key = r.String()
			known = true
			break
		}
	}
	if !known {
		return
	}

	f.reports[key] = ReceiverReport{From: from, Report: report, Received: now}
	f.reportsReceived.Inc()

	logrus.WithFields(logrus.Fields{
		"function":      "Fanout.recordReport",
		"receiver":      key,
		"ssrc":          report.SSRC,
		"fraction_lost": report.FractionLost,
		"total_lost":    report.TotalLost,
		"jitter":        report.Jitter,
	}).Debug("Receiver report")
}
