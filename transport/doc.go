// Package transport sends stamped RTP packets from a media sink to a set
// of UDP receivers.
//
// # Fan-out
//
// Fanout owns one UDP socket and implements the sink's dispatcher
// interface. Every packet handed to Deliver is marshalled once and
// written to each registered receiver:
//
//	fanout, err := transport.NewFanout("0.0.0.0:0")
//	if err != nil {
//	    return err
//	}
//	defer fanout.Close()
//
//	addr, _ := net.ResolveUDPAddr("udp", "192.0.2.10:5004")
//	fanout.AddReceiver(addr)
//
//	s, err := sink.New(sink.VideoConfig("camera"), fanout)
//
// A write failure to one receiver never stalls the stream. Deliver only
// reports an error when no receiver could be reached.
//
// # RTCP
//
// SendSenderReport sends an RTCP sender report for a transport context to
// every receiver's RTCP port, one above its RTP port. Receiver reports
// arriving on the fan-out socket (RTP/RTCP multiplexing) are parsed and
// kept per receiver; ReceiverReports returns the latest ones.
//
// The socket is marked with DSCP Expedited Forwarding where the platform
// allows it.
package transport
