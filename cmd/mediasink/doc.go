// Package main provides the mediasink command, an RTP test source.
//
// # Overview
//
// mediasink is a synthetic RTP source. It renders a scrolling colour-bar
// pattern, converts it to planar YUV 4:2:0, packetizes each picture and
// hands the frames to a paced media sink. The sink stamps sequence
// numbers and timestamps and a UDP fan-out delivers the packets to every
// receiver. An RTCP sender report goes out once per second.
//
// # Usage
//
// Stream until interrupted:
//
//	go run ./cmd/mediasink -receivers 127.0.0.1:5004
//
// Loop a short clip and publish the SDP for a player:
//
//	go run ./cmd/mediasink -frames 30 -loop -sdp-out stream.sdp
//
// # Configuration Options
//
//   - -config: YAML sink configuration (see sink.LoadConfig)
//   - -listen: Local UDP address (default: 0.0.0.0:0)
//   - -receivers: Comma-separated receiver addresses (default: 127.0.0.1:5004)
//   - -clock-rate: Pacing clock rate override
//   - -loop: Replay the generated frames
//   - -frames: Frames to generate, 0 for unlimited
//   - -width, -height: Picture size (default: 320x240)
//   - -mtu: Maximum packet size (default: 1500)
//   - -duration: Stop after this long
//   - -sdp-out: Session description output file
//   - -snapshot, -snapshot-every: Periodic BMP snapshot of the sent picture
//   - -log-level, -log-file: Logging
//
// The process stops on SIGINT or SIGTERM.
package main
