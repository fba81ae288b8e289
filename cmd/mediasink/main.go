package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opd-ai/mediakit/av/preview"
	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/opd-ai/mediakit/av/sink"
	"github.com/opd-ai/mediakit/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// maxQueuedFrames bounds how far the producer runs ahead of the sink.
const maxQueuedFrames = 4

// CLI configuration
type CLIConfig struct {
	configPath    string
	listen        string
	receivers     string
	clockRate     uint
	loop          bool
	frames        int
	width         int
	height        int
	mtu           int
	duration      time.Duration
	sdpOut        string
	snapshot      string
	snapshotEvery int
	priorityHints bool
	logLevel      string
	logFile       string
	help          bool
}

// parseCLIFlags parses args into a configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	config := &CLIConfig{}

	// Sink configuration
	fs.StringVar(&config.configPath, "config", "", "YAML sink configuration file")
	fs.UintVar(&config.clockRate, "clock-rate", 0, "Pacing clock rate; overrides the configuration when set")
	fs.BoolVar(&config.loop, "loop", false, "Replay the generated frames indefinitely")
	fs.BoolVar(&config.priorityHints, "priority-hints", true, "Adjust scheduler thread priority")

	// Network configuration
	fs.StringVar(&config.listen, "listen", "0.0.0.0:0", "Local UDP address to send from")
	fs.StringVar(&config.receivers, "receivers", "127.0.0.1:5004", "Comma-separated receiver RTP addresses")
	fs.IntVar(&config.mtu, "mtu", rtp.DefaultMTU, "Maximum RTP packet size in bytes")

	// Source configuration
	fs.IntVar(&config.frames, "frames", 0, "Number of frames to generate (0 = unlimited)")
	fs.IntVar(&config.width, "width", 320, "Picture width")
	fs.IntVar(&config.height, "height", 240, "Picture height")
	fs.DurationVar(&config.duration, "duration", 0, "Stop after this long (0 = until interrupted)")

	// Outputs
	fs.StringVar(&config.sdpOut, "sdp-out", "", "Write the session description to this file")
	fs.StringVar(&config.snapshot, "snapshot", "", "Write periodic BMP snapshots to this file")
	fs.IntVar(&config.snapshotEvery, "snapshot-every", 30, "Frames between snapshots")

	// Logging configuration
	fs.StringVar(&config.logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&config.logFile, "log-file", "", "Log file path (default: stderr)")

	// Help
	fs.BoolVar(&config.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config, nil
}

// printUsage prints the usage information.
func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Media Sink Test Source")
	fmt.Fprintln(w, "======================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Streams a moving colour-bar pattern as raw YUV 4:2:0 over RTP.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [options]\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  # Stream to two local receivers for ten seconds\n")
	fmt.Fprintf(w, "  %s -receivers 127.0.0.1:5004,127.0.0.1:5006 -duration 10s\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  # Loop 30 frames and write the SDP and snapshots\n")
	fmt.Fprintf(w, "  %s -frames 30 -loop -sdp-out stream.sdp -snapshot latest.bmp\n", os.Args[0])
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if config.width <= 0 || config.height <= 0 {
		return fmt.Errorf("invalid picture size %dx%d", config.width, config.height)
	}

	if config.mtu <= rtp.HeaderSize {
		return fmt.Errorf("mtu must exceed the %d byte RTP header", rtp.HeaderSize)
	}

	if config.frames < 0 {
		return fmt.Errorf("frame count cannot be negative")
	}

	if config.loop && config.frames == 0 {
		return fmt.Errorf("loop requires a frame count")
	}

	if config.duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}

	if strings.TrimSpace(config.receivers) == "" {
		return fmt.Errorf("at least one receiver is required")
	}

	return nil
}

// parseReceivers resolves a comma-separated list of UDP addresses.
func parseReceivers(list string) ([]net.Addr, error) {
	var addrs []net.Addr
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", part)
		if err != nil {
			return nil, fmt.Errorf("receiver %q: %w", part, err)
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no receivers in %q", list)
	}
	return addrs, nil
}

// setupLogging configures the global logger and returns a function that
// releases the log file, if any.
func setupLogging(level, file string) (func(), error) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if file == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return func() {
		logrus.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

// buildSinkConfig loads the sink configuration file when one is given and
// applies command-line overrides. Without a file the sink sends raw video.
func buildSinkConfig(cli *CLIConfig, fs afero.Fs) (sink.Config, error) {
	var cfg sink.Config
	if cli.configPath != "" {
		loaded, err := sink.LoadConfig(fs, cli.configPath)
		if err != nil {
			return sink.Config{}, err
		}
		cfg = loaded
	} else {
		cfg = sink.VideoConfig("mediasink")
		cfg.Media.PayloadType = sink.PayloadTypeRawVideo
		cfg.Media.Encoding = "raw"
		cfg.DecodePayloadType = sink.PayloadTypeRawVideo
	}

	if cli.clockRate > 0 {
		cfg.ClockRate = uint32(cli.clockRate)
	}
	cfg.Loop = cfg.Loop || cli.loop
	cfg.PriorityHints = cfg.PriorityHints && cli.priorityHints
	if cli.snapshot != "" {
		cfg.DecodeFrames = true
	}

	return cfg, cfg.Validate()
}

// writeSDP writes the sink's session description to path.
func writeSDP(fs afero.Fs, s *sink.Sink, path string) error {
	desc, err := s.SessionDescription()
	if err != nil {
		return err
	}
	data, err := desc.Marshal()
	if err != nil {
		return fmt.Errorf("marshal sdp: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write sdp: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "writeSDP",
		"path":     path,
	}).Info("Wrote session description")
	return nil
}

// run streams until ctx is cancelled, the duration elapses or a finite
// non-looping source has been fully sent.
func run(ctx context.Context, cli *CLIConfig, fs afero.Fs) error {
	receivers, err := parseReceivers(cli.receivers)
	if err != nil {
		return err
	}

	cfg, err := buildSinkConfig(cli, fs)
	if err != nil {
		return err
	}

	fanout, err := transport.NewFanout(cli.listen)
	if err != nil {
		return err
	}
	defer fanout.Close()

	for _, addr := range receivers {
		if err := fanout.AddReceiver(addr); err != nil {
			return err
		}
	}

	s, err := sink.New(cfg, fanout)
	if err != nil {
		return err
	}

	if cli.snapshot != "" {
		snap, err := preview.NewSnapshotPreview(fs, cli.snapshot, cli.width, cli.height, cli.snapshotEvery)
		if err != nil {
			return err
		}
		s.SetDecodeHook(snap.Decode)
	}

	if cli.sdpOut != "" {
		if err := writeSDP(fs, s, cli.sdpOut); err != nil {
			return err
		}
	}

	if cli.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.duration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := produce(gctx, s, cli, cfg.Loop, cfg.Media.PayloadType)
		if err == nil && !cfg.Loop {
			// A finite source is done once the sink drains it.
			waitDrained(gctx, s, time.Duration(cfg.ClockRate)*time.Millisecond)
			cancel()
		}
		return err
	})
	g.Go(func() error {
		reportLoop(gctx, s, fanout)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Stop()
	})

	err = g.Wait()

	stats := s.Stats()
	fstats := fanout.Stats()
	logrus.WithFields(logrus.Fields{
		"function":         "run",
		"frames_processed": stats.FramesProcessed,
		"frames_failed":    stats.FramesFailed,
		"packets_sent":     fstats.PacketsSent,
		"write_errors":     fstats.WriteErrors,
		"uptime":           stats.Uptime.String(),
	}).Info("Stream finished")

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// produce generates pattern frames and feeds them to the sink. loop is
// the sink's effective loop mode, which a config file may enable.
func produce(ctx context.Context, s *sink.Sink, cli *CLIConfig, loop bool, payloadType uint8) error {
	poll := time.NewTicker(time.Duration(s.Config().ClockRate) * time.Millisecond)
	defer poll.Stop()

	// A looping sink never drains its queue, so only an endless source
	// is throttled there.
	throttle := !loop || cli.frames == 0

	for n := 0; cli.frames == 0 || n < cli.frames; n++ {
		for throttle && s.QueueLength() >= maxQueuedFrames {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-poll.C:
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		img, err := colorBars(cli.width, cli.height, n)
		if err != nil {
			return err
		}
		frame, err := rtp.Packetize(s.SSRC(), payloadType, img.Data, cli.mtu)
		if err != nil {
			return err
		}
		s.Enqueue(frame)
	}

	logrus.WithFields(logrus.Fields{
		"function": "produce",
		"frames":   cli.frames,
	}).Debug("Source exhausted")
	return nil
}

func waitDrained(ctx context.Context, s *sink.Sink, poll time.Duration) {
	for s.QueueLength() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(poll):
		}
	}
}

// reportLoop sends an RTCP sender report every second.
func reportLoop(ctx context.Context, s *sink.Sink, fanout *transport.Fanout) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tc, ok := s.Registry().Lookup(s.SSRC())
		if !ok {
			continue
		}
		if err := fanout.SendSenderReport(tc); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "reportLoop",
				"error":    err.Error(),
			}).Warn("Sender report failed")
		}

		stats := s.Stats()
		logrus.WithFields(logrus.Fields{
			"function":    "reportLoop",
			"fps":         fmt.Sprintf("%.1f", stats.FramesPerSecond),
			"queue":       stats.QueueLength,
			"processed":   stats.FramesProcessed,
			"failed":      stats.FramesFailed,
			"jitter":      tc.Snapshot().Jitter,
			"rr_receiver": len(fanout.ReceiverReports()),
		}).Info("Stream status")
	}
}

// setupSignalHandling cancels ctx on SIGINT or SIGTERM.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Shutting down")
		cancel()
	}()
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cliConfig, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		os.Exit(2)
	}

	if cliConfig.help {
		printUsage(os.Stdout, fs)
		os.Exit(0)
	}

	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	closeLog, err := setupLogging(cliConfig.logLevel, cliConfig.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if err := run(ctx, cliConfig, afero.NewOsFs()); err != nil {
		logrus.WithError(err).Error("Stream failed")
		closeLog()
		os.Exit(1)
	}
}
