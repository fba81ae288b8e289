package sink

import (
	"fmt"
	"math"

	"github.com/ghodss/yaml"
	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Well-known payload types used by the presets.
const (
	// PayloadTypeJPEG is the static RTP payload type for RFC 2435 JPEG video.
	PayloadTypeJPEG uint8 = 26
	// PayloadTypeILBC is the dynamic payload type used for RFC 3952 iLBC audio.
	PayloadTypeILBC uint8 = 97
	// PayloadTypeOpus is the dynamic payload type used for Opus audio.
	PayloadTypeOpus uint8 = 111
	// PayloadTypeRawVideo is the dynamic payload type used for raw YUV video.
	PayloadTypeRawVideo uint8 = 98
)

// Config holds the settings consulted by a sink and its scheduler.
//
// Field tags follow JSON naming so the same struct loads from YAML via
// ghodss/yaml.
type Config struct {
	// Name is the session name published in SDP.
	Name string `json:"name"`
	// SSRC is the sink's published synchronization source. Zero picks a
	// random identifier at construction.
	SSRC uint32 `json:"ssrc"`
	// ClockRate is the pacing clock rate. The scheduler sleeps ClockRate
	// milliseconds between frames and advances timestamps by
	// ClockRate*1000 per frame.
	ClockRate uint32 `json:"clock_rate"`
	// Media describes the stream registered for the sink's own SSRC.
	Media rtp.MediaDescription `json:"media"`
	// Loop replays frames indefinitely by re-enqueueing them.
	Loop bool `json:"loop"`
	// DecodeFrames enables the decode hook for DecodePayloadType frames.
	DecodeFrames bool `json:"decode_frames"`
	// DecodePayloadType selects which frames reach the decode hook.
	DecodePayloadType uint8 `json:"decode_payload_type"`
	// FrameChangedEvents selects whole-frame notification instead of
	// per-packet delivery.
	FrameChangedEvents bool `json:"frame_changed_events"`
	// PriorityHints enables OS thread priority changes when permitted.
	PriorityHints bool `json:"priority_hints"`
}

// DefaultConfig returns the configuration of a JPEG video sink.
func DefaultConfig() Config {
	return VideoConfig("mediakit")
}

// VideoConfig returns a configuration for an RFC 2435 JPEG video sink.
// The pacing clock rate of 9 yields timestamp steps of 9000 ticks.
func VideoConfig(name string) Config {
	return Config{
		Name:      name,
		ClockRate: 9,
		Media: rtp.MediaDescription{
			Media:       "video",
			PayloadType: PayloadTypeJPEG,
			Encoding:    "JPEG",
			ClockRate:   90000,
			Control:     "video",
		},
		DecodePayloadType: PayloadTypeJPEG,
		PriorityHints:     true,
	}
}

// ILBCConfig returns a configuration for an RFC 3952 iLBC audio sink.
func ILBCConfig(name string) Config {
	return Config{
		Name:      name,
		ClockRate: 80,
		Media: rtp.MediaDescription{
			Media:       "audio",
			PayloadType: PayloadTypeILBC,
			Encoding:    "iLBC",
			ClockRate:   8000,
			Channels:    1,
			Control:     "1",
		},
		DecodePayloadType: PayloadTypeILBC,
		PriorityHints:     true,
	}
}

// OpusConfig returns a configuration for an Opus audio sink paced at
// 20 ms frames.
func OpusConfig(name string) Config {
	return Config{
		Name:      name,
		ClockRate: 20,
		Media: rtp.MediaDescription{
			Media:       "audio",
			PayloadType: PayloadTypeOpus,
			Encoding:    "opus",
			ClockRate:   48000,
			Channels:    2,
			Control:     "audio",
		},
		DecodePayloadType: PayloadTypeOpus,
		PriorityHints:     true,
	}
}

// maxClockRate keeps the per-frame timestamp step, ClockRate*1000,
// within 32 bits.
const maxClockRate = math.MaxUint32 / 1000

// Validate checks that the configuration can drive a sink.
func (c Config) Validate() error {
	if c.ClockRate == 0 || c.ClockRate > maxClockRate {
		return ErrInvalidClockRate
	}
	if err := c.Media.Validate(); err != nil {
		return fmt.Errorf("media: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML configuration file.
//
// Fields missing from the file keep the values of DefaultConfig.
//
// Parameters:
//   - fs: Filesystem to read from
//   - path: Path of the YAML file
//
// Returns:
//   - Config: The loaded configuration
//   - error: Read, parse or validation failure wrapped in ErrInvalidConfig
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	logrus.WithFields(logrus.Fields{
		"function": "LoadConfig",
		"path":     path,
	}).Debug("Loading sink configuration")

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "LoadConfig",
		"path":       path,
		"name":       cfg.Name,
		"clock_rate": cfg.ClockRate,
		"loop":       cfg.Loop,
	}).Info("Sink configuration loaded")

	return cfg, nil
}
