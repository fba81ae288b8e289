package preview

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/opd-ai/mediakit/container/riff"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// maxPacketBytes holds 120 ms of 48 kHz stereo S16LE audio, the longest
// an Opus packet can decode to.
const maxPacketBytes = 5760 * 2 * 2

// audioDecoder is satisfied by *opus.Decoder.
type audioDecoder interface {
	Decode(in, out []byte) (opus.Bandwidth, bool, error)
}

// OpusPreview decodes Opus frames into 16-bit PCM for monitoring.
//
// Use its Decode method as a sink decode hook. Decoded audio accumulates
// up to a fixed duration and can be written out as a WAVE file.
type OpusPreview struct {
	mu sync.Mutex

	decoder    audioDecoder
	out        []byte
	pcm        []byte
	maxBytes   int
	sampleRate uint32
	channels   uint16
	packets    int
}

// NewOpusPreview creates a preview that keeps at most maxDuration of
// decoded audio. Zero keeps ten seconds.
func NewOpusPreview(maxDuration time.Duration) *OpusPreview {
	if maxDuration <= 0 {
		maxDuration = 10 * time.Second
	}

	decoder := opus.NewDecoder()
	p := &OpusPreview{
		decoder: &decoder,
		out:     make([]byte, maxPacketBytes),
		// Sized for the worst case of 48 kHz stereo.
		maxBytes: int(maxDuration*48000/time.Second) * 2 * 2,
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewOpusPreview",
		"max_duration": maxDuration.String(),
	}).Info("Created opus preview")

	return p
}

// Decode decodes every packet of frame. Packets that fail to decode are
// skipped; the first failure is returned after the whole frame is
// processed.
func (p *OpusPreview) Decode(frame *rtp.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, packet := range frame.Packets() {
		if err := p.decodePacket(packet.Payload); err != nil {
			errs = append(errs, fmt.Errorf("seq %d: %w", packet.SequenceNumber, err))
		}
	}
	if len(errs) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "OpusPreview.Decode",
			"failed":   len(errs),
			"packets":  frame.Len(),
		}).Debug("Some opus packets failed to decode")
		return errors.Join(errs...)
	}
	return nil
}

func (p *OpusPreview) decodePacket(payload []byte) error {
	duration, frames, err := parseTOC(payload)
	if err != nil {
		return err
	}

	bandwidth, isStereo, err := p.decoder.Decode(payload, p.out)
	if err != nil {
		return fmt.Errorf("opus decode failed: %w", err)
	}

	channels := uint16(1)
	if isStereo {
		channels = 2
	}
	rate := uint32(bandwidth.SampleRate())

	// A change of format starts a new recording.
	if rate != p.sampleRate || channels != p.channels {
		if len(p.pcm) > 0 {
			logrus.WithFields(logrus.Fields{
				"function":    "OpusPreview.decodePacket",
				"sample_rate": rate,
				"channels":    channels,
			}).Debug("Opus stream format changed, restarting preview")
		}
		p.pcm = p.pcm[:0]
		p.sampleRate = rate
		p.channels = channels
	}

	samples := int(duration * time.Duration(frames) * time.Duration(rate) / time.Second)
	n := samples * int(channels) * 2
	if n > len(p.out) {
		n = len(p.out)
	}

	if room := p.maxBytes - len(p.pcm); room < n {
		if room < 0 {
			room = 0
		}
		n = room &^ 1
	}
	p.pcm = append(p.pcm, p.out[:n]...)
	p.packets++
	return nil
}

// PCM returns a copy of the decoded little-endian 16-bit samples.
func (p *OpusPreview) PCM() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.pcm...)
}

// Format returns the sample rate and channel count of the decoded audio.
func (p *OpusPreview) Format() (sampleRate uint32, channels uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sampleRate, p.channels
}

// Packets returns how many packets decoded successfully.
func (p *OpusPreview) Packets() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.packets
}

// Reset discards decoded audio.
func (p *OpusPreview) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pcm = p.pcm[:0]
	p.packets = 0
}

// WriteWAV writes the decoded audio to path on fs as a PCM WAVE file.
func (p *OpusPreview) WriteWAV(fs afero.Fs, path string) error {
	p.mu.Lock()
	pcm := append([]byte(nil), p.pcm...)
	rate, channels := p.sampleRate, p.channels
	p.mu.Unlock()

	if len(pcm) == 0 {
		return ErrNoAudio
	}

	w, err := riff.Create(fs, path, riff.WAVE)
	if err != nil {
		return err
	}
	if err := w.AddChunk(riff.NewFmtChunk(riff.EncodingPCM, channels, rate, 16)); err != nil {
		w.Close()
		return err
	}
	if err := w.AddChunk(riff.NewDataChunk(pcm)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpusPreview.WriteWAV",
		"path":        path,
		"sample_rate": rate,
		"channels":    channels,
		"bytes":       len(pcm),
	}).Info("Wrote opus preview")

	return nil
}

// silkDurations, hybridDurations and celtDurations index frame sizes by
// the low bits of the TOC configuration number.
var (
	silkDurations   = [4]time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond}
	hybridDurations = [2]time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	celtDurations   = [4]time.Duration{2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}
)

// parseTOC returns the frame duration and frame count of an Opus packet
// from its table-of-contents byte.
func parseTOC(packet []byte) (time.Duration, int, error) {
	if len(packet) == 0 {
		return 0, 0, fmt.Errorf("%w: empty payload", ErrInvalidPacket)
	}

	toc := packet[0]
	config := int(toc >> 3)

	var duration time.Duration
	switch {
	case config < 12:
		duration = silkDurations[config%4]
	case config < 16:
		duration = hybridDurations[config%2]
	default:
		duration = celtDurations[config%4]
	}

	frames := 1
	switch toc & 0x03 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) < 2 {
			return 0, 0, fmt.Errorf("%w: missing frame count", ErrInvalidPacket)
		}
		frames = int(packet[1] & 0x3f)
		if frames == 0 {
			return 0, 0, fmt.Errorf("%w: zero frame count", ErrInvalidPacket)
		}
	}

	if duration*time.Duration(frames) > 120*time.Millisecond {
		return 0, 0, fmt.Errorf("%w: packet longer than 120ms", ErrInvalidPacket)
	}
	return duration, frames, nil
}
