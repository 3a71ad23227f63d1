// Package decoder turns encoded audio files into canonical mono clips.
//
// Container and codec parsing is delegated to go-audio (WAV, AIFF),
// go-mp3 and oggvorbis. This package only detects the format, downmixes,
// normalizes integer PCM by its bit depth and optionally resamples.
package decoder

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RMahshie/decaymeter/pkg/models"
)

// Options controls post-decode conditioning.
type Options struct {
	// TargetSampleRate resamples the clip when non-zero. Zero keeps the
	// native rate.
	TargetSampleRate int
	// MaxDuration stops decoding after this much audio when non-zero.
	MaxDuration time.Duration
}

// Decoder produces AudioClips from encoded bytes. It is safe for concurrent use.
type Decoder struct {
	registry *Registry
	opts     Options
	logger   zerolog.Logger
}

// New creates a decoder backed by the default codec registry.
func New(opts Options, logger zerolog.Logger) *Decoder {
	return NewWithRegistry(DefaultRegistry(), opts, logger)
}

// NewWithRegistry creates a decoder using reg for codec lookup.
func NewWithRegistry(reg *Registry, opts Options, logger zerolog.Logger) *Decoder {
	return &Decoder{
		registry: reg,
		opts:     opts,
		logger:   logger.With().Str("component", "decoder").Logger(),
	}
}

// Decode parses data (named name, used for extension fallback) into a mono
// clip normalized to [-1, 1].
func (d *Decoder) Decode(name string, data []byte) (*models.AudioClip, error) {
	format := Detect(name, data)
	if format == "" {
		return nil, fmt.Errorf("%w: cannot identify %q", ErrUnsupportedFormat, name)
	}

	codec, ok := d.registry.Get(format)
	if !ok {
		return nil, fmt.Errorf("%w: no codec registered for %s", ErrUnsupportedFormat, format)
	}

	pcm, err := decodeSafely(codec, data, d.opts.MaxDuration)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrDecode) || errors.Is(err, ErrEmptyAudio) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pcm == nil || pcm.SampleRate <= 0 || pcm.Channels <= 0 {
		rate, channels := 0, 0
		if pcm != nil {
			rate, channels = pcm.SampleRate, pcm.Channels
		}
		return nil, fmt.Errorf("%w: invalid stream parameters (rate %d, channels %d)", ErrDecode, rate, channels)
	}

	samples := pcm.Mono()
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	rate := pcm.SampleRate
	// codecs stop at the budget; this also bounds codecs registered by callers
	if limit := frameBudget(d.opts.MaxDuration, rate); limit > 0 && (pcm.Truncated || len(samples) > limit) {
		if len(samples) > limit {
			samples = samples[:limit]
		}
		d.logger.Warn().
			Str("file", name).
			Dur("maxDuration", d.opts.MaxDuration).
			Msg("Truncated clip to maximum duration")
	}

	if target := d.opts.TargetSampleRate; target > 0 && target != rate {
		samples, err = Resample(samples, rate, target)
		if err != nil {
			return nil, fmt.Errorf("%w: resampling %d Hz to %d Hz: %v", ErrDecode, rate, target, err)
		}
		d.logger.Debug().Int("from", rate).Int("to", target).Msg("Resampled clip")
		rate = target
	}

	d.logger.Debug().
		Str("file", name).
		Str("format", format).
		Int("sampleRate", rate).
		Int("sourceChannels", pcm.Channels).
		Int("bitDepth", pcm.BitDepth).
		Int("samples", len(samples)).
		Msg("Decoded audio")

	return &models.AudioClip{
		SampleRateHz:   rate,
		Samples:        samples,
		Channels:       1,
		Format:         format,
		SourceChannels: pcm.Channels,
		SourceBitDepth: pcm.BitDepth,
	}, nil
}

// decodeSafely runs the codec and turns a panic inside it into ErrDecode.
// Some bitstream parsers index past their input on corrupt packets.
func decodeSafely(codec Codec, data []byte, maxDuration time.Duration) (pcm *PCM, err error) {
	defer func() {
		if p := recover(); p != nil {
			pcm = nil
			err = fmt.Errorf("%w: codec panic: %v", ErrDecode, p)
		}
	}()
	return codec.Decode(data, maxDuration)
}
