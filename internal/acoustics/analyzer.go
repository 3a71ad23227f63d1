// Package acoustics estimates per-band reverberation time (RT60) and the
// dominant resonance of a recording.
//
// The pipeline is a chain of pure stages: SplitBands (STFT band energies),
// BuildDecayCurve (Schroeder integration), EstimateRT60 (T20 line fit) and,
// branching from the clip, ComputeSpectrum for the resonance peak and
// frequency response. Analyzer wires the stages to the decoder.
package acoustics

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/RMahshie/decaymeter/internal/decoder"
	"github.com/RMahshie/decaymeter/pkg/models"
)

// DefaultMinBandLevelDb is how far below the strongest band a band may sit
// before it is treated as carrying no signal of its own.
const DefaultMinBandLevelDb = 50.0

// Config tunes the analysis stages.
type Config struct {
	Bands          []models.FrequencyBand
	WindowSize     int
	HopSize        int
	MinBandLevelDb float64
	ResponsePoints int
}

// DefaultConfig returns the canonical band set and STFT parameters.
func DefaultConfig() Config {
	return Config{
		Bands:          DefaultBands(),
		WindowSize:     DefaultWindowSize,
		HopSize:        DefaultHopSize,
		MinBandLevelDb: DefaultMinBandLevelDb,
		ResponsePoints: DefaultResponsePoints,
	}
}

func (c Config) validate() error {
	if err := ValidateBands(c.Bands); err != nil {
		return err
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("window size must be at least 2, got %d", c.WindowSize)
	}
	if c.HopSize < 1 || c.HopSize > c.WindowSize {
		return fmt.Errorf("hop size must be in [1, %d], got %d", c.WindowSize, c.HopSize)
	}
	if c.MinBandLevelDb <= 0 {
		return fmt.Errorf("minimum band level must be positive, got %g", c.MinBandLevelDb)
	}
	return nil
}

// Analyzer runs the full pipeline. It holds no per-run state and is safe
// for concurrent use.
type Analyzer struct {
	cfg     Config
	decoder *decoder.Decoder
	fs      afero.Fs
	logger  zerolog.Logger
}

// NewAnalyzer validates cfg and builds an Analyzer. A nil fs reads from the
// operating system.
func NewAnalyzer(cfg Config, dec *decoder.Decoder, fs afero.Fs, logger zerolog.Logger) (*Analyzer, error) {
	if cfg.ResponsePoints <= 0 {
		cfg.ResponsePoints = DefaultResponsePoints
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	if dec == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Analyzer{
		cfg:     cfg,
		decoder: dec,
		fs:      fs,
		logger:  logger.With().Str("component", "analyzer").Logger(),
	}, nil
}

// Analyze loads path from the analyzer's filesystem and analyzes it.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*models.AnalysisResult, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return a.AnalyzeBytes(ctx, path, data)
}

type decodeResult struct {
	clip *models.AudioClip
	err  error
}

// AnalyzeBytes decodes data and analyzes the clip. name is used for format
// detection by extension.
func (a *Analyzer) AnalyzeBytes(ctx context.Context, name string, data []byte) (*models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan decodeResult, 1)
	go func() {
		clip, err := a.decoder.Decode(name, data)
		done <- decodeResult{clip: clip, err: err}
	}()

	var res decodeResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, res.err)
	}

	return a.AnalyzeClip(res.clip)
}

// AnalyzeClip runs band splitting, decay fitting and resonance search on an
// already decoded clip.
func (a *Analyzer) AnalyzeClip(clip *models.AudioClip) (*models.AnalysisResult, error) {
	spectrum, err := ComputeSpectrum(clip)
	if err != nil {
		return nil, fmt.Errorf("failed to compute spectrum: %w", err)
	}

	series := SplitBands(clip, a.cfg.Bands, a.cfg.WindowSize, a.cfg.HopSize)

	strongest := 0.0
	for _, s := range series {
		strongest = math.Max(strongest, s.Total())
	}

	results := make([]models.RT60Result, len(series))
	for i, s := range series {
		total := s.Total()
		relDb := math.Inf(-1)
		if total > 0 {
			relDb = 10 * math.Log10(total/strongest)
		}

		if relDb < -a.cfg.MinBandLevelDb {
			results[i] = models.InvalidRT60(s.Band, models.ReasonNoSignal)
		} else {
			results[i] = EstimateRT60(BuildDecayCurve(s))
		}

		a.logger.Debug().
			Str("band", string(s.Band.Name)).
			Float64("relativeLevelDb", relDb).
			Bool("valid", results[i].Valid).
			Float64("rt60", results[i].Seconds).
			Str("reason", results[i].Reason).
			Msg("Estimated band decay")
	}

	return &models.AnalysisResult{
		Clip:              clip,
		Bands:             results,
		Resonance:         spectrum.Peak(),
		FrequencyResponse: spectrum.Response(a.cfg.ResponsePoints),
	}, nil
}
