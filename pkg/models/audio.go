package models

import (
	"errors"
	"math"
)

// AudioClip is a decoded, normalized mono recording.
type AudioClip struct {
	SampleRateHz int
	// Samples are mono amplitudes in [-1, 1].
	Samples  []float64
	Channels int

	// Source properties, kept for reporting only.
	Format         string
	SourceChannels int
	SourceBitDepth int
}

// Duration returns the clip length in seconds.
func (c *AudioClip) Duration() float64 {
	if c == nil || c.SampleRateHz <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRateHz)
}

// BandName identifies one of the analysis bands.
type BandName string

const (
	BandLow  BandName = "Low"
	BandMid  BandName = "Mid"
	BandHigh BandName = "High"
)

// FrequencyBand is a half-open frequency range [LowHz, HighHz).
type FrequencyBand struct {
	Name   BandName `json:"name"`
	LowHz  float64  `json:"low_hz"`
	HighHz float64  `json:"high_hz"`
}

// EnergyPoint is the energy of one analysis frame.
type EnergyPoint struct {
	TimeSec float64
	Energy  float64
}

// BandEnergySeries holds one energy value per STFT frame for a band.
type BandEnergySeries struct {
	Band   FrequencyBand
	Points []EnergyPoint
}

// Total returns the summed energy over all frames.
func (s BandEnergySeries) Total() float64 {
	var total float64
	for _, p := range s.Points {
		total += p.Energy
	}
	return total
}

// DecayPoint is one point of a decay curve.
type DecayPoint struct {
	TimeSec float64
	LevelDb float64
}

// DecayCurve is a Schroeder decay curve referenced to its own peak (0 dB).
// An empty curve means the band carried no energy.
type DecayCurve struct {
	Band   FrequencyBand
	Points []DecayPoint
}

// Empty reports whether the curve is undefined.
func (c DecayCurve) Empty() bool { return len(c.Points) == 0 }

// Errors reported by RT60Result.Err.
var (
	ErrNoSignal               = errors.New("no signal in band")
	ErrInsufficientDecayRange = errors.New("insufficient decay range")
	ErrNotDecaying            = errors.New("energy is not decaying")
)

// Reasons a band has no RT60 estimate.
const (
	ReasonNoSignal               = "no_signal"
	ReasonInsufficientDecayRange = "insufficient_decay_range"
	ReasonNotDecaying            = "not_decaying"
)

// RT60Result is the reverberation estimate for one band. Seconds is NaN when
// Valid is false.
type RT60Result struct {
	Band       FrequencyBand
	Seconds    float64
	Valid      bool
	FitErrorDb float64
	// RangeDb is the depth of the decay segment the fit used.
	RangeDb float64
	Reason  string
}

// InvalidRT60 builds an indeterminate result for band.
func InvalidRT60(band FrequencyBand, reason string) RT60Result {
	return RT60Result{
		Band:       band,
		Seconds:    math.NaN(),
		FitErrorDb: math.NaN(),
		Reason:     reason,
	}
}

// Err maps an invalid result to its sentinel error. It returns nil for
// valid results.
func (r RT60Result) Err() error {
	if r.Valid {
		return nil
	}
	switch r.Reason {
	case ReasonNoSignal:
		return ErrNoSignal
	case ReasonNotDecaying:
		return ErrNotDecaying
	default:
		return ErrInsufficientDecayRange
	}
}

// ResonancePeak is the dominant spectral component of a clip.
type ResonancePeak struct {
	FrequencyHz float64 `json:"frequency_hz"`
	Magnitude   float64 `json:"magnitude"`
}

// AnalysisResult is the output of one pipeline run.
type AnalysisResult struct {
	Clip              *AudioClip
	Bands             []RT60Result
	Resonance         ResonancePeak
	FrequencyResponse []FrequencyPoint
}

// Band returns the result for the named band.
func (r *AnalysisResult) Band(name BandName) (RT60Result, bool) {
	for _, b := range r.Bands {
		if b.Band.Name == name {
			return b, true
		}
	}
	return RT60Result{}, false
}
