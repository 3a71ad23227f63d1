package acoustics

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/RMahshie/decaymeter/pkg/models"
)

// ErrEmptySignal is returned when a clip is too short for a spectrum.
var ErrEmptySignal = errors.New("signal has fewer than 2 samples")

// Response defaults.
const (
	DefaultResponsePoints = 256
	ResponseMinHz         = 20.0
	ResponseFloorDb       = -120.0
)

// Spectrum is the single-sided amplitude spectrum of a whole clip.
type Spectrum struct {
	// Magnitudes[k] is 2|X[k]|/N for k in [0, N/2].
	Magnitudes []float64
	BinHz      float64
}

// ComputeSpectrum runs one FFT over every sample of clip, whatever its length.
func ComputeSpectrum(clip *models.AudioClip) (*Spectrum, error) {
	n := len(clip.Samples)
	if n < 2 {
		return nil, ErrEmptySignal
	}

	x := fft.FFTReal(clip.Samples)
	half := n / 2
	mags := make([]float64, half+1)
	scale := 2 / float64(n)
	for k := 0; k <= half; k++ {
		mags[k] = cmplx.Abs(x[k]) * scale
	}

	return &Spectrum{
		Magnitudes: mags,
		BinHz:      float64(clip.SampleRateHz) / float64(n),
	}, nil
}

// Peak returns the strongest non-DC bin. Ties go to the lower frequency and
// a spectrum with no energy yields the zero peak.
func (s *Spectrum) Peak() models.ResonancePeak {
	best := -1
	bestMag := 0.0
	for k := 1; k < len(s.Magnitudes); k++ {
		if s.Magnitudes[k] > bestMag {
			best, bestMag = k, s.Magnitudes[k]
		}
	}
	if best < 0 {
		return models.ResonancePeak{}
	}
	return models.ResonancePeak{FrequencyHz: float64(best) * s.BinHz, Magnitude: bestMag}
}

// Response reduces the spectrum to points log-spaced buckets between 20 Hz
// and Nyquist. Each bucket holds its loudest bin in dB re full scale.
func (s *Spectrum) Response(points int) []models.FrequencyPoint {
	if points <= 0 {
		points = DefaultResponsePoints
	}
	nyquist := s.BinHz * float64(len(s.Magnitudes)-1)
	if nyquist <= ResponseMinHz || s.BinHz <= 0 {
		return nil
	}

	ratio := math.Pow(nyquist/ResponseMinHz, 1/float64(points))
	out := make([]models.FrequencyPoint, 0, points)
	lowHz := ResponseMinHz
	for i := range points {
		highHz := lowHz * ratio
		center := math.Sqrt(lowHz * highHz)

		first := int(math.Ceil(lowHz / s.BinHz))
		last := int(math.Ceil(highHz/s.BinHz)) - 1
		if i == points-1 {
			last = len(s.Magnitudes) - 1
		}

		peak := 0.0
		if first > last {
			// bucket narrower than a bin
			k := int(math.Round(center / s.BinHz))
			peak = s.Magnitudes[min(k, len(s.Magnitudes)-1)]
		} else {
			for k := first; k <= last && k < len(s.Magnitudes); k++ {
				peak = math.Max(peak, s.Magnitudes[k])
			}
		}

		out = append(out, models.FrequencyPoint{Frequency: center, Magnitude: amplitudeDb(peak)})
		lowHz = highHz
	}
	return out
}

func amplitudeDb(a float64) float64 {
	if a <= 0 {
		return ResponseFloorDb
	}
	return math.Max(20*math.Log10(a), ResponseFloorDb)
}

// FindResonance returns the dominant frequency of clip.
func FindResonance(clip *models.AudioClip) (models.ResonancePeak, error) {
	s, err := ComputeSpectrum(clip)
	if err != nil {
		return models.ResonancePeak{}, err
	}
	return s.Peak(), nil
}
