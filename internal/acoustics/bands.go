package acoustics

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/RMahshie/decaymeter/pkg/models"
)

// STFT defaults: 1024-sample Hann window, 75% overlap.
const (
	DefaultWindowSize = 1024
	DefaultHopSize    = 256
)

// DefaultBandEdges are the Low/Mid/High boundaries in Hz.
var DefaultBandEdges = []float64{20, 250, 1000, 5000}

var bandNames = []models.BandName{models.BandLow, models.BandMid, models.BandHigh}

// DefaultBands returns the canonical Low 20-250, Mid 250-1000 and High
// 1000-5000 Hz bands.
func DefaultBands() []models.FrequencyBand {
	bands, _ := BandsFromEdges(DefaultBandEdges)
	return bands
}

// BandsFromEdges builds the three named bands from four ascending edges.
func BandsFromEdges(edges []float64) ([]models.FrequencyBand, error) {
	if len(edges) != len(bandNames)+1 {
		return nil, fmt.Errorf("need %d band edges, got %d", len(bandNames)+1, len(edges))
	}

	bands := make([]models.FrequencyBand, len(bandNames))
	for i, name := range bandNames {
		bands[i] = models.FrequencyBand{Name: name, LowHz: edges[i], HighHz: edges[i+1]}
	}
	if err := ValidateBands(bands); err != nil {
		return nil, err
	}
	return bands, nil
}

// ParseBandEdges parses a comma-separated edge list such as "20,250,1000,5000".
func ParseBandEdges(s string) ([]models.FrequencyBand, error) {
	parts := strings.Split(s, ",")
	edges := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid band edge %q: %w", p, err)
		}
		edges = append(edges, v)
	}
	return BandsFromEdges(edges)
}

// ValidateBands checks 0 <= LowHz < HighHz for every band.
func ValidateBands(bands []models.FrequencyBand) error {
	if len(bands) == 0 {
		return fmt.Errorf("no bands configured")
	}
	for _, b := range bands {
		if math.IsNaN(b.LowHz) || math.IsNaN(b.HighHz) || b.LowHz < 0 || b.LowHz >= b.HighHz {
			return fmt.Errorf("band %s: invalid range [%g, %g) Hz", b.Name, b.LowHz, b.HighHz)
		}
	}
	return nil
}

// frames returns the STFT frame count for n samples. The tail is
// zero-padded so the last frame covers the end of the clip.
func frames(n, windowSize, hopSize int) int {
	if n <= windowSize {
		return 1
	}
	return 1 + (n-windowSize+hopSize-1)/hopSize
}

// binRange returns the half-open FFT bin range whose centre frequencies
// fall in [lowHz, highHz). Bins above Nyquist do not exist, so bands past
// it get fewer or no bins.
func binRange(band models.FrequencyBand, sampleRate, windowSize int) (int, int) {
	binHz := float64(sampleRate) / float64(windowSize)
	start, end := -1, -1
	for k := 0; k <= windowSize/2; k++ {
		f := float64(k) * binHz
		if f >= band.LowHz && f < band.HighHz {
			if start < 0 {
				start = k
			}
			end = k + 1
		}
	}
	if start < 0 {
		return 0, 0
	}
	return start, end
}

// SplitBands computes the per-frame energy of every band with a Hann
// windowed STFT. Zero or negative sizes select the defaults.
func SplitBands(clip *models.AudioClip, bands []models.FrequencyBand, windowSize, hopSize int) []models.BandEnergySeries {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if hopSize <= 0 {
		hopSize = DefaultHopSize
	}

	samples := clip.Samples
	sr := float64(clip.SampleRateHz)
	count := frames(len(samples), windowSize, hopSize)

	out := make([]models.BandEnergySeries, len(bands))
	ranges := make([][2]int, len(bands))
	for i, b := range bands {
		lo, hi := binRange(b, clip.SampleRateHz, windowSize)
		ranges[i] = [2]int{lo, hi}
		out[i] = models.BandEnergySeries{Band: b, Points: make([]models.EnergyPoint, count)}
	}

	taper := make([]float64, windowSize)
	for i := range taper {
		taper[i] = 1
	}
	window.Hann(taper)

	fft := fourier.NewFFT(windowSize)
	frame := make([]float64, windowSize)
	coeffs := make([]complex128, windowSize/2+1)
	power := make([]float64, windowSize/2+1)

	for m := range count {
		start := m * hopSize
		for i := range frame {
			j := start + i
			if j < len(samples) {
				frame[i] = samples[j] * taper[i]
			} else {
				frame[i] = 0
			}
		}

		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}

		t := float64(start) / sr
		for i, r := range ranges {
			var e float64
			for k := r[0]; k < r[1]; k++ {
				e += power[k]
			}
			out[i].Points[m] = models.EnergyPoint{TimeSec: t, Energy: e}
		}
	}

	return out
}
