package decoder

import (
	resampler "github.com/tphakala/go-audio-resampler"
)

// Resample converts mono samples from srcRate to dstRate with the soxr-style
// polyphase resampler at its high quality preset. Its anti-alias filter
// removes content above the lower of the two Nyquist frequencies.
func Resample(samples []float64, srcRate, dstRate int) ([]float64, error) {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out, nil
	}

	out, err := resampler.ResampleMono(samples, float64(srcRate), float64(dstRate), resampler.QualityHigh)
	if err != nil {
		return nil, err
	}
	for i, v := range out {
		out[i] = clamp(v)
	}
	return out, nil
}
