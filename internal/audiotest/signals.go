// Package audiotest generates synthetic signals and encoded fixtures for tests.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Sine returns seconds of a unit-amplitude sine at freq.
func Sine(sampleRate int, freq, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = math.Sin(2 * math.Pi * freq * t)
	}
	return out
}

// DecayingSine returns a sine at freq whose amplitude falls 60 dB in rt60
// seconds: a(t) = amp * exp(-t/tau) with tau = rt60 / (3 ln 10).
func DecayingSine(sampleRate int, freq, rt60, seconds, amp float64) []float64 {
	tau := rt60 / (3 * math.Ln10)
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = amp * math.Exp(-t/tau) * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

// Silence returns seconds of zeros.
func Silence(sampleRate int, seconds float64) []float64 {
	return make([]float64, int(float64(sampleRate)*seconds))
}

// Quantize16 converts [-1, 1] samples to 16-bit PCM.
func Quantize16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(s * 32767)
		v = math.Max(-32768, math.Min(32767, v))
		out[i] = int16(v)
	}
	return out
}

// WAV16 builds a canonical 44-byte-header PCM 16-bit WAV file. samples are
// interleaved when channels > 1.
func WAV16(sampleRate, channels int, samples []int16) []byte {
	buf := new(bytes.Buffer)

	numChannels := uint16(channels)
	bits := uint16(16)
	byteRate := uint32(sampleRate) * uint32(numChannels) * uint32(bits/8)
	blockAlign := numChannels * (bits / 8)
	dataSize := uint32(len(samples) * 2)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, numChannels)
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, bits)

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// MonoWAV16 quantizes samples and wraps them in a mono WAV file.
func MonoWAV16(sampleRate int, samples []float64) []byte {
	return WAV16(sampleRate, 1, Quantize16(samples))
}

// Mix sums equal-length signals sample by sample, scaled by gain.
func Mix(gain float64, signals ...[]float64) []float64 {
	if len(signals) == 0 {
		return nil
	}
	out := make([]float64, len(signals[0]))
	for _, s := range signals {
		for i := range out {
			if i < len(s) {
				out[i] += gain * s[i]
			}
		}
	}
	return out
}

// ToneAmplitude is the amplitude of the freq component of samples, measured
// by correlating against a quadrature pair.
func ToneAmplitude(samples []float64, sampleRate int, freq float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var re, im float64
	for i, v := range samples {
		phase := 2 * math.Pi * freq * float64(i) / float64(sampleRate)
		re += v * math.Cos(phase)
		im += v * math.Sin(phase)
	}
	return 2 * math.Hypot(re, im) / float64(len(samples))
}
