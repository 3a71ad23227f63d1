package decoder

import (
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"
)

// pcmChunkSamples is the interleaved sample count read per PCMBuffer call.
const pcmChunkSamples = 4096

// PCM is what a codec hands back: interleaved samples at the native rate.
// Integer codecs fill Int and BitDepth; float codecs fill Float.
type PCM struct {
	SampleRate int
	Channels   int
	// BitDepth is the integer sample width, 0 for float sources.
	BitDepth int
	// Unsigned marks offset-binary integer samples (8-bit WAV).
	Unsigned bool

	Int   []int
	Float []float32

	// Truncated is set when the codec stopped at its duration budget.
	Truncated bool
}

// pcmBufferReader is the chunked read side of the go-audio decoders.
type pcmBufferReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// readIntPCM drains r chunk by chunk. A positive budget stops the read once
// that many frames of format have been collected.
func readIntPCM(r pcmBufferReader, format *goaudio.Format, bitDepth, budget int) ([]int, bool, error) {
	chunk := &goaudio.IntBuffer{
		Format:         format,
		Data:           make([]int, pcmChunkSamples),
		SourceBitDepth: bitDepth,
	}
	limit := budget * format.NumChannels
	samples := []int{}

	for {
		n, err := r.PCMBuffer(chunk)
		if n > 0 {
			samples = append(samples, chunk.Data[:n]...)
		}
		if limit > 0 && len(samples) >= limit {
			truncated := len(samples) > limit || (err == nil && n > 0)
			return samples[:limit], truncated, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return samples, false, nil
			}
			return nil, false, err
		}
		if n == 0 {
			return samples, false, nil
		}
	}
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	if p.Float != nil {
		return len(p.Float) / p.Channels
	}
	return len(p.Int) / p.Channels
}

// Mono returns the normalized channel mean of every frame.
func (p *PCM) Mono() []float64 {
	frames := p.Frames()
	out := make([]float64, frames)
	if frames == 0 {
		return out
	}

	ch := p.Channels
	inv := 1.0 / float64(ch)

	if p.Float != nil {
		for f := range frames {
			var sum float64
			base := f * ch
			for c := range ch {
				sum += float64(p.Float[base+c])
			}
			out[f] = clamp(sum * inv)
		}
		return out
	}

	fullScale := fullScale(p.BitDepth)
	offset := 0.0
	if p.Unsigned {
		offset = fullScale
	}
	for f := range frames {
		var sum float64
		base := f * ch
		for c := range ch {
			sum += (float64(p.Int[base+c]) - offset) / fullScale
		}
		out[f] = clamp(sum * inv)
	}
	return out
}

// fullScale is the magnitude of the most negative value of a signed
// integer of the given width.
func fullScale(bitDepth int) float64 {
	switch bitDepth {
	case 8:
		return 128.0
	case 16:
		return 32768.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	}
	if bitDepth > 0 && bitDepth < 32 {
		return float64(int64(1) << (bitDepth - 1))
	}
	return 32768.0
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
