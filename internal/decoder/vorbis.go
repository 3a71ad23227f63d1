package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jfreymuth/oggvorbis"
)

// vorbisChunkFrames is the frame count requested per Read.
const vorbisChunkFrames = 4096

type vorbisCodec struct{}

// Decode returns Vorbis output as float samples; no rescaling is applied.
func (vorbisCodec) Decode(data []byte, maxDuration time.Duration) (*PCM, error) {
	r, err := oggvorbis.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	rate, channels := r.SampleRate(), r.Channels()
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid vorbis identification header", ErrDecode)
	}

	limit := frameBudget(maxDuration, rate) * channels
	buf := make([]float32, vorbisChunkFrames*channels)
	samples := []float32{}
	truncated := false

	for {
		n, err := r.Read(buf)
		samples = append(samples, buf[:n]...)
		if limit > 0 && len(samples) >= limit {
			truncated = len(samples) > limit || err == nil
			samples = samples[:limit]
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if n == 0 {
			break
		}
	}

	return &PCM{
		SampleRate: rate,
		Channels:   channels,
		Float:      samples,
		Truncated:  truncated,
	}, nil
}
