package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits 16-bit little-endian stereo.
const (
	mp3Channels   = 2
	mp3BitDepth   = 16
	mp3FrameBytes = mp3Channels * mp3BitDepth / 8
)

type mp3Codec struct{}

func (mp3Codec) Decode(data []byte, maxDuration time.Duration) (*PCM, error) {
	dec, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var src io.Reader = dec
	budget := frameBudget(maxDuration, dec.SampleRate())
	if budget > 0 {
		// one frame past the budget marks the stream as truncated
		src = io.LimitReader(dec, int64(budget+1)*mp3FrameBytes)
	}

	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	truncated := false
	if budget > 0 && len(raw) > budget*mp3FrameBytes {
		raw = raw[:budget*mp3FrameBytes]
		truncated = true
	}

	samples := make([]int, len(raw)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[2*i : 2*i+2])))
	}

	return &PCM{
		SampleRate: dec.SampleRate(),
		Channels:   mp3Channels,
		BitDepth:   mp3BitDepth,
		Int:        samples,
		Truncated:  truncated,
	}, nil
}
