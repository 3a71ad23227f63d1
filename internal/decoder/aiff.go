package decoder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-audio/aiff"
)

type aiffCodec struct{}

func (aiffCodec) Decode(data []byte, maxDuration time.Duration) (*PCM, error) {
	if Detect("", data) != FormatAIFF {
		return nil, fmt.Errorf("%w: not a FORM/AIFF file", ErrUnsupportedFormat)
	}

	dec := aiff.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: unreadable AIFF header", ErrDecode)
	}
	dec.ReadInfo()

	format := dec.Format()
	if format == nil {
		return nil, fmt.Errorf("%w: missing COMM chunk", ErrDecode)
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit AIFF", ErrUnsupportedFormat, dec.BitDepth)
	}

	samples, truncated, err := readIntPCM(dec, format, int(dec.BitDepth), frameBudget(maxDuration, format.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &PCM{
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		BitDepth:   int(dec.BitDepth),
		Int:        samples,
		Truncated:  truncated,
	}, nil
}
