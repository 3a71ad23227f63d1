package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

type wavCodec struct{}

func (wavCodec) Decode(data []byte, maxDuration time.Duration) (*PCM, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: unreadable WAV header or data chunk", ErrDecode)
	}

	tag := d.WavAudioFormat
	if tag == wavFormatExtensible {
		sub, ok := extensibleSubFormat(data)
		if !ok {
			return nil, fmt.Errorf("%w: extensible fmt chunk without a sub-format", ErrDecode)
		}
		tag = sub
	}
	switch tag {
	case wavFormatPCM:
	case wavFormatFloat:
		return nil, fmt.Errorf("%w: IEEE float WAV", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: WAV format tag %#x", ErrUnsupportedFormat, tag)
	}

	format := d.Format()
	samples, truncated, err := readIntPCM(d, format, int(d.BitDepth), frameBudget(maxDuration, format.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &PCM{
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		BitDepth:   int(d.BitDepth),
		// 8-bit WAV is offset binary
		Unsigned:  d.BitDepth == 8,
		Int:       samples,
		Truncated: truncated,
	}, nil
}

// extensibleSubFormat returns the format code that leads the SubFormat GUID
// of a WAVE_FORMAT_EXTENSIBLE fmt chunk. go-audio skips the extension bytes,
// so the chunk is located again here.
func extensibleSubFormat(data []byte) (uint16, bool) {
	off := 12
	for off+8 <= len(data) {
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if bytes.Equal(data[off:off+4], []byte("fmt ")) {
			// 16 byte base, cbSize, valid bits, channel mask, then the GUID
			if size < 40 || body+26 > len(data) {
				return 0, false
			}
			return binary.LittleEndian.Uint16(data[body+24 : body+26]), true
		}
		// chunks are word aligned
		off = body + size + size&1
	}
	return 0, false
}
