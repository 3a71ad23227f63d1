package decoder

import (
	"bytes"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Format keys understood by the default registry.
const (
	FormatWAV  = "wav"
	FormatAIFF = "aiff"
	FormatMP3  = "mp3"
	FormatOgg  = "ogg"
)

// Codec turns an encoded container into raw PCM. A non-zero maxDuration
// stops decoding once that much audio has been produced.
type Codec interface {
	Decode(data []byte, maxDuration time.Duration) (*PCM, error)
}

// CodecFunc adapts a function to Codec.
type CodecFunc func(data []byte, maxDuration time.Duration) (*PCM, error)

// Decode calls f(data, maxDuration).
func (f CodecFunc) Decode(data []byte, maxDuration time.Duration) (*PCM, error) {
	return f(data, maxDuration)
}

// frameBudget is the number of frames that fit in maxDuration at rate, or 0
// when decoding is unbounded.
func frameBudget(maxDuration time.Duration, rate int) int {
	if maxDuration <= 0 || rate <= 0 {
		return 0
	}
	n := int(maxDuration.Seconds() * float64(rate))
	if n < 1 {
		n = 1
	}
	return n
}

// Registry maps format keys to codecs.
type Registry struct {
	codecs map[string]Codec

	mtx sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// DefaultRegistry returns a registry with every built-in codec.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(FormatWAV, wavCodec{})
	r.Register(FormatAIFF, aiffCodec{})
	r.Register(FormatMP3, mp3Codec{})
	r.Register(FormatOgg, vorbisCodec{})
	return r
}

func (r *Registry) Register(format string, c Codec) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = c
}

func (r *Registry) Get(format string) (Codec, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	c, ok := r.codecs[format]
	return c, ok
}

// Formats lists the registered format keys in sorted order.
func (r *Registry) Formats() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	out := make([]string, 0, len(r.codecs))
	for k := range r.codecs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Detect guesses the container format from magic bytes, falling back to the
// file extension of name. It returns "" when nothing matches.
func Detect(name string, data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("FORM")) &&
		(bytes.Equal(data[8:12], []byte("AIFF")) || bytes.Equal(data[8:12], []byte("AIFC"))):
		return FormatAIFF
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return FormatOgg
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return FormatMP3
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".aif", ".aiff", ".aifc":
		return FormatAIFF
	case ".mp3":
		return FormatMP3
	case ".ogg", ".oga":
		return FormatOgg
	}
	return ""
}
