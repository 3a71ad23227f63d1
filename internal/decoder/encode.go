package decoder

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RMahshie/decaymeter/pkg/models"
)

// EncodeWAV writes clip as a 16-bit PCM mono WAV file.
func EncodeWAV(w io.WriteSeeker, clip *models.AudioClip) error {
	if clip == nil || len(clip.Samples) == 0 {
		return ErrEmptyAudio
	}

	data := make([]int, len(clip.Samples))
	for i, s := range clip.Samples {
		data[i] = int(math.Round(clamp(s) * 32767))
	}

	enc := wav.NewEncoder(w, clip.SampleRateHz, 16, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: clip.SampleRateHz},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}
