package decoder

import "errors"

// Errors returned by Decode. Codec failures wrap one of these.
var (
	ErrUnsupportedFormat = errors.New("decoder: unsupported audio format")
	ErrDecode            = errors.New("decoder: corrupt audio stream")
	ErrEmptyAudio        = errors.New("decoder: no audio samples decoded")
)
