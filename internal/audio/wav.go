package audio

import (
	"bytes"
	"errors"
)

// HeaderSize is the number of leading bytes ValidateWAV inspects.
const HeaderSize = 12

var ErrNotWAV = errors.New("missing RIFF/WAVE header")

var (
	riffTag = []byte("RIFF")
	waveTag = []byte("WAVE")
)

// ValidateWAV checks the RIFF container framing: "RIFF" at offset 0 and
// "WAVE" at offset 8. It says nothing about the audio content itself.
func ValidateWAV(data []byte) error {
	if len(data) < HeaderSize {
		return ErrNotWAV
	}
	if !bytes.Equal(data[0:4], riffTag) || !bytes.Equal(data[8:12], waveTag) {
		return ErrNotWAV
	}
	return nil
}
