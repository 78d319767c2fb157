package store

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"mfmc/core-go/internal/audio"
)

// validateAudioUpload is applied before any payload is stored, so a client
// can never be offered a file without a RIFF/WAVE header.
func validateAudioUpload(name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAudio)
	}
	if n := utf8.RuneCountInString(name); n > MaxAudioNameLen {
		return fmt.Errorf("%w: name is %d characters, limit %d", ErrInvalidAudio, n, MaxAudioNameLen)
	}
	if err := audio.ValidateWAV(data); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}
	return nil
}
