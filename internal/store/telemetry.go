package store

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxTelemetryLevelLen   = 20
	MaxTelemetryMessageLen = 4000
	DefaultTelemetryLevel  = "INFO"
)

// NormalizeTelemetry applies the sink's bounds: blank levels become
// DefaultTelemetryLevel and both fields are cut to their maximum length in
// characters, never splitting a UTF-8 sequence. Invalid UTF-8 is replaced
// with U+FFFD first.
func NormalizeTelemetry(level, message string) (string, string) {
	level = strings.TrimSpace(strings.ToValidUTF8(level, "\uFFFD"))
	message = strings.ToValidUTF8(message, "\uFFFD")
	if level == "" {
		level = DefaultTelemetryLevel
	}
	return truncateRunes(level, MaxTelemetryLevelLen), truncateRunes(message, MaxTelemetryMessageLen)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
