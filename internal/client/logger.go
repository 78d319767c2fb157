package client

import (
	"io"

	"github.com/rs/zerolog"

	"mfmc/core-go/internal/logging"
)

// NewLogger fans every event out to all non-nil writers. remote, when set,
// applies its own minimum level on top of level.
func NewLogger(level, runID string, stdout, file io.Writer, remote *RemoteWriter) zerolog.Logger {
	writers := make([]io.Writer, 0, 3)
	for _, w := range []io.Writer{stdout, file} {
		if w != nil {
			writers = append(writers, w)
		}
	}
	if remote != nil {
		writers = append(writers, remote)
	}
	return logging.New(zerolog.MultiLevelWriter(writers...), "mfmc-client", level).
		With().
		Str("run_id", runID).
		Logger()
}
