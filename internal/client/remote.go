package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogPoster delivers one telemetry record. *API satisfies it.
type LogPoster interface {
	PostLog(ctx context.Context, level, message string) error
}

// WireLevel maps a zerolog level to the level string the server stores.
func WireLevel(l zerolog.Level) string {
	switch l {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return "DEBUG"
	case zerolog.WarnLevel:
		return "WARNING"
	case zerolog.ErrorLevel:
		return "ERROR"
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// ParseWireLevel is the inverse of WireLevel; unknown names mean INFO.
func ParseWireLevel(s string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARNING", "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

type remoteRecord struct {
	level   string
	message string
}

// RemoteWriter is a zerolog.LevelWriter that forwards events at or above a
// minimum level to the server's telemetry endpoint. Delivery is best-effort:
// records are queued, dropped when the queue is full, and post failures are
// ignored so logging never blocks or fails the poll loop.
type RemoteWriter struct {
	poster  LogPoster
	min     zerolog.Level
	queue   chan remoteRecord
	done    chan struct{}
	dropped atomic.Int64
	failed  atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func NewRemoteWriter(poster LogPoster, min zerolog.Level, queueSize int) *RemoteWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &RemoteWriter{
		poster: poster,
		min:    min,
		queue:  make(chan remoteRecord, queueSize),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *RemoteWriter) loop() {
	defer close(w.done)
	for rec := range w.queue {
		if err := w.poster.PostLog(context.Background(), rec.level, rec.message); err != nil {
			w.failed.Add(1)
		}
	}
}

// Write receives events without a level; they are not forwarded.
func (w *RemoteWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (w *RemoteWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l == zerolog.NoLevel || l == zerolog.Disabled || l < w.min {
		return len(p), nil
	}
	rec := remoteRecord{level: WireLevel(l), message: flattenEvent(p)}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return len(p), nil
	}
	select {
	case w.queue <- rec:
	default:
		w.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped counts records discarded because the queue was full.
func (w *RemoteWriter) Dropped() int64 { return w.dropped.Load() }

// Failed counts records the server did not accept.
func (w *RemoteWriter) Failed() int64 { return w.failed.Load() }

// Close stops accepting records and waits up to timeout for the queue to
// drain. Later writes are discarded.
func (w *RemoteWriter) Close(timeout time.Duration) {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-time.After(timeout):
	}
}

// flattenEvent renders a zerolog JSON event as "message | key=value ...",
// the one-line form stored by the telemetry sink.
func flattenEvent(p []byte) string {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return strings.TrimSpace(string(p))
	}

	msg, _ := fields[zerolog.MessageFieldName].(string)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		switch k {
		case zerolog.MessageFieldName, zerolog.LevelFieldName, zerolog.TimestampFieldName, "service":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(msg)
	for _, k := range keys {
		if sb.Len() > 0 {
			sb.WriteString(" | ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, fields[k])
	}
	return sb.String()
}
