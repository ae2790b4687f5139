// Package metrics is a JSONL event logger for interaction telemetry.
//
// Events are buffered in memory and appended to a single file every N
// events. The log format is one JSON object per line with a float unix
// timestamp and an event name, so the soak monitor and offline analysis can
// tail it without coordination.
package metrics

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	// DefaultFlushInterval flushes every 10 events.
	DefaultFlushInterval = 10

	// flushWarnCooldown rate-limits flush failure warnings.
	flushWarnCooldown = time.Minute
)

// Logger is a thread-safe JSONL event logger. A disabled Logger is a no-op
// and the zero value is a disabled Logger.
type Logger struct {
	mu         sync.Mutex
	enabled    bool
	filePath   string
	flushEvery int
	buffer     []string
	eventCount int
	lastWarn   time.Time

	now func() time.Time
}

// NewLogger creates a Logger appending to filePath. flushEvery is coerced
// to at least 1. When enabled is false all calls are no-ops.
func NewLogger(enabled bool, filePath string, flushEvery int) *Logger {
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &Logger{
		enabled:    enabled,
		filePath:   filePath,
		flushEvery: flushEvery,
		now:        time.Now,
	}
}

// Log records an event with the given fields. The timestamp and event name
// are attached automatically; fields must not use the keys "timestamp" or
// "event". Serialization failures drop the event with a warning.
func (l *Logger) Log(event string, fields map[string]any) {
	if l == nil || !l.enabled {
		return
	}

	entry := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["timestamp"] = float64(l.now().UnixNano()) / 1e9
	entry["event"] = event

	line, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("metrics: dropping unserializable event", "event", event, "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer = append(l.buffer, string(line))
	l.eventCount++
	if l.eventCount%l.flushEvery == 0 {
		l.flushLocked()
	}
}

// Flush writes all buffered events to disk.
func (l *Logger) Flush() {
	if l == nil || !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

// Close flushes and disables the logger.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	l.flushLocked()
	l.enabled = false
}

// flushLocked appends the buffer to the log file. On failure the buffer is
// dropped rather than retried: metrics must never grow without bound or
// stall the interaction path. Callers hold l.mu.
func (l *Logger) flushLocked() {
	if len(l.buffer) == 0 {
		return
	}
	buffered := l.buffer
	l.buffer = nil

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.warnFlushFailure(len(buffered), err)
		return
	}
	defer f.Close()

	for _, line := range buffered {
		if _, err := f.Write(append([]byte(line), '\n')); err != nil {
			l.warnFlushFailure(len(buffered), err)
			return
		}
	}
}

func (l *Logger) warnFlushFailure(dropped int, err error) {
	if l.now().Sub(l.lastWarn) < flushWarnCooldown {
		return
	}
	l.lastWarn = l.now()
	slog.Warn("metrics: flush failed, dropping buffered events",
		"dropped", dropped, "file", l.filePath, "error", err)
}
