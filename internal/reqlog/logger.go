// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package reqlog writes the per-request audit trail as JSON lines.

# Architecture

This is a separate channel from the process log: operators tail the process
log for gateway health, and query the request log files for per-client
auditing. Files are named api_YYYY-MM-DD.log (one per day), rotated by size
with a timestamp suffix, and pruned to a configured file count.

Credentials are redacted before serialization, so raw passwords, tokens,
and API keys never touch disk. Bodies are truncated to a configured length
so one oversized payload cannot blow up the log volume.
*/
package reqlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is one request-log line. ResponseSize is the body byte count
// reported by the logging middleware.
type Record struct {
	Timestamp    string `json:"timestamp"`
	Level        string `json:"level"`
	RequestID    string `json:"request_id,omitempty"`
	Method       string `json:"method"`
	Path         string `json:"path"`
	Action       string `json:"action,omitempty"`
	Table        string `json:"table,omitempty"`
	Status       int    `json:"status"`
	LatencyMS    int64  `json:"latency_ms"`
	ResponseSize int    `json:"response_size"`
	ClientIP     string `json:"client_ip,omitempty"`
	User         string `json:"user,omitempty"`
	CacheHit     bool   `json:"cache_hit,omitempty"`
	Error        string `json:"error,omitempty"`

	Query    map[string][]string `json:"query,omitempty"`
	Headers  map[string][]string `json:"headers,omitempty"`
	Body     any                 `json:"body,omitempty"`
	Response any                 `json:"response,omitempty"`
}

// Options mirrors the logging configuration consumed by the writer.
type Options struct {
	Dir            string
	LogHeaders     bool
	LogQueryParams bool
	LogBody        bool
	LogResponse    bool
	MaxBodyLength  int
	SensitiveKeys  []string
	RotationSize   int64
	MaxFiles       int
}

// Logger appends redacted request records to the day's log file.
type Logger struct {
	opts     Options
	redactor *redactor
	process  *slog.Logger

	mu      sync.Mutex
	file    *os.File
	day     string
	written int64
}

// New creates the log directory and returns a ready [Logger].
func New(opts Options, process *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("reqlog: failed to create log dir: %w", err)
	}

	return &Logger{
		opts:     opts,
		redactor: newRedactor(opts.SensitiveKeys),
		process:  process.With(slog.String("component", "reqlog")),
	}, nil
}

// Close flushes and closes the active log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// # Record Emission

// Log redacts, truncates, and appends one record.
//
// Failures are reported to the process log and swallowed: an unwritable
// audit line must never fail the client's request.
func (l *Logger) Log(record Record) {
	record.Level = levelFor(record.Status)
	if record.Timestamp == "" {
		record.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	record.Query = l.maybeQuery(record.Query)
	record.Headers = l.maybeHeaders(record.Headers)
	record.Body = l.maybeBody(record.Body, l.opts.LogBody)
	record.Response = l.maybeBody(record.Response, l.opts.LogResponse)

	line, err := json.Marshal(record)
	if err != nil {
		l.process.Warn("reqlog_encode_failed", slog.String("error", err.Error()))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureFile(); err != nil {
		l.process.Warn("reqlog_open_failed", slog.String("error", err.Error()))
		return
	}

	n, err := l.file.Write(append(line, '\n'))
	if err != nil {
		l.process.Warn("reqlog_write_failed", slog.String("error", err.Error()))
		return
	}
	l.written += int64(n)

	if l.opts.RotationSize > 0 && l.written >= l.opts.RotationSize {
		l.rotate()
	}
}

// levelFor maps the response status onto a log level.
func levelFor(status int) string {
	switch {
	case status >= 500:
		return "error"
	case status >= 400:
		return "warn"
	default:
		return "info"
	}
}

// maybeQuery applies the query-param switch and redaction.
func (l *Logger) maybeQuery(query map[string][]string) map[string][]string {
	if !l.opts.LogQueryParams {
		return nil
	}
	return l.redactor.Values(query)
}

// maybeHeaders applies the header switch and redaction.
func (l *Logger) maybeHeaders(headers map[string][]string) map[string][]string {
	if !l.opts.LogHeaders {
		return nil
	}
	return l.redactor.Values(headers)
}

// maybeBody applies the body/response switch, redaction, and truncation.
//
// Structured bodies are normalized through JSON first, so typed slices and
// response structs are walked by the redactor exactly like generic maps;
// no payload shape bypasses the sensitive-key scrub.
func (l *Logger) maybeBody(body any, enabled bool) any {
	if !enabled || body == nil {
		return nil
	}

	if typed, ok := body.(string); ok {
		if l.opts.MaxBodyLength > 0 && len(typed) > l.opts.MaxBodyLength {
			return typed[:l.opts.MaxBodyLength] + "...(truncated)"
		}
		return typed
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	body = l.redactor.value(generic)

	// Truncation applies to the redacted serialized form.
	if l.opts.MaxBodyLength > 0 {
		raw, err := json.Marshal(body)
		if err == nil && len(raw) > l.opts.MaxBodyLength {
			return string(raw[:l.opts.MaxBodyLength]) + "...(truncated)"
		}
	}
	return body
}

// # File Management

// fileName is the day's primary log file name.
func fileName(day string) string {
	return "api_" + day + ".log"
}

// ensureFile opens the current day's file, switching at midnight. Callers
// hold the mutex.
func (l *Logger) ensureFile() error {
	today := time.Now().UTC().Format("2006-01-02")
	if l.file != nil && l.day == today {
		return nil
	}

	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	path := filepath.Join(l.opts.Dir, fileName(today))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}

	l.file = file
	l.day = today
	l.written = info.Size()
	return nil
}

// rotate renames the full file with a timestamp suffix and prunes old
// files. Callers hold the mutex.
func (l *Logger) rotate() {
	_ = l.file.Close()
	l.file = nil

	current := filepath.Join(l.opts.Dir, fileName(l.day))
	// Nanosecond suffix: rotations can land inside the same second.
	rotated := filepath.Join(l.opts.Dir,
		fmt.Sprintf("api_%s_%s.log", l.day, time.Now().UTC().Format("150405.000000000")))

	if err := os.Rename(current, rotated); err != nil {
		l.process.Warn("reqlog_rotate_failed", slog.String("error", err.Error()))
	}
	l.written = 0

	l.prune()
}

// prune deletes the oldest rotated files beyond the retention count.
func (l *Logger) prune() {
	if l.opts.MaxFiles <= 0 {
		return
	}

	entries, err := os.ReadDir(l.opts.Dir)
	if err != nil {
		return
	}

	var logs []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "api_") && strings.HasSuffix(name, ".log") {
			logs = append(logs, name)
		}
	}

	if len(logs) <= l.opts.MaxFiles {
		return
	}

	// Names embed their timestamps, so lexical order is chronological.
	sort.Strings(logs)
	for _, name := range logs[:len(logs)-l.opts.MaxFiles] {
		if err := os.Remove(filepath.Join(l.opts.Dir, name)); err != nil {
			l.process.Warn("reqlog_prune_failed", slog.String("file", name))
		}
	}
}
