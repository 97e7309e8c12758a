// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/sec"
)

// FileStore persists per-identifier timestamp lists as JSON files.
//
// Windows survive process restarts, and multiple gateway processes on one
// host share them safely: each Take holds an exclusive flock(2) on the
// identifier's file for the read-modify-write cycle.
type FileStore struct {
	dir string
}

// NewFileStore creates the storage directory and returns a [FileStore].
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ratelimit: failed to create storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Take implements [Store].
func (store *FileStore) Take(_ context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error) {
	// Identifiers contain client-controlled text (usernames, IPs), so the
	// filename is a digest rather than the raw key.
	path := filepath.Join(store.dir, sec.HashToken(key)+".json")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return Decision{}, apperr.Internal(fmt.Errorf("ratelimit: open window file: %w", err))
	}
	defer file.Close()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		return Decision{}, apperr.Internal(fmt.Errorf("ratelimit: lock window file: %w", err))
	}
	defer unix.Flock(int(file.Fd()), unix.LOCK_UN)

	timestamps, err := readWindow(file)
	if err != nil {
		return Decision{}, err
	}

	timestamps = prune(timestamps, now.Add(-window))
	decision := decide(timestamps, now, window, max)
	if decision.Allowed {
		timestamps = append(timestamps, now)
	}

	if err := writeWindow(file, timestamps); err != nil {
		return Decision{}, err
	}

	return decision, nil
}

// readWindow decodes the unix-nano timestamp list from the locked file.
func readWindow(file *os.File) ([]time.Time, error) {
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("ratelimit: read window file: %w", err))
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var nanos []int64
	if err := json.Unmarshal(raw, &nanos); err != nil {
		// A torn or corrupted file resets the window rather than wedging
		// the limiter.
		return nil, nil
	}

	timestamps := make([]time.Time, len(nanos))
	for i, n := range nanos {
		timestamps[i] = time.Unix(0, n)
	}
	return timestamps, nil
}

// writeWindow rewrites the locked file with the updated timestamp list.
func writeWindow(file *os.File, timestamps []time.Time) error {
	nanos := make([]int64, len(timestamps))
	for i, ts := range timestamps {
		nanos[i] = ts.UnixNano()
	}

	raw, err := json.Marshal(nanos)
	if err != nil {
		return apperr.Internal(fmt.Errorf("ratelimit: encode window: %w", err))
	}

	if err := file.Truncate(0); err != nil {
		return apperr.Internal(fmt.Errorf("ratelimit: truncate window file: %w", err))
	}
	if _, err := file.WriteAt(raw, 0); err != nil {
		return apperr.Internal(fmt.Errorf("ratelimit: write window file: %w", err))
	}
	return nil
}
