// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunLog captures the full output of a single CLI run to a timestamped
// file while the same output continues to reach the terminal.
//
// # Description
//
// Deployment runs produce output that matters after the fact: a build
// that failed at 2am needs its compose output available for inspection.
// RunLog gives each run its own file named
//
//	{prefix}_{label}_{YYYYMMDD_HHMMSS}.log
//
// (label omitted when empty) and a Tee method that wraps any writer so
// bytes flow to both the terminal and the file.
//
// # Example
//
//	runLog, err := logging.OpenRunLog("~/.pubstack/logs", "up", "development")
//	if err != nil { ... }
//	defer runLog.Close()
//
//	out := runLog.Tee(os.Stdout)
//	fmt.Fprintln(out, "building images...")  // Reaches terminal and file
type RunLog struct {
	path string
	file *os.File
}

// OpenRunLog creates a timestamped log file for one run.
//
// # Inputs
//
//   - dir: Log directory (supports ~ expansion, created if missing)
//   - prefix: File name prefix, e.g. "pubstack"
//   - label: Optional run label, e.g. the deployment mode
//
// # Outputs
//
//   - *RunLog: Open run log; caller must Close
//   - error: Non-nil if the directory or file cannot be created
func OpenRunLog(dir, prefix, label string) (*RunLog, error) {
	logDir := expandPath(dir)
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", logDir, err)
	}

	if prefix == "" {
		prefix = "pubstack"
	}

	parts := []string{prefix}
	if label != "" {
		parts = append(parts, sanitizeLabel(label))
	}
	parts = append(parts, time.Now().Format("20060102_150405"))

	path := filepath.Join(logDir, strings.Join(parts, "_")+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("create run log %s: %w", path, err)
	}

	return &RunLog{path: path, file: file}, nil
}

// Path returns the run log file path, for display to the user.
func (r *RunLog) Path() string {
	return r.path
}

// Writer returns the underlying file writer.
func (r *RunLog) Writer() io.Writer {
	return r.file
}

// Tee returns a writer that duplicates writes to w and the run log.
func (r *RunLog) Tee(w io.Writer) io.Writer {
	return io.MultiWriter(w, r.file)
}

// Close syncs and closes the run log file. Safe to call multiple times.
func (r *RunLog) Close() error {
	if r.file == nil {
		return nil
	}
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		r.file = nil
		return fmt.Errorf("sync run log: %w", err)
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("close run log: %w", err)
	}
	return nil
}

// sanitizeLabel strips characters that are awkward in file names.
func sanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, label)
}
