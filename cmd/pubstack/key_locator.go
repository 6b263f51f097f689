// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrNoUsableKey is returned when no structurally valid SSH public
// key is found among the candidate paths.
var ErrNoUsableKey = errors.New("no usable SSH public key found")

// LocatedKey is a validated SSH public key ready for container provisioning.
type LocatedKey struct {
	// Path is the file the key was read from.
	Path string

	// Content is the raw file content, byte for byte. The container
	// writes this into authorized_keys, so no normalization happens
	// here.
	Content string

	// Type is the parsed key algorithm, e.g. "ssh-ed25519".
	Type string

	// Comment is the trailing comment from the key line, usually
	// user@host. May be empty.
	Comment string
}

// EnvVar returns the key as a sensitive environment variable for
// compose. The value never touches the env file on disk.
func (k LocatedKey) EnvVar() EnvVar {
	return EnvVar{Key: "SSH_PUB_KEY", Value: strings.TrimRight(k.Content, "\n"), Sensitive: true}
}

// KeyLocator finds an SSH public key for container access.
type KeyLocator interface {
	// Locate returns the first structurally valid key among the
	// candidates, or ErrNoUsableKey.
	Locate() (LocatedKey, error)
}

// Compile-time interface checks.
var (
	_ KeyLocator = (*DefaultKeyLocator)(nil)
	_ KeyLocator = (*MockKeyLocator)(nil)
)

// DefaultKeyLocator scans an ordered list of candidate files.
//
// # Description
//
// Walks the configured candidates in order (strongest algorithm
// first), skipping files that do not exist and files whose content
// does not parse as an authorized_keys entry. The first valid key
// wins. A present-but-invalid file produces a warning and the scan
// continues to the next candidate; only exhausting the whole list is
// fatal.
//
// # Assumptions
//
//   - Candidates are public keys. Private key files are never read.
type DefaultKeyLocator struct {
	// Dir is the directory holding the candidates, typically ~/.ssh.
	Dir string

	// Candidates are filenames relative to Dir, in preference order.
	Candidates []string

	// Warnf receives per-candidate diagnostics. Defaults to stdout.
	Warnf func(format string, args ...any)
}

// NewDefaultKeyLocator creates a locator over dir trying candidates in order.
func NewDefaultKeyLocator(dir string, candidates []string) *DefaultKeyLocator {
	return &DefaultKeyLocator{
		Dir:        dir,
		Candidates: candidates,
		Warnf: func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		},
	}
}

// Locate scans the candidates and returns the first valid key.
//
// # Outputs
//
//   - LocatedKey: The key, with its raw content unmodified.
//   - error: ErrNoUsableKey (wrapped with per-path details) when no
//     candidate is usable; a read error is folded into the same
//     skip-and-continue handling as a missing file.
func (l *DefaultKeyLocator) Locate() (LocatedKey, error) {
	dir := expandHome(l.Dir)
	var tried []string

	for _, name := range l.Candidates {
		path := filepath.Join(dir, name)

		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				tried = append(tried, fmt.Sprintf("%s: not found", path))
				continue
			}
			l.warnf("  ⚠️  Skipping %s: %v", path, err)
			tried = append(tried, fmt.Sprintf("%s: %v", path, err))
			continue
		}

		pub, comment, _, _, err := ssh.ParseAuthorizedKey(content)
		if err != nil {
			l.warnf("  ⚠️  %s exists but is not a valid public key: %v", path, err)
			tried = append(tried, fmt.Sprintf("%s: invalid: %v", path, err))
			continue
		}

		return LocatedKey{
			Path:    path,
			Content: string(content),
			Type:    pub.Type(),
			Comment: comment,
		}, nil
	}

	return LocatedKey{}, fmt.Errorf("%w in %s (tried: %s); generate one with ssh-keygen -t ed25519",
		ErrNoUsableKey, dir, strings.Join(tried, "; "))
}

func (l *DefaultKeyLocator) warnf(format string, args ...any) {
	if l.Warnf != nil {
		l.Warnf(format, args...)
	}
}

// expandHome expands a leading ~/ to the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// MockKeyLocator is a test double for KeyLocator.
type MockKeyLocator struct {
	// LocateFunc is called by Locate. Panics if nil.
	LocateFunc func() (LocatedKey, error)
}

// Locate calls LocateFunc.
func (m *MockKeyLocator) Locate() (LocatedKey, error) {
	if m.LocateFunc == nil {
		panic("MockKeyLocator.Locate called but LocateFunc is nil")
	}
	return m.LocateFunc()
}
