// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Level defines the richness of CLI output
type Level string

const (
	// LevelStandard enables colors, icons, and boxes
	LevelStandard Level = "standard"

	// LevelMinimal uses icons and basic formatting only
	LevelMinimal Level = "minimal"

	// LevelMachine outputs plain text suitable for scripting and parsing
	LevelMachine Level = "machine"
)

var (
	currentLevel = LevelStandard
	levelMu      sync.RWMutex
)

// OutputLevel returns the current output level
func OutputLevel() Level {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetLevel updates the output level
func SetLevel(level Level) {
	levelMu.Lock()
	defer levelMu.Unlock()
	currentLevel = level
}

// ParseLevel converts a string to a Level
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "standard", "std", "s":
		return LevelStandard
	case "minimal", "min", "m":
		return LevelMinimal
	case "machine", "quiet", "q":
		return LevelMachine
	default:
		return LevelStandard
	}
}

// Init initializes the output level from environment and terminal state.
// PUBSTACK_OUTPUT wins; piped stdout falls back to machine output.
func Init() {
	if env := os.Getenv("PUBSTACK_OUTPUT"); env != "" {
		SetLevel(ParseLevel(env))
		return
	}
	if !isTerminal() {
		SetLevel(LevelMachine)
		return
	}
	SetLevel(LevelStandard)
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
