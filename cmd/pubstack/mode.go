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
	"context"
	"errors"
	"fmt"
)

// Mode identifies a deployment mode for the blog publisher stack.
//
// The set of modes is closed: every mode maps to a distinct container
// name and Flask environment, and anything outside the set is rejected
// at parse time rather than passed through to compose.
type Mode string

const (
	// ModeStarting runs the stack with a minimal seed configuration,
	// suitable for a first-time setup walkthrough.
	ModeStarting Mode = "starting"

	// ModeDevelopment runs the stack with live-reload and debug
	// settings enabled.
	ModeDevelopment Mode = "development"

	// ModeProduction runs the stack with production Flask settings.
	ModeProduction Mode = "production"
)

// AllModes lists every valid mode in menu order. The order is
// significant: menu choice N selects AllModes[N-1].
var AllModes = []Mode{ModeStarting, ModeDevelopment, ModeProduction}

// ErrUnknownMode is returned when a string does not name a valid mode.
var ErrUnknownMode = errors.New("unknown deployment mode")

// ParseMode converts a string to a Mode.
//
// # Description
//
// Validates that the given string names one of the closed set of
// deployment modes. Used for the --mode flag and for values read back
// from the env file.
//
// # Inputs
//
//   - s: Candidate mode name (exact match, lowercase).
//
// # Outputs
//
//   - Mode: The parsed mode.
//   - error: ErrUnknownMode if s is not a valid mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range AllModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %v)", ErrUnknownMode, s, AllModes)
}

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// Valid reports whether the mode is a member of the closed set.
func (m Mode) Valid() bool {
	_, err := ParseMode(string(m))
	return err == nil
}

// ContainerName returns the container name for this mode using the
// configured prefix, e.g. "blog-publisher-" + "development".
func (m Mode) ContainerName(prefix string) string {
	return prefix + string(m)
}

// FlaskEnv returns the FLASK_ENV value for this mode. Production maps
// to "production"; starting and development both map to "development".
func (m Mode) FlaskEnv() string {
	if m == ModeProduction {
		return "production"
	}
	return "development"
}

// ModeResolver determines which deployment mode a run should use.
//
// # Description
//
// Resolution is a pure decision over three inputs: an explicit
// override (the --mode flag), a previously persisted mode, and the
// prompter. All interactive concerns live here; the callers below
// receive a resolved Mode and never touch stdin.
type ModeResolver struct {
	prompter UserPrompter
}

// NewModeResolver creates a ModeResolver using the given prompter.
func NewModeResolver(prompter UserPrompter) *ModeResolver {
	return &ModeResolver{prompter: prompter}
}

// maxMenuAttempts bounds the re-prompt loop so a yanked pipe cannot
// spin forever on ErrInvalidSelection.
const maxMenuAttempts = 5

// Resolve determines the mode for this run.
//
// # Description
//
// Resolution precedence:
//
//  1. An explicit override (from --mode) wins unconditionally and is
//     validated before use.
//  2. If a previous mode exists, the user is asked whether to change
//     it. Declining keeps the existing mode; the caller must not
//     rewrite the env file in that case.
//  3. Otherwise (first run, or the user opted to change), the numbered
//     mode menu is shown. Invalid entries re-prompt up to
//     maxMenuAttempts times.
//
// # Inputs
//
//   - ctx: Context for cancellation during prompts.
//   - override: Explicit mode name from the command line, or "" if
//     none was given.
//   - existing: Previously persisted mode, or "" on first run.
//
// # Outputs
//
//   - Mode: The resolved mode.
//   - bool: True if the mode differs from existing and must be
//     persisted; false when the existing mode was kept as-is.
//   - error: Non-nil on parse failure, prompt failure, or when the
//     prompter cannot interact and no mode can be resolved.
func (r *ModeResolver) Resolve(ctx context.Context, override string, existing Mode) (Mode, bool, error) {
	if override != "" {
		mode, err := ParseMode(override)
		if err != nil {
			return "", false, err
		}
		return mode, mode != existing, nil
	}

	if existing != "" {
		if !existing.Valid() {
			// A hand-edited env file can carry garbage; treat it as a
			// first run rather than silently deploying with it.
			fmt.Printf("  ⚠️  Ignoring invalid saved mode %q\n", existing)
			mode, err := r.selectMode(ctx)
			return mode, true, err
		}

		change, err := r.prompter.Confirm(ctx,
			fmt.Sprintf("Current mode is %q. Change it?", existing))
		if err != nil {
			if errors.Is(err, ErrNonInteractive) {
				// Piped invocation with a saved mode: reuse it.
				return existing, false, nil
			}
			return "", false, fmt.Errorf("mode confirmation failed: %w", err)
		}
		if !change {
			return existing, false, nil
		}

		mode, err := r.selectMode(ctx)
		return mode, mode != existing, err
	}

	mode, err := r.selectMode(ctx)
	return mode, true, err
}

// selectMode shows the numbered menu and re-prompts on invalid input.
func (r *ModeResolver) selectMode(ctx context.Context) (Mode, error) {
	options := make([]string, len(AllModes))
	for i, m := range AllModes {
		options[i] = string(m)
	}

	for attempt := 0; attempt < maxMenuAttempts; attempt++ {
		idx, err := r.prompter.Select(ctx, "Select deployment mode:", options)
		if err == nil {
			return AllModes[idx], nil
		}
		if errors.Is(err, ErrInvalidSelection) {
			fmt.Printf("  Invalid choice, enter a number between 1 and %d.\n", len(options))
			continue
		}
		if errors.Is(err, ErrNonInteractive) {
			return "", fmt.Errorf("no deployment mode saved and input is not a terminal; pass --mode: %w", err)
		}
		return "", fmt.Errorf("mode selection failed: %w", err)
	}
	return "", fmt.Errorf("no valid mode selected after %d attempts", maxMenuAttempts)
}
