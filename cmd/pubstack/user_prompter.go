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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNonInteractive indicates a prompt was attempted without a terminal.
	ErrNonInteractive = errors.New("cannot prompt in non-interactive mode")

	// ErrInvalidSelection indicates the user entered an out-of-range choice.
	ErrInvalidSelection = errors.New("invalid selection")
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// UserPrompter handles interactive user prompts.
//
// # Description
//
// This interface isolates terminal interaction from decision logic, so
// the mode resolution flow can be tested without a terminal. Callers
// that need a retry loop (for example the mode menu) implement it on
// top of Select, which performs a single attempt.
type UserPrompter interface {
	// Confirm asks a yes/no question. Empty input and unrecognized
	// answers mean no.
	Confirm(ctx context.Context, prompt string) (bool, error)

	// Select presents numbered options and reads one choice. Returns
	// the zero-based index, or ErrInvalidSelection for out-of-range
	// input. A single attempt; callers loop if they want re-prompting.
	Select(ctx context.Context, prompt string, options []string) (int, error)

	// IsInteractive reports whether prompts can actually reach a user.
	IsInteractive() bool
}

// -----------------------------------------------------------------------------
// Interactive Implementation
// -----------------------------------------------------------------------------

// InteractivePrompter reads answers from an input stream, normally the
// terminal.
type InteractivePrompter struct {
	// reader is shared across prompts so buffered input survives
	// consecutive questions in one run
	reader *bufio.Reader
	writer io.Writer
}

// NewInteractivePrompter creates a prompter bound to stdin/stdout.
func NewInteractivePrompter() *InteractivePrompter {
	return NewInteractivePrompterWithIO(os.Stdin, os.Stdout)
}

// NewInteractivePrompterWithIO creates a prompter with explicit streams.
// Used by tests to simulate user input.
func NewInteractivePrompterWithIO(r io.Reader, w io.Writer) *InteractivePrompter {
	return &InteractivePrompter{reader: bufio.NewReader(r), writer: w}
}

// Confirm asks a yes/no question with a [y/N] hint.
//
// EOF is treated as "no" so piped input that runs dry takes the safe
// default rather than failing the run.
func (p *InteractivePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(p.writer, "%s [y/N]: ", prompt)

	line, err := p.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Select presents numbered options and reads one choice.
func (p *InteractivePrompter) Select(ctx context.Context, prompt string, options []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(options) == 0 {
		return 0, fmt.Errorf("%w: no options to select from", ErrInvalidSelection)
	}

	fmt.Fprintln(p.writer, prompt)
	for i, opt := range options {
		fmt.Fprintf(p.writer, "  %d. %s\n", i+1, opt)
	}
	fmt.Fprintf(p.writer, "Enter choice [1-%d]: ", len(options))

	line, err := p.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read selection: %w", err)
	}

	choice, convErr := strconv.Atoi(strings.TrimSpace(line))
	if convErr != nil || choice < 1 || choice > len(options) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSelection, strings.TrimSpace(line))
	}
	return choice - 1, nil
}

// IsInteractive always returns true for the interactive prompter.
func (p *InteractivePrompter) IsInteractive() bool {
	return true
}

// readLine reads a single line from the input stream.
func (p *InteractivePrompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// -----------------------------------------------------------------------------
// Non-Interactive Implementation
// -----------------------------------------------------------------------------

// NonInteractivePrompter rejects all prompts.
//
// Used when stdin is not a terminal and the user did not pass --yes:
// failing loudly beats hanging a CI pipeline on a question nobody will
// answer.
type NonInteractivePrompter struct{}

// NewNonInteractivePrompter creates a prompter that rejects all prompts.
func NewNonInteractivePrompter() *NonInteractivePrompter {
	return &NonInteractivePrompter{}
}

// Confirm returns ErrNonInteractive.
func (p *NonInteractivePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	return false, fmt.Errorf("%w: %s", ErrNonInteractive, prompt)
}

// Select returns ErrNonInteractive.
func (p *NonInteractivePrompter) Select(ctx context.Context, prompt string, options []string) (int, error) {
	return 0, fmt.Errorf("%w: %s", ErrNonInteractive, prompt)
}

// IsInteractive returns false.
func (p *NonInteractivePrompter) IsInteractive() bool {
	return false
}

// -----------------------------------------------------------------------------
// Auto-Approve Implementation
// -----------------------------------------------------------------------------

// AutoApprovePrompter approves every confirmation and selects the first
// option. Backs the --yes flag.
type AutoApprovePrompter struct{}

// NewAutoApprovePrompter creates a prompter that approves everything.
func NewAutoApprovePrompter() *AutoApprovePrompter {
	return &AutoApprovePrompter{}
}

// Confirm always returns true.
func (p *AutoApprovePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	return true, nil
}

// Select always returns the first option.
func (p *AutoApprovePrompter) Select(ctx context.Context, prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("%w: no options to select from", ErrInvalidSelection)
	}
	return 0, nil
}

// IsInteractive returns false.
func (p *AutoApprovePrompter) IsInteractive() bool {
	return false
}

// -----------------------------------------------------------------------------
// Prompter Selection
// -----------------------------------------------------------------------------

// NewPrompterForEnvironment picks the right prompter for the current
// invocation.
//
//   - --yes: auto-approve everything
//   - stdin is a terminal: interactive
//   - otherwise: non-interactive (prompts fail loudly)
func NewPrompterForEnvironment(assumeYes bool) UserPrompter {
	if assumeYes {
		return NewAutoApprovePrompter()
	}
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return NewInteractivePrompter()
	}
	return NewNonInteractivePrompter()
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// PromptCall records a single prompter invocation.
type PromptCall struct {
	Method  string
	Prompt  string
	Options []string
}

// MockPrompter is a test double for UserPrompter.
//
// Unset function fields return zero values rather than panicking, so
// tests only configure the prompts they care about.
type MockPrompter struct {
	ConfirmFunc       func(ctx context.Context, prompt string) (bool, error)
	SelectFunc        func(ctx context.Context, prompt string, options []string) (int, error)
	IsInteractiveFunc func() bool

	// Calls records all prompter invocations for verification
	Calls []PromptCall

	mu sync.Mutex
}

// Confirm delegates to ConfirmFunc and records the call.
func (m *MockPrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	m.record(PromptCall{Method: "Confirm", Prompt: prompt})
	if m.ConfirmFunc == nil {
		return false, nil
	}
	return m.ConfirmFunc(ctx, prompt)
}

// Select delegates to SelectFunc and records the call.
func (m *MockPrompter) Select(ctx context.Context, prompt string, options []string) (int, error) {
	m.record(PromptCall{Method: "Select", Prompt: prompt, Options: options})
	if m.SelectFunc == nil {
		return 0, nil
	}
	return m.SelectFunc(ctx, prompt, options)
}

// IsInteractive delegates to IsInteractiveFunc; defaults to true.
func (m *MockPrompter) IsInteractive() bool {
	if m.IsInteractiveFunc == nil {
		return true
	}
	return m.IsInteractiveFunc()
}

// Reset clears recorded calls.
func (m *MockPrompter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

func (m *MockPrompter) record(call PromptCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// Compile-time interface checks
var (
	_ UserPrompter = (*InteractivePrompter)(nil)
	_ UserPrompter = (*NonInteractivePrompter)(nil)
	_ UserPrompter = (*AutoApprovePrompter)(nil)
	_ UserPrompter = (*MockPrompter)(nil)
)
