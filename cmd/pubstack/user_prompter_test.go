// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package main contains unit tests for UserPrompter.

# Testing Strategy

These tests verify:
  - InteractivePrompter correctly handles various user inputs
  - NonInteractivePrompter and AutoApprovePrompter behave correctly
    for piped and --yes invocations
  - MockPrompter works correctly as a test double
  - Error handling for edge cases
*/
package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// InteractivePrompter Tests
// -----------------------------------------------------------------------------

func TestInteractivePrompter_Confirm_Yes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"lowercase y", "y\n", true},
		{"uppercase Y", "Y\n", true},
		{"lowercase yes", "yes\n", true},
		{"uppercase YES", "YES\n", true},
		{"mixed Yes", "Yes\n", true},
		{"with spaces", "  y  \n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := strings.NewReader(tt.input)
			writer := &bytes.Buffer{}
			prompter := NewInteractivePrompterWithIO(reader, writer)

			got, err := prompter.Confirm(context.Background(), "Continue?")
			if err != nil {
				t.Fatalf("Confirm() unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Confirm() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestInteractivePrompter_Confirm_No(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"lowercase n", "n\n", false},
		{"uppercase N", "N\n", false},
		{"lowercase no", "no\n", false},
		{"empty input", "\n", false},
		{"random text", "maybe\n", false},
		{"number", "1\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := strings.NewReader(tt.input)
			writer := &bytes.Buffer{}
			prompter := NewInteractivePrompterWithIO(reader, writer)

			got, err := prompter.Confirm(context.Background(), "Continue?")
			if err != nil {
				t.Fatalf("Confirm() unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Confirm() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestInteractivePrompter_Confirm_Prompt(t *testing.T) {
	reader := strings.NewReader("y\n")
	writer := &bytes.Buffer{}
	prompter := NewInteractivePrompterWithIO(reader, writer)

	_, _ = prompter.Confirm(context.Background(), "Remove existing containers?")

	output := writer.String()
	if !strings.Contains(output, "Remove existing containers?") {
		t.Errorf("prompt not displayed in output: %q", output)
	}
	if !strings.Contains(output, "[y/N]") {
		t.Errorf("hint not displayed in output: %q", output)
	}
}

func TestInteractivePrompter_Confirm_EOF(t *testing.T) {
	reader := strings.NewReader("") // EOF
	writer := &bytes.Buffer{}
	prompter := NewInteractivePrompterWithIO(reader, writer)

	got, err := prompter.Confirm(context.Background(), "Continue?")
	if err != nil {
		t.Fatalf("Confirm() unexpected error: %v", err)
	}
	if got != false {
		t.Errorf("Confirm() = %v, want false on EOF", got)
	}
}

func TestInteractivePrompter_Confirm_ContextCancelled(t *testing.T) {
	reader := strings.NewReader("y\n")
	writer := &bytes.Buffer{}
	prompter := NewInteractivePrompterWithIO(reader, writer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := prompter.Confirm(ctx, "Continue?")
	if err == nil {
		t.Fatal("Confirm() expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Confirm() error = %v, want context.Canceled", err)
	}
}

func TestInteractivePrompter_Select_ValidChoice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		options  []string
		expected int
	}{
		{"first option", "1\n", []string{"A", "B", "C"}, 0},
		{"second option", "2\n", []string{"A", "B", "C"}, 1},
		{"last option", "3\n", []string{"A", "B", "C"}, 2},
		{"with spaces", "  2  \n", []string{"A", "B"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := strings.NewReader(tt.input)
			writer := &bytes.Buffer{}
			prompter := NewInteractivePrompterWithIO(reader, writer)

			got, err := prompter.Select(context.Background(), "Choose:", tt.options)
			if err != nil {
				t.Fatalf("Select() unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Select() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestInteractivePrompter_Select_InvalidChoice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		options []string
	}{
		{"zero", "0\n", []string{"A", "B"}},
		{"too high", "5\n", []string{"A", "B"}},
		{"negative", "-1\n", []string{"A", "B"}},
		{"text", "abc\n", []string{"A", "B"}},
		{"empty", "\n", []string{"A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := strings.NewReader(tt.input)
			writer := &bytes.Buffer{}
			prompter := NewInteractivePrompterWithIO(reader, writer)

			_, err := prompter.Select(context.Background(), "Choose:", tt.options)
			if err == nil {
				t.Fatal("Select() expected error for invalid choice")
			}
			if !errors.Is(err, ErrInvalidSelection) {
				t.Errorf("Select() error = %v, want ErrInvalidSelection", err)
			}
		})
	}
}

func TestInteractivePrompter_Select_DisplaysOptions(t *testing.T) {
	reader := strings.NewReader("1\n")
	writer := &bytes.Buffer{}
	prompter := NewInteractivePrompterWithIO(reader, writer)

	options := []string{"starting", "development", "production"}
	_, _ = prompter.Select(context.Background(), "Select deployment mode:", options)

	output := writer.String()
	if !strings.Contains(output, "Select deployment mode:") {
		t.Errorf("prompt not displayed: %q", output)
	}
	if !strings.Contains(output, "1. starting") {
		t.Errorf("option 1 not displayed: %q", output)
	}
	if !strings.Contains(output, "2. development") {
		t.Errorf("option 2 not displayed: %q", output)
	}
	if !strings.Contains(output, "3. production") {
		t.Errorf("option 3 not displayed: %q", output)
	}
}

func TestInteractivePrompter_Select_EmptyOptions(t *testing.T) {
	prompter := NewInteractivePrompterWithIO(strings.NewReader("1\n"), &bytes.Buffer{})

	_, err := prompter.Select(context.Background(), "Choose:", []string{})
	if err == nil {
		t.Fatal("Select() expected error for empty options")
	}
}

func TestInteractivePrompter_ConsecutivePrompts(t *testing.T) {
	// One input stream covering two prompts: a confirmation then a menu
	// choice. Buffered input must survive between the two reads.
	reader := strings.NewReader("y\n2\n")
	writer := &bytes.Buffer{}
	prompter := NewInteractivePrompterWithIO(reader, writer)

	ok, err := prompter.Confirm(context.Background(), "Change mode?")
	if err != nil || !ok {
		t.Fatalf("Confirm() = (%v, %v), want (true, nil)", ok, err)
	}

	got, err := prompter.Select(context.Background(), "Choose:", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Select() unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("Select() = %d, want 1", got)
	}
}

func TestInteractivePrompter_IsInteractive(t *testing.T) {
	prompter := NewInteractivePrompter()
	if !prompter.IsInteractive() {
		t.Error("IsInteractive() = false, want true")
	}
}

// -----------------------------------------------------------------------------
// NonInteractivePrompter Tests
// -----------------------------------------------------------------------------

func TestNonInteractivePrompter_Confirm_Rejects(t *testing.T) {
	prompter := NewNonInteractivePrompter()

	_, err := prompter.Confirm(context.Background(), "Continue?")
	if err == nil {
		t.Fatal("Confirm() expected error in non-interactive mode")
	}
	if !errors.Is(err, ErrNonInteractive) {
		t.Errorf("Confirm() error = %v, want ErrNonInteractive", err)
	}
}

func TestNonInteractivePrompter_Select_Rejects(t *testing.T) {
	prompter := NewNonInteractivePrompter()

	_, err := prompter.Select(context.Background(), "Choose:", []string{"A", "B"})
	if err == nil {
		t.Fatal("Select() expected error in non-interactive mode")
	}
	if !errors.Is(err, ErrNonInteractive) {
		t.Errorf("Select() error = %v, want ErrNonInteractive", err)
	}
}

func TestNonInteractivePrompter_IsInteractive(t *testing.T) {
	prompter := NewNonInteractivePrompter()
	if prompter.IsInteractive() {
		t.Error("IsInteractive() = true, want false")
	}
}

// -----------------------------------------------------------------------------
// AutoApprovePrompter Tests
// -----------------------------------------------------------------------------

func TestAutoApprovePrompter_Confirm_Approves(t *testing.T) {
	prompter := NewAutoApprovePrompter()

	got, err := prompter.Confirm(context.Background(), "Remove everything?")
	if err != nil {
		t.Fatalf("Confirm() unexpected error: %v", err)
	}
	if !got {
		t.Error("Confirm() = false, want true for auto-approve")
	}
}

func TestAutoApprovePrompter_Select_SelectsFirst(t *testing.T) {
	prompter := NewAutoApprovePrompter()

	got, err := prompter.Select(context.Background(), "Choose:", []string{"First", "Second"})
	if err != nil {
		t.Fatalf("Select() unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("Select() = %d, want 0 for auto-approve", got)
	}
}

func TestAutoApprovePrompter_Select_EmptyOptions(t *testing.T) {
	prompter := NewAutoApprovePrompter()

	_, err := prompter.Select(context.Background(), "Choose:", []string{})
	if err == nil {
		t.Fatal("Select() expected error for empty options")
	}
}

func TestAutoApprovePrompter_IsInteractive(t *testing.T) {
	prompter := NewAutoApprovePrompter()
	if prompter.IsInteractive() {
		t.Error("IsInteractive() = true, want false for auto-approve")
	}
}

// -----------------------------------------------------------------------------
// MockPrompter Tests
// -----------------------------------------------------------------------------

func TestMockPrompter_Confirm(t *testing.T) {
	mock := &MockPrompter{
		ConfirmFunc: func(ctx context.Context, prompt string) (bool, error) {
			return prompt == "Change mode?", nil
		},
	}

	got, err := mock.Confirm(context.Background(), "Change mode?")
	if err != nil || !got {
		t.Errorf("Confirm() = (%v, %v), want (true, nil)", got, err)
	}

	got, err = mock.Confirm(context.Background(), "Other prompt")
	if err != nil || got {
		t.Errorf("Confirm() = (%v, %v), want (false, nil)", got, err)
	}

	if len(mock.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(mock.Calls))
	}
	if mock.Calls[0].Method != "Confirm" || mock.Calls[0].Prompt != "Change mode?" {
		t.Errorf("call[0] = %+v, unexpected", mock.Calls[0])
	}
}

func TestMockPrompter_Select(t *testing.T) {
	mock := &MockPrompter{
		SelectFunc: func(ctx context.Context, prompt string, options []string) (int, error) {
			return 1, nil
		},
	}

	got, err := mock.Select(context.Background(), "Choose:", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Select() unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("Select() = %d, want 1", got)
	}

	if len(mock.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.Calls))
	}
	if mock.Calls[0].Method != "Select" {
		t.Errorf("call method = %q, want Select", mock.Calls[0].Method)
	}
	if len(mock.Calls[0].Options) != 3 {
		t.Errorf("call options = %v, want 3 options", mock.Calls[0].Options)
	}
}

func TestMockPrompter_IsInteractive(t *testing.T) {
	mock := &MockPrompter{}
	if !mock.IsInteractive() {
		t.Error("IsInteractive() default = false, want true")
	}

	mock.IsInteractiveFunc = func() bool { return false }
	if mock.IsInteractive() {
		t.Error("IsInteractive() custom = true, want false")
	}
}

func TestMockPrompter_Reset(t *testing.T) {
	mock := &MockPrompter{}
	_, _ = mock.Confirm(context.Background(), "a")
	_, _ = mock.Select(context.Background(), "b", nil)

	mock.Reset()
	if len(mock.Calls) != 0 {
		t.Errorf("expected 0 calls after Reset, got %d", len(mock.Calls))
	}
}
