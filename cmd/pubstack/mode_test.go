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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"starting", ModeStarting, false},
		{"development", ModeDevelopment, false},
		{"production", ModeProduction, false},
		{"", "", true},
		{"prod", "", true},
		{"Development", "", true},
		{"staging", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMode_ContainerName(t *testing.T) {
	assert.Equal(t, "blog-publisher-development", ModeDevelopment.ContainerName("blog-publisher-"))
	assert.Equal(t, "blog-publisher-production", ModeProduction.ContainerName("blog-publisher-"))
	assert.Equal(t, "blog-publisher-starting", ModeStarting.ContainerName("blog-publisher-"))
}

func TestMode_FlaskEnv(t *testing.T) {
	assert.Equal(t, "development", ModeStarting.FlaskEnv())
	assert.Equal(t, "development", ModeDevelopment.FlaskEnv())
	assert.Equal(t, "production", ModeProduction.FlaskEnv())
}

func TestModeResolver_ExplicitOverride(t *testing.T) {
	// The prompter must never be consulted when --mode is given.
	mock := &MockPrompter{
		ConfirmFunc: func(ctx context.Context, prompt string) (bool, error) {
			t.Fatal("Confirm should not be called with an explicit override")
			return false, nil
		},
	}
	resolver := NewModeResolver(mock)

	mode, changed, err := resolver.Resolve(context.Background(), "production", ModeDevelopment)
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, mode)
	assert.True(t, changed)
}

func TestModeResolver_ExplicitOverride_SameAsExisting(t *testing.T) {
	resolver := NewModeResolver(&MockPrompter{})

	mode, changed, err := resolver.Resolve(context.Background(), "development", ModeDevelopment)
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, mode)
	assert.False(t, changed, "unchanged mode must not trigger a rewrite")
}

func TestModeResolver_InvalidOverride(t *testing.T) {
	resolver := NewModeResolver(&MockPrompter{})

	_, _, err := resolver.Resolve(context.Background(), "staging", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestModeResolver_KeepExisting(t *testing.T) {
	mock := &MockPrompter{
		ConfirmFunc: func(ctx context.Context, prompt string) (bool, error) {
			assert.Contains(t, prompt, "development")
			return false, nil
		},
		SelectFunc: func(ctx context.Context, prompt string, options []string) (int, error) {
			t.Fatal("Select should not be called when the user keeps the existing mode")
			return 0, nil
		},
	}
	resolver := NewModeResolver(mock)

	mode, changed, err := resolver.Resolve(context.Background(), "", ModeDevelopment)
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, mode)
	assert.False(t, changed, "keeping the existing mode must not persist")
}

func TestModeResolver_ChangeExisting(t *testing.T) {
	mock := &MockPrompter{
		ConfirmFunc: func(ctx context.Context, prompt string) (bool, error) {
			return true, nil
		},
		SelectFunc: func(ctx context.Context, prompt string, options []string) (int, error) {
			require.Equal(t, []string{"starting", "development", "production"}, options)
			return 2, nil
		},
	}
	resolver := NewModeResolver(mock)

	mode, changed, err := resolver.Resolve(context.Background(), "", ModeDevelopment)
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, mode)
	assert.True(t, changed)
}

func TestModeResolver_FirstRun(t *testing.T) {
	mock := &MockPrompter{
		SelectFunc: func(ctx context.Context, prompt string, options []string) (int, error) {
			return 1, nil
		},
	}
	resolver := NewModeResolver(mock)

	mode, changed, err := resolver.Resolve(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, mode)
	assert.True(t, changed)
}

func TestModeResolver_RepromptsOnInvalidSelection(t *testing.T) {
	attempts := 0
	mock := &MockPrompter{
		SelectFunc: func(ctx context.Context, prompt string, options []string) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, ErrInvalidSelection
			}
			return 0, nil
		},
	}
	resolver := NewModeResolver(mock)

	mode, _, err := resolver.Resolve(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, ModeStarting, mode)
	assert.Equal(t, 3, attempts)
}

func TestModeResolver_GivesUpAfterMaxAttempts(t *testing.T) {
	mock := &MockPrompter{
		SelectFunc: func(ctx context.Context, prompt string, options []string) (int, error) {
			return 0, ErrInvalidSelection
		},
	}
	resolver := NewModeResolver(mock)

	_, _, err := resolver.Resolve(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 attempts")
}

func TestModeResolver_NonInteractive_ReusesSaved(t *testing.T) {
	mock := &MockPrompter{
		ConfirmFunc: func(ctx context.Context, prompt string) (bool, error) {
			return false, ErrNonInteractive
		},
		IsInteractiveFunc: func() bool { return false },
	}
	resolver := NewModeResolver(mock)

	mode, changed, err := resolver.Resolve(context.Background(), "", ModeProduction)
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, mode)
	assert.False(t, changed)
}

func TestModeResolver_NonInteractive_NoSavedMode(t *testing.T) {
	mock := &MockPrompter{
		SelectFunc: func(ctx context.Context, prompt string, options []string) (int, error) {
			return 0, ErrNonInteractive
		},
		IsInteractiveFunc: func() bool { return false },
	}
	resolver := NewModeResolver(mock)

	_, _, err := resolver.Resolve(context.Background(), "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonInteractive)
	assert.Contains(t, err.Error(), "--mode")
}

func TestModeResolver_InvalidSavedMode(t *testing.T) {
	mock := &MockPrompter{
		SelectFunc: func(ctx context.Context, prompt string, options []string) (int, error) {
			return 1, nil
		},
	}
	resolver := NewModeResolver(mock)

	mode, changed, err := resolver.Resolve(context.Background(), "", Mode("bogus"))
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, mode)
	assert.True(t, changed)
}
