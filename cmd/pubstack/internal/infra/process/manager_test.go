// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultManager_Run_Success(t *testing.T) {
	pm := NewDefaultManager()

	out, err := pm.Run(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestDefaultManager_Run_IncludesStderrInError(t *testing.T) {
	pm := NewDefaultManager()

	_, err := pm.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDefaultManager_Run_ContextCancellation(t *testing.T) {
	pm := NewDefaultManager()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pm.Run(ctx, "sleep", "10")
	require.Error(t, err)
}

func TestDefaultManager_RunInDir_CapturesStreams(t *testing.T) {
	pm := NewDefaultManager()

	stdout, stderr, code, err := pm.RunInDir(context.Background(), t.TempDir(), nil,
		"sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout)
	assert.Equal(t, "err\n", stderr)
	assert.Equal(t, 0, code)
}

func TestDefaultManager_RunInDir_ExitCode(t *testing.T) {
	pm := NewDefaultManager()

	_, _, code, err := pm.RunInDir(context.Background(), "", nil, "sh", "-c", "exit 7")
	require.Error(t, err)
	assert.Equal(t, 7, code)
}

func TestDefaultManager_RunInDir_WorkingDirectory(t *testing.T) {
	pm := NewDefaultManager()
	dir := t.TempDir()

	stdout, _, _, err := pm.RunInDir(context.Background(), dir, nil, "pwd")
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(stdout))
}

func TestDefaultManager_RunInDir_ExtraEnvironment(t *testing.T) {
	pm := NewDefaultManager()

	stdout, _, _, err := pm.RunInDir(context.Background(), "",
		map[string]string{"PUBSTACK_TEST_VAR": "42"},
		"sh", "-c", "echo $PUBSTACK_TEST_VAR")
	require.NoError(t, err)
	assert.Equal(t, "42", strings.TrimSpace(stdout))
}

func TestDefaultManager_RunStreaming_WritesOutput(t *testing.T) {
	pm := NewDefaultManager()

	var buf bytes.Buffer
	err := pm.RunStreaming(context.Background(), "", &buf, "sh", "-c", "echo one; echo two >&2")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "one")
	assert.Contains(t, buf.String(), "two")
}

func TestDefaultManager_RunStreaming_CancelledContextIsNotFailure(t *testing.T) {
	pm := NewDefaultManager()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pm.RunStreaming(ctx, "", io.Discard, "sleep", "10")
	assert.NoError(t, err)
}

func TestMockManager_RecordsCalls(t *testing.T) {
	mock := &MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env map[string]string, name string, args ...string) (string, string, int, error) {
			return "ok", "", 0, nil
		},
	}

	stdout, _, code, err := mock.RunInDir(context.Background(), "/work", nil, "docker", "compose", "up")
	require.NoError(t, err)
	assert.Equal(t, "ok", stdout)
	assert.Equal(t, 0, code)

	calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "RunInDir", calls[0].Method)
	assert.Equal(t, "docker", calls[0].Name)
	assert.Equal(t, []string{"compose", "up"}, calls[0].Args)
	assert.Equal(t, "/work", calls[0].Dir)
}

func TestMockManager_Reset(t *testing.T) {
	mock := &MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("no")
		},
	}

	_, _ = mock.Run(context.Background(), "docker", "ps")
	mock.Reset()
	assert.Empty(t, mock.GetCalls())
}
