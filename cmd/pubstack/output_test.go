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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutputResult_ExitCodes(t *testing.T) {
	start := time.Now()
	quiet := OutputConfig{Quiet: true}

	assert.Equal(t, CLIExitSuccess, OutputResult(quiet, "scan", start, nil, false, nil))
	assert.Equal(t, CLIExitFindings, OutputResult(quiet, "scan", start, nil, true, nil))
	assert.Equal(t, CLIExitError, OutputResult(quiet, "scan", start, nil, false, errors.New("boom")))
	assert.Equal(t, CLIExitError, OutputResult(quiet, "scan", start, nil, true, errors.New("boom")),
		"errors outrank findings")
}

func TestScanPayload(t *testing.T) {
	report := &ScanReport{
		Root:         "/project",
		FilesScanned: 12,
		Findings: []Finding{
			{Path: "a.txt", Line: 3, Type: "private_key", Severity: SeverityCritical, Context: "masked"},
			{Path: "certs/x.pem", Type: "sensitive_filename", Severity: SeverityHigh},
		},
		Warnings: []string{".gitignore does not cover \".env\""},
	}

	payload := scanPayload(report)
	assert.Equal(t, "/project", payload.Root)
	assert.Equal(t, "findings", payload.Outcome)
	assert.Equal(t, 12, payload.FilesScanned)
	assert.Len(t, payload.Findings, 2)
	assert.Equal(t, "critical", payload.Findings[0].Severity)
	assert.Equal(t, 0, payload.Findings[1].Line, "filename findings carry no line")
	assert.Len(t, payload.Warnings, 1)
}

func TestScanPayload_Clean(t *testing.T) {
	payload := scanPayload(&ScanReport{Root: "/project", FilesScanned: 3})
	assert.Equal(t, "clean", payload.Outcome)
	assert.Empty(t, payload.Findings)
}
