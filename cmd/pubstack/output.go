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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/AleutianAI/pubstack/pkg/ux"
)

// Exit codes for CLI commands. Fatal failures exit 1; findings only
// change the exit code under --strict, and get their own code so CI
// can tell "broken" from "dirty tree".
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitError    = 1 // Operation failed
	CLIExitFindings = 2 // Operation completed with findings/violations
)

// OutputConfig controls output behavior.
type OutputConfig struct {
	JSON    bool // Output as JSON
	Compact bool // No indentation
	Quiet   bool // No output, exit code only
}

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to stdout.
//
// # Inputs
//
//   - data: The data to encode. Must be JSON-serializable.
//   - compact: If true, output without indentation.
//
// # Outputs
//
//   - error: Non-nil if encoding fails.
func OutputJSON(data interface{}, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
//
// # Inputs
//
//   - jsonMode: If true, output as JSON to stdout.
//   - msg: Human-readable error message.
//   - err: The underlying error.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		ux.Error(fmt.Sprintf("%s: %v", msg, err))
	}
}

// OutputResult handles all output scenarios with proper formatting.
//
// # Inputs
//
//   - cfg: Output configuration.
//   - cmd: Command name for metadata.
//   - start: Start time for duration calculation.
//   - data: The data to output.
//   - hasFindings: Whether the operation found issues (for exit code).
//   - err: Any error that occurred.
//
// # Outputs
//
//   - int: The exit code to use.
func OutputResult(cfg OutputConfig, cmd string, start time.Time, data interface{}, hasFindings bool, err error) int {
	if cfg.Quiet {
		if err != nil {
			return CLIExitError
		}
		if hasFindings {
			return CLIExitFindings
		}
		return CLIExitSuccess
	}

	if err != nil {
		OutputError(cfg.JSON, "Command failed", err)
		return CLIExitError
	}

	if cfg.JSON {
		result := CommandResult{
			APIVersion: "1.0",
			Command:    cmd,
			Timestamp:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    true,
			Data:       data,
		}
		if encErr := OutputJSON(result, cfg.Compact); encErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
			return CLIExitError
		}
	}

	if hasFindings {
		return CLIExitFindings
	}
	return CLIExitSuccess
}

// ScanResultPayload is the JSON shape of a scan report.
type ScanResultPayload struct {
	Root         string           `json:"root"`
	Outcome      string           `json:"outcome"`
	FilesScanned int              `json:"files_scanned"`
	Findings     []FindingPayload `json:"findings,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// FindingPayload is the JSON shape of one finding.
type FindingPayload struct {
	Path     string `json:"path"`
	Line     int    `json:"line,omitempty"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Context  string `json:"context,omitempty"`
}

// scanPayload converts a report to its JSON shape.
func scanPayload(report *ScanReport) ScanResultPayload {
	payload := ScanResultPayload{
		Root:         report.Root,
		Outcome:      string(report.Outcome()),
		FilesScanned: report.FilesScanned,
		Warnings:     report.Warnings,
	}
	for _, f := range report.Findings {
		payload.Findings = append(payload.Findings, FindingPayload{
			Path:     f.Path,
			Line:     f.Line,
			Type:     f.Type,
			Severity: string(f.Severity),
			Context:  f.Context,
		})
	}
	return payload
}

// renderScanReport prints a human-readable scan summary.
func renderScanReport(report *ScanReport) {
	ux.Title(fmt.Sprintf("Secret scan: %s", report.Root))
	ux.Muted(fmt.Sprintf("%d files scanned", report.FilesScanned))

	for _, f := range report.Findings {
		loc := f.Path
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.Path, f.Line)
		}
		ux.Error(fmt.Sprintf("[%s] %s  %s", f.Severity, loc, f.Type))
		if f.Context != "" {
			ux.Muted("    " + f.Context)
		}
	}
	for _, w := range report.Warnings {
		ux.Warning(w)
	}

	switch report.Outcome() {
	case ScanOutcomeFindings:
		ux.ErrorBox("Secrets found",
			fmt.Sprintf("%d finding(s). Remove or rotate this material before publishing.", len(report.Findings)))
	case ScanOutcomeWarnings:
		ux.WarningBox("Hygiene warnings",
			fmt.Sprintf("No secrets found, but %d warning(s) need attention.", len(report.Warnings)))
	default:
		ux.Success("No secrets found")
	}
}
