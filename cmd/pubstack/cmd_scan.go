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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pubstack/cmd/pubstack/config"
)

// runScan checks the project tree for secrets before publishing.
//
// By default findings are reported but the exit code stays 0: the scan
// is advisory during day-to-day development. CI pipelines pass
// --strict to turn findings into exit code 1.
func runScan(cmd *cobra.Command, args []string) {
	start := time.Now()

	root := config.Global.Project.Dir
	if len(args) > 0 {
		root = args[0]
	}

	report, err := NewDefaultSecretScanner().Scan(root)
	if err != nil {
		code := OutputResult(OutputConfig{JSON: jsonOutput}, "scan", start, nil, false, err)
		os.Exit(code)
	}

	hasFindings := report.Outcome() == ScanOutcomeFindings

	if jsonOutput {
		code := OutputResult(OutputConfig{JSON: true}, "scan", start, scanPayload(report), hasFindings && strictScan, nil)
		os.Exit(code)
	}

	renderScanReport(report)
	if hasFindings && strictScan {
		os.Exit(CLIExitFindings)
	}
}
