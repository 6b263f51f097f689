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
	"log"

	"github.com/AleutianAI/pubstack/cmd/pubstack/config"
	"github.com/AleutianAI/pubstack/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	modeFlag      string // CLI override for the deployment mode (starting/development/production)
	assumeYes     bool   // Auto-approve all confirmations
	cleanStart    bool   // Tear down an existing stack before starting
	noCache       bool   // Force a full image rebuild
	removeVolumes bool   // Also remove volumes on down
	tailLines     int    // Number of log lines to show
	followLogs    bool   // Stream logs until interrupted
	strictScan    bool   // Exit non-zero when the scan has findings
	jsonOutput    bool   // Machine-readable output for scan/status
	outputLevel   string // UX output level (standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "pubstack",
		Short: "A cli to manage the containerized blog publisher dev environment",
		Long: `Pubstack builds, starts, and verifies the blog publisher
				stack on your own machine, and checks the project tree
				for secrets before you publish it.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX output level from flag or environment
			if outputLevel != "" {
				ux.SetLevel(ux.ParseLevel(outputLevel))
			} else {
				ux.Init()
			}
			if err := config.Load(); err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}
		},
	}

	// --- Stack Management ---
	upCmd = &cobra.Command{
		Use:     "up [label]",
		Short:   "Build, start, and verify the blog publisher stack",
		Aliases: []string{"start"},
		Args:    cobra.MaximumNArgs(1),
		Run:     runUp, // Defined in cmd_stack.go
	}
	downCmd = &cobra.Command{
		Use:     "down",
		Short:   "Stop the blog publisher stack",
		Aliases: []string{"stop"},
		Run:     runDown, // Defined in cmd_stack.go
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the state of the stack containers",
		Run:   runStatus, // Defined in cmd_stack.go
	}
	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Show or stream logs from the stack",
		Run:   runLogs, // Defined in cmd_stack.go
	}

	// --- Publishing safety ---
	scanCmd = &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan the project tree for secrets before publishing",
		Args:  cobra.MaximumNArgs(1),
		Run:   runScan, // Defined in cmd_scan.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&outputLevel, "output", "",
		"Output level: 'standard', 'minimal', or 'machine'")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false,
		"Answer yes to all confirmations")

	rootCmd.AddCommand(upCmd)
	upCmd.Flags().StringVar(&modeFlag, "mode", "",
		"Deployment mode: 'starting', 'development', or 'production' (skips the menu)")
	upCmd.Flags().BoolVar(&cleanStart, "clean", false, "Remove existing containers before starting")
	upCmd.Flags().BoolVar(&noCache, "no-cache", false, "Force rebuild of container images")

	rootCmd.AddCommand(downCmd)
	downCmd.Flags().BoolVar(&removeVolumes, "volumes", false, "Also remove volumes (deletes persisted blog data)")

	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVar(&tailLines, "tail", 100, "Number of log lines to show")
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "Stream logs until interrupted")

	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&strictScan, "strict", false, "Exit with code 1 when findings exist")
	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
}
