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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pubstack/cmd/pubstack/config"
	"github.com/AleutianAI/pubstack/cmd/pubstack/internal/infra/compose"
	"github.com/AleutianAI/pubstack/cmd/pubstack/internal/infra/process"
	"github.com/AleutianAI/pubstack/pkg/logging"
	"github.com/AleutianAI/pubstack/pkg/ux"
)

// newDefaultStackManager wires the production dependency graph from
// the loaded configuration.
func newDefaultStackManager() *StackManager {
	cfg := config.Global

	proc := process.NewDefaultManager()
	composeCfg := compose.DefaultConfig(cfg.Project.Dir)
	composeCfg.ComposeFile = cfg.Project.ComposeFile
	exec := compose.NewDefaultExecutor(composeCfg, proc)

	locker := process.NewProcessLock(process.DefaultProcessLockConfig())
	keys := NewDefaultKeyLocator(cfg.Keys.Dir, cfg.Keys.Candidates)
	prompter := NewPrompterForEnvironment(assumeYes)

	healthCfg := DefaultHealthCheckerConfig()
	healthCfg.ProbeURL = cfg.Health.ProbeURL
	healthCfg.DiagnosticLines = cfg.Health.DiagnosticLines
	checker := NewDefaultHealthChecker(exec, healthCfg)

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  cfg.Logs.Dir,
		Service: "pubstack",
		JSON:    false,
		Quiet:   true, // progress goes to stdout; slog lines to file only
	})

	return NewStackManager(cfg, exec, locker, keys, prompter, checker, logger)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runUp(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	label := ""
	if len(args) > 0 {
		label = args[0]
	}

	manager := newDefaultStackManager()
	err := manager.Start(ctx, StartOptions{
		ModeOverride: modeFlag,
		Clean:        cleanStart,
		NoCache:      noCache,
		Label:        label,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrBuildFailed):
			ux.Error("The image build failed; the stack was not started.")
		case errors.Is(err, ErrStartFailed):
			ux.Error("The stack could not be started.")
		case errors.Is(err, ErrStackUnhealthy):
			ux.Error("The stack started but failed verification.")
		case errors.Is(err, ErrNoUsableKey):
			ux.Error(err.Error())
		default:
			ux.Error(err.Error())
		}
		os.Exit(CLIExitError)
	}
}

func runDown(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	manager := newDefaultStackManager()
	if err := manager.Down(ctx, DownOptions{RemoveVolumes: removeVolumes}); err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager := newDefaultStackManager()
	if jsonOutput {
		status, err := manager.exec.Status(ctx)
		code := OutputResult(OutputConfig{JSON: true}, "status", time.Now(), status, false, err)
		os.Exit(code)
	}
	if err := manager.Status(ctx); err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}
}

func runLogs(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	manager := newDefaultStackManager()
	if err := manager.Logs(ctx, tailLines, followLogs); err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}
}
