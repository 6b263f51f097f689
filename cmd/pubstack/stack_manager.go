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
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/pubstack/cmd/pubstack/config"
	"github.com/AleutianAI/pubstack/cmd/pubstack/internal/infra/compose"
	"github.com/AleutianAI/pubstack/cmd/pubstack/internal/infra/process"
	"github.com/AleutianAI/pubstack/pkg/logging"
)

// Sentinel errors for the start sequence. Each phase failure carries
// its own sentinel so callers can tell a broken image build from a
// container that would not start.
var (
	// ErrBuildFailed indicates the image build failed. The stack was
	// never started.
	ErrBuildFailed = errors.New("image build failed")

	// ErrStartFailed indicates compose up failed after a successful
	// build.
	ErrStartFailed = errors.New("stack start failed")
)

// StartOptions configures one StackManager.Start run.
type StartOptions struct {
	// ModeOverride is the --mode flag value, or "" to resolve
	// interactively.
	ModeOverride string

	// Clean tears down any existing stack before starting.
	Clean bool

	// NoCache forces a full image rebuild.
	NoCache bool

	// Label tags the run log filename, e.g. a ticket number.
	Label string
}

// DownOptions configures StackManager.Down.
type DownOptions struct {
	// RemoveVolumes also deletes named volumes. Destructive; always
	// confirmed with the user.
	RemoveVolumes bool
}

// StackManager orchestrates the blog publisher stack lifecycle.
//
// # Description
//
// Start runs the full bootstrap sequence: instance lock, SSH key
// discovery, mode resolution, env file persistence, image build,
// stack start, and health verification. Each phase either succeeds or
// stops the sequence with a phase-specific error and actionable
// hints; compose up is never attempted after a failed build.
//
// All collaborators are interfaces so every phase is testable without
// Docker.
type StackManager struct {
	cfg      config.PubstackConfig
	exec     compose.Executor
	locker   process.ProcessLocker
	keys     KeyLocator
	resolver *ModeResolver
	checker  HealthChecker
	prompter UserPrompter
	logger   *logging.Logger
	out      io.Writer
}

// NewStackManager wires a StackManager from its collaborators.
func NewStackManager(
	cfg config.PubstackConfig,
	exec compose.Executor,
	locker process.ProcessLocker,
	keys KeyLocator,
	prompter UserPrompter,
	checker HealthChecker,
	logger *logging.Logger,
) *StackManager {
	return &StackManager{
		cfg:      cfg,
		exec:     exec,
		locker:   locker,
		keys:     keys,
		resolver: NewModeResolver(prompter),
		checker:  checker,
		prompter: prompter,
		logger:   logger,
		out:      os.Stdout,
	}
}

// SetOutput redirects progress output, used by tests.
func (s *StackManager) SetOutput(w io.Writer) { s.out = w }

func (s *StackManager) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// Start runs the bootstrap sequence.
//
// # Outputs
//
//   - error: Wraps ErrBuildFailed, ErrStartFailed, ErrStackUnhealthy,
//     ErrNoUsableKey, or a lock error depending on the failed phase.
//     Nil means the stack is up and the container verified running.
func (s *StackManager) Start(ctx context.Context, opts StartOptions) error {
	if err := s.locker.Acquire(); err != nil {
		return err
	}
	defer s.locker.Release()

	runLog, err := logging.OpenRunLog(s.cfg.Logs.Dir, "pubstack", opts.Label)
	if err != nil {
		// A dead log dir should not block a deploy; fall back to
		// console only.
		s.printf("  ⚠️  Run log unavailable: %v\n", err)
		runLog = nil
	} else {
		defer runLog.Close()
		s.printf("📋 Run log: %s\n", runLog.Path())
	}
	progress := s.out
	if runLog != nil {
		// Every line from here on, phase banners and hints included,
		// lands in both the terminal and the run log.
		progress = runLog.Tee(s.out)
		console := s.out
		s.out = progress
		defer func() { s.out = console }()
	}

	// Phase 1: SSH key.
	s.printf("🔑 Locating SSH public key...\n")
	key, err := s.keys.Locate()
	if err != nil {
		return err
	}
	s.printf("  Using %s (%s)\n", key.Path, key.Type)
	s.logger.Info("ssh key located", "path", key.Path, "type", key.Type)

	// Phase 2: deployment mode.
	envPath := filepath.Join(s.cfg.Project.Dir, s.cfg.Project.EnvFile)
	existing, found, err := LoadDeploymentConfig(envPath)
	if err != nil {
		return err
	}
	var existingMode Mode
	if found {
		existingMode = existing.Mode
	}
	mode, changed, err := s.resolver.Resolve(ctx, opts.ModeOverride, existingMode)
	if err != nil {
		return err
	}
	s.printf("🎛️  Deployment mode: %s\n", mode)

	deploy := NewDeploymentConfig(mode)
	if changed || !found {
		if err := deploy.Save(envPath); err != nil {
			return err
		}
		s.printf("  Saved %s\n", envPath)
	} else {
		// Unchanged answer leaves the env file byte for byte as it was.
		deploy = existing
	}

	env := deploy.EnvMap()
	keyVar := key.EnvVar()
	env[keyVar.Key] = keyVar.Value
	s.logger.Info("deployment configured",
		"mode", string(mode), "uid", deploy.UserUID, "gid", deploy.UserGID,
		"key", keyVar.Redacted())

	// Phase 3: optional clean teardown.
	if opts.Clean {
		if err := s.cleanExisting(ctx); err != nil {
			return err
		}
	}

	// Phase 4: build. A failed build never proceeds to up.
	s.printf("🔨 Building images...\n")
	result, err := s.exec.Build(ctx, compose.BuildOptions{NoCache: opts.NoCache, Env: env})
	output := ""
	if result != nil {
		output = result.CombinedOutput()
		fmt.Fprintln(progress, output)
	}
	if err != nil {
		s.printf("❌ Build failed.\n")
		printHints(s.out, buildHints(output))
		return fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	s.printf("  Build complete (%s)\n", result.Duration.Round(time.Millisecond))

	// Phase 5: up.
	s.printf("🚀 Starting stack...\n")
	result, err = s.exec.Up(ctx, compose.UpOptions{Detach: true, Env: env})
	output = ""
	if result != nil {
		output = result.CombinedOutput()
		fmt.Fprintln(progress, output)
	}
	if err != nil {
		s.printf("❌ Start failed.\n")
		printHints(s.out, upHints(output))
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	// Phase 6: verify.
	containerName := mode.ContainerName(s.cfg.Project.ContainerPrefix)
	s.printf("🩺 Verifying %s...\n", containerName)
	waitOpts := DefaultWaitOptions()
	if s.cfg.Health.TimeoutSeconds > 0 {
		waitOpts.Timeout = secondsToDuration(s.cfg.Health.TimeoutSeconds)
	}
	report, err := s.checker.WaitForStack(ctx, containerName, waitOpts)
	s.printReport(report)
	if err != nil {
		return err
	}

	s.printf("✅ Stack is up. SSH on port %d, web at %s\n",
		s.cfg.Project.SSHPort, s.cfg.Health.ProbeURL)
	return nil
}

// cleanExisting confirms and tears down a previous stack.
func (s *StackManager) cleanExisting(ctx context.Context) error {
	ok, err := s.prompter.Confirm(ctx, "Remove existing containers before starting?")
	if err != nil && !errors.Is(err, ErrNonInteractive) {
		return err
	}
	if !ok {
		s.printf("  Skipping clean teardown\n")
		return nil
	}
	s.printf("🧹 Removing existing stack...\n")
	if _, err := s.exec.Down(ctx, compose.DownOptions{}); err != nil {
		// Nothing to tear down is an acceptable outcome here.
		s.printf("  ⚠️  Teardown reported: %v\n", err)
	}
	return nil
}

// printReport renders a health report to the user.
func (s *StackManager) printReport(report *HealthReport) {
	if report == nil {
		return
	}
	switch report.Container.State {
	case HealthStateHealthy:
		s.printf("  Container: running\n")
	default:
		s.printf("  Container: %s (%s)\n", report.Container.State, report.Container.Detail)
		if report.Container.Diagnostics != "" {
			s.printf("  Last container logs:\n")
			for _, line := range strings.Split(strings.TrimRight(report.Container.Diagnostics, "\n"), "\n") {
				s.printf("    %s\n", line)
			}
		}
	}
	switch report.Probe.State {
	case HealthStateHealthy:
		s.printf("  Web: %s\n", report.Probe.Detail)
	case HealthStateUnreachable:
		s.printf("  ⚠️  Web: %s (the app may still be starting)\n", report.Probe.Detail)
	}
}

// Down stops the stack.
func (s *StackManager) Down(ctx context.Context, opts DownOptions) error {
	if opts.RemoveVolumes {
		ok, err := s.prompter.Confirm(ctx, "Also remove volumes? This deletes persisted blog data.")
		if err != nil {
			return err
		}
		if !ok {
			opts.RemoveVolumes = false
			s.printf("  Keeping volumes\n")
		}
	}
	s.printf("🛑 Stopping stack...\n")
	result, err := s.exec.Down(ctx, compose.DownOptions{RemoveVolumes: opts.RemoveVolumes})
	if err != nil {
		if result != nil {
			s.printf("%s\n", result.CombinedOutput())
		}
		return err
	}
	s.printf("✅ Stack stopped\n")
	return nil
}

// Status prints the current stack state.
func (s *StackManager) Status(ctx context.Context) error {
	status, err := s.exec.Status(ctx)
	if err != nil {
		return err
	}
	if len(status.Services) == 0 {
		s.printf("No stack containers found\n")
		return nil
	}
	for _, svc := range status.Services {
		marker := "🔴"
		if svc.Running() {
			marker = "🟢"
		}
		line := fmt.Sprintf("%s %s: %s", marker, svc.Name, svc.State)
		if svc.Health != "" {
			line += fmt.Sprintf(" (%s)", svc.Health)
		}
		if len(svc.Ports) > 0 {
			line += "  " + strings.Join(svc.Ports, ", ")
		}
		s.printf("%s\n", line)
	}
	return nil
}

// Logs shows or follows stack logs.
func (s *StackManager) Logs(ctx context.Context, tail int, follow bool) error {
	if follow {
		return s.exec.StreamLogs(ctx, s.out, compose.LogOptions{Tail: tail, Follow: true})
	}
	out, err := s.exec.Logs(ctx, compose.LogOptions{Tail: tail})
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, out)
	return nil
}

// =============================================================================
// FAILURE HINTS
// =============================================================================

// hint pairs a matcher over tool output with advice for the user.
type hint struct {
	markers []string
	advice  string
}

// matchHints returns the advice for every hint whose marker appears in
// the output. Pure function; matching is case-insensitive.
func matchHints(output string, hints []hint) []string {
	lower := strings.ToLower(output)
	var advice []string
	for _, h := range hints {
		for _, m := range h.markers {
			if strings.Contains(lower, m) {
				advice = append(advice, h.advice)
				break
			}
		}
	}
	return advice
}

// buildHints categorizes a failed image build.
func buildHints(output string) []string {
	advice := matchHints(output, []hint{
		{
			markers: []string{"dockerfile parse error", "unknown instruction", "unknown flag"},
			advice:  "The Dockerfile has a syntax error. Check the line number in the output above.",
		},
		{
			markers: []string{"no such file or directory", "copy failed", "not found", "failed to compute cache key"},
			advice:  "A file referenced by the Dockerfile is missing. Check COPY/ADD paths against the project directory.",
		},
		{
			markers: []string{"tls handshake timeout", "temporary failure in name resolution", "network is unreachable", "i/o timeout", "proxyconnect"},
			advice:  "The build could not reach the registry or package index. Check network and proxy settings and retry.",
		},
		{
			markers: []string{"invalid key", "ssh_pub_key", "authorized_keys"},
			advice:  "The SSH key build argument was rejected. Verify the public key file parses with ssh-keygen -l -f <path>.",
		},
	})
	if len(advice) == 0 {
		advice = append(advice, "Inspect the build output above; rerun with --no-cache if a stale layer looks suspicious.")
	}
	return advice
}

// upHints categorizes a failed compose up.
func upHints(output string) []string {
	advice := matchHints(output, []hint{
		{
			markers: []string{"port is already allocated", "address already in use"},
			advice:  "A required port (5000 or the SSH port) is taken. Stop the conflicting process or change the port mapping.",
		},
		{
			markers: []string{"is already in use by container"},
			advice:  "A container with this name already exists. Rerun with --clean to remove it first.",
		},
		{
			markers: []string{"cannot connect to the docker daemon", "docker daemon running"},
			advice:  "The Docker daemon is not reachable. Start Docker and retry.",
		},
		{
			markers: []string{"no space left on device"},
			advice:  "The disk is full. Reclaim space with docker system prune.",
		},
	})
	if len(advice) == 0 {
		advice = append(advice, "Check container logs with: pubstack logs")
	}
	return advice
}

// printHints renders hints with a pointer emoji like the rest of the
// progress output.
func printHints(w io.Writer, hints []string) {
	for _, h := range hints {
		fmt.Fprintf(w, "  💡 %s\n", h)
	}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
