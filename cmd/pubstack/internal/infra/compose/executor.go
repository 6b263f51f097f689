// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose provides a capability interface over the docker compose
// command line.
//
// # Description
//
// All interaction with the container runtime goes through the Executor
// interface. Callers never build docker argument lists themselves; they
// express intent (build, up, down, status, logs) and the executor maps
// that to the compose CLI. This keeps orchestration logic testable with
// MockExecutor and keeps the docker/compose invocation details in one
// place.
//
// # Limitations
//
//   - Requires docker with the compose plugin (docker compose v2)
//   - Status parsing relies on `--format json` output, which compose has
//     emitted as line-delimited JSON since v2.21
package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/pubstack/cmd/pubstack/internal/infra/process"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrContainerNotFound indicates the named container does not exist.
	ErrContainerNotFound = errors.New("container not found")

	// ErrComposeFailed indicates a compose subcommand exited non-zero.
	ErrComposeFailed = errors.New("compose command failed")
)

// =============================================================================
// Types
// =============================================================================

// Config holds the settings needed to run compose commands for a project.
type Config struct {
	// ProjectDir is the directory containing the compose file. Compose
	// commands run with this as the working directory so relative build
	// contexts and env files resolve correctly.
	ProjectDir string

	// ComposeFile is the compose file name, relative to ProjectDir.
	ComposeFile string

	// ProjectName overrides the compose project name. Empty means let
	// compose derive it from the directory name.
	ProjectName string

	// DefaultTimeout bounds individual compose invocations when the
	// caller's context carries no deadline.
	DefaultTimeout time.Duration
}

// DefaultConfig returns a Config for a conventional project layout.
func DefaultConfig(projectDir string) Config {
	return Config{
		ProjectDir:     projectDir,
		ComposeFile:    "docker-compose.yml",
		DefaultTimeout: 10 * time.Minute,
	}
}

// Result captures the outcome of a compose invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CombinedOutput returns stdout and stderr joined for diagnostics.
func (r *Result) CombinedOutput() string {
	out := strings.TrimSpace(r.Stdout)
	errOut := strings.TrimSpace(r.Stderr)
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

// BuildOptions configures `docker compose build`.
type BuildOptions struct {
	// NoCache forces a full rebuild without layer cache.
	NoCache bool

	// Env is merged into the compose process environment. Used to carry
	// MODE, USER_UID and USER_GID into the build args.
	Env map[string]string
}

// UpOptions configures `docker compose up`.
type UpOptions struct {
	// Detach runs containers in the background. Always true for the
	// orchestrated flow; exposed for completeness.
	Detach bool

	// Env is merged into the compose process environment.
	Env map[string]string
}

// DownOptions configures `docker compose down`.
type DownOptions struct {
	// RemoveVolumes also removes named volumes declared in the compose file.
	RemoveVolumes bool
}

// LogOptions configures `docker compose logs`.
type LogOptions struct {
	// Tail limits output to the last N lines per container. 0 means all.
	Tail int

	// Follow streams logs until the context is cancelled.
	Follow bool

	// Service restricts output to a single compose service. Empty means all.
	Service string
}

// ServiceStatus describes one container in the compose project.
type ServiceStatus struct {
	Name    string
	Service string
	State   string
	Health  string
	Ports   []string
}

// Running reports whether the container state is "running".
func (s ServiceStatus) Running() bool {
	return s.State == "running"
}

// StackStatus describes all containers in the compose project.
type StackStatus struct {
	Services []ServiceStatus
}

// Find returns the status for the named container, if present.
func (s *StackStatus) Find(containerName string) (ServiceStatus, bool) {
	for _, svc := range s.Services {
		if svc.Name == containerName {
			return svc, true
		}
	}
	return ServiceStatus{}, false
}

// ContainerState is the subset of `docker inspect` state the health
// verifier needs.
type ContainerState struct {
	Status   string // created, running, paused, restarting, exited, dead
	Running  bool
	ExitCode int
	Error    string
}

// =============================================================================
// Interface Definition
// =============================================================================

// Executor runs compose operations for a single project.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use, though the CLI
// serializes mutating operations with a process lock.
type Executor interface {
	// Build builds the project images. A non-nil Result is returned even
	// on failure so callers can surface compose output in diagnostics.
	Build(ctx context.Context, opts BuildOptions) (*Result, error)

	// Up creates and starts the project containers.
	Up(ctx context.Context, opts UpOptions) (*Result, error)

	// Down stops and removes the project containers.
	Down(ctx context.Context, opts DownOptions) (*Result, error)

	// Status reports the state of the project's containers. Includes
	// stopped containers so callers can report exit states.
	Status(ctx context.Context) (*StackStatus, error)

	// Logs returns captured log output per LogOptions. Not valid with
	// Follow; use StreamLogs for that.
	Logs(ctx context.Context, opts LogOptions) (string, error)

	// StreamLogs streams log output to w until the process exits or ctx
	// is cancelled.
	StreamLogs(ctx context.Context, w io.Writer, opts LogOptions) error

	// ContainerState inspects a container by exact name. Returns
	// ErrContainerNotFound if no such container exists.
	ContainerState(ctx context.Context, name string) (*ContainerState, error)

	// TailContainerLogs returns the last n lines of a container's logs,
	// stdout and stderr combined.
	TailContainerLogs(ctx context.Context, name string, n int) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

// DefaultExecutor implements Executor by shelling out through a
// process.Manager.
type DefaultExecutor struct {
	config Config
	proc   process.Manager
}

// NewDefaultExecutor creates an Executor for the given project.
//
// # Inputs
//
//   - config: Project location and compose settings
//   - proc: Process manager for command execution
func NewDefaultExecutor(config Config, proc process.Manager) *DefaultExecutor {
	if config.ComposeFile == "" {
		config.ComposeFile = "docker-compose.yml"
	}
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = 10 * time.Minute
	}
	return &DefaultExecutor{config: config, proc: proc}
}

// composeArgs builds the common argument prefix for compose subcommands.
func (e *DefaultExecutor) composeArgs(sub ...string) []string {
	args := []string{"compose", "-f", e.config.ComposeFile}
	if e.config.ProjectName != "" {
		args = append(args, "-p", e.config.ProjectName)
	}
	return append(args, sub...)
}

// runCompose executes a compose subcommand in the project directory.
func (e *DefaultExecutor) runCompose(ctx context.Context, env map[string]string, sub ...string) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := e.proc.RunInDir(ctx, e.config.ProjectDir, env, "docker", e.composeArgs(sub...)...)
	result := &Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}

	if err != nil {
		return result, fmt.Errorf("%w: docker compose %s (exit %d): %v",
			ErrComposeFailed, strings.Join(sub, " "), exitCode, err)
	}
	return result, nil
}

// withTimeout applies DefaultTimeout when the caller set no deadline.
func (e *DefaultExecutor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.DefaultTimeout)
}

// Build builds the project images.
func (e *DefaultExecutor) Build(ctx context.Context, opts BuildOptions) (*Result, error) {
	sub := []string{"build"}
	if opts.NoCache {
		sub = append(sub, "--no-cache")
	}
	return e.runCompose(ctx, opts.Env, sub...)
}

// Up creates and starts the project containers.
func (e *DefaultExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	sub := []string{"up"}
	if opts.Detach {
		sub = append(sub, "-d")
	}
	return e.runCompose(ctx, opts.Env, sub...)
}

// Down stops and removes the project containers.
func (e *DefaultExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	sub := []string{"down"}
	if opts.RemoveVolumes {
		sub = append(sub, "--volumes")
	}
	return e.runCompose(ctx, nil, sub...)
}

// Status reports the state of the project's containers.
func (e *DefaultExecutor) Status(ctx context.Context) (*StackStatus, error) {
	result, err := e.runCompose(ctx, nil, "ps", "-a", "--format", "json")
	if err != nil {
		return nil, err
	}
	return parseStackStatus(result.Stdout)
}

// Logs returns captured log output.
func (e *DefaultExecutor) Logs(ctx context.Context, opts LogOptions) (string, error) {
	sub := []string{"logs", "--no-color"}
	if opts.Tail > 0 {
		sub = append(sub, "--tail", fmt.Sprintf("%d", opts.Tail))
	}
	if opts.Service != "" {
		sub = append(sub, opts.Service)
	}
	result, err := e.runCompose(ctx, nil, sub...)
	if err != nil {
		return "", err
	}
	return result.CombinedOutput(), nil
}

// StreamLogs streams log output to w until cancelled.
func (e *DefaultExecutor) StreamLogs(ctx context.Context, w io.Writer, opts LogOptions) error {
	sub := []string{"logs", "--no-color", "--follow"}
	if opts.Tail > 0 {
		sub = append(sub, "--tail", fmt.Sprintf("%d", opts.Tail))
	}
	if opts.Service != "" {
		sub = append(sub, opts.Service)
	}
	return e.proc.RunStreaming(ctx, e.config.ProjectDir, w, "docker", e.composeArgs(sub...)...)
}

// ContainerState inspects a container by exact name.
func (e *DefaultExecutor) ContainerState(ctx context.Context, name string) (*ContainerState, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	stdout, stderr, _, err := e.proc.RunInDir(ctx, e.config.ProjectDir, nil,
		"docker", "inspect", "--type", "container", name)
	if err != nil {
		if strings.Contains(stderr, "No such") || strings.Contains(err.Error(), "No such") {
			return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, name)
		}
		return nil, fmt.Errorf("inspect %s: %w", name, err)
	}

	return parseContainerState(stdout, name)
}

// TailContainerLogs returns the last n lines of a container's logs.
func (e *DefaultExecutor) TailContainerLogs(ctx context.Context, name string, n int) (string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	stdout, stderr, _, err := e.proc.RunInDir(ctx, e.config.ProjectDir, nil,
		"docker", "logs", "--tail", fmt.Sprintf("%d", n), name)
	if err != nil {
		return "", fmt.Errorf("logs %s: %w", name, err)
	}

	// docker logs writes container stderr to our stderr; callers want both.
	combined := stdout
	if stderr != "" {
		if combined != "" && !strings.HasSuffix(combined, "\n") {
			combined += "\n"
		}
		combined += stderr
	}
	return combined, nil
}

// =============================================================================
// Output Parsing
// =============================================================================

// psEntry matches one object from `docker compose ps --format json`.
type psEntry struct {
	Name       string `json:"Name"`
	Service    string `json:"Service"`
	State      string `json:"State"`
	Health     string `json:"Health"`
	Publishers []struct {
		URL           string `json:"URL"`
		TargetPort    int    `json:"TargetPort"`
		PublishedPort int    `json:"PublishedPort"`
		Protocol      string `json:"Protocol"`
	} `json:"Publishers"`
}

// parseStackStatus parses compose ps JSON output.
//
// Compose v2.21+ emits one JSON object per line; older releases emitted a
// single top-level array. Both shapes are accepted.
func parseStackStatus(output string) (*StackStatus, error) {
	output = strings.TrimSpace(output)
	status := &StackStatus{}
	if output == "" {
		return status, nil
	}

	var entries []psEntry
	if strings.HasPrefix(output, "[") {
		if err := json.Unmarshal([]byte(output), &entries); err != nil {
			return nil, fmt.Errorf("parse compose ps output: %w", err)
		}
	} else {
		for _, line := range strings.Split(output, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var entry psEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("parse compose ps line: %w", err)
			}
			entries = append(entries, entry)
		}
	}

	for _, entry := range entries {
		svc := ServiceStatus{
			Name:    entry.Name,
			Service: entry.Service,
			State:   entry.State,
			Health:  entry.Health,
		}
		for _, pub := range entry.Publishers {
			if pub.PublishedPort == 0 {
				continue
			}
			svc.Ports = append(svc.Ports,
				fmt.Sprintf("%d:%d/%s", pub.PublishedPort, pub.TargetPort, pub.Protocol))
		}
		status.Services = append(status.Services, svc)
	}
	return status, nil
}

// inspectEntry matches the State block of `docker inspect` output.
type inspectEntry struct {
	State struct {
		Status   string `json:"Status"`
		Running  bool   `json:"Running"`
		ExitCode int    `json:"ExitCode"`
		Error    string `json:"Error"`
	} `json:"State"`
}

// parseContainerState parses `docker inspect` output for one container.
func parseContainerState(output, name string) (*ContainerState, error) {
	var entries []inspectEntry
	if err := json.Unmarshal([]byte(output), &entries); err != nil {
		return nil, fmt.Errorf("parse inspect output for %s: %w", name, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, name)
	}

	st := entries[0].State
	return &ContainerState{
		Status:   st.Status,
		Running:  st.Running,
		ExitCode: st.ExitCode,
		Error:    st.Error,
	}, nil
}

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockExecutor is a test double for Executor.
//
// Configure by setting function fields; unset fields panic when called.
type MockExecutor struct {
	BuildFunc             func(ctx context.Context, opts BuildOptions) (*Result, error)
	UpFunc                func(ctx context.Context, opts UpOptions) (*Result, error)
	DownFunc              func(ctx context.Context, opts DownOptions) (*Result, error)
	StatusFunc            func(ctx context.Context) (*StackStatus, error)
	LogsFunc              func(ctx context.Context, opts LogOptions) (string, error)
	StreamLogsFunc        func(ctx context.Context, w io.Writer, opts LogOptions) error
	ContainerStateFunc    func(ctx context.Context, name string) (*ContainerState, error)
	TailContainerLogsFunc func(ctx context.Context, name string, n int) (string, error)

	// Calls records method names in invocation order.
	Calls []string

	mu sync.Mutex
}

func (m *MockExecutor) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, method)
}

// GetCalls returns a copy of the recorded method names.
func (m *MockExecutor) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]string, len(m.Calls))
	copy(calls, m.Calls)
	return calls
}

func (m *MockExecutor) Build(ctx context.Context, opts BuildOptions) (*Result, error) {
	m.record("Build")
	if m.BuildFunc == nil {
		panic("MockExecutor.BuildFunc not set")
	}
	return m.BuildFunc(ctx, opts)
}

func (m *MockExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	m.record("Up")
	if m.UpFunc == nil {
		panic("MockExecutor.UpFunc not set")
	}
	return m.UpFunc(ctx, opts)
}

func (m *MockExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	m.record("Down")
	if m.DownFunc == nil {
		panic("MockExecutor.DownFunc not set")
	}
	return m.DownFunc(ctx, opts)
}

func (m *MockExecutor) Status(ctx context.Context) (*StackStatus, error) {
	m.record("Status")
	if m.StatusFunc == nil {
		panic("MockExecutor.StatusFunc not set")
	}
	return m.StatusFunc(ctx)
}

func (m *MockExecutor) Logs(ctx context.Context, opts LogOptions) (string, error) {
	m.record("Logs")
	if m.LogsFunc == nil {
		panic("MockExecutor.LogsFunc not set")
	}
	return m.LogsFunc(ctx, opts)
}

func (m *MockExecutor) StreamLogs(ctx context.Context, w io.Writer, opts LogOptions) error {
	m.record("StreamLogs")
	if m.StreamLogsFunc == nil {
		panic("MockExecutor.StreamLogsFunc not set")
	}
	return m.StreamLogsFunc(ctx, w, opts)
}

func (m *MockExecutor) ContainerState(ctx context.Context, name string) (*ContainerState, error) {
	m.record("ContainerState")
	if m.ContainerStateFunc == nil {
		panic("MockExecutor.ContainerStateFunc not set")
	}
	return m.ContainerStateFunc(ctx, name)
}

func (m *MockExecutor) TailContainerLogs(ctx context.Context, name string, n int) (string, error) {
	m.record("TailContainerLogs")
	if m.TailContainerLogsFunc == nil {
		panic("MockExecutor.TailContainerLogsFunc not set")
	}
	return m.TailContainerLogsFunc(ctx, name, n)
}

// Compile-time interface checks
var (
	_ Executor = (*DefaultExecutor)(nil)
	_ Executor = (*MockExecutor)(nil)
)
