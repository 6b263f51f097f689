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
	"math/rand"
	"net/http"
	"time"

	"github.com/AleutianAI/pubstack/cmd/pubstack/internal/infra/compose"
)

// ErrStackUnhealthy is returned when the container check fails.
var ErrStackUnhealthy = errors.New("stack failed health verification")

// HealthHTTPClient is the minimal HTTP client surface needed for the
// reachability probe. *http.Client satisfies it.
type HealthHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HealthChecker verifies a freshly started stack.
//
// # Description
//
// Verification runs two checks against one container:
//
//  1. Container check (authoritative): polls the container state with
//     exponential backoff until it is running or the timeout expires.
//     Failure is fatal and the report carries the container status
//     plus the tail of its logs for diagnosis.
//  2. HTTP probe (advisory): sends GET requests to the application
//     URL. Any response at all, including 404 and 500, proves the
//     web server is up and routing, which is all a dev bootstrap can
//     assert. No response within the timeout is a warning, never an
//     error.
//
// # Limitations
//
//   - Binary health only; no degraded state
//   - The probe cannot distinguish "app broken" from "app present but
//     this route errors"
type HealthChecker interface {
	// WaitForStack blocks until the container is confirmed running and
	// the HTTP probe has concluded, or the timeout expires.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation. Cancellation stops waiting.
	//   - containerName: Exact container name to verify.
	//   - opts: Timeout and backoff configuration.
	//
	// # Outputs
	//
	//   - *HealthReport: Always non-nil, populated with both check
	//     results and diagnostics on failure.
	//   - error: Wraps ErrStackUnhealthy when the container check
	//     fails. A failed probe alone produces no error.
	WaitForStack(ctx context.Context, containerName string, opts WaitOptions) (*HealthReport, error)
}

// Compile-time interface checks.
var (
	_ HealthChecker = (*DefaultHealthChecker)(nil)
	_ HealthChecker = (*MockHealthChecker)(nil)
)

// HealthCheckerConfig configures DefaultHealthChecker.
type HealthCheckerConfig struct {
	// ProbeURL is the application URL for the HTTP probe.
	ProbeURL string

	// DiagnosticLines is how many log lines to capture on failure.
	DiagnosticLines int

	// ProbeRequestTimeout bounds a single probe request (default 5s).
	ProbeRequestTimeout time.Duration
}

// DefaultHealthCheckerConfig returns defaults for the blog publisher
// stack: probe http://localhost:5000, 20 diagnostic lines.
func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		ProbeURL:            "http://localhost:5000",
		DiagnosticLines:     20,
		ProbeRequestTimeout: 5 * time.Second,
	}
}

// DefaultHealthChecker implements HealthChecker against a compose
// executor.
//
// # Thread Safety
//
// Safe for concurrent use; all state is set at construction.
type DefaultHealthChecker struct {
	exec       compose.Executor
	httpClient HealthHTTPClient
	clock      Clock
	config     HealthCheckerConfig
}

// NewDefaultHealthChecker creates a checker with a real HTTP client
// and clock.
func NewDefaultHealthChecker(exec compose.Executor, config HealthCheckerConfig) *DefaultHealthChecker {
	timeout := config.ProbeRequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DefaultHealthChecker{
		exec:       exec,
		httpClient: &http.Client{Timeout: timeout},
		clock:      RealClock{},
		config:     config,
	}
}

// NewDefaultHealthCheckerWithDeps creates a checker with injected HTTP
// client and clock for testing.
func NewDefaultHealthCheckerWithDeps(exec compose.Executor, config HealthCheckerConfig, httpClient HealthHTTPClient, clock Clock) *DefaultHealthChecker {
	return &DefaultHealthChecker{
		exec:       exec,
		httpClient: httpClient,
		clock:      clock,
		config:     config,
	}
}

// WaitForStack verifies the container and probes the application.
func (h *DefaultHealthChecker) WaitForStack(ctx context.Context, containerName string, opts WaitOptions) (*HealthReport, error) {
	start := h.clock.Now()
	report := &HealthReport{
		ID:            opts.ID,
		ContainerName: containerName,
		Container:     ContainerCheck{State: HealthStateSkipped},
		Probe:         ProbeCheck{State: HealthStateSkipped},
	}
	if report.ID == "" {
		report.ID = GenerateID()
	}

	deadline := start.Add(opts.Timeout)
	h.checkContainer(ctx, containerName, opts, deadline, report)

	if report.Container.State == HealthStateHealthy {
		h.probeHTTP(ctx, opts, deadline, report)
	}

	report.Duration = h.clock.Now().Sub(start)

	if report.Container.State != HealthStateHealthy {
		return report, fmt.Errorf("%w: container %s is %s: %s",
			ErrStackUnhealthy, containerName, report.Container.Status, report.Container.Detail)
	}
	return report, nil
}

// checkContainer polls the container state until running, definitively
// dead, or out of time.
func (h *DefaultHealthChecker) checkContainer(ctx context.Context, containerName string, opts WaitOptions, deadline time.Time, report *HealthReport) {
	interval := opts.InitialInterval
	var last *compose.ContainerState
	var lastErr error

	for {
		if ctx.Err() != nil {
			report.Container = ContainerCheck{
				State:  HealthStateUnreachable,
				Detail: fmt.Sprintf("verification cancelled: %v", ctx.Err()),
			}
			return
		}

		state, err := h.exec.ContainerState(ctx, containerName)
		lastErr = err
		if err == nil {
			last = state
			if state.Running {
				report.Container = ContainerCheck{
					State:  HealthStateHealthy,
					Status: state.Status,
				}
				return
			}
			if state.Status == "exited" || state.Status == "dead" {
				// The container came up and died; waiting longer
				// cannot fix that.
				report.Container = h.failedContainerCheck(ctx, containerName, state)
				return
			}
			// created / restarting: keep polling.
		} else if !errors.Is(err, compose.ErrContainerNotFound) {
			report.Container = ContainerCheck{
				State:  HealthStateUnreachable,
				Detail: fmt.Sprintf("container inspection failed: %v", err),
			}
			return
		}

		if !h.clock.Now().Add(interval).Before(deadline) {
			break
		}
		h.clock.Sleep(ctx, applyJitter(interval, opts.Jitter))
		interval = nextInterval(interval, opts.MaxInterval, opts.Multiplier)
	}

	// Timed out.
	if last != nil {
		report.Container = h.failedContainerCheck(ctx, containerName, last)
		return
	}
	detail := "container never appeared"
	if lastErr != nil {
		detail = fmt.Sprintf("container never appeared: %v", lastErr)
	}
	check := ContainerCheck{
		State:  HealthStateUnreachable,
		Status: "absent",
		Detail: detail,
	}
	// No container to tail by name; the stack-level logs are the only
	// diagnostics left.
	if logs, err := h.exec.Logs(ctx, compose.LogOptions{Tail: h.diagnosticLines()}); err == nil && logs != "" {
		check.Diagnostics = logs
	}
	report.Container = check
}

// diagnosticLines returns the configured log tail length, defaulting
// to 20.
func (h *DefaultHealthChecker) diagnosticLines() int {
	if h.config.DiagnosticLines <= 0 {
		return 20
	}
	return h.config.DiagnosticLines
}

// failedContainerCheck builds an unhealthy result with log diagnostics.
func (h *DefaultHealthChecker) failedContainerCheck(ctx context.Context, containerName string, state *compose.ContainerState) ContainerCheck {
	detail := fmt.Sprintf("status %q", state.Status)
	if state.ExitCode != 0 {
		detail += fmt.Sprintf(", exit code %d", state.ExitCode)
	}
	if state.Error != "" {
		detail += fmt.Sprintf(", error: %s", state.Error)
	}

	check := ContainerCheck{
		State:  HealthStateUnhealthy,
		Status: state.Status,
		Detail: detail,
	}

	if logs, err := h.exec.TailContainerLogs(ctx, containerName, h.diagnosticLines()); err == nil {
		check.Diagnostics = logs
	}
	return check
}

// probeHTTP retries the reachability probe until a response arrives or
// the shared deadline passes. Never fails the report.
func (h *DefaultHealthChecker) probeHTTP(ctx context.Context, opts WaitOptions, deadline time.Time, report *HealthReport) {
	interval := opts.InitialInterval
	var lastErr error

	for {
		if ctx.Err() != nil {
			break
		}

		code, err := h.probeOnce(ctx)
		if err == nil {
			// Any status code means the server answered. 200, 404 and
			// 500 all prove Flask is up and routing.
			report.Probe = ProbeCheck{
				State:      HealthStateHealthy,
				StatusCode: code,
				Detail:     fmt.Sprintf("responded with HTTP %d", code),
			}
			return
		}
		lastErr = err

		if !h.clock.Now().Add(interval).Before(deadline) {
			break
		}
		h.clock.Sleep(ctx, applyJitter(interval, opts.Jitter))
		interval = nextInterval(interval, opts.MaxInterval, opts.Multiplier)
	}

	detail := fmt.Sprintf("no response from %s", h.config.ProbeURL)
	if lastErr != nil {
		detail = fmt.Sprintf("no response from %s: %v", h.config.ProbeURL, lastErr)
	}
	report.Probe = ProbeCheck{State: HealthStateUnreachable, Detail: detail}
}

// probeOnce sends a single GET to the probe URL.
func (h *DefaultHealthChecker) probeOnce(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.config.ProbeURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// applyJitter multiplies interval by a factor in [1-jitter, 1+jitter].
func applyJitter(interval time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return interval
	}
	factor := 1.0 + (rand.Float64()*2-1)*jitter
	return time.Duration(float64(interval) * factor)
}

// nextInterval multiplies current by multiplier, capped at max.
func nextInterval(current, max time.Duration, multiplier float64) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		return max
	}
	return next
}

// MockHealthChecker is a configurable mock for testing.
type MockHealthChecker struct {
	// WaitForStackFunc is called by WaitForStack. Panics if nil.
	WaitForStackFunc func(ctx context.Context, containerName string, opts WaitOptions) (*HealthReport, error)
}

// WaitForStack calls WaitForStackFunc.
func (m *MockHealthChecker) WaitForStack(ctx context.Context, containerName string, opts WaitOptions) (*HealthReport, error) {
	if m.WaitForStackFunc == nil {
		panic("MockHealthChecker.WaitForStack called but WaitForStackFunc is nil")
	}
	return m.WaitForStackFunc(ctx, containerName, opts)
}
