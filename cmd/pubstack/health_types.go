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
	"crypto/rand"
	"encoding/hex"
	"time"
)

// =============================================================================
// HEALTH STATES
// =============================================================================

// HealthState represents the binary health state of a check.
type HealthState string

const (
	// HealthStateHealthy indicates the check passed.
	HealthStateHealthy HealthState = "healthy"

	// HealthStateUnhealthy indicates the check ran and failed.
	HealthStateUnhealthy HealthState = "unhealthy"

	// HealthStateUnreachable indicates the target could not be contacted.
	HealthStateUnreachable HealthState = "unreachable"

	// HealthStateSkipped indicates the check was not performed.
	HealthStateSkipped HealthState = "skipped"
)

// =============================================================================
// WAIT OPTIONS
// =============================================================================

// WaitOptions controls the verification polling loop.
//
// # Description
//
// Polling uses exponential backoff with jitter: the first check runs
// after InitialInterval, each subsequent interval is multiplied by
// Multiplier up to MaxInterval. Timeout bounds the whole wait.
//
// # Example
//
//	opts := DefaultWaitOptions()
//	opts.Timeout = 120 * time.Second
//	report, err := checker.WaitForStack(ctx, "blog-publisher-development", opts)
//
// # Assumptions
//
//   - Multiplier > 1.0 for exponential growth
//   - Jitter in range [0, 1]
//   - InitialInterval <= MaxInterval
type WaitOptions struct {
	// ID is a unique identifier for this wait operation.
	ID string

	// Timeout is the overall timeout for waiting (default: 60s).
	Timeout time.Duration

	// InitialInterval is the first poll interval (default: 1s).
	InitialInterval time.Duration

	// MaxInterval is the maximum poll interval (default: 8s).
	MaxInterval time.Duration

	// Multiplier is the backoff multiplier (default: 2.0).
	Multiplier float64

	// Jitter adds randomness to the intervals (default: 0.1 = ±10%).
	Jitter float64

	// CreatedAt is when these options were created.
	CreatedAt time.Time
}

// DefaultWaitOptions returns sensible defaults with exponential backoff:
// 60 second overall timeout, intervals 1s -> 2s -> 4s -> 8s -> 8s...,
// 10% jitter.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		ID:              GenerateID(),
		Timeout:         60 * time.Second,
		InitialInterval: 1 * time.Second,
		MaxInterval:     8 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.1,
		CreatedAt:       time.Now(),
	}
}

// =============================================================================
// RESULTS
// =============================================================================

// ContainerCheck is the outcome of verifying the stack container.
type ContainerCheck struct {
	// State is the resulting health state.
	State HealthState

	// Status is the container runtime status, e.g. "running" or "exited".
	Status string

	// Detail is a human-readable explanation for non-healthy states.
	Detail string

	// Diagnostics holds the tail of the container logs when the check
	// failed, for display to the user.
	Diagnostics string
}

// ProbeCheck is the outcome of the HTTP reachability probe.
type ProbeCheck struct {
	// State is the resulting health state. Unreachable is a warning,
	// not a failure: the container may still be warming up.
	State HealthState

	// StatusCode is the HTTP status received, or 0 if no response.
	StatusCode int

	// Detail is a human-readable explanation.
	Detail string
}

// HealthReport aggregates the verification outcome for one stack.
type HealthReport struct {
	// ID is a unique identifier for this verification run.
	ID string

	// ContainerName is the container that was verified.
	ContainerName string

	// Container is the container state check result.
	Container ContainerCheck

	// Probe is the HTTP reachability result.
	Probe ProbeCheck

	// Duration is the total verification time.
	Duration time.Duration
}

// Healthy reports whether the stack passed verification. Only the
// container check is authoritative; an unreachable probe downgrades
// nothing.
func (r *HealthReport) Healthy() bool {
	return r.Container.State == HealthStateHealthy
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock abstracts time for the polling loop so tests can run the
// backoff schedule without waiting for it.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the duration or until the context is done.
	Sleep(ctx context.Context, d time.Duration)
}

// RealClock is the production Clock backed by the time package.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// Sleep blocks for d, returning early on context cancellation.
func (RealClock) Sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// MockClock is a test Clock whose sleeps return immediately while
// recording the requested durations and advancing a virtual now.
type MockClock struct {
	// Current is the virtual current time.
	Current time.Time

	// Sleeps records every requested sleep duration.
	Sleeps []time.Duration
}

// Now returns the virtual current time.
func (c *MockClock) Now() time.Time { return c.Current }

// Sleep records d and advances the virtual clock by it.
func (c *MockClock) Sleep(ctx context.Context, d time.Duration) {
	c.Sleeps = append(c.Sleeps, d)
	c.Current = c.Current.Add(d)
}

// Compile-time interface checks.
var (
	_ Clock = RealClock{}
	_ Clock = (*MockClock)(nil)
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// GenerateID returns a 16-character hex identifier (8 random bytes)
// for correlating log lines from one operation.
func GenerateID() string {
	b := make([]byte, 8)
	_, err := rand.Read(b)
	if err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000")))[:16]
	}
	return hex.EncodeToString(b)
}
