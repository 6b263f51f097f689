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
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// envVarKeyPattern validates environment variable key names.
// Keys must start with a letter or underscore and contain only
// alphanumeric characters and underscores, following POSIX naming
// conventions. This also prevents shell metacharacter injection.
var envVarKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvVarKey is returned when an environment variable key is invalid.
var ErrInvalidEnvVarKey = fmt.Errorf("invalid environment variable key")

// EnvVar represents a single environment variable.
//
// # Description
//
// A typed representation of an environment variable with validation
// and sensitivity marking for secure logging.
//
// # Example
//
//	ev := EnvVar{Key: "SSH_PUB_KEY", Value: "ssh-ed25519 AAAA...", Sensitive: true}
//	fmt.Println(ev.Redacted()) // SSH_PUB_KEY=[REDACTED]
type EnvVar struct {
	// Key is the environment variable name.
	// Must match pattern: ^[a-zA-Z_][a-zA-Z0-9_]*$
	Key string

	// Value is the environment variable value.
	// May be empty string (valid in POSIX).
	Value string

	// Sensitive indicates this value should be redacted in logs and
	// must never be written to the env file on disk.
	Sensitive bool
}

// String returns the KEY=VALUE format.
func (e EnvVar) String() string {
	return fmt.Sprintf("%s=%s", e.Key, e.Value)
}

// Redacted returns KEY=[REDACTED] for sensitive vars, otherwise String().
func (e EnvVar) Redacted() string {
	if e.Sensitive {
		return fmt.Sprintf("%s=[REDACTED]", e.Key)
	}
	return e.String()
}

// Validate checks if the key is valid.
func (e EnvVar) Validate() error {
	if !envVarKeyPattern.MatchString(e.Key) {
		return fmt.Errorf("%w: %q must match pattern [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidEnvVarKey, e.Key)
	}
	return nil
}

// Env file keys written and read by DeploymentConfig.
const (
	envKeyMode     = "MODE"
	envKeyUserUID  = "USER_UID"
	envKeyUserGID  = "USER_GID"
	envKeyFlaskEnv = "FLASK_ENV"
)

// DeploymentConfig is the persisted per-project deployment state.
//
// # Description
//
// A value object holding everything the env file records between
// runs: the selected mode and the host user identity baked into the
// container so bind-mounted files stay owned by the invoking user.
// FLASK_ENV is derived from Mode and never stored independently.
//
// The SSH public key is deliberately absent. It is sensitive material
// and is passed to compose only through the process environment, so
// it can never leak through a committed env file.
//
// # Limitations
//
//   - Unknown keys in an existing env file are preserved on load but
//     dropped on save; the file is treated as owned by this tool.
type DeploymentConfig struct {
	// Mode is the selected deployment mode.
	Mode Mode

	// UserUID is the numeric UID of the invoking host user.
	UserUID int

	// UserGID is the numeric GID of the invoking host user.
	UserGID int
}

// NewDeploymentConfig creates a DeploymentConfig for the current host
// user in the given mode.
func NewDeploymentConfig(mode Mode) DeploymentConfig {
	return DeploymentConfig{
		Mode:    mode,
		UserUID: os.Getuid(),
		UserGID: os.Getgid(),
	}
}

// FlaskEnv returns the FLASK_ENV value derived from the mode.
func (d DeploymentConfig) FlaskEnv() string {
	return d.Mode.FlaskEnv()
}

// EnvVars returns the variables this config contributes to compose,
// in stable file order.
func (d DeploymentConfig) EnvVars() []EnvVar {
	return []EnvVar{
		{Key: envKeyMode, Value: string(d.Mode)},
		{Key: envKeyUserUID, Value: strconv.Itoa(d.UserUID)},
		{Key: envKeyUserGID, Value: strconv.Itoa(d.UserGID)},
		{Key: envKeyFlaskEnv, Value: d.FlaskEnv()},
	}
}

// EnvMap returns the same variables as a map for process.Manager env
// injection.
func (d DeploymentConfig) EnvMap() map[string]string {
	m := make(map[string]string, 4)
	for _, v := range d.EnvVars() {
		m[v.Key] = v.Value
	}
	return m
}

// LoadDeploymentConfig reads an env file from disk.
//
// # Description
//
// Parses KEY=VALUE lines, skipping blanks and # comments. A missing
// file is not an error: it returns a zero config and found=false so
// callers can distinguish first runs from parse failures. Malformed
// lines are skipped rather than fatal; a hand-edited file should not
// brick the tool.
//
// # Inputs
//
//   - path: Path to the env file, typically ".env" in the project dir.
//
// # Outputs
//
//   - DeploymentConfig: Parsed values. UID/GID absent from the file
//     (or unparseable) default to the invoking process's real ids, so
//     a hand-trimmed file never maps container ownership to root.
//   - bool: True if the file existed.
//   - error: Non-nil only on read failure.
func LoadDeploymentConfig(path string) (DeploymentConfig, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DeploymentConfig{}, false, nil
		}
		return DeploymentConfig{}, false, fmt.Errorf("failed to open env file %s: %w", path, err)
	}
	defer f.Close()

	var cfg DeploymentConfig
	var haveUID, haveGID bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case envKeyMode:
			cfg.Mode = Mode(value)
		case envKeyUserUID:
			if uid, err := strconv.Atoi(value); err == nil {
				cfg.UserUID = uid
				haveUID = true
			}
		case envKeyUserGID:
			if gid, err := strconv.Atoi(value); err == nil {
				cfg.UserGID = gid
				haveGID = true
			}
		}
		// FLASK_ENV is derived from MODE; the stored value is ignored.
	}
	if err := scanner.Err(); err != nil {
		return DeploymentConfig{}, true, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	if !haveUID {
		cfg.UserUID = os.Getuid()
	}
	if !haveGID {
		cfg.UserGID = os.Getgid()
	}
	return cfg, true, nil
}

// Save writes the env file atomically.
//
// # Description
//
// Renders the config as KEY=VALUE lines and writes them via a temp
// file plus rename, so a crash mid-write never leaves a truncated
// env file for compose to read. File mode is 0644: the file contains
// no secrets.
//
// # Inputs
//
//   - path: Destination env file path.
//
// # Outputs
//
//   - error: Non-nil on validation or write failure.
func (d DeploymentConfig) Save(path string) error {
	if !d.Mode.Valid() {
		return fmt.Errorf("refusing to save env file: %w", fmt.Errorf("%w: %q", ErrUnknownMode, d.Mode))
	}

	var sb strings.Builder
	sb.WriteString("# Generated by pubstack. Edit MODE with care; FLASK_ENV is derived from it.\n")
	for _, v := range d.EnvVars() {
		if err := v.Validate(); err != nil {
			return err
		}
		sb.WriteString(v.String())
		sb.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace env file %s: %w", path, err)
	}
	return nil
}
