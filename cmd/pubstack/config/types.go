// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
)

type PubstackConfig struct {
	// Project: location of the compose project being deployed
	Project ProjectConfig `yaml:"project" validate:"required"`

	// Keys: SSH public key discovery for container provisioning
	Keys KeyConfig `yaml:"keys" validate:"required"`

	// Health: post-start verification settings
	Health HealthConfig `yaml:"health" validate:"required"`

	// Logs: where per-run and structured logs are written
	Logs LogConfig `yaml:"logs"`
}

type ProjectConfig struct {
	Dir             string `yaml:"dir"`                                  // e.g. "." (resolved at run time)
	ComposeFile     string `yaml:"compose_file" validate:"required"`     // e.g. docker-compose.yml
	EnvFile         string `yaml:"env_file" validate:"required"`         // e.g. .env
	ContainerPrefix string `yaml:"container_prefix" validate:"required"` // e.g. blog-publisher-
	SSHPort         int    `yaml:"ssh_port" validate:"min=1,max=65535"`  // host port mapped to container sshd
}

type KeyConfig struct {
	// Dir is the directory searched for public keys. Supports ~ expansion.
	Dir string `yaml:"dir" validate:"required"`

	// Candidates are tried in order; the first structurally valid key wins.
	Candidates []string `yaml:"candidates" validate:"min=1,dive,required"`
}

type HealthConfig struct {
	// ProbeURL is fetched after the stack starts to confirm the app answers.
	ProbeURL string `yaml:"probe_url" validate:"required,url"`

	// TimeoutSeconds bounds the whole health wait.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=1"`

	// DiagnosticLines is how many trailing container log lines are shown
	// when the container check fails.
	DiagnosticLines int `yaml:"diagnostic_lines" validate:"min=1"`
}

type LogConfig struct {
	Dir string `yaml:"dir"` // e.g. ~/.pubstack/logs
}

func DefaultConfig() PubstackConfig {
	keyDir := "~/.ssh"
	if home, err := os.UserHomeDir(); err == nil {
		keyDir = filepath.Join(home, ".ssh")
	}
	return PubstackConfig{
		Project: ProjectConfig{
			Dir:             ".",
			ComposeFile:     "docker-compose.yml",
			EnvFile:         ".env",
			ContainerPrefix: "blog-publisher-",
			SSHPort:         2222,
		},
		Keys: KeyConfig{
			Dir: keyDir,
			Candidates: []string{
				"id_ed25519.pub",
				"id_rsa.pub",
				"id_ecdsa.pub",
			},
		},
		Health: HealthConfig{
			ProbeURL:        "http://localhost:5000",
			TimeoutSeconds:  60,
			DiagnosticLines: 20,
		},
		Logs: LogConfig{
			Dir: "~/.pubstack/logs",
		},
	}
}
