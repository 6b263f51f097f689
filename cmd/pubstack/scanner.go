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
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// SEVERITY AND PATTERNS
// =============================================================================

// Severity ranks how serious a finding is.
type Severity string

const (
	// SeverityCritical findings are private key material. Publishing
	// them is unrecoverable; rotation is the only fix.
	SeverityCritical Severity = "critical"

	// SeverityHigh findings are credentials or key files by name.
	SeverityHigh Severity = "high"

	// SeverityMedium findings are likely but not certainly sensitive.
	SeverityMedium Severity = "medium"
)

// SecretPattern defines a regex for detecting committed secrets.
//
// Description:
//
//	SecretPattern contains a regex pattern and metadata for detecting
//	a specific type of secret in file content. FalsePositiveHints
//	suppress matches whose surrounding context marks them as examples
//	or placeholders.
//
// Thread Safety:
//
//	Safe for concurrent use after Compile().
type SecretPattern struct {
	// Type is the secret type (private_key, ssh_public_key, etc.).
	Type string

	// Description explains what this pattern detects.
	Description string

	// Pattern is the regex pattern.
	Pattern string

	// compiledPattern is the compiled regex.
	compiledPattern *regexp.Regexp

	// patternOnce guards compilation.
	patternOnce sync.Once

	// Severity indicates how serious this secret exposure is.
	Severity Severity

	// FalsePositiveHints are regexes that mark a match as benign when
	// they appear in the surrounding context.
	FalsePositiveHints []string

	// compiledHints are compiled false positive hint regexes.
	compiledHints []*regexp.Regexp
}

// Compile prepares the pattern and its hints. Called lazily by Match.
func (p *SecretPattern) Compile() error {
	var err error
	p.patternOnce.Do(func() {
		p.compiledPattern, err = regexp.Compile(p.Pattern)
		if err != nil {
			return
		}
		for _, hint := range p.FalsePositiveHints {
			if compiled, herr := regexp.Compile(hint); herr == nil {
				p.compiledHints = append(p.compiledHints, compiled)
			}
		}
	})
	return err
}

// Match finds all occurrences of this secret in content.
//
// Outputs:
//
//	[]SecretMatch - All matches, with secrets masked in the context.
func (p *SecretPattern) Match(content string) []SecretMatch {
	if err := p.Compile(); err != nil {
		return nil
	}

	matches := p.compiledPattern.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	var result []SecretMatch
	for _, m := range matches {
		contextStart := max(0, m[0]-50)
		contextEnd := min(len(content), m[1]+50)
		context := content[contextStart:contextEnd]

		isFalsePositive := false
		for _, hint := range p.compiledHints {
			if hint.MatchString(context) {
				isFalsePositive = true
				break
			}
		}
		if isFalsePositive {
			continue
		}

		lineNum := strings.Count(content[:m[0]], "\n") + 1

		result = append(result, SecretMatch{
			Type:     p.Type,
			Line:     lineNum,
			Context:  maskSecret(context, content[m[0]:m[1]]),
			Severity: p.Severity,
		})
	}
	return result
}

// SecretMatch is one detected secret inside a file.
type SecretMatch struct {
	Type     string
	Line     int
	Context  string
	Severity Severity
}

// maskSecret hides a secret value inside its context. Secrets of 8
// characters or fewer are fully masked; longer ones keep two
// characters on each end.
func maskSecret(context, secret string) string {
	if len(secret) <= 8 {
		return strings.ReplaceAll(context, secret, strings.Repeat("*", len(secret)))
	}
	maskLen := max(len(secret)-4, 1)
	masked := secret[:2] + strings.Repeat("*", maskLen) + secret[len(secret)-2:]
	return strings.ReplaceAll(context, secret, masked)
}

// defaultSecretPatterns returns the patterns for a pre-publish scan
// of a blog project tree.
func defaultSecretPatterns() []*SecretPattern {
	return []*SecretPattern{
		{
			Type:        "private_key",
			Description: "PEM private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |ENCRYPTED )?PRIVATE KEY-----`,
			Severity:    SeverityCritical,
		},
		{
			Type:        "ssh_public_key",
			Description: "SSH public key material",
			Pattern:     `(?:ssh-(?:rsa|dss|ed25519)|ecdsa-sha2-nistp(?:256|384|521))\s+AAAA[0-9A-Za-z+/=]{20,}`,
			Severity:    SeverityMedium,
			FalsePositiveHints: []string{
				`(?i)example`,
				`(?i)placeholder`,
			},
		},
		{
			Type:        "ssh_key_blob",
			Description: "Bare SSH key blob",
			Pattern:     `AAAA[BC]3[0-9A-Za-z+/=]{40,}`,
			Severity:    SeverityMedium,
			FalsePositiveHints: []string{
				`(?i)example`,
			},
		},
		{
			Type:        "pem_certificate",
			Description: "PEM certificate block",
			Pattern:     `-----BEGIN CERTIFICATE-----`,
			Severity:    SeverityMedium,
		},
		{
			Type:        "flask_secret_key",
			Description: "Flask SECRET_KEY assignment",
			Pattern:     `(?i)SECRET_KEY\s*[=:]\s*["'][^"']{16,}["']`,
			Severity:    SeverityHigh,
			FalsePositiveHints: []string{
				`(?i)example`,
				`(?i)change[_-]?me`,
				`(?i)placeholder`,
				`(?i)your[_-]?secret`,
				`(?i)os\.environ`,
			},
		},
		{
			Type:        "generic_api_key",
			Description: "Generic API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|apikey|api[_-]?token)\s*[=:]\s*["']([a-zA-Z0-9_\-]{20,})["']`,
			Severity:    SeverityHigh,
			FalsePositiveHints: []string{
				`(?i)example`,
				`(?i)placeholder`,
				`(?i)your[_-]?api[_-]?key`,
				`(?i)xxx+`,
			},
		},
	}
}

// sensitiveFileGlobs are filenames that should never sit in a
// publishable tree regardless of content.
var sensitiveFileGlobs = []string{
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519",
	"*.pem", "*.key", "*.ppk", "*.p12", "*.pfx",
	"*.keystore", "credentials.json",
}

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"vendor":        true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".mypy_cache":   true,
	".pytest_cache": true,
	"logs":          true,
}

// skippedFileGlobs are never content-scanned; log files quote tool
// output wholesale and drown the patterns in noise.
var skippedFileGlobs = []string{"*.log"}

// requiredGitignorePatterns must be covered by the project .gitignore
// so secrets cannot slip into a commit. Missing coverage is a warning.
var requiredGitignorePatterns = []string{".env", "*.pem", "*.key", "id_rsa", "id_ed25519"}

// requiredArtifacts must exist for the project to be deployable.
var requiredArtifacts = []string{".gitignore", "docker-compose.yml", "Dockerfile"}

// maxScanFileSize skips files larger than this; key material is small
// and huge files are media or databases.
const maxScanFileSize = 4 << 20

// =============================================================================
// SCANNER
// =============================================================================

// Finding is one secret located in the tree.
type Finding struct {
	// Path is relative to the scan root.
	Path string

	// Line is the 1-based line number, or 0 for filename findings.
	Line int

	// Type is the secret type.
	Type string

	// Severity ranks the finding.
	Severity Severity

	// Context is the masked surrounding text, or a description for
	// filename findings.
	Context string
}

// ScanOutcome is the three-way summary of a scan.
type ScanOutcome string

const (
	// ScanOutcomeClean means no findings and no warnings.
	ScanOutcomeClean ScanOutcome = "clean"

	// ScanOutcomeWarnings means no secrets, but hygiene gaps exist
	// (gitignore coverage, missing artifacts).
	ScanOutcomeWarnings ScanOutcome = "warnings"

	// ScanOutcomeFindings means secret material was located.
	ScanOutcomeFindings ScanOutcome = "findings"
)

// ScanReport aggregates everything a scan produced.
type ScanReport struct {
	// Root is the scanned directory.
	Root string

	// Findings are located secrets, sorted by path then line.
	Findings []Finding

	// Warnings are hygiene gaps that do not block publishing.
	Warnings []string

	// FilesScanned counts the files whose content was inspected.
	FilesScanned int
}

// Outcome classifies the report three ways.
func (r *ScanReport) Outcome() ScanOutcome {
	if len(r.Findings) > 0 {
		return ScanOutcomeFindings
	}
	if len(r.Warnings) > 0 {
		return ScanOutcomeWarnings
	}
	return ScanOutcomeClean
}

// SecretScanner checks a project tree for committed secrets before it
// is published.
type SecretScanner interface {
	// Scan walks root and returns a report. The error is reserved for
	// infrastructure failures; findings are data, not errors.
	Scan(root string) (*ScanReport, error)
}

// Compile-time interface checks.
var (
	_ SecretScanner = (*DefaultSecretScanner)(nil)
	_ SecretScanner = (*MockSecretScanner)(nil)
)

// DefaultSecretScanner implements SecretScanner with concurrent file
// scanning.
//
// Thread Safety:
//
//	Safe for concurrent use. Patterns compile once under sync.Once.
type DefaultSecretScanner struct {
	patterns []*SecretPattern
}

// NewDefaultSecretScanner creates a scanner with the default pattern set.
func NewDefaultSecretScanner() *DefaultSecretScanner {
	return &DefaultSecretScanner{patterns: defaultSecretPatterns()}
}

// Scan walks the tree, checks filenames and content concurrently, and
// verifies gitignore coverage and required artifacts.
func (s *DefaultSecretScanner) Scan(root string) (*ScanReport, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot scan %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot scan %s: not a directory", root)
	}

	report := &ScanReport{Root: root}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())

	for _, path := range files {
		path := path
		g.Go(func() error {
			findings, scanned := s.scanFile(root, path)
			if len(findings) == 0 && !scanned {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			report.Findings = append(report.Findings, findings...)
			if scanned {
				report.FilesScanned++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		if report.Findings[i].Path != report.Findings[j].Path {
			return report.Findings[i].Path < report.Findings[j].Path
		}
		return report.Findings[i].Line < report.Findings[j].Line
	})

	report.Warnings = append(report.Warnings, checkGitignoreCoverage(root)...)
	report.Warnings = append(report.Warnings, checkRequiredArtifacts(root)...)
	return report, nil
}

// scanFile checks one file by name and content. Returns findings and
// whether the content was actually inspected.
func (s *DefaultSecretScanner) scanFile(root, path string) ([]Finding, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	var findings []Finding
	name := filepath.Base(path)
	for _, glob := range sensitiveFileGlobs {
		if ok, _ := filepath.Match(glob, name); ok {
			findings = append(findings, Finding{
				Path:     rel,
				Type:     "sensitive_filename",
				Severity: SeverityHigh,
				Context:  fmt.Sprintf("filename matches %q; key files do not belong in the project tree", glob),
			})
			break
		}
	}

	for _, glob := range skippedFileGlobs {
		if ok, _ := filepath.Match(glob, name); ok {
			return findings, false
		}
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() > maxScanFileSize {
		return findings, false
	}

	content, err := os.ReadFile(path)
	if err != nil || isBinary(content) {
		return findings, false
	}

	text := string(content)
	for _, pattern := range s.patterns {
		for _, m := range pattern.Match(text) {
			findings = append(findings, Finding{
				Path:     rel,
				Line:     m.Line,
				Type:     m.Type,
				Severity: m.Severity,
				Context:  strings.TrimSpace(m.Context),
			})
		}
	}
	return findings, true
}

// isBinary reports whether content looks like a binary file (NUL byte
// in the first 8000 bytes, same heuristic git uses).
func isBinary(content []byte) bool {
	n := min(len(content), 8000)
	for _, b := range content[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

// checkGitignoreCoverage warns for each required pattern the project
// .gitignore does not carry.
func checkGitignoreCoverage(root string) []string {
	path := filepath.Join(root, ".gitignore")
	f, err := os.Open(path)
	if err != nil {
		// Reported separately by checkRequiredArtifacts.
		return nil
	}
	defer f.Close()

	present := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		present[strings.TrimSuffix(line, "/")] = true
	}

	var warnings []string
	for _, want := range requiredGitignorePatterns {
		if !present[want] {
			warnings = append(warnings,
				fmt.Sprintf(".gitignore does not cover %q; add it so secrets cannot be committed", want))
		}
	}
	return warnings
}

// checkRequiredArtifacts warns for each deployment file missing from
// the project root.
func checkRequiredArtifacts(root string) []string {
	var warnings []string
	for _, name := range requiredArtifacts {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			warnings = append(warnings, fmt.Sprintf("required file %s is missing", name))
		}
	}
	return warnings
}

// MockSecretScanner is a test double for SecretScanner.
type MockSecretScanner struct {
	// ScanFunc is called by Scan. Panics if nil.
	ScanFunc func(root string) (*ScanReport, error)
}

// Scan calls ScanFunc.
func (m *MockSecretScanner) Scan(root string) (*ScanReport, error) {
	if m.ScanFunc == nil {
		panic("MockSecretScanner.Scan called but ScanFunc is nil")
	}
	return m.ScanFunc(root)
}
