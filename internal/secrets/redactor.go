// Package secrets redacts credentials from source code before it is sent to a
// text-generation backend.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding is one secret detected by gitleaks.
type Finding struct {
	RuleID string
	Line   int
	Secret string
}

// Redactor replaces detected secrets with [REDACTED:rule-id] markers.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewRedactor builds a redactor with the default gitleaks rule set.
func NewRedactor() (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	return &Redactor{detector: d}, nil
}

// Detect returns the secrets found in content.
func (r *Redactor) Detect(content string) []Finding {
	r.mu.Lock()
	raw := r.detector.DetectString(content)
	r.mu.Unlock()

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		if f.Secret == "" {
			continue
		}
		findings = append(findings, Finding{RuleID: f.RuleID, Line: f.StartLine, Secret: f.Secret})
	}
	return findings
}

// Redact returns content with every detected secret replaced, and the number of
// distinct secrets replaced.
func (r *Redactor) Redact(content string) (string, int) {
	if content == "" {
		return content, 0
	}
	findings := r.Detect(content)
	return replaceFindings(content, findings), countUnique(findings)
}

// replaceFindings substitutes secret values, longest first so that a secret that
// contains another is not partially replaced.
func replaceFindings(content string, findings []Finding) string {
	if len(findings) == 0 {
		return content
	}
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Secret) > len(sorted[j].Secret)
	})

	for _, f := range sorted {
		content = strings.ReplaceAll(content, f.Secret, fmt.Sprintf("[REDACTED:%s]", f.RuleID))
	}
	return content
}

func countUnique(findings []Finding) int {
	seen := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		seen[f.Secret] = struct{}{}
	}
	return len(seen)
}
