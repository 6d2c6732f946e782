package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// fingerprintPayload is the canonical identity of a job. Method order
// is kept: the chain is semantic. Runs are normalized: the same work
// described in a different order is the same job.
type fingerprintPayload struct {
	Version    string   `json:"version"`
	Runs       []string `json:"runs,omitempty"`
	RunList    string   `json:"run_list,omitempty"`
	Bioproject string   `json:"bioproject,omitempty"`
	Methods    []string `json:"methods"`
	Formats    []string `json:"formats"`
	Dir        string   `json:"dir"`
	Unsorted   bool     `json:"unsorted,omitempty"`
	Force      bool     `json:"force,omitempty"`
	AllowPaid  bool     `json:"allow_paid,omitempty"`
}

// Fingerprint computes a canonical job hash for identity purposes:
// the same manifest content always yields the same fingerprint, so
// detached-job registries and log names can key on it.
func (m *Manifest) Fingerprint() (string, error) {
	methods, err := m.Methods()
	if err != nil {
		return "", err
	}
	formats, err := m.Formats()
	if err != nil {
		return "", err
	}

	payload := fingerprintPayload{
		Version:    m.Version,
		Runs:       normalizeRuns(m.Runs),
		RunList:    strings.TrimSpace(m.RunList),
		Bioproject: strings.ToUpper(strings.TrimSpace(m.Bioproject)),
		Dir:        strings.TrimSpace(m.Output.Dir),
		Unsorted:   m.Extract.Unsorted,
		Force:      m.Output.Force,
		AllowPaid:  m.Download.AllowPaid,
	}
	payload.Methods = make([]string, len(methods))
	for i, method := range methods {
		payload.Methods[i] = string(method)
	}
	payload.Formats = make([]string, len(formats))
	for i, f := range formats {
		payload.Formats[i] = string(f)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint payload: %w", err)
	}
	sha := sha256.Sum256(b)
	return hex.EncodeToString(sha[:]), nil
}

// normalizeRuns uppercases, dedupes, and sorts for deterministic
// output.
func normalizeRuns(runs []string) []string {
	if len(runs) == 0 {
		return nil
	}
	unique := make(map[string]struct{}, len(runs))
	for _, r := range runs {
		trimmed := strings.ToUpper(strings.TrimSpace(r))
		if trimmed == "" {
			continue
		}
		unique[trimmed] = struct{}{}
	}
	if len(unique) == 0 {
		return nil
	}
	out := make([]string, 0, len(unique))
	for r := range unique {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
