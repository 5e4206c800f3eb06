package model

import "strings"

// Tier names one retrieval strategy in the escalation chain.
type Tier string

const (
	TierStructured Tier = "structured"
	TierHTML       Tier = "html"
	TierRendered   Tier = "rendered"
)

// RetrievalResult is produced once per FetchDocument call and never persisted.
type RetrievalResult struct {
	Record     Record `json:"record"`
	Tier       Tier   `json:"tier,omitempty"`
	Attempted  []Tier `json:"attempted"`
	Extractor  string `json:"extractor,omitempty"`
	Failed     bool   `json:"failed"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Note appends one diagnostic line for a tier. Lines are separated by
// newlines.
func (r *RetrievalResult) Note(tier Tier, reason string) {
	line := string(tier) + ": " + strings.ReplaceAll(reason, "\n", " ")
	if r.Diagnostic == "" {
		r.Diagnostic = line
		return
	}
	r.Diagnostic += "\n" + line
}

// DiagnosticLines returns the diagnostic split into its per-tier lines.
func (r *RetrievalResult) DiagnosticLines() []string {
	if r.Diagnostic == "" {
		return nil
	}
	return strings.Split(r.Diagnostic, "\n")
}

// AttemptCount returns how many times the tier was attempted.
func (r *RetrievalResult) AttemptCount(tier Tier) int {
	n := 0
	for _, t := range r.Attempted {
		if t == tier {
			n++
		}
	}
	return n
}

// String renders the attempted chain, e.g. "structured>html".
func (r *RetrievalResult) String() string {
	names := make([]string, len(r.Attempted))
	for i, t := range r.Attempted {
		names[i] = string(t)
	}
	return strings.Join(names, ">")
}
