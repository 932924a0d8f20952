package domain

import (
	"time"

	"github.com/google/uuid"
)

type Step string

const (
	StepDNS     Step = "DNS"
	StepTCP     Step = "TCP"
	StepTLSCert Step = "TLS_CERT"
	StepDBAuth  Step = "DB_AUTH"
)

// Steps is the fixed order in which the mandatory probes run.
var Steps = []Step{StepDNS, StepTCP, StepTLSCert, StepDBAuth}

type ProbeResult struct {
	Step      Step      `json:"step"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"` // resolved IP, server version
	LatencyMS float64   `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtraResult holds the output of an optional step (ping, traceroute).
// The text is kept opaque.
type ExtraResult struct {
	Name    string    `json:"name"`
	Success bool      `json:"success"`
	Lines   []string  `json:"lines,omitempty"`
	Error   string    `json:"error,omitempty"`
	Started time.Time `json:"started"`
}

// NetworkContext is informational. A failed lookup leaves the address empty
// and carries the operator-facing text in the matching *Error field.
type NetworkContext struct {
	LocalIP       string `json:"local_ip,omitempty"`
	LocalIPError  string `json:"local_ip_error,omitempty"`
	PublicIP      string `json:"public_ip,omitempty"`
	PublicIPError string `json:"public_ip_error,omitempty"`
}

type DiagnosticReport struct {
	RunID      string           `json:"run_id"`
	Target     ConnectionTarget `json:"target"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Network    NetworkContext   `json:"network"`
	Results    []ProbeResult    `json:"results"`
	Extras     []ExtraResult    `json:"extras,omitempty"`
}

func NewReport(t ConnectionTarget, now time.Time) *DiagnosticReport {
	return &DiagnosticReport{
		RunID:     uuid.NewString(),
		Target:    t.Redacted(),
		StartedAt: now.UTC(),
		Results:   make([]ProbeResult, 0, len(Steps)),
	}
}

// Append adds r to the report. Results are never replaced.
func (r *DiagnosticReport) Append(res ProbeResult) {
	r.Results = append(r.Results, res)
}

func (r *DiagnosticReport) Result(s Step) (ProbeResult, bool) {
	for _, res := range r.Results {
		if res.Step == s {
			return res, true
		}
	}
	return ProbeResult{}, false
}

// Succeeded is true when every mandatory step ran and passed.
func (r *DiagnosticReport) Succeeded() bool {
	if len(r.Results) != len(Steps) {
		return false
	}
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

func (r *DiagnosticReport) Failed() []ProbeResult {
	var out []ProbeResult
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}
