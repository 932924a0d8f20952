// Package diag runs the layered connectivity probe: DNS, TCP, TLS_CERT and
// DB_AUTH, always in that order and always all four.
package diag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pgdiag/internal/domain"
	"github.com/hamed0406/pgdiag/internal/journal"
	"github.com/hamed0406/pgdiag/internal/probe"
	"github.com/hamed0406/pgdiag/internal/trace"
)

type Resolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

type PortProber interface {
	Probe(ctx context.Context, host string, port int, timeout time.Duration) (string, error)
}

type Handshaker interface {
	Probe(ctx context.Context, t domain.ConnectionTarget) (string, error)
}

type NetworkLookup interface {
	Gather(ctx context.Context) domain.NetworkContext
}

type Observer interface {
	ObserveStep(step domain.Step, ok bool, d time.Duration)
}

type Options struct {
	RunPing       bool `json:"run_ping"`
	RunTraceroute bool `json:"run_traceroute"`
}

type Orchestrator struct {
	Logger       *zap.Logger
	Sink         journal.Sink
	Resolver     Resolver
	Ports        PortProber
	ValidateCert func(domain.TLSMode, string) error
	Handshake    Handshaker
	PortTimeout  time.Duration

	// Optional collaborators; nil disables them.
	Network    NetworkLookup
	Ping       trace.Collaborator
	Traceroute trace.Collaborator
	Observer   Observer

	// OnResult and OnLine let a shell render progress while the run is going.
	OnResult func(domain.ProbeResult)
	OnLine   func(name, line string)

	Now func() time.Time
}

// New wires the real probes.
func New(logger *zap.Logger, sink journal.Sink, driver string, portTimeout, handshakeTimeout time.Duration) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = journal.Discard
	}
	return &Orchestrator{
		Logger:       logger,
		Sink:         sink,
		Resolver:     probe.NewResolver(),
		Ports:        probe.NewPortProbe(),
		ValidateCert: probe.ValidateCertPath,
		Handshake:    probe.NewHandshakeProbe(driver, handshakeTimeout),
		PortTimeout:  portTimeout,
		Ping:         trace.Ping(),
		Traceroute:   trace.Traceroute(),
		Now:          time.Now,
	}
}

// Run executes every mandatory step once, in order, regardless of earlier
// failures, and returns the complete report.
func (o *Orchestrator) Run(ctx context.Context, t domain.ConnectionTarget, opts Options) *domain.DiagnosticReport {
	t = t.WithDefaults()
	rep := domain.NewReport(t, o.now())
	o.log().Info("diagnose_start",
		zap.String("run_id", rep.RunID),
		zap.String("target", t.String()),
		zap.Bool("ping", opts.RunPing),
		zap.Bool("traceroute", opts.RunTraceroute),
	)

	if o.Network != nil {
		rep.Network = o.Network.Gather(ctx)
		o.journalLookup("Local IP: ", rep.Network.LocalIP, rep.Network.LocalIPError)
		o.journalLookup("Public IP: ", rep.Network.PublicIP, rep.Network.PublicIPError)
	}

	for _, step := range domain.Steps {
		res := o.runStep(ctx, step, t)
		rep.Append(res)
		if o.OnResult != nil {
			o.OnResult(res)
		}

		if step == domain.StepDNS {
			if opts.RunPing && o.Ping != nil {
				rep.Extras = append(rep.Extras, o.runExtra(ctx, o.Ping, t.Host))
			}
			if opts.RunTraceroute && o.Traceroute != nil {
				rep.Extras = append(rep.Extras, o.runExtra(ctx, o.Traceroute, t.Host))
			}
		}
	}

	rep.FinishedAt = o.now().UTC()
	o.log().Info("diagnose_done",
		zap.String("run_id", rep.RunID),
		zap.Bool("ok", rep.Succeeded()),
		zap.Int("failed_steps", len(rep.Failed())),
		zap.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)),
	)
	return rep
}

func (o *Orchestrator) runStep(ctx context.Context, step domain.Step, t domain.ConnectionTarget) (res domain.ProbeResult) {
	start := o.now()
	res = domain.ProbeResult{Step: step, Timestamp: start.UTC()}

	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Message = fmt.Sprintf("%s probe panicked: %v", step, p)
			res.Detail = ""
		}
		elapsed := o.now().Sub(start)
		res.LatencyMS = float64(elapsed) / float64(time.Millisecond)
		o.record(res, elapsed)
	}()

	var (
		msg, detail string
		err         error
	)
	switch {
	case (step == domain.StepTCP || step == domain.StepDBAuth) && strings.TrimSpace(t.Host) == "":
		// an empty host would dial the local machine
		err = fmt.Errorf("%s skipped: %w", step, domain.ErrEmptyHost)
	case step == domain.StepDNS:
		detail, err = o.Resolver.Resolve(ctx, t.Host)
		msg = fmt.Sprintf("Resolved IP for %s: %s", t.Host, detail)
	case step == domain.StepTCP:
		msg, err = o.Ports.Probe(ctx, t.Host, t.Port, o.PortTimeout)
	case step == domain.StepTLSCert:
		err = o.ValidateCert(t.TLSMode, t.CertBundlePath)
		msg = "SSL certificate path is valid."
		if !t.TLSMode.RequiresCertificate() {
			msg = "TLS disabled; no root certificate required."
		}
	case step == domain.StepDBAuth:
		detail, err = o.Handshake.Probe(ctx, t)
		msg = "Connection successful to PostgreSQL database."
	default:
		err = fmt.Errorf("unknown step %q", step)
	}

	if err != nil {
		res.Message = err.Error()
		return res
	}
	res.Success = true
	res.Message = msg
	res.Detail = detail
	return res
}

func (o *Orchestrator) record(res domain.ProbeResult, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("step", string(res.Step)),
		zap.Bool("success", res.Success),
		zap.String("message", journal.Redact(res.Message)),
		zap.Float64("latency_ms", res.LatencyMS),
	}
	if res.Success {
		o.log().Info("probe_step", fields...)
	} else {
		o.log().Warn("probe_step", fields...)
	}

	o.journal(res.Message)
	if res.Step == domain.StepDBAuth && res.Success {
		o.journal("Query result: " + res.Detail)
	}
	if o.Observer != nil {
		o.Observer.ObserveStep(res.Step, res.Success, elapsed)
	}
}

// runExtra streams an optional trace to the journal. Its outcome never
// changes the mandatory steps.
func (o *Orchestrator) runExtra(ctx context.Context, c trace.Collaborator, host string) domain.ExtraResult {
	ex := domain.ExtraResult{Name: c.Name(), Started: o.now().UTC()}
	o.journal(c.Name() + " output:")
	lines, err := trace.Collect(ctx, c, host, func(line string) {
		o.journal(line)
		if o.OnLine != nil {
			o.OnLine(c.Name(), line)
		}
	})
	ex.Lines = lines
	if err != nil {
		ex.Error = err.Error()
		o.journal(fmt.Sprintf("%s failed: %v", c.Name(), err))
		o.log().Warn("trace_failed", zap.String("name", c.Name()), zap.Error(err))
		return ex
	}
	ex.Success = true
	return ex
}

// journalLookup writes a labelled address, or the failure text on its own.
func (o *Orchestrator) journalLookup(label, value, failure string) {
	if failure != "" {
		o.journal(failure)
		return
	}
	o.journal(label + value)
}

func (o *Orchestrator) journal(msg string) {
	if o.Sink == nil {
		return
	}
	if err := o.Sink.Log(msg); err != nil {
		o.log().Warn("journal_write_error", zap.Error(err))
	}
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
