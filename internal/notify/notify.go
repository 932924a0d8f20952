package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pgdiag/internal/domain"
)

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

type Multi []Notifier

// Send delivers to every notifier and returns all failures combined.
func (m Multi) Send(ctx context.Context, title, text string) error {
	var errs error
	for _, n := range m {
		if n == nil {
			continue
		}
		errs = multierr.Append(errs, n.Send(ctx, title, text))
	}
	return errs
}

// New returns the notifiers for a process: the service log always, Slack
// when a webhook is configured.
func New(logger *zap.Logger, slackWebhook string) Multi {
	m := Multi{NewLog(logger)}
	if s := NewSlack(slackWebhook); s != nil {
		m = append(m, s)
	}
	return m
}

// Log records each summary in the service log.
type Log struct {
	Logger *zap.Logger
}

func NewLog(l *zap.Logger) *Log {
	if l == nil {
		l = zap.NewNop()
	}
	return &Log{Logger: l}
}

func (l *Log) Send(_ context.Context, title, text string) error {
	l.Logger.Warn("run_failed", zap.String("title", title), zap.String("summary", text))
	return nil
}

// Summary renders a report as a notification title and body.
func Summary(rep *domain.DiagnosticReport) (string, string) {
	status := "passed"
	if !rep.Succeeded() {
		status = "failed"
	}
	title := fmt.Sprintf("pgdiag %s for %s", status, rep.Target.Addr())

	var b strings.Builder
	for _, r := range rep.Results {
		mark := "ok"
		if !r.Success {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", mark, r.Step, r.Message)
	}
	if rep.Network.PublicIP != "" {
		fmt.Fprintf(&b, "public ip: %s\n", rep.Network.PublicIP)
	}
	fmt.Fprintf(&b, "run: %s", rep.RunID)
	return title, b.String()
}
