package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog_RecordsSummary(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLog(zap.New(core))

	if err := n.Send(context.Background(), "pgdiag failed for db:5432", "FAIL TCP: refused"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := logs.FilterMessage("run_failed").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 run_failed entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["title"] != "pgdiag failed for db:5432" || fields["summary"] != "FAIL TCP: refused" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestNew_LogOnlyWithoutWebhook(t *testing.T) {
	m := New(zap.NewNop(), "")
	if len(m) != 1 {
		t.Fatalf("want only the log notifier, got %d", len(m))
	}
	if err := m.Send(context.Background(), "t", "x"); err != nil {
		t.Fatalf("log-only notifier should not fail: %v", err)
	}
}

func TestNew_LogAndSlack(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	m := New(zap.New(core), ts.URL)
	if len(m) != 2 {
		t.Fatalf("want log and slack notifiers, got %d", len(m))
	}
	if err := m.Send(context.Background(), "t", "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("slack webhook hit %d times", hits.Load())
	}
	if logs.FilterMessage("run_failed").Len() != 1 {
		t.Fatal("summary not logged")
	}
}
