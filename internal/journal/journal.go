// Package journal is the human-readable, append-only record of every
// diagnostic run. Each line is "[<ISO-8601 timestamp>] <message>".
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultFile = "connection_diagnostics.log"

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

var (
	passwordPattern = regexp.MustCompile(`(?i)(password=)([^&\s"']+)`)
	userinfoPattern = regexp.MustCompile(`(://[^:/@\s]+:)([^@\s]+)(@)`)
)

// Sink receives one message per call.
type Sink interface {
	Log(msg string) error
}

type Journal struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// Open appends to path, rotating at 10 MB like the service log.
func Open(path string) (*Journal, io.Closer, error) {
	if path == "" {
		path = DefaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
	}
	return New(lj), lj, nil
}

func New(w io.Writer) *Journal {
	return &Journal{w: w, now: time.Now}
}

func (j *Journal) Log(msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := fmt.Fprintf(j.w, "[%s] %s\n", j.now().Format(timeLayout), Redact(msg))
	return err
}

// Redact masks password values in DSNs and key=value strings.
func Redact(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}REDACTED")
	return userinfoPattern.ReplaceAllString(s, "${1}REDACTED${3}")
}

// Discard drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) Log(string) error { return nil }
