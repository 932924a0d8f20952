// Package trace wraps the OS ping and traceroute utilities. Their output is
// passed through line by line and never parsed.
package trace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os/exec"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hamed0406/pgdiag/internal/domain"
)

// Collaborator produces the output of one external trace utility.
// The returned sequence is finite and can be ranged over once.
type Collaborator interface {
	Name() string
	Lines(ctx context.Context, host string) iter.Seq2[string, error]
}

var ErrConsumed = errors.New("trace output already consumed")

// Command runs a utility whose arguments depend on the target host.
type Command struct {
	Label string
	Path  string
	Args  func(host string) []string
}

func (c *Command) Name() string { return c.Label }

// Ping sends four echo requests using the platform's ping flags.
func Ping() *Command {
	return &Command{
		Label: "ping",
		Path:  "ping",
		Args: func(host string) []string {
			if runtime.GOOS == "windows" {
				return []string{"-n", "4", host}
			}
			return []string{"-c", "4", host}
		},
	}
}

func Traceroute() *Command {
	if runtime.GOOS == "windows" {
		return &Command{Label: "traceroute", Path: "tracert", Args: func(host string) []string { return []string{host} }}
	}
	return &Command{Label: "traceroute", Path: "traceroute", Args: func(host string) []string { return []string{host} }}
}

// Lines starts the process on first iteration and yields combined
// stdout/stderr lines. A start or exit failure is yielded last as an error.
// Stopping the range early kills the process.
func (c *Command) Lines(ctx context.Context, host string) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrConsumed)
			return
		}

		if err := domain.CheckHost(host); err != nil {
			yield("", fmt.Errorf("%s: %w", c.Label, err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		pr, pw := io.Pipe()
		cmd := exec.CommandContext(ctx, c.Path, c.Args(host)...)
		cmd.Stdout = pw
		cmd.Stderr = pw
		cmd.WaitDelay = time.Second
		if err := cmd.Start(); err != nil {
			_ = pw.Close()
			yield("", fmt.Errorf("%s: %w", c.Label, err))
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := cmd.Wait(); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("%s: %w", c.Label, err))
				return
			}
			_ = pw.Close()
		}()
		defer func() {
			cancel()
			_ = pr.Close()
			<-done
		}()

		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r")
			if !yield(line, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", err)
		}
	}
}

// Collect drains a collaborator into memory, calling each for every line.
func Collect(ctx context.Context, c Collaborator, host string, each func(string)) ([]string, error) {
	var lines []string
	for line, err := range c.Lines(ctx, host) {
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
		if each != nil {
			each(line)
		}
	}
	return lines, nil
}
