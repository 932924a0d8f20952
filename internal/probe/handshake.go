package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/hamed0406/pgdiag/internal/domain"
)

const (
	DriverPgx = "pgx"
	DriverPQ  = "pq"

	DefaultHandshakeTimeout = 10 * time.Second
	VersionQuery            = "SELECT version()"
)

// HandshakeProbe opens a fresh session, authenticates and runs VersionQuery.
type HandshakeProbe struct {
	Driver  string
	Timeout time.Duration

	// openSQL is swapped in tests for the database/sql path.
	openSQL func(dsn string) (*sql.DB, error)
}

// openPQ builds the pool from a connector so lib/pq dials with the
// request context instead of through driver.Open.
func openPQ(dsn string) (*sql.DB, error) {
	c, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(c), nil
}

func NewHandshakeProbe(driver string, timeout time.Duration) *HandshakeProbe {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	if driver == "" {
		driver = DriverPgx
	}
	return &HandshakeProbe{Driver: driver, Timeout: timeout, openSQL: openPQ}
}

// Probe returns the server version string. The session is closed on every path.
func (h *HandshakeProbe) Probe(ctx context.Context, t domain.ConnectionTarget) (string, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		version string
		err     error
	)
	switch h.Driver {
	case DriverPQ:
		version, err = h.viaDatabaseSQL(ctx, t)
	case DriverPgx, "":
		version, err = h.viaPgx(ctx, t)
	default:
		err = fmt.Errorf("unknown driver %q", h.Driver)
	}
	if err != nil {
		return "", &HandshakeError{
			Err:     err,
			Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err),
		}
	}
	if strings.TrimSpace(version) == "" {
		return "", &HandshakeError{Err: errors.New("server returned an empty version")}
	}
	return version, nil
}

func (h *HandshakeProbe) viaPgx(ctx context.Context, t domain.ConnectionTarget) (string, error) {
	cfg, err := pgx.ParseConfig(t.DSN())
	if err != nil {
		return "", fmt.Errorf("parse config: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(cctx)
	}()

	var version string
	if err := conn.QueryRow(ctx, VersionQuery).Scan(&version); err != nil {
		return "", fmt.Errorf("query: %w", err)
	}
	return version, nil
}

func (h *HandshakeProbe) viaDatabaseSQL(ctx context.Context, t domain.ConnectionTarget) (string, error) {
	open := h.openSQL
	if open == nil {
		open = openPQ
	}
	dsn, err := withConnectTimeout(ctx, t.DSN())
	if err != nil {
		return "", fmt.Errorf("dsn: %w", err)
	}
	db, err := open(dsn)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	// lib/pq does not watch the context during the TLS and startup
	// exchange; connect_timeout bounds the socket and the select bounds us.
	type row struct {
		version string
		err     error
	}
	done := make(chan row, 1)
	go func() {
		var r row
		r.err = db.QueryRowContext(ctx, VersionQuery).Scan(&r.version)
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("query: %w", r.err)
		}
		return r.version, nil
	case <-ctx.Done():
		return "", fmt.Errorf("query: %w", ctx.Err())
	}
}

// withConnectTimeout sets libpq's connect_timeout (whole seconds, at least 1)
// from the context deadline.
func withConnectTimeout(ctx context.Context, dsn string) (string, error) {
	dl, ok := ctx.Deadline()
	if !ok {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	secs := int(math.Ceil(time.Until(dl).Seconds()))
	if secs < 1 {
		secs = 1
	}
	q := u.Query()
	q.Set("connect_timeout", strconv.Itoa(secs))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
