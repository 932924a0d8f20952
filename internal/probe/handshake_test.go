package probe

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/pgdiag/internal/domain"
)

func mockOpener(t *testing.T) (func(string) (*sql.DB, error), sqlmock.Sqlmock, *string) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	var gotDSN string
	return func(dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return db, nil
	}, mock, &gotDSN
}

func testTarget() domain.ConnectionTarget {
	return domain.ConnectionTarget{
		Host:     "db.example.com",
		Port:     5432,
		Database: "dda",
		Username: "reader",
		Password: "pw",
		TLSMode:  domain.TLSDisable,
	}
}

func TestHandshakeProbe_DatabaseSQLReturnsVersion(t *testing.T) {
	open, mock, dsn := mockOpener(t)
	mock.ExpectQuery(VersionQuery).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.3 on x86_64-pc-linux-gnu"))
	mock.ExpectClose()

	h := NewHandshakeProbe(DriverPQ, time.Second)
	h.openSQL = open

	v, err := h.Probe(context.Background(), testTarget())
	require.NoError(t, err)
	assert.Equal(t, "PostgreSQL 16.3 on x86_64-pc-linux-gnu", v)
	assert.Contains(t, *dsn, "sslmode=disable")
	assert.Contains(t, *dsn, "connect_timeout=1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandshakeProbe_QueryErrorWrapped(t *testing.T) {
	open, mock, _ := mockOpener(t)
	boom := errors.New("password authentication failed for user \"reader\"")
	mock.ExpectQuery(VersionQuery).WillReturnError(boom)

	h := NewHandshakeProbe(DriverPQ, time.Second)
	h.openSQL = open

	_, err := h.Probe(context.Background(), testTarget())
	var he *HandshakeError
	require.ErrorAs(t, err, &he)
	assert.False(t, he.Timeout)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "Connection failed")
}

func TestHandshakeProbe_EmptyVersion(t *testing.T) {
	open, mock, _ := mockOpener(t)
	mock.ExpectQuery(VersionQuery).WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(""))

	h := NewHandshakeProbe(DriverPQ, time.Second)
	h.openSQL = open

	_, err := h.Probe(context.Background(), testTarget())
	var he *HandshakeError
	require.ErrorAs(t, err, &he)
}

func TestHandshakeProbe_UnknownDriver(t *testing.T) {
	h := NewHandshakeProbe("mysql", time.Second)
	_, err := h.Probe(context.Background(), testTarget())
	var he *HandshakeError
	require.ErrorAs(t, err, &he)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestHandshakeProbe_PgxNothingListening(t *testing.T) {
	tgt := testTarget()
	tgt.Host = "127.0.0.1"
	tgt.Port = closedPort(t)

	start := time.Now()
	_, err := NewHandshakeProbe(DriverPgx, 2*time.Second).Probe(context.Background(), tgt)
	var he *HandshakeError
	require.ErrorAs(t, err, &he)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHandshakeProbe_PgxMissingRootCert(t *testing.T) {
	tgt := testTarget()
	tgt.Host = "127.0.0.1"
	tgt.Port = closedPort(t)
	tgt.TLSMode = domain.TLSVerifyFull
	tgt.CertBundlePath = "/nonexistent/ca.pem"

	_, err := NewHandshakeProbe(DriverPgx, time.Second).Probe(context.Background(), tgt)
	var he *HandshakeError
	require.ErrorAs(t, err, &he)
}

// silentServer accepts connections and never writes a byte.
func silentServer(t *testing.T) int {
	t.Helper()
	ln, port := listenLocal(t)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return port
}

func TestHandshakeProbe_SilentServerTimesOut(t *testing.T) {
	for _, driver := range []string{DriverPgx, DriverPQ} {
		t.Run(driver, func(t *testing.T) {
			tgt := testTarget()
			tgt.Host = "127.0.0.1"
			tgt.Port = silentServer(t)
			tgt.TLSMode = domain.TLSRequire

			start := time.Now()
			_, err := NewHandshakeProbe(driver, time.Second).Probe(context.Background(), tgt)
			elapsed := time.Since(start)

			var he *HandshakeError
			require.ErrorAs(t, err, &he)
			assert.True(t, he.Timeout, "want timeout flag, got %v", err)
			assert.Contains(t, err.Error(), "(timeout)")
			assert.Less(t, elapsed, 4*time.Second)
		})
	}
}

func TestWithConnectTimeout(t *testing.T) {
	dsn := "postgres://reader@db:5432/dda?sslmode=require"

	got, err := withConnectTimeout(context.Background(), dsn)
	require.NoError(t, err)
	assert.Equal(t, dsn, got, "no deadline leaves the dsn alone")

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	got, err = withConnectTimeout(ctx, dsn)
	require.NoError(t, err)
	assert.Contains(t, got, "connect_timeout=3")
	assert.Contains(t, got, "sslmode=require")
}
