package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenLocal(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, port := listenLocal(t)
	require.NoError(t, ln.Close())
	return port
}

func TestPortProbe_Open(t *testing.T) {
	ln, port := listenLocal(t)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	msg, err := NewPortProbe().Probe(context.Background(), "127.0.0.1", port, time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg, "Successfully connected to 127.0.0.1:"), msg)
}

func TestPortProbe_Refused(t *testing.T) {
	port := closedPort(t)

	start := time.Now()
	_, err := NewPortProbe().Probe(context.Background(), "127.0.0.1", port, 2*time.Second)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	var te *TimeoutError
	assert.False(t, errors.As(err, &te), "refused is not a timeout")
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Contains(t, err.Error(), "Failed to connect to 127.0.0.1:")
}

func TestPortProbe_TimeoutIsBounded(t *testing.T) {
	p := &PortProbe{Dialer: &net.Dialer{
		// Hold the dial until the deadline fires, like a filtered port.
		ControlContext: func(ctx context.Context, network, address string, c syscall.RawConn) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}}

	start := time.Now()
	_, err := p.Probe(context.Background(), "127.0.0.1", 5432, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 2*time.Second, "probe must not hang past its timeout")

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce, "timeout is a ConnectError sub-case")
	assert.Equal(t, "127.0.0.1:5432", ce.Addr)
}
