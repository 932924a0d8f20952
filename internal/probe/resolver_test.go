package probe

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLookup(ips []net.IP, err error) func(context.Context, string, string) ([]net.IP, error) {
	return func(ctx context.Context, network, host string) ([]net.IP, error) {
		return ips, err
	}
}

func TestResolver_PrefersIPv4(t *testing.T) {
	r := &Resolver{Lookup: fakeLookup([]net.IP{net.ParseIP("2001:db8::1"), net.ParseIP("192.0.2.10")}, nil)}
	ip, err := r.Resolve(context.Background(), "db.example.com")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ip)
	assert.NotNil(t, net.ParseIP(ip))
}

func TestResolver_IPv6Only(t *testing.T) {
	r := &Resolver{Lookup: fakeLookup([]net.IP{net.ParseIP("2001:db8::1")}, nil)}
	ip, err := r.Resolve(context.Background(), "v6.example.com")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", ip)
}

func TestResolver_NXDOMAIN(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}
	r := &Resolver{Lookup: fakeLookup(nil, dnsErr)}
	_, err := r.Resolve(context.Background(), "nope.invalid")

	var re *ResolutionError
	require.True(t, errors.As(err, &re), "want ResolutionError, got %T", err)
	assert.Equal(t, "NXDOMAIN", re.Class)
	assert.Equal(t, "nope.invalid", re.Host)
	assert.ErrorIs(t, err, dnsErr)
}

func TestResolver_TemporaryFailure(t *testing.T) {
	r := &Resolver{Lookup: fakeLookup(nil, &net.DNSError{Err: "server misbehaving", IsTemporary: true})}
	_, err := r.Resolve(context.Background(), "flaky.example.com")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "SERVFAIL_or_TIMEOUT", re.Class)
}

func TestResolver_InvalidNames(t *testing.T) {
	called := false
	r := &Resolver{Lookup: func(ctx context.Context, network, host string) ([]net.IP, error) {
		called = true
		return nil, nil
	}}
	for _, h := range []string{"", "   ", "postgres://db", "bad host"} {
		_, err := r.Resolve(context.Background(), h)
		var re *ResolutionError
		require.ErrorAs(t, err, &re, "host %q", h)
		assert.Equal(t, "INVALID_NAME", re.Class)
	}
	assert.False(t, called, "lookup must not run for invalid names")
}

func TestResolver_LiteralIPSkipsLookup(t *testing.T) {
	r := &Resolver{Lookup: fakeLookup(nil, errors.New("should not be called"))}
	ip, err := r.Resolve(context.Background(), "10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", ip)
}

func TestResolver_EmptyAnswer(t *testing.T) {
	r := &Resolver{Lookup: fakeLookup(nil, nil)}
	_, err := r.Resolve(context.Background(), "empty.example.com")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "NO_ADDRESS", re.Class)
}
