package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

var dnsTimeout = 3 * time.Second

// Resolver performs a single host lookup through the OS resolver.
type Resolver struct {
	Lookup  func(ctx context.Context, network, host string) ([]net.IP, error)
	Timeout time.Duration
}

func NewResolver() *Resolver {
	r := &net.Resolver{} // OS resolver
	return &Resolver{Lookup: r.LookupIP, Timeout: dnsTimeout}
}

// Resolve returns one address for host, preferring IPv4. There is no retry.
func (r *Resolver) Resolve(ctx context.Context, host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" || strings.Contains(host, "://") || strings.ContainsAny(host, " /") {
		return "", &ResolutionError{Host: host, Class: "INVALID_NAME"}
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return ip.String(), nil
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = dnsTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips, err := r.Lookup(ctx, "ip", host)
	if err != nil {
		return "", &ResolutionError{Host: host, Class: classifyDNSError(err), Err: err}
	}
	if len(ips) == 0 {
		return "", &ResolutionError{Host: host, Class: "NO_ADDRESS"}
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return ips[0].String(), nil
}

func classifyDNSError(err error) string {
	var de *net.DNSError
	if errors.As(err, &de) && de.IsNotFound {
		return "NXDOMAIN"
	}
	// temporary failures, timeouts and anything unrecognised
	return "SERVFAIL_or_TIMEOUT"
}
