package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

const DefaultPortTimeout = 5 * time.Second

// PortProbe opens and immediately closes one TCP connection.
type PortProbe struct {
	Dialer *net.Dialer
}

func NewPortProbe() *PortProbe {
	return &PortProbe{Dialer: &net.Dialer{}}
}

// Probe dials host:port once. The dial is bounded by timeout even if ctx has
// no deadline; a non-positive timeout falls back to DefaultPortTimeout.
func (p *PortProbe) Probe(ctx context.Context, host string, port int, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultPortTimeout
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := p.Dialer
	if d == nil {
		d = &net.Dialer{}
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		ce := ConnectError{Addr: addr, Err: err}
		if isTimeout(err) {
			return "", &TimeoutError{ConnectError: ce}
		}
		return "", &ce
	}
	_ = conn.Close()
	return fmt.Sprintf("Successfully connected to %s from this machine.", addr), nil
}
