package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pgdiag/internal/domain"
)

const DefaultPublicIPURL = "https://api.ipify.org"

// Lookup gathers informational addresses of the machine running the probes.
// None of its failures affect the probe pipeline.
type Lookup struct {
	PublicIPURL string
	Client      *resty.Client
	Hostname    func() (string, error)
	Resolve     func(ctx context.Context, host string) ([]string, error)
}

func New(publicIPURL string) *Lookup {
	if publicIPURL == "" {
		publicIPURL = DefaultPublicIPURL
	}
	return &Lookup{
		PublicIPURL: publicIPURL,
		Client:      resty.New().SetTimeout(5 * time.Second),
		Hostname:    os.Hostname,
		Resolve:     net.DefaultResolver.LookupHost,
	}
}

// PublicIP makes one request to the lookup service. There is no retry.
func (l *Lookup) PublicIP(ctx context.Context) (string, error) {
	resp, err := l.Client.R().SetContext(ctx).Get(l.PublicIPURL)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("public ip lookup: %s", resp.Status())
	}
	ip := strings.TrimSpace(resp.String())
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("public ip lookup returned %q", ip)
	}
	return ip, nil
}

func (l *Lookup) LocalIP(ctx context.Context) (string, error) {
	name, err := l.Hostname()
	if err != nil {
		return "", err
	}
	addrs, err := l.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", errors.New("no address for " + name)
	}
	return addrs[0], nil
}

// Gather runs both lookups concurrently. Failures are reported as the text
// shown to the operator, never as an error.
func (l *Lookup) Gather(ctx context.Context) domain.NetworkContext {
	var nc domain.NetworkContext
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ip, err := l.LocalIP(gctx)
		if err != nil {
			nc.LocalIPError = "Failed to get local IP: " + err.Error()
			return nil
		}
		nc.LocalIP = ip
		return nil
	})
	g.Go(func() error {
		ip, err := l.PublicIP(gctx)
		if err != nil {
			nc.PublicIPError = "Failed to retrieve public IP: " + err.Error()
			return nil
		}
		nc.PublicIP = ip
		return nil
	})
	_ = g.Wait()
	return nc
}
