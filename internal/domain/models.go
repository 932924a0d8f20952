package domain

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultPort       = 5432
	DefaultTLSMode    = TLSVerifyFull
	DefaultCertBundle = "rds-combined-ca-bundle.pem"
)

// TLSMode mirrors libpq's sslmode values that the tool accepts.
type TLSMode string

const (
	TLSDisable    TLSMode = "disable"
	TLSRequire    TLSMode = "require"
	TLSVerifyCA   TLSMode = "verify-ca"
	TLSVerifyFull TLSMode = "verify-full"
)

var TLSModes = []TLSMode{TLSDisable, TLSRequire, TLSVerifyCA, TLSVerifyFull}

func ParseTLSMode(s string) (TLSMode, error) {
	m := TLSMode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return DefaultTLSMode, nil
	}
	for _, v := range TLSModes {
		if v == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown tls mode %q (want disable|require|verify-ca|verify-full)", s)
}

// RequiresCertificate reports whether the mode expects a root certificate bundle.
func (m TLSMode) RequiresCertificate() bool {
	return m == TLSRequire || m == TLSVerifyCA || m == TLSVerifyFull
}

// ConnectionTarget is what the caller wants to reach. The core never mutates it.
type ConnectionTarget struct {
	Host           string  `json:"host" yaml:"host"`
	Port           int     `json:"port" yaml:"port"`
	Database       string  `json:"dbname" yaml:"dbname"`
	Username       string  `json:"user" yaml:"user"`
	Password       string  `json:"password,omitempty" yaml:"-"`
	TLSMode        TLSMode `json:"sslmode" yaml:"sslmode"`
	CertBundlePath string  `json:"sslrootcert,omitempty" yaml:"sslrootcert,omitempty"`
}

var (
	ErrEmptyHost   = errors.New("host is required")
	ErrInvalidHost = errors.New("invalid host name")
)

func (t ConnectionTarget) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return ErrEmptyHost
	}
	if err := CheckHost(t.Host); err != nil {
		return err
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", t.Port)
	}
	if _, err := ParseTLSMode(string(t.TLSMode)); err != nil {
		return err
	}
	return nil
}

// CheckHost accepts DNS names and IP literals (IPv6 optionally bracketed,
// with a zone). The host ends up as an argument to ping and traceroute, so
// a leading '-' is refused.
func CheckHost(h string) error {
	if h == "" {
		return ErrEmptyHost
	}
	if h[0] == '-' {
		return fmt.Errorf("%w: %q starts with '-'", ErrInvalidHost, h)
	}
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune(".-_:%[]", r):
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidHost, h, r)
		}
	}
	return nil
}

// WithDefaults fills zero-valued port and TLS mode.
func (t ConnectionTarget) WithDefaults() ConnectionTarget {
	if t.Port == 0 {
		t.Port = DefaultPort
	}
	if t.TLSMode == "" {
		t.TLSMode = DefaultTLSMode
	}
	return t
}

func (t ConnectionTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Redacted returns a copy that is safe to log or return to a client.
func (t ConnectionTarget) Redacted() ConnectionTarget {
	if t.Password != "" {
		t.Password = "REDACTED"
	}
	return t
}

func (t ConnectionTarget) String() string {
	return fmt.Sprintf("%s@%s/%s sslmode=%s", t.Username, t.Addr(), t.Database, t.TLSMode)
}

// rootCertUsable reports whether sslrootcert belongs in the DSN. Under
// require a missing bundle is skipped, as libpq does, and the session is
// still encrypted. The verify modes always pass it through.
func (t ConnectionTarget) rootCertUsable(mode TLSMode) bool {
	if t.CertBundlePath == "" || mode == TLSDisable {
		return false
	}
	if mode == TLSRequire {
		fi, err := os.Stat(t.CertBundlePath)
		return err == nil && fi.Mode().IsRegular()
	}
	return true
}

// DSN renders a postgres:// URL understood by both pgx and lib/pq.
func (t ConnectionTarget) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   t.Addr(),
		Path:   "/" + t.Database,
	}
	if t.Username != "" {
		if t.Password != "" {
			u.User = url.UserPassword(t.Username, t.Password)
		} else {
			u.User = url.User(t.Username)
		}
	}
	q := url.Values{}
	mode := t.TLSMode
	if mode == "" {
		mode = DefaultTLSMode
	}
	q.Set("sslmode", string(mode))
	if t.rootCertUsable(mode) {
		q.Set("sslrootcert", t.CertBundlePath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
