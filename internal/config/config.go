package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/pgdiag/internal/domain"
	"github.com/hamed0406/pgdiag/internal/journal"
	"github.com/hamed0406/pgdiag/internal/netinfo"
	"github.com/hamed0406/pgdiag/internal/probe"
)

type Config struct {
	Addr             string        // API bind address, e.g., "127.0.0.1:8080"
	LogDir           string        // service log directory
	LogLevel         string        // debug | info | warn | error
	JournalFile      string        // human-readable diagnostics log
	CertBundlePath   string        // default sslrootcert
	PortTimeout      time.Duration // TCP probe bound
	HandshakeTimeout time.Duration // DB_AUTH bound
	Driver           string        // pgx | pq
	PublicIPURL      string
	SlackWebhook     string

	PublicAPIKeys  []string
	AdminAPIKeys   []string
	PublicRPM      int
	PublicBurst    int
	AllowedOrigins []string
}

func FromEnv() Config {
	// Bind address (Windows-friendly default)
	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	journalFile := os.Getenv("DIAG_LOG_FILE")
	if journalFile == "" {
		journalFile = journal.DefaultFile
	}

	cert := os.Getenv("PG_SSLROOTCERT")
	if cert == "" {
		cert = domain.DefaultCertBundle
	}

	driver := strings.ToLower(strings.TrimSpace(os.Getenv("PG_DRIVER")))
	if driver != probe.DriverPQ {
		driver = probe.DriverPgx
	}

	publicIPURL := os.Getenv("PUBLIC_IP_URL")
	if publicIPURL == "" {
		publicIPURL = netinfo.DefaultPublicIPURL
	}

	return Config{
		Addr:             addr,
		LogDir:           logDir,
		LogLevel:         logLevel,
		JournalFile:      journalFile,
		CertBundlePath:   cert,
		PortTimeout:      millis("PORT_TIMEOUT_MS", probe.DefaultPortTimeout),
		HandshakeTimeout: millis("HANDSHAKE_TIMEOUT_MS", probe.DefaultHandshakeTimeout),
		Driver:           driver,
		PublicIPURL:      publicIPURL,
		SlackWebhook:     os.Getenv("SLACK_WEBHOOK_URL"),
		PublicAPIKeys:    list("PUBLIC_API_KEYS"),
		AdminAPIKeys:     list("ADMIN_API_KEYS"),
		PublicRPM:        positive("PUBLIC_RPM", 30),
		PublicBurst:      positive("PUBLIC_BURST", 5),
		AllowedOrigins:   list("ALLOWED_ORIGINS"),
	}
}

// Defaults returns the form defaults a shell should start from.
func (c Config) Defaults() domain.ConnectionTarget {
	return domain.ConnectionTarget{
		Port:           domain.DefaultPort,
		TLSMode:        domain.DefaultTLSMode,
		CertBundlePath: c.CertBundlePath,
	}
}

func millis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func positive(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func list(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
