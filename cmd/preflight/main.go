// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hamed0406/pgdiag/internal/config"
	"github.com/hamed0406/pgdiag/internal/domain"
	"github.com/hamed0406/pgdiag/internal/probe"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	if err := probe.ValidateCertPath(domain.TLSVerifyFull, cfg.CertBundlePath); err != nil {
		fail(err.Error() + " (set PG_SSLROOTCERT or download the RDS bundle).")
	} else {
		ok("root certificate bundle: " + cfg.CertBundlePath)
	}

	if err := writable(cfg.LogDir); err != nil {
		fail("LOG_DIR not writable: " + err.Error())
	} else {
		ok("LOG_DIR=" + cfg.LogDir)
	}
	if err := writable(filepath.Dir(cfg.JournalFile)); err != nil {
		fail("DIAG_LOG_FILE directory not writable: " + err.Error())
	} else {
		ok("DIAG_LOG_FILE=" + cfg.JournalFile)
	}

	if strings.TrimSpace(os.Getenv("PGPASSWORD")) != "" {
		warn("PGPASSWORD is set in the environment; prefer the interactive prompt on shared machines.")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS", "ALLOWED_ORIGINS"} {
		if strings.Contains(os.Getenv(name), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}
	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS empty; any API caller may run ping/traceroute on this host.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("no API keys configured; /api/diagnose is open to anyone who can reach " + cfg.Addr)
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}

func writable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
