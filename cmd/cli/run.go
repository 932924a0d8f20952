package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/hamed0406/pgdiag/internal/config"
	"github.com/hamed0406/pgdiag/internal/diag"
	"github.com/hamed0406/pgdiag/internal/domain"
	"github.com/hamed0406/pgdiag/internal/journal"
	"github.com/hamed0406/pgdiag/internal/logging"
	"github.com/hamed0406/pgdiag/internal/netinfo"
	"github.com/hamed0406/pgdiag/internal/notify"
	"github.com/hamed0406/pgdiag/internal/render"
)

type runFlags struct {
	host, dbname, user, sslmode, sslrootcert string
	port                                     int
	ping, traceroute, noPublicIP             bool
	driver, output                           string
	profile, saveProfile                     string
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cfg := config.FromEnv()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every check once and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, cfg, *f)
		},
	}
	bindRunFlags(cmd, f, cfg)
	return cmd
}

func bindRunFlags(cmd *cobra.Command, f *runFlags, cfg config.Config) {
	fl := cmd.Flags()
	fl.StringVar(&f.host, "host", "", "database host")
	fl.IntVar(&f.port, "port", domain.DefaultPort, "database port")
	fl.StringVar(&f.dbname, "dbname", "", "database name")
	fl.StringVar(&f.user, "user", "", "user name (password from PGPASSWORD or prompt)")
	fl.StringVar(&f.sslmode, "sslmode", string(domain.DefaultTLSMode), "disable|require|verify-ca|verify-full")
	fl.StringVar(&f.sslrootcert, "sslrootcert", cfg.CertBundlePath, "root certificate bundle (env PG_SSLROOTCERT)")
	fl.BoolVar(&f.ping, "ping", false, "also run ping")
	fl.BoolVar(&f.traceroute, "traceroute", false, "also run traceroute")
	fl.BoolVar(&f.noPublicIP, "no-public-ip", false, "skip the public IP lookup")
	fl.StringVar(&f.driver, "driver", cfg.Driver, "handshake driver (pgx|pq)")
	fl.StringVarP(&f.output, "output", "o", render.FormatTable, "output format (table|json)")
	fl.StringVar(&f.profile, "profile", "", "load connection settings from a YAML profile")
	fl.StringVar(&f.saveProfile, "save-profile", "", "write the connection settings (without password) to a YAML profile")
}

func runDiagnose(cmd *cobra.Command, cfg config.Config, f runFlags) error {
	target, err := buildTarget(cmd, cfg, f)
	if err != nil {
		return err
	}
	in := cmd.InOrStdin()
	if target.Host == "" {
		if target.Host, err = prompt(in, cmd.ErrOrStderr(), "Host: "); err != nil {
			return err
		}
	}
	if target.Password == "" && target.Username != "" {
		target.Password = readPassword(cmd.ErrOrStderr())
	}
	if err := target.Validate(); err != nil {
		return err
	}
	if f.saveProfile != "" {
		if err := config.SaveProfile(f.saveProfile, target); err != nil {
			return err
		}
	}

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	jr, closer, err := journal.Open(cfg.JournalFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	out := cmd.OutOrStdout()
	o := diag.New(logger, jr, f.driver, cfg.PortTimeout, cfg.HandshakeTimeout)
	if !f.noPublicIP {
		o.Network = netinfo.New(cfg.PublicIPURL)
	}
	if f.output == render.FormatTable {
		o.OnResult = func(r domain.ProbeResult) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%-8s %s\n", r.Step, render.Outcome(r.Success))
		}
		o.OnLine = func(name, line string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", name, line)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rep := o.Run(ctx, target, diag.Options{RunPing: f.ping, RunTraceroute: f.traceroute})
	if err := render.Report(out, rep, f.output); err != nil {
		return err
	}

	if !rep.Succeeded() {
		nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		title, text := notify.Summary(rep)
		if err := notify.New(logger, cfg.SlackWebhook).Send(nctx, title, text); err != nil {
			logger.Warn("notify_error", zap.Error(err))
		}
		return errChecksFailed
	}
	return nil
}

// buildTarget layers flags over an optional profile over the defaults.
func buildTarget(cmd *cobra.Command, cfg config.Config, f runFlags) (domain.ConnectionTarget, error) {
	t := cfg.Defaults()
	if f.profile != "" {
		p, err := config.LoadProfile(f.profile)
		if err != nil {
			return t, err
		}
		t = p.WithDefaults()
	}

	changed := cmd.Flags().Changed
	if changed("host") || f.host != "" {
		t.Host = strings.TrimSpace(f.host)
	}
	if changed("port") || f.profile == "" {
		t.Port = f.port
	}
	if changed("dbname") || f.profile == "" {
		t.Database = f.dbname
	}
	if changed("user") || f.profile == "" {
		t.Username = f.user
	}
	if changed("sslmode") || f.profile == "" {
		mode, err := domain.ParseTLSMode(f.sslmode)
		if err != nil {
			return t, err
		}
		t.TLSMode = mode
	}
	if changed("sslrootcert") || f.profile == "" {
		t.CertBundlePath = f.sslrootcert
	}
	t.Password = os.Getenv("PGPASSWORD")
	return t, nil
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func readPassword(out io.Writer) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}
	fmt.Fprint(out, "Password: ")
	b, _ := term.ReadPassword(fd)
	fmt.Fprintln(out)
	return string(b)
}
