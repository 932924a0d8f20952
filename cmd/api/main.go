package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pgdiag/internal/config"
	"github.com/hamed0406/pgdiag/internal/diag"
	"github.com/hamed0406/pgdiag/internal/httpapi"
	apimw "github.com/hamed0406/pgdiag/internal/httpapi/middleware"
	"github.com/hamed0406/pgdiag/internal/journal"
	"github.com/hamed0406/pgdiag/internal/logging"
	"github.com/hamed0406/pgdiag/internal/metrics"
	"github.com/hamed0406/pgdiag/internal/netinfo"
	"github.com/hamed0406/pgdiag/internal/notify"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	jr, closer, err := journal.Open(cfg.JournalFile)
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()

	rec := metrics.NewRecorder()
	o := diag.New(logger, jr, cfg.Driver, cfg.PortTimeout, cfg.HandshakeTimeout)
	o.Network = netinfo.New(cfg.PublicIPURL)
	o.Observer = rec

	api := httpapi.NewServer(logger, o, httpapi.NewSession(cfg.Defaults()))
	api.Observer = rec
	api.Metrics = rec.Handler()
	api.Notifier = notify.New(logger, cfg.SlackWebhook)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.RouterConfig{
			Keys:           apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
			AllowedOrigins: cfg.AllowedOrigins,
			PublicRPM:      cfg.PublicRPM,
			PublicBurst:    cfg.PublicBurst,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		// a full run can take port + handshake timeouts plus traceroute
		WriteTimeout: 3 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("driver", cfg.Driver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("api_listen_error", zap.Error(err))
		log.Fatal(err)
	}
	logger.Info("api_stopped")
}
