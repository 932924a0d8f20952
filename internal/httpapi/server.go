package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/pgdiag/internal/diag"
	"github.com/hamed0406/pgdiag/internal/domain"
	apimw "github.com/hamed0406/pgdiag/internal/httpapi/middleware"
	"github.com/hamed0406/pgdiag/internal/notify"
)

type Diagnoser interface {
	Run(ctx context.Context, t domain.ConnectionTarget, opts diag.Options) *domain.DiagnosticReport
}

type RunObserver interface {
	ObserveRun(rep *domain.DiagnosticReport)
}

// sessionTTL is how long an idle caller's form fields are kept.
const sessionTTL = 12 * time.Hour

// Session holds the last submitted form fields per caller (API key, or
// client IP when anonymous) so a browser can re-render them. Callers never
// see each other's fields and the password is never kept.
type Session struct {
	mu       sync.Mutex
	defaults domain.ConnectionTarget
	m        map[string]*sessionEntry
	swept    time.Time
	now      func() time.Time
}

type sessionEntry struct {
	target domain.ConnectionTarget
	opts   diag.Options
	seen   time.Time
}

func NewSession(defaults domain.ConnectionTarget) *Session {
	defaults.Password = ""
	return &Session{
		defaults: defaults,
		m:        make(map[string]*sessionEntry),
		swept:    time.Now(),
		now:      time.Now,
	}
}

// Get returns the caller's last fields, or the defaults for a new caller.
func (s *Session) Get(caller string) (domain.ConnectionTarget, diag.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.m[caller]; e != nil {
		return e.target, e.opts
	}
	return s.defaults, diag.Options{}
}

func (s *Session) Remember(caller string, t domain.ConnectionTarget, o diag.Options) {
	t.Password = ""
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.swept) > sessionTTL {
		for k, e := range s.m {
			if now.Sub(e.seen) > sessionTTL {
				delete(s.m, k)
			}
		}
		s.swept = now
	}
	s.m[caller] = &sessionEntry{target: t, opts: o, seen: now}
}

type Server struct {
	Logger   *zap.Logger
	Diag     Diagnoser
	Session  *Session
	Notifier notify.Notifier
	Observer RunObserver
	Metrics  http.Handler
}

func NewServer(l *zap.Logger, d Diagnoser, sess *Session) *Server {
	return &Server{Logger: l, Diag: d, Session: sess}
}

type RouterConfig struct {
	Keys           apimw.Keys
	AllowedOrigins []string
	PublicRPM      int
	PublicBurst    int
}

func (s *Server) Router(rc RouterConfig) http.Handler {
	r := chi.NewRouter()
	if len(rc.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: rc.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	} else {
		r.Use(cors.AllowAll().Handler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.With(apimw.RequireAdmin(rc.Keys)).Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAny(rc.Keys))
		r.Get("/api/session", s.handleSession)
		r.With(apimw.RateLimit(rc.PublicRPM, rc.PublicBurst)).
			Post("/api/diagnose", s.handleDiagnose(rc.Keys))
	})

	return r
}

type diagnosePayload struct {
	Host          string  `json:"host"`
	Port          int     `json:"port"`
	Database      string  `json:"dbname"`
	User          string  `json:"user"`
	Password      string  `json:"password"`
	SSLMode       string  `json:"sslmode"`
	SSLRootCert   *string `json:"sslrootcert"`
	RunPing       bool    `json:"run_ping"`
	RunTraceroute bool    `json:"run_traceroute"`
}

type sessionView struct {
	Target  domain.ConnectionTarget `json:"target"`
	Options diag.Options            `json:"options"`
	Modes   []domain.TLSMode        `json:"sslmodes"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	t, o := s.Session.Get(apimw.CallerKey(r))
	writeJSON(w, http.StatusOK, sessionView{Target: t, Options: o, Modes: domain.TLSModes})
}

func (s *Server) handleDiagnose(keys apimw.Keys) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p diagnosePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "bad payload")
			return
		}

		caller := apimw.CallerKey(r)
		t, err := s.targetFrom(caller, p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts := diag.Options{RunPing: p.RunPing, RunTraceroute: p.RunTraceroute}
		// ping and traceroute spawn processes on this host
		if (opts.RunPing || opts.RunTraceroute) && !apimw.IsAdmin(r, keys) {
			writeError(w, http.StatusForbidden, "ping/traceroute require an admin key")
			return
		}
		s.Session.Remember(caller, t, opts)

		rep := s.Diag.Run(r.Context(), t, opts)
		if s.Observer != nil {
			s.Observer.ObserveRun(rep)
		}
		s.Logger.Info("diagnose_request",
			zap.String("run_id", rep.RunID),
			zap.String("target", t.String()),
			zap.Bool("ok", rep.Succeeded()),
		)
		if !rep.Succeeded() && s.Notifier != nil {
			go s.notify(rep)
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) targetFrom(caller string, p diagnosePayload) (domain.ConnectionTarget, error) {
	defaults, _ := s.Session.Get(caller)
	mode, err := domain.ParseTLSMode(p.SSLMode)
	if err != nil {
		return domain.ConnectionTarget{}, err
	}
	t := domain.ConnectionTarget{
		Host:           strings.TrimSpace(p.Host),
		Port:           p.Port,
		Database:       strings.TrimSpace(p.Database),
		Username:       strings.TrimSpace(p.User),
		Password:       p.Password,
		TLSMode:        mode,
		CertBundlePath: defaults.CertBundlePath,
	}
	if p.SSLRootCert != nil {
		t.CertBundlePath = strings.TrimSpace(*p.SSLRootCert)
	}
	t = t.WithDefaults()
	return t, t.Validate()
}

func (s *Server) notify(rep *domain.DiagnosticReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	title, text := notify.Summary(rep)
	if err := s.Notifier.Send(ctx, title, text); err != nil {
		s.Logger.Warn("notify_error", zap.String("run_id", rep.RunID), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
