// Package web serves the review dashboard.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/bassamadnan/replybot/review"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionCookie  = "replybot_session"
	refreshSeconds = 30
)

// Poller is told to poll right away when monitoring starts.
type Poller interface {
	Trigger()
}

// Info is the account summary shown in the sidebar.
type Info struct {
	Account  string
	Target   string
	Interval time.Duration
}

type Server struct {
	registry *review.Registry
	poller   Poller
	info     Info
	log      zerolog.Logger
	tmpl     *template.Template
	handler  http.Handler
}

func New(registry *review.Registry, poller Poller, info Info, log zerolog.Logger) (*Server, error) {
	tmpl, err := template.New("dashboard.html").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	s := &Server{
		registry: registry,
		poller:   poller,
		info:     info,
		log:      log.With().Str("component", "web").Logger(),
		tmpl:     tmpl,
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("POST /monitoring/start", s.handleStart)
	mux.HandleFunc("POST /monitoring/stop", s.handleStop)
	mux.HandleFunc("POST /poll", s.handlePoll)
	mux.HandleFunc("POST /emails/{id}/draft", s.handleGenerate)
	mux.HandleFunc("POST /draft/regenerate", s.handleRegenerate)
	mux.HandleFunc("POST /draft/send", s.handleSend)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	var h http.Handler = s.sameOrigin(mux)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("took", d).
			Msg("request")
	})(h)
	return hlog.NewHandler(s.log)(h)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", "http://"+addr).Msg("dashboard listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down dashboard: %w", err)
		}
		return nil
	}
}

// existing returns the requesting browser's loop if it already has one.
// Requests without a session cookie never create a loop here.
func (s *Server) existing(r *http.Request) (*review.Loop, bool) {
	if s.registry.Scope() != review.ScopeBrowser {
		return s.registry.Get(""), true
	}
	key, ok := sessionKey(r)
	if !ok {
		return nil, false
	}
	return s.registry.Lookup(key)
}

// session returns the loop for the requesting browser, creating it and
// setting the session cookie when the registry is browser scoped.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *review.Loop {
	if s.registry.Scope() != review.ScopeBrowser {
		return s.registry.Get("")
	}
	if key, ok := sessionKey(r); ok {
		return s.registry.Get(key)
	}
	key := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s.registry.Get(key)
}

func sessionKey(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// sameOrigin rejects state-changing requests sent by another site.
func (s *Server) sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if !fromSameOrigin(r) {
			hlog.FromRequest(r).Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("origin", r.Header.Get("Origin")).
				Str("fetch_site", r.Header.Get("Sec-Fetch-Site")).
				Msg("cross-origin request rejected")
			http.Error(w, "cross-origin request rejected", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func fromSameOrigin(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Site") {
	case "", "same-origin", "none":
	default:
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

var funcs = template.FuncMap{
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"minutes": func(d time.Duration) int {
		return int(d / time.Minute)
	},
}
