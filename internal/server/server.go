// Package server publishes the reconciled guide over HTTP and keeps it fresh
// with a background refresh loop. The handlers never compute anything; they
// serve whatever the last successful pipeline run left on disk, so a failed
// refresh degrades to stale data instead of an outage.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/a-curious-pear/peartv/internal/config"
	"github.com/a-curious-pear/peartv/internal/log"
	"github.com/a-curious-pear/peartv/internal/pipeline"
	"github.com/a-curious-pear/peartv/internal/store"
)

// Server serves the output document and re-runs the pipeline on an interval.
type Server struct {
	Cfg *config.Config

	kick chan struct{}
}

func New(cfg *config.Config) *Server {
	return &Server{Cfg: cfg, kick: make(chan struct{}, 1)}
}

// Run blocks until ctx is cancelled or the listener fails. The HTTP listener
// starts before the first refresh so a previously generated document is
// served immediately after a restart.
func (s *Server) Run(ctx context.Context) error {
	logger := log.WithComponent("server")

	go func() {
		s.refresh(ctx, logger, pipeline.Options{})
		s.refreshLoop(ctx, logger)
	}()

	srv := &http.Server{Addr: s.Cfg.ListenAddr, Handler: s.Routes()}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("shutdown incomplete")
		}
		<-serverErr
		return nil
	}
}

func (s *Server) refreshLoop(ctx context.Context, logger zerolog.Logger) {
	every := s.Cfg.RefreshEvery
	if every <= 0 {
		every = 6 * time.Hour
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(every):
			s.refresh(ctx, logger, pipeline.Options{})
		case <-s.kick:
			s.refresh(ctx, logger, pipeline.Options{Force: true})
		}
	}
}

func (s *Server) refresh(ctx context.Context, logger zerolog.Logger, opts pipeline.Options) {
	if ctx.Err() != nil {
		return
	}
	if _, err := pipeline.Run(ctx, s.Cfg, opts); err != nil {
		logger.Error().Err(err).Msg("refresh failed; previous document stays live")
	}
}

// Routes builds the HTTP surface. Split out from Run so tests can mount it
// on a httptest server.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.WithComponent("http")))
	r.Use(middleware.Recoverer)

	r.Get("/guide.xml", s.serveGuide)
	r.Get("/status.json", s.serveStatus)
	r.Get("/healthz", s.serveHealth)
	r.Post("/refresh", s.serveRefresh)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) serveGuide(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.Cfg.OutputPath); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no guide generated yet"})
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	http.ServeFile(w, r, s.Cfg.OutputPath)
}

func (s *Server) serveStatus(w http.ResponseWriter, _ *http.Request) {
	st, ok := store.LoadRunState(store.RunStatePath(s.Cfg.CacheDir))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs recorded"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// serveHealth reports ok as soon as a document is servable; a failed refresh
// with an older document still on disk stays healthy.
func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	if _, err := os.Stat(s.Cfg.OutputPath); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	body := map[string]any{"status": "ok"}
	if st, ok := store.LoadRunState(store.RunStatePath(s.Cfg.CacheDir)); ok && st.Outcome == "ok" {
		body["channels"] = st.ChannelsWritten
		body["programmes"] = st.ProgrammesWritten
		body["generated"] = st.FinishedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) serveRefresh(w http.ResponseWriter, _ *http.Request) {
	select {
	case s.kick <- struct{}{}:
	default: // a refresh is already queued
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}
