// Package api serves the volume actions over HTTP and pushes resource events
// to UI clients over a websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voltrack/internal/actions"
	"voltrack/internal/metrics"
	"voltrack/internal/syncable"
)

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Addr string
	Env  *actions.Env
	// Registry defaults to actions.DefaultRegistry.
	Registry *actions.Registry
	// Hub enables the /ws event stream when set.
	Hub *Hub
	// Sync enables the /api/sync endpoints when set.
	Sync *syncable.Registry
	// RateLimit caps mutating requests per client per minute; 0 disables it.
	RateLimit int
	// TrustedProxies may set X-Forwarded-For and X-Real-IP.
	TrustedProxies []netip.Prefix
}

// Server is the HTTP front end.
type Server struct {
	env      *actions.Env
	registry *actions.Registry
	hub      *Hub
	sync     *syncable.Registry
	router   chi.Router
	http     *http.Server
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.Registry == nil {
		opts.Registry = actions.DefaultRegistry()
	}
	s := &Server{env: opts.Env, registry: opts.Registry, hub: opts.Hub, sync: opts.Sync}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(routePattern))
	r.Use(cors)

	limit := func(h http.Handler) http.Handler { return h }
	if opts.RateLimit > 0 {
		limit = NewRateLimiter(opts.RateLimit, time.Minute, opts.TrustedProxies...).Middleware
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/volumes", s.handleListVolumes)
		r.Get("/actions", s.handleListActions)
		r.With(limit).Post("/actions/{kind}", s.handleAction)
		if s.sync != nil {
			r.Get("/sync", s.handleSyncModels)
			r.Get("/sync/{model}", s.handleSyncQuery)
			r.With(limit).Post("/sync/changes", s.handleSyncApply)
		}
	})
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleConnection)
	}

	s.router = r
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("api: listening")
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.CloseAll()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("api: stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListVolumes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := actions.ListInput{
		TrackedOnly:  q.Get("tracked") == "true",
		Type:         q.Get("type"),
		CloneCapable: q.Get("clone") == "true",
	}
	raw, _ := json.Marshal(input)
	s.dispatch(w, r, actions.KindList, raw)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string][]string{"actions": s.registry.Kinds()})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		JSONError(w, string(actions.KindInvalidInput), "request body too large or unreadable", http.StatusBadRequest)
		return
	}
	s.dispatch(w, r, chi.URLParam(r, "kind"), body)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, kind string, input json.RawMessage) {
	out, err := s.registry.Dispatch(r.Context(), s.env, kind, input)
	if err != nil {
		ae := actions.FromError(err)
		JSONError(w, string(ae.Kind), ae.Message, statusFor(ae.Kind))
		return
	}
	JSONResponse(w, out)
}

func statusFor(kind actions.ErrorKind) int {
	switch kind {
	case actions.KindNotFound:
		return http.StatusNotFound
	case actions.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// requestLogger attaches a request-scoped logger to the context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := log.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

		ev := logger.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			ev = logger.WithLevel(zerolog.ErrorLevel)
		}
		ev.Int("status", ww.Status()).Dur("duration", time.Since(start)).Msg("request")
	})
}
