// Package server exposes an Orchestrator over HTTP.
//
// Routes:
//
//	GET  /api/dependencies     current dependency snapshot
//	GET  /api/versions/{name}  registry versions, newest first
//	POST /api/install          {"dependencies": {name: range}, "force": bool}
//	POST /api/invalidate       drop all cached state
//	GET  /ws                   host channel (version deltas, reload signals)
//	GET  /healthz
//
// The [Hub] behind /ws is the orchestrator's Notifier and Loader: hosts
// receive {"type":"versions"} deltas and {"type":"reload"} signals, and
// report what they have loaded with {"type":"loaded","modules":[...]}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/stacksync/pkg/buildinfo"
	sserrors "github.com/matzehuels/stacksync/pkg/errors"
	"github.com/matzehuels/stacksync/pkg/install"
)

// Server serves one project.
type Server struct {
	orch   *install.Orchestrator
	hub    *Hub
	logger *log.Logger
	router chi.Router
}

// New creates a server for orch and registers its hub as the orchestrator's
// notifier and loader.
func New(orch *install.Orchestrator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		orch:   orch,
		hub:    NewHub(logger.WithPrefix("ws")),
		logger: logger,
	}
	orch.SetNotifier(s.hub)
	orch.SetLoader(s.hub)
	s.router = s.routes()
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/ws", s.hub)
	r.Route("/api", func(r chi.Router) {
		r.Get("/dependencies", s.handleDependencies)
		r.Get("/versions/*", s.handleVersions)
		r.Post("/install", s.handleInstall)
		r.Post("/invalidate", s.handleInvalidate)
	})
	return r
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("server ready", "addr", ln.Addr().String(), "root", s.orch.Root())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": buildinfo.Version,
		"hosts":   s.hub.Count(),
	})
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if err := sserrors.ValidateNpmPackageName(name); err != nil {
		s.writeError(w, err)
		return
	}
	vs := s.orch.Versions(r.Context(), name)
	if vs == nil {
		s.writeError(w, sserrors.New(sserrors.ErrCodePackageNotFound, "no registry data for %s", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "versions": vs})
}

type installRequest struct {
	Dependencies map[string]string `json:"dependencies"`
	Force        bool              `json:"force"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessage))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, sserrors.Wrap(sserrors.ErrCodeInvalidInput, err, "invalid install request"))
		return
	}

	// The install outlives its request: a killed package manager would leave
	// node_modules behind the rewritten manifest.
	res, err := s.orch.Install(context.WithoutCancel(r.Context()), req.Dependencies, req.Force)
	var exitErr *sserrors.ExitError
	switch {
	case errors.As(err, &exitErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  exitErr.Error(),
			"code":   exitErr.Code(),
			"result": res,
		})
	case err != nil:
		s.writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleInvalidate(w http.ResponseWriter, _ *http.Request) {
	s.orch.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(sserrors.GetCode(err))
	if status >= 500 {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]any{
		"error": sserrors.UserMessage(err),
		"code":  sserrors.GetCode(err),
	})
}

func statusFor(code sserrors.Code) int {
	switch code {
	case sserrors.ErrCodeInvalidInput, sserrors.ErrCodeInvalidPackage, sserrors.ErrCodeInvalidRange:
		return http.StatusBadRequest
	case sserrors.ErrCodeNotFound, sserrors.ErrCodePackageNotFound, sserrors.ErrCodeManifestNotFound:
		return http.StatusNotFound
	case sserrors.ErrCodeInvalidManifest:
		return http.StatusUnprocessableEntity
	case sserrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case sserrors.ErrCodeNetwork, sserrors.ErrCodeInstallFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
