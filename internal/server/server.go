// Package server wires the HTTP API: authentication, shipment operations,
// trash, tracking links, export and observability endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/andrescamacho/guiatrack/internal/auth"
	"github.com/andrescamacho/guiatrack/internal/config"
	"github.com/andrescamacho/guiatrack/internal/metrics"
	"github.com/andrescamacho/guiatrack/internal/model"
	"github.com/andrescamacho/guiatrack/internal/service"
	"github.com/andrescamacho/guiatrack/internal/signing"
)

// Server hosts the HTTP handlers. It stitches together configuration, the
// shipment service, the identity provider and the tracking-link signer.
type Server struct {
	cfg    *config.Config
	svc    *service.Service
	auth   *auth.Provider
	signer *signing.Signer
	log    *logrus.Logger
}

// New creates a configured server.
func New(cfg *config.Config, svc *service.Service, provider *auth.Provider, signer *signing.Signer, log *logrus.Logger) *Server {
	return &Server{cfg: cfg, svc: svc, auth: provider, signer: signer, log: log}
}

// Serve launches the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.corsMiddleware(s.loggingMiddleware(metrics.Middleware(s.routes()))),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.log.WithField("address", s.cfg.Address).Info("api listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/auth/register", s.handleRegister)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/shipments", s.handleShipments)
	mux.HandleFunc("/shipments/export", s.handleExport)
	mux.HandleFunc("/shipments/", s.handleShipmentRoute)
	mux.HandleFunc("/trash", s.handleTrash)
	mux.HandleFunc("/trash/", s.handleTrashRoute)
	mux.HandleFunc("/my/shipments", s.handleMyShipments)
	mux.HandleFunc("/track", s.handleTrack)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal extracts and verifies the bearer token.
func (s *Server) principal(r *http.Request) (model.Principal, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return model.Principal{}, auth.ErrInvalidToken
	}
	return s.auth.VerifyToken(header[len(prefix):])
}

// requireStaff rejects the request unless the caller holds the admin role.
func (s *Server) requireStaff(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	principal, err := s.principal(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return model.Principal{}, false
	}
	if principal.Role != model.RoleAdmin {
		respondError(w, http.StatusForbidden, "staff access required")
		return model.Principal{}, false
	}
	return principal, true
}

// requireUser accepts any authenticated principal.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	principal, err := s.principal(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return model.Principal{}, false
	}
	return principal, true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps core sentinels onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDuplicateID), errors.Is(err, service.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}
