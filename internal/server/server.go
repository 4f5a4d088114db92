// Package server exposes the evidence service over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wheelvet-project/wheelvet/internal/attestation"
	"github.com/wheelvet-project/wheelvet/internal/sbom"
	"github.com/wheelvet-project/wheelvet/internal/service"
	"github.com/wheelvet-project/wheelvet/internal/storage"
	"github.com/wheelvet-project/wheelvet/internal/verifier"
	"github.com/wheelvet-project/wheelvet/internal/wheel"
)

// Server routes HTTP requests to the aggregation layer.
type Server struct {
	svc     *service.Service
	version string
	logger  *slog.Logger
}

// New creates the HTTP server.
func New(svc *service.Service, version string, logger *slog.Logger) *Server {
	return &Server{svc: svc, version: version, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/status", s.handleAuthStatus)
		r.Post("/auth/login", s.handleLogin)

		r.Post("/verify", s.handleVerify)
		r.Post("/verify/verbose", s.handleVerifyVerbose)
		r.Get("/verify/logs", s.handleLogs)

		r.Route("/wheels/{name}/{version}", func(r chi.Router) {
			r.Get("/evidence", s.handleWheelEvidence)
			r.Get("/digest", s.handleWheelDigest)
			r.Get("/contents", s.handleWheelContents)
			r.Get("/attestations", s.handleWheelAttestations)
			r.Get("/provenance", s.handleWheelProvenance)
		})

		r.Get("/sbom/{name}", s.handleSBOM)
		r.Get("/packages", s.handlePackages)
		r.Get("/runs", s.handleRuns)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Auth().Status())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Auth().StartLogin(r.Context()); err != nil && !errors.Is(err, service.ErrLoginActive) {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.svc.Auth().Status())
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.RunVerification(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleVerifyVerbose(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.RunVerbose(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"output": out})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Logs())
}

func (s *Server) handleWheelEvidence(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.WheelEvidence(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleWheelDigest(w http.ResponseWriter, r *http.Request) {
	digest, err := s.svc.WheelDigest(chi.URLParam(r, "name"), chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, digest)
}

func (s *Server) handleWheelContents(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.svc.WheelManifest(chi.URLParam(r, "name"), chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleWheelAttestations(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Attestations(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// handleWheelProvenance proxies the raw provenance document without decoding
// it, for consumers that want the undigested bundle.
func (s *Server) handleWheelProvenance(w http.ResponseWriter, r *http.Request) {
	body, provURL, err := s.svc.RawProvenance(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Provenance-URL", provURL)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Error("failed to write provenance body", "error", err)
	}
}

func (s *Server) handleSBOM(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.PackageSBOM(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.svc.Packages()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, packages)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.svc.RunHistory(limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*storage.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto the HTTP status taxonomy.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, wheel.ErrWheelNotFound),
		errors.Is(err, sbom.ErrPackageNotFound),
		errors.Is(err, sbom.ErrSBOMNotFound),
		errors.Is(err, attestation.ErrProvenanceNotFound),
		errors.Is(err, verifier.ErrNoWheels),
		errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, verifier.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, verifier.ErrMalformedOutput),
		errors.Is(err, wheel.ErrMalformedArchive),
		errors.Is(err, sbom.ErrMalformedSBOM),
		errors.Is(err, attestation.ErrDecode),
		errors.Is(err, attestation.ErrInvalidResponse):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
