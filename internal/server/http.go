// Package server exposes the form-fill pipeline over an HTTP JSON API.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/a3tai/pdf-form-filler/internal/fill"
)

// Server wires the fill service into HTTP handlers.
type Server struct {
	svc    *fill.Service
	logger *slog.Logger
}

// New creates an HTTP server over the fill service.
func New(svc *fill.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// FormFillRequest is the body for POST /api/form-fill.
type FormFillRequest struct {
	UserID  string `json:"userId"`
	FormURL string `json:"formUrl"`
}

// FormFillResponse is the job payload returned by both endpoints.
type FormFillResponse struct {
	JobID         string             `json:"jobId"`
	Status        string             `json:"status"`
	TotalFields   int                `json:"totalFields"`
	FilledFields  int                `json:"filledFields"`
	SkippedFields int                `json:"skippedFields"`
	ErrorFields   int                `json:"errorFields"`
	Fields        []fill.FieldResult `json:"fields"`
	FilledFormURL string             `json:"filledFormUrl,omitempty"`
	Message       string             `json:"message,omitempty"`
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/api/form-fill", s.handleStartFormFill)
	r.Get("/api/form-fill/{jobId}", s.handleGetFormFill)
	r.Get("/healthz", s.handleHealth)
	return r
}

// handleStartFormFill launches a form-fill job.
// POST /api/form-fill
func (s *Server) handleStartFormFill(w http.ResponseWriter, r *http.Request) {
	var req FormFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.FormURL == "" {
		http.Error(w, "userId and formUrl required", http.StatusBadRequest)
		return
	}

	view, err := s.svc.Start(r.Context(), req.UserID, req.FormURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusAccepted, payloadFromView(view))
}

// handleGetFormFill returns the current job state for polling.
// GET /api/form-fill/{jobId}
func (s *Server) handleGetFormFill(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	view, err := s.svc.Get(jobID)
	if err != nil {
		if errors.Is(err, fill.ErrJobNotFound) {
			http.Error(w, "Unknown form fill job", http.StatusNotFound)
			return
		}
		s.logger.Error("http.form_fill.get_error", "job_id", jobID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, payloadFromView(view))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http.encode_error", "error", err)
	}
}

func payloadFromView(view *fill.JobView) FormFillResponse {
	fields := view.Fields
	if fields == nil {
		fields = []fill.FieldResult{}
	}
	return FormFillResponse{
		JobID:         view.JobID,
		Status:        string(view.Status),
		TotalFields:   view.TotalFields,
		FilledFields:  view.FilledFields,
		SkippedFields: view.SkippedFields,
		ErrorFields:   view.ErrorFields,
		Fields:        fields,
		FilledFormURL: view.FilledFormURL,
		Message:       view.Message,
	}
}
