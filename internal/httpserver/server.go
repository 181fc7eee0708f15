package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opsgrade/opsgrade/internal/assess"
	"github.com/opsgrade/opsgrade/internal/dispatch"
	"github.com/opsgrade/opsgrade/internal/models"
	"github.com/opsgrade/opsgrade/internal/results"
)

// Runner is the synchronous assessment entry point behind the front door.
type Runner interface {
	Run(ctx context.Context, subjectID, definitionID string) (models.AssessmentResult, error)
}

type Server struct {
	runner     Runner
	dispatcher *dispatch.Dispatcher
	results    results.Store
	verifier   Authenticator
}

// Authenticator guards mutating endpoints; nil disables auth (dev only).
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

func New(runner Runner, dispatcher *dispatch.Dispatcher, store results.Store, verifier Authenticator) *Server {
	return &Server{
		runner:     runner,
		dispatcher: dispatcher,
		results:    store,
		verifier:   verifier,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.verifier != nil {
			r.Use(s.verifier.Middleware)
		}
		r.Post("/assessments/run", s.handleRun)
		r.Post("/dispatch", s.handleDispatch)
		r.Get("/assessments/{subjectID}/{definitionID}/latest", s.handleLatest)
	})

	return r
}

type runRequest struct {
	SubjectID    string `json:"subjectId"`
	DefinitionID string `json:"definitionId"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SubjectID == "" || req.DefinitionID == "" {
		respondError(w, http.StatusBadRequest, "subjectId and definitionId required")
		return
	}
	result, err := s.runner.Run(r.Context(), req.SubjectID, req.DefinitionID)
	if err != nil {
		respondRunFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var ev dispatch.TriggerEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.dispatcher.Dispatch(r.Context(), ev)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	definitionID := chi.URLParam(r, "definitionID")
	result, err := s.results.Latest(r.Context(), subjectID, definitionID)
	if err != nil {
		if errors.Is(err, results.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no assessment result recorded")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondRunFailure maps the terminal failure taxonomy onto HTTP statuses.
func respondRunFailure(w http.ResponseWriter, err error) {
	code := assess.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case assess.CodeDefinitionNotFound:
		status = http.StatusNotFound
	case assess.CodeDefinitionInactive:
		status = http.StatusConflict
	case assess.CodeAccessDenied:
		status = http.StatusForbidden
	case assess.CodeBundleUnavailable, assess.CodeBundleInvalid:
		status = http.StatusBadGateway
	}
	respondJSON(w, status, map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
