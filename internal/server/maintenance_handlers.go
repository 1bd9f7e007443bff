package server

import (
	"encoding/json"
	stderrors "errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/domain/errors"
)

// healthHandler returns server health status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   app.GetVersion(),
		"scheduler": s.scheduler.IsRunning(),
	}, http.StatusOK)
}

// infoHandler returns server information
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]interface{}{
		"name":        app.AppName,
		"description": app.AppDescription,
		"version":     app.GetVersion(),
		"port":        s.port,
		"base_path":   s.config.BasePath,
		"scopes":      entities.Scopes,
	}, http.StatusOK)
}

func scopeFrom(r *http.Request) (entities.Scope, bool) {
	scope := entities.Scope(mux.Vars(r)["scope"])
	return scope, scope.IsValid()
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Craftdeck-Actor"); actor != "" {
		return actor
	}
	return "api"
}

// getStateHandler returns the full maintenance state for a scope.
func (s *Server) getStateHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		s.errorResponse(w, "unknown scope", http.StatusNotFound)
		return
	}

	state, err := s.maintenance.GetState(r.Context(), scope)
	if err != nil {
		s.maintenanceError(w, err)
		return
	}
	s.jsonResponse(w, state, http.StatusOK)
}

// getHistoryHandler lists run history, newest first.
func (s *Server) getHistoryHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		s.errorResponse(w, "unknown scope", http.StatusNotFound)
		return
	}

	limit := app.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := s.maintenance.History(r.Context(), scope, limit)
	if err != nil {
		s.maintenanceError(w, err)
		return
	}
	s.jsonResponse(w, map[string]interface{}{
		"scope": scope,
		"runs":  history,
	}, http.StatusOK)
}

// previewHandler evaluates the scope without side effects. An optional
// rule-set override in the body supports edit-time previews.
func (s *Server) previewHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		s.errorResponse(w, "unknown scope", http.StatusNotFound)
		return
	}

	var body struct {
		Rules *entities.RuleSet `json:"rules"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.errorResponse(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	selection, err := s.maintenance.Preview(r.Context(), scope, body.Rules)
	if err != nil {
		s.maintenanceError(w, err)
		return
	}
	s.jsonResponse(w, selection, http.StatusOK)
}

// saveRulesHandler validates and persists a scope's rule set.
func (s *Server) saveRulesHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		s.errorResponse(w, "unknown scope", http.StatusNotFound)
		return
	}

	var rules entities.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		s.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	state, verrs, err := s.maintenance.SaveRules(r.Context(), scope, rules, actorFrom(r))
	if len(verrs) > 0 {
		fields := make([]map[string]string, 0, len(verrs))
		for _, v := range verrs {
			fields = append(fields, map[string]string{"field": v.Field, "message": v.Message})
		}
		s.jsonResponse(w, map[string]interface{}{
			"error":   true,
			"message": "validation failed",
			"fields":  fields,
		}, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.maintenanceError(w, err)
		return
	}
	s.jsonResponse(w, state, http.StatusOK)
}

// runRulesHandler executes or previews a rule-driven run.
func (s *Server) runRulesHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		s.errorResponse(w, "unknown scope", http.StatusNotFound)
		return
	}

	var body struct {
		DryRun  bool   `json:"dry_run"`
		RuleKey string `json:"rule_key"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.errorResponse(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	selection, err := s.maintenance.RunRules(r.Context(), scope, body.DryRun, body.RuleKey, actorFrom(r))
	if err != nil {
		s.maintenanceError(w, err)
		return
	}
	s.jsonResponse(w, selection, http.StatusOK)
}

// manualDeleteHandler deletes exactly the operator's selected paths.
func (s *Server) manualDeleteHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		s.errorResponse(w, "unknown scope", http.StatusNotFound)
		return
	}

	var body struct {
		Paths  []string `json:"paths"`
		DryRun bool     `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Paths) == 0 {
		s.errorResponse(w, "no paths selected", http.StatusBadRequest)
		return
	}

	selection, err := s.maintenance.ManualDelete(r.Context(), scope, body.Paths, body.DryRun, actorFrom(r))
	if err != nil {
		if stderrors.Is(err, errors.ErrIneligibleSelection) {
			s.jsonResponse(w, map[string]interface{}{
				"error":     true,
				"message":   "selection contains ineligible artifacts",
				"selection": selection,
			}, http.StatusConflict)
			return
		}
		s.maintenanceError(w, err)
		return
	}
	s.jsonResponse(w, selection, http.StatusOK)
}

// ackMissedHandler clears the scope's missed runs.
func (s *Server) ackMissedHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		s.errorResponse(w, "unknown scope", http.StatusNotFound)
		return
	}

	missed, err := s.maintenance.AcknowledgeMissed(r.Context(), scope, actorFrom(r))
	if err != nil {
		s.maintenanceError(w, err)
		return
	}
	s.jsonResponse(w, missed, http.StatusOK)
}

// maintenanceError maps domain errors onto HTTP status codes.
func (s *Server) maintenanceError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, errors.ErrRunInProgress):
		s.errorResponse(w, "a cleanup run is already in progress", http.StatusConflict)
	case stderrors.Is(err, errors.ErrRulesDisabled):
		s.errorResponse(w, "rule-based cleanup is disabled for this scope", http.StatusConflict)
	case stderrors.Is(err, errors.ErrScopeInvalid):
		s.errorResponse(w, "unknown scope", http.StatusNotFound)
	case stderrors.Is(err, errors.ErrInvalidInput):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		s.errorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}

// Response helpers

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    statusCode,
	}
	s.jsonResponse(w, response, statusCode)
}
