// internal/controller/run_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/model"
	"github.com/leadpilot/crm-backend/internal/pacing"
	"github.com/leadpilot/crm-backend/internal/service"
)

type RunController struct {
	RunService *service.RunService
}

func (c *RunController) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name       string               `json:"name"`
		TemplateID int                  `json:"template_id"`
		Filters    model.FilterCriteria `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	run, err := c.RunService.CreateRun(body.Name, body.TemplateID, body.Filters)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

func (c *RunController) PrepareRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	result, err := c.RunService.PrepareRun(runID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (c *RunController) DispatchRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var body struct {
		Pacing *pacing.Config `json:"pacing"`
	}
	// Dispatch with an empty body uses the default pacing.
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
	}

	result, err := c.RunService.DispatchRun(r.Context(), runID, body.Pacing)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (c *RunController) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	details, err := c.RunService.GetRunDetailsWithStats(runID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

func (c *RunController) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	runs, pagination, err := c.RunService.ListRuns(page, pageSize, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       runs,
		"pagination": pagination,
	})
}

func (c *RunController) PreviewMessage(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var body struct {
		LeadID int `json:"lead_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rendered, err := c.RunService.PreviewMessage(runID, body.LeadID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rendered_message": rendered,
		"lead_id":          body.LeadID,
	})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		runNotFound      *appErrors.ErrRunNotFound
		templateNotFound *appErrors.ErrTemplateNotFound
		leadNotFound     *appErrors.ErrLeadNotFound
		validation       *appErrors.ValidationError
		transition       *appErrors.ErrIllegalTransition
		upstream         *appErrors.UpstreamError
	)
	switch {
	case errors.As(err, &runNotFound), errors.As(err, &templateNotFound), errors.As(err, &leadNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &transition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &upstream):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
