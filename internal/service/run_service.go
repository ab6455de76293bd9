// internal/service/run_service.go
package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/leadpilot/crm-backend/internal/dispatch"
	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/model"
	"github.com/leadpilot/crm-backend/internal/pacing"
	"github.com/leadpilot/crm-backend/internal/repository"
)

var validate = validator.New()

// RunService owns the run state machine: create -> prepare -> dispatch.
// Terminal statuses are written only by the reconciler.
type RunService struct {
	RunRepo      repository.RunRepositoryInterface
	RunItemRepo  repository.RunItemRepositoryInterface
	LeadRepo     repository.LeadRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	Materializer *Materializer
	Engine       dispatch.EngineClient
	CallbackURL  string
	WebhookToken string
}

type PrepareRunResult struct {
	RunID      string          `json:"run_id"`
	TotalLeads int             `json:"total_leads"`
	Status     model.RunStatus `json:"status"`
}

type DispatchRunResult struct {
	RunID      string          `json:"run_id"`
	TotalLeads int             `json:"total_leads"`
	Status     model.RunStatus `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
}

type RunDetails struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Status      model.RunStatus      `json:"status"`
	Filter      model.FilterCriteria `json:"filter"`
	TemplateID  int                  `json:"template_id"`
	TotalLeads  int                  `json:"total_leads"`
	SentCount   int                  `json:"sent_count"`
	FailedCount int                  `json:"failed_count"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   *time.Time           `json:"updated_at,omitempty"`
	Stats       map[string]int       `json:"stats"`
}

// CreateRun inserts a run in preparing with zero counts. No side effects
// elsewhere.
func (s *RunService) CreateRun(name string, templateID int, filter model.FilterCriteria) (*model.Run, error) {
	if strings.TrimSpace(name) == "" {
		return nil, appErrors.NewValidation("name", "must not be empty")
	}
	if templateID <= 0 {
		return nil, appErrors.NewValidation("templateId", "must reference a template")
	}
	if err := validate.Struct(filter); err != nil {
		return nil, appErrors.NewValidation("filters", err.Error())
	}

	if _, err := s.TemplateRepo.GetByID(templateID); err != nil {
		return nil, err
	}

	run := &model.Run{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     model.RunStatusPreparing,
		Filter:     filter,
		TemplateID: templateID,
	}
	if err := s.RunRepo.Create(run); err != nil {
		return nil, err
	}
	return run, nil
}

// PrepareRun selects leads with the stored filter, materializes one message
// per lead, and inserts pending run items in chunks. Prepare is only valid
// from preparing; the closing MarkPrepared compare-and-set wins over any
// concurrent duplicate invocation.
func (s *RunService) PrepareRun(runID string) (*PrepareRunResult, error) {
	run, err := s.RunRepo.GetByID(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != model.RunStatusPreparing {
		return nil, appErrors.NewIllegalTransition(runID, string(run.Status), string(model.RunStatusPrepared))
	}

	tmpl, err := s.TemplateRepo.GetByID(run.TemplateID)
	if err != nil {
		return nil, err
	}

	leads, err := s.LeadRepo.Select(run.Filter)
	if err != nil {
		return nil, err
	}

	err = ProcessBatch(leads, func(batch []model.Lead) error {
		for _, lead := range batch {
			message := s.Materializer.Materialize(tmpl, lead)
			if err := s.RunItemRepo.CreatePending(run.ID, lead.ID, message); err != nil {
				log.Println("⚠️ failed to create run item for lead", lead.ID, ":", err)
			}
		}
		return nil
	}, BatchOptions{
		OnProgress: func(processed, total int) {
			log.Printf("📦 Prepared %d/%d leads for run %s\n", processed, total, run.ID)
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.RunRepo.MarkPrepared(run.ID, len(leads)); err != nil {
		return nil, err
	}

	return &PrepareRunResult{
		RunID:      run.ID,
		TotalLeads: len(leads),
		Status:     model.RunStatusPrepared,
	}, nil
}

// DispatchRun ships the lead batch to the dispatcher engine. Leads are
// re-selected from the stored filter rather than read back from the run
// items Prepare wrote; the two lists can diverge if the lead store changed
// in between. The prepared -> sending transition happens before the engine
// call and acts as the per-run dispatch lease; an engine failure leaves the
// run in sending for a manual retry.
func (s *RunService) DispatchRun(ctx context.Context, runID string, pc *pacing.Config) (*DispatchRunResult, error) {
	run, err := s.RunRepo.GetByID(runID)
	if err != nil {
		return nil, err
	}

	tmpl, err := s.TemplateRepo.GetByID(run.TemplateID)
	if err != nil {
		return nil, err
	}

	cfg := pacing.Default()
	if pc != nil {
		cfg = *pc
		if err := validate.Struct(cfg); err != nil {
			return nil, appErrors.NewValidation("pacing", err.Error())
		}
	}

	leads, err := s.LeadRepo.Select(run.Filter)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	if err := s.RunRepo.MarkSending(run.ID, len(leads), startedAt); err != nil {
		return nil, err
	}

	persona := dispatch.DefaultPersona(cfg)
	persona.UseAIPersonalization = s.Materializer != nil && s.Materializer.UseAI

	payload := dispatch.BuildPayload(run, tmpl, leads, persona, cfg, s.CallbackURL, s.WebhookToken)
	if err := s.Engine.Dispatch(ctx, payload); err != nil {
		log.Println("⚠️ dispatch call failed for run", run.ID, ":", err)
		return nil, err
	}

	log.Printf("🚀 Dispatched run %s with %d leads\n", run.ID, len(leads))

	return &DispatchRunResult{
		RunID:      run.ID,
		TotalLeads: len(leads),
		Status:     model.RunStatusSending,
		StartedAt:  startedAt,
	}, nil
}

// PreviewMessage materializes a single lead's message without side effects.
func (s *RunService) PreviewMessage(runID string, leadID int) (string, error) {
	run, err := s.RunRepo.GetByID(runID)
	if err != nil {
		return "", err
	}

	tmpl, err := s.TemplateRepo.GetByID(run.TemplateID)
	if err != nil {
		return "", err
	}

	lead, err := s.LeadRepo.GetByID(leadID)
	if err != nil {
		return "", err
	}
	if lead == nil {
		return "", appErrors.NewLeadNotFound(leadID)
	}

	return s.Materializer.Materialize(tmpl, *lead), nil
}

// ListRuns fetches runs with pagination
func (s *RunService) ListRuns(page, pageSize int, status string) ([]model.Run, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.RunRepo.ListRuns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	runs := make([]model.Run, len(ptrs))
	for i, r := range ptrs {
		runs[i] = *r
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return runs, pagination, nil
}

// GetRunDetailsWithStats fetches a run together with its item status counts.
func (s *RunService) GetRunDetailsWithStats(runID string) (*RunDetails, error) {
	run, err := s.RunRepo.GetByID(runID)
	if err != nil {
		return nil, err
	}

	counts, err := s.RunItemRepo.StatusCounts(runID)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{
		"total":   0,
		"pending": 0,
		"sent":    0,
		"failed":  0,
	}
	for status, count := range counts {
		if _, ok := stats[status]; ok {
			stats[status] = count
		}
		stats["total"] += count
	}

	return &RunDetails{
		ID:          run.ID,
		Name:        run.Name,
		Status:      run.Status,
		Filter:      run.Filter,
		TemplateID:  run.TemplateID,
		TotalLeads:  run.TotalLeads,
		SentCount:   run.SentCount,
		FailedCount: run.FailedCount,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
		Stats:       stats,
	}, nil
}
