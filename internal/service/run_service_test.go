package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/model"
	"github.com/leadpilot/crm-backend/internal/pacing"
	"github.com/leadpilot/crm-backend/internal/service"
)

func intPtr(i int) *int { return &i }

func clinicLeads() []model.Lead {
	now := time.Now()
	return []model.Lead{
		{ID: 1, Name: "Ana", Business: "Clinica Bem Estar", Phone: "+551191", City: "Sao Paulo", Niche: "clinica odontologica", Status: model.LeadStatusNew, Score: 8, CreatedAt: now},
		{ID: 2, Name: "Carla", Business: "Clinica Sorriso", Phone: "+551192", City: "Sao Paulo", Niche: "clinica estetica", Status: model.LeadStatusNew, Score: 7, CreatedAt: now},
		{ID: 3, Name: "Paula", Business: "Clinica Vida", Phone: "+551193", City: "Curitiba", Niche: "clinica geral", Status: model.LeadStatusContacted, Score: 6, CreatedAt: now},
		{ID: 4, Name: "Rui", Business: "Restaurante Sabor", Phone: "+551194", City: "Recife", Niche: "restaurante", Status: model.LeadStatusNew, Score: 9, CreatedAt: now},
		{ID: 5, Name: "Bia", Business: "Clinica Arquivada", Phone: "+551195", City: "Sao Paulo", Niche: "clinica", Status: model.LeadStatusNew, Score: 10, Archived: true, CreatedAt: now},
	}
}

func newRunService() (*service.RunService, *fakeRunRepo, *fakeRunItemRepo, *fakeLeadRepo, *fakeEngine) {
	runRepo := newFakeRunRepo()
	itemRepo := newFakeRunItemRepo()
	leadRepo := newFakeLeadRepo(clinicLeads()...)
	engine := &fakeEngine{}

	svc := &service.RunService{
		RunRepo:     runRepo,
		RunItemRepo: itemRepo,
		LeadRepo:    leadRepo,
		TemplateRepo: newFakeTemplateRepo(model.Template{
			ID:        1,
			Name:      "follow-up",
			Message:   "Oi {{name}}, vi a {{business}} em {{city}}!",
			Variables: []string{"name", "business", "city"},
		}),
		Materializer: &service.Materializer{},
		Engine:       engine,
		CallbackURL:  "https://crm.example.com/webhooks/dispatcher",
		WebhookToken: "secret-token",
	}
	return svc, runRepo, itemRepo, leadRepo, engine
}

func TestCreateRunStartsPreparing(t *testing.T) {
	svc, _, _, _, _ := newRunService()

	run, err := svc.CreateRun("clinicas SP", 1, model.FilterCriteria{Niche: "clinica", MinScore: intPtr(6)})
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusPreparing, run.Status)
	assert.Equal(t, 0, run.TotalLeads)
	assert.Equal(t, 0, run.SentCount)
	assert.Equal(t, 0, run.FailedCount)
}

func TestCreateRunValidation(t *testing.T) {
	svc, _, _, _, _ := newRunService()

	_, err := svc.CreateRun("", 1, model.FilterCriteria{})
	var validation *appErrors.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = svc.CreateRun("name", 0, model.FilterCriteria{})
	require.ErrorAs(t, err, &validation)

	_, err = svc.CreateRun("name", 1, model.FilterCriteria{Status: "bogus"})
	require.ErrorAs(t, err, &validation)

	_, err = svc.CreateRun("name", 99, model.FilterCriteria{})
	var notFound *appErrors.ErrTemplateNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestPrepareRunMaterializesMatchingLeads(t *testing.T) {
	svc, runRepo, itemRepo, leadRepo, _ := newRunService()

	run, err := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica", MinScore: intPtr(6)})
	require.NoError(t, err)

	result, err := svc.PrepareRun(run.ID)
	require.NoError(t, err)

	// Leads 1, 2, 3 match; 4 is the wrong niche, 5 is archived.
	assert.Equal(t, 3, result.TotalLeads)
	assert.Equal(t, model.RunStatusPrepared, result.Status)

	stored, err := runRepo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPrepared, stored.Status)
	assert.Equal(t, 3, stored.TotalLeads)

	items, err := itemRepo.ListByRun(run.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, item := range items {
		assert.Equal(t, model.RunItemStatusPending, item.Status)
		assert.NotEmpty(t, item.Message)
		assert.NotContains(t, item.Message, "{{")
	}

	// The RunItem count matches an equivalent direct query.
	direct, err := leadRepo.Select(run.Filter)
	require.NoError(t, err)
	assert.Len(t, direct, len(items))
}

func TestPrepareRunRejectedUnlessPreparing(t *testing.T) {
	svc, _, _, _, _ := newRunService()

	run, err := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica"})
	require.NoError(t, err)

	_, err = svc.PrepareRun(run.ID)
	require.NoError(t, err)

	_, err = svc.PrepareRun(run.ID)
	var transition *appErrors.ErrIllegalTransition
	require.ErrorAs(t, err, &transition)
}

func TestPrepareRunUnknownRun(t *testing.T) {
	svc, _, _, _, _ := newRunService()

	_, err := svc.PrepareRun("missing")
	var notFound *appErrors.ErrRunNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestDispatchRunShipsReselectedLeads(t *testing.T) {
	svc, runRepo, _, _, engine := newRunService()

	run, err := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica", MinScore: intPtr(6)})
	require.NoError(t, err)
	_, err = svc.PrepareRun(run.ID)
	require.NoError(t, err)

	result, err := svc.DispatchRun(context.Background(), run.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusSending, result.Status)
	assert.Equal(t, 3, result.TotalLeads)
	assert.False(t, result.StartedAt.IsZero())

	stored, err := runRepo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSending, stored.Status)
	require.NotNil(t, stored.StartedAt)

	require.Len(t, engine.payloads, 1)
	payload := engine.payloads[0]
	assert.Equal(t, run.ID, payload.RunID)
	assert.Len(t, payload.Leads, 3)
	assert.Equal(t, "https://crm.example.com/webhooks/dispatcher", payload.WebhookCallbackURL)
	assert.Equal(t, "secret-token", payload.WebhookToken)
	assert.Equal(t, 3, payload.Metadata.TotalLeads)
	assert.Equal(t, "clinica", payload.Metadata.Filters.Niche)
	assert.Equal(t, "follow-up", payload.Template.Name)
	assert.Equal(t, pacing.DefaultInterLeadDelayMs, payload.Persona.MessageDelay)
}

func TestDispatchRunRequiresPrepared(t *testing.T) {
	svc, _, _, _, engine := newRunService()

	run, err := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica"})
	require.NoError(t, err)

	_, err = svc.DispatchRun(context.Background(), run.ID, nil)
	var transition *appErrors.ErrIllegalTransition
	require.ErrorAs(t, err, &transition)
	assert.Empty(t, engine.payloads, "engine must not be called when the lease is refused")
}

func TestDispatchRunDoubleDispatchRefused(t *testing.T) {
	svc, _, _, _, engine := newRunService()

	run, _ := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica"})
	_, err := svc.PrepareRun(run.ID)
	require.NoError(t, err)

	_, err = svc.DispatchRun(context.Background(), run.ID, nil)
	require.NoError(t, err)

	_, err = svc.DispatchRun(context.Background(), run.ID, nil)
	var transition *appErrors.ErrIllegalTransition
	require.ErrorAs(t, err, &transition)
	assert.Len(t, engine.payloads, 1)
}

func TestDispatchRunEngineFailureLeavesSending(t *testing.T) {
	svc, runRepo, _, _, engine := newRunService()
	engine.err = appErrors.NewUpstream("dispatch", 503, nil)

	run, _ := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica"})
	_, err := svc.PrepareRun(run.ID)
	require.NoError(t, err)

	_, err = svc.DispatchRun(context.Background(), run.ID, nil)
	var upstream *appErrors.UpstreamError
	require.ErrorAs(t, err, &upstream)

	// The status change is not rolled back; recovery is manual.
	stored, err := runRepo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSending, stored.Status)
}

func TestDispatchRunRejectsBadPacing(t *testing.T) {
	svc, _, _, _, _ := newRunService()

	run, _ := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica"})
	_, err := svc.PrepareRun(run.ID)
	require.NoError(t, err)

	_, err = svc.DispatchRun(context.Background(), run.ID, &pacing.Config{
		InterLeadDelayMs: 100, // below the floor
		IntraLeadDelayMs: 1500,
		JitterFraction:   0.2,
	})
	var validation *appErrors.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestPreviewMessage(t *testing.T) {
	svc, _, _, _, _ := newRunService()

	run, _ := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica"})

	rendered, err := svc.PreviewMessage(run.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Oi Ana, vi a Clinica Bem Estar em Sao Paulo!", rendered)

	_, err = svc.PreviewMessage(run.ID, 999)
	var notFound *appErrors.ErrLeadNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestGetRunDetailsWithStats(t *testing.T) {
	svc, _, _, _, _ := newRunService()

	run, _ := svc.CreateRun("clinicas", 1, model.FilterCriteria{Niche: "clinica"})
	_, err := svc.PrepareRun(run.ID)
	require.NoError(t, err)

	details, err := svc.GetRunDetailsWithStats(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, details.Stats["total"])
	assert.Equal(t, 3, details.Stats["pending"])
	assert.Equal(t, 0, details.Stats["sent"])
}
