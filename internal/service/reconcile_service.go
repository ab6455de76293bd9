// internal/service/reconcile_service.go
package service

import (
	"errors"
	"log"
	"time"

	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/model"
	"github.com/leadpilot/crm-backend/internal/queue"
	"github.com/leadpilot/crm-backend/internal/repository"
)

// WebhookResult is one lead's reported outcome within a webhook delivery.
type WebhookResult struct {
	LeadID       int                 `json:"leadId"`
	Status       model.RunItemStatus `json:"status" validate:"required,oneof=pending sent failed"`
	Message      string              `json:"message,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	SentAt       *time.Time          `json:"sentAt,omitempty"`
}

// WebhookPayload is the dispatcher engine's callback body. Deliveries are
// at-least-once and may arrive out of order or partially.
type WebhookPayload struct {
	RunID       string          `json:"runId" validate:"required"`
	Status      string          `json:"status" validate:"required,oneof=processing completed failed"`
	Results     []WebhookResult `json:"results,omitempty" validate:"omitempty,dive"`
	TotalSent   *int            `json:"totalSent,omitempty"`
	TotalFailed *int            `json:"totalFailed,omitempty"`
}

type ReconcileOutcome struct {
	RunID            string `json:"runId"`
	ProcessedResults int    `json:"processedResults"`
}

// ReconcileService applies asynchronous delivery outcomes back onto run,
// run item, lead, and communication state. It is the only component allowed
// to mark a run terminal.
type ReconcileService struct {
	RunRepo     repository.RunRepositoryInterface
	RunItemRepo repository.RunItemRepositoryInterface
	LeadRepo    repository.LeadRepositoryInterface
	CommRepo    repository.CommunicationRepositoryInterface
	Events      queue.Publisher
}

// Reconcile processes one webhook delivery. The run-level update goes first:
// a store failure aborts the request so the engine retries, while a stale
// transition (a replayed or out-of-order signal blocked by the transition
// table) is logged and skipped. Per-item reconciliation is independently
// idempotent and continues past individual failures.
func (s *ReconcileService) Reconcile(p *WebhookPayload) (*ReconcileOutcome, error) {
	if err := validate.Struct(p); err != nil {
		return nil, appErrors.NewValidation("payload", err.Error())
	}

	if err := s.applyRunUpdate(p); err != nil {
		var stale *appErrors.ErrIllegalTransition
		if errors.As(err, &stale) {
			log.Println("⚠️ Skipping stale run update:", err)
		} else {
			return nil, err
		}
	}

	processed := 0
	for _, result := range p.Results {
		if result.LeadID == 0 {
			log.Println("⚠️ Skipping result without leadId in run", p.RunID)
			continue
		}
		if err := s.reconcileItem(p.RunID, result); err != nil {
			log.Println("⚠️ Failed to reconcile lead", result.LeadID, "in run", p.RunID, ":", err)
			continue
		}
		processed++
	}

	return &ReconcileOutcome{RunID: p.RunID, ProcessedResults: processed}, nil
}

func (s *ReconcileService) applyRunUpdate(p *WebhookPayload) error {
	switch p.Status {
	case "processing":
		return s.RunRepo.TouchSending(p.RunID)
	case "completed":
		sent, failed := 0, 0
		if p.TotalSent != nil {
			sent = *p.TotalSent
		}
		if p.TotalFailed != nil {
			failed = *p.TotalFailed
		}
		if err := s.RunRepo.MarkCompleted(p.RunID, sent, failed, time.Now()); err != nil {
			return err
		}
		s.publishRunEvent(p.RunID, "completed", sent, failed)
		return nil
	case "failed":
		if err := s.RunRepo.MarkFailed(p.RunID); err != nil {
			return err
		}
		s.publishRunEvent(p.RunID, "failed", 0, 0)
		return nil
	}
	return appErrors.NewValidation("status", "unrecognized run status "+p.Status)
}

// reconcileItem upserts the reported outcome keyed by (run_id, lead_id) and
// fires the sent side effects only when the item newly became sent, so a
// replayed payload appends no duplicate communication and touches no lead.
func (s *ReconcileService) reconcileItem(runID string, result WebhookResult) error {
	prior, err := s.RunItemRepo.GetByRunAndLead(runID, result.LeadID)
	if err != nil {
		return err
	}

	item := &model.RunItem{
		RunID:        runID,
		LeadID:       result.LeadID,
		Status:       result.Status,
		Message:      result.Message,
		ErrorMessage: result.ErrorMessage,
		SentAt:       result.SentAt,
	}
	// The engine often omits the message it sent; keep what Prepare rendered.
	if item.Message == "" && prior != nil {
		item.Message = prior.Message
	}
	if err := s.RunItemRepo.Upsert(item); err != nil {
		return err
	}

	newlySent := result.Status == model.RunItemStatusSent &&
		(prior == nil || prior.Status != model.RunItemStatusSent)
	if !newlySent {
		return nil
	}

	return s.applySentSideEffects(runID, result, item)
}

func (s *ReconcileService) applySentSideEffects(runID string, result WebhookResult, item *model.RunItem) error {
	comm := &model.Communication{
		LeadID:  result.LeadID,
		RunID:   runID,
		Channel: model.CommunicationChannelMessaging,
		Type:    model.CommunicationTypeFollowup,
		Content: item.Message,
	}
	if err := s.CommRepo.Create(comm); err != nil {
		return err
	}

	contactedAt := time.Now()
	if result.SentAt != nil {
		contactedAt = *result.SentAt
	}
	advanced, err := s.LeadRepo.MarkContacted(result.LeadID, contactedAt)
	if err != nil {
		return err
	}
	if !advanced {
		log.Println("⏭️ Lead", result.LeadID, "already past contact, status left untouched")
		return nil
	}

	if s.Events != nil {
		if err := s.Events.Publish(queue.TopicLeadContacted, queue.LeadContactedEvent{
			RunID:  runID,
			LeadID: result.LeadID,
		}); err != nil {
			log.Println("⚠️ failed to publish lead contacted event:", err)
		}
	}
	return nil
}

func (s *ReconcileService) publishRunEvent(runID, event string, sent, failed int) {
	if s.Events == nil {
		return
	}
	err := s.Events.Publish(queue.TopicRunEvents, queue.RunEvent{
		RunID:       runID,
		Event:       event,
		SentCount:   sent,
		FailedCount: failed,
	})
	if err != nil {
		log.Println("⚠️ failed to publish run event:", err)
	}
}
