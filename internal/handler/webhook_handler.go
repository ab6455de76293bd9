// internal/handler/webhook_handler.go
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/service"
)

// WebhookHandler receives asynchronous delivery results from the dispatcher
// engine. The engine delivers at-least-once, so a 500 here means "retry" and
// a 200 must be safe to receive twice.
type WebhookHandler struct {
	Service *service.ReconcileService
	Token   string
}

func NewWebhookHandler(svc *service.ReconcileService, token string) *WebhookHandler {
	return &WebhookHandler{
		Service: svc,
		Token:   token,
	}
}

// HandleDispatcherWebhook authenticates the shared secret, then hands the
// payload to the reconciler. No state is touched before the credential check
// passes.
func (h *WebhookHandler) HandleDispatcherWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload service.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	log.Println("📩 Webhook received for run", payload.RunID, "status", payload.Status, "with", len(payload.Results), "results")

	outcome, err := h.Service.Reconcile(&payload)
	if err != nil {
		writeReconcileError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":          true,
		"runId":            outcome.RunID,
		"processedResults": outcome.ProcessedResults,
	})
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.Token)) == 1
}

func writeReconcileError(w http.ResponseWriter, err error) {
	var (
		notFound   *appErrors.ErrRunNotFound
		validation *appErrors.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		// Run-level update failure; the engine should re-deliver.
		http.Error(w, "failed to process webhook: "+err.Error(), http.StatusInternalServerError)
	}
}
