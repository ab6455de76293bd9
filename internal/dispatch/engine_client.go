// Package dispatch hands prepared lead batches to the external dispatcher
// engine. The dispatch call is fire-and-forget: a 2xx only means "accepted",
// and every per-lead outcome arrives later through the webhook.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/model"
	"github.com/leadpilot/crm-backend/internal/pacing"
)

const (
	DefaultPersonaName  = "default"
	DefaultSystemPrompt = "You are a friendly sales assistant following up with a business lead over WhatsApp. Keep messages short and personal."
)

type TemplatePayload struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Message   string   `json:"message"`
	Variables []string `json:"variables"`
}

type PersonaPayload struct {
	Name                 string `json:"name"`
	SystemPrompt         string `json:"systemPrompt"`
	UseAIPersonalization bool   `json:"useAIPersonalization"`
	MessageDelay         int    `json:"messageDelay"`
}

type LeadPayload struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Business string `json:"business"`
	Phone    string `json:"phone"`
	City     string `json:"city"`
	Niche    string `json:"niche"`
}

type Metadata struct {
	DispatchedAt time.Time            `json:"dispatchedAt"`
	TotalLeads   int                  `json:"totalLeads"`
	Filters      model.FilterCriteria `json:"filters"`
}

type Payload struct {
	RunID              string          `json:"runId"`
	RunName            string          `json:"runName"`
	Template           TemplatePayload `json:"template"`
	Persona            PersonaPayload  `json:"persona"`
	Pacing             pacing.Config   `json:"pacing"`
	Leads              []LeadPayload   `json:"leads"`
	WebhookCallbackURL string          `json:"webhookCallbackUrl"`
	WebhookToken       string          `json:"webhookToken"`
	Metadata           Metadata        `json:"metadata"`
}

// DefaultPersona is applied when a dispatch names no persona: default name
// and system prompt, AI personalization off, base delay from the pacing
// config.
func DefaultPersona(p pacing.Config) PersonaPayload {
	return PersonaPayload{
		Name:                 DefaultPersonaName,
		SystemPrompt:         DefaultSystemPrompt,
		UseAIPersonalization: false,
		MessageDelay:         p.InterLeadDelayMs,
	}
}

// BuildPayload assembles the outbound dispatch body for a run.
func BuildPayload(run *model.Run, tmpl *model.Template, leads []model.Lead, persona PersonaPayload, pc pacing.Config, callbackURL, token string) *Payload {
	leadPayloads := make([]LeadPayload, 0, len(leads))
	for _, l := range leads {
		leadPayloads = append(leadPayloads, LeadPayload{
			ID:       l.ID,
			Name:     l.Name,
			Business: l.Business,
			Phone:    l.Phone,
			City:     l.City,
			Niche:    l.Niche,
		})
	}

	return &Payload{
		RunID:   run.ID,
		RunName: run.Name,
		Template: TemplatePayload{
			ID:        tmpl.ID,
			Name:      tmpl.Name,
			Message:   tmpl.Message,
			Variables: tmpl.Variables,
		},
		Persona:            persona,
		Pacing:             pc,
		Leads:              leadPayloads,
		WebhookCallbackURL: callbackURL,
		WebhookToken:       token,
		Metadata: Metadata{
			DispatchedAt: time.Now(),
			TotalLeads:   len(leads),
			Filters:      run.Filter,
		},
	}
}

// EngineClient sends a dispatch payload to the engine.
type EngineClient interface {
	Dispatch(ctx context.Context, p *Payload) error
}

type HTTPEngineClient struct {
	URL    string
	Token  string
	client *http.Client
}

func NewHTTPEngineClient(url, token string) *HTTPEngineClient {
	return &HTTPEngineClient{
		URL:   url,
		Token: token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *HTTPEngineClient) Dispatch(ctx context.Context, p *Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return appErrors.NewUpstream("dispatch", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return appErrors.NewUpstream("dispatch", resp.StatusCode, nil)
	}
	return nil
}

var _ EngineClient = (*HTTPEngineClient)(nil)
