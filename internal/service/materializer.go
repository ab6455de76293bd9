// internal/service/materializer.go
package service

import (
	"log"
	"strings"

	"github.com/leadpilot/crm-backend/internal/model"
)

// maxPersonalizedLength caps what we accept back from the personalization
// collaborator; anything longer is treated as a bad rewrite.
const maxPersonalizedLength = 600

// Personalizer is the external LLM collaborator that rewrites a template for
// one lead. Implementations live outside this pipeline.
type Personalizer interface {
	Personalize(template string, lead model.Lead) (string, error)
}

// Materializer turns a lead + template into a message body. When AI
// personalization is enabled and a collaborator is wired, it is tried first;
// any failure falls back to literal substitution. Materialize never fails,
// so one bad lead cannot abort a batch.
type Materializer struct {
	Personalizer Personalizer
	UseAI        bool
}

func (m *Materializer) Materialize(tmpl *model.Template, lead model.Lead) string {
	if m.UseAI && m.Personalizer != nil {
		message, err := m.Personalizer.Personalize(tmpl.Message, lead)
		if err == nil {
			message = strings.TrimSpace(message)
			if message != "" && len(message) <= maxPersonalizedLength {
				return message
			}
			log.Println("⚠️ personalizer returned unusable message for lead", lead.ID, ", falling back to template")
		} else {
			log.Println("⚠️ personalization failed for lead", lead.ID, ":", err)
		}
	}

	return RenderTemplate(tmpl.Message, LeadVariables(lead))
}

// LeadVariables exposes the lead fields available as template placeholders.
func LeadVariables(lead model.Lead) map[string]string {
	return map[string]string{
		"name":     lead.Name,
		"business": lead.Business,
		"city":     lead.City,
		"niche":    lead.Niche,
	}
}

// RenderTemplate substitutes {{key}} placeholders with their values.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	return result
}
