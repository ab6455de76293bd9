// internal/model/run.go
package model

import "time"

type RunStatus string

const (
	RunStatusPreparing RunStatus = "preparing"
	RunStatusPrepared  RunStatus = "prepared"
	RunStatusSending   RunStatus = "sending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// runTransitions is the allowed-transition table. Terminal statuses permit a
// self-transition so replayed webhook deliveries stay no-ops instead of errors.
var runTransitions = map[RunStatus][]RunStatus{
	RunStatusPreparing: {RunStatusPrepared},
	RunStatusPrepared:  {RunStatusSending},
	RunStatusSending:   {RunStatusSending, RunStatusCompleted, RunStatusFailed},
	RunStatusCompleted: {RunStatusCompleted},
	RunStatusFailed:    {RunStatusFailed},
}

func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

type Run struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Status      RunStatus      `db:"status" json:"status"`
	Filter      FilterCriteria `db:"filter" json:"filter"`
	TemplateID  int            `db:"template_id" json:"template_id"`
	TotalLeads  int            `db:"total_leads" json:"total_leads"`
	SentCount   int            `db:"sent_count" json:"sent_count"`
	FailedCount int            `db:"failed_count" json:"failed_count"`
	StartedAt   *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
