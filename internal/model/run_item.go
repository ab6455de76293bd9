// internal/model/run_item.go
package model

import "time"

type RunItemStatus string

const (
	RunItemStatusPending RunItemStatus = "pending"
	RunItemStatusSent    RunItemStatus = "sent"
	RunItemStatusFailed  RunItemStatus = "failed"
)

// RunItem is one lead's outcome within a Run. Rows are unique on
// (run_id, lead_id); all writes are upserts on that key.
type RunItem struct {
	ID           int           `db:"id" json:"id"`
	RunID        string        `db:"run_id" json:"run_id"`
	LeadID       int           `db:"lead_id" json:"lead_id"`
	Status       RunItemStatus `db:"status" json:"status"`
	Message      string        `db:"message" json:"message"`
	ErrorMessage string        `db:"error_message" json:"error_message,omitempty"`
	SentAt       *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}
