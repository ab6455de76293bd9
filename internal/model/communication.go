// internal/model/communication.go
package model

import "time"

const (
	CommunicationChannelMessaging = "messaging"
	CommunicationTypeFollowup     = "followup"
)

// Communication is an append-only contact record. The pipeline creates one per
// successfully sent run item and never updates or deletes it.
type Communication struct {
	ID        int       `db:"id" json:"id"`
	LeadID    int       `db:"lead_id" json:"lead_id"`
	RunID     string    `db:"run_id" json:"run_id"`
	Channel   string    `db:"channel" json:"channel"`
	Type      string    `db:"comm_type" json:"type"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
