// internal/model/lead.go
package model

import "time"

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// PreContact reports whether the lead has not progressed past first contact.
// Reconciliation may only advance a lead to "contacted" while this holds.
func (s LeadStatus) PreContact() bool {
	return s == LeadStatusNew || s == LeadStatusContacted
}

type Lead struct {
	ID              int        `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Business        string     `db:"business" json:"business"`
	Phone           string     `db:"phone" json:"phone"`
	City            string     `db:"city" json:"city"`
	Niche           string     `db:"niche" json:"niche"`
	Status          LeadStatus `db:"status" json:"status"`
	Score           int        `db:"score" json:"score"`
	Archived        bool       `db:"archived" json:"archived"`
	LastContactedAt *time.Time `db:"last_contacted_at" json:"last_contacted_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}
