package repository

import (
	"database/sql"
	"time"

	"github.com/leadpilot/crm-backend/internal/model"
)

type CommunicationRepositoryInterface interface {
	Create(c *model.Communication) error
	ListByLead(leadID int) ([]model.Communication, error)
}

// CommunicationRepository is append-only. Rows are never updated or deleted
// by the pipeline.
type CommunicationRepository struct {
	DB *sql.DB
}

func (r *CommunicationRepository) Create(c *model.Communication) error {
	c.CreatedAt = time.Now()
	query := `
        INSERT INTO communications (lead_id, run_id, channel, comm_type, content, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.LeadID, c.RunID, c.Channel, c.Type, c.Content, c.CreatedAt).Scan(&c.ID)
}

func (r *CommunicationRepository) ListByLead(leadID int) ([]model.Communication, error) {
	query := `
        SELECT id, lead_id, run_id, channel, comm_type, content, created_at
        FROM communications
        WHERE lead_id=$1
        ORDER BY created_at DESC
    `
	rows, err := r.DB.Query(query, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comms := []model.Communication{}
	for rows.Next() {
		var c model.Communication
		if err := rows.Scan(&c.ID, &c.LeadID, &c.RunID, &c.Channel, &c.Type, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		comms = append(comms, c)
	}
	return comms, nil
}

var _ CommunicationRepositoryInterface = (*CommunicationRepository)(nil)
