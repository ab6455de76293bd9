package repository

import (
	"database/sql"
	"time"

	"github.com/leadpilot/crm-backend/internal/model"
)

type RunItemRepositoryInterface interface {
	CreatePending(runID string, leadID int, message string) error
	Upsert(item *model.RunItem) error
	GetByRunAndLead(runID string, leadID int) (*model.RunItem, error)
	ListByRun(runID string) ([]model.RunItem, error)
	StatusCounts(runID string) (map[string]int, error)
}

type RunItemRepository struct {
	DB *sql.DB
}

// CreatePending inserts a pending item during Prepare. The conflict target is
// the (run_id, lead_id) unique key, so re-running Prepare cannot duplicate
// rows or clobber a status the reconciler already wrote.
func (r *RunItemRepository) CreatePending(runID string, leadID int, message string) error {
	query := `
        INSERT INTO run_items (run_id, lead_id, status, message, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        ON CONFLICT (run_id, lead_id) DO NOTHING
    `
	_, err := r.DB.Exec(query, runID, leadID, model.RunItemStatusPending, message)
	return err
}

// Upsert writes a reconciled outcome keyed by (run_id, lead_id). Replaying an
// identical payload rewrites the same values, leaving the row unchanged.
func (r *RunItemRepository) Upsert(item *model.RunItem) error {
	item.UpdatedAt = time.Now()
	query := `
        INSERT INTO run_items (run_id, lead_id, status, message, error_message, sent_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)
        ON CONFLICT (run_id, lead_id) DO UPDATE
        SET status=EXCLUDED.status,
            message=EXCLUDED.message,
            error_message=EXCLUDED.error_message,
            sent_at=EXCLUDED.sent_at,
            updated_at=EXCLUDED.updated_at
        RETURNING id
    `
	return r.DB.QueryRow(
		query,
		item.RunID, item.LeadID, item.Status, item.Message,
		item.ErrorMessage, item.SentAt, item.UpdatedAt,
	).Scan(&item.ID)
}

func (r *RunItemRepository) GetByRunAndLead(runID string, leadID int) (*model.RunItem, error) {
	query := `
        SELECT id, run_id, lead_id, status, message, error_message, sent_at, created_at, updated_at
        FROM run_items
        WHERE run_id=$1 AND lead_id=$2
    `
	var item model.RunItem
	err := r.DB.QueryRow(query, runID, leadID).Scan(
		&item.ID, &item.RunID, &item.LeadID, &item.Status,
		&item.Message, &item.ErrorMessage, &item.SentAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *RunItemRepository) ListByRun(runID string) ([]model.RunItem, error) {
	query := `
        SELECT id, run_id, lead_id, status, message, error_message, sent_at, created_at, updated_at
        FROM run_items
        WHERE run_id=$1
        ORDER BY id
    `
	rows, err := r.DB.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.RunItem{}
	for rows.Next() {
		var item model.RunItem
		if err := rows.Scan(
			&item.ID, &item.RunID, &item.LeadID, &item.Status,
			&item.Message, &item.ErrorMessage, &item.SentAt,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *RunItemRepository) StatusCounts(runID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM run_items WHERE run_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{"pending": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, nil
}

var _ RunItemRepositoryInterface = (*RunItemRepository)(nil)
