package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/model"
)

type RunRepositoryInterface interface {
	Create(r *model.Run) error
	GetByID(id string) (*model.Run, error)
	ListRuns(offset, limit int, status string) ([]*model.Run, int, error)

	// Status transitions. Each is a compare-and-set on the current status;
	// a stale or illegal transition returns ErrIllegalTransition.
	MarkPrepared(id string, totalLeads int) error
	MarkSending(id string, totalLeads int, startedAt time.Time) error
	TouchSending(id string) error
	MarkCompleted(id string, sentCount, failedCount int, completedAt time.Time) error
	MarkFailed(id string) error
}

type RunRepository struct {
	DB *sql.DB
}

// ====================== Run CRUD ======================

func (r *RunRepository) Create(run *model.Run) error {
	run.CreatedAt = time.Now()
	if run.Status == "" {
		run.Status = model.RunStatusPreparing
	}
	filterJSON, err := json.Marshal(run.Filter)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO runs (id, name, status, filter, template_id, total_leads, sent_count, failed_count, created_at)
        VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6)
    `
	_, err = r.DB.Exec(query, run.ID, run.Name, run.Status, filterJSON, run.TemplateID, run.CreatedAt)
	return err
}

func (r *RunRepository) GetByID(id string) (*model.Run, error) {
	query := `
        SELECT id, name, status, filter, template_id, total_leads, sent_count, failed_count,
               started_at, completed_at, created_at, updated_at
        FROM runs WHERE id=$1
    `
	var run model.Run
	var filterJSON []byte
	err := r.DB.QueryRow(query, id).Scan(
		&run.ID, &run.Name, &run.Status, &filterJSON, &run.TemplateID,
		&run.TotalLeads, &run.SentCount, &run.FailedCount,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewRunNotFound(id)
		}
		return nil, err
	}
	if len(filterJSON) > 0 {
		if err := json.Unmarshal(filterJSON, &run.Filter); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func (r *RunRepository) ListRuns(offset, limit int, status string) ([]*model.Run, int, error) {
	runs := []*model.Run{}
	query := `
        SELECT id, name, status, filter, template_id, total_leads, sent_count, failed_count,
               started_at, completed_at, created_at, updated_at
        FROM runs WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		run := &model.Run{}
		var filterJSON []byte
		if err := rows.Scan(
			&run.ID, &run.Name, &run.Status, &filterJSON, &run.TemplateID,
			&run.TotalLeads, &run.SentCount, &run.FailedCount,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		if len(filterJSON) > 0 {
			if err := json.Unmarshal(filterJSON, &run.Filter); err != nil {
				return nil, 0, err
			}
		}
		runs = append(runs, run)
	}

	countQuery := `SELECT COUNT(*) FROM runs WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// ====================== Status transitions ======================

// MarkPrepared moves preparing -> prepared and records the materialized lead
// count. The WHERE clause on the current status is the optimistic guard
// against a concurrent double-Prepare.
func (r *RunRepository) MarkPrepared(id string, totalLeads int) error {
	query := `UPDATE runs SET status=$1, total_leads=$2, updated_at=NOW() WHERE id=$3 AND status=$4`
	res, err := r.DB.Exec(query, model.RunStatusPrepared, totalLeads, id, model.RunStatusPreparing)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id, model.RunStatusPrepared)
}

// MarkSending moves prepared -> sending before the engine call, acting as the
// per-run dispatch lease.
func (r *RunRepository) MarkSending(id string, totalLeads int, startedAt time.Time) error {
	query := `UPDATE runs SET status=$1, total_leads=$2, started_at=$3, updated_at=NOW() WHERE id=$4 AND status=$5`
	res, err := r.DB.Exec(query, model.RunStatusSending, totalLeads, startedAt, id, model.RunStatusPrepared)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id, model.RunStatusSending)
}

// TouchSending applies a webhook "processing" signal. Already-sending runs
// match the WHERE clause, so a replay is a harmless rewrite of updated_at.
func (r *RunRepository) TouchSending(id string) error {
	query := `UPDATE runs SET status=$1, updated_at=NOW() WHERE id=$2 AND status IN ($3, $4)`
	res, err := r.DB.Exec(query, model.RunStatusSending, id, model.RunStatusPrepared, model.RunStatusSending)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id, model.RunStatusSending)
}

func (r *RunRepository) MarkCompleted(id string, sentCount, failedCount int, completedAt time.Time) error {
	query := `
        UPDATE runs SET status=$1, sent_count=$2, failed_count=$3, completed_at=$4, updated_at=NOW()
        WHERE id=$5 AND status=$6
    `
	res, err := r.DB.Exec(query, model.RunStatusCompleted, sentCount, failedCount, completedAt, id, model.RunStatusSending)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id, model.RunStatusCompleted)
}

func (r *RunRepository) MarkFailed(id string) error {
	query := `UPDATE runs SET status=$1, completed_at=NOW(), updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.Exec(query, model.RunStatusFailed, id, model.RunStatusSending)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id, model.RunStatusFailed)
}

// checkTransition turns a zero-row CAS into a typed error: not-found if the
// run is missing, illegal-transition otherwise.
func (r *RunRepository) checkTransition(res sql.Result, id string, to model.RunStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	current, err := r.GetByID(id)
	if err != nil {
		return err
	}
	return appErrors.NewIllegalTransition(id, string(current.Status), string(to))
}

var _ RunRepositoryInterface = (*RunRepository)(nil)
