package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/leadpilot/crm-backend/internal/model"
)

// LeadRepositoryInterface defines the lead-store operations the pipeline
// needs. The store itself is owned elsewhere; the pipeline only queries
// leads and conditionally advances them to "contacted".
type LeadRepositoryInterface interface {
	GetByID(id int) (*model.Lead, error)
	Select(f model.FilterCriteria) ([]model.Lead, error)
	MarkContacted(id int, at time.Time) (bool, error)
	Create(l *model.Lead) error
}

type LeadRepository struct {
	DB *sql.DB
}

const leadColumns = `id, name, business, phone, city, niche, status, score, archived, last_contacted_at, created_at`

func (r *LeadRepository) GetByID(id int) (*model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	row := r.DB.QueryRow(query, id)

	var l model.Lead
	if err := scanLead(row, &l); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &l, nil
}

// BuildLeadQuery translates filter criteria into a WHERE clause with
// positional args. Archived leads are always excluded.
func BuildLeadQuery(f model.FilterCriteria) (string, []interface{}) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE archived = FALSE`
	args := []interface{}{}
	argPos := 1

	if f.Niche != "" {
		query += fmt.Sprintf(" AND niche ILIKE $%d", argPos)
		args = append(args, "%"+f.Niche+"%")
		argPos++
	}
	if f.City != "" {
		query += fmt.Sprintf(" AND city ILIKE $%d", argPos)
		args = append(args, "%"+f.City+"%")
		argPos++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, f.Status)
		argPos++
	}
	if f.MinScore != nil {
		query += fmt.Sprintf(" AND score >= $%d", argPos)
		args = append(args, *f.MinScore)
		argPos++
	}
	if f.MaxDaysOld != nil {
		cutoff := time.Now().AddDate(0, 0, -*f.MaxDaysOld)
		query += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, cutoff)
		argPos++
	}
	if f.ExcludeContacted {
		query += " AND last_contacted_at IS NULL"
	}

	query += " ORDER BY id"
	return query, args
}

func (r *LeadRepository) Select(f model.FilterCriteria) ([]model.Lead, error) {
	query, args := BuildLeadQuery(f)
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(
			&l.ID, &l.Name, &l.Business, &l.Phone, &l.City, &l.Niche,
			&l.Status, &l.Score, &l.Archived, &l.LastContactedAt, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, nil
}

// MarkContacted advances a lead to "contacted" and stamps the contact time,
// but only while the lead is still pre-contact. A lead that already moved
// further in the funnel (qualified, converted, lost) is left untouched.
// Returns whether the row was advanced.
func (r *LeadRepository) MarkContacted(id int, at time.Time) (bool, error) {
	query := `
        UPDATE leads SET status=$1, last_contacted_at=$2
        WHERE id=$3 AND status IN ($4, $5)
    `
	res, err := r.DB.Exec(query, model.LeadStatusContacted, at, id, model.LeadStatusNew, model.LeadStatusContacted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *LeadRepository) Create(l *model.Lead) error {
	l.CreatedAt = time.Now()
	if l.Status == "" {
		l.Status = model.LeadStatusNew
	}
	query := `
        INSERT INTO leads (name, business, phone, city, niche, status, score, archived, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(
		query,
		l.Name, l.Business, l.Phone, l.City, l.Niche, l.Status, l.Score, l.Archived, l.CreatedAt,
	).Scan(&l.ID)
}

func scanLead(row *sql.Row, l *model.Lead) error {
	return row.Scan(
		&l.ID, &l.Name, &l.Business, &l.Phone, &l.City, &l.Niche,
		&l.Status, &l.Score, &l.Archived, &l.LastContactedAt, &l.CreatedAt,
	)
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
