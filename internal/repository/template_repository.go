package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(id int) (*model.Template, error)
	Create(t *model.Template) error
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(id int) (*model.Template, error) {
	query := `SELECT id, name, message, variables, created_at FROM templates WHERE id=$1`
	var t model.Template
	err := r.DB.QueryRow(query, id).Scan(&t.ID, &t.Name, &t.Message, pq.Array(&t.Variables), &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) Create(t *model.Template) error {
	t.CreatedAt = time.Now()
	query := `
        INSERT INTO templates (name, message, variables, created_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `
	return r.DB.QueryRow(query, t.Name, t.Message, pq.Array(t.Variables), t.CreatedAt).Scan(&t.ID)
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
