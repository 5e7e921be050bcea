package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/certforge/backend/internal/models"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) GetExam(ctx context.Context, examID string) (*models.Exam, error) {
	var e models.Exam
	err := p.db.QueryRowContext(ctx,
		`SELECT id, code, name, vendor, COALESCE(description, '')
		 FROM exams WHERE id = $1`,
		examID,
	).Scan(&e.ID, &e.Code, &e.Name, &e.Vendor, &e.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return &e, nil
}

func (p *Postgres) GetObjective(ctx context.Context, objectiveID string) (*models.Objective, error) {
	var o models.Objective
	err := p.db.QueryRowContext(ctx,
		`SELECT id, exam_id, code, title, COALESCE(description, '')
		 FROM objectives WHERE id = $1`,
		objectiveID,
	).Scan(&o.ID, &o.ExamID, &o.Code, &o.Title, &o.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("objective %s: %w", objectiveID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get objective: %w", err)
	}
	return &o, nil
}

func (p *Postgres) ListObjectives(ctx context.Context, examID string) ([]models.Objective, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, exam_id, code, title, COALESCE(description, '')
		 FROM objectives WHERE exam_id = $1
		 ORDER BY sort_order, code`,
		examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	defer rows.Close()

	var out []models.Objective
	for rows.Next() {
		var o models.Objective
		if err := rows.Scan(&o.ID, &o.ExamID, &o.Code, &o.Title, &o.Description); err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
