package questions

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/certforge/backend/internal/models"
)

// Writer is the long-term question store. It only ever inserts.
type Writer interface {
	SaveQuestions(ctx context.Context, examID, jobID string, qs []models.GeneratedQuestion) ([]int64, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveQuestions inserts every question and its answer choices in one
// transaction and returns the new question ids in input order.
func (s *Store) SaveQuestions(ctx context.Context, examID, jobID string, qs []models.GeneratedQuestion) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		var questionID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO questions
			 (exam_id, objective_id, job_id, source_question_id, question_text, correct_answer,
			  explanation, difficulty, model_id, research_based, was_fixed, original_question_id,
			  generated_at, fixed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 RETURNING id`,
			examID, q.ObjectiveID, jobID, q.ID, q.Question, q.CorrectAnswer,
			q.Explanation, q.Difficulty, q.Metadata.ModelID, q.Metadata.ResearchBased,
			q.Metadata.WasFixed, nullString(q.Metadata.OriginalID),
			q.Metadata.GeneratedAt, q.Metadata.FixedAt,
		).Scan(&questionID)
		if err != nil {
			return nil, fmt.Errorf("insert question %s: %w", q.ID, err)
		}

		for _, c := range q.StoredChoices() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO answer_choices (question_id, choice_id, choice_text, is_correct)
				 VALUES ($1, $2, $3, $4)`,
				questionID, c.ChoiceID, c.ChoiceText, c.IsCorrect,
			); err != nil {
				return nil, fmt.Errorf("insert choice %s for question %s: %w", c.ChoiceID, q.ID, err)
			}
		}
		ids = append(ids, questionID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StoredQuestion is a question row as held by MemoryStore.
type StoredQuestion struct {
	ID       int64
	ExamID   string
	JobID    string
	Question models.GeneratedQuestion
	Choices  []models.StoredChoice
}

// MemoryStore is an in-process Writer used by tests and the mock provider.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []StoredQuestion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) SaveQuestions(_ context.Context, examID, jobID string, qs []models.GeneratedQuestion) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		m.nextID++
		m.rows = append(m.rows, StoredQuestion{
			ID:       m.nextID,
			ExamID:   examID,
			JobID:    jobID,
			Question: q.Clone(),
			Choices:  q.StoredChoices(),
		})
		ids = append(ids, m.nextID)
	}
	return ids, nil
}

// Rows returns a copy of everything saved so far.
func (m *MemoryStore) Rows() []StoredQuestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoredQuestion(nil), m.rows...)
}
