// Package catalog is the read-only exam/objective lookup the pipeline consumes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/certforge/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

type Reader interface {
	GetExam(ctx context.Context, examID string) (*models.Exam, error)
	GetObjective(ctx context.Context, objectiveID string) (*models.Objective, error)
	ListObjectives(ctx context.Context, examID string) ([]models.Objective, error)
}

// Memory is an in-process catalog, used in tests and local runs.
type Memory struct {
	mu         sync.RWMutex
	exams      map[string]models.Exam
	objectives map[string]models.Objective
}

func NewMemory() *Memory {
	return &Memory{
		exams:      make(map[string]models.Exam),
		objectives: make(map[string]models.Objective),
	}
}

func (m *Memory) AddExam(e models.Exam) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exams[e.ID] = e
}

func (m *Memory) AddObjective(o models.Objective) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objectives[o.ID] = o
}

func (m *Memory) GetExam(_ context.Context, examID string) (*models.Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[examID]
	if !ok {
		return nil, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}
	return &e, nil
}

func (m *Memory) GetObjective(_ context.Context, objectiveID string) (*models.Objective, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objectives[objectiveID]
	if !ok {
		return nil, fmt.Errorf("objective %s: %w", objectiveID, ErrNotFound)
	}
	return &o, nil
}

func (m *Memory) ListObjectives(_ context.Context, examID string) ([]models.Objective, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Objective
	for _, o := range m.objectives {
		if o.ExamID == examID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
