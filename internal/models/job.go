package models

import (
	"encoding/json"
	"fmt"
)

type JobType string

const (
	JobTypeObjective JobType = "objective"
	JobTypeGenerate  JobType = "generate"
)

type ObjectiveJob struct {
	JobID         string     `json:"job_id"`
	ExamID        string     `json:"exam_id"`
	ObjectiveID   string     `json:"objective_id"`
	UserID        string     `json:"user_id"`
	QuestionCount int        `json:"question_count"`
	Difficulty    Difficulty `json:"difficulty"`
	ModelID       string     `json:"model_id,omitempty"`
}

type GenerateJob struct {
	JobID       string         `json:"job_id"`
	ObjectiveID string         `json:"objective_id"`
	Research    ResearchResult `json:"research"`
	Difficulty  Difficulty     `json:"difficulty"`
	ModelID     string         `json:"model_id,omitempty"`
}

// QueueJob is a queue message. On the wire it is a flat JSON object
// discriminated by its "type" field; exactly one variant is set.
type QueueJob struct {
	Type      JobType
	Objective *ObjectiveJob
	Generate  *GenerateJob
}

func NewObjectiveMessage(j ObjectiveJob) QueueJob {
	return QueueJob{Type: JobTypeObjective, Objective: &j}
}

func NewGenerateMessage(j GenerateJob) QueueJob {
	return QueueJob{Type: JobTypeGenerate, Generate: &j}
}

// JobID returns the owning generation job id of either variant.
func (m QueueJob) JobID() string {
	switch {
	case m.Objective != nil:
		return m.Objective.JobID
	case m.Generate != nil:
		return m.Generate.JobID
	}
	return ""
}

func (m QueueJob) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case JobTypeObjective:
		if m.Objective == nil {
			return nil, fmt.Errorf("objective message without payload")
		}
		return json.Marshal(struct {
			Type JobType `json:"type"`
			*ObjectiveJob
		}{m.Type, m.Objective})
	case JobTypeGenerate:
		if m.Generate == nil {
			return nil, fmt.Errorf("generate message without payload")
		}
		return json.Marshal(struct {
			Type JobType `json:"type"`
			*GenerateJob
		}{m.Type, m.Generate})
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

func (m *QueueJob) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type JobType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.Type {
	case JobTypeObjective:
		var j ObjectiveJob
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("decode objective message: %w", err)
		}
		*m = NewObjectiveMessage(j)
	case JobTypeGenerate:
		var j GenerateJob
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("decode generate message: %w", err)
		}
		*m = NewGenerateMessage(j)
	default:
		return fmt.Errorf("unknown message type %q", probe.Type)
	}
	return nil
}
