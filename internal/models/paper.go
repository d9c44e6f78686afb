package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnswerKeyEntry pairs a question ID with its correct option letter. The
// answer key always has one entry per written question, in document order.
type AnswerKeyEntry struct {
	QuestionID    string `json:"question_id"`
	CorrectOption string `json:"correct_option"`
}

// Paper is the metadata record for one generation run: the validated
// questions in document order plus the answer key. This is the structure
// persisted as the <base>.json metadata file and the input to the
// document-only re-render mode.
type Paper struct {
	Topic          string           `json:"topic"`
	ClassLevel     string           `json:"class_level"`
	Questions      []Question       `json:"questions"`
	TotalQuestions int              `json:"total_questions"`
	AnswerKey      []AnswerKeyEntry `json:"answer_key"`
}

// PaperRecord is the archived form of a paper as stored in Postgres.
type PaperRecord struct {
	ID            uuid.UUID       `json:"id"`
	Topic         string          `json:"topic"`
	ClassLevel    string          `json:"class_level"`
	Status        string          `json:"status"` // "pending" | "processing" | "completed" | "failed"
	TargetCount   int             `json:"target_count"`
	QuestionCount int             `json:"question_count"`
	Shortfall     int             `json:"shortfall"`
	QuestionsJSON json.RawMessage `json:"questions"`
	AnswerKeyJSON json.RawMessage `json:"answer_key"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at"`
}

// GeneratePaperRequest is the server-mode request to start a generation run.
type GeneratePaperRequest struct {
	Topic        string `json:"topic"`
	ClassLevel   string `json:"class_level"`
	NumQuestions int    `json:"num_questions"`
}
