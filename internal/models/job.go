package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is a queued paper-generation request processed by the worker pool.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"` // "paper-generation"
	ReferenceID  uuid.UUID       `json:"reference_id"`
	ConfigJSON   json.RawMessage `json:"config"`
	Status       string          `json:"status"` // "pending" | "processing" | "completed" | "failed"
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// WebSocket message types published over run_updates:<run_id>.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	RunID          uuid.UUID `json:"run_id"`
	Step           string    `json:"step"`
	QuestionsDone  int       `json:"questions_done"`
	QuestionTarget int       `json:"question_target"`
}

type CompletedEvent struct {
	RunID         uuid.UUID `json:"run_id"`
	PaperID       uuid.UUID `json:"paper_id"`
	QuestionCount int       `json:"question_count"`
	Shortfall     int       `json:"shortfall"`
}

type ErrorEvent struct {
	RunID        uuid.UUID `json:"run_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
