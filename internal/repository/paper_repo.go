package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"papergen/internal/models"
)

type PaperRepo struct {
	pool *pgxpool.Pool
}

func NewPaperRepo(pool *pgxpool.Pool) *PaperRepo {
	return &PaperRepo{pool: pool}
}

func (r *PaperRepo) Create(ctx context.Context, p *models.PaperRecord) error {
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = "pending"
	}
	if len(p.QuestionsJSON) == 0 {
		p.QuestionsJSON = json.RawMessage("[]")
	}
	if len(p.AnswerKeyJSON) == 0 {
		p.AnswerKeyJSON = json.RawMessage("[]")
	}

	query := `INSERT INTO papers (id, topic, class_level, status, target_count, question_count, shortfall, questions_json, answer_key_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		p.ID, p.Topic, p.ClassLevel, p.Status, p.TargetCount, p.QuestionCount, p.Shortfall, p.QuestionsJSON, p.AnswerKeyJSON,
	).Scan(&p.CreatedAt)
}

func (r *PaperRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaperRecord, error) {
	p := &models.PaperRecord{}
	query := `SELECT id, topic, class_level, status, target_count, question_count, shortfall, questions_json, answer_key_json, created_at, completed_at
		FROM papers WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Topic, &p.ClassLevel, &p.Status, &p.TargetCount, &p.QuestionCount, &p.Shortfall,
		&p.QuestionsJSON, &p.AnswerKeyJSON, &p.CreatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaperRepo) List(ctx context.Context, limit int) ([]*models.PaperRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, topic, class_level, status, target_count, question_count, shortfall, questions_json, answer_key_json, created_at, completed_at
		FROM papers ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var papers []*models.PaperRecord
	for rows.Next() {
		p := &models.PaperRecord{}
		err := rows.Scan(
			&p.ID, &p.Topic, &p.ClassLevel, &p.Status, &p.TargetCount, &p.QuestionCount, &p.Shortfall,
			&p.QuestionsJSON, &p.AnswerKeyJSON, &p.CreatedAt, &p.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// UpdateResults stores the finished run: questions, answer key, counts and
// terminal status, stamping completed_at.
func (r *PaperRepo) UpdateResults(ctx context.Context, id uuid.UUID, questions, answerKey json.RawMessage, count, shortfall int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE papers SET questions_json = $1, answer_key_json = $2, question_count = $3, shortfall = $4,
			status = 'completed', completed_at = NOW() WHERE id = $5`,
		questions, answerKey, count, shortfall, id,
	)
	return err
}

func (r *PaperRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, "UPDATE papers SET status = $1 WHERE id = $2", status, id)
	return err
}
