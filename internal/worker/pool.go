package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"papergen/internal/diagram"
	"papergen/internal/models"
	"papergen/internal/pipeline"
	"papergen/internal/repository"
	"papergen/internal/services"
	"papergen/internal/writer"
)

const paperQueue = "queue:paper-generation"

// Pool consumes paper-generation jobs from the Redis queue. Each worker runs
// one job's pipeline end to end; the pipeline itself stays strictly
// sequential per run.
type Pool struct {
	redis       *redis.Client
	gemini      *services.GeminiService
	paperRepo   *repository.PaperRepo
	jobRepo     *repository.JobRepo
	storagePath string
	workerCount int
	pipelineOpt pipeline.Options
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	gemini *services.GeminiService,
	paperRepo *repository.PaperRepo,
	jobRepo *repository.JobRepo,
	storagePath string,
	workerCount int,
	pipelineOpt pipeline.Options,
) *Pool {
	return &Pool{
		redis:       redisClient,
		gemini:      gemini,
		paperRepo:   paperRepo,
		jobRepo:     jobRepo,
		storagePath: storagePath,
		workerCount: workerCount,
		pipelineOpt: pipelineOpt,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, paperQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Job lock so a re-queued duplicate is not processed twice
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 30*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		log.Printf("Worker %d: processing job %s (paper %s)", id, job.ID, job.ReferenceID)
		p.jobRepo.UpdateStatus(ctx, job.ID, "processing")

		if err := p.processPaper(ctx, &job); err != nil {
			p.handleFailure(ctx, &job, err)
		} else {
			p.handleSuccess(ctx, &job)
		}

		p.redis.Del(ctx, lockKey)
	}
}

// PublishUpdate sends a run event to the websocket relay channel.
func (p *Pool) PublishUpdate(ctx context.Context, runID uuid.UUID, msg models.WSMessage) {
	data, _ := json.Marshal(msg)
	p.redis.Publish(ctx, fmt.Sprintf("run_updates:%s", runID.String()), string(data))
}

func (p *Pool) processPaper(ctx context.Context, job *models.Job) error {
	record, err := p.paperRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to load paper record: %w", err)
	}
	p.paperRepo.UpdateStatus(ctx, record.ID, "processing")

	var config models.GeneratePaperRequest
	if err := json.Unmarshal(job.ConfigJSON, &config); err != nil {
		log.Printf("Worker: job %s carries unreadable config, using the stored target: %v", job.ID, err)
	}

	target := config.NumQuestions
	if target <= 0 {
		target = record.TargetCount
	}

	// Per-run output directory keyed by paper ID; topic-derived filenames
	// inside it, matching the CLI layout.
	runDir := filepath.Join(p.storagePath, record.ID.String())
	imagesDir := filepath.Join(runDir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	base := writer.BaseFilename(record.Topic, record.ClassLevel)
	texPath := filepath.Join(runDir, base+".tex")
	texFile, err := os.Create(texPath)
	if err != nil {
		return fmt.Errorf("failed to create document file: %w", err)
	}
	defer texFile.Close()

	lw := writer.NewLaTeXWriter(texFile, record.Topic, record.ClassLevel)
	if err := lw.Initialize(); err != nil {
		return err
	}

	opts := p.pipelineOpt
	opts.TargetCount = target
	opts.Progress = func(step string, done, targetCount int) {
		p.PublishUpdate(ctx, record.ID, models.WSMessage{
			Type: "status_update",
			Payload: models.StatusUpdate{
				RunID:          record.ID,
				Step:           step,
				QuestionsDone:  done,
				QuestionTarget: targetCount,
			},
		})
	}

	diagrams := services.NewDiagramService(p.gemini, diagram.NewRenderer(), imagesDir)
	orch := pipeline.New(p.gemini, p.gemini, p.gemini, diagrams, lw, opts)

	res, runErr := orch.Run(ctx, record.Topic, record.ClassLevel)

	// Close the document even when the run aborted partway: whatever was
	// written stays compilable.
	if lwErr := lw.Finalize(); lwErr != nil && runErr == nil {
		runErr = lwErr
	}
	if runErr != nil {
		return runErr
	}

	paper := res.Paper(record.Topic, record.ClassLevel)
	if err := writer.SaveMetadata(filepath.Join(runDir, base+".json"), paper); err != nil {
		return err
	}

	questionsJSON, err := json.Marshal(res.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}
	answerKeyJSON, err := json.Marshal(res.AnswerKey)
	if err != nil {
		return fmt.Errorf("failed to marshal answer key: %w", err)
	}
	if err := p.paperRepo.UpdateResults(ctx, record.ID, questionsJSON, answerKeyJSON, len(res.Questions), res.Shortfall); err != nil {
		return fmt.Errorf("failed to archive paper: %w", err)
	}

	if res.Shortfall > 0 {
		log.Printf("Worker: paper %s finished with shortfall %d (%d/%d questions)",
			record.ID, res.Shortfall, len(res.Questions), target)
	}
	return nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobRepo.UpdateStatus(ctx, job.ID, "completed")

	record, err := p.paperRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		log.Printf("Job %s completed but paper record unreadable: %v", job.ID, err)
		return
	}

	p.PublishUpdate(ctx, record.ID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			RunID:         record.ID,
			PaperID:       record.ID,
			QuestionCount: record.QuestionCount,
			Shortfall:     record.Shortfall,
		},
	})

	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < job.MaxRetries {
		log.Printf("Job %s failed (attempt %d): %s - retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "pending")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		// Re-queue after backoff
		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			p.redis.LPush(context.Background(), paperQueue, string(jobBytes))
		})
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
	p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	p.paperRepo.UpdateStatus(ctx, job.ReferenceID, "failed")

	p.PublishUpdate(ctx, job.ReferenceID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			RunID:        job.ReferenceID,
			ErrorCode:    "JOB_FAILED",
			ErrorMessage: errMsg,
		},
	})
}
