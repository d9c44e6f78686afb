package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"papergen/internal/middleware"
	"papergen/internal/models"
	"papergen/internal/repository"
	"papergen/internal/writer"
)

const paperQueue = "queue:paper-generation"

type PaperHandler struct {
	paperRepo *repository.PaperRepo
	jobRepo   *repository.JobRepo
	redis     *redis.Client
	auth      *middleware.JWTAuth
	maxCount  int
}

func NewPaperHandler(paperRepo *repository.PaperRepo, jobRepo *repository.JobRepo, redisClient *redis.Client, auth *middleware.JWTAuth, maxCount int) *PaperHandler {
	if maxCount <= 0 {
		maxCount = 100
	}
	return &PaperHandler{
		paperRepo: paperRepo,
		jobRepo:   jobRepo,
		redis:     redisClient,
		auth:      auth,
		maxCount:  maxCount,
	}
}

// Generate accepts a paper request, archives a pending record and enqueues a
// generation job. Responds 202 with the paper/job IDs and a run-scoped token
// for the progress websocket.
func (h *PaperHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GeneratePaperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if fields := validateGenerateRequest(&req, h.maxCount); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}
	if req.NumQuestions == 0 {
		req.NumQuestions = 25
	}

	record := &models.PaperRecord{
		Topic:       req.Topic,
		ClassLevel:  req.ClassLevel,
		TargetCount: req.NumQuestions,
	}
	if err := h.paperRepo.Create(r.Context(), record); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL", "Failed to create paper record", r))
		return
	}

	configJSON, _ := json.Marshal(req)
	job := &models.Job{
		Type:        "paper-generation",
		ReferenceID: record.ID,
		ConfigJSON:  configJSON,
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL", "Failed to create job", r))
		return
	}

	jobBytes, _ := json.Marshal(job)
	if err := h.redis.LPush(r.Context(), paperQueue, string(jobBytes)).Err(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL", "Failed to enqueue job", r))
		return
	}

	wsToken, err := h.auth.GenerateRunToken(record.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL", "Failed to sign run token", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"paper_id": record.ID,
		"job_id":   job.ID,
		"ws_token": wsToken,
	})
}

func validateGenerateRequest(req *models.GeneratePaperRequest, maxCount int) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(req.Topic) == "" {
		fields["topic"] = "topic is required"
	}
	if strings.TrimSpace(req.ClassLevel) == "" {
		fields["class_level"] = "class_level is required"
	}
	if req.NumQuestions < 0 || req.NumQuestions > maxCount {
		fields["num_questions"] = fmt.Sprintf("num_questions must be between 1 and %d, or 0 for the default", maxCount)
	}
	return fields
}

func (h *PaperHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	papers, err := h.paperRepo.List(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL", "Failed to list papers", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"papers": papers})
}

func (h *PaperHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid paper ID", r))
		return
	}

	paper, err := h.paperRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Paper not found", r))
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

// GetLaTeX re-renders the document from the archived metadata. Rendering is
// deterministic, so repeated downloads of the same paper are byte-identical.
func (h *PaperHandler) GetLaTeX(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid paper ID", r))
		return
	}

	record, err := h.paperRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Paper not found", r))
		return
	}
	if record.Status != "completed" {
		writeJSON(w, http.StatusConflict, errorResp("NOT_READY", "Paper generation has not completed", r))
		return
	}

	paper := &models.Paper{
		Topic:      record.Topic,
		ClassLevel: record.ClassLevel,
	}
	if err := json.Unmarshal(record.QuestionsJSON, &paper.Questions); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL", "Stored questions are unreadable", r))
		return
	}

	var buf bytes.Buffer
	if err := writer.RenderPaper(&buf, paper); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL", "Failed to render document", r))
		return
	}

	filename := writer.BaseFilename(record.Topic, record.ClassLevel) + ".tex"
	w.Header().Set("Content-Type", "application/x-tex")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(buf.Bytes())
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}
