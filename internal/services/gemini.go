package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"papergen/internal/diagram"
	"papergen/internal/models"
)

// ErrDiagramTooComplex is the vector collaborator's explicit signal that a
// figure should be rendered as a raster image instead of TikZ.
var ErrDiagramTooComplex = errors.New("diagram too complex for TikZ")

// frameMaxAttempts bounds the internal retries against malformed framer
// output before the idea is declared wasted.
const frameMaxAttempts = 3

// GeminiService is the generative collaborator behind every model-backed
// pipeline stage: idea research, question framing, validation and both
// diagram paths.
type GeminiService struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiService(ctx context.Context, apiKey, modelName string) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	model.SetTopP(0.95)

	return &GeminiService{client: client, model: model}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// GenerateIdeas asks for 40-50 candidate question ideas for the topic.
func (s *GeminiService) GenerateIdeas(ctx context.Context, topic, classLevel string) ([]string, error) {
	prompt := buildIdeasPrompt(topic, classLevel)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	raw := extractJSONObject(extractText(resp))
	if raw == "" {
		return nil, fmt.Errorf("idea response contained no JSON object")
	}

	var parsed struct {
		Ideas []string `json:"ideas"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse idea list: %w", err)
	}

	ideas := make([]string, 0, len(parsed.Ideas))
	for _, idea := range parsed.Ideas {
		if trimmed := strings.TrimSpace(idea); trimmed != "" {
			ideas = append(ideas, trimmed)
		}
	}
	return ideas, nil
}

// rawQuestion is the framer's response before normalization.
type rawQuestion struct {
	QuestionID    string   `json:"question_id"`
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
	Difficulty    string   `json:"difficulty"`
	NeedsDiagram  bool     `json:"needs_diagram"`
}

// FrameQuestion converts one idea into a candidate question. Malformed model
// output is retried a few times internally; if every attempt fails the idea
// is wasted and an error is returned.
func (s *GeminiService) FrameQuestion(ctx context.Context, idea, topic, classLevel, questionID, difficulty string) (*models.Question, error) {
	prompt := buildFramePrompt(idea, topic, classLevel, questionID, difficulty)

	var lastErr error
	for attempt := 1; attempt <= frameMaxAttempts; attempt++ {
		resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = fmt.Errorf("Gemini API error: %w", err)
			continue
		}

		q, err := parseFramedQuestion(extractText(resp), questionID, difficulty)
		if err != nil {
			lastErr = err
			continue
		}
		return q, nil
	}
	return nil, fmt.Errorf("framing failed after %d attempts: %w", frameMaxAttempts, lastErr)
}

// parseFramedQuestion extracts, checks and normalizes a framed question.
func parseFramedQuestion(text, questionID, difficulty string) (*models.Question, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("framer response contained no JSON object")
	}

	var rq rawQuestion
	if err := json.Unmarshal([]byte(raw), &rq); err != nil {
		return nil, fmt.Errorf("failed to parse framed question: %w", err)
	}

	if strings.TrimSpace(rq.QuestionText) == "" {
		return nil, fmt.Errorf("framed question has empty question_text")
	}
	lower := strings.ToLower(rq.QuestionText)
	if strings.Contains(lower, "sample question") || strings.Contains(lower, "option 1") {
		return nil, fmt.Errorf("framer returned placeholder content")
	}
	if len(rq.Options) == 0 {
		return nil, fmt.Errorf("framed question has no options")
	}

	q := &models.Question{
		ID:            questionID,
		Text:          strings.TrimSpace(rq.QuestionText),
		Options:       normalizeOptions(rq.Options),
		CorrectOption: rq.CorrectOption,
		Difficulty:    difficulty,
		NeedsDiagram:  rq.NeedsDiagram,
	}
	if !models.ValidOption(q.CorrectOption) {
		q.CorrectOption = "A"
	}
	return q, nil
}

// Validate submits a candidate to the validator stage.
func (s *GeminiService) Validate(ctx context.Context, q *models.Question, topic, classLevel string) (*models.ValidationResult, error) {
	prompt, err := buildValidatePrompt(q, topic, classLevel)
	if err != nil {
		return nil, err
	}

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	return parseValidation(extractText(resp), q)
}

func parseValidation(text string, q *models.Question) (*models.ValidationResult, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("validator response contained no JSON object")
	}

	var parsed struct {
		IsValid     bool   `json:"is_valid"`
		Feedback    string `json:"feedback"`
		Corrections *struct {
			QuestionText  string   `json:"question_text"`
			Options       []string `json:"options"`
			CorrectOption string   `json:"correct_option"`
		} `json:"suggested_corrections"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse validation result: %w", err)
	}

	result := &models.ValidationResult{
		IsValid:  parsed.IsValid,
		Feedback: parsed.Feedback,
	}
	if !parsed.IsValid && parsed.Corrections != nil {
		corrected := *q
		if parsed.Corrections.QuestionText != "" {
			corrected.Text = parsed.Corrections.QuestionText
		}
		if len(parsed.Corrections.Options) > 0 {
			corrected.Options = normalizeOptions(parsed.Corrections.Options)
		}
		if models.ValidOption(parsed.Corrections.CorrectOption) {
			corrected.CorrectOption = parsed.Corrections.CorrectOption
		}
		result.Corrected = &corrected
	}
	return result, nil
}

// GenerateDiagram requests TikZ source for a question's figure. Returns
// ErrDiagramTooComplex when the collaborator flags the figure for the raster
// path instead.
func (s *GeminiService) GenerateDiagram(ctx context.Context, q *models.Question, topic string) (string, error) {
	prompt := buildDiagramPrompt(q, topic)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	raw := extractJSONObject(extractText(resp))
	if raw == "" {
		return "", fmt.Errorf("diagram response contained no JSON object")
	}

	var parsed struct {
		DiagramCode string `json:"diagram_code"`
		TooComplex  bool   `json:"too_complex"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse diagram response: %w", err)
	}

	if parsed.TooComplex {
		return "", ErrDiagramTooComplex
	}
	code := strings.TrimSpace(parsed.DiagramCode)
	if code == "" {
		return "", fmt.Errorf("diagram response contained no TikZ code")
	}
	return code, nil
}

// PlanImage requests a raster plot spec for figures the vector path declined.
func (s *GeminiService) PlanImage(ctx context.Context, q *models.Question, topic string) (*diagram.PlotSpec, error) {
	prompt := buildImagePrompt(q, topic)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	raw := extractJSONObject(extractText(resp))
	if raw == "" {
		return nil, fmt.Errorf("image plan response contained no JSON object")
	}

	var spec diagram.PlotSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse plot spec: %w", err)
	}
	if !spec.Drawable() {
		return nil, fmt.Errorf("plot spec contains no drawable elements")
	}
	return &spec, nil
}

// Helper functions

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// stripCodeFence removes a surrounding markdown code block, if any.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// extractJSONObject returns the outermost JSON object in text, tolerating
// prose or fences around it. Empty string when no object is present.
func extractJSONObject(text string) string {
	text = stripCodeFence(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// stripOptionLabel removes a leading option label ("A.", "b)", "C:") that
// models sometimes prepend despite instructions.
func stripOptionLabel(opt string) string {
	s := strings.TrimSpace(opt)
	if len(s) < 2 {
		return s
	}
	letter := s[0]
	if letter >= 'a' && letter <= 'd' {
		letter -= 'a' - 'A'
	}
	if letter < 'A' || letter > 'D' {
		return s
	}
	rest := s[1:]
	trimmed := strings.TrimLeft(rest, ".):  \t")
	if len(trimmed) == len(rest) {
		return s // no separator, the letter is part of the text
	}
	return strings.TrimSpace(trimmed)
}

// normalizeOptions strips labels and forces exactly four entries.
func normalizeOptions(options []string) []string {
	out := make([]string, 0, 4)
	for _, opt := range options {
		if len(out) == 4 {
			break
		}
		out = append(out, stripOptionLabel(opt))
	}
	for len(out) < 4 {
		out = append(out, "N/A")
	}
	return out
}

// Prompt builders

func buildIdeasPrompt(topic, classLevel string) string {
	var b strings.Builder

	b.WriteString("You are an expert question-paper researcher. Collect 40-50 creative question ideas for an exam paper.\n\n")
	fmt.Fprintf(&b, "Topic: %s\nSuitable for: %s\n\n", topic, classLevel)
	b.WriteString("Focus on higher-order thinking, application-based problems, conceptual understanding and problem-solving scenarios.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(`Schema:
{"topic": "string", "class_level": "string", "ideas": ["short idea string", ...]}
`)

	return b.String()
}

func buildFramePrompt(idea, topic, classLevel, questionID, difficulty string) string {
	var b strings.Builder

	b.WriteString("You are an expert exam author. Convert this question idea into a complete MCQ.\n\n")
	fmt.Fprintf(&b, "Idea: %s\nTopic: %s\nClass Level: %s\nDifficulty: %s\nQuestion ID: %s\n\n", idea, topic, classLevel, difficulty, questionID)
	b.WriteString(`Rules:
- Clear question statement (use LaTeX for math: $...$)
- Exactly 4 options WITHOUT labels (no "A:", "B)", just the option text)
- Exactly one correct option, named as "A", "B", "C" or "D"
- Distractors must be plausible
- Do NOT embed the options in question_text
- Set needs_diagram true only when the question cannot be understood without a figure

CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.

Schema:
{"question_id": "string", "question_text": "string", "options": ["string","string","string","string"], "correct_option": "A", "difficulty": "string", "needs_diagram": false}
`)

	return b.String()
}

func buildValidatePrompt(q *models.Question, topic, classLevel string) (string, error) {
	questionJSON, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling question for validation: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are an expert reviewer of exam questions. Validate this MCQ.\n\n")
	b.Write(questionJSON)
	fmt.Fprintf(&b, "\n\nTopic: %s\nClass Level: %s\n\n", topic, classLevel)
	b.WriteString(`Check:
1. Is the question mathematically and factually correct?
2. Is exactly one option correct?
3. Is the phrasing clear and unambiguous?
4. Are there grammatical errors?
5. Is the difficulty appropriate for the class level?
6. Do all options contain real content (no placeholders like "Option 1" or "N/A")?

CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.

Schema:
{"is_valid": true, "feedback": "string", "suggested_corrections": {"question_text": "string", "options": ["string"], "correct_option": "A"} or null}
`)

	return b.String(), nil
}

func buildDiagramPrompt(q *models.Question, topic string) string {
	var b strings.Builder

	b.WriteString("You are a LaTeX figure author. Generate a TikZ or PGFPlots diagram for this exam question.\n\n")
	fmt.Fprintf(&b, "Question: %s\nTopic: %s\n\n", q.Text, topic)
	b.WriteString(`If the figure is simple (basic geometry, function graphs), provide TikZ code.
If it is complex (data plots, many labeled elements), set too_complex true and leave diagram_code empty.

CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.

Schema:
{"diagram_code": "\\begin{tikzpicture}...\\end{tikzpicture}", "too_complex": false}
`)

	return b.String()
}

func buildImagePrompt(q *models.Question, topic string) string {
	var b strings.Builder

	b.WriteString("You are a figure planner. Describe the diagram for this exam question as a plot specification that a 2D renderer will draw.\n\n")
	fmt.Fprintf(&b, "Question: %s\nTopic: %s\n\n", q.Text, topic)
	b.WriteString(`CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.

Schema:
{"title": "string", "x_min": -10, "x_max": 10, "y_min": -10, "y_max": 10, "axes": true,
 "points": [{"x": 0, "y": 0, "label": "A"}],
 "segments": [{"x1": 0, "y1": 0, "x2": 1, "y2": 1, "label": ""}],
 "circles": [{"cx": 0, "cy": 0, "r": 1, "label": "", "filled": false}],
 "functions": [{"expr": "x^2 - 2*x + 1", "x_min": -2, "x_max": 4, "label": "y = x^2 - 2x + 1"}]}

Function expressions are sampled by the renderer: use + - * / ^, parentheses,
the variable x, and sin/cos/tan/exp/log/sqrt/abs. Write multiplication
explicitly (2*x, never 2x).

Keep it minimal: only the elements needed to understand the question.
`)

	return b.String()
}
