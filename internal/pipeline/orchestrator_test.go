package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"papergen/internal/models"
)

// Fakes

type fakeIdeas struct {
	ideas []string
	err   error
	calls int
}

func (f *fakeIdeas) GenerateIdeas(ctx context.Context, topic, classLevel string) ([]string, error) {
	f.calls++
	return f.ideas, f.err
}

type fakeFramer struct {
	failFor map[string]bool // idea -> fail
	calls   int
}

func (f *fakeFramer) FrameQuestion(ctx context.Context, idea, topic, classLevel, questionID, difficulty string) (*models.Question, error) {
	f.calls++
	if f.failFor[idea] {
		return nil, errors.New("framer glitch")
	}
	return &models.Question{
		ID:            questionID,
		Text:          "What is " + idea + "?",
		Options:       []string{"w", "x", "y", "z"},
		CorrectOption: "B",
		Difficulty:    difficulty,
	}, nil
}

// fakeValidator replays a scripted sequence of outcomes per question ID.
// Each entry is consumed in order; when the script runs out the validator
// approves.
type fakeValidator struct {
	script map[string][]validatorStep
	calls  int
}

type validatorStep struct {
	err       error
	valid     bool
	feedback  string
	corrected *models.Question
}

func (f *fakeValidator) Validate(ctx context.Context, q *models.Question, topic, classLevel string) (*models.ValidationResult, error) {
	f.calls++
	steps := f.script[q.ID]
	if len(steps) == 0 {
		return &models.ValidationResult{IsValid: true}, nil
	}
	step := steps[0]
	f.script[q.ID] = steps[1:]
	if step.err != nil {
		return nil, step.err
	}
	return &models.ValidationResult{
		IsValid:   step.valid,
		Feedback:  step.feedback,
		Corrected: step.corrected,
	}, nil
}

type fakeDiagrams struct {
	err   error
	calls int
}

func (f *fakeDiagrams) AttachDiagram(ctx context.Context, q *models.Question, topic string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	q.DiagramCode = `\begin{tikzpicture}\end{tikzpicture}`
	return nil
}

type fakeWriter struct {
	written []models.Question
	failOn  string // question ID that triggers a write error
}

func (f *fakeWriter) WriteQuestion(q *models.Question) error {
	if f.failOn != "" && q.ID == f.failOn {
		return errors.New("disk full")
	}
	f.written = append(f.written, *q)
	return nil
}

func newTestOrchestrator(ideas IdeaSource, framer QuestionFramer, validator Validator, diagrams DiagramPlanner, w DocumentWriter, opts Options) *Orchestrator {
	return New(ideas, framer, validator, diagrams, w, opts)
}

func ideaList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("idea %d", i+1)
	}
	return out
}

// Tests

func TestRunProducesTargetCount(t *testing.T) {
	ideas := &fakeIdeas{ideas: ideaList(10)}
	framer := &fakeFramer{}
	validator := &fakeValidator{script: map[string][]validatorStep{}}
	w := &fakeWriter{}

	o := newTestOrchestrator(ideas, framer, validator, &fakeDiagrams{}, w, Options{TargetCount: 3})
	res, err := o.Run(context.Background(), "Quadratic Equations", "Grade 10")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(res.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(res.Questions))
	}
	if res.Shortfall != 0 {
		t.Errorf("expected no shortfall, got %d", res.Shortfall)
	}
	if len(w.written) != 3 {
		t.Errorf("expected 3 written questions, got %d", len(w.written))
	}
	// Only 3 ideas should have been consumed, the rest stay unused.
	if framer.calls != 3 {
		t.Errorf("expected 3 framer calls, got %d", framer.calls)
	}
	if ideas.calls != 1 {
		t.Errorf("idea source should be invoked exactly once, got %d calls", ideas.calls)
	}
}

func TestRunShortfallWhenIdeasExhausted(t *testing.T) {
	ideas := &fakeIdeas{ideas: ideaList(4)}
	validator := &fakeValidator{script: map[string][]validatorStep{}}
	w := &fakeWriter{}

	o := newTestOrchestrator(ideas, &fakeFramer{}, validator, &fakeDiagrams{}, w, Options{TargetCount: 10})
	res, err := o.Run(context.Background(), "Optics", "Grade 12")
	if err != nil {
		t.Fatalf("idea exhaustion must not be an error, got: %v", err)
	}

	if len(res.Questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(res.Questions))
	}
	if res.Shortfall != 6 {
		t.Errorf("expected shortfall 6, got %d", res.Shortfall)
	}
	if ideas.calls != 1 {
		t.Errorf("exhaustion must not trigger idea regeneration, got %d calls", ideas.calls)
	}
}

func TestRunEmptyIdeasIsFatal(t *testing.T) {
	o := newTestOrchestrator(&fakeIdeas{ideas: nil}, &fakeFramer{}, &fakeValidator{}, &fakeDiagrams{}, &fakeWriter{}, Options{TargetCount: 5})
	_, err := o.Run(context.Background(), "Topic", "Level")
	if !errors.Is(err, ErrNoIdeas) {
		t.Fatalf("expected ErrNoIdeas, got %v", err)
	}
}

func TestRunIdeaSourceErrorIsFatal(t *testing.T) {
	srcErr := errors.New("quota exceeded")
	o := newTestOrchestrator(&fakeIdeas{err: srcErr}, &fakeFramer{}, &fakeValidator{}, &fakeDiagrams{}, &fakeWriter{}, Options{TargetCount: 5})
	_, err := o.Run(context.Background(), "Topic", "Level")
	if !errors.Is(err, srcErr) {
		t.Fatalf("expected wrapped idea source error, got %v", err)
	}
}

func TestRunFramingFailureWastesIdea(t *testing.T) {
	ideas := &fakeIdeas{ideas: ideaList(5)}
	framer := &fakeFramer{failFor: map[string]bool{"idea 2": true}}
	validator := &fakeValidator{script: map[string][]validatorStep{}}
	w := &fakeWriter{}

	o := newTestOrchestrator(ideas, framer, validator, &fakeDiagrams{}, w, Options{TargetCount: 5})
	res, err := o.Run(context.Background(), "Topic", "Level")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// One idea wasted on a framing failure, so 4 of 5 land.
	if len(res.Questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(res.Questions))
	}
	if res.Shortfall != 1 {
		t.Errorf("expected shortfall 1, got %d", res.Shortfall)
	}
	if res.Framed != 4 {
		t.Errorf("expected Framed=4, got %d", res.Framed)
	}
}

func TestValidateDiscardsAfterMaxAttempts(t *testing.T) {
	ideas := &fakeIdeas{ideas: ideaList(2)}
	validator := &fakeValidator{script: map[string][]validatorStep{
		"Q01": {
			{valid: false, feedback: "wrong answer"},
			{valid: false, feedback: "still wrong"},
			{valid: false, feedback: "still wrong"},
			{valid: false, feedback: "still wrong"},
			{valid: false, feedback: "give up"},
		},
	}}
	w := &fakeWriter{}

	o := newTestOrchestrator(ideas, &fakeFramer{}, validator, &fakeDiagrams{}, w, Options{TargetCount: 2, MaxValidationAttempts: 5})
	res, err := o.Run(context.Background(), "Topic", "Level")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if res.Discarded != 1 {
		t.Errorf("expected 1 discarded question, got %d", res.Discarded)
	}
	if len(res.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(res.Questions))
	}
	// The discarded candidate must never reach the document.
	for _, q := range w.written {
		if q.ID == "Q01" {
			t.Error("discarded question Q01 was written to the document")
		}
	}
}

func TestValidateCorrectionReplacesCandidate(t *testing.T) {
	corrected := &models.Question{
		ID:            "Q01",
		Text:          "Corrected text",
		Options:       []string{"1", "2", "3", "4"},
		CorrectOption: "C",
		Difficulty:    models.DifficultyBasic,
	}
	ideas := &fakeIdeas{ideas: ideaList(1)}
	validator := &fakeValidator{script: map[string][]validatorStep{
		"Q01": {
			{valid: false, feedback: "answer key is wrong", corrected: corrected},
			{valid: true},
		},
	}}
	w := &fakeWriter{}

	o := newTestOrchestrator(ideas, &fakeFramer{}, validator, &fakeDiagrams{}, w, Options{TargetCount: 1})
	res, err := o.Run(context.Background(), "Topic", "Level")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(res.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(res.Questions))
	}
	got := res.Questions[0]
	if got.Text != "Corrected text" || got.CorrectOption != "C" {
		t.Errorf("corrected candidate did not replace the original: %+v", got)
	}
	if res.AnswerKey[0].CorrectOption != "C" {
		t.Errorf("answer key entry should follow the correction, got %s", res.AnswerKey[0].CorrectOption)
	}
}

func TestValidateTransportErrorCountsAsAttempt(t *testing.T) {
	ideas := &fakeIdeas{ideas: ideaList(1)}
	validator := &fakeValidator{script: map[string][]validatorStep{
		"Q01": {
			{err: errors.New("timeout")},
			{err: errors.New("timeout")},
			{err: errors.New("timeout")},
		},
	}}
	w := &fakeWriter{}

	o := newTestOrchestrator(ideas, &fakeFramer{}, validator, &fakeDiagrams{}, w, Options{TargetCount: 1, MaxValidationAttempts: 3})
	res, err := o.Run(context.Background(), "Topic", "Level")
	if err != nil {
		t.Fatalf("validator errors must not abort the run: %v", err)
	}

	if validator.calls != 3 {
		t.Errorf("expected exactly 3 validation attempts, got %d", validator.calls)
	}
	if res.Discarded != 1 {
		t.Errorf("expected candidate discarded after errored attempts, got Discarded=%d", res.Discarded)
	}
}

func TestDiagramFailureKeepsQuestion(t *testing.T) {
	ideas := &fakeIdeas{ideas: []string{"vectors"}}
	framer := &diagramFramer{}
	validator := &fakeValidator{script: map[string][]validatorStep{}}
	diagrams := &fakeDiagrams{err: errors.New("renderer broke")}
	w := &fakeWriter{}

	o := newTestOrchestrator(ideas, framer, validator, diagrams, w, Options{TargetCount: 1})
	res, err := o.Run(context.Background(), "Topic", "Level")
	if err != nil {
		t.Fatalf("diagram failure must not abort the run: %v", err)
	}

	if len(res.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(res.Questions))
	}
	q := res.Questions[0]
	if q.DiagramCode != "" || q.ImagePath != "" {
		t.Errorf("failed diagram should leave the question without a figure: %+v", q)
	}
	if diagrams.calls != 1 {
		t.Errorf("expected 1 diagram attempt, got %d", diagrams.calls)
	}
}

// diagramFramer always produces questions that ask for a figure.
type diagramFramer struct{}

func (diagramFramer) FrameQuestion(ctx context.Context, idea, topic, classLevel, questionID, difficulty string) (*models.Question, error) {
	return &models.Question{
		ID:            questionID,
		Text:          "Diagram question",
		Options:       []string{"a", "b", "c", "d"},
		CorrectOption: "A",
		Difficulty:    difficulty,
		NeedsDiagram:  true,
	}, nil
}

func TestRunWriteFailureAborts(t *testing.T) {
	ideas := &fakeIdeas{ideas: ideaList(5)}
	validator := &fakeValidator{script: map[string][]validatorStep{}}
	w := &fakeWriter{failOn: "Q02"}

	o := newTestOrchestrator(ideas, &fakeFramer{}, validator, &fakeDiagrams{}, w, Options{TargetCount: 5})
	res, err := o.Run(context.Background(), "Topic", "Level")
	if err == nil {
		t.Fatal("expected write failure to abort the run")
	}
	if len(res.Questions) != 1 {
		t.Errorf("expected 1 question committed before the failure, got %d", len(res.Questions))
	}
}

func TestAnswerKeyMatchesQuestions(t *testing.T) {
	ideas := &fakeIdeas{ideas: ideaList(6)}
	validator := &fakeValidator{script: map[string][]validatorStep{}}
	w := &fakeWriter{}

	o := newTestOrchestrator(ideas, &fakeFramer{}, validator, &fakeDiagrams{}, w, Options{TargetCount: 6})
	res, err := o.Run(context.Background(), "Topic", "Level")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(res.AnswerKey) != len(res.Questions) {
		t.Fatalf("answer key has %d entries for %d questions", len(res.AnswerKey), len(res.Questions))
	}
	for i, entry := range res.AnswerKey {
		q := res.Questions[i]
		if entry.QuestionID != q.ID {
			t.Errorf("answer key entry %d references %s, question is %s", i, entry.QuestionID, q.ID)
		}
		if entry.CorrectOption != q.CorrectOption {
			t.Errorf("answer key entry %d option %s != question option %s", i, entry.CorrectOption, q.CorrectOption)
		}
	}
}

func TestDifficultySchedule(t *testing.T) {
	tests := []struct {
		name            string
		target          int
		basicPct        int
		intermediatePct int
		wantBasic       int
		wantInter       int
		wantAdv         int
	}{
		{"default 25", 25, 32, 40, 8, 10, 7},
		{"target 10", 10, 32, 40, 3, 4, 3},
		{"target 3", 3, 32, 40, 0, 1, 2},
		{"target 1", 1, 32, 40, 0, 0, 1},
		{"even split 50", 50, 32, 40, 16, 20, 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := difficultySchedule(tt.target, tt.basicPct, tt.intermediatePct)
			if len(schedule) != tt.target {
				t.Fatalf("schedule length %d, want %d", len(schedule), tt.target)
			}
			counts := map[string]int{}
			for _, d := range schedule {
				counts[d]++
			}
			if counts[models.DifficultyBasic] != tt.wantBasic {
				t.Errorf("basic = %d, want %d", counts[models.DifficultyBasic], tt.wantBasic)
			}
			if counts[models.DifficultyIntermediate] != tt.wantInter {
				t.Errorf("intermediate = %d, want %d", counts[models.DifficultyIntermediate], tt.wantInter)
			}
			if counts[models.DifficultyAdvanced] != tt.wantAdv {
				t.Errorf("advanced = %d, want %d", counts[models.DifficultyAdvanced], tt.wantAdv)
			}
		})
	}
}

func TestProgressCallback(t *testing.T) {
	var steps []string
	ideas := &fakeIdeas{ideas: ideaList(2)}
	validator := &fakeValidator{script: map[string][]validatorStep{}}

	o := newTestOrchestrator(ideas, &fakeFramer{}, validator, &fakeDiagrams{}, &fakeWriter{}, Options{
		TargetCount: 2,
		Progress: func(step string, done, target int) {
			steps = append(steps, step)
			if target != 2 {
				t.Errorf("progress target = %d, want 2", target)
			}
		},
	})
	if _, err := o.Run(context.Background(), "Topic", "Level"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"framing", "written", "framing", "written"}
	if len(steps) != len(want) {
		t.Fatalf("progress steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("progress steps = %v, want %v", steps, want)
		}
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefgh", 5, "abcde..."},
		{"площадь круга", 7, "пло..."}, // 7 bytes lands mid-rune, back up to 6
		{"√2 проблема", 1, "..."},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		for i, r := range got {
			if r == '�' {
				t.Errorf("truncate(%q, %d) produced an invalid rune at %d", tt.in, tt.n, i)
			}
		}
	}
}

func TestResultPaper(t *testing.T) {
	res := &Result{
		Questions: []models.Question{{ID: "Q01", CorrectOption: "B"}},
		AnswerKey: []models.AnswerKeyEntry{{QuestionID: "Q01", CorrectOption: "B"}},
	}
	p := res.Paper("Trigonometry", "Grade 11")
	if p.Topic != "Trigonometry" || p.ClassLevel != "Grade 11" {
		t.Errorf("paper header = %s/%s", p.Topic, p.ClassLevel)
	}
	if p.TotalQuestions != 1 || len(p.Questions) != 1 || len(p.AnswerKey) != 1 {
		t.Errorf("paper counts wrong: %+v", p)
	}
}
