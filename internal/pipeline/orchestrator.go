package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"unicode/utf8"

	"papergen/internal/models"
)

// ErrNoIdeas is returned when the idea stage produces nothing at all. It is
// the only failure that aborts a run.
var ErrNoIdeas = errors.New("idea generation returned no ideas")

// IdeaSource produces candidate question ideas for a topic and class level.
// Invoked once per run.
type IdeaSource interface {
	GenerateIdeas(ctx context.Context, topic, classLevel string) ([]string, error)
}

// QuestionFramer converts one idea into a candidate question. An error means
// the idea is wasted; it is not retried at this level.
type QuestionFramer interface {
	FrameQuestion(ctx context.Context, idea, topic, classLevel, questionID, difficulty string) (*models.Question, error)
}

// Validator judges a candidate question and may supply a corrected
// replacement.
type Validator interface {
	Validate(ctx context.Context, q *models.Question, topic, classLevel string) (*models.ValidationResult, error)
}

// DiagramPlanner attaches a vector diagram or raster image to a validated
// question that asked for one. Errors are non-fatal for the question.
type DiagramPlanner interface {
	AttachDiagram(ctx context.Context, q *models.Question, topic string) error
}

// DocumentWriter appends one finalized question to the output document. The
// question block and its answer-key entry are committed together.
type DocumentWriter interface {
	WriteQuestion(q *models.Question) error
}

// ProgressFunc receives per-question progress while a run executes.
type ProgressFunc func(step string, done, target int)

// Options tunes a run. Zero values fall back to the defaults below.
type Options struct {
	TargetCount           int
	MaxValidationAttempts int
	BasicPercent          int
	IntermediatePercent   int
	Progress              ProgressFunc
}

const (
	DefaultTargetCount           = 25
	DefaultMaxValidationAttempts = 5
	DefaultBasicPercent          = 32
	DefaultIntermediatePercent   = 40
)

func (o *Options) applyDefaults() {
	if o.TargetCount <= 0 {
		o.TargetCount = DefaultTargetCount
	}
	if o.MaxValidationAttempts <= 0 {
		o.MaxValidationAttempts = DefaultMaxValidationAttempts
	}
	if o.BasicPercent <= 0 {
		o.BasicPercent = DefaultBasicPercent
	}
	if o.IntermediatePercent <= 0 {
		o.IntermediatePercent = DefaultIntermediatePercent
	}
}

// Result is the outcome of one run. Shortfall is non-zero when the idea
// supply ran out before the target was reached.
type Result struct {
	Questions []models.Question
	AnswerKey []models.AnswerKeyEntry
	Target    int
	Shortfall int
	Framed    int
	Discarded int
}

// Paper assembles the run's metadata record.
func (r *Result) Paper(topic, classLevel string) *models.Paper {
	return &models.Paper{
		Topic:          topic,
		ClassLevel:     classLevel,
		Questions:      r.Questions,
		TotalQuestions: len(r.Questions),
		AnswerKey:      r.AnswerKey,
	}
}

// Orchestrator drives the sequential per-idea pipeline: frame, validate with
// bounded retries, optionally attach a diagram, write. One idea is processed
// fully before the next begins.
type Orchestrator struct {
	ideas     IdeaSource
	framer    QuestionFramer
	validator Validator
	diagrams  DiagramPlanner
	writer    DocumentWriter
	opts      Options
}

func New(ideas IdeaSource, framer QuestionFramer, validator Validator, diagrams DiagramPlanner, writer DocumentWriter, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		ideas:     ideas,
		framer:    framer,
		validator: validator,
		diagrams:  diagrams,
		writer:    writer,
		opts:      opts,
	}
}

// Run generates up to opts.TargetCount validated questions for the topic.
// Idea exhaustion before the target is not an error: the run ends with a
// shortfall recorded on the Result. Only an empty idea list or a document
// write failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, topic, classLevel string) (*Result, error) {
	ideas, err := o.ideas.GenerateIdeas(ctx, topic, classLevel)
	if err != nil {
		return nil, fmt.Errorf("idea generation failed: %w", err)
	}
	if len(ideas) == 0 {
		return nil, ErrNoIdeas
	}
	log.Printf("pipeline: %d question ideas for %q (%s)", len(ideas), topic, classLevel)

	schedule := difficultySchedule(o.opts.TargetCount, o.opts.BasicPercent, o.opts.IntermediatePercent)
	res := &Result{Target: o.opts.TargetCount}

	counter := 0
	for _, idea := range ideas {
		if len(res.Questions) >= o.opts.TargetCount {
			break
		}

		counter++
		questionID := fmt.Sprintf("Q%02d", counter)
		difficulty := schedule[(counter-1)%len(schedule)]
		o.progress("framing", len(res.Questions), res.Target)

		q, err := o.framer.FrameQuestion(ctx, idea, topic, classLevel, questionID, difficulty)
		if err != nil {
			log.Printf("pipeline: framing failed for idea %q: %v", truncate(idea, 60), err)
			continue
		}
		res.Framed++

		q, ok := o.validate(ctx, q, topic, classLevel)
		if !ok {
			res.Discarded++
			continue
		}

		if q.NeedsDiagram {
			o.progress("diagram", len(res.Questions), res.Target)
			if err := o.diagrams.AttachDiagram(ctx, q, topic); err != nil {
				log.Printf("pipeline: diagram generation failed for %s, keeping question without one: %v", q.ID, err)
			}
		}

		if err := o.writer.WriteQuestion(q); err != nil {
			return res, fmt.Errorf("writing question %s: %w", q.ID, err)
		}
		res.Questions = append(res.Questions, *q)
		res.AnswerKey = append(res.AnswerKey, models.AnswerKeyEntry{
			QuestionID:    q.ID,
			CorrectOption: q.CorrectOption,
		})
		o.progress("written", len(res.Questions), res.Target)
		log.Printf("pipeline: question %d/%d written (%s, %s)", len(res.Questions), o.opts.TargetCount, q.ID, q.Difficulty)
	}

	if len(res.Questions) < o.opts.TargetCount {
		res.Shortfall = o.opts.TargetCount - len(res.Questions)
		log.Printf("pipeline: idea supply exhausted, produced %d of %d questions (shortfall %d)",
			len(res.Questions), o.opts.TargetCount, res.Shortfall)
	}

	return res, nil
}

// validate runs the bounded retry loop. An invalid result carrying a
// correction replaces the candidate; one without a correction re-submits the
// same candidate, which tolerates transient scoring noise. A validator
// transport error counts as a failed attempt.
func (o *Orchestrator) validate(ctx context.Context, q *models.Question, topic, classLevel string) (*models.Question, bool) {
	feedback := ""
	for attempt := 1; attempt <= o.opts.MaxValidationAttempts; attempt++ {
		vr, err := o.validator.Validate(ctx, q, topic, classLevel)
		if err != nil {
			feedback = err.Error()
			log.Printf("pipeline: validation attempt %d/%d for %s errored: %v",
				attempt, o.opts.MaxValidationAttempts, q.ID, err)
			continue
		}
		if vr.IsValid {
			return q, true
		}
		feedback = vr.Feedback
		log.Printf("pipeline: validation attempt %d/%d for %s failed: %s",
			attempt, o.opts.MaxValidationAttempts, q.ID, truncate(feedback, 80))
		if vr.Corrected != nil {
			q = vr.Corrected
		}
	}
	log.Printf("pipeline: discarding %s after %d failed validation attempts (last feedback: %s)",
		q.ID, o.opts.MaxValidationAttempts, truncate(feedback, 80))
	return q, false
}

func (o *Orchestrator) progress(step string, done, target int) {
	if o.opts.Progress != nil {
		o.opts.Progress(step, done, target)
	}
}

// difficultySchedule builds the round-robin difficulty sequence for a target
// count: basicPct% basic, intermediatePct% intermediate, remainder advanced.
func difficultySchedule(target, basicPct, intermediatePct int) []string {
	basic := target * basicPct / 100
	intermediate := target * intermediatePct / 100
	advanced := target - basic - intermediate

	schedule := make([]string, 0, target)
	for i := 0; i < basic; i++ {
		schedule = append(schedule, models.DifficultyBasic)
	}
	for i := 0; i < intermediate; i++ {
		schedule = append(schedule, models.DifficultyIntermediate)
	}
	for i := 0; i < advanced; i++ {
		schedule = append(schedule, models.DifficultyAdvanced)
	}
	if len(schedule) == 0 {
		schedule = []string{models.DifficultyIntermediate}
	}
	return schedule
}

// truncate shortens s for log lines, cutting on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
