package writer

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"papergen/internal/models"
)

// LaTeXWriter appends question blocks to a LaTeX worksheet incrementally.
// The header is emitted by Initialize, one block per WriteQuestion, and the
// footer (with the answer key as comments) by Finalize. Output is
// deterministic for a given question sequence, so re-rendering the same
// metadata produces byte-identical documents.
type LaTeXWriter struct {
	w             io.Writer
	topic         string
	classLevel    string
	questionCount int
	answerKey     []models.AnswerKeyEntry
	initialized   bool
}

func NewLaTeXWriter(w io.Writer, topic, classLevel string) *LaTeXWriter {
	return &LaTeXWriter{w: w, topic: topic, classLevel: classLevel}
}

// Initialize writes the document preamble and opens the question list.
func (lw *LaTeXWriter) Initialize() error {
	header := fmt.Sprintf(`\documentclass[a4paper,12pt]{article}

\usepackage{amsmath}
\usepackage{amssymb}
\usepackage{enumitem}
\usepackage{graphicx}
\usepackage{tikz}
\usepackage{pgfplots}
\pgfplotsset{compat=1.18}
\usepackage{tabularx}
\usepackage[margin=2cm]{geometry}

\title{%s}
\author{%s}
\date{}

\begin{document}

\maketitle

\begin{enumerate}

`, EscapeLaTeX(lw.topic), EscapeLaTeX(lw.classLevel))

	if _, err := io.WriteString(lw.w, header); err != nil {
		return fmt.Errorf("writing document header: %w", err)
	}
	lw.initialized = true
	return nil
}

// WriteQuestion appends one question block. The block is assembled in full
// and written in a single call, and the answer-key entry is recorded only
// after the write succeeds, so a block and its key entry are committed
// together or not at all.
func (lw *LaTeXWriter) WriteQuestion(q *models.Question) error {
	if !lw.initialized {
		return fmt.Errorf("document not initialized")
	}

	options := cleanOptions(q.Options)
	correct := q.CorrectOption
	if !models.ValidOption(correct) {
		correct = "A"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %% Question %d\n", lw.questionCount+1)
	fmt.Fprintf(&b, "  \\item %s\n", q.Text)

	switch {
	case q.DiagramCode != "":
		fmt.Fprintf(&b, "  \\begin{center}\n  %s\n  \\end{center}\n", q.DiagramCode)
	case q.ImagePath != "":
		fmt.Fprintf(&b, "  \\begin{center}\n  \\includegraphics[width=0.8\\textwidth]{%s}\n  \\end{center}\n", relativeImagePath(q.ImagePath))
	}

	b.WriteString("  \\begin{enumerate}[label=\\Alph*),itemsep=2pt]\n")
	for _, opt := range options {
		fmt.Fprintf(&b, "    \\item %s\n", EscapeLaTeX(opt))
	}
	b.WriteString("  \\end{enumerate}\n\n")

	if _, err := io.WriteString(lw.w, b.String()); err != nil {
		return fmt.Errorf("writing question %s: %w", q.ID, err)
	}

	lw.questionCount++
	lw.answerKey = append(lw.answerKey, models.AnswerKeyEntry{
		QuestionID:    q.ID,
		CorrectOption: correct,
	})
	return nil
}

// Finalize closes the question list and the document, emitting the answer
// key as trailing comments.
func (lw *LaTeXWriter) Finalize() error {
	if !lw.initialized {
		return fmt.Errorf("document not initialized")
	}

	var b strings.Builder
	b.WriteString("\\end{enumerate}\n\n% Answer Key\n")
	for i, entry := range lw.answerKey {
		fmt.Fprintf(&b, "%% Q%d: %s\n", i+1, entry.CorrectOption)
	}
	b.WriteString("\n\\end{document}\n")

	if _, err := io.WriteString(lw.w, b.String()); err != nil {
		return fmt.Errorf("writing document footer: %w", err)
	}
	return nil
}

// QuestionCount returns the number of blocks written so far.
func (lw *LaTeXWriter) QuestionCount() int { return lw.questionCount }

// AnswerKey returns the key entries recorded so far, in document order.
func (lw *LaTeXWriter) AnswerKey() []models.AnswerKeyEntry { return lw.answerKey }

// RenderPaper writes a complete document for an existing paper record. Used
// by the document-only mode and the server's .tex download.
func RenderPaper(w io.Writer, paper *models.Paper) error {
	lw := NewLaTeXWriter(w, paper.Topic, paper.ClassLevel)
	if err := lw.Initialize(); err != nil {
		return err
	}
	for i := range paper.Questions {
		if err := lw.WriteQuestion(&paper.Questions[i]); err != nil {
			return err
		}
	}
	return lw.Finalize()
}

// optionLabelRe strips leading option labels the model sometimes emits
// despite instructions, e.g. "A) ", "(b)" or "C: ".
var optionLabelRe = regexp.MustCompile(`(?i)^\(?[A-D]\)?[\.\):\s]+`)

// cleanOptions strips stray labels and pads or trims to exactly four entries.
func cleanOptions(options []string) []string {
	cleaned := make([]string, 0, 4)
	for _, opt := range options {
		if len(cleaned) == 4 {
			break
		}
		s := optionLabelRe.ReplaceAllString(strings.TrimSpace(opt), "")
		s = strings.TrimSpace(s)
		if s == "" {
			s = `\ldots (incomplete)`
		}
		cleaned = append(cleaned, s)
	}
	for len(cleaned) < 4 {
		cleaned = append(cleaned, `\ldots (incomplete)`)
	}
	return cleaned
}

// relativeImagePath reduces an absolute image path to images/<name> so the
// document references figures relative to its own directory.
func relativeImagePath(path string) string {
	normalized := strings.ReplaceAll(path, `\`, "/")
	if i := strings.LastIndex(normalized, "images/"); i >= 0 {
		return normalized[i:]
	}
	if i := strings.LastIndex(normalized, "/"); i >= 0 {
		return normalized[i+1:]
	}
	return normalized
}

// EscapeLaTeX escapes special characters for use inside command arguments.
// Question text is written verbatim (it may legitimately contain math mode);
// options and titles pass through here.
func EscapeLaTeX(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '\\':
			b.WriteString(`\textbackslash{}`)
		case '{':
			b.WriteString(`\{`)
		case '}':
			b.WriteString(`\}`)
		case '$':
			b.WriteString(`\$`)
		case '&':
			b.WriteString(`\&`)
		case '%':
			b.WriteString(`\%`)
		case '#':
			b.WriteString(`\#`)
		case '^':
			b.WriteString(`\textasciicircum{}`)
		case '_':
			b.WriteString(`\_`)
		case '~':
			b.WriteString(`\textasciitilde{}`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BaseFilename derives the shared stem for the .tex and .json outputs:
// spaces become underscores, commas and hyphens are normalized, lowercase.
func BaseFilename(topic, classLevel string) string {
	t := strings.ToLower(topic)
	t = strings.ReplaceAll(t, ",", "")
	t = strings.ReplaceAll(t, "-", "_")
	t = strings.ReplaceAll(t, " ", "_")
	l := strings.ToLower(classLevel)
	l = strings.ReplaceAll(l, " ", "_")
	return t + "_" + l
}
