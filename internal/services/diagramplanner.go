package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"papergen/internal/diagram"
	"papergen/internal/models"
)

// diagramGenerator is the slice of GeminiService the planner needs; kept as
// an interface so tests can substitute fakes.
type diagramGenerator interface {
	GenerateDiagram(ctx context.Context, q *models.Question, topic string) (string, error)
	PlanImage(ctx context.Context, q *models.Question, topic string) (*diagram.PlotSpec, error)
}

// DiagramService attaches figures to validated questions: TikZ source first,
// and a rendered raster image when the vector collaborator declares the
// figure too complex. The complexity decision belongs to the collaborator.
type DiagramService struct {
	gen       diagramGenerator
	renderer  *diagram.Renderer
	imagesDir string
}

func NewDiagramService(gen diagramGenerator, renderer *diagram.Renderer, imagesDir string) *DiagramService {
	return &DiagramService{gen: gen, renderer: renderer, imagesDir: imagesDir}
}

// AttachDiagram sets DiagramCode or ImagePath on q. An error leaves q
// untouched; the caller keeps the question without a figure.
func (d *DiagramService) AttachDiagram(ctx context.Context, q *models.Question, topic string) error {
	code, err := d.gen.GenerateDiagram(ctx, q, topic)
	if err == nil {
		q.DiagramCode = code
		return nil
	}
	if !errors.Is(err, ErrDiagramTooComplex) {
		return fmt.Errorf("vector diagram generation failed: %w", err)
	}

	spec, err := d.gen.PlanImage(ctx, q, topic)
	if err != nil {
		return fmt.Errorf("raster fallback failed: %w", err)
	}

	path := filepath.Join(d.imagesDir, fmt.Sprintf("diagram_%s.png", strings.ToLower(q.ID)))
	if err := d.renderer.Render(spec, path); err != nil {
		return fmt.Errorf("raster fallback failed: %w", err)
	}

	q.ImagePath = path
	return nil
}
