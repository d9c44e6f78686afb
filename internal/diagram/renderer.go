package diagram

import (
	"fmt"
	"math"

	"github.com/fogleman/gg"
)

// PlotSpec is the compact figure description the raster collaborator returns
// when a diagram is too complex for TikZ. Coordinates are in plot space and
// mapped onto the canvas by the renderer.
type PlotSpec struct {
	Title     string     `json:"title"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	XMin      float64    `json:"x_min"`
	XMax      float64    `json:"x_max"`
	YMin      float64    `json:"y_min"`
	YMax      float64    `json:"y_max"`
	Axes      bool       `json:"axes"`
	Points    []Point    `json:"points"`
	Segments  []Segment  `json:"segments"`
	Circles   []Circle   `json:"circles"`
	Functions []Function `json:"functions"`
}

type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

type Segment struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Label string  `json:"label"`
}

type Circle struct {
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
	R      float64 `json:"r"`
	Label  string  `json:"label"`
	Filled bool    `json:"filled"`
}

// Function is a curve y = f(x) described by an expression and sampled by the
// renderer. An empty or degenerate sampling window falls back to the spec's
// x window.
type Function struct {
	Expr    string  `json:"expr"`
	XMin    float64 `json:"x_min"`
	XMax    float64 `json:"x_max"`
	Label   string  `json:"label"`
	Samples int     `json:"samples"`
}

const (
	defaultWidth  = 640
	defaultHeight = 480
	margin        = 40.0
)

// Normalize fills in canvas defaults and guarantees a non-degenerate plot
// window so the coordinate mapping never divides by zero.
func (s *PlotSpec) Normalize() {
	if s.Width <= 0 {
		s.Width = defaultWidth
	}
	if s.Height <= 0 {
		s.Height = defaultHeight
	}
	if s.XMax <= s.XMin {
		s.XMin, s.XMax = autoRange(s.XMin, s.XMax)
	}
	if s.YMax <= s.YMin {
		s.YMin, s.YMax = autoRange(s.YMin, s.YMax)
	}
}

func autoRange(lo, hi float64) (float64, float64) {
	if lo == 0 && hi == 0 {
		return -10, 10
	}
	mid := (lo + hi) / 2
	return mid - 10, mid + 10
}

// Drawable reports whether the spec contains anything to draw.
func (s *PlotSpec) Drawable() bool {
	return len(s.Points) > 0 || len(s.Segments) > 0 || len(s.Circles) > 0 || len(s.Functions) > 0
}

// Renderer draws PlotSpecs to PNG files.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// Render draws the spec and saves it to path.
func (r *Renderer) Render(spec *PlotSpec, path string) error {
	if spec == nil {
		return fmt.Errorf("nil plot spec")
	}
	spec.Normalize()

	dc := gg.NewContext(spec.Width, spec.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	toX := func(x float64) float64 {
		return margin + (x-spec.XMin)/(spec.XMax-spec.XMin)*(float64(spec.Width)-2*margin)
	}
	toY := func(y float64) float64 {
		// Canvas y grows downward.
		return float64(spec.Height) - margin - (y-spec.YMin)/(spec.YMax-spec.YMin)*(float64(spec.Height)-2*margin)
	}

	if spec.Axes {
		dc.SetRGB(0.6, 0.6, 0.6)
		dc.SetLineWidth(1)
		if spec.XMin <= 0 && spec.XMax >= 0 {
			dc.DrawLine(toX(0), margin, toX(0), float64(spec.Height)-margin)
			dc.Stroke()
		}
		if spec.YMin <= 0 && spec.YMax >= 0 {
			dc.DrawLine(margin, toY(0), float64(spec.Width)-margin, toY(0))
			dc.Stroke()
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(2)

	for _, fn := range spec.Functions {
		if err := r.drawFunction(dc, spec, fn, toX, toY); err != nil {
			return err
		}
	}

	for _, seg := range spec.Segments {
		dc.DrawLine(toX(seg.X1), toY(seg.Y1), toX(seg.X2), toY(seg.Y2))
		dc.Stroke()
		if seg.Label != "" {
			dc.DrawStringAnchored(seg.Label, (toX(seg.X1)+toX(seg.X2))/2, (toY(seg.Y1)+toY(seg.Y2))/2-8, 0.5, 0.5)
		}
	}

	for _, c := range spec.Circles {
		radius := math.Abs(c.R) / (spec.XMax - spec.XMin) * (float64(spec.Width) - 2*margin)
		dc.DrawCircle(toX(c.CX), toY(c.CY), radius)
		if c.Filled {
			dc.Fill()
		} else {
			dc.Stroke()
		}
		if c.Label != "" {
			dc.DrawStringAnchored(c.Label, toX(c.CX), toY(c.CY)-radius-10, 0.5, 0.5)
		}
	}

	for _, p := range spec.Points {
		dc.DrawCircle(toX(p.X), toY(p.Y), 3)
		dc.Fill()
		if p.Label != "" {
			dc.DrawStringAnchored(p.Label, toX(p.X)+6, toY(p.Y)-6, 0, 0.5)
		}
	}

	if spec.Title != "" {
		dc.DrawStringAnchored(spec.Title, float64(spec.Width)/2, margin/2, 0.5, 0.5)
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("saving diagram to %s: %w", path, err)
	}
	return nil
}

const defaultSamples = 100

// drawFunction samples fn.Expr across its x window and strokes the polyline.
// Samples outside the plot window (or NaN/Inf) break the curve into pieces
// rather than clamping, so asymptotes render as gaps.
func (r *Renderer) drawFunction(dc *gg.Context, spec *PlotSpec, fn Function, toX, toY func(float64) float64) error {
	eval, err := compileExpr(fn.Expr)
	if err != nil {
		return fmt.Errorf("compiling function %q: %w", fn.Expr, err)
	}

	lo, hi := fn.XMin, fn.XMax
	if hi <= lo {
		lo, hi = spec.XMin, spec.XMax
	}
	samples := fn.Samples
	if samples < 2 {
		samples = defaultSamples
	}

	inPath := false
	for i := 0; i < samples; i++ {
		x := lo + (hi-lo)*float64(i)/float64(samples-1)
		y := eval(x)
		if math.IsNaN(y) || math.IsInf(y, 0) || y < spec.YMin || y > spec.YMax {
			if inPath {
				dc.Stroke()
				inPath = false
			}
			continue
		}
		if inPath {
			dc.LineTo(toX(x), toY(y))
		} else {
			dc.MoveTo(toX(x), toY(y))
			inPath = true
		}
	}
	if inPath {
		dc.Stroke()
	}

	if fn.Label != "" {
		mx := (lo + hi) / 2
		my := eval(mx)
		if !math.IsNaN(my) && !math.IsInf(my, 0) {
			dc.DrawStringAnchored(fn.Label, toX(mx), toY(my)-10, 0.5, 0.5)
		}
	}
	return nil
}
