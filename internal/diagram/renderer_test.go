package diagram

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   PlotSpec
		want PlotSpec
	}{
		{
			"zero value",
			PlotSpec{},
			PlotSpec{Width: 640, Height: 480, XMin: -10, XMax: 10, YMin: -10, YMax: 10},
		},
		{
			"degenerate x window",
			PlotSpec{Width: 320, Height: 240, XMin: 5, XMax: 5, YMin: 0, YMax: 1},
			PlotSpec{Width: 320, Height: 240, XMin: -5, XMax: 15, YMin: 0, YMax: 1},
		},
		{
			"inverted y window",
			PlotSpec{Width: 320, Height: 240, XMin: 0, XMax: 1, YMin: 4, YMax: 2},
			PlotSpec{Width: 320, Height: 240, XMin: 0, XMax: 1, YMin: -7, YMax: 13},
		},
		{
			"well formed untouched",
			PlotSpec{Width: 800, Height: 600, XMin: -1, XMax: 1, YMin: -2, YMax: 2},
			PlotSpec{Width: 800, Height: 600, XMin: -1, XMax: 1, YMin: -2, YMax: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.Normalize()
			if got.Width != tt.want.Width || got.Height != tt.want.Height {
				t.Errorf("canvas = %dx%d, want %dx%d", got.Width, got.Height, tt.want.Width, tt.want.Height)
			}
			if got.XMin != tt.want.XMin || got.XMax != tt.want.XMax {
				t.Errorf("x window = [%v,%v], want [%v,%v]", got.XMin, got.XMax, tt.want.XMin, tt.want.XMax)
			}
			if got.YMin != tt.want.YMin || got.YMax != tt.want.YMax {
				t.Errorf("y window = [%v,%v], want [%v,%v]", got.YMin, got.YMax, tt.want.YMin, tt.want.YMax)
			}
		})
	}
}

func TestRenderWritesPNG(t *testing.T) {
	spec := &PlotSpec{
		Title: "Right triangle",
		XMin:  -1, XMax: 5,
		YMin: -1, YMax: 5,
		Axes: true,
		Points: []Point{
			{X: 0, Y: 0, Label: "A"},
			{X: 4, Y: 0, Label: "B"},
			{X: 0, Y: 3, Label: "C"},
		},
		Segments: []Segment{
			{X1: 0, Y1: 0, X2: 4, Y2: 0, Label: "4"},
			{X1: 0, Y1: 0, X2: 0, Y2: 3, Label: "3"},
			{X1: 4, Y1: 0, X2: 0, Y2: 3, Label: "5"},
		},
		Circles: []Circle{
			{CX: 2, CY: 2, R: 1, Label: "O"},
		},
	}

	path := filepath.Join(t.TempDir(), "diagram_q01.png")
	if err := NewRenderer().Render(spec, path); err != nil {
		t.Fatalf("Render: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("rendered file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("rendered PNG is empty")
	}

	// PNG signature
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Error("output does not look like a PNG file")
	}
}

func TestRenderFunctionCurve(t *testing.T) {
	spec := &PlotSpec{
		Title: "Parabola",
		XMin:  -3, XMax: 3,
		YMin: -1, YMax: 9,
		Axes: true,
		Functions: []Function{
			{Expr: "x^2", Label: "y = x^2"},
			// Asymptote crossing zero: out-of-window samples split the curve.
			{Expr: "1 / x", XMin: -3, XMax: 3, Samples: 50},
		},
	}

	path := filepath.Join(t.TempDir(), "diagram_q02.png")
	if err := NewRenderer().Render(spec, path); err != nil {
		t.Fatalf("Render: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("rendered file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("rendered PNG is empty")
	}
}

func TestRenderBadFunctionExpr(t *testing.T) {
	spec := &PlotSpec{
		XMin: 0, XMax: 1, YMin: 0, YMax: 1,
		Functions: []Function{{Expr: "plot(x"}},
	}
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := NewRenderer().Render(spec, path); err == nil {
		t.Fatal("expected error for an unparseable function expression")
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("no file should be written when rendering fails")
	}
}

func TestRenderNilSpec(t *testing.T) {
	if err := NewRenderer().Render(nil, filepath.Join(t.TempDir(), "x.png")); err == nil {
		t.Fatal("expected error for nil spec")
	}
}

func TestRenderBadPath(t *testing.T) {
	spec := &PlotSpec{Points: []Point{{X: 0, Y: 0}}}
	err := NewRenderer().Render(spec, filepath.Join(t.TempDir(), "missing-dir", "x.png"))
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
