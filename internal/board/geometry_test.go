package board

import (
	"encoding/json"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWidthHeightShiftConstrainsToSquare(t *testing.T) {
	cases := []struct {
		name     string
		from, to Point
		wantW    float64
		wantH    float64
	}{
		{"down-right dominant x", Point{0, 0}, Point{100, 40}, 40, 40},
		{"down-right dominant y", Point{0, 0}, Point{40, 100}, 40, 40},
		{"up-right", Point{0, 0}, Point{100, -40}, 40, -40},
		{"down-left", Point{0, 0}, Point{-100, 40}, -40, 40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := WidthHeight(tc.from, tc.to, true)
			if !almostEqual(w, tc.wantW) || !almostEqual(h, tc.wantH) {
				t.Fatalf("got (%v, %v), want (%v, %v)", w, h, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestWidthHeightNoShift(t *testing.T) {
	w, h := WidthHeight(Point{10, 10}, Point{50, 30}, false)
	if w != 40 || h != 20 {
		t.Fatalf("got (%v, %v), want (40, 20)", w, h)
	}
}

func TestEllipseFor(t *testing.T) {
	e := EllipseFor(Point{10, 10}, Point{50, 30}, false)
	if e.CX != 30 || e.CY != 20 || e.RadiusX != 20 || e.RadiusY != 10 {
		t.Fatalf("unexpected ellipse: %+v", e)
	}
}

func TestEllipseForNegativeExtent(t *testing.T) {
	e := EllipseFor(Point{50, 30}, Point{10, 10}, false)
	if e.RadiusX != 20 || e.RadiusY != 10 {
		t.Fatalf("radii should be absolute, got %+v", e)
	}
	if e.CX != 30 || e.CY != 20 {
		t.Fatalf("center should match forward drag, got %+v", e)
	}
}

func TestLineSegmentForSnapsToAxis(t *testing.T) {
	seg := LineSegmentFor(Point{0, 0}, Point{100, 30}, true)
	if seg[1].Y != 0 {
		t.Fatalf("expected horizontal snap, got %+v", seg[1])
	}

	seg = LineSegmentFor(Point{0, 0}, Point{30, 100}, true)
	if seg[1].X != 0 {
		t.Fatalf("expected vertical snap, got %+v", seg[1])
	}
}

func TestArrowForHeadLength(t *testing.T) {
	pts := ArrowFor(Point{0, 0}, Point{100, 0}, false)
	if len(pts) != 5 {
		t.Fatalf("expected 5 path points, got %d", len(pts))
	}
	tip := pts[1]
	if tip.X != 100 || tip.Y != 0 {
		t.Fatalf("unexpected tip: %+v", tip)
	}

	// Head length caps at 20 for a 100-long shaft.
	barb := pts[2]
	dist := math.Hypot(barb.X-tip.X, barb.Y-tip.Y)
	if !almostEqual(dist, 20) {
		t.Fatalf("barb distance %v, want 20", dist)
	}

	// Short shaft: head shrinks to 30% of length.
	pts = ArrowFor(Point{0, 0}, Point{10, 0}, false)
	barb = pts[2]
	dist = math.Hypot(barb.X-pts[1].X, barb.Y-pts[1].Y)
	if !almostEqual(dist, 3) {
		t.Fatalf("barb distance %v, want 3", dist)
	}
}

func TestStarForVertices(t *testing.T) {
	pts := StarFor(Point{0, 0}, Point{100, 100}, false)
	if len(pts) != 10 {
		t.Fatalf("expected 10 vertices, got %d", len(pts))
	}

	// First vertex is the top outer point.
	if !almostEqual(pts[0].X, 50) || !almostEqual(pts[0].Y, 0) {
		t.Fatalf("unexpected top vertex: %+v", pts[0])
	}

	// Outer and inner radii alternate.
	center := Point{50, 50}
	for i, pt := range pts {
		r := math.Hypot(pt.X-center.X, pt.Y-center.Y)
		want := 50.0
		if i%2 == 1 {
			want = 20.0
		}
		if !almostEqual(r, want) {
			t.Fatalf("vertex %d radius %v, want %v", i, r, want)
		}
	}
}

func TestOutlineUnknownShape(t *testing.T) {
	m := Move{Path: []Point{{0, 0}}, Options: Options{Shape: Shape("triangle")}}
	if _, err := Outline(m); err == nil {
		t.Fatal("expected error for unknown shape")
	}
}

func TestOutlineEmptyPath(t *testing.T) {
	pts, err := Outline(Move{Options: Options{Shape: ShapeLine}})
	if err != nil || pts != nil {
		t.Fatalf("expected nil outline for empty path, got %v, %v", pts, err)
	}
}

func TestHitTestLine(t *testing.T) {
	m := Move{
		Path:    []Point{{0, 0}, {100, 0}},
		Options: Options{Shape: ShapeLine, LineWidth: 2, Mode: ModeDraw},
	}

	if !HitTest(m, Point{50, 10}) {
		t.Fatal("expected hit within tolerance")
	}
	if HitTest(m, Point{50, 40}) {
		t.Fatal("expected miss outside tolerance")
	}
}

func TestHitTestSkipsSelectMoves(t *testing.T) {
	m := Move{
		Path:    []Point{{0, 0}, {100, 100}},
		Options: Options{Shape: ShapeRect, Mode: ModeSelect},
	}
	if HitTest(m, Point{50, 50}) {
		t.Fatal("select pseudo-moves must never match")
	}
}

func TestHitTestRectEdgeOnly(t *testing.T) {
	m := Move{
		Path:    []Point{{0, 0}},
		Rect:    RectSize{Width: 100, Height: 100},
		Options: Options{Shape: ShapeRect, LineWidth: 2, Mode: ModeDraw},
	}

	if !HitTest(m, Point{0, 50}) {
		t.Fatal("expected hit on rect edge")
	}
	if HitTest(m, Point{50, 50}) {
		t.Fatal("rect interior should not match an unfilled stroke")
	}
}

func TestPointJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Point{X: 10, Y: 50})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[10,50]" {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var p Point
	if err := json.Unmarshal([]byte("[3.5,7]"), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.X != 3.5 || p.Y != 7 {
		t.Fatalf("unexpected point: %+v", p)
	}
}

func TestShapeValid(t *testing.T) {
	for _, s := range []Shape{ShapeLine, ShapeLineSegment, ShapeRect, ShapeCircle, ShapeArrow, ShapeStar, ShapeImage} {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	if Shape("scribble").Valid() {
		t.Fatal("unknown shape should be invalid")
	}
}
