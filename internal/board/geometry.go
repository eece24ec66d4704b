package board

import (
	"fmt"
	"math"
)

// WidthHeight computes the signed extent of a two-anchor gesture. With
// shift held the extent is constrained to a square, keeping the sign of
// each axis so the gesture direction is preserved.
func WidthHeight(from, to Point, shift bool) (width, height float64) {
	width = to.X - from.X
	height = to.Y - from.Y

	if !shift {
		return width, height
	}

	if math.Abs(width) > math.Abs(height) {
		if (width > 0 && height < 0) || (width < 0 && height > 0) {
			width = -height
		} else {
			width = height
		}
	} else if (height > 0 && width < 0) || (height < 0 && width > 0) {
		height = -width
	} else {
		height = width
	}

	return width, height
}

// RectFor computes the rect extent for a rect move anchored at from.
func RectFor(from, to Point, shift bool) RectSize {
	w, h := WidthHeight(from, to, shift)
	return RectSize{Width: w, Height: h}
}

// EllipseFor computes the ellipse inscribed in the two-anchor box.
func EllipseFor(from, to Point, shift bool) Ellipse {
	w, h := WidthHeight(from, to, shift)
	return Ellipse{
		CX:      from.X + w/2,
		CY:      from.Y + h/2,
		RadiusX: math.Abs(w / 2),
		RadiusY: math.Abs(h / 2),
	}
}

// LineSegmentFor returns the endpoints of a straight segment. Shift snaps
// the segment to the dominant axis.
func LineSegmentFor(from, to Point, shift bool) [2]Point {
	if shift {
		dx := to.X - from.X
		dy := to.Y - from.Y
		if math.Abs(dx) > math.Abs(dy) {
			return [2]Point{from, {X: to.X, Y: from.Y}}
		}
		return [2]Point{from, {X: from.X, Y: to.Y}}
	}
	return [2]Point{from, to}
}

// ArrowFor returns the stroke path of an arrow in draw order: shaft start,
// tip, first barb, tip again, second barb. The head length is capped at 20
// or 30% of the shaft, whichever is smaller.
func ArrowFor(from, to Point, shift bool) []Point {
	dx := to.X - from.X
	dy := to.Y - from.Y
	if shift {
		if math.Abs(dx) > math.Abs(dy) {
			dy = 0
		} else {
			dx = 0
		}
	}

	angle := math.Atan2(dy, dx)
	length := math.Hypot(dx, dy)
	end := Point{X: from.X + dx, Y: from.Y + dy}

	headLen := math.Min(20, length*0.3)
	barb := func(offset float64) Point {
		return Point{
			X: end.X - headLen*math.Cos(angle+offset),
			Y: end.Y - headLen*math.Sin(angle+offset),
		}
	}

	return []Point{from, end, barb(-math.Pi / 6), end, barb(math.Pi / 6)}
}

// StarFor returns the ten vertices of a five-pointed star inscribed in the
// two-anchor box, starting from the top point.
func StarFor(from, to Point, shift bool) []Point {
	w, h := WidthHeight(from, to, shift)
	centerX := from.X + w/2
	centerY := from.Y + h/2
	outer := math.Min(math.Abs(w), math.Abs(h)) / 2
	inner := outer * 0.4
	const points = 5

	vertices := make([]Point, 0, points*2)
	for i := 0; i < points*2; i++ {
		angle := float64(i) * math.Pi / points
		radius := inner
		if i%2 == 0 {
			radius = outer
		}
		vertices = append(vertices, Point{
			X: centerX + math.Cos(angle-math.Pi/2)*radius,
			Y: centerY + math.Sin(angle-math.Pi/2)*radius,
		})
	}
	return vertices
}

// circleSegments controls how finely Outline approximates an ellipse.
const circleSegments = 32

// Outline returns a polyline approximation of the move's stroke, used for
// hit testing and replay. Image moves reduce to their origin point. The
// switch is exhaustive over Shape; an unknown shape is an error so new
// shapes cannot be silently skipped.
func Outline(m Move) ([]Point, error) {
	if len(m.Path) == 0 {
		return nil, nil
	}
	from := m.Path[0]
	to := from
	if len(m.Path) > 1 {
		to = m.Path[len(m.Path)-1]
	}

	switch m.Options.Shape {
	case ShapeLine:
		return m.Path, nil
	case ShapeLineSegment:
		seg := LineSegmentFor(from, to, false)
		return seg[:], nil
	case ShapeRect:
		w, h := m.Rect.Width, m.Rect.Height
		return []Point{
			from,
			{X: from.X + w, Y: from.Y},
			{X: from.X + w, Y: from.Y + h},
			{X: from.X, Y: from.Y + h},
			from,
		}, nil
	case ShapeCircle:
		e := m.Circle
		pts := make([]Point, 0, circleSegments+1)
		for i := 0; i <= circleSegments; i++ {
			angle := 2 * math.Pi * float64(i) / circleSegments
			pts = append(pts, Point{
				X: e.CX + e.RadiusX*math.Cos(angle),
				Y: e.CY + e.RadiusY*math.Sin(angle),
			})
		}
		return pts, nil
	case ShapeArrow:
		return ArrowFor(from, to, false), nil
	case ShapeStar:
		pts := StarFor(from, to, false)
		return append(pts, pts[0]), nil
	case ShapeImage:
		return []Point{from}, nil
	default:
		return nil, fmt.Errorf("unknown shape %q", m.Options.Shape)
	}
}

// HitTest reports whether p lands on the move's stroke within a tolerance
// scaled off the stroke width. Select and stroke-delete pseudo-moves never
// match.
func HitTest(m Move, p Point) bool {
	if m.Options.Mode == ModeSelect || m.Options.Mode == ModeStrokeDelete {
		return false
	}

	outline, err := Outline(m)
	if err != nil || len(outline) == 0 {
		return false
	}

	tolerance := math.Max(m.Options.LineWidth*2, 15)

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range outline {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}
	if p.X < minX-tolerance || p.X > maxX+tolerance || p.Y < minY-tolerance || p.Y > maxY+tolerance {
		return false
	}

	if len(outline) == 1 {
		return math.Hypot(p.X-outline[0].X, p.Y-outline[0].Y) <= tolerance
	}

	for i := 0; i < len(outline)-1; i++ {
		if distanceToSegment(p, outline[i], outline[i+1]) <= tolerance {
			return true
		}
	}
	return false
}

func distanceToSegment(p, a, b Point) float64 {
	cx := b.X - a.X
	cy := b.Y - a.Y
	lenSq := cx*cx + cy*cy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}

	t := ((p.X-a.X)*cx + (p.Y-a.Y)*cy) / lenSq
	t = math.Max(0, math.Min(1, t))

	return math.Hypot(p.X-(a.X+t*cx), p.Y-(a.Y+t*cy))
}
