package board

import (
	"encoding/json"
	"fmt"
)

// Shape identifies the kind of drawing a Move represents.
type Shape string

const (
	ShapeLine        Shape = "line"
	ShapeLineSegment Shape = "line-segment"
	ShapeRect        Shape = "rect"
	ShapeCircle      Shape = "circle"
	ShapeArrow       Shape = "arrow"
	ShapeStar        Shape = "star"
	ShapeImage       Shape = "image"
)

// Valid reports whether s is one of the known shapes.
func (s Shape) Valid() bool {
	switch s {
	case ShapeLine, ShapeLineSegment, ShapeRect, ShapeCircle, ShapeArrow, ShapeStar, ShapeImage:
		return true
	}
	return false
}

// Mode is the interaction mode a Move was produced under.
type Mode string

const (
	ModeDraw         Mode = "draw"
	ModeEraser       Mode = "eraser"
	ModeSelect       Mode = "select"
	ModeStrokeDelete Mode = "stroke_delete"
)

// Point is a 2D canvas coordinate. It marshals as a two-element array
// to stay compatible with the wire format's path tuples.
type Point struct {
	X float64
	Y float64
}

// MarshalJSON encodes the point as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON decodes a [x, y] pair.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// RGBA is a color with 0-255 channels and a 0-1 alpha.
type RGBA struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Selection is the rectangle of an active select-mode gesture.
type Selection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Options carries the stroke settings a Move was drawn with.
type Options struct {
	LineWidth   float64    `json:"lineWidth"`
	LineColor   RGBA       `json:"lineColor"`
	FillColor   RGBA       `json:"fillColor"`
	FillEnabled bool       `json:"fillEnabled"`
	Shape       Shape      `json:"shape"`
	Mode        Mode       `json:"mode"`
	Selection   *Selection `json:"selection,omitempty"`
}

// RectSize is the derived geometry of a rect move.
type RectSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Ellipse is the derived geometry of a circle move.
type Ellipse struct {
	CX      float64 `json:"cX"`
	CY      float64 `json:"cY"`
	RadiusX float64 `json:"radiusX"`
	RadiusY float64 `json:"radiusY"`
}

// Image holds inline image data for image moves.
type Image struct {
	Base64 string `json:"base64"`
}

// Move is one committed drawing action. ID and Timestamp are assigned by
// the server at acceptance and are immutable afterwards; Timestamp is the
// total order key for rendering.
type Move struct {
	ID        string   `json:"id"`
	Rect      RectSize `json:"rect"`
	Circle    Ellipse  `json:"circle"`
	Img       Image    `json:"img"`
	Path      []Point  `json:"path"`
	Options   Options  `json:"options"`
	Timestamp int64    `json:"timestamp"`
}

// User identifies a participant. Color is assigned on join and stays
// stable for the user's presence in a room.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
	Color string `json:"color,omitempty"`
}
