package client

import (
	"fmt"

	"whiteboard/internal/board"
)

// Pipeline converts the ledger's sorted move sequence into canvas draw
// calls. A strictly-appended tail is drawn incrementally; any shrink
// (undo, delete, snapshot reset) forces a full replay, since removed
// moves cannot be un-drawn in place.
type Pipeline struct {
	canvas  Canvas
	prevLen int
}

// NewPipeline wraps a canvas.
func NewPipeline(canvas Canvas) *Pipeline {
	return &Pipeline{canvas: canvas}
}

// Reset forgets the previously observed length, forcing the next
// Reconcile to replay from scratch.
func (p *Pipeline) Reset() {
	p.prevLen = 0
}

// Reconcile brings the canvas in line with the given sorted sequence.
func (p *Pipeline) Reconcile(moves []board.Move) error {
	defer func() { p.prevLen = len(moves) }()

	// Incremental drawing is only safe when exactly one move was
	// appended; everything else replays the whole sequence.
	if p.prevLen > 0 && len(moves) == p.prevLen+1 {
		return p.drawMove(moves[len(moves)-1])
	}

	p.canvas.Clear()
	for _, move := range moves {
		if err := p.drawMove(move); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) drawMove(move board.Move) error {
	// Selection rectangles are a local affordance, never rendered as
	// part of the drawing.
	if move.Options.Mode == board.ModeSelect {
		return nil
	}

	outline, err := board.Outline(move)
	if err != nil {
		return fmt.Errorf("outline move %s: %w", move.ID, err)
	}
	if outline == nil {
		return nil
	}

	var img []byte
	if move.Options.Shape == board.ShapeImage {
		img, err = decodeImage(move)
		if err != nil {
			return err
		}
	}

	p.canvas.Draw(move, outline, img)
	return nil
}
