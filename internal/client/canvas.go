package client

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"whiteboard/internal/board"
)

// Canvas is the rendering surface the reconciliation pipeline draws onto.
// Implementations own rasterization; the pipeline only hands them moves
// with precomputed outlines. Image moves additionally carry the decoded
// image bytes.
type Canvas interface {
	Clear()
	Draw(move board.Move, outline []board.Point, img []byte)
}

// decodeImage extracts raw image bytes from a move's inline data URL.
func decodeImage(move board.Move) ([]byte, error) {
	data := move.Img.Base64
	if idx := strings.Index(data, ","); idx >= 0 {
		data = data[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode image move %s: %w", move.ID, err)
	}
	return raw, nil
}

// RecordedDraw is one Draw call captured by a RecordingCanvas.
type RecordedDraw struct {
	Move    board.Move
	Outline []board.Point
	Img     []byte
}

// RecordingCanvas captures draw calls instead of rasterizing them. It is
// the reference Canvas used by tests and headless tooling, and is safe
// for concurrent use.
type RecordingCanvas struct {
	mu     sync.Mutex
	clears int
	draws  []RecordedDraw
}

// Clear records a canvas reset.
func (c *RecordingCanvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	c.draws = nil
}

// Draw records a single move render.
func (c *RecordingCanvas) Draw(move board.Move, outline []board.Point, img []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draws = append(c.draws, RecordedDraw{Move: move, Outline: outline, Img: img})
}

// ClearCount reports how many times the canvas was reset.
func (c *RecordingCanvas) ClearCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

// Recorded returns a copy of the draw calls since the last clear.
func (c *RecordingCanvas) Recorded() []RecordedDraw {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RecordedDraw{}, c.draws...)
}
