package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"whiteboard/internal/board"
	"whiteboard/internal/server"
)

// ErrRoomFull is returned when a join is rejected because the room is at
// capacity.
var ErrRoomFull = errors.New("room is full")

// ErrNotJoined is returned for actions that require room membership.
var ErrNotJoined = errors.New("not joined to a room")

const ackTimeout = 10 * time.Second

// Client maintains a live connection to the sync server and mirrors one
// room into a Ledger, reconciling a Canvas after every remote mutation.
// Lost connections are redialed with exponential backoff and recovered
// through the full-snapshot handshake.
type Client struct {
	url    string
	user   board.User
	logger *slog.Logger

	ledger   *Ledger
	pipeline *Pipeline

	// render guards the ledger/pipeline pair so reconciliation sees a
	// consistent sequence.
	render sync.Mutex

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu         sync.Mutex
	roomID     string
	selfID     string
	savedMoves []board.Move
	closed     bool

	createdCh chan server.CreatedPayload
	joinedCh  chan server.JoinedPayload
	roomCh    chan struct{}

	// Optional notification hooks, invoked from the read goroutine.
	OnMouseMoved func(x, y float64, userID string)
	OnMessage    func(userID, msg string)
	OnReaction   func(reaction server.Reaction)
}

// New builds a client for the given websocket URL. The canvas receives
// every reconciled redraw.
func New(url string, user board.User, canvas Canvas, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:       url,
		user:      user,
		logger:    logger,
		ledger:    NewLedger(""),
		pipeline:  NewPipeline(canvas),
		createdCh: make(chan server.CreatedPayload, 1),
		joinedCh:  make(chan server.JoinedPayload, 1),
		roomCh:    make(chan struct{}, 1),
	}
}

// Ledger exposes the client's room state for inspection.
func (c *Client) Ledger() *Ledger { return c.ledger }

// Connect dials the server and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.conn = conn
	go c.readLoop()
	return nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) emit(event string, payload any) error {
	env, err := server.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// CreateRoom asks the server for a fresh room and completes the snapshot
// handshake.
func (c *Client) CreateRoom(ctx context.Context) (string, error) {
	if err := c.emit(server.EventCreateRoom, c.user); err != nil {
		return "", err
	}

	select {
	case created := <-c.createdCh:
		c.enterRoom(created.RoomID, created.UserID)
		return created.RoomID, c.handshake(ctx)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(ackTimeout):
		return "", errors.New("create_room: no acknowledgment")
	}
}

// Join enters an existing room and completes the snapshot handshake.
// Returns ErrRoomFull when the room is at capacity.
func (c *Client) Join(ctx context.Context, roomID string) error {
	if err := c.emit(server.EventJoinRoom, server.JoinRoomPayload{RoomID: roomID, User: c.user}); err != nil {
		return err
	}

	select {
	case joined := <-c.joinedCh:
		if joined.Failed {
			return ErrRoomFull
		}
		c.enterRoom(joined.RoomID, joined.UserID)
		return c.handshake(ctx)
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ackTimeout):
		return errors.New("join_room: no acknowledgment")
	}
}

func (c *Client) enterRoom(roomID, selfID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.selfID = selfID
	c.mu.Unlock()

	c.render.Lock()
	c.ledger = NewLedger(roomID)
	c.ledger.SetSelf(selfID)
	c.pipeline.Reset()
	c.render.Unlock()
}

// handshake requests the full room snapshot and waits for it. It is also
// the resync path: a client that suspects divergence can simply call it
// again.
func (c *Client) handshake(ctx context.Context) error {
	if err := c.emit(server.EventJoinedRoom, nil); err != nil {
		return err
	}

	select {
	case <-c.roomCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ackTimeout):
		return errors.New("joined_room: no snapshot received")
	}
}

// Draw submits a move. The local echo arrives as your_move; nothing is
// rendered optimistically. A new real draw invalidates the redo stack.
func (c *Client) Draw(move board.Move) error {
	c.mu.Lock()
	if c.roomID == "" {
		c.mu.Unlock()
		return ErrNotJoined
	}
	c.mu.Unlock()

	if move.Options.Mode == board.ModeSelect {
		// Selection rectangles stay local; they are never part of the
		// canonical drawing and they do not invalidate redo history.
		c.render.Lock()
		c.ledger.AddMyMove(move)
		c.render.Unlock()
		return nil
	}

	c.mu.Lock()
	c.savedMoves = nil
	c.mu.Unlock()

	return c.emit(server.EventDraw, move)
}

// Undo pops the most recent own move. Real moves go onto the redo stack
// and are announced to the server; select pseudo-moves are discarded
// silently.
func (c *Client) Undo() error {
	c.render.Lock()
	move, ok := c.ledger.PopMyMove()
	if !ok {
		c.render.Unlock()
		return nil
	}
	err := c.reconcileLocked()
	c.render.Unlock()
	if err != nil {
		return err
	}

	if move.Options.Mode == board.ModeSelect {
		return nil
	}

	c.mu.Lock()
	c.savedMoves = append(c.savedMoves, move)
	c.mu.Unlock()

	return c.emit(server.EventUndo, nil)
}

// Redo re-submits the most recently undone move as a fresh draw; the
// server assigns it a new id and timestamp.
func (c *Client) Redo() error {
	c.mu.Lock()
	if len(c.savedMoves) == 0 {
		c.mu.Unlock()
		return nil
	}
	move := c.savedMoves[len(c.savedMoves)-1]
	c.savedMoves = c.savedMoves[:len(c.savedMoves)-1]
	c.mu.Unlock()

	return c.emit(server.EventDraw, move)
}

// RedoDepth reports how many undone moves can be redone.
func (c *Client) RedoDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.savedMoves)
}

// DeleteStrokeAt requests deletion of the topmost stroke under p. The
// canvas is not touched until the stroke_deleted broadcast comes back.
func (c *Client) DeleteStrokeAt(p board.Point) error {
	move, ok := c.ledger.MoveAt(p)
	if !ok {
		return nil
	}
	return c.emit(server.EventDeleteStroke, server.DeleteStrokePayload{MoveID: move.ID})
}

// MouseMove reports the local cursor position to peers.
func (c *Client) MouseMove(x, y float64) error {
	return c.emit(server.EventMouseMove, server.MouseMovePayload{X: x, Y: y})
}

// SendMessage sends a chat message to the room.
func (c *Client) SendMessage(msg string) error {
	return c.emit(server.EventSendMsg, server.MsgPayload{Msg: msg})
}

// SendReaction fans an emoji reaction out to peers.
func (c *Client) SendReaction(reaction server.Reaction) error {
	return c.emit(server.EventSendReaction, reaction)
}

// LeaveRoom exits the current room.
func (c *Client) LeaveRoom() error {
	c.mu.Lock()
	c.roomID = ""
	c.mu.Unlock()
	return c.emit(server.EventLeaveRoom, nil)
}

func (c *Client) readLoop() {
	for {
		var env server.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			closed := c.closed
			roomID := c.roomID
			c.mu.Unlock()
			if closed {
				return
			}
			c.logger.Warn("connection lost", slog.String("error", err.Error()))
			if roomID == "" || !c.reconnect(roomID) {
				return
			}
			continue
		}
		c.handleEvent(env)
	}
}

// reconnect redials with exponential backoff and replays the join plus
// snapshot handshake, which restores any state missed while offline.
func (c *Client) reconnect(roomID string) bool {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute

	err := backoff.Retry(func() error {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return backoff.Permanent(errors.New("client closed"))
		}
		c.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			return err
		}

		c.writeMu.Lock()
		c.conn = conn
		c.writeMu.Unlock()

		if err := c.emit(server.EventJoinRoom, server.JoinRoomPayload{RoomID: roomID, User: c.user}); err != nil {
			return err
		}
		return nil
	}, policy)
	if err != nil {
		c.logger.Error("reconnect failed", slog.String("error", err.Error()))
		return false
	}

	c.logger.Info("reconnected", slog.String("room", roomID))
	return true
}

func (c *Client) handleEvent(env server.Envelope) {
	switch env.Type {
	case server.EventCreated:
		var p server.CreatedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			select {
			case c.createdCh <- p:
			default:
			}
		}

	case server.EventJoined:
		var p server.JoinedPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		select {
		case c.joinedCh <- p:
		default:
		}
		// After a reconnect the ack lands here instead of in Join:
		// re-enter the room and request a snapshot. The snapshot is
		// applied when the room event arrives; waiting for it here
		// would block the read loop that must deliver it.
		c.mu.Lock()
		rejoining := c.roomID != "" && c.selfID != p.UserID && !p.Failed
		c.mu.Unlock()
		if rejoining {
			c.enterRoom(p.RoomID, p.UserID)
			if err := c.emit(server.EventJoinedRoom, nil); err != nil {
				c.logger.Error("resync handshake", slog.String("error", err.Error()))
			}
		}

	case server.EventRoom:
		var p server.RoomPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.render.Lock()
		defer c.render.Unlock()
		if err := c.ledger.LoadSnapshot(p.UsersMoves, p.Users, p.Drawed); err != nil {
			c.logger.Error("load snapshot", slog.String("error", err.Error()))
			return
		}
		c.pipeline.Reset()
		if err := c.reconcileLocked(); err != nil {
			c.logger.Error("reconcile snapshot", slog.String("error", err.Error()))
		}
		select {
		case c.roomCh <- struct{}{}:
		default:
		}

	case server.EventYourMove:
		var move board.Move
		if json.Unmarshal(env.Payload, &move) != nil {
			return
		}
		c.render.Lock()
		defer c.render.Unlock()
		c.ledger.AddMyMove(move)
		c.reconcileOrLog()

	case server.EventUserDraw:
		var p server.UserDrawPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.render.Lock()
		defer c.render.Unlock()
		c.ledger.AddMoveToUser(p.UserID, p.Move)
		c.reconcileOrLog()

	case server.EventUserUndo:
		var p server.UserRefPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.render.Lock()
		defer c.render.Unlock()
		c.ledger.RemoveMoveFromUser(p.UserID)
		c.reconcileOrLog()

	case server.EventStrokeDeleted:
		var p server.StrokeDeletedPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.render.Lock()
		defer c.render.Unlock()
		c.ledger.RemoveMoveByID(p.MoveID)
		c.mu.Lock()
		c.savedMoves = filterMoves(c.savedMoves, p.MoveID)
		c.mu.Unlock()
		c.reconcileOrLog()

	case server.EventNewUser:
		var p server.NewUserPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.render.Lock()
		defer c.render.Unlock()
		c.ledger.AddUser(p.UserID, p.User)

	case server.EventUserDisconnected:
		var p server.UserRefPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.render.Lock()
		defer c.render.Unlock()
		c.ledger.RemoveUser(p.UserID)
		c.reconcileOrLog()

	case server.EventMouseMoved:
		var p server.MouseMovedPayload
		if json.Unmarshal(env.Payload, &p) == nil && c.OnMouseMoved != nil {
			c.OnMouseMoved(p.X, p.Y, p.UserID)
		}

	case server.EventNewMsg:
		var p server.NewMsgPayload
		if json.Unmarshal(env.Payload, &p) == nil && c.OnMessage != nil {
			c.OnMessage(p.UserID, p.Msg)
		}

	case server.EventReactionReceived:
		var p server.Reaction
		if json.Unmarshal(env.Payload, &p) == nil && c.OnReaction != nil {
			c.OnReaction(p)
		}
	}
}

func (c *Client) reconcileLocked() error {
	return c.pipeline.Reconcile(c.ledger.SortedMoves())
}

func (c *Client) reconcileOrLog() {
	if err := c.reconcileLocked(); err != nil {
		c.logger.Error("reconcile", slog.String("error", err.Error()))
	}
}
