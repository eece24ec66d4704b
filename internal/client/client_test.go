package client

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard/internal/board"
	"whiteboard/internal/server"
)

func newSyncServer(t *testing.T) string {
	t.Helper()
	srv, err := server.New(server.LoadConfig(), nil)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func newTestClient(t *testing.T, url string, user board.User) (*Client, *RecordingCanvas) {
	t.Helper()
	canvas := &RecordingCanvas{}
	c := New(url, user, canvas, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, canvas
}

// waitUntil polls cond until it holds or the deadline passes. Remote
// effects arrive on the read goroutine, so tests observe them this way.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTwoClientsConvergeOnADraw(t *testing.T) {
	url := newSyncServer(t)
	ctx := context.Background()

	clientA, canvasA := newTestClient(t, url, board.User{ID: "user-a", Name: "Ada"})
	clientB, canvasB := newTestClient(t, url, board.User{ID: "user-b", Name: "Grace"})

	roomID, err := clientA.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := clientB.Join(ctx, roomID); err != nil {
		t.Fatalf("join: %v", err)
	}

	err = clientA.Draw(board.Move{
		Path:    []board.Point{{X: 10, Y: 10}, {X: 50, Y: 50}},
		Rect:    board.RectSize{Width: 40, Height: 40},
		Options: board.Options{Shape: board.ShapeRect, Mode: board.ModeDraw, LineWidth: 2},
	})
	if err != nil {
		t.Fatalf("draw: %v", err)
	}

	waitUntil(t, "A's echo", func() bool { return len(canvasA.Recorded()) == 1 })
	waitUntil(t, "B's broadcast", func() bool { return len(canvasB.Recorded()) == 1 })

	drawnA := canvasA.Recorded()[0].Move
	drawnB := canvasB.Recorded()[0].Move
	if drawnA.ID == "" || drawnA.ID != drawnB.ID || drawnA.Timestamp != drawnB.Timestamp {
		t.Fatalf("clients diverged: %+v vs %+v", drawnA, drawnB)
	}
}

func TestUndoRedoReplaysWithFreshIdentity(t *testing.T) {
	url := newSyncServer(t)
	ctx := context.Background()

	clientA, canvasA := newTestClient(t, url, board.User{ID: "user-a"})
	clientB, canvasB := newTestClient(t, url, board.User{ID: "user-b"})

	roomID, err := clientA.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := clientB.Join(ctx, roomID); err != nil {
		t.Fatalf("join: %v", err)
	}

	original := board.Move{
		Path:    []board.Point{{X: 0, Y: 0}, {X: 20, Y: 20}},
		Options: board.Options{Shape: board.ShapeLine, Mode: board.ModeDraw, LineWidth: 3},
	}
	if err := clientA.Draw(original); err != nil {
		t.Fatalf("draw: %v", err)
	}
	waitUntil(t, "A's echo", func() bool { return clientA.Ledger().MyMoveCount() == 1 })
	waitUntil(t, "B's copy", func() bool { return len(canvasB.Recorded()) == 1 })
	firstID := canvasB.Recorded()[0].Move.ID
	firstTS := canvasB.Recorded()[0].Move.Timestamp

	if err := clientA.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if clientA.RedoDepth() != 1 {
		t.Fatalf("redo depth = %d, want 1", clientA.RedoDepth())
	}
	waitUntil(t, "B dropping the move", func() bool { return len(canvasB.Recorded()) == 0 })
	waitUntil(t, "A's canvas clearing", func() bool { return len(canvasA.Recorded()) == 0 })

	if err := clientA.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	waitUntil(t, "B seeing the redo", func() bool { return len(canvasB.Recorded()) == 1 })

	redone := canvasB.Recorded()[0].Move
	if redone.ID == firstID {
		t.Fatal("redone move must carry a fresh server id")
	}
	if redone.Timestamp < firstTS {
		t.Fatalf("redone timestamp %d predates original %d", redone.Timestamp, firstTS)
	}
	if len(redone.Path) != 2 || redone.Path[1] != original.Path[1] {
		t.Fatalf("redo altered geometry: %+v", redone.Path)
	}
	if clientA.RedoDepth() != 0 {
		t.Fatalf("redo depth after redo = %d", clientA.RedoDepth())
	}
}

func TestNewDrawInvalidatesRedo(t *testing.T) {
	url := newSyncServer(t)
	ctx := context.Background()

	clientA, _ := newTestClient(t, url, board.User{ID: "user-a"})
	if _, err := clientA.CreateRoom(ctx); err != nil {
		t.Fatalf("create room: %v", err)
	}

	line := func(x float64) board.Move {
		return board.Move{
			Path:    []board.Point{{X: 0, Y: 0}, {X: x, Y: x}},
			Options: board.Options{Shape: board.ShapeLine, Mode: board.ModeDraw},
		}
	}

	if err := clientA.Draw(line(10)); err != nil {
		t.Fatalf("draw: %v", err)
	}
	waitUntil(t, "first echo", func() bool { return clientA.Ledger().MyMoveCount() == 1 })
	if err := clientA.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if clientA.RedoDepth() != 1 {
		t.Fatalf("redo depth = %d", clientA.RedoDepth())
	}

	if err := clientA.Draw(line(20)); err != nil {
		t.Fatalf("second draw: %v", err)
	}
	if clientA.RedoDepth() != 0 {
		t.Fatal("a fresh draw must clear the redo stack")
	}
}

func TestJoinFullRoom(t *testing.T) {
	url := newSyncServer(t)
	roomID := "pack"

	// Fill the room with bare connections; they only need to hold a seat.
	for i := 0; i < 12; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial seat %d: %v", i, err)
		}
		t.Cleanup(func() { conn.Close() })

		env, err := server.NewEnvelope(server.EventJoinRoom, server.JoinRoomPayload{
			RoomID: roomID,
			User:   board.User{ID: fmt.Sprintf("seat-%d", i)},
		})
		if err != nil {
			t.Fatalf("envelope: %v", err)
		}
		if err := conn.WriteJSON(env); err != nil {
			t.Fatalf("join seat %d: %v", i, err)
		}
		var ack server.Envelope
		if err := conn.ReadJSON(&ack); err != nil {
			t.Fatalf("ack seat %d: %v", i, err)
		}
	}

	c, _ := newTestClient(t, url, board.User{ID: "late"})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Join(ctx, roomID); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
}

func TestDrawRequiresRoom(t *testing.T) {
	url := newSyncServer(t)
	c, _ := newTestClient(t, url, board.User{ID: "loner"})

	err := c.Draw(board.Move{
		Path:    []board.Point{{X: 0, Y: 0}},
		Options: board.Options{Shape: board.ShapeLine, Mode: board.ModeDraw},
	})
	if !errors.Is(err, ErrNotJoined) {
		t.Fatalf("err = %v, want ErrNotJoined", err)
	}
}

// A multi-tab user must vanish from peers' rosters when their last tab
// leaves, even though the announcement and the final departure happen on
// different connections.
func TestMultiTabUserLeavesPeerRoster(t *testing.T) {
	url := newSyncServer(t)
	ctx := context.Background()

	clientA, _ := newTestClient(t, url, board.User{ID: "user-a", Name: "Ada"})
	roomID, err := clientA.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	userB := board.User{ID: "user-b", Name: "Grace"}
	tab1, _ := newTestClient(t, url, userB)
	tab2, _ := newTestClient(t, url, userB)
	if err := tab1.Join(ctx, roomID); err != nil {
		t.Fatalf("join tab1: %v", err)
	}
	if err := tab2.Join(ctx, roomID); err != nil {
		t.Fatalf("join tab2: %v", err)
	}

	// A's snapshot already lists A itself; B's announcement makes two.
	waitUntil(t, "A learning about B", func() bool {
		return len(clientA.Ledger().Users()) == 2
	})

	// Tabs close in join order.
	if err := tab1.LeaveRoom(); err != nil {
		t.Fatalf("leave tab1: %v", err)
	}
	if err := tab2.LeaveRoom(); err != nil {
		t.Fatalf("leave tab2: %v", err)
	}

	waitUntil(t, "A's roster dropping B", func() bool {
		roster := clientA.Ledger().Users()
		if len(roster) != 1 {
			return false
		}
		for _, user := range roster {
			if user.ID == userB.ID {
				return false
			}
		}
		return true
	})
}

func TestSelectionStaysLocal(t *testing.T) {
	url := newSyncServer(t)
	ctx := context.Background()

	clientA, _ := newTestClient(t, url, board.User{ID: "user-a"})
	clientB, canvasB := newTestClient(t, url, board.User{ID: "user-b"})

	roomID, err := clientA.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := clientB.Join(ctx, roomID); err != nil {
		t.Fatalf("join: %v", err)
	}

	sel := board.Move{
		Path:    []board.Point{{X: 0, Y: 0}, {X: 40, Y: 40}},
		Options: board.Options{Shape: board.ShapeRect, Mode: board.ModeSelect},
	}
	if err := clientA.Draw(sel); err != nil {
		t.Fatalf("draw selection: %v", err)
	}

	if clientA.Ledger().MyMoveCount() != 1 {
		t.Fatal("selection should land in the local ledger")
	}

	// Peers never hear about it.
	time.Sleep(200 * time.Millisecond)
	if n := len(canvasB.Recorded()); n != 0 {
		t.Fatalf("selection leaked to a peer: %d draws", n)
	}
}
