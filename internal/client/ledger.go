package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"whiteboard/internal/board"
)

// Ledger is the client-local reconstruction of a room's drawing state.
// Moves live in one of three places: myMoves (this client's own,
// undoable), a per-user bucket (committed by a connected peer), or
// movesWithoutUser (committed by someone who has since left). Render
// order is never taken from any single bucket; it is recomputed as a flat
// timestamp-sorted sequence on demand.
type Ledger struct {
	mu sync.Mutex

	roomID string
	selfID string

	movesWithoutUser []board.Move
	usersMoves       map[string][]board.Move
	myMoves          []board.Move
	users            map[string]board.User
	// arrival is the roster in join order; color rotation keys off the
	// most recently joined user, not map iteration order.
	arrival []string
}

// NewLedger returns an empty ledger for a room.
func NewLedger(roomID string) *Ledger {
	return &Ledger{
		roomID:     roomID,
		usersMoves: make(map[string][]board.Move),
		users:      make(map[string]board.User),
	}
}

// RoomID returns the room this ledger mirrors.
func (l *Ledger) RoomID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roomID
}

// SetSelf records this client's server-assigned connection id.
func (l *Ledger) SetSelf(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selfID = connID
}

// LoadSnapshot replaces the ledger contents from a serialized room
// snapshot. The client's own bucket, when present, seeds myMoves.
func (l *Ledger) LoadSnapshot(usersMovesJSON, usersJSON, drawedJSON string) error {
	var usersMoves map[string][]board.Move
	if err := json.Unmarshal([]byte(usersMovesJSON), &usersMoves); err != nil {
		return fmt.Errorf("decode users moves: %w", err)
	}
	var users map[string]board.User
	if err := json.Unmarshal([]byte(usersJSON), &users); err != nil {
		return fmt.Errorf("decode users: %w", err)
	}
	var drawed []board.Move
	if drawedJSON != "" {
		if err := json.Unmarshal([]byte(drawedJSON), &drawed); err != nil {
			return fmt.Errorf("decode drawed: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.movesWithoutUser = drawed
	l.myMoves = nil
	l.usersMoves = make(map[string][]board.Move)
	for connID, moves := range usersMoves {
		if connID == l.selfID {
			l.myMoves = moves
			continue
		}
		l.usersMoves[connID] = moves
	}

	// A snapshot carries no join order, so connection ids stand in for
	// it; every client derives the same rotation from the same snapshot.
	l.users = make(map[string]board.User)
	var prevColor string
	ids := make([]string, 0, len(users))
	for connID := range users {
		ids = append(ids, connID)
	}
	sort.Strings(ids)
	for _, connID := range ids {
		user := users[connID]
		if user.Color == "" {
			user.Color = NextColor(prevColor)
		}
		prevColor = user.Color
		l.users[connID] = user
	}
	l.arrival = ids

	return nil
}

// AddUser registers a peer, assigning the next color in the rotation
// after the previously joined user's.
func (l *Ledger) AddUser(connID string, user board.User) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if user.Color == "" {
		user.Color = NextColor(l.lastColorLocked())
	}
	if _, ok := l.users[connID]; !ok {
		l.arrival = append(l.arrival, connID)
	}
	l.users[connID] = user
	if _, ok := l.usersMoves[connID]; !ok {
		l.usersMoves[connID] = []board.Move{}
	}
}

func (l *Ledger) lastColorLocked() string {
	if n := len(l.arrival); n > 0 {
		return l.users[l.arrival[n-1]].Color
	}
	return ""
}

// RemoveUser drops a peer, migrating their bucket into movesWithoutUser
// so their moves remain part of the canonical drawing.
func (l *Ledger) RemoveUser(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.movesWithoutUser = append(l.movesWithoutUser, l.usersMoves[connID]...)
	delete(l.usersMoves, connID)
	delete(l.users, connID)
	for i, id := range l.arrival {
		if id == connID {
			l.arrival = append(l.arrival[:i], l.arrival[i+1:]...)
			break
		}
	}
}

// Users returns the current roster keyed by connection id.
func (l *Ledger) Users() map[string]board.User {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]board.User, len(l.users))
	for connID, user := range l.users {
		out[connID] = user
	}
	return out
}

// AddMoveToUser appends a peer's accepted move to their bucket.
func (l *Ledger) AddMoveToUser(connID string, move board.Move) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usersMoves[connID] = append(l.usersMoves[connID], move)
}

// RemoveMoveFromUser pops a peer's most recent move (their undo).
func (l *Ledger) RemoveMoveFromUser(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	moves := l.usersMoves[connID]
	if len(moves) == 0 {
		return
	}
	l.usersMoves[connID] = moves[:len(moves)-1]
}

// AddMyMove records a server-acknowledged own move. A trailing select
// pseudo-move is replaced rather than stacked, mirroring how a selection
// rectangle gives way to the action performed inside it.
func (l *Ledger) AddMyMove(move board.Move) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.myMoves); n > 0 && l.myMoves[n-1].Options.Mode == board.ModeSelect {
		l.myMoves[n-1] = move
		return
	}
	l.myMoves = append(l.myMoves, move)
}

// PopMyMove removes and returns this client's most recent move.
func (l *Ledger) PopMyMove() (board.Move, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.myMoves) == 0 {
		return board.Move{}, false
	}
	move := l.myMoves[len(l.myMoves)-1]
	l.myMoves = l.myMoves[:len(l.myMoves)-1]
	return move, true
}

// RemoveMoveByID deletes a move wherever it lives: own moves, any peer
// bucket, or the ownerless pool.
func (l *Ledger) RemoveMoveByID(moveID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.myMoves = filterMoves(l.myMoves, moveID)
	l.movesWithoutUser = filterMoves(l.movesWithoutUser, moveID)
	for connID, moves := range l.usersMoves {
		l.usersMoves[connID] = filterMoves(moves, moveID)
	}
}

func filterMoves(moves []board.Move, moveID string) []board.Move {
	out := moves[:0]
	for _, move := range moves {
		if move.ID != moveID {
			out = append(out, move)
		}
	}
	return out
}

// SortedMoves flattens every bucket into a single sequence ordered by
// server timestamp. The sort is stable, so simultaneous timestamps keep
// their insertion order; this sort is the conflict resolution rule that
// makes every client render the same drawing.
func (l *Ledger) SortedMoves() []board.Move {
	l.mu.Lock()
	defer l.mu.Unlock()

	moves := make([]board.Move, 0, len(l.movesWithoutUser)+len(l.myMoves))
	moves = append(moves, l.movesWithoutUser...)
	moves = append(moves, l.myMoves...)

	ids := make([]string, 0, len(l.usersMoves))
	for connID := range l.usersMoves {
		ids = append(ids, connID)
	}
	sort.Strings(ids)
	for _, connID := range ids {
		moves = append(moves, l.usersMoves[connID]...)
	}

	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].Timestamp < moves[j].Timestamp
	})
	return moves
}

// MoveAt returns the topmost rendered move whose stroke contains p, used
// by stroke-delete mode to pick a deletion target. Select and
// stroke-delete pseudo-moves are never candidates.
func (l *Ledger) MoveAt(p board.Point) (board.Move, bool) {
	moves := l.SortedMoves()
	for i := len(moves) - 1; i >= 0; i-- {
		if board.HitTest(moves[i], p) {
			return moves[i], true
		}
	}
	return board.Move{}, false
}

// MyMoveCount reports the depth of the local undo stack.
func (l *Ledger) MyMoveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.myMoves)
}
