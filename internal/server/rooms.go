package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"whiteboard/internal/board"
)

// ErrRoomFull is returned when a join would exceed the room capacity.
var ErrRoomFull = errors.New("room is full")

// MoveStore persists a room's canonical moves across restarts. A nil
// MoveStore disables persistence.
type MoveStore interface {
	LoadMoves(roomID string) ([]board.Move, error)
	SaveMoves(roomID string, moves []board.Move) error
}

// Room is one collaborative session. Every move lives either in the
// bucket of the connection that drew it (still undoable) or in drawed
// once that connection has left.
type Room struct {
	ID         string
	users      map[string]board.User
	usersMoves map[string][]board.Move
	// announced maps a logical user id to their first connection, the id
	// carried by the new_user and user_disconnected broadcasts. It stays
	// pinned for as long as any of the user's connections remains, even
	// after the first one closes.
	announced map[string]string
	drawed    []board.Move
	evict     *time.Timer
}

// RoomStore is the authoritative registry of live rooms. It is an owned,
// injected object rather than a process-wide singleton so tests can run
// isolated instances.
type RoomStore struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	maxUsers int
	ttl      time.Duration
	moves    MoveStore
	logger   *slog.Logger
}

// NewRoomStore builds a store enforcing the given per-room capacity.
// Emptied rooms are evicted after ttl of idleness; ttl <= 0 keeps them
// forever. moves may be nil.
func NewRoomStore(maxUsers int, ttl time.Duration, moves MoveStore, logger *slog.Logger) *RoomStore {
	if maxUsers <= 0 {
		maxUsers = defaultMaxUsersPerRoom
	}
	return &RoomStore{
		rooms:    make(map[string]*Room),
		maxUsers: maxUsers,
		ttl:      ttl,
		moves:    moves,
		logger:   logger,
	}
}

const roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomRoomID() string {
	id := make([]byte, 4)
	for i := range id {
		id[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(id)
}

// CreateRoom registers a new room with the creating connection as its
// sole member and returns the generated id.
func (s *RoomStore) CreateRoom(connID string, user board.User) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var roomID string
	for {
		roomID = randomRoomID()
		if _, exists := s.rooms[roomID]; !exists {
			break
		}
	}

	room := &Room{
		ID:         roomID,
		users:      map[string]board.User{connID: user},
		usersMoves: map[string][]board.Move{connID: {}},
		announced:  make(map[string]string),
	}
	if user.ID != "" {
		room.announced[user.ID] = connID
	}
	s.rooms[roomID] = room

	if s.logger != nil {
		s.logger.Info("room created", slog.String("room", roomID), slog.String("conn", connID))
	}
	return roomID
}

// JoinRoom adds a connection to a room, lazily materializing the room if
// it only exists as persisted board data. Returns ErrRoomFull when the
// room already holds the maximum number of connections.
func (s *RoomStore) JoinRoom(roomID, connID string, user board.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = &Room{
			ID:         roomID,
			users:      make(map[string]board.User),
			usersMoves: make(map[string][]board.Move),
			announced:  make(map[string]string),
		}
		if s.moves != nil {
			moves, err := s.moves.LoadMoves(roomID)
			if err != nil {
				if s.logger != nil {
					s.logger.Error("load persisted moves", slog.String("room", roomID), slog.String("error", err.Error()))
				}
			} else {
				room.drawed = moves
			}
		}
		s.rooms[roomID] = room
	}

	if len(room.users) >= s.maxUsers {
		return ErrRoomFull
	}

	if room.evict != nil {
		room.evict.Stop()
		room.evict = nil
	}

	room.users[connID] = user
	room.usersMoves[connID] = []board.Move{}
	if user.ID != "" {
		if _, ok := room.announced[user.ID]; !ok {
			room.announced[user.ID] = connID
		}
	}
	return nil
}

// LeaveRoom removes a connection, folding its move bucket into drawed so
// the moves stay part of the canonical drawing. Once the room is empty
// its moves are persisted and eviction is scheduled.
func (s *RoomStore) LeaveRoom(roomID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return
	}

	if moves, ok := room.usersMoves[connID]; ok {
		room.drawed = append(room.drawed, moves...)
	}
	leaving := room.users[connID]
	delete(room.usersMoves, connID)
	delete(room.users, connID)

	// The announcement only outlives this connection while a sibling tab
	// of the same user is still present.
	if leaving.ID != "" {
		remaining := false
		for _, user := range room.users {
			if user.ID == leaving.ID {
				remaining = true
				break
			}
		}
		if !remaining {
			delete(room.announced, leaving.ID)
		}
	}

	if len(room.users) == 0 {
		s.persistLocked(room)
		s.scheduleEvictionLocked(room)
	}
}

func (s *RoomStore) persistLocked(room *Room) {
	if s.moves == nil {
		return
	}
	moves := append([]board.Move{}, room.drawed...)
	if err := s.moves.SaveMoves(room.ID, moves); err != nil && s.logger != nil {
		s.logger.Error("persist moves", slog.String("room", room.ID), slog.String("error", err.Error()))
	}
}

func (s *RoomStore) scheduleEvictionLocked(room *Room) {
	if s.ttl <= 0 {
		return
	}
	if room.evict != nil {
		room.evict.Stop()
	}
	roomID := room.ID
	room.evict = time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := s.rooms[roomID]; ok && len(current.users) == 0 {
			delete(s.rooms, roomID)
			if s.logger != nil {
				s.logger.Info("room evicted", slog.String("room", roomID))
			}
		}
	})
}

// AddMove appends a move to the connection's bucket. A vanished room or
// bucket (race with a concurrent leave) drops the move silently; the
// originating connection is gone and cannot observe the failure.
func (s *RoomStore) AddMove(roomID, connID string, move board.Move) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	moves, ok := room.usersMoves[connID]
	if !ok {
		return
	}
	room.usersMoves[connID] = append(moves, move)
}

// UndoLastMove pops the connection's most recent move. The second return
// is false when there was nothing to undo.
func (s *RoomStore) UndoLastMove(roomID, connID string) (board.Move, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return board.Move{}, false
	}
	moves := room.usersMoves[connID]
	if len(moves) == 0 {
		return board.Move{}, false
	}
	last := moves[len(moves)-1]
	room.usersMoves[connID] = moves[:len(moves)-1]
	return last, true
}

// DeleteMoveByID removes the first move matching id, scanning drawed
// before the live buckets. Deleting an absent id is a no-op, which makes
// duplicate delete requests safe.
func (s *RoomStore) DeleteMoveByID(roomID, moveID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}

	for i, move := range room.drawed {
		if move.ID == moveID {
			room.drawed = append(room.drawed[:i], room.drawed[i+1:]...)
			return true
		}
	}

	for connID, moves := range room.usersMoves {
		for i, move := range moves {
			if move.ID == moveID {
				room.usersMoves[connID] = append(moves[:i], moves[i+1:]...)
				return true
			}
		}
	}
	return false
}

// User returns the user registered for a connection.
func (s *RoomStore) User(roomID, connID string) (board.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return board.User{}, false
	}
	user, ok := room.users[connID]
	return user, ok
}

// Exists reports whether a room is currently materialized in memory.
func (s *RoomStore) Exists(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Snapshot serializes the room's move buckets, its user roster
// deduplicated by logical user id, and the ownerless drawed moves.
func (s *RoomStore) Snapshot(roomID string) (RoomPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return RoomPayload{}, fmt.Errorf("room %s not found", roomID)
	}

	movesJSON, err := json.Marshal(room.usersMoves)
	if err != nil {
		return RoomPayload{}, fmt.Errorf("marshal user moves: %w", err)
	}

	// A user with several tabs open appears once, keyed by their
	// announced connection id so the roster entry matches the new_user
	// and user_disconnected broadcasts peers receive.
	users := make(map[string]board.User, len(room.users))
	for connID, user := range room.users {
		if user.ID == "" {
			users[connID] = user
			continue
		}
		users[room.announced[user.ID]] = user
	}

	usersJSON, err := json.Marshal(users)
	if err != nil {
		return RoomPayload{}, fmt.Errorf("marshal users: %w", err)
	}

	drawedJSON, err := json.Marshal(room.drawed)
	if err != nil {
		return RoomPayload{}, fmt.Errorf("marshal drawed: %w", err)
	}

	return RoomPayload{
		ID:         roomID,
		UsersMoves: string(movesJSON),
		Users:      string(usersJSON),
		Drawed:     string(drawedJSON),
	}, nil
}
