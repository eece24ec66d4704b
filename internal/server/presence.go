package server

import "sync"

// userPresence is one logical user's live connections in a room.
// announced is the connection id peers were introduced to in new_user;
// it is kept even after that particular connection closes, because it is
// the only id peers have for the user.
type userPresence struct {
	conns     map[string]struct{}
	announced string
}

// Presence tracks how many live connections represent each logical user
// in each room. Join and leave notifications to peers fire only on the
// 0->1 and 1->0 transitions it reports, which is what makes multi-tab
// usage invisible to other participants.
type Presence struct {
	mu    sync.Mutex
	rooms map[string]map[string]*userPresence
}

// NewPresence returns an empty tracker.
func NewPresence() *Presence {
	return &Presence{rooms: make(map[string]map[string]*userPresence)}
}

// AddConnection records a connection for a user and reports whether it
// was the user's first connection in the room. The first connection's id
// is remembered as the one peers know the user by.
func (p *Presence) AddConnection(roomID, userID, connID string) (first bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	users, ok := p.rooms[roomID]
	if !ok {
		users = make(map[string]*userPresence)
		p.rooms[roomID] = users
	}

	user, ok := users[userID]
	if !ok {
		user = &userPresence{conns: make(map[string]struct{})}
		users[userID] = user
	}

	first = len(user.conns) == 0
	if first {
		user.announced = connID
	}
	user.conns[connID] = struct{}{}
	return first
}

// RemoveConnection drops a connection and reports whether it was the
// user's last one in the room. On the last removal it also returns the
// announced connection id, which is what a departure broadcast must
// carry for peers to recognize the user. Removing an untracked
// connection is a no-op reported as false.
func (p *Presence) RemoveConnection(roomID, userID, connID string) (announced string, last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	users, ok := p.rooms[roomID]
	if !ok {
		return "", false
	}
	user, ok := users[userID]
	if !ok {
		return "", false
	}
	if _, ok := user.conns[connID]; !ok {
		return "", false
	}

	delete(user.conns, connID)
	if len(user.conns) > 0 {
		return "", false
	}

	announced = user.announced
	delete(users, userID)
	if len(users) == 0 {
		delete(p.rooms, roomID)
	}
	return announced, true
}

// UserCount returns how many distinct logical users are present.
func (p *Presence) UserCount(roomID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rooms[roomID])
}

// Connections returns how many connections a user currently holds.
func (p *Presence) Connections(roomID, userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.rooms[roomID][userID]
	if !ok {
		return 0
	}
	return len(user.conns)
}
