package server

import "testing"

func TestPresenceFirstAndLastTransitions(t *testing.T) {
	p := NewPresence()

	if first := p.AddConnection("r1", "u1", "c1"); !first {
		t.Fatal("first connection should report the 0->1 transition")
	}
	if first := p.AddConnection("r1", "u1", "c2"); first {
		t.Fatal("second tab must not report a join transition")
	}

	if _, last := p.RemoveConnection("r1", "u1", "c1"); last {
		t.Fatal("closing one of two tabs must not report a leave transition")
	}
	if _, last := p.RemoveConnection("r1", "u1", "c2"); !last {
		t.Fatal("closing the final tab should report the 1->0 transition")
	}
}

// The id reported on the final removal is the one peers were introduced
// to, regardless of which tab happened to close last.
func TestPresenceReportsAnnouncedConnection(t *testing.T) {
	p := NewPresence()

	p.AddConnection("r1", "u1", "c1")
	p.AddConnection("r1", "u1", "c2")

	// Tabs close in join order: the announced tab goes away first.
	if _, last := p.RemoveConnection("r1", "u1", "c1"); last {
		t.Fatal("c2 is still open")
	}
	announced, last := p.RemoveConnection("r1", "u1", "c2")
	if !last {
		t.Fatal("expected the 1->0 transition")
	}
	if announced != "c1" {
		t.Fatalf("announced = %q, want the first connection c1", announced)
	}

	// A fresh presence cycle announces anew.
	if first := p.AddConnection("r1", "u1", "c3"); !first {
		t.Fatal("rejoining after full departure is a join transition")
	}
	announced, last = p.RemoveConnection("r1", "u1", "c3")
	if !last || announced != "c3" {
		t.Fatalf("announced = %q last = %v, want c3 true", announced, last)
	}
}

func TestPresenceIsolatesRooms(t *testing.T) {
	p := NewPresence()

	p.AddConnection("r1", "u1", "c1")
	if first := p.AddConnection("r2", "u1", "c2"); !first {
		t.Fatal("presence in another room is independent")
	}

	if got := p.UserCount("r1"); got != 1 {
		t.Fatalf("expected 1 user in r1, got %d", got)
	}
}

func TestPresenceRemoveUntracked(t *testing.T) {
	p := NewPresence()

	if _, last := p.RemoveConnection("nope", "u1", "c1"); last {
		t.Fatal("removing an untracked connection must not fire a transition")
	}

	p.AddConnection("r1", "u1", "c1")
	if _, last := p.RemoveConnection("r1", "u1", "other"); last {
		t.Fatal("removing a foreign connection must not fire a transition")
	}
	if got := p.Connections("r1", "u1"); got != 1 {
		t.Fatalf("expected the tracked connection to survive, got %d", got)
	}
}

func TestPresenceCleansUpEmptyRooms(t *testing.T) {
	p := NewPresence()

	p.AddConnection("r1", "u1", "c1")
	p.RemoveConnection("r1", "u1", "c1")

	if got := p.UserCount("r1"); got != 0 {
		t.Fatalf("expected empty room, got %d users", got)
	}
	if _, ok := p.rooms["r1"]; ok {
		t.Fatal("empty room entry should be deleted")
	}
}
