package interest

import (
	"testing"

	"github.com/automoto/netcode/shared/gamemath"
	"github.com/automoto/netcode/shared/protocol"
)

const (
	anchorID protocol.EntityID = 1
	otherID  protocol.EntityID = 2
	client   protocol.ClientID = 7
)

func newTestManager() *Manager {
	m := NewManager(Config{CellSize: 16, Radius: 50, HysteresisMargin: 5})
	m.AddClient(client, anchorID)
	m.Grid().Upsert(anchorID, gamemath.Vec2{X: 0, Y: 0}, 0, 0)
	return m
}

func countKind(events []Event, k EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func TestEnterFiresAtRadius(t *testing.T) {
	m := newTestManager()

	// Entity approaches from 60 to 40 over five ticks; radius is 50.
	distances := []float64{60, 55, 52, 48, 40}
	enterTick := -1
	for i, d := range distances {
		m.Grid().Upsert(otherID, gamemath.Vec2{X: d, Y: 0}, 0, 0)
		for _, ev := range m.Update() {
			if ev.Kind == Enter && ev.Entity == otherID {
				if enterTick != -1 {
					t.Fatalf("enter fired twice (ticks %d and %d)", enterTick, i)
				}
				enterTick = i
			}
		}
	}
	// First distance below 50 is 48, at index 3.
	if enterTick != 3 {
		t.Fatalf("enter fired at tick %d, want 3", enterTick)
	}
}

func TestHysteresisPreventsFlapping(t *testing.T) {
	m := newTestManager()

	// Oscillate exactly at the enter boundary. Exit threshold is 55, so
	// once inside the entity must stay in.
	pairs := 0
	inside := false
	for i := 0; i < 60; i++ {
		d := 49.5
		if i%2 == 1 {
			d = 50.5
		}
		m.Grid().Upsert(otherID, gamemath.Vec2{X: d, Y: 0}, 0, 0)
		for _, ev := range m.Update() {
			if ev.Entity != otherID {
				continue
			}
			if ev.Kind == Enter {
				inside = true
			} else if inside {
				pairs++
				inside = false
			}
		}
	}
	if pairs > 1 {
		t.Fatalf("boundary oscillation produced %d enter/exit pairs", pairs)
	}
}

func TestExitBeyondHysteresis(t *testing.T) {
	m := newTestManager()
	m.Grid().Upsert(otherID, gamemath.Vec2{X: 40, Y: 0}, 0, 0)
	if ev := m.Update(); countKind(ev, Enter) == 0 {
		t.Fatal("expected enter at 40")
	}

	// 54 is outside the enter radius but inside the exit threshold.
	m.Grid().Upsert(otherID, gamemath.Vec2{X: 54, Y: 0}, 0, 0)
	if ev := m.Update(); countKind(ev, Exit) != 0 {
		t.Fatal("exited inside hysteresis band")
	}

	m.Grid().Upsert(otherID, gamemath.Vec2{X: 56, Y: 0}, 0, 0)
	if ev := m.Update(); countKind(ev, Exit) != 1 {
		t.Fatal("expected exit beyond hysteresis band")
	}
}

func TestForceIncludeRule(t *testing.T) {
	m := newTestManager()
	hud := protocol.EntityID(99)
	m.Grid().Upsert(hud, gamemath.Vec2{X: 10000, Y: 10000}, 0, 0)
	m.AddRule(func(_ protocol.ClientID, e protocol.EntityID) Verdict {
		if e == hud {
			return Include
		}
		return Abstain
	})

	events := m.Update()
	found := false
	for _, ev := range events {
		if ev.Kind == Enter && ev.Entity == hud {
			found = true
		}
	}
	if !found {
		t.Fatal("rule did not force-include distant entity")
	}
	if !m.Contains(client, hud) {
		t.Fatal("set does not contain forced entity")
	}
}

func TestForceExcludeRule(t *testing.T) {
	m := newTestManager()
	m.Grid().Upsert(otherID, gamemath.Vec2{X: 10, Y: 0}, 0, 0)
	m.AddRule(func(_ protocol.ClientID, e protocol.EntityID) Verdict {
		if e == otherID {
			return Exclude
		}
		return Abstain
	})
	m.Update()
	if m.Contains(client, otherID) {
		t.Fatal("rule did not exclude nearby entity")
	}
}

func TestDropEntityRemovesSilently(t *testing.T) {
	m := newTestManager()
	m.Grid().Upsert(otherID, gamemath.Vec2{X: 10, Y: 0}, 0, 0)
	m.Update()
	if !m.Contains(client, otherID) {
		t.Fatal("setup: entity should be relevant")
	}

	m.DropEntity(otherID)
	if m.Contains(client, otherID) {
		t.Fatal("entity still in set after drop")
	}
	for _, ev := range m.Update() {
		if ev.Entity == otherID {
			t.Fatalf("drop leaked event %+v", ev)
		}
	}
}

func TestGridQueryDedupsAcrossCells(t *testing.T) {
	g := NewGrid(16)
	// Entity spanning four cells.
	g.Upsert(5, gamemath.Vec2{X: 16, Y: 16}, 10, 10)
	got := g.QueryCircle(gamemath.Vec2{X: 16, Y: 16}, 40)
	if len(got) != 1 {
		t.Fatalf("want single candidate, got %v", got)
	}
}
