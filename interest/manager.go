package interest

import (
	"github.com/automoto/netcode/shared/protocol"
)

// Verdict is a relevancy rule's answer for one (client, entity) pair.
type Verdict uint8

const (
	Abstain Verdict = iota
	Include
	Exclude
)

// Rule is a pluggable relevancy predicate evaluated after the spatial
// filter. It can force-include entities the filter excluded or
// force-exclude ones it included.
type Rule func(client protocol.ClientID, entity protocol.EntityID) Verdict

// EventKind distinguishes interest transitions.
type EventKind uint8

const (
	Enter EventKind = iota
	Exit
)

// Event records one interest-set transition produced by Update.
type Event struct {
	Kind   EventKind
	Client protocol.ClientID
	Entity protocol.EntityID
}

// Config tunes the interest manager.
type Config struct {
	CellSize float64
	// Radius is the enter threshold. HysteresisMargin widens the exit
	// threshold so boundary oscillation does not flap.
	Radius           float64
	HysteresisMargin float64
}

// DefaultConfig returns the tuning used by the dedicated server.
func DefaultConfig() Config {
	return Config{CellSize: 64, Radius: 512, HysteresisMargin: 32}
}

type clientState struct {
	anchor protocol.EntityID
	set    map[protocol.EntityID]struct{}
}

// Manager owns the spatial grid and every client's interest set. It is
// mutated only during the interest phase of the tick; the replication and
// bandwidth components read the resulting sets and never touch them.
type Manager struct {
	grid    *Grid
	cfg     Config
	clients map[protocol.ClientID]*clientState
	rules   []Rule
}

// NewManager creates an interest manager.
func NewManager(cfg Config) *Manager {
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultConfig().Radius
	}
	if cfg.HysteresisMargin <= 0 {
		cfg.HysteresisMargin = DefaultConfig().HysteresisMargin
	}
	return &Manager{
		grid:    NewGrid(cfg.CellSize),
		cfg:     cfg,
		clients: make(map[protocol.ClientID]*clientState),
	}
}

// Grid exposes the spatial hash for entity upserts during the tick phase.
func (m *Manager) Grid() *Grid { return m.grid }

// AddRule appends a relevancy rule. Rules run in registration order; the
// first non-abstaining verdict wins.
func (m *Manager) AddRule(r Rule) { m.rules = append(m.rules, r) }

// AddClient starts tracking a client anchored to the given entity. The
// interest set starts empty, so the first Update emits enters for
// everything in range.
func (m *Manager) AddClient(c protocol.ClientID, anchor protocol.EntityID) {
	m.clients[c] = &clientState{anchor: anchor, set: make(map[protocol.EntityID]struct{})}
}

// RemoveClient drops a client and its interest set.
func (m *Manager) RemoveClient(c protocol.ClientID) {
	delete(m.clients, c)
}

// SetAnchor re-anchors a client, e.g. after respawn or spectator switch.
func (m *Manager) SetAnchor(c protocol.ClientID, anchor protocol.EntityID) {
	if cs, ok := m.clients[c]; ok {
		cs.anchor = anchor
	}
}

// Set returns a client's current interest set. Callers must treat it as
// read-only.
func (m *Manager) Set(c protocol.ClientID) map[protocol.EntityID]struct{} {
	if cs, ok := m.clients[c]; ok {
		return cs.set
	}
	return nil
}

// Contains reports whether entity is currently relevant to client.
func (m *Manager) Contains(c protocol.ClientID, e protocol.EntityID) bool {
	cs, ok := m.clients[c]
	if !ok {
		return false
	}
	_, in := cs.set[e]
	return in
}

// Distance returns the distance between a client's anchor and an entity,
// for component-level relevancy radii in the replication manager.
func (m *Manager) Distance(c protocol.ClientID, e protocol.EntityID) (float64, bool) {
	cs, ok := m.clients[c]
	if !ok {
		return 0, false
	}
	anchor, ok := m.grid.Pos(cs.anchor)
	if !ok {
		return 0, false
	}
	pos, ok := m.grid.Pos(e)
	if !ok {
		return 0, false
	}
	return anchor.Dist(pos), true
}

// DropEntity removes a despawned entity from the grid and from every
// client's set without emitting exit events; despawn notifications follow
// the entity lifecycle path instead.
func (m *Manager) DropEntity(e protocol.EntityID) {
	m.grid.Remove(e)
	for _, cs := range m.clients {
		delete(cs.set, e)
	}
}

// Update recomputes every client's interest set and returns the enter/exit
// transitions since the previous tick.
func (m *Manager) Update() []Event {
	var events []Event
	for cid, cs := range m.clients {
		events = m.updateClient(cid, cs, events)
	}
	return events
}

func (m *Manager) updateClient(cid protocol.ClientID, cs *clientState, events []Event) []Event {
	anchor, ok := m.grid.Pos(cs.anchor)
	if !ok {
		// Anchor not in the world yet (pre-spawn); everything exits.
		for e := range cs.set {
			delete(cs.set, e)
			events = append(events, Event{Kind: Exit, Client: cid, Entity: e})
		}
		return events
	}

	exitRadius := m.cfg.Radius + m.cfg.HysteresisMargin
	next := make(map[protocol.EntityID]struct{})

	for _, e := range m.grid.QueryCircle(anchor, exitRadius) {
		if e == cs.anchor {
			next[e] = struct{}{} // a client is always interested in its own anchor
			continue
		}
		pos, ok := m.grid.Pos(e)
		if !ok {
			continue
		}
		d := anchor.Dist(pos)
		if _, held := cs.set[e]; held {
			if d <= exitRadius {
				next[e] = struct{}{}
			}
		} else if d <= m.cfg.Radius {
			next[e] = struct{}{}
		}
	}

	m.applyRules(cid, next)

	for e := range next {
		if _, had := cs.set[e]; !had {
			events = append(events, Event{Kind: Enter, Client: cid, Entity: e})
		}
	}
	for e := range cs.set {
		if _, has := next[e]; !has {
			events = append(events, Event{Kind: Exit, Client: cid, Entity: e})
		}
	}
	cs.set = next
	return events
}

// applyRules lets registered rules add or remove entities independent of
// distance.
func (m *Manager) applyRules(cid protocol.ClientID, next map[protocol.EntityID]struct{}) {
	if len(m.rules) == 0 {
		return
	}
	m.grid.Each(func(e protocol.EntityID) {
		for _, rule := range m.rules {
			switch rule(cid, e) {
			case Include:
				next[e] = struct{}{}
				return
			case Exclude:
				delete(next, e)
				return
			}
		}
	})
}
