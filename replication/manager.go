package replication

import (
	"log"

	"github.com/automoto/netcode/shared/protocol"
)

// Config tunes the replication manager.
type Config struct {
	// FullStateFraction: when a delta reaches this fraction of the full
	// encoding's size, send full state instead. Delta is not always
	// smaller; this caps pathological expansion.
	FullStateFraction float64
	// AckTimeoutTicks bounds how long an optimistic baseline may wait
	// for a snapshot ack before it is invalidated and full state resent.
	AckTimeoutTicks uint32
}

// DefaultConfig returns the tuning used by the dedicated server.
func DefaultConfig() Config {
	return Config{FullStateFraction: 0.8, AckTimeoutTicks: 120}
}

// WorldView is the read-only slice of the ECS the manager needs. The server
// core adapts the donburi world to it so this package stays engine-free.
type WorldView interface {
	// Exists reports whether the entity is still alive.
	Exists(e protocol.EntityID) bool
	// EachComponent visits every replicated component on the entity with
	// its descriptor and current value.
	EachComponent(e protocol.EntityID, fn func(tag protocol.ComponentTag, desc *protocol.Descriptor, value any))
}

// DistanceFunc reports the anchor distance between a client and an entity,
// for component-level relevancy radii.
type DistanceFunc func(c protocol.ClientID, e protocol.EntityID) (float64, bool)

type token struct {
	acc float64
}

// staged is the per-tick evaluation of one (entity, component): whether it
// is due, and its full encoding computed once regardless of client count.
type staged struct {
	due   bool
	full  []byte
	codec protocol.ComponentCodec
}

// Manager tracks baselines and stages due updates into per-client priority
// queues. All methods run on the tick goroutine; no locking.
type Manager struct {
	reg       *protocol.Registry
	cfg       Config
	baselines map[baselineKey]*baseline
	tokens    map[updateKey]*token
	queues    map[protocol.ClientID]*Queues

	// scale is the adaptive frequency multiplier per priority, lowered by
	// the bandwidth scheduler under sustained backlog.
	scale [protocol.NumPriorities]float64

	// onEmit observes actual sends for the stats API.
	onEmit func(c protocol.ClientID, e protocol.EntityID, tag protocol.ComponentTag)
}

// NewManager creates a replication manager using the sealed component
// registry.
func NewManager(reg *protocol.Registry, cfg Config) *Manager {
	if cfg.FullStateFraction <= 0 {
		cfg.FullStateFraction = DefaultConfig().FullStateFraction
	}
	if cfg.AckTimeoutTicks == 0 {
		cfg.AckTimeoutTicks = DefaultConfig().AckTimeoutTicks
	}
	m := &Manager{
		reg:       reg,
		cfg:       cfg,
		baselines: make(map[baselineKey]*baseline),
		tokens:    make(map[updateKey]*token),
		queues:    make(map[protocol.ClientID]*Queues),
	}
	for i := range m.scale {
		m.scale[i] = 1
	}
	return m
}

// SetOnEmit installs the stats observer called for every sent update.
func (m *Manager) SetOnEmit(fn func(protocol.ClientID, protocol.EntityID, protocol.ComponentTag)) {
	m.onEmit = fn
}

// SetFrequencyScale adjusts the adaptive multiplier for one priority.
// The bandwidth scheduler lowers Medium/Low under backlog and restores
// them to 1 when it clears.
func (m *Manager) SetFrequencyScale(p protocol.Priority, s float64) {
	if s <= 0 || s > 1 {
		s = 1
	}
	m.scale[p] = s
}

// Queues returns (creating if needed) the priority queues for a client.
func (m *Manager) Queues(c protocol.ClientID) *Queues {
	q, ok := m.queues[c]
	if !ok {
		q = NewQueues()
		m.queues[c] = q
	}
	return q
}

// Stage evaluates dueness once per (entity, component) and stages updates
// into each interested client's queues. sets maps clients to their interest
// sets; dist resolves anchor distances for relevancy radii.
func (m *Manager) Stage(tick uint32, dt float64, sets map[protocol.ClientID]map[protocol.EntityID]struct{}, view WorldView, dist DistanceFunc) {
	cache := make(map[updateKey]*staged)

	for client, set := range sets {
		q := m.Queues(client)
		for e := range set {
			if !view.Exists(e) {
				continue
			}
			view.EachComponent(e, func(tag protocol.ComponentTag, desc *protocol.Descriptor, value any) {
				// Server-only components never enter the candidate
				// set, so they cannot leak regardless of bandwidth
				// state.
				if desc == nil || desc.ServerOnly {
					return
				}
				if desc.RelevancyRadius > 0 {
					if d, ok := dist(client, e); ok && d > desc.RelevancyRadius {
						return
					}
				}

				key := updateKey{entity: e, tag: tag}
				st, seen := cache[key]
				if !seen {
					st = m.evaluate(key, desc, value, dt)
					cache[key] = st
				}
				if st == nil || !st.due {
					return
				}
				m.stageFor(client, q, e, tag, desc.Priority, st, tick)
			})
		}
	}
}

// evaluate refills the frequency token for one (entity, component) and, if
// an update is due, encodes the full state once for all clients.
func (m *Manager) evaluate(key updateKey, desc *protocol.Descriptor, value any, dt float64) *staged {
	scale := m.scale[desc.Priority]

	due := false
	if desc.FrequencyHz == 0 && scale >= 1 {
		// Zero frequency means every tick.
		due = true
	} else {
		tk, ok := m.tokens[key]
		if !ok {
			// First sight: due immediately so new entities appear
			// without waiting out a full period.
			tk = &token{acc: 1}
			m.tokens[key] = tk
		}
		if desc.FrequencyHz == 0 {
			// Every-tick components still slow under the adaptive
			// scale: it becomes the fraction of ticks that emit.
			tk.acc += scale
		} else {
			tk.acc += desc.FrequencyHz * scale * dt
		}
		if tk.acc > 2 {
			tk.acc = 2 // idle time never converts into a burst
		}
		if tk.acc >= 1 {
			tk.acc -= 1
			due = true
		}
	}
	if !due {
		return &staged{}
	}

	codec, err := m.reg.Lookup(key.tag)
	if err != nil {
		log.Printf("[replication] entity %d: %v", key.entity, err)
		return nil
	}
	full, err := codec.Encode(value)
	if err != nil {
		log.Printf("[replication] encode entity %d tag %d: %v", key.entity, key.tag, err)
		return nil
	}
	return &staged{due: true, full: full, codec: codec}
}

// stageFor picks delta or full encoding against the client's baseline and
// pushes the update into its queues.
func (m *Manager) stageFor(client protocol.ClientID, q *Queues, e protocol.EntityID, tag protocol.ComponentTag, prio protocol.Priority, st *staged, tick uint32) {
	u := &Update{
		Client:   client,
		Entity:   e,
		Tag:      tag,
		Priority: prio,
		Bytes:    st.full,
		Full:     st.full,
		DueTick:  tick,
	}

	bkey := baselineKey{client: client, entity: e, tag: tag}
	if bl, ok := m.baselines[bkey]; ok && bl.acked != nil {
		delta := st.codec.Diff(bl.acked, st.full)
		if float64(len(delta)) < m.cfg.FullStateFraction*float64(len(st.full)) {
			u.Bytes = delta
			u.IsDelta = true
		}
	}
	q.Push(u)
}

// MarkSent records that the scheduler actually transmitted the given
// updates at tick, creating or refreshing optimistic baselines.
func (m *Manager) MarkSent(updates []*Update, tick uint32) {
	for _, u := range updates {
		bkey := baselineKey{client: u.Client, entity: u.Entity, tag: u.Tag}
		bl, ok := m.baselines[bkey]
		if !ok {
			bl = &baseline{}
			m.baselines[bkey] = bl
		}
		bl.markSent(u.Full, tick)
		if m.onEmit != nil {
			m.onEmit(u.Client, u.Entity, u.Tag)
		}
	}
}

// Ack promotes the client's optimistic baselines sent at exactly the
// acknowledged tick. Pendings from other ticks are left to the timeout.
func (m *Manager) Ack(client protocol.ClientID, tick uint32) {
	for key, bl := range m.baselines {
		if key.client == client {
			bl.ack(tick)
		}
	}
}

// ExpireBaselines invalidates optimistic baselines whose ack never came;
// their next update goes out full-state.
func (m *Manager) ExpireBaselines(tick uint32) {
	for _, bl := range m.baselines {
		if bl.expired(tick, m.cfg.AckTimeoutTicks) {
			bl.invalidate()
		}
	}
}

// DropEntity removes all state for a despawned entity: queued updates,
// baselines and frequency tokens. Local correction, not an error.
func (m *Manager) DropEntity(e protocol.EntityID) {
	for _, q := range m.queues {
		q.DropEntity(e)
	}
	for key := range m.baselines {
		if key.entity == e {
			delete(m.baselines, key)
		}
	}
	for key := range m.tokens {
		if key.entity == e {
			delete(m.tokens, key)
		}
	}
}

// DropClient removes all per-client state on disconnect.
func (m *Manager) DropClient(c protocol.ClientID) {
	delete(m.queues, c)
	for key := range m.baselines {
		if key.client == c {
			delete(m.baselines, key)
		}
	}
}

// TeardownPair destroys baselines and queued updates for one (client,
// entity), used when the entity exits the client's interest set.
func (m *Manager) TeardownPair(c protocol.ClientID, e protocol.EntityID) {
	if q, ok := m.queues[c]; ok {
		q.DropEntity(e)
	}
	for key := range m.baselines {
		if key.client == c && key.entity == e {
			delete(m.baselines, key)
		}
	}
}

// ForceFull invalidates a pair's baselines so the next updates are sent
// full-state, used for forced resyncs after reconciliation divergence.
func (m *Manager) ForceFull(c protocol.ClientID, e protocol.EntityID) {
	for key, bl := range m.baselines {
		if key.client == c && key.entity == e {
			bl.invalidate()
		}
	}
}

// HasBaseline reports whether an acknowledged baseline exists (tests and
// stats).
func (m *Manager) HasBaseline(c protocol.ClientID, e protocol.EntityID, tag protocol.ComponentTag) bool {
	bl, ok := m.baselines[baselineKey{client: c, entity: e, tag: tag}]
	return ok && bl.acked != nil
}
