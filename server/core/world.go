package core

import (
	"log"

	"github.com/yohamta/donburi"

	"github.com/automoto/netcode/shared/gamemath"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/protocol"
)

// worldView adapts the donburi world to the replication manager's read-only
// view.
type worldView struct {
	s *Server
}

func (v worldView) Exists(e protocol.EntityID) bool {
	ent, ok := v.s.entities[e]
	return ok && v.s.world.Valid(ent)
}

func (v worldView) EachComponent(e protocol.EntityID, fn func(tag protocol.ComponentTag, desc *protocol.Descriptor, value any)) {
	ent, ok := v.s.entities[e]
	if !ok || !v.s.world.Valid(ent) {
		return
	}
	entry := v.s.world.Entry(ent)
	cfg := netcomponents.ReplicationConfig.Get(entry)
	for tag, desc := range cfg.Descriptors {
		value, ok := v.s.componentValue(entry, tag)
		if !ok {
			continue
		}
		fn(tag, desc, value)
	}
}

// componentValue reads the current value of one replicated component.
func (s *Server) componentValue(entry *donburi.Entry, tag protocol.ComponentTag) (any, bool) {
	switch tag {
	case netcomponents.TagNetTransform:
		return *netcomponents.NetTransform.Get(entry), true
	case netcomponents.TagNetVelocity:
		return *netcomponents.NetVelocity.Get(entry), true
	case netcomponents.TagNetActorState:
		return *netcomponents.NetActorState.Get(entry), true
	}
	return nil, false
}

// EntityTransform returns the authoritative transform of a replicated
// entity, for game systems and monitoring.
func (s *Server) EntityTransform(id protocol.EntityID) (netcomponents.NetTransformData, bool) {
	ent, ok := s.entities[id]
	if !ok || !s.world.Valid(ent) {
		return netcomponents.NetTransformData{}, false
	}
	return *netcomponents.NetTransform.Get(s.world.Entry(ent)), true
}

// allocEntityID hands out globally unique, never reused entity ids. The
// counter lives on the server rather than in a package-level variable so
// multiple worlds in one process stay independent.
func (s *Server) allocEntityID() protocol.EntityID {
	s.nextEntityID++
	return protocol.EntityID(s.nextEntityID)
}

// defaultActorDescriptors is the replication config given to spawned
// players. Transform is the hot path; velocity keeps interpolation fed;
// actor state is Critical so hits and deaths are never the data that
// bandwidth pressure delays.
func defaultActorDescriptors() map[protocol.ComponentTag]*protocol.Descriptor {
	return map[protocol.ComponentTag]*protocol.Descriptor{
		netcomponents.TagNetTransform: {
			FrequencyHz:  20,
			Priority:     protocol.PriorityHigh,
			DeltaEnabled: true,
		},
		netcomponents.TagNetVelocity: {
			FrequencyHz:  20,
			Priority:     protocol.PriorityMedium,
			DeltaEnabled: true,
		},
		netcomponents.TagNetActorState: {
			FrequencyHz:  0, // every tick
			Priority:     protocol.PriorityCritical,
			DeltaEnabled: false,
		},
	}
}

// spawnPlayer creates the replicated player entity and its physics body.
func (s *Server) spawnPlayer(client protocol.ClientID, spawnIndex int) protocol.EntityID {
	id := s.allocEntityID()
	x, y := s.level.SpawnFor(spawnIndex)

	ent := s.world.Create(
		netcomponents.Network,
		netcomponents.ReplicationConfig,
		netcomponents.NetTransform,
		netcomponents.NetVelocity,
		netcomponents.NetActorState,
	)
	entry := s.world.Entry(ent)
	netcomponents.Network.Set(entry, &netcomponents.NetworkData{
		ID: id,
		Authority: protocol.Authority{
			Kind:  protocol.AuthorityClient,
			Owner: client,
		},
	})
	netcomponents.ReplicationConfig.Set(entry, &netcomponents.ReplicationConfigData{
		Descriptors: defaultActorDescriptors(),
	})
	netcomponents.NetTransform.Set(entry, &netcomponents.NetTransformData{
		X: x, Y: y, ScaleX: 1, ScaleY: 1,
	})
	netcomponents.NetVelocity.Set(entry, &netcomponents.NetVelocityData{})
	netcomponents.NetActorState.Set(entry, &netcomponents.NetActorStateData{
		Facing: 1,
		Health: 100,
	})

	s.entities[id] = ent
	s.bodies[id] = newActorBody(s.level, x, y)
	s.interest.Grid().Upsert(id, gamemath.Vec2{X: x, Y: y}, actorWidth/2, actorHeight/2)

	log.Printf("[server] spawned entity %d for client %d at (%.0f, %.0f)", id, client, x, y)
	return id
}

// despawnEntity removes an entity and cascades: baselines, queued updates,
// interest membership, and the physics body all go with it.
func (s *Server) despawnEntity(id protocol.EntityID) {
	ent, ok := s.entities[id]
	if !ok {
		return
	}
	if body, ok := s.bodies[id]; ok {
		removeActorBody(s.level, body)
		delete(s.bodies, id)
	}
	s.interest.DropEntity(id)
	s.replication.DropEntity(id)
	delete(s.entities, id)
	if s.world.Valid(ent) {
		s.world.Remove(ent)
	}
	log.Printf("[server] despawned entity %d", id)
}

// refreshGrid pushes every replicated entity's position into the interest
// grid before interest sets are recomputed.
func (s *Server) refreshGrid() {
	for id, ent := range s.entities {
		if !s.world.Valid(ent) {
			continue
		}
		tr := netcomponents.NetTransform.Get(s.world.Entry(ent))
		s.interest.Grid().Upsert(id, gamemath.Vec2{X: tr.X, Y: tr.Y}, actorWidth/2, actorHeight/2)
	}
}
