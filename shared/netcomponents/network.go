package netcomponents

import (
	"github.com/yohamta/donburi"

	"github.com/automoto/netcode/shared/protocol"
)

// NetworkData marks an entity as replicated and records who owns it. The ID
// comes from the world's entity-id counter and is never reused.
type NetworkData struct {
	ID        protocol.EntityID
	Authority protocol.Authority
}

var Network = donburi.NewComponentType[NetworkData]()

// ReplicationConfigData maps component tags to their replication
// descriptors for this entity. Game code mutates descriptors; the
// replication manager only reads them during its tick phase.
type ReplicationConfigData struct {
	Descriptors map[protocol.ComponentTag]*protocol.Descriptor
}

var ReplicationConfig = donburi.NewComponentType[ReplicationConfigData]()

// Descriptor returns the descriptor for tag, or nil when the component is
// not replicated on this entity.
func (c ReplicationConfigData) Descriptor(tag protocol.ComponentTag) *protocol.Descriptor {
	return c.Descriptors[tag]
}

// NetActorStateData is the discrete, bit-packed slice of an actor's state:
// cheap booleans and small enums that change rarely but matter immediately.
type NetActorStateData struct {
	Grounded  bool
	Attacking bool
	Facing    int8  // -1 left, 1 right
	StateID   uint8 // animation/logic state, < 64
	Health    uint8 // 0..100
}

var NetActorState = donburi.NewComponentType[NetActorStateData]()
