// Package protocol holds the identity types, replication descriptors and
// the component serializer registry shared by client and server. Tags are
// stable numeric IDs registered once at startup by both ends, never string
// lookups per message.
package protocol

// EntityID identifies a networked entity. IDs are globally unique for the
// lifetime of a session and never reused.
type EntityID uint64

// ClientID identifies an authenticated client connection. Zero is reserved
// (no client / the server).
type ClientID uint32

// AuthorityKind says who may write an entity's replicated state.
type AuthorityKind uint8

const (
	AuthorityServer AuthorityKind = iota
	AuthorityClient
	AuthorityShared
)

// Authority pairs the kind with the owning client when Kind is
// AuthorityClient.
type Authority struct {
	Kind  AuthorityKind
	Owner ClientID
}

// WritableBy reports whether the given client may mutate the entity.
func (a Authority) WritableBy(c ClientID) bool {
	switch a.Kind {
	case AuthorityClient:
		return a.Owner == c
	case AuthorityShared:
		return true
	}
	return false
}

// Priority orders replication traffic under bandwidth pressure. Critical
// drains fully before High is considered, and so on down.
type Priority uint8

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow

	NumPriorities = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// Descriptor configures replication for one component type on one entity.
// Game code mutates it; the replication manager reads it.
type Descriptor struct {
	FrequencyHz     float64 // 0 means every tick
	Priority        Priority
	DeltaEnabled    bool
	RelevancyRadius float64
	ServerOnly      bool // never leaves the server, bypasses interest entirely
}
