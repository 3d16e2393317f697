// Package netmsg defines the wire frame and payload variants exchanged
// between client and server, plus the byte-level tools (delta diff,
// quantization, bit-packing) used to shrink them. It has no dependencies on
// the ECS or any game package so both binaries can share it.
package netmsg

// MessageType selects the payload variant carried by a Frame.
type MessageType uint8

const (
	TypeReliable MessageType = iota
	TypeUnreliable
	TypeRPC
	TypeSnapshot
	TypeInput
	TypeHeartbeat
	TypeSession
)

func (t MessageType) String() string {
	switch t {
	case TypeReliable:
		return "reliable"
	case TypeUnreliable:
		return "unreliable"
	case TypeRPC:
		return "rpc"
	case TypeSnapshot:
		return "snapshot"
	case TypeInput:
		return "input"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeSession:
		return "session"
	}
	return "unknown"
}

// Frame is the outermost wire envelope. Payload holds the msgpack encoding
// of the variant selected by Type.
type Frame struct {
	Type      MessageType
	Sequence  uint32
	Tick      uint32
	Timestamp float64
	Payload   []byte
}

// ComponentUpdate carries one replicated component's bytes. IsDelta marks
// Bytes as a diff against the client's acknowledged baseline rather than a
// full encoding.
type ComponentUpdate struct {
	Tag     uint16
	Bytes   []byte
	IsDelta bool
}

// EntityUpdate replicates one entity's due components for a single tick.
type EntityUpdate struct {
	EntityID   uint64
	Tick       uint32
	Components []ComponentUpdate
}

// Snapshot bundles the entity updates scheduled for one client in one tick.
type Snapshot struct {
	Tick     uint32
	Baseline bool // true when every contained update is full-state
	Entities []EntityUpdate
}

// RpcTarget addresses an RPC call.
type RpcTarget uint8

const (
	TargetServer RpcTarget = iota
	TargetClient
	TargetAllClients
	TargetAllClientsExcept
)

// RpcCall invokes a named function on the target. Params is an opaque
// msgpack blob decoded by the registered handler. Reliable calls carry a
// CallID so delivery can be acknowledged; unreliable calls carry a
// per-sender Sequence for duplicate/stale rejection.
type RpcCall struct {
	Target   RpcTarget
	TargetID uint32 // client id for TargetClient / TargetAllClientsExcept
	Function string
	Params   []byte
	Reliable bool
	CallID   uint32
	Sequence uint32
}

// RpcAck acknowledges delivery of a reliable RpcCall.
type RpcAck struct {
	CallID uint32
}

// PlayerInput is a client's sampled input for one predicted tick. InputBytes
// is game-defined and passes the server's validation hook before it is
// applied.
type PlayerInput struct {
	Tick       uint32
	Sequence   uint32
	InputBytes []byte
}

// SnapshotAck tells the server which tick's snapshot a client has applied,
// promoting optimistic baselines.
type SnapshotAck struct {
	Tick uint32
}

// SessionEventKind discriminates SessionEvent payloads.
type SessionEventKind uint8

const (
	SessionJoinRequest SessionEventKind = iota
	SessionJoinAccepted
	SessionJoinRejected
	SessionSpawn
	SessionDespawn
	SessionResync
	SessionDisconnect
)

// SessionEvent covers the join handshake and entity lifecycle notifications.
// Only the fields relevant to Kind are populated.
type SessionEvent struct {
	Kind           SessionEventKind
	Version        string
	PlayerName     string
	ReconnectToken string
	ClientID       uint32
	EntityID       uint64
	TickRate       int
	// ServerTick seeds the client's local tick counter on join so input
	// ticks and snapshot ticks share one domain.
	ServerTick uint32
	Reason     string
}

// Heartbeat drives RTT measurement. The receiver echoes SentAt back
// untouched and fills EchoedAt with its own clock.
type Heartbeat struct {
	SentAt   float64
	EchoedAt float64
	Tick     uint32
}
