// Package transport abstracts the framed-message layer beneath the netcode
// core. Implementations deliver whole binary messages and surface
// connection events through an explicit Poll call so the tick loop controls
// ordering; no callbacks fire outside Poll.
package transport

import (
	"errors"
	"time"
)

// ConnID identifies one peer connection on a transport.
type ConnID uint64

// EventKind discriminates transport events.
type EventKind uint8

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventData
	EventError
)

// Event is one connection-level occurrence observed since the last Poll.
type Event struct {
	Kind EventKind
	Conn ConnID
	Data []byte
	Err  error
}

// Stats reports connection quality for one peer.
type Stats struct {
	RTT          time.Duration
	PacketLoss   float64 // 0..1, fraction of unacknowledged sends
	BandwidthIn  int64   // total bytes received
	BandwidthOut int64   // total bytes sent
}

var ErrNotConnected = errors.New("transport: not connected")

// Transport is consumed by the server core and the client session. Send is
// non-blocking from the caller's view: implementations buffer or fail fast,
// they never stall the tick.
type Transport interface {
	// Send delivers one framed message. Unreliable sends may be dropped
	// by the implementation or the network; reliable sends either arrive
	// in order or the connection dies.
	Send(conn ConnID, data []byte, reliable bool) error

	// Poll drains every event observed since the previous call, in
	// arrival order.
	Poll() []Event

	// Disconnect closes one peer connection.
	Disconnect(conn ConnID)

	// Stats reports connection quality for conn.
	Stats(conn ConnID) Stats

	// ObserveRTT records an application-level RTT sample (heartbeat echo)
	// for conn.
	ObserveRTT(conn ConnID, rtt time.Duration)

	// Close shuts the transport down and disconnects all peers.
	Close() error
}
