// Package rpc routes named remote calls between server and clients.
// Inbound calls are queued and drained once per tick rather than dispatched
// from the receive path, so handlers never re-enter message processing.
package rpc

import (
	"fmt"
	"log"

	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/transport"
)

// SendFunc delivers an encoded RPC frame to one connection.
type SendFunc func(conn transport.ConnID, frame netmsg.Frame, reliable bool) error

// Resolver maps an RPC target to concrete connections. On the client it
// returns the server connection for TargetServer and nothing otherwise.
type Resolver func(target netmsg.RpcTarget, targetID uint32) []transport.ConnID

// Handler runs a received call. from identifies the sending connection.
type Handler func(from transport.ConnID, params []byte) error

// Validator vets inbound parameters before any handler runs. A non-nil
// error drops the call without dispatching it.
type Validator func(from transport.ConnID, function string, params []byte) error

// FailureFunc is invoked when a reliable call exhausts its retries.
type FailureFunc func(conn transport.ConnID, call netmsg.RpcCall, err error)

// ErrRetriesExhausted is reported through FailureFunc when a reliable call
// was never acknowledged.
var ErrRetriesExhausted = fmt.Errorf("rpc: reliable call retries exhausted")

// Config tunes reliable retry behavior.
type Config struct {
	// RetryTicks is the base backoff before the first retry; each further
	// attempt doubles it.
	RetryTicks int
	MaxRetries int
}

// DefaultConfig returns retry tuning sized for a 60 Hz tick loop.
func DefaultConfig() Config {
	return Config{RetryTicks: 12, MaxRetries: 5}
}

// Counters exposes drop statistics for the stats API.
type Counters struct {
	StaleDropped       uint64
	ValidationFailures uint64
	RetriesExhausted   uint64
	UnknownFunction    uint64
}

type inbound struct {
	from transport.ConnID
	call netmsg.RpcCall
}

type pendingKey struct {
	conn   transport.ConnID
	callID uint32
}

type pendingCall struct {
	call     netmsg.RpcCall
	frame    netmsg.Frame
	attempts int
	dueTick  uint64
}

// Router queues, dispatches, and retries RPC calls for one endpoint.
type Router struct {
	cfg      Config
	send     SendFunc
	resolve  Resolver
	validate Validator
	onFail   FailureFunc

	handlers map[string]Handler

	inbox      []inbound
	lastSeq    map[transport.ConnID]uint32 // newest unreliable sequence processed
	lastCallID map[transport.ConnID]uint32 // newest reliable call processed
	nextSeq    map[transport.ConnID]uint32
	nextCallID uint32
	pending    map[pendingKey]*pendingCall

	tick     uint64
	counters Counters
}

// NewRouter creates a router that sends through send and resolves targets
// through resolve.
func NewRouter(cfg Config, send SendFunc, resolve Resolver) *Router {
	def := DefaultConfig()
	if cfg.RetryTicks <= 0 {
		cfg.RetryTicks = def.RetryTicks
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &Router{
		cfg:        cfg,
		send:       send,
		resolve:    resolve,
		handlers:   make(map[string]Handler),
		lastSeq:    make(map[transport.ConnID]uint32),
		lastCallID: make(map[transport.ConnID]uint32),
		nextSeq:    make(map[transport.ConnID]uint32),
		pending:    make(map[pendingKey]*pendingCall),
	}
}

// SetValidator installs the untrusted-input hook applied to every inbound
// call before dispatch.
func (r *Router) SetValidator(v Validator) { r.validate = v }

// SetOnFailure installs the callback for exhausted reliable calls.
func (r *Router) SetOnFailure(f FailureFunc) { r.onFail = f }

// Register binds a function name to its handler. Re-registering a name
// replaces the previous handler.
func (r *Router) Register(function string, h Handler) {
	r.handlers[function] = h
}

// Counters returns accumulated drop statistics.
func (r *Router) Counters() Counters { return r.counters }

// PendingReliable returns the number of unacknowledged reliable calls.
func (r *Router) PendingReliable() int { return len(r.pending) }

// Call sends function to every connection the target resolves to. Reliable
// calls are retried until acknowledged or retries run out; unreliable calls
// are fire-and-forget with a per-connection sequence number.
func (r *Router) Call(target netmsg.RpcTarget, targetID uint32, function string, params []byte, reliable bool) error {
	conns := r.resolve(target, targetID)
	if len(conns) == 0 {
		return fmt.Errorf("rpc: no connection for target %d", target)
	}

	call := netmsg.RpcCall{
		Target:   target,
		TargetID: targetID,
		Function: function,
		Params:   params,
		Reliable: reliable,
	}
	if reliable {
		r.nextCallID++
		call.CallID = r.nextCallID
	}

	var firstErr error
	for _, conn := range conns {
		c := call
		if !reliable {
			r.nextSeq[conn]++
			c.Sequence = r.nextSeq[conn]
		}
		frame, err := r.encode(c)
		if err != nil {
			return err
		}
		if err := r.send(conn, frame, reliable); err != nil && firstErr == nil {
			firstErr = err
		}
		if reliable {
			r.pending[pendingKey{conn: conn, callID: c.CallID}] = &pendingCall{
				call:    c,
				frame:   frame,
				dueTick: r.tick + uint64(r.cfg.RetryTicks),
			}
		}
	}
	return firstErr
}

func (r *Router) encode(call netmsg.RpcCall) (netmsg.Frame, error) {
	payload, err := netmsg.Marshal(&call)
	if err != nil {
		return netmsg.Frame{}, err
	}
	return netmsg.Frame{
		Type:     netmsg.TypeRPC,
		Sequence: call.Sequence,
		Payload:  payload,
	}, nil
}

// Ingest queues one decoded inbound call for the next Drain. Stale and
// duplicate calls are rejected here so retries never dispatch twice.
func (r *Router) Ingest(from transport.ConnID, call netmsg.RpcCall) {
	if call.Reliable {
		// Acknowledge receipt even for duplicates; the sender's earlier
		// ack may have been lost.
		r.sendAck(from, call.CallID)
		if call.CallID <= r.lastCallID[from] {
			r.counters.StaleDropped++
			return
		}
		r.lastCallID[from] = call.CallID
	} else {
		if call.Sequence <= r.lastSeq[from] {
			r.counters.StaleDropped++
			return
		}
		r.lastSeq[from] = call.Sequence
	}
	r.inbox = append(r.inbox, inbound{from: from, call: call})
}

func (r *Router) sendAck(conn transport.ConnID, callID uint32) {
	payload, err := netmsg.Marshal(&netmsg.RpcAck{CallID: callID})
	if err != nil {
		return
	}
	frame := netmsg.Frame{Type: netmsg.TypeReliable, Payload: payload}
	if err := r.send(conn, frame, true); err != nil {
		log.Printf("[rpc] ack send failed for call %d: %v", callID, err)
	}
}

// Ack clears the pending retry for an acknowledged reliable call.
func (r *Router) Ack(from transport.ConnID, ack netmsg.RpcAck) {
	delete(r.pending, pendingKey{conn: from, callID: ack.CallID})
}

// Drain dispatches every queued inbound call and returns how many ran.
// Validation failures and unknown functions drop the call and count it.
func (r *Router) Drain() int {
	queue := r.inbox
	r.inbox = r.inbox[:0]

	ran := 0
	for _, in := range queue {
		if r.validate != nil {
			if err := r.validate(in.from, in.call.Function, in.call.Params); err != nil {
				r.counters.ValidationFailures++
				log.Printf("[rpc] rejected %q from conn %d: %v", in.call.Function, in.from, err)
				continue
			}
		}
		h, ok := r.handlers[in.call.Function]
		if !ok {
			r.counters.UnknownFunction++
			log.Printf("[rpc] no handler for %q from conn %d", in.call.Function, in.from)
			continue
		}
		if err := h(in.from, in.call.Params); err != nil {
			log.Printf("[rpc] handler %q failed: %v", in.call.Function, err)
		}
		ran++
	}
	return ran
}

// Tick advances retry timers and resends due reliable calls with
// exponential backoff. Calls that exhaust MaxRetries are removed and
// reported through the failure callback, never silently dropped.
func (r *Router) Tick() {
	r.tick++
	for key, p := range r.pending {
		if r.tick < p.dueTick {
			continue
		}
		p.attempts++
		if p.attempts > r.cfg.MaxRetries {
			delete(r.pending, key)
			r.counters.RetriesExhausted++
			log.Printf("[rpc] reliable call %q to conn %d gave up after %d retries",
				p.call.Function, key.conn, r.cfg.MaxRetries)
			if r.onFail != nil {
				r.onFail(key.conn, p.call, ErrRetriesExhausted)
			}
			continue
		}
		if err := r.send(key.conn, p.frame, true); err != nil {
			log.Printf("[rpc] retry send failed for %q: %v", p.call.Function, err)
		}
		p.dueTick = r.tick + uint64(r.cfg.RetryTicks)<<uint(p.attempts)
	}
}

// DropClient cancels all pending reliable calls to a disconnected
// connection and forgets its sequence state.
func (r *Router) DropClient(conn transport.ConnID) {
	for key := range r.pending {
		if key.conn == conn {
			delete(r.pending, key)
		}
	}
	delete(r.lastSeq, conn)
	delete(r.lastCallID, conn)
	delete(r.nextSeq, conn)
}
