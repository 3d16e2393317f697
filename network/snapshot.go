package network

import (
	"fmt"
	"log"

	"github.com/automoto/netcode/interp"
	"github.com/automoto/netcode/prediction"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/transport"
)

// RemoteEntity is the client-side proxy of a server entity someone else
// controls. Rendering reads Pose; the raw component values are kept for
// game logic.
type RemoteEntity struct {
	ID         protocol.EntityID
	Buffer     *interp.Buffer
	Transform  netcomponents.NetTransformData
	Velocity   netcomponents.NetVelocityData
	ActorState netcomponents.NetActorStateData
}

// Pose returns the interpolated transform for rendering at the estimated
// server time.
func (r *RemoteEntity) Pose(now float64) netcomponents.NetTransformData {
	if tr, ok := r.Buffer.Sample(now); ok {
		return tr
	}
	return r.Transform
}

type baselineKey struct {
	entity protocol.EntityID
	tag    protocol.ComponentTag
}

// Remotes returns the live remote-entity proxies keyed by id.
func (c *Client) Remotes() map[protocol.EntityID]*RemoteEntity { return c.remotes }

// Remote returns one remote proxy, or nil.
func (c *Client) Remote(id protocol.EntityID) *RemoteEntity { return c.remotes[id] }

// RemotePose samples a remote entity's render pose at the current estimated
// server time.
func (c *Client) RemotePose(id protocol.EntityID) (netcomponents.NetTransformData, bool) {
	r, ok := c.remotes[id]
	if !ok {
		return netcomponents.NetTransformData{}, false
	}
	return r.Pose(c.estimatedServerTime()), true
}

// applySnapshot decodes one server snapshot: local-entity updates feed the
// prediction engine, everything else lands in interpolation buffers. Every
// applied snapshot is acked so the server can promote its baselines.
func (c *Client) applySnapshot(frame netmsg.Frame, snap netmsg.Snapshot) {
	if snap.Tick <= c.lastServerTick && c.lastServerTick != 0 {
		// Stale by tick order. Remote interpolation orders by timestamp
		// on its own, but baselines must only roll forward.
		c.staleSnapshots++
		return
	}
	c.lastServerTick = snap.Tick
	if snap.Tick > c.localTick {
		// The input clock must not fall behind the server's: prediction
		// needs buffered history at the ticks snapshots arrive for.
		c.localTick = snap.Tick
	}

	for _, eu := range snap.Entities {
		c.applyEntityUpdate(frame, snap.Tick, eu)
	}

	c.sendSnapshotAck(snap.Tick)
}

func (c *Client) applyEntityUpdate(frame netmsg.Frame, tick uint32, eu netmsg.EntityUpdate) {
	id := protocol.EntityID(eu.EntityID)

	var (
		transform    *netcomponents.NetTransformData
		velocity     *netcomponents.NetVelocityData
		actorState   *netcomponents.NetActorStateData
		decodeFailed bool
	)

	for _, cu := range eu.Components {
		value, err := c.decodeComponent(id, cu)
		if err != nil {
			log.Printf("[client] entity %d component %d: %v", id, cu.Tag, err)
			decodeFailed = true
			continue
		}
		switch v := value.(type) {
		case netcomponents.NetTransformData:
			transform = &v
		case netcomponents.NetVelocityData:
			velocity = &v
		case netcomponents.NetActorStateData:
			actorState = &v
		}
	}

	// A delta with no baseline means this proxy's state is unknowable
	// until the server resends full state.
	if decodeFailed {
		c.requestResync(id)
		return
	}

	if id == c.entityID && c.engine != nil {
		c.reconcileLocal(tick, transform, velocity)
		return
	}

	r, ok := c.remotes[id]
	if !ok {
		r = &RemoteEntity{ID: id, Buffer: interp.NewBuffer(c.cfg.Interp)}
		c.remotes[id] = r
	}
	if transform != nil {
		r.Transform = *transform
	}
	if velocity != nil {
		r.Velocity = *velocity
	}
	if actorState != nil {
		r.ActorState = *actorState
	}
	if transform != nil {
		r.Buffer.Push(interp.Sample{
			Tick:      tick,
			Timestamp: frame.Timestamp,
			Transform: r.Transform,
			Velocity:  r.Velocity,
		})
	}
}

// decodeComponent applies the delta if needed, rolls the local baseline
// forward, and decodes the component value.
func (c *Client) decodeComponent(id protocol.EntityID, cu netmsg.ComponentUpdate) (any, error) {
	tag := protocol.ComponentTag(cu.Tag)
	codec, err := c.registry.Lookup(tag)
	if err != nil {
		return nil, err
	}

	key := baselineKey{entity: id, tag: tag}
	full := cu.Bytes
	if cu.IsDelta {
		base, ok := c.baselines[key]
		if !ok {
			return nil, fmt.Errorf("delta update with no baseline")
		}
		full, err = codec.Apply(base, cu.Bytes)
		if err != nil {
			return nil, fmt.Errorf("apply delta: %w", err)
		}
	}
	c.baselines[key] = full
	return codec.Decode(full)
}

// reconcileLocal feeds an authoritative update for the predicted entity
// into the engine, requesting a resync when it reports divergence.
func (c *Client) reconcileLocal(tick uint32, transform *netcomponents.NetTransformData, velocity *netcomponents.NetVelocityData) {
	if !c.havePose {
		// Prediction starts from the first real pose, never from zero.
		if transform == nil {
			return
		}
		c.havePose = true
	}
	auth := c.engine.Live()
	if transform != nil {
		auth.Transform = *transform
	}
	if velocity != nil {
		auth.Velocity = *velocity
	}
	dt := 1.0 / 60.0
	if c.tickRate > 0 {
		dt = 1.0 / float64(c.tickRate)
	}
	if c.engine.Authoritative(tick, auth, dt) == prediction.Diverged {
		log.Printf("[client] prediction diverged at tick %d, requesting resync", tick)
		c.requestResync(c.entityID)
	}
}

// requestResync asks the server to resend full state for one entity.
func (c *Client) requestResync(id protocol.EntityID) {
	ev := netmsg.SessionEvent{Kind: netmsg.SessionResync, EntityID: uint64(id)}
	data, err := netmsg.EncodeFrame(netmsg.TypeSession, 0, c.lastServerTick, c.now(), &ev)
	if err != nil {
		return
	}
	if err := c.transport.Send(transport.ServerConn, data, true); err != nil {
		log.Printf("[client] resync request: %v", err)
	}
}

func (c *Client) sendSnapshotAck(tick uint32) {
	ack := netmsg.SnapshotAck{Tick: tick}
	data, err := netmsg.EncodeFrame(netmsg.TypeSnapshot, 0, tick, c.now(), &ack)
	if err != nil {
		return
	}
	if err := c.transport.Send(transport.ServerConn, data, false); err != nil {
		log.Printf("[client] snapshot ack: %v", err)
	}
}

// dropEntity removes a despawned or out-of-interest proxy and its
// baselines.
func (c *Client) dropEntity(id protocol.EntityID) {
	delete(c.remotes, id)
	for key := range c.baselines {
		if key.entity == id {
			delete(c.baselines, key)
		}
	}
	if id == c.entityID && c.engine != nil {
		c.engine.Disable()
		c.havePose = false
	}
}
