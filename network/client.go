// Package network implements the client session: the join handshake, the
// per-frame transport poll, and the demux that feeds authoritative
// snapshots into prediction, remote poses into interpolation, and calls
// into the RPC router.
package network

import (
	"fmt"
	"log"
	"time"

	"github.com/automoto/netcode/interp"
	"github.com/automoto/netcode/prediction"
	"github.com/automoto/netcode/rpc"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/transport"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoined
	StateError
)

// Config carries the client session's identity and tuning.
type Config struct {
	Version    string
	PlayerName string
	// ReconnectToken resumes a previous session within the server's
	// grace period.
	ReconnectToken string

	// WorldWidth/Height must match the server's level bounds or the
	// quantized transform codec decodes skewed.
	WorldWidth  float64
	WorldHeight float64

	// Step re-simulates local movement during prediction replay. Leaving
	// it nil disables prediction; the local entity interpolates like any
	// remote one.
	Step prediction.StepFunc

	Prediction prediction.Config
	Interp     interp.Config
	Rpc        rpc.Config
}

// Client is the client-side netcode session. Not safe for concurrent use;
// call Update and the send methods from the game loop only.
type Client struct {
	cfg       Config
	transport transport.Transport
	registry  *protocol.Registry
	rpc       *rpc.Router

	state     ClientState
	lastError error

	clientID       protocol.ClientID
	entityID       protocol.EntityID
	tickRate       int
	reconnectToken string

	engine  *prediction.Engine
	remotes map[protocol.EntityID]*RemoteEntity

	// baselines holds the last full component bytes per (entity, tag) so
	// inbound deltas have something to apply against.
	baselines map[baselineKey][]byte

	lastServerTick uint32
	staleSnapshots int
	// localTick is seeded from the server tick at join so input ticks and
	// snapshot ticks share one domain; prediction keys its rings by it.
	localTick uint32
	inputSeq  uint32
	// havePose flips once the first authoritative state for the local
	// entity arrives; the engine only starts predicting from a real pose.
	havePose bool

	epoch time.Time
	// Server clock estimate: the newest frame timestamp plus time elapsed
	// since it arrived. Interpolation runs on this clock.
	serverTime   float64
	serverTimeAt time.Time
}

// NewClient builds a session over an already-dialed transport.
func NewClient(cfg Config, t transport.Transport) (*Client, error) {
	registry := protocol.NewRegistry()
	if err := netcomponents.RegisterAll(registry, cfg.WorldWidth, cfg.WorldHeight); err != nil {
		return nil, fmt.Errorf("register components: %w", err)
	}
	registry.Seal()

	c := &Client{
		cfg:       cfg,
		transport: t,
		registry:  registry,
		state:     StateConnecting,
		remotes:   make(map[protocol.EntityID]*RemoteEntity),
		baselines: make(map[baselineKey][]byte),
		epoch:     time.Now(),
	}
	c.rpc = rpc.NewRouter(cfg.Rpc, c.sendRPCFrame, c.resolveTarget)
	return c, nil
}

func (c *Client) State() ClientState          { return c.state }
func (c *Client) Err() error                  { return c.lastError }
func (c *Client) ClientID() protocol.ClientID { return c.clientID }
func (c *Client) EntityID() protocol.EntityID { return c.entityID }
func (c *Client) TickRate() int               { return c.tickRate }
func (c *Client) ReconnectToken() string      { return c.reconnectToken }
func (c *Client) LastServerTick() uint32      { return c.lastServerTick }

// StaleSnapshots counts snapshots that arrived out of tick order and were
// dropped.
func (c *Client) StaleSnapshots() int { return c.staleSnapshots }

// Rpc exposes the router for handler registration and outbound calls.
func (c *Client) Rpc() *rpc.Router { return c.rpc }

// Prediction exposes the local entity's engine, nil until joined or when
// prediction is disabled.
func (c *Client) Prediction() *prediction.Engine { return c.engine }

func (c *Client) setError(err error) {
	log.Printf("[client] %v", err)
	c.state = StateError
	c.lastError = err
}

// now returns seconds since the client started, the timestamp base for
// outbound frames.
func (c *Client) now() float64 { return time.Since(c.epoch).Seconds() }

// estimatedServerTime extrapolates the server clock from the newest frame.
func (c *Client) estimatedServerTime() float64 {
	if c.serverTimeAt.IsZero() {
		return 0
	}
	return c.serverTime + time.Since(c.serverTimeAt).Seconds()
}

// Update polls the transport once and processes everything that arrived.
// Call it exactly once per frame.
func (c *Client) Update() {
	for _, ev := range c.transport.Poll() {
		switch ev.Kind {
		case transport.EventConnected:
			c.state = StateConnected
			c.sendJoinRequest()
		case transport.EventDisconnected:
			if c.state != StateError {
				c.state = StateDisconnected
			}
			log.Printf("[client] disconnected from server")
		case transport.EventData:
			c.handleFrame(ev.Data)
		case transport.EventError:
			log.Printf("[client] transport error: %v", ev.Err)
		}
	}
	c.rpc.Drain()
	c.rpc.Tick()
}

func (c *Client) sendJoinRequest() {
	ev := netmsg.SessionEvent{
		Kind:           netmsg.SessionJoinRequest,
		Version:        c.cfg.Version,
		PlayerName:     c.cfg.PlayerName,
		ReconnectToken: c.cfg.ReconnectToken,
	}
	data, err := netmsg.EncodeFrame(netmsg.TypeSession, 0, 0, c.now(), &ev)
	if err != nil {
		c.setError(fmt.Errorf("encode join request: %w", err))
		return
	}
	if err := c.transport.Send(transport.ServerConn, data, true); err != nil {
		c.setError(fmt.Errorf("send join request: %w", err))
	}
}

func (c *Client) handleFrame(data []byte) {
	frame, err := netmsg.DecodeFrame(data)
	if err != nil {
		log.Printf("[client] dropping malformed frame: %v", err)
		return
	}
	if frame.Timestamp > c.serverTime {
		c.serverTime = frame.Timestamp
		c.serverTimeAt = time.Now()
	}

	switch frame.Type {
	case netmsg.TypeSession:
		var ev netmsg.SessionEvent
		if err := netmsg.Unmarshal(frame.Payload, &ev); err != nil {
			log.Printf("[client] bad session payload: %v", err)
			return
		}
		c.handleSessionEvent(ev)

	case netmsg.TypeSnapshot:
		var snap netmsg.Snapshot
		if err := netmsg.Unmarshal(frame.Payload, &snap); err != nil {
			log.Printf("[client] bad snapshot payload: %v", err)
			return
		}
		c.applySnapshot(frame, snap)

	case netmsg.TypeRPC:
		var call netmsg.RpcCall
		if err := netmsg.Unmarshal(frame.Payload, &call); err != nil {
			log.Printf("[client] bad rpc payload: %v", err)
			return
		}
		c.rpc.Ingest(transport.ServerConn, call)

	case netmsg.TypeReliable:
		var ack netmsg.RpcAck
		if err := netmsg.Unmarshal(frame.Payload, &ack); err != nil {
			return
		}
		c.rpc.Ack(transport.ServerConn, ack)

	case netmsg.TypeHeartbeat:
		c.handleHeartbeat(frame)
	}
}

func (c *Client) handleSessionEvent(ev netmsg.SessionEvent) {
	switch ev.Kind {
	case netmsg.SessionJoinAccepted:
		c.clientID = protocol.ClientID(ev.ClientID)
		c.entityID = protocol.EntityID(ev.EntityID)
		c.tickRate = ev.TickRate
		c.reconnectToken = ev.ReconnectToken
		c.localTick = ev.ServerTick
		c.state = StateJoined
		c.havePose = false
		if c.cfg.Step != nil {
			c.engine = prediction.NewEngine(c.cfg.Prediction, c.cfg.Step)
		}
		log.Printf("[client] joined: client=%d entity=%d tickRate=%d",
			ev.ClientID, ev.EntityID, ev.TickRate)

	case netmsg.SessionJoinRejected:
		c.setError(fmt.Errorf("join rejected: %s", ev.Reason))

	case netmsg.SessionDespawn:
		c.dropEntity(protocol.EntityID(ev.EntityID))

	case netmsg.SessionSpawn:
		// The entity's first snapshot creates its proxy; nothing to do.

	case netmsg.SessionDisconnect:
		c.state = StateDisconnected
	}
}

// handleHeartbeat echoes server pings back so the server can measure RTT,
// and folds echoed client pings into the local estimate.
func (c *Client) handleHeartbeat(frame netmsg.Frame) {
	var hb netmsg.Heartbeat
	if err := netmsg.Unmarshal(frame.Payload, &hb); err != nil {
		return
	}
	if hb.EchoedAt != 0 {
		rtt := time.Duration((c.now() - hb.SentAt) * float64(time.Second))
		if rtt > 0 {
			c.transport.ObserveRTT(transport.ServerConn, rtt)
		}
		return
	}
	data, err := netmsg.EncodeFrame(netmsg.TypeHeartbeat, 0, frame.Tick, c.now(), &hb)
	if err != nil {
		return
	}
	if err := c.transport.Send(transport.ServerConn, data, false); err != nil {
		log.Printf("[client] heartbeat echo: %v", err)
	}
}

// Ping sends a heartbeat the server will echo, updating the RTT estimate.
func (c *Client) Ping() {
	hb := netmsg.Heartbeat{SentAt: c.now()}
	data, err := netmsg.EncodeFrame(netmsg.TypeHeartbeat, 0, c.localTick, c.now(), &hb)
	if err != nil {
		return
	}
	if err := c.transport.Send(transport.ServerConn, data, false); err != nil {
		log.Printf("[client] ping: %v", err)
	}
}

// Stats returns the connection-quality figures for the server link.
func (c *Client) Stats() transport.Stats {
	return c.transport.Stats(transport.ServerConn)
}

// SendInput samples one input frame: it is applied optimistically through
// the prediction engine and sent to the server keyed by the local tick.
func (c *Client) SendInput(in netcomponents.InputState, dt float64) {
	if c.state != StateJoined {
		return
	}
	c.localTick++
	bytes := netcomponents.EncodeInput(in)

	// Prediction starts only once an authoritative pose exists; until
	// then inputs go to the server but are not simulated locally.
	if c.engine != nil && c.havePose {
		if c.engine.Phase() == prediction.Idle {
			st := c.engine.Live()
			st.Tick = c.localTick
			c.engine.Enable(st)
		}
		c.engine.ApplyInput(c.localTick, c.now(), bytes, dt)
	}

	c.inputSeq++
	input := netmsg.PlayerInput{
		Tick:       c.localTick,
		Sequence:   c.inputSeq,
		InputBytes: bytes,
	}
	data, err := netmsg.EncodeFrame(netmsg.TypeInput, c.inputSeq, c.localTick, c.now(), &input)
	if err != nil {
		log.Printf("[client] encode input: %v", err)
		return
	}
	if err := c.transport.Send(transport.ServerConn, data, false); err != nil {
		log.Printf("[client] send input: %v", err)
	}
}

// resolveTarget on the client: everything outbound goes to the server,
// which fans broadcasts out itself.
func (c *Client) resolveTarget(target netmsg.RpcTarget, targetID uint32) []transport.ConnID {
	return []transport.ConnID{transport.ServerConn}
}

func (c *Client) sendRPCFrame(conn transport.ConnID, frame netmsg.Frame, reliable bool) error {
	frame.Tick = c.localTick
	frame.Timestamp = c.now()
	data, err := netmsg.Marshal(&frame)
	if err != nil {
		return err
	}
	return c.transport.Send(conn, data, reliable)
}

// Close tears the session down.
func (c *Client) Close() error {
	c.state = StateDisconnected
	return c.transport.Close()
}
