// Package core implements the authoritative game server: a fixed-rate tick
// loop that validates inputs, simulates movement, and feeds the
// interest/replication/bandwidth pipeline that keeps every client's view of
// the world current.
package core

import (
	"fmt"
	"log"
	"time"

	"github.com/yohamta/donburi"

	"github.com/automoto/netcode/bandwidth"
	"github.com/automoto/netcode/interest"
	"github.com/automoto/netcode/replication"
	"github.com/automoto/netcode/rpc"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/stats"
	"github.com/automoto/netcode/transport"
)

// Config carries everything the server needs at construction.
type Config struct {
	TickRate int
	Version  string
	// GracePeriod is how long a dropped client's session survives for
	// reconnection before it is torn down.
	GracePeriod time.Duration
	// MaxViolations is the input-validation failure count that gets a
	// client disconnected.
	MaxViolations int
	// SendWorkers bounds the concurrent per-client socket writes.
	SendWorkers int

	Interest    interest.Config
	Replication replication.Config
	Bandwidth   bandwidth.Config
	Rpc         rpc.Config
}

// DefaultConfig returns the dedicated server's defaults.
func DefaultConfig() Config {
	return Config{
		TickRate:      60,
		Version:       "dev",
		GracePeriod:   10 * time.Second,
		MaxViolations: 20,
		SendWorkers:   8,
	}
}

// Server owns the world and all per-client netcode state. All mutation
// happens on the tick goroutine; the send pool only reads immutable
// batches produced after mutation is done.
type Server struct {
	cfg       Config
	world     donburi.World
	level     *Level
	transport transport.Transport

	registry    *protocol.Registry
	interest    *interest.Manager
	replication *replication.Manager
	scheduler   *bandwidth.Scheduler
	rpc         *rpc.Router
	stats       *stats.Collector

	sessions map[transport.ConnID]*session
	byClient map[protocol.ClientID]*session
	byToken  map[string]*session

	entities map[protocol.EntityID]donburi.Entity
	bodies   map[protocol.EntityID]*actorBody

	lastInputSeq map[protocol.ClientID]uint32
	snapshotSeq  map[protocol.ClientID]uint32

	// rpcCounters is the router's counter state already folded into the
	// stats collector, so each pass only adds the delta.
	rpcCounters rpc.Counters

	nextEntityID uint64
	nextClientID uint32
	spawnCounter int
	tick         uint32
	epoch        time.Time
	clock        time.Time
}

// NewServer wires the full pipeline over the given transport and level.
func NewServer(cfg Config, t transport.Transport, level *Level) (*Server, error) {
	def := DefaultConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = def.MaxViolations
	}
	if cfg.SendWorkers <= 0 {
		cfg.SendWorkers = def.SendWorkers
	}

	registry := protocol.NewRegistry()
	if err := netcomponents.RegisterAll(registry, float64(level.Width), float64(level.Height)); err != nil {
		return nil, fmt.Errorf("register components: %w", err)
	}
	registry.Seal()

	s := &Server{
		cfg:          cfg,
		world:        donburi.NewWorld(),
		level:        level,
		transport:    t,
		registry:     registry,
		sessions:     make(map[transport.ConnID]*session),
		byClient:     make(map[protocol.ClientID]*session),
		byToken:      make(map[string]*session),
		entities:     make(map[protocol.EntityID]donburi.Entity),
		bodies:       make(map[protocol.EntityID]*actorBody),
		lastInputSeq: make(map[protocol.ClientID]uint32),
		snapshotSeq:  make(map[protocol.ClientID]uint32),
		epoch:        time.Now(),
		clock:        time.Now(),
	}

	s.interest = interest.NewManager(cfg.Interest)
	s.replication = replication.NewManager(registry, cfg.Replication)
	s.scheduler = bandwidth.NewScheduler(cfg.Bandwidth, s.replication)
	s.stats = stats.NewCollector()
	s.rpc = rpc.NewRouter(cfg.Rpc, s.sendRPCFrame, s.resolveTarget)
	s.rpc.SetValidator(s.validateRPC)

	s.replication.SetOnEmit(func(c protocol.ClientID, e protocol.EntityID, _ protocol.ComponentTag) {
		if sess, ok := s.byClient[c]; ok {
			s.stats.RecordUpdate(sess.conn, e)
		}
	})

	return s, nil
}

// World exposes the ECS world for game systems.
func (s *Server) World() donburi.World { return s.world }

// Rpc exposes the router so game code can register handlers and make
// calls.
func (s *Server) Rpc() *rpc.Router { return s.rpc }

// Interest exposes the interest manager for custom relevancy rules.
func (s *Server) Interest() *interest.Manager { return s.interest }

// Stats exposes the per-client stats collector.
func (s *Server) Stats() *stats.Collector { return s.stats }

// PlayerCount returns the number of admitted clients.
func (s *Server) PlayerCount() int { return len(s.byClient) }

// now returns seconds since server start, the timestamp base for frames.
func (s *Server) now() float64 { return s.clock.Sub(s.epoch).Seconds() }

// Tick runs one full server tick. All world mutation happens here, on one
// goroutine; only the final socket writes fan out.
func (s *Server) Tick(now time.Time) {
	s.clock = now
	s.tick++
	dt := 1.0 / float64(s.cfg.TickRate)

	s.pollTransport(now)
	s.rpc.Drain()

	s.updatePhysics()
	s.refreshGrid()

	for _, ev := range s.interest.Update() {
		s.handleInterestEvent(ev)
	}

	s.expireSessions(now)
	s.replication.ExpireBaselines(s.tick)

	sets := make(map[protocol.ClientID]map[protocol.EntityID]struct{}, len(s.byClient))
	for client, sess := range s.byClient {
		if sess.state == sessionJoined {
			sets[client] = s.interest.Set(client)
		}
	}
	s.replication.Stage(s.tick, dt, sets, worldView{s}, s.interest.Distance)

	batches := s.drainClients(dt)
	s.flush(batches)

	s.rpc.Tick()
	s.foldRpcCounters()
	s.heartbeat(now)
	s.observeTransport()
	s.stats.Tick(now)
}

// foldRpcCounters rolls the router's drop counters into the stats
// collector.
func (s *Server) foldRpcCounters() {
	rc := s.rpc.Counters()
	stale := rc.StaleDropped - s.rpcCounters.StaleDropped
	failed := rc.ValidationFailures - s.rpcCounters.ValidationFailures
	if stale != 0 || failed != 0 {
		s.stats.AddCounters(stale, failed)
	}
	s.rpcCounters = rc
}

// pollTransport drains connection events and demultiplexes inbound frames.
func (s *Server) pollTransport(now time.Time) {
	for _, ev := range s.transport.Poll() {
		switch ev.Kind {
		case transport.EventConnected:
			s.sessions[ev.Conn] = &session{conn: ev.Conn, state: sessionPending}
			log.Printf("[server] conn %d connected", ev.Conn)
		case transport.EventDisconnected:
			sess, ok := s.sessions[ev.Conn]
			if !ok {
				continue
			}
			if sess.state == sessionJoined {
				s.beginGrace(sess, now)
			} else {
				delete(s.sessions, ev.Conn)
			}
		case transport.EventData:
			s.stats.RecordReceive(ev.Conn, len(ev.Data))
			s.handleFrame(ev.Conn, ev.Data, now)
		case transport.EventError:
			log.Printf("[server] conn %d error: %v", ev.Conn, ev.Err)
		}
	}
}

// handleFrame routes one inbound frame. Malformed frames drop the message,
// never the connection.
func (s *Server) handleFrame(conn transport.ConnID, data []byte, now time.Time) {
	frame, err := netmsg.DecodeFrame(data)
	if err != nil {
		log.Printf("[server] dropping malformed frame from conn %d: %v", conn, err)
		return
	}

	switch frame.Type {
	case netmsg.TypeSession:
		var ev netmsg.SessionEvent
		if err := netmsg.Unmarshal(frame.Payload, &ev); err != nil {
			log.Printf("[server] bad session payload from conn %d: %v", conn, err)
			return
		}
		s.handleSessionEvent(conn, ev)

	case netmsg.TypeInput:
		s.handleInput(conn, frame)

	case netmsg.TypeRPC:
		sess, ok := s.sessions[conn]
		if !ok || sess.state != sessionJoined {
			return
		}
		var call netmsg.RpcCall
		if err := netmsg.Unmarshal(frame.Payload, &call); err != nil {
			log.Printf("[server] bad rpc payload from conn %d: %v", conn, err)
			return
		}
		s.rpc.Ingest(conn, call)

	case netmsg.TypeReliable:
		var ack netmsg.RpcAck
		if err := netmsg.Unmarshal(frame.Payload, &ack); err != nil {
			return
		}
		s.rpc.Ack(conn, ack)

	case netmsg.TypeSnapshot:
		sess, ok := s.sessions[conn]
		if !ok || sess.state != sessionJoined {
			return
		}
		var ack netmsg.SnapshotAck
		if err := netmsg.Unmarshal(frame.Payload, &ack); err != nil {
			return
		}
		s.replication.Ack(sess.client, ack.Tick)

	case netmsg.TypeHeartbeat:
		s.handleHeartbeat(conn, frame, now)

	default:
		log.Printf("[server] unexpected %s frame from conn %d", frame.Type, conn)
	}
}

// handleInterestEvent reacts to entities entering or leaving a client's
// relevant set. Exits tear down baselines and tell the client to drop its
// proxy; enters need nothing since the next stage creates baselines.
func (s *Server) handleInterestEvent(ev interest.Event) {
	sess, ok := s.byClient[ev.Client]
	if !ok {
		return
	}
	switch ev.Kind {
	case interest.Enter:
		s.sendSession(sess.conn, netmsg.SessionEvent{
			Kind:     netmsg.SessionSpawn,
			EntityID: uint64(ev.Entity),
		})
	case interest.Exit:
		s.replication.TeardownPair(ev.Client, ev.Entity)
		s.sendSession(sess.conn, netmsg.SessionEvent{
			Kind:     netmsg.SessionDespawn,
			EntityID: uint64(ev.Entity),
		})
	}
}

// resolveTarget maps RPC targets to live connections.
func (s *Server) resolveTarget(target netmsg.RpcTarget, targetID uint32) []transport.ConnID {
	switch target {
	case netmsg.TargetClient:
		if sess, ok := s.byClient[protocol.ClientID(targetID)]; ok && sess.state == sessionJoined {
			return []transport.ConnID{sess.conn}
		}
		return nil
	case netmsg.TargetAllClients, netmsg.TargetAllClientsExcept:
		var conns []transport.ConnID
		for client, sess := range s.byClient {
			if sess.state != sessionJoined {
				continue
			}
			if target == netmsg.TargetAllClientsExcept && uint32(client) == targetID {
				continue
			}
			conns = append(conns, sess.conn)
		}
		return conns
	}
	return nil
}

// validateRPC is the untrusted-input gate for client calls. Unknown
// senders and oversized parameter blobs never reach a handler.
func (s *Server) validateRPC(from transport.ConnID, function string, params []byte) error {
	sess, ok := s.sessions[from]
	if !ok || sess.state != sessionJoined {
		return fmt.Errorf("rpc %q from unadmitted conn %d", function, from)
	}
	if len(params) > 4096 {
		return fmt.Errorf("rpc %q params too large: %d bytes", function, len(params))
	}
	return nil
}

func (s *Server) sendRPCFrame(conn transport.ConnID, frame netmsg.Frame, reliable bool) error {
	frame.Tick = s.tick
	frame.Timestamp = s.now()
	data, err := netmsg.Marshal(&frame)
	if err != nil {
		return err
	}
	s.stats.RecordSend(conn, len(data))
	return s.transport.Send(conn, data, reliable)
}

// heartbeat pings every joined client once a second for RTT measurement.
func (s *Server) heartbeat(now time.Time) {
	if s.tick%uint32(s.cfg.TickRate) != 0 {
		return
	}
	hb := netmsg.Heartbeat{SentAt: s.now(), Tick: s.tick}
	data, err := netmsg.EncodeFrame(netmsg.TypeHeartbeat, 0, s.tick, s.now(), &hb)
	if err != nil {
		return
	}
	for conn, sess := range s.sessions {
		if sess.state != sessionJoined {
			continue
		}
		if err := s.transport.Send(conn, data, false); err != nil {
			log.Printf("[server] heartbeat to conn %d: %v", conn, err)
		}
	}
}

// handleHeartbeat echoes client pings and folds echoed server pings into
// the RTT estimate.
func (s *Server) handleHeartbeat(conn transport.ConnID, frame netmsg.Frame, now time.Time) {
	var hb netmsg.Heartbeat
	if err := netmsg.Unmarshal(frame.Payload, &hb); err != nil {
		return
	}
	if hb.EchoedAt != 0 {
		rtt := time.Duration((s.now() - hb.SentAt) * float64(time.Second))
		if rtt > 0 {
			s.transport.ObserveRTT(conn, rtt)
		}
		return
	}
	hb.EchoedAt = s.now()
	data, err := netmsg.EncodeFrame(netmsg.TypeHeartbeat, 0, s.tick, s.now(), &hb)
	if err != nil {
		return
	}
	if err := s.transport.Send(conn, data, false); err != nil {
		log.Printf("[server] heartbeat echo to conn %d: %v", conn, err)
	}
}

// observeTransport copies per-connection transport figures into the stats
// collector.
func (s *Server) observeTransport() {
	for conn, sess := range s.sessions {
		if sess.state != sessionJoined {
			continue
		}
		s.stats.ObserveTransport(conn, s.transport.Stats(conn))
	}
}
