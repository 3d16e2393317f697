package transport

import (
	"math/rand"
	"sync"
	"time"
)

// Loopback is an in-process transport hub used by tests and local botplay.
// The hub side acts as the server transport; each Connect returns a peer
// transport for one simulated client. Unreliable delivery can be degraded
// deterministically (seeded loss) or explicitly (DropNext).
type Loopback struct {
	mu     sync.Mutex
	events []Event
	peers  map[ConnID]*LoopbackPeer
	nextID ConnID
	rng    *rand.Rand

	// LossRate drops that fraction of unreliable messages in both
	// directions. Reliable messages always arrive.
	LossRate float64

	dropNext int
}

// NewLoopback creates a loopback hub with a fixed seed so loss patterns
// reproduce across runs.
func NewLoopback(seed int64) *Loopback {
	return &Loopback{
		peers: make(map[ConnID]*LoopbackPeer),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Connect attaches a new simulated client and returns its peer transport.
func (l *Loopback) Connect() *LoopbackPeer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	p := &LoopbackPeer{hub: l, id: l.nextID}
	p.events = append(p.events, Event{Kind: EventConnected, Conn: ServerConn})
	l.peers[l.nextID] = p
	l.events = append(l.events, Event{Kind: EventConnected, Conn: l.nextID})
	return p
}

// DropNext drops the next n unreliable messages regardless of LossRate.
func (l *Loopback) DropNext(n int) {
	l.mu.Lock()
	l.dropNext += n
	l.mu.Unlock()
}

// dropped decides the fate of one unreliable message. Caller holds mu.
func (l *Loopback) dropped(reliable bool) bool {
	if reliable {
		return false
	}
	if l.dropNext > 0 {
		l.dropNext--
		return true
	}
	return l.LossRate > 0 && l.rng.Float64() < l.LossRate
}

func (l *Loopback) Send(conn ConnID, data []byte, reliable bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peers[conn]
	if !ok {
		return ErrNotConnected
	}
	p.sentMsgs++
	if l.dropped(reliable) {
		p.lostMsgs++
		return nil
	}
	p.bytesIn += int64(len(data))
	p.events = append(p.events, Event{Kind: EventData, Conn: ServerConn, Data: append([]byte(nil), data...)})
	return nil
}

func (l *Loopback) Poll() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}

func (l *Loopback) Disconnect(conn ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peers[conn]
	if !ok {
		return
	}
	delete(l.peers, conn)
	p.closed = true
	p.events = append(p.events, Event{Kind: EventDisconnected, Conn: ServerConn})
	l.events = append(l.events, Event{Kind: EventDisconnected, Conn: conn})
}

func (l *Loopback) Stats(conn ConnID) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peers[conn]
	if !ok {
		return Stats{}
	}
	loss := 0.0
	if p.sentMsgs > 0 {
		loss = float64(p.lostMsgs) / float64(p.sentMsgs)
	}
	return Stats{RTT: p.rtt, PacketLoss: loss, BandwidthOut: p.bytesIn}
}

func (l *Loopback) ObserveRTT(conn ConnID, rtt time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.peers[conn]; ok {
		p.rtt = rtt
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	peers := make([]ConnID, 0, len(l.peers))
	for id := range l.peers {
		peers = append(peers, id)
	}
	l.mu.Unlock()
	for _, id := range peers {
		l.Disconnect(id)
	}
	return nil
}

// LoopbackPeer is the client end of one simulated connection.
type LoopbackPeer struct {
	hub *Loopback
	id  ConnID

	events   []Event
	bytesIn  int64
	bytesOut int64
	sentMsgs int64
	lostMsgs int64
	rtt      time.Duration
	closed   bool
}

// ID returns the hub-side connection id for this peer, so tests can
// address it through the server transport.
func (p *LoopbackPeer) ID() ConnID { return p.id }

func (p *LoopbackPeer) Send(conn ConnID, data []byte, reliable bool) error {
	l := p.hub
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.closed {
		return ErrNotConnected
	}
	p.bytesOut += int64(len(data))
	if l.dropped(reliable) {
		return nil
	}
	l.events = append(l.events, Event{Kind: EventData, Conn: p.id, Data: append([]byte(nil), data...)})
	return nil
}

func (p *LoopbackPeer) Poll() []Event {
	l := p.hub
	l.mu.Lock()
	defer l.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

func (p *LoopbackPeer) Disconnect(conn ConnID) { p.hub.Disconnect(p.id) }

func (p *LoopbackPeer) Stats(conn ConnID) Stats {
	l := p.hub
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{RTT: p.rtt, BandwidthIn: p.bytesIn, BandwidthOut: p.bytesOut}
}

func (p *LoopbackPeer) ObserveRTT(conn ConnID, rtt time.Duration) {
	l := p.hub
	l.mu.Lock()
	defer l.mu.Unlock()
	p.rtt = rtt
}

func (p *LoopbackPeer) Close() error {
	p.hub.Disconnect(p.id)
	return nil
}
