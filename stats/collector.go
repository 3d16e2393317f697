// Package stats aggregates per-client connection quality and replication
// throughput for monitoring. All figures are computed over one-second
// windows so UI readouts stay stable.
package stats

import (
	"sync"
	"time"

	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/transport"
)

const windowLength = time.Second

// ClientStats is one client's snapshot for the stats API.
type ClientStats struct {
	RTT          time.Duration
	PacketLoss   float64
	BandwidthIn  float64 // bytes per second, last completed window
	BandwidthOut float64
	// UpdateHz is the replication update rate per entity over the last
	// completed window.
	UpdateHz map[protocol.EntityID]float64
}

// Counters tracks drops that are silent on the wire but still worth
// watching.
type Counters struct {
	StaleMessages      uint64
	ValidationFailures uint64
	ForcedResyncs      uint64
}

type clientEntry struct {
	rtt        time.Duration
	packetLoss float64

	bytesIn  int
	bytesOut int
	updates  map[protocol.EntityID]int

	bandwidthIn  float64
	bandwidthOut float64
	updateHz     map[protocol.EntityID]float64
}

// Collector accumulates stats. It is safe for use from the tick loop and
// the send worker pool concurrently.
type Collector struct {
	mu          sync.Mutex
	clients     map[transport.ConnID]*clientEntry
	counters    Counters
	windowStart time.Time
}

func NewCollector() *Collector {
	return &Collector{
		clients:     make(map[transport.ConnID]*clientEntry),
		windowStart: time.Now(),
	}
}

func (c *Collector) entry(conn transport.ConnID) *clientEntry {
	e, ok := c.clients[conn]
	if !ok {
		e = &clientEntry{
			updates:  make(map[protocol.EntityID]int),
			updateHz: make(map[protocol.EntityID]float64),
		}
		c.clients[conn] = e
	}
	return e
}

// ObserveTransport copies connection-level figures from the transport.
func (c *Collector) ObserveTransport(conn transport.ConnID, ts transport.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(conn)
	e.rtt = ts.RTT
	e.packetLoss = ts.PacketLoss
}

// RecordSend accounts outbound bytes for one client.
func (c *Collector) RecordSend(conn transport.ConnID, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(conn).bytesOut += n
}

// RecordReceive accounts inbound bytes from one client.
func (c *Collector) RecordReceive(conn transport.ConnID, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(conn).bytesIn += n
}

// RecordUpdate counts one replication update sent to conn for entity.
func (c *Collector) RecordUpdate(conn transport.ConnID, entity protocol.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(conn).updates[entity]++
}

// CountStale increments the stale-message counter.
func (c *Collector) CountStale() {
	c.mu.Lock()
	c.counters.StaleMessages++
	c.mu.Unlock()
}

// CountValidationFailure increments the rejected-input counter.
func (c *Collector) CountValidationFailure() {
	c.mu.Lock()
	c.counters.ValidationFailures++
	c.mu.Unlock()
}

// CountResync increments the forced full-state resync counter.
func (c *Collector) CountResync() {
	c.mu.Lock()
	c.counters.ForcedResyncs++
	c.mu.Unlock()
}

// AddCounters folds in counters kept elsewhere, like the RPC router's.
func (c *Collector) AddCounters(stale, validation uint64) {
	c.mu.Lock()
	c.counters.StaleMessages += stale
	c.counters.ValidationFailures += validation
	c.mu.Unlock()
}

// Tick closes the current window when a second has elapsed, rolling the
// accumulated bytes and update counts into the published rates.
func (c *Collector) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := now.Sub(c.windowStart)
	if elapsed < windowLength {
		return
	}
	secs := elapsed.Seconds()
	for _, e := range c.clients {
		e.bandwidthIn = float64(e.bytesIn) / secs
		e.bandwidthOut = float64(e.bytesOut) / secs
		e.bytesIn, e.bytesOut = 0, 0
		hz := make(map[protocol.EntityID]float64, len(e.updates))
		for id, n := range e.updates {
			hz[id] = float64(n) / secs
		}
		e.updateHz = hz
		e.updates = make(map[protocol.EntityID]int)
	}
	c.windowStart = now
}

// Client returns one client's published stats. The UpdateHz map is a copy.
func (c *Collector) Client(conn transport.ConnID) (ClientStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.clients[conn]
	if !ok {
		return ClientStats{}, false
	}
	hz := make(map[protocol.EntityID]float64, len(e.updateHz))
	for id, v := range e.updateHz {
		hz[id] = v
	}
	return ClientStats{
		RTT:          e.rtt,
		PacketLoss:   e.packetLoss,
		BandwidthIn:  e.bandwidthIn,
		BandwidthOut: e.bandwidthOut,
		UpdateHz:     hz,
	}, true
}

// Counters returns the accumulated drop counters.
func (c *Collector) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// DropClient forgets a disconnected client.
func (c *Collector) DropClient(conn transport.ConnID) {
	c.mu.Lock()
	delete(c.clients, conn)
	c.mu.Unlock()
}
