package stats

import (
	"testing"
	"time"

	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/transport"
)

func TestWindowRollsRates(t *testing.T) {
	c := NewCollector()
	start := time.Now()
	c.windowStart = start

	c.RecordSend(1, 600)
	c.RecordReceive(1, 120)
	for i := 0; i < 30; i++ {
		c.RecordUpdate(1, protocol.EntityID(9))
	}

	// Mid-window: nothing published yet.
	c.Tick(start.Add(500 * time.Millisecond))
	got, ok := c.Client(1)
	if !ok {
		t.Fatal("client missing")
	}
	if got.BandwidthOut != 0 {
		t.Fatal("rates published before window closed")
	}

	c.Tick(start.Add(time.Second))
	got, _ = c.Client(1)
	if got.BandwidthOut < 590 || got.BandwidthOut > 610 {
		t.Fatalf("bandwidth out = %v, want ~600", got.BandwidthOut)
	}
	if got.BandwidthIn < 115 || got.BandwidthIn > 125 {
		t.Fatalf("bandwidth in = %v, want ~120", got.BandwidthIn)
	}
	if hz := got.UpdateHz[9]; hz < 29 || hz > 31 {
		t.Fatalf("update hz = %v, want ~30", hz)
	}

	// The next window starts from zero.
	c.Tick(start.Add(2 * time.Second))
	got, _ = c.Client(1)
	if got.BandwidthOut != 0 || got.UpdateHz[9] != 0 {
		t.Fatal("counts carried into the next window")
	}
}

func TestTransportFiguresPassThrough(t *testing.T) {
	c := NewCollector()
	c.ObserveTransport(2, transport.Stats{RTT: 40 * time.Millisecond, PacketLoss: 0.05})
	got, _ := c.Client(2)
	if got.RTT != 40*time.Millisecond || got.PacketLoss != 0.05 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestCountersAccumulate(t *testing.T) {
	c := NewCollector()
	c.CountStale()
	c.CountStale()
	c.CountValidationFailure()
	c.CountResync()
	c.AddCounters(3, 1)

	got := c.Counters()
	if got.StaleMessages != 5 {
		t.Fatalf("stale = %d, want 5", got.StaleMessages)
	}
	if got.ValidationFailures != 2 {
		t.Fatalf("validation = %d, want 2", got.ValidationFailures)
	}
	if got.ForcedResyncs != 1 {
		t.Fatalf("resyncs = %d, want 1", got.ForcedResyncs)
	}
}

func TestDropClientForgets(t *testing.T) {
	c := NewCollector()
	c.RecordSend(3, 10)
	c.DropClient(3)
	if _, ok := c.Client(3); ok {
		t.Fatal("dropped client still present")
	}
}
