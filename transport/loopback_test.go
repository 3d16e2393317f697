package transport

import (
	"testing"
	"time"
)

func TestLoopbackDelivery(t *testing.T) {
	hub := NewLoopback(1)
	peer := hub.Connect()

	ev := hub.Poll()
	if len(ev) != 1 || ev[0].Kind != EventConnected {
		t.Fatalf("want server-side Connected, got %+v", ev)
	}
	if ev[0].Conn != peer.ID() {
		t.Fatalf("conn id mismatch: %d vs %d", ev[0].Conn, peer.ID())
	}

	if err := hub.Send(peer.ID(), []byte("tick"), true); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := peer.Poll()
	// Connected followed by the data message.
	if len(got) != 2 || got[1].Kind != EventData || string(got[1].Data) != "tick" {
		t.Fatalf("peer events: %+v", got)
	}

	if err := peer.Send(ServerConn, []byte("input"), false); err != nil {
		t.Fatalf("peer send: %v", err)
	}
	up := hub.Poll()
	if len(up) != 1 || string(up[0].Data) != "input" || up[0].Conn != peer.ID() {
		t.Fatalf("hub events: %+v", up)
	}
}

func TestLoopbackDropNextSkipsUnreliableOnly(t *testing.T) {
	hub := NewLoopback(1)
	peer := hub.Connect()
	peer.Poll() // clear Connected

	hub.DropNext(1)
	if err := hub.Send(peer.ID(), []byte("lost"), false); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := hub.Send(peer.ID(), []byte("kept"), true); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := peer.Poll()
	if len(got) != 1 || string(got[0].Data) != "kept" {
		t.Fatalf("want only reliable message, got %+v", got)
	}

	if st := hub.Stats(peer.ID()); st.PacketLoss == 0 {
		t.Fatal("loss not reflected in stats")
	}
}

func TestLoopbackDisconnectBothSides(t *testing.T) {
	hub := NewLoopback(1)
	peer := hub.Connect()
	hub.Poll()
	peer.Poll()

	peer.Disconnect(ServerConn)

	if ev := hub.Poll(); len(ev) != 1 || ev[0].Kind != EventDisconnected {
		t.Fatalf("hub: %+v", ev)
	}
	if ev := peer.Poll(); len(ev) != 1 || ev[0].Kind != EventDisconnected {
		t.Fatalf("peer: %+v", ev)
	}
	if err := peer.Send(ServerConn, []byte("x"), true); err != ErrNotConnected {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}

func TestLoopbackObserveRTT(t *testing.T) {
	hub := NewLoopback(1)
	peer := hub.Connect()
	hub.ObserveRTT(peer.ID(), 42*time.Millisecond)
	if st := hub.Stats(peer.ID()); st.RTT != 42*time.Millisecond {
		t.Fatalf("rtt: %v", st.RTT)
	}
}
