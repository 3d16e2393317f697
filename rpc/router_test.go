package rpc

import (
	"fmt"
	"testing"

	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/transport"
)

type sentFrame struct {
	conn     transport.ConnID
	frame    netmsg.Frame
	reliable bool
}

type recorder struct {
	frames []sentFrame
	fail   bool
}

func (r *recorder) send(conn transport.ConnID, frame netmsg.Frame, reliable bool) error {
	if r.fail {
		return fmt.Errorf("send failed")
	}
	r.frames = append(r.frames, sentFrame{conn: conn, frame: frame, reliable: reliable})
	return nil
}

// rpcFrames filters out ack frames.
func (r *recorder) rpcFrames() []sentFrame {
	var out []sentFrame
	for _, f := range r.frames {
		if f.frame.Type == netmsg.TypeRPC {
			out = append(out, f)
		}
	}
	return out
}

func resolveAll(conns ...transport.ConnID) Resolver {
	return func(target netmsg.RpcTarget, targetID uint32) []transport.ConnID {
		switch target {
		case netmsg.TargetClient:
			return []transport.ConnID{transport.ConnID(targetID)}
		case netmsg.TargetAllClientsExcept:
			var out []transport.ConnID
			for _, c := range conns {
				if uint32(c) != targetID {
					out = append(out, c)
				}
			}
			return out
		default:
			return conns
		}
	}
}

func decodeCall(t *testing.T, f sentFrame) netmsg.RpcCall {
	t.Helper()
	var call netmsg.RpcCall
	if err := netmsg.Unmarshal(f.frame.Payload, &call); err != nil {
		t.Fatalf("decode call: %v", err)
	}
	return call
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(Config{}, rec.send, resolveAll(1, 2, 3))

	if err := r.Call(netmsg.TargetAllClientsExcept, 2, "explode", nil, false); err != nil {
		t.Fatal(err)
	}
	frames := rec.rpcFrames()
	if len(frames) != 2 {
		t.Fatalf("sent %d frames, want 2", len(frames))
	}
	for _, f := range frames {
		if f.conn == 2 {
			t.Fatal("excluded connection received the call")
		}
	}
}

func TestUnreliableSequenceDedup(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(Config{}, rec.send, resolveAll(1))

	got := 0
	r.Register("fire", func(from transport.ConnID, params []byte) error {
		got++
		return nil
	})

	r.Ingest(1, netmsg.RpcCall{Function: "fire", Sequence: 1})
	r.Ingest(1, netmsg.RpcCall{Function: "fire", Sequence: 3})
	r.Ingest(1, netmsg.RpcCall{Function: "fire", Sequence: 2}) // stale
	r.Ingest(1, netmsg.RpcCall{Function: "fire", Sequence: 3}) // duplicate
	r.Drain()

	if got != 2 {
		t.Fatalf("dispatched %d calls, want 2", got)
	}
	if c := r.Counters().StaleDropped; c != 2 {
		t.Fatalf("stale counter = %d, want 2", c)
	}

	// Gaps never block: sequence 10 after 3 still dispatches.
	r.Ingest(1, netmsg.RpcCall{Function: "fire", Sequence: 10})
	if n := r.Drain(); n != 1 {
		t.Fatalf("gap dispatch = %d, want 1", n)
	}
}

func TestPerSenderSequenceIsIndependent(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(Config{}, rec.send, resolveAll(1, 2))

	got := 0
	r.Register("fire", func(from transport.ConnID, params []byte) error {
		got++
		return nil
	})
	r.Ingest(1, netmsg.RpcCall{Function: "fire", Sequence: 5})
	r.Ingest(2, netmsg.RpcCall{Function: "fire", Sequence: 5})
	r.Drain()
	if got != 2 {
		t.Fatalf("dispatched %d, want 2", got)
	}
}

func TestReliableRetryThenAck(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(Config{RetryTicks: 2, MaxRetries: 5}, rec.send, resolveAll(7))

	if err := r.Call(netmsg.TargetClient, 7, "spawn", []byte{1}, true); err != nil {
		t.Fatal(err)
	}
	if len(rec.rpcFrames()) != 1 {
		t.Fatal("initial send missing")
	}

	// Backoff: first retry after 2 ticks, not before.
	r.Tick()
	if len(rec.rpcFrames()) != 1 {
		t.Fatal("retried too early")
	}
	r.Tick()
	if len(rec.rpcFrames()) != 2 {
		t.Fatal("first retry missing")
	}

	call := decodeCall(t, rec.rpcFrames()[0])
	r.Ack(7, netmsg.RpcAck{CallID: call.CallID})
	if r.PendingReliable() != 0 {
		t.Fatal("ack did not clear pending call")
	}
	for i := 0; i < 20; i++ {
		r.Tick()
	}
	if len(rec.rpcFrames()) != 2 {
		t.Fatal("acked call kept retrying")
	}
}

func TestReliableExhaustionNotifiesCaller(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(Config{RetryTicks: 1, MaxRetries: 2}, rec.send, resolveAll(4))

	var failed []netmsg.RpcCall
	r.SetOnFailure(func(conn transport.ConnID, call netmsg.RpcCall, err error) {
		if err != ErrRetriesExhausted {
			t.Fatalf("failure err = %v", err)
		}
		failed = append(failed, call)
	})

	if err := r.Call(netmsg.TargetClient, 4, "doomed", nil, true); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 64; i++ {
		r.Tick()
	}
	if len(failed) != 1 || failed[0].Function != "doomed" {
		t.Fatalf("failure callback = %+v, want one call", failed)
	}
	if r.PendingReliable() != 0 {
		t.Fatal("exhausted call still pending")
	}
}

func TestReliableDuplicateDispatchedOnce(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(Config{}, rec.send, resolveAll(1))

	got := 0
	r.Register("once", func(from transport.ConnID, params []byte) error {
		got++
		return nil
	})
	call := netmsg.RpcCall{Function: "once", Reliable: true, CallID: 9}
	r.Ingest(1, call)
	r.Ingest(1, call) // retry arriving after the ack was lost
	r.Drain()

	if got != 1 {
		t.Fatalf("dispatched %d, want 1", got)
	}
	// Both ingests ack so the sender can stop retrying.
	acks := 0
	for _, f := range rec.frames {
		if f.frame.Type == netmsg.TypeReliable {
			acks++
		}
	}
	if acks != 2 {
		t.Fatalf("acks = %d, want 2", acks)
	}
}

func TestValidationHookBlocksDispatch(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(Config{}, rec.send, resolveAll(1))
	r.SetValidator(func(from transport.ConnID, function string, params []byte) error {
		if function == "cheat" {
			return fmt.Errorf("not allowed")
		}
		return nil
	})

	got := 0
	r.Register("cheat", func(from transport.ConnID, params []byte) error {
		got++
		return nil
	})
	r.Ingest(1, netmsg.RpcCall{Function: "cheat", Sequence: 1})
	r.Drain()

	if got != 0 {
		t.Fatal("validator did not block dispatch")
	}
	if r.Counters().ValidationFailures != 1 {
		t.Fatal("validation failure not counted")
	}
}

func TestDropClientCancelsRetries(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(Config{RetryTicks: 1, MaxRetries: 10}, rec.send, resolveAll(3))

	if err := r.Call(netmsg.TargetClient, 3, "spawn", nil, true); err != nil {
		t.Fatal(err)
	}
	r.DropClient(3)
	if r.PendingReliable() != 0 {
		t.Fatal("disconnect left pending retries")
	}
	sent := len(rec.rpcFrames())
	for i := 0; i < 10; i++ {
		r.Tick()
	}
	if len(rec.rpcFrames()) != sent {
		t.Fatal("retried to a dropped connection")
	}
}
