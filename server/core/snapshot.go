package core

import (
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/transport"
)

// sendBatch is one client's encoded snapshot for this tick. Batches are
// immutable once built so the send pool never races the tick loop.
type sendBatch struct {
	conn transport.ConnID
	data []byte
}

// drainClients runs the bandwidth scheduler for every joined client and
// packages whatever fits into snapshot frames. Baselines are marked sent
// here, after the scheduler has decided what actually goes out.
func (s *Server) drainClients(dt float64) []sendBatch {
	batches := make([]sendBatch, 0, len(s.byClient))

	for client, sess := range s.byClient {
		if sess.state != sessionJoined {
			continue
		}
		res := s.scheduler.Drain(client, s.replication.Queues(client), s.tick, dt)
		if res.DroppedStale > 0 {
			s.stats.CountStale()
		}
		if len(res.Sent) == 0 {
			continue
		}

		snap := netmsg.Snapshot{Tick: s.tick, Baseline: true}
		byEntity := make(map[uint64]int)
		for _, u := range res.Sent {
			idx, ok := byEntity[uint64(u.Entity)]
			if !ok {
				idx = len(snap.Entities)
				byEntity[uint64(u.Entity)] = idx
				snap.Entities = append(snap.Entities, netmsg.EntityUpdate{
					EntityID: uint64(u.Entity),
					Tick:     s.tick,
				})
			}
			snap.Entities[idx].Components = append(snap.Entities[idx].Components, netmsg.ComponentUpdate{
				Tag:     uint16(u.Tag),
				Bytes:   u.Bytes,
				IsDelta: u.IsDelta,
			})
			if u.IsDelta {
				snap.Baseline = false
			}
		}

		s.snapshotSeq[client]++
		data, err := netmsg.EncodeFrame(netmsg.TypeSnapshot, s.snapshotSeq[client], s.tick, s.now(), &snap)
		if err != nil {
			log.Printf("[server] encode snapshot for client %d: %v", client, err)
			continue
		}

		s.replication.MarkSent(res.Sent, s.tick)
		batches = append(batches, sendBatch{conn: sess.conn, data: data})
	}
	return batches
}

// flush writes batches concurrently, one goroutine per client up to the
// worker limit. Send failures are logged; the disconnect event, if any,
// arrives through the transport on a later poll.
func (s *Server) flush(batches []sendBatch) {
	if len(batches) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(s.cfg.SendWorkers)
	for _, b := range batches {
		g.Go(func() error {
			s.stats.RecordSend(b.conn, len(b.data))
			if err := s.transport.Send(b.conn, b.data, false); err != nil {
				log.Printf("[server] snapshot send to conn %d: %v", b.conn, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("[server] send pool: %v", err)
	}
}
