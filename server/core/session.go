package core

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/transport"
)

type sessionState uint8

const (
	// sessionPending: connected but not yet admitted; only JoinRequest is
	// accepted, no replication traffic flows.
	sessionPending sessionState = iota
	sessionJoined
	// sessionGrace: the connection dropped; state is retained until the
	// grace period expires so a reconnect resumes from current baselines.
	sessionGrace
)

type session struct {
	conn       transport.ConnID
	client     protocol.ClientID
	entity     protocol.EntityID
	name       string
	token      string
	state      sessionState
	graceUntil time.Time
	violations int
	spawnIndex int
}

func newReconnectToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// rand.Read only fails when the OS entropy source is broken.
		return ""
	}
	return hex.EncodeToString(b[:])
}

// handleSessionEvent drives the join handshake for one connection.
func (s *Server) handleSessionEvent(conn transport.ConnID, ev netmsg.SessionEvent) {
	sess, ok := s.sessions[conn]
	if !ok {
		return
	}

	// A joined client may request a forced full-state resync for one
	// entity after reconciliation diverges beyond repair.
	if ev.Kind == netmsg.SessionResync {
		if sess.state == sessionJoined {
			s.replication.ForceFull(sess.client, protocol.EntityID(ev.EntityID))
			s.stats.CountResync()
			log.Printf("[server] client %d requested resync of entity %d", sess.client, ev.EntityID)
		}
		return
	}
	if ev.Kind != netmsg.SessionJoinRequest {
		return
	}
	if sess.state != sessionPending {
		log.Printf("[server] duplicate join request from conn %d", conn)
		return
	}

	if ev.Version != s.cfg.Version {
		log.Printf("[server] rejecting conn %d: version %q, want %q", conn, ev.Version, s.cfg.Version)
		s.sendSession(conn, netmsg.SessionEvent{
			Kind:   netmsg.SessionJoinRejected,
			Reason: "version mismatch",
		})
		s.transport.Disconnect(conn)
		return
	}

	// A valid reconnect token within the grace period resumes the old
	// session on the new connection without tearing down baselines.
	if ev.ReconnectToken != "" {
		if old, ok := s.byToken[ev.ReconnectToken]; ok && old.state == sessionGrace {
			s.resumeSession(conn, old, ev.PlayerName)
			return
		}
	}

	s.admitSession(conn, sess, ev.PlayerName)
}

// admitSession is the fresh-join path: allocate a client id, spawn the
// player, and wire the client into every subsystem.
func (s *Server) admitSession(conn transport.ConnID, sess *session, name string) {
	s.nextClientID++
	sess.client = protocol.ClientID(s.nextClientID)
	sess.name = name
	sess.token = newReconnectToken()
	sess.state = sessionJoined
	sess.spawnIndex = s.spawnCounter
	s.spawnCounter++

	sess.entity = s.spawnPlayer(sess.client, sess.spawnIndex)
	s.byClient[sess.client] = sess
	s.byToken[sess.token] = sess

	s.interest.AddClient(sess.client, sess.entity)
	s.scheduler.AddClient(sess.client)

	s.sendSession(conn, netmsg.SessionEvent{
		Kind:           netmsg.SessionJoinAccepted,
		ClientID:       uint32(sess.client),
		EntityID:       uint64(sess.entity),
		TickRate:       s.cfg.TickRate,
		ServerTick:     s.tick,
		ReconnectToken: sess.token,
	})
	log.Printf("[server] client %d (%s) joined as entity %d", sess.client, name, sess.entity)
}

// resumeSession reattaches a grace-period session to a new connection.
// Baselines, interest sets, and the player entity all survive, so the
// client resumes with deltas instead of a full resync.
func (s *Server) resumeSession(conn transport.ConnID, old *session, name string) {
	delete(s.sessions, old.conn)
	old.conn = conn
	old.state = sessionJoined
	if name != "" {
		old.name = name
	}
	s.sessions[conn] = old

	s.sendSession(conn, netmsg.SessionEvent{
		Kind:           netmsg.SessionJoinAccepted,
		ClientID:       uint32(old.client),
		EntityID:       uint64(old.entity),
		TickRate:       s.cfg.TickRate,
		ServerTick:     s.tick,
		ReconnectToken: old.token,
	})
	log.Printf("[server] client %d reconnected on conn %d", old.client, conn)
}

// beginGrace parks a joined session after its connection drops. Reliable
// RPC retries are cancelled immediately; everything else waits for the
// grace timer.
func (s *Server) beginGrace(sess *session, now time.Time) {
	sess.state = sessionGrace
	sess.graceUntil = now.Add(s.cfg.GracePeriod)
	s.rpc.DropClient(sess.conn)
	delete(s.sessions, sess.conn)
	log.Printf("[server] client %d lost connection, grace until %s",
		sess.client, sess.graceUntil.Format(time.TimeOnly))
}

// expireSessions removes grace-period sessions whose timer ran out.
func (s *Server) expireSessions(now time.Time) {
	for token, sess := range s.byToken {
		if sess.state != sessionGrace || now.Before(sess.graceUntil) {
			continue
		}
		log.Printf("[server] client %d grace period expired", sess.client)
		delete(s.byToken, token)
		s.removeClient(sess)
	}
}

// removeClient tears a client out of every subsystem and despawns its
// entity.
func (s *Server) removeClient(sess *session) {
	s.despawnEntity(sess.entity)
	s.broadcastSession(netmsg.SessionEvent{
		Kind:     netmsg.SessionDespawn,
		EntityID: uint64(sess.entity),
		ClientID: uint32(sess.client),
	})

	s.interest.RemoveClient(sess.client)
	s.replication.DropClient(sess.client)
	s.scheduler.RemoveClient(sess.client)
	s.stats.DropClient(sess.conn)
	delete(s.byClient, sess.client)
	delete(s.sessions, sess.conn)
	delete(s.lastInputSeq, sess.client)
	delete(s.snapshotSeq, sess.client)
}

// sendSession delivers one session event reliably.
func (s *Server) sendSession(conn transport.ConnID, ev netmsg.SessionEvent) {
	data, err := netmsg.EncodeFrame(netmsg.TypeSession, 0, s.tick, s.now(), &ev)
	if err != nil {
		log.Printf("[server] encode session event: %v", err)
		return
	}
	if err := s.transport.Send(conn, data, true); err != nil {
		log.Printf("[server] send session event to conn %d: %v", conn, err)
	}
}

// broadcastSession delivers one session event to every joined client.
func (s *Server) broadcastSession(ev netmsg.SessionEvent) {
	for conn, sess := range s.sessions {
		if sess.state != sessionJoined {
			continue
		}
		s.sendSession(conn, ev)
	}
}
