package core

import (
	"fmt"
	"log"

	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/transport"
)

// maxInputTickLead bounds how far ahead of the server tick a client may
// timestamp its inputs before they count as violations.
const maxInputTickLead = 30

// handleInput validates and applies one player input. Inputs are untrusted:
// malformed or impossible ones are dropped and counted, and a client that
// keeps sending them is disconnected once it crosses the violation
// threshold.
func (s *Server) handleInput(conn transport.ConnID, frame netmsg.Frame) {
	sess, ok := s.sessions[conn]
	if !ok || sess.state != sessionJoined {
		return
	}

	var input netmsg.PlayerInput
	if err := netmsg.Unmarshal(frame.Payload, &input); err != nil {
		log.Printf("[server] bad input payload from client %d: %v", sess.client, err)
		s.stats.CountStale()
		return
	}

	// Stale or duplicate inputs are discarded silently; the newest
	// sequence wins.
	if input.Sequence <= s.lastInputSeq[sess.client] {
		s.stats.CountStale()
		return
	}
	s.lastInputSeq[sess.client] = input.Sequence

	if err := s.validateInput(sess, input); err != nil {
		s.recordViolation(sess, err)
		return
	}

	state, err := netcomponents.DecodeInput(input.InputBytes)
	if err != nil {
		s.recordViolation(sess, err)
		return
	}

	if body, ok := s.bodies[sess.entity]; ok {
		body.Input = state
	}
}

// validateInput applies the checks that do not need the decoded payload.
func (s *Server) validateInput(sess *session, input netmsg.PlayerInput) error {
	if input.Tick > s.tick+maxInputTickLead {
		return fmt.Errorf("input tick %d is %d ahead of server tick %d",
			input.Tick, input.Tick-s.tick, s.tick)
	}
	if len(input.InputBytes) == 0 {
		return fmt.Errorf("empty input payload")
	}
	return nil
}

// recordViolation drops the offending input. A single failure never
// terminates the connection; crossing the threshold does.
func (s *Server) recordViolation(sess *session, err error) {
	s.stats.CountValidationFailure()
	sess.violations++
	log.Printf("[server] rejected input from client %d (%d/%d): %v",
		sess.client, sess.violations, s.cfg.MaxViolations, err)
	if sess.violations >= s.cfg.MaxViolations {
		log.Printf("[server] disconnecting client %d: violation threshold exceeded", sess.client)
		s.transport.Disconnect(sess.conn)
	}
}
