package core

import (
	"math"

	"github.com/automoto/netcode/shared/netcomponents"
)

// Movement constants, tuned for a 60 Hz sub-step.
const (
	gravity      = 0.75
	jumpSpeed    = 15.0
	moveSpeed    = 6.0
	acceleration = 0.75
	friction     = 0.5
	maxFallSpeed = 10.0
	maxVertSpeed = 16.0
	attackTicks  = 12
)

// updatePhysics advances every actor body for one server tick. Sub-stepping
// keeps the 60 Hz-tuned constants correct when the server runs slower.
func (s *Server) updatePhysics() {
	stepsPerTick := 60 / s.cfg.TickRate
	if stepsPerTick < 1 {
		stepsPerTick = 1
	}

	for step := 0; step < stepsPerTick; step++ {
		for id, body := range s.bodies {
			ent, ok := s.entities[id]
			if !ok || !s.world.Valid(ent) {
				continue
			}
			vel := netcomponents.NetVelocity.Get(s.world.Entry(ent))
			s.stepActor(body, vel)
		}
	}

	// After all sub-steps, publish positions and derived state into the
	// replicated components.
	for id, body := range s.bodies {
		ent, ok := s.entities[id]
		if !ok || !s.world.Valid(ent) {
			continue
		}
		entry := s.world.Entry(ent)
		tr := netcomponents.NetTransform.Get(entry)
		vel := netcomponents.NetVelocity.Get(entry)
		st := netcomponents.NetActorState.Get(entry)

		tr.X = body.Object.X
		tr.Y = body.Object.Y

		if body.attackTimer > 0 {
			body.attackTimer--
		}
		st.Grounded = body.OnGround
		st.Attacking = body.attackTimer > 0
		if body.Input.MoveX != 0 {
			st.Facing = body.Input.MoveX
		}
		st.StateID = deriveState(body, vel)
	}
}

// stepActor performs a single 60 Hz sub-step for one actor.
func (s *Server) stepActor(body *actorBody, vel *netcomponents.NetVelocityData) {
	if body.Input.MoveX != 0 {
		vel.SpeedX += float64(body.Input.MoveX) * acceleration
	}

	// Jump is edge-triggered so holding the button does not bounce.
	if body.Input.Jump && !body.jumpWas && body.OnGround {
		vel.SpeedY = -jumpSpeed
		body.OnGround = false
	}
	body.jumpWas = body.Input.Jump

	if body.Input.Attack && body.attackTimer == 0 {
		body.attackTimer = attackTicks
	}

	if body.OnGround {
		if vel.SpeedX > friction {
			vel.SpeedX -= friction
		} else if vel.SpeedX < -friction {
			vel.SpeedX += friction
		} else {
			vel.SpeedX = 0
		}
	}

	if vel.SpeedX > moveSpeed {
		vel.SpeedX = moveSpeed
	} else if vel.SpeedX < -moveSpeed {
		vel.SpeedX = -moveSpeed
	}

	vel.SpeedY += gravity
	if vel.SpeedY > maxFallSpeed {
		vel.SpeedY = maxFallSpeed
	}

	dx := vel.SpeedX
	if dx != 0 {
		if check := body.Object.Check(dx, 0, tagSolid); check != nil {
			if solids := check.ObjectsByTags(tagSolid); len(solids) > 0 {
				contact := check.ContactWithObject(solids[0])
				dx = contact.X()
				vel.SpeedX = 0
			}
		}
		body.Object.X += dx
	}

	dy := math.Max(math.Min(vel.SpeedY, maxVertSpeed), -maxVertSpeed)
	checkDist := dy
	if dy >= 0 {
		checkDist++
	}
	if check := body.Object.Check(0, checkDist, tagSolid); check != nil {
		if solids := check.ObjectsByTags(tagSolid); len(solids) > 0 {
			contact := check.ContactWithObject(solids[0])
			body.Object.Y += contact.Y()
			vel.SpeedY = 0
			if dy >= 0 {
				body.OnGround = true
			}
			body.Object.Update()
			return
		}
	}

	body.OnGround = false
	body.Object.Y += dy
	body.Object.Update()
}

func deriveState(body *actorBody, vel *netcomponents.NetVelocityData) uint8 {
	if body.attackTimer > 0 {
		return stateAttacking
	}
	if !body.OnGround {
		return stateJumping
	}
	if math.Abs(vel.SpeedX) >= 0.1 {
		return stateRunning
	}
	return stateIdle
}
