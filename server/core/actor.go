package core

import (
	"github.com/solarlune/resolv"

	"github.com/automoto/netcode/shared/netcomponents"
)

// Animation states carried in NetActorState.StateID.
const (
	stateIdle uint8 = iota
	stateRunning
	stateJumping
	stateAttacking
)

// actorBody holds per-actor movement state on the server. It is not a
// donburi component and is never replicated.
type actorBody struct {
	Object   *resolv.Object
	OnGround bool

	// Latest validated input, written by the input handler and consumed
	// by the physics tick.
	Input   netcomponents.InputState
	jumpWas bool

	// attackTimer counts down ticks the actor stays in the attack state.
	attackTimer int
}

const (
	actorWidth  = 16.0
	actorHeight = 40.0
)

func newActorBody(level *Level, spawnX, spawnY float64) *actorBody {
	obj := resolv.NewObject(spawnX, spawnY, actorWidth, actorHeight, tagActor)
	obj.SetShape(resolv.NewRectangle(0, 0, actorWidth, actorHeight))
	level.Space.Add(obj)
	return &actorBody{Object: obj}
}

func removeActorBody(level *Level, b *actorBody) {
	level.Space.Remove(b.Object)
}
