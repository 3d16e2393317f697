// Package netcomponents defines the donburi component types that cross the
// wire, together with their interpolation and codec functions. It must stay
// headless: no graphics or transport imports.
package netcomponents

import (
	"github.com/yohamta/donburi"

	"github.com/automoto/netcode/shared/gamemath"
)

// NetTransformData is the replicated pose of an entity.
type NetTransformData struct {
	X, Y           float64
	Rotation       float64 // radians, normalized to (-π, π]
	ScaleX, ScaleY float64
}

var NetTransform = donburi.NewComponentType[NetTransformData]()

// LerpNetTransform interpolates between two poses. Position and scale blend
// linearly; rotation takes the shortest arc.
func LerpNetTransform(from, to NetTransformData, t float64) *NetTransformData {
	return &NetTransformData{
		X:        gamemath.Lerp(from.X, to.X, t),
		Y:        gamemath.Lerp(from.Y, to.Y, t),
		Rotation: gamemath.LerpAngle(from.Rotation, to.Rotation, t),
		ScaleX:   gamemath.Lerp(from.ScaleX, to.ScaleX, t),
		ScaleY:   gamemath.Lerp(from.ScaleY, to.ScaleY, t),
	}
}

// Pos returns the position as a vector.
func (d NetTransformData) Pos() gamemath.Vec2 {
	return gamemath.Vec2{X: d.X, Y: d.Y}
}

// NetVelocityData is the replicated velocity, in units per second. Clients
// use it to extrapolate between snapshots.
type NetVelocityData struct {
	SpeedX, SpeedY float64
}

var NetVelocity = donburi.NewComponentType[NetVelocityData]()

// LerpNetVelocity interpolates between two velocities.
func LerpNetVelocity(from, to NetVelocityData, t float64) *NetVelocityData {
	return &NetVelocityData{
		SpeedX: gamemath.Lerp(from.SpeedX, to.SpeedX, t),
		SpeedY: gamemath.Lerp(from.SpeedY, to.SpeedY, t),
	}
}
