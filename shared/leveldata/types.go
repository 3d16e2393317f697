// Package leveldata provides TMX level parsing shared between client and
// server. It has no dependencies on donburi or resolv — pure data only.
package leveldata

// CollisionData holds the static geometry the server's movement validator
// and the client's prediction step both build their collision space from.
type CollisionData struct {
	SolidRects  []SolidRect
	SpawnPoints []SpawnPoint
	MapWidth    int
	MapHeight   int
}

// SolidRect is one solid collision tile in world units.
type SolidRect struct {
	X, Y, W, H float64
}

// SpawnPoint is a player spawn location. Index orders spawn assignment.
type SpawnPoint struct {
	X, Y  float64
	Index int
}
