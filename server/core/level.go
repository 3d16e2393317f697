package core

import (
	"fmt"
	"io/fs"
	"log"

	"github.com/solarlune/resolv"

	"github.com/automoto/netcode/shared/leveldata"
)

// Collision tags used in the resolv space.
const (
	tagSolid = "solid"
	tagActor = "actor"
)

// Level holds the server's collision space and spawn data.
type Level struct {
	Space       *resolv.Space
	SpawnPoints []leveldata.SpawnPoint
	Width       int
	Height      int
}

// NewLevel builds a resolv space from parsed collision data.
func NewLevel(data *leveldata.CollisionData) *Level {
	space := resolv.NewSpace(data.MapWidth, data.MapHeight, 16, 16)
	for _, r := range data.SolidRects {
		obj := resolv.NewObject(r.X, r.Y, r.W, r.H, tagSolid)
		obj.SetShape(resolv.NewRectangle(0, 0, r.W, r.H))
		space.Add(obj)
	}

	log.Printf("[server] level loaded: %d solid tiles, %d spawn points, %dx%d",
		len(data.SolidRects), len(data.SpawnPoints), data.MapWidth, data.MapHeight)

	return &Level{
		Space:       space,
		SpawnPoints: data.SpawnPoints,
		Width:       data.MapWidth,
		Height:      data.MapHeight,
	}
}

// LoadLevel parses a TMX file and builds its collision space.
func LoadLevel(fsys fs.FS, tmxPath string) (*Level, error) {
	data, err := leveldata.Load(fsys, tmxPath)
	if err != nil {
		return nil, fmt.Errorf("load level: %w", err)
	}
	return NewLevel(data), nil
}

// EmptyLevel returns a level with no geometry, for worlds that validate
// movement without static collision.
func EmptyLevel(width, height int) *Level {
	return NewLevel(&leveldata.CollisionData{MapWidth: width, MapHeight: height})
}

// SpawnFor cycles through spawn points by join order. Levels without spawn
// points place everyone at the map center.
func (l *Level) SpawnFor(i int) (float64, float64) {
	if len(l.SpawnPoints) == 0 {
		return float64(l.Width) / 2, float64(l.Height) / 2
	}
	sp := l.SpawnPoints[i%len(l.SpawnPoints)]
	return sp.X, sp.Y
}
