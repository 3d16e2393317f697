package leveldata

import (
	"fmt"
	"io/fs"
	"sort"

	"github.com/lafriks/go-tiled"
)

// Layer and object-group names the loader looks for in the TMX file.
const (
	collisionLayer = "collision"
	spawnGroup     = "PlayerSpawn"
)

// Load parses a TMX file and returns its collision data. It takes an fs.FS
// so callers can pass embed.FS or os.DirFS.
func Load(fsys fs.FS, tmxPath string) (*CollisionData, error) {
	levelMap, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	data := &CollisionData{
		MapWidth:  levelMap.Width * levelMap.TileWidth,
		MapHeight: levelMap.Height * levelMap.TileHeight,
	}

	tileW := float64(levelMap.TileWidth)
	tileH := float64(levelMap.TileHeight)
	for _, layer := range levelMap.Layers {
		if layer.Name != collisionLayer {
			continue
		}
		for y := 0; y < levelMap.Height; y++ {
			for x := 0; x < levelMap.Width; x++ {
				tile := layer.Tiles[y*levelMap.Width+x]
				if tile.IsNil() {
					continue
				}
				data.SolidRects = append(data.SolidRects, SolidRect{
					X: float64(x) * tileW,
					Y: float64(y) * tileH,
					W: tileW,
					H: tileH,
				})
			}
		}
		break
	}

	for _, og := range levelMap.ObjectGroups {
		if og.Name != spawnGroup {
			continue
		}
		for _, o := range og.Objects {
			data.SpawnPoints = append(data.SpawnPoints, SpawnPoint{
				X:     o.X,
				Y:     o.Y,
				Index: o.Properties.GetInt("spawnIndex"),
			})
		}
	}

	// Stable spawn assignment regardless of TMX object order.
	sort.Slice(data.SpawnPoints, func(i, j int) bool {
		return data.SpawnPoints[i].Index < data.SpawnPoints[j].Index
	})

	return data, nil
}
