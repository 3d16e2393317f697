// Package interest decides, per client, which entities are relevant enough
// to replicate. A cell-keyed spatial hash gives cheap radius candidates;
// per-client sets are diffed tick-over-tick into enter/exit events with
// hysteresis at the boundary.
package interest

import (
	"math"

	"github.com/automoto/netcode/shared/gamemath"
	"github.com/automoto/netcode/shared/protocol"
)

// CellKey addresses one spatial-grid bucket.
type CellKey struct {
	X, Y int
}

type gridEntry struct {
	cells []CellKey
	pos   gamemath.Vec2
}

// Grid is the spatial hash. Entities register into every cell their bounds
// overlap. Only the interest manager mutates it, during its tick phase.
type Grid struct {
	cellSize    float64
	invCellSize float64
	cells       map[CellKey][]protocol.EntityID
	entries     map[protocol.EntityID]*gridEntry
}

const defaultCellSize = 64.0

// NewGrid creates a grid with the given cell size in world units.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = defaultCellSize
	}
	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cells:       make(map[CellKey][]protocol.EntityID),
		entries:     make(map[protocol.EntityID]*gridEntry),
	}
}

// Upsert registers or moves an entity. pos is the entity center, halfW and
// halfH its half-extents (zero for point entities).
func (g *Grid) Upsert(id protocol.EntityID, pos gamemath.Vec2, halfW, halfH float64) {
	entry, existed := g.entries[id]
	if existed {
		g.removeFromCells(id, entry.cells)
	}
	cells := g.cellsForBounds(pos, halfW, halfH)
	g.entries[id] = &gridEntry{cells: cells, pos: pos}
	for _, c := range cells {
		g.cells[c] = append(g.cells[c], id)
	}
}

// Remove unregisters an entity. Unknown ids are a no-op.
func (g *Grid) Remove(id protocol.EntityID) {
	entry, ok := g.entries[id]
	if !ok {
		return
	}
	g.removeFromCells(id, entry.cells)
	delete(g.entries, id)
}

// Pos returns the registered center of an entity.
func (g *Grid) Pos(id protocol.EntityID) (gamemath.Vec2, bool) {
	entry, ok := g.entries[id]
	if !ok {
		return gamemath.Vec2{}, false
	}
	return entry.pos, true
}

// Len returns the number of registered entities.
func (g *Grid) Len() int { return len(g.entries) }

// Each calls fn for every registered entity.
func (g *Grid) Each(fn func(protocol.EntityID)) {
	for id := range g.entries {
		fn(id)
	}
}

// QueryCircle returns candidate entities whose cells fall within radius of
// center. Candidates are cell-granular; callers apply the exact distance
// test.
func (g *Grid) QueryCircle(center gamemath.Vec2, radius float64) []protocol.EntityID {
	minX := int(math.Floor((center.X - radius) * g.invCellSize))
	maxX := int(math.Floor((center.X + radius) * g.invCellSize))
	minY := int(math.Floor((center.Y - radius) * g.invCellSize))
	maxY := int(math.Floor((center.Y + radius) * g.invCellSize))

	seen := make(map[protocol.EntityID]struct{})
	var out []protocol.EntityID
	for cy := minY; cy <= maxY; cy++ {
		for cx := minX; cx <= maxX; cx++ {
			for _, id := range g.cells[CellKey{X: cx, Y: cy}] {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

func (g *Grid) removeFromCells(id protocol.EntityID, cells []CellKey) {
	for _, c := range cells {
		bucket := g.cells[c]
		for i := range bucket {
			if bucket[i] != id {
				continue
			}
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
		if len(bucket) == 0 {
			delete(g.cells, c)
		} else {
			g.cells[c] = bucket
		}
	}
}

func (g *Grid) cellsForBounds(pos gamemath.Vec2, halfW, halfH float64) []CellKey {
	minX := int(math.Floor((pos.X - halfW) * g.invCellSize))
	maxX := int(math.Floor((pos.X + halfW) * g.invCellSize))
	minY := int(math.Floor((pos.Y - halfH) * g.invCellSize))
	maxY := int(math.Floor((pos.Y + halfH) * g.invCellSize))

	cells := make([]CellKey, 0, (maxX-minX+1)*(maxY-minY+1))
	for cy := minY; cy <= maxY; cy++ {
		for cx := minX; cx <= maxX; cx++ {
			cells = append(cells, CellKey{X: cx, Y: cy})
		}
	}
	return cells
}
