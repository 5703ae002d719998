package conquest

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord is an axial hex coordinate. The implicit cube coordinate s = -q - r.
type Coord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// Directions are the six axial neighbour offsets, starting east and turning
// counter-clockwise.
var Directions = [6]Coord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// S returns the third cube coordinate.
func (c Coord) S() int {
	return -c.Q - c.R
}

// ID returns the canonical tile id for the coordinate ("q,r").
func (c Coord) ID() string {
	return strconv.Itoa(c.Q) + "," + strconv.Itoa(c.R)
}

// Add returns c offset by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{Q: c.Q + d.Q, R: c.R + d.R}
}

// Neighbors returns the six adjacent coordinates.
func (c Coord) Neighbors() [6]Coord {
	var out [6]Coord
	for i, d := range Directions {
		out[i] = c.Add(d)
	}
	return out
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b Coord) int {
	return max(abs(a.Q-b.Q), abs(a.R-b.R), abs(a.S()-b.S()))
}

// ParseTileID parses a "q,r" tile id.
func ParseTileID(id string) (Coord, error) {
	qs, rs, ok := strings.Cut(id, ",")
	if !ok {
		return Coord{}, fmt.Errorf("malformed tile id %q", id)
	}
	q, err := strconv.Atoi(strings.TrimSpace(qs))
	if err != nil {
		return Coord{}, fmt.Errorf("malformed tile id %q: %w", id, err)
	}
	r, err := strconv.Atoi(strings.TrimSpace(rs))
	if err != nil {
		return Coord{}, fmt.Errorf("malformed tile id %q: %w", id, err)
	}
	return Coord{Q: q, R: r}, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Tile is a single hex on the map. Terrain is fixed once the map is generated.
type Tile struct {
	ID       string          `json:"id"`
	Coord    Coord           `json:"coord"`
	Terrain  Terrain         `json:"terrain"`
	Owner    string          `json:"owner,omitempty"`
	CityID   string          `json:"city_id,omitempty"`
	Explored map[string]bool `json:"explored,omitempty"` // nation id -> explored
}

// NeighborTiles returns the existing tiles adjacent to id, in direction order.
func (gs *GameState) NeighborTiles(id string) []*Tile {
	t := gs.Tiles[id]
	if t == nil {
		return nil
	}
	out := make([]*Tile, 0, 6)
	for _, c := range t.Coord.Neighbors() {
		if n := gs.Tiles[c.ID()]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Adjacent reports whether two tile ids are neighbours.
func (gs *GameState) Adjacent(a, b string) bool {
	ta, tb := gs.Tiles[a], gs.Tiles[b]
	if ta == nil || tb == nil {
		return false
	}
	return Distance(ta.Coord, tb.Coord) == 1
}

// SeaAdjacent reports whether the tile touches at least one sea tile.
func (gs *GameState) SeaAdjacent(id string) bool {
	for _, n := range gs.NeighborTiles(id) {
		if n.Terrain == Sea {
			return true
		}
	}
	return false
}
