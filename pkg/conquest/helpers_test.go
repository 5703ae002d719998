package conquest

import "testing"

// newTestState builds a plains disc of the given radius around 0,0 with the
// named nations, each holding 1000 gold and 1000 food.
func newTestState(radius int, nations ...string) *GameState {
	gs := NewGameState(DefaultRules())
	center := Coord{}
	for q := -radius; q <= radius; q++ {
		for r := -radius; r <= radius; r++ {
			c := Coord{Q: q, R: r}
			if Distance(c, center) > radius {
				continue
			}
			gs.Tiles[c.ID()] = &Tile{ID: c.ID(), Coord: c, Terrain: Plains}
		}
	}
	for _, n := range nations {
		gs.Nations[n] = &Nation{ID: n, Name: n, Treasury: Treasury{Gold: 1000, Food: 1000, Specialty: map[string]int{}}}
	}
	return gs
}

func tid(q, r int) string {
	return Coord{Q: q, R: r}.ID()
}

// addCity places a city owned by owner on a tile.
func addCity(gs *GameState, id, tile string, grade CityGrade, owner string) *City {
	c := &City{ID: id, Name: id, Tile: tile, Grade: grade, Owner: owner, Population: 10000, Happiness: 60, TaxRate: 10,
		Specialty: SpecialtyStock{Type: "grain"}}
	gs.Cities[id] = c
	gs.Tiles[tile].CityID = id
	gs.Tiles[tile].Owner = owner
	if n := gs.Nations[owner]; n != nil && n.Capital == "" {
		n.Capital = id
	}
	return c
}

func setWar(gs *GameState, a, b string) {
	r := gs.relation(a, b)
	r.Status = StatusWar
}

func setStatus(gs *GameState, a, b string, s RelationStatus) {
	gs.relation(a, b).Status = s
}

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
