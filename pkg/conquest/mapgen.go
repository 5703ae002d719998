package conquest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// NationSpec names a nation to place on a generated map.
type NationSpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MapOptions control map generation.
type MapOptions struct {
	Radius        int
	Seed          int64
	Nations       []NationSpec
	NeutralCities int
	StartGold     int
	StartFood     int
	StartTroops   Troops
	Rules         *Rules
}

// DefaultMapOptions returns a small map for the given nations.
func DefaultMapOptions(seed int64, nations []NationSpec) MapOptions {
	return MapOptions{
		Radius:        8,
		Seed:          seed,
		Nations:       nations,
		NeutralCities: 3 * len(nations),
		StartGold:     300,
		StartFood:     300,
		StartTroops:   Troops{Infantry: 60, Archer: 20, Cavalry: 10},
	}
}

var cityNames = []string{
	"Asterhold", "Brightwater", "Caldmoor", "Dunmere", "Eastmarch", "Fallowby",
	"Greywick", "Highcairn", "Ironford", "Juniper Reach", "Kestrel", "Lowhaven",
	"Marrowgate", "Northwold", "Oakenshaw", "Pellridge", "Quarry End", "Redfen",
	"Saltcliff", "Thornbury", "Umberlee", "Valewatch", "Westerby", "Yarrowmoor",
}

// GenerateMap builds a seeded hex map with one capital per nation and
// unowned cities scattered between them.
func GenerateMap(opts MapOptions) *GameState {
	rules := DefaultRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	gs := NewGameState(rules)
	if opts.Radius <= 0 {
		opts.Radius = 8
	}
	elev := opensimplex.NewNormalized(opts.Seed)
	moist := opensimplex.NewNormalized(opts.Seed + 1)
	rng := rand.New(rand.NewSource(opts.Seed))

	rad := opts.Radius
	for q := -rad; q <= rad; q++ {
		for r := -rad; r <= rad; r++ {
			c := Coord{Q: q, R: r}
			if Distance(c, Coord{}) > rad {
				continue
			}
			x, y := cartesian(c)
			e := octave(elev, x, y, 4, 0.12)
			m := octave(moist, x, y, 3, 0.09)
			falloff := 1 - math.Pow(math.Hypot(x, y)/float64(rad+1), 3)
			e *= max(falloff, 0)
			gs.Tiles[c.ID()] = &Tile{ID: c.ID(), Coord: c, Terrain: terrainFor(e, m)}
		}
	}
	markCoasts(gs)

	var placed []Coord
	for i, spec := range opts.Nations {
		angle := 2 * math.Pi * float64(i) / float64(max(1, len(opts.Nations)))
		tx := math.Cos(angle) * float64(rad) * 0.6
		ty := math.Sin(angle) * float64(rad) * 0.6
		tile := gs.siteNear(tx, ty, placed, 4)
		placed = append(placed, tile.Coord)

		city := gs.foundCity(fmt.Sprintf("c-%d", len(gs.Cities)+1), cityNames[len(gs.Cities)%len(cityNames)], tile, GradeCapital, spec.ID)
		gs.Nations[spec.ID] = &Nation{
			ID:       spec.ID,
			Name:     spec.Name,
			Capital:  city.ID,
			Treasury: Treasury{Gold: opts.StartGold, Food: opts.StartFood, Specialty: map[string]int{}},
		}
		for _, n := range gs.NeighborTiles(tile.ID) {
			if n.Terrain != Sea && n.Owner == "" {
				n.Owner = spec.ID
			}
		}
		for _, cl := range opts.StartTroops.Classes() {
			gs.AddUnits(tile.ID, spec.ID, cl, opts.StartTroops[cl])
		}
	}

	grades := []CityGrade{GradeMajor, GradeNormal, GradeNormal, GradeTown, GradeTown}
	ids := sortedTileIDs(gs)
	for n := 0; n < opts.NeutralCities; n++ {
		var candidates []*Tile
		for _, id := range ids {
			t := gs.Tiles[id]
			if t.Terrain == Sea || t.Terrain == Mountain || t.CityID != "" || t.Owner != "" {
				continue
			}
			if nearAny(t.Coord, placed, 3) {
				continue
			}
			candidates = append(candidates, t)
		}
		if len(candidates) == 0 {
			break
		}
		t := candidates[rng.Intn(len(candidates))]
		placed = append(placed, t.Coord)
		gs.foundCity(fmt.Sprintf("c-%d", len(gs.Cities)+1), cityNames[len(gs.Cities)%len(cityNames)], t, grades[rng.Intn(len(grades))], "")
	}
	gs.UpdateVision()
	return gs
}

func (gs *GameState) foundCity(id, name string, t *Tile, grade CityGrade, owner string) *City {
	spec := gs.Rules.Specialties[t.Terrain]
	if spec == "" {
		spec = "grain"
	}
	c := &City{
		ID:         id,
		Name:       name,
		Tile:       t.ID,
		Grade:      grade,
		Owner:      owner,
		Population: gs.Rules.Grades[grade].MaxPopulation / 5,
		Happiness:  happinessBase - 10,
		TaxRate:    10,
		Specialty:  SpecialtyStock{Type: spec},
	}
	gs.Cities[id] = c
	t.CityID = id
	t.Owner = owner
	return c
}

// siteNear returns the land tile closest to a cartesian point that keeps
// minGap from every placed coordinate, turning a tile into plains if the
// map has no land there.
func (gs *GameState) siteNear(x, y float64, placed []Coord, minGap int) *Tile {
	var best *Tile
	bestD := math.MaxFloat64
	for _, id := range sortedTileIDs(gs) {
		t := gs.Tiles[id]
		if t.Terrain == Sea || t.Terrain == Mountain || t.CityID != "" || nearAny(t.Coord, placed, minGap-1) {
			continue
		}
		tx, ty := cartesian(t.Coord)
		if d := math.Hypot(tx-x, ty-y); d < bestD {
			best, bestD = t, d
		}
	}
	if best != nil {
		return best
	}
	for _, id := range sortedTileIDs(gs) {
		t := gs.Tiles[id]
		if t.CityID != "" {
			continue
		}
		tx, ty := cartesian(t.Coord)
		if d := math.Hypot(tx-x, ty-y); d < bestD {
			best, bestD = t, d
		}
	}
	best.Terrain = Plains
	if gs.SeaAdjacent(best.ID) {
		best.Terrain = Coast
	}
	return best
}

func nearAny(c Coord, placed []Coord, within int) bool {
	for _, p := range placed {
		if Distance(c, p) <= within {
			return true
		}
	}
	return false
}

func sortedTileIDs(gs *GameState) []string {
	ids := make([]string, 0, len(gs.Tiles))
	for id := range gs.Tiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// cartesian maps an axial coordinate to the plane for noise sampling.
func cartesian(c Coord) (float64, float64) {
	return float64(c.Q) + float64(c.R)*0.5, float64(c.R) * math.Sqrt(3) / 2
}

func octave(n opensimplex.Noise, x, y float64, octaves int, freq float64) float64 {
	total, amp, norm := 0.0, 1.0, 0.0
	for range octaves {
		total += n.Eval2(x*freq, y*freq) * amp
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return total / norm
}

func terrainFor(elev, moist float64) Terrain {
	switch {
	case elev < 0.22:
		return Sea
	case elev > 0.7:
		return Mountain
	case elev > 0.58:
		return Hills
	case moist > 0.68:
		return Swamp
	case moist > 0.52:
		return Forest
	case moist < 0.3:
		return Desert
	}
	return Plains
}

// markCoasts turns plains touching the sea into coast.
func markCoasts(gs *GameState) {
	for _, id := range sortedTileIDs(gs) {
		t := gs.Tiles[id]
		if t.Terrain == Plains && gs.SeaAdjacent(id) {
			t.Terrain = Coast
		}
	}
}
