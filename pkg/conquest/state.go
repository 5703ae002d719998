package conquest

import (
	"fmt"
	"slices"
	"sort"
)

// Phase is the scheduler state of a room.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseAction     Phase = "action"
	PhaseResolution Phase = "resolution"
	PhaseEnded      Phase = "ended"
)

// Treasury holds a nation's spendable resources.
type Treasury struct {
	Gold      int            `json:"gold"`
	Food      int            `json:"food"`
	Specialty map[string]int `json:"specialty,omitempty"`
}

// Nation is a player's faction in a room.
type Nation struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Player     string   `json:"player,omitempty"` // user id; empty until claimed
	Capital    string   `json:"capital,omitempty"`
	Treasury   Treasury `json:"treasury"`
	Eliminated bool     `json:"eliminated,omitempty"`
}

// SpecialtyStock is a city's local specialty good.
type SpecialtyStock struct {
	Type  string `json:"type"`
	Stock int    `json:"stock"`
}

// Building is one building in a city. TurnsRemaining > 0 means the next level
// is under construction; Level counts completed levels.
type Building struct {
	Kind           BuildingKind `json:"kind"`
	Level          int          `json:"level"`
	TurnsRemaining int          `json:"turns_remaining"`
}

// Complete reports whether no construction is pending.
func (b Building) Complete() bool { return b.TurnsRemaining == 0 }

// RecruitOrder is a batch of troops in training.
type RecruitOrder struct {
	Class          UnitClass `json:"class"`
	Amount         int       `json:"amount"`
	TurnsRemaining int       `json:"turns_remaining"`
}

// City is a settlement on a tile.
type City struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Tile            string         `json:"tile"`
	Grade           CityGrade      `json:"grade"`
	Owner           string         `json:"owner,omitempty"`
	Population      int            `json:"population"`
	Happiness       int            `json:"happiness"`
	Gold            int            `json:"gold"` // yield of the latest accrual
	Food            int            `json:"food"` // yield of the latest accrual
	TaxRate         int            `json:"tax_rate"`
	Specialty       SpecialtyStock `json:"specialty"`
	Buildings       []Building     `json:"buildings,omitempty"`
	Recruits        []RecruitOrder `json:"recruits,omitempty"`
	DefenseStrategy string         `json:"defense_strategy,omitempty"`
}

// BuildingLevel returns the completed level of a building kind.
func (c *City) BuildingLevel(kind BuildingKind) int {
	for _, b := range c.Buildings {
		if b.Kind == kind {
			return b.Level
		}
	}
	return 0
}

// DefenseLevel is the grade's base defence plus completed walls.
func (c *City) DefenseLevel(r *Rules) int {
	return r.Grades[c.Grade].Defense + c.BuildingLevel(BuildingWalls)
}

// UnitStack is a count of one unit class owned by one nation on one tile.
type UnitStack struct {
	Tile  string    `json:"tile"`
	Owner string    `json:"owner"`
	Class UnitClass `json:"class"`
	Count int       `json:"count"`
}

// SpyAgent is an individually tracked spy.
type SpyAgent struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Tile  string `json:"tile"`
}

// Troops is a unit count per class.
type Troops map[UnitClass]int

// Total returns the number of units across all classes.
func (t Troops) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}

// Classes returns the classes with a positive count in canonical order.
func (t Troops) Classes() []UnitClass {
	var out []UnitClass
	for _, c := range AllUnitClasses() {
		if t[c] > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Clone copies the troop map.
func (t Troops) Clone() Troops {
	out := make(Troops, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// GameState is the authoritative state of one room.
type GameState struct {
	Turn         int                  `json:"turn"`
	Tiles        map[string]*Tile     `json:"tiles"`
	Cities       map[string]*City     `json:"cities"`
	Nations      map[string]*Nation   `json:"nations"`
	Stacks       []UnitStack          `json:"stacks"`
	Spies        []SpyAgent           `json:"spies,omitempty"`
	AutoMoves    []*AutoMoveOrder     `json:"auto_moves,omitempty"`
	Battlefields []*Battlefield       `json:"battlefields,omitempty"`
	Relations    map[string]*Relation `json:"relations,omitempty"` // keyed by PairKey
	Trades       []*TradeOffer        `json:"trades,omitempty"`
	VisionShares map[string][]string  `json:"vision_shares,omitempty"` // giver -> receivers
	News         []NewsItem           `json:"news,omitempty"`
	NextID       int                  `json:"next_id"`
	Ended        bool                 `json:"ended,omitempty"`
	Winner       string               `json:"winner,omitempty"`
	Rules        Rules                `json:"rules"`

	// unreported collects news added since the last resolution, before the
	// log cap drops anything.
	unreported []NewsItem
}

// NewGameState returns an empty state with the given rules.
func NewGameState(rules Rules) *GameState {
	return &GameState{
		Turn:      1,
		Tiles:     make(map[string]*Tile),
		Cities:    make(map[string]*City),
		Nations:   make(map[string]*Nation),
		Relations: make(map[string]*Relation),
		Rules:     rules,
	}
}

func (gs *GameState) newID(prefix string) string {
	gs.NextID++
	return fmt.Sprintf("%s-%d", prefix, gs.NextID)
}

// CityAt returns the city on a tile, or nil.
func (gs *GameState) CityAt(tile string) *City {
	t := gs.Tiles[tile]
	if t == nil || t.CityID == "" {
		return nil
	}
	return gs.Cities[t.CityID]
}

// SortedNationIDs returns nation ids in lexical order.
func (gs *GameState) SortedNationIDs() []string {
	ids := make([]string, 0, len(gs.Nations))
	for id := range gs.Nations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedCityIDs returns city ids in lexical order.
func (gs *GameState) SortedCityIDs() []string {
	ids := make([]string, 0, len(gs.Cities))
	for id := range gs.Cities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// stackIndex returns the index of the (tile, owner, class) stack, or -1.
func (gs *GameState) stackIndex(tile, owner string, class UnitClass) int {
	for i := range gs.Stacks {
		s := &gs.Stacks[i]
		if s.Tile == tile && s.Owner == owner && s.Class == class {
			return i
		}
	}
	return -1
}

// StackCount returns how many units of a class an owner has on a tile.
func (gs *GameState) StackCount(tile, owner string, class UnitClass) int {
	if i := gs.stackIndex(tile, owner, class); i >= 0 {
		return gs.Stacks[i].Count
	}
	return 0
}

// AddUnits adds n units to the (tile, owner, class) stack, creating it.
func (gs *GameState) AddUnits(tile, owner string, class UnitClass, n int) {
	if n <= 0 {
		return
	}
	if i := gs.stackIndex(tile, owner, class); i >= 0 {
		gs.Stacks[i].Count += n
		return
	}
	gs.Stacks = append(gs.Stacks, UnitStack{Tile: tile, Owner: owner, Class: class, Count: n})
}

// RemoveUnits removes n units from a stack. Empty stacks are dropped.
func (gs *GameState) RemoveUnits(tile, owner string, class UnitClass, n int) error {
	if n <= 0 {
		return nil
	}
	i := gs.stackIndex(tile, owner, class)
	if i < 0 || gs.Stacks[i].Count < n {
		return fmt.Errorf("%w: %s has fewer than %d %s at %s", ErrInsufficientUnits, owner, n, class, tile)
	}
	gs.Stacks[i].Count -= n
	if gs.Stacks[i].Count == 0 {
		gs.Stacks = slices.Delete(gs.Stacks, i, i+1)
	}
	return nil
}

// MoveUnits relocates troops of one owner between tiles.
func (gs *GameState) MoveUnits(from, to, owner string, troops Troops) error {
	for _, c := range troops.Classes() {
		if gs.StackCount(from, owner, c) < troops[c] {
			return fmt.Errorf("%w: %s has fewer than %d %s at %s", ErrInsufficientUnits, owner, troops[c], c, from)
		}
	}
	for _, c := range troops.Classes() {
		_ = gs.RemoveUnits(from, owner, c, troops[c])
		gs.AddUnits(to, owner, c, troops[c])
	}
	return nil
}

// ApplyLosses subtracts losses from an owner's stacks on a tile, clamped at zero.
func (gs *GameState) ApplyLosses(tile, owner string, losses Troops) {
	for _, c := range losses.Classes() {
		n := min(losses[c], gs.StackCount(tile, owner, c))
		_ = gs.RemoveUnits(tile, owner, c, n)
	}
}

// OwnersAt returns the nations with units on a tile, sorted.
func (gs *GameState) OwnersAt(tile string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range gs.Stacks {
		if s.Tile == tile && s.Count > 0 && !seen[s.Owner] {
			seen[s.Owner] = true
			out = append(out, s.Owner)
		}
	}
	sort.Strings(out)
	return out
}

// ForeignUnitsAt reports whether anyone other than owner has units on tile.
func (gs *GameState) ForeignUnitsAt(tile, owner string) bool {
	for _, s := range gs.Stacks {
		if s.Tile == tile && s.Owner != owner && s.Count > 0 {
			return true
		}
	}
	return false
}

// prune removes empty stacks.
func (gs *GameState) prune() {
	gs.Stacks = slices.DeleteFunc(gs.Stacks, func(s UnitStack) bool { return s.Count <= 0 })
}

// SpyByID returns the spy with the given id, or nil.
func (gs *GameState) SpyByID(id string) *SpyAgent {
	for i := range gs.Spies {
		if gs.Spies[i].ID == id {
			return &gs.Spies[i]
		}
	}
	return nil
}

func (gs *GameState) removeSpy(id string) {
	gs.Spies = slices.DeleteFunc(gs.Spies, func(s SpyAgent) bool { return s.ID == id })
}

// SetTileOwner transfers a tile, and the city on it, to a new owner.
func (gs *GameState) SetTileOwner(tile, owner string) {
	t := gs.Tiles[tile]
	if t == nil {
		return
	}
	t.Owner = owner
	if c := gs.CityAt(tile); c != nil {
		c.Owner = owner
	}
}

// Clone returns a deep copy of the state.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		Turn:   gs.Turn,
		NextID: gs.NextID,
		Ended:  gs.Ended,
		Winner: gs.Winner,
		Rules:  gs.Rules,
	}
	c.Tiles = make(map[string]*Tile, len(gs.Tiles))
	for id, t := range gs.Tiles {
		tc := *t
		if t.Explored != nil {
			tc.Explored = make(map[string]bool, len(t.Explored))
			for k, v := range t.Explored {
				tc.Explored[k] = v
			}
		}
		c.Tiles[id] = &tc
	}
	c.Cities = make(map[string]*City, len(gs.Cities))
	for id, city := range gs.Cities {
		cc := *city
		cc.Buildings = slices.Clone(city.Buildings)
		cc.Recruits = slices.Clone(city.Recruits)
		c.Cities[id] = &cc
	}
	c.Nations = make(map[string]*Nation, len(gs.Nations))
	for id, n := range gs.Nations {
		nc := *n
		if n.Treasury.Specialty != nil {
			nc.Treasury.Specialty = make(map[string]int, len(n.Treasury.Specialty))
			for k, v := range n.Treasury.Specialty {
				nc.Treasury.Specialty[k] = v
			}
		}
		c.Nations[id] = &nc
	}
	c.Stacks = slices.Clone(gs.Stacks)
	c.Spies = slices.Clone(gs.Spies)
	for _, o := range gs.AutoMoves {
		oc := *o
		oc.Path = slices.Clone(o.Path)
		c.AutoMoves = append(c.AutoMoves, &oc)
	}
	for _, b := range gs.Battlefields {
		bc := *b
		bc.Participants = slices.Clone(b.Participants)
		c.Battlefields = append(c.Battlefields, &bc)
	}
	c.Relations = make(map[string]*Relation, len(gs.Relations))
	for k, r := range gs.Relations {
		rc := *r
		c.Relations[k] = &rc
	}
	for _, t := range gs.Trades {
		tc := *t
		c.Trades = append(c.Trades, &tc)
	}
	if gs.VisionShares != nil {
		c.VisionShares = make(map[string][]string, len(gs.VisionShares))
		for k, v := range gs.VisionShares {
			c.VisionShares[k] = slices.Clone(v)
		}
	}
	c.News = slices.Clone(gs.News)
	return c
}
