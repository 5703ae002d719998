package conquest

import (
	"slices"
	"sort"
)

// StacksOwnedBy returns a nation's stacks ordered by tile then class.
func (gs *GameState) StacksOwnedBy(owner string) []UnitStack {
	var out []UnitStack
	for _, s := range gs.Stacks {
		if s.Owner == owner && s.Count > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tile != out[j].Tile {
			return out[i].Tile < out[j].Tile
		}
		return out[i].Class < out[j].Class
	})
	return out
}

// Income projects a nation's next accrual without applying it.
func (gs *GameState) Income(nation string) ResourceDelta {
	d := ResourceDelta{Nation: nation, Specialty: make(map[string]int), Produced: make(Troops)}
	for _, c := range gs.CitiesOf(nation) {
		gold, food, spec := gs.CityYield(c)
		d.Gold += gold
		d.Food += food
		if spec > 0 && c.Specialty.Type != "" {
			d.Specialty[c.Specialty.Type] += spec
		}
		if out := c.BuildingLevel(BuildingBarracks) * gs.Rules.BarracksOutput; out > 0 {
			d.Produced[Infantry] += out
		}
	}
	d.UpkeepGold, d.UpkeepFood = gs.Upkeep(nation)
	d.Gold -= d.UpkeepGold
	d.Food -= d.UpkeepFood
	return d
}

// ReachableFor returns the tiles a mover's troops can reach from a tile this
// turn, using the group's movement allowance and the ownership rules.
func (gs *GameState) ReachableFor(mover, from string, classes []UnitClass) map[string]int {
	if len(classes) == 0 {
		return map[string]int{}
	}
	budget := gs.Rules.GroupMovement(classes)
	return ReachableTiles(gs, from, budget, classes, TraversalPredicate(gs, mover))
}

// sightSources returns the tiles a nation sees from.
func (gs *GameState) sightSources(nation string) []*Tile {
	seen := make(map[string]bool)
	var out []*Tile
	add := func(id string) {
		if t := gs.Tiles[id]; t != nil && !seen[id] {
			seen[id] = true
			out = append(out, t)
		}
	}
	for _, c := range gs.CitiesOf(nation) {
		add(c.Tile)
	}
	for _, s := range gs.Stacks {
		if s.Owner == nation {
			add(s.Tile)
		}
	}
	for _, s := range gs.Spies {
		if s.Owner == nation {
			add(s.Tile)
		}
	}
	return out
}

func (gs *GameState) ownSight(nation string) map[string]bool {
	vis := make(map[string]bool)
	sources := gs.sightSources(nation)
	for id, t := range gs.Tiles {
		for _, src := range sources {
			if Distance(src.Coord, t.Coord) <= gs.Rules.VisionRadius {
				vis[id] = true
				break
			}
		}
	}
	return vis
}

// Visible returns the tiles a nation currently sees, including what nations
// sharing vision with it see.
func (gs *GameState) Visible(nation string) map[string]bool {
	vis := gs.ownSight(nation)
	for giver, receivers := range gs.VisionShares {
		for _, r := range receivers {
			if r == nation {
				for id := range gs.ownSight(giver) {
					vis[id] = true
				}
			}
		}
	}
	return vis
}

// UpdateVision marks every currently visible tile as explored.
func (gs *GameState) UpdateVision() {
	for _, id := range gs.SortedNationIDs() {
		if gs.Nations[id].Eliminated {
			continue
		}
		for tile := range gs.Visible(id) {
			t := gs.Tiles[tile]
			if t.Explored == nil {
				t.Explored = make(map[string]bool)
			}
			t.Explored[id] = true
		}
	}
}

// ViewFor returns a copy of the state as one nation may see it: unexplored
// tiles are dropped, foreign troops outside current sight are hidden and
// other nations' treasuries, orders and trades are withheld.
func (gs *GameState) ViewFor(nation string) *GameState {
	v := gs.Clone()
	vis := gs.Visible(nation)
	for id, t := range v.Tiles {
		if !vis[id] && !t.Explored[nation] {
			delete(v.Tiles, id)
			continue
		}
		t.Explored = nil
	}
	for id, c := range v.Cities {
		if v.Tiles[c.Tile] == nil {
			delete(v.Cities, id)
			continue
		}
		if c.Owner != nation {
			c.Recruits = nil
			c.DefenseStrategy = ""
		}
	}
	for id, n := range v.Nations {
		if id != nation {
			n.Treasury = Treasury{}
		}
	}
	keepStacks := v.Stacks[:0]
	for _, s := range v.Stacks {
		if s.Owner == nation || vis[s.Tile] {
			keepStacks = append(keepStacks, s)
		}
	}
	v.Stacks = keepStacks
	keepSpies := v.Spies[:0]
	for _, s := range v.Spies {
		if s.Owner == nation {
			keepSpies = append(keepSpies, s)
		}
	}
	v.Spies = keepSpies
	v.AutoMoves = v.AutoMovesOf(nation)
	v.Battlefields = v.BattlefieldsOf(nation)
	v.Trades = v.TradesOf(nation)
	var news []NewsItem
	for _, n := range v.News {
		if !privateNews[n.Kind] || slices.Contains(n.Nations, nation) {
			news = append(news, n)
		}
	}
	v.News = news
	return v
}

// privateNews kinds are only shown to the nations involved.
var privateNews = map[NewsKind]bool{
	NewsTrade:    true,
	NewsBuild:    true,
	NewsRecruit:  true,
	NewsAutoMove: true,
}
