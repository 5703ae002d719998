package conquest

import (
	"fmt"
	"math"
)

const (
	maxDefenseStrategy   = 500
	civilWarGarrisonLoss = 0.25
	unrestPenalty        = 10
	happinessStep        = 5
	happinessBase        = 70
)

// ResourceDelta is the net change in one nation's treasury during accrual.
type ResourceDelta struct {
	Nation     string         `json:"nation"`
	Gold       int            `json:"gold"`
	Food       int            `json:"food"`
	Specialty  map[string]int `json:"specialty,omitempty"`
	UpkeepGold int            `json:"upkeep_gold"`
	UpkeepFood int            `json:"upkeep_food"`
	Produced   Troops         `json:"produced,omitempty"`
}

// CityYield returns the gold, food and specialty a city produces per turn.
func (gs *GameState) CityYield(c *City) (gold, food, specialty int) {
	g := gs.Rules.Grades[c.Grade]
	gold = g.Gold + g.Gold*c.BuildingLevel(BuildingMarket)/4 + c.Population*c.TaxRate/2000
	food = g.Food + g.Food*c.BuildingLevel(BuildingFarm)/4
	if c.BuildingLevel(BuildingHarbor) > 0 {
		food += 10
	}
	return gold, food, g.Specialty
}

// Upkeep returns what a nation's troops cost per turn.
func (gs *GameState) Upkeep(nation string) (gold, food int) {
	for _, class := range AllUnitClasses() {
		n := gs.UnitTotal(nation, class)
		cost := gs.Rules.Units[class]
		gold += n * cost.UpkeepGold / 10
		food += n * cost.UpkeepFood / 10
	}
	return gold, food
}

// CitiesOf returns a nation's cities ordered by id.
func (gs *GameState) CitiesOf(nation string) []*City {
	var out []*City
	for _, id := range gs.SortedCityIDs() {
		if c := gs.Cities[id]; c.Owner == nation {
			out = append(out, c)
		}
	}
	return out
}

// Accrue collects city yields, produces barracks troops, grows cities and
// charges troop upkeep for every nation.
func (gs *GameState) Accrue() []ResourceDelta {
	var deltas []ResourceDelta
	for _, id := range gs.SortedNationIDs() {
		n := gs.Nations[id]
		if n.Eliminated {
			continue
		}
		d := ResourceDelta{Nation: id, Specialty: make(map[string]int), Produced: make(Troops)}
		cities := gs.CitiesOf(id)
		for _, c := range cities {
			gold, food, spec := gs.CityYield(c)
			c.Gold, c.Food, c.Specialty.Stock = gold, food, spec
			d.Gold += gold
			d.Food += food
			if spec > 0 && c.Specialty.Type != "" {
				d.Specialty[c.Specialty.Type] += spec
			}
			if out := c.BuildingLevel(BuildingBarracks) * gs.Rules.BarracksOutput; out > 0 {
				gs.AddUnits(c.Tile, id, Infantry, out)
				d.Produced[Infantry] += out
			}
			c.grow(gs.Rules.Grades[c.Grade].MaxPopulation)
		}
		d.UpkeepGold, d.UpkeepFood = gs.Upkeep(id)
		d.Gold -= d.UpkeepGold
		d.Food -= d.UpkeepFood

		t := &n.Treasury
		t.Gold += d.Gold
		t.Food += d.Food
		if len(d.Specialty) > 0 && t.Specialty == nil {
			t.Specialty = make(map[string]int)
		}
		for k, v := range d.Specialty {
			t.Specialty[k] += v
		}
		if t.Gold < 0 || t.Food < 0 {
			// Unpaid armies stir unrest.
			t.Gold, t.Food = max(t.Gold, 0), max(t.Food, 0)
			for _, c := range cities {
				c.Happiness = max(0, c.Happiness-unrestPenalty)
			}
		}
		deltas = append(deltas, d)
	}
	return deltas
}

func (c *City) grow(limit int) {
	if c.Population < limit {
		c.Population = min(limit, c.Population+c.Population/50+10)
	}
	target := happinessBase - c.TaxRate
	switch {
	case c.Happiness < target:
		c.Happiness = min(target, c.Happiness+happinessStep)
	case c.Happiness > target:
		c.Happiness = max(target, c.Happiness-happinessStep)
	}
}

// TickConstruction advances buildings and recruits by one turn and returns
// what finished.
func (gs *GameState) TickConstruction() []NewsItem {
	var done []NewsItem
	for _, id := range gs.SortedCityIDs() {
		c := gs.Cities[id]
		for i := range c.Buildings {
			b := &c.Buildings[i]
			if b.TurnsRemaining == 0 {
				continue
			}
			b.TurnsRemaining--
			if b.TurnsRemaining == 0 {
				b.Level++
				done = append(done, gs.addNews(NewsBuild, []string{c.Owner}, "%s completed %s level %d", c.Name, b.Kind, b.Level))
			}
		}
		var pending []RecruitOrder
		for _, r := range c.Recruits {
			r.TurnsRemaining--
			if r.TurnsRemaining > 0 {
				pending = append(pending, r)
				continue
			}
			if c.Owner == "" {
				continue
			}
			gs.deliverRecruits(c, r)
			done = append(done, gs.addNews(NewsRecruit, []string{c.Owner}, "%s trained %d %s", c.Name, r.Amount, r.Class))
		}
		c.Recruits = pending
	}
	return done
}

func (gs *GameState) deliverRecruits(c *City, r RecruitOrder) {
	if r.Class != Spy {
		gs.AddUnits(c.Tile, c.Owner, r.Class, r.Amount)
		return
	}
	for range r.Amount {
		gs.Spies = append(gs.Spies, SpyAgent{ID: gs.newID("sp"), Owner: c.Owner, Tile: c.Tile})
	}
}

// ownedCity returns the city if player owns it, or a validation error.
func (gs *GameState) ownedCity(kind IntentKind, player, cityID string) (*City, error) {
	c := gs.Cities[cityID]
	if c == nil {
		return nil, invalid(kind, "unknown city %s", cityID)
	}
	if c.Owner != player {
		return nil, invalid(kind, "%s does not own %s", player, cityID)
	}
	return c, nil
}

// StartBuilding pays for and starts the next level of a building.
func (gs *GameState) StartBuilding(player, cityID string, kind BuildingKind) error {
	c, err := gs.ownedCity(IntentBuild, player, cityID)
	if err != nil {
		return err
	}
	spec, ok := gs.Rules.Buildings[kind]
	if !ok {
		return invalid(IntentBuild, "unknown building %q", kind)
	}
	idx := -1
	for i, b := range c.Buildings {
		if b.Kind == kind {
			idx = i
		}
	}
	if idx >= 0 {
		if !c.Buildings[idx].Complete() {
			return invalid(IntentBuild, "%s already under construction in %s", kind, cityID)
		}
		if c.Buildings[idx].Level >= spec.MaxLevel {
			return invalid(IntentBuild, "%s is at max level in %s", kind, cityID)
		}
	}
	if kind == BuildingHarbor && !gs.SeaAdjacent(c.Tile) {
		return invalid(IntentBuild, "%s is not on the coast", cityID)
	}
	t := &gs.Nations[player].Treasury
	if t.Gold < spec.Gold {
		return fmt.Errorf("%w: %s costs %d gold, treasury holds %d", ErrInsufficientResources, kind, spec.Gold, t.Gold)
	}
	t.Gold -= spec.Gold
	if idx < 0 {
		c.Buildings = append(c.Buildings, Building{Kind: kind})
		idx = len(c.Buildings) - 1
	}
	b := &c.Buildings[idx]
	if spec.Turns <= 0 {
		b.Level++
	} else {
		b.TurnsRemaining = spec.Turns
	}
	return nil
}

// StartRecruit pays for and queues troops drawn from the city's population.
func (gs *GameState) StartRecruit(player, cityID string, class UnitClass, amount int) error {
	c, err := gs.ownedCity(IntentRecruit, player, cityID)
	if err != nil {
		return err
	}
	cost, ok := gs.Rules.Units[class]
	if !ok {
		return invalid(IntentRecruit, "unknown unit class %q", class)
	}
	if amount <= 0 {
		return invalid(IntentRecruit, "amount must be positive")
	}
	if class == Navy && !gs.SeaAdjacent(c.Tile) {
		return invalid(IntentRecruit, "%s is not on the coast", cityID)
	}
	if c.Population < amount {
		return fmt.Errorf("%w: %s has %d people, %d requested", ErrInsufficientResources, cityID, c.Population, amount)
	}
	t := &gs.Nations[player].Treasury
	gold, food := cost.Gold*amount, cost.Food*amount
	if t.Gold < gold || t.Food < food {
		return fmt.Errorf("%w: %d %s cost %d gold and %d food", ErrInsufficientResources, amount, class, gold, food)
	}
	t.Gold -= gold
	t.Food -= food
	c.Population -= amount
	turns := cost.Turns
	if turns <= 0 {
		gs.deliverRecruits(c, RecruitOrder{Class: class, Amount: amount})
		return nil
	}
	c.Recruits = append(c.Recruits, RecruitOrder{Class: class, Amount: amount, TurnsRemaining: turns})
	return nil
}

// SetTax changes a city's tax rate.
func (gs *GameState) SetTax(player, cityID string, rate int) error {
	c, err := gs.ownedCity(IntentTax, player, cityID)
	if err != nil {
		return err
	}
	if rate < 0 || rate > gs.Rules.MaxTaxRate {
		return invalid(IntentTax, "rate %d outside 0..%d", rate, gs.Rules.MaxTaxRate)
	}
	c.TaxRate = rate
	return nil
}

// SetDefense stores a city's standing defence strategy.
func (gs *GameState) SetDefense(player, cityID, strategy string) error {
	c, err := gs.ownedCity(IntentDefense, player, cityID)
	if err != nil {
		return err
	}
	if len(strategy) > maxDefenseStrategy {
		return invalid(IntentDefense, "strategy longer than %d bytes", maxDefenseStrategy)
	}
	c.DefenseStrategy = strategy
	return nil
}

// MoveSpy infiltrates a spy to any tile within spy range, ignoring terrain.
func (gs *GameState) MoveSpy(player, spyID, to string) error {
	s := gs.SpyByID(spyID)
	if s == nil || s.Owner != player {
		return invalid(IntentSpyMove, "unknown spy %s", spyID)
	}
	dest := gs.Tiles[to]
	if dest == nil {
		return invalid(IntentSpyMove, "unknown tile %s", to)
	}
	if d := Distance(gs.Tiles[s.Tile].Coord, dest.Coord); d > gs.Rules.SpyRange {
		return invalid(IntentSpyMove, "%s is %d tiles away, range is %d", to, d, gs.Rules.SpyRange)
	}
	s.Tile = to
	return nil
}

// InciteCivilWar uses a spy inside a foreign city to spark a revolt. An
// unhappy city breaks away and its garrison is bled; otherwise the spy is
// caught. It reports whether the revolt succeeded.
func (gs *GameState) InciteCivilWar(player, spyID, cityID string) (bool, error) {
	s := gs.SpyByID(spyID)
	if s == nil || s.Owner != player {
		return false, invalid(IntentCivilWar, "unknown spy %s", spyID)
	}
	c := gs.Cities[cityID]
	if c == nil {
		return false, invalid(IntentCivilWar, "unknown city %s", cityID)
	}
	if c.Owner == "" || c.Owner == player {
		return false, invalid(IntentCivilWar, "%s is not a foreign city", cityID)
	}
	if s.Tile != c.Tile {
		return false, invalid(IntentCivilWar, "spy %s is not inside %s", spyID, cityID)
	}
	victim := c.Owner
	if c.Happiness >= gs.Rules.CivilWarHappiness {
		gs.removeSpy(spyID)
		gs.addNews(NewsCivilWar, []string{player, victim}, "A %s agent was caught stirring revolt in %s",
			gs.nationName(player), c.Name)
		return false, nil
	}
	garrison := combatTroops(gs.TroopsAt(c.Tile, victim))
	losses := make(Troops)
	for _, cl := range garrison.Classes() {
		losses[cl] = int(math.Round(float64(garrison[cl]) * civilWarGarrisonLoss))
	}
	gs.ApplyLosses(c.Tile, victim, losses)
	gs.SetTileOwner(c.Tile, "")
	c.Happiness = happinessBase - c.TaxRate
	gs.refreshCapitals()
	gs.addNews(NewsCivilWar, []string{victim}, "%s rose in revolt against %s", c.Name, gs.nationName(victim))
	return true, nil
}

var gradeRank = map[CityGrade]int{GradeCapital: 0, GradeMajor: 1, GradeNormal: 2, GradeTown: 3}

// refreshCapitals moves a nation's capital to its best remaining city when
// the old one changed hands.
func (gs *GameState) refreshCapitals() {
	for _, id := range gs.SortedNationIDs() {
		n := gs.Nations[id]
		if c := gs.Cities[n.Capital]; c != nil && c.Owner == id {
			continue
		}
		n.Capital = ""
		best := -1
		for _, c := range gs.CitiesOf(id) {
			if r := gradeRank[c.Grade]; best < 0 || r < best {
				best = r
				n.Capital = c.ID
			}
		}
	}
}
