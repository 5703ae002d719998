package bot

import (
	"math/rand"
	"sort"

	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// Tuning for the heuristic bot.
const (
	goldReserve      = 40
	maxRecruitBatch  = 10
	attackAdvantage  = 1.6
	peaceThreshold   = 1.5
	lowHappiness     = 40
	highHappiness    = 70
	relaxedTaxRate   = 10
	standardTaxRate  = 25
	minGarrison      = 2
	maxBuildsPerTurn = 2
)

var buildPriority = []conquest.BuildingKind{
	conquest.BuildingMarket,
	conquest.BuildingFarm,
	conquest.BuildingBarracks,
	conquest.BuildingWalls,
}

// HeuristicStrategy grows the economy, expands into unclaimed land, attacks
// enemies it clearly outnumbers and seeks peace with stronger ones.
type HeuristicStrategy struct{}

func (HeuristicStrategy) Name() string { return "heuristic" }

func (h HeuristicStrategy) GenerateIntents(gs *conquest.GameState, nation string, rng *rand.Rand) []conquest.Intent {
	n := gs.Nations[nation]
	if n == nil || n.Eliminated || gs.Ended {
		return nil
	}
	var out []conquest.Intent
	out = append(out, h.economy(gs, nation)...)
	out = append(out, h.military(gs, nation, rng)...)
	out = append(out, h.battlefields(gs, nation)...)
	out = append(out, h.trades(gs, nation)...)
	out = append(out, h.diplomacy(gs, nation)...)
	return keepValid(gs, out)
}

func constructing(c *conquest.City) bool {
	for _, b := range c.Buildings {
		if !b.Complete() {
			return true
		}
	}
	return false
}

func (HeuristicStrategy) economy(gs *conquest.GameState, nation string) []conquest.Intent {
	var out []conquest.Intent
	gold := gs.Nations[nation].Treasury.Gold
	food := gs.Nations[nation].Treasury.Food
	builds := 0
	for _, c := range gs.CitiesOf(nation) {
		if builds < maxBuildsPerTurn && !constructing(c) {
			for _, kind := range buildPriority {
				spec := gs.Rules.Buildings[kind]
				if c.BuildingLevel(kind) >= spec.MaxLevel || gold-spec.Gold < goldReserve {
					continue
				}
				out = append(out, conquest.Intent{
					Player: nation,
					Kind:   conquest.IntentBuild,
					City:   &conquest.CityPayload{City: c.ID, Building: kind},
				})
				gold -= spec.Gold
				builds++
				break
			}
		}

		cost := gs.Rules.Units[conquest.Infantry]
		if cost.Gold > 0 && food > 0 {
			amount := min(maxRecruitBatch, (gold-goldReserve)/cost.Gold)
			if cost.Food > 0 {
				amount = min(amount, food/cost.Food)
			}
			if amount > 0 {
				out = append(out, conquest.Intent{
					Player: nation,
					Kind:   conquest.IntentRecruit,
					City:   &conquest.CityPayload{City: c.ID, Class: conquest.Infantry, Amount: amount},
				})
				gold -= amount * cost.Gold
				food -= amount * cost.Food
			}
		}

		switch {
		case c.Happiness < lowHappiness && c.TaxRate > relaxedTaxRate:
			out = append(out, taxIntent(nation, c.ID, relaxedTaxRate))
		case c.Happiness > highHappiness && c.TaxRate < standardTaxRate:
			out = append(out, taxIntent(nation, c.ID, standardTaxRate))
		}
	}
	return out
}

func taxIntent(nation, city string, rate int) conquest.Intent {
	return conquest.Intent{
		Player: nation,
		Kind:   conquest.IntentTax,
		City:   &conquest.CityPayload{City: city, Rate: rate},
	}
}

// landTroops groups a nation's movable land troops by tile.
func landTroops(gs *conquest.GameState, nation string) (map[string]conquest.Troops, []string) {
	byTile := make(map[string]conquest.Troops)
	for _, s := range gs.StacksOwnedBy(nation) {
		if s.Class == conquest.Spy || s.Class == conquest.Navy {
			continue
		}
		if byTile[s.Tile] == nil {
			byTile[s.Tile] = make(conquest.Troops)
		}
		byTile[s.Tile][s.Class] += s.Count
	}
	tiles := make([]string, 0, len(byTile))
	for t := range byTile {
		if gs.BattlefieldAt(t) == nil {
			tiles = append(tiles, t)
		}
	}
	sort.Strings(tiles)
	return byTile, tiles
}

func (HeuristicStrategy) military(gs *conquest.GameState, nation string, rng *rand.Rand) []conquest.Intent {
	var out []conquest.Intent
	byTile, tiles := landTroops(gs, nation)
	claimed := make(map[string]bool)

	for _, tile := range tiles {
		troops := byTile[tile]
		if troops.Total() < minGarrison {
			continue
		}
		if in, ok := bestAttack(gs, nation, tile, troops); ok {
			out = append(out, in)
			continue
		}

		dest := expansionTarget(gs, nation, tile, troops.Classes(), claimed, rng)
		if dest == "" {
			continue
		}
		claimed[dest] = true
		send := troops.Clone()
		if gs.CityAt(tile) != nil {
			// Leave half behind to hold the city.
			for c, n := range send {
				send[c] = n / 2
			}
		}
		if send.Total() == 0 {
			continue
		}
		out = append(out, move(nation, conquest.IntentMove, tile, dest, send))
	}
	return out
}

// bestAttack picks the adjacent enemy tile with the weakest defence that the
// stack clearly overpowers.
func bestAttack(gs *conquest.GameState, nation, tile string, troops conquest.Troops) (conquest.Intent, bool) {
	atk := conquest.Power(troops, gs.Rules.Offense)
	bestRatio := 0.0
	var best string
	for _, nb := range gs.NeighborTiles(tile) {
		if nb.Owner == "" || nb.Owner == nation || !gs.AtWar(nation, nb.Owner) {
			continue
		}
		if gs.BattlefieldAt(nb.ID) != nil || !conquest.CanEnter(troops.Classes(), gs.Tiles[tile], nb) {
			continue
		}
		def := conquest.Power(gs.TroopsAt(nb.ID, nb.Owner), gs.Rules.Defense)
		if c := gs.CityAt(nb.ID); c != nil && c.Owner == nb.Owner {
			def *= 1 + 0.1*float64(c.DefenseLevel(&gs.Rules))
		}
		ratio := atk / max(def, 0.1)
		if ratio >= attackAdvantage && ratio > bestRatio {
			bestRatio, best = ratio, nb.ID
		}
	}
	if best == "" {
		return conquest.Intent{}, false
	}
	return move(nation, conquest.IntentAttack, tile, best, troops.Clone()), true
}

// expansionTarget prefers reachable unclaimed cities, then the cheapest
// unclaimed tile, breaking ties randomly.
func expansionTarget(gs *conquest.GameState, nation, from string, classes []conquest.UnitClass, claimed map[string]bool, rng *rand.Rand) string {
	type candidate struct {
		tile  string
		score int
	}
	var cands []candidate
	for id, cost := range gs.ReachableFor(nation, from, classes) {
		t := gs.Tiles[id]
		if id == from || claimed[id] || t.Owner != "" || gs.BattlefieldAt(id) != nil {
			continue
		}
		if owners := gs.OwnersAt(id); len(owners) > 0 {
			continue
		}
		score := 10 - cost
		if t.CityID != "" {
			score += 100
		}
		cands = append(cands, candidate{id, score})
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].tile < cands[j].tile
	})
	top := 1
	for top < len(cands) && cands[top].score == cands[0].score {
		top++
	}
	return cands[rng.Intn(top)].tile
}

func (HeuristicStrategy) battlefields(gs *conquest.GameState, nation string) []conquest.Intent {
	var out []conquest.Intent
	for _, b := range gs.BattlefieldsOf(nation) {
		var ours, theirs float64
		for _, p := range b.Participants {
			t := gs.TroopsAt(b.Tile, p.Player)
			if p.Player == nation {
				ours = conquest.Power(t, gs.Rules.Offense)
			} else {
				theirs = conquest.Power(t, gs.Rules.Defense)
			}
		}
		action := conquest.BattleFight
		if ours < theirs {
			action = conquest.BattleRetreat
		}
		out = append(out, battlefield(nation, b.ID, action))
	}
	for _, o := range gs.AutoMovesOf(nation) {
		if o.Status == conquest.AutoMoveBlocked {
			out = append(out, resolveAutoMove(nation, o.ID, conquest.ChoiceCancel))
		}
	}
	return out
}

// bundleValue is a rough gold-equivalent of a trade side.
func bundleValue(b conquest.Bundle) int {
	v := b.Gold + b.Food
	if b.Specialty != nil {
		v += 5 * b.Specialty.Amount
	}
	if b.Unit != nil {
		v += 3 * b.Unit.Amount
	}
	if b.ShareVision {
		v += 50
	}
	if b.CityID != "" {
		v += 500
	}
	if b.SpyID != "" {
		v += 40
	}
	return v
}

func (HeuristicStrategy) trades(gs *conquest.GameState, nation string) []conquest.Intent {
	var out []conquest.Intent
	for _, t := range gs.TradesOf(nation) {
		if t.Responder != nation || t.Status != conquest.TradeProposed {
			continue
		}
		action := conquest.TradeReject
		if t.Request.CityID == "" && bundleValue(t.Offer) >= bundleValue(t.Request) {
			action = conquest.TradeAccept
		}
		out = append(out, respondTrade(nation, t.ID, action))
	}
	return out
}

// armyPower is a nation's total offensive strength.
func armyPower(gs *conquest.GameState, nation string) float64 {
	total := make(conquest.Troops)
	for _, s := range gs.StacksOwnedBy(nation) {
		total[s.Class] += s.Count
	}
	return conquest.Power(total, gs.Rules.Offense)
}

func (HeuristicStrategy) diplomacy(gs *conquest.GameState, nation string) []conquest.Intent {
	var out []conquest.Intent
	mine := armyPower(gs, nation)
	for _, r := range gs.RelationsOf(nation) {
		other := r.A
		if other == nation {
			other = r.B
		}
		if gs.Nations[other].Eliminated {
			continue
		}
		if r.PendingStatus != "" && r.PendingRequester == other {
			action := conquest.ActionAccept
			if r.PendingStatus == conquest.StatusAlliance && r.Favorability < 0 {
				action = conquest.ActionReject
			}
			out = append(out, diplomacy(nation, other, action))
			continue
		}
		if r.Status == conquest.StatusWar && r.PendingStatus == "" && armyPower(gs, other) > peaceThreshold*mine {
			out = append(out, diplomacy(nation, other, conquest.ActionProposePeace))
		}
	}
	return out
}
