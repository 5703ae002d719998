package bot

import (
	"math/rand"
	"sort"

	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// RandomStrategy moves every stack to a random reachable tile and sets a
// random tax rate. Useful for fuzzing resolution.
type RandomStrategy struct{}

func (RandomStrategy) Name() string { return "random" }

func (RandomStrategy) GenerateIntents(gs *conquest.GameState, nation string, rng *rand.Rand) []conquest.Intent {
	if n := gs.Nations[nation]; n == nil || n.Eliminated || gs.Ended {
		return nil
	}
	var out []conquest.Intent
	byTile, tiles := landTroops(gs, nation)
	for _, tile := range tiles {
		reach := gs.ReachableFor(nation, tile, byTile[tile].Classes())
		dests := make([]string, 0, len(reach))
		for id := range reach {
			if id != tile {
				dests = append(dests, id)
			}
		}
		if len(dests) == 0 {
			continue
		}
		sort.Strings(dests)
		out = append(out, move(nation, conquest.IntentMove, tile, dests[rng.Intn(len(dests))], byTile[tile].Clone()))
	}
	for _, c := range gs.CitiesOf(nation) {
		out = append(out, taxIntent(nation, c.ID, rng.Intn(gs.Rules.MaxTaxRate+1)))
	}
	return keepValid(gs, out)
}
