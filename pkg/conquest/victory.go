package conquest

import "math"

// checkVictory eliminates nations with nothing left and ends the game when a
// nation holds enough cities, is the last one standing, or the turn limit is
// reached.
func (gs *GameState) checkVictory() {
	if gs.Ended {
		return
	}
	counts := make(map[string]int)
	for _, c := range gs.Cities {
		if c.Owner != "" {
			counts[c.Owner]++
		}
	}
	var alive []string
	for _, id := range gs.SortedNationIDs() {
		n := gs.Nations[id]
		if n.Eliminated {
			continue
		}
		if counts[id] == 0 && !gs.hasUnits(id) {
			n.Eliminated = true
			gs.addNews(NewsConquest, []string{id}, "%s has been wiped from the map", gs.nationName(id))
			continue
		}
		if counts[id] > 0 {
			alive = append(alive, id)
		}
	}

	if total := len(gs.Cities); total > 0 && gs.Rules.VictoryCityShare > 0 {
		need := int(math.Ceil(gs.Rules.VictoryCityShare * float64(total)))
		for _, id := range alive {
			if counts[id] >= need {
				gs.end(id)
				return
			}
		}
	}
	if len(gs.Nations) > 1 && len(alive) == 1 {
		gs.end(alive[0])
		return
	}
	if gs.Rules.MaxTurns > 0 && gs.Turn >= gs.Rules.MaxTurns {
		gs.end("")
	}
}

func (gs *GameState) end(winner string) {
	gs.Ended = true
	gs.Winner = winner
	if winner == "" {
		gs.addNews(NewsVictory, nil, "The war ends in a stalemate after %d turns", gs.Turn)
		return
	}
	gs.addNews(NewsVictory, []string{winner}, "%s is victorious", gs.nationName(winner))
}

func (gs *GameState) hasUnits(nation string) bool {
	for _, s := range gs.Stacks {
		if s.Owner == nation && s.Count > 0 {
			return true
		}
	}
	return false
}
