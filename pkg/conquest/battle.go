package conquest

import (
	"context"
	"fmt"
)

// BattleSource says which action started a battle.
type BattleSource string

const (
	SourceAttack      BattleSource = "attack"
	SourceAutoMove    BattleSource = "automove"
	SourceBattlefield BattleSource = "battlefield"
)

// BattleReport records a fought battle and its consequences.
type BattleReport struct {
	Turn           int          `json:"turn"`
	Tile           string       `json:"tile"`
	Source         BattleSource `json:"source"`
	Attacker       string       `json:"attacker"`
	Defender       string       `json:"defender"`
	AttackerTroops Troops       `json:"attacker_troops"`
	DefenderTroops Troops       `json:"defender_troops"`
	Result         BattleResult `json:"result"`
	Conquered      bool         `json:"conquered"`
}

// combatTroops drops spies, which never fight.
func combatTroops(t Troops) Troops {
	out := t.Clone()
	delete(out, Spy)
	return out
}

// TroopsAt returns the troops an owner has on a tile.
func (gs *GameState) TroopsAt(tile, owner string) Troops {
	out := make(Troops)
	for _, s := range gs.Stacks {
		if s.Tile == tile && s.Owner == owner && s.Count > 0 {
			out[s.Class] += s.Count
		}
	}
	return out
}

func subtract(t, losses Troops) Troops {
	out := make(Troops)
	for _, c := range t.Classes() {
		if n := t[c] - losses[c]; n > 0 {
			out[c] = n
		}
	}
	return out
}

// checkTroops verifies owner has troops at tile and that none are spies.
func (gs *GameState) checkTroops(kind IntentKind, owner, tile string, troops Troops) error {
	if troops.Total() <= 0 {
		return invalid(kind, "no troops given")
	}
	for c, n := range troops {
		if n < 0 {
			return invalid(kind, "negative %s count", c)
		}
		if _, ok := gs.Rules.Movement[c]; !ok {
			return invalid(kind, "unknown unit class %q", c)
		}
	}
	if troops[Spy] > 0 {
		return ErrSpyBulkMove
	}
	for _, c := range troops.Classes() {
		if have := gs.StackCount(tile, owner, c); have < troops[c] {
			return fmt.Errorf("%w: %d %s at %s, %d requested", ErrInsufficientUnits, have, c, tile, troops[c])
		}
	}
	return nil
}

// occupy claims a tile entered by mover when it is unowned or enemy-owned.
// It reports whether ownership changed.
func (gs *GameState) occupy(mover, tile string) bool {
	t := gs.Tiles[tile]
	if t == nil || t.Owner == mover {
		return false
	}
	if t.Owner != "" && !gs.AtWar(mover, t.Owner) {
		return false
	}
	prev := t.Owner
	gs.SetTileOwner(tile, mover)
	if c := gs.CityAt(tile); c != nil {
		if prev == "" {
			gs.addNews(NewsConquest, []string{mover}, "%s occupied %s", gs.nationName(mover), c.Name)
		} else {
			gs.addNews(NewsConquest, []string{mover, prev}, "%s captured %s from %s", gs.nationName(mover), c.Name, gs.nationName(prev))
		}
		gs.refreshCapitals()
	}
	return true
}

// retreatTile picks the first neighbour of tile owned by owner, skipping avoid
// and tiles holding enemy units. Empty when there is none.
func (gs *GameState) retreatTile(tile, owner, avoid string) string {
	for _, n := range gs.NeighborTiles(tile) {
		if n.ID == avoid || n.Owner != owner {
			continue
		}
		hostile := false
		for _, o := range gs.OwnersAt(n.ID) {
			if o != owner && !gs.Allied(owner, o) {
				hostile = true
				break
			}
		}
		if !hostile {
			return n.ID
		}
	}
	return ""
}

// withdraw moves every combat unit of owner on tile to dest, or destroys them
// when dest is empty or no longer safe. It returns the troops moved.
func (gs *GameState) withdraw(tile, owner, dest string) Troops {
	troops := combatTroops(gs.TroopsAt(tile, owner))
	if troops.Total() == 0 {
		return troops
	}
	if t := gs.Tiles[dest]; dest == "" || dest == tile || t == nil || (t.Owner != "" && !gs.Allied(owner, t.Owner)) {
		gs.ApplyLosses(tile, owner, troops)
		return nil
	}
	_ = gs.MoveUnits(tile, dest, owner, troops)
	return troops
}

// defenderAt names the nation defending a tile against attacker: the tile
// owner when it has units there, otherwise the first foreign occupant.
func (gs *GameState) defenderAt(tile, attacker string) string {
	t := gs.Tiles[tile]
	owners := gs.OwnersAt(tile)
	for _, o := range owners {
		if o == t.Owner && o != attacker {
			return o
		}
	}
	for _, o := range owners {
		if o != attacker && combatTroops(gs.TroopsAt(tile, o)).Total() > 0 {
			return o
		}
	}
	if t.Owner != attacker {
		return t.Owner
	}
	return ""
}

func (gs *GameState) declareWar(a, b string) {
	r := gs.relation(a, b)
	r.Status = StatusWar
	r.clearPending()
	r.adjust(favorWar)
	gs.addNews(NewsDiplomacy, []string{a, b}, "%s declared war on %s", gs.nationName(a), gs.nationName(b))
}

// Attack sends troops from one tile against an adjacent tile. Attacking a
// nation not yet at war declares war first. An undefended tile is simply
// occupied and no report is returned.
func (gs *GameState) Attack(ctx context.Context, cr *CombatResolver, attacker, from, to string, troops Troops, strategy string, source BattleSource) (*BattleReport, error) {
	const kind = IntentAttack
	if err := gs.checkTroops(kind, attacker, from, troops); err != nil {
		return nil, err
	}
	if !gs.Adjacent(from, to) {
		return nil, invalid(kind, "%s is not adjacent to %s", to, from)
	}
	if !CanEnter(troops.Classes(), gs.Tiles[from], gs.Tiles[to]) {
		return nil, invalid(kind, "troops cannot enter %s", to)
	}
	if gs.BattlefieldAt(to) != nil {
		return nil, invalid(kind, "battle already under way at %s", to)
	}
	defender := gs.defenderAt(to, attacker)
	if defender == "" {
		_ = gs.MoveUnits(from, to, attacker, troops)
		gs.occupy(attacker, to)
		return nil, nil
	}
	if gs.Allied(attacker, defender) {
		return nil, invalid(kind, "cannot attack ally %s", defender)
	}
	if !gs.AtWar(attacker, defender) {
		gs.declareWar(attacker, defender)
	}

	defTroops := combatTroops(gs.TroopsAt(to, defender))
	if defTroops.Total() == 0 {
		_ = gs.MoveUnits(from, to, attacker, troops)
		gs.occupy(attacker, to)
		return nil, nil
	}

	in := BattleInput{
		Attacker:         troops.Clone(),
		Defender:         defTroops,
		Terrain:          gs.Tiles[to].Terrain,
		AttackerStrategy: strategy,
	}
	if c := gs.CityAt(to); c != nil && c.Owner == defender {
		in.CityDefenseLevel = c.DefenseLevel(&gs.Rules)
		in.DefenderStrategy = c.DefenseStrategy
	}
	res := cr.Resolve(ctx, in)
	report := &BattleReport{
		Turn:           gs.Turn,
		Tile:           to,
		Source:         source,
		Attacker:       attacker,
		Defender:       defender,
		AttackerTroops: in.Attacker,
		DefenderTroops: in.Defender,
		Result:         res,
	}

	gs.ApplyLosses(from, attacker, res.AttackerLosses)
	gs.ApplyLosses(to, defender, res.DefenderLosses)
	if res.Winner == OutcomeAttacker {
		gs.withdraw(to, defender, gs.retreatTile(to, defender, from))
		_ = gs.MoveUnits(from, to, attacker, subtract(troops, res.AttackerLosses))
		report.Conquered = gs.occupy(attacker, to)
	}
	gs.prune()
	gs.addNews(NewsBattle, []string{attacker, defender}, "Battle at %s: %s attacked %s, %s",
		to, gs.nationName(attacker), gs.nationName(defender), outcomeText(res.Winner))
	return report, nil
}

func outcomeText(w Outcome) string {
	switch w {
	case OutcomeAttacker:
		return "attacker victorious"
	case OutcomeDefender:
		return "defender held"
	}
	return "no decision"
}

// Move marches troops along the cheapest legal path within the group's
// movement budget. Entering a tile held by a nation at war opens a
// battlefield there instead of capturing it.
func (gs *GameState) Move(mover, from, to string, troops Troops) (*Battlefield, error) {
	const kind = IntentMove
	if err := gs.checkTroops(kind, mover, from, troops); err != nil {
		return nil, err
	}
	if from == to {
		return nil, invalid(kind, "origin and destination are the same")
	}
	if gs.Tiles[to] == nil {
		return nil, invalid(kind, "unknown tile %s", to)
	}
	classes := troops.Classes()
	budget := gs.Rules.GroupMovement(classes)
	path, _, err := FindPath(gs, from, to, budget, classes, TraversalPredicate(gs, mover))
	if err != nil {
		return nil, err
	}
	if gs.BattlefieldAt(to) != nil {
		return nil, invalid(kind, "battle already under way at %s", to)
	}
	var enemy string
	for _, o := range gs.OwnersAt(to) {
		if o == mover || gs.Allied(mover, o) {
			continue
		}
		if !gs.AtWar(mover, o) {
			return nil, invalid(kind, "%s is occupied by %s", to, o)
		}
		if enemy == "" && combatTroops(gs.TroopsAt(to, o)).Total() > 0 {
			enemy = o
		}
	}
	_ = gs.MoveUnits(from, to, mover, troops)
	if enemy != "" {
		return gs.OpenBattlefield(to, mover, path[len(path)-2], enemy), nil
	}
	gs.occupy(mover, to)
	return nil, nil
}
