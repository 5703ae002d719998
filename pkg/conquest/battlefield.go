package conquest

import (
	"context"
	"slices"
)

// BattleAction is a participant's decision on a battlefield.
type BattleAction string

const (
	BattleFight   BattleAction = "fight"
	BattleRetreat BattleAction = "retreat"
)

// BattleRole distinguishes the side that entered a tile from its holder.
type BattleRole string

const (
	RoleAttacker BattleRole = "attacker"
	RoleDefender BattleRole = "defender"
)

// BattleParticipant is one side of a contested tile.
type BattleParticipant struct {
	Player      string       `json:"player"`
	Role        BattleRole   `json:"role"`
	RetreatTile string       `json:"retreat_tile,omitempty"`
	Action      BattleAction `json:"action,omitempty"`
	Strategy    string       `json:"strategy,omitempty"`
}

// Battlefield is a tile contested by two nations awaiting their decisions.
type Battlefield struct {
	ID           string              `json:"id"`
	Tile         string              `json:"tile"`
	OpenedTurn   int                 `json:"opened_turn"`
	Participants []BattleParticipant `json:"participants"`
}

func (b *Battlefield) participant(role BattleRole) *BattleParticipant {
	for i := range b.Participants {
		if b.Participants[i].Role == role {
			return &b.Participants[i]
		}
	}
	return nil
}

func (b *Battlefield) participantOf(player string) *BattleParticipant {
	for i := range b.Participants {
		if b.Participants[i].Player == player {
			return &b.Participants[i]
		}
	}
	return nil
}

// BattlefieldAt returns the open battlefield on a tile, or nil.
func (gs *GameState) BattlefieldAt(tile string) *Battlefield {
	for _, b := range gs.Battlefields {
		if b.Tile == tile {
			return b
		}
	}
	return nil
}

// BattlefieldByID returns the battlefield with the given id, or nil.
func (gs *GameState) BattlefieldByID(id string) *Battlefield {
	for _, b := range gs.Battlefields {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// OpenBattlefield records that attacker entered a tile held by defender.
func (gs *GameState) OpenBattlefield(tile, attacker, attackerFrom, defender string) *Battlefield {
	b := &Battlefield{
		ID:         gs.newID("bf"),
		Tile:       tile,
		OpenedTurn: gs.Turn,
		Participants: []BattleParticipant{
			{Player: attacker, Role: RoleAttacker, RetreatTile: attackerFrom},
			{Player: defender, Role: RoleDefender, RetreatTile: gs.retreatTile(tile, defender, attackerFrom)},
		},
	}
	gs.Battlefields = append(gs.Battlefields, b)
	gs.addNews(NewsBattle, []string{attacker, defender}, "%s and %s face off at %s",
		gs.nationName(attacker), gs.nationName(defender), tile)
	return b
}

// ActOnBattlefield records a participant's fight or retreat decision.
func (gs *GameState) ActOnBattlefield(player, id string, action BattleAction, strategy string) error {
	const kind = IntentBattlefield
	b := gs.BattlefieldByID(id)
	if b == nil {
		return invalid(kind, "unknown battlefield %s", id)
	}
	if action != BattleFight && action != BattleRetreat {
		return invalid(kind, "unknown action %q", action)
	}
	p := b.participantOf(player)
	if p == nil {
		return invalid(kind, "not a participant of %s", id)
	}
	p.Action = action
	p.Strategy = strategy
	return nil
}

// ResolveBattlefields settles every battlefield opened before the current
// turn. A participant without a decision retreats.
func (gs *GameState) ResolveBattlefields(ctx context.Context, cr *CombatResolver) []BattleReport {
	var reports []BattleReport
	var keep []*Battlefield
	for _, b := range gs.Battlefields {
		if b.OpenedTurn >= gs.Turn {
			keep = append(keep, b)
			continue
		}
		if r := gs.resolveBattlefield(ctx, cr, b); r != nil {
			reports = append(reports, *r)
		}
	}
	gs.Battlefields = keep
	gs.prune()
	return reports
}

func (gs *GameState) resolveBattlefield(ctx context.Context, cr *CombatResolver, b *Battlefield) *BattleReport {
	atk, def := b.participant(RoleAttacker), b.participant(RoleDefender)
	for _, p := range []*BattleParticipant{atk, def} {
		if p.Action == "" {
			p.Action = BattleRetreat
		}
	}
	atkTroops := combatTroops(gs.TroopsAt(b.Tile, atk.Player))
	defTroops := combatTroops(gs.TroopsAt(b.Tile, def.Player))
	defRetreat := def.RetreatTile
	if defRetreat == "" {
		defRetreat = gs.retreatTile(b.Tile, def.Player, atk.RetreatTile)
	}

	fight := atk.Action == BattleFight && def.Action == BattleFight &&
		atkTroops.Total() > 0 && defTroops.Total() > 0
	if !fight {
		if atk.Action == BattleRetreat || atkTroops.Total() == 0 {
			gs.withdraw(b.Tile, atk.Player, atk.RetreatTile)
		}
		if def.Action == BattleRetreat || defTroops.Total() == 0 {
			gs.withdraw(b.Tile, def.Player, defRetreat)
			if atk.Action == BattleFight && atkTroops.Total() > 0 {
				gs.occupy(atk.Player, b.Tile)
			}
		}
		return nil
	}

	in := BattleInput{
		Attacker:         atkTroops,
		Defender:         defTroops,
		Terrain:          gs.Tiles[b.Tile].Terrain,
		AttackerStrategy: atk.Strategy,
		DefenderStrategy: def.Strategy,
	}
	if c := gs.CityAt(b.Tile); c != nil && c.Owner == def.Player {
		in.CityDefenseLevel = c.DefenseLevel(&gs.Rules)
		if in.DefenderStrategy == "" {
			in.DefenderStrategy = c.DefenseStrategy
		}
	}
	res := cr.Resolve(ctx, in)
	report := &BattleReport{
		Turn:           gs.Turn,
		Tile:           b.Tile,
		Source:         SourceBattlefield,
		Attacker:       atk.Player,
		Defender:       def.Player,
		AttackerTroops: atkTroops,
		DefenderTroops: defTroops,
		Result:         res,
	}
	gs.ApplyLosses(b.Tile, atk.Player, res.AttackerLosses)
	gs.ApplyLosses(b.Tile, def.Player, res.DefenderLosses)
	if res.Winner == OutcomeAttacker {
		gs.withdraw(b.Tile, def.Player, defRetreat)
		report.Conquered = gs.occupy(atk.Player, b.Tile)
	} else {
		// A draw leaves the holder in place; the attacker falls back.
		gs.withdraw(b.Tile, atk.Player, atk.RetreatTile)
	}
	gs.addNews(NewsBattle, []string{atk.Player, def.Player}, "Battle at %s: %s attacked %s, %s",
		b.Tile, gs.nationName(atk.Player), gs.nationName(def.Player), outcomeText(res.Winner))
	return report
}

// BattlefieldsOf returns the open battlefields a nation takes part in.
func (gs *GameState) BattlefieldsOf(player string) []*Battlefield {
	var out []*Battlefield
	for _, b := range gs.Battlefields {
		if slices.ContainsFunc(b.Participants, func(p BattleParticipant) bool { return p.Player == player }) {
			out = append(out, b)
		}
	}
	return out
}
