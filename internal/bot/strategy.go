// Package bot generates intents for computer-controlled nations.
package bot

import (
	"math/rand"

	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// Strategy generates the intents a bot nation submits for one turn.
type Strategy interface {
	Name() string
	GenerateIntents(gs *conquest.GameState, nation string, rng *rand.Rand) []conquest.Intent
}

// StrategyFor returns the strategy registered under name. Unknown names get
// the heuristic strategy.
func StrategyFor(name string) Strategy {
	switch name {
	case "random":
		return RandomStrategy{}
	case "passive":
		return PassiveStrategy{}
	default:
		return HeuristicStrategy{}
	}
}

// NewRng returns a deterministic source for a nation's turn so replays of a
// seeded room produce the same bot intents.
func NewRng(seed int64, turn int, nation string) *rand.Rand {
	h := seed ^ int64(turn)*1_000_003
	for _, c := range nation {
		h = h*31 + int64(c)
	}
	return rand.New(rand.NewSource(h))
}

// keepValid drops intents the snapshot already rejects and stamps the turn.
func keepValid(gs *conquest.GameState, intents []conquest.Intent) []conquest.Intent {
	out := intents[:0]
	for _, in := range intents {
		in.Turn = gs.Turn
		if in.Validate(gs) == nil {
			out = append(out, in)
		}
	}
	return out
}

// --- PassiveStrategy ---

// PassiveStrategy only answers what is asked of it: it declines trades and
// diplomatic requests, retreats from battlefields and cancels blocked
// auto-moves.
type PassiveStrategy struct{}

func (PassiveStrategy) Name() string { return "passive" }

func (PassiveStrategy) GenerateIntents(gs *conquest.GameState, nation string, _ *rand.Rand) []conquest.Intent {
	var out []conquest.Intent
	for _, t := range gs.TradesOf(nation) {
		if t.Responder == nation && t.Status == conquest.TradeProposed {
			out = append(out, respondTrade(nation, t.ID, conquest.TradeReject))
		}
	}
	for _, r := range gs.RelationsOf(nation) {
		if r.PendingStatus != "" && r.PendingRequester != nation {
			out = append(out, diplomacy(nation, r.PendingRequester, conquest.ActionReject))
		}
	}
	for _, b := range gs.BattlefieldsOf(nation) {
		out = append(out, battlefield(nation, b.ID, conquest.BattleRetreat))
	}
	for _, o := range gs.AutoMovesOf(nation) {
		if o.Status == conquest.AutoMoveBlocked {
			out = append(out, resolveAutoMove(nation, o.ID, conquest.ChoiceCancel))
		}
	}
	return keepValid(gs, out)
}

func respondTrade(nation, id string, action conquest.TradeAction) conquest.Intent {
	return conquest.Intent{
		Player: nation,
		Kind:   conquest.IntentTradeRespond,
		Trade:  &conquest.TradePayload{TradeID: id, Action: action},
	}
}

func diplomacy(nation, target string, action conquest.DiplomacyAction) conquest.Intent {
	return conquest.Intent{
		Player:    nation,
		Kind:      conquest.IntentDiplomacy,
		Diplomacy: &conquest.DiplomacyPayload{Target: target, Action: action},
	}
}

func battlefield(nation, id string, action conquest.BattleAction) conquest.Intent {
	return conquest.Intent{
		Player:      nation,
		Kind:        conquest.IntentBattlefield,
		Battlefield: &conquest.BattlefieldPayload{BattlefieldID: id, Action: action},
	}
}

func resolveAutoMove(nation, id string, choice conquest.AutoMoveChoice) conquest.Intent {
	return conquest.Intent{
		Player:   nation,
		Kind:     conquest.IntentAutoMoveResolve,
		AutoMove: &conquest.AutoMovePayload{OrderID: id, Choice: choice},
	}
}

func move(nation string, kind conquest.IntentKind, from, to string, units conquest.Troops) conquest.Intent {
	return conquest.Intent{
		Player: nation,
		Kind:   kind,
		Move:   &conquest.MovePayload{From: from, To: to, Units: units},
	}
}
