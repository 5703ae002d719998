package conquest

import (
	"context"
	"errors"
	"time"
)

// OutcomeStatus is what happened to one queued intent.
type OutcomeStatus string

const (
	OutcomeApplied  OutcomeStatus = "applied"
	OutcomeFailed   OutcomeStatus = "failed"
	OutcomeRejected OutcomeStatus = "rejected"
)

// IntentOutcome reports the fate of one intent during resolution.
type IntentOutcome struct {
	IntentID string        `json:"intent_id,omitempty"`
	Player   string        `json:"player"`
	Slot     string        `json:"slot"`
	Kind     IntentKind    `json:"kind"`
	Status   OutcomeStatus `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Ref      string        `json:"ref,omitempty"` // id of a created order, trade or battlefield
}

// TurnResult is everything a resolution produced.
type TurnResult struct {
	Turn      int             `json:"turn"`
	Outcomes  []IntentOutcome `json:"outcomes"`
	Resources []ResourceDelta `json:"resources"`
	Battles   []BattleReport  `json:"battles,omitempty"`
	AutoMoves []AutoMoveOrder `json:"auto_moves,omitempty"`
	Trades    []TradeOffer    `json:"trades,omitempty"`
	Relations []Relation      `json:"relations,omitempty"`
	News      []NewsItem      `json:"news,omitempty"`
	Ended     bool            `json:"ended"`
	Winner    string          `json:"winner,omitempty"`
}

// ResolveOptions configure the optional narrative step of combat.
type ResolveOptions struct {
	Augmenter      NarrativeAugmenter
	AugmentTimeout time.Duration
}

type resolution struct {
	ctx    context.Context
	gs     *GameState
	combat *CombatResolver
	res    *TurnResult
}

// ResolveTurn applies a drained action queue to the state in the fixed
// resolution order and advances the state to the next turn. A failing
// intent is recorded as an outcome and never stops the others.
func ResolveTurn(ctx context.Context, gs *GameState, intents []Intent, opts ResolveOptions) *TurnResult {
	r := &resolution{
		ctx: ctx,
		gs:  gs,
		combat: &CombatResolver{
			Rules:     &gs.Rules,
			Augmenter: opts.Augmenter,
			Timeout:   opts.AugmentTimeout,
		},
		res: &TurnResult{Turn: gs.Turn},
	}
	queue := make([]Intent, len(intents))
	copy(queue, intents)
	SortIntents(queue)
	byKind := make(map[IntentKind][]Intent)
	for _, in := range queue {
		byKind[in.Kind] = append(byKind[in.Kind], in)
	}
	each := func(fn func(in Intent) (string, error), kinds ...IntentKind) {
		for _, k := range kinds {
			for _, in := range byKind[k] {
				r.apply(in, fn)
			}
		}
	}

	// 1. accrual
	r.res.Resources = gs.Accrue()

	// 2. construction ticks, then new economic orders
	gs.TickConstruction()
	each(r.economy, IntentBuild, IntentRecruit, IntentTax, IntentDefense)

	// 3. moves, attacks and spy work
	each(r.military, IntentMove, IntentAttack, IntentSpyMove, IntentCivilWar)

	// 4. auto-move orders, then advancement
	each(r.autoMove, IntentAutoMove, IntentAutoMoveCancel, IntentAutoMoveResolve)
	r.res.AutoMoves = append(r.res.AutoMoves, gs.AdvanceAutoMoves()...)

	// 5. battlefields
	each(r.battlefield, IntentBattlefield)
	r.res.Battles = append(r.res.Battles, gs.ResolveBattlefields(ctx, r.combat)...)

	// 6. trades
	gs.pruneTrades()
	each(r.trade, IntentTradePropose, IntentTradeRespond)
	r.res.Trades = append(r.res.Trades, gs.SettleTrades()...)
	r.res.Trades = append(r.res.Trades, gs.ExpireTrades()...)

	// 7. diplomacy
	each(r.diplomacy, IntentDiplomacy)

	// 8. victory and news
	gs.checkVictory()
	gs.UpdateVision()
	gs.pruneAutoMoves()
	gs.prune()
	for _, n := range gs.unreported {
		if n.Turn == gs.Turn {
			r.res.News = append(r.res.News, n)
		}
	}
	gs.unreported = nil
	r.res.Ended, r.res.Winner = gs.Ended, gs.Winner
	if !gs.Ended {
		gs.Turn++
	}
	return r.res
}

func (r *resolution) apply(in Intent, fn func(in Intent) (string, error)) {
	out := IntentOutcome{
		IntentID: in.ID,
		Player:   in.Player,
		Slot:     in.SlotKey(),
		Kind:     in.Kind,
		Status:   OutcomeApplied,
	}
	var err error
	switch {
	case in.Turn != 0 && in.Turn != r.gs.Turn:
		err = invalid(in.Kind, "queued for turn %d", in.Turn)
	case r.gs.Nations[in.Player] == nil:
		err = invalid(in.Kind, "unknown nation %s", in.Player)
	default:
		err = in.Validate(nil)
	}
	if err != nil {
		r.reject(out, OutcomeRejected, err)
		return
	}
	// The intent passed these checks against the snapshot it was queued on;
	// failing them now means earlier steps of this resolution changed the state.
	if err := in.validateState(r.gs); err != nil {
		r.reject(out, OutcomeFailed, err)
		return
	}
	if out.Ref, err = fn(in); err != nil {
		r.reject(out, outcomeStatus(err), err)
		return
	}
	r.res.Outcomes = append(r.res.Outcomes, out)
}

func (r *resolution) reject(out IntentOutcome, status OutcomeStatus, err error) {
	out.Status = status
	out.Reason = err.Error()
	r.res.Outcomes = append(r.res.Outcomes, out)
}

func outcomeStatus(err error) OutcomeStatus {
	if errors.Is(err, ErrInsufficientResources) || errors.Is(err, ErrInsufficientUnits) {
		return OutcomeFailed
	}
	return OutcomeRejected
}

func (r *resolution) economy(in Intent) (string, error) {
	c := in.City
	switch in.Kind {
	case IntentBuild:
		return c.City, r.gs.StartBuilding(in.Player, c.City, c.Building)
	case IntentRecruit:
		return c.City, r.gs.StartRecruit(in.Player, c.City, c.Class, c.Amount)
	case IntentTax:
		return c.City, r.gs.SetTax(in.Player, c.City, c.Rate)
	default:
		return c.City, r.gs.SetDefense(in.Player, c.City, c.Strategy)
	}
}

func (r *resolution) military(in Intent) (string, error) {
	gs := r.gs
	switch in.Kind {
	case IntentMove:
		b, err := gs.Move(in.Player, in.Move.From, in.Move.To, in.Move.Units)
		if b != nil {
			return b.ID, err
		}
		return "", err
	case IntentAttack:
		m := in.Move
		report, err := gs.Attack(r.ctx, r.combat, in.Player, m.From, m.To, m.Units, m.Strategy, SourceAttack)
		if report != nil {
			r.res.Battles = append(r.res.Battles, *report)
		}
		return "", err
	case IntentSpyMove:
		return in.Spy.SpyID, gs.MoveSpy(in.Player, in.Spy.SpyID, in.Spy.To)
	default:
		_, err := gs.InciteCivilWar(in.Player, in.Spy.SpyID, in.Spy.City)
		return in.Spy.City, err
	}
}

func (r *resolution) autoMove(in Intent) (string, error) {
	gs, a := r.gs, in.AutoMove
	switch in.Kind {
	case IntentAutoMove:
		o, err := gs.CreateAutoMove(in.Player, a.From, a.To, a.Class, a.Amount)
		if err != nil {
			return "", err
		}
		return o.ID, nil
	case IntentAutoMoveCancel:
		o, err := gs.CancelAutoMove(in.Player, a.OrderID)
		if err != nil {
			return "", err
		}
		r.res.AutoMoves = append(r.res.AutoMoves, *o)
		return o.ID, nil
	default:
		o, report, err := gs.ResolveAutoMove(r.ctx, r.combat, in.Player, a.OrderID, a.Choice, a.Strategy)
		if err != nil {
			return "", err
		}
		if report != nil {
			r.res.Battles = append(r.res.Battles, *report)
		}
		r.res.AutoMoves = append(r.res.AutoMoves, *o)
		return o.ID, nil
	}
}

func (r *resolution) battlefield(in Intent) (string, error) {
	b := in.Battlefield
	return b.BattlefieldID, r.gs.ActOnBattlefield(in.Player, b.BattlefieldID, b.Action, b.Strategy)
}

func (r *resolution) trade(in Intent) (string, error) {
	t := in.Trade
	if in.Kind == IntentTradePropose {
		offer, err := r.gs.ProposeTrade(in.Player, t.Responder, t.Offer, t.Request)
		if err != nil {
			return "", err
		}
		return offer.ID, nil
	}
	offer, err := r.gs.RespondTrade(in.Player, t.TradeID, t.Action, t.CounterOffer)
	if err != nil {
		return "", err
	}
	return offer.ID, nil
}

func (r *resolution) diplomacy(in Intent) (string, error) {
	gs, d := r.gs, in.Diplomacy
	changed, err := gs.ProposeDiplomacy(in.Player, d.Target, d.Action)
	if err != nil {
		return "", err
	}
	rel := gs.Relation(in.Player, d.Target)
	r.res.Relations = append(r.res.Relations, rel)
	if changed {
		gs.addNews(NewsDiplomacy, []string{in.Player, d.Target}, "%s and %s are now %s",
			gs.nationName(rel.A), gs.nationName(rel.B), statusText(rel.Status))
	}
	return PairKey(in.Player, d.Target), nil
}

func statusText(s RelationStatus) string {
	switch s {
	case StatusAlliance:
		return "allied"
	case StatusWar:
		return "at war"
	}
	return string(s)
}
