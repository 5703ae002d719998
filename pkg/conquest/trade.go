package conquest

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// TradeStatus is the lifecycle state of a trade offer.
type TradeStatus string

const (
	TradeProposed  TradeStatus = "proposed"
	TradeAccepted  TradeStatus = "accepted"
	TradeRejected  TradeStatus = "rejected"
	TradeCountered TradeStatus = "countered"
	TradeCompleted TradeStatus = "completed"
	TradeFailed    TradeStatus = "failed"
	TradeExpired   TradeStatus = "expired"
)

// Terminal reports whether a trade in this status can no longer change.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeProposed, TradeAccepted:
		return false
	}
	return true
}

// TradeAction is the responder's answer to an offer.
type TradeAction string

const (
	TradeAccept  TradeAction = "accept"
	TradeReject  TradeAction = "reject"
	TradeCounter TradeAction = "counter"
)

// SpecialtyAmount is a quantity of a specialty good.
type SpecialtyAmount struct {
	Type   string `json:"type"`
	Amount int    `json:"amount"`
}

// UnitAmount is a quantity of troops of one class.
type UnitAmount struct {
	Class  UnitClass `json:"class"`
	Amount int       `json:"amount"`
}

// Bundle is one side of a trade.
type Bundle struct {
	Gold        int              `json:"gold,omitempty"`
	Food        int              `json:"food,omitempty"`
	Specialty   *SpecialtyAmount `json:"specialty,omitempty"`
	Unit        *UnitAmount      `json:"unit,omitempty"`
	PeaceTreaty bool             `json:"peace_treaty,omitempty"`
	ShareVision bool             `json:"share_vision,omitempty"`
	CityID      string           `json:"city_id,omitempty"`
	SpyID       string           `json:"spy_id,omitempty"`
}

// Empty reports whether the bundle carries no term at all.
func (b Bundle) Empty() bool {
	return b.Gold == 0 && b.Food == 0 &&
		(b.Specialty == nil || b.Specialty.Amount == 0) &&
		(b.Unit == nil || b.Unit.Amount == 0) &&
		!b.PeaceTreaty && !b.ShareVision && b.CityID == "" && b.SpyID == ""
}

// TradeOffer is a bilateral exchange proposal.
type TradeOffer struct {
	ID            string      `json:"id"`
	Proposer      string      `json:"proposer"`
	Responder     string      `json:"responder"`
	Offer         Bundle      `json:"offer"`
	Request       Bundle      `json:"request"`
	Status        TradeStatus `json:"status"`
	ProposedTurn  int         `json:"proposed_turn"`
	ClosedTurn    int         `json:"closed_turn,omitempty"`
	CounterOf     string      `json:"counter_of,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
}

func (t *TradeOffer) close(status TradeStatus, turn int) {
	t.Status = status
	t.ClosedTurn = turn
}

// TradeByID returns the trade with the given id, or nil.
func (gs *GameState) TradeByID(id string) *TradeOffer {
	for _, t := range gs.Trades {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// UnitTotal returns how many units of a class a nation has across the map.
func (gs *GameState) UnitTotal(owner string, class UnitClass) int {
	n := 0
	for _, s := range gs.Stacks {
		if s.Owner == owner && s.Class == class {
			n += s.Count
		}
	}
	return n
}

func checkShape(b Bundle) error {
	if b.Gold < 0 || b.Food < 0 {
		return errors.New("negative amount")
	}
	if b.Specialty != nil && (b.Specialty.Amount < 0 || (b.Specialty.Amount > 0 && b.Specialty.Type == "")) {
		return errors.New("malformed specialty term")
	}
	if b.Unit != nil && (b.Unit.Amount < 0 || b.Unit.Class == Spy) {
		return errors.New("malformed unit term")
	}
	return nil
}

// canGive checks that giver currently holds everything in the bundle.
func (gs *GameState) canGive(giver, receiver string, b Bundle) error {
	n := gs.Nations[giver]
	if n == nil {
		return fmt.Errorf("unknown nation %s", giver)
	}
	if n.Treasury.Gold < b.Gold {
		return fmt.Errorf("%s has %d gold, %d committed", giver, n.Treasury.Gold, b.Gold)
	}
	if n.Treasury.Food < b.Food {
		return fmt.Errorf("%s has %d food, %d committed", giver, n.Treasury.Food, b.Food)
	}
	if s := b.Specialty; s != nil && s.Amount > 0 && n.Treasury.Specialty[s.Type] < s.Amount {
		return fmt.Errorf("%s has %d %s, %d committed", giver, n.Treasury.Specialty[s.Type], s.Type, s.Amount)
	}
	if u := b.Unit; u != nil && u.Amount > 0 {
		if have := gs.UnitTotal(giver, u.Class); have < u.Amount {
			return fmt.Errorf("%s has %d %s, %d committed", giver, have, u.Class, u.Amount)
		}
		if gs.capitalTile(receiver) == "" {
			return fmt.Errorf("%s has no capital to receive units", receiver)
		}
	}
	if b.CityID != "" {
		c := gs.Cities[b.CityID]
		if c == nil || c.Owner != giver {
			return fmt.Errorf("%s does not hold city %s", giver, b.CityID)
		}
		if n.Capital == b.CityID {
			return fmt.Errorf("%s cannot trade its capital", giver)
		}
	}
	if b.SpyID != "" {
		if s := gs.SpyByID(b.SpyID); s == nil || s.Owner != giver {
			return fmt.Errorf("%s does not control spy %s", giver, b.SpyID)
		}
	}
	if b.PeaceTreaty && !gs.AtWar(giver, receiver) {
		return fmt.Errorf("%s is not at war with %s", giver, receiver)
	}
	return nil
}

// ProposeTrade opens an offer from proposer to responder.
func (gs *GameState) ProposeTrade(proposer, responder string, offer, request Bundle) (*TradeOffer, error) {
	if proposer == responder {
		return nil, fmt.Errorf("%w: cannot trade with yourself", ErrInvalidOffer)
	}
	if gs.Nations[proposer] == nil || gs.Nations[responder] == nil {
		return nil, fmt.Errorf("%w: unknown nation", ErrInvalidOffer)
	}
	if offer.Empty() && request.Empty() {
		return nil, fmt.Errorf("%w: both sides are empty", ErrInvalidOffer)
	}
	for _, b := range []Bundle{offer, request} {
		if err := checkShape(b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOffer, err)
		}
	}
	if err := gs.canGive(proposer, responder, offer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOffer, err)
	}
	t := &TradeOffer{
		ID:           gs.newID("tr"),
		Proposer:     proposer,
		Responder:    responder,
		Offer:        offer,
		Request:      request,
		Status:       TradeProposed,
		ProposedTurn: gs.Turn,
	}
	gs.Trades = append(gs.Trades, t)
	return t, nil
}

// RespondTrade applies the responder's answer to a proposed trade. Accepting
// only queues the trade for settlement. A counter closes the original and
// returns the new offer, which keeps the original request unchanged.
func (gs *GameState) RespondTrade(actor, id string, action TradeAction, counter *Bundle) (*TradeOffer, error) {
	t := gs.TradeByID(id)
	if t == nil {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	if t.Responder != actor {
		return nil, invalid(IntentTradeRespond, "only %s may respond to %s", t.Responder, id)
	}
	if t.Status != TradeProposed {
		return nil, invalid(IntentTradeRespond, "trade %s is %s", id, t.Status)
	}
	switch action {
	case TradeAccept:
		t.Status = TradeAccepted
		return t, nil
	case TradeReject:
		t.close(TradeRejected, gs.Turn)
		return t, nil
	case TradeCounter:
		if counter == nil {
			return nil, fmt.Errorf("%w: counter without an offer", ErrInvalidOffer)
		}
		next, err := gs.ProposeTrade(actor, t.Proposer, *counter, t.Request)
		if err != nil {
			return nil, err
		}
		next.CounterOf = t.ID
		t.close(TradeCountered, gs.Turn)
		return next, nil
	}
	return nil, invalid(IntentTradeRespond, "unknown action %q", action)
}

// capitalTile returns the tile of a nation's capital, or "".
func (gs *GameState) capitalTile(nation string) string {
	n := gs.Nations[nation]
	if n == nil || n.Capital == "" {
		return ""
	}
	if c := gs.Cities[n.Capital]; c != nil && c.Owner == nation {
		return c.Tile
	}
	return ""
}

// transfer moves a bundle from giver to receiver. Holdings must already have
// been checked.
func (gs *GameState) transfer(giver, receiver string, b Bundle) {
	from, to := &gs.Nations[giver].Treasury, &gs.Nations[receiver].Treasury
	from.Gold -= b.Gold
	to.Gold += b.Gold
	from.Food -= b.Food
	to.Food += b.Food
	if s := b.Specialty; s != nil && s.Amount > 0 {
		from.Specialty[s.Type] -= s.Amount
		if to.Specialty == nil {
			to.Specialty = make(map[string]int)
		}
		to.Specialty[s.Type] += s.Amount
	}
	if u := b.Unit; u != nil && u.Amount > 0 {
		dest := gs.capitalTile(receiver)
		left := u.Amount
		for _, s := range gs.largestStacks(giver, u.Class) {
			if left == 0 {
				break
			}
			n := min(s.Count, left)
			_ = gs.RemoveUnits(s.Tile, giver, u.Class, n)
			gs.AddUnits(dest, receiver, u.Class, n)
			left -= n
		}
	}
	if b.CityID != "" {
		c := gs.Cities[b.CityID]
		gs.SetTileOwner(c.Tile, receiver)
		gs.refreshCapitals()
	}
	if b.SpyID != "" {
		gs.SpyByID(b.SpyID).Owner = receiver
	}
	if b.PeaceTreaty {
		gs.makePeace(giver, receiver)
	}
	if b.ShareVision {
		gs.shareVision(giver, receiver)
	}
}

// largestStacks returns copies of an owner's stacks of a class, biggest
// first with ties by tile id.
func (gs *GameState) largestStacks(owner string, class UnitClass) []UnitStack {
	var out []UnitStack
	for _, s := range gs.Stacks {
		if s.Owner == owner && s.Class == class && s.Count > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tile < out[j].Tile
	})
	return out
}

func (gs *GameState) shareVision(giver, receiver string) {
	if gs.VisionShares == nil {
		gs.VisionShares = make(map[string][]string)
	}
	if !slices.Contains(gs.VisionShares[giver], receiver) {
		gs.VisionShares[giver] = append(gs.VisionShares[giver], receiver)
		sort.Strings(gs.VisionShares[giver])
	}
}

// SettleTrades applies every accepted trade all-or-nothing. A side that can
// no longer cover its bundle fails the trade with no transfer at all.
func (gs *GameState) SettleTrades() []TradeOffer {
	var settled []TradeOffer
	for _, t := range gs.Trades {
		if t.Status != TradeAccepted {
			continue
		}
		err := gs.canGive(t.Proposer, t.Responder, t.Offer)
		if err == nil {
			err = gs.canGive(t.Responder, t.Proposer, t.Request)
		}
		if err != nil {
			t.close(TradeFailed, gs.Turn)
			t.FailureReason = fmt.Errorf("%w: %v", ErrInsufficientResources, err).Error()
			gs.addNews(NewsTrade, []string{t.Proposer, t.Responder}, "Trade between %s and %s fell through",
				gs.nationName(t.Proposer), gs.nationName(t.Responder))
			settled = append(settled, *t)
			continue
		}
		gs.transfer(t.Proposer, t.Responder, t.Offer)
		gs.transfer(t.Responder, t.Proposer, t.Request)
		gs.AdjustFavorability(t.Proposer, t.Responder, favorTrade)
		t.close(TradeCompleted, gs.Turn)
		gs.addNews(NewsTrade, []string{t.Proposer, t.Responder}, "%s and %s completed a trade",
			gs.nationName(t.Proposer), gs.nationName(t.Responder))
		settled = append(settled, *t)
	}
	gs.prune()
	return settled
}

// ExpireTrades closes proposed trades that have waited the configured number
// of turns.
func (gs *GameState) ExpireTrades() []TradeOffer {
	var expired []TradeOffer
	limit := gs.Rules.TradeExpiryTurns
	if limit <= 0 {
		return nil
	}
	for _, t := range gs.Trades {
		if t.Status == TradeProposed && gs.Turn-t.ProposedTurn >= limit {
			t.close(TradeExpired, gs.Turn)
			expired = append(expired, *t)
		}
	}
	return expired
}

// pruneTrades drops trades that closed in an earlier turn.
func (gs *GameState) pruneTrades() {
	gs.Trades = slices.DeleteFunc(gs.Trades, func(t *TradeOffer) bool {
		return t.Status.Terminal() && t.ClosedTurn < gs.Turn
	})
}

// TradesOf returns the trades a nation is party to.
func (gs *GameState) TradesOf(nation string) []*TradeOffer {
	var out []*TradeOffer
	for _, t := range gs.Trades {
		if t.Proposer == nation || t.Responder == nation {
			out = append(out, t)
		}
	}
	return out
}
