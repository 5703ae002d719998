package conquest

import (
	"context"
	"fmt"
	"slices"
)

// AutoMoveStatus is the lifecycle state of an auto-move order.
type AutoMoveStatus string

const (
	AutoMoveActive    AutoMoveStatus = "active"
	AutoMoveBlocked   AutoMoveStatus = "blocked"
	AutoMoveCompleted AutoMoveStatus = "completed"
	AutoMoveCancelled AutoMoveStatus = "cancelled"
)

// BlockReason explains why an order stopped.
type BlockReason string

const (
	BlockOccupied         BlockReason = "occupied"
	BlockEnemyTerritory   BlockReason = "enemy_territory"
	BlockNeutralTerritory BlockReason = "neutral_territory"
	BlockUnitsLost        BlockReason = "units_lost"
)

// AutoMoveChoice is the owner's resolution of a blocked order.
type AutoMoveChoice string

const (
	ChoiceAttack  AutoMoveChoice = "attack"
	ChoiceRetreat AutoMoveChoice = "retreat"
	ChoiceCancel  AutoMoveChoice = "cancel"
)

// AutoMoveOrder moves a stack one path step per turn until it arrives or is
// blocked.
type AutoMoveOrder struct {
	ID            string         `json:"id"`
	Owner         string         `json:"owner"`
	Class         UnitClass      `json:"class"`
	Amount        int            `json:"amount"`
	Origin        string         `json:"origin"`
	Target        string         `json:"target"`
	Path          []string       `json:"path"`
	PathIndex     int            `json:"path_index"`
	CurrentTile   string         `json:"current_tile"`
	Status        AutoMoveStatus `json:"status"`
	BlockedTile   string         `json:"blocked_tile,omitempty"`
	BlockedReason BlockReason    `json:"blocked_reason,omitempty"`
	CreatedTurn   int            `json:"created_turn"`
}

// Terminal reports whether the order will never move again.
func (o *AutoMoveOrder) Terminal() bool {
	return o.Status == AutoMoveCompleted || o.Status == AutoMoveCancelled
}

// AutoMoveByID returns the order with the given id, or nil.
func (gs *GameState) AutoMoveByID(id string) *AutoMoveOrder {
	for _, o := range gs.AutoMoves {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (gs *GameState) removeAutoMove(id string) {
	gs.AutoMoves = slices.DeleteFunc(gs.AutoMoves, func(o *AutoMoveOrder) bool { return o.ID == id })
}

// CreateAutoMove plans a multi-turn move of amount units of one class. The
// path is computed without a movement budget.
func (gs *GameState) CreateAutoMove(owner, from, to string, class UnitClass, amount int) (*AutoMoveOrder, error) {
	const kind = IntentAutoMove
	if class == Spy {
		return nil, ErrSpyBulkMove
	}
	if _, ok := gs.Rules.Movement[class]; !ok {
		return nil, invalid(kind, "unknown unit class %q", class)
	}
	if amount <= 0 {
		return nil, invalid(kind, "amount must be positive")
	}
	if from == to {
		return nil, invalid(kind, "origin and destination are the same")
	}
	if have := gs.StackCount(from, owner, class); have < amount {
		return nil, fmt.Errorf("%w: %d %s at %s, %d requested", ErrInsufficientUnits, have, class, from, amount)
	}
	path, _, err := FindPath(gs, from, to, 0, []UnitClass{class}, TraversalPredicate(gs, owner))
	if err != nil {
		return nil, err
	}
	o := &AutoMoveOrder{
		ID:          gs.newID("am"),
		Owner:       owner,
		Class:       class,
		Amount:      amount,
		Origin:      from,
		Target:      to,
		Path:        path,
		CurrentTile: from,
		Status:      AutoMoveActive,
		CreatedTurn: gs.Turn,
	}
	gs.AutoMoves = append(gs.AutoMoves, o)
	return o, nil
}

// blockReason returns why mover cannot step onto tile, or "" when the step is
// uncontested.
func (gs *GameState) blockReason(mover, tile string) BlockReason {
	if gs.BattlefieldAt(tile) != nil {
		return BlockOccupied
	}
	for _, o := range gs.OwnersAt(tile) {
		if !gs.Allied(mover, o) {
			return BlockOccupied
		}
	}
	owner := gs.Tiles[tile].Owner
	switch {
	case owner == "" || gs.Allied(mover, owner):
		return ""
	case gs.AtWar(mover, owner):
		return BlockEnemyTerritory
	}
	return BlockNeutralTerritory
}

// AdvanceAutoMove moves an active order one step along its path. Blocked and
// terminal orders are left untouched. It reports whether the order changed.
func (gs *GameState) AdvanceAutoMove(o *AutoMoveOrder) bool {
	if o.Status != AutoMoveActive {
		return false
	}
	have := gs.StackCount(o.CurrentTile, o.Owner, o.Class)
	if have == 0 {
		o.Status = AutoMoveCancelled
		o.BlockedReason = BlockUnitsLost
		return true
	}
	if o.PathIndex >= len(o.Path)-1 {
		o.Status = AutoMoveCompleted
		return true
	}
	next := o.Path[o.PathIndex+1]
	if reason := gs.blockReason(o.Owner, next); reason != "" {
		o.Status = AutoMoveBlocked
		o.BlockedTile = next
		o.BlockedReason = reason
		gs.addNews(NewsAutoMove, []string{o.Owner}, "%s's march to %s is blocked at %s (%s)",
			gs.nationName(o.Owner), o.Target, next, reason)
		return true
	}
	o.Amount = min(o.Amount, have)
	_ = gs.MoveUnits(o.CurrentTile, next, o.Owner, Troops{o.Class: o.Amount})
	gs.occupy(o.Owner, next)
	o.PathIndex++
	o.CurrentTile = next
	if o.PathIndex == len(o.Path)-1 {
		o.Status = AutoMoveCompleted
	}
	return true
}

// AdvanceAutoMoves advances every active order once, in creation order, and
// returns snapshots of the orders that changed.
func (gs *GameState) AdvanceAutoMoves() []AutoMoveOrder {
	var changed []AutoMoveOrder
	for _, o := range gs.AutoMoves {
		if gs.AdvanceAutoMove(o) {
			changed = append(changed, *o)
		}
	}
	return changed
}

// CancelAutoMove removes an active order without moving any units.
func (gs *GameState) CancelAutoMove(owner, id string) (*AutoMoveOrder, error) {
	o := gs.AutoMoveByID(id)
	if o == nil || o.Owner != owner {
		return nil, fmt.Errorf("auto-move %s: %w", id, ErrNotFound)
	}
	if o.Status != AutoMoveActive {
		return nil, fmt.Errorf("auto-move %s is %s: %w", id, o.Status, ErrOrderNotActive)
	}
	o.Status = AutoMoveCancelled
	snap := *o
	gs.removeAutoMove(id)
	return &snap, nil
}

// ResolveAutoMove applies the owner's choice to a blocked order. Attack
// fights for the blocked tile with the order's stack and ends the order.
// Retreat keeps the stack where it is and cancels the order. Cancel discards
// the order.
func (gs *GameState) ResolveAutoMove(ctx context.Context, cr *CombatResolver, owner, id string, choice AutoMoveChoice, strategy string) (*AutoMoveOrder, *BattleReport, error) {
	o := gs.AutoMoveByID(id)
	if o == nil || o.Owner != owner {
		return nil, nil, fmt.Errorf("auto-move %s: %w", id, ErrNotFound)
	}
	if o.Status != AutoMoveBlocked {
		return nil, nil, fmt.Errorf("auto-move %s is %s: %w", id, o.Status, ErrOrderNotBlocked)
	}
	switch choice {
	case ChoiceAttack:
		n := min(o.Amount, gs.StackCount(o.CurrentTile, owner, o.Class))
		if n == 0 {
			return nil, nil, fmt.Errorf("%w: no %s left at %s", ErrInsufficientUnits, o.Class, o.CurrentTile)
		}
		report, err := gs.Attack(ctx, cr, owner, o.CurrentTile, o.BlockedTile, Troops{o.Class: n}, strategy, SourceAutoMove)
		if err != nil {
			return nil, nil, err
		}
		o.Status = AutoMoveCompleted
		snap := *o
		gs.removeAutoMove(id)
		return &snap, report, nil
	case ChoiceRetreat:
		o.Status = AutoMoveCancelled
		return o, nil, nil
	case ChoiceCancel:
		o.Status = AutoMoveCancelled
		snap := *o
		gs.removeAutoMove(id)
		return &snap, nil, nil
	}
	return nil, nil, invalid(IntentAutoMoveResolve, "unknown choice %q", choice)
}

// pruneAutoMoves drops completed and cancelled orders.
func (gs *GameState) pruneAutoMoves() {
	gs.AutoMoves = slices.DeleteFunc(gs.AutoMoves, (*AutoMoveOrder).Terminal)
}

// AutoMovesOf returns a nation's orders in creation order.
func (gs *GameState) AutoMovesOf(owner string) []*AutoMoveOrder {
	var out []*AutoMoveOrder
	for _, o := range gs.AutoMoves {
		if o.Owner == owner {
			out = append(out, o)
		}
	}
	return out
}
