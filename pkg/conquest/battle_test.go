package conquest

import (
	"context"
	"errors"
	"testing"
)

// frontState puts a's army at 0,0 facing b's border tiles 1,0 and 2,0.
func frontState(bTroops int) *GameState {
	gs := newTestState(3, "a", "b", "c")
	gs.AddUnits(tid(0, 0), "a", Infantry, 20)
	gs.Tiles[tid(0, 0)].Owner = "a"
	gs.Tiles[tid(1, 0)].Owner = "b"
	gs.Tiles[tid(2, 0)].Owner = "b"
	if bTroops > 0 {
		gs.AddUnits(tid(1, 0), "b", Infantry, bTroops)
	}
	return gs
}

func TestMoveClaimsUnownedTiles(t *testing.T) {
	gs := frontState(0)
	b, err := gs.Move("a", tid(0, 0), tid(-2, 0), Troops{Infantry: 5})
	mustNil(t, err)
	if b != nil {
		t.Fatal("no battlefield expected")
	}
	if gs.StackCount(tid(-2, 0), "a", Infantry) != 5 || gs.StackCount(tid(0, 0), "a", Infantry) != 15 {
		t.Error("stack should split")
	}
	if gs.Tiles[tid(-2, 0)].Owner != "a" {
		t.Error("destination should be claimed")
	}
}

func TestMoveErrors(t *testing.T) {
	gs := frontState(0)
	gs.AddUnits(tid(0, 1), "c", Archer, 1)
	cases := []struct {
		name   string
		to     string
		troops Troops
		check  func(error) bool
	}{
		{"beyond budget", tid(-3, 0), Troops{Infantry: 1}, func(err error) bool { return errors.Is(err, ErrNoPathAvailable) }},
		{"neutral territory", tid(1, 0), Troops{Infantry: 1}, func(err error) bool { return errors.Is(err, ErrNoPathAvailable) }},
		{"neutral occupant", tid(0, 1), Troops{Infantry: 1}, IsValidation},
		{"too many", tid(-1, 0), Troops{Infantry: 21}, func(err error) bool { return errors.Is(err, ErrInsufficientUnits) }},
		{"spies", tid(-1, 0), Troops{Spy: 1}, func(err error) bool { return errors.Is(err, ErrSpyBulkMove) }},
		{"unknown tile", "9,9", Troops{Infantry: 1}, IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gs.Move("a", tid(0, 0), tc.to, tc.troops)
			if !tc.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
			if gs.StackCount(tid(0, 0), "a", Infantry) != 20 {
				t.Error("failed move must not touch the stack")
			}
		})
	}
}

func openFront(t *testing.T, bTroops int) (*GameState, *Battlefield) {
	t.Helper()
	gs := frontState(bTroops)
	setWar(gs, "a", "b")
	b, err := gs.Move("a", tid(0, 0), tid(1, 0), Troops{Infantry: 20})
	mustNil(t, err)
	if b == nil {
		t.Fatal("moving onto enemy troops should open a battlefield")
	}
	return gs, b
}

func TestMoveIntoEnemyOpensBattlefield(t *testing.T) {
	gs, b := openFront(t, 10)
	if b.Tile != tid(1, 0) || b.OpenedTurn != gs.Turn {
		t.Errorf("unexpected battlefield: %+v", b)
	}
	atk, def := b.participant(RoleAttacker), b.participant(RoleDefender)
	if atk.Player != "a" || atk.RetreatTile != tid(0, 0) {
		t.Errorf("attacker = %+v", atk)
	}
	if def.Player != "b" || def.RetreatTile != tid(2, 0) {
		t.Errorf("defender = %+v", def)
	}
	if gs.Tiles[tid(1, 0)].Owner != "b" {
		t.Error("contested tile keeps its owner until resolved")
	}
	gs.AddUnits(tid(-1, 0), "a", Infantry, 5)
	if _, err := gs.Move("a", tid(-1, 0), tid(1, 0), Troops{Infantry: 5}); !IsValidation(err) {
		t.Errorf("joining a contested tile should be rejected, got %v", err)
	}
	if reports := gs.ResolveBattlefields(context.Background(), &CombatResolver{Rules: &gs.Rules}); len(reports) != 0 || len(gs.Battlefields) != 1 {
		t.Error("a battlefield waits until the next turn")
	}
}

func TestBattlefieldFight(t *testing.T) {
	gs, b := openFront(t, 10)
	mustNil(t, gs.ActOnBattlefield("a", b.ID, BattleFight, "pin and flank"))
	mustNil(t, gs.ActOnBattlefield("b", b.ID, BattleFight, ""))
	if err := gs.ActOnBattlefield("c", b.ID, BattleFight, ""); !IsValidation(err) {
		t.Errorf("outsider acted on battlefield: %v", err)
	}
	gs.Turn++
	reports := gs.ResolveBattlefields(context.Background(), &CombatResolver{Rules: &gs.Rules})
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	r := reports[0]
	if r.Source != SourceBattlefield || r.Result.Winner != OutcomeAttacker || !r.Conquered {
		t.Errorf("unexpected report: %+v", r)
	}
	if gs.StackCount(tid(1, 0), "a", Infantry) != 14 {
		t.Errorf("expected 14 attackers holding the tile, got %d", gs.StackCount(tid(1, 0), "a", Infantry))
	}
	if gs.StackCount(tid(2, 0), "b", Infantry) != 8 {
		t.Errorf("expected 8 defenders fallen back, got %d", gs.StackCount(tid(2, 0), "b", Infantry))
	}
	if gs.Tiles[tid(1, 0)].Owner != "a" || len(gs.Battlefields) != 0 {
		t.Error("tile should change hands and the battlefield close")
	}
}

func TestBattlefieldIdleAttackerFallsBack(t *testing.T) {
	gs, b := openFront(t, 10)
	mustNil(t, gs.ActOnBattlefield("b", b.ID, BattleFight, ""))
	gs.Turn++
	if reports := gs.ResolveBattlefields(context.Background(), &CombatResolver{Rules: &gs.Rules}); len(reports) != 0 {
		t.Errorf("no fight expected, got %+v", reports)
	}
	if gs.StackCount(tid(0, 0), "a", Infantry) != 20 || gs.StackCount(tid(1, 0), "b", Infantry) != 10 {
		t.Error("attacker should be back home with the defender untouched")
	}
	if gs.Tiles[tid(1, 0)].Owner != "b" {
		t.Error("tile should stay with b")
	}
}

func TestBattlefieldDefenderRetreats(t *testing.T) {
	gs, b := openFront(t, 10)
	mustNil(t, gs.ActOnBattlefield("a", b.ID, BattleFight, ""))
	mustNil(t, gs.ActOnBattlefield("b", b.ID, BattleRetreat, ""))
	gs.Turn++
	gs.ResolveBattlefields(context.Background(), &CombatResolver{Rules: &gs.Rules})
	if gs.StackCount(tid(2, 0), "b", Infantry) != 10 || gs.StackCount(tid(1, 0), "a", Infantry) != 20 {
		t.Error("defender should withdraw intact and the attacker hold the tile")
	}
	if gs.Tiles[tid(1, 0)].Owner != "a" {
		t.Error("attacker should claim the abandoned tile")
	}
}

func TestBattlefieldDrawSendsAttackerBack(t *testing.T) {
	gs := frontState(10)
	setWar(gs, "a", "b")
	b, err := gs.Move("a", tid(0, 0), tid(1, 0), Troops{Infantry: 12})
	mustNil(t, err)
	mustNil(t, gs.ActOnBattlefield("a", b.ID, BattleFight, ""))
	mustNil(t, gs.ActOnBattlefield("b", b.ID, BattleFight, ""))
	gs.Turn++
	reports := gs.ResolveBattlefields(context.Background(), &CombatResolver{Rules: &gs.Rules})
	if len(reports) != 1 || reports[0].Result.Winner != OutcomeDraw {
		t.Fatalf("expected a draw, got %+v", reports)
	}
	if gs.StackCount(tid(1, 0), "a", Infantry) != 0 {
		t.Error("attacker must leave the tile after a draw")
	}
	if gs.StackCount(tid(0, 0), "a", Infantry) != 8+7 {
		t.Errorf("expected survivors back home, got %d", gs.StackCount(tid(0, 0), "a", Infantry))
	}
	if gs.Tiles[tid(1, 0)].Owner != "b" {
		t.Error("holder keeps the tile on a draw")
	}
}

func TestAttackDeclaresWar(t *testing.T) {
	gs := frontState(5)
	cr := &CombatResolver{Rules: &gs.Rules}
	report, err := gs.Attack(context.Background(), cr, "a", tid(0, 0), tid(1, 0), Troops{Infantry: 20}, "", SourceAttack)
	mustNil(t, err)
	if !gs.AtWar("a", "b") {
		t.Error("attack should declare war")
	}
	if report == nil || report.Result.Winner != OutcomeAttacker || !report.Conquered {
		t.Fatalf("unexpected report: %+v", report)
	}
	if gs.StackCount(tid(1, 0), "a", Infantry) != 14 || gs.StackCount(tid(2, 0), "b", Infantry) != 4 {
		t.Error("attackers should move in and defenders fall back")
	}
	if gs.Tiles[tid(1, 0)].Owner != "a" {
		t.Error("tile should change hands")
	}
}

func TestAttackRules(t *testing.T) {
	gs := frontState(5)
	cr := &CombatResolver{Rules: &gs.Rules}
	ctx := context.Background()
	if _, err := gs.Attack(ctx, cr, "a", tid(0, 0), tid(2, 0), Troops{Infantry: 1}, "", SourceAttack); !IsValidation(err) {
		t.Errorf("non-adjacent attack: got %v", err)
	}
	setStatus(gs, "a", "b", StatusAlliance)
	if _, err := gs.Attack(ctx, cr, "a", tid(0, 0), tid(1, 0), Troops{Infantry: 1}, "", SourceAttack); !IsValidation(err) {
		t.Errorf("attacking an ally: got %v", err)
	}

	// An empty enemy tile is simply taken.
	gs = frontState(0)
	cr = &CombatResolver{Rules: &gs.Rules}
	report, err := gs.Attack(ctx, cr, "a", tid(0, 0), tid(1, 0), Troops{Infantry: 3}, "", SourceAttack)
	mustNil(t, err)
	if report != nil || gs.Tiles[tid(1, 0)].Owner != "a" || !gs.AtWar("a", "b") {
		t.Errorf("expected a bloodless capture, report %+v", report)
	}
}

func TestAttackDefeatKeepsAttackerHome(t *testing.T) {
	gs := frontState(50)
	cr := &CombatResolver{Rules: &gs.Rules}
	report, err := gs.Attack(context.Background(), cr, "a", tid(0, 0), tid(1, 0), Troops{Infantry: 20}, "", SourceAttack)
	mustNil(t, err)
	if report.Result.Winner != OutcomeDefender || report.Conquered {
		t.Fatalf("expected defender win, got %+v", report.Result)
	}
	if gs.StackCount(tid(0, 0), "a", Infantry) != 10 || gs.StackCount(tid(1, 0), "a", Infantry) != 0 {
		t.Error("attacker survivors should stay at the origin")
	}
}
