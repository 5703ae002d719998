package service

import (
	"context"
	"testing"
)

type chanSource chan string

func (c chanSource) ExpiredRooms(context.Context) <-chan string { return c }

func TestTimerSweepResolvesExpiredTurns(t *testing.T) {
	tr := setupActiveRoom(t, nil, false)
	ctx := context.Background()
	tl := NewTimerListener(nil, tr.turns, tr.turnRepo)

	tl.sweep(ctx)
	if gs := tr.state(t); gs.Turn != 1 {
		t.Fatalf("expected turn 1 before deadline, got %d", gs.Turn)
	}

	tr.turnRepo.expire(tr.id)
	tl.sweep(ctx)
	if gs := tr.state(t); gs.Turn != 2 {
		t.Errorf("expected turn 2 after sweep, got %d", gs.Turn)
	}
}

func TestTimerListenResolvesExpiredRooms(t *testing.T) {
	tr := setupActiveRoom(t, nil, false)
	tr.turnRepo.expire(tr.id)

	src := make(chanSource, 2)
	src <- tr.id
	src <- "unknown-room"
	close(src)

	tl := NewTimerListener(src, tr.turns, tr.turnRepo)
	tl.listen(context.Background())

	if gs := tr.state(t); gs.Turn != 2 {
		t.Errorf("expected turn 2 after timer event, got %d", gs.Turn)
	}
}
