package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/internal/repository"
)

// ExpirySource reports rooms whose turn timer ran out.
type ExpirySource interface {
	ExpiredRooms(ctx context.Context) <-chan string
}

// TimerListener closes action windows when their deadline passes. Timer
// expiry events trigger resolution promptly and a poller over the turn
// archive catches anything the events missed.
type TimerListener struct {
	source   ExpirySource
	turnSvc  *TurnService
	turnRepo repository.TurnRepository
	interval time.Duration
}

// NewTimerListener creates a TimerListener. source may be nil, leaving only
// the poller.
func NewTimerListener(source ExpirySource, turnSvc *TurnService, turnRepo repository.TurnRepository) *TimerListener {
	return &TimerListener{source: source, turnSvc: turnSvc, turnRepo: turnRepo, interval: 10 * time.Second}
}

// Start runs until ctx is cancelled.
func (t *TimerListener) Start(ctx context.Context) {
	if t.source != nil {
		go t.listen(ctx)
	}
	t.poll(ctx)
}

func (t *TimerListener) listen(ctx context.Context) {
	log.Info().Msg("Timer listener started")
	for roomID := range t.source.ExpiredRooms(ctx) {
		t.resolve(ctx, roomID, "timer")
	}
}

func (t *TimerListener) poll(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("Turn deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Turn deadline poller stopped")
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

// sweep resolves every open turn whose deadline has passed.
func (t *TimerListener) sweep(ctx context.Context) {
	turns, err := t.turnRepo.ListExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired turns")
		return
	}
	for _, tr := range turns {
		log.Debug().Str("roomId", tr.RoomID).Int("turn", tr.Number).
			Time("deadline", tr.Deadline).Msg("Poller found expired turn")
		t.resolve(ctx, tr.RoomID, "poller")
	}
}

func (t *TimerListener) resolve(ctx context.Context, roomID, via string) {
	if err := t.turnSvc.ResolveTurn(ctx, roomID); err != nil {
		log.Error().Err(err).Str("roomId", roomID).Str("via", via).Msg("Turn resolution failed")
	}
}
