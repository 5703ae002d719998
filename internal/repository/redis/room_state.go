package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/hex-conquest/api/internal/model"
	"github.com/freeeve/hex-conquest/api/internal/repository"
)

// Key patterns for live room state.
func stateKey(roomID string) string             { return "room:" + roomID + ":state" }
func phaseKey(roomID string) string             { return "room:" + roomID + ":phase" }
func intentsKey(roomID string, turn int) string { return "room:" + roomID + ":intents:" + strconv.Itoa(turn) }
func readyKey(roomID string) string             { return "room:" + roomID + ":ready" }
func timerKey(roomID string) string             { return "room:" + roomID + ":timer" }

// submitScript writes an intent only while the room is in its action window
// for the given turn and before the deadline. Returns 1 on success, 0 when
// the window is closed and -1 for a stale turn.
var submitScript = redis.NewScript(`
local w = redis.call('HMGET', KEYS[1], 'phase', 'turn', 'deadline')
if w[1] ~= 'action' then return 0 end
if tonumber(w[2]) ~= tonumber(ARGV[1]) then return -1 end
if tonumber(ARGV[2]) >= tonumber(w[3]) then return 0 end
if ARGV[4] == '' then
  redis.call('HDEL', KEYS[2], ARGV[3])
else
  redis.call('HSET', KEYS[2], ARGV[3], ARGV[4])
end
return 1
`)

// drainScript closes the action window and hands back every queued intent
// in one step, so no submission can land between the read and the close.
var drainScript = redis.NewScript(`
local t = redis.call('HGET', KEYS[1], 'turn')
if not t or tonumber(t) ~= tonumber(ARGV[1]) then return false end
redis.call('HSET', KEYS[1], 'phase', 'resolution')
local all = redis.call('HGETALL', KEYS[2])
redis.call('DEL', KEYS[2])
return all
`)

// SetRoomState stores the live room state JSON.
func (c *Client) SetRoomState(ctx context.Context, roomID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(roomID), []byte(state), 0).Err()
}

// GetRoomState retrieves the live room state JSON, or nil if none is cached.
func (c *Client) GetRoomState(ctx context.Context, roomID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room state: %w", err)
	}
	return json.RawMessage(data), nil
}

// OpenTurn starts the action window for a turn and arms its timer.
func (c *Client) OpenTurn(ctx context.Context, roomID string, turn int, deadline time.Time) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, phaseKey(roomID),
			"phase", "action",
			"turn", turn,
			"deadline", deadline.UnixMilli(),
		)
		pipe.Set(ctx, timerKey(roomID), deadline.Unix(), timerTTL(deadline))
		return nil
	})
	if err != nil {
		return fmt.Errorf("open turn: %w", err)
	}
	return nil
}

// Window returns the scheduler state of a room, or nil if none is cached.
func (c *Client) Window(ctx context.Context, roomID string) (*model.TurnWindow, error) {
	vals, err := c.rdb.HGetAll(ctx, phaseKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get window: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	turn, _ := strconv.Atoi(vals["turn"])
	ms, _ := strconv.ParseInt(vals["deadline"], 10, 64)
	return &model.TurnWindow{
		Phase:    vals["phase"],
		Turn:     turn,
		Deadline: time.UnixMilli(ms),
	}, nil
}

func (c *Client) runSubmit(ctx context.Context, roomID string, turn int, field string, payload []byte, now time.Time) error {
	n, err := submitScript.Run(ctx, c.rdb,
		[]string{phaseKey(roomID), intentsKey(roomID, turn)},
		turn, now.UnixMilli(), field, payload,
	).Int()
	if err != nil {
		return fmt.Errorf("submit intent: %w", err)
	}
	switch n {
	case 1:
		return nil
	case -1:
		return repository.ErrStaleTurn
	default:
		return repository.ErrIntakeClosed
	}
}

// SubmitIntent queues an intent in its slot, replacing any earlier one.
func (c *Client) SubmitIntent(ctx context.Context, roomID string, turn int, nation, slot string, payload json.RawMessage, now time.Time) error {
	if len(payload) == 0 {
		return fmt.Errorf("submit intent: empty payload")
	}
	return c.runSubmit(ctx, roomID, turn, repository.IntentField(nation, slot), payload, now)
}

// WithdrawIntent clears a queued slot under the same window rules as
// SubmitIntent.
func (c *Client) WithdrawIntent(ctx context.Context, roomID string, turn int, nation, slot string) error {
	return c.runSubmit(ctx, roomID, turn, repository.IntentField(nation, slot), nil, time.Now())
}

// NationIntents returns one nation's queued intents keyed by slot.
func (c *Client) NationIntents(ctx context.Context, roomID string, turn int, nation string) (map[string]json.RawMessage, error) {
	all, err := c.rdb.HGetAll(ctx, intentsKey(roomID, turn)).Result()
	if err != nil {
		return nil, fmt.Errorf("get intents: %w", err)
	}
	out := make(map[string]json.RawMessage)
	for field, payload := range all {
		n, slot, ok := repository.SplitIntentField(field)
		if ok && n == nation {
			out[slot] = json.RawMessage(payload)
		}
	}
	return out, nil
}

// DrainIntents closes the action window of the turn and returns every queued
// intent keyed by "nation|slot".
func (c *Client) DrainIntents(ctx context.Context, roomID string, turn int) (map[string]json.RawMessage, error) {
	flat, err := drainScript.Run(ctx, c.rdb,
		[]string{phaseKey(roomID), intentsKey(roomID, turn)}, turn,
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrStaleTurn
	}
	if err != nil {
		return nil, fmt.Errorf("drain intents: %w", err)
	}
	out := make(map[string]json.RawMessage, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out[flat[i]] = json.RawMessage(flat[i+1])
	}
	return out, nil
}

// MarkReady adds a nation to the ready set for the room.
func (c *Client) MarkReady(ctx context.Context, roomID, nation string) error {
	return c.rdb.SAdd(ctx, readyKey(roomID), nation).Err()
}

// UnmarkReady removes a nation from the ready set.
func (c *Client) UnmarkReady(ctx context.Context, roomID, nation string) error {
	return c.rdb.SRem(ctx, readyKey(roomID), nation).Err()
}

// ReadyCount returns how many nations have marked ready.
func (c *Client) ReadyCount(ctx context.Context, roomID string) (int64, error) {
	return c.rdb.SCard(ctx, readyKey(roomID)).Result()
}

// ReadyNations returns the set of nations that have marked ready.
func (c *Client) ReadyNations(ctx context.Context, roomID string) ([]string, error) {
	return c.rdb.SMembers(ctx, readyKey(roomID)).Result()
}

// turnGracePeriod is the extra time after the displayed deadline before
// resolution triggers.
const turnGracePeriod = 5 * time.Second

func timerTTL(deadline time.Time) time.Duration {
	ttl := time.Until(deadline) + turnGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

// SetTimer creates a timer key with a TTL. When the key expires, Redis
// keyspace notifications trigger turn resolution.
func (c *Client) SetTimer(ctx context.Context, roomID string, deadline time.Time) error {
	return c.rdb.Set(ctx, timerKey(roomID), deadline.Unix(), timerTTL(deadline)).Err()
}

// ClearTimer removes the timer for a room.
func (c *Client) ClearTimer(ctx context.Context, roomID string) error {
	return c.rdb.Del(ctx, timerKey(roomID)).Err()
}

// ClearTurnData removes ready status and the timer after a resolution.
func (c *Client) ClearTurnData(ctx context.Context, roomID string) error {
	return c.rdb.Del(ctx, readyKey(roomID), timerKey(roomID)).Err()
}

// DeleteRoomData removes all Redis data for a room.
func (c *Client) DeleteRoomData(ctx context.Context, roomID string) error {
	keys := []string{stateKey(roomID), phaseKey(roomID), readyKey(roomID), timerKey(roomID)}
	iter := c.rdb.Scan(ctx, 0, "room:"+roomID+":intents:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan intent keys: %w", err)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// RoomIDFromTimerKey extracts the room id from an expired timer key.
func RoomIDFromTimerKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "room:") || !strings.HasSuffix(key, ":timer") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(key, "room:"), ":timer"), true
}
