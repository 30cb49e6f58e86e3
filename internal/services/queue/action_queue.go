package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/gm-engine/pkg/intent"
)

// ActionQueue is the ordered multi-producer intent queue for one game
// instance, backed by a Redis list plus a sequence counter. Sequence
// allocation and the list append happen in one server-side script, so
// a drain can never observe an allocated sequence number whose payload
// has not landed yet.
type ActionQueue struct {
	client  *Client
	logger  *slog.Logger
	softCap int
}

// NewActionQueue creates an action queue. softCap is the depth at
// which Enqueue starts signalling for an implicit drain; zero disables
// the signal.
func NewActionQueue(client *Client, softCap int, logger *slog.Logger) *ActionQueue {
	return &ActionQueue{
		client:  client,
		logger:  logger,
		softCap: softCap,
	}
}

func intentsKey(gameID uuid.UUID) string {
	return fmt.Sprintf("intents:%s", gameID.String())
}

func seqKey(gameID uuid.UUID) string {
	return fmt.Sprintf("intents:%s:seq", gameID.String())
}

// enqueueScript stamps the next sequence number into the intent and
// appends it in a single atomic step. Returns {seq, depth}.
var enqueueScript = redis.NewScript(`
local seq = redis.call("INCR", KEYS[1])
local it = cjson.decode(ARGV[1])
it["seq"] = seq
local depth = redis.call("RPUSH", KEYS[2], cjson.encode(it))
return {seq, depth}
`)

// Enqueue appends an intent and returns its sequence number. It always
// succeeds for valid input; when the queue depth crosses the soft cap
// the returned drain flag asks the caller to trigger a resolve, but
// the producer is never blocked or refused.
func (q *ActionQueue) Enqueue(ctx context.Context, gameID uuid.UUID, participantID string, kind intent.Kind, text string) (int64, bool, error) {
	// The sequence number is stamped server-side by enqueueScript.
	in := &intent.Intent{
		ParticipantID: participantID,
		Kind:          kind,
		Text:          text,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := in.Validate(); err != nil {
		return 0, false, fmt.Errorf("invalid intent: %w", err)
	}

	data, err := in.ToJSON()
	if err != nil {
		return 0, false, fmt.Errorf("failed to serialize intent: %w", err)
	}

	res, err := enqueueScript.Run(ctx, q.client.rdb, []string{seqKey(gameID), intentsKey(gameID)}, data).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("failed to enqueue intent: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected enqueue script reply: %v", res)
	}
	seq, depth := res[0], res[1]

	q.logger.Debug("Intent enqueued",
		"game_id", gameID.String(),
		"participant_id", participantID,
		"kind", kind,
		"seq", seq,
		"depth", depth,
	)

	wantDrain := q.softCap > 0 && depth >= int64(q.softCap)
	return seq, wantDrain, nil
}

// SnapshotAndClear atomically removes and returns all queued intents,
// ordered by sequence number. Intents enqueued strictly before the
// call are included; anything enqueued after belongs to the next
// drain. Concurrent callers serialize on the Redis transaction; the
// loser observes an empty snapshot, which is not an error.
func (q *ActionQueue) SnapshotAndClear(ctx context.Context, gameID uuid.UUID) ([]*intent.Intent, error) {
	key := intentsKey(gameID)

	var lrange *redis.StringSliceCmd
	_, err := q.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to drain intent queue: %w", err)
	}

	raw := lrange.Val()
	intents := make([]*intent.Intent, 0, len(raw))
	for _, item := range raw {
		in, err := intent.FromJSON([]byte(item))
		if err != nil {
			// A corrupt entry is dropped, not fatal for the batch.
			q.logger.Error("Dropping unparseable queued intent", "error", err)
			continue
		}
		intents = append(intents, in)
	}

	sort.Slice(intents, func(i, j int) bool {
		return intents[i].Seq < intents[j].Seq
	})
	return intents, nil
}

// Depth returns the number of queued intents for a game.
func (q *ActionQueue) Depth(ctx context.Context, gameID uuid.UUID) (int, error) {
	count, err := q.client.rdb.LLen(ctx, intentsKey(gameID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}

// Clear removes all queued intents and resets nothing else; the
// sequence counter keeps climbing so ordering stays monotonic across
// clears.
func (q *ActionQueue) Clear(ctx context.Context, gameID uuid.UUID) error {
	if err := q.client.rdb.Del(ctx, intentsKey(gameID)).Err(); err != nil {
		return fmt.Errorf("failed to clear intent queue: %w", err)
	}
	return nil
}
