package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcai27/Chessica/internal/apperr"
)

const queueTTL = time.Hour

// pairScript atomically scans a bucket for a compatible opponent and
// removes them from the queue. Stale ids whose entry hash expired are
// pruned as they are encountered.
var pairScript = redis.NewScript(`
local bucket = KEYS[1]
local requester = ARGV[1]
local reqcolor = ARGV[2]
local ids = redis.call('LRANGE', bucket, 0, -1)
for i, id in ipairs(ids) do
  if id ~= requester then
    local key = 'mm:queue:' .. id
    local color = redis.call('HGET', key, 'color')
    if color then
      if color == 'auto' or reqcolor == 'auto' or color ~= reqcolor then
        local entry = redis.call('HGETALL', key)
        redis.call('LREM', bucket, 0, id)
        redis.call('DEL', key)
        return entry
      end
    else
      redis.call('LREM', bucket, 0, id)
    end
  end
end
return false
`)

// RedisStore keeps the queue in Redis so multiple server processes can
// pair against the same pool.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func bucketKey(bucket string) string  { return "mm:bucket:" + bucket }
func entryKey(playerID string) string { return "mm:queue:" + playerID }
func matchKey(playerID string) string { return "mm:matched:" + playerID }

func (r *RedisStore) PairAndPop(ctx context.Context, requester Entry) (*Entry, error) {
	res, err := pairScript.Run(ctx, r.client,
		[]string{bucketKey(requester.Bucket)}, requester.PlayerID, requester.Color).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Persistence, "matchmaking pair", err)
	}
	fields, ok := res.([]interface{})
	if !ok || len(fields) == 0 {
		return nil, nil
	}

	entry := Entry{}
	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		value, _ := fields[i+1].(string)
		switch key {
		case "player_id":
			entry.PlayerID = value
		case "bucket":
			entry.Bucket = value
		case "color":
			entry.Color = value
		case "initial_ms":
			entry.TimeControl.InitialMs, _ = strconv.Atoi(value)
		case "increment_ms":
			entry.TimeControl.IncrementMs, _ = strconv.Atoi(value)
		}
	}
	if entry.PlayerID == "" {
		return nil, nil
	}
	return &entry, nil
}

func (r *RedisStore) Push(ctx context.Context, e Entry) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, entryKey(e.PlayerID), map[string]interface{}{
		"player_id":    e.PlayerID,
		"bucket":       e.Bucket,
		"color":        e.Color,
		"initial_ms":   e.TimeControl.InitialMs,
		"increment_ms": e.TimeControl.IncrementMs,
	})
	pipe.Expire(ctx, entryKey(e.PlayerID), queueTTL)
	pipe.RPush(ctx, bucketKey(e.Bucket), e.PlayerID)
	pipe.Expire(ctx, bucketKey(e.Bucket), queueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Persistence, "matchmaking enqueue", err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, playerID string) error {
	bucket, err := r.client.HGet(ctx, entryKey(playerID), "bucket").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return apperr.Wrap(apperr.Persistence, "matchmaking dequeue", err)
	}
	pipe := r.client.TxPipeline()
	if bucket != "" {
		pipe.LRem(ctx, bucketKey(bucket), 0, playerID)
	}
	pipe.Del(ctx, entryKey(playerID), matchKey(playerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Persistence, "matchmaking dequeue", err)
	}
	return nil
}

func (r *RedisStore) IsQueued(ctx context.Context, playerID string) (bool, error) {
	n, err := r.client.Exists(ctx, entryKey(playerID)).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.Persistence, "matchmaking status", err)
	}
	return n > 0, nil
}

func (r *RedisStore) PutNotification(ctx context.Context, playerID string, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "encode match notification", err)
	}
	if err := r.client.SetEx(ctx, matchKey(playerID), payload, queueTTL).Err(); err != nil {
		return apperr.Wrap(apperr.Persistence, "store match notification", err)
	}
	return nil
}

// TakeNotification consumes the pending match message, if any. GETDEL
// keeps delivery at-most-once across processes.
func (r *RedisStore) TakeNotification(ctx context.Context, playerID string) (*Notification, bool, error) {
	payload, err := r.client.GetDel(ctx, matchKey(playerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, apperr.Wrap(apperr.Persistence, "take match notification", err)
	}
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, false, apperr.Wrap(apperr.Persistence, "decode match notification", err)
	}
	return &n, true, nil
}
