package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions in Redis so they are shared across
// instances. Expiry is delegated to the key TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Get(ctx context.Context, id string) (Data, bool, error) {
	val, err := r.client.Get(ctx, r.key(id)).Result()
	if err == redis.Nil {
		return Data{}, false, nil
	}
	if err != nil {
		return Data{}, false, err
	}

	var d Data
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		return Data{}, false, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return d, true, nil
}

func (r *RedisStore) Set(ctx context.Context, id string, d Data, ttl time.Duration) error {
	if id == "" {
		return fmt.Errorf("session: missing session id")
	}
	if ttl <= 0 {
		// An already-expired session must not be extended.
		return r.client.Del(ctx, r.key(id)).Err()
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	return r.client.Set(ctx, r.key(id), raw, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// List scans all session keys and fetches their payloads in batches.
// Keys that disappear between SCAN and MGET are skipped.
func (r *RedisStore) List(ctx context.Context) ([]Record, error) {
	var records []Record

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()

	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vals, err := r.client.MGet(ctx, batch...).Result()
		if err != nil {
			return err
		}
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue // expired between SCAN and MGET
			}
			var d Data
			if err := json.Unmarshal([]byte(raw), &d); err != nil {
				continue
			}
			records = append(records, Record{ID: batch[i][len(r.prefix):], Data: d})
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return records, nil
}
