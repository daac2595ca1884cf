package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	unreadTTL = 90 * 24 * time.Hour

	// present only in hashes written by Seed
	seededField = "_seeded"
)

// UnreadRepository mirrors per-user unread counters in Redis hashes:
// key unread:user:{id}, one field per room plus a completeness marker.
// A nil repository or client is valid and behaves as "no mirror".
type UnreadRepository struct {
	client *redis.Client
}

func NewUnreadRepository(client *redis.Client) *UnreadRepository {
	return &UnreadRepository{client: client}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func unreadKey(userID string) string {
	return "unread:user:" + userID
}

// Enabled reports whether a Redis client is configured.
func (r *UnreadRepository) Enabled() bool {
	return r != nil && r.client != nil
}

// Increment bumps one counter. A hash that was never seeded stays
// incomplete, so Counts keeps reporting ok=false until the next Seed.
func (r *UnreadRepository) Increment(ctx context.Context, userID, roomID string) error {
	if !r.Enabled() {
		return nil
	}
	key := unreadKey(userID)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, roomID, 1)
	pipe.Expire(ctx, key, unreadTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *UnreadRepository) Clear(ctx context.Context, userID, roomID string) error {
	if !r.Enabled() {
		return nil
	}
	return r.client.HDel(ctx, unreadKey(userID), roomID).Err()
}

// Invalidate drops userID's hash so the next read reseeds it from SQL.
func (r *UnreadRepository) Invalidate(ctx context.Context, userID string) error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Del(ctx, unreadKey(userID)).Err()
}

// Seed replaces userID's counters with the result of load and marks the hash
// complete. The hash is watched while load runs; if a concurrent Increment
// touches it the write is abandoned with redis.TxFailedErr and the loaded
// counts are still returned.
func (r *UnreadRepository) Seed(ctx context.Context, userID string, load func(context.Context) (map[string]int, error)) (map[string]int, error) {
	if !r.Enabled() {
		return load(ctx)
	}
	key := unreadKey(userID)
	var counts map[string]int
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var err error
		counts, err = load(ctx)
		if err != nil {
			return err
		}
		fields := make([]any, 0, 2*len(counts)+2)
		fields = append(fields, seededField, 1)
		for roomID, n := range counts {
			if n > 0 {
				fields = append(fields, roomID, n)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, fields...)
			pipe.Expire(ctx, key, unreadTTL)
			return nil
		})
		return err
	}, key)
	return counts, err
}

// RemoveRoom drops the room's field for every given user.
func (r *UnreadRepository) RemoveRoom(ctx context.Context, roomID string, userIDs ...string) error {
	if !r.Enabled() {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, id := range userIDs {
		pipe.HDel(ctx, unreadKey(id), roomID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Counts returns the mirrored counters for userID. ok is false when the
// mirror is disabled or the hash was not written by Seed (lost, expired or
// only holding increments made since).
func (r *UnreadRepository) Counts(ctx context.Context, userID string) (counts map[string]int, ok bool, err error) {
	if !r.Enabled() {
		return nil, false, nil
	}
	fields, err := r.client.HGetAll(ctx, unreadKey(userID)).Result()
	if err != nil {
		return nil, false, err
	}
	if _, seeded := fields[seededField]; !seeded {
		return nil, false, nil
	}
	counts = make(map[string]int, len(fields)-1)
	for roomID, v := range fields {
		if roomID == seededField {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		counts[roomID] = n
	}
	return counts, true, nil
}
