package settings

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKey     = "embedpref:settings"
	genKey       = "embedpref:settings:gen"
	changeStream = "embedpref:settings:changes"
	encPrefix    = "enc:"

	readRetryDelay = time.Second
)

// Change describes one applied settings write.
type Change struct {
	ID              string    `json:"id"`
	Keys            []string  `json:"keys"`
	EmbeddingEngine string    `json:"embedding_engine,omitempty"`
	At              time.Time `json:"at"`
}

// CachedStore fronts another Store with a Redis hash and publishes a Change
// to a Redis stream after every Save.
type CachedStore struct {
	inner  Store
	rdb    *redis.Client
	cipher *Cipher
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore connects to redisURL and wraps inner. Secrets are kept
// encrypted in the cache with c.
func NewCachedStore(inner Store, redisURL string, c *Cipher, ttl time.Duration, logger *zap.Logger) (*CachedStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &CachedStore{inner: inner, rdb: rdb, cipher: c, ttl: ttl, logger: logger}, nil
}

// Load serves from the cache when present, otherwise from the inner store.
// A miss refills the cache only if no Save ran since the miss was observed.
func (c *CachedStore) Load(ctx context.Context) (Snapshot, error) {
	gen, genErr := c.generation(ctx)
	cached, err := c.rdb.HGetAll(ctx, cacheKey).Result()
	if err != nil {
		c.logger.Warn("settings cache read failed", zap.Error(err))
	} else if len(cached) > 0 {
		snap, err := c.decode(cached)
		if err == nil {
			return snap, nil
		}
		c.logger.Warn("settings cache decode failed", zap.Error(err))
	}

	snap, err := c.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap) > 0 && genErr == nil {
		c.fill(ctx, gen, snap)
	}
	return snap, nil
}

// Save writes through, bumps the cache generation, drops the cached copy and
// publishes a Change.
func (c *CachedStore) Save(ctx context.Context, values map[string]string) error {
	if err := c.inner.Save(ctx, values); err != nil {
		return err
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Del(ctx, cacheKey)
		return nil
	})
	if err != nil {
		c.logger.Warn("settings cache invalidate failed", zap.Error(err))
	}

	change := Change{
		ID:              uuid.New().String(),
		Keys:            sortedKeys(values),
		EmbeddingEngine: values[KeyEmbeddingEngine],
		At:              time.Now().UTC(),
	}
	_, err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: changeStream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{
			"id":     change.ID,
			"keys":   strings.Join(change.Keys, ","),
			"engine": change.EmbeddingEngine,
			"at":     change.At.Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		c.logger.Warn("publish settings change failed", zap.Error(err))
	}
	return nil
}

// Changes streams Change events published after the call. Cancel ctx to stop.
func (c *CachedStore) Changes(ctx context.Context) <-chan Change {
	ch := make(chan Change, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := c.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{changeStream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					c.logger.Warn("settings change read failed", zap.Error(err))
					select {
					case <-ctx.Done():
						return
					case <-time.After(readRetryDelay):
					}
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					change := parseChange(msg.Values)
					select {
					case ch <- change:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (c *CachedStore) Close() error {
	return c.rdb.Close()
}

func (c *CachedStore) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// fill caches snap unless the generation moved past gen. A Save that lands
// after the check deletes the hash, so stale data never outlives it.
func (c *CachedStore) fill(ctx context.Context, gen int64, snap Snapshot) {
	fields := make(map[string]interface{}, len(snap))
	for k, v := range snap {
		if IsSecret(k) && v != "" {
			enc, err := c.cipher.Encrypt(v)
			if err != nil {
				c.logger.Warn("settings cache encrypt failed", zap.Error(err))
				return
			}
			v = encPrefix + hex.EncodeToString(enc)
		}
		fields[k] = v
	}
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return redis.TxFailedErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, cacheKey, fields)
			pipe.Expire(ctx, cacheKey, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("settings cache fill skipped, settings changed meanwhile")
	case err != nil:
		c.logger.Warn("settings cache write failed", zap.Error(err))
	}
}

func (c *CachedStore) decode(cached map[string]string) (Snapshot, error) {
	snap := make(Snapshot, len(cached))
	for k, v := range cached {
		if strings.HasPrefix(v, encPrefix) {
			raw, err := hex.DecodeString(strings.TrimPrefix(v, encPrefix))
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", k, err)
			}
			v, err = c.cipher.Decrypt(raw)
			if err != nil {
				return nil, err
			}
		}
		snap[k] = v
	}
	return snap, nil
}

func parseChange(values map[string]interface{}) Change {
	var change Change
	if s, ok := values["id"].(string); ok {
		change.ID = s
	}
	if s, ok := values["keys"].(string); ok && s != "" {
		change.Keys = strings.Split(s, ",")
	}
	if s, ok := values["engine"].(string); ok {
		change.EmbeddingEngine = s
	}
	if s, ok := values["at"].(string); ok {
		change.At, _ = time.Parse(time.RFC3339Nano, s)
	}
	return change
}
