package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/litscreen/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "litscreen:task:"
	indexKey  = "litscreen:tasks"

	// maxTxRetries bounds optimistic-lock retries for one Update.
	maxTxRetries = 100
)

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// RedisRegistry stores each task as a JSON value so several server
// processes can share one task space. Keys carry no TTL.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry connects to Redis and verifies connectivity.
func NewRedisRegistry(ctx context.Context, cfg RedisConfig) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisRegistry{client: client}, nil
}

// Close closes the underlying Redis client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func taskKey(id string) string { return keyPrefix + id }

func (r *RedisRegistry) Create(ctx context.Context, task *models.Task) error {
	t, err := prepareNew(task)
	if err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	ok, err := r.client.SetNX(ctx, taskKey(t.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("store task: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.ID)
	}
	if err := r.client.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(t.CreatedAt.UnixNano()),
		Member: t.ID,
	}).Err(); err != nil {
		return fmt.Errorf("index task: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*models.Task, error) {
	data, err := r.client.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return decodeTask(data)
}

// Update uses WATCH/MULTI so concurrent writers never lose an update; a
// conflicting write causes the whole read-modify-write to be retried.
func (r *RedisRegistry) Update(ctx context.Context, id string, fn func(*models.Task) error) (*models.Task, error) {
	key := taskKey(id)
	var result *models.Task

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		cur, err := decodeTask(data)
		if err != nil {
			return err
		}
		next, err := applyUpdate(cur, fn)
		if err != nil {
			return err
		}
		out, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update task %s: too much contention", id)
}

func (r *RedisRegistry) List(ctx context.Context) ([]*models.Task, error) {
	ids, err := r.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	out := make([]*models.Task, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		t, err := decodeTask([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeTask(data []byte) (*models.Task, error) {
	var t models.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}
