package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cmsbuild"

type RedisDatabase struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisDatabase accepts either a redis:// URL or a plain host:port address
func NewRedisDatabase(connectionString string) (DatabaseService, error) {
	var options *redis.Options
	if strings.Contains(connectionString, "://") {
		parsed, err := redis.ParseURL(connectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid redis connection string: %w", err)
		}
		options = parsed
	} else {
		options = &redis.Options{Addr: connectionString}
	}

	return &RedisDatabase{
		client: redis.NewClient(options),
		ctx:    context.Background(),
	}, nil
}

func runsKey() string {
	return redisKeyPrefix + ":runs"
}

func runKey(id string) string {
	return redisKeyPrefix + ":run:" + id
}

func runItemsKey(id string) string {
	return redisKeyPrefix + ":run:" + id + ":items"
}

func (r *RedisDatabase) CreateDatabase() error {
	// Redis has no schema; only verify connectivity
	return r.client.Ping(r.ctx).Err()
}

func (r *RedisDatabase) DoesDatabaseExist() bool {
	return r.client.Ping(r.ctx).Err() == nil
}

func (r *RedisDatabase) Close() error {
	return r.client.Close()
}

func (r *RedisDatabase) CreateRun(startedAt time.Time) (string, error) {
	id, err := newRunID()
	if err != nil {
		return "", err
	}

	_, err = r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(r.ctx, runKey(id),
			"started_at", startedAt.UnixNano(),
			"finished_at", 0,
			"status", RunStatusRunning)
		pipe.ZAdd(r.ctx, runsKey(), redis.Z{Score: float64(startedAt.UnixNano()), Member: id})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *RedisDatabase) FinishRun(id string, finishedAt time.Time, status string) error {
	exists, err := r.client.Exists(r.ctx, runKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return r.client.HSet(r.ctx, runKey(id),
		"finished_at", finishedAt.UnixNano(),
		"status", status).Err()
}

func (r *RedisDatabase) AddItem(item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return r.client.RPush(r.ctx, runItemsKey(item.RunID), data).Err()
}

func (r *RedisDatabase) GetRuns() ([]*Run, error) {
	ids, err := r.client.ZRevRange(r.ctx, runsKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	runs := make([]*Run, 0, len(ids))
	for _, id := range ids {
		run, err := r.GetRunByID(id)
		if err != nil {
			return nil, err
		}
		if run != nil {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

func (r *RedisDatabase) GetRunByID(id string) (*Run, error) {
	fields, err := r.client.HGetAll(r.ctx, runKey(id)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	startedAt, err := strconv.ParseInt(fields["started_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at for run %s: %w", id, err)
	}
	finishedAt, err := strconv.ParseInt(fields["finished_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid finished_at for run %s: %w", id, err)
	}

	run := &Run{
		ID:        id,
		StartedAt: time.Unix(0, startedAt),
		Status:    fields["status"],
	}
	if finishedAt != 0 {
		run.FinishedAt = time.Unix(0, finishedAt)
	}
	return run, nil
}

func (r *RedisDatabase) GetItems(runID string) ([]*Item, error) {
	values, err := r.client.LRange(r.ctx, runItemsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(values))
	for _, value := range values {
		var item Item
		if err := json.Unmarshal([]byte(value), &item); err != nil {
			return nil, fmt.Errorf("invalid item of run %s: %w", runID, err)
		}
		items = append(items, &item)
	}
	return items, nil
}
