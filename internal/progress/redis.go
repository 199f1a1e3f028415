package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/CZERTAINLY/Atelier/internal/model"
)

const redisKeyPrefix = "atelier:progress:"

// writeScript replaces the record unless the stored one is terminal.
// It returns 1 on write and 0 when the record was left untouched.
var writeScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, rec = pcall(cjson.decode, cur)
	if ok and type(rec) == 'table' and (rec.status == 'complete' or rec.status == 'failed') then
		return 0
	end
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore keeps each record as a JSON string with a TTL, so polling
// works from any host sharing the Redis instance.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("progress: redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("progress: connecting to redis %s: %w", opts.Addr, err)
	}
	return &RedisStore{rdb: rdb, ttl: opts.TTL}, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Write(ctx context.Context, jobID string, rec model.Progress) error {
	if err := checkID(jobID); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("progress %s: marshal: %w", jobID, err)
	}
	written, err := writeScript.Run(ctx, s.rdb,
		[]string{redisKeyPrefix + jobID},
		string(raw), s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("progress %s: redis write: %w", jobID, err)
	}
	if written == 0 {
		return fmt.Errorf("progress %s: %w", jobID, model.ErrTerminal)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, jobID string) (model.Progress, error) {
	if err := checkID(jobID); err != nil {
		return model.Unknown(), err
	}
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+jobID).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return model.Unknown(), fmt.Errorf("progress %s: %w", jobID, model.ErrNotFound)
	case err != nil:
		return model.Unknown(), fmt.Errorf("progress %s: redis read: %w", jobID, err)
	}
	var rec model.Progress
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Unknown(), fmt.Errorf("progress %s: parse: %w", jobID, err)
	}
	return rec, nil
}
