package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/world-observer/internal/config"
	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/vec"
)

// RedisPositionRepo хранит позиции сессий в Redis.
// Ключи: <prefix>pos:<session> (JSON) и <prefix>chunks:<session> (множество "x:z").
type RedisPositionRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisPositionRepo подключается к Redis и проверяет соединение
func NewRedisPositionRepo(ctx context.Context, cfg config.RedisConfig) (*RedisPositionRepo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("🔴 Connected to Redis at %s", cfg.Addr)
	return &RedisPositionRepo{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       time.Duration(cfg.TTLSeconds) * time.Second,
	}, nil
}

func (r *RedisPositionRepo) positionKey(sessionID string) string {
	return r.keyPrefix + "pos:" + sessionID
}

func (r *RedisPositionRepo) chunksKey(sessionID string) string {
	return r.keyPrefix + "chunks:" + sessionID
}

// Save сохраняет позицию
func (r *RedisPositionRepo) Save(ctx context.Context, pos SessionPosition) error {
	if pos.SessionID == "" {
		return ErrEmptySessionID
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	if err := r.client.Set(ctx, r.positionKey(pos.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// Load загружает позицию
func (r *RedisPositionRepo) Load(ctx context.Context, sessionID string) (SessionPosition, bool, error) {
	if sessionID == "" {
		return SessionPosition{}, false, ErrEmptySessionID
	}
	data, err := r.client.Get(ctx, r.positionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return SessionPosition{}, false, nil
	} else if err != nil {
		return SessionPosition{}, false, fmt.Errorf("failed to get position: %w", err)
	}

	var pos SessionPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return SessionPosition{}, false, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return pos, true, nil
}

// Delete удаляет позицию и индекс колонн сессии
func (r *RedisPositionRepo) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if err := r.client.Del(ctx, r.positionKey(sessionID), r.chunksKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// AddColumns добавляет колонны в индекс сессии
func (r *RedisPositionRepo) AddColumns(ctx context.Context, sessionID string, coords []vec.Coord2D) error {
	if len(coords) == 0 {
		return nil
	}
	members := make([]interface{}, len(coords))
	for i, c := range coords {
		members[i] = c.Key()
	}

	key := r.chunksKey(sessionID)
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, key, members...)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index columns: %w", err)
	}
	return nil
}

// Columns возвращает индекс колонн сессии в порядке (X, Z)
func (r *RedisPositionRepo) Columns(ctx context.Context, sessionID string) ([]vec.Coord2D, error) {
	members, err := r.client.SMembers(ctx, r.chunksKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read column index: %w", err)
	}
	coords := make([]vec.Coord2D, 0, len(members))
	for _, m := range members {
		c, err := parseColumnKey([]byte(columnKeyPrefix + m))
		if err != nil {
			continue
		}
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords, nil
}

// Close закрывает соединение с Redis
func (r *RedisPositionRepo) Close() error {
	return r.client.Close()
}
