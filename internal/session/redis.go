package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis 以 Redis 字串鍵保存 session，過期交給 TTL
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis 建立 Redis 儲存；ttl <= 0 使用 DefaultTTL
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Save 實作 Store（SET key value EX ttl）
func (r *Redis) Save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("序列化 session 失敗: %w", err)
	}
	if err := r.client.Set(ctx, Key(s.Identity), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("寫入 session 失敗: %w", err)
	}
	return nil
}

// Load 實作 Store
func (r *Redis) Load(ctx context.Context, identity string) (Session, error) {
	data, err := r.client.Get(ctx, Key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("讀取 session 失敗: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("解析 session 失敗: %w", err)
	}
	return s, nil
}

// Delete 實作 Store
func (r *Redis) Delete(ctx context.Context, identity string) error {
	if err := r.client.Del(ctx, Key(identity)).Err(); err != nil {
		return fmt.Errorf("刪除 session 失敗: %w", err)
	}
	return nil
}
