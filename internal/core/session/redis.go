package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gomitas-bot/internal/infrastructure/config"

	"github.com/go-redis/redis/v8"
)

// RedisStore Redis 對話儲存，每次寫入刷新存活時間
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 創建 Redis 對話儲存
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 測試連接
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient 以既有連線創建 Redis 對話儲存
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// Get 取得對話；不存在時建立並寫入新對話
func (s *RedisStore) Get(ctx context.Context, identity string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			sess := New(identity)
			if err := s.Save(ctx, sess); err != nil {
				return nil, err
			}
			return sess, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Cart == nil {
		sess.Cart = Cart{}
	}

	// 讀取也算活動
	if err := s.client.Expire(ctx, s.key(identity), s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to refresh session ttl: %w", err)
	}
	return &sess, nil
}

// Save 整份寫入並刷新存活時間
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sess.Identity), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// Reset 以全新的閒置對話取代
func (s *RedisStore) Reset(ctx context.Context, identity string) (*Session, error) {
	sess := New(identity)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Stats 對話儲存統計
func (s *RedisStore) Stats() map[string]interface{} {
	pool := s.client.PoolStats()
	return map[string]interface{}{
		"backend":     "redis",
		"ttl":         s.ttl.String(),
		"total_conns": pool.TotalConns,
		"idle_conns":  pool.IdleConns,
	}
}

// Ping 檢查連線
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 關閉連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key 生成對話鍵
func (s *RedisStore) key(identity string) string {
	return "session:" + identity
}
