package session

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tiendapos/client/internal/domain"
)

// RedisStore keeps cart snapshots in redis so a till survives a process
// restart. Snapshots expire after a shift-length TTL; an abandoned cart is
// not worth keeping past that.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Save(ctx context.Context, snapshot domain.CartSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key(snapshot.ShopID), payload, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, shopID int64) (*domain.CartSnapshot, bool, error) {
	val, err := s.client.Get(ctx, Key(shopID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snapshot domain.CartSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, false, err
	}
	return &snapshot, true, nil
}

func (s *RedisStore) Clear(ctx context.Context, shopID int64) error {
	return s.client.Del(ctx, Key(shopID)).Err()
}
