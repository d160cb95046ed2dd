package users

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/munirahkamaluddin/realm-dotnet/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis as the backing store.
// Users are stored as JSON under key: "<prefix><identity>" without TTL, since
// refresh tokens do not expire server-side.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-based user store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "syncuser:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(identity string) string {
	return r.prefix + identity
}

func (r *RedisStore) Save(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(u.Identity), b, 0).Err()
}

func (r *RedisStore) Get(ctx context.Context, identity string) (*models.User, error) {
	b, err := r.client.Get(ctx, r.key(identity)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *RedisStore) Delete(ctx context.Context, identity string) error {
	return r.client.Del(ctx, r.key(identity)).Err()
}

func (r *RedisStore) List(ctx context.Context) ([]*models.User, error) {
	var out []*models.User
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		u, err := r.Get(ctx, strings.TrimPrefix(iter.Val(), r.prefix))
		if err != nil {
			return nil, err
		}
		// deleted between SCAN and GET
		if u == nil {
			continue
		}
		out = append(out, u)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}
