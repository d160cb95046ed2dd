package authserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository on Redis. Accounts live under
// "<prefix>account:<username>" and grants under "<prefix>grant:<token>",
// neither with a TTL.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "authstub:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) accountKey(username string) string { return r.prefix + "account:" + username }
func (r *RedisRepository) grantKey(token string) string      { return r.prefix + "grant:" + token }

func (r *RedisRepository) CreateAccount(ctx context.Context, a *Account) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.accountKey(a.Username), b, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccountExists
	}
	return nil
}

func (r *RedisRepository) GetAccount(ctx context.Context, username string) (*Account, error) {
	var a Account
	found, err := r.get(ctx, r.accountKey(username), &a)
	if err != nil || !found {
		return nil, err
	}
	return &a, nil
}

func (r *RedisRepository) CreateGrant(ctx context.Context, g *Grant) error {
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.grantKey(g.Token), b, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrGrantExists
	}
	return nil
}

func (r *RedisRepository) GetGrant(ctx context.Context, token string) (*Grant, error) {
	var g Grant
	found, err := r.get(ctx, r.grantKey(token), &g)
	if err != nil || !found {
		return nil, err
	}
	return &g, nil
}

func (r *RedisRepository) DeleteGrant(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.grantKey(token)).Err()
}

func (r *RedisRepository) get(ctx context.Context, key string, v any) (bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal(b, v)
}
