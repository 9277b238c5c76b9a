package contracts

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisABIStore keeps registered ABIs in Redis so they survive restarts and
// are shared across processes. Entries never expire.
type RedisABIStore struct {
	client *redis.Client
	prefix string
}

// NewRedisABIStore connects to Redis and verifies the connection.
// prefix defaults to "celo_reader:abi:"; the final key is prefix + address.
func NewRedisABIStore(addr, password string, db int, prefix string) (*RedisABIStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisABIStoreWithClient(rdb, prefix), nil
}

// NewRedisABIStoreWithClient wraps an existing client, mainly for tests.
func NewRedisABIStoreWithClient(client *redis.Client, prefix string) *RedisABIStore {
	if prefix == "" {
		prefix = "celo_reader:abi:"
	}
	return &RedisABIStore{client: client, prefix: prefix}
}

func (r *RedisABIStore) LoadABI(ctx context.Context, address string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+normalizeKey(address)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisABIStore) SaveABI(ctx context.Context, address, name, abiJSON string) error {
	key := normalizeKey(address)
	if err := r.client.Set(ctx, r.prefix+key, abiJSON, 0).Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+"name:"+key, name, 0).Err()
}

func (r *RedisABIStore) LoadName(ctx context.Context, address string) (string, error) {
	val, err := r.client.Get(ctx, r.prefix+"name:"+normalizeKey(address)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *RedisABIStore) Close() error {
	return r.client.Close()
}
