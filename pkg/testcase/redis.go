package testcase

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps documents as string values plus a set of names used by
// List. Writes to the value and the index go through MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. prefix namespaces every key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis creates a client for addr and verifies connectivity.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (s *RedisStore) key(name string) string { return s.prefix + "testcase:" + name }
func (s *RedisStore) index() string          { return s.prefix + "testcases" }

func (s *RedisStore) Put(ctx context.Context, name string, tc *TestCase) error {
	if err := ValidateName(name); err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	data, err := Encode(tc)
	if err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(name), data, 0)
		pipe.SAdd(ctx, s.index(), name)
		return nil
	})
	if err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, name string) (*TestCase, error) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &StoreError{Op: "get", Name: name, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Name: name, Err: err}
	}
	tc, err := Decode(data)
	if err != nil {
		return nil, &StoreError{Op: "get", Name: name, Err: err}
	}
	return tc, nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.index()).Result()
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(name))
		pipe.SRem(ctx, s.index(), name)
		return nil
	})
	if err != nil {
		return &StoreError{Op: "delete", Name: name, Err: err}
	}
	if del.Val() == 0 {
		return &StoreError{Op: "delete", Name: name, Err: ErrNotFound}
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
