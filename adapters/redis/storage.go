package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"coderhack/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"CODERHACK_REDIS_ADDR"`
	Password     string        `json:"password" env:"CODERHACK_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"CODERHACK_REDIS_DB"`
	KeyPrefix    string        `json:"key_prefix" env:"CODERHACK_REDIS_KEY_PREFIX"`
	PoolSize     int           `json:"pool_size" env:"CODERHACK_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"CODERHACK_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"CODERHACK_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"CODERHACK_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"CODERHACK_REDIS_WRITE_TIMEOUT"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		KeyPrefix:    "coderhack",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements engine.Store on Redis.
// Data structure:
//   - {prefix}:user:{user_id} -> hash {username, score, badges}
//   - {prefix}:users:by_score -> sorted set of user ids scored by score
//
// Both keys change inside one MULTI/EXEC so the index never disagrees with the records.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New creates a new Redis-backed store with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: config.KeyPrefix}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(parts ...string) string {
	if s.prefix == "" {
		return strings.Join(parts, ":")
	}
	return s.prefix + ":" + strings.Join(parts, ":")
}

// userKey generates the Redis key for a user record
func (s *Store) userKey(id core.UserID) string { return s.key("user", string(id)) }

// scoreIndexKey is the sorted set used for ordered listing
func (s *Store) scoreIndexKey() string { return s.key("users", "by_score") }

func (s *Store) Exists(ctx context.Context, id core.UserID) (bool, error) {
	n, err := s.client.Exists(ctx, s.userKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Get(ctx context.Context, id core.UserID) (core.User, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return core.User{}, false, fmt.Errorf("failed to get user: %w", err)
	}
	if len(fields) == 0 {
		return core.User{}, false, nil
	}
	u, err := decodeUser(id, fields)
	if err != nil {
		return core.User{}, false, err
	}
	return u, true, nil
}

func (s *Store) Put(ctx context.Context, u core.User) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.userKey(u.UserID), encodeUser(u))
		p.ZAdd(ctx, s.scoreIndexKey(), redis.Z{Score: float64(u.Score), Member: string(u.UserID)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id core.UserID) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.userKey(id))
		p.ZRem(ctx, s.scoreIndexKey(), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// ListByScoreAsc reads the index in score order; Redis orders equal scores by member, i.e. user id.
func (s *Store) ListByScoreAsc(ctx context.Context) ([]core.User, error) {
	ids, err := s.client.ZRange(ctx, s.scoreIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read score index: %w", err)
	}
	users := make([]core.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.userKey(core.UserID(id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// deleted between ZRANGE and HGETALL
			continue
		}
		u, err := decodeUser(core.UserID(ids[i]), fields)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func encodeUser(u core.User) map[string]any {
	return map[string]any{
		"username": u.Username,
		"score":    u.Score,
		"badges":   strings.Join(u.Badges.Names(), ","),
	}
}

func decodeUser(id core.UserID, fields map[string]string) (core.User, error) {
	score, err := strconv.Atoi(fields["score"])
	if err != nil {
		return core.User{}, fmt.Errorf("corrupt score for user %s: %w", id, err)
	}
	var names []string
	if raw := fields["badges"]; raw != "" {
		names = strings.Split(raw, ",")
	}
	badges, err := core.ParseBadgeNames(names)
	if err != nil {
		return core.User{}, fmt.Errorf("corrupt badges for user %s: %w", id, err)
	}
	if _, ok := fields["username"]; !ok {
		return core.User{}, errors.New("corrupt user record: missing username")
	}
	return core.User{UserID: id, Username: fields["username"], Score: score, Badges: badges}, nil
}
