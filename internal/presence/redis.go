package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is prepended to every service id stored in Redis.
const KeyPrefix = "burrow:service:"

// Key returns the Redis key holding id's record.
func Key(id string) string { return KeyPrefix + id }

// RedisOptions configures a RedisMirror.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a record outlives a relay that died without
	// withdrawing it. Refresh must run more often than this.
	TTL time.Duration
	// RefreshInterval is how often live records have their TTL extended.
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

// RedisMirror stores one JSON record per live tunnel.
type RedisMirror struct {
	client   *redis.Client
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	live map[string]struct{}
}

var _ Mirror = (*RedisMirror)(nil)

// NewRedisMirror connects to Redis and verifies the connection with PING.
func NewRedisMirror(ctx context.Context, opts RedisOptions) (*RedisMirror, error) {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Minute
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = opts.TTL / 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisMirror{
		client:   rdb,
		ttl:      opts.TTL,
		interval: opts.RefreshInterval,
		logger:   opts.Logger,
		live:     make(map[string]struct{}),
	}, nil
}

func (m *RedisMirror) Announce(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := m.client.Set(ctx, Key(rec.ID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", rec.ID, err)
	}
	m.mu.Lock()
	m.live[rec.ID] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *RedisMirror) Withdraw(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
	if err := m.client.Del(ctx, Key(id)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	return nil
}

// Refresh extends the TTL of every record this mirror announced.
func (m *RedisMirror) Refresh(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	if len(ids) == 0 {
		return
	}

	pipe := m.client.Pipeline()
	for _, id := range ids {
		pipe.Expire(ctx, Key(id), m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Warn("presence refresh failed", "ids", len(ids), "err", err)
	}
}

// Run refreshes TTLs every RefreshInterval until ctx is done.
func (m *RedisMirror) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Refresh(ctx)
		}
	}
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
