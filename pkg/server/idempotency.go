package server

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

const (
	eventKeyPrefix  = "causa:webhook:event:"
	defaultEventTTL = 72 * time.Hour
)

// EventStore remembers which webhook event ids were already processed.
// Claims expire after the configured TTL; a collaborator that replays an
// event weeks later is treated as new, which is harmless because the resume
// validates against case state.
type EventStore interface {
	// Claim reserves the event id. False means it was already claimed.
	Claim(ctx context.Context, eventID string) (bool, error)

	// Forget releases a claim so a retry can reprocess the event.
	Forget(ctx context.Context, eventID string) error

	Close() error
}

// NewEventStore builds the configured replay guard.
func NewEventStore(ctx context.Context, cfg *config.IdempotencyConfig) (EventStore, error) {
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	switch cfg.Backend {
	case config.IdempotencyBackendRedis:
		return NewRedisEventStore(ctx, &cfg.Redis, ttl)
	case config.IdempotencyBackendMemory:
		return NewMemoryEventStore(ttl), nil
	default:
		return nil, fault.New(fault.Validation, component, "new_event_store",
			"unknown idempotency backend '"+string(cfg.Backend)+"'", nil)
	}
}

// MemoryEventStore keeps claims in a map. Claims do not survive a restart,
// so a webhook replayed across restarts runs again; single-process
// deployments accept that.
type MemoryEventStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

var _ EventStore = (*MemoryEventStore)(nil)

// NewMemoryEventStore builds an empty in-process guard.
func NewMemoryEventStore(ttl time.Duration) *MemoryEventStore {
	return &MemoryEventStore{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *MemoryEventStore) Claim(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, at := range m.seen {
		if now.Sub(at) > m.ttl {
			delete(m.seen, id)
		}
	}

	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = now
	return true, nil
}

func (m *MemoryEventStore) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

func (m *MemoryEventStore) Close() error { return nil }

// RedisEventStore claims event ids with SET NX PX, sharing replay state
// across processes.
type RedisEventStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ EventStore = (*RedisEventStore)(nil)

// NewRedisEventStore connects to redis and verifies connectivity.
func NewRedisEventStore(ctx context.Context, cfg *config.RedisConfig, ttl time.Duration) (*RedisEventStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fault.New(fault.TransientBackend, component, "new_redis_event_store", "ping redis", err)
	}
	return &RedisEventStore{client: client, ttl: ttl}, nil
}

func (r *RedisEventStore) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, eventKeyPrefix+eventID, "1", r.ttl).Result()
	if err != nil {
		return false, fault.New(fault.TransientBackend, component, "claim", "set event key", err)
	}
	return ok, nil
}

func (r *RedisEventStore) Forget(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, eventKeyPrefix+eventID).Err(); err != nil {
		return fault.New(fault.TransientBackend, component, "forget", "delete event key", err)
	}
	return nil
}

func (r *RedisEventStore) Close() error {
	return r.client.Close()
}
