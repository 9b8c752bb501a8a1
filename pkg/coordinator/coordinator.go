package coordinator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NodeID identifies one control-plane process. The ID is globally unique;
// hostname and pid are debug attributes carried along for inspection.
type NodeID struct {
	ID       string
	Hostname string
	PID      int
}

// NewNodeID generates the identity of this process.
func NewNodeID() NodeID {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return NodeID{
		ID:       uuid.New().String(),
		Hostname: hostname,
		PID:      os.Getpid(),
	}
}

// String implements fmt.Stringer.
func (n NodeID) String() string {
	return fmt.Sprintf("%s (%s/%d)", n.ID, n.Hostname, n.PID)
}

// lockBackend abstracts the store operations locks need, so tests can
// substitute an in-memory fake for the Redis implementation.
type lockBackend interface {
	// SetNX stores value under key only if the key is absent; the entry
	// expires after ttl.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the stored value, or "" when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// DelIfOwner deletes the key only while it still holds value.
	DelIfOwner(ctx context.Context, key, value string) error
}

// DefaultLockTTL bounds how long a dead process can hold a cluster lock
// before the backend expires it.
const DefaultLockTTL = 5 * time.Minute

// Coordinator hands out distributed coordination primitives backed by a
// shared Redis: non-blocking per-cluster locks with automatic expiry.
type Coordinator struct {
	node    NodeID
	backend lockBackend
	ttl     time.Duration
}

// Config holds coordinator configuration.
type Config struct {
	Node NodeID
	// LockTTL defaults to DefaultLockTTL.
	LockTTL time.Duration
}

// New creates a Coordinator on an established Redis client.
func New(client *redis.Client, cfg Config) *Coordinator {
	return newCoordinator(&redisBackend{client: client}, cfg)
}

func newCoordinator(backend lockBackend, cfg Config) *Coordinator {
	ttl := cfg.LockTTL
	if ttl == 0 {
		ttl = DefaultLockTTL
	}
	return &Coordinator{node: cfg.Node, backend: backend, ttl: ttl}
}

// Node returns this process's identity.
func (c *Coordinator) Node() NodeID {
	return c.node
}

// ClusterLock returns the lock guarding one cluster's orchestration.
func (c *Coordinator) ClusterLock(nsID, clusterID string) *Lock {
	return &Lock{
		key:     "keel:lock:orchestrate:" + nsID + "/" + clusterID,
		owner:   c.node.ID,
		backend: c.backend,
		ttl:     c.ttl,
	}
}

// Lock is a non-blocking distributed lock. Acquire fails immediately when
// the lock is held elsewhere; the TTL guarantees release if the owning
// process dies without calling Release.
type Lock struct {
	key     string
	owner   string
	backend lockBackend
	ttl     time.Duration
}

// Acquire attempts to take the lock. It returns false, without waiting,
// when the lock is already held.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.backend.SetNX(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}
	return ok, nil
}

// Check reports whether this process still holds the lock.
func (l *Lock) Check(ctx context.Context) (bool, error) {
	value, err := l.backend.Get(ctx, l.key)
	if err != nil {
		return false, fmt.Errorf("lock check failed: %w", err)
	}
	return value == l.owner, nil
}

// Release drops the lock if this process still owns it. Releasing a lock
// lost to expiry is not an error.
func (l *Lock) Release(ctx context.Context) error {
	if err := l.backend.DelIfOwner(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}

// redisBackend implements lockBackend on go-redis.
type redisBackend struct {
	client *redis.Client
}

func (b *redisBackend) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, value, ttl).Result()
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, error) {
	value, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, err
}

// delIfOwnerScript deletes a key only while it still holds the caller's
// value, so an expired-and-reacquired lock is never released by the old
// owner.
var delIfOwnerScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (b *redisBackend) DelIfOwner(ctx context.Context, key, value string) error {
	return delIfOwnerScript.Run(ctx, b.client, []string{key}, value).Err()
}
