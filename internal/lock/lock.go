// Package lock provides the mutual exclusion that keeps two scheduler
// runs for the same day from overlapping across processes.
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out named locks.
type Locker interface {
	// Acquire returns a held lock, or ok=false if someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Redis locks with SET NX and a random owner token, released only by its owner.
type Redis struct {
	client  *redis.Client
	release *redis.Script
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, release: redis.NewScript(releaseScript)}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	l := &redisLock{owner: r, key: "lock:" + key, token: uuid.NewString()}
	ok, err := r.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l, true, nil
}

type redisLock struct {
	owner *Redis
	key   string
	token string
}

func (l *redisLock) Release(ctx context.Context) error {
	return l.owner.release.Run(ctx, l.owner.client, []string{l.key}, l.token).Err()
}

// Postgres uses session advisory locks. The connection is pinned for the
// lifetime of the lock so the unlock runs on the session that locked.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func advisoryID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

func (p *Postgres) Acquire(ctx context.Context, key string, _ time.Duration) (Lock, bool, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("advisory lock connection: %w", err)
	}
	id := advisoryID(key)
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("acquire advisory lock %s: %w", key, err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}
	return &pgLock{conn: conn, id: id}, true, nil
}

type pgLock struct {
	conn *sql.Conn
	id   int64
}

func (l *pgLock) Release(ctx context.Context) error {
	defer l.conn.Close()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.id)
	return err
}

// Local is an in-process lock table for single-instance deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]localEntry), now: time.Now}
}

// Acquire treats ttl <= 0 as no expiry.
func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.held[key]; ok && (e.expires.IsZero() || l.now().Before(e.expires)) {
		return nil, false, nil
	}
	e := localEntry{token: uuid.NewString()}
	if ttl > 0 {
		e.expires = l.now().Add(ttl)
	}
	l.held[key] = e
	return &localLock{table: l, key: key, token: e.token}, true, nil
}

type localLock struct {
	table *Local
	key   string
	token string
}

func (l *localLock) Release(context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if e, ok := l.table.held[l.key]; ok && e.token == l.token {
		delete(l.table.held, l.key)
	}
	return nil
}
