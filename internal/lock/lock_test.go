package lock

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedis_Exclusive(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedis(client)
	ctx := context.Background()

	first, ok, err := locker.Acquire(ctx, "scheduler:2024-03-21", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("lock:scheduler:2024-03-21"))

	_, ok, err = locker.Acquire(ctx, "scheduler:2024-03-21", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	_, ok, err = locker.Acquire(ctx, "scheduler:2024-03-22", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "different day is independent")

	require.NoError(t, first.Release(ctx))
	_, ok, err = locker.Acquire(ctx, "scheduler:2024-03-21", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ReleaseOnlyByOwner(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedis(client)
	ctx := context.Background()

	stale, ok, err := locker.Acquire(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lock can be taken over")

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("lock:job"), "stale owner must not release the new holder")
}

func TestPostgres_AcquireAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := advisoryID("scheduler:2024-03-21")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	locker := NewPostgres(db)
	l, ok, err := locker.Acquire(context.Background(), "scheduler:2024-03-21", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Held(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	_, ok, err := NewPostgres(db).Acquire(context.Background(), "k", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocal(t *testing.T) {
	locker := NewLocal()
	now := time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	l, ok, _ := locker.Acquire(ctx, "k", time.Minute)
	require.True(t, ok)
	_, ok, _ = locker.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	current, ok, _ := locker.Acquire(ctx, "k", time.Minute)
	require.True(t, ok, "expired")

	require.NoError(t, l.Release(ctx))
	_, ok, _ = locker.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok, "stale owner must not release the new holder")

	require.NoError(t, current.Release(ctx))
	_, ok, _ = locker.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok)
}
