package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func testSession(id string) *Session {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &Session{
		ID: id,
		Transcript: chatbot.Transcript{
			{ID: "u1", Role: chatbot.RoleBot, Text: chatbot.GreetingText, CreatedAt: now},
			{ID: "u2", Role: chatbot.RoleUser, Text: "hello", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	_, err := store.Get(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, testSession("s-1")))

	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.ID)
	require.Len(t, got.Transcript, 2)
	assert.Equal(t, chatbot.RoleUser, got.Transcript[1].Role)
	assert.Equal(t, "hello", got.Transcript[1].Text)
	assert.True(t, got.CreatedAt.Equal(testSession("s-1").CreatedAt))

	require.NoError(t, store.Delete(ctx, "s-1"))
	_, err = store.Get(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("s-2")))
	assert.Equal(t, time.Minute, mr.TTL(sessionKey("s-2")))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "s-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRejectsMissingID(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, 0)
	assert.Error(t, store.Save(context.Background(), &Session{}))
}

func TestRedisLocker(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "s-1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "s-1")
	assert.ErrorIs(t, err, ErrReplyPending)

	other, err := locker.Acquire(ctx, "s-2")
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists(lockKey("s-1")))

	release, err = locker.Acquire(ctx, "s-1")
	require.NoError(t, err)
	release()
}

func TestRedisLockerExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "s-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "s-1")
	require.NoError(t, err)

	// The stale holder must not remove the new lock.
	stale()
	assert.True(t, mr.Exists(lockKey("s-1")))
	fresh()
	assert.False(t, mr.Exists(lockKey("s-1")))
}

func TestLockTTLFor(t *testing.T) {
	assert.Equal(t, defaultLockTTL, LockTTLFor(0))
	assert.Equal(t, defaultLockTTL, LockTTLFor(-time.Second))
	assert.Equal(t, time.Minute+defaultLockTTL, LockTTLFor(time.Minute))
}

func TestManagerRedisLockerSerializesDelayedSends(t *testing.T) {
	_, client := setupTestRedis(t)
	delay := 200 * time.Millisecond
	store := NewRedisStore(client, time.Hour)
	m := NewManager(Config{
		Engine:     chatbot.NewEngine(chatbot.WithPersonalizer(chatbot.NeverPersonalize)),
		Store:      store,
		Locker:     NewRedisLocker(client, LockTTLFor(delay)),
		ReplyDelay: delay,
	})
	ctx := context.Background()

	sess, err := m.Start(ctx)
	require.NoError(t, err)

	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Send(ctx, sess.ID, "what are your hours")
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		return client.Exists(ctx, lockKey(sess.ID)).Val() == 1
	}, time.Second, 5*time.Millisecond)

	_, err = m.Send(ctx, sess.ID, "where are you located")
	assert.ErrorIs(t, err, ErrReplyPending)
	require.NoError(t, <-firstErr)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Transcript, 3)
}

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("s-1")))
	_, err := store.Get(ctx, "s-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreSweepEvictsUnvisitedSessions(t *testing.T) {
	m, store := newTestManager(t, nil, 0)
	ctx := context.Background()

	for range 50 {
		_, err := m.Start(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, 50, store.Len())

	store.Sweep()
	assert.Equal(t, 50, store.Len(), "fresh sessions survive a sweep")

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	store.Sweep()
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreSweepKeepsActiveSessions(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	stale := testSession("stale")
	active := testSession("active")
	active.UpdatedAt = now.Add(90 * time.Second)
	require.NoError(t, store.Save(ctx, stale))
	require.NoError(t, store.Save(ctx, active))

	now = now.Add(2 * time.Minute)
	store.Sweep()

	assert.Equal(t, 1, store.Len())
	_, err := store.Get(ctx, "active")
	assert.NoError(t, err)
}

func TestMemoryStoreRunStops(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.Save(context.Background(), &Session{ID: "s-1", UpdatedAt: now.Add(-time.Hour)}))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		store.Run(time.Millisecond, stop)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop was closed")
	}
}

func TestMemoryLockerReleaseIsIdempotent(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "s-1")
	require.NoError(t, err)
	release()

	again, err := locker.Acquire(ctx, "s-1")
	require.NoError(t, err)
	release()

	_, err = locker.Acquire(ctx, "s-1")
	assert.ErrorIs(t, err, ErrReplyPending, "a second release of the old holder must not free the new lock")
	again()
}
