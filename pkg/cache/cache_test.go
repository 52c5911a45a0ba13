package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok := m.Get(ctx, "k")
	assert.False(t, ok)

	m.Set(ctx, "k", 42, time.Hour)
	n, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 42, n)

	m.Set(ctx, "zero", 0, 0)
	n, ok = m.Get(ctx, "zero")
	require.True(t, ok)
	assert.Equal(t, 0, n)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	m.Set(ctx, "k", 1, time.Minute)
	now = now.Add(59 * time.Second)
	_, ok := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestNewPicksBackend(t *testing.T) {
	assert.IsType(t, &Memory{}, New(""))

	r, ok := New("localhost:6379").(*Redis)
	require.True(t, ok)
	assert.NoError(t, r.Close())
}

func TestRedisGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedisWithClient(db)
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet(keyPrefix + "semantic_scholar:arxiv:1").SetVal("17")
		n, ok := r.Get(ctx, "semantic_scholar:arxiv:1")
		assert.True(t, ok)
		assert.Equal(t, 17, n)
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet(keyPrefix + "missing").RedisNil()
		_, ok := r.Get(ctx, "missing")
		assert.False(t, ok)
	})

	t.Run("error is a miss", func(t *testing.T) {
		mock.ExpectGet(keyPrefix + "broken").SetErr(errors.New("connection refused"))
		_, ok := r.Get(ctx, "broken")
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedisWithClient(db)
	ctx := context.Background()

	mock.ExpectSet(keyPrefix+"github:arxiv:1", 3, time.Hour).SetVal("OK")
	r.Set(ctx, "github:arxiv:1", 3, time.Hour)

	mock.ExpectSet(keyPrefix+"github:arxiv:2", 5, time.Hour).SetErr(errors.New("readonly"))
	r.Set(ctx, "github:arxiv:2", 5, time.Hour)

	assert.NoError(t, mock.ExpectationsWereMet())
}
