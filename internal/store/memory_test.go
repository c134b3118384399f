package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_StringExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", "v", 10*time.Millisecond))

	val, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	time.Sleep(20 * time.Millisecond)

	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_SetExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SAdd(ctx, "s", "a", "b"))
	require.NoError(t, m.Expire(ctx, "s", 10*time.Millisecond))

	count, err := m.SCard(ctx, "s")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	time.Sleep(20 * time.Millisecond)

	count, err = m.SCard(ctx, "s")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	members, err := m.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemory_SetOperations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SAdd(ctx, "s", "a"))
	require.NoError(t, m.SAdd(ctx, "s", "a", "b"))

	ok, err := m.SIsMember(ctx, "s", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SIsMember(ctx, "s", "c")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SRem(ctx, "s", "a"))
	members, err := m.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	// Removing the last member drops the key entirely.
	require.NoError(t, m.SRem(ctx, "s", "b"))
	count, err := m.SCard(ctx, "s")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestMemory_Keys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "session:a", "1", 0))
	require.NoError(t, m.Set(ctx, "session:b", "2", 0))
	require.NoError(t, m.SAdd(ctx, "user_sockets:1", "a"))

	keys, err := m.Keys(ctx, "session:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"session:a", "session:b"}, keys)

	keys, err = m.Keys(ctx, "user_sockets:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_sockets:1"}, keys)
}

func TestMemory_Del(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	require.NoError(t, m.SAdd(ctx, "s", "a"))

	require.NoError(t, m.Del(ctx, "k", "s", "missing"))

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := m.SCard(ctx, "s")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}
