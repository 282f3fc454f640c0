package memory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccess_Layer1And2RoundTrip(t *testing.T) {
	s := NewStore(context.Background(), Config{Disabled: true}, nil)

	v := "hello"
	data, ok := s.Access(1, "k", &v)
	require.True(t, ok)
	assert.Equal(t, "hello", data)

	data, ok = s.Access(1, "k", nil)
	require.True(t, ok)
	assert.Equal(t, "hello", data)

	_, ok = s.Access(2, "missing", nil)
	assert.False(t, ok)
}

func TestAccess_OtherLayersAreNoOp(t *testing.T) {
	s := NewStore(context.Background(), Config{Disabled: true}, nil)
	data, ok := s.Access(9, "k", nil)
	assert.True(t, ok)
	assert.Empty(t, data)
}

func TestSemanticSearch_EmptyWhenBackendDisabled(t *testing.T) {
	s := NewStore(context.Background(), Config{Disabled: true}, nil)
	hits, err := s.SemanticSearch(context.Background(), "kb_core", "q", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpsert_FailedPreconditionWhenBackendDisabled(t *testing.T) {
	s := NewStore(context.Background(), Config{Disabled: true}, nil)
	_, err := s.Upsert(context.Background(), "kb_core", []VectorPoint{{ID: "1"}})
	require.Error(t, err)
}

func TestAccess_BackedByRedisWhenConfigured(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := NewStore(context.Background(), Config{Disabled: true, RedisURL: "redis://" + mr.Addr()}, nil)
	require.NotNil(t, s.redis, "store should have picked up the miniredis backing store")

	v := "persisted"
	data, ok := s.Access(1, "k", &v)
	require.True(t, ok)
	assert.Equal(t, "persisted", data)
	assert.True(t, mr.Exists("l1:k"))

	data, ok = s.Access(1, "k", nil)
	require.True(t, ok)
	assert.Equal(t, "persisted", data)
}

func TestAccess_FallsBackToInProcessMapWhenRedisUnreachable(t *testing.T) {
	s := NewStore(context.Background(), Config{Disabled: true, RedisURL: "redis://127.0.0.1:1"}, nil)
	assert.Nil(t, s.redis)

	v := "still works"
	data, ok := s.Access(1, "k", &v)
	require.True(t, ok)
	assert.Equal(t, "still works", data)
}
