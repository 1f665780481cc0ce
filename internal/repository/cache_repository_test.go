package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carnet-api/internal/models"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client, nil), mr
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	var out models.DeliverySummary
	assert.ErrorIs(t, repo.Get(ctx, "status:summary:24h", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "status:summary:24h", models.DeliverySummary{Total: 3, Successful: 2, Failed: 1}, time.Minute))
	require.NoError(t, repo.Get(ctx, "status:summary:24h", &out))
	assert.Equal(t, 3, out.Total)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "status:summary:24h", &out), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("status:summary:24h", "{}"))
	require.NoError(t, mr.Set("status:summary:1h", "{}"))
	require.NoError(t, mr.Set("other", "{}"))

	require.NoError(t, repo.DeleteByPattern(ctx, "status:*"))
	assert.False(t, mr.Exists("status:summary:24h"))
	assert.False(t, mr.Exists("status:summary:1h"))
	assert.True(t, mr.Exists("other"))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var out models.DeliverySummary
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", out, time.Second))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "*"))
}

func TestCacheRepositoryCorruptEntryIsMiss(t *testing.T) {
	repo, mr := newCacheRepo(t)
	require.NoError(t, mr.Set("status:summary:24h", "not-json"))

	var out models.DeliverySummary
	assert.ErrorIs(t, repo.Get(context.Background(), "status:summary:24h", &out), appErrors.ErrCacheMiss)
	assert.False(t, mr.Exists("status:summary:24h"))
}
