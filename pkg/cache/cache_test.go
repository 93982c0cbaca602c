package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shankarkarande/farmvibes-ai/pkg/cache"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := cache.NewMemoryStore()

	_, ok, err := s.Get(ctx, "absent")
	assert.NoError(t, err)
	assert.False(t, ok)

	outputs := models.ArtifactSet{"out": {ID: "id-1", Value: 42}}
	assert.NoError(t, s.Put(ctx, "fp-1", outputs))

	got, ok, err := s.Get(ctx, "fp-1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, outputs, got)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	s := cache.NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Put(ctx, "shared", models.ArtifactSet{"out": {ID: "id", Value: 1}})
		}()
		go func() {
			defer wg.Done()
			outputs, ok, err := s.Get(ctx, "shared")
			assert.NoError(t, err)
			if ok {
				assert.Equal(t, "id", outputs["out"].ID)
			}
		}()
	}
	wg.Wait()
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	s, err := cache.NewRedisStore(ctx, cache.RedisConfig{Addr: mr.Addr()})
	assert.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(ctx, "absent")
	assert.NoError(t, err)
	assert.False(t, ok)

	outputs := models.ArtifactSet{
		"stats":  {ID: "id-1", Value: map[string]interface{}{"mean": 0.42}},
		"raster": {ID: "id-2", Value: "blob-ref"},
	}
	assert.NoError(t, s.Put(ctx, "fp-1", outputs))

	got, ok, err := s.Get(ctx, "fp-1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "id-1", got["stats"].ID)
	assert.Equal(t, "id-2", got["raster"].ID)
	assert.Equal(t, "blob-ref", got["raster"].Value)
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	s, err := cache.NewRedisStore(ctx, cache.RedisConfig{Addr: mr.Addr(), TTL: time.Minute})
	assert.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Put(ctx, "fp-1", models.ArtifactSet{"out": {ID: "id", Value: 1}}))

	mr.FastForward(2 * time.Minute)

	_, ok, err := s.Get(ctx, "fp-1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreUnreachable(t *testing.T) {
	_, err := cache.NewRedisStore(context.Background(), cache.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
