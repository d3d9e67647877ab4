package playbook

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetAndGet(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("https://example.com/oil_spill.md", "# 油液泄漏处置预案")

	content, ok := cache.Get("https://example.com/oil_spill.md")
	assert.True(t, ok)
	assert.Equal(t, "# 油液泄漏处置预案", content)
}

func TestCacheMiss(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	content, ok := cache.Get("https://example.com/nonexistent.md")
	assert.False(t, ok)
	assert.Empty(t, content)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)

	cache.Set("https://example.com/plan.md", "content")

	content, ok := cache.Get("https://example.com/plan.md")
	assert.True(t, ok)
	assert.Equal(t, "content", content)

	time.Sleep(60 * time.Millisecond)

	content, ok = cache.Get("https://example.com/plan.md")
	assert.False(t, ok)
	assert.Empty(t, content)
}

func TestCacheOverwrite(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("https://example.com/plan.md", "old content")
	cache.Set("https://example.com/plan.md", "new content")

	content, ok := cache.Get("https://example.com/plan.md")
	assert.True(t, ok)
	assert.Equal(t, "new content", content)
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cache.Set("shared-key", "content")
		}()
		go func() {
			defer wg.Done()
			cache.Get("shared-key")
		}()
	}
	wg.Wait()

	content, ok := cache.Get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "content", content)
}
