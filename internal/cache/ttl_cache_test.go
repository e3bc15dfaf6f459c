package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("k", 42, 50*time.Millisecond)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[string, string]()

	c.Set("k", "v", time.Minute)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestAPIKeyCacheRoundTrip(t *testing.T) {
	c := NewAPIKeyCache()

	user := &accountdomain.User{Email: "agent@example.test"}
	c.SetUser("pk_live_abc", user)

	got, ok := c.GetUser("pk_live_abc")
	assert.True(t, ok)
	assert.Same(t, user, got)

	c.Invalidate("pk_live_abc")
	_, ok = c.GetUser("pk_live_abc")
	assert.False(t, ok)
}

func TestAPIKeyCacheIgnoresEmptyKey(t *testing.T) {
	c := NewAPIKeyCache()

	c.SetUser("", &accountdomain.User{})
	_, ok := c.GetUser("")
	assert.False(t, ok)
}
