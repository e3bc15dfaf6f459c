package cache

import (
	"time"

	accountdomain "github.com/pixrworth/platform/internal/account/domain"
)

// Short TTL keeps revoked keys from lingering while still absorbing
// the per-request lookup on hot clients.
const defaultAPIKeyTTL = 45 * time.Second

// APIKeyCache stores hot-path API key lookups for request auth.
type APIKeyCache interface {
	GetUser(apiKey string) (*accountdomain.User, bool)
	SetUser(apiKey string, user *accountdomain.User)
	Invalidate(apiKey string)
}

type apiKeyCache struct {
	users Cache[string, *accountdomain.User]
	ttl   time.Duration
}

// NewAPIKeyCache returns an in-memory cache tuned for request auth.
func NewAPIKeyCache() APIKeyCache {
	return &apiKeyCache{
		users: NewTTLCache[string, *accountdomain.User](),
		ttl:   defaultAPIKeyTTL,
	}
}

func (c *apiKeyCache) GetUser(apiKey string) (*accountdomain.User, bool) {
	if apiKey == "" {
		return nil, false
	}
	return c.users.Get(apiKey)
}

func (c *apiKeyCache) SetUser(apiKey string, user *accountdomain.User) {
	if apiKey == "" || user == nil {
		return
	}
	c.users.Set(apiKey, user, c.ttl)
}

func (c *apiKeyCache) Invalidate(apiKey string) {
	c.users.Delete(apiKey)
}
