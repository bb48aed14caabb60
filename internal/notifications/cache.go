package notifications

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sumire/notifysettings/internal/domain"
)

type cacheEntry struct {
	value     domain.NotificationSettingOptionValue
	expiresAt time.Time
}

// settingsCache is a TTL read-through cache for resolved setting values.
// Concurrent misses on the same key share one load. A load that started
// before an invalidation is not stored.
type settingsCache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[domain.SettingKey]cacheEntry
	gen   uint64

	sf singleflight.Group
}

func newSettingsCache(ttl time.Duration) *settingsCache {
	return &settingsCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[domain.SettingKey]cacheEntry),
	}
}

type loadFunc func(ctx context.Context) (domain.NotificationSettingOptionValue, error)

// get returns the cached value for key, loading it on a miss. hit reports
// whether the value came from the cache.
func (c *settingsCache) get(ctx context.Context, key domain.SettingKey, load loadFunc) (value domain.NotificationSettingOptionValue, hit bool, err error) {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		if c.now().Before(e.expiresAt) {
			c.mu.Unlock()
			return e.value, true, nil
		}
		delete(c.items, key)
	}
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.sf.Do(key.String(), func() (interface{}, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.items[key] = cacheEntry{value: loaded, expiresAt: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return domain.NotificationSettingOptionDefault, false, err
	}
	return v.(domain.NotificationSettingOptionValue), false, nil
}

func (c *settingsCache) invalidate(key domain.SettingKey) {
	c.mu.Lock()
	delete(c.items, key)
	c.gen++
	c.mu.Unlock()
	c.sf.Forget(key.String())
}

func (c *settingsCache) flush() {
	c.mu.Lock()
	c.items = make(map[domain.SettingKey]cacheEntry)
	c.gen++
	c.mu.Unlock()
}

func (c *settingsCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
