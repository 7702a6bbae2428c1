package ops

import (
	"time"

	"github.com/coocood/freecache"
)

var statusKey = []byte("status")

// statusCache holds the last encoded /status body for a short TTL so probes
// and dashboards do not hit the store on every request.
type statusCache struct {
	c   *freecache.Cache
	ttl int // seconds
}

func newStatusCache(sizeMB int, ttl time.Duration) *statusCache {
	if ttl <= 0 {
		return &statusCache{}
	}
	if sizeMB <= 0 {
		sizeMB = 1
	}
	return &statusCache{
		c:   freecache.NewCache(sizeMB * 1024 * 1024),
		ttl: max(int(ttl.Round(time.Second)/time.Second), 1),
	}
}

func (c *statusCache) get() ([]byte, bool) {
	if c == nil || c.c == nil {
		return nil, false
	}
	b, err := c.c.Get(statusKey)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *statusCache) set(b []byte) {
	if c == nil || c.c == nil {
		return
	}
	_ = c.c.Set(statusKey, b, c.ttl)
}
