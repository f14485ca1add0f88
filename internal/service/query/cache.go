package query

import (
	"fmt"
	"sync"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// Cache holds successful query results keyed by the full rewritten
// statement plus its options. Identical requests are served without
// re-execution. There is no invalidation on underlying data change;
// callers accepting cached reads accept that staleness window.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*domain.QueryPage
	max     int
}

func NewCache(max int) *Cache {
	if max <= 0 {
		max = 256
	}
	return &Cache{entries: make(map[string]*domain.QueryPage), max: max}
}

// Key derives the cache key from the rewritten statement, its bound
// arguments, and the pagination options.
func Key(sqlText string, args []interface{}, opts domain.QueryOptions) string {
	return fmt.Sprintf("%s|%v|%d|%d|%s|%s", sqlText, args, opts.Page, opts.PageSize, opts.SortColumn, opts.SortDirection)
}

func (c *Cache) Get(key string) (*domain.QueryPage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	page, ok := c.entries[key]
	return page, ok
}

func (c *Cache) Put(key string, page *domain.QueryPage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		// Full reset keeps the cache bookkeeping trivial; the next
		// requests repopulate the hot keys.
		c.entries = make(map[string]*domain.QueryPage)
	}
	c.entries[key] = page
}
