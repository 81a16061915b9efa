package workflow

import (
	"strconv"
	"time"

	"github.com/dripline/dripline/pkg/graph"
	"github.com/dripline/dripline/pkg/models"
	"github.com/patrickmn/go-cache"
)

const DefaultGraphTTL = 10 * time.Minute

// GraphCache keeps the predecessor index of recently run automations. Entries
// are keyed by id and UpdatedAt, so saving an automation yields a fresh graph.
type GraphCache struct {
	cache *cache.Cache
}

func NewGraphCache(ttl time.Duration) *GraphCache {
	if ttl <= 0 {
		ttl = DefaultGraphTTL
	}

	return &GraphCache{cache: cache.New(ttl, 2*ttl)}
}

func (c *GraphCache) Get(automation *models.Automation) *graph.Graph {
	key := automation.ID + "@" + strconv.FormatInt(automation.UpdatedAt.UnixNano(), 10)

	if cached, ok := c.cache.Get(key); ok {
		if g, ok := cached.(*graph.Graph); ok {
			return g
		}
	}

	g := graph.New(automation)
	c.cache.SetDefault(key, g)

	return g
}

func (c *GraphCache) Len() int {
	return c.cache.ItemCount()
}
