package allocation

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// =============================================================================
// INDEX CACHE - Built hierarchy indexes, keyed by round and topology version
// =============================================================================

// IndexCache memoizes hierarchy index builds. The cache key includes the
// round's topology version, so a topology change naturally misses and
// triggers a rebuild; allocation activity never invalidates anything.
type IndexCache struct {
	store Store
	cache *gocache.Cache
}

// NewIndexCache creates a cache whose entries expire after ttl.
func NewIndexCache(store Store, ttl time.Duration) *IndexCache {
	return &IndexCache{
		store: store,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// IndexFor returns the hierarchy index for the round, building it from
// the stored topology on a cache miss. A cycle in the topology fails the
// build and nothing is cached.
func (ic *IndexCache) IndexFor(ctx context.Context, round ApplicationRound) (*HierarchyIndex, error) {
	key := fmt.Sprintf("round:%d:v%d", round.ID, round.TopologyVersion)
	if cached, found := ic.cache.Get(key); found {
		return cached.(*HierarchyIndex), nil
	}

	topo, err := ic.store.LoadTopology(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := BuildHierarchyIndex(topo)
	if err != nil {
		return nil, err
	}
	ic.cache.SetDefault(key, idx)
	return idx, nil
}
