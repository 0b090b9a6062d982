package catalog

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/metrics"
)

// CachedStore caches action configuration reads of an underlying Store for a short TTL.
// Event, permission and host state pass through uncached.
type CachedStore struct {
	Store
	cache  *gocache.Cache
	logger zerolog.Logger
}

// NewCachedStore wraps store with a TTL cache. A non-positive ttl disables expiry.
func NewCachedStore(store Store, ttl time.Duration, logger zerolog.Logger) *CachedStore {
	expiry := ttl
	if ttl <= 0 {
		expiry = gocache.NoExpiration
	}
	return &CachedStore{
		Store:  store,
		cache:  gocache.New(expiry, 2*expiry),
		logger: logger.With().Str("component", "catalog-cache").Logger(),
	}
}

// GetAction returns a cached action when present.
func (c *CachedStore) GetAction(ctx context.Context, actionID uint64) (*Action, error) {
	key := fmt.Sprintf("action:%d", actionID)
	if v, ok := c.cache.Get(key); ok {
		metrics.RecordCatalogCache("action", true)
		a := *v.(*Action)
		return &a, nil
	}
	metrics.RecordCatalogCache("action", false)

	a, err := c.Store.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	stored := *a
	c.cache.SetDefault(key, &stored)
	return a, nil
}

// GetOperations returns cached operations when present.
func (c *CachedStore) GetOperations(ctx context.Context, actionID uint64, filter OperationFilter) ([]*Operation, error) {
	key := fmt.Sprintf("operations:%d:%t:%d", actionID, filter.Recovery, filter.Step)
	if v, ok := c.cache.Get(key); ok {
		metrics.RecordCatalogCache("operations", true)
		return cloneOperations(v.([]*Operation)), nil
	}
	metrics.RecordCatalogCache("operations", false)

	ops, err := c.Store.GetOperations(ctx, actionID, filter)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, cloneOperations(ops))
	return ops, nil
}

// GetConditions returns cached conditions when present.
func (c *CachedStore) GetConditions(ctx context.Context, operationID uint64) ([]Condition, error) {
	key := fmt.Sprintf("conditions:%d", operationID)
	if v, ok := c.cache.Get(key); ok {
		metrics.RecordCatalogCache("conditions", true)
		return append([]Condition(nil), v.([]Condition)...), nil
	}
	metrics.RecordCatalogCache("conditions", false)

	conds, err := c.Store.GetConditions(ctx, operationID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, append([]Condition(nil), conds...))
	return conds, nil
}

// Flush drops every cached entry.
func (c *CachedStore) Flush() {
	c.logger.Debug().Int("entries", c.cache.ItemCount()).Msg("flushing catalog cache")
	c.cache.Flush()
}

func cloneOperations(ops []*Operation) []*Operation {
	result := make([]*Operation, len(ops))
	for i, op := range ops {
		copied := *op
		result[i] = &copied
	}
	return result
}

var _ Store = (*CachedStore)(nil)
