package permission

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity bounds the number of role policies kept in memory.
const DefaultCacheCapacity = 256

// Cache is a bounded LRU of role policies shared by every session of a pool.
// Lookups for roles that have not been loaded are denied (fail-closed); the
// cache is a performance layer, not the source of truth.
type Cache struct {
	policies *lru.Cache[string, RolePolicy]
	capacity int
}

// NewCache creates a cache with the given capacity; zero or negative values
// fall back to DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	policies, err := lru.New[string, RolePolicy](capacity)
	if err != nil {
		// lru.New only fails on a non-positive size, which is handled above.
		panic(err)
	}
	return &Cache{policies: policies, capacity: capacity}
}

// Check evaluates role/table/operation against the cached policy. A role with
// no cached policy is denied.
func (c *Cache) Check(role, table string, op Operation) bool {
	policy, ok := c.policies.Get(role)
	if !ok {
		slog.Debug("permission cache miss, denying", "role", role, "table", table, "operation", op.String())
		return false
	}

	allowed := policy.Allows(table, op)
	slog.Debug("permission check",
		"role", role, "table", table, "operation", op.String(), "allowed", allowed)
	return allowed
}

// LoadPolicy copies one role's policy from the config into the cache,
// evicting the least-recently-used entry if at capacity.
func (c *Cache) LoadPolicy(role string, cfg *Config) error {
	policy, ok := cfg.RolePolicy(role)
	if !ok {
		return fmt.Errorf("role %q not found in permission config", role)
	}
	c.policies.Add(role, policy)
	slog.Info("loaded permission policy", "role", role)
	return nil
}

// Preload pushes every role in the config into the cache. Used at pool
// startup so steady-state checks never miss.
func (c *Cache) Preload(cfg *Config) {
	for role, policy := range cfg.Roles {
		c.policies.Add(role, policy)
	}
	slog.Info("preloaded permission policies", "roles", len(cfg.Roles))
}

// Purge drops every cached policy.
func (c *Cache) Purge() {
	c.policies.Purge()
}

// Stats describes cache occupancy.
type Stats struct {
	CachedRoles int `json:"cached_roles"`
	Capacity    int `json:"capacity"`
}

// Stats returns current occupancy and capacity.
func (c *Cache) Stats() Stats {
	return Stats{
		CachedRoles: c.policies.Len(),
		Capacity:    c.capacity,
	}
}
