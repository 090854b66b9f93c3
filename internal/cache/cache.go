// Package cache defines the derived-aggregate cache the services read
// through, with a Redis implementation for production and an in-process map
// for tests and single-node deployments.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a get/set/delete store for JSON-serializable derived aggregates.
type Cache interface {
	// Get unmarshals the cached value for key into dest, reporting whether a
	// live entry existed.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	// Set stores value under key for the given TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Namespace enumerates every per-owner cache concern. Invalidation iterates
// this closed set instead of relying on wildcard key matching in the backend.
type Namespace string

const (
	NamespaceCategories    Namespace = "categories"
	NamespaceRules         Namespace = "active_rules"
	NamespaceDashboard     Namespace = "dashboard_summary"
	NamespacePatterns      Namespace = "spending_patterns"
	NamespaceUncategorized Namespace = "uncategorized"
	NamespaceAnomalies     Namespace = "anomaly_summary"
	NamespaceCategoryStats Namespace = "category_stats"
)

// AllNamespaces is the full enumeration, in invalidation order.
var AllNamespaces = []Namespace{
	NamespaceCategories,
	NamespaceRules,
	NamespaceDashboard,
	NamespacePatterns,
	NamespaceUncategorized,
	NamespaceAnomalies,
	NamespaceCategoryStats,
}

// Default freshness windows per namespace.
const (
	TTLCategories    = time.Hour
	TTLRules         = time.Hour
	TTLDashboard     = 30 * time.Minute
	TTLPatterns      = 2 * time.Hour
	TTLUncategorized = 15 * time.Minute
	TTLAnomalies     = 10 * time.Minute
	TTLCategoryStats = time.Hour
)

// Key returns the cache key for one owner and namespace.
func Key(userID string, ns Namespace) string {
	return fmt.Sprintf("user_%s_%s", userID, ns)
}

// InvalidateOwner deletes the given namespaces for one owner; with no
// namespaces it deletes all of them.
func InvalidateOwner(ctx context.Context, c Cache, userID string, namespaces ...Namespace) error {
	if len(namespaces) == 0 {
		namespaces = AllNamespaces
	}
	keys := make([]string, len(namespaces))
	for i, ns := range namespaces {
		keys[i] = Key(userID, ns)
	}
	return c.Delete(ctx, keys...)
}

// Fetch reads key into dest and, on a miss, computes the value, stores it,
// and copies it into dest.
func Fetch[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err == nil && hit {
		return cached, nil
	}

	value, err := compute()
	if err != nil {
		return value, err
	}
	// Cache write failures are not fatal; the caller still gets the value.
	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}
