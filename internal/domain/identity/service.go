package identity

import "context"

// Resolver maps device-supplied employee identifiers to internal staff
// records, caching outcomes with a TTL when caching is enabled.
type Resolver interface {
	Resolve(ctx context.Context, deviceUserID string) ValidationResult
	ResolveBatch(ctx context.Context, deviceUserIDs []string) BatchResult
	ClearCache()
	CacheStats() CacheStats
}
