package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/staff"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/metrics"
)

// batchChunkSize bounds how many ids one staff-directory pass handles. Batch
// output is indistinguishable from a single unchunked pass.
const batchChunkSize = 50

// Options configures the resolver. CacheTTL supports sub-minute values so
// tests can exercise expiry without waiting.
type Options struct {
	Strategy     string
	EmailDomain  string
	CacheEnabled bool
	CacheTTL     time.Duration
}

type cacheEntry struct {
	result     identity.ValidationResult
	insertedAt time.Time
}

type ResolverImpl struct {
	staff.Repository
	opts Options

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

func NewResolver(staffRepo staff.Repository, opts Options) identity.Resolver {
	return &ResolverImpl{
		Repository: staffRepo,
		opts:       opts,
		cache:      make(map[string]cacheEntry),
	}
}

// Resolve implements identity.Resolver. Every outcome -- including staff
// directory failures -- is a result value; nothing here returns an error.
func (r *ResolverImpl) Resolve(ctx context.Context, deviceUserID string) identity.ValidationResult {
	key := strings.TrimSpace(deviceUserID)
	if key == "" {
		return identity.ValidationResult{
			DeviceUserID: deviceUserID,
			IsValid:      false,
			ErrorMessage: "device user id is empty",
		}
	}

	if r.opts.CacheEnabled {
		if result, ok := r.cached(key); ok {
			return result
		}
	}

	result := r.resolveUncached(ctx, key)

	if r.opts.CacheEnabled {
		r.mu.Lock()
		r.cache[key] = cacheEntry{result: result, insertedAt: time.Now()}
		r.mu.Unlock()
	}

	return result
}

func (r *ResolverImpl) resolveUncached(ctx context.Context, key string) identity.ValidationResult {
	result := identity.ValidationResult{DeviceUserID: key}

	var (
		s   staff.Staff
		err error
	)
	switch r.opts.Strategy {
	case identity.StrategyEmailPrefix:
		if r.opts.EmailDomain == "" {
			result.ErrorMessage = "Email domain not configured"
			return result
		}
		email := fmt.Sprintf("%s@%s", key, r.opts.EmailDomain)
		s, err = r.FindActiveByEmail(ctx, email)
	case identity.StrategyDirectID:
		s, err = r.FindActiveByID(ctx, key)
	default:
		result.ErrorMessage = fmt.Sprintf("mapping strategy %q not yet implemented", r.opts.Strategy)
		return result
	}

	if err != nil {
		if errors.Is(err, staff.ErrStaffNotFound) {
			result.ErrorMessage = fmt.Sprintf("no active staff record for device user %q", key)
			return result
		}
		result.ErrorMessage = fmt.Sprintf("Database query failed: %v", err)
		return result
	}

	result.IsValid = true
	result.StaffID = &s.ID
	result.StaffName = &s.FullName
	result.StaffEmail = &s.Email
	return result
}

// ResolveBatch implements identity.Resolver.
func (r *ResolverImpl) ResolveBatch(ctx context.Context, deviceUserIDs []string) identity.BatchResult {
	result := identity.BatchResult{
		ValidEntries:   []identity.ValidationResult{},
		InvalidEntries: []identity.ValidationResult{},
	}

	for start := 0; start < len(deviceUserIDs); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(deviceUserIDs) {
			end = len(deviceUserIDs)
		}
		for _, id := range deviceUserIDs[start:end] {
			entry := r.Resolve(ctx, id)
			result.TotalProcessed++
			if entry.IsValid {
				result.ValidCount++
				result.ValidEntries = append(result.ValidEntries, entry)
			} else {
				result.InvalidCount++
				result.InvalidEntries = append(result.InvalidEntries, entry)
			}
		}
	}

	return result
}

// ClearCache implements identity.Resolver.
func (r *ResolverImpl) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}

// CacheStats implements identity.Resolver.
func (r *ResolverImpl) CacheStats() identity.CacheStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := identity.CacheStats{Entries: len(r.cache)}
	for _, entry := range r.cache {
		if stats.OldestEntry == nil || entry.insertedAt.Before(*stats.OldestEntry) {
			t := entry.insertedAt
			stats.OldestEntry = &t
		}
	}
	return stats
}

// cached returns a live cache entry. Expiry is lazy: an expired entry is
// dropped on read.
func (r *ResolverImpl) cached(key string) (identity.ValidationResult, bool) {
	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if !ok {
		metrics.IdentityCacheLookups.WithLabelValues("miss").Inc()
		return identity.ValidationResult{}, false
	}

	if time.Since(entry.insertedAt) > r.opts.CacheTTL {
		r.mu.Lock()
		// Re-check under the write lock; a concurrent Resolve may have
		// refreshed the entry.
		if current, ok := r.cache[key]; ok && time.Since(current.insertedAt) > r.opts.CacheTTL {
			delete(r.cache, key)
		}
		r.mu.Unlock()
		metrics.IdentityCacheLookups.WithLabelValues("expired").Inc()
		return identity.ValidationResult{}, false
	}

	metrics.IdentityCacheLookups.WithLabelValues("hit").Inc()
	return entry.result, true
}
