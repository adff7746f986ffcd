package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opertusmundi/normalize/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// StatusCacheService caches the polling view of completed tickets. A completed
// ticket's terminal fields never change, so a cached entry can only ever go
// stale by expiring.
type StatusCacheService struct {
	cache CacheRepository
	ttl   time.Duration
}

// StatusCacheConfig holds configuration for ticket status caching.
type StatusCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// StatusCacheServiceOptions bundles dependencies for NewStatusCacheService.
type StatusCacheServiceOptions struct {
	Cache  CacheRepository
	Config StatusCacheConfig
}

// DefaultStatusCacheConfig returns a StatusCacheConfig with sensible defaults.
func DefaultStatusCacheConfig() StatusCacheConfig {
	return StatusCacheConfig{
		TTL: time.Hour,
	}
}

// NewStatusCacheService creates a new StatusCacheService.
func NewStatusCacheService(opts StatusCacheServiceOptions) *StatusCacheService {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultStatusCacheConfig().TTL
	}
	return &StatusCacheService{
		cache: opts.Cache,
		ttl:   ttl,
	}
}

// GetCachedStatus retrieves a cached status view by ticket token.
// Returns nil if not cached.
func (s *StatusCacheService) GetCachedStatus(ctx context.Context, token string) (*model.TicketStatusResponse, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := s.cache.Get(ctx, s.statusKey(token))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var resp model.TicketStatusResponse
	if unmarshalErr := json.Unmarshal(raw, &resp); unmarshalErr != nil {
		// A corrupt entry is dropped rather than served.
		_, _ = s.cache.Delete(ctx, s.statusKey(token))
		return nil, nil
	}
	return &resp, nil
}

// CacheStatus stores the status view of a ticket. Only completed tickets are
// cached; in-flight tickets would serve stale lifecycle state.
func (s *StatusCacheService) CacheStatus(ctx context.Context, ticket *model.Ticket) error {
	if ticket == nil || ticket.Token == "" {
		return nil
	}
	if ticket.Status != model.TicketStatusCompleted {
		return nil
	}

	resp := model.StatusOf(ticket)
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.statusKey(ticket.Token), raw, s.ttl)
}

// statusKey generates a cache key for a ticket status view.
func (s *StatusCacheService) statusKey(token string) string {
	return "ticket:status:" + token
}
