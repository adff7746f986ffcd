package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opertusmundi/normalize/internal/domain/model"
)

// memCache is a minimal in-memory CacheRepository for tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *memCache) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

func (m *memCache) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok, nil
}

func (m *memCache) SetIfNotExists(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.entries[key] = append([]byte(nil), value...)
	return true, nil
}

func (m *memCache) Health(_ context.Context) error { return nil }

func completedTicket(token string) *model.Ticket {
	ok := true
	secs := 2.5
	done := time.Date(2025, 6, 1, 10, 0, 5, 0, time.UTC)
	return &model.Ticket{
		Token:         token,
		Status:        model.TicketStatusCompleted,
		Success:       &ok,
		RequestedTime: done.Add(-5 * time.Second),
		CompletedTime: &done,
		ExecutionTime: &secs,
	}
}

func TestStatusCache_RoundTrip(t *testing.T) {
	cache := newMemCache()
	svc := NewStatusCacheService(StatusCacheServiceOptions{Cache: cache})

	ticket := completedTicket("tkt-1")
	require.NoError(t, svc.CacheStatus(context.Background(), ticket))

	got, err := svc.GetCachedStatus(context.Background(), "tkt-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Completed)
	require.NotNil(t, got.Success)
	assert.True(t, *got.Success)
	require.NotNil(t, got.ExecutionTime)
	assert.InDelta(t, 2.5, *got.ExecutionTime, 1e-9)
}

func TestStatusCache_SkipsNonTerminalTickets(t *testing.T) {
	cache := newMemCache()
	svc := NewStatusCacheService(StatusCacheServiceOptions{Cache: cache})

	pending := &model.Ticket{Token: "tkt-2", Status: model.TicketStatusPending}
	require.NoError(t, svc.CacheStatus(context.Background(), pending))

	got, err := svc.GetCachedStatus(context.Background(), "tkt-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatusCache_MissReturnsNil(t *testing.T) {
	svc := NewStatusCacheService(StatusCacheServiceOptions{Cache: newMemCache()})

	got, err := svc.GetCachedStatus(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.GetCachedStatus(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatusCache_CorruptEntryDropped(t *testing.T) {
	cache := newMemCache()
	svc := NewStatusCacheService(StatusCacheServiceOptions{Cache: cache})

	require.NoError(t, cache.Set(context.Background(), "ticket:status:bad", []byte("{not json"), 0))

	got, err := svc.GetCachedStatus(context.Background(), "bad")
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := cache.Exists(context.Background(), "ticket:status:bad")
	require.NoError(t, err)
	assert.False(t, exists)
}
