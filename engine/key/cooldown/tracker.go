package cooldown

import (
	"context"
	"sync"
	"time"
)

// Tracker stores per-requester reset cooldown expiries.
type Tracker interface {
	// Expiry returns the instant the requester's cooldown ends. ok is false
	// when no cooldown was ever recorded.
	Expiry(ctx context.Context, requesterID string) (until time.Time, ok bool, err error)
	Set(ctx context.Context, requesterID string, until time.Time) error
}

// MemoryTracker keeps cooldowns for the lifetime of the process.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{entries: make(map[string]time.Time)}
}

func (m *MemoryTracker) Expiry(_ context.Context, requesterID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[requesterID]
	return until, ok, nil
}

func (m *MemoryTracker) Set(_ context.Context, requesterID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[requesterID] = until
	return nil
}

// Prune drops entries that expired at or before now and returns how many
// were removed.
func (m *MemoryTracker) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, until := range m.entries {
		if !until.After(now) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked requesters.
func (m *MemoryTracker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Remaining returns how long until the cooldown for requesterID ends at now.
// Zero means no active cooldown.
func Remaining(ctx context.Context, t Tracker, requesterID string, now time.Time) (time.Duration, error) {
	until, ok, err := t.Expiry(ctx, requesterID)
	if err != nil {
		return 0, err
	}
	if !ok || !until.After(now) {
		return 0, nil
	}
	return until.Sub(now), nil
}
