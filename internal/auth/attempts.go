package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	codeThreshold     = 3
	defaultMaxEntries = 5000
)

// Attempt tracks consecutive login failures for one username/address
// pair. Code is non-empty only once Count has reached the two-factor
// threshold.
type Attempt struct {
	Count      int
	Username   string
	ClientAddr string
	Code       string
	UpdatedAt  time.Time
}

// AttemptKey builds the tracker key for a username and client address.
func AttemptKey(username, clientAddr string) string {
	return username + "-" + clientAddr
}

// AttemptTracker is an in-memory map of failure records. Entries expire
// after the configured TTL so the map stays bounded for the life of the
// process; a sweep also runs when the map grows past maxEntries.
type AttemptTracker struct {
	mu         sync.Mutex
	ttl        time.Duration
	entries    map[string]Attempt
	maxEntries int
	now        func() time.Time
}

func NewAttemptTracker(ttl time.Duration) *AttemptTracker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &AttemptTracker{
		ttl:        ttl,
		entries:    make(map[string]Attempt),
		maxEntries: defaultMaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the live failure record for key, if any. Expired entries
// count as absent and are dropped.
func (t *AttemptTracker) Get(key string) (Attempt, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt, ok := t.entries[key]
	if !ok {
		return Attempt{}, false
	}
	if t.now().Sub(attempt.UpdatedAt) > t.ttl {
		delete(t.entries, key)
		return Attempt{}, false
	}

	return attempt, true
}

// RecordFailure increments the failure count for key, starting at 1
// when no live record exists. A fresh one-time code is assigned
// whenever the new count reaches the two-factor threshold; below it the
// code stays empty.
func (t *AttemptTracker) RecordFailure(key, username, clientAddr string) Attempt {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	count := 1
	if prior, ok := t.entries[key]; ok && now.Sub(prior.UpdatedAt) <= t.ttl {
		count = prior.Count + 1
	}

	code := ""
	if count >= codeThreshold {
		code = uuid.NewString()
	}

	attempt := Attempt{
		Count:      count,
		Username:   username,
		ClientAddr: clientAddr,
		Code:       code,
		UpdatedAt:  now,
	}
	t.entries[key] = attempt

	if len(t.entries) > t.maxEntries {
		t.sweepLocked(now)
	}

	return attempt
}

// Clear removes the record for key.
func (t *AttemptTracker) Clear(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Sweep drops expired records and reports how many were removed.
func (t *AttemptTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked(t.now())
}

func (t *AttemptTracker) sweepLocked(now time.Time) int {
	removed := 0
	for key, attempt := range t.entries {
		if now.Sub(attempt.UpdatedAt) > t.ttl {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}

func (t *AttemptTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
