// Package cooldown tracks when each pool was last alerted.
package cooldown

import (
	"time"

	"github.com/ethereum/go-ethereum/common/lru"
)

const (
	// Window is the minimum time between two notifications for the same pool.
	Window = 5 * time.Minute
	// DefaultCapacity bounds the number of remembered pools.
	DefaultCapacity = 10_000

	retentionFactor = 3
)

// Ledger maps pool identity to the time of its last successful notification.
//
// It is owned by the single polling worker and is not safe for concurrent use.
// Memory is bounded twice: an LRU evicts the least recently alerted pools past
// capacity, and Prune drops entries that are long past the window and can no
// longer suppress an alert.
type Ledger struct {
	window    time.Duration
	retention time.Duration
	entries   lru.BasicLRU[string, time.Time]
}

// NewLedger builds a ledger using the fixed cooldown window.
func NewLedger(capacity int) *Ledger {
	return newLedger(Window, capacity)
}

func newLedger(window time.Duration, capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		window:    window,
		retention: window * retentionFactor,
		entries:   lru.NewBasicLRU[string, time.Time](capacity),
	}
}

// Window returns the cooldown duration.
func (l *Ledger) Window() time.Duration {
	return l.window
}

// IsOnCooldown reports whether poolID was alerted less than one window before now.
func (l *Ledger) IsOnCooldown(poolID string, now time.Time) bool {
	last, ok := l.entries.Peek(poolID)
	if !ok {
		return false
	}
	return now.Sub(last) < l.window
}

// RecordAlert stores a successful notification. Call it only after the send succeeded.
func (l *Ledger) RecordAlert(poolID string, at time.Time) {
	l.entries.Add(poolID, at)
}

// LastAlert returns the last recorded notification time for poolID.
func (l *Ledger) LastAlert(poolID string) (time.Time, bool) {
	return l.entries.Peek(poolID)
}

// Prune removes entries older than the retention horizon and returns how many were dropped.
func (l *Ledger) Prune(now time.Time) int {
	removed := 0
	for _, key := range l.entries.Keys() {
		at, ok := l.entries.Peek(key)
		if !ok || now.Sub(at) < l.retention {
			continue
		}
		if l.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered pools.
func (l *Ledger) Len() int {
	return l.entries.Len()
}
