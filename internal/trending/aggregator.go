package trending

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// DefaultLimit is the snapshot size pushed to subscribers.
const DefaultLimit = 20

// Entry is one row of the Top-N trending snapshot.
type Entry struct {
	ShortCode   string `json:"shortCode"`
	TotalClicks int64  `json:"totalClicks"`
	Rank        int    `json:"rank"`
}

// Aggregator counts clicks per short code for the lifetime of the process.
// The consume loop is its only writer; the lock exists for snapshot reads
// taken when a subscriber connects. Counts survive bus reconnects and reset
// only on process restart — redelivered messages count again, which is the
// accepted cost of at-least-once delivery.
type Aggregator struct {
	mu     sync.RWMutex
	counts map[string]int64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{counts: make(map[string]int64)}
}

// Record increments the counter for a short code.
func (a *Aggregator) Record(shortCode string) {
	a.mu.Lock()
	a.counts[shortCode]++
	a.mu.Unlock()
}

// Top returns the limit highest-counted codes ordered by clicks descending,
// ties broken by short code ascending, ranked 1..N without gaps. Repeated
// calls over unchanged counts yield identical output.
func (a *Aggregator) Top(limit int) []Entry {
	a.mu.RLock()
	entries := lo.MapToSlice(a.counts, func(code string, clicks int64) Entry {
		return Entry{ShortCode: code, TotalClicks: clicks}
	})
	a.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalClicks != entries[j].TotalClicks {
			return entries[i].TotalClicks > entries[j].TotalClicks
		}
		return entries[i].ShortCode < entries[j].ShortCode
	})

	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
