package monitor

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Dedup tracks which listings a user has already been notified about.
// One instance per user. Normally only that user's poll goroutine
// touches it, but a stop/start pair can briefly overlap an old tick with
// a new loop, so the map carries its own lock.
//
// Policy: while a listing stays profitable it keeps re-notifying every
// tick; once profit turns non-positive the entry is cleared so the
// listing may alert again later. Entries for listings that vanish from
// the marketplace are kept as-is.
type Dedup struct {
	mu   sync.Mutex
	sent map[string]struct{}
}

func NewDedup() *Dedup {
	return &Dedup{sent: make(map[string]struct{})}
}

// ShouldNotify applies one tick's transition for a listing and reports
// whether a notification must go out.
func (d *Dedup) ShouldNotify(listingID string, profit decimal.Decimal) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if profit.IsPositive() {
		d.sent[listingID] = struct{}{}
		return true
	}
	delete(d.sent, listingID)
	return false
}

// Sent reports whether the listing is currently in the notified state.
func (d *Dedup) Sent(listingID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sent[listingID]
	return ok
}
