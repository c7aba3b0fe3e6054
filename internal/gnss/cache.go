package gnss

import (
	"errors"
	"sync"
	"time"
)

// StaleAfter is how old the last accepted report may be before reads are
// refused. Matches the gpsd cycle comfortably; a receiver that has said
// nothing for this long is effectively down.
const StaleAfter = 10 * time.Second

// ErrStaleFix is returned when the cache has not been written recently
// enough to trust. Reads before the first stream line, during a reader
// restart, and after a permanent reader failure all look the same to the
// caller, deliberately.
var ErrStaleFix = errors.New("stale GPS data: gpspipe stream may be down")

// Cache holds the latest report of each class plus a freshness timestamp.
// The stream reader is the only writer; any number of goroutines read via
// Snapshot. All access goes through one mutex.
type Cache struct {
	mu         sync.Mutex
	latestTPV  TPVReport
	latestSKY  SKYReport
	lastUpdate time.Time
}

// Snapshot is a by-value copy of the cache state taken in one critical
// section, so the three fields are always mutually consistent.
type Snapshot struct {
	TPV        TPVReport `json:"tpv"`
	SKY        SKYReport `json:"sky"`
	LastUpdate time.Time `json:"last_update"`
}

// NewCache returns a cache primed with a zero-fix TPV entry and an empty
// SKY entry. The zero lastUpdate means reads are stale until the stream
// delivers its first line.
func NewCache() *Cache {
	return &Cache{
		latestTPV: TPVReport{Class: ClassTPV, Mode: 0},
		latestSKY: SKYReport{Class: ClassSKY},
	}
}

// SetTPV replaces the TPV slot wholesale and stamps the update time.
func (c *Cache) SetTPV(r TPVReport) {
	c.mu.Lock()
	c.latestTPV = r
	c.lastUpdate = time.Now()
	c.mu.Unlock()
}

// SetSKY replaces the SKY slot wholesale and stamps the update time.
func (c *Cache) SetSKY(r SKYReport) {
	c.mu.Lock()
	c.latestSKY = r
	c.lastUpdate = time.Now()
	c.mu.Unlock()
}

// Snapshot copies the current state out under the lock.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		TPV:        c.latestTPV,
		SKY:        c.latestSKY,
		LastUpdate: c.lastUpdate,
	}
}

// BestFix applies the freshness rule to a snapshot and normalizes it.
func BestFix(snap Snapshot, now time.Time) (NormalizedFix, error) {
	if now.Sub(snap.LastUpdate) > StaleAfter {
		return NormalizedFix{}, ErrStaleFix
	}
	return Normalize(snap.TPV, snap.SKY), nil
}
