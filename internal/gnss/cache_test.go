package gnss

import (
	"sync"
	"testing"
	"time"
)

func TestCacheStartsStale(t *testing.T) {
	c := NewCache()
	if _, err := BestFix(c.Snapshot(), time.Now()); err != ErrStaleFix {
		t.Fatalf("expected ErrStaleFix before first update, got %v", err)
	}
}

func TestCacheOverwritesWholesale(t *testing.T) {
	c := NewCache()
	c.SetTPV(TPVReport{Class: ClassTPV, Mode: 3, Lat: f(36.1), AltHAE: f(150.0)})
	// Second report without altitude must not inherit the old one.
	c.SetTPV(TPVReport{Class: ClassTPV, Mode: 2, Lat: f(36.2)})

	snap := c.Snapshot()
	if snap.TPV.AltHAE != nil {
		t.Fatalf("altHAE leaked from previous report: %v", *snap.TPV.AltHAE)
	}
	if snap.TPV.Mode != 2 {
		t.Fatalf("mode = %d, want 2", snap.TPV.Mode)
	}
}

// Every snapshot must reflect exactly one completed update, never a mix of
// fields from two. The writer publishes correlated lat/lon/alt values and
// the readers check the correlation under -race.
func TestCacheSnapshotAtomicity(t *testing.T) {
	c := NewCache()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := float64(i)
			c.SetTPV(TPVReport{Class: ClassTPV, Mode: 3, Lat: f(v), Lon: f(v), AltHAE: f(v)})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 2000; n++ {
				snap := c.Snapshot()
				tpv := snap.TPV
				if tpv.Lat == nil {
					continue // initial zero-fix entry
				}
				if *tpv.Lat != *tpv.Lon || *tpv.Lat != *tpv.AltHAE {
					t.Errorf("torn snapshot: lat=%v lon=%v alt=%v",
						*tpv.Lat, *tpv.Lon, *tpv.AltHAE)
					return
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestBestFixStalenessBoundary(t *testing.T) {
	last := time.Now()
	snap := Snapshot{
		TPV:        TPVReport{Class: ClassTPV, Mode: 3, Lat: f(36.1), Lon: f(-86.8)},
		SKY:        SKYReport{Class: ClassSKY, USat: 9, NSat: 14},
		LastUpdate: last,
	}

	// 9.9s old: still fresh.
	if _, err := BestFix(snap, last.Add(9900*time.Millisecond)); err != nil {
		t.Fatalf("expected fresh data at 9.9s, got %v", err)
	}
	// Exactly 10s old: still fresh (strictly-greater rule).
	if _, err := BestFix(snap, last.Add(StaleAfter)); err != nil {
		t.Fatalf("expected fresh data at exactly 10s, got %v", err)
	}
	// Past the threshold: stale.
	if _, err := BestFix(snap, last.Add(StaleAfter+time.Millisecond)); err != ErrStaleFix {
		t.Fatalf("expected ErrStaleFix past 10s, got %v", err)
	}
}

func TestBestFixStaleAfterSilence(t *testing.T) {
	c := NewCache()
	c.SetTPV(TPVReport{Class: ClassTPV, Mode: 3, Lat: f(36.1), Lon: f(-86.8)})

	// 15s of silence: the façade must refuse the numerically plausible data.
	if _, err := BestFix(c.Snapshot(), time.Now().Add(15*time.Second)); err != ErrStaleFix {
		t.Fatalf("expected ErrStaleFix after 15s of silence, got %v", err)
	}
}
