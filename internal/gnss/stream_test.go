package gnss

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedLaunch returns each stream in order, then blocks new launches
// until the reader is stopped.
type scriptedLaunch struct {
	mu      sync.Mutex
	streams []func() (io.ReadCloser, error)
	count   int
}

func (s *scriptedLaunch) launch() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if len(s.streams) == 0 {
		// Nothing left in the script: hand out an empty stream so the
		// reader keeps cycling through its EOF backoff.
		return io.NopCloser(strings.NewReader("")), nil
	}
	next := s.streams[0]
	s.streams = s.streams[1:]
	return next()
}

func (s *scriptedLaunch) launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func lines(ls ...string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(ls, "\n") + "\n")), nil
	}
}

func failWith(err error) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return nil, err }
}

func newTestReader(c *Cache, s *scriptedLaunch) *Reader {
	r := NewReader(c)
	r.Launch = s.launch
	r.EOFBackoff = 5 * time.Millisecond
	r.ErrorBackoff = 10 * time.Millisecond
	return r
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached within 2s")
}

func TestReaderMalformedLinesLeaveCacheUntouched(t *testing.T) {
	c := NewCache()
	script := &scriptedLaunch{streams: []func() (io.ReadCloser, error){
		lines(
			"this is not json",
			`{"lat": 1.0, "lon": 2.0}`,
			`{"class":"VERSION","release":"3.25"}`,
		),
	}}
	r := newTestReader(c, script)

	go r.Run()
	waitFor(t, func() bool { return script.launches() >= 2 })
	r.Stop()

	snap := c.Snapshot()
	if !snap.LastUpdate.IsZero() {
		t.Fatalf("cache was updated by unrecognized input at %v", snap.LastUpdate)
	}
	if snap.TPV.Mode != 0 || snap.TPV.Lat != nil {
		t.Fatalf("TPV slot corrupted: %+v", snap.TPV)
	}
}

func TestReaderAcceptsTPVAndSKY(t *testing.T) {
	c := NewCache()
	script := &scriptedLaunch{streams: []func() (io.ReadCloser, error){
		lines(
			`{"class":"TPV","mode":3,"lat":36.1,"lon":-86.8,"altHAE":150.0}`,
			`{"class":"SKY","uSat":9,"nSat":14}`,
		),
	}}
	r := newTestReader(c, script)

	go r.Run()
	waitFor(t, func() bool {
		snap := c.Snapshot()
		return snap.TPV.Mode == 3 && snap.SKY.USat == 9
	})
	r.Stop()

	fix, err := BestFix(c.Snapshot(), time.Now())
	if err != nil {
		t.Fatalf("BestFix: %v", err)
	}
	if fix.FixType != "3D Fix" {
		t.Errorf("fix_type = %q", fix.FixType)
	}
	if fix.Latitude == nil || *fix.Latitude != 36.1 {
		t.Errorf("latitude = %v", fix.Latitude)
	}
	if fix.Longitude == nil || *fix.Longitude != -86.8 {
		t.Errorf("longitude = %v", fix.Longitude)
	}
	if fix.AltitudeM == nil || *fix.AltitudeM != 150.0 {
		t.Errorf("altitude = %v", fix.AltitudeM)
	}
	if fix.SatellitesUsed != 9 || fix.SatellitesInView != 14 {
		t.Errorf("satellites = %d/%d", fix.SatellitesUsed, fix.SatellitesInView)
	}
}

func TestReaderRestartsAfterEOF(t *testing.T) {
	c := NewCache()
	script := &scriptedLaunch{streams: []func() (io.ReadCloser, error){
		lines(`{"class":"TPV","mode":2,"lat":1.0,"lon":1.0}`), // stream 1, then EOF
		lines(`{"class":"TPV","mode":3,"lat":2.0,"lon":2.0}`), // stream 2 after restart
	}}
	r := newTestReader(c, script)

	go r.Run()
	waitFor(t, func() bool { return c.Snapshot().TPV.Mode == 3 })
	r.Stop()

	if script.launches() < 2 {
		t.Fatalf("expected a relaunch after EOF, got %d launches", script.launches())
	}
}

func TestReaderToolMissingIsFatal(t *testing.T) {
	c := NewCache()
	script := &scriptedLaunch{streams: []func() (io.ReadCloser, error){
		failWith(fmt.Errorf("exec gpspipe: %w", exec.ErrNotFound)),
	}}
	r := newTestReader(c, script)

	go r.Run()

	// Run must exit on its own, with no further launch attempts.
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after missing-tool error")
	}
	if got := script.launches(); got != 1 {
		t.Fatalf("expected exactly 1 launch attempt, got %d", got)
	}
}

func TestReaderRetriesTransientLaunchErrors(t *testing.T) {
	c := NewCache()
	script := &scriptedLaunch{streams: []func() (io.ReadCloser, error){
		failWith(fmt.Errorf("stream hiccup")),
		failWith(fmt.Errorf("stream hiccup")),
		lines(`{"class":"TPV","mode":3,"lat":3.0,"lon":3.0}`),
	}}
	r := newTestReader(c, script)

	go r.Run()
	waitFor(t, func() bool { return c.Snapshot().TPV.Mode == 3 })
	r.Stop()

	if script.launches() < 3 {
		t.Fatalf("expected repeated relaunch attempts, got %d", script.launches())
	}
}

// Stop issued while a launch is still in flight must still take the new
// stream down; the launch below starts Stop and lets it look for an active
// stream before handing one over.
func TestReaderStopDuringLaunchHandover(t *testing.T) {
	c := NewCache()
	pr, pw := io.Pipe() // never written; consume would block forever
	defer pw.Close()

	r := NewReader(c)
	r.EOFBackoff = 5 * time.Millisecond
	r.ErrorBackoff = 10 * time.Millisecond

	stopped := make(chan struct{})
	var once sync.Once
	r.Launch = func() (io.ReadCloser, error) {
		once.Do(func() {
			go func() {
				r.Stop()
				close(stopped)
			}()
			// Let Stop scan for an active stream before one exists.
			time.Sleep(20 * time.Millisecond)
		})
		return pr, nil
	}

	go r.Run()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() never returned after racing a stream launch")
	}
}

func TestReaderStopKillsActiveStream(t *testing.T) {
	c := NewCache()
	pr, pw := io.Pipe() // blocks the scanner until closed
	script := &scriptedLaunch{streams: []func() (io.ReadCloser, error){
		func() (io.ReadCloser, error) { return pr, nil },
	}}
	r := newTestReader(c, script)

	go r.Run()
	waitFor(t, func() bool { return script.launches() == 1 })

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while stream was blocked")
	}
	pw.Close()
}
