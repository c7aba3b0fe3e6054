package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndRecentLocations(t *testing.T) {
	s := openTestStore(t)

	alt := 150.0
	if err := s.AddLocation(36.1, -86.8, &alt, "gpspipe", map[string]int{"mode": 3}); err != nil {
		t.Fatalf("AddLocation: %v", err)
	}
	if err := s.AddLocation(36.2, -86.9, nil, "gpspipe", nil); err != nil {
		t.Fatalf("AddLocation: %v", err)
	}

	rows, err := s.RecentLocations(10)
	if err != nil {
		t.Fatalf("RecentLocations: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// Newest first.
	if rows[0].Latitude != 36.2 {
		t.Errorf("rows[0].Latitude = %v", rows[0].Latitude)
	}
	if rows[0].Altitude != nil {
		t.Errorf("rows[0].Altitude = %v, want nil", *rows[0].Altitude)
	}
	if rows[1].Altitude == nil || *rows[1].Altitude != 150.0 {
		t.Errorf("rows[1].Altitude = %v, want 150", rows[1].Altitude)
	}
}

func TestRecentSamplesFilterByType(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddSample("power", 7.9, "V", "ina219", nil); err != nil {
		t.Fatalf("AddSample: %v", err)
	}
	if err := s.AddSample("env", 21.4, "C", "bmxx80", nil); err != nil {
		t.Fatalf("AddSample: %v", err)
	}

	rows, err := s.RecentSamples("power", 10)
	if err != nil {
		t.Fatalf("RecentSamples: %v", err)
	}
	if len(rows) != 1 || rows[0].DataType != "power" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	all, err := s.RecentSamples("", 10)
	if err != nil {
		t.Fatalf("RecentSamples all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d rows, want 2", len(all))
	}
}

func TestStatsAndPrune(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddLocation(1, 2, nil, "test", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSample("power", 1, "V", "test", nil); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.LocationRows != 1 || st.SensorRows != 1 {
		t.Fatalf("stats = %+v", st)
	}

	// Nothing is older than an hour yet.
	n, err := s.Prune(time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 0 {
		t.Fatalf("pruned %d rows, want 0", n)
	}

	// A zero cutoff removes everything written before "now".
	time.Sleep(10 * time.Millisecond)
	n, err = s.Prune(0)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d rows, want 2", n)
	}
}
