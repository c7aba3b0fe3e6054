package hardware

import (
	"errors"
	"testing"
	"time"

	"github.com/relabs-tech/pi_telemetry/internal/config"
	"github.com/relabs-tech/pi_telemetry/internal/gnss"
)

func resetManager() {
	managerMu.Lock()
	if managerInstance != nil {
		managerInstance.Close()
	}
	managerInstance = nil
	managerMu.Unlock()
}

func testConfig() *config.Config {
	// A launch command that cannot resolve makes the reader goroutine exit
	// immediately, so tests do not leave a relaunch loop running.
	return &config.Config{
		GPSPipeCommand:   "no-such-gpspipe-binary -w",
		PowerSource:      "none",
		EnvSource:        "none",
		ModemSource:      "none",
		PositionFallback: "none",
	}
}

func TestNewReturnsSameInstance(t *testing.T) {
	resetManager()
	defer resetManager()

	first := New(testConfig())
	second := New(testConfig())
	if first != second {
		t.Fatalf("New returned two distinct managers: %p vs %p", first, second)
	}
}

func TestDisabledSourcesReportUnavailable(t *testing.T) {
	resetManager()
	defer resetManager()

	m := New(testConfig())

	if _, err := m.UPS(); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("UPS() err = %v, want ErrSourceUnavailable", err)
	}
	if _, err := m.Environment(); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Environment() err = %v, want ErrSourceUnavailable", err)
	}
	if _, err := m.LTENetworkInfo(); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("LTENetworkInfo() err = %v, want ErrSourceUnavailable", err)
	}
	if err := m.SetFlightMode(true); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("SetFlightMode() err = %v, want ErrSourceUnavailable", err)
	}
	if _, err := m.SerialGPS(); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("SerialGPS() err = %v, want ErrSourceUnavailable", err)
	}
}

func TestBestFixReflectsCacheFreshness(t *testing.T) {
	resetManager()
	defer resetManager()

	m := New(testConfig())

	if _, err := m.BestFix(); !errors.Is(err, gnss.ErrStaleFix) {
		t.Fatalf("BestFix() on an empty cache: err = %v, want ErrStaleFix", err)
	}

	lat, lon := 36.1, -86.8
	m.cache.SetTPV(gnss.TPVReport{Class: gnss.ClassTPV, Mode: 3, Lat: &lat, Lon: &lon})

	fix, err := m.BestFix()
	if err != nil {
		t.Fatalf("BestFix() after update: %v", err)
	}
	if fix.FixType != "3D Fix" {
		t.Errorf("FixType = %q, want %q", fix.FixType, "3D Fix")
	}
	if fix.Latitude == nil || *fix.Latitude != lat {
		t.Errorf("Latitude = %v, want %v", fix.Latitude, lat)
	}

	// Push the manager's clock past the staleness window.
	m.now = func() time.Time { return time.Now().Add(gnss.StaleAfter + time.Second) }
	if _, err := m.BestFix(); !errors.Is(err, gnss.ErrStaleFix) {
		t.Errorf("BestFix() with an aged clock: err = %v, want ErrStaleFix", err)
	}
}
