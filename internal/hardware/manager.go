// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hardware

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/pi_telemetry/internal/config"
	"github.com/relabs-tech/pi_telemetry/internal/gnss"
)

// Manager owns the GNSS cache, the stream reader goroutine, and the vendor
// device sources. Exactly one instance exists per process: the first New
// call builds it, later calls return the same instance. Pass it by pointer
// into whatever needs hardware access.
type Manager struct {
	cache  *gnss.Cache
	reader *gnss.Reader

	power    PowerSource
	env      EnvironmentSource
	modem    ModemSource
	position PositionSource

	now func() time.Time
}

var (
	managerMu       sync.Mutex
	managerInstance *Manager
)

// New builds the manager, starts the GNSS stream reader, and initializes
// every source selected in the configuration. A source that fails to
// initialize is logged and left unavailable; the rest of the manager keeps
// working.
func New(cfg *config.Config) *Manager {
	managerMu.Lock()
	defer managerMu.Unlock()
	if managerInstance != nil {
		return managerInstance
	}

	m := &Manager{
		cache: gnss.NewCache(),
		now:   time.Now,
	}

	m.reader = gnss.NewReader(m.cache)
	if parts := strings.Fields(cfg.GPSPipeCommand); len(parts) > 0 {
		m.reader.Launch = gnss.GPSPipeLaunch(parts[0], parts[1:]...)
	}
	go m.reader.Run()
	log.Println("hardware: real-time GPS streaming goroutine started")

	switch cfg.PowerSource {
	case "ina219":
		if src, err := NewINA219Source(cfg.UPSI2CBus, cfg.UPSI2CAddr); err != nil {
			log.Printf("hardware: UPS HAT disabled: %v", err)
		} else {
			m.power = src
		}
	case "none", "":
	default:
		log.Printf("hardware: unknown POWER_SOURCE %q, UPS disabled", cfg.PowerSource)
	}

	switch cfg.EnvSource {
	case "bmxx80":
		if src, err := NewBMXSource(cfg.EnvI2CBus, cfg.EnvI2CAddr); err != nil {
			log.Printf("hardware: environment sensor disabled: %v", err)
		} else {
			m.env = src
		}
	case "none", "":
	default:
		log.Printf("hardware: unknown ENV_SOURCE %q, environment sensor disabled", cfg.EnvSource)
	}

	switch cfg.ModemSource {
	case "a7670e":
		if src, err := NewA7670ESource(cfg.ModemSerialPort, uint(cfg.ModemBaudRate)); err != nil {
			log.Printf("hardware: LTE modem disabled: %v", err)
		} else {
			m.modem = src
		}
	case "none", "":
	default:
		log.Printf("hardware: unknown MODEM_SOURCE %q, LTE modem disabled", cfg.ModemSource)
	}

	switch cfg.PositionFallback {
	case "nmea":
		if src, err := NewNMEASource(cfg.GPSSerialPort, uint(cfg.GPSBaudRate)); err != nil {
			log.Printf("hardware: serial GPS fallback disabled: %v", err)
		} else {
			m.position = src
		}
	case "none", "":
	default:
		log.Printf("hardware: unknown POSITION_FALLBACK %q, serial GPS disabled", cfg.PositionFallback)
	}

	managerInstance = m
	log.Println("hardware: manager initialization complete")
	return m
}

// BestFix is the query facade over the real-time cache: it snapshots the
// latest TPV/SKY pair and normalizes it, or reports staleness.
func (m *Manager) BestFix() (gnss.NormalizedFix, error) {
	return gnss.BestFix(m.cache.Snapshot(), m.now())
}

// RawGNSS returns a copy of the internal cache for debugging.
func (m *Manager) RawGNSS() gnss.Snapshot {
	return m.cache.Snapshot()
}

// UPS reads the power monitor.
func (m *Manager) UPS() (PowerSample, error) {
	if m.power == nil {
		return PowerSample{}, ErrSourceUnavailable
	}
	return m.power.Read()
}

// Environment reads the temperature/pressure/humidity sensor.
func (m *Manager) Environment() (EnvSample, error) {
	if m.env == nil {
		return EnvSample{}, ErrSourceUnavailable
	}
	return m.env.Read()
}

// LTENetworkInfo queries the modem for signal, registration and operator.
func (m *Manager) LTENetworkInfo() (ModemNetworkInfo, error) {
	if m.modem == nil {
		return ModemNetworkInfo{}, ErrSourceUnavailable
	}
	return m.modem.NetworkInfo()
}

// SetFlightMode toggles the modem radio.
func (m *Manager) SetFlightMode(enable bool) error {
	if m.modem == nil {
		return ErrSourceUnavailable
	}
	return m.modem.SetFlightMode(enable)
}

// SerialGPS reads the direct-wired receiver, bypassing gpsd.
func (m *Manager) SerialGPS() (SerialFix, error) {
	if m.position == nil {
		return SerialFix{}, ErrSourceUnavailable
	}
	return m.position.Read()
}

// Close stops the stream reader and closes every open source.
func (m *Manager) Close() {
	log.Println("hardware: closing all sources and stopping the GPS reader")
	m.reader.Stop()
	for _, c := range []interface{ Close() error }{m.power, m.env, m.modem, m.position} {
		if c != nil {
			if err := c.Close(); err != nil {
				log.Printf("hardware: close error: %v", err)
			}
		}
	}
}
