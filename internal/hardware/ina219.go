// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hardware

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"
	"periph.io/x/host/v3"
)

// Two-cell 18650 pack window used for the battery percentage estimate,
// from the Waveshare UPS HAT reference script.
const (
	batteryMinV = 6.0
	batteryMaxV = 8.4
)

type ina219Source struct {
	bus i2c.BusCloser
	dev *ina219.Dev
}

// NewINA219Source opens the Waveshare UPS HAT's INA219 monitor on the
// given I2C bus ("" selects the first available one).
func NewINA219Source(busName string, addr uint16) (PowerSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("UPS I2C open: %w", err)
	}

	opts := ina219.DefaultOpts
	opts.Address = int(addr)
	dev, err := ina219.New(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("INA219 init: %w", err)
	}

	log.Printf("ups: INA219 initialized at 0x%02x", addr)
	return &ina219Source{bus: bus, dev: dev}, nil
}

func (s *ina219Source) Read() (PowerSample, error) {
	pm, err := s.dev.Sense()
	if err != nil {
		// A sharp load can glitch the sensor on the I2C side; surface the
		// error and let the caller retry on its next cycle.
		return PowerSample{}, fmt.Errorf("INA219 sense: %w", err)
	}

	busV := float64(pm.Voltage) / float64(physic.Volt)
	currentMA := float64(pm.Current) / float64(physic.MilliAmpere)
	powerW := float64(pm.Power) / float64(physic.Watt)

	return PowerSample{
		BusVoltageV:    busV,
		CurrentMA:      currentMA,
		PowerW:         powerW,
		BatteryPercent: batteryPercent(busV),
	}, nil
}

func (s *ina219Source) Close() error {
	return s.bus.Close()
}

// batteryPercent estimates charge from bus voltage, clamped to 0-100.
func batteryPercent(voltage float64) float64 {
	if voltage <= batteryMinV {
		return 0
	}
	if voltage >= batteryMaxV {
		return 100
	}
	return (voltage - batteryMinV) / (batteryMaxV - batteryMinV) * 100
}
