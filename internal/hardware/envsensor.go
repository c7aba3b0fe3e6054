package hardware

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

type bmxSource struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// NewBMXSource opens a BME280/BMP280 environment sensor over I2C. The Pi
// hat exposes it at 0x76; breakout boards often use 0x77.
func NewBMXSource(busName string, addr uint16) (EnvironmentSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("env sensor I2C open: %w", err)
	}

	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("env sensor init: %w", err)
	}

	log.Printf("env: BMx280 initialized at 0x%02x", addr)
	return &bmxSource{bus: bus, dev: dev}, nil
}

func (s *bmxSource) Read() (EnvSample, error) {
	var e physic.Env
	if err := s.dev.Sense(&e); err != nil {
		return EnvSample{}, fmt.Errorf("env sensor sense: %w", err)
	}

	pressurePa := float64(e.Pressure) / float64(physic.Pascal)
	return EnvSample{
		TemperatureC: e.Temperature.Celsius(),
		PressureHPa:  pressurePa / 100.0, // 1 hPa = 100 Pa
		HumidityPct:  float64(e.Humidity) / float64(physic.PercentRH),
	}, nil
}

func (s *bmxSource) Close() error {
	s.dev.Halt()
	return s.bus.Close()
}
