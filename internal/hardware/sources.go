// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hardware

import "errors"

// ErrSourceUnavailable is returned by Manager methods whose backing device
// is not configured or failed to initialize.
var ErrSourceUnavailable = errors.New("hardware source not available")

// PowerSample is one reading from the UPS HAT.
type PowerSample struct {
	BusVoltageV    float64 `json:"bus_voltage_V"`
	CurrentMA      float64 `json:"current_mA"`
	PowerW         float64 `json:"power_W"`
	BatteryPercent float64 `json:"battery_percent"`
}

// EnvSample is one reading from the environment sensor.
type EnvSample struct {
	TemperatureC float64 `json:"temperature_c"`
	PressureHPa  float64 `json:"pressure_hpa"`
	HumidityPct  float64 `json:"humidity_percent"`
}

// ModemNetworkInfo is the modem's view of the cellular network.
type ModemNetworkInfo struct {
	SignalQuality       string `json:"signal_quality"`
	NetworkRegistration string `json:"network_registration"`
	OperatorInfo        string `json:"operator_info"`
}

// SerialFix is a position read directly from a serial NMEA receiver,
// used as a fallback when the gpsd stream is down.
type SerialFix struct {
	Valid      bool    `json:"valid"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AltitudeM  float64 `json:"altitude_m"`
	SpeedKnots float64 `json:"speed_knots"`
	CourseDeg  float64 `json:"course_deg"`
	Satellites int     `json:"satellites"`
	FixQuality int     `json:"fix_quality"`
	TimeUTC    string  `json:"time_utc"`
}

// PowerSource reads the UPS HAT.
type PowerSource interface {
	Read() (PowerSample, error)
	Close() error
}

// EnvironmentSource reads temperature/pressure/humidity.
type EnvironmentSource interface {
	Read() (EnvSample, error)
	Close() error
}

// ModemSource talks to the LTE modem.
type ModemSource interface {
	NetworkInfo() (ModemNetworkInfo, error)
	SetFlightMode(enable bool) error
	Close() error
}

// PositionSource reads a position directly from a receiver, bypassing gpsd.
type PositionSource interface {
	Read() (SerialFix, error)
	Close() error
}
