package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDPoller  string
	MQTTClientIDConsole string
	MQTTClientIDDisplay string

	// Topics
	TopicGPS   string
	TopicPower string
	TopicEnv   string

	// GNSS
	// GPSPipeCommand is the streaming command supervised by the reader.
	GPSPipeCommand string
	// Serial fallback receiver, bypassing gpsd.
	PositionFallback string // "nmea" or "none"
	GPSSerialPort    string
	GPSBaudRate      int

	// UPS HAT
	PowerSource string // "ina219" or "none"
	UPSI2CBus   string
	UPSI2CAddr  uint16

	// Environment sensor
	EnvSource  string // "bmxx80" or "none"
	EnvI2CBus  string
	EnvI2CAddr uint16

	// LTE modem
	ModemSource     string // "a7670e" or "none"
	ModemSerialPort string
	ModemBaudRate   int

	// Web server
	WebServerPort int

	// Storage
	DBPath string

	// Polling intervals (seconds)
	PollGPSSeconds   int
	PollPowerSeconds int
	PollEnvSeconds   int

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for the config singleton. External
// code must use InitGlobal() to set and Get() to read.
var (
	globalConfig  *Config
	globalLoadErr error
	configOnce    sync.Once
	configMu      sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config with every optional key pre-filled.
func defaults() *Config {
	return &Config{
		MQTTClientIDPoller:  "pi-telemetry-poller",
		MQTTClientIDConsole: "pi-telemetry-console",
		MQTTClientIDDisplay: "pi-telemetry-display",

		TopicGPS:   "telemetry/gps",
		TopicPower: "telemetry/power",
		TopicEnv:   "telemetry/env",

		GPSPipeCommand:   "gpspipe -w",
		PositionFallback: "none",
		GPSSerialPort:    "/dev/serial0",
		GPSBaudRate:      9600,

		PowerSource: "none",
		UPSI2CAddr:  0x42,

		EnvSource:  "none",
		EnvI2CAddr: 0x76,

		ModemSource:     "none",
		ModemSerialPort: "/dev/ttyUSB2",
		ModemBaudRate:   115200,

		WebServerPort: 8080,
		DBPath:        "/var/lib/pi_telemetry/pi_telemetry.db",

		PollGPSSeconds:   10,
		PollPowerSeconds: 30,
		PollEnvSeconds:   60,

		DisplayUpdateInterval: 1000,
	}
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_POLLER":
		c.MQTTClientIDPoller = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_POWER":
		c.TopicPower = value
	case "TOPIC_ENV":
		c.TopicEnv = value

	// GNSS
	case "GPS_PIPE_COMMAND":
		c.GPSPipeCommand = value
	case "POSITION_FALLBACK":
		if value != "nmea" && value != "none" {
			return fmt.Errorf("POSITION_FALLBACK must be \"nmea\" or \"none\", got %q", value)
		}
		c.PositionFallback = value
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// UPS HAT
	case "POWER_SOURCE":
		if value != "ina219" && value != "none" {
			return fmt.Errorf("POWER_SOURCE must be \"ina219\" or \"none\", got %q", value)
		}
		c.PowerSource = value
	case "UPS_I2C_BUS":
		c.UPSI2CBus = value
	case "UPS_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid UPS_I2C_ADDR %q: %w", value, err)
		}
		c.UPSI2CAddr = uint16(addr)

	// Environment sensor
	case "ENV_SOURCE":
		if value != "bmxx80" && value != "none" {
			return fmt.Errorf("ENV_SOURCE must be \"bmxx80\" or \"none\", got %q", value)
		}
		c.EnvSource = value
	case "ENV_I2C_BUS":
		c.EnvI2CBus = value
	case "ENV_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid ENV_I2C_ADDR %q: %w", value, err)
		}
		c.EnvI2CAddr = uint16(addr)

	// LTE modem
	case "MODEM_SOURCE":
		if value != "a7670e" && value != "none" {
			return fmt.Errorf("MODEM_SOURCE must be \"a7670e\" or \"none\", got %q", value)
		}
		c.ModemSource = value
	case "MODEM_SERIAL_PORT":
		c.ModemSerialPort = value
	case "MODEM_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MODEM_BAUD_RATE %q: %w", value, err)
		}
		c.ModemBaudRate = rate

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Storage
	case "DB_PATH":
		c.DBPath = value

	// Polling
	case "POLL_GPS_SECONDS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POLL_GPS_SECONDS %q: %w", value, err)
		}
		c.PollGPSSeconds = interval
	case "POLL_POWER_SECONDS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POLL_POWER_SECONDS %q: %w", value, err)
		}
		c.PollPowerSeconds = interval
	case "POLL_ENV_SECONDS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POLL_ENV_SECONDS %q: %w", value, err)
		}
		c.PollEnvSeconds = interval

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		// The ssd1306 driver only speaks to 0x3C.
		if addr != 0x3c {
			return fmt.Errorf("DISPLAY_I2C_ADDR must be 0x3C, got 0x%02X", addr)
		}
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.GPSPipeCommand == "" {
		return fmt.Errorf("GPS_PIPE_COMMAND must not be empty")
	}
	if c.PositionFallback == "nmea" && c.GPSSerialPort == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is required when POSITION_FALLBACK=nmea")
	}
	if c.ModemSource == "a7670e" && c.ModemSerialPort == "" {
		return fmt.Errorf("MODEM_SERIAL_PORT is required when MODEM_SOURCE=a7670e")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	if c.PollGPSSeconds <= 0 || c.PollPowerSeconds <= 0 || c.PollEnvSeconds <= 0 {
		return fmt.Errorf("polling intervals must be positive")
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so a second call is a no-op; a failed first load keeps
// reporting its error on later calls.
func InitGlobal(configPath string) error {
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, globalLoadErr = Load(configPath)
	})
	configMu.RLock()
	defer configMu.RUnlock()
	return globalLoadErr
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
