package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/pi_telemetry/internal/config"
	"github.com/relabs-tech/pi_telemetry/internal/gnss"
	"github.com/relabs-tech/pi_telemetry/internal/hardware"
)

// displayData holds the latest telemetry for the status panel.
type displayData struct {
	mu sync.RWMutex

	fix     gnss.NormalizedFix
	haveFix bool

	power     hardware.PowerSample
	havePower bool
}

// RunDisplay drives a small SSD1306 OLED with the latest fix and battery
// state, fed from the MQTT topics the poller publishes on.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	// The ssd1306 driver always talks to 0x3C.
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized at 0x3C")

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	gpsToken := client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f gnss.NormalizedFix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("display: gps unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.fix = f
		data.haveFix = true
		data.mu.Unlock()
	})
	gpsToken.Wait()
	if gpsToken.Error() != nil {
		return gpsToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicGPS)

	powerToken := client.Subscribe(cfg.TopicPower, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p hardware.PowerSample
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("display: power unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.power = p
		data.havePower = true
		data.mu.Unlock()
	})
	powerToken.Wait()
	if powerToken.Error() != nil {
		return powerToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicPower)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		fix, haveFix := data.fix, data.haveFix
		power, havePower := data.power, data.havePower
		data.mu.RUnlock()

		if err := drawStatus(dev, fix, haveFix, power, havePower); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func drawStatus(dev *ssd1306.Dev, fix gnss.NormalizedFix, haveFix bool, power hardware.PowerSample, havePower bool) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !haveFix {
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte("GPS: waiting..."))
	} else if fix.Latitude == nil || fix.Longitude == nil {
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte("GPS: " + fix.FixType))
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("sats %d/%d", fix.SatellitesUsed, fix.SatellitesInView)))
	} else {
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("%s %d/%d", fix.FixType, fix.SatellitesUsed, fix.SatellitesInView)))
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("%9.4f", *fix.Latitude)))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("%9.4f", *fix.Longitude)))
	}

	drawer.Dot = fixed.P(0, 52)
	if !havePower {
		drawer.DrawBytes([]byte("BAT: n/a"))
	} else {
		drawer.DrawBytes([]byte(fmt.Sprintf("BAT %3.0f%% %.2fV", power.BatteryPercent, power.BusVoltageV)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
