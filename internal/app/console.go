package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/pi_telemetry/internal/config"
	"github.com/relabs-tech/pi_telemetry/internal/gnss"
	"github.com/relabs-tech/pi_telemetry/internal/hardware"
)

// RunConsole subscribes to the telemetry topics and pretty-prints whatever
// the poller publishes. Handy for checking a headless Pi over the broker.
func RunConsole() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	gpsToken := client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f gnss.NormalizedFix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: gps unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[GPS ]  %s  lat=%s lon=%s alt=%s  sats=%d/%d  time=%s\n",
			f.FixType, fmtPtr(f.Latitude), fmtPtr(f.Longitude), fmtPtr(f.AltitudeM),
			f.SatellitesUsed, f.SatellitesInView, f.TimeUTC,
		)
	})
	gpsToken.Wait()
	if gpsToken.Error() != nil {
		return gpsToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicGPS)

	powerToken := client.Subscribe(cfg.TopicPower, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p hardware.PowerSample
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("console: power unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[UPS ]  %5.2fV  %7.1fmA  %5.2fW  battery=%.0f%%\n",
			p.BusVoltageV, p.CurrentMA, p.PowerW, p.BatteryPercent,
		)
	})
	powerToken.Wait()
	if powerToken.Error() != nil {
		return powerToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPower)

	envToken := client.Subscribe(cfg.TopicEnv, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var e hardware.EnvSample
		if err := json.Unmarshal(msg.Payload(), &e); err != nil {
			log.Printf("console: env unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[ENV ]  %.1f°C  %.1fhPa  %.0f%%RH\n",
			e.TemperatureC, e.PressureHPa, e.HumidityPct,
		)
	})
	envToken.Wait()
	if envToken.Error() != nil {
		return envToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicEnv)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.6g", *v)
}
