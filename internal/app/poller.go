package app

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/pi_telemetry/internal/config"
	"github.com/relabs-tech/pi_telemetry/internal/hardware"
	"github.com/relabs-tech/pi_telemetry/internal/storage"
)

// RunPoller periodically reads the hardware manager, stores the results,
// and publishes them over MQTT. It blocks until SIGINT/SIGTERM.
func RunPoller(hw *hardware.Manager, store *storage.Store) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDPoller).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("poller: connected to MQTT broker at %s", cfg.MQTTBroker)

	gpsTicker := time.NewTicker(time.Duration(cfg.PollGPSSeconds) * time.Second)
	powerTicker := time.NewTicker(time.Duration(cfg.PollPowerSeconds) * time.Second)
	envTicker := time.NewTicker(time.Duration(cfg.PollEnvSeconds) * time.Second)
	defer gpsTicker.Stop()
	defer powerTicker.Stop()
	defer envTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("poller: active (gps %ds, power %ds, env %ds)",
		cfg.PollGPSSeconds, cfg.PollPowerSeconds, cfg.PollEnvSeconds)

	for {
		select {
		case <-gpsTicker.C:
			pollGPS(hw, store, client, cfg.TopicGPS)
		case <-powerTicker.C:
			pollPower(hw, store, client, cfg.TopicPower)
		case <-envTicker.C:
			pollEnv(hw, store, client, cfg.TopicEnv)
		case s := <-sig:
			log.Printf("poller: received %v, shutting down", s)
			return nil
		}
	}
}

func pollGPS(hw *hardware.Manager, store *storage.Store, client mqtt.Client, topic string) {
	fix, err := hw.BestFix()
	if err != nil {
		// Stale data is routine during cold start or antenna loss;
		// nothing gets stored or published for it.
		log.Printf("poller: no GPS fix to store: %v", err)
		return
	}
	if fix.Latitude == nil || fix.Longitude == nil {
		log.Printf("poller: fix has no coordinates (fix_type %s), skipping", fix.FixType)
		return
	}

	if err := store.AddLocation(*fix.Latitude, *fix.Longitude, fix.AltitudeM, fix.Source, fix); err != nil {
		log.Printf("poller: storing location: %v", err)
	}
	publish(client, topic, fix)
}

func pollPower(hw *hardware.Manager, store *storage.Store, client mqtt.Client, topic string) {
	sample, err := hw.UPS()
	if err != nil {
		log.Printf("poller: UPS read failed: %v", err)
		return
	}

	if err := store.AddSample("power.bus_voltage", sample.BusVoltageV, "V", "ina219", sample); err != nil {
		log.Printf("poller: storing power sample: %v", err)
	}
	if err := store.AddSample("power.current", sample.CurrentMA, "mA", "ina219", nil); err != nil {
		log.Printf("poller: storing power sample: %v", err)
	}
	publish(client, topic, sample)
}

func pollEnv(hw *hardware.Manager, store *storage.Store, client mqtt.Client, topic string) {
	sample, err := hw.Environment()
	if err != nil {
		log.Printf("poller: environment read failed: %v", err)
		return
	}

	if err := store.AddSample("env.temperature", sample.TemperatureC, "C", "bmxx80", sample); err != nil {
		log.Printf("poller: storing env sample: %v", err)
	}
	if err := store.AddSample("env.pressure", sample.PressureHPa, "hPa", "bmxx80", nil); err != nil {
		log.Printf("poller: storing env sample: %v", err)
	}
	publish(client, topic, sample)
}

func publish(client mqtt.Client, topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("poller: marshal error for %s: %v", topic, err)
		return
	}
	token := client.Publish(topic, 0, true, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("poller: publish error on %s: %v", topic, token.Error())
	}
}
