package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/pi_telemetry/internal/config"
	"github.com/relabs-tech/pi_telemetry/internal/gnss"
	"github.com/relabs-tech/pi_telemetry/internal/hardware"
	"github.com/relabs-tech/pi_telemetry/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// RunWeb serves the telemetry HTTP API. It blocks until the listener
// fails; hw and store are shared with the poller process family.
func RunWeb(hw *hardware.Manager, store *storage.Store) error {
	cfg := config.Get()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Latest normalized fix from the real-time cache.
	mux.HandleFunc("/api/gps/best", func(w http.ResponseWriter, r *http.Request) {
		fix, err := hw.BestFix()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, fix)
	})

	// Raw cache contents, for debugging the stream.
	mux.HandleFunc("/api/gps/raw", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hw.RawGNSS())
	})

	// Direct serial receiver, bypassing gpsd.
	mux.HandleFunc("/api/gps/serial", func(w http.ResponseWriter, r *http.Request) {
		fix, err := hw.SerialGPS()
		if err != nil {
			writeHardwareError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fix)
	})

	mux.HandleFunc("/api/ups", func(w http.ResponseWriter, r *http.Request) {
		sample, err := hw.UPS()
		if err != nil {
			writeHardwareError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sample)
	})

	mux.HandleFunc("/api/env", func(w http.ResponseWriter, r *http.Request) {
		sample, err := hw.Environment()
		if err != nil {
			writeHardwareError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sample)
	})

	mux.HandleFunc("/api/lte/network-info", func(w http.ResponseWriter, r *http.Request) {
		info, err := hw.LTENetworkInfo()
		if err != nil {
			writeHardwareError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	mux.HandleFunc("/api/lte/flight-mode", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
			return
		}
		var body struct {
			Enable bool `json:"enable"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		if err := hw.SetFlightMode(body.Enable); err != nil {
			writeHardwareError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": fmt.Sprintf("Flight mode set to %t.", body.Enable),
		})
	})

	mux.HandleFunc("/api/history/location", func(w http.ResponseWriter, r *http.Request) {
		rows, err := store.RecentLocations(queryInt(r, "limit", 100))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("/api/history/sensors", func(w http.ResponseWriter, r *http.Request) {
		rows, err := store.RecentSamples(r.URL.Query().Get("type"), queryInt(r, "limit", 100))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("/api/database/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		stats.DBPath = cfg.DBPath
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("/api/database/prune", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
			return
		}
		var body struct {
			OlderThanDays int `json:"older_than_days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OlderThanDays <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("older_than_days must be a positive integer"))
			return
		}
		n, err := store.Prune(time.Duration(body.OlderThanDays) * 24 * time.Hour)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"rows_deleted": n})
	})

	// Live fix stream for dashboards.
	mux.HandleFunc("/ws/gps", func(w http.ResponseWriter, r *http.Request) {
		serveGPSStream(hw, w, r)
	})

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: telemetry API listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// serveGPSStream pushes the normalized fix (or the staleness error) to the
// client once a second until the connection drops.
func serveGPSStream(hw *hardware.Manager, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		var payload interface{}
		if fix, err := hw.BestFix(); err != nil {
			payload = map[string]string{"error": err.Error()}
		} else {
			payload = fix
		}
		if err := conn.WriteJSON(payload); err != nil {
			return // client went away
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeHardwareError maps an unavailable source to 503 and everything else
// to 500.
func writeHardwareError(w http.ResponseWriter, err error) {
	if errors.Is(err, hardware.ErrSourceUnavailable) || errors.Is(err, gnss.ErrStaleFix) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
