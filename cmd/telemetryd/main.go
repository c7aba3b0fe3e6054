// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"
	"os"

	"github.com/relabs-tech/pi_telemetry/internal/app"
	"github.com/relabs-tech/pi_telemetry/internal/config"
	"github.com/relabs-tech/pi_telemetry/internal/hardware"
	"github.com/relabs-tech/pi_telemetry/internal/storage"
)

func main() {
	log.Println("starting pi-telemetry API server")

	if err := config.InitGlobal(configPath()); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	hw := hardware.New(cfg)
	defer hw.Close()

	if err := app.RunWeb(hw, store); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func configPath() string {
	if p := os.Getenv("PI_TELEMETRY_CONFIG"); p != "" {
		return p
	}
	return "pi_telemetry.conf"
}
