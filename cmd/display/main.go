// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"
	"os"

	"github.com/relabs-tech/pi_telemetry/internal/app"
	"github.com/relabs-tech/pi_telemetry/internal/config"
)

func main() {
	log.Println("starting pi-telemetry OLED status display")

	if err := config.InitGlobal(configPath()); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDisplay(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func configPath() string {
	if p := os.Getenv("PI_TELEMETRY_CONFIG"); p != "" {
		return p
	}
	return "pi_telemetry.conf"
}
