package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"vigil/internal/app"
	"vigil/internal/clock"
)

// main starts the monitoring service from one TOML config file.
// Params: CLI flags (--config).
// Returns: process exit code by startup/run result.
func main() {
	configPath := flag.String("config", "vigil.toml", "path to the TOML config file")
	flag.Parse()

	service, err := app.NewService(*configPath, clock.RealClock{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service init failed:", err.Error())
		os.Exit(1)
	}

	if err := service.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service run failed:", err.Error())
		os.Exit(1)
	}
}
