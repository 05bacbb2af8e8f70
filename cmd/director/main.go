package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sentiment-api-prototype/core"
)

func main() {
	configPath := os.Getenv("DIRECTOR_CONFIG")
	cfg, err := core.LoadDirectorConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load director config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(core.Config{LogDir: cfg.LogDir, InstanceID: "director"}, "director.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	pool, err := core.NewBackendPool(cfg.Backends, cfg.FailureThreshold)
	if err != nil {
		log.Fatalf("failed to build backend pool: %v", err)
	}

	go pool.StartProbes(ctx, cfg.ProbePath, cfg.ProbeInterval, cfg.ProbeTimeout)

	router := core.NewDirectorRouter(cfg, pool)

	log.Printf("starting traffic director on %s backends=%v probe=%s every %s",
		cfg.Listen, cfg.Backends, cfg.ProbePath, cfg.ProbeInterval)
	if err := router.Run(cfg.Listen); err != nil {
		log.Fatalf("director failed: %v", err)
	}
}
