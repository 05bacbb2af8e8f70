package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sentiment-api-prototype/core"
)

func main() {
	cfg := core.Load()
	if cfg.InstanceID == "" || cfg.InstanceID == "unknown" {
		cfg.InstanceID = core.NewInstanceID()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	log.Printf("starting %s %s instance=%s", core.AppName, core.AppVersion, cfg.InstanceID)

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	if err := core.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		// Heartbeats and stats are best-effort; predictions still work.
		log.Printf("redis unavailable, replica stats disabled: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var classifier core.SentimentClassifier
	if clf, err := core.LoadBayesClassifier(cfg.ModelPath); err != nil {
		log.Printf("failed to load sentiment model: %v", err)
		log.Printf("sentiment predictions will not be available!")
	} else {
		classifier = clf
		info := clf.Info()
		log.Printf("sentiment model loaded from %s type=%s classes=%v", cfg.ModelPath, info.ModelType, info.Classes)
	}

	userRepo := core.NewPgUserRepository(db)
	authService := core.NewRepositoryAuthService(userRepo)
	tokens := core.NewTokenService(cfg.SecretKey, cfg.TokenTTL())

	if err := core.BootstrapAdmin(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	heartbeat := core.NewHeartbeatState(cfg.InstanceID, classifier != nil)
	if redisClient != nil {
		go heartbeat.Start(ctx, redisClient)
	}

	var rawRedis core.RedisClientRaw
	if redisClient != nil {
		rawRedis = redisClient
	}
	router := core.NewRouter(cfg, authService, userRepo, tokens, classifier, db, rawRedis, heartbeat)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
