package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/rawblock/watermark-gateway/internal/api"
	"github.com/rawblock/watermark-gateway/internal/config"
	"github.com/rawblock/watermark-gateway/internal/detector"
	"github.com/rawblock/watermark-gateway/internal/gateway"
	"github.com/rawblock/watermark-gateway/internal/registry/chain"
	"github.com/rawblock/watermark-gateway/internal/registry/verify"
	"github.com/rawblock/watermark-gateway/internal/store"
	"github.com/rawblock/watermark-gateway/internal/zerowidth"
)

func main() {
	log.Println("Starting watermark gateway (text provenance + generation proxy)...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	dbURL := cfg.DatabaseURL
	if dbURL == "" {
		log.Fatal("FATAL: DATABASE_URL is not set.")
	}

	ctx := context.Background()
	s, err := store.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("FATAL: could not connect to provenance database: %v", err)
	}
	defer s.Close()

	if err := s.InitSchema(ctx); err != nil {
		log.Fatalf("FATAL: schema init failed: %v", err)
	}

	c := chain.New(s)

	detCfg := detector.Config{
		MasterKeys:     cfg.MasterKeys,
		ActiveKeyID:    cfg.ActiveKeyID,
		ContextWidth:   cfg.ContextWidth,
		GreenlistRatio: cfg.GreenlistRatio,
		MaxBiasTokens:  cfg.MaxBiasTokens,
		ModelIDFor: func(modelHint string) int {
			return gateway.ModelIDFor(cfg, modelHint)
		},
		Tag: zerowidth.DefaultConfig(),
	}
	det := detector.New(detCfg)

	verifier := verify.New(s, c, det)

	gw := gateway.New(cfg)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	hub := api.NewHub(logger)
	go hub.Run()

	r := api.SetupRouter(cfg, s, c, verifier, det, gw, hub, logger)

	log.Printf("Watermark gateway listening on :%s, proxying %s\n", cfg.Port, cfg.UpstreamLlamaCppURL)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("FATAL: server exited: %v", err)
	}
}
