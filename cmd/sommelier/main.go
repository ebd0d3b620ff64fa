// Sommelier agent backend: identification and enrichment of wines over
// multiple LLM providers, served over HTTP/SSE.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cellarist/sommelier/pkg/api"
	"github.com/cellarist/sommelier/pkg/breaker"
	"github.com/cellarist/sommelier/pkg/cancel"
	"github.com/cellarist/sommelier/pkg/config"
	"github.com/cellarist/sommelier/pkg/database"
	"github.com/cellarist/sommelier/pkg/enrich"
	"github.com/cellarist/sommelier/pkg/identify"
	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/router"
	"github.com/cellarist/sommelier/pkg/usage"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	logger := slog.Default()
	ctx := context.Background()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("Failed to build providers", "error", err)
		os.Exit(1)
	}
	slog.Info("Providers initialized", "count", len(providers))

	usageStore := usage.NewPGStore(dbClient.Pool())
	tracker := usage.NewTracker(usageStore, cfg.Limits, logger)
	brk := breaker.New(usageStore, cfg.CircuitBreaker, logger)
	llmRouter := router.New(providers, cfg, tracker, brk, logger)

	identifySvc := identify.New(llmRouter, tracker, cfg, logger)
	enrichSvc := enrich.New(llmRouter, enrich.NewPGStore(dbClient.Pool()), cfg, logger)

	registry, err := cancel.NewRegistry(cfg.Server.CancelTokenDir, logger)
	if err != nil {
		slog.Error("Failed to initialize cancellation registry", "error", err)
		os.Exit(1)
	}

	providerHealth := make(map[string]api.ProviderHealth, len(providers))
	for name, p := range providers {
		providerHealth[name] = p
	}

	server := api.NewServer(identifySvc, enrichSvc, tracker, registry,
		dbClient, providerHealth, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

// buildProviders constructs one adapter per enabled provider from the merged
// configuration. API keys are resolved from the environment here and handed
// to the adapters only.
func buildProviders(cfg *config.Config) (map[string]llm.Provider, error) {
	providers := make(map[string]llm.Provider)
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		ac := llm.AdapterConfig{
			Name:          name,
			APIKey:        pc.APIKey(),
			BaseURL:       pc.BaseURL,
			Model:         pc.DefaultModel,
			TimeoutSec:    pc.TimeoutSec,
			ModelCaps:     modelCaps(pc),
			SiblingModels: siblingModels(pc),
		}

		var (
			p   llm.Provider
			err error
		)
		switch pc.Vendor {
		case "gemini":
			p, err = llm.NewGeminiProvider(ac)
		case "anthropic":
			p, err = llm.NewAnthropicProvider(ac)
		default:
			return nil, fmt.Errorf("provider %q: unknown vendor %q", name, pc.Vendor)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		providers[name] = p
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}
	return providers, nil
}

func modelCaps(pc config.ProviderConfig) map[string][]llm.Capability {
	caps := make(map[string][]llm.Capability, len(pc.Models))
	for model, mc := range pc.Models {
		var list []llm.Capability
		if mc.SupportsVision {
			list = append(list, llm.CapabilityVision)
		}
		if mc.SupportsTools {
			list = append(list, llm.CapabilityTools)
		}
		if mc.SupportsStreaming {
			list = append(list, llm.CapabilityStreaming)
		}
		if mc.SupportsGrounding {
			list = append(list, llm.CapabilityGrounding)
		}
		if mc.SupportsThinking {
			list = append(list, llm.CapabilityThinking)
		}
		caps[model] = list
	}
	return caps
}

func siblingModels(pc config.ProviderConfig) map[string]string {
	siblings := make(map[string]string)
	for model, mc := range pc.Models {
		if mc.SiblingModel != "" {
			siblings[model] = mc.SiblingModel
		}
	}
	return siblings
}
