// Package main provides the AI pipeline HTTP server entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/Donggull/ea-plan-05-sub006/internal/analysis"
	"github.com/Donggull/ea-plan-05-sub006/internal/config"
	"github.com/Donggull/ea-plan-05-sub006/internal/contextcache"
	"github.com/Donggull/ea-plan-05-sub006/internal/pricing"
	"github.com/Donggull/ea-plan-05-sub006/internal/provider"
	"github.com/Donggull/ea-plan-05-sub006/internal/quota"
	"github.com/Donggull/ea-plan-05-sub006/internal/session"
	"github.com/Donggull/ea-plan-05-sub006/internal/store"
	"github.com/Donggull/ea-plan-05-sub006/internal/telemetry"
	"github.com/Donggull/ea-plan-05-sub006/internal/worker"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && !*debug {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()

	st, err := store.New(store.Config{Path: cfg.DBPath, LogLevel: logger.Silent})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer st.Close()

	sessions := store.NewSessionStore(st)
	questions := store.NewQuestionStore(st)
	results := store.NewResultStore(st)
	usage := store.NewUsageStore(st)

	roles, defaults := cfg.QuotaLimits()
	governor := quota.NewGovernor(usage, roles, defaults)

	table := pricing.NewTable()
	if cfg.PricingPath != "" {
		if err := table.LoadFile(cfg.PricingPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.PricingPath).Msg("Failed to load pricing file, using built-in rates")
		} else if err := table.Watch(ctx, cfg.PricingPath); err != nil {
			log.Warn().Err(err).Msg("Pricing hot-reload disabled")
		}
	}

	var clients []provider.Client
	for _, p := range cfg.ConfiguredProviders() {
		switch p {
		case models.ProviderOpenAI:
			clients = append(clients, provider.NewOpenAI(cfg.Keys[p]))
		case models.ProviderAnthropic:
			clients = append(clients, provider.NewAnthropic(cfg.Keys[p], ""))
		case models.ProviderGoogle:
			clients = append(clients, provider.NewGoogle(cfg.Keys[p], ""))
		}
		log.Info().Str("provider", string(p)).Msg("Provider configured")
	}
	if len(clients) == 0 {
		log.Warn().Msg("No provider API keys configured; AI calls will fail")
	}

	metrics, err := telemetry.New()
	if err != nil {
		log.Warn().Err(err).Msg("Metrics registration failed")
	}

	pipeline := analysis.NewService(analysis.Config{
		Registry:  provider.NewRegistry(clients...),
		Pricing:   table,
		Quota:     governor,
		Sessions:  sessions,
		Questions: questions,
		Results:   results,
		Usage:     usage,
		Machine:   session.New(),
		Metrics:   metrics,
	})

	svc := worker.New(worker.Deps{
		Version:   Version,
		Config:    cfg,
		Pipeline:  pipeline,
		Sessions:  sessions,
		Questions: questions,
		Results:   results,
		Usage:     usage,
		Governor:  governor,
	})

	var backend contextcache.Backend = contextcache.NewMemoryBackend()
	if cfg.RedisAddr != "" {
		pool := contextcache.NewRedisPool(cfg.RedisAddr)
		defer pool.Close()
		backend = contextcache.NewRedisBackend(pool)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Redis context cache enabled")
	}
	svc.SetCache(contextcache.New(backend, analysis.NewContextBuilder(pipeline, svc.ResolveProject)))

	if err := svc.Run(ctx, cfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
