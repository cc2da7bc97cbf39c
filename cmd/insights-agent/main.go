package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aspecsweb/nano-tags/internal/agent"
	"github.com/aspecsweb/nano-tags/internal/config"
	"github.com/aspecsweb/nano-tags/internal/consumer"
	"github.com/aspecsweb/nano-tags/internal/handler"
	"github.com/aspecsweb/nano-tags/internal/project"
	"github.com/aspecsweb/nano-tags/internal/report"
	"github.com/aspecsweb/nano-tags/internal/server"
	"github.com/aspecsweb/nano-tags/internal/session"
)

const shutdownTimeout = 10 * time.Second

var tags = []string{config.TagInsights, config.TagAnalytics, config.TagCustom}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/agent.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}
	setupLogging(cfg.Log)

	log.Info().
		Str("transport", cfg.Reporter.Transport).
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Str("session_store", cfg.Session.Store).
		Int("max_pages", cfg.Pages.MaxPages).
		Dur("idle_ttl", cfg.Pages.IdleTTL).
		Msg("Configuration loaded")

	// Initialize dependencies
	sinks, err := newSinks(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create report sinks")
	}

	reporters := map[string]*report.Reporter{}
	senders := map[string]agent.Sender{}
	for _, tag := range tags {
		r := report.NewReporter(tag, sinks[tag], cfg.Reporter.Timeout)
		reporters[tag] = r
		senders[tag] = r
	}
	log.Info().Msg("Reporters initialized")

	sessions, err := session.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session store")
	}
	defer sessions.Close()

	resolver, err := project.NewResolver(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create project resolver")
	}
	defer resolver.Close()

	registry := agent.NewRegistry(cfg, sessions, resolver, senders)

	var kafkaConsumer *consumer.KafkaConsumer
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaConsumer, err = consumer.NewKafkaConsumer(cfg.Kafka, registry)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka consumer")
		}
	}

	grpcServer := server.NewGRPCServer(cfg.Server.GRPCPort)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: handler.Router(handler.NewHTTPHandler(registry)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return grpcServer.Serve()
	})

	if kafkaConsumer != nil {
		g.Go(func() error {
			kafkaConsumer.Start(gctx)
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		grpcServer.Stop(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down HTTP server")
		}
		if kafkaConsumer != nil {
			if err := kafkaConsumer.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Kafka consumer")
			}
		}

		// no report leaves a page after this
		registry.Close()

		for tag, r := range reporters {
			if err := r.Close(shutdownCtx); err != nil {
				log.Warn().Err(err).Str("tag", tag).Msg("Reports still in flight at shutdown")
			}
		}
		closed := map[report.Sink]bool{}
		for tag, sink := range sinks {
			if closed[sink] {
				continue
			}
			closed[sink] = true
			if err := sink.Close(); err != nil {
				log.Error().Err(err).Str("tag", tag).Msg("Failed to close report sink")
			}
		}
		return nil
	})

	log.Info().Msg("Insights agent started")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Insights agent stopped with error")
		sessions.Close()
		resolver.Close()
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// newSinks returns the sink of every tag. Kafka sinks are shared.
func newSinks(cfg *config.Config) (map[string]report.Sink, error) {
	sinks := make(map[string]report.Sink, len(tags))
	switch cfg.Reporter.Transport {
	case "http":
		client := &http.Client{Timeout: cfg.Reporter.Timeout}
		for _, tag := range tags {
			sinks[tag] = report.NewHTTPSink(cfg.Reporter.Endpoints[tag], client)
		}
	case "kafka":
		sink, err := report.NewKafkaSink(cfg.Kafka, tags...)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			sinks[tag] = sink
		}
	default:
		return nil, fmt.Errorf("unknown reporter transport %q", cfg.Reporter.Transport)
	}
	return sinks, nil
}
